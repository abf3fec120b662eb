package authz

import "strings"

// Permission is an atomic capability token such as "users.ban".
type Permission string

const (
	PermUsersView   Permission = "users.view"
	PermUsersEdit   Permission = "users.edit"
	PermUsersDelete Permission = "users.delete"
	PermUsersBan    Permission = "users.ban"
	PermUsersRoles  Permission = "users.roles"

	PermContentView     Permission = "content.view"
	PermContentCreate   Permission = "content.create"
	PermContentEdit     Permission = "content.edit"
	PermContentDelete   Permission = "content.delete"
	PermContentModerate Permission = "content.moderate"

	PermReportsView    Permission = "reports.view"
	PermReportsResolve Permission = "reports.resolve"

	PermSettingsView Permission = "settings.view"
	PermSettingsEdit Permission = "settings.edit"

	PermPermissionsManage Permission = "permissions.manage"
)

// BuiltinPermissions lists every permission known to the default catalog.
var BuiltinPermissions = []Permission{
	PermUsersView, PermUsersEdit, PermUsersDelete, PermUsersBan, PermUsersRoles,
	PermContentView, PermContentCreate, PermContentEdit, PermContentDelete, PermContentModerate,
	PermReportsView, PermReportsResolve,
	PermSettingsView, PermSettingsEdit,
	PermPermissionsManage,
}

// Category returns the grouping prefix of the token ("users" for "users.ban").
func (p Permission) Category() string {
	s := string(p)
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i]
	}
	return s
}

// GroupByCategory buckets a set by permission category, each bucket sorted.
func GroupByCategory(perms PermissionSet) map[string][]Permission {
	out := make(map[string][]Permission)
	for _, p := range perms.Sorted() {
		out[p.Category()] = append(out[p.Category()], p)
	}
	return out
}
