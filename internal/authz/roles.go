package authz

import "strings"

// RoleID identifies a role in the catalog.
type RoleID string

// Global role ids. Content-scoped ids are an open table held by the catalog.
const (
	RoleCEO       RoleID = "ceo"
	RoleAdmin     RoleID = "admin"
	RoleModerator RoleID = "moderator"
	RoleUser      RoleID = "user"
)

// Content-scoped role ids shipped with the default catalog.
const (
	RoleShopAdmin     RoleID = "shop_admin"
	RoleShopEditor    RoleID = "shop_editor"
	RoleServiceAdmin  RoleID = "service_admin"
	RoleServiceEditor RoleID = "service_editor"
	RoleSchoolAdmin   RoleID = "school_admin"
	RoleSchoolEditor  RoleID = "school_editor"
	RolePostAdmin     RoleID = "post_admin"
	RolePostEditor    RoleID = "post_editor"
)

// GlobalRole is the closed set of platform-wide roles a principal acts as.
type GlobalRole RoleID

const (
	GlobalCEO       = GlobalRole(RoleCEO)
	GlobalAdmin     = GlobalRole(RoleAdmin)
	GlobalModerator = GlobalRole(RoleModerator)
	GlobalUser      = GlobalRole(RoleUser)
)

// GlobalRoles lists the closed variant in seniority order.
var GlobalRoles = []GlobalRole{GlobalCEO, GlobalAdmin, GlobalModerator, GlobalUser}

// ParseGlobalRole normalises s and maps it onto the closed variant. Unknown
// values yield a NotFoundError rather than a zero role.
func ParseGlobalRole(s string) (GlobalRole, error) {
	v := GlobalRole(strings.ToLower(strings.TrimSpace(s)))
	for _, g := range GlobalRoles {
		if v == g {
			return g, nil
		}
	}
	return "", &NotFoundError{Kind: "global role", ID: s}
}

// ID returns the catalog id of the global role.
func (g GlobalRole) ID() RoleID { return RoleID(g) }

// Category groups roles by the area they apply to.
type Category string

const (
	CategoryGlobal  Category = "global"
	CategoryShop    Category = "shop"
	CategoryService Category = "service"
	CategorySchool  Category = "school"
	CategoryPost    Category = "post"
)

// Categories lists valid categories in display order.
var Categories = []Category{CategoryGlobal, CategoryShop, CategoryService, CategorySchool, CategoryPost}

func (c Category) valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Role is an immutable catalog entry.
type Role struct {
	ID              RoleID        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	Category        Category      `json:"category"`
	Permissions     PermissionSet `json:"permissions"`
	CanBeAssignedBy RoleSet       `json:"can_be_assigned_by"`
}

// Global reports whether the role applies platform-wide.
func (r Role) Global() bool { return r.Category == CategoryGlobal }

func (r Role) clone() Role {
	r.Permissions = r.Permissions.Clone()
	r.CanBeAssignedBy = r.CanBeAssignedBy.Clone()
	return r
}
