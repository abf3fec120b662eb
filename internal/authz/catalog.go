package authz

import "fmt"

// Catalog is a read-only registry of role definitions. It is safe for
// concurrent use because nothing mutates it after construction.
type Catalog struct {
	roles map[RoleID]Role
	order []RoleID
	perms PermissionSet
}

// NewCatalog validates the definitions and builds a catalog that preserves
// their order for listings.
func NewCatalog(roles ...Role) (*Catalog, error) {
	c := &Catalog{
		roles: make(map[RoleID]Role, len(roles)),
		order: make([]RoleID, 0, len(roles)),
		perms: NewPermissionSet(),
	}
	for _, r := range roles {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: role id is required", ErrInvalidCatalog)
		}
		if _, dup := c.roles[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate role %q", ErrInvalidCatalog, r.ID)
		}
		if !r.Category.valid() {
			return nil, fmt.Errorf("%w: role %q has unknown category %q", ErrInvalidCatalog, r.ID, r.Category)
		}
		r = r.clone()
		c.roles[r.ID] = r
		c.order = append(c.order, r.ID)
		c.perms.Union(r.Permissions)
	}
	for _, id := range c.order {
		for granter := range c.roles[id].CanBeAssignedBy {
			if _, ok := c.roles[granter]; !ok {
				return nil, fmt.Errorf("%w: role %q is assignable by unknown role %q", ErrInvalidCatalog, id, granter)
			}
		}
	}
	for _, g := range GlobalRoles {
		if r, ok := c.roles[g.ID()]; ok && !r.Global() {
			return nil, fmt.Errorf("%w: role %q must be in the %q category", ErrInvalidCatalog, g, CategoryGlobal)
		}
	}
	ceo, ok := c.roles[RoleCEO]
	if !ok {
		return nil, fmt.Errorf("%w: %q role is required", ErrInvalidCatalog, RoleCEO)
	}
	if !ceo.CanBeAssignedBy.Equal(NewRoleSet(RoleCEO)) {
		return nil, fmt.Errorf("%w: %q must be assignable by %q only", ErrInvalidCatalog, RoleCEO, RoleCEO)
	}
	return c, nil
}

// Lookup returns a copy of the role definition. Unknown ids report false and
// must be treated as roles with no effect.
func (c *Catalog) Lookup(id RoleID) (Role, bool) {
	r, ok := c.roles[id]
	if !ok {
		return Role{}, false
	}
	return r.clone(), true
}

// Get is Lookup for callers that need the NotFoundError path.
func (c *Catalog) Get(id RoleID) (Role, error) {
	r, ok := c.Lookup(id)
	if !ok {
		return Role{}, &NotFoundError{Kind: "role", ID: string(id)}
	}
	return r, nil
}

// Roles lists every definition in catalog order.
func (c *Catalog) Roles() []Role {
	out := make([]Role, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.roles[id].clone())
	}
	return out
}

// ByCategory lists the definitions of a single category in catalog order.
func (c *Catalog) ByCategory(cat Category) []Role {
	var out []Role
	for _, id := range c.order {
		if r := c.roles[id]; r.Category == cat {
			out = append(out, r.clone())
		}
	}
	return out
}

// Permissions returns every permission granted by at least one role.
func (c *Catalog) Permissions() PermissionSet { return c.perms.Clone() }

// KnowsPermission reports whether p is a catalog permission.
func (c *Catalog) KnowsPermission(p Permission) bool { return c.perms.Has(p) }

var (
	contentFull = []Permission{PermContentView, PermContentCreate, PermContentEdit, PermContentDelete, PermContentModerate}
	contentEdit = []Permission{PermContentView, PermContentCreate, PermContentEdit}
	byAdmins    = NewRoleSet(RoleCEO, RoleAdmin)
)

// DefaultRoles returns the built-in role table.
func DefaultRoles() []Role {
	roles := []Role{
		{
			ID: RoleCEO, Name: "CEO", Category: CategoryGlobal,
			Description:     "Full access to every site function",
			Permissions:     NewPermissionSet(BuiltinPermissions...),
			CanBeAssignedBy: NewRoleSet(RoleCEO),
		},
		{
			ID: RoleAdmin, Name: "Administrator", Category: CategoryGlobal,
			Description: "Manages users and content",
			Permissions: NewPermissionSet(
				PermUsersView, PermUsersEdit, PermUsersBan, PermUsersRoles,
				PermContentView, PermContentCreate, PermContentEdit, PermContentDelete, PermContentModerate,
				PermReportsView, PermReportsResolve,
				PermSettingsView,
			),
			CanBeAssignedBy: NewRoleSet(RoleCEO),
		},
		{
			ID: RoleModerator, Name: "Moderator", Category: CategoryGlobal,
			Description: "Moderates content and complaints",
			Permissions: NewPermissionSet(
				PermUsersView, PermUsersBan,
				PermContentView, PermContentModerate,
				PermReportsView, PermReportsResolve,
			),
			CanBeAssignedBy: byAdmins,
		},
		{
			ID: RoleUser, Name: "Member", Category: CategoryGlobal,
			Description:     "Regular club member",
			Permissions:     NewPermissionSet(PermContentView),
			CanBeAssignedBy: byAdmins,
		},
	}
	content := []struct {
		cat   Category
		admin RoleID
		edit  RoleID
		noun  string
	}{
		{CategoryShop, RoleShopAdmin, RoleShopEditor, "shops"},
		{CategoryService, RoleServiceAdmin, RoleServiceEditor, "services"},
		{CategorySchool, RoleSchoolAdmin, RoleSchoolEditor, "riding schools"},
		{CategoryPost, RolePostAdmin, RolePostEditor, "bike posts"},
	}
	for _, c := range content {
		roles = append(roles,
			Role{
				ID: c.admin, Name: "Head administrator of " + c.noun, Category: c.cat,
				Description:     "Full management of " + c.noun,
				Permissions:     NewPermissionSet(contentFull...),
				CanBeAssignedBy: byAdmins,
			},
			Role{
				ID: c.edit, Name: "Editor of " + c.noun, Category: c.cat,
				Description:     "Creates and edits " + c.noun,
				Permissions:     NewPermissionSet(contentEdit...),
				CanBeAssignedBy: byAdmins,
			},
		)
	}
	return roles
}

// DefaultCatalog builds the catalog from DefaultRoles. The table is static so
// a validation failure is a programming error.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultRoles()...)
	if err != nil {
		panic(err)
	}
	return c
}
