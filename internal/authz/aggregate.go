package authz

// EffectivePermissions unions the permissions of every assigned role with the
// custom grants. Role ids missing from the catalog contribute nothing; stale
// references must not break the rest of the computation. The result is a new
// set on every call.
func EffectivePermissions(c *Catalog, assigned RoleSet, custom PermissionSet) PermissionSet {
	out := NewPermissionSet()
	for id := range assigned {
		r, ok := c.roles[id]
		if !ok {
			continue
		}
		out.Union(r.Permissions)
	}
	out.Union(custom)
	return out
}

// State is a user's authorization snapshot as supplied by the caller.
type State struct {
	UserID            string        `json:"user_id"`
	AssignedRoles     RoleSet       `json:"assigned_roles"`
	CustomPermissions PermissionSet `json:"custom_permissions"`
}

// Effective is EffectivePermissions applied to the snapshot.
func (s State) Effective(c *Catalog) PermissionSet {
	return EffectivePermissions(c, s.AssignedRoles, s.CustomPermissions)
}

// Can reports whether the snapshot grants p.
func (s State) Can(c *Catalog, p Permission) bool {
	return s.Effective(c).Has(p)
}
