package authz

// Authorizer decides role and custom-permission mutations against a catalog.
// It holds no per-user state; every call works on the snapshot it is given and
// returns a new set.
type Authorizer struct {
	catalog *Catalog
}

// NewAuthorizer binds an authorizer to c.
func NewAuthorizer(c *Catalog) *Authorizer {
	return &Authorizer{catalog: c}
}

// Catalog returns the catalog the authorizer checks against.
func (a *Authorizer) Catalog() *Catalog { return a.catalog }

// CanAssign reports whether acting is listed directly in the target role's
// assigner set. There is no transitive or seniority-based reasoning.
func (a *Authorizer) CanAssign(acting, target RoleID) bool {
	r, ok := a.catalog.roles[target]
	if !ok {
		return false
	}
	return r.CanBeAssignedBy.Has(acting)
}

// AssignableRoles lists the catalog roles acting may grant or revoke.
func (a *Authorizer) AssignableRoles(acting RoleID) []Role {
	var out []Role
	for _, id := range a.catalog.order {
		if id == RoleCEO {
			continue
		}
		if a.CanAssign(acting, id) {
			out = append(out, a.catalog.roles[id].clone())
		}
	}
	return out
}

// checkRoleChange applies the ceo protection first, then catalog membership,
// then direct assignment authority. A held role the catalog no longer lists
// has no assigner set, so only ceo may revoke it.
func (a *Authorizer) checkRoleChange(acting RoleID, action string, target RoleID, current RoleSet) error {
	if acting == "" {
		return denied(acting, action, string(target), ReasonNoActor)
	}
	if target == RoleCEO || current.Has(RoleCEO) {
		return denied(acting, action, string(target), ReasonCEOProtected)
	}
	if _, ok := a.catalog.roles[target]; !ok {
		if action != "revoke" || !current.Has(target) {
			return &NotFoundError{Kind: "role", ID: string(target)}
		}
		if acting != RoleCEO {
			return denied(acting, action, string(target), ReasonNotAssignable)
		}
		return nil
	}
	if !a.CanAssign(acting, target) {
		return denied(acting, action, string(target), ReasonNotAssignable)
	}
	return nil
}

// GrantRole returns current plus target. Granting a held role returns an equal
// set, so retrying is safe.
func (a *Authorizer) GrantRole(acting, target RoleID, current RoleSet) (RoleSet, error) {
	if err := a.checkRoleChange(acting, "grant", target, current); err != nil {
		return nil, err
	}
	return current.With(target), nil
}

// RevokeRole returns current without target. Revoking an absent role returns
// an equal set.
func (a *Authorizer) RevokeRole(acting, target RoleID, current RoleSet) (RoleSet, error) {
	if err := a.checkRoleChange(acting, "revoke", target, current); err != nil {
		return nil, err
	}
	return current.Without(target), nil
}

// ToggleRole revokes target when held and grants it otherwise. It is not
// idempotent: callers must not replay it with stale input.
func (a *Authorizer) ToggleRole(acting, target RoleID, current RoleSet) (RoleSet, error) {
	if current.Has(target) {
		return a.RevokeRole(acting, target, current)
	}
	return a.GrantRole(acting, target, current)
}

// RolePlan is the set difference between a user's held and desired roles.
type RolePlan struct {
	Grant  []RoleID `json:"grant"`
	Revoke []RoleID `json:"revoke"`
}

// Empty reports whether the plan changes nothing.
func (p RolePlan) Empty() bool { return len(p.Grant) == 0 && len(p.Revoke) == 0 }

// PlanRoleChanges computes the grants and revocations that turn current into
// desired. Every changed role passes the same checks as GrantRole/RevokeRole;
// roles present in both sets are left alone.
func (a *Authorizer) PlanRoleChanges(acting RoleID, current, desired RoleSet) (RolePlan, error) {
	var plan RolePlan
	for _, id := range desired.Sorted() {
		if current.Has(id) {
			continue
		}
		if err := a.checkRoleChange(acting, "grant", id, current); err != nil {
			return RolePlan{}, err
		}
		plan.Grant = append(plan.Grant, id)
	}
	for _, id := range current.Sorted() {
		if desired.Has(id) {
			continue
		}
		if err := a.checkRoleChange(acting, "revoke", id, current); err != nil {
			return RolePlan{}, err
		}
		plan.Revoke = append(plan.Revoke, id)
	}
	return plan, nil
}

// checkPermissionChange lets a held token through even when the catalog no
// longer lists it, so stale grants can still be revoked.
func (a *Authorizer) checkPermissionChange(acting RoleID, action string, p Permission, current PermissionSet) error {
	if acting != RoleCEO {
		return denied(acting, action, string(p), ReasonCEOOnly)
	}
	if !a.catalog.KnowsPermission(p) && !current.Has(p) {
		return &NotFoundError{Kind: "permission", ID: string(p)}
	}
	return nil
}

// GrantPermission adds p to the custom overlay. Only ceo may do this.
func (a *Authorizer) GrantPermission(acting RoleID, p Permission, current PermissionSet) (PermissionSet, error) {
	if err := a.checkPermissionChange(acting, "grant", p, current); err != nil {
		return nil, err
	}
	return current.With(p), nil
}

// RevokePermission removes p from the custom overlay. Only ceo may do this.
func (a *Authorizer) RevokePermission(acting RoleID, p Permission, current PermissionSet) (PermissionSet, error) {
	if err := a.checkPermissionChange(acting, "revoke", p, current); err != nil {
		return nil, err
	}
	return current.Without(p), nil
}

// TogglePermission flips membership of p in the custom overlay.
func (a *Authorizer) TogglePermission(acting RoleID, p Permission, current PermissionSet) (PermissionSet, error) {
	if current.Has(p) {
		return a.RevokePermission(acting, p, current)
	}
	return a.GrantPermission(acting, p, current)
}
