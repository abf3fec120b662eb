package admin

import (
	"context"
	"strings"

	"mototumen.org/internal/auth"
	"mototumen.org/internal/authz"
	"mototumen.org/internal/obs"
)

// UserPermissions is a user's authorization snapshot with its derived view.
type UserPermissions struct {
	UserID            string                        `json:"user_id"`
	Roles             authz.RoleSet                 `json:"roles"`
	CustomPermissions authz.PermissionSet           `json:"custom_permissions"`
	Effective         authz.PermissionSet           `json:"effective_permissions"`
	ByCategory        map[string][]authz.Permission `json:"by_category"`
}

func view(c *authz.Catalog, st authz.State) UserPermissions {
	eff := st.Effective(c)
	return UserPermissions{
		UserID:            st.UserID,
		Roles:             st.AssignedRoles.Clone(),
		CustomPermissions: st.CustomPermissions.Clone(),
		Effective:         eff,
		ByCategory:        authz.GroupByCategory(eff),
	}
}

// EffectivePermissions returns userID's snapshot. Callers may read their own;
// reading others needs a role carrying users.view.
func (s *Service) EffectivePermissions(ctx context.Context, actor auth.Principal, userID string) (UserPermissions, error) {
	userID = strings.TrimSpace(userID)
	cat, err := s.fetchCatalog(ctx)
	if err != nil {
		return UserPermissions{}, err
	}
	if actor.UserID != userID {
		acting := authz.State{UserID: actor.UserID, AssignedRoles: authz.NewRoleSet(actor.RoleID())}
		if !acting.Can(cat, authz.PermUsersView) {
			return UserPermissions{}, &authz.AuthorizationError{
				Actor:  actor.RoleID(),
				Action: "view",
				Target: "user " + userID,
				Reason: "users.view required",
			}
		}
	}
	st, err := s.fetchState(ctx, userID)
	if err != nil {
		return UserPermissions{}, err
	}
	return view(cat, st), nil
}

type roleDecision func(a *authz.Authorizer, acting authz.RoleID, current authz.RoleSet) (authz.RoleSet, error)

// GrantRole assigns role to userID. Granting a held role changes nothing.
func (s *Service) GrantRole(ctx context.Context, actor auth.Principal, userID string, role authz.RoleID) (UserPermissions, error) {
	return s.mutateRole(ctx, "grant_role", actor, userID, role, func(a *authz.Authorizer, acting authz.RoleID, cur authz.RoleSet) (authz.RoleSet, error) {
		return a.GrantRole(acting, role, cur)
	})
}

// RevokeRole removes role from userID. Revoking an absent role changes nothing.
func (s *Service) RevokeRole(ctx context.Context, actor auth.Principal, userID string, role authz.RoleID) (UserPermissions, error) {
	return s.mutateRole(ctx, "revoke_role", actor, userID, role, func(a *authz.Authorizer, acting authz.RoleID, cur authz.RoleSet) (authz.RoleSet, error) {
		return a.RevokeRole(acting, role, cur)
	})
}

// ToggleRole flips role on the freshly fetched snapshot. It must not be
// replayed after a PersistenceError; reload and decide again instead.
func (s *Service) ToggleRole(ctx context.Context, actor auth.Principal, userID string, role authz.RoleID) (UserPermissions, error) {
	return s.mutateRole(ctx, "toggle_role", actor, userID, role, func(a *authz.Authorizer, acting authz.RoleID, cur authz.RoleSet) (authz.RoleSet, error) {
		return a.ToggleRole(acting, role, cur)
	})
}

func (s *Service) mutateRole(ctx context.Context, op string, actor auth.Principal, userID string, role authz.RoleID, decide roleDecision) (result UserPermissions, err error) {
	defer func() { observeAuthz(op, err) }()

	cat, err := s.fetchCatalog(ctx)
	if err != nil {
		return UserPermissions{}, err
	}
	st, err := s.fetchState(ctx, userID)
	if err != nil {
		return UserPermissions{}, err
	}
	next, err := decide(authz.NewAuthorizer(cat), actor.RoleID(), st.AssignedRoles)
	if err != nil {
		return UserPermissions{}, err
	}

	change, changed := direction(st.AssignedRoles.Has(role), next.Has(role))
	if !changed {
		return view(cat, st), nil
	}
	granter := s.attribution.granter(actor)
	if err := s.states.PersistRoleChange(ctx, userID, role, change, granter); err != nil {
		return s.reload(ctx, cat, userID, persistErr(op, err))
	}
	st.AssignedRoles = next
	s.audit(ctx, "authz.role."+string(change), map[string]any{
		"target_user_id": userID,
		"role_id":        string(role),
		"granted_by":     granter,
	})
	return view(cat, st), nil
}

// SaveRoles applies the difference between the held roles and desired. Each
// changed role is authorized before anything is written; held roles that stay
// are not rechecked.
func (s *Service) SaveRoles(ctx context.Context, actor auth.Principal, userID string, desired authz.RoleSet) (result UserPermissions, err error) {
	const op = "save_roles"
	defer func() { observeAuthz(op, err) }()

	cat, err := s.fetchCatalog(ctx)
	if err != nil {
		return UserPermissions{}, err
	}
	st, err := s.fetchState(ctx, userID)
	if err != nil {
		return UserPermissions{}, err
	}
	plan, err := authz.NewAuthorizer(cat).PlanRoleChanges(actor.RoleID(), st.AssignedRoles, desired)
	if err != nil {
		return UserPermissions{}, err
	}
	if plan.Empty() {
		return view(cat, st), nil
	}

	granter := s.attribution.granter(actor)
	for _, id := range plan.Grant {
		if err := s.states.PersistRoleChange(ctx, userID, id, Grant, granter); err != nil {
			return s.reload(ctx, cat, userID, persistErr(op, err))
		}
	}
	for _, id := range plan.Revoke {
		if err := s.states.PersistRoleChange(ctx, userID, id, Revoke, granter); err != nil {
			return s.reload(ctx, cat, userID, persistErr(op, err))
		}
	}
	st.AssignedRoles = desired.Clone()
	s.audit(ctx, "authz.roles.saved", map[string]any{
		"target_user_id": userID,
		"granted":        plan.Grant,
		"revoked":        plan.Revoke,
		"granted_by":     granter,
	})
	return view(cat, st), nil
}

type permDecision func(a *authz.Authorizer, acting authz.RoleID, current authz.PermissionSet) (authz.PermissionSet, error)

// GrantPermission adds perm to userID's custom overlay. Only ceo may do this.
func (s *Service) GrantPermission(ctx context.Context, actor auth.Principal, userID string, perm authz.Permission) (UserPermissions, error) {
	return s.mutatePermission(ctx, "grant_permission", actor, userID, perm, func(a *authz.Authorizer, acting authz.RoleID, cur authz.PermissionSet) (authz.PermissionSet, error) {
		return a.GrantPermission(acting, perm, cur)
	})
}

// RevokePermission removes perm from userID's custom overlay.
func (s *Service) RevokePermission(ctx context.Context, actor auth.Principal, userID string, perm authz.Permission) (UserPermissions, error) {
	return s.mutatePermission(ctx, "revoke_permission", actor, userID, perm, func(a *authz.Authorizer, acting authz.RoleID, cur authz.PermissionSet) (authz.PermissionSet, error) {
		return a.RevokePermission(acting, perm, cur)
	})
}

// TogglePermission flips perm in userID's custom overlay.
func (s *Service) TogglePermission(ctx context.Context, actor auth.Principal, userID string, perm authz.Permission) (UserPermissions, error) {
	return s.mutatePermission(ctx, "toggle_permission", actor, userID, perm, func(a *authz.Authorizer, acting authz.RoleID, cur authz.PermissionSet) (authz.PermissionSet, error) {
		return a.TogglePermission(acting, perm, cur)
	})
}

func (s *Service) mutatePermission(ctx context.Context, op string, actor auth.Principal, userID string, perm authz.Permission, decide permDecision) (result UserPermissions, err error) {
	defer func() { observeAuthz(op, err) }()

	cat, err := s.fetchCatalog(ctx)
	if err != nil {
		return UserPermissions{}, err
	}
	st, err := s.fetchState(ctx, userID)
	if err != nil {
		return UserPermissions{}, err
	}
	next, err := decide(authz.NewAuthorizer(cat), actor.RoleID(), st.CustomPermissions)
	if err != nil {
		return UserPermissions{}, err
	}

	change, changed := direction(st.CustomPermissions.Has(perm), next.Has(perm))
	if !changed {
		return view(cat, st), nil
	}
	granter := s.attribution.granter(actor)
	if err := s.states.PersistPermissionChange(ctx, userID, perm, change, granter); err != nil {
		return s.reload(ctx, cat, userID, persistErr(op, err))
	}
	st.CustomPermissions = next
	s.audit(ctx, "authz.permission."+string(change), map[string]any{
		"target_user_id": userID,
		"permission":     string(perm),
		"granted_by":     granter,
	})
	return view(cat, st), nil
}

// reload discards the computed result and returns the stored snapshot along
// with perr. When the reload fails too, only perr is returned.
func (s *Service) reload(ctx context.Context, cat *authz.Catalog, userID string, perr error) (UserPermissions, error) {
	st, err := s.states.FetchUserAuthorizationState(ctx, userID)
	if err != nil {
		return UserPermissions{}, perr
	}
	return view(cat, st), perr
}

func direction(before, after bool) (Change, bool) {
	switch {
	case !before && after:
		return Grant, true
	case before && !after:
		return Revoke, true
	}
	return "", false
}

func observeAuthz(op string, err error) {
	obs.ObserveAuthzDecision(op, outcome(err))
}

// CatalogView lists the catalog roles and which of them actor may assign.
type CatalogView struct {
	Roles       []authz.Role                  `json:"roles"`
	Assignable  []authz.RoleID                `json:"assignable"`
	Permissions map[string][]authz.Permission `json:"permissions"`
}

// RoleCatalog returns the catalog as seen by actor.
func (s *Service) RoleCatalog(ctx context.Context, actor auth.Principal) (CatalogView, error) {
	cat, err := s.fetchCatalog(ctx)
	if err != nil {
		return CatalogView{}, err
	}
	v := CatalogView{
		Roles:       cat.Roles(),
		Assignable:  make([]authz.RoleID, 0),
		Permissions: authz.GroupByCategory(cat.Permissions()),
	}
	for _, r := range authz.NewAuthorizer(cat).AssignableRoles(actor.RoleID()) {
		v.Assignable = append(v.Assignable, r.ID)
	}
	return v, nil
}
