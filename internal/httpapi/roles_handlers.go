package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mototumen.org/internal/admin"
	"mototumen.org/internal/auth"
	"mototumen.org/internal/authz"
)

type saveRolesRequest struct {
	Roles []authz.RoleID `json:"roles"`
}

type roleMutation func(ctx context.Context, actor auth.Principal, userID string, role authz.RoleID) (admin.UserPermissions, error)

type permMutation func(ctx context.Context, actor auth.Principal, userID string, perm authz.Permission) (admin.UserPermissions, error)

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.RoleCatalog(r.Context(), principal(r))
	if err != nil {
		handleServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roles":      view.Roles,
		"assignable": view.Assignable,
	})
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.RoleCatalog(r.Context(), principal(r))
	if err != nil {
		handleServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": view.Permissions,
	})
}

func (a *API) userPermissions(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.EffectivePermissions(r.Context(), principal(r), chi.URLParam(r, "userID"))
	if err != nil {
		handleServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) grantRole(w http.ResponseWriter, r *http.Request) {
	a.mutateRole(w, r, a.svc.GrantRole)
}

func (a *API) revokeRole(w http.ResponseWriter, r *http.Request) {
	a.mutateRole(w, r, a.svc.RevokeRole)
}

func (a *API) toggleRole(w http.ResponseWriter, r *http.Request) {
	a.mutateRole(w, r, a.svc.ToggleRole)
}

func (a *API) mutateRole(w http.ResponseWriter, r *http.Request, fn roleMutation) {
	role := authz.RoleID(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "roleID"))))
	res, err := fn(r.Context(), principal(r), chi.URLParam(r, "userID"), role)
	if err != nil {
		handleServiceError(w, r, err, permsSnapshot(res))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) saveRoles(w http.ResponseWriter, r *http.Request) {
	var req saveRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.SaveRoles(r.Context(), principal(r), chi.URLParam(r, "userID"), authz.NewRoleSet(req.Roles...))
	if err != nil {
		handleServiceError(w, r, err, permsSnapshot(res))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) grantPermission(w http.ResponseWriter, r *http.Request) {
	a.mutatePermission(w, r, a.svc.GrantPermission)
}

func (a *API) revokePermission(w http.ResponseWriter, r *http.Request) {
	a.mutatePermission(w, r, a.svc.RevokePermission)
}

func (a *API) togglePermission(w http.ResponseWriter, r *http.Request) {
	a.mutatePermission(w, r, a.svc.TogglePermission)
}

func (a *API) mutatePermission(w http.ResponseWriter, r *http.Request, fn permMutation) {
	perm := authz.Permission(strings.TrimSpace(chi.URLParam(r, "perm")))
	res, err := fn(r.Context(), principal(r), chi.URLParam(r, "userID"), perm)
	if err != nil {
		handleServiceError(w, r, err, permsSnapshot(res))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func permsSnapshot(p admin.UserPermissions) any {
	if p.UserID == "" {
		return nil
	}
	return p
}
