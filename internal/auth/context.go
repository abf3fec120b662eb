package auth

import (
	"context"

	"mototumen.org/internal/authz"
)

// Principal is the authenticated caller: who they are and which global role
// they act as.
type Principal struct {
	UserID  string
	Role    authz.GlobalRole
	TokenID string
}

// RoleID returns the catalog id of the acting role.
func (p Principal) RoleID() authz.RoleID { return p.Role.ID() }

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil || v.UserID == "" {
		return Principal{}, false
	}
	return *v, true
}
