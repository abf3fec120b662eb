package admin

import (
	"context"
	"time"

	"mototumen.org/internal/authz"
	"mototumen.org/internal/directory"
	"mototumen.org/internal/moderation"
)

// Change is the direction of a role or permission mutation.
type Change string

const (
	Grant  Change = "grant"
	Revoke Change = "revoke"
)

// RoleCatalogSource supplies the role catalog.
type RoleCatalogSource interface {
	FetchRoleCatalog(ctx context.Context) (*authz.Catalog, error)
}

// StateStore holds per-user role assignments and custom permissions. Unknown
// users yield an authz.NotFoundError.
type StateStore interface {
	FetchUserAuthorizationState(ctx context.Context, userID string) (authz.State, error)
	PersistRoleChange(ctx context.Context, userID string, roleID authz.RoleID, change Change, grantedBy string) error
	PersistPermissionChange(ctx context.Context, userID string, perm authz.Permission, change Change, grantedBy string) error
}

// Decision is a moderation outcome to persist. From guards against concurrent
// decisions: stores must apply it only while the request is still in From.
type Decision struct {
	RequestID  string
	From       moderation.Status
	Status     moderation.Status
	Comment    string
	ReviewedBy string
	ReviewedAt *time.Time
	UpdatedAt  time.Time
}

// RequestStore holds organization requests. Unknown ids yield an
// authz.NotFoundError; lost races yield ErrConflict.
type RequestStore interface {
	FetchOrganizationRequests(ctx context.Context, filter moderation.RequestFilter) ([]moderation.Request, error)
	FetchOrganizationRequest(ctx context.Context, id string) (moderation.Request, error)
	PersistModerationDecision(ctx context.Context, d Decision) error
	CreateOrganizationRequest(ctx context.Context, req moderation.Request) error
	// UpdateOrganizationRequest stores an owner edit while the request is
	// still in prev.
	UpdateOrganizationRequest(ctx context.Context, req moderation.Request, prev moderation.Status) error
}

// UserStore lists members for the directory.
type UserStore interface {
	ListUsers(ctx context.Context) ([]directory.User, error)
}

// StaticCatalog serves a catalog loaded at startup.
type StaticCatalog struct {
	Catalog *authz.Catalog
}

// FetchRoleCatalog implements RoleCatalogSource.
func (s StaticCatalog) FetchRoleCatalog(context.Context) (*authz.Catalog, error) {
	return s.Catalog, nil
}
