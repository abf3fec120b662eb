package authz

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized   = errors.New("authz: not allowed")
	ErrNotFound       = errors.New("authz: not found")
	ErrInvalidCatalog = errors.New("authz: invalid catalog")
)

// Reasons attached to AuthorizationError.
const (
	ReasonNoActor       = "no acting role"
	ReasonCEOProtected  = "ceo role cannot be changed"
	ReasonNotAssignable = "acting role may not assign target role"
	ReasonCEOOnly       = "custom permissions are managed by ceo only"
)

// AuthorizationError reports that the acting role lacks direct authority for
// a role or permission mutation. It matches ErrUnauthorized.
type AuthorizationError struct {
	Actor  RoleID
	Action string
	Target string
	Reason string
}

func (e *AuthorizationError) Error() string {
	actor := string(e.Actor)
	if actor == "" {
		actor = "<none>"
	}
	return fmt.Sprintf("authz: %s cannot %s %s: %s", actor, e.Action, e.Target, e.Reason)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }

// NotFoundError reports a reference to a role, permission or request that does
// not exist in the current snapshot. It matches ErrNotFound.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("authz: %s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func denied(actor RoleID, action, target, reason string) error {
	return &AuthorizationError{Actor: actor, Action: action, Target: target, Reason: reason}
}
