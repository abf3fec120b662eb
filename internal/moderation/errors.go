package moderation

import (
	"errors"
	"fmt"
	"strings"

	"mototumen.org/internal/authz"
)

var (
	ErrInvalidTransition = errors.New("moderation: invalid transition")
	ErrInvalidInput      = errors.New("moderation: invalid input")
)

const (
	ReasonCEOOnly   = "organization requests are moderated by ceo only"
	ReasonOwnerOnly = "only the submitter may edit the request"
)

// InvalidTransitionError reports a state change that is impossible from the
// request's current status. It matches ErrInvalidTransition.
type InvalidTransitionError struct {
	RequestID string
	From      Status
	To        Status
}

func (e *InvalidTransitionError) Error() string {
	if e.To == StatusArchived && !e.From.Resolved() {
		return fmt.Sprintf("moderation: request %s is %s, only approved or rejected requests can be archived", e.RequestID, e.From)
	}
	return fmt.Sprintf("moderation: request %s cannot move from %s to %s", e.RequestID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// FieldProblem names one failed validation rule.
type FieldProblem struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists the metadata fields that failed validation.
type ValidationError struct {
	Problems []FieldProblem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Rule)
	}
	return "moderation: invalid input: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func denied(actor Actor, action, requestID, reason string) error {
	return &authz.AuthorizationError{
		Actor:  actor.Role,
		Action: action,
		Target: "request " + requestID,
		Reason: reason,
	}
}
