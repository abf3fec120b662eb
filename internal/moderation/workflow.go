package moderation

import (
	"strings"
	"time"

	"mototumen.org/internal/authz"
)

// Actor is the principal attempting a moderation step.
type Actor struct {
	UserID string
	Role   authz.RoleID
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusArchived},
	StatusRejected: {StatusArchived},
	StatusArchived: nil,
}

// AllowedTransitions lists the statuses reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is a valid moderation step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition checks authority before state so a non-ceo caller never learns
// anything about the request's status.
func transition(actor Actor, action string, req Request, to Status, now time.Time) (Request, error) {
	if actor.Role != authz.RoleCEO {
		return Request{}, denied(actor, action, req.ID, ReasonCEOOnly)
	}
	if !CanTransition(req.Status, to) {
		return Request{}, &InvalidTransitionError{RequestID: req.ID, From: req.Status, To: to}
	}
	out := req.clone()
	out.Status = to
	out.UpdatedAt = now
	return out, nil
}

// Approve moves a pending request to approved and clears any review comment.
func Approve(actor Actor, req Request, now time.Time) (Request, error) {
	out, err := transition(actor, "approve", req, StatusApproved, now)
	if err != nil {
		return Request{}, err
	}
	out.ReviewComment = ""
	out.ReviewedBy = actor.UserID
	out.ReviewedAt = &now
	return out, nil
}

// Reject moves a pending request to rejected, keeping comment for the
// submitter. The comment is plain text and is stored trimmed but otherwise
// verbatim; renderers escape it. An empty comment is allowed.
func Reject(actor Actor, req Request, comment string, now time.Time) (Request, error) {
	out, err := transition(actor, "reject", req, StatusRejected, now)
	if err != nil {
		return Request{}, err
	}
	out.ReviewComment = strings.TrimSpace(comment)
	out.ReviewedBy = actor.UserID
	out.ReviewedAt = &now
	return out, nil
}

// Archive retires a resolved request. Pending requests must be decided first.
func Archive(actor Actor, req Request, now time.Time) (Request, error) {
	return transition(actor, "archive", req, StatusArchived, now)
}

// Submit builds a new pending request from sanitized, validated metadata.
// The caller supplies the id so the function stays deterministic.
func Submit(id string, submitter Submitter, meta Metadata, now time.Time) (Request, error) {
	meta = sanitizeMetadata(meta)
	if err := validateMetadata(meta); err != nil {
		return Request{}, err
	}
	return Request{
		ID:        id,
		Submitter: submitter,
		Metadata:  meta,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// EditMetadata replaces the submitter-owned fields. Any edit sends the
// request back to pending and drops the previous review.
func EditMetadata(actor Actor, req Request, meta Metadata, now time.Time) (Request, error) {
	if actor.UserID == "" || actor.UserID != req.Submitter.ID {
		return Request{}, denied(actor, "edit", req.ID, ReasonOwnerOnly)
	}
	if req.Status == StatusArchived {
		return Request{}, &InvalidTransitionError{RequestID: req.ID, From: req.Status, To: StatusPending}
	}
	meta = sanitizeMetadata(meta)
	if err := validateMetadata(meta); err != nil {
		return Request{}, err
	}
	out := req.clone()
	out.Metadata = meta
	out.Status = StatusPending
	out.ReviewComment = ""
	out.ReviewedBy = ""
	out.ReviewedAt = nil
	out.UpdatedAt = now
	return out, nil
}
