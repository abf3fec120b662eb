package admin

import (
	"context"
	"errors"
	"strings"

	"mototumen.org/internal/auth"
	"mototumen.org/internal/authz"
	"mototumen.org/internal/directory"
	"mototumen.org/internal/events"
	"mototumen.org/internal/moderation"
	"mototumen.org/internal/obs"
)

func moderationActor(p auth.Principal) moderation.Actor {
	return moderation.Actor{UserID: p.UserID, Role: p.RoleID()}
}

// SubmitRequest files a new organization request for the calling user.
func (s *Service) SubmitRequest(ctx context.Context, actor auth.Principal, contact moderation.Submitter, meta moderation.Metadata) (moderation.Request, error) {
	if actor.UserID == "" {
		return moderation.Request{}, &authz.AuthorizationError{Action: "submit", Target: "request", Reason: authz.ReasonNoActor}
	}
	contact.ID = actor.UserID
	contact.Name = strings.TrimSpace(contact.Name)
	contact.Email = strings.TrimSpace(contact.Email)

	req, err := moderation.Submit(s.newID(), contact, meta, s.now())
	if err != nil {
		return moderation.Request{}, err
	}
	if err := s.requests.CreateOrganizationRequest(ctx, req); err != nil {
		return moderation.Request{}, persistErr("create request", err)
	}
	s.audit(ctx, "moderation.request.submitted", map[string]any{
		"request_id":        req.ID,
		"organization_type": string(req.Type),
	})
	s.publish(ctx, events.Event{
		Kind:      events.KindSubmitted,
		RequestID: req.ID,
		OrgType:   string(req.Type),
		Status:    string(req.Status),
		ActorID:   actor.UserID,
		Timestamp: req.CreatedAt,
	})
	return req, nil
}

// EditRequest replaces the metadata of the caller's own request and sends it
// back to review. On a failed write the stored request is returned with the
// PersistenceError.
func (s *Service) EditRequest(ctx context.Context, actor auth.Principal, id string, meta moderation.Metadata) (moderation.Request, error) {
	current, err := s.fetchRequest(ctx, id)
	if err != nil {
		return moderation.Request{}, err
	}
	next, err := moderation.EditMetadata(moderationActor(actor), current, meta, s.now())
	if err != nil {
		return moderation.Request{}, err
	}
	if err := s.requests.UpdateOrganizationRequest(ctx, next, current.Status); err != nil {
		return s.reloadRequest(ctx, id, persistErr("update request", err))
	}
	s.audit(ctx, "moderation.request.edited", map[string]any{
		"request_id":  id,
		"prev_status": string(current.Status),
	})
	s.publish(ctx, events.Event{
		Kind:      events.KindEdited,
		RequestID: id,
		OrgType:   string(next.Type),
		From:      string(current.Status),
		Status:    string(next.Status),
		ActorID:   actor.UserID,
		Timestamp: next.UpdatedAt,
	})
	return next, nil
}

// Approve accepts a pending request.
func (s *Service) Approve(ctx context.Context, actor auth.Principal, id string) (moderation.Request, error) {
	return s.decide(ctx, actor, id, moderation.StatusApproved, func(a moderation.Actor, r moderation.Request) (moderation.Request, error) {
		return moderation.Approve(a, r, s.now())
	})
}

// Reject declines a pending request; comment may be empty.
func (s *Service) Reject(ctx context.Context, actor auth.Principal, id, comment string) (moderation.Request, error) {
	return s.decide(ctx, actor, id, moderation.StatusRejected, func(a moderation.Actor, r moderation.Request) (moderation.Request, error) {
		return moderation.Reject(a, r, comment, s.now())
	})
}

// Archive retires a resolved request.
func (s *Service) Archive(ctx context.Context, actor auth.Principal, id string) (moderation.Request, error) {
	return s.decide(ctx, actor, id, moderation.StatusArchived, func(a moderation.Actor, r moderation.Request) (moderation.Request, error) {
		return moderation.Archive(a, r, s.now())
	})
}

type transitionFunc func(moderation.Actor, moderation.Request) (moderation.Request, error)

func (s *Service) decide(ctx context.Context, actor auth.Principal, id string, to moderation.Status, step transitionFunc) (result moderation.Request, err error) {
	from := "unknown"
	defer func() { obs.ObserveModeration(from, string(to), moderationOutcome(err)) }()

	current, err := s.fetchRequest(ctx, id)
	if err != nil {
		return moderation.Request{}, err
	}
	from = string(current.Status)

	next, err := step(moderationActor(actor), current)
	if err != nil {
		return moderation.Request{}, err
	}
	d := Decision{
		RequestID:  next.ID,
		From:       current.Status,
		Status:     next.Status,
		Comment:    next.ReviewComment,
		ReviewedBy: next.ReviewedBy,
		ReviewedAt: next.ReviewedAt,
		UpdatedAt:  next.UpdatedAt,
	}
	if err := s.requests.PersistModerationDecision(ctx, d); err != nil {
		return s.reloadRequest(ctx, id, persistErr("persist decision", err))
	}
	s.audit(ctx, "moderation.request."+string(next.Status), map[string]any{
		"request_id": id,
		"from":       from,
		"comment":    next.ReviewComment,
	})
	s.publish(ctx, events.Event{
		Kind:      events.KindDecided,
		RequestID: id,
		OrgType:   string(next.Type),
		From:      from,
		Status:    string(next.Status),
		ActorID:   actor.UserID,
		Timestamp: next.UpdatedAt,
	})
	return next, nil
}

func (s *Service) reloadRequest(ctx context.Context, id string, perr error) (moderation.Request, error) {
	req, err := s.requests.FetchOrganizationRequest(ctx, id)
	if err != nil {
		return moderation.Request{}, perr
	}
	return req, perr
}

func moderationOutcome(err error) string {
	if errors.Is(err, moderation.ErrInvalidTransition) {
		return obs.OutcomeInvalid
	}
	return outcome(err)
}

// ListRequests returns requests matching filter. Callers other than ceo see
// only their own submissions.
func (s *Service) ListRequests(ctx context.Context, actor auth.Principal, filter moderation.RequestFilter) ([]moderation.Request, error) {
	if actor.RoleID() != authz.RoleCEO {
		filter.SubmitterID = actor.UserID
	}
	reqs, err := s.requests.FetchOrganizationRequests(ctx, filter)
	if err != nil {
		return nil, persistErr("list requests", err)
	}
	return moderation.Filter(reqs, filter), nil
}

// PendingCounts tallies pending requests for the moderation badges. Only ceo
// moderates, so only ceo may read the counters.
func (s *Service) PendingCounts(ctx context.Context, actor auth.Principal) (moderation.Counts, error) {
	if actor.RoleID() != authz.RoleCEO {
		return moderation.Counts{}, &authz.AuthorizationError{
			Actor:  actor.RoleID(),
			Action: "count",
			Target: "pending requests",
			Reason: moderation.ReasonCEOOnly,
		}
	}
	reqs, err := s.requests.FetchOrganizationRequests(ctx, moderation.RequestFilter{Status: moderation.StatusPending})
	if err != nil {
		return moderation.Counts{}, persistErr("count requests", err)
	}
	return moderation.PendingCounts(reqs), nil
}

// Directory lists members and approved organizations for facet.
func (s *Service) Directory(ctx context.Context, facet directory.Facet) (directory.Listing, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return directory.Listing{}, persistErr("list users", err)
	}
	reqs, err := s.requests.FetchOrganizationRequests(ctx, moderation.RequestFilter{Status: moderation.StatusApproved})
	if err != nil {
		return directory.Listing{}, persistErr("list organizations", err)
	}
	return directory.FilterByFacet(users, reqs, facet), nil
}
