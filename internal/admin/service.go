// Package admin runs authorization and moderation decisions against stored
// state: fetch a snapshot, decide with the pure core, persist, and reload when
// the write fails.
package admin

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mototumen.org/internal/audit"
	"mototumen.org/internal/auth"
	"mototumen.org/internal/authz"
	"mototumen.org/internal/events"
	"mototumen.org/internal/ids"
	"mototumen.org/internal/moderation"
	"mototumen.org/internal/obs"
)

// Attribution decides which user id is recorded as the granter of a role or
// permission change.
type Attribution struct {
	// UseActor records the acting user's id instead of PlaceholderID.
	UseActor      bool
	PlaceholderID string
}

// DefaultAttribution records the placeholder id "1" that existing clients
// write for every change.
var DefaultAttribution = Attribution{PlaceholderID: "1"}

func (a Attribution) granter(actor auth.Principal) string {
	if a.UseActor {
		return actor.UserID
	}
	return a.PlaceholderID
}

// Service orchestrates the authorization and moderation core.
type Service struct {
	catalog     RoleCatalogSource
	states      StateStore
	requests    RequestStore
	users       UserStore
	publisher   events.Publisher
	attribution Attribution
	now         func() time.Time
	newID       func() string
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sends moderation events to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithAttribution overrides DefaultAttribution.
func WithAttribution(a Attribution) Option {
	return func(s *Service) { s.attribution = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides ids.New for new requests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService wires the collaborators.
func NewService(catalog RoleCatalogSource, states StateStore, requests RequestStore, users UserStore, opts ...Option) *Service {
	s := &Service{
		catalog:     catalog,
		states:      states,
		requests:    requests,
		users:       users,
		attribution: DefaultAttribution,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) fetchCatalog(ctx context.Context) (*authz.Catalog, error) {
	c, err := s.catalog.FetchRoleCatalog(ctx)
	if err != nil {
		return nil, persistErr("fetch catalog", err)
	}
	return c, nil
}

func (s *Service) fetchState(ctx context.Context, userID string) (authz.State, error) {
	st, err := s.states.FetchUserAuthorizationState(ctx, userID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return authz.State{}, err
		}
		return authz.State{}, persistErr("fetch user state", err)
	}
	return st, nil
}

func (s *Service) fetchRequest(ctx context.Context, id string) (moderation.Request, error) {
	req, err := s.requests.FetchOrganizationRequest(ctx, id)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return moderation.Request{}, err
		}
		return moderation.Request{}, persistErr("fetch request", err)
	}
	return req, nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		obs.Logger().Warn("publish moderation event",
			zap.String("kind", evt.Kind),
			zap.String("request_id", evt.RequestID),
			zap.Error(err),
		)
	}
}

func (s *Service) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Logger().Warn("audit log", zap.String("event", event), zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return obs.OutcomeOK
	case errors.Is(err, authz.ErrUnauthorized):
		return obs.OutcomeDenied
	case errors.Is(err, authz.ErrNotFound):
		return obs.OutcomeNotFound
	case errors.Is(err, ErrPersistence):
		return obs.OutcomePersistFail
	default:
		return obs.OutcomeInvalid
	}
}
