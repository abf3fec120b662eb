// Package memory keeps authorization state and organization requests in
// process. It backs development runs without a database and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mototumen.org/internal/admin"
	"mototumen.org/internal/authz"
	"mototumen.org/internal/directory"
	"mototumen.org/internal/moderation"
)

// ChangeRecord is one persisted role or permission change.
type ChangeRecord struct {
	UserID     string
	RoleID     authz.RoleID
	Permission authz.Permission
	Change     admin.Change
	GrantedBy  string
	At         time.Time
}

type member struct {
	user   directory.User
	roles  authz.RoleSet
	custom authz.PermissionSet
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	members  map[string]*member
	requests map[string]moderation.Request
	changes  []ChangeRecord
	now      func() time.Time
}

var (
	_ admin.StateStore   = (*Store)(nil)
	_ admin.RequestStore = (*Store)(nil)
	_ admin.UserStore    = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		members:  make(map[string]*member),
		requests: make(map[string]moderation.Request),
		now:      time.Now,
	}
}

// PutUser adds or replaces a member with the given roles and custom grants.
func (s *Store) PutUser(u directory.User, custom ...authz.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[u.ID] = &member{
		user:   directory.User{ID: u.ID, Name: u.Name},
		roles:  authz.NewRoleSet(u.Roles...),
		custom: authz.NewPermissionSet(custom...),
	}
}

// Changes returns the persisted change log in order.
func (s *Store) Changes() []ChangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChangeRecord, len(s.changes))
	copy(out, s.changes)
	return out
}

func (s *Store) FetchUserAuthorizationState(ctx context.Context, userID string) (authz.State, error) {
	if err := ctx.Err(); err != nil {
		return authz.State{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[userID]
	if !ok {
		return authz.State{}, &authz.NotFoundError{Kind: "user", ID: userID}
	}
	return authz.State{
		UserID:            userID,
		AssignedRoles:     m.roles.Clone(),
		CustomPermissions: m.custom.Clone(),
	}, nil
}

func (s *Store) PersistRoleChange(ctx context.Context, userID string, roleID authz.RoleID, change admin.Change, grantedBy string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return &authz.NotFoundError{Kind: "user", ID: userID}
	}
	switch change {
	case admin.Grant:
		m.roles[roleID] = struct{}{}
	case admin.Revoke:
		delete(m.roles, roleID)
	default:
		return fmt.Errorf("unknown change %q", change)
	}
	s.changes = append(s.changes, ChangeRecord{UserID: userID, RoleID: roleID, Change: change, GrantedBy: grantedBy, At: s.now()})
	return nil
}

func (s *Store) PersistPermissionChange(ctx context.Context, userID string, perm authz.Permission, change admin.Change, grantedBy string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return &authz.NotFoundError{Kind: "user", ID: userID}
	}
	switch change {
	case admin.Grant:
		m.custom[perm] = struct{}{}
	case admin.Revoke:
		delete(m.custom, perm)
	default:
		return fmt.Errorf("unknown change %q", change)
	}
	s.changes = append(s.changes, ChangeRecord{UserID: userID, Permission: perm, Change: change, GrantedBy: grantedBy, At: s.now()})
	return nil
}

// ListUsers returns members ordered by id with their current roles.
func (s *Store) ListUsers(ctx context.Context) ([]directory.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.User, 0, len(s.members))
	for _, m := range s.members {
		u := m.user
		u.Roles = m.roles.Sorted()
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FetchOrganizationRequests returns matching requests, newest first.
func (s *Store) FetchOrganizationRequests(ctx context.Context, filter moderation.RequestFilter) ([]moderation.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]moderation.Request, 0, len(s.requests))
	for _, r := range s.requests {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) FetchOrganizationRequest(ctx context.Context, id string) (moderation.Request, error) {
	if err := ctx.Err(); err != nil {
		return moderation.Request{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return moderation.Request{}, &authz.NotFoundError{Kind: "organization request", ID: id}
	}
	return r, nil
}

func (s *Store) CreateOrganizationRequest(ctx context.Context, req moderation.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("request %s: %w", req.ID, admin.ErrConflict)
	}
	s.requests[req.ID] = req
	return nil
}

func (s *Store) UpdateOrganizationRequest(ctx context.Context, req moderation.Request, prev moderation.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[req.ID]
	if !ok {
		return &authz.NotFoundError{Kind: "organization request", ID: req.ID}
	}
	if cur.Status != prev {
		return fmt.Errorf("request %s is %s, expected %s: %w", req.ID, cur.Status, prev, admin.ErrConflict)
	}
	s.requests[req.ID] = req
	return nil
}

func (s *Store) PersistModerationDecision(ctx context.Context, d admin.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[d.RequestID]
	if !ok {
		return &authz.NotFoundError{Kind: "organization request", ID: d.RequestID}
	}
	if cur.Status != d.From {
		return fmt.Errorf("request %s is %s, expected %s: %w", d.RequestID, cur.Status, d.From, admin.ErrConflict)
	}
	cur.Status = d.Status
	cur.ReviewComment = d.Comment
	cur.ReviewedBy = d.ReviewedBy
	cur.ReviewedAt = d.ReviewedAt
	cur.UpdatedAt = d.UpdatedAt
	s.requests[d.RequestID] = cur
	return nil
}
