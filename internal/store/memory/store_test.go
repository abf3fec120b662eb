package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mototumen.org/internal/admin"
	"mototumen.org/internal/authz"
	"mototumen.org/internal/directory"
	"mototumen.org/internal/moderation"
)

func pending(id string, created time.Time) moderation.Request {
	return moderation.Request{
		ID:        id,
		Submitter: moderation.Submitter{ID: "7"},
		Metadata:  moderation.Metadata{Name: "Lab", Type: moderation.OrgShop},
		Status:    moderation.StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutUser(directory.User{ID: "7", Name: "Rider", Roles: []authz.RoleID{authz.RoleUser}})

	require.NoError(t, s.PersistRoleChange(ctx, "7", authz.RoleModerator, admin.Grant, "1"))
	require.NoError(t, s.PersistPermissionChange(ctx, "7", authz.PermSettingsEdit, admin.Grant, "1"))
	require.NoError(t, s.PersistRoleChange(ctx, "7", authz.RoleUser, admin.Revoke, "1"))

	st, err := s.FetchUserAuthorizationState(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []authz.RoleID{authz.RoleModerator}, st.AssignedRoles.Sorted())
	assert.True(t, st.CustomPermissions.Has(authz.PermSettingsEdit))
	assert.Len(t, s.Changes(), 3)

	// the snapshot is a copy
	st.AssignedRoles[authz.RoleCEO] = struct{}{}
	again, err := s.FetchUserAuthorizationState(ctx, "7")
	require.NoError(t, err)
	assert.False(t, again.AssignedRoles.Has(authz.RoleCEO))
}

func TestUnknownUser(t *testing.T) {
	s := New()
	_, err := s.FetchUserAuthorizationState(context.Background(), "404")
	assert.ErrorIs(t, err, authz.ErrNotFound)
	err = s.PersistRoleChange(context.Background(), "404", authz.RoleUser, admin.Grant, "1")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestRequestsNewestFirstAndGuarded(t *testing.T) {
	s := New()
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateOrganizationRequest(ctx, pending("a", t0)))
	require.NoError(t, s.CreateOrganizationRequest(ctx, pending("b", t0.Add(time.Hour))))
	assert.ErrorIs(t, s.CreateOrganizationRequest(ctx, pending("a", t0)), admin.ErrConflict)

	list, err := s.FetchOrganizationRequests(ctx, moderation.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	d := admin.Decision{RequestID: "a", From: moderation.StatusPending, Status: moderation.StatusApproved, UpdatedAt: t0}
	require.NoError(t, s.PersistModerationDecision(ctx, d))
	assert.ErrorIs(t, s.PersistModerationDecision(ctx, d), admin.ErrConflict)

	_, err = s.FetchOrganizationRequest(ctx, "missing")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestListUsersSorted(t *testing.T) {
	s := New()
	s.PutUser(directory.User{ID: "b", Roles: []authz.RoleID{authz.RoleUser, authz.RoleAdmin}})
	s.PutUser(directory.User{ID: "a"})
	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].ID)
	assert.Equal(t, []authz.RoleID{authz.RoleAdmin, authz.RoleUser}, users[1].Roles)
}
