package directory

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mototumen.org/internal/authz"
	"mototumen.org/internal/moderation"
)

func users(n int) []User {
	out := make([]User, 0, n)
	for i := 1; i <= n; i++ {
		role := authz.RoleUser
		if i%2 == 0 {
			role = authz.RoleModerator
		}
		out = append(out, User{ID: strconv.Itoa(i), Name: "rider " + strconv.Itoa(i), Roles: []authz.RoleID{role}})
	}
	return out
}

func request(id, submitter string, st moderation.Status) moderation.Request {
	return moderation.Request{
		ID:        id,
		Submitter: moderation.Submitter{ID: submitter},
		Metadata:  moderation.Metadata{Type: moderation.OrgShop},
		Status:    st,
	}
}

func ids(us []User) []string {
	out := make([]string, 0, len(us))
	for _, u := range us {
		out = append(out, u.ID)
	}
	return out
}

func TestPartitionApprovedSubmitters(t *testing.T) {
	reqs := []moderation.Request{
		request("r1", "3", moderation.StatusApproved),
		request("r2", "7", moderation.StatusApproved),
		request("r3", "5", moderation.StatusPending),
		request("r4", "9", moderation.StatusRejected),
	}

	got := Partition(users(10), reqs)
	require.Len(t, got.PlainUsers, 8)
	require.Len(t, got.Organizations, 2)
	assert.NotContains(t, ids(got.PlainUsers), "3")
	assert.NotContains(t, ids(got.PlainUsers), "7")
	assert.Contains(t, ids(got.PlainUsers), "5")
	assert.Equal(t, "r1", got.Organizations[0].ID)
	assert.Equal(t, "r2", got.Organizations[1].ID)
}

func TestPartitionExhaustive(t *testing.T) {
	us := users(12)
	reqs := []moderation.Request{
		request("a", "2", moderation.StatusApproved),
		request("b", "2", moderation.StatusArchived),
		request("c", "11", moderation.StatusApproved),
		request("d", "40", moderation.StatusApproved),
	}
	got := Partition(us, reqs)

	orgOwners := map[string]bool{}
	for _, r := range got.Organizations {
		orgOwners[r.Submitter.ID] = true
	}
	seen := map[string]int{}
	for _, u := range got.PlainUsers {
		seen[u.ID]++
	}
	for _, u := range us {
		inPlain := seen[u.ID] == 1
		assert.Truef(t, inPlain != orgOwners[u.ID], "user %s must be in exactly one bucket", u.ID)
		assert.LessOrEqual(t, seen[u.ID], 1)
	}
}

func TestFilterByFacet(t *testing.T) {
	us := users(10)
	reqs := []moderation.Request{
		request("r1", "4", moderation.StatusApproved),
		request("r2", "7", moderation.StatusApproved),
		request("r3", "6", moderation.StatusPending),
	}

	orgs := FilterByFacet(us, reqs, FacetOrganization)
	assert.Empty(t, orgs.PlainUsers)
	require.Len(t, orgs.Organizations, 2)

	mods := FilterByFacet(us, reqs, Facet(authz.RoleModerator))
	assert.Equal(t, []string{"2", "6", "8", "10"}, ids(mods.PlainUsers))
	assert.Empty(t, mods.Organizations)

	all := FilterByFacet(us, reqs, ParseFacet(""))
	assert.Len(t, all.PlainUsers, 8)
	assert.Len(t, all.Organizations, 2)

	none := FilterByFacet(us, reqs, ParseFacet("CEO"))
	assert.Empty(t, none.PlainUsers)
}
