// Package directory splits the member listing into plain users and approved
// organizations. A user whose organization request was approved is shown only
// as that organization.
package directory

import (
	"strings"

	"mototumen.org/internal/authz"
	"mototumen.org/internal/moderation"
)

// User is the listing view of a member.
type User struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Roles []authz.RoleID `json:"roles"`
}

// HasRole reports whether the user holds id.
func (u User) HasRole(id authz.RoleID) bool {
	for _, r := range u.Roles {
		if r == id {
			return true
		}
	}
	return false
}

// Listing is the result of a partition.
type Listing struct {
	PlainUsers    []User               `json:"users"`
	Organizations []moderation.Request `json:"organizations"`
}

// Facet selects a listing view: FacetAll, FacetOrganization or a role id.
type Facet string

const (
	FacetAll          Facet = "all"
	FacetOrganization Facet = "organization"
)

// ParseFacet normalises s; an empty value means FacetAll.
func ParseFacet(s string) Facet {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FacetAll
	}
	return Facet(s)
}

// Partition places every approved request in Organizations and every user who
// did not submit one in PlainUsers.
func Partition(users []User, requests []moderation.Request) Listing {
	orgs, submitters := approved(requests)
	return Listing{
		PlainUsers:    plain(users, submitters, func(User) bool { return true }),
		Organizations: orgs,
	}
}

// FilterByFacet narrows the partition. The organization facet returns exactly
// the approved requests; a role facet returns plain users holding that role and
// never an approved submitter.
func FilterByFacet(users []User, requests []moderation.Request, facet Facet) Listing {
	switch facet {
	case FacetAll, "":
		return Partition(users, requests)
	case FacetOrganization:
		orgs, _ := approved(requests)
		return Listing{PlainUsers: []User{}, Organizations: orgs}
	}
	role := authz.RoleID(facet)
	_, submitters := approved(requests)
	return Listing{
		PlainUsers:    plain(users, submitters, func(u User) bool { return u.HasRole(role) }),
		Organizations: []moderation.Request{},
	}
}

func approved(requests []moderation.Request) ([]moderation.Request, map[string]struct{}) {
	orgs := make([]moderation.Request, 0, len(requests))
	submitters := make(map[string]struct{})
	for _, r := range requests {
		if r.Status != moderation.StatusApproved {
			continue
		}
		orgs = append(orgs, r)
		submitters[r.Submitter.ID] = struct{}{}
	}
	return orgs, submitters
}

func plain(users []User, submitters map[string]struct{}, keep func(User) bool) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		if _, isOrg := submitters[u.ID]; isOrg {
			continue
		}
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}
