package authz

import (
	"encoding/json"
	"slices"
)

// Set is an unordered collection of string-like tokens. The zero value is an
// empty set ready for reads; use NewSet or Clone before adding.
type Set[T ~string] map[T]struct{}

// PermissionSet is a flat set of permission tokens.
type PermissionSet = Set[Permission]

// RoleSet is the set of role ids held by a user.
type RoleSet = Set[RoleID]

// NewSet builds a set from the given values, collapsing duplicates.
func NewSet[T ~string](values ...T) Set[T] {
	s := make(Set[T], len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// NewPermissionSet is NewSet specialised for permissions.
func NewPermissionSet(perms ...Permission) PermissionSet { return NewSet(perms...) }

// NewRoleSet is NewSet specialised for role ids.
func NewRoleSet(ids ...RoleID) RoleSet { return NewSet(ids...) }

// Has reports whether v is a member of s.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of members.
func (s Set[T]) Len() int { return len(s) }

// Clone returns an independent copy of s. A nil set clones to an empty one.
func (s Set[T]) Clone() Set[T] {
	out := make(Set[T], len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// With returns a copy of s with v added.
func (s Set[T]) With(v T) Set[T] {
	out := s.Clone()
	out[v] = struct{}{}
	return out
}

// Without returns a copy of s with v removed.
func (s Set[T]) Without(v T) Set[T] {
	out := s.Clone()
	delete(out, v)
	return out
}

// Union adds every member of other into s in place.
func (s Set[T]) Union(other Set[T]) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// Equal reports whether both sets hold the same members.
func (s Set[T]) Equal(other Set[T]) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if _, ok := other[v]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the members in ascending order.
func (s Set[T]) Sorted() []T {
	out := make([]T, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array, dropping duplicates.
func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var values []T
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewSet(values...)
	return nil
}
