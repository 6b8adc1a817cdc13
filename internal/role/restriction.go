// Package role implements the Role/Restriction model: a tree of
// index -> type -> field scoped permission grants, and the queries
// (Permits, GetRestrictions) the authorization engine in internal/auth
// builds on.
package role

import "github.com/netways/esarmor/internal/filter"

// PermissionSet is a small set of Elasticsearch-API permission strings such
// as "api/search/documents" or "api/indices/create/index".
type PermissionSet map[string]bool

// NewPermissionSet builds a set from a list of permission names.
func NewPermissionSet(names ...string) PermissionSet {
	s := make(PermissionSet, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Has reports whether the set contains p.
func (s PermissionSet) Has(p string) bool {
	return s[p]
}

// Union returns a new set containing every permission from s and other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = true
	}
	for p := range other {
		out[p] = true
	}
	return out
}

// Restriction is an include/exclude pattern pair carrying the permission
// set it grants at its scope.
type Restriction struct {
	Includes    []filter.Pattern
	Excludes    []filter.Pattern
	Permissions PermissionSet
}

// MatchesName reports whether name is admitted by this restriction's
// includes and not vetoed by its excludes.
func (r Restriction) MatchesName(name string) bool {
	matched := false
	for _, inc := range r.Includes {
		if inc.MatchString(name) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, ex := range r.Excludes {
		if ex.MatchString(name) {
			return false
		}
	}
	return true
}

// ToFilterIncludes expands the restriction into one filter.Include per
// include pattern, each sharing the restriction's full exclude list - the
// shape internal/auth needs to seed a FilterString.
func (r Restriction) ToFilterIncludes() []filter.Include {
	out := make([]filter.Include, 0, len(r.Includes))
	for _, inc := range r.Includes {
		out = append(out, filter.Include{Pattern: inc, Excludes: append([]filter.Pattern{}, r.Excludes...)})
	}
	return out
}

// FieldRestrictionNode is the deepest level of the restriction tree.
type FieldRestrictionNode struct {
	Restriction
}

// TypeRestrictionNode is the middle level: a document-type scoped
// restriction, optionally narrowed further by field restrictions.
type TypeRestrictionNode struct {
	Restriction
	Fields []FieldRestrictionNode
}

// RestrictionNode is the top level: an index-scoped restriction, optionally
// narrowed further by type restrictions.
type RestrictionNode struct {
	Restriction
	Types []TypeRestrictionNode
}
