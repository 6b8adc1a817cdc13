package auth

import (
	"sort"

	"github.com/netways/esarmor/internal/filter"
	"github.com/netways/esarmor/internal/role"
)

// CollectKind is the sum-type result of collectFilters: Deny, Unrestricted,
// or Filtered (carrying the broadest admissible filter). The Python source
// used `None`/`{}`/dict return values for this; this type makes every
// branch explicit.
type CollectKind int

const (
	CollectDeny CollectKind = iota
	CollectUnrestricted
	CollectFiltered
)

// CollectResult is the result of collectFilters.
type CollectResult struct {
	Kind    CollectKind
	Filters filter.FilterString
}

type includeEntry struct {
	pattern  filter.Pattern
	excludes []filter.Pattern
	// scope is the restricted scope ("indices"/"types"/"fields"/"") of the
	// role that most recently contributed this include, per the Python
	// source's unconditional `involved_roles[include] = role` assignment -
	// when two roles produce the same include pattern, the later role in
	// iteration order wins.
	scope string
}

// levelScope maps a restriction-tree level to the scope string
// GetRestrictedScope reports, so an include's originating role can be
// compared against the level collectFilters is collecting at.
func levelScope(level role.Level) string {
	switch level {
	case role.LevelIndex:
		return "indices"
	case role.LevelType:
		return "types"
	default:
		return "fields"
	}
}

// collectFilters is the authorization engine's core: given a permission and
// an optional requested index/type scope, it decides whether the client's
// roles deny, unconditionally allow, or allow-with-narrowing the request,
// per spec.md's _collect_filters algorithm (SPEC_FULL.md §4.3 cross-
// reference).
func (c *Client) collectFilters(level role.Level, permission string, requested *filter.FilterString, index, typ *string) CollectResult {
	entries := make(map[string]*includeEntry)
	var order []string

	for _, r := range c.Roles {
		result := r.ScopedRestrictions(level, index, typ, &permission, true)
		switch result.Kind {
		case role.CollectIndisposed:
			continue
		case role.CollectNone:
			if !r.Permits(permission, index, typ, nil) {
				continue
			}
			return CollectResult{Kind: CollectUnrestricted}
		case role.CollectFound:
			roleScope := r.GetRestrictedScope()
			for _, n := range result.Nodes {
				for _, inc := range n.Restriction.ToFilterIncludes() {
					key := inc.Pattern.String()
					if e, ok := entries[key]; ok {
						e.excludes = append(e.excludes, inc.Excludes...)
						e.scope = roleScope
					} else {
						entries[key] = &includeEntry{pattern: inc.Pattern, excludes: append([]filter.Pattern{}, inc.Excludes...), scope: roleScope}
						order = append(order, key)
					}
				}
			}
		}
	}

	if len(order) == 0 {
		// Every role was either indisposed, or had no opinion and didn't
		// permit unconditionally - nothing was ever collected.
		return CollectResult{Kind: CollectDeny}
	}

	prune(entries, &order, requested, levelScope(level))

	includes := make([]filter.Include, 0, len(order))
	for _, key := range order {
		e := entries[key]
		includes = append(includes, filter.Include{Pattern: e.pattern, Excludes: dedup(e.excludes)})
	}
	sort.Slice(includes, func(i, j int) bool { return includes[i].Pattern.String() < includes[j].Pattern.String() })

	return CollectResult{Kind: CollectFiltered, Filters: filter.FilterString{Includes: includes}}
}

// prune implements broadest-access pruning: repeatedly find, for each
// surviving include i, its unique superior (the widest strictly-greater
// include also present), and either drop the superior (when the client's
// own requested filter is entirely contained by i, so widening beyond what
// was asked for would be wrong) or drop i. Dropping i neutralizes and
// exchanges excludes (merging i's excludes into the surviving superior,
// after stripping any of the superior's excludes that i already fully
// covers) only when the role that contributed i is restricted at the same
// scope collectFilters is collecting at; when that role is restricted at a
// different scope, i is dropped with no exchange, since the role's
// agreement on this include says nothing about the other scope and
// exchanging could grant broader access than intended. Repeats until no
// include has a superior left.
func prune(entries map[string]*includeEntry, order *[]string, requested *filter.FilterString, collectionScope string) {
	for {
		changed := false
		for _, key := range *order {
			i, ok := entries[key]
			if !ok {
				continue
			}
			superior := findSuperior(key, *order, entries)
			if superior == "" {
				continue
			}
			s := entries[superior]

			if requestedContainedBy(requested, i.pattern) {
				delete(entries, superior)
				*order = remove(*order, superior)
			} else {
				if i.scope == collectionScope {
					s.excludes = mergeExcludes(s.excludes, i.excludes, i.pattern)
				}
				delete(entries, key)
				*order = remove(*order, key)
			}
			changed = true
			break
		}
		if !changed {
			return
		}
	}
}

// findSuperior returns the key of the unique widest include strictly
// greater than entries[key], or "" if none exists.
func findSuperior(key string, order []string, entries map[string]*includeEntry) string {
	self := entries[key]
	best := ""
	for _, k := range order {
		if k == key {
			continue
		}
		cand := entries[k]
		if !cand.pattern.Greater(self.pattern) {
			continue
		}
		if best == "" || cand.pattern.Greater(entries[best].pattern) {
			best = k
		}
	}
	return best
}

// mergeExcludes drops any exclude of the superior that is already fully
// covered by the narrower include i (that scope is already known-safe via
// i's role), then appends i's own excludes so they continue to apply within
// the widened result.
func mergeExcludes(superiorExcludes, narrowerExcludes []filter.Pattern, narrower filter.Pattern) []filter.Pattern {
	kept := make([]filter.Pattern, 0, len(superiorExcludes))
	for _, ex := range superiorExcludes {
		if narrower.GreaterOrEqual(ex) {
			continue
		}
		kept = append(kept, ex)
	}
	return dedup(append(kept, narrowerExcludes...))
}

func requestedContainedBy(requested *filter.FilterString, i filter.Pattern) bool {
	if requested == nil {
		return false
	}
	patterns := requested.IterPatterns()
	if len(patterns) == 0 {
		return false
	}
	for _, p := range patterns {
		if !i.GreaterOrEqual(p) {
			return false
		}
	}
	return true
}

func remove(order []string, key string) []string {
	out := order[:0:0]
	for _, k := range order {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

func dedup(patterns []filter.Pattern) []filter.Pattern {
	seen := make(map[string]bool, len(patterns))
	out := make([]filter.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p.String()] {
			seen[p.String()] = true
			out = append(out, p)
		}
	}
	return out
}
