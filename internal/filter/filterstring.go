package filter

import (
	"errors"
	"sort"
	"strings"
)

// Include is one include pattern together with the excludes that narrow it.
type Include struct {
	Pattern  Pattern
	Excludes []Pattern
}

// FilterString is an ordered sequence of include patterns, each carrying its
// own ordered list of exclude patterns. A pattern p is admitted iff some
// include contains p and no exclude on that include contains p.
type FilterString struct {
	Includes []Include
	// Combined holds the result of the most recent Combine call, if any.
	// When set, IterPatterns and Admits consult it instead of Includes.
	Combined []Include
}

// FromString parses a comma-separated list such as "a,b,-c". A leading '-'
// marks an exclude; a leading '+' (or no sign) marks an include. Every
// exclude applies to every include gathered from the same string, matching
// the flat include/exclude shape of Elasticsearch's own csv filter
// parameters (_source, fields, ...).
func FromString(s string) (FilterString, error) {
	var includes, excludes []Pattern
	for _, raw := range strings.Split(s, ",") {
		elem := strings.TrimSpace(raw)
		if elem == "" {
			return FilterString{}, errors.New("empty element in filter list")
		}

		exclude := false
		switch elem[0] {
		case '-':
			exclude = true
			elem = elem[1:]
		case '+':
			elem = elem[1:]
		}
		if elem == "" {
			return FilterString{}, errors.New("empty element in filter list")
		}

		p := NewPattern(elem)
		if exclude {
			excludes = append(excludes, p)
		} else {
			includes = append(includes, p)
		}
	}

	fs := FilterString{Includes: make([]Include, 0, len(includes))}
	for _, p := range includes {
		fs.Includes = append(fs.Includes, Include{Pattern: p, Excludes: excludes})
	}
	return fs, nil
}

// ToString renders the canonical form: includes first, then '-'-prefixed
// excludes, signs normalized and duplicates collapsed.
func (f FilterString) ToString() string {
	seenInclude := make(map[string]bool)
	seenExclude := make(map[string]bool)
	var includeParts, excludeParts []string

	for _, inc := range f.effective() {
		if !seenInclude[inc.Pattern.String()] {
			seenInclude[inc.Pattern.String()] = true
			includeParts = append(includeParts, inc.Pattern.String())
		}
		for _, ex := range inc.Excludes {
			if !seenExclude[ex.String()] {
				seenExclude[ex.String()] = true
				excludeParts = append(excludeParts, "-"+ex.String())
			}
		}
	}

	return strings.Join(append(includeParts, excludeParts...), ",")
}

func (f FilterString) effective() []Include {
	if f.Combined != nil {
		return f.Combined
	}
	return f.Includes
}

// IterPatterns yields the effective include patterns.
func (f FilterString) IterPatterns() []Pattern {
	eff := f.effective()
	out := make([]Pattern, 0, len(eff))
	for _, inc := range eff {
		out = append(out, inc.Pattern)
	}
	return out
}

// Admits reports whether p is admitted: some include contains p and none of
// that include's excludes contain p.
func (f FilterString) Admits(p Pattern) bool {
	for _, inc := range f.effective() {
		if !inc.Pattern.GreaterOrEqual(p) {
			continue
		}
		excluded := false
		for _, ex := range inc.Excludes {
			if ex.GreaterOrEqual(p) {
				excluded = true
				break
			}
		}
		if !excluded {
			return true
		}
	}
	return false
}

// Matches reports whether every pattern in other is admitted by f.
func (f FilterString) Matches(other FilterString) bool {
	for _, p := range other.IterPatterns() {
		if !f.Admits(p) {
			return false
		}
	}
	return true
}

// Combine intersects f with other. For every comparable pair of includes
// (one from each side), the narrower include survives, inheriting the union
// of both sides' excludes minus any wide-side exclude that fully contains
// the narrower include (such an exclude no longer carves out anything
// meaningful once the scope has been narrowed to begin with, and is simply
// dropped rather than collapsing the whole combination to nothing). Combine
// returns ok=false when no include from either side survives.
func (f FilterString) Combine(other FilterString) (FilterString, bool) {
	type key struct{ pattern string }
	merged := make(map[key]*Include)
	var order []key

	addOrMerge := func(inc Include) {
		k := key{inc.Pattern.String()}
		if existing, ok := merged[k]; ok {
			existing.Excludes = dedupPatterns(append(existing.Excludes, inc.Excludes...))
			return
		}
		cp := Include{Pattern: inc.Pattern, Excludes: dedupPatterns(inc.Excludes)}
		merged[k] = &cp
		order = append(order, k)
	}

	for _, i := range f.effective() {
		for _, j := range other.effective() {
			switch {
			case i.Pattern.Equal(j.Pattern):
				addOrMerge(Include{Pattern: i.Pattern, Excludes: append(append([]Pattern{}, i.Excludes...), j.Excludes...)})
			case i.Pattern.Greater(j.Pattern):
				addOrMerge(narrow(j, i))
			case j.Pattern.Greater(i.Pattern):
				addOrMerge(narrow(i, j))
			}
		}
	}

	if len(order) == 0 {
		return FilterString{}, false
	}

	combined := make([]Include, 0, len(order))
	for _, k := range order {
		combined = append(combined, *merged[k])
	}
	sort.Slice(combined, func(a, b int) bool { return combined[a].Pattern.String() < combined[b].Pattern.String() })

	result := f
	result.Combined = combined
	return result, true
}

// narrow builds the surviving include when narrow is strictly contained by
// wide: the union of both excludes, minus wide excludes that fully contain
// narrow's pattern.
func narrow(narrowInc, wideInc Include) Include {
	excludes := append([]Pattern{}, narrowInc.Excludes...)
	for _, ex := range wideInc.Excludes {
		if ex.GreaterOrEqual(narrowInc.Pattern) {
			continue
		}
		excludes = append(excludes, ex)
	}
	return Include{Pattern: narrowInc.Pattern, Excludes: excludes}
}

func dedupPatterns(patterns []Pattern) []Pattern {
	seen := make(map[string]bool)
	out := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p.String()] {
			seen[p.String()] = true
			out = append(out, p)
		}
	}
	return out
}
