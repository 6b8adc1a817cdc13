package role

import "github.com/netways/esarmor/internal/filter"

var wildcardPattern = []filter.Pattern{filter.NewPattern("*")}

// CollectKind distinguishes the three outcomes GetRestrictions can produce.
// The Python source raised RestrictionsFound as control flow to signal
// "scope matched but permission missing"; this type makes that branch an
// explicit, checkable return value instead.
type CollectKind int

const (
	// CollectNone: no restriction node matched the requested scope at all -
	// this role has no opinion here.
	CollectNone CollectKind = iota
	// CollectFound: one or more restriction nodes matched the scope and
	// (when a permission filter was supplied) passed it.
	CollectFound
	// CollectIndisposed: some restriction node matched the scope, but none
	// passed the supplied permission filter.
	CollectIndisposed
)

// MatchedRestriction pairs a matched node's restriction with the effective
// (chain-accumulated) permission set visible at that node.
type MatchedRestriction struct {
	Restriction        Restriction
	EffectivePermissions PermissionSet
}

// CollectResult is the sum-type return of GetRestrictions.
type CollectResult struct {
	Kind  CollectKind
	Nodes []MatchedRestriction
}

// Role holds a tree of index -> type -> field restrictions plus a set of
// cluster-wide permissions that apply independent of any index.
type Role struct {
	ID                 string
	Restrictions       []RestrictionNode
	ClusterPermissions PermissionSet
}

// GetRestrictedScope returns the narrowest level at which this role imposes
// any restriction at all: "fields", "types", "indices", or "" when the role
// is entirely unrestricted (an empty restriction tree).
func (r Role) GetRestrictedScope() string {
	if len(r.Restrictions) == 0 {
		return ""
	}
	scope := "indices"
	for _, idx := range r.Restrictions {
		if len(idx.Types) == 0 {
			continue
		}
		scope = "types"
		for _, typ := range idx.Types {
			if len(typ.Fields) > 0 {
				return "fields"
			}
		}
	}
	return scope
}

// GetRestrictions walks the restriction tree looking for nodes that apply
// at the given (index, type) scope, optionally filtered by whether they
// grant or withhold permission. index == nil means "no specific index was
// requested" and every index-level node is a candidate (used to build the
// broadest filter the role can offer). Likewise for typ relative to a
// matched index node's type children.
func (r Role) GetRestrictions(index, typ *string, permission *string, invert bool) CollectResult {
	var indexNodes []RestrictionNode
	if index == nil {
		indexNodes = r.Restrictions
	} else {
		for _, n := range r.Restrictions {
			if n.Restriction.MatchesName(*index) {
				indexNodes = append(indexNodes, n)
			}
		}
	}
	if len(indexNodes) == 0 {
		return CollectResult{Kind: CollectNone}
	}

	type candidate struct {
		restriction Restriction
		effective   PermissionSet
	}
	var candidates []candidate

	for _, idxNode := range indexNodes {
		if typ == nil {
			candidates = append(candidates, candidate{idxNode.Restriction, idxNode.Permissions})
			continue
		}
		if len(idxNode.Types) == 0 {
			// No type-level restriction defined: the index-level grant
			// applies to every type, including the one requested.
			candidates = append(candidates, candidate{idxNode.Restriction, idxNode.Permissions})
			continue
		}
		for _, typNode := range idxNode.Types {
			if !typNode.Restriction.MatchesName(*typ) {
				continue
			}
			candidates = append(candidates, candidate{typNode.Restriction, idxNode.Permissions.Union(typNode.Permissions)})
		}
	}

	if len(candidates) == 0 {
		return CollectResult{Kind: CollectNone}
	}

	if permission == nil {
		nodes := make([]MatchedRestriction, 0, len(candidates))
		for _, c := range candidates {
			nodes = append(nodes, MatchedRestriction{c.restriction, c.effective})
		}
		return CollectResult{Kind: CollectFound, Nodes: nodes}
	}

	var passed []MatchedRestriction
	for _, c := range candidates {
		granted := c.effective.Has(*permission)
		if granted == invert {
			passed = append(passed, MatchedRestriction{c.restriction, c.effective})
		}
	}
	if len(passed) == 0 {
		return CollectResult{Kind: CollectIndisposed}
	}
	return CollectResult{Kind: CollectFound, Nodes: passed}
}

// Permits reports whether this role grants permission at the given scope.
// With index == nil, this checks cluster-level permissions plus any
// wildcard, exclude-free index restriction that grants the permission
// unconditionally.
func (r Role) Permits(permission string, index, typ, field *string) bool {
	if index == nil {
		if r.ClusterPermissions.Has(permission) {
			return true
		}
		for _, idxNode := range r.Restrictions {
			if isUnconditional(idxNode.Restriction) && idxNode.Permissions.Has(permission) {
				return true
			}
		}
		return false
	}

	result := r.GetRestrictions(index, typ, nil, false)
	if result.Kind != CollectFound {
		return false
	}
	if field != nil && typ != nil {
		// A type node without field children, or an index node without type
		// children, covers every field below it; otherwise a field node must
		// admit the field and grant the permission.
		fields := r.ScopedRestrictions(LevelField, index, typ, &permission, true)
		for _, f := range fields.Nodes {
			if f.Restriction.MatchesName(*field) {
				return true
			}
		}
		for _, idxNode := range r.Restrictions {
			if len(idxNode.Types) == 0 && idxNode.MatchesName(*index) && idxNode.Permissions.Has(permission) {
				return true
			}
		}
		return false
	}
	for _, n := range result.Nodes {
		if n.EffectivePermissions.Has(permission) {
			return true
		}
	}
	return false
}

// Level identifies which tier of the restriction tree ScopedRestrictions
// should report on.
type Level int

const (
	LevelIndex Level = iota
	LevelType
	LevelField
)

// ScopedRestrictions returns the restriction nodes relevant to building a
// filter at the given level, as opposed to GetRestrictions' point-lookup
// use (checking whether one concrete index/type/field combination is
// permitted). At LevelIndex, index selects which index-level nodes apply
// (nil means "every index-level node", used to build the broadest index
// filter a role can offer). At LevelType/LevelField, index (and, for
// LevelField, typ) must already be bound to the single index/type chosen by
// an earlier index/type filter step; the returned nodes are that index's
// (or type's) children. An index or type with no children at the requested
// level imposes no further narrowing there, so a synthetic wildcard node
// inheriting the parent's permissions stands in for it.
func (r Role) ScopedRestrictions(level Level, index, typ *string, permission *string, invert bool) CollectResult {
	var indexNodes []RestrictionNode
	if index == nil {
		indexNodes = r.Restrictions
	} else {
		for _, n := range r.Restrictions {
			if n.Restriction.MatchesName(*index) {
				indexNodes = append(indexNodes, n)
			}
		}
	}
	if len(indexNodes) == 0 {
		return CollectResult{Kind: CollectNone}
	}

	type candidate struct {
		restriction Restriction
		effective   PermissionSet
	}
	var candidates []candidate

	switch level {
	case LevelIndex:
		for _, n := range indexNodes {
			candidates = append(candidates, candidate{n.Restriction, n.Permissions})
		}
	case LevelType:
		for _, n := range indexNodes {
			if len(n.Types) == 0 {
				candidates = append(candidates, candidate{wildcardRestriction(n.Permissions), n.Permissions})
				continue
			}
			for _, t := range n.Types {
				candidates = append(candidates, candidate{t.Restriction, n.Permissions.Union(t.Permissions)})
			}
		}
	case LevelField:
		if typ == nil {
			return CollectResult{Kind: CollectNone}
		}
		for _, n := range indexNodes {
			for _, t := range n.Types {
				if !t.Restriction.MatchesName(*typ) {
					continue
				}
				effective := n.Permissions.Union(t.Permissions)
				if len(t.Fields) == 0 {
					candidates = append(candidates, candidate{wildcardRestriction(effective), effective})
					continue
				}
				for _, f := range t.Fields {
					candidates = append(candidates, candidate{f.Restriction, effective.Union(f.Permissions)})
				}
			}
		}
	}

	if len(candidates) == 0 {
		return CollectResult{Kind: CollectNone}
	}

	if permission == nil {
		nodes := make([]MatchedRestriction, 0, len(candidates))
		for _, c := range candidates {
			nodes = append(nodes, MatchedRestriction{c.restriction, c.effective})
		}
		return CollectResult{Kind: CollectFound, Nodes: nodes}
	}

	var passed []MatchedRestriction
	for _, c := range candidates {
		granted := c.effective.Has(*permission)
		if granted == invert {
			passed = append(passed, MatchedRestriction{c.restriction, c.effective})
		}
	}
	if len(passed) == 0 {
		return CollectResult{Kind: CollectIndisposed}
	}
	return CollectResult{Kind: CollectFound, Nodes: passed}
}

func wildcardRestriction(permissions PermissionSet) Restriction {
	return Restriction{Includes: wildcardPattern, Permissions: permissions}
}

// isUnconditional reports whether a restriction grants access with no
// narrowing at all: a bare wildcard include and no excludes.
func isUnconditional(r Restriction) bool {
	if len(r.Excludes) != 0 || len(r.Includes) != 1 {
		return false
	}
	return r.Includes[0].IsWildcardOnly()
}
