package auth

import (
	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/filter"
	"github.com/netways/esarmor/internal/role"
)

// CreateFilterString computes the broadest index filter the client may use
// to satisfy permission, optionally combined with a filter the client
// itself requested. A nil requested filter stands for "the client asked for
// everything" (e.g. a bare GET /_search with no index in the path).
//
// Fast path: a client with no restriction at all passes requested through
// unchanged (or an empty FilterString when none was requested).
//
// single forces exactly one surviving include; more than one after pruning
// is reported as *MultipleIncludesError so the caller can ask the client to
// choose.
func (c *Client) CreateFilterString(permission string, requested *filter.FilterString, single bool) (filter.FilterString, error) {
	return c.createFilterString(role.LevelIndex, permission, requested, nil, nil, single)
}

// CreateTypeFilterString computes the broadest type filter within the
// already-chosen index, analogous to CreateFilterString but one level down
// the restriction tree.
func (c *Client) CreateTypeFilterString(permission string, requested *filter.FilterString, index string, single bool) (filter.FilterString, error) {
	return c.createFilterString(role.LevelType, permission, requested, &index, nil, single)
}

func (c *Client) createFilterString(level role.Level, permission string, requested *filter.FilterString, index, typ *string, single bool) (filter.FilterString, error) {
	scope := map[role.Level]string{role.LevelIndex: "indices", role.LevelType: "types", role.LevelField: "fields"}[level]
	if !c.IsRestricted(scope) {
		if requested != nil {
			return *requested, nil
		}
		return filter.FilterString{}, nil
	}

	result := c.collectFilters(level, permission, requested, index, typ)
	switch result.Kind {
	case CollectDeny:
		return filter.FilterString{}, &apierror.PermissionError{Permission: permission}
	case CollectUnrestricted:
		if requested != nil {
			return *requested, nil
		}
		return filter.FilterString{}, nil
	}

	combined := result.Filters
	if requested != nil {
		merged, ok := result.Filters.Combine(*requested)
		if !ok {
			return filter.FilterString{}, &apierror.PermissionError{Permission: permission}
		}
		combined = merged
	}

	if single {
		patterns := combined.IterPatterns()
		if len(patterns) > 1 {
			names := make([]string, len(patterns))
			for i, p := range patterns {
				names[i] = p.String()
			}
			return filter.FilterString{}, &apierror.MultipleIncludesError{Candidates: names}
		}
	}

	return combined, nil
}

// CreateSourceFilter narrows a requested SourceFilter to what the client's
// roles permit, analogous to CreateFilterString but over _source.
func (c *Client) CreateSourceFilter(permission string, requested filter.SourceFilter, index string) (filter.SourceFilter, error) {
	requestedFS := &filter.FilterString{}
	for _, p := range requested.Includes {
		requestedFS.Includes = append(requestedFS.Includes, filter.Include{Pattern: p, Excludes: requested.Excludes})
	}
	if len(requestedFS.Includes) == 0 {
		requestedFS = nil
	}

	fs, err := c.createFilterString(role.LevelField, permission, requestedFS, &index, nil, false)
	if err != nil {
		return filter.SourceFilter{}, err
	}

	out := filter.SourceFilter{Disabled: requested.Disabled}
	for _, p := range fs.IterPatterns() {
		out.Includes = append(out.Includes, p)
	}
	for _, inc := range fs.Includes {
		out.Excludes = append(out.Excludes, inc.Excludes...)
	}
	return out, nil
}

// CreateFieldsFilter narrows a requested FieldsFilter to what the client's
// roles permit. Unlike CreateFilterString/CreateSourceFilter, a fields
// filter has no excludes of its own: an include only survives if every
// exclude a role attaches to it is already covered by the client's own
// fields request (i.e. the client already knows to avoid it).
func (c *Client) CreateFieldsFilter(permission string, requested filter.FieldsFilter, index string) (filter.FieldsFilter, error) {
	requestedFS := &filter.FilterString{}
	for _, p := range requested.Fields {
		requestedFS.Includes = append(requestedFS.Includes, filter.Include{Pattern: p})
	}
	if len(requestedFS.Includes) == 0 {
		requestedFS = nil
	}

	fs, err := c.createFilterString(role.LevelField, permission, requestedFS, &index, nil, false)
	if err != nil {
		return filter.FieldsFilter{}, err
	}

	out := filter.FieldsFilter{}
	for _, inc := range fs.Includes {
		covered := true
		for _, ex := range inc.Excludes {
			if !requestAdmits(requested, ex) {
				covered = false
				break
			}
		}
		if covered {
			out.Fields = append(out.Fields, inc.Pattern)
		}
	}
	for _, f := range out.Fields {
		if containsDot(f.String()) {
			out.RequiresSource = true
			break
		}
	}
	return out, nil
}

func requestAdmits(requested filter.FieldsFilter, p filter.Pattern) bool {
	for _, f := range requested.Fields {
		if f.GreaterOrEqual(p) {
			return true
		}
	}
	return false
}

func containsDot(s string) bool {
	for _, r := range s {
		if r == '.' {
			return true
		}
	}
	return false
}
