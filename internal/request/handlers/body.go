package handlers

import (
	"encoding/json"
	"strings"

	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/auth"
	"github.com/netways/esarmor/internal/dsl"
	"github.com/netways/esarmor/internal/filter"
)

// resolveSearchScope narrows an index/type pair for a search-shaped
// request: the index filter is forced to a single survivor when the caller
// is type-restricted (a type-restricted role can only ever search within
// one index's type tree at a time), and likewise the type filter is forced
// singular when the caller is field-restricted, per spec.md §4.5. Denials
// are re-worded here, at the call site, into inspect_request's exact
// messages (search_apis.py:117-137) since CreateFilterString/
// CreateTypeFilterString are shared by callers with unrelated permissions
// and can't hardcode a search-specific message themselves.
func resolveSearchScope(client *auth.Client, indexCSV, typeCSV string) (index, typ string, indexFS, typeFS filter.FilterString, err error) {
	requestedIndex, err := requestedFromCSV(indexCSV)
	if err != nil {
		return "", "", filter.FilterString{}, filter.FilterString{}, &requestErr{err}
	}
	indexFS, err = client.CreateFilterString(PermSearchDocuments, requestedIndex, client.IsRestricted("types"))
	if err != nil {
		return "", "", filter.FilterString{}, filter.FilterString{}, indexScopeError(err, indexCSV)
	}
	index = firstPattern(indexFS)

	requestedType, err := requestedFromCSV(typeCSV)
	if err != nil {
		return "", "", filter.FilterString{}, filter.FilterString{}, &requestErr{err}
	}
	typeFS, err = client.CreateTypeFilterString(PermSearchDocuments, requestedType, index, client.IsRestricted("fields"))
	if err != nil {
		return "", "", filter.FilterString{}, filter.FilterString{}, typeScopeError(err, typeCSV)
	}
	typ = firstPattern(typeFS)
	return index, typ, indexFS, typeFS, nil
}

// indexScopeError rewords a CreateFilterString failure into
// inspect_request's exact index-filter message, per search_apis.py:117-127.
func indexScopeError(err error, requestedIndices string) error {
	switch e := err.(type) {
	case *apierror.MultipleIncludesError:
		return &apierror.PermissionError{Reason: "You are restricted to specific types or fields. To use the search api, please pick" +
			" a single index from the following list: " + strings.Join(e.Candidates, ", ")}
	case *apierror.PermissionError:
		return &apierror.PermissionError{Reason: `You are not permitted to search for documents using the index filter "` + requestedIndices + `".`}
	default:
		return err
	}
}

// typeScopeError rewords a CreateTypeFilterString failure into
// inspect_request's exact type-filter message, per search_apis.py:129-137.
func typeScopeError(err error, requestedTypes string) error {
	switch e := err.(type) {
	case *apierror.MultipleIncludesError:
		return &apierror.PermissionError{Reason: "You are restricted to specific fields. To use the search api, please pick a" +
			" single type from the following list: " + strings.Join(e.Candidates, ", ")}
	case *apierror.PermissionError:
		return &apierror.PermissionError{Reason: `You are not permitted to search for documents using the type filter "` + requestedTypes + `".`}
	default:
		return err
	}
}

// narrowSearchBody inspects and rewrites a _search-shaped request body:
// gates optional top-level features, walks query/post_filter/aggregations/
// highlight for field-level permission checks, and narrows _source/fields.
// Keys the handler never touches round-trip unchanged since body is kept as
// a raw key->RawMessage map throughout.
func narrowSearchBody(client *auth.Client, index, typ string, raw []byte) ([]byte, bool, error) {
	if len(raw) == 0 {
		return raw, false, nil
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false, &apierror.RequestError{Message: "invalid JSON body"}
	}

	for key, perm := range bodyGatePermission {
		if _, present := body[key]; !present {
			continue
		}
		if !client.Can(perm, &index, nil, nil) {
			return nil, false, &apierror.PermissionError{Permission: perm, Reason: "search body includes '" + key + "' which requires " + perm}
		}
	}

	updated := false
	allowed := func(t dsl.Tuple) bool {
		return client.Can(t.Permission, t.Index, t.Type, t.Field)
	}
	qp := dsl.QueryDslParser{Index: &index, Type: &typ}

	for _, key := range []string{"query", "post_filter"} {
		rawClause, present := body[key]
		if !present {
			continue
		}
		var clause map[string]interface{}
		if err := json.Unmarshal(rawClause, &clause); err != nil {
			continue
		}
		for _, t := range qp.Walk(clause) {
			if !allowed(t) {
				return nil, false, &apierror.PermissionError{Permission: t.Permission}
			}
		}
	}

	if rawRescore, present := body["rescore"]; present {
		var rescore map[string]interface{}
		if err := json.Unmarshal(rawRescore, &rescore); err == nil {
			if rescoreQuery, ok := rescore["query"].(map[string]interface{}); ok {
				if inner, ok := rescoreQuery["rescore_query"].(map[string]interface{}); ok {
					for _, t := range qp.Walk(inner) {
						if !allowed(t) {
							return nil, false, &apierror.PermissionError{Permission: t.Permission}
						}
					}
				}
			}
		}
	}

	for _, key := range []string{"aggregations", "aggs"} {
		rawAggs, present := body[key]
		if !present {
			continue
		}
		var aggs map[string]interface{}
		if err := json.Unmarshal(rawAggs, &aggs); err != nil {
			continue
		}
		ap := dsl.AggregationParser{Index: &index, Type: &typ}
		pruned, subUpdated := ap.Prune(aggs, allowed)
		if subUpdated {
			updated = true
			newRaw, _ := json.Marshal(pruned)
			body[key] = newRaw
		}
	}

	if rawHighlight, present := body["highlight"]; present {
		var highlight map[string]interface{}
		if err := json.Unmarshal(rawHighlight, &highlight); err == nil {
			hp := dsl.HighlightParser{Index: &index, Type: &typ}
			for _, t := range hp.Walk(highlight) {
				if !allowed(t) {
					return nil, false, &apierror.PermissionError{Permission: t.Permission}
				}
			}
		}
	}

	if rawSource, present := body["_source"]; present {
		sf, err := filter.FromJSON(rawSource)
		if err == nil {
			narrowed, err := client.CreateSourceFilter(PermSearchDocuments, sf, index)
			if err != nil {
				return nil, false, err
			}
			if !narrowed.Equal(sf) {
				body["_source"] = narrowed.AsJSON()
				updated = true
			}
		}
	}
	if rawFields, present := body["fields"]; present {
		var asRaw interface{}
		if err := json.Unmarshal(rawFields, &asRaw); err == nil {
			ff := jsonToFieldsFilter(asRaw)
			narrowed, err := client.CreateFieldsFilter(PermSearchDocuments, ff, index)
			if err != nil {
				return nil, false, err
			}
			newRaw, _ := json.Marshal(narrowed.AsStrings())
			body["fields"] = newRaw
			updated = true
		}
	}

	if !updated {
		return raw, false, nil
	}
	out, _ := json.Marshal(body)
	return out, true, nil
}

func jsonToFieldsFilter(raw interface{}) filter.FieldsFilter {
	switch v := raw.(type) {
	case string:
		return filter.FieldsFromString(v)
	case []interface{}:
		var parts []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		return filter.FieldsFromString(joinStrings(parts))
	default:
		return filter.FieldsFilter{}
	}
}

func joinStrings(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
