package filter

import (
	"encoding/json"
	"net/url"
	"strings"
)

// SourceFilter mirrors Elasticsearch's `_source` filtering: an ordered list
// of include patterns, an ordered list of exclude patterns, and a disabled
// flag for `_source=false`.
type SourceFilter struct {
	Includes []Pattern
	Excludes []Pattern
	Disabled bool
}

// FromQuery builds a SourceFilter from the _source / _source_include /
// _source_exclude query parameters of a request.
func FromQuery(values url.Values) SourceFilter {
	var sf SourceFilter

	if raw := values.Get("_source"); raw != "" {
		switch strings.ToLower(raw) {
		case "false":
			sf.Disabled = true
			return sf
		case "true":
			// explicit opt-in, no narrowing
		default:
			sf.Includes = splitPatterns(raw)
		}
	}

	if raw := values.Get("_source_include"); raw != "" {
		sf.Includes = append(sf.Includes, splitPatterns(raw)...)
	}
	if raw := values.Get("_source_exclude"); raw != "" {
		sf.Excludes = append(sf.Excludes, splitPatterns(raw)...)
	}

	return sf
}

// sourceFilterJSON is the JSON shape of Elasticsearch's `_source` body
// field: either a bool, a single pattern string, an array of patterns, or
// an {"include": [...], "exclude": [...]} object.
type sourceFilterJSON struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// FromJSON parses the `_source` field of a request body.
func FromJSON(raw json.RawMessage) (SourceFilter, error) {
	var sf SourceFilter
	if len(raw) == 0 {
		return sf, nil
	}

	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		sf.Disabled = !asBool
		return sf, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		sf.Includes = splitPatterns(asString)
		return sf, nil
	}

	var asArray []string
	if err := json.Unmarshal(raw, &asArray); err == nil {
		for _, s := range asArray {
			sf.Includes = append(sf.Includes, NewPattern(s))
		}
		return sf, nil
	}

	var obj sourceFilterJSON
	if err := json.Unmarshal(raw, &obj); err != nil {
		return sf, err
	}
	for _, s := range obj.Include {
		sf.Includes = append(sf.Includes, NewPattern(s))
	}
	for _, s := range obj.Exclude {
		sf.Excludes = append(sf.Excludes, NewPattern(s))
	}
	return sf, nil
}

// AsJSON renders the SourceFilter back into the `_source` body shape.
func (sf SourceFilter) AsJSON() json.RawMessage {
	if sf.Disabled {
		b, _ := json.Marshal(false)
		return b
	}
	if len(sf.Excludes) == 0 {
		if len(sf.Includes) == 0 {
			b, _ := json.Marshal(true)
			return b
		}
		if len(sf.Includes) == 1 {
			b, _ := json.Marshal(sf.Includes[0].String())
			return b
		}
	}

	obj := sourceFilterJSON{}
	for _, p := range sf.Includes {
		obj.Include = append(obj.Include, p.String())
	}
	for _, p := range sf.Excludes {
		obj.Exclude = append(obj.Exclude, p.String())
	}
	b, _ := json.Marshal(obj)
	return b
}

// Equal reports whether two SourceFilters describe the same selection,
// independent of include/exclude ordering.
func (sf SourceFilter) Equal(other SourceFilter) bool {
	if sf.Disabled != other.Disabled {
		return false
	}
	return samePatternSet(sf.Includes, other.Includes) && samePatternSet(sf.Excludes, other.Excludes)
}

func samePatternSet(a, b []Pattern) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int)
	for _, p := range a {
		seen[p.String()]++
	}
	for _, p := range b {
		seen[p.String()]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}

func splitPatterns(s string) []Pattern {
	var out []Pattern
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, NewPattern(part))
	}
	return out
}

// FieldsFilter is an ordered list of field patterns, interchangeable with
// the query/JSON `fields` parameter. RequiresSource is set whenever any
// element needs the document's stored `_source` to be evaluated rather
// than being satisfiable from stored/doc-values fields alone - in practice,
// any dotted (nested-object) field path, since Elasticsearch 1.7 can only
// serve those via _source extraction.
type FieldsFilter struct {
	Fields         []Pattern
	RequiresSource bool
}

// FieldsFromString parses a comma-separated `fields` parameter or body
// value.
func FieldsFromString(s string) FieldsFilter {
	ff := FieldsFilter{Fields: splitPatterns(s)}
	for _, f := range ff.Fields {
		if strings.Contains(f.String(), ".") {
			ff.RequiresSource = true
			break
		}
	}
	return ff
}

// AsStrings renders the filter's patterns as plain strings, in order.
func (ff FieldsFilter) AsStrings() []string {
	out := make([]string, len(ff.Fields))
	for i, f := range ff.Fields {
		out[i] = f.String()
	}
	return out
}
