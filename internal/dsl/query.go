package dsl

// QueryDslParser walks a single query or filter clause (the `query`,
// `post_filter`, `rescore.query`, or a `has_child`/`has_parent`/`nested`
// sub-query) and yields the tuples it implies. index and typ are the scope
// already bound by the enclosing request (the index/type the clause is
// being evaluated against); they are threaded through tuples that don't
// narrow scope themselves, and overridden for clauses that explicitly
// reference a different type (has_child/has_parent).
type QueryDslParser struct {
	Index *string
	Type  *string
}

// Walk recurses through clause and returns every (permission, index?,
// type?, field?) tuple it implies. Unknown/unrecognized query types are
// treated as pass-through, per spec.md §4.6.
func (p QueryDslParser) Walk(clause map[string]interface{}) []Tuple {
	var out []Tuple
	for key, raw := range clause {
		out = append(out, p.walkClause(key, raw)...)
	}
	return out
}

func (p QueryDslParser) walkClause(key string, raw interface{}) []Tuple {
	switch key {
	case "match", "match_phrase", "match_phrase_prefix", "common", "fuzzy",
		"wildcard", "prefix", "regexp", "span_term", "term":
		return p.singleFieldClause(raw)

	case "terms", "range":
		return p.singleFieldClause(raw)

	case "exists", "missing":
		if m, ok := raw.(map[string]interface{}); ok {
			if field, ok := m["field"].(string); ok {
				return []Tuple{p.tuple(PermSearchDocuments, &field)}
			}
		}
		return nil

	case "query_string", "simple_query_string":
		return p.fieldsOrDefault(raw)

	case "more_like_this", "mlt", "fuzzy_like_this", "fuzzy_like_this_field":
		return p.fieldsOrDefault(raw)

	case "nested":
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}
		var out []Tuple
		if path, ok := m["path"].(string); ok {
			out = append(out, p.tuple(PermSearchDocuments, &path))
		}
		if inner, ok := m["query"].(map[string]interface{}); ok {
			out = append(out, p.Walk(inner)...)
		}
		if inner, ok := m["filter"].(map[string]interface{}); ok {
			out = append(out, p.Walk(inner)...)
		}
		return out

	case "has_child":
		return p.walkRelated(raw, "type")

	case "has_parent":
		return p.walkRelated(raw, "parent_type")

	case "filtered":
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}
		var out []Tuple
		if inner, ok := m["query"].(map[string]interface{}); ok {
			out = append(out, p.Walk(inner)...)
		}
		if inner, ok := m["filter"].(map[string]interface{}); ok {
			out = append(out, p.Walk(inner)...)
		}
		return out

	case "constant_score":
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}
		var out []Tuple
		if inner, ok := m["query"].(map[string]interface{}); ok {
			out = append(out, p.Walk(inner)...)
		}
		if inner, ok := m["filter"].(map[string]interface{}); ok {
			out = append(out, p.Walk(inner)...)
		}
		return out

	case "function_score":
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}
		var out []Tuple
		if inner, ok := m["query"].(map[string]interface{}); ok {
			out = append(out, p.Walk(inner)...)
		}
		if _, ok := m["script_score"]; ok {
			out = append(out, p.tuple(PermFeatureScript, nil))
		}
		return out

	case "script":
		return []Tuple{p.tuple(PermFeatureScript, nil)}

	case "bool":
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}
		var out []Tuple
		for _, clauseKey := range []string{"must", "should", "must_not", "filter"} {
			for _, sub := range asList(m[clauseKey]) {
				if sm, ok := sub.(map[string]interface{}); ok {
					out = append(out, p.Walk(sm)...)
				}
			}
		}
		return out

	case "dis_max":
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}
		var out []Tuple
		for _, sub := range asList(m["queries"]) {
			if sm, ok := sub.(map[string]interface{}); ok {
				out = append(out, p.Walk(sm)...)
			}
		}
		return out

	case "and", "or":
		var out []Tuple
		for _, sub := range asList(raw) {
			if sm, ok := sub.(map[string]interface{}); ok {
				out = append(out, p.Walk(sm)...)
			}
		}
		return out

	case "not":
		if sm, ok := raw.(map[string]interface{}); ok {
			return p.Walk(sm)
		}
		return nil

	case "ids":
		if m, ok := raw.(map[string]interface{}); ok {
			if t, ok := m["type"].(string); ok {
				return []Tuple{{Permission: PermSearchDocuments, Index: p.Index, Type: &t}}
			}
		}
		return nil

	default:
		// Unrecognized query type: pass through untouched.
		return nil
	}
}

// walkRelated handles has_child/has_parent: the related type overrides
// Type for the nested query, and is itself reported as a tuple so the
// handler can check access to that type.
func (p QueryDslParser) walkRelated(raw interface{}, typeKey string) []Tuple {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	relType, _ := m[typeKey].(string)
	var relTypePtr *string
	if relType != "" {
		relTypePtr = &relType
	}

	out := []Tuple{{Permission: PermSearchDocuments, Index: p.Index, Type: relTypePtr}}
	if inner, ok := m["query"].(map[string]interface{}); ok {
		sub := QueryDslParser{Index: p.Index, Type: relTypePtr}
		out = append(out, sub.Walk(inner)...)
	}
	return out
}

func (p QueryDslParser) singleFieldClause(raw interface{}) []Tuple {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	var out []Tuple
	for field := range m {
		f := field
		out = append(out, p.tuple(PermSearchDocuments, &f))
	}
	return out
}

func (p QueryDslParser) fieldsOrDefault(raw interface{}) []Tuple {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	if fields, ok := m["fields"].([]interface{}); ok {
		var out []Tuple
		for _, f := range fields {
			if s, ok := f.(string); ok {
				out = append(out, p.tuple(PermSearchDocuments, &s))
			}
		}
		return out
	}
	if field, ok := m["default_field"].(string); ok {
		return []Tuple{p.tuple(PermSearchDocuments, &field)}
	}
	return []Tuple{p.tuple(PermSearchDocuments, nil)}
}

func (p QueryDslParser) tuple(permission string, field *string) Tuple {
	return Tuple{Permission: permission, Index: p.Index, Type: p.Type, Field: field}
}

func asList(v interface{}) []interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return val
	default:
		return []interface{}{val}
	}
}
