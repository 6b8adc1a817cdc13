package dsl

// HighlightParser walks a body's `highlight` block. Each entry under
// `fields` implies a (permission, field) tuple; a per-field
// `highlight_query` is delegated to QueryDslParser.
type HighlightParser struct {
	Index *string
	Type  *string
}

// Walk enumerates the tuples a highlight block implies.
func (p HighlightParser) Walk(highlight map[string]interface{}) []Tuple {
	fields, ok := highlight["fields"].(map[string]interface{})
	if !ok {
		return nil
	}

	var out []Tuple
	qp := QueryDslParser{Index: p.Index, Type: p.Type}
	for name, raw := range fields {
		fieldName := name
		out = append(out, Tuple{Permission: PermSearchDocuments, Index: p.Index, Type: p.Type, Field: &fieldName})

		def, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if hq, ok := def["highlight_query"].(map[string]interface{}); ok {
			out = append(out, qp.Walk(hq)...)
		}
	}
	return out
}
