package dsl

// fieldBearingAggTypes are the aggregation types that reference a single
// field directly, per spec.md §4.6 ("terms, stats, date_histogram etc.").
var fieldBearingAggTypes = map[string]bool{
	"terms": true, "stats": true, "extended_stats": true, "date_histogram": true,
	"histogram": true, "avg": true, "sum": true, "min": true, "max": true,
	"cardinality": true, "percentiles": true, "percentile_ranks": true,
	"geo_distance": true, "geohash_grid": true, "missing": true, "value_count": true,
	"significant_terms": true,
}

// AggregationParser walks a body's `aggregations`/`aggs` block. index and
// typ are the scope the aggregations run against.
type AggregationParser struct {
	Index *string
	Type  *string
}

// Collect enumerates the (permission, field) tuples every aggregation in
// aggs implies, recursing into sub-aggregations.
func (p AggregationParser) Collect(aggs map[string]interface{}) []Tuple {
	var out []Tuple
	for _, raw := range aggs {
		def, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, p.collectOne(def)...)
	}
	return out
}

func (p AggregationParser) collectOne(def map[string]interface{}) []Tuple {
	var out []Tuple
	for aggType, params := range def {
		if aggType == "aggs" || aggType == "aggregations" {
			continue
		}
		pm, ok := params.(map[string]interface{})
		if !ok {
			continue
		}
		if _, hasScript := pm["script"]; hasScript {
			out = append(out, p.tuple(PermFeatureScript, nil))
			continue
		}
		if fieldBearingAggTypes[aggType] {
			if field, ok := pm["field"].(string); ok {
				out = append(out, p.tuple(PermSearchDocuments, &field))
			}
		}
	}

	for _, key := range []string{"aggs", "aggregations"} {
		if sub, ok := def[key].(map[string]interface{}); ok {
			out = append(out, p.Collect(sub)...)
		}
	}
	return out
}

// Prune rewrites aggs, dropping any aggregation (and its entire
// sub-tree) whose own tuple is rejected by allowed. It reports updated=true
// whenever anything was dropped, so the caller knows to re-serialize the
// body - spec.md §4.6's "json updated" signal.
func (p AggregationParser) Prune(aggs map[string]interface{}, allowed func(Tuple) bool) (map[string]interface{}, bool) {
	out := make(map[string]interface{}, len(aggs))
	updated := false

	for name, raw := range aggs {
		def, ok := raw.(map[string]interface{})
		if !ok {
			out[name] = raw
			continue
		}

		keep := true
		for _, t := range p.collectOwnTuples(def) {
			if !allowed(t) {
				keep = false
				break
			}
		}
		if !keep {
			updated = true
			continue
		}

		newDef := def
		for _, key := range []string{"aggs", "aggregations"} {
			if sub, ok := def[key].(map[string]interface{}); ok {
				prunedSub, subUpdated := p.Prune(sub, allowed)
				if subUpdated {
					updated = true
					newDef = cloneWithout(def, key)
					if len(prunedSub) > 0 {
						newDef[key] = prunedSub
					}
				}
			}
		}
		out[name] = newDef
	}

	return out, updated
}

// collectOwnTuples returns only the tuples implied directly by def, not its
// sub-aggregations - used by Prune to decide whether this one aggregation
// survives before recursing.
func (p AggregationParser) collectOwnTuples(def map[string]interface{}) []Tuple {
	var out []Tuple
	for aggType, params := range def {
		if aggType == "aggs" || aggType == "aggregations" {
			continue
		}
		pm, ok := params.(map[string]interface{})
		if !ok {
			continue
		}
		if _, hasScript := pm["script"]; hasScript {
			out = append(out, p.tuple(PermFeatureScript, nil))
			continue
		}
		if fieldBearingAggTypes[aggType] {
			if field, ok := pm["field"].(string); ok {
				out = append(out, p.tuple(PermSearchDocuments, &field))
			}
		}
	}
	return out
}

func (p AggregationParser) tuple(permission string, field *string) Tuple {
	return Tuple{Permission: permission, Index: p.Index, Type: p.Type, Field: field}
}

func cloneWithout(m map[string]interface{}, drop string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == drop {
			continue
		}
		out[k] = v
	}
	return out
}
