// Package dsl implements the structural walkers over Elasticsearch Query
// DSL, aggregations, and highlight blocks: given a parsed JSON body, each
// walker yields the (permission, index?, type?, field?) tuples the body
// implies, for internal/request/handlers to check against a Client.
// Parsers never raise permission errors themselves; they only enumerate
// tuples, exactly as spec.md §4.6 specifies - the handler decides.
package dsl

// Tuple is one permission requirement a body clause implies, optionally
// scoped to an index, type, and/or field.
type Tuple struct {
	Permission string
	Index      *string
	Type       *string
	Field      *string
}

func strp(s string) *string { return &s }

const (
	// PermSearchDocuments is required to read any document field via
	// query/filter/aggregation/highlight clauses.
	PermSearchDocuments = "api/search/documents"
	// PermFeatureScript is required whenever a clause embeds a script.
	PermFeatureScript = "api/feature/script"
)
