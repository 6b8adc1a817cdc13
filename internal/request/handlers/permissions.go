// Package handlers implements the per-Elasticsearch-API-group endpoint
// handlers: each declares the permissions a request needs and rewrites the
// path/body to narrow access to what the caller's roles admit, per
// spec.md §4.5.
package handlers

const (
	PermIndicesCreateIndex    = "api/indices/create/index"
	PermIndicesCreateMapping  = "api/indices/create/mapping"
	PermIndicesCreateAlias    = "api/indices/create/alias"
	PermIndicesCreateWarmer   = "api/indices/create/warmer"
	PermIndicesCreateSettings = "api/indices/create/settings"
	PermIndicesCreateTemplate = "api/indices/create/template"

	PermIndicesGetAny       = "api/indices/get/*"
	PermIndicesGetSettings  = "api/indices/get/settings"
	PermIndicesGetMappings  = "api/indices/get/mappings"
	PermIndicesGetWarmers   = "api/indices/get/warmers"
	PermIndicesGetAliases   = "api/indices/get/aliases"
	PermIndicesGetFieldMap  = "api/indices/get/field_mappings"

	PermIndicesDelete      = "api/indices/delete/index"
	PermIndicesDeleteAlias = "api/indices/delete/alias"
	PermIndicesOpen        = "api/indices/open"
	PermIndicesClose       = "api/indices/close"
	PermIndicesRefresh     = "api/indices/refresh"
	PermIndicesFlush       = "api/indices/flush"
	PermIndicesOptimize    = "api/indices/optimize"
	PermIndicesUpgrade     = "api/indices/upgrade"
	PermIndicesAnalyze     = "api/indices/analyze"
	PermIndicesStats       = "api/indices/stats"
	PermIndicesSegments    = "api/indices/segments"
	PermIndicesRecovery    = "api/indices/recovery"
	PermIndicesCache       = "api/indices/cache"

	PermSearchDocuments   = "api/search/documents"
	PermSearchStats       = "api/search/stats"
	PermSearchFacets      = "api/search/facets"
	PermSearchScriptField = "api/feature/script"
	PermSearchExplain     = "api/search/explain"
	PermSearchInnerHits   = "api/search/inner_hits"
	PermSearchSuggest     = "api/search/suggest"
	PermSearchValidate    = "api/search/validate"
	PermSearchCount       = "api/search/count"
	PermSearchExists      = "api/search/exists"
	PermSearchShards      = "api/search/shards"
	PermSearchPercolate   = "api/search/percolate"
	PermSearchMoreLikeThis = "api/search/more_like_this"
	PermSearchFieldStats  = "api/search/field_stats"
)

// bodyGatePermission maps a top-level Search body key to the permission it
// additionally requires, per spec.md §4.5 step 3.
var bodyGatePermission = map[string]string{
	"stats":          PermSearchStats,
	"facets":         PermSearchFacets,
	"script_fields":  PermSearchScriptField,
	"explain":        PermSearchExplain,
	"inner_hits":     PermSearchInnerHits,
	"suggest":        PermSearchSuggest,
}

// createIndexBodyPermission maps a top-level CreateIndex body key to the
// permission it additionally requires, per spec.md §4.5's CreateIndex
// contract.
var createIndexBodyPermission = map[string]string{
	"mappings": PermIndicesCreateMapping,
	"warmers":  PermIndicesCreateWarmer,
	"aliases":  PermIndicesCreateAlias,
	"settings": PermIndicesCreateSettings,
}
