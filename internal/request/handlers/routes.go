package handlers

import (
	"net/http"

	"github.com/netways/esarmor/internal/request"
)

// RegisterRoutes binds every implemented handler to the registry. Endpoints
// not yet covered here fall through to the proxy's default forward-as-is
// behavior (spec: an unrecognized endpoint is a policy decision left to the
// proxy, not the registry).
func RegisterRoutes(reg *request.Registry) {
	reg.Register(http.MethodPut, "/{index}", 10, "create_index", CreateIndexHandler{})
	// The catch-all GET routes rank after every literal-suffixed route below.
	reg.Register(http.MethodGet, "/{indices}/{keywords}", 30, "get_index_keyword", GetIndexHandler{})
	reg.Register(http.MethodGet, "/{indices}", 31, "get_index", GetIndexHandler{})

	reg.Register(http.MethodPost, "/{indices}/_refresh", 10, "refresh", Refresh)
	reg.Register(http.MethodPost, "/_refresh", 11, "refresh_all", Refresh)
	reg.Register(http.MethodPost, "/{indices}/_flush", 10, "flush", Flush)
	reg.Register(http.MethodPost, "/_flush", 11, "flush_all", Flush)
	reg.Register(http.MethodPost, "/{indices}/_optimize", 10, "optimize", Optimize)
	reg.Register(http.MethodPost, "/{indices}/_open", 10, "open_index", OpenIdx)
	reg.Register(http.MethodPost, "/{indices}/_close", 10, "close_index", CloseIdx)
	reg.Register(http.MethodPost, "/{indices}/_upgrade", 10, "upgrade", Upgrade)

	reg.Register(http.MethodGet, "/{indices}/_alias", 10, "get_alias", GetAlias)
	reg.Register(http.MethodGet, "/{indices}/_alias/{name}", 9, "get_alias_named", GetAlias)
	reg.Register(http.MethodGet, "/{indices}/_warmer", 10, "get_warmer", GetWarmer)
	reg.Register(http.MethodGet, "/{indices}/_settings", 10, "get_settings", GetIndexSetting)
	reg.Register(http.MethodGet, "/{indices}/_mapping", 10, "get_mapping", GetMapping)
	reg.Register(http.MethodGet, "/{indices}/_mapping/{types}", 9, "get_mapping_typed", GetMapping)
	reg.Register(http.MethodGet, "/{indices}/_stats", 10, "stats", Stats)
	reg.Register(http.MethodGet, "/{indices}/_segments", 10, "segments", Segments)
	reg.Register(http.MethodGet, "/{indices}/_recovery", 10, "recovery", Recovery)
	reg.Register(http.MethodPost, "/{indices}/_cache/clear", 10, "clear_cache", ClearCache)
	reg.Register(http.MethodGet, "/{indices}/_analyze", 10, "analyze", Analyze)
	reg.Register(http.MethodPost, "/{indices}/_analyze", 11, "analyze_post", Analyze)

	reg.Register(http.MethodPost, "/_search", 20, "search_all", Search{})
	reg.Register(http.MethodGet, "/_search", 21, "search_all_get", Search{})
	reg.Register(http.MethodPost, "/{indices}/_search", 10, "search_indices", Search{})
	reg.Register(http.MethodGet, "/{indices}/_search", 11, "search_indices_get", Search{})
	reg.Register(http.MethodPost, "/{indices}/{types}/_search", 9, "search_indices_types", Search{})
	reg.Register(http.MethodGet, "/{indices}/{types}/_search", 8, "search_indices_types_get", Search{})

	reg.Register(http.MethodPost, "/_msearch", 20, "msearch_all", MultiSearch{})
	reg.Register(http.MethodPost, "/{indices}/_msearch", 10, "msearch_indices", MultiSearch{})
	reg.Register(http.MethodPost, "/{indices}/{types}/_msearch", 9, "msearch_indices_types", MultiSearch{})

	reg.Register(http.MethodGet, "/_validate/query", 20, "validate_all_get", Validate{})
	reg.Register(http.MethodPost, "/_validate/query", 21, "validate_all", Validate{})
	reg.Register(http.MethodGet, "/{indices}/_validate/query", 10, "validate_indices_get", Validate{})
	reg.Register(http.MethodPost, "/{indices}/_validate/query", 11, "validate_indices", Validate{})
	reg.Register(http.MethodGet, "/{indices}/{types}/_validate/query", 9, "validate_indices_types_get", Validate{})
	reg.Register(http.MethodPost, "/{indices}/{types}/_validate/query", 8, "validate_indices_types", Validate{})
}
