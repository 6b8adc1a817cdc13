package handlers

import (
	"encoding/json"

	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/request"
)

// Refresh, Flush, Optimize, Open, Close and Upgrade are raw passthrough
// handlers: they only need to narrow the index filter in the path, the
// request body is never inspected.
var (
	Refresh  = indexScopedHandler{Permission: PermIndicesRefresh, Suffix: "/_refresh"}
	Flush    = indexScopedHandler{Permission: PermIndicesFlush, Suffix: "/_flush"}
	Optimize = indexScopedHandler{Permission: PermIndicesOptimize, Suffix: "/_optimize"}
	OpenIdx  = indexScopedHandler{Permission: PermIndicesOpen, Suffix: "/_open"}
	CloseIdx = indexScopedHandler{Permission: PermIndicesClose, Suffix: "/_close"}
	Upgrade  = indexScopedHandler{Permission: PermIndicesUpgrade, Suffix: "/_upgrade"}

	GetAlias        = indexScopedHandler{Permission: PermIndicesGetAliases, Suffix: "/_alias"}
	GetWarmer       = indexScopedHandler{Permission: PermIndicesGetWarmers, Suffix: "/_warmer"}
	GetIndexSetting = indexScopedHandler{Permission: PermIndicesGetSettings, Suffix: "/_settings"}
	GetMapping      = indexScopedHandler{Permission: PermIndicesGetMappings, Suffix: "/_mapping"}
	Stats           = indexScopedHandler{Permission: PermIndicesStats, Suffix: "/_stats"}
	Segments        = indexScopedHandler{Permission: PermIndicesSegments, Suffix: "/_segments"}
	Recovery        = indexScopedHandler{Permission: PermIndicesRecovery, Suffix: "/_recovery"}
	ClearCache      = indexScopedHandler{Permission: PermIndicesCache, Suffix: "/_cache/clear"}
	Analyze         = indexScopedHandler{Permission: PermIndicesAnalyze, Suffix: "/_analyze"}
)

// CreateIndexHandler handles PUT /{index}: the index itself needs a single
// matching create permission, and each top-level body key additionally
// gates on its own create permission, per spec.md §4.5.
type CreateIndexHandler struct{}

func (CreateIndexHandler) Inspect(ctx *request.Context) (*request.Response, error) {
	index, ok := ctx.PathParam("index")
	if !ok || index == "" {
		return nil, &apierror.RequestError{Message: "missing index name"}
	}

	if !ctx.Client.Can(PermIndicesCreateIndex, &index, nil, nil) {
		return nil, &apierror.PermissionError{Permission: PermIndicesCreateIndex}
	}

	if len(ctx.Body) == 0 {
		return nil, nil
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(ctx.Body, &body); err != nil {
		return nil, &apierror.RequestError{Message: "invalid JSON body"}
	}

	for key := range body {
		perm, known := createIndexBodyPermission[key]
		if !known {
			return nil, &apierror.RequestError{Message: "unknown key '" + key + "' in index creation body"}
		}
		if !ctx.Client.Can(perm, &index, nil, nil) {
			return nil, &apierror.PermissionError{Permission: perm, Reason: "index creation body includes '" + key + "' which requires " + perm}
		}
	}

	return nil, nil
}

// GetIndexHandler handles GET /{indices}[/{keywords}] - _settings, _mapping,
// _warmer, _alias and friends all funnel into the same category-gated
// lookup once the index list is narrowed, per spec.md §4.5.
type GetIndexHandler struct{}

var getIndexKeywordPermission = map[string]string{
	"_settings": PermIndicesGetSettings,
	"_mapping":  PermIndicesGetMappings,
	"_mappings": PermIndicesGetMappings,
	"_warmer":   PermIndicesGetWarmers,
	"_warmers":  PermIndicesGetWarmers,
	"_alias":    PermIndicesGetAliases,
	"_aliases":  PermIndicesGetAliases,
}

func (GetIndexHandler) Inspect(ctx *request.Context) (*request.Response, error) {
	requested, err := requestedFromCSV(ctx.PathParamOr("indices", ""))
	if err != nil {
		return nil, &requestErr{err}
	}

	fs, err := ctx.Client.CreateFilterString(PermIndicesGetAny, requested, false)
	if err != nil {
		return nil, err
	}

	keyword, hasKeyword := ctx.PathParam("keywords")
	path := "/" + joinPatterns(fs)

	if !hasKeyword || keyword == "" {
		ctx.Rewrite(path)
		return nil, nil
	}

	for _, raw := range request.SplitCSV(keyword) {
		perm, known := getIndexKeywordPermission[raw]
		if !known {
			continue
		}
		for _, p := range fs.IterPatterns() {
			idx := p.String()
			if !ctx.Client.Can(perm, &idx, nil, nil) {
				return nil, &apierror.PermissionError{Permission: perm, Reason: "index '" + idx + "' does not grant " + perm}
			}
		}
	}

	ctx.Rewrite(path + "/" + keyword)
	return nil, nil
}

