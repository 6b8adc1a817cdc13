package handlers

import (
	"strings"

	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/request"
)

// AllowKibanaQueryValidatorBypass preserves the upstream Kibana probe's
// special case: a validate-query request against .kibana's
// __kibanaQueryValidator pseudo-document is authorized on a single
// api/search/explain check against .kibana rather than the normal
// index/type/body narrowing. Scoped to this one path shape, not a general
// principle - see DESIGN.md before extending it.
var AllowKibanaQueryValidatorBypass = true

// Validate handles the _validate/query endpoint: same index/type scope
// resolution as Search, plus an explain permission check, but no body or
// source/fields narrowing since the upstream response never contains
// document data.
type Validate struct{}

func (Validate) Inspect(ctx *request.Context) (*request.Response, error) {
	if AllowKibanaQueryValidatorBypass && strings.Contains(ctx.Path, "__kibanaQueryValidator") {
		kibana := ".kibana"
		if !ctx.Client.Can(PermSearchExplain, &kibana, nil, nil) {
			return nil, &apierror.PermissionError{
				Permission: PermSearchExplain,
				Reason:     "caller is not permitted to access scoring explanations of .kibana",
			}
		}
		return nil, nil
	}

	index, typ, indexFS, typeFS, err := resolveSearchScope(ctx.Client, ctx.PathParamOr("indices", ""), ctx.PathParamOr("types", ""))
	if err != nil {
		return nil, err
	}

	if q := ctx.Query.Get("q"); q != "" && q != "*" && ctx.Client.IsRestricted("fields") {
		return nil, &apierror.PermissionError{Reason: "You are restricted to specific fields and as such cannot utilize the query string search."}
	}

	if ctx.Query.Get("explain") != "false" {
		if !ctx.Client.Can(PermSearchExplain, &index, &typ, nil) {
			return nil, &apierror.PermissionError{Permission: PermSearchExplain}
		}
	}

	ctx.Rewrite("/" + joinPatterns(indexFS) + "/" + joinPatterns(typeFS) + "/_validate/query")
	return nil, nil
}
