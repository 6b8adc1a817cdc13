package handlers

import (
	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/request"
)

// Search handles the _search endpoint: narrows the index/type filter,
// refuses a `q=` query string under field restriction, and narrows the
// request body via narrowSearchBody, per spec.md §4.5.
type Search struct{}

func (Search) Inspect(ctx *request.Context) (*request.Response, error) {
	index, typ, indexFS, typeFS, err := resolveSearchScope(ctx.Client, ctx.PathParamOr("indices", ""), ctx.PathParamOr("types", ""))
	if err != nil {
		return nil, err
	}

	if q := ctx.Query.Get("q"); q != "" && q != "*" && ctx.Client.IsRestricted("fields") {
		return nil, &apierror.PermissionError{Reason: "You are restricted to specific fields and as such cannot utilize the query string search."}
	}

	newBody, updated, err := narrowSearchBody(ctx.Client, index, typ, ctx.Body)
	if err != nil {
		return nil, err
	}
	if updated {
		ctx.Body = newBody
	}

	ctx.Rewrite("/" + joinPatterns(indexFS) + "/" + joinPatterns(typeFS) + "/_search")
	return nil, nil
}
