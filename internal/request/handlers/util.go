package handlers

import (
	"strings"

	"github.com/netways/esarmor/internal/filter"
	"github.com/netways/esarmor/internal/request"
)

// requestedFromCSV turns a raw path segment such as "logs-2016,logs-2017" or
// "_all" into the *filter.FilterString CreateFilterString/CreateTypeFilterString
// expect: nil means "the client asked for everything", matching a bare
// /_search with no index in the path.
func requestedFromCSV(segment string) (*filter.FilterString, error) {
	if segment == "" || segment == "_all" || segment == "*" {
		return nil, nil
	}
	fs, err := filter.FromString(segment)
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// joinPatterns renders a FilterString's surviving includes back into a URL
// path segment, falling back to "_all" when nothing survived (meaning the
// client's own roles impose no narrowing at this level).
func joinPatterns(fs filter.FilterString) string {
	patterns := fs.IterPatterns()
	if len(patterns) == 0 {
		return "_all"
	}
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

// firstPattern returns the first surviving include's literal text, used
// where a single representative index/type is needed to resolve the next
// restriction level (e.g. CreateTypeFilterString needs one bound index).
func firstPattern(fs filter.FilterString) string {
	patterns := fs.IterPatterns()
	if len(patterns) == 0 {
		return "_all"
	}
	return patterns[0].String()
}

// indexScopedHandler implements the large family of endpoints that bind one
// or more indices in the path, require a single permission against them, and
// otherwise forward the request untouched once the path is rewritten to the
// narrowed filter - refresh/flush/optimize/open/close/upgrade and the
// get-aliases/get-warmers/get-settings family, per spec.md §4.5.
type indexScopedHandler struct {
	Permission string
	Suffix     string // appended to the rewritten path after the index segment
	Single     bool
}

func (h indexScopedHandler) Inspect(ctx *request.Context) (*request.Response, error) {
	requested, err := requestedFromCSV(ctx.PathParamOr("indices", ""))
	if err != nil {
		return nil, &requestErr{err}
	}
	fs, err := ctx.Client.CreateFilterString(h.Permission, requested, h.Single)
	if err != nil {
		return nil, err
	}
	ctx.Rewrite("/" + joinPatterns(fs) + h.Suffix)
	return nil, nil
}

// requestErr adapts a plain parse error into the apierror.HTTPError
// interface the dispatcher expects from every handler error.
type requestErr struct{ err error }

func (r *requestErr) Error() string   { return r.err.Error() }
func (r *requestErr) StatusCode() int { return 400 }
