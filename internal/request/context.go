package request

import (
	"net/url"

	"github.com/netways/esarmor/internal/auth"
)

// Context is handed to a Handler's Inspect method. It carries the matched
// path parameters, the client, and the mutable path/query/body a handler
// rewrites in place before the (possibly modified) request is forwarded
// upstream.
type Context struct {
	Handler Handler
	Name    string
	Method  string

	Client *auth.Client

	Path  string
	Query url.Values
	Body  []byte

	// Attachment lets a handler stash state computed during Inspect for a
	// later response-transform phase to read back (e.g. MultiSearch's
	// per-sub-request failure list, used to splice synthetic errors into
	// the upstream response body).
	Attachment interface{}

	params map[string]string
}

// PathParam returns the named path segment and whether it was present -
// the typed replacement for the source's attribute-access-with-fallback.
func (c *Context) PathParam(name string) (string, bool) {
	v, ok := c.params[name]
	return v, ok
}

// PathParamOr returns the named path segment, or def when absent.
func (c *Context) PathParamOr(name, def string) string {
	if v, ok := c.params[name]; ok {
		return v
	}
	return def
}

// Rewrite replaces the outgoing path, e.g. after narrowing an index/type
// filter.
func (c *Context) Rewrite(path string) {
	c.Path = path
}
