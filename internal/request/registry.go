// Package request implements the endpoint registry and dispatch table:
// matching an incoming method+path to the handler responsible for it, with
// named path segments the handler can read back out. Handler order is
// decided by explicit integer priorities rather than the name-based
// `before` constraints of the source implementation (names-as-strings are a
// refactor hazard).
package request

import (
	"net/http"
	"regexp"
	"strings"
)

// Handler is implemented by every endpoint handler. Inspect is given the
// matched Context and either returns nil (forward the - possibly now
// rewritten - request upstream) or a *Response that short-circuits the
// upstream call entirely.
type Handler interface {
	Inspect(ctx *Context) (*Response, error)
}

// Response is returned by a Handler to answer a request locally, without
// forwarding it upstream.
type Response struct {
	Status int
	Body   []byte
	Header http.Header
}

// registration is one (method, pattern) -> handler binding.
type registration struct {
	method   string
	pattern  *compiledPattern
	handler  Handler
	priority int
	name     string
}

// Registry is the dispatch table: built once at startup, consulted once per
// request.
type Registry struct {
	regs []registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register binds a handler to method and a URL pattern containing named
// segments like "{index}" (one path component, no '/') or "{indices}" /
// "{documents}" (still one component - multiple comma-separated names are a
// body-parser concern, not a path-matching one). Handlers that could match
// the same request are tried in ascending priority order; lower runs
// first. name is only reported back as the matched Context's Name, never
// used for ordering; duplicate registrations are not detected.
func (r *Registry) Register(method, pattern string, priority int, name string, h Handler) {
	r.regs = append(r.regs, registration{
		method:   method,
		pattern:  compilePattern(pattern),
		handler:  h,
		priority: priority,
		name:     name,
	})
}

// Build sorts the dispatch table by priority. Call once after every
// Register call, before serving traffic.
func (r *Registry) Build() {
	// Stable insertion-order sort by priority: equal-priority regs keep
	// registration order, which is deterministic and easy to reason about
	// in tests.
	for i := 1; i < len(r.regs); i++ {
		for j := i; j > 0 && r.regs[j].priority < r.regs[j-1].priority; j-- {
			r.regs[j], r.regs[j-1] = r.regs[j-1], r.regs[j]
		}
	}
}

// Match finds the first handler whose method and pattern match, and returns
// a Context carrying the extracted path parameters. ok is false when no
// handler recognizes the endpoint at all (spec: forwarding an unrecognized
// endpoint untouched is a policy decision left to the proxy, not the
// registry).
func (r *Registry) Match(method, path string) (*Context, bool) {
	for _, reg := range r.regs {
		if reg.method != "" && reg.method != method {
			continue
		}
		if params, ok := reg.pattern.match(path); ok {
			return &Context{
				Handler: reg.handler,
				Name:    reg.name,
				Method:  method,
				Path:    path,
				params:  params,
			}, true
		}
	}
	return nil, false
}

// compiledPattern matches a path against a pattern with named single-
// segment placeholders.
type compiledPattern struct {
	source string
	re     *regexp.Regexp
	names  []string
}

var segmentRe = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

func compilePattern(pattern string) *compiledPattern {
	var names []string
	regexSrc := segmentRe.ReplaceAllStringFunc(pattern, func(seg string) string {
		name := seg[1 : len(seg)-1]
		names = append(names, name)
		return "([^/]+)"
	})
	return &compiledPattern{
		source: pattern,
		re:     regexp.MustCompile("^" + regexSrc + "$"),
		names:  names,
	}
}

func (p *compiledPattern) match(path string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(p.names))
	for i, name := range p.names {
		params[name] = m[i+1]
	}
	return params, true
}

// SplitCSV splits a path segment such as "logs-2016,logs-2017" into its
// comma-separated names - used by handlers for segments like {indices} or
// {documents} that pack multiple logical names into one path component.
func SplitCSV(segment string) []string {
	if segment == "" {
		return nil
	}
	parts := strings.Split(segment, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
