// Package apierror defines the error kinds the core produces and the HTTP
// status they map to, per spec.md §7's Error Handling Design table.
package apierror

import "net/http"

// HTTPError is satisfied by every error kind the request-handling pipeline
// can surface to a client; the top-level handler type-switches on it to
// build the Elasticsearch-shaped JSON error body.
type HTTPError interface {
	error
	StatusCode() int
}

// ConfigError is a startup configuration failure: log critical, exit 2.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// AuthenticationError is returned for bad or missing credentials.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string   { return e.Message }
func (e *AuthenticationError) StatusCode() int { return http.StatusUnauthorized }

// PermissionError is returned when the authorization engine or a handler
// denies a request.
type PermissionError struct {
	Permission string
	Reason     string
}

func (e *PermissionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "not permitted: " + e.Permission
}

func (e *PermissionError) StatusCode() int { return http.StatusForbidden }

// RequestError is a malformed-input error: bad JSON, wrong shape, a scope
// mismatch between an explicit body scope and the request's own filters.
// Status defaults to 400 but can be overridden (e.g. upstream passthrough
// of a non-400 client error).
type RequestError struct {
	Message string
	Status  int
}

func (e *RequestError) Error() string { return e.Message }
func (e *RequestError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusBadRequest
	}
	return e.Status
}

// MultipleIncludesError is returned when a caller required a single
// surviving filter include but pruning left more than one - the caller
// must ask the client to choose among Candidates.
type MultipleIncludesError struct {
	Candidates []string
}

func (e *MultipleIncludesError) Error() string {
	return "multiple candidates remain; choose one explicitly"
}

func (e *MultipleIncludesError) StatusCode() int { return http.StatusBadRequest }

// UpstreamError wraps a failure talking to the configured Elasticsearch
// nodes: unreachable (502) or timed out (504).
type UpstreamError struct {
	Message string
	Timeout bool
}

func (e *UpstreamError) Error() string { return e.Message }
func (e *UpstreamError) StatusCode() int {
	if e.Timeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
