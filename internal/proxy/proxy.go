// Package proxy implements the top-level HTTP handler: authenticate the
// client, dispatch the request to its handler (if the endpoint is
// recognized), forward the (possibly rewritten) request upstream, and
// splice any response-phase transform (e.g. multi-search error merging)
// before writing the result back to the caller.
package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/auth"
	"github.com/netways/esarmor/internal/metrics"
	"github.com/netways/esarmor/internal/request"
	"github.com/netways/esarmor/internal/request/handlers"
	"github.com/netways/esarmor/internal/upstream"

	"github.com/google/uuid"
)

// Handler is the authorizing reverse proxy's single HTTP entrypoint.
type Handler struct {
	authn    *auth.Authenticator
	registry *request.Registry
	upstream *upstream.Pool
	logger   *slog.Logger
}

// NewHandler builds the proxy handler over an already-built Registry (see
// handlers.RegisterRoutes) and a ready upstream.Pool.
func NewHandler(authn *auth.Authenticator, registry *request.Registry, pool *upstream.Pool, logger *slog.Logger) *Handler {
	return &Handler{authn: authn, registry: registry, upstream: pool, logger: logger}
}

// ServeHTTP authenticates, dispatches and forwards one request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := h.logger.With("request_id", requestID)

	client := auth.NewClient(r)
	ok, err := h.authn.Authenticate(r.Context(), client)
	if err != nil {
		logger.Error("authentication backend error", "error", err)
	}
	if !ok {
		metrics.AuthDenialsTotal.WithLabelValues(client.Name, "authentication").Inc()
		writeAPIError(w, auth.AuthenticationRequired("authentication failed"))
		h.logRequest(logger, client, r.Method, r.URL.Path, http.StatusUnauthorized, time.Since(start))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(w, &apierror.RequestError{Message: "failed to read request body"})
		return
	}

	ctx, matched := h.registry.Match(r.Method, r.URL.Path)
	path, query, outBody := r.URL.Path, r.URL.Query(), body

	if matched {
		ctx.Client = client
		ctx.Query = r.URL.Query()
		ctx.Body = body

		resp, err := ctx.Handler.Inspect(ctx)
		if err != nil {
			status := writeAPIError(w, err)
			metrics.AuthDenialsTotal.WithLabelValues(client.Name, permissionOf(err)).Inc()
			h.logRequest(logger, client, r.Method, r.URL.Path, status, time.Since(start))
			return
		}
		if resp != nil {
			h.writeLocalResponse(w, resp)
			h.logRequest(logger, client, r.Method, r.URL.Path, resp.Status, time.Since(start))
			return
		}

		path, query, outBody = ctx.Path, ctx.Query, ctx.Body
	}

	status, respBody, respHeader, err := h.upstream.ForwardBuffered(r.Context(), r.Method, path, query.Encode(), bytes.NewReader(outBody), r.Header)
	if err != nil {
		writeAPIError(w, err)
		h.logRequest(logger, client, r.Method, r.URL.Path, 0, time.Since(start))
		return
	}

	if matched {
		if failures, ok := ctx.Attachment.([]handlers.MultiSearchFailure); ok && len(failures) > 0 {
			spliced, err := handlers.SpliceMultiSearchErrors(respBody, failures)
			if err == nil {
				respBody = spliced
			} else {
				logger.Error("failed to splice multi-search errors", "error", err)
			}
		}
	}

	for key, vals := range respHeader {
		if key == "Content-Type" {
			for _, v := range vals {
				w.Header().Add(key, v)
			}
		}
	}
	w.WriteHeader(status)
	w.Write(respBody)

	h.logRequest(logger, client, r.Method, r.URL.Path, status, time.Since(start))
}

func (h *Handler) writeLocalResponse(w http.ResponseWriter, resp *request.Response) {
	for key, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

func (h *Handler) logRequest(logger *slog.Logger, c *auth.Client, method, path string, status int, dur time.Duration) {
	logger.Info("request",
		"username", c.Name,
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", dur.Milliseconds(),
	)
	metrics.RequestTotal.WithLabelValues(c.Name, path, method, statusLabel(status)).Inc()
	metrics.RequestDuration.WithLabelValues(c.Name, path, method, statusLabel(status)).Observe(dur.Seconds())
}

// writeAPIError renders any error into the Elasticsearch-shaped JSON error
// body spec.md §7 calls for, defaulting to 500 for an error that doesn't
// implement apierror.HTTPError.
func writeAPIError(w http.ResponseWriter, err error) int {
	status := http.StatusInternalServerError
	if httpErr, ok := err.(apierror.HTTPError); ok {
		status = httpErr.StatusCode()
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  err.Error(),
		"status": status,
	})
	return status
}

func permissionOf(err error) string {
	if pe, ok := err.(*apierror.PermissionError); ok && pe.Permission != "" {
		return pe.Permission
	}
	return "denied"
}

func statusLabel(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
