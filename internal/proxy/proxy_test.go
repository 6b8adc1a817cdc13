package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/netways/esarmor/internal/auth"
	"github.com/netways/esarmor/internal/config"
	"github.com/netways/esarmor/internal/request"
	"github.com/netways/esarmor/internal/upstream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, upstreamURL string, reg *request.Registry) *Handler {
	t.Helper()
	cfg := &config.Config{
		Proxy: config.ProxyConfig{
			AllowFrom: map[string][]int{"127.0.0.1": {}},
		},
	}
	authn := auth.NewAuthenticator(cfg, nil, nil, nil, discardLogger())
	pool := upstream.NewPool([]string{strings.TrimPrefix(upstreamURL, "http://")}, 0, discardLogger())
	if reg == nil {
		reg = request.NewRegistry()
	}
	reg.Build()
	return NewHandler(authn, reg, pool, discardLogger())
}

func TestServeHTTPForwardsUnmatchedEndpointsUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := newTestHandler(t, srv.URL, nil)

	req := httptest.NewRequest(http.MethodGet, "/someindex/_stats", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("expected upstream body to pass through, got %q", rec.Body.String())
	}
}

func TestServeHTTPDeniesUnknownClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should never be contacted for a denied client")
	}))
	defer srv.Close()

	h := newTestHandler(t, srv.URL, nil)

	req := httptest.NewRequest(http.MethodGet, "/_stats", nil)
	req.RemoteAddr = "10.0.0.9:12345"
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected a JSON error body: %v", err)
	}
	if _, ok := body["error"]; !ok {
		t.Fatalf("expected an 'error' field in the body, got %v", body)
	}
}

type denyAllHandler struct{}

func (denyAllHandler) Inspect(ctx *request.Context) (*request.Response, error) {
	return nil, &denyError{}
}

type denyError struct{}

func (denyError) Error() string   { return "denied by policy" }
func (denyError) StatusCode() int { return http.StatusForbidden }

func TestServeHTTPSurfacesHandlerDenial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should never be contacted when the handler denies")
	}))
	defer srv.Close()

	reg := request.NewRegistry()
	reg.Register(http.MethodDelete, "/{index}", 10, "delete_index", denyAllHandler{})

	h := newTestHandler(t, srv.URL, reg)

	req := httptest.NewRequest(http.MethodDelete, "/secret-index", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}
