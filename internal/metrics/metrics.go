// Package metrics exposes a Prometheus /metrics endpoint on a separate port.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "esarmor_request_duration_seconds",
		Help:    "Duration of requests handled by the proxy, including upstream round-trip.",
		Buckets: prometheus.DefBuckets,
	}, []string{"username", "endpoint", "method", "status"})

	RequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esarmor_requests_total",
		Help: "Total number of requests handled by the proxy.",
	}, []string{"username", "endpoint", "method", "status"})

	AuthDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esarmor_auth_denials_total",
		Help: "Total number of requests denied by the authorization engine.",
	}, []string{"username", "permission"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "esarmor_upstream_duration_seconds",
		Help:    "Duration of the round-trip to an upstream Elasticsearch node.",
		Buckets: prometheus.DefBuckets,
	}, []string{"node", "status"})

	UpstreamNodeHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "esarmor_upstream_node_healthy",
		Help: "Whether the upstream node last passed its health probe (1) or not (0).",
	}, []string{"node"})

	RoleCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esarmor_role_cache_hits_total",
		Help: "Total number of role lookups served from cache versus the backend.",
	}, []string{"result"})
)

// Serve starts the Prometheus metrics server on the given address.
func Serve(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("metrics server starting", "listen", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}
