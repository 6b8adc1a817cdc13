// Package upstream forwards authorized requests to one of the configured
// Elasticsearch nodes, generalizing internal/proxy's single-GitHub-upstream
// forwardRequest into a round-robin pool with background health probing.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/metrics"
)

// supportedVersionPrefix is the only Elasticsearch major.minor this proxy's
// request/response rewriting was built against (SUPPORTED_ELASTICSEARCH_VERSIONS
// in the original source). A node running anything else still gets forwarded
// to - it's a logged warning, not a hard failure, exactly as upstream.
const supportedVersionPrefix = "1.7"

// node tracks one configured Elasticsearch endpoint and its last health
// probe result.
type node struct {
	base    string
	healthy atomic.Bool
}

// Pool round-robins requests across a set of Elasticsearch nodes and probes
// each one periodically on a background goroutine.
type Pool struct {
	nodes  []*node
	next   atomic.Uint64
	client *http.Client
	logger *slog.Logger

	probeOnce sync.Once
	stop      chan struct{}
}

// NewPool builds a Pool over the given "host:port" node addresses.
func NewPool(nodeAddrs []string, timeout time.Duration, logger *slog.Logger) *Pool {
	nodes := make([]*node, len(nodeAddrs))
	for i, addr := range nodeAddrs {
		n := &node{base: normalizeBase(addr)}
		n.healthy.Store(true)
		nodes[i] = n
	}
	return &Pool{
		nodes:  nodes,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		stop:   make(chan struct{}),
	}
}

func normalizeBase(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + addr
}

// StartHealthProbe launches the background goroutine that periodically GETs
// "/" on every node, marking it healthy/unhealthy and logging a warning when
// its reported version isn't a supportedVersionPrefix build.
func (p *Pool) StartHealthProbe(interval time.Duration) {
	p.probeOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			p.probeAll()
			for {
				select {
				case <-ticker.C:
					p.probeAll()
				case <-p.stop:
					return
				}
			}
		}()
	})
}

// Stop ends the background health probe goroutine.
func (p *Pool) Stop() { close(p.stop) }

type clusterInfo struct {
	Version struct {
		Number string `json:"number"`
	} `json:"version"`
}

func (p *Pool) probeAll() {
	for _, n := range p.nodes {
		ok := p.probeOne(n)
		n.healthy.Store(ok)
		metrics.UpstreamNodeHealthy.WithLabelValues(n.base).Set(boolToFloat(ok))
	}
}

func (p *Pool) probeOne(n *node) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.base+"/", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("upstream health probe failed", "node", n.base, "error", err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return false
	}

	var info clusterInfo
	if json.Unmarshal(body, &info) == nil && info.Version.Number != "" {
		if !strings.HasPrefix(info.Version.Number, supportedVersionPrefix) {
			p.logger.Warn("upstream node reports an unsupported elasticsearch version",
				"node", n.base, "version", info.Version.Number, "supported", supportedVersionPrefix)
		}
	}
	return true
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// pick returns the next node to try, preferring a healthy one but falling
// back to round-robin over everything if none are currently healthy.
func (p *Pool) pick() *node {
	if len(p.nodes) == 0 {
		return nil
	}
	n := len(p.nodes)
	start := int(p.next.Add(1))
	for i := 0; i < n; i++ {
		cand := p.nodes[(start+i)%n]
		if cand.healthy.Load() {
			return cand
		}
	}
	return p.nodes[start%n]
}

// Forward issues method/path/query/body against the next chosen node and
// copies its response into w, returning the upstream status code. Headers
// are allowlisted the same way proxy.go's forwardRequest does: only the
// handful of headers that matter for an Elasticsearch response are copied
// through, everything else is dropped.
func (p *Pool) Forward(ctx context.Context, w http.ResponseWriter, method, path, rawQuery string, body io.Reader, headers http.Header) (int, error) {
	n := p.pick()
	if n == nil {
		return 0, &apierror.UpstreamError{Message: "no upstream elasticsearch nodes configured"}
	}

	target := n.base + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, &apierror.UpstreamError{Message: fmt.Sprintf("building upstream request: %v", err)}
	}
	for _, key := range []string{"Content-Type", "Accept"} {
		if v := headers.Get(key); v != "" {
			req.Header.Set(key, v)
		}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	dur := time.Since(start)
	if err != nil {
		n.healthy.Store(false)
		metrics.UpstreamDuration.WithLabelValues(n.base, "error").Observe(dur.Seconds())
		if ctx.Err() == context.DeadlineExceeded {
			return 0, &apierror.UpstreamError{Message: err.Error(), Timeout: true}
		}
		return 0, &apierror.UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	metrics.UpstreamDuration.WithLabelValues(n.base, fmt.Sprint(resp.StatusCode)).Observe(dur.Seconds())

	for key, vals := range resp.Header {
		if key == "Content-Type" || key == "Content-Length" {
			for _, v := range vals {
				w.Header().Add(key, v)
			}
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)

	return resp.StatusCode, nil
}

// ForwardBuffered is like Forward, but returns the upstream body instead of
// streaming it to a ResponseWriter - used by proxy.Handler for every
// forwarded request, so multi-search failures can be spliced into the body
// before it reaches the client.
func (p *Pool) ForwardBuffered(ctx context.Context, method, path, rawQuery string, body io.Reader, headers http.Header) (status int, respBody []byte, respHeader http.Header, err error) {
	n := p.pick()
	if n == nil {
		return 0, nil, nil, &apierror.UpstreamError{Message: "no upstream elasticsearch nodes configured"}
	}

	target := n.base + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, nil, &apierror.UpstreamError{Message: fmt.Sprintf("building upstream request: %v", err)}
	}
	for _, key := range []string{"Content-Type", "Accept"} {
		if v := headers.Get(key); v != "" {
			req.Header.Set(key, v)
		}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	dur := time.Since(start)
	if err != nil {
		n.healthy.Store(false)
		metrics.UpstreamDuration.WithLabelValues(n.base, "error").Observe(dur.Seconds())
		if ctx.Err() == context.DeadlineExceeded {
			return 0, nil, nil, &apierror.UpstreamError{Message: err.Error(), Timeout: true}
		}
		return 0, nil, nil, &apierror.UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	metrics.UpstreamDuration.WithLabelValues(n.base, fmt.Sprint(resp.StatusCode)).Observe(dur.Seconds())

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &apierror.UpstreamError{Message: fmt.Sprintf("reading upstream response: %v", err)}
	}
	return resp.StatusCode, data, resp.Header, nil
}
