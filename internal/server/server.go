package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/netways/esarmor/internal/auth"
	"github.com/netways/esarmor/internal/config"
	"github.com/netways/esarmor/internal/database"
	"github.com/netways/esarmor/internal/groupbackend"
	"github.com/netways/esarmor/internal/metrics"
	"github.com/netways/esarmor/internal/proxy"
	"github.com/netways/esarmor/internal/request"
	"github.com/netways/esarmor/internal/request/handlers"
	"github.com/netways/esarmor/internal/rolebackend"
	"github.com/netways/esarmor/internal/upstream"
)

// Server is the main esarmor server: it owns nothing but its configuration
// and logger until Run wires every backend together.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a new Server.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Run wires every backend, builds the dispatch registry, and serves until
// ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	var cache database.Store
	if s.cfg.RoleBackend.CacheDSN != "" {
		store, err := database.Open(s.cfg.RoleBackend.CacheDSN)
		if err != nil {
			return fmt.Errorf("opening role cache: %w", err)
		}
		defer store.Close()

		migrator := database.NewMigrator(store)
		pending, err := migrator.PendingMigrations(ctx)
		if err != nil {
			s.logger.Warn("could not check role cache migrations", "error", err)
		} else if len(pending) > 0 {
			return fmt.Errorf("role cache has %d pending migration(s): run 'esarmor migrate' first", len(pending))
		}
		cache = store
	} else {
		s.logger.Warn("role_backend.cache_dsn not set, every request resolves roles live")
	}

	groups, err := groupbackend.New(s.cfg.GroupBackend.Backend, s.cfg.LDAP)
	if err != nil {
		return fmt.Errorf("building group backend: %w", err)
	}

	roles, err := rolebackend.New(s.cfg.RoleBackend.Elasticsearch, s.cfg.RoleBackend.Index)
	if err != nil {
		return fmt.Errorf("building role backend: %w", err)
	}

	authn := auth.NewAuthenticator(s.cfg, groups, roles, cache, s.logger)

	reg := request.NewRegistry()
	handlers.RegisterRoutes(reg)
	reg.Build()

	pool := upstream.NewPool(s.cfg.Proxy.Elasticsearch, s.cfg.Proxy.Timeout, s.logger)
	pool.StartHealthProbe(s.cfg.Proxy.HealthCheck)
	defer pool.Stop()

	proxyHandler := proxy.NewHandler(authn, reg, pool, s.logger)

	mux := http.NewServeMux()
	mux.Handle("/", proxyHandler)

	ln, err := s.createListener()
	if err != nil {
		return fmt.Errorf("creating listener: %w", err)
	}

	httpServer := &http.Server{Handler: mux}

	if s.cfg.Metrics.Enabled {
		go metrics.Serve(s.cfg.Metrics.Listen, s.logger)
	}

	shutdownCtx, cancel := signal.NotifyContext(ctx, shutdownSignals()...)
	defer cancel()

	go func() {
		<-shutdownCtx.Done()
		s.logger.Info("server_shutdown", "msg", "shutting down")
		httpServer.Shutdown(context.Background())
	}()

	setupPlatformSignals(s.logger)

	s.logger.Info("server_ready", "address", s.cfg.Proxy.Address, "port", s.cfg.Proxy.Port, "msg", "ready to accept connections")

	notifySystemd("READY=1")

	if err := httpServer.Serve(ln); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	notifySystemd("STOPPING=1")
	return nil
}

func (s *Server) createListener() (net.Listener, error) {
	addr := s.cfg.Proxy.Address

	if s.cfg.Proxy.SystemdSocketActivation {
		if fds := os.Getenv("LISTEN_FDS"); fds == "1" {
			f := os.NewFile(3, "systemd-socket")
			return net.FileListener(f)
		}
		s.logger.Warn("systemd socket activation configured but LISTEN_FDS not set, falling back to configured address")
	}

	if strings.HasPrefix(addr, "unix://") {
		sockPath := strings.TrimPrefix(addr, "unix://")
		os.Remove(sockPath)
		return net.Listen("unix", sockPath)
	}

	return net.Listen("tcp", fmt.Sprintf("%s:%d", addr, s.cfg.Proxy.Port))
}

func notifySystemd(state string) {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return
	}
	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write([]byte(state))
}
