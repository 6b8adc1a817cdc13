// Package auth implements the per-request Client, its authorization
// engine (the collect-filters algorithm), and the Authenticator that turns
// connection metadata and a Basic Auth header into a populated Client -
// the Go analogue of elasticarmor's auth.Auth.authenticate/populate.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/config"
	"github.com/netways/esarmor/internal/database"
	"github.com/netways/esarmor/internal/groupbackend"
	"github.com/netways/esarmor/internal/role"
	"github.com/netways/esarmor/internal/rolebackend"
)

// Authenticator decides whether a Client is who it claims to be and, if so,
// populates its group and role memberships. It mirrors elasticarmor's Auth
// class: allow_from/trusted_proxies IP trust for credential-free access,
// an optional credential backend (LDAP bind-as-user) for Basic Auth, and
// the role backend lookup behind a local cache.
type Authenticator struct {
	proxy       config.ProxyConfig
	groups      groupbackend.Backend
	credentials groupbackend.CredentialVerifier // nil when group_backend.backend=none
	roles       rolebackend.Backend
	cache       database.Store
	cacheTTL    time.Duration
	logger      *slog.Logger
}

// NewAuthenticator wires the configured backends into an Authenticator.
// cache may be nil, disabling the role cache fallback entirely.
func NewAuthenticator(cfg *config.Config, groups groupbackend.Backend, roles rolebackend.Backend, cache database.Store, logger *slog.Logger) *Authenticator {
	a := &Authenticator{
		proxy:    cfg.Proxy,
		groups:   groups,
		roles:    roles,
		cache:    cache,
		cacheTTL: cfg.RoleBackend.CacheTTL,
		logger:   logger,
	}
	if v, ok := groups.(groupbackend.CredentialVerifier); ok {
		a.credentials = v
	}
	return a
}

// NewClient builds an unauthenticated Client from connection metadata,
// parsing a Basic Auth header if one was supplied.
func NewClient(r *http.Request) *Client {
	c := &Client{}

	host, port := splitHostPort(r.RemoteAddr)
	c.Address, c.Port = host, port
	c.PeerAddress, c.PeerPort = host, port
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		c.Address = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	if username, password, ok := parseBasicAuth(r); ok {
		c.Username, c.Password = username, password
	}
	return c
}

// Authenticate decides whether c is who it claims to be, then populates its
// groups and roles on success - mirroring Auth.authenticate(client, populate=True).
func (a *Authenticator) Authenticate(ctx context.Context, c *Client) (bool, error) {
	if c.Username == "" || c.Password == "" {
		ports, known := a.proxy.AllowFrom[c.Address]
		if !known || (len(ports) > 0 && !containsPort(ports, c.Port)) {
			return false, nil
		}
		c.Name = c.Address
		c.Authenticated = true
	} else {
		c.Name = c.Username
		if a.credentials != nil {
			ok, err := a.credentials.Authenticate(ctx, c.Username, c.Password)
			if err != nil {
				a.logger.Error("credential backend failed", "username", c.Username, "error", err)
			} else {
				c.Authenticated = ok
			}
		} else {
			ports, known := a.proxy.TrustedProxies[c.PeerAddress]
			c.Authenticated = known && (len(ports) == 0 || containsPort(ports, c.PeerPort))
		}
	}

	if c.Authenticated {
		if err := a.Populate(ctx, c); err != nil {
			return true, err
		}
	}
	return c.Authenticated, nil
}

// Populate resolves c's group memberships and role memberships, applying
// the synthetic sysconfig role and configuration-index hiding - the Go
// analogue of Auth.populate + Auth._apply_system_defaults.
func (a *Authenticator) Populate(ctx context.Context, c *Client) error {
	if a.groups != nil && c.Username != "" {
		groups, err := a.groups.Groups(ctx, c.Username)
		if err != nil {
			a.logger.Error("fetching group memberships failed", "username", c.Username, "error", err)
		} else {
			c.Groups = groups
		}
	}

	roles, err := a.resolveRoles(ctx, c)
	if err != nil {
		a.logger.Error("fetching role memberships failed", "client", c.Name, "error", err)
		return err
	}
	if len(roles) == 0 && a.roles != nil {
		def, err := a.roles.DefaultRole(ctx)
		if err != nil {
			a.logger.Error("fetching default role failed", "client", c.Name, "error", err)
		} else if def != nil {
			roles = []role.Role{*def}
		}
	}

	grantsConfig := false
	for _, r := range roles {
		if r.ClusterPermissions.Has(role.ConfigPermission) {
			grantsConfig = true
			break
		}
	}
	c.Roles = role.InjectSystemDefaults(roles, grantsConfig)
	return nil
}

// resolveRoles checks the local cache before falling through to the live
// role backend, repopulating the cache on a miss. A cache read returns a
// frozen snapshot decoded fresh from its JSON column - never a pointer
// into a live backend response - so cached roles can never be mutated by
// a later request.
func (a *Authenticator) resolveRoles(ctx context.Context, c *Client) ([]role.Role, error) {
	key := cacheKey(c.Username, c.Groups)

	if a.cache != nil && key != "" {
		entry, err := a.cache.GetCacheEntry(ctx, key)
		if err != nil {
			a.logger.Error("role cache read failed", "key", key, "error", err)
		} else if entry != nil {
			roles, err := rolebackend.UnmarshalRoles(entry.RolesJSON)
			if err != nil {
				a.logger.Error("role cache entry corrupt", "key", key, "error", err)
			} else {
				return roles, nil
			}
		}
	}

	if a.roles == nil {
		return nil, nil
	}
	roles, err := a.roles.RoleMemberships(ctx, c.Username, c.Groups)
	if err != nil {
		return nil, fmt.Errorf("querying role backend: %w", err)
	}

	if a.cache != nil && key != "" && a.cacheTTL > 0 {
		text, err := rolebackend.MarshalRoles(roles)
		if err != nil {
			a.logger.Error("role cache encode failed", "key", key, "error", err)
		} else {
			entry := &database.CacheEntry{Key: key, RolesJSON: text, ExpiresAt: time.Now().Add(a.cacheTTL)}
			if err := a.cache.PutCacheEntry(ctx, entry); err != nil {
				a.logger.Error("role cache write failed", "key", key, "error", err)
			}
		}
	}

	return roles, nil
}

// cacheKey joins username and a sorted, deduplicated group list into the
// role cache's lookup key (spec: "keyed by (username ∪ groups)").
func cacheKey(username string, groups []string) string {
	if username == "" {
		return ""
	}
	sorted := append([]string{}, groups...)
	sort.Strings(sorted)
	return username + "|" + strings.Join(sorted, ",")
}

func containsPort(ports []int, port int) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

func parseBasicAuth(r *http.Request) (username, password string, ok bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// AuthenticationRequired builds the uniform 401 error returned when
// Authenticate reports a client is not who it claims to be.
func AuthenticationRequired(reason string) *apierror.AuthenticationError {
	return &apierror.AuthenticationError{Message: reason}
}
