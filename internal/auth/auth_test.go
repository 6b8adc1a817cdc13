package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/netways/esarmor/internal/config"
	"github.com/netways/esarmor/internal/database"
	"github.com/netways/esarmor/internal/role"
)

type fakeGroups struct {
	groups map[string][]string
}

func (f *fakeGroups) Groups(ctx context.Context, username string) ([]string, error) {
	return f.groups[username], nil
}

// fakeCredentialGroups additionally implements groupbackend.CredentialVerifier,
// standing in for an LDAP backend that both authenticates and resolves groups.
type fakeCredentialGroups struct {
	fakeGroups
	valid map[string]string
}

func (f *fakeCredentialGroups) Authenticate(ctx context.Context, username, password string) (bool, error) {
	return f.valid[username] == password, nil
}

type fakeRoles struct {
	calls  int
	byUser map[string][]role.Role
	def    *role.Role
}

func (f *fakeRoles) RoleMemberships(ctx context.Context, username string, groups []string) ([]role.Role, error) {
	f.calls++
	return f.byUser[username], nil
}

func (f *fakeRoles) DefaultRole(ctx context.Context) (*role.Role, error) {
	return f.def, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(httptest.NewRecorder().Body, nil))
}

func TestAuthenticateTrustsKnownAllowFromAddress(t *testing.T) {
	cfg := &config.Config{Proxy: config.ProxyConfig{AllowFrom: map[string][]int{"10.0.0.5": nil}}}
	a := NewAuthenticator(cfg, &fakeGroups{}, &fakeRoles{}, nil, discardLogger())

	c := &Client{Address: "10.0.0.5", Port: 4000}
	ok, err := a.Authenticate(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || !c.Authenticated {
		t.Fatal("expected a known allow_from address to authenticate")
	}
}

func TestAuthenticateRejectsUnknownAddressWithoutCredentials(t *testing.T) {
	cfg := &config.Config{Proxy: config.ProxyConfig{}}
	a := NewAuthenticator(cfg, &fakeGroups{}, &fakeRoles{}, nil, discardLogger())

	c := &Client{Address: "203.0.113.9", Port: 4000}
	ok, err := a.Authenticate(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected an unconfigured address to be denied")
	}
}

func TestAuthenticateRestrictsAllowFromToConfiguredPort(t *testing.T) {
	cfg := &config.Config{Proxy: config.ProxyConfig{AllowFrom: map[string][]int{"10.0.0.5": {9200}}}}
	a := NewAuthenticator(cfg, &fakeGroups{}, &fakeRoles{}, nil, discardLogger())

	c := &Client{Address: "10.0.0.5", Port: 4000}
	ok, _ := a.Authenticate(context.Background(), c)
	if ok {
		t.Fatal("expected a port outside the configured list to be denied")
	}
}

func TestAuthenticateWithCredentialBackendPopulatesGroupsAndRoles(t *testing.T) {
	roles := &fakeRoles{byUser: map[string][]role.Role{
		"alice": {{ID: "analysts", ClusterPermissions: role.NewPermissionSet("api/search/documents")}},
	}}
	groups := &fakeCredentialGroups{
		fakeGroups: fakeGroups{groups: map[string][]string{"alice": {"ops"}}},
		valid:      map[string]string{"alice": "secret"},
	}
	cfg := &config.Config{}
	a := NewAuthenticator(cfg, groups, roles, nil, discardLogger())

	c := &Client{Username: "alice", Password: "secret"}
	ok, err := a.Authenticate(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected valid credentials against the credential backend to authenticate")
	}
	if len(c.Groups) != 1 || c.Groups[0] != "ops" {
		t.Fatalf("expected groups to be populated, got %v", c.Groups)
	}
	if len(c.Roles) == 0 {
		t.Fatal("expected roles to be populated")
	}
}

func TestAuthenticateWithCredentialBackendRejectsBadPassword(t *testing.T) {
	groups := &fakeCredentialGroups{valid: map[string]string{"alice": "secret"}}
	cfg := &config.Config{}
	a := NewAuthenticator(cfg, groups, &fakeRoles{}, nil, discardLogger())

	c := &Client{Username: "alice", Password: "wrong"}
	ok, err := a.Authenticate(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a bad password to be rejected")
	}
}

func TestAuthenticateWithoutCredentialBackendUsesTrustedProxies(t *testing.T) {
	roles := &fakeRoles{byUser: map[string][]role.Role{"alice": {{ID: "analysts"}}}}
	cfg := &config.Config{Proxy: config.ProxyConfig{TrustedProxies: map[string][]int{"192.0.2.1": nil}}}
	a := NewAuthenticator(cfg, &fakeGroups{}, roles, nil, discardLogger())

	c := &Client{Username: "alice", Password: "secret", PeerAddress: "192.0.2.1"}
	ok, err := a.Authenticate(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the trusted peer address to authenticate")
	}
	if len(c.Roles) == 0 {
		t.Fatal("expected populate to run and assign roles")
	}
}

func TestAuthenticateWithoutCredentialBackendRejectsUntrustedPeer(t *testing.T) {
	cfg := &config.Config{}
	a := NewAuthenticator(cfg, &fakeGroups{}, &fakeRoles{}, nil, discardLogger())

	c := &Client{Username: "alice", Password: "secret", PeerAddress: "198.51.100.1"}
	ok, _ := a.Authenticate(context.Background(), c)
	if ok {
		t.Fatal("expected an untrusted peer address to be denied")
	}
}

func TestPopulateFallsBackToDefaultRoleWhenNoneMatch(t *testing.T) {
	def := role.Role{ID: "default"}
	roles := &fakeRoles{byUser: map[string][]role.Role{}, def: &def}
	cfg := &config.Config{}
	a := NewAuthenticator(cfg, &fakeGroups{}, roles, nil, discardLogger())

	c := &Client{Username: "nobody"}
	if err := a.Populate(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Roles) != 1 || c.Roles[0].ID != "default" {
		t.Fatalf("expected the default role to be assigned, got %+v", c.Roles)
	}
}

func TestResolveRolesPopulatesAndReadsTheCache(t *testing.T) {
	roles := &fakeRoles{byUser: map[string][]role.Role{
		"alice": {{ID: "analysts", ClusterPermissions: role.NewPermissionSet("api/search/documents")}},
	}}
	store := newMemStore()
	cfg := &config.Config{RoleBackend: config.RoleBackendConfig{CacheTTL: 1000000000}}
	a := NewAuthenticator(cfg, &fakeGroups{}, roles, store, discardLogger())

	c := &Client{Username: "alice"}
	first, err := a.resolveRoles(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 1 || roles.calls != 1 {
		t.Fatalf("expected a single live backend call, got %d calls", roles.calls)
	}

	second, err := a.resolveRoles(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roles.calls != 1 {
		t.Fatalf("expected the second lookup to be served from cache, backend called %d times", roles.calls)
	}
	if len(second) != 1 || second[0].ID != "analysts" {
		t.Fatalf("expected the cached role to round-trip, got %+v", second)
	}
}

func TestNewClientParsesBasicAuthHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetBasicAuth("alice", "secret")
	r.RemoteAddr = "10.0.0.9:51000"

	c := NewClient(r)
	if c.Username != "alice" || c.Password != "secret" {
		t.Fatalf("expected credentials to be parsed, got %+v", c)
	}
	if c.Address != "10.0.0.9" || c.Port != 51000 {
		t.Fatalf("expected address/port to be split from RemoteAddr, got %q:%d", c.Address, c.Port)
	}
}

// memStore is a minimal in-memory database.Store used only to exercise the
// role cache path without a real SQLite file.
type memStore struct {
	entries map[string]*database.CacheEntry
}

func newMemStore() *memStore { return &memStore{entries: map[string]*database.CacheEntry{}} }

func (m *memStore) GetCacheEntry(ctx context.Context, key string) (*database.CacheEntry, error) {
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (m *memStore) PutCacheEntry(ctx context.Context, entry *database.CacheEntry) error {
	m.entries[entry.Key] = entry
	return nil
}

func (m *memStore) EvictExpired(ctx context.Context) (int64, error) { return 0, nil }
func (m *memStore) Close() error                                    { return nil }
