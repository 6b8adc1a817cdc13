// Package config handles server configuration from an INI file, with
// environment variable overrides, following spec.md §6's section layout
// (proxy, logging, group_backend, role_backend, ldap).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/netways/esarmor/internal/apierror"
	"github.com/netways/esarmor/internal/crypto"

	"github.com/knadh/koanf/parsers/ini"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the complete server configuration, built by Load and handed to
// server.New as a *Config - never a package-level global (Design Notes §9).
type Config struct {
	Proxy        ProxyConfig        `koanf:"proxy"`
	Logging      LoggingConfig      `koanf:"logging"`
	RoleBackend  RoleBackendConfig  `koanf:"role_backend"`
	GroupBackend GroupBackendConfig `koanf:"group_backend"`
	LDAP         LDAPConfig         `koanf:"ldap"`
	Metrics      MetricsConfig      `koanf:"metrics"`

	EncryptionKey string `koanf:"encryption_key"`
}

// ProxyConfig configures the listener and the upstream Elasticsearch nodes.
//
// AllowFrom and TrustedProxies mirror settings.py's allow_from/
// trusted_proxies dictionaries: a client address maps to the list of ports
// it is trusted on. An address absent from the map is never trusted; an
// address present with an empty port list is trusted on any port. AllowFrom
// governs credential-free requests (no Basic Auth header); TrustedProxies
// governs the no-auth-backend-configured case, where the peer address
// (the last hop, e.g. a load balancer) is trusted instead of the client.
type ProxyConfig struct {
	Address       string        `koanf:"address"`
	Port          int           `koanf:"port"`
	Secured       bool          `koanf:"secured"`
	PrivateKey    string        `koanf:"private_key"`
	Certificate   string        `koanf:"certificate"`
	Elasticsearch []string      `koanf:"elasticsearch"`
	Timeout       time.Duration `koanf:"timeout"`
	HealthCheck   time.Duration `koanf:"health_check"`

	AllowFrom      map[string][]int `koanf:"allow_from"`
	TrustedProxies map[string][]int `koanf:"trusted_proxies"`

	SystemdSocketActivation bool `koanf:"systemd_socket_activation"`
}

// LoggingConfig selects the log handler (file or syslog) and level.
type LoggingConfig struct {
	Type        string `koanf:"log"`
	File        string `koanf:"file"`
	Application string `koanf:"application"`
	Facility    string `koanf:"facility"`
	Level       string `koanf:"level"`
}

// RoleBackendConfig points at the `.elasticarmor` role index and the local
// SQLite cache that fronts it (CacheDSN empty disables the cache entirely -
// every request resolves roles straight from Elasticsearch).
type RoleBackendConfig struct {
	Elasticsearch []string      `koanf:"elasticsearch"`
	Index         string        `koanf:"index"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	CacheDSN      string        `koanf:"cache_dsn"`
}

// GroupBackendConfig selects none/ldap/msldap group resolution.
type GroupBackendConfig struct {
	Backend string `koanf:"backend"`
}

// LDAPConfig carries the bind and search parameters for the LDAP group
// backend. Every field here except BindPW is mandatory when GroupBackend.Backend is
// "ldap" or "msldap" - enforced by Validate, the Go analogue of the Python
// source's _get_or_exit.
type LDAPConfig struct {
	URL                      string `koanf:"url"`
	BindDN                   string `koanf:"bind_dn"`
	BindPW                   string `koanf:"bind_pw"`
	RootDN                   string `koanf:"root_dn"`
	UserBaseDN               string `koanf:"user_base_dn"`
	GroupBaseDN              string `koanf:"group_base_dn"`
	UserObjectClass          string `koanf:"user_object_class"`
	GroupObjectClass         string `koanf:"group_object_class"`
	UserNameAttribute        string `koanf:"user_name_attribute"`
	GroupNameAttribute       string `koanf:"group_name_attribute"`
	GroupMembershipAttribute string `koanf:"group_membership_attribute"`
}

// MetricsConfig exposes the Prometheus endpoint, carried forward from the
// teacher unchanged.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

// Defaults mirrors settings.py's default_configuration dict.
func Defaults() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Address:       "localhost",
			Port:          59200,
			Secured:       false,
			Elasticsearch: []string{"localhost:9200"},
			Timeout:       10 * time.Second,
			HealthCheck:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Type:  "syslog",
			Level: "error",
		},
		RoleBackend: RoleBackendConfig{
			Elasticsearch: []string{"localhost:9200"},
			Index:         ".elasticarmor",
			CacheTTL:      5 * time.Minute,
			CacheDSN:      "/var/lib/esarmor/cache.db",
		},
		GroupBackend: GroupBackendConfig{
			Backend: "none",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9090",
		},
	}
}

// Load reads configuration from an INI file and applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Defaults()

	if path != "" {
		if err := k.Load(file.Provider(path), ini.Parser()); err != nil {
			return nil, &apierror.ConfigError{Message: fmt.Sprintf("loading config file %s: %v", path, err)}
		}
	}

	// ESARMOR_PROXY_PORT -> proxy.port, ESARMOR_LDAP_BIND_DN -> ldap.bind_dn,
	// ESARMOR_ROLE_BACKEND_CACHE_TTL -> role_backend.cache_ttl. A known
	// section name (which may itself contain an underscore) is matched as a
	// prefix; the underscores after it are preserved literally.
	if err := k.Load(env.Provider("ESARMOR_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "ESARMOR_")
		s = strings.ToLower(s)
		for _, section := range []string{"proxy", "logging", "role_backend", "group_backend", "ldap", "metrics"} {
			if strings.HasPrefix(s, section+"_") {
				return section + "." + strings.TrimPrefix(s, section+"_")
			}
		}
		return s
	}), nil); err != nil {
		return nil, &apierror.ConfigError{Message: fmt.Sprintf("loading env vars: %v", err)}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, &apierror.ConfigError{Message: fmt.Sprintf("unmarshaling config: %v", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.decryptSecrets(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// secretPrefix marks an encrypted-at-rest config value, e.g. ldap.bind_pw
// written by `esarmor config encrypt-secret`.
const secretPrefix = "enc:"

// decryptSecrets replaces any "enc:"-prefixed value with its plaintext,
// using EncryptionKey. A config carrying no encrypted values never needs
// EncryptionKey set at all.
func (c *Config) decryptSecrets() error {
	if !strings.HasPrefix(c.LDAP.BindPW, secretPrefix) {
		return nil
	}
	if c.EncryptionKey == "" {
		return &apierror.ConfigError{Message: "ldap.bind_pw is encrypted but encryption_key is not configured"}
	}
	enc, err := crypto.NewEncryptor(c.EncryptionKey)
	if err != nil {
		return &apierror.ConfigError{Message: fmt.Sprintf("invalid encryption_key: %v", err)}
	}
	plain, err := enc.Decrypt(strings.TrimPrefix(c.LDAP.BindPW, secretPrefix))
	if err != nil {
		return &apierror.ConfigError{Message: fmt.Sprintf("decrypting ldap.bind_pw: %v", err)}
	}
	c.LDAP.BindPW = plain
	return nil
}

// Validate enforces every cross-field invariant the Python source checked
// at startup via _get_or_exit: the LDAP section is mandatory exactly when
// group_backend selects it, and the role backend always needs at least one
// Elasticsearch node.
func (c *Config) Validate() error {
	if len(c.RoleBackend.Elasticsearch) == 0 {
		return &apierror.ConfigError{Message: "role_backend.elasticsearch must name at least one node"}
	}
	if len(c.Proxy.Elasticsearch) == 0 {
		return &apierror.ConfigError{Message: "proxy.elasticsearch must name at least one node"}
	}

	switch c.GroupBackend.Backend {
	case "none":
	case "ldap", "msldap":
		missing := map[string]string{
			"url": c.LDAP.URL, "bind_dn": c.LDAP.BindDN, "root_dn": c.LDAP.RootDN,
			"user_base_dn": c.LDAP.UserBaseDN, "group_base_dn": c.LDAP.GroupBaseDN,
			"user_object_class": c.LDAP.UserObjectClass, "group_object_class": c.LDAP.GroupObjectClass,
			"user_name_attribute": c.LDAP.UserNameAttribute, "group_name_attribute": c.LDAP.GroupNameAttribute,
			"group_membership_attribute": c.LDAP.GroupMembershipAttribute,
		}
		for field, val := range missing {
			if val == "" {
				return &apierror.ConfigError{Message: fmt.Sprintf("ldap.%s is required when group_backend.backend=%s", field, c.GroupBackend.Backend)}
			}
		}
	default:
		return &apierror.ConfigError{Message: "group_backend.backend must be one of none, ldap, msldap"}
	}

	if c.Proxy.Secured && (c.Proxy.PrivateKey == "" || c.Proxy.Certificate == "") {
		return &apierror.ConfigError{Message: "proxy.private_key and proxy.certificate are required when proxy.secured=true"}
	}

	return nil
}
