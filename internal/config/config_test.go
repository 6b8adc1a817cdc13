package config

import "testing"

func exampleLDAPConfig() LDAPConfig {
	return LDAPConfig{
		URL: "ldap://dc.example.com", BindDN: "cn=bind,dc=example,dc=com", RootDN: "dc=example,dc=com",
		UserBaseDN: "ou=users,dc=example,dc=com", GroupBaseDN: "ou=groups,dc=example,dc=com",
		UserObjectClass: "person", GroupObjectClass: "group",
		UserNameAttribute: "uid", GroupNameAttribute: "cn", GroupMembershipAttribute: "memberOf",
	}
}

func baseConfig() *Config {
	cfg := Defaults()
	return cfg
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := baseConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidateRequiresRoleBackendNodes(t *testing.T) {
	cfg := baseConfig()
	cfg.RoleBackend.Elasticsearch = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a ConfigError when role_backend.elasticsearch is empty")
	}
}

func TestValidateRejectsUnknownGroupBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.GroupBackend.Backend = "kerberos"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a ConfigError for an unrecognized group backend")
	}
}

func TestValidateLdapRequiresEveryField(t *testing.T) {
	cfg := baseConfig()
	cfg.GroupBackend.Backend = "ldap"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a ConfigError: ldap section left empty")
	}

	cfg.LDAP = exampleLDAPConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a fully populated ldap section to validate, got %v", err)
	}
}

func TestValidateSecuredRequiresKeyAndCert(t *testing.T) {
	cfg := baseConfig()
	cfg.Proxy.Secured = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a ConfigError: secured=true without private_key/certificate")
	}

	cfg.Proxy.PrivateKey = "/etc/esarmor/key.pem"
	cfg.Proxy.Certificate = "/etc/esarmor/cert.pem"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a fully populated TLS section to validate, got %v", err)
	}
}
