package groupbackend

import (
	"context"
	"testing"

	"github.com/netways/esarmor/internal/config"
)

func TestNoneBackendReturnsNoGroups(t *testing.T) {
	b, err := New("none", config.LDAPConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	groups, err := b.Groups(context.Background(), "jdoe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if groups != nil {
		t.Fatalf("expected no groups from the none backend, got %v", groups)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New("kerberos", config.LDAPConfig{}); err == nil {
		t.Fatal("expected an error for an unrecognized backend")
	}
}

func TestNewLDAPBuildsFromConfig(t *testing.T) {
	cfg := config.LDAPConfig{URL: "ldap://dc.example.com", BindDN: "cn=bind,dc=example,dc=com"}
	b, err := New("ldap", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.(*LDAP); !ok {
		t.Fatalf("expected an *LDAP backend, got %T", b)
	}
}

func TestLDAPImplementsCredentialVerifier(t *testing.T) {
	var _ CredentialVerifier = (*LDAP)(nil)
}
