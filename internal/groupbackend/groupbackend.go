// Package groupbackend resolves the group memberships of an authenticated
// username, backing spec.md's group_backend=none|ldap|msldap setting. No
// example repo in the pack imports an LDAP client, so this is grounded
// directly on the config surface settings.py's LdapUsergroupBackend exposes
// (bind_dn/root_dn/user_base_dn/group_base_dn/object-class/attribute names),
// wired to the ecosystem's de facto pure-Go LDAP client.
package groupbackend

import (
	"context"
	"fmt"

	"github.com/netways/esarmor/internal/config"

	"github.com/go-ldap/ldap/v3"
)

// Backend resolves the groups a username belongs to.
type Backend interface {
	Groups(ctx context.Context, username string) ([]string, error)
}

// CredentialVerifier checks a username/password pair, implemented by
// backends capable of authenticating a client in addition to resolving its
// group memberships (the Python source's auth_backends concern, folded
// into the same backend as group resolution here since LDAP is the only
// non-trivial backend either one needs).
type CredentialVerifier interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

// None is used when group_backend.backend is "none": every client has no
// group memberships, and role lookups rely on username alone.
type None struct{}

func (None) Groups(ctx context.Context, username string) ([]string, error) { return nil, nil }

// LDAP resolves group memberships via a DN search, mirroring
// LdapUsergroupBackend: bind once with the configured service account, look
// up the user's DN under user_base_dn, then search group_base_dn for groups
// whose membership attribute names that DN.
type LDAP struct {
	cfg config.LDAPConfig
}

// NewLDAP builds an LDAP-backed Backend from the loaded configuration.
func NewLDAP(cfg config.LDAPConfig) *LDAP {
	return &LDAP{cfg: cfg}
}

func (b *LDAP) dial(ctx context.Context) (*ldap.Conn, error) {
	conn, err := ldap.DialURL(b.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing ldap server %s: %w", b.cfg.URL, err)
	}
	if err := conn.Bind(b.cfg.BindDN, b.cfg.BindPW); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binding as %s: %w", b.cfg.BindDN, err)
	}
	return conn, nil
}

// Groups returns the CNs of every group in group_base_dn whose membership
// attribute contains the user's DN.
func (b *LDAP) Groups(ctx context.Context, username string) ([]string, error) {
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	userDN, err := b.lookupUserDN(conn, username)
	if err != nil {
		return nil, err
	}
	if userDN == "" {
		return nil, nil
	}

	filter := fmt.Sprintf("(&(objectClass=%s)(%s=%s))",
		ldap.EscapeFilter(b.cfg.GroupObjectClass),
		ldap.EscapeFilter(b.cfg.GroupMembershipAttribute),
		ldap.EscapeFilter(userDN))

	req := ldap.NewSearchRequest(
		b.cfg.GroupBaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		0, 0, false,
		filter, []string{b.cfg.GroupNameAttribute}, nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching group memberships for %s: %w", userDN, err)
	}

	groups := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		if name := entry.GetAttributeValue(b.cfg.GroupNameAttribute); name != "" {
			groups = append(groups, name)
		}
	}
	return groups, nil
}

// Authenticate binds as the service account to resolve the user's DN, then
// re-binds as that DN with the supplied password - a failed bind means bad
// credentials, not an error.
func (b *LDAP) Authenticate(ctx context.Context, username, password string) (bool, error) {
	conn, err := b.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	userDN, err := b.lookupUserDN(conn, username)
	if err != nil {
		return false, err
	}
	if userDN == "" {
		return false, nil
	}

	if err := conn.Bind(userDN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return false, nil
		}
		return false, fmt.Errorf("binding as %s: %w", userDN, err)
	}
	return true, nil
}

func (b *LDAP) lookupUserDN(conn *ldap.Conn, username string) (string, error) {
	filter := fmt.Sprintf("(&(objectClass=%s)(%s=%s))",
		ldap.EscapeFilter(b.cfg.UserObjectClass),
		ldap.EscapeFilter(b.cfg.UserNameAttribute),
		ldap.EscapeFilter(username))

	req := ldap.NewSearchRequest(
		b.cfg.UserBaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		1, 0, false,
		filter, []string{"dn"}, nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return "", fmt.Errorf("searching for user %s: %w", username, err)
	}
	if len(result.Entries) == 0 {
		return "", nil
	}
	return result.Entries[0].DN, nil
}

// New builds the configured backend, returning None when backend is "none".
func New(backend string, cfg config.LDAPConfig) (Backend, error) {
	switch backend {
	case "", "none":
		return None{}, nil
	case "ldap", "msldap":
		return NewLDAP(cfg), nil
	default:
		return nil, fmt.Errorf("unknown group backend %q", backend)
	}
}
