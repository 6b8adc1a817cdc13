// Package auth implements the per-request Client, its authorization
// engine (the collect-filters algorithm), and the Authenticator that
// populates a Client from connection metadata and credentials.
package auth

import (
	"github.com/netways/esarmor/internal/role"
)

// Client is the per-connection principal: address/credentials, the groups
// and roles populated for it, and the default role applied when no other
// role matches. It is created once per HTTP connection, authenticated and
// populated once, consulted by every handler on that connection, and
// discarded at connection close - never shared across connections, and
// never mutated concurrently after population.
type Client struct {
	Address     string
	Port        int
	PeerAddress string
	PeerPort    int
	Name        string

	Authenticated bool
	Username      string
	Password      string

	Groups []string
	Roles  []role.Role

	DefaultRole *role.Role

	restrictedScope *string // memoized; nil until computed, "" means none
}

// RestrictedScope returns the tightest scope ("fields" > "types" >
// "indices" > "") across every role this client holds, memoized after the
// first call since roles are immutable once populated.
func (c *Client) RestrictedScope() string {
	if c.restrictedScope != nil {
		return *c.restrictedScope
	}

	rank := map[string]int{"": 0, "indices": 1, "types": 2, "fields": 3}
	tightest := ""
	for _, r := range c.Roles {
		if s := r.GetRestrictedScope(); rank[s] > rank[tightest] {
			tightest = s
		}
	}
	c.restrictedScope = &tightest
	return tightest
}

// IsRestricted reports whether the client is restricted at or below the
// given scope ("indices", "types", or "fields").
func (c *Client) IsRestricted(scope string) bool {
	rank := map[string]int{"": 0, "indices": 1, "types": 2, "fields": 3}
	return rank[c.RestrictedScope()] >= rank[scope] && rank[scope] > 0
}

// Can reports whether the client's roles grant permission at the given
// scope: true iff at least one role permits it. A client with no roles, or
// whose roles have no opinion at that scope, is refused.
func (c *Client) Can(permission string, index, typ, field *string) bool {
	if len(c.Roles) == 0 {
		return false
	}
	for _, r := range c.Roles {
		if r.Permits(permission, index, typ, field) {
			return true
		}
	}
	return false
}
