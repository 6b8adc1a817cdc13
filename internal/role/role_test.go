package role

import (
	"testing"

	"github.com/netways/esarmor/internal/filter"
)

func newRestriction(include string, permissions ...string) Restriction {
	return Restriction{
		Includes:    []filter.Pattern{filter.NewPattern(include)},
		Permissions: NewPermissionSet(permissions...),
	}
}

func TestGetRestrictedScope(t *testing.T) {
	cases := []struct {
		name string
		role Role
		want string
	}{
		{"unrestricted", Role{}, ""},
		{"index only", Role{Restrictions: []RestrictionNode{{Restriction: newRestriction("logs-*", "api/search/documents")}}}, "indices"},
		{
			"type restricted",
			Role{Restrictions: []RestrictionNode{{
				Restriction: newRestriction("logs-*", "api/search/documents"),
				Types:       []TypeRestrictionNode{{Restriction: newRestriction("events")}},
			}}},
			"types",
		},
		{
			"field restricted",
			Role{Restrictions: []RestrictionNode{{
				Restriction: newRestriction("logs-*", "api/search/documents"),
				Types: []TypeRestrictionNode{{
					Restriction: newRestriction("events"),
					Fields:      []FieldRestrictionNode{{Restriction: newRestriction("message")}},
				}},
			}}},
			"fields",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.role.GetRestrictedScope(); got != c.want {
				t.Errorf("GetRestrictedScope() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestGetRestrictionsIndisposed(t *testing.T) {
	r := Role{Restrictions: []RestrictionNode{{Restriction: newRestriction("logs-*", "api/search/documents")}}}
	index := "logs-2016"
	perm := "api/indices/delete/index"

	// invert=true asks for nodes that grant the permission; the matching
	// node only grants search, so the role is indisposed for delete.
	result := r.GetRestrictions(&index, nil, &perm, true)
	if result.Kind != CollectIndisposed {
		t.Fatalf("expected CollectIndisposed, got %v", result.Kind)
	}
}

func TestGetRestrictionsNoMatch(t *testing.T) {
	r := Role{Restrictions: []RestrictionNode{{Restriction: newRestriction("logs-*", "api/search/documents")}}}
	index := "metrics-2016"

	result := r.GetRestrictions(&index, nil, nil, false)
	if result.Kind != CollectNone {
		t.Fatalf("expected CollectNone, got %v", result.Kind)
	}
}

func TestGetRestrictionsInvertFindsGrantedPermission(t *testing.T) {
	r := Role{Restrictions: []RestrictionNode{{Restriction: newRestriction("logs-*", "api/search/documents")}}}
	index := "logs-2016"
	perm := "api/search/documents"

	result := r.GetRestrictions(&index, nil, &perm, true)
	if result.Kind != CollectFound {
		t.Fatalf("expected invert=true to surface the already-granted permission, got %v", result.Kind)
	}

	// invert=false asks for nodes that do NOT grant the permission; since
	// this role already grants it unconditionally here, none qualify and
	// the role is indisposed rather than silently absent.
	result = r.GetRestrictions(&index, nil, &perm, false)
	if result.Kind != CollectIndisposed {
		t.Fatalf("expected invert=false to report indisposed for an already-granted permission, got %v", result.Kind)
	}
}

func TestPermitsUnconditionalRole(t *testing.T) {
	r := Role{ClusterPermissions: NewPermissionSet("api/cluster/health")}
	if !r.Permits("api/cluster/health", nil, nil, nil) {
		t.Error("expected cluster permission to be granted with no index given")
	}
	if r.Permits("api/cluster/state", nil, nil, nil) {
		t.Error("expected ungranted cluster permission to be denied")
	}
}

func TestInjectSystemDefaultsHidesConfigIndex(t *testing.T) {
	roles := []Role{{Restrictions: []RestrictionNode{{Restriction: newRestriction("*", "api/search/documents")}}}}
	out := InjectSystemDefaults(roles, false)

	if len(out) != 1 {
		t.Fatalf("expected no sysconfig role to be injected, got %d roles", len(out))
	}
	if out[0].Restrictions[0].MatchesName(ConfigurationIndex) {
		t.Error("expected configuration index to be excluded from the user role")
	}
}

func TestInjectSystemDefaultsGrantsConfig(t *testing.T) {
	out := InjectSystemDefaults(nil, true)
	if len(out) != 1 || out[0].ID != "sysconfig" {
		t.Fatalf("expected a sysconfig role to be prepended, got %v", out)
	}
	if !out[0].Restrictions[0].MatchesName(ConfigurationIndex) {
		t.Error("expected sysconfig role to match the configuration index")
	}
}
