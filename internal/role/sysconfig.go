package role

import "github.com/netways/esarmor/internal/filter"

// ConfigurationIndex is the name of the index the role backend itself is
// stored in. It is also the index the synthetic sysconfig role protects.
const ConfigurationIndex = ".elasticarmor"

// ConfigurationType is the document type role documents are stored under.
const ConfigurationType = "role"

// ConfigPermission is the cluster permission that grants access to the
// configuration index.
const ConfigPermission = "api/config/*"

// sysconfigRoleID names the synthetic role InjectSystemDefaults prepends.
const sysconfigRoleID = "sysconfig"

// InjectSystemDefaults prepends a synthetic role granting full access to
// the configuration index to any principal holding ConfigPermission, and
// adds an exclude of the configuration index to every other role's index
// restrictions so the index is invisible to everyone else. This mirrors
// the role-backend self-protection the Python source applies on every
// populate (_apply_system_defaults).
func InjectSystemDefaults(roles []Role, grantsConfig bool) []Role {
	excludePattern := filter.NewPattern(ConfigurationIndex)

	out := make([]Role, 0, len(roles)+1)
	for _, r := range roles {
		out = append(out, hideConfigurationIndex(r, excludePattern))
	}

	if grantsConfig {
		sysconfig := Role{
			ID: sysconfigRoleID,
			Restrictions: []RestrictionNode{
				{
					Restriction: Restriction{
						Includes:    []filter.Pattern{excludePattern},
						Permissions: NewPermissionSet("api/indices/create/index", "api/indices/get/*", "api/indices/delete/index", "api/search/documents", "api/documents/*"),
					},
				},
			},
		}
		out = append([]Role{sysconfig}, out...)
	}

	return out
}

// hideConfigurationIndex returns a copy of r with the configuration index
// added to every index restriction's excludes. A role with no restrictions
// at all (entirely unrestricted, wildcard cluster access) gets one added so
// the configuration index does not leak through an otherwise-unrestricted
// grant.
func hideConfigurationIndex(r Role, exclude filter.Pattern) Role {
	if r.ID == sysconfigRoleID {
		return r
	}

	restrictions := make([]RestrictionNode, len(r.Restrictions))
	copy(restrictions, r.Restrictions)
	if len(restrictions) == 0 {
		restrictions = []RestrictionNode{
			{
				Restriction: Restriction{
					Includes:    []filter.Pattern{filter.NewPattern("*")},
					Excludes:    []filter.Pattern{exclude},
					Permissions: r.ClusterPermissions,
				},
			},
		}
	} else {
		for i, n := range restrictions {
			n.Excludes = append(append([]filter.Pattern{}, n.Excludes...), exclude)
			restrictions[i] = n
		}
	}

	r.Restrictions = restrictions
	return r
}
