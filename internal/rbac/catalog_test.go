package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermissionCatalogHasUniqueValidNames(t *testing.T) {
	seen := make(map[string]struct{}, len(PermissionCatalog))
	for _, perm := range PermissionCatalog {
		require.NotEmpty(t, perm.Name)
		require.NotEmpty(t, perm.Category)
		require.NotEqual(t, SentinelAll, perm.Name)
		_, dup := seen[perm.Name]
		require.False(t, dup, "duplicate catalog permission %s", perm.Name)
		seen[perm.Name] = struct{}{}
	}
}

func TestRoleCatalogGrantsReferenceKnownPermissions(t *testing.T) {
	known := make(map[string]struct{}, len(PermissionCatalog))
	for _, perm := range PermissionCatalog {
		known[perm.Name] = struct{}{}
	}
	for _, role := range RoleCatalog {
		for _, name := range role.Grants.Names() {
			_, ok := known[name]
			require.True(t, ok, "role %s references unknown permission %s", role.Name, name)
		}
	}
}

func TestRoleCatalogContainsUnrestrictedAdministrator(t *testing.T) {
	var found bool
	for _, role := range RoleCatalog {
		if role.Name == "administrator" {
			found = true
			require.True(t, role.Grants.IsUnrestricted())
		}
	}
	require.True(t, found)
	require.Len(t, RoleCatalog, 4)
}
