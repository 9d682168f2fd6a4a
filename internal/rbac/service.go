package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store defines read access and transaction scoping for the RBAC core.
type Store interface {
	// WithTx runs fn inside a single transaction. Writes are only visible to
	// concurrent readers after fn returns nil and the transaction commits.
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error

	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	// ListPermissions returns the registry ordered by category then name.
	// An empty category returns everything.
	ListPermissions(ctx context.Context, category string) ([]Permission, error)
	RolePermissionNames(ctx context.Context, roleID int64) ([]string, error)
	RolesWithPermission(ctx context.Context, permissionName string) ([]Role, error)
	// UserRoleID returns the role bound to the user, or bound=false when the
	// user has no role (or does not exist).
	UserRoleID(ctx context.Context, userID int64) (roleID int64, bound bool, err error)
}

// TxStore defines write operations executed inside a transaction.
type TxStore interface {
	GetRoleByName(ctx context.Context, name string) (Role, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)

	InsertPermission(ctx context.Context, name, description, category string) (Permission, error)
	// EnsurePermission inserts unless the name already exists and reports
	// whether a row was inserted. Conflicts are not errors.
	EnsurePermission(ctx context.Context, name, description, category string) (bool, error)
	PermissionInUse(ctx context.Context, permissionID int64) (bool, error)
	RoleIDsWithPermission(ctx context.Context, permissionID int64) ([]int64, error)
	DeletePermission(ctx context.Context, permissionID int64) error

	InsertRole(ctx context.Context, name, description string, unrestricted, isSystem bool) (Role, error)
	EnsureRole(ctx context.Context, name, description string, unrestricted, isSystem bool) (bool, error)
	RenameRole(ctx context.Context, roleID int64, name string) error
	DeleteRole(ctx context.Context, roleID int64) error

	// Grant and Revoke are idempotent at the storage level.
	Grant(ctx context.Context, roleID, permissionID int64) error
	Revoke(ctx context.Context, roleID, permissionID int64) error
	// RefreshGrantCache rebuilds the denormalized permission-name list on the
	// role row from the association table. Unrestricted roles keep their
	// sentinel and are never touched.
	RefreshGrantCache(ctx context.Context, roleID int64) error

	BindUserRole(ctx context.Context, userID, roleID int64) error
	// EnsureAdminUser creates the well-known administrator account unless it
	// already exists and reports whether it was created. Existing accounts
	// are never modified.
	EnsureAdminUser(ctx context.Context, email, name, passwordHash string, roleID int64) (bool, error)
}

// Service orchestrates RBAC operations against a Store.
type Service struct {
	store Store
}

// NewService constructs a Service backed by the provided store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// DefinePermission creates a new permission in the registry.
func (s *Service) DefinePermission(ctx context.Context, name, description, category string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: empty permission name", ErrUnknownPermission)
	}
	if name == SentinelAll {
		return Permission{}, ErrReservedName
	}
	var perm Permission
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		perm, err = tx.InsertPermission(ctx, name, strings.TrimSpace(description), strings.TrimSpace(category))
		return err
	})
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// ListPermissions returns the registry, optionally filtered by category,
// ordered by category then name.
func (s *Service) ListPermissions(ctx context.Context, category string) ([]Permission, error) {
	return s.store.ListPermissions(ctx, strings.TrimSpace(category))
}

// DeletePermission removes a permission. Without cascade the call fails with
// ErrPermissionInUse while association rows reference it; with cascade the
// associations are removed as well and affected role caches are rebuilt.
func (s *Service) DeletePermission(ctx context.Context, name string, cascade bool) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		perm, err := tx.GetPermissionByName(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownPermission, name)
			}
			return err
		}
		if !cascade {
			inUse, err := tx.PermissionInUse(ctx, perm.ID)
			if err != nil {
				return err
			}
			if inUse {
				return fmt.Errorf("%w: %s", ErrPermissionInUse, name)
			}
		}
		affected, err := tx.RoleIDsWithPermission(ctx, perm.ID)
		if err != nil {
			return err
		}
		if err := tx.DeletePermission(ctx, perm.ID); err != nil {
			return err
		}
		for _, roleID := range affected {
			if err := tx.RefreshGrantCache(ctx, roleID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DefineRole creates a role and its association rows in one transaction. The
// sentinel name in permissionNames makes the role unrestricted.
func (s *Service) DefineRole(ctx context.Context, name, description string, permissionNames []string, isSystem bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: empty role name", ErrUnknownRole)
	}
	grants := GrantSetFromNames(permissionNames)
	var role Role
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		role, err = tx.InsertRole(ctx, name, strings.TrimSpace(description), grants.IsUnrestricted(), isSystem)
		if err != nil {
			return err
		}
		for _, permName := range grants.Names() {
			perm, err := tx.GetPermissionByName(ctx, permName)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("%w: %s", ErrUnknownPermission, permName)
				}
				return err
			}
			if err := tx.Grant(ctx, role.ID, perm.ID); err != nil {
				return err
			}
		}
		return tx.RefreshGrantCache(ctx, role.ID)
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches a role by name.
func (s *Service) GetRole(ctx context.Context, name string) (Role, error) {
	role, err := s.store.GetRoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Role{}, fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// RenameRole changes a role's unique name. System roles are rejected; they
// may only be renamed by a privileged migration outside this service.
func (s *Service) RenameRole(ctx context.Context, name, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("%w: empty role name", ErrUnknownRole)
	}
	role, err := s.GetRole(ctx, name)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemRoleProtected, role.Name)
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.RenameRole(ctx, role.ID, newName)
	})
}

// DeleteRole removes a role. Association rows cascade away and user bindings
// fall back to no-role. System roles are rejected.
func (s *Service) DeleteRole(ctx context.Context, name string) error {
	role, err := s.GetRole(ctx, name)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemRoleProtected, role.Name)
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.DeleteRole(ctx, role.ID)
	})
}

// ResolvePermissions returns the permission names the role grants right now.
// Unrestricted roles resolve against the full current registry, so the result
// must not be cached beyond the current request.
func (s *Service) ResolvePermissions(ctx context.Context, role Role) ([]string, error) {
	if role.Unrestricted {
		perms, err := s.store.ListPermissions(ctx, "")
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(perms))
		for _, perm := range perms {
			names = append(names, perm.Name)
		}
		return names, nil
	}
	return s.store.RolePermissionNames(ctx, role.ID)
}

// Grant associates a permission with a role. Granting an already granted
// permission is a no-op.
func (s *Service) Grant(ctx context.Context, roleName, permissionName string) error {
	return s.mutateGrant(ctx, roleName, permissionName, TxStore.Grant)
}

// Revoke removes a permission from a role. Revoking an ungranted permission
// is a no-op.
func (s *Service) Revoke(ctx context.Context, roleName, permissionName string) error {
	return s.mutateGrant(ctx, roleName, permissionName, TxStore.Revoke)
}

func (s *Service) mutateGrant(ctx context.Context, roleName, permissionName string, op func(TxStore, context.Context, int64, int64) error) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		role, err := tx.GetRoleByName(ctx, roleName)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownRole, roleName)
			}
			return err
		}
		perm, err := tx.GetPermissionByName(ctx, permissionName)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownPermission, permissionName)
			}
			return err
		}
		if err := op(tx, ctx, role.ID, perm.ID); err != nil {
			return err
		}
		return tx.RefreshGrantCache(ctx, role.ID)
	})
}

// PermissionsOf returns the permission names currently associated with the
// role via the association table; empty when the role has none.
func (s *Service) PermissionsOf(ctx context.Context, roleName string) ([]string, error) {
	role, err := s.GetRole(ctx, roleName)
	if err != nil {
		return nil, err
	}
	return s.store.RolePermissionNames(ctx, role.ID)
}

// RolesWithPermission is the inverse lookup, used for auditing who can do X.
func (s *Service) RolesWithPermission(ctx context.Context, permissionName string) ([]Role, error) {
	if _, err := s.store.GetPermissionByName(ctx, permissionName); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, permissionName)
		}
		return nil, err
	}
	return s.store.RolesWithPermission(ctx, permissionName)
}

// AssignRole atomically replaces the user's role binding.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleName string) error {
	role, err := s.GetRole(ctx, roleName)
	if err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.BindUserRole(ctx, userID, role.ID)
	})
}

// EffectivePermissions resolves the permission names of the user's bound role.
// Users without a role, including users whose role was deleted, get an empty
// set rather than an error.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	roleID, bound, err := s.store.UserRoleID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !bound {
		return []string{}, nil
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	return s.ResolvePermissions(ctx, role)
}

// HasPermission is the single check protected operations call before
// proceeding. It is recomputed on every call; nothing is cached.
func (s *Service) HasPermission(ctx context.Context, userID int64, permissionName string) (bool, error) {
	if strings.TrimSpace(permissionName) == "" {
		return false, nil
	}
	roleID, bound, err := s.store.UserRoleID(ctx, userID)
	if err != nil {
		return false, err
	}
	if !bound {
		return false, nil
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if role.Unrestricted {
		return true, nil
	}
	names, err := s.store.RolePermissionNames(ctx, role.ID)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == permissionName {
			return true, nil
		}
	}
	return false, nil
}
