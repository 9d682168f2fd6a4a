package rbac

import "errors"

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicateName indicates a unique-name collision on a role or permission.
	ErrDuplicateName = errors.New("rbac: duplicate name")
	// ErrUnknownPermission indicates a referenced permission does not exist.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
	// ErrUnknownRole indicates a referenced role does not exist.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrSystemRoleProtected rejects mutation of a system role.
	ErrSystemRoleProtected = errors.New("rbac: system role protected")
	// ErrPermissionInUse rejects deleting a permission that still has
	// associations when no cascade was requested.
	ErrPermissionInUse = errors.New("rbac: permission in use")
	// ErrReservedName rejects the grant-set sentinel as a permission name.
	ErrReservedName = errors.New("rbac: reserved permission name")
	// ErrSeedIntegrity indicates the built-in catalog is inconsistent. Fatal.
	ErrSeedIntegrity = errors.New("rbac: seed catalog integrity")
)
