package rbac

import (
	"context"
	"sort"
	"time"
)

// memStore is an in-memory Store used by the package tests. WithTx snapshots
// the maps so a failing transaction leaves no partial writes behind, matching
// the database semantics the service relies on.
type memStore struct {
	nextID int64
	perms  map[int64]Permission
	roles  map[int64]Role
	caches map[int64][]string
	assocs map[int64]map[int64]time.Time
	users  map[int64]*memUser
}

type memUser struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	RoleID       *int64
}

func newMemStore() *memStore {
	return &memStore{
		perms:  make(map[int64]Permission),
		roles:  make(map[int64]Role),
		caches: make(map[int64][]string),
		assocs: make(map[int64]map[int64]time.Time),
		users:  make(map[int64]*memUser),
	}
}

func (m *memStore) addUser(email string) int64 {
	m.nextID++
	m.users[m.nextID] = &memUser{ID: m.nextID, Email: email}
	return m.nextID
}

func (m *memStore) snapshot() *memStore {
	clone := newMemStore()
	clone.nextID = m.nextID
	for id, perm := range m.perms {
		clone.perms[id] = perm
	}
	for id, role := range m.roles {
		clone.roles[id] = role
	}
	for id, cache := range m.caches {
		clone.caches[id] = append([]string(nil), cache...)
	}
	for roleID, grants := range m.assocs {
		inner := make(map[int64]time.Time, len(grants))
		for permID, at := range grants {
			inner[permID] = at
		}
		clone.assocs[roleID] = inner
	}
	for id, user := range m.users {
		copied := *user
		if user.RoleID != nil {
			roleID := *user.RoleID
			copied.RoleID = &roleID
		}
		clone.users[id] = &copied
	}
	return clone
}

func (m *memStore) restore(from *memStore) {
	m.nextID = from.nextID
	m.perms = from.perms
	m.roles = from.roles
	m.caches = from.caches
	m.assocs = from.assocs
	m.users = from.users
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	saved := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

func (m *memStore) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memStore) GetRoleByName(ctx context.Context, name string) (Role, error) {
	for _, role := range m.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, ErrNotFound
}

func (m *memStore) ListRoles(ctx context.Context) ([]Role, error) {
	roles := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (m *memStore) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	for _, perm := range m.perms {
		if perm.Name == name {
			return perm, nil
		}
	}
	return Permission{}, ErrNotFound
}

func (m *memStore) ListPermissions(ctx context.Context, category string) ([]Permission, error) {
	perms := make([]Permission, 0, len(m.perms))
	for _, perm := range m.perms {
		if category != "" && perm.Category != category {
			continue
		}
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Category != perms[j].Category {
			return perms[i].Category < perms[j].Category
		}
		return perms[i].Name < perms[j].Name
	})
	return perms, nil
}

func (m *memStore) RolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	names := []string{}
	for permID := range m.assocs[roleID] {
		names = append(names, m.perms[permID].Name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memStore) RolesWithPermission(ctx context.Context, permissionName string) ([]Role, error) {
	perm, err := m.GetPermissionByName(ctx, permissionName)
	if err != nil {
		return nil, err
	}
	var roles []Role
	for roleID, grants := range m.assocs {
		if _, ok := grants[perm.ID]; ok {
			roles = append(roles, m.roles[roleID])
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (m *memStore) UserRoleID(ctx context.Context, userID int64) (int64, bool, error) {
	user, ok := m.users[userID]
	if !ok || user.RoleID == nil {
		return 0, false, nil
	}
	return *user.RoleID, true, nil
}

func (m *memStore) InsertPermission(ctx context.Context, name, description, category string) (Permission, error) {
	if _, err := m.GetPermissionByName(ctx, name); err == nil {
		return Permission{}, ErrDuplicateName
	}
	m.nextID++
	perm := Permission{ID: m.nextID, Name: name, Description: description, Category: category, CreatedAt: time.Now()}
	m.perms[perm.ID] = perm
	return perm, nil
}

func (m *memStore) EnsurePermission(ctx context.Context, name, description, category string) (bool, error) {
	if _, err := m.GetPermissionByName(ctx, name); err == nil {
		return false, nil
	}
	_, err := m.InsertPermission(ctx, name, description, category)
	return err == nil, err
}

func (m *memStore) PermissionInUse(ctx context.Context, permissionID int64) (bool, error) {
	for _, grants := range m.assocs {
		if _, ok := grants[permissionID]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) RoleIDsWithPermission(ctx context.Context, permissionID int64) ([]int64, error) {
	var ids []int64
	for roleID, grants := range m.assocs {
		if _, ok := grants[permissionID]; ok {
			ids = append(ids, roleID)
		}
	}
	return ids, nil
}

func (m *memStore) DeletePermission(ctx context.Context, permissionID int64) error {
	delete(m.perms, permissionID)
	for _, grants := range m.assocs {
		delete(grants, permissionID)
	}
	return nil
}

func (m *memStore) InsertRole(ctx context.Context, name, description string, unrestricted, isSystem bool) (Role, error) {
	if _, err := m.GetRoleByName(ctx, name); err == nil {
		return Role{}, ErrDuplicateName
	}
	m.nextID++
	now := time.Now()
	role := Role{ID: m.nextID, Name: name, Description: description, Unrestricted: unrestricted, IsSystem: isSystem, CreatedAt: now, UpdatedAt: now}
	m.roles[role.ID] = role
	m.assocs[role.ID] = make(map[int64]time.Time)
	if unrestricted {
		m.caches[role.ID] = []string{SentinelAll}
	} else {
		m.caches[role.ID] = []string{}
	}
	return role, nil
}

func (m *memStore) EnsureRole(ctx context.Context, name, description string, unrestricted, isSystem bool) (bool, error) {
	if _, err := m.GetRoleByName(ctx, name); err == nil {
		return false, nil
	}
	_, err := m.InsertRole(ctx, name, description, unrestricted, isSystem)
	return err == nil, err
}

func (m *memStore) RenameRole(ctx context.Context, roleID int64, name string) error {
	role, ok := m.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	if existing, err := m.GetRoleByName(ctx, name); err == nil && existing.ID != roleID {
		return ErrDuplicateName
	}
	role.Name = name
	role.UpdatedAt = time.Now()
	m.roles[roleID] = role
	return nil
}

func (m *memStore) DeleteRole(ctx context.Context, roleID int64) error {
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	delete(m.roles, roleID)
	delete(m.assocs, roleID)
	delete(m.caches, roleID)
	for _, user := range m.users {
		if user.RoleID != nil && *user.RoleID == roleID {
			user.RoleID = nil
		}
	}
	return nil
}

func (m *memStore) Grant(ctx context.Context, roleID, permissionID int64) error {
	grants, ok := m.assocs[roleID]
	if !ok {
		grants = make(map[int64]time.Time)
		m.assocs[roleID] = grants
	}
	if _, ok := grants[permissionID]; !ok {
		grants[permissionID] = time.Now()
	}
	return nil
}

func (m *memStore) Revoke(ctx context.Context, roleID, permissionID int64) error {
	delete(m.assocs[roleID], permissionID)
	return nil
}

func (m *memStore) RefreshGrantCache(ctx context.Context, roleID int64) error {
	role, ok := m.roles[roleID]
	if !ok || role.Unrestricted {
		return nil
	}
	names, _ := m.RolePermissionNames(ctx, roleID)
	m.caches[roleID] = names
	return nil
}

func (m *memStore) BindUserRole(ctx context.Context, userID, roleID int64) error {
	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.RoleID = &roleID
	return nil
}

func (m *memStore) EnsureAdminUser(ctx context.Context, email, name, passwordHash string, roleID int64) (bool, error) {
	for _, user := range m.users {
		if user.Email == email {
			return false, nil
		}
	}
	m.nextID++
	m.users[m.nextID] = &memUser{ID: m.nextID, Email: email, Name: name, PasswordHash: passwordHash, RoleID: &roleID}
	return true, nil
}

var (
	_ Store   = (*memStore)(nil)
	_ TxStore = (*memStore)(nil)
)
