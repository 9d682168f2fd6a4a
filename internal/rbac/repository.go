package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-audit/open-audit/internal/platform/db"
)

const pgUniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore provides PostgreSQL backed persistence for the RBAC core.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store backed by the provided pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// WithTx runs fn inside a single database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxStore{q: tx})
	})
}

func (s *PostgresStore) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(s.pool.QueryRow(ctx,
		`SELECT id, name, description, permissions, is_system, created_at, updated_at FROM roles WHERE id = $1`, id))
}

func (s *PostgresStore) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return getRoleByName(ctx, s.pool, name)
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, permissions, is_system, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s *PostgresStore) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	return getPermissionByName(ctx, s.pool, name)
}

func (s *PostgresStore) ListPermissions(ctx context.Context, category string) ([]Permission, error) {
	query := `SELECT id, name, description, category, created_at FROM permissions ORDER BY category, name`
	args := []any{}
	if category != "" {
		query = `SELECT id, name, description, category, created_at FROM permissions WHERE category = $1 ORDER BY category, name`
		args = append(args, category)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.Category, &perm.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func (s *PostgresStore) RolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.name FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) RolesWithPermission(ctx context.Context, permissionName string) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.permissions, r.is_system, r.created_at, r.updated_at
		FROM roles r
		JOIN role_permissions rp ON rp.role_id = r.id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE p.name = $1
		ORDER BY r.name`, permissionName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s *PostgresStore) UserRoleID(ctx context.Context, userID int64) (int64, bool, error) {
	var roleID *int64
	err := s.pool.QueryRow(ctx, `SELECT role_id FROM users WHERE id = $1`, userID).Scan(&roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if roleID == nil {
		return 0, false, nil
	}
	return *roleID, true, nil
}

// pgTxStore implements TxStore on top of a pgx transaction.
type pgTxStore struct {
	q querier
}

var _ TxStore = (*pgTxStore)(nil)

func (t *pgTxStore) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return getRoleByName(ctx, t.q, name)
}

func (t *pgTxStore) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	return getPermissionByName(ctx, t.q, name)
}

func (t *pgTxStore) InsertPermission(ctx context.Context, name, description, category string) (Permission, error) {
	var perm Permission
	err := t.q.QueryRow(ctx, `
		INSERT INTO permissions (name, description, category)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, category, created_at`,
		name, description, category).
		Scan(&perm.ID, &perm.Name, &perm.Description, &perm.Category, &perm.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Permission{}, fmt.Errorf("%w: permission %s", ErrDuplicateName, name)
		}
		return Permission{}, err
	}
	return perm, nil
}

func (t *pgTxStore) EnsurePermission(ctx context.Context, name, description, category string) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO permissions (name, description, category)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`, name, description, category)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTxStore) PermissionInUse(ctx context.Context, permissionID int64) (bool, error) {
	var inUse bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_permissions WHERE permission_id = $1)`, permissionID).Scan(&inUse)
	return inUse, err
}

func (t *pgTxStore) RoleIDsWithPermission(ctx context.Context, permissionID int64) ([]int64, error) {
	rows, err := t.q.Query(ctx, `SELECT role_id FROM role_permissions WHERE permission_id = $1`, permissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *pgTxStore) DeletePermission(ctx context.Context, permissionID int64) error {
	// Association rows cascade away via the foreign key.
	_, err := t.q.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, permissionID)
	return err
}

func (t *pgTxStore) InsertRole(ctx context.Context, name, description string, unrestricted, isSystem bool) (Role, error) {
	grantCache := []string{}
	if unrestricted {
		grantCache = []string{SentinelAll}
	}
	row := t.q.QueryRow(ctx, `
		INSERT INTO roles (name, description, permissions, is_system)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, permissions, is_system, created_at, updated_at`,
		name, description, grantCache, isSystem)
	role, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %s", ErrDuplicateName, name)
		}
		return Role{}, err
	}
	return role, nil
}

func (t *pgTxStore) EnsureRole(ctx context.Context, name, description string, unrestricted, isSystem bool) (bool, error) {
	grantCache := []string{}
	if unrestricted {
		grantCache = []string{SentinelAll}
	}
	tag, err := t.q.Exec(ctx, `
		INSERT INTO roles (name, description, permissions, is_system)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING`, name, description, grantCache, isSystem)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTxStore) RenameRole(ctx context.Context, roleID int64, name string) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE roles SET name = $2, updated_at = NOW() WHERE id = $1`, roleID, name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: role %s", ErrDuplicateName, name)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTxStore) DeleteRole(ctx context.Context, roleID int64) error {
	// role_permissions cascades, users.role_id becomes NULL.
	tag, err := t.q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTxStore) Grant(ctx context.Context, roleID, permissionID int64) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, roleID, permissionID)
	return err
}

func (t *pgTxStore) Revoke(ctx context.Context, roleID, permissionID int64) error {
	_, err := t.q.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

func (t *pgTxStore) RefreshGrantCache(ctx context.Context, roleID int64) error {
	_, err := t.q.Exec(ctx, `
		UPDATE roles r SET permissions = COALESCE((
			SELECT array_agg(p.name ORDER BY p.name)
			FROM role_permissions rp
			JOIN permissions p ON p.id = rp.permission_id
			WHERE rp.role_id = r.id
		), '{}'), updated_at = NOW()
		WHERE r.id = $1 AND NOT ($2 = ANY (r.permissions))`, roleID, SentinelAll)
	return err
}

func (t *pgTxStore) BindUserRole(ctx context.Context, userID, roleID int64) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE users SET role_id = $2, updated_at = NOW() WHERE id = $1`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTxStore) EnsureAdminUser(ctx context.Context, email, name, passwordHash string, roleID int64) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO users (email, name, password_hash, is_active, role_id)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT (email) DO NOTHING`, email, name, passwordHash, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func getRoleByName(ctx context.Context, q querier, name string) (Role, error) {
	return scanRole(q.QueryRow(ctx,
		`SELECT id, name, description, permissions, is_system, created_at, updated_at FROM roles WHERE name = $1`, name))
}

func getPermissionByName(ctx context.Context, q querier, name string) (Permission, error) {
	var perm Permission
	err := q.QueryRow(ctx,
		`SELECT id, name, description, category, created_at FROM permissions WHERE name = $1`, name).
		Scan(&perm.ID, &perm.Name, &perm.Description, &perm.Category, &perm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var grantCache []string
	err := row.Scan(&role.ID, &role.Name, &role.Description, &grantCache, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	role.Unrestricted = GrantSetFromNames(grantCache).IsUnrestricted()
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		var grantCache []string
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &grantCache, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.Unrestricted = GrantSetFromNames(grantCache).IsUnrestricted()
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
