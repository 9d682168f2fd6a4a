package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationsTable = "schema_migrations"

// Migrate applies all embedded migrations that have not run yet. Each
// migration executes inside its own transaction and is recorded in the
// schema_migrations bookkeeping table.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`,
		migrationsTable)); err != nil {
		return fmt.Errorf("platform/db: ensure migrations table: %w", err)
	}

	applied := make(map[string]struct{})
	rows, err := pool.Query(ctx, fmt.Sprintf(`SELECT name FROM %s`, migrationsTable))
	if err != nil {
		return fmt.Errorf("platform/db: list applied migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		applied[name] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	entries, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("platform/db: glob migrations: %w", err)
	}
	sort.Strings(entries)

	for _, entry := range entries {
		if _, ok := applied[entry]; ok {
			continue
		}
		sqlBytes, err := migrationFS.ReadFile(entry)
		if err != nil {
			return fmt.Errorf("platform/db: read migration %s: %w", entry, err)
		}
		err = WithTx(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1)`, migrationsTable), entry)
			return err
		})
		if err != nil {
			return fmt.Errorf("platform/db: apply migration %s: %w", entry, err)
		}
	}

	return nil
}
