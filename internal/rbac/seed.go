package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SeedReport summarises what a seeding run changed.
type SeedReport struct {
	PermissionsInserted int
	RolesInserted       int
	AdminCreated        bool
}

// Seeder provisions the permission registry, the system roles and the default
// administrator account. Every step is idempotent and independently
// re-runnable: unique-name conflicts are skipped, never duplicated. Concurrent
// runs are safe because the name uniqueness constraints turn races into
// harmless conflict-skip outcomes.
type Seeder struct {
	store  Store
	logger *slog.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(store Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: store, logger: logger}
}

// Run executes the full seeding sequence: permissions, roles, administrator.
// Any failing step aborts the run; a partial run is safe to repeat from
// scratch and converges to the same end state.
func (s *Seeder) Run(ctx context.Context, adminPasswordHash string) (SeedReport, error) {
	var report SeedReport

	if err := s.seedPermissions(ctx, &report); err != nil {
		return report, fmt.Errorf("seed permissions: %w", err)
	}
	s.logger.Info("permissions seeded",
		slog.Int("inserted", report.PermissionsInserted),
		slog.Int("catalog", len(PermissionCatalog)))

	if err := s.seedRoles(ctx, &report); err != nil {
		return report, fmt.Errorf("seed roles: %w", err)
	}
	s.logger.Info("roles seeded",
		slog.Int("inserted", report.RolesInserted),
		slog.Int("catalog", len(RoleCatalog)))

	if err := s.seedAdmin(ctx, adminPasswordHash, &report); err != nil {
		return report, fmt.Errorf("seed admin: %w", err)
	}
	if report.AdminCreated {
		s.logger.Info("admin user created", slog.String("email", AdminEmail))
	} else {
		s.logger.Info("admin user already exists, skipping creation", slog.String("email", AdminEmail))
	}

	return report, nil
}

func (s *Seeder) seedPermissions(ctx context.Context, report *SeedReport) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		for _, perm := range PermissionCatalog {
			inserted, err := tx.EnsurePermission(ctx, perm.Name, perm.Description, perm.Category)
			if err != nil {
				return err
			}
			if inserted {
				report.PermissionsInserted++
			}
		}
		return nil
	})
}

func (s *Seeder) seedRoles(ctx context.Context, report *SeedReport) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		for _, catalogRole := range RoleCatalog {
			inserted, err := tx.EnsureRole(ctx, catalogRole.Name, catalogRole.Description,
				catalogRole.Grants.IsUnrestricted(), true)
			if err != nil {
				return err
			}
			if inserted {
				report.RolesInserted++
			}

			role, err := tx.GetRoleByName(ctx, catalogRole.Name)
			if err != nil {
				return err
			}
			for _, permName := range catalogRole.Grants.Names() {
				perm, err := tx.GetPermissionByName(ctx, permName)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						return fmt.Errorf("%w: role %q references unknown permission %q",
							ErrSeedIntegrity, catalogRole.Name, permName)
					}
					return err
				}
				if err := tx.Grant(ctx, role.ID, perm.ID); err != nil {
					return err
				}
			}
			if err := tx.RefreshGrantCache(ctx, role.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Seeder) seedAdmin(ctx context.Context, adminPasswordHash string, report *SeedReport) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		adminRole, err := tx.GetRoleByName(ctx, "administrator")
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: administrator role missing after role step", ErrSeedIntegrity)
			}
			return err
		}
		created, err := tx.EnsureAdminUser(ctx, AdminEmail, AdminName, adminPasswordHash, adminRole.ID)
		if err != nil {
			return err
		}
		report.AdminCreated = created
		return nil
	})
}
