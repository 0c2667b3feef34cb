package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  Scanner
	executor Executor
	logger   *slog.Logger
}

// NewManager creates a Manager. A nil logger falls back to slog.Default.
func NewManager(scanner Scanner, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{scanner: scanner, executor: executor, logger: logger.With("component", "migration")}
}

// Run applies every pending migration and reports how many ran.
func (m *Manager) Run(ctx context.Context) (int, error) {
	started := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}
	if len(status.Pending) == 0 {
		m.logger.DebugContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	m.logger.InfoContext(ctx, "applying migrations", "from_version", status.CurrentVersion, "pending", len(status.Pending))
	for i, migration := range status.Pending {
		elapsed, err := m.executor.Apply(ctx, migration)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "name", migration.Name, "error", err)
			return i, NewMigrationError(migration.Version, migration.Name, "execute migration",
				fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"duration", elapsed,
		)
	}

	m.logger.InfoContext(ctx, "migrations complete", "applied", len(status.Pending), "duration", time.Since(started))
	return len(status.Pending), nil
}

// Status compares the available files with the recorded versions. It fails
// when a recorded migration is missing or its checksum changed.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, fmt.Errorf("failed to initialize version table: %w", err)
	}

	available, err := m.scanner.Scan()
	if err != nil {
		return Status{}, fmt.Errorf("failed to scan migrations: %w", err)
	}
	applied, err := m.executor.AppliedMigrations(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get applied versions: %w", err)
	}

	byVersion := make(map[int]Migration, len(available))
	for _, migration := range available {
		byVersion[migration.Version] = migration
	}

	status := Status{Applied: applied}
	appliedSet := make(map[int]bool, len(applied))
	for _, record := range applied {
		migration, ok := byVersion[record.Version]
		if !ok {
			return Status{}, NewMigrationError(record.Version, "", "verify applied", ErrUnknownVersion)
		}
		if record.Checksum != "" && record.Checksum != migration.Checksum {
			return Status{}, NewMigrationError(record.Version, migration.Name, "verify applied", ErrChecksumMismatch)
		}
		appliedSet[record.Version] = true
		if record.Version > status.CurrentVersion {
			status.CurrentVersion = record.Version
		}
	}

	for _, migration := range available {
		if !appliedSet[migration.Version] {
			status.Pending = append(status.Pending, migration)
		}
	}
	return status, nil
}
