// Package sqlite implements the persistence repositories on an SQLite
// database through the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store owns the connection pool and every SQLite repository.
type Store struct {
	pool   *ConnectionPool
	logger *slog.Logger
	repos  persistence.Repositories
}

// Open connects to the database described by config. Call Migrate before use.
func Open(ctx context.Context, config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		pool:   pool,
		logger: logger,
		repos: persistence.Repositories{
			Employees:     NewEmployeeRepository(pool),
			Sessions:      NewSessionRepository(pool),
			Assets:        NewAssetRepository(pool),
			Leaves:        NewLeaveRepository(pool),
			Attendance:    NewAttendanceRepository(pool),
			Notifications: NewNotificationRepository(pool),
			Todos:         NewTodoRepository(pool),
			Feedback:      NewFeedbackRepository(pool),
			Audit:         NewAuditRepository(pool),
			Outbox:        NewOutboxRepository(pool),
			Settings:      NewSettingsRepository(pool),
		},
	}, nil
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() persistence.Repositories {
	return s.repos
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
	if _, err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// repository carries the helpers every SQLite repository shares.
type repository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

func newRepository(pool *ConnectionPool) repository {
	return repository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// inTx runs fn in a write transaction, retrying on lock contention.
func (r repository) inTx(ctx context.Context, fn TransactionFunc) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, fn)
	})
}

// exec runs a single statement and maps its error.
func (r repository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return affected, nil
}

// requireAffected converts a zero row count into ErrNotFound.
func requireAffected(affected int64, err error) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
