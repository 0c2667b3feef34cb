package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteExecutor implements Executor for SQLite databases.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return NewDatabaseError(0, "create schema_migrations table", err)
	}
	return nil
}

// Apply runs every statement of the migration and records it in one transaction.
func (e *SQLiteExecutor) Apply(ctx context.Context, migration Migration) (elapsed time.Duration, err error) {
	started := e.now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewDatabaseError(migration.Version, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	statements := SplitStatements(migration.SQL)
	if len(statements) == 0 {
		err = NewMigrationError(migration.Version, migration.Name, "parse SQL", fmt.Errorf("no SQL statements found"))
		return 0, err
	}
	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			err = NewDatabaseError(migration.Version, fmt.Sprintf("execute statement %d", i+1), execErr)
			return 0, err
		}
	}

	elapsed = e.now().Sub(started)
	if _, execErr := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum, applied_at, execution_time_ms) VALUES (?, ?, ?, ?, ?)`,
		migration.Version, migration.Name, migration.Checksum, e.now().UTC().Format(timestampLayout), elapsed.Milliseconds(),
	); execErr != nil {
		err = NewDatabaseError(migration.Version, "record migration", execErr)
		return 0, err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = NewDatabaseError(migration.Version, "commit transaction", commitErr)
		return 0, err
	}
	return elapsed, nil
}

// AppliedMigrations returns every recorded migration in version order.
func (e *SQLiteExecutor) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT version, checksum, applied_at, execution_time_ms FROM schema_migrations ORDER BY version ASC`)
	if err != nil {
		return nil, NewDatabaseError(0, "list applied migrations", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			item      AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&item.Version, &item.Checksum, &appliedAt, &elapsedMs); err != nil {
			return nil, NewDatabaseError(0, "scan applied migration", err)
		}
		if item.AppliedAt, err = time.Parse(timestampLayout, appliedAt); err != nil {
			return nil, NewDatabaseError(item.Version, "parse applied_at", err)
		}
		item.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, item)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError(0, "iterate applied migrations", err)
	}
	return applied, nil
}
