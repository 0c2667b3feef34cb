package migration

import (
	"context"
	"time"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
	Checksum    string
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       int
	Checksum      string
	AppliedAt     time.Time
	ExecutionTime time.Duration
}

// Status summarises the schema state of a database.
type Status struct {
	CurrentVersion int
	Applied        []AppliedMigration
	Pending        []Migration
}

// Scanner loads the available migrations in ascending version order.
type Scanner interface {
	Scan() ([]Migration, error)
}

// Executor applies migrations and tracks which versions ran.
type Executor interface {
	InitializeVersionTable(ctx context.Context) error
	// Apply runs the migration and records it in one transaction.
	Apply(ctx context.Context, migration Migration) (time.Duration, error)
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
}
