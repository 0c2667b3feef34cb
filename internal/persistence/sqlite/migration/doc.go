// Package migration applies versioned schema changes to the SQLite store.
//
// Migrations are plain SQL files named {version}_{description}.sql and are
// read from an fs.FS, normally the directory embedded into the sqlite
// package. Each file runs in its own transaction and is recorded in the
// schema_migrations table together with its checksum, so a file that was
// edited after it was applied is reported instead of silently skipped.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewSQLiteExecutor(db), logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
