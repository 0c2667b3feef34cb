package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/orgdesk/internal/persistence/sqlite"
	"github.com/example/orgdesk/internal/persistence/sqlite/migration"
)

// OpenSQLiteStore returns a migrated SQLite store backed by a temporary file.
// The store is closed when the test finishes.
func OpenSQLiteStore(tb testing.TB) *sqlite.Store {
	tb.Helper()

	ctx := context.Background()
	path := filepath.Join(tb.TempDir(), "orgdesk.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.Open(ctx, migration.TempFileTestSQLiteConfig(path), logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return store
}

// NewSQLiteHarness builds a Harness whose services run over a fresh SQLite store.
func NewSQLiteHarness(tb testing.TB, opts ...HarnessOption) *Harness {
	tb.Helper()
	return NewHarness(tb, append([]HarnessOption{WithStore(OpenSQLiteStore(tb))}, opts...)...)
}
