package migration

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScanner_Scan(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_add_notes.sql":      {Data: []byte("-- Description: Add notes column\nALTER TABLE items ADD COLUMN notes TEXT;\n")},
		"migrations/001_initial_schema.sql": {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);\n")},
		"migrations/README.md":              {Data: []byte("ignored")},
	}

	migrations, err := NewScanner(fsys, "migrations").Scan()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial schema", migrations[0].Description)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "Add notes column", migrations[1].Description)
	assert.Len(t, migrations[0].Checksum, 64)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
}

func TestScanner_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		files   fstest.MapFS
		wantErr error
	}{
		{
			name:    "bad filename",
			files:   fstest.MapFS{"m/initial.sql": {Data: []byte("SELECT 1;")}},
			wantErr: ErrInvalidMigrationFile,
		},
		{
			name:    "zero version",
			files:   fstest.MapFS{"m/000_nothing.sql": {Data: []byte("SELECT 1;")}},
			wantErr: ErrInvalidMigrationFile,
		},
		{
			name:    "comments only",
			files:   fstest.MapFS{"m/001_empty.sql": {Data: []byte("-- nothing here\n")}},
			wantErr: ErrInvalidMigrationFile,
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"m/001_first.sql":  {Data: []byte("SELECT 1;")},
				"m/0001_again.sql": {Data: []byte("SELECT 2;")},
			},
			wantErr: ErrDuplicateVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScanner(tt.files, "m").Scan()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestSplitStatements(t *testing.T) {
	script := `
-- leading comment
CREATE TABLE a (id INTEGER);

  -- indented comment
CREATE INDEX idx_a ON a(id);
;
`
	assert.Equal(t, []string{"CREATE TABLE a (id INTEGER)", "CREATE INDEX idx_a ON a(id)"}, SplitStatements(script))
}

func TestManager_Run(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"migrations/001_items.sql": {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL);\nCREATE INDEX idx_items_name ON items(name);\n")},
	}

	manager := NewManager(NewScanner(fsys, "migrations"), NewSQLiteExecutor(db), quietLogger())
	applied, err := manager.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	_, err = db.ExecContext(ctx, `INSERT INTO items (id, name) VALUES ('a', 'first')`)
	require.NoError(t, err)

	applied, err = manager.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	fsys["migrations/002_notes.sql"] = &fstest.MapFile{Data: []byte("ALTER TABLE items ADD COLUMN notes TEXT;")}
	applied, err = manager.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	status, err := manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.CurrentVersion)
	assert.Len(t, status.Applied, 2)
	assert.Empty(t, status.Pending)
}

func TestManager_RunRollsBackFailedMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"migrations/001_broken.sql": {Data: []byte("CREATE TABLE ok_table (id INTEGER);\nCREATE TABLE broken (;\n")},
	}

	manager := NewManager(NewScanner(fsys, "migrations"), NewSQLiteExecutor(db), quietLogger())
	_, err := manager.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMigrationFailed))

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'ok_table'`).Scan(&count))
	assert.Zero(t, count)

	status, err := manager.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.CurrentVersion)
	assert.Len(t, status.Pending, 1)
}

func TestManager_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"migrations/001_items.sql": {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);")},
	}
	manager := NewManager(NewScanner(fsys, "migrations"), NewSQLiteExecutor(db), quietLogger())
	_, err := manager.Run(ctx)
	require.NoError(t, err)

	t.Run("checksum mismatch", func(t *testing.T) {
		changed := fstest.MapFS{
			"migrations/001_items.sql": {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY, extra TEXT);")},
		}
		_, err := NewManager(NewScanner(changed, "migrations"), NewSQLiteExecutor(db), quietLogger()).Run(ctx)
		assert.True(t, errors.Is(err, ErrChecksumMismatch), "got %v", err)
	})

	t.Run("unknown version", func(t *testing.T) {
		empty := fstest.MapFS{"migrations/.keep": {Data: nil}}
		_, err := NewManager(NewScanner(empty, "migrations"), NewSQLiteExecutor(db), quietLogger()).Status(ctx)
		assert.True(t, errors.Is(err, ErrUnknownVersion), "got %v", err)
	})
}

func TestSQLiteConfig_ConnectionString(t *testing.T) {
	cfg := DefaultSQLiteConfig("data/orgdesk.db")
	dsn := cfg.ConnectionString()
	assert.Contains(t, dsn, "file:data/orgdesk.db?")
	assert.Contains(t, dsn, "_pragma=busy_timeout(10000)")
	assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")
	assert.Contains(t, dsn, "_txlock=immediate")

	cfg = DefaultSQLiteConfig("file:x.db?_pragma=busy_timeout(5000)")
	dsn = cfg.ConnectionString()
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	assert.NotContains(t, dsn, "busy_timeout(10000)")

	bad := DefaultSQLiteConfig("")
	assert.Error(t, bad.Validate())
	bad = DefaultSQLiteConfig("x.db")
	bad.JournalMode = "sideways"
	assert.Error(t, bad.Validate())
}
