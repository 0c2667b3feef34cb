package testfixtures

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/example/orgdesk/internal/persistence/mongostore"
)

// MongoURIEnv names the variable that enables tests against a live MongoDB
// replica set.
const MongoURIEnv = "ORGDESK_TEST_MONGO_URI"

// OpenMongoStore returns a migrated store on a fresh database, or skips the
// test when MongoURIEnv is unset. The database is dropped when the test ends.
func OpenMongoStore(tb testing.TB) *mongostore.Store {
	tb.Helper()

	uri := os.Getenv(MongoURIEnv)
	if uri == "" {
		tb.Skipf("%s not set", MongoURIEnv)
	}

	ctx := context.Background()
	store, err := mongostore.Open(ctx, mongostore.Config{
		URI:            uri,
		Database:       fmt.Sprintf("orgdesk_test_%d", time.Now().UnixNano()),
		ConnectTimeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		tb.Fatalf("failed to open mongo storage: %v", err)
	}
	tb.Cleanup(func() {
		_ = store.Database().Drop(context.Background())
		_ = store.Close()
	})

	if err := store.Migrate(ctx); err != nil {
		tb.Fatalf("failed to migrate mongo storage: %v", err)
	}
	return store
}
