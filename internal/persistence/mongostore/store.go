// Package mongostore implements the persistence repositories on MongoDB.
//
// Multi-document commits (asset assign/return, leave decisions, justification
// reviews and device ingests) run inside driver transactions, so the server
// must be a replica set or sharded cluster.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/example/orgdesk/internal/persistence"
)

// Collection names.
const (
	colEmployees     = "employees"
	colSessions      = "sessions"
	colCounters      = "counters"
	colAssets        = "assets"
	colAssignments   = "asset_assignments"
	colLeaves        = "leaves"
	colAttendance    = "attendance"
	colWatermarks    = "device_watermarks"
	colNotifications = "notifications"
	colTodos         = "todos"
	colFeedback      = "feedback"
	colAudit         = "audit_entries"
	colOutbox        = "outbox"
	colSettings      = "settings"
)

// Config describes how to reach the database.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

func (c Config) withDefaults() Config {
	if c.Database == "" {
		c.Database = "orgdesk"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 20 * time.Second
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = 50
	}
	return c
}

// Store implements every persistence repository on one MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

var _ persistence.Store = (*Store)(nil)

// Open connects to MongoDB and verifies the connection with a ping.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	if config.URI == "" {
		return nil, errors.New("mongostore: uri is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	config = config.withDefaults()

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(config.ConnectTimeout).
		SetServerSelectionTimeout(config.ConnectTimeout).
		SetMaxPoolSize(config.MaxPoolSize)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	logger.Info("connected to mongodb", "database", config.Database)
	return &Store{
		client: client,
		db:     client.Database(config.Database),
		logger: logger,
	}, nil
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() persistence.Repositories {
	return persistence.Repositories{
		Employees:     s,
		Sessions:      s,
		Assets:        s,
		Leaves:        s,
		Attendance:    s,
		Notifications: s,
		Todos:         s,
		Feedback:      s,
		Audit:         s,
		Outbox:        s,
		Settings:      s,
	}
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Migrate creates the indexes the repositories rely on for uniqueness and ordering.
func (s *Store) Migrate(ctx context.Context) error {
	for collection, models := range indexModels() {
		names, err := s.db.Collection(collection).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("mongostore: create indexes on %s: %w", collection, err)
		}
		s.logger.Debug("ensured indexes", "collection", collection, "indexes", names)
	}
	return nil
}

// Ping checks that the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func indexModels() map[string][]mongo.IndexModel {
	asc := func(keys ...string) bson.D {
		d := make(bson.D, 0, len(keys))
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return d
	}
	unique := func(name string) *options.IndexOptions {
		return options.Index().SetName(name).SetUnique(true)
	}

	return map[string][]mongo.IndexModel{
		colEmployees: {
			{Keys: asc("email_key"), Options: unique("ux_employees_email")},
			{
				Keys: asc("device_user_id"),
				Options: unique("ux_employees_device_user").
					SetPartialFilterExpression(bson.M{"device_user_id": bson.M{"$gt": ""}}),
			},
			{Keys: asc("display_name", "_id")},
		},
		colSessions: {
			{Keys: asc("token"), Options: unique("ux_sessions_token")},
			{Keys: asc("expires_at")},
		},
		colAssets: {
			{Keys: asc("code"), Options: unique("ux_assets_code")},
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		},
		colAssignments: {
			{Keys: asc("asset_id", "status")},
			{Keys: asc("employee_id", "status")},
		},
		colLeaves: {
			{Keys: asc("employee_id", "start_date", "end_date")},
		},
		colAttendance: {
			{Keys: asc("employee_id", "work_date"), Options: unique("ux_attendance_day")},
			{Keys: bson.D{{Key: "work_date", Value: -1}, {Key: "employee_id", Value: 1}}},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colTodos: {
			{Keys: asc("owner_id", "status")},
		},
		colFeedback: {
			{Keys: asc("author_id", "status")},
		},
		colAudit: {
			{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: asc("reference.kind", "reference.id")},
		},
		colOutbox: {
			{Keys: asc("status", "available_at", "created_at")},
		},
	}
}

// inTx runs fn inside a transaction. fn must use the session context it is
// given for every operation that belongs to the transaction.
func (s *Store) inTx(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongostore: start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return mapError(err)
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// mapError translates driver errors into persistence sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case isPersistenceError(err):
		return err
	case errors.Is(err, mongo.ErrNoDocuments):
		return persistence.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	}
	return err
}

func isPersistenceError(err error) bool {
	for _, target := range []error{
		persistence.ErrNotFound,
		persistence.ErrDuplicate,
		persistence.ErrConstraintViolation,
		persistence.ErrVersionConflict,
		persistence.ErrStaleState,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// requireMatched converts an update that matched nothing into ErrNotFound.
func requireMatched(result *mongo.UpdateResult, err error) error {
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// requireDeleted converts a delete that removed nothing into ErrNotFound.
func requireDeleted(result *mongo.DeleteResult, err error) error {
	if err != nil {
		return mapError(err)
	}
	if result.DeletedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// insertIfAbsent inserts doc under id unless a document with that id exists.
func insertIfAbsent(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	fields, err := setOnInsert(doc)
	if err != nil {
		return err
	}
	_, err = coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": fields},
		options.Update().SetUpsert(true),
	)
	return mapError(err)
}

// setOnInsert renders doc as an update document without its immutable _id.
func setOnInsert(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("mongostore: encode document: %w", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("mongostore: decode document: %w", err)
	}
	delete(fields, "_id")
	return fields, nil
}

// newestFirst sorts by creation time then id, both descending.
func newestFirst() bson.D {
	return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
}

func findAll[D any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]D, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	docs := make([]D, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}
	return docs, nil
}

func findOne[D any](ctx context.Context, coll *mongo.Collection, filter any) (D, error) {
	var doc D
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return doc, mapError(err)
	}
	return doc, nil
}

func inValues[T ~string](values []T) bson.M {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return bson.M{"$in": out}
}
