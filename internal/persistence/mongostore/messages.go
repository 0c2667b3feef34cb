package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/orgdesk/internal/persistence"
)

// --- NotificationRepository ---

// CreateNotifications inserts the batch, skipping ids that already exist.
func (s *Store) CreateNotifications(ctx context.Context, notifications []persistence.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(notifications))
	for _, n := range notifications {
		if n.ID == "" || n.RecipientID == "" {
			return persistence.ErrConstraintViolation
		}
		fields, err := setOnInsert(toNotificationDoc(n))
		if err != nil {
			return err
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": n.ID}).
			SetUpdate(bson.M{"$setOnInsert": fields}).
			SetUpsert(true))
	}
	_, err := s.collection(colNotifications).BulkWrite(ctx, models)
	return mapError(err)
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, filter persistence.NotificationFilter) ([]persistence.Notification, error) {
	query := bson.M{"recipient_id": filter.RecipientID}
	if filter.UnreadOnly {
		query["is_read"] = false
	}
	opts := options.Find().SetSort(newestFirst())
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	docs, err := findAll[notificationDoc](ctx, s.collection(colNotifications), query, opts)
	if err != nil {
		return nil, err
	}
	out := make([]persistence.Notification, len(docs))
	for i, doc := range docs {
		out[i] = doc.model()
	}
	return out, nil
}

// CountUnread counts unread notifications for the recipient.
func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	count, err := s.collection(colNotifications).CountDocuments(ctx,
		bson.M{"recipient_id": recipientID, "is_read": false})
	if err != nil {
		return 0, mapError(err)
	}
	return int(count), nil
}

// MarkNotificationRead marks one of the recipient's notifications read. The
// first read time is kept.
func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID string, at time.Time) error {
	coll := s.collection(colNotifications)
	result, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}})
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount > 0 {
		return nil
	}
	count, err := coll.CountDocuments(ctx, bson.M{"_id": id, "recipient_id": recipientID})
	if err != nil {
		return mapError(err)
	}
	if count == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the recipient read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	result, err := s.collection(colNotifications).UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}})
	if err != nil {
		return 0, mapError(err)
	}
	return result.ModifiedCount, nil
}

// DeleteNotification removes one of the recipient's notifications.
func (s *Store) DeleteNotification(ctx context.Context, id, recipientID string) error {
	return requireDeleted(s.collection(colNotifications).DeleteOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID}))
}

// DeleteReadNotifications removes the recipient's read notifications.
func (s *Store) DeleteReadNotifications(ctx context.Context, recipientID string) (int64, error) {
	result, err := s.collection(colNotifications).DeleteMany(ctx,
		bson.M{"recipient_id": recipientID, "is_read": true})
	if err != nil {
		return 0, mapError(err)
	}
	return result.DeletedCount, nil
}

// --- TodoRepository ---

// CreateTodo inserts a new todo.
func (s *Store) CreateTodo(ctx context.Context, todo persistence.Todo) error {
	if todo.ID == "" || todo.OwnerID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.collection(colTodos).InsertOne(ctx, toTodoDoc(todo))
	return mapError(err)
}

// GetTodo retrieves a todo by id.
func (s *Store) GetTodo(ctx context.Context, id string) (persistence.Todo, error) {
	doc, err := findOne[todoDoc](ctx, s.collection(colTodos), bson.M{"_id": id})
	if err != nil {
		return persistence.Todo{}, err
	}
	return doc.model(), nil
}

// ListTodos returns matching todos, newest first.
func (s *Store) ListTodos(ctx context.Context, filter persistence.TodoFilter) ([]persistence.Todo, error) {
	query := bson.M{}
	if filter.OwnerID != "" {
		query["owner_id"] = filter.OwnerID
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	docs, err := findAll[todoDoc](ctx, s.collection(colTodos), query, options.Find().SetSort(newestFirst()))
	if err != nil {
		return nil, err
	}
	out := make([]persistence.Todo, len(docs))
	for i, doc := range docs {
		out[i] = doc.model()
	}
	return out, nil
}

// UpdateTodo replaces an existing todo.
func (s *Store) UpdateTodo(ctx context.Context, todo persistence.Todo) error {
	return requireMatched(s.collection(colTodos).ReplaceOne(ctx, bson.M{"_id": todo.ID}, toTodoDoc(todo)))
}

// DeleteTodo removes a todo.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	return requireDeleted(s.collection(colTodos).DeleteOne(ctx, bson.M{"_id": id}))
}

// --- FeedbackRepository ---

// CreateFeedback inserts a new feedback entry.
func (s *Store) CreateFeedback(ctx context.Context, feedback persistence.Feedback) error {
	if feedback.ID == "" || feedback.AuthorID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.collection(colFeedback).InsertOne(ctx, toFeedbackDoc(feedback))
	return mapError(err)
}

// GetFeedback retrieves a feedback entry by id.
func (s *Store) GetFeedback(ctx context.Context, id string) (persistence.Feedback, error) {
	doc, err := findOne[feedbackDoc](ctx, s.collection(colFeedback), bson.M{"_id": id})
	if err != nil {
		return persistence.Feedback{}, err
	}
	return doc.model(), nil
}

// ListFeedback returns matching feedback, newest first.
func (s *Store) ListFeedback(ctx context.Context, filter persistence.FeedbackFilter) ([]persistence.Feedback, error) {
	query := bson.M{}
	if filter.AuthorID != "" {
		query["author_id"] = filter.AuthorID
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	docs, err := findAll[feedbackDoc](ctx, s.collection(colFeedback), query, options.Find().SetSort(newestFirst()))
	if err != nil {
		return nil, err
	}
	out := make([]persistence.Feedback, len(docs))
	for i, doc := range docs {
		out[i] = doc.model()
	}
	return out, nil
}

// UpdateFeedback replaces an existing feedback entry.
func (s *Store) UpdateFeedback(ctx context.Context, feedback persistence.Feedback) error {
	return requireMatched(s.collection(colFeedback).ReplaceOne(ctx, bson.M{"_id": feedback.ID}, toFeedbackDoc(feedback)))
}

// DeleteFeedback removes a feedback entry.
func (s *Store) DeleteFeedback(ctx context.Context, id string) error {
	return requireDeleted(s.collection(colFeedback).DeleteOne(ctx, bson.M{"_id": id}))
}

// --- AuditRepository ---

// AppendAudit stores the entry unless its id already exists.
func (s *Store) AppendAudit(ctx context.Context, entry persistence.AuditEntry) error {
	if entry.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return insertIfAbsent(ctx, s.collection(colAudit), entry.ID, toAuditDoc(entry))
}

// ListAudit returns matching entries, newest first.
func (s *Store) ListAudit(ctx context.Context, filter persistence.AuditFilter) ([]persistence.AuditEntry, error) {
	query := bson.M{}
	if filter.ActorID != "" {
		query["actor_id"] = filter.ActorID
	}
	if filter.Kind != "" {
		query["reference.kind"] = string(filter.Kind)
	}
	if filter.EntityID != "" {
		query["reference.id"] = filter.EntityID
	}
	opts := options.Find().SetSort(newestFirst())
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	docs, err := findAll[auditDoc](ctx, s.collection(colAudit), query, opts)
	if err != nil {
		return nil, err
	}
	out := make([]persistence.AuditEntry, len(docs))
	for i, doc := range docs {
		out[i] = doc.model()
	}
	return out, nil
}

// --- OutboxRepository ---

// EnqueueOutbox records messages, skipping ids already stored.
func (s *Store) EnqueueOutbox(ctx context.Context, messages []persistence.OutboxMessage) error {
	for _, msg := range messages {
		if msg.ID == "" {
			return persistence.ErrConstraintViolation
		}
	}
	return s.enqueue(ctx, messages)
}

// enqueue writes outbox messages with the caller's context, so inside a
// transaction they commit with the business write.
func (s *Store) enqueue(ctx context.Context, messages []persistence.OutboxMessage) error {
	coll := s.collection(colOutbox)
	for _, msg := range messages {
		if msg.ID == "" {
			return persistence.ErrConstraintViolation
		}
		if err := insertIfAbsent(ctx, coll, msg.ID, toOutboxDoc(msg)); err != nil {
			return err
		}
	}
	return nil
}

// ListDueOutbox returns pending messages available at or before now, oldest first.
func (s *Store) ListDueOutbox(ctx context.Context, now time.Time, limit int) ([]persistence.OutboxMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.listOutbox(ctx, bson.M{
		"status":       string(persistence.OutboxPending),
		"available_at": bson.M{"$lte": now},
	}, opts)
}

// MarkOutboxDispatched records a successful delivery.
func (s *Store) MarkOutboxDispatched(ctx context.Context, id string, at time.Time) error {
	return requireMatched(s.collection(colOutbox).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":        string(persistence.OutboxDispatched),
		"dispatched_at": at,
		"last_error":    "",
	}}))
}

// MarkOutboxAttempt records a failed attempt. A zero nextAttempt marks the
// message failed for good.
func (s *Store) MarkOutboxAttempt(ctx context.Context, id string, attempts int, lastError string, nextAttempt time.Time) error {
	set := bson.M{"attempts": attempts, "last_error": lastError}
	if nextAttempt.IsZero() {
		set["status"] = string(persistence.OutboxFailed)
	} else {
		set["available_at"] = nextAttempt
	}
	return requireMatched(s.collection(colOutbox).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}))
}

// ListOutbox returns messages, newest first.
func (s *Store) ListOutbox(ctx context.Context, filter persistence.OutboxFilter) ([]persistence.OutboxMessage, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	opts := options.Find().SetSort(newestFirst())
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return s.listOutbox(ctx, query, opts)
}

func (s *Store) listOutbox(ctx context.Context, query bson.M, opts *options.FindOptions) ([]persistence.OutboxMessage, error) {
	docs, err := findAll[outboxDoc](ctx, s.collection(colOutbox), query, opts)
	if err != nil {
		return nil, err
	}
	out := make([]persistence.OutboxMessage, len(docs))
	for i, doc := range docs {
		out[i] = doc.model()
	}
	return out, nil
}

// CountOutbox counts messages by status.
func (s *Store) CountOutbox(ctx context.Context) (map[persistence.OutboxStatus]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := s.collection(colOutbox).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, mapError(err)
	}
	counts := make(map[persistence.OutboxStatus]int, len(groups))
	for _, g := range groups {
		counts[persistence.OutboxStatus(g.Status)] = g.Count
	}
	return counts, nil
}
