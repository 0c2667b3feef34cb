package memory

import (
	"context"
	"sort"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

// --- NotificationRepository ---

// CreateNotifications inserts notifications, skipping ids already stored.
func (s *Storage) CreateNotifications(_ context.Context, notifications []persistence.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range notifications {
		if n.ID == "" || n.RecipientID == "" {
			return persistence.ErrConstraintViolation
		}
	}
	for _, n := range notifications {
		if _, ok := s.notifications[n.ID]; ok {
			continue
		}
		s.notifications[n.ID] = cloneNotification(n)
	}
	return nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *Storage) ListNotifications(_ context.Context, filter persistence.NotificationFilter) ([]persistence.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Notification, 0)
	for _, n := range s.notifications {
		if n.RecipientID != filter.RecipientID {
			continue
		}
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		out = append(out, cloneNotification(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountUnread counts unread notifications for the recipient.
func (s *Storage) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkNotificationRead marks one of the recipient's notifications read.
func (s *Storage) MarkNotificationRead(_ context.Context, id, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return persistence.ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
		s.notifications[id] = n
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the recipient read.
func (s *Storage) MarkAllNotificationsRead(_ context.Context, recipientID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for id, n := range s.notifications {
		if n.RecipientID != recipientID || n.IsRead {
			continue
		}
		readAt := at
		n.IsRead = true
		n.ReadAt = &readAt
		s.notifications[id] = n
		updated++
	}
	return updated, nil
}

// DeleteNotification removes one of the recipient's notifications.
func (s *Storage) DeleteNotification(_ context.Context, id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return persistence.ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

// DeleteReadNotifications removes the recipient's read notifications.
func (s *Storage) DeleteReadNotifications(_ context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, n := range s.notifications {
		if n.RecipientID == recipientID && n.IsRead {
			delete(s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

// --- TodoRepository ---

// CreateTodo stores a new todo.
func (s *Storage) CreateTodo(_ context.Context, todo persistence.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if todo.ID == "" || todo.OwnerID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.todos[todo.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.todos[todo.ID] = cloneTodo(todo)
	return nil
}

// GetTodo retrieves a todo by id.
func (s *Storage) GetTodo(_ context.Context, id string) (persistence.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	todo, ok := s.todos[id]
	if !ok {
		return persistence.Todo{}, persistence.ErrNotFound
	}
	return cloneTodo(todo), nil
}

// ListTodos returns an owner's todos, newest first.
func (s *Storage) ListTodos(_ context.Context, filter persistence.TodoFilter) ([]persistence.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Todo, 0)
	for _, todo := range s.todos {
		if filter.OwnerID != "" && todo.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && todo.Status != filter.Status {
			continue
		}
		out = append(out, cloneTodo(todo))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateTodo replaces an existing todo.
func (s *Storage) UpdateTodo(_ context.Context, todo persistence.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.todos[todo.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.todos[todo.ID] = cloneTodo(todo)
	return nil
}

// DeleteTodo removes a todo.
func (s *Storage) DeleteTodo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.todos[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.todos, id)
	return nil
}

// --- FeedbackRepository ---

// CreateFeedback stores a new feedback entry.
func (s *Storage) CreateFeedback(_ context.Context, feedback persistence.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if feedback.ID == "" || feedback.AuthorID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.feedback[feedback.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.feedback[feedback.ID] = cloneFeedback(feedback)
	return nil
}

// GetFeedback retrieves a feedback entry by id.
func (s *Storage) GetFeedback(_ context.Context, id string) (persistence.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feedback, ok := s.feedback[id]
	if !ok {
		return persistence.Feedback{}, persistence.ErrNotFound
	}
	return cloneFeedback(feedback), nil
}

// ListFeedback returns matching feedback, newest first.
func (s *Storage) ListFeedback(_ context.Context, filter persistence.FeedbackFilter) ([]persistence.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Feedback, 0)
	for _, feedback := range s.feedback {
		if filter.AuthorID != "" && feedback.AuthorID != filter.AuthorID {
			continue
		}
		if filter.Status != "" && feedback.Status != filter.Status {
			continue
		}
		out = append(out, cloneFeedback(feedback))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateFeedback replaces an existing feedback entry.
func (s *Storage) UpdateFeedback(_ context.Context, feedback persistence.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feedback[feedback.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.feedback[feedback.ID] = cloneFeedback(feedback)
	return nil
}

// DeleteFeedback removes a feedback entry.
func (s *Storage) DeleteFeedback(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feedback[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.feedback, id)
	return nil
}

// --- AuditRepository ---

// AppendAudit stores an audit entry unless its id already exists.
func (s *Storage) AppendAudit(_ context.Context, entry persistence.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.audit[entry.ID]; ok {
		return nil
	}
	s.audit[entry.ID] = cloneAudit(entry)
	return nil
}

// ListAudit returns matching entries, newest first.
func (s *Storage) ListAudit(_ context.Context, filter persistence.AuditFilter) ([]persistence.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.AuditEntry, 0)
	for _, entry := range s.audit {
		if filter.ActorID != "" && entry.ActorID != filter.ActorID {
			continue
		}
		if filter.Kind != "" && (entry.Reference == nil || entry.Reference.Kind != filter.Kind) {
			continue
		}
		if filter.EntityID != "" && (entry.Reference == nil || entry.Reference.ID != filter.EntityID) {
			continue
		}
		out = append(out, cloneAudit(entry))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- OutboxRepository ---

// EnqueueOutbox records pending messages, skipping ids already stored.
func (s *Storage) EnqueueOutbox(_ context.Context, messages []persistence.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range messages {
		if msg.ID == "" {
			return persistence.ErrConstraintViolation
		}
	}
	s.enqueueLocked(messages)
	return nil
}

func (s *Storage) enqueueLocked(messages []persistence.OutboxMessage) {
	for _, msg := range messages {
		if _, ok := s.outbox[msg.ID]; ok {
			continue
		}
		if msg.Status == "" {
			msg.Status = persistence.OutboxPending
		}
		msg.Payload = append([]byte(nil), msg.Payload...)
		s.outbox[msg.ID] = msg
	}
}

// ListDueOutbox returns pending messages available at or before now, oldest first.
func (s *Storage) ListDueOutbox(_ context.Context, now time.Time, limit int) ([]persistence.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.OutboxMessage, 0)
	for _, msg := range s.outbox {
		if msg.Status != persistence.OutboxPending || msg.AvailableAt.After(now) {
			continue
		}
		out = append(out, cloneOutbox(msg))
	}
	sortOutboxOldestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkOutboxDispatched records a successful delivery.
func (s *Storage) MarkOutboxDispatched(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.outbox[id]
	if !ok {
		return persistence.ErrNotFound
	}
	msg.Status = persistence.OutboxDispatched
	msg.DispatchedAt = &at
	msg.LastError = ""
	s.outbox[id] = msg
	return nil
}

// MarkOutboxAttempt records a failed delivery attempt.
func (s *Storage) MarkOutboxAttempt(_ context.Context, id string, attempts int, lastError string, nextAttempt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.outbox[id]
	if !ok {
		return persistence.ErrNotFound
	}
	msg.Attempts = attempts
	msg.LastError = lastError
	if nextAttempt.IsZero() {
		msg.Status = persistence.OutboxFailed
	} else {
		msg.AvailableAt = nextAttempt
	}
	s.outbox[id] = msg
	return nil
}

// ListOutbox returns messages, newest first.
func (s *Storage) ListOutbox(_ context.Context, filter persistence.OutboxFilter) ([]persistence.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.OutboxMessage, 0)
	for _, msg := range s.outbox {
		if filter.Status != "" && msg.Status != filter.Status {
			continue
		}
		out = append(out, cloneOutbox(msg))
	}
	sortOutboxOldestFirst(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountOutbox counts messages by status.
func (s *Storage) CountOutbox(context.Context) (map[persistence.OutboxStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[persistence.OutboxStatus]int)
	for _, msg := range s.outbox {
		counts[msg.Status]++
	}
	return counts, nil
}

func sortOutboxOldestFirst(messages []persistence.OutboxMessage) {
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

func cloneNotification(n persistence.Notification) persistence.Notification {
	n.ReadAt = cloneTime(n.ReadAt)
	if n.Reference != nil {
		ref := *n.Reference
		n.Reference = &ref
	}
	return n
}

func cloneTodo(todo persistence.Todo) persistence.Todo {
	todo.DueDate = cloneTime(todo.DueDate)
	todo.CompletedAt = cloneTime(todo.CompletedAt)
	return todo
}

func cloneFeedback(feedback persistence.Feedback) persistence.Feedback {
	feedback.RespondedAt = cloneTime(feedback.RespondedAt)
	return feedback
}

func cloneAudit(entry persistence.AuditEntry) persistence.AuditEntry {
	if entry.Reference != nil {
		ref := *entry.Reference
		entry.Reference = &ref
	}
	if entry.Metadata != nil {
		meta := make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			meta[k] = v
		}
		entry.Metadata = meta
	}
	return entry
}

func cloneOutbox(msg persistence.OutboxMessage) persistence.OutboxMessage {
	msg.Payload = append([]byte(nil), msg.Payload...)
	msg.DispatchedAt = cloneTime(msg.DispatchedAt)
	return msg
}
