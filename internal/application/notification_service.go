package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationPublisher pushes freshly delivered notifications to live clients.
type NotificationPublisher interface {
	Publish(ctx context.Context, notification persistence.Notification)
}

// NotificationService exposes the recipient side of notifications and applies
// notification intents handed over by the outbox dispatcher.
type NotificationService struct {
	notifications persistence.NotificationRepository
	publisher     NotificationPublisher
	now           func() time.Time
	logger        *slog.Logger
}

// NewNotificationService constructs a notification service.
func NewNotificationService(notifications persistence.NotificationRepository, now func() time.Time) *NotificationService {
	return NewNotificationServiceWithLogger(notifications, nil, now, nil)
}

// NewNotificationServiceWithLogger constructs a notification service with an
// optional live publisher and a logger.
func NewNotificationServiceWithLogger(notifications persistence.NotificationRepository, publisher NotificationPublisher, now func() time.Time, logger *slog.Logger) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		notifications: notifications,
		publisher:     publisher,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (s *NotificationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NotificationService", operation, attrs...)
}

// Deliver fans intent out to its recipients. Notification ids derive from
// messageID and the recipient position so a redelivered message inserts nothing new.
// The sender never receives their own notification.
func (s *NotificationService) Deliver(ctx context.Context, messageID string, intent NotificationIntent) (delivered []persistence.Notification, err error) {
	if s == nil {
		err = fmt.Errorf("NotificationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Deliver", "message_id", messageID, "kind", intent.Kind)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to deliver notifications", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("recipients", len(delivered)).DebugContext(ctx, "notifications delivered")
	}()

	now := s.now()
	seen := make(map[string]struct{}, len(intent.RecipientIDs))
	for i, recipientID := range intent.RecipientIDs {
		if recipientID == "" || recipientID == intent.SenderID {
			continue
		}
		if _, dup := seen[recipientID]; dup {
			continue
		}
		seen[recipientID] = struct{}{}
		delivered = append(delivered, persistence.Notification{
			ID:          fmt.Sprintf("%s-%d", messageID, i),
			RecipientID: recipientID,
			SenderID:    intent.SenderID,
			Kind:        intent.Kind,
			Title:       intent.Title,
			Message:     intent.Message,
			Reference:   intent.Reference,
			CreatedAt:   now,
		})
	}
	if len(delivered) == 0 {
		return
	}

	if err = s.notifications.CreateNotifications(ctx, delivered); err != nil {
		delivered = nil
		return
	}

	if s.publisher != nil {
		for _, n := range delivered {
			s.publisher.Publish(ctx, n)
		}
	}
	return
}

// List returns the principal's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, principal Principal, unreadOnly bool, limit int) ([]persistence.Notification, error) {
	if s == nil {
		return nil, fmt.Errorf("NotificationService is nil")
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	items, err := s.notifications.ListNotifications(ctx, persistence.NotificationFilter{
		RecipientID: principal.UserID,
		UnreadOnly:  unreadOnly,
		Limit:       limit,
	})
	if err != nil {
		s.loggerWith(ctx, "List", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list notifications", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return items, nil
}

// UnreadCount returns how many of the principal's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, principal Principal) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("NotificationService is nil")
	}
	return s.notifications.CountUnread(ctx, principal.UserID)
}

// MarkRead marks one of the principal's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, principal Principal, notificationID string) (err error) {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}

	logger := s.loggerWith(ctx, "MarkRead", "principal_id", principal.UserID, "notification_id", notificationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark notification read", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if strings.TrimSpace(notificationID) == "" {
		return notFound("Notification")
	}
	err = mapRepoError("Notification", s.notifications.MarkNotificationRead(ctx, notificationID, principal.UserID, s.now()))
	return
}

// MarkAllRead marks every unread notification of the principal and returns
// how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal Principal) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("NotificationService is nil")
	}
	count, err := s.notifications.MarkAllNotificationsRead(ctx, principal.UserID, s.now())
	if err != nil {
		s.loggerWith(ctx, "MarkAllRead", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to mark notifications read", "error", err, "error_kind", ErrorKind(err))
	}
	return count, err
}

// Delete removes one of the principal's notifications.
func (s *NotificationService) Delete(ctx context.Context, principal Principal, notificationID string) (err error) {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}

	logger := s.loggerWith(ctx, "Delete", "principal_id", principal.UserID, "notification_id", notificationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete notification", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	err = mapRepoError("Notification", s.notifications.DeleteNotification(ctx, notificationID, principal.UserID))
	return
}

// DeleteRead removes every read notification of the principal.
func (s *NotificationService) DeleteRead(ctx context.Context, principal Principal) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("NotificationService is nil")
	}
	count, err := s.notifications.DeleteReadNotifications(ctx, principal.UserID)
	if err != nil {
		s.loggerWith(ctx, "DeleteRead", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to delete read notifications", "error", err, "error_kind", ErrorKind(err))
	}
	return count, err
}
