package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

const notificationColumns = `id, recipient_id, sender_id, kind, title, message, ref_kind, ref_id, is_read, read_at, created_at`

// NotificationRepository implements persistence.NotificationRepository using SQLite
type NotificationRepository struct {
	repository
}

// NewNotificationRepository creates a new SQLite notification repository
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{repository: newRepository(pool)}
}

// CreateNotifications inserts the batch, skipping ids that already exist.
func (r *NotificationRepository) CreateNotifications(ctx context.Context, notifications []persistence.Notification) error {
	for _, n := range notifications {
		if n.ID == "" || n.RecipientID == "" {
			return persistence.ErrConstraintViolation
		}
	}
	if len(notifications) == 0 {
		return nil
	}

	query := `INSERT INTO notifications (` + notificationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, n := range notifications {
			refKind, refID := splitReference(n.Reference)
			if _, err := r.helper.ExecTx(ctx, tx, query,
				n.ID,
				n.RecipientID,
				n.SenderID,
				string(n.Kind),
				n.Title,
				n.Message,
				refKind,
				refID,
				n.IsRead,
				formatNullableTime(n.ReadAt),
				formatTime(n.CreatedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
	return r.mapper.MapError(err)
}

// ListNotifications returns a recipient's notifications, newest first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, filter persistence.NotificationFilter) ([]persistence.Notification, error) {
	var where whereClause
	where.add("recipient_id = ?", filter.RecipientID)
	if filter.UnreadOnly {
		where.add("is_read = 0")
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications` + where.String() +
		` ORDER BY created_at DESC, id DESC` + limitClause(filter.Limit)
	rows, err := r.helper.Query(ctx, query, where.args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, r.mapper.MapError(rows.Err())
}

// CountUnread counts unread notifications for the recipient.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID).Scan(&count)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// MarkNotificationRead marks one of the recipient's notifications read. The
// first read time is kept.
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, id, recipientID string, at time.Time) error {
	return requireAffected(r.exec(ctx,
		`UPDATE notifications SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE id = ? AND recipient_id = ?`,
		formatTime(at), id, recipientID))
}

// MarkAllNotificationsRead marks every unread notification of the recipient read.
func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	return r.exec(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE recipient_id = ? AND is_read = 0`,
		formatTime(at), recipientID)
}

// DeleteNotification removes one of the recipient's notifications.
func (r *NotificationRepository) DeleteNotification(ctx context.Context, id, recipientID string) error {
	return requireAffected(r.exec(ctx, `DELETE FROM notifications WHERE id = ? AND recipient_id = ?`, id, recipientID))
}

// DeleteReadNotifications removes the recipient's read notifications.
func (r *NotificationRepository) DeleteReadNotifications(ctx context.Context, recipientID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM notifications WHERE recipient_id = ? AND is_read = 1`, recipientID)
}

func scanNotification(row rowScanner) (persistence.Notification, error) {
	var (
		n              persistence.Notification
		kind           string
		refKind, refID string
		readAt         sql.NullString
		createdAt      string
	)
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.SenderID,
		&kind,
		&n.Title,
		&n.Message,
		&refKind,
		&refID,
		&n.IsRead,
		&readAt,
		&createdAt,
	); err != nil {
		return persistence.Notification{}, err
	}

	var d decoder
	n.Kind = persistence.NotificationKind(kind)
	n.Reference = joinReference(refKind, refID)
	n.ReadAt = d.nullableTime("read_at", readAt)
	n.CreatedAt = d.time("created_at", createdAt)
	if d.err != nil {
		return persistence.Notification{}, fmt.Errorf("notification %s: %w", n.ID, d.err)
	}
	return n, nil
}

func splitReference(ref *persistence.Reference) (string, string) {
	if ref == nil {
		return "", ""
	}
	return string(ref.Kind), ref.ID
}

func joinReference(kind, id string) *persistence.Reference {
	if kind == "" {
		return nil
	}
	return &persistence.Reference{Kind: persistence.ReferenceKind(kind), ID: id}
}
