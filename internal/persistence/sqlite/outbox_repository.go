package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

const outboxColumns = `id, kind, payload, status, attempts, last_error, available_at, created_at, dispatched_at`

// OutboxRepository implements persistence.OutboxRepository using SQLite
type OutboxRepository struct {
	repository
}

// NewOutboxRepository creates a new SQLite outbox repository
func NewOutboxRepository(pool *ConnectionPool) *OutboxRepository {
	return &OutboxRepository{repository: newRepository(pool)}
}

// EnqueueOutbox records pending messages.
func (r *OutboxRepository) EnqueueOutbox(ctx context.Context, messages []persistence.OutboxMessage) error {
	for _, msg := range messages {
		if msg.ID == "" {
			return persistence.ErrConstraintViolation
		}
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		return enqueueOutboxTx(ctx, r.helper, tx, messages)
	})
	return r.mapper.MapError(err)
}

// enqueueOutboxTx records messages inside the caller's transaction so they
// commit together with the business write that produced them.
func enqueueOutboxTx(ctx context.Context, helper *QueryHelper, tx *sql.Tx, messages []persistence.OutboxMessage) error {
	query := `INSERT INTO outbox (` + outboxColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	for _, msg := range messages {
		if msg.ID == "" {
			return persistence.ErrConstraintViolation
		}
		if msg.Status == "" {
			msg.Status = persistence.OutboxPending
		}
		payload := msg.Payload
		if payload == nil {
			payload = []byte{}
		}
		if _, err := helper.ExecTx(ctx, tx, query,
			msg.ID,
			string(msg.Kind),
			payload,
			string(msg.Status),
			msg.Attempts,
			msg.LastError,
			formatTime(msg.AvailableAt),
			formatTime(msg.CreatedAt),
			formatNullableTime(msg.DispatchedAt),
		); err != nil {
			return err
		}
	}
	return nil
}

// ListDueOutbox returns pending messages available at or before now, oldest first.
func (r *OutboxRepository) ListDueOutbox(ctx context.Context, now time.Time, limit int) ([]persistence.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox WHERE status = ? AND available_at <= ?
		ORDER BY created_at ASC, id ASC` + limitClause(limit)
	return r.list(ctx, query, string(persistence.OutboxPending), formatTime(now))
}

// MarkOutboxDispatched records a successful delivery.
func (r *OutboxRepository) MarkOutboxDispatched(ctx context.Context, id string, at time.Time) error {
	return requireAffected(r.exec(ctx,
		`UPDATE outbox SET status = ?, dispatched_at = ?, last_error = '' WHERE id = ?`,
		string(persistence.OutboxDispatched), formatTime(at), id))
}

// MarkOutboxAttempt records a failed delivery attempt. A zero nextAttempt
// parks the message as failed.
func (r *OutboxRepository) MarkOutboxAttempt(ctx context.Context, id string, attempts int, lastError string, nextAttempt time.Time) error {
	if nextAttempt.IsZero() {
		return requireAffected(r.exec(ctx,
			`UPDATE outbox SET status = ?, attempts = ?, last_error = ? WHERE id = ?`,
			string(persistence.OutboxFailed), attempts, lastError, id))
	}
	return requireAffected(r.exec(ctx,
		`UPDATE outbox SET attempts = ?, last_error = ?, available_at = ? WHERE id = ?`,
		attempts, lastError, formatTime(nextAttempt), id))
}

// ListOutbox returns messages, newest first.
func (r *OutboxRepository) ListOutbox(ctx context.Context, filter persistence.OutboxFilter) ([]persistence.OutboxMessage, error) {
	var where whereClause
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	query := `SELECT ` + outboxColumns + ` FROM outbox` + where.String() +
		` ORDER BY created_at DESC, id DESC` + limitClause(filter.Limit)
	return r.list(ctx, query, where.args...)
}

// CountOutbox counts messages by status.
func (r *OutboxRepository) CountOutbox(ctx context.Context) (map[persistence.OutboxStatus]int, error) {
	rows, err := r.helper.Query(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	counts := make(map[persistence.OutboxStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, r.mapper.MapError(err)
		}
		counts[persistence.OutboxStatus(status)] = count
	}
	return counts, r.mapper.MapError(rows.Err())
}

func (r *OutboxRepository) list(ctx context.Context, query string, args ...any) ([]persistence.OutboxMessage, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	out := make([]persistence.OutboxMessage, 0)
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, r.mapper.MapError(rows.Err())
}

func scanOutbox(row rowScanner) (persistence.OutboxMessage, error) {
	var (
		msg                    persistence.OutboxMessage
		kind, status           string
		availableAt, createdAt string
		dispatchedAt           sql.NullString
	)
	if err := row.Scan(
		&msg.ID,
		&kind,
		&msg.Payload,
		&status,
		&msg.Attempts,
		&msg.LastError,
		&availableAt,
		&createdAt,
		&dispatchedAt,
	); err != nil {
		return persistence.OutboxMessage{}, err
	}

	var d decoder
	msg.Kind = persistence.OutboxKind(kind)
	msg.Status = persistence.OutboxStatus(status)
	msg.AvailableAt = d.time("available_at", availableAt)
	msg.CreatedAt = d.time("created_at", createdAt)
	msg.DispatchedAt = d.nullableTime("dispatched_at", dispatchedAt)
	if d.err != nil {
		return persistence.OutboxMessage{}, fmt.Errorf("outbox %s: %w", msg.ID, d.err)
	}
	return msg, nil
}
