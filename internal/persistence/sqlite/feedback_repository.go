package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/orgdesk/internal/persistence"
)

const feedbackColumns = `id, author_id, category, subject, message, is_anonymous, status, admin_response,
	responded_by, responded_at, created_at, updated_at`

// FeedbackRepository implements persistence.FeedbackRepository using SQLite
type FeedbackRepository struct {
	repository
}

// NewFeedbackRepository creates a new SQLite feedback repository
func NewFeedbackRepository(pool *ConnectionPool) *FeedbackRepository {
	return &FeedbackRepository{repository: newRepository(pool)}
}

// CreateFeedback inserts a new feedback entry.
func (r *FeedbackRepository) CreateFeedback(ctx context.Context, feedback persistence.Feedback) error {
	if feedback.ID == "" || feedback.AuthorID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.exec(ctx, `INSERT INTO feedback (`+feedbackColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feedback.ID,
		feedback.AuthorID,
		string(feedback.Category),
		feedback.Subject,
		feedback.Message,
		feedback.IsAnonymous,
		string(feedback.Status),
		feedback.AdminResponse,
		feedback.RespondedBy,
		formatNullableTime(feedback.RespondedAt),
		formatTime(feedback.CreatedAt),
		formatTime(feedback.UpdatedAt),
	)
	return err
}

// GetFeedback retrieves a feedback entry by id.
func (r *FeedbackRepository) GetFeedback(ctx context.Context, id string) (persistence.Feedback, error) {
	feedback, err := scanFeedback(r.helper.QueryRow(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`, id))
	if err != nil {
		return persistence.Feedback{}, r.mapper.MapError(err)
	}
	return feedback, nil
}

// ListFeedback returns matching feedback, newest first.
func (r *FeedbackRepository) ListFeedback(ctx context.Context, filter persistence.FeedbackFilter) ([]persistence.Feedback, error) {
	var where whereClause
	if filter.AuthorID != "" {
		where.add("author_id = ?", filter.AuthorID)
	}
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}

	rows, err := r.helper.Query(ctx, `SELECT `+feedbackColumns+` FROM feedback`+where.String()+` ORDER BY created_at DESC, id DESC`, where.args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Feedback, 0)
	for rows.Next() {
		feedback, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, feedback)
	}
	return out, r.mapper.MapError(rows.Err())
}

// UpdateFeedback replaces the mutable columns of an existing entry.
func (r *FeedbackRepository) UpdateFeedback(ctx context.Context, feedback persistence.Feedback) error {
	query := `
		UPDATE feedback
		SET category = ?, subject = ?, message = ?, is_anonymous = ?, status = ?, admin_response = ?,
			responded_by = ?, responded_at = ?, updated_at = ?
		WHERE id = ?
	`
	return requireAffected(r.exec(ctx, query,
		string(feedback.Category),
		feedback.Subject,
		feedback.Message,
		feedback.IsAnonymous,
		string(feedback.Status),
		feedback.AdminResponse,
		feedback.RespondedBy,
		formatNullableTime(feedback.RespondedAt),
		formatTime(feedback.UpdatedAt),
		feedback.ID,
	))
}

// DeleteFeedback removes a feedback entry.
func (r *FeedbackRepository) DeleteFeedback(ctx context.Context, id string) error {
	return requireAffected(r.exec(ctx, `DELETE FROM feedback WHERE id = ?`, id))
}

func scanFeedback(row rowScanner) (persistence.Feedback, error) {
	var (
		feedback             persistence.Feedback
		category, status     string
		respondedAt          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&feedback.ID,
		&feedback.AuthorID,
		&category,
		&feedback.Subject,
		&feedback.Message,
		&feedback.IsAnonymous,
		&status,
		&feedback.AdminResponse,
		&feedback.RespondedBy,
		&respondedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Feedback{}, err
	}

	var d decoder
	feedback.Category = persistence.FeedbackCategory(category)
	feedback.Status = persistence.FeedbackStatus(status)
	feedback.RespondedAt = d.nullableTime("responded_at", respondedAt)
	feedback.CreatedAt = d.time("created_at", createdAt)
	feedback.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return persistence.Feedback{}, fmt.Errorf("feedback %s: %w", feedback.ID, d.err)
	}
	return feedback, nil
}
