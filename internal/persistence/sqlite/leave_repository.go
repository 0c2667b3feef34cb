package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/orgdesk/internal/persistence"
)

const leaveColumns = `id, employee_id, leave_type, start_date, end_date, reason, status, approved_by,
	rejection_reason, reviewed_at, created_at, updated_at`

// LeaveRepository implements persistence.LeaveRepository using SQLite
type LeaveRepository struct {
	repository
}

// NewLeaveRepository creates a new SQLite leave repository
func NewLeaveRepository(pool *ConnectionPool) *LeaveRepository {
	return &LeaveRepository{repository: newRepository(pool)}
}

// CreateLeave inserts a new leave request.
func (r *LeaveRepository) CreateLeave(ctx context.Context, leave persistence.Leave) error {
	if leave.ID == "" || leave.EndDate.Before(leave.StartDate) {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO leaves (` + leaveColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.exec(ctx, query,
		leave.ID,
		leave.EmployeeID,
		string(leave.LeaveType),
		formatDate(leave.StartDate),
		formatDate(leave.EndDate),
		leave.Reason,
		string(leave.Status),
		leave.ApprovedBy,
		leave.RejectionReason,
		formatNullableTime(leave.ReviewedAt),
		formatTime(leave.CreatedAt),
		formatTime(leave.UpdatedAt),
	)
	return err
}

// GetLeave retrieves a leave by id.
func (r *LeaveRepository) GetLeave(ctx context.Context, id string) (persistence.Leave, error) {
	leave, err := scanLeave(r.helper.QueryRow(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = ?`, id))
	if err != nil {
		return persistence.Leave{}, r.mapper.MapError(err)
	}
	return leave, nil
}

// ListLeaves returns matching leaves, newest first.
func (r *LeaveRepository) ListLeaves(ctx context.Context, filter persistence.LeaveFilter) ([]persistence.Leave, error) {
	var where whereClause
	if filter.EmployeeID != "" {
		where.add("employee_id = ?", filter.EmployeeID)
	}
	where.in("status", stringsOf(filter.Statuses))
	if filter.OverlapsTo != nil {
		where.add("start_date <= ?", formatDate(*filter.OverlapsTo))
	}
	if filter.OverlapsFrom != nil {
		where.add("end_date >= ?", formatDate(*filter.OverlapsFrom))
	}

	rows, err := r.helper.Query(ctx, `SELECT `+leaveColumns+` FROM leaves`+where.String()+` ORDER BY created_at DESC, id DESC`, where.args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	leaves := make([]persistence.Leave, 0)
	for rows.Next() {
		leave, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leave)
	}
	return leaves, r.mapper.MapError(rows.Err())
}

// DeleteLeave removes the leave while it is still in status.
func (r *LeaveRepository) DeleteLeave(ctx context.Context, id string, status persistence.LeaveStatus) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := expectLeaveStatusTx(ctx, r.helper, tx, id, status); err != nil {
			return err
		}
		_, err := r.helper.ExecTx(ctx, tx, `DELETE FROM leaves WHERE id = ?`, id)
		return err
	})
	return r.mapper.MapError(err)
}

// CommitLeaveDecision stores the reviewed leave, upserts its attendance rows
// and records the outbox messages in one transaction.
func (r *LeaveRepository) CommitLeaveDecision(ctx context.Context, decision persistence.LeaveDecision) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		leave := decision.Leave
		if err := expectLeaveStatusTx(ctx, r.helper, tx, leave.ID, persistence.LeavePending); err != nil {
			return err
		}

		query := `
			UPDATE leaves
			SET leave_type = ?, start_date = ?, end_date = ?, reason = ?, status = ?, approved_by = ?,
				rejection_reason = ?, reviewed_at = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := r.helper.ExecTx(ctx, tx, query,
			string(leave.LeaveType),
			formatDate(leave.StartDate),
			formatDate(leave.EndDate),
			leave.Reason,
			string(leave.Status),
			leave.ApprovedBy,
			leave.RejectionReason,
			formatNullableTime(leave.ReviewedAt),
			formatTime(leave.UpdatedAt),
			leave.ID,
		); err != nil {
			return err
		}

		for _, row := range decision.Attendance {
			if _, err := upsertAttendanceTx(ctx, r.helper, tx, row); err != nil {
				return err
			}
		}
		return enqueueOutboxTx(ctx, r.helper, tx, decision.Outbox)
	})
	return r.mapper.MapError(err)
}

func expectLeaveStatusTx(ctx context.Context, helper *QueryHelper, tx *sql.Tx, id string, want persistence.LeaveStatus) error {
	var status string
	if err := helper.QueryRowTx(ctx, tx, `SELECT status FROM leaves WHERE id = ?`, id).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}
		return err
	}
	if persistence.LeaveStatus(status) != want {
		return persistence.ErrStaleState
	}
	return nil
}

func scanLeave(row rowScanner) (persistence.Leave, error) {
	var (
		leave                persistence.Leave
		leaveType, status    string
		startDate, endDate   string
		reviewedAt           sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&leave.ID,
		&leave.EmployeeID,
		&leaveType,
		&startDate,
		&endDate,
		&leave.Reason,
		&status,
		&leave.ApprovedBy,
		&leave.RejectionReason,
		&reviewedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Leave{}, err
	}

	var d decoder
	leave.LeaveType = persistence.LeaveType(leaveType)
	leave.Status = persistence.LeaveStatus(status)
	leave.StartDate = d.date("start_date", startDate)
	leave.EndDate = d.date("end_date", endDate)
	leave.ReviewedAt = d.nullableTime("reviewed_at", reviewedAt)
	leave.CreatedAt = d.time("created_at", createdAt)
	leave.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return persistence.Leave{}, fmt.Errorf("leave %s: %w", leave.ID, d.err)
	}
	return leave, nil
}
