package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/orgdesk/internal/persistence"
)

const attendanceColumns = `id, employee_id, work_date, status, check_in, check_out, source, remarks,
	justification_reason, justification_status, justification_submitted_at, justification_reviewed_by,
	justification_reviewed_at, justification_review_note, created_at, updated_at`

// AttendanceRepository implements persistence.AttendanceRepository using SQLite
type AttendanceRepository struct {
	repository
}

// NewAttendanceRepository creates a new SQLite attendance repository
func NewAttendanceRepository(pool *ConnectionPool) *AttendanceRepository {
	return &AttendanceRepository{repository: newRepository(pool)}
}

// UpsertAttendance inserts or replaces the day row for the employee.
func (r *AttendanceRepository) UpsertAttendance(ctx context.Context, row persistence.Attendance) (persistence.Attendance, error) {
	if row.EmployeeID == "" || row.WorkDate.IsZero() {
		return persistence.Attendance{}, persistence.ErrConstraintViolation
	}

	var stored persistence.Attendance
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		stored, err = upsertAttendanceTx(ctx, r.helper, tx, row)
		return err
	})
	if err != nil {
		return persistence.Attendance{}, r.mapper.MapError(err)
	}
	return stored, nil
}

// upsertAttendanceTx writes the row keyed by employee and work date. An
// existing row keeps its id, creation time and justification.
func upsertAttendanceTx(ctx context.Context, helper *QueryHelper, tx *sql.Tx, row persistence.Attendance) (persistence.Attendance, error) {
	day := formatDate(row.WorkDate)
	existing, err := scanAttendance(helper.QueryRowTx(ctx, tx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE employee_id = ? AND work_date = ?`, row.EmployeeID, day))

	switch {
	case err == nil:
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		row.Justification = existing.Justification
		query := `
			UPDATE attendance
			SET status = ?, check_in = ?, check_out = ?, source = ?, remarks = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := helper.ExecTx(ctx, tx, query,
			string(row.Status),
			formatNullableTime(row.CheckIn),
			formatNullableTime(row.CheckOut),
			string(row.Source),
			row.Remarks,
			formatTime(row.UpdatedAt),
			row.ID,
		); err != nil {
			return persistence.Attendance{}, err
		}
	case errors.Is(err, sql.ErrNoRows):
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		j := row.Justification
		query := `INSERT INTO attendance (` + attendanceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := helper.ExecTx(ctx, tx, query,
			row.ID,
			row.EmployeeID,
			day,
			string(row.Status),
			formatNullableTime(row.CheckIn),
			formatNullableTime(row.CheckOut),
			string(row.Source),
			row.Remarks,
			j.Reason,
			string(j.Status),
			formatNullableTime(j.SubmittedAt),
			j.ReviewedBy,
			formatNullableTime(j.ReviewedAt),
			j.ReviewNote,
			formatTime(row.CreatedAt),
			formatTime(row.UpdatedAt),
		); err != nil {
			return persistence.Attendance{}, err
		}
	default:
		return persistence.Attendance{}, err
	}

	row.WorkDate, _ = time.Parse(dateLayout, day)
	return row, nil
}

// GetAttendance retrieves an attendance row by id.
func (r *AttendanceRepository) GetAttendance(ctx context.Context, id string) (persistence.Attendance, error) {
	row, err := scanAttendance(r.helper.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = ?`, id))
	if err != nil {
		return persistence.Attendance{}, r.mapper.MapError(err)
	}
	return row, nil
}

// GetAttendanceByDay retrieves the row for an employee and work date.
func (r *AttendanceRepository) GetAttendanceByDay(ctx context.Context, employeeID string, workDate time.Time) (persistence.Attendance, error) {
	row, err := scanAttendance(r.helper.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE employee_id = ? AND work_date = ?`, employeeID, formatDate(workDate)))
	if err != nil {
		return persistence.Attendance{}, r.mapper.MapError(err)
	}
	return row, nil
}

// ListAttendance returns matching rows, latest work date first.
func (r *AttendanceRepository) ListAttendance(ctx context.Context, filter persistence.AttendanceFilter) ([]persistence.Attendance, error) {
	var where whereClause
	if filter.EmployeeID != "" {
		where.add("employee_id = ?", filter.EmployeeID)
	}
	if filter.From != nil {
		where.add("work_date >= ?", formatDate(*filter.From))
	}
	if filter.To != nil {
		where.add("work_date <= ?", formatDate(*filter.To))
	}
	where.in("status", stringsOf(filter.Statuses))
	if filter.Justification != "" {
		where.add("justification_status = ?", string(filter.Justification))
	}

	rows, err := r.helper.Query(ctx, `SELECT `+attendanceColumns+` FROM attendance`+where.String()+` ORDER BY work_date DESC, employee_id ASC`, where.args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Attendance, 0)
	for rows.Next() {
		row, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, r.mapper.MapError(rows.Err())
}

// CommitJustification applies the change while the stored justification
// status still equals change.Expected.
func (r *AttendanceRepository) CommitJustification(ctx context.Context, change persistence.JustificationChange) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var current string
		if err := r.helper.QueryRowTx(ctx, tx,
			`SELECT justification_status FROM attendance WHERE id = ?`, change.AttendanceID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return err
		}
		if persistence.JustificationStatus(current) != change.Expected {
			return persistence.ErrStaleState
		}

		j := change.Justification
		query := `
			UPDATE attendance
			SET justification_reason = ?, justification_status = ?, justification_submitted_at = ?,
				justification_reviewed_by = ?, justification_reviewed_at = ?, justification_review_note = ?,
				status = COALESCE(NULLIF(?, ''), status), remarks = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := r.helper.ExecTx(ctx, tx, query,
			j.Reason,
			string(j.Status),
			formatNullableTime(j.SubmittedAt),
			j.ReviewedBy,
			formatNullableTime(j.ReviewedAt),
			j.ReviewNote,
			string(change.Status),
			change.Remarks,
			formatTime(change.UpdatedAt),
			change.AttendanceID,
		); err != nil {
			return err
		}
		return enqueueOutboxTx(ctx, r.helper, tx, change.Outbox)
	})
	return r.mapper.MapError(err)
}

// IngestDevice upserts device rows and advances the watermark in one transaction.
func (r *AttendanceRepository) IngestDevice(ctx context.Context, ingest persistence.DeviceIngest) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, row := range ingest.Rows {
			if row.EmployeeID == "" || row.WorkDate.IsZero() {
				return persistence.ErrConstraintViolation
			}
			if _, err := upsertAttendanceTx(ctx, r.helper, tx, row); err != nil {
				return err
			}
		}
		if ingest.Watermark.IsZero() {
			return nil
		}

		query := `
			INSERT INTO device_watermarks (device_id, watermark, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(device_id) DO UPDATE SET watermark = excluded.watermark, updated_at = excluded.updated_at
			WHERE excluded.watermark > device_watermarks.watermark
		`
		_, err := r.helper.ExecTx(ctx, tx, query, ingest.DeviceID, formatTime(ingest.Watermark), formatTime(ingest.At))
		return err
	})
	return r.mapper.MapError(err)
}

// DeviceWatermark returns the last ingested punch time for the device.
func (r *AttendanceRepository) DeviceWatermark(ctx context.Context, deviceID string) (time.Time, error) {
	var watermark string
	err := r.helper.QueryRow(ctx, `SELECT watermark FROM device_watermarks WHERE device_id = ?`, deviceID).Scan(&watermark)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, r.mapper.MapError(err)
	}
	return time.Parse(timestampLayout, watermark)
}

func scanAttendance(row rowScanner) (persistence.Attendance, error) {
	var (
		a                        persistence.Attendance
		workDate, status, source string
		checkIn, checkOut        sql.NullString
		justificationStatus      string
		submittedAt, reviewedAt  sql.NullString
		createdAt, updatedAt     string
	)
	if err := row.Scan(
		&a.ID,
		&a.EmployeeID,
		&workDate,
		&status,
		&checkIn,
		&checkOut,
		&source,
		&a.Remarks,
		&a.Justification.Reason,
		&justificationStatus,
		&submittedAt,
		&a.Justification.ReviewedBy,
		&reviewedAt,
		&a.Justification.ReviewNote,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Attendance{}, err
	}

	var d decoder
	a.WorkDate = d.date("work_date", workDate)
	a.Status = persistence.AttendanceStatus(status)
	a.Source = persistence.AttendanceSource(source)
	a.CheckIn = d.nullableTime("check_in", checkIn)
	a.CheckOut = d.nullableTime("check_out", checkOut)
	a.Justification.Status = persistence.JustificationStatus(justificationStatus)
	a.Justification.SubmittedAt = d.nullableTime("justification_submitted_at", submittedAt)
	a.Justification.ReviewedAt = d.nullableTime("justification_reviewed_at", reviewedAt)
	a.CreatedAt = d.time("created_at", createdAt)
	a.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return persistence.Attendance{}, fmt.Errorf("attendance %s: %w", a.ID, d.err)
	}
	return a, nil
}
