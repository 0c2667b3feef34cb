package memory

import (
	"context"
	"sort"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

// --- LeaveRepository ---

// CreateLeave stores a new leave request.
func (s *Storage) CreateLeave(_ context.Context, leave persistence.Leave) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if leave.ID == "" || leave.EndDate.Before(leave.StartDate) {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.leaves[leave.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.leaves[leave.ID] = cloneLeave(leave)
	return nil
}

// GetLeave retrieves a leave by id.
func (s *Storage) GetLeave(_ context.Context, id string) (persistence.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	leave, ok := s.leaves[id]
	if !ok {
		return persistence.Leave{}, persistence.ErrNotFound
	}
	return cloneLeave(leave), nil
}

// ListLeaves returns matching leaves, newest first.
func (s *Storage) ListLeaves(_ context.Context, filter persistence.LeaveFilter) ([]persistence.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Leave, 0)
	for _, leave := range s.leaves {
		if filter.EmployeeID != "" && leave.EmployeeID != filter.EmployeeID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsValue(filter.Statuses, leave.Status) {
			continue
		}
		if filter.OverlapsTo != nil && leave.StartDate.After(*filter.OverlapsTo) {
			continue
		}
		if filter.OverlapsFrom != nil && leave.EndDate.Before(*filter.OverlapsFrom) {
			continue
		}
		out = append(out, cloneLeave(leave))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteLeave removes a leave that is still in status.
func (s *Storage) DeleteLeave(_ context.Context, id string, status persistence.LeaveStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	leave, ok := s.leaves[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if leave.Status != status {
		return persistence.ErrStaleState
	}
	delete(s.leaves, id)
	return nil
}

// CommitLeaveDecision applies a review to a pending leave with its attendance rows.
func (s *Storage) CommitLeaveDecision(_ context.Context, decision persistence.LeaveDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.leaves[decision.Leave.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if stored.Status != persistence.LeavePending {
		return persistence.ErrStaleState
	}
	s.leaves[stored.ID] = cloneLeave(decision.Leave)
	for _, row := range decision.Attendance {
		s.upsertAttendanceLocked(row)
	}
	s.enqueueLocked(decision.Outbox)
	return nil
}

// --- AttendanceRepository ---

// UpsertAttendance inserts or replaces the day row for the employee.
func (s *Storage) UpsertAttendance(_ context.Context, row persistence.Attendance) (persistence.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.EmployeeID == "" || row.WorkDate.IsZero() {
		return persistence.Attendance{}, persistence.ErrConstraintViolation
	}
	return s.upsertAttendanceLocked(row), nil
}

func (s *Storage) upsertAttendanceLocked(row persistence.Attendance) persistence.Attendance {
	key := dayKey{employeeID: row.EmployeeID, date: dateKey(row.WorkDate)}
	if id, ok := s.attendanceDay[key]; ok {
		existing := s.attendance[id]
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		row.Justification = existing.Justification
	} else if row.ID == "" {
		row.ID = s.nextIDLocked("attendance")
	}
	row = cloneAttendance(row)
	s.attendance[row.ID] = row
	s.attendanceDay[key] = row.ID
	return cloneAttendance(row)
}

// GetAttendance retrieves an attendance row by id.
func (s *Storage) GetAttendance(_ context.Context, id string) (persistence.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.attendance[id]
	if !ok {
		return persistence.Attendance{}, persistence.ErrNotFound
	}
	return cloneAttendance(row), nil
}

// GetAttendanceByDay retrieves the row for an employee and work date.
func (s *Storage) GetAttendanceByDay(_ context.Context, employeeID string, workDate time.Time) (persistence.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.attendanceDay[dayKey{employeeID: employeeID, date: dateKey(workDate)}]
	if !ok {
		return persistence.Attendance{}, persistence.ErrNotFound
	}
	return cloneAttendance(s.attendance[id]), nil
}

// ListAttendance returns matching rows, latest work date first.
func (s *Storage) ListAttendance(_ context.Context, filter persistence.AttendanceFilter) ([]persistence.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Attendance, 0)
	for _, row := range s.attendance {
		if filter.EmployeeID != "" && row.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.From != nil && dateKey(row.WorkDate) < dateKey(*filter.From) {
			continue
		}
		if filter.To != nil && dateKey(row.WorkDate) > dateKey(*filter.To) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsValue(filter.Statuses, row.Status) {
			continue
		}
		if filter.Justification != "" && row.Justification.Status != filter.Justification {
			continue
		}
		out = append(out, cloneAttendance(row))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkDate.Equal(out[j].WorkDate) {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		return out[i].WorkDate.After(out[j].WorkDate)
	})
	return out, nil
}

// CommitJustification applies a justification change guarded on its current status.
func (s *Storage) CommitJustification(_ context.Context, change persistence.JustificationChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.attendance[change.AttendanceID]
	if !ok {
		return persistence.ErrNotFound
	}
	if row.Justification.Status != change.Expected {
		return persistence.ErrStaleState
	}
	row.Justification = change.Justification
	row.Justification.SubmittedAt = cloneTime(change.Justification.SubmittedAt)
	row.Justification.ReviewedAt = cloneTime(change.Justification.ReviewedAt)
	if change.Status != "" {
		row.Status = change.Status
	}
	row.Remarks = change.Remarks
	row.UpdatedAt = change.UpdatedAt
	s.attendance[row.ID] = row
	s.enqueueLocked(change.Outbox)
	return nil
}

// IngestDevice upserts device rows and advances the watermark.
func (s *Storage) IngestDevice(_ context.Context, ingest persistence.DeviceIngest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range ingest.Rows {
		s.upsertAttendanceLocked(row)
	}
	if ingest.Watermark.After(s.watermarks[ingest.DeviceID]) {
		s.watermarks[ingest.DeviceID] = ingest.Watermark
	}
	return nil
}

// DeviceWatermark returns the last ingested punch time for the device.
func (s *Storage) DeviceWatermark(_ context.Context, deviceID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.watermarks[deviceID], nil
}

func cloneLeave(leave persistence.Leave) persistence.Leave {
	leave.ReviewedAt = cloneTime(leave.ReviewedAt)
	return leave
}

func cloneAttendance(row persistence.Attendance) persistence.Attendance {
	row.CheckIn = cloneTime(row.CheckIn)
	row.CheckOut = cloneTime(row.CheckOut)
	row.Justification.SubmittedAt = cloneTime(row.Justification.SubmittedAt)
	row.Justification.ReviewedAt = cloneTime(row.Justification.ReviewedAt)
	return row
}
