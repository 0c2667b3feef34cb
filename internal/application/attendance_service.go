package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/orgdesk/internal/persistence"
)

// AttendancePolicy decides whether a first punch counts as on time.
type AttendancePolicy struct {
	// WorkdayStart is the offset from local midnight at which the day starts.
	WorkdayStart time.Duration
	LateGrace    time.Duration
	Location     *time.Location
}

// DefaultAttendancePolicy starts the day at 09:00 UTC with 15 minutes grace.
func DefaultAttendancePolicy() AttendancePolicy {
	return AttendancePolicy{WorkdayStart: 9 * time.Hour, LateGrace: 15 * time.Minute, Location: time.UTC}
}

func (p AttendancePolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// WorkDate returns the local calendar date of t.
func (p AttendancePolicy) WorkDate(t time.Time) time.Time {
	return CivilDate(t.In(p.location()))
}

// Classify returns present or late for a day whose first punch is checkIn.
func (p AttendancePolicy) Classify(checkIn time.Time) persistence.AttendanceStatus {
	local := checkIn.In(p.location())
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.location())
	if local.Sub(midnight) > p.WorkdayStart+p.LateGrace {
		return persistence.AttendanceLate
	}
	return persistence.AttendancePresent
}

// AttendancePolicySource supplies the attendance policy in effect.
type AttendancePolicySource interface {
	AttendancePolicy(ctx context.Context) AttendancePolicy
}

// EmployeeAttendance summarizes one employee over a period.
type EmployeeAttendance struct {
	EmployeeID   string
	EmployeeName string
	Days         int
	ByStatus     map[persistence.AttendanceStatus]int
}

// AttendanceStats summarizes attendance over a period.
type AttendanceStats struct {
	From      *time.Time
	To        *time.Time
	Days      int
	ByStatus  map[persistence.AttendanceStatus]int
	Employees []EmployeeAttendance
}

// AttendanceService ingests device punches and manages attendance records.
type AttendanceService struct {
	attendance  persistence.AttendanceRepository
	employees   persistence.EmployeeRepository
	policies    AttendancePolicySource
	effects     sideEffects
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAttendanceService constructs an attendance service with the provided dependencies.
func NewAttendanceService(attendance persistence.AttendanceRepository, employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, policies AttendancePolicySource, idGenerator func() string, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithLogger(attendance, employees, outbox, policies, idGenerator, now, nil)
}

// NewAttendanceServiceWithLogger constructs an attendance service with a specified logger.
func NewAttendanceServiceWithLogger(attendance persistence.AttendanceRepository, employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, policies AttendancePolicySource, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{
		attendance:  attendance,
		employees:   employees,
		policies:    policies,
		effects:     newSideEffects(outbox, idGenerator, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

func (s *AttendanceService) policy(ctx context.Context) AttendancePolicy {
	if s.policies == nil {
		return DefaultAttendancePolicy()
	}
	return s.policies.AttendancePolicy(ctx)
}

type punchGroup struct {
	employeeID string
	workDate   time.Time
	times      []time.Time
}

// DeviceCheckIn merges a batch of terminal punches into attendance rows.
// Punches at or before the device watermark are skipped, the first punch of
// a day is the check-in and the last one the check-out.
func (s *AttendanceService) DeviceCheckIn(ctx context.Context, deviceID string, punches []DevicePunch) (result DeviceCheckInResult, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	ctx, span := tracer().Start(ctx, "AttendanceService.DeviceCheckIn", trace.WithAttributes(
		attribute.String("device.id", deviceID),
		attribute.Int("punches", len(punches)),
	))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "DeviceCheckIn", "device_id", deviceID, "punches", len(punches))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "device ingest failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"processed", result.Processed,
			"skipped", result.Skipped,
			"unmatched", result.Unmatched,
			"watermark", result.Watermark,
		).InfoContext(ctx, "device punches ingested")
	}()

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		err = invalid("Device id is required.")
		return
	}

	var watermark time.Time
	watermark, err = s.attendance.DeviceWatermark(ctx, deviceID)
	if err != nil {
		return
	}
	result.Watermark = watermark

	policy := s.policy(ctx)
	employeeByDeviceUser := make(map[string]string)
	groups := make(map[dayKey]*punchGroup)
	newest := watermark

	for _, punch := range punches {
		if punch.Timestamp.IsZero() || !punch.Timestamp.After(watermark) {
			result.Skipped++
			continue
		}
		if punch.Timestamp.After(newest) {
			newest = punch.Timestamp
		}

		employeeID, seen := employeeByDeviceUser[punch.DeviceUserID]
		if !seen {
			employee, lookupErr := s.employees.GetEmployeeByDeviceUserID(ctx, punch.DeviceUserID)
			switch {
			case errors.Is(lookupErr, persistence.ErrNotFound):
			case lookupErr != nil:
				err = lookupErr
				return
			case employee.IsActive:
				employeeID = employee.ID
			}
			employeeByDeviceUser[punch.DeviceUserID] = employeeID
		}
		if employeeID == "" {
			result.Unmatched++
			continue
		}

		key := dayKey{employeeID: employeeID, date: FormatDate(policy.WorkDate(punch.Timestamp))}
		group, ok := groups[key]
		if !ok {
			group = &punchGroup{employeeID: employeeID, workDate: policy.WorkDate(punch.Timestamp)}
			groups[key] = group
		}
		group.times = append(group.times, punch.Timestamp.UTC())
		result.Processed++
	}

	if !newest.After(watermark) {
		return
	}

	keys := make([]dayKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date == keys[j].date {
			return keys[i].employeeID < keys[j].employeeID
		}
		return keys[i].date < keys[j].date
	})

	now := s.now()
	rows := make([]persistence.Attendance, 0, len(keys))
	for _, key := range keys {
		var row persistence.Attendance
		row, err = s.mergePunches(ctx, policy, groups[key], now)
		if err != nil {
			return
		}
		rows = append(rows, row)
	}

	err = s.attendance.IngestDevice(ctx, persistence.DeviceIngest{
		DeviceID:  deviceID,
		Rows:      rows,
		Watermark: newest.UTC(),
		At:        now,
	})
	if err != nil {
		err = mapRepoError("Attendance record", err)
		return
	}
	result.Watermark = newest.UTC()
	span.SetAttributes(attribute.Int("attendance.rows", len(rows)))
	return
}

func (s *AttendanceService) mergePunches(ctx context.Context, policy AttendancePolicy, group *punchGroup, now time.Time) (persistence.Attendance, error) {
	sort.Slice(group.times, func(i, j int) bool { return group.times[i].Before(group.times[j]) })
	first, last := group.times[0], group.times[len(group.times)-1]

	existing, err := s.attendance.GetAttendanceByDay(ctx, group.employeeID, group.workDate)
	found := err == nil
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return persistence.Attendance{}, err
	}

	row := persistence.Attendance{
		ID:         s.idGenerator(),
		EmployeeID: group.employeeID,
		WorkDate:   group.workDate,
		Source:     persistence.SourceDevice,
		CreatedAt:  now,
	}
	if found {
		row = existing
		if existing.CheckIn != nil && existing.CheckIn.Before(first) {
			first = *existing.CheckIn
		}
		if existing.CheckOut != nil && existing.CheckOut.After(last) {
			last = *existing.CheckOut
		}
	}
	row.CheckIn = &first
	row.CheckOut = nil
	if last.After(first) {
		row.CheckOut = &last
	}
	row.UpdatedAt = now

	keepStatus := found && (existing.Source == persistence.SourceManual ||
		existing.Status == persistence.AttendanceLeave ||
		existing.Status == persistence.AttendanceHoliday ||
		existing.Status == persistence.AttendanceExcused)
	if !keepStatus {
		row.Status = policy.Classify(first)
	}
	return row, nil
}

// DeviceWatermark returns the newest punch time ingested from the device.
func (s *AttendanceService) DeviceWatermark(ctx context.Context, deviceID string) (time.Time, error) {
	if s == nil {
		return time.Time{}, fmt.Errorf("AttendanceService is nil")
	}
	if strings.TrimSpace(deviceID) == "" {
		return time.Time{}, invalid("Device id is required.")
	}
	return s.attendance.DeviceWatermark(ctx, strings.TrimSpace(deviceID))
}

// MyAttendance lists the principal's own attendance rows.
func (s *AttendanceService) MyAttendance(ctx context.Context, principal Principal, query AttendanceQuery) ([]persistence.Attendance, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}
	query.EmployeeID = principal.UserID
	rows, err := s.attendance.ListAttendance(ctx, attendanceFilter(query))
	if err != nil {
		err = mapRepoError("Attendance record", err)
		s.loggerWith(ctx, "MyAttendance", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list attendance", "error", err, "error_kind", ErrorKind(err))
	}
	return rows, err
}

// ListAttendance lists attendance across employees for supervisors.
func (s *AttendanceService) ListAttendance(ctx context.Context, principal Principal, query AttendanceQuery) (rows []persistence.Attendance, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListAttendance", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list attendance", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}
	rows, err = s.attendance.ListAttendance(ctx, attendanceFilter(query))
	if err != nil {
		err = mapRepoError("Attendance record", err)
	}
	return
}

// MarkAttendance records a supervisor-entered attendance day.
func (s *AttendanceService) MarkAttendance(ctx context.Context, principal Principal, input ManualAttendanceInput) (row persistence.Attendance, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "MarkAttendance", "principal_id", principal.UserID, "employee_id", input.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark attendance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("attendance_id", row.ID, "status", row.Status).InfoContext(ctx, "attendance marked")
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	if strings.TrimSpace(input.EmployeeID) == "" {
		vErr.add("employeeId", "employee is required")
	}
	if input.WorkDate.IsZero() {
		vErr.add("date", "date is required")
	}
	if !input.Status.Valid() {
		vErr.add("status", "status is invalid")
	}
	if input.CheckIn != nil && input.CheckOut != nil && input.CheckOut.Before(*input.CheckIn) {
		vErr.add("checkOut", "check-out must not be before check-in")
	}
	if vErr.HasErrors() {
		vErr.Message = "Invalid attendance entry."
		err = vErr
		return
	}

	if _, err = s.employees.GetEmployee(ctx, input.EmployeeID); err != nil {
		err = mapRepoError("Employee", err)
		return
	}

	now := s.now()
	row, err = s.attendance.UpsertAttendance(ctx, persistence.Attendance{
		ID:         s.idGenerator(),
		EmployeeID: input.EmployeeID,
		WorkDate:   CivilDate(input.WorkDate),
		Status:     input.Status,
		CheckIn:    input.CheckIn,
		CheckOut:   input.CheckOut,
		Source:     persistence.SourceManual,
		Remarks:    strings.TrimSpace(input.Remarks),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		err = mapRepoError("Attendance record", err)
		return
	}

	s.effects.enqueue(ctx, logger, s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "attendance.mark",
		Reference: persistence.AttendanceRef(row.ID),
		Summary:   fmt.Sprintf("Marked %s as %s for employee %s.", FormatDate(row.WorkDate), row.Status, row.EmployeeID),
	}))
	return
}

// SubmitJustification attaches the principal's explanation to one of their
// irregular attendance days.
func (s *AttendanceService) SubmitJustification(ctx context.Context, principal Principal, attendanceID, reason string) (row persistence.Attendance, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SubmitJustification", "principal_id", principal.UserID, "attendance_id", attendanceID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to submit justification", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "justification submitted")
	}()

	row, err = s.attendance.GetAttendance(ctx, attendanceID)
	if err != nil {
		err = mapRepoError("Attendance record", err)
		return
	}
	if row.EmployeeID != principal.UserID {
		err = ErrUnauthorized
		return
	}
	if !row.Status.Irregular() {
		err = invalid("Only late, absent or half-day records can be justified.")
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		vErr := &ValidationError{Message: "A reason is required."}
		vErr.add("reason", "reason is required")
		err = vErr
		return
	}
	expected := row.Justification.Status
	if expected == persistence.JustificationPending || expected == persistence.JustificationApproved {
		err = invalid("A justification has already been submitted for this day.")
		return
	}

	now := s.now()
	justification := persistence.Justification{
		Reason:      reason,
		Status:      persistence.JustificationPending,
		SubmittedAt: &now,
	}
	name := lookupEmployeeNames(ctx, s.employees, principal.UserID)[principal.UserID]
	outbox := []persistence.OutboxMessage{s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "attendance.justify",
		Reference: persistence.AttendanceRef(row.ID),
		Summary:   fmt.Sprintf("Justified %s attendance on %s.", row.Status, FormatDate(row.WorkDate)),
	})}
	outbox = append(outbox, s.effects.notify(NotificationIntent{
		SenderID:     principal.UserID,
		RecipientIDs: reviewerIDs(ctx, s.employees, logger),
		Kind:         persistence.NotifyJustificationSubmitted,
		Title:        "Attendance justification submitted",
		Message:      fmt.Sprintf("%s justified their %s attendance on %s.", name, row.Status, FormatDate(row.WorkDate)),
		Reference:    persistence.AttendanceRef(row.ID),
	})...)

	err = s.attendance.CommitJustification(ctx, persistence.JustificationChange{
		AttendanceID:  row.ID,
		Expected:      expected,
		Justification: justification,
		Status:        row.Status,
		Remarks:       row.Remarks,
		UpdatedAt:     now,
		Outbox:        outbox,
	})
	if errors.Is(err, persistence.ErrStaleState) {
		err = invalid("A justification has already been submitted for this day.")
		return
	}
	if err != nil {
		err = mapRepoError("Attendance record", err)
		return
	}

	row.Justification = justification
	row.UpdatedAt = now
	return
}

// ReviewJustification approves or rejects a pending justification. Approval
// turns the day into an excused absence.
func (s *AttendanceService) ReviewJustification(ctx context.Context, principal Principal, attendanceID string, approve bool, note string) (row persistence.Attendance, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ReviewJustification", "principal_id", principal.UserID, "attendance_id", attendanceID, "approve", approve)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to review justification", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "justification reviewed")
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}

	row, err = s.attendance.GetAttendance(ctx, attendanceID)
	if err != nil {
		err = mapRepoError("Attendance record", err)
		return
	}
	if row.Justification.Status != persistence.JustificationPending {
		err = invalid("There is no pending justification for this record.")
		return
	}

	now := s.now()
	justification := row.Justification
	justification.ReviewedBy = principal.UserID
	justification.ReviewedAt = &now
	justification.ReviewNote = strings.TrimSpace(note)
	status, remarks := row.Status, row.Remarks
	verdict := "rejected"
	if approve {
		justification.Status = persistence.JustificationApproved
		status = persistence.AttendanceExcused
		remarks = "Justified: " + justification.Reason
		verdict = "approved"
	} else {
		justification.Status = persistence.JustificationRejected
	}

	message := fmt.Sprintf("Your justification for %s was %s.", FormatDate(row.WorkDate), verdict)
	if justification.ReviewNote != "" {
		message += " Note: " + justification.ReviewNote
	}
	outbox := []persistence.OutboxMessage{s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "attendance.justification_" + verdict,
		Reference: persistence.AttendanceRef(row.ID),
		Summary:   fmt.Sprintf("Justification for %s on %s %s.", row.EmployeeID, FormatDate(row.WorkDate), verdict),
	})}
	outbox = append(outbox, s.effects.notify(NotificationIntent{
		SenderID:     principal.UserID,
		RecipientIDs: []string{row.EmployeeID},
		Kind:         persistence.NotifyJustificationReviewed,
		Title:        "Attendance justification " + verdict,
		Message:      message,
		Reference:    persistence.AttendanceRef(row.ID),
	})...)

	err = s.attendance.CommitJustification(ctx, persistence.JustificationChange{
		AttendanceID:  row.ID,
		Expected:      persistence.JustificationPending,
		Justification: justification,
		Status:        status,
		Remarks:       remarks,
		UpdatedAt:     now,
		Outbox:        outbox,
	})
	if errors.Is(err, persistence.ErrStaleState) {
		err = invalid("There is no pending justification for this record.")
		return
	}
	if err != nil {
		err = mapRepoError("Attendance record", err)
		return
	}

	row.Justification = justification
	row.Status = status
	row.Remarks = remarks
	row.UpdatedAt = now
	return
}

// Stats counts attendance rows by status overall and per employee.
func (s *AttendanceService) Stats(ctx context.Context, principal Principal, query AttendanceQuery) (stats AttendanceStats, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Stats", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to aggregate attendance", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}

	var rows []persistence.Attendance
	rows, err = s.attendance.ListAttendance(ctx, attendanceFilter(query))
	if err != nil {
		err = mapRepoError("Attendance record", err)
		return
	}

	stats = AttendanceStats{From: query.From, To: query.To, ByStatus: make(map[persistence.AttendanceStatus]int)}
	perEmployee := make(map[string]*EmployeeAttendance)
	ids := make([]string, 0)
	for _, row := range rows {
		stats.Days++
		stats.ByStatus[row.Status]++
		e, ok := perEmployee[row.EmployeeID]
		if !ok {
			e = &EmployeeAttendance{EmployeeID: row.EmployeeID, ByStatus: make(map[persistence.AttendanceStatus]int)}
			perEmployee[row.EmployeeID] = e
			ids = append(ids, row.EmployeeID)
		}
		e.Days++
		e.ByStatus[row.Status]++
	}

	names := lookupEmployeeNames(ctx, s.employees, ids...)
	for _, id := range ids {
		e := perEmployee[id]
		e.EmployeeName = names[id]
		stats.Employees = append(stats.Employees, *e)
	}
	sort.Slice(stats.Employees, func(i, j int) bool {
		if stats.Employees[i].EmployeeName == stats.Employees[j].EmployeeName {
			return stats.Employees[i].EmployeeID < stats.Employees[j].EmployeeID
		}
		return stats.Employees[i].EmployeeName < stats.Employees[j].EmployeeName
	})
	return
}

func attendanceFilter(query AttendanceQuery) persistence.AttendanceFilter {
	filter := persistence.AttendanceFilter{
		EmployeeID: query.EmployeeID,
		From:       query.From,
		To:         query.To,
	}
	if query.Status != "" {
		filter.Statuses = []persistence.AttendanceStatus{query.Status}
	}
	return filter
}

type dayKey struct {
	employeeID string
	date       string
}
