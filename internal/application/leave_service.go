package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/orgdesk/internal/persistence"
)

// LeaveService runs the leave request workflow and backfills attendance on approval.
type LeaveService struct {
	leaves      persistence.LeaveRepository
	employees   persistence.EmployeeRepository
	effects     sideEffects
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewLeaveService constructs a leave service with the provided dependencies.
func NewLeaveService(leaves persistence.LeaveRepository, employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, idGenerator func() string, now func() time.Time) *LeaveService {
	return NewLeaveServiceWithLogger(leaves, employees, outbox, idGenerator, now, nil)
}

// NewLeaveServiceWithLogger constructs a leave service with a specified logger.
func NewLeaveServiceWithLogger(leaves persistence.LeaveRepository, employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *LeaveService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &LeaveService{
		leaves:      leaves,
		employees:   employees,
		effects:     newSideEffects(outbox, idGenerator, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *LeaveService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LeaveService", operation, attrs...)
}

// Apply files a pending leave request for the principal.
func (s *LeaveService) Apply(ctx context.Context, principal Principal, input LeaveInput) (leave persistence.Leave, err error) {
	if s == nil {
		err = fmt.Errorf("LeaveService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Apply", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to apply for leave", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("leave_id", leave.ID, "days", leave.Days()).InfoContext(ctx, "leave requested")
	}()

	if principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if vErr := validateLeaveInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	start, end := CivilDate(input.StartDate), CivilDate(input.EndDate)

	var overlapping []persistence.Leave
	overlapping, err = s.leaves.ListLeaves(ctx, persistence.LeaveFilter{
		EmployeeID:   principal.UserID,
		Statuses:     []persistence.LeaveStatus{persistence.LeavePending, persistence.LeaveApproved},
		OverlapsFrom: &start,
		OverlapsTo:   &end,
	})
	if err != nil {
		err = mapRepoError("Leave request", err)
		return
	}
	if len(overlapping) > 0 {
		err = invalid("You already have a leave request for this period.")
		return
	}

	now := s.now()
	leave = persistence.Leave{
		ID:         s.idGenerator(),
		EmployeeID: principal.UserID,
		LeaveType:  input.LeaveType,
		StartDate:  start,
		EndDate:    end,
		Reason:     strings.TrimSpace(input.Reason),
		Status:     persistence.LeavePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err = s.leaves.CreateLeave(ctx, leave); err != nil {
		err = mapRepoError("Leave request", err)
		return
	}

	name := lookupEmployeeNames(ctx, s.employees, principal.UserID)[principal.UserID]
	messages := []persistence.OutboxMessage{s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "leave.apply",
		Reference: persistence.LeaveRef(leave.ID),
		Summary:   fmt.Sprintf("Requested %s leave from %s to %s.", leave.LeaveType, FormatDate(start), FormatDate(end)),
	})}
	messages = append(messages, s.effects.notify(NotificationIntent{
		SenderID:     principal.UserID,
		RecipientIDs: s.reviewerIDs(ctx, logger),
		Kind:         persistence.NotifyLeaveSubmitted,
		Title:        "New leave request",
		Message:      fmt.Sprintf("%s requested %s leave from %s to %s.", name, leave.LeaveType, FormatDate(start), FormatDate(end)),
		Reference:    persistence.LeaveRef(leave.ID),
	})...)
	s.effects.enqueue(ctx, logger, messages...)
	return
}

// MyLeaves lists the principal's own leave requests.
func (s *LeaveService) MyLeaves(ctx context.Context, principal Principal) (leaves []persistence.Leave, err error) {
	if s == nil {
		err = fmt.Errorf("LeaveService is nil")
		return
	}
	leaves, err = s.leaves.ListLeaves(ctx, persistence.LeaveFilter{EmployeeID: principal.UserID})
	if err != nil {
		err = mapRepoError("Leave request", err)
		s.loggerWith(ctx, "MyLeaves", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list leaves", "error", err, "error_kind", ErrorKind(err))
	}
	return
}

// ListLeaves lists leave requests across employees for reviewers.
func (s *LeaveService) ListLeaves(ctx context.Context, principal Principal, filter persistence.LeaveFilter) (leaves []persistence.Leave, err error) {
	if s == nil {
		err = fmt.Errorf("LeaveService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListLeaves", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list leaves", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}
	leaves, err = s.leaves.ListLeaves(ctx, filter)
	if err != nil {
		err = mapRepoError("Leave request", err)
	}
	return
}

// Decide approves or rejects a pending leave request. Approval writes one
// leave attendance row per calendar day of the range in the same commit as
// the status change. Overlap is not re-checked here.
func (s *LeaveService) Decide(ctx context.Context, params LeaveDecisionParams) (leave persistence.Leave, err error) {
	if s == nil {
		err = fmt.Errorf("LeaveService is nil")
		return
	}

	ctx, span := tracer().Start(ctx, "LeaveService.Decide", trace.WithAttributes(
		attribute.String("leave.id", params.LeaveID),
		attribute.String("leave.decision", string(params.Status)),
	))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "Decide",
		"principal_id", params.Principal.UserID,
		"leave_id", params.LeaveID,
		"decision", params.Status,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to decide leave", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "leave decided")
	}()

	if !params.Principal.CanManage() {
		err = ErrUnauthorized
		return
	}
	if params.Status != persistence.LeaveApproved && params.Status != persistence.LeaveRejected {
		vErr := &ValidationError{Message: "Status must be approved or rejected."}
		vErr.add("status", "status must be approved or rejected")
		err = vErr
		return
	}

	var existing persistence.Leave
	existing, err = s.leaves.GetLeave(ctx, params.LeaveID)
	if err != nil {
		err = mapRepoError("Leave request", err)
		return
	}
	if existing.Status != persistence.LeavePending {
		err = invalid("Leave request has already been processed.")
		return
	}

	now := s.now()
	leave = existing
	leave.Status = params.Status
	leave.ApprovedBy = params.Principal.UserID
	leave.ReviewedAt = &now
	leave.UpdatedAt = now
	if params.Status == persistence.LeaveRejected {
		leave.RejectionReason = strings.TrimSpace(params.RejectionReason)
	}

	var rows []persistence.Attendance
	if params.Status == persistence.LeaveApproved {
		for _, day := range calendarDays(leave.StartDate, leave.EndDate) {
			rows = append(rows, persistence.Attendance{
				ID:         s.idGenerator(),
				EmployeeID: leave.EmployeeID,
				WorkDate:   day,
				Status:     persistence.AttendanceLeave,
				Source:     persistence.SourceLeave,
				Remarks:    fmt.Sprintf("On %s leave", leave.LeaveType),
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}

	kind, title, message := persistence.NotifyLeaveApproved, "Leave approved",
		fmt.Sprintf("Your %s leave from %s to %s was approved.", leave.LeaveType, FormatDate(leave.StartDate), FormatDate(leave.EndDate))
	if params.Status == persistence.LeaveRejected {
		kind, title = persistence.NotifyLeaveRejected, "Leave rejected"
		message = fmt.Sprintf("Your %s leave from %s to %s was rejected.", leave.LeaveType, FormatDate(leave.StartDate), FormatDate(leave.EndDate))
		if leave.RejectionReason != "" {
			message += " Reason: " + leave.RejectionReason
		}
	}

	outbox := []persistence.OutboxMessage{s.effects.audit(AuditIntent{
		ActorID:   params.Principal.UserID,
		Action:    "leave." + string(params.Status),
		Reference: persistence.LeaveRef(leave.ID),
		Summary:   fmt.Sprintf("Leave %s for employee %s.", params.Status, leave.EmployeeID),
		Metadata:  map[string]string{"attendance_rows": strconv.Itoa(len(rows))},
	})}
	outbox = append(outbox, s.effects.notify(NotificationIntent{
		SenderID:     params.Principal.UserID,
		RecipientIDs: []string{leave.EmployeeID},
		Kind:         kind,
		Title:        title,
		Message:      message,
		Reference:    persistence.LeaveRef(leave.ID),
	})...)

	err = s.leaves.CommitLeaveDecision(ctx, persistence.LeaveDecision{Leave: leave, Attendance: rows, Outbox: outbox})
	if errors.Is(err, persistence.ErrStaleState) {
		err = invalid("Leave request has already been processed.")
		return
	}
	if err != nil {
		err = mapRepoError("Leave request", err)
		return
	}
	span.SetAttributes(attribute.Int("attendance.rows", len(rows)))
	return
}

// Cancel withdraws the principal's own pending leave request.
func (s *LeaveService) Cancel(ctx context.Context, principal Principal, leaveID string) (err error) {
	if s == nil {
		return fmt.Errorf("LeaveService is nil")
	}

	logger := s.loggerWith(ctx, "Cancel", "principal_id", principal.UserID, "leave_id", leaveID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel leave", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "leave cancelled")
	}()

	leave, err := s.leaves.GetLeave(ctx, leaveID)
	if err != nil {
		return mapRepoError("Leave request", err)
	}
	if leave.EmployeeID != principal.UserID {
		return ErrUnauthorized
	}
	if leave.Status != persistence.LeavePending {
		return invalid("Only pending leave requests can be cancelled.")
	}

	if err = s.leaves.DeleteLeave(ctx, leaveID, persistence.LeavePending); err != nil {
		if errors.Is(err, persistence.ErrStaleState) {
			return invalid("Only pending leave requests can be cancelled.")
		}
		return mapRepoError("Leave request", err)
	}

	messages := []persistence.OutboxMessage{s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "leave.cancel",
		Reference: persistence.LeaveRef(leaveID),
		Summary:   fmt.Sprintf("Cancelled %s leave from %s to %s.", leave.LeaveType, FormatDate(leave.StartDate), FormatDate(leave.EndDate)),
	})}
	messages = append(messages, s.effects.notify(NotificationIntent{
		SenderID:     principal.UserID,
		RecipientIDs: s.reviewerIDs(ctx, logger),
		Kind:         persistence.NotifyLeaveCancelled,
		Title:        "Leave request cancelled",
		Message:      fmt.Sprintf("A %s leave request from %s to %s was withdrawn.", leave.LeaveType, FormatDate(leave.StartDate), FormatDate(leave.EndDate)),
	})...)
	s.effects.enqueue(ctx, logger, messages...)
	return nil
}

func (s *LeaveService) reviewerIDs(ctx context.Context, logger *slog.Logger) []string {
	return reviewerIDs(ctx, s.employees, logger)
}

// reviewerIDs lists active admins and managers. A lookup failure only costs
// the notification, so it is logged and an empty list returned.
func reviewerIDs(ctx context.Context, employees persistence.EmployeeRepository, logger *slog.Logger) []string {
	if employees == nil {
		return nil
	}
	reviewers, err := employees.ListEmployees(ctx, persistence.EmployeeFilter{
		Roles:      []persistence.Role{persistence.RoleAdmin, persistence.RoleManager},
		ActiveOnly: true,
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to resolve reviewers", "error", err)
		return nil
	}
	ids := make([]string, 0, len(reviewers))
	for _, reviewer := range reviewers {
		ids = append(ids, reviewer.ID)
	}
	return ids
}

// maxLeaveDays caps the calendar days one request may span.
const maxLeaveDays = 366

func validateLeaveInput(input LeaveInput) *ValidationError {
	vErr := &ValidationError{}
	if !input.LeaveType.Valid() {
		vErr.add("leaveType", "leave type is invalid")
	}
	if input.StartDate.IsZero() {
		vErr.add("startDate", "start date is required")
	}
	if input.EndDate.IsZero() {
		vErr.add("endDate", "end date is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		vErr.add("reason", "reason is required")
	}
	if vErr.HasErrors() {
		vErr.Message = "Invalid leave request."
		return vErr
	}
	start, end := CivilDate(input.StartDate), CivilDate(input.EndDate)
	switch {
	case end.Before(start):
		vErr.Message = "End date must be on or after the start date."
		vErr.add("endDate", "end date must not be before start date")
	case end.Sub(start) >= maxLeaveDays*24*time.Hour:
		vErr.Message = fmt.Sprintf("A leave request may cover at most %d days.", maxLeaveDays)
		vErr.add("endDate", fmt.Sprintf("leave may not exceed %d days", maxLeaveDays))
	}
	return vErr
}
