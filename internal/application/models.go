package application

import (
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

// Principal represents the authenticated employee invoking a service method.
type Principal struct {
	UserID string
	Role   persistence.Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == persistence.RoleAdmin
}

// CanManage reports whether the principal may run inventory, leave review and
// attendance supervision operations.
func (p Principal) CanManage() bool {
	return p.Role == persistence.RoleAdmin || p.Role == persistence.RoleManager
}

// AssetInput captures caller provided asset fields.
type AssetInput struct {
	Name         string
	Category     persistence.AssetCategory
	Condition    persistence.AssetCondition
	Quantity     int
	SerialNumber string
	Location     string
	Description  string
	PurchaseDate *time.Time
	// Status is honored on update only. A manual status sets an override;
	// Available or Assigned clears it.
	Status persistence.AssetStatus
}

// AssignParams wraps an assignment request.
type AssignParams struct {
	Principal  Principal
	AssetID    string
	EmployeeID string
	Room       string
	// Quantity defaults to one unit when nil.
	Quantity  *int
	Condition persistence.AssetCondition
	Notes     string
}

// ReturnParams wraps a return request.
type ReturnParams struct {
	Principal    Principal
	AssignmentID string
	Condition    persistence.AssetCondition
	Notes        string
	// Status defaults to Returned.
	Status persistence.AssignmentStatus
}

// AssignmentDetail is an assignment with the names of the records it links.
type AssignmentDetail struct {
	persistence.AssetAssignment
	AssetName      string
	AssetCode      string
	EmployeeName   string
	AssignedByName string
	ReturnedByName string
}

// AssignmentResult is returned by assign and return operations.
type AssignmentResult struct {
	Assignment AssignmentDetail
	Asset      persistence.Asset
	Message    string
}

// LeaveInput captures a leave application.
type LeaveInput struct {
	LeaveType persistence.LeaveType
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

// LeaveDecisionParams wraps a leave review.
type LeaveDecisionParams struct {
	Principal       Principal
	LeaveID         string
	Status          persistence.LeaveStatus
	RejectionReason string
}

// DevicePunch is a single biometric terminal record.
type DevicePunch struct {
	DeviceUserID string
	Timestamp    time.Time
}

// DeviceCheckInResult summarizes a device ingest batch.
type DeviceCheckInResult struct {
	Processed int
	Skipped   int
	Unmatched int
	Watermark time.Time
}

// ManualAttendanceInput is a supervisor-entered attendance day.
type ManualAttendanceInput struct {
	EmployeeID string
	WorkDate   time.Time
	Status     persistence.AttendanceStatus
	CheckIn    *time.Time
	CheckOut   *time.Time
	Remarks    string
}

// AttendanceQuery narrows attendance listings and statistics.
type AttendanceQuery struct {
	EmployeeID string
	From       *time.Time
	To         *time.Time
	Status     persistence.AttendanceStatus
}

// EmployeeInput captures caller provided employee fields. Password is only
// read on creation.
type EmployeeInput struct {
	Email        string
	DisplayName  string
	Role         persistence.Role
	Department   string
	Position     string
	DeviceUserID string
	Password     string
	IsActive     *bool
}

// TodoInput captures caller provided todo fields.
type TodoInput struct {
	Title       string
	Description string
	Priority    persistence.TodoPriority
	Status      persistence.TodoStatus
	DueDate     *time.Time
}

// FeedbackInput captures a feedback submission.
type FeedbackInput struct {
	Category    persistence.FeedbackCategory
	Subject     string
	Message     string
	IsAnonymous bool
}

// FeedbackUpdate is a partial update; nil fields are left unchanged.
type FeedbackUpdate struct {
	Category      *persistence.FeedbackCategory
	Subject       *string
	Message       *string
	Status        *persistence.FeedbackStatus
	AdminResponse *string
}

// AuthenticateParams wraps a login attempt.
type AuthenticateParams struct {
	Email       string
	Password    string
	Fingerprint string
}

// AuthenticateResult is returned by a successful login.
type AuthenticateResult struct {
	Employee persistence.Employee
	Session  persistence.Session
}
