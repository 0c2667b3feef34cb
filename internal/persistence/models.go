package persistence

import "time"

// Role identifies the permission tier of an employee account.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// Employee represents a staff account.
type Employee struct {
	ID           string
	Email        string
	DisplayName  string
	Role         Role
	Department   string
	Position     string
	DeviceUserID string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents an authentication session persisted for an employee.
type Session struct {
	ID          string
	EmployeeID  string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// AssetCategory is the closed set of inventory categories.
type AssetCategory string

const (
	CategoryLaptop     AssetCategory = "Laptop"
	CategoryDesktop    AssetCategory = "Desktop"
	CategoryMonitor    AssetCategory = "Monitor"
	CategoryPhone      AssetCategory = "Phone"
	CategoryTablet     AssetCategory = "Tablet"
	CategoryPrinter    AssetCategory = "Printer"
	CategoryNetworking AssetCategory = "Networking"
	CategoryFurniture  AssetCategory = "Furniture"
	CategoryAccessory  AssetCategory = "Accessory"
	CategoryOther      AssetCategory = "Other"
)

// AssetCategories lists every category in display order.
var AssetCategories = []AssetCategory{
	CategoryLaptop, CategoryDesktop, CategoryMonitor, CategoryPhone, CategoryTablet,
	CategoryPrinter, CategoryNetworking, CategoryFurniture, CategoryAccessory, CategoryOther,
}

// Valid reports whether the category is known.
func (c AssetCategory) Valid() bool {
	for _, known := range AssetCategories {
		if c == known {
			return true
		}
	}
	return false
}

// AssetCondition grades the physical state of an asset.
type AssetCondition string

const (
	ConditionExcellent AssetCondition = "Excellent"
	ConditionGood      AssetCondition = "Good"
	ConditionFair      AssetCondition = "Fair"
	ConditionPoor      AssetCondition = "Poor"
)

// Valid reports whether the condition is known.
func (c AssetCondition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// AssetStatus is the lifecycle label shown for an asset.
type AssetStatus string

const (
	AssetAvailable   AssetStatus = "Available"
	AssetAssigned    AssetStatus = "Assigned"
	AssetUnderRepair AssetStatus = "Under Repair"
	AssetDamaged     AssetStatus = "Damaged"
	AssetRetired     AssetStatus = "Retired"
)

// Valid reports whether the status is known.
func (s AssetStatus) Valid() bool {
	switch s {
	case AssetAvailable, AssetAssigned, AssetUnderRepair, AssetDamaged, AssetRetired:
		return true
	}
	return false
}

// Manual reports whether the status is an operator override rather than a
// value derived from quantities.
func (s AssetStatus) Manual() bool {
	switch s {
	case AssetUnderRepair, AssetDamaged, AssetRetired:
		return true
	}
	return false
}

// Asset is an inventory line item tracked by quantity.
type Asset struct {
	ID               string
	Code             string
	Name             string
	Category         AssetCategory
	Condition        AssetCondition
	Status           AssetStatus
	Quantity         int
	QuantityAssigned int
	SerialNumber     string
	Location         string
	Description      string
	PurchaseDate     *time.Time
	IsActive         bool
	Version          int64
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Available returns the number of units not currently assigned.
func (a Asset) Available() int {
	return a.Quantity - a.QuantityAssigned
}

// AssignmentStatus tracks the lifecycle of an assignment.
type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "Active"
	AssignmentReturned AssignmentStatus = "Returned"
	AssignmentDamaged  AssignmentStatus = "Damaged"
	AssignmentLost     AssignmentStatus = "Lost"
)

// AssetAssignment records units of an asset handed to an employee or room.
type AssetAssignment struct {
	ID                    string
	AssetID               string
	EmployeeID            string
	Room                  string
	Quantity              int
	ConditionAtAssignment AssetCondition
	Notes                 string
	AssignedBy            string
	AssignedAt            time.Time
	Status                AssignmentStatus
	ReturnDate            *time.Time
	ConditionAtReturn     AssetCondition
	ReturnNotes           string
	ReturnedBy            string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// LeaveType categorizes a leave request.
type LeaveType string

const (
	LeaveAnnual    LeaveType = "annual"
	LeaveSick      LeaveType = "sick"
	LeaveCasual    LeaveType = "casual"
	LeaveMaternity LeaveType = "maternity"
	LeavePaternity LeaveType = "paternity"
	LeaveUnpaid    LeaveType = "unpaid"
	LeaveOther     LeaveType = "other"
)

// Valid reports whether the leave type is known.
func (t LeaveType) Valid() bool {
	switch t {
	case LeaveAnnual, LeaveSick, LeaveCasual, LeaveMaternity, LeavePaternity, LeaveUnpaid, LeaveOther:
		return true
	}
	return false
}

// LeaveStatus tracks the approval state of a leave request.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// Leave is a request for absence over an inclusive range of calendar dates.
// StartDate and EndDate are midnight UTC of the requested dates.
type Leave struct {
	ID              string
	EmployeeID      string
	LeaveType       LeaveType
	StartDate       time.Time
	EndDate         time.Time
	Reason          string
	Status          LeaveStatus
	ApprovedBy      string
	RejectionReason string
	ReviewedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Days returns the number of calendar days covered by the leave.
func (l Leave) Days() int {
	return int(l.EndDate.Sub(l.StartDate).Hours()/24) + 1
}

// AttendanceStatus is the outcome recorded for an employee work day.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceHalfDay AttendanceStatus = "half-day"
	AttendanceLeave   AttendanceStatus = "leave"
	AttendanceExcused AttendanceStatus = "excused"
	AttendanceHoliday AttendanceStatus = "holiday"
)

// Valid reports whether the attendance status is known.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceLate, AttendanceAbsent, AttendanceHalfDay,
		AttendanceLeave, AttendanceExcused, AttendanceHoliday:
		return true
	}
	return false
}

// Irregular reports whether the status can be justified after the fact.
func (s AttendanceStatus) Irregular() bool {
	switch s {
	case AttendanceLate, AttendanceAbsent, AttendanceHalfDay:
		return true
	}
	return false
}

// AttendanceSource records what produced an attendance row.
type AttendanceSource string

const (
	SourceDevice AttendanceSource = "device"
	SourceManual AttendanceSource = "manual"
	SourceLeave  AttendanceSource = "leave"
)

// JustificationStatus tracks review of an attendance justification.
type JustificationStatus string

const (
	JustificationNone     JustificationStatus = ""
	JustificationPending  JustificationStatus = "pending"
	JustificationApproved JustificationStatus = "approved"
	JustificationRejected JustificationStatus = "rejected"
)

// Justification is an employee's explanation for an irregular attendance day.
type Justification struct {
	Reason      string
	Status      JustificationStatus
	SubmittedAt *time.Time
	ReviewedBy  string
	ReviewedAt  *time.Time
	ReviewNote  string
}

// Attendance is the per-employee, per-day attendance row.
type Attendance struct {
	ID            string
	EmployeeID    string
	WorkDate      time.Time
	Status        AttendanceStatus
	CheckIn       *time.Time
	CheckOut      *time.Time
	Source        AttendanceSource
	Remarks       string
	Justification Justification
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReferenceKind names the entity a notification or audit entry points at.
type ReferenceKind string

const (
	RefAsset      ReferenceKind = "asset"
	RefAssignment ReferenceKind = "assignment"
	RefLeave      ReferenceKind = "leave"
	RefAttendance ReferenceKind = "attendance"
	RefFeedback   ReferenceKind = "feedback"
	RefTodo       ReferenceKind = "todo"
	RefEmployee   ReferenceKind = "employee"
)

// Valid reports whether the kind is known.
func (k ReferenceKind) Valid() bool {
	switch k {
	case RefAsset, RefAssignment, RefLeave, RefAttendance, RefFeedback, RefTodo, RefEmployee:
		return true
	}
	return false
}

// Reference points at one entity of a known kind. A nil *Reference means no link.
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   string        `json:"id"`
}

func AssetRef(id string) *Reference      { return &Reference{Kind: RefAsset, ID: id} }
func AssignmentRef(id string) *Reference { return &Reference{Kind: RefAssignment, ID: id} }
func LeaveRef(id string) *Reference      { return &Reference{Kind: RefLeave, ID: id} }
func AttendanceRef(id string) *Reference { return &Reference{Kind: RefAttendance, ID: id} }
func FeedbackRef(id string) *Reference   { return &Reference{Kind: RefFeedback, ID: id} }
func TodoRef(id string) *Reference       { return &Reference{Kind: RefTodo, ID: id} }
func EmployeeRef(id string) *Reference   { return &Reference{Kind: RefEmployee, ID: id} }

// NotificationKind classifies a notification for display and filtering.
type NotificationKind string

const (
	NotifyAssetAssigned          NotificationKind = "asset_assigned"
	NotifyAssetReturned          NotificationKind = "asset_returned"
	NotifyLeaveSubmitted         NotificationKind = "leave_submitted"
	NotifyLeaveApproved          NotificationKind = "leave_approved"
	NotifyLeaveRejected          NotificationKind = "leave_rejected"
	NotifyLeaveCancelled         NotificationKind = "leave_cancelled"
	NotifyJustificationSubmitted NotificationKind = "justification_submitted"
	NotifyJustificationReviewed  NotificationKind = "justification_reviewed"
	NotifyFeedbackReceived       NotificationKind = "feedback_received"
	NotifyFeedbackUpdated        NotificationKind = "feedback_updated"
	NotifySystem                 NotificationKind = "system"
)

// Notification is a per-recipient message.
type Notification struct {
	ID          string
	RecipientID string
	SenderID    string
	Kind        NotificationKind
	Title       string
	Message     string
	Reference   *Reference
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}

// TodoPriority ranks a todo item.
type TodoPriority string

const (
	PriorityLow    TodoPriority = "low"
	PriorityMedium TodoPriority = "medium"
	PriorityHigh   TodoPriority = "high"
)

// Valid reports whether the priority is known.
func (p TodoPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// TodoStatus is the completion state of a todo item.
type TodoStatus string

const (
	TodoPending   TodoStatus = "pending"
	TodoCompleted TodoStatus = "completed"
)

// Todo is a personal task owned by one employee.
type Todo struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Priority    TodoPriority
	Status      TodoStatus
	DueDate     *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FeedbackCategory classifies feedback submissions.
type FeedbackCategory string

const (
	FeedbackSuggestion   FeedbackCategory = "suggestion"
	FeedbackComplaint    FeedbackCategory = "complaint"
	FeedbackAppreciation FeedbackCategory = "appreciation"
	FeedbackIssue        FeedbackCategory = "issue"
	FeedbackOther        FeedbackCategory = "other"
)

// Valid reports whether the category is known.
func (c FeedbackCategory) Valid() bool {
	switch c {
	case FeedbackSuggestion, FeedbackComplaint, FeedbackAppreciation, FeedbackIssue, FeedbackOther:
		return true
	}
	return false
}

// FeedbackStatus tracks administrative handling of feedback.
type FeedbackStatus string

const (
	FeedbackOpen     FeedbackStatus = "open"
	FeedbackInReview FeedbackStatus = "in_review"
	FeedbackResolved FeedbackStatus = "resolved"
	FeedbackClosed   FeedbackStatus = "closed"
)

// Valid reports whether the status is known.
func (s FeedbackStatus) Valid() bool {
	switch s {
	case FeedbackOpen, FeedbackInReview, FeedbackResolved, FeedbackClosed:
		return true
	}
	return false
}

// Feedback is an employee submission addressed to administrators.
type Feedback struct {
	ID            string
	AuthorID      string
	Category      FeedbackCategory
	Subject       string
	Message       string
	IsAnonymous   bool
	Status        FeedbackStatus
	AdminResponse string
	RespondedBy   string
	RespondedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuditEntry is an append-only record of a state change.
type AuditEntry struct {
	ID        string
	ActorID   string
	Action    string
	Reference *Reference
	Summary   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// OutboxKind selects how an outbox payload is applied.
type OutboxKind string

const (
	OutboxNotification OutboxKind = "notification"
	OutboxAudit        OutboxKind = "audit"
)

// OutboxStatus tracks delivery of an outbox message.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxDispatched OutboxStatus = "dispatched"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxMessage is a side effect recorded next to the business write that
// caused it and applied later by the dispatcher.
type OutboxMessage struct {
	ID           string
	Kind         OutboxKind
	Payload      []byte
	Status       OutboxStatus
	Attempts     int
	LastError    string
	AvailableAt  time.Time
	CreatedAt    time.Time
	DispatchedAt *time.Time
}
