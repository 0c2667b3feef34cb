package persistence

import (
	"context"
	"time"
)

// EmployeeFilter narrows employee queries.
type EmployeeFilter struct {
	Roles      []Role
	ActiveOnly bool
}

// EmployeeRepository exposes CRUD operations for employee accounts.
type EmployeeRepository interface {
	CreateEmployee(ctx context.Context, employee Employee) error
	UpdateEmployee(ctx context.Context, employee Employee) error
	GetEmployee(ctx context.Context, id string) (Employee, error)
	GetEmployeeByEmail(ctx context.Context, email string) (Employee, error)
	GetEmployeeByDeviceUserID(ctx context.Context, deviceUserID string) (Employee, error)
	ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error)
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// AssetFilter narrows asset listings. Search matches name, code or serial number.
type AssetFilter struct {
	Status          AssetStatus
	Category        AssetCategory
	Search          string
	IncludeInactive bool
}

// AssignmentFilter narrows assignment listings.
type AssignmentFilter struct {
	AssetID    string
	EmployeeID string
	Statuses   []AssignmentStatus
	Limit      int
}

// AssetMutation is a quantity change applied atomically: the asset row is
// written only if its stored version still equals ExpectedVersion, the
// assignment is inserted (assign) or closed (return) and the outbox messages
// are recorded in the same unit of work.
type AssetMutation struct {
	Asset           Asset
	ExpectedVersion int64
	Assignment      AssetAssignment
	Outbox          []OutboxMessage
}

// AssetRepository stores assets and their assignment ledger.
type AssetRepository interface {
	NextAssetSequence(ctx context.Context) (int64, error)
	CreateAsset(ctx context.Context, asset Asset) error
	// UpdateAsset writes every mutable field and bumps the version when the
	// stored version equals expectedVersion, else ErrVersionConflict.
	UpdateAsset(ctx context.Context, asset Asset, expectedVersion int64) error
	GetAsset(ctx context.Context, id string) (Asset, error)
	ListAssets(ctx context.Context, filter AssetFilter) ([]Asset, error)

	// CommitAssign inserts mutation.Assignment. ErrVersionConflict when the
	// asset moved since it was read.
	CommitAssign(ctx context.Context, mutation AssetMutation) error
	// CommitReturn closes mutation.Assignment only while it is still Active,
	// else ErrStaleState. ErrVersionConflict as for CommitAssign.
	CommitReturn(ctx context.Context, mutation AssetMutation) error
	GetAssignment(ctx context.Context, id string) (AssetAssignment, error)
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]AssetAssignment, error)
}

// LeaveFilter narrows leave listings. OverlapsFrom/OverlapsTo select leaves
// whose date range intersects the inclusive window.
type LeaveFilter struct {
	EmployeeID   string
	Statuses     []LeaveStatus
	OverlapsFrom *time.Time
	OverlapsTo   *time.Time
}

// LeaveDecision is a reviewed leave plus the attendance rows and side effects
// that must commit with it.
type LeaveDecision struct {
	Leave      Leave
	Attendance []Attendance
	Outbox     []OutboxMessage
}

// LeaveRepository stores leave requests.
type LeaveRepository interface {
	CreateLeave(ctx context.Context, leave Leave) error
	GetLeave(ctx context.Context, id string) (Leave, error)
	ListLeaves(ctx context.Context, filter LeaveFilter) ([]Leave, error)
	// DeleteLeave removes the leave only while it is still in status, else ErrStaleState.
	DeleteLeave(ctx context.Context, id string, status LeaveStatus) error
	// CommitLeaveDecision moves a pending leave to its reviewed status, upserts
	// the attendance rows and records the outbox messages in one unit of work.
	// ErrStaleState when the leave is no longer pending.
	CommitLeaveDecision(ctx context.Context, decision LeaveDecision) error
}

// AttendanceFilter narrows attendance listings. From and To are inclusive dates.
type AttendanceFilter struct {
	EmployeeID    string
	From          *time.Time
	To            *time.Time
	Statuses      []AttendanceStatus
	Justification JustificationStatus
}

// DeviceIngest is a batch of device punches merged into attendance rows along
// with the device's new watermark.
type DeviceIngest struct {
	DeviceID  string
	Rows      []Attendance
	Watermark time.Time
	At        time.Time
}

// JustificationChange moves an attendance justification out of Expected.
type JustificationChange struct {
	AttendanceID  string
	Expected      JustificationStatus
	Justification Justification
	Status        AttendanceStatus
	Remarks       string
	UpdatedAt     time.Time
	Outbox        []OutboxMessage
}

// AttendanceRepository stores per-day attendance and device watermarks.
type AttendanceRepository interface {
	// UpsertAttendance inserts or replaces the row keyed by employee and work
	// date, keeping the stored id, creation time and justification.
	UpsertAttendance(ctx context.Context, row Attendance) (Attendance, error)
	GetAttendance(ctx context.Context, id string) (Attendance, error)
	GetAttendanceByDay(ctx context.Context, employeeID string, workDate time.Time) (Attendance, error)
	ListAttendance(ctx context.Context, filter AttendanceFilter) ([]Attendance, error)
	// CommitJustification applies change while the stored justification
	// status equals change.Expected, else ErrStaleState.
	CommitJustification(ctx context.Context, change JustificationChange) error
	// IngestDevice upserts the rows and advances the device watermark together.
	IngestDevice(ctx context.Context, ingest DeviceIngest) error
	// DeviceWatermark returns the zero time for unknown devices.
	DeviceWatermark(ctx context.Context, deviceID string) (time.Time, error)
}

// NotificationFilter narrows notification listings.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
}

// NotificationRepository stores per-recipient notifications. Every mutation
// is scoped to the recipient, so another user's id behaves as not found.
type NotificationRepository interface {
	// CreateNotifications inserts the batch, silently skipping ids that
	// already exist.
	CreateNotifications(ctx context.Context, notifications []Notification) error
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkNotificationRead(ctx context.Context, id, recipientID string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	DeleteNotification(ctx context.Context, id, recipientID string) error
	DeleteReadNotifications(ctx context.Context, recipientID string) (int64, error)
}

// TodoFilter narrows todo listings.
type TodoFilter struct {
	OwnerID string
	Status  TodoStatus
}

// TodoRepository stores personal todos.
type TodoRepository interface {
	CreateTodo(ctx context.Context, todo Todo) error
	GetTodo(ctx context.Context, id string) (Todo, error)
	ListTodos(ctx context.Context, filter TodoFilter) ([]Todo, error)
	UpdateTodo(ctx context.Context, todo Todo) error
	DeleteTodo(ctx context.Context, id string) error
}

// FeedbackFilter narrows feedback listings.
type FeedbackFilter struct {
	AuthorID string
	Status   FeedbackStatus
}

// FeedbackRepository stores feedback submissions.
type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, feedback Feedback) error
	GetFeedback(ctx context.Context, id string) (Feedback, error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]Feedback, error)
	UpdateFeedback(ctx context.Context, feedback Feedback) error
	DeleteFeedback(ctx context.Context, id string) error
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	ActorID  string
	Kind     ReferenceKind
	EntityID string
	Limit    int
}

// AuditRepository stores the append-only audit trail.
type AuditRepository interface {
	// AppendAudit inserts the entry; an existing id is silently kept.
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// OutboxFilter narrows outbox listings.
type OutboxFilter struct {
	Status OutboxStatus
	Limit  int
}

// OutboxRepository stores side effects awaiting dispatch.
type OutboxRepository interface {
	EnqueueOutbox(ctx context.Context, messages []OutboxMessage) error
	// ListDueOutbox returns pending messages available at or before now, oldest first.
	ListDueOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error)
	MarkOutboxDispatched(ctx context.Context, id string, at time.Time) error
	// MarkOutboxAttempt records a failed attempt. A zero nextAttempt marks the
	// message failed for good.
	MarkOutboxAttempt(ctx context.Context, id string, attempts int, lastError string, nextAttempt time.Time) error
	ListOutbox(ctx context.Context, filter OutboxFilter) ([]OutboxMessage, error)
	CountOutbox(ctx context.Context) (map[OutboxStatus]int, error)
}

// SettingsRepository stores system settings as a flat key/value map.
type SettingsRepository interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	PutSettings(ctx context.Context, values map[string]string, at time.Time) error
}

// Repositories bundles every repository a store provides.
type Repositories struct {
	Employees     EmployeeRepository
	Sessions      SessionRepository
	Assets        AssetRepository
	Leaves        LeaveRepository
	Attendance    AttendanceRepository
	Notifications NotificationRepository
	Todos         TodoRepository
	Feedback      FeedbackRepository
	Audit         AuditRepository
	Outbox        OutboxRepository
	Settings      SettingsRepository
}

// Store is a storage backend that provides every repository.
type Store interface {
	Repositories() Repositories
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
