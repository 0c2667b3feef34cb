package mongostore

import (
	"strings"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

type employeeDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	EmailKey     string    `bson:"email_key"`
	DisplayName  string    `bson:"display_name"`
	Role         string    `bson:"role"`
	Department   string    `bson:"department"`
	Position     string    `bson:"position"`
	DeviceUserID string    `bson:"device_user_id"`
	PasswordHash string    `bson:"password_hash"`
	IsActive     bool      `bson:"is_active"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toEmployeeDoc(e persistence.Employee) employeeDoc {
	return employeeDoc{
		ID:           e.ID,
		Email:        e.Email,
		EmailKey:     strings.ToLower(e.Email),
		DisplayName:  e.DisplayName,
		Role:         string(e.Role),
		Department:   e.Department,
		Position:     e.Position,
		DeviceUserID: e.DeviceUserID,
		PasswordHash: e.PasswordHash,
		IsActive:     e.IsActive,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func (d employeeDoc) model() persistence.Employee {
	return persistence.Employee{
		ID:           d.ID,
		Email:        d.Email,
		DisplayName:  d.DisplayName,
		Role:         persistence.Role(d.Role),
		Department:   d.Department,
		Position:     d.Position,
		DeviceUserID: d.DeviceUserID,
		PasswordHash: d.PasswordHash,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type sessionDoc struct {
	ID          string     `bson:"_id"`
	EmployeeID  string     `bson:"employee_id"`
	Token       string     `bson:"token"`
	Fingerprint string     `bson:"fingerprint"`
	ExpiresAt   time.Time  `bson:"expires_at"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
	RevokedAt   *time.Time `bson:"revoked_at,omitempty"`
}

func toSessionDoc(s persistence.Session) sessionDoc {
	return sessionDoc(s)
}

func (d sessionDoc) model() persistence.Session {
	return persistence.Session(d)
}

type assetDoc struct {
	ID               string     `bson:"_id"`
	Code             string     `bson:"code"`
	Name             string     `bson:"name"`
	Category         string     `bson:"category"`
	Condition        string     `bson:"condition"`
	Status           string     `bson:"status"`
	Quantity         int        `bson:"quantity"`
	QuantityAssigned int        `bson:"quantity_assigned"`
	SerialNumber     string     `bson:"serial_number"`
	Location         string     `bson:"location"`
	Description      string     `bson:"description"`
	PurchaseDate     *time.Time `bson:"purchase_date,omitempty"`
	IsActive         bool       `bson:"is_active"`
	Version          int64      `bson:"version"`
	CreatedBy        string     `bson:"created_by"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
}

func toAssetDoc(a persistence.Asset) assetDoc {
	return assetDoc{
		ID:               a.ID,
		Code:             a.Code,
		Name:             a.Name,
		Category:         string(a.Category),
		Condition:        string(a.Condition),
		Status:           string(a.Status),
		Quantity:         a.Quantity,
		QuantityAssigned: a.QuantityAssigned,
		SerialNumber:     a.SerialNumber,
		Location:         a.Location,
		Description:      a.Description,
		PurchaseDate:     a.PurchaseDate,
		IsActive:         a.IsActive,
		Version:          a.Version,
		CreatedBy:        a.CreatedBy,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func (d assetDoc) model() persistence.Asset {
	return persistence.Asset{
		ID:               d.ID,
		Code:             d.Code,
		Name:             d.Name,
		Category:         persistence.AssetCategory(d.Category),
		Condition:        persistence.AssetCondition(d.Condition),
		Status:           persistence.AssetStatus(d.Status),
		Quantity:         d.Quantity,
		QuantityAssigned: d.QuantityAssigned,
		SerialNumber:     d.SerialNumber,
		Location:         d.Location,
		Description:      d.Description,
		PurchaseDate:     d.PurchaseDate,
		IsActive:         d.IsActive,
		Version:          d.Version,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type assignmentDoc struct {
	ID                    string     `bson:"_id"`
	AssetID               string     `bson:"asset_id"`
	EmployeeID            string     `bson:"employee_id"`
	Room                  string     `bson:"room"`
	Quantity              int        `bson:"quantity"`
	ConditionAtAssignment string     `bson:"condition_at_assignment"`
	Notes                 string     `bson:"notes"`
	AssignedBy            string     `bson:"assigned_by"`
	AssignedAt            time.Time  `bson:"assigned_at"`
	Status                string     `bson:"status"`
	ReturnDate            *time.Time `bson:"return_date,omitempty"`
	ConditionAtReturn     string     `bson:"condition_at_return"`
	ReturnNotes           string     `bson:"return_notes"`
	ReturnedBy            string     `bson:"returned_by"`
	CreatedAt             time.Time  `bson:"created_at"`
	UpdatedAt             time.Time  `bson:"updated_at"`
}

func toAssignmentDoc(a persistence.AssetAssignment) assignmentDoc {
	return assignmentDoc{
		ID:                    a.ID,
		AssetID:               a.AssetID,
		EmployeeID:            a.EmployeeID,
		Room:                  a.Room,
		Quantity:              a.Quantity,
		ConditionAtAssignment: string(a.ConditionAtAssignment),
		Notes:                 a.Notes,
		AssignedBy:            a.AssignedBy,
		AssignedAt:            a.AssignedAt,
		Status:                string(a.Status),
		ReturnDate:            a.ReturnDate,
		ConditionAtReturn:     string(a.ConditionAtReturn),
		ReturnNotes:           a.ReturnNotes,
		ReturnedBy:            a.ReturnedBy,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
}

func (d assignmentDoc) model() persistence.AssetAssignment {
	return persistence.AssetAssignment{
		ID:                    d.ID,
		AssetID:               d.AssetID,
		EmployeeID:            d.EmployeeID,
		Room:                  d.Room,
		Quantity:              d.Quantity,
		ConditionAtAssignment: persistence.AssetCondition(d.ConditionAtAssignment),
		Notes:                 d.Notes,
		AssignedBy:            d.AssignedBy,
		AssignedAt:            d.AssignedAt,
		Status:                persistence.AssignmentStatus(d.Status),
		ReturnDate:            d.ReturnDate,
		ConditionAtReturn:     persistence.AssetCondition(d.ConditionAtReturn),
		ReturnNotes:           d.ReturnNotes,
		ReturnedBy:            d.ReturnedBy,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

type leaveDoc struct {
	ID              string     `bson:"_id"`
	EmployeeID      string     `bson:"employee_id"`
	LeaveType       string     `bson:"leave_type"`
	StartDate       time.Time  `bson:"start_date"`
	EndDate         time.Time  `bson:"end_date"`
	Reason          string     `bson:"reason"`
	Status          string     `bson:"status"`
	ApprovedBy      string     `bson:"approved_by"`
	RejectionReason string     `bson:"rejection_reason"`
	ReviewedAt      *time.Time `bson:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

func toLeaveDoc(l persistence.Leave) leaveDoc {
	return leaveDoc{
		ID:              l.ID,
		EmployeeID:      l.EmployeeID,
		LeaveType:       string(l.LeaveType),
		StartDate:       dayOf(l.StartDate),
		EndDate:         dayOf(l.EndDate),
		Reason:          l.Reason,
		Status:          string(l.Status),
		ApprovedBy:      l.ApprovedBy,
		RejectionReason: l.RejectionReason,
		ReviewedAt:      l.ReviewedAt,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (d leaveDoc) model() persistence.Leave {
	return persistence.Leave{
		ID:              d.ID,
		EmployeeID:      d.EmployeeID,
		LeaveType:       persistence.LeaveType(d.LeaveType),
		StartDate:       d.StartDate,
		EndDate:         d.EndDate,
		Reason:          d.Reason,
		Status:          persistence.LeaveStatus(d.Status),
		ApprovedBy:      d.ApprovedBy,
		RejectionReason: d.RejectionReason,
		ReviewedAt:      d.ReviewedAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type justificationDoc struct {
	Reason      string     `bson:"reason"`
	Status      string     `bson:"status"`
	SubmittedAt *time.Time `bson:"submitted_at,omitempty"`
	ReviewedBy  string     `bson:"reviewed_by"`
	ReviewedAt  *time.Time `bson:"reviewed_at,omitempty"`
	ReviewNote  string     `bson:"review_note"`
}

type attendanceDoc struct {
	ID            string           `bson:"_id"`
	EmployeeID    string           `bson:"employee_id"`
	WorkDate      time.Time        `bson:"work_date"`
	Status        string           `bson:"status"`
	CheckIn       *time.Time       `bson:"check_in,omitempty"`
	CheckOut      *time.Time       `bson:"check_out,omitempty"`
	Source        string           `bson:"source"`
	Remarks       string           `bson:"remarks"`
	Justification justificationDoc `bson:"justification"`
	CreatedAt     time.Time        `bson:"created_at"`
	UpdatedAt     time.Time        `bson:"updated_at"`
}

func toJustificationDoc(j persistence.Justification) justificationDoc {
	return justificationDoc{
		Reason:      j.Reason,
		Status:      string(j.Status),
		SubmittedAt: j.SubmittedAt,
		ReviewedBy:  j.ReviewedBy,
		ReviewedAt:  j.ReviewedAt,
		ReviewNote:  j.ReviewNote,
	}
}

func toAttendanceDoc(a persistence.Attendance) attendanceDoc {
	return attendanceDoc{
		ID:            a.ID,
		EmployeeID:    a.EmployeeID,
		WorkDate:      dayOf(a.WorkDate),
		Status:        string(a.Status),
		CheckIn:       a.CheckIn,
		CheckOut:      a.CheckOut,
		Source:        string(a.Source),
		Remarks:       a.Remarks,
		Justification: toJustificationDoc(a.Justification),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (d attendanceDoc) model() persistence.Attendance {
	return persistence.Attendance{
		ID:         d.ID,
		EmployeeID: d.EmployeeID,
		WorkDate:   d.WorkDate,
		Status:     persistence.AttendanceStatus(d.Status),
		CheckIn:    d.CheckIn,
		CheckOut:   d.CheckOut,
		Source:     persistence.AttendanceSource(d.Source),
		Remarks:    d.Remarks,
		Justification: persistence.Justification{
			Reason:      d.Justification.Reason,
			Status:      persistence.JustificationStatus(d.Justification.Status),
			SubmittedAt: d.Justification.SubmittedAt,
			ReviewedBy:  d.Justification.ReviewedBy,
			ReviewedAt:  d.Justification.ReviewedAt,
			ReviewNote:  d.Justification.ReviewNote,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type referenceDoc struct {
	Kind string `bson:"kind"`
	ID   string `bson:"id"`
}

func toReferenceDoc(ref *persistence.Reference) *referenceDoc {
	if ref == nil {
		return nil
	}
	return &referenceDoc{Kind: string(ref.Kind), ID: ref.ID}
}

func (d *referenceDoc) model() *persistence.Reference {
	if d == nil || d.Kind == "" {
		return nil
	}
	return &persistence.Reference{Kind: persistence.ReferenceKind(d.Kind), ID: d.ID}
}

type notificationDoc struct {
	ID          string        `bson:"_id"`
	RecipientID string        `bson:"recipient_id"`
	SenderID    string        `bson:"sender_id"`
	Kind        string        `bson:"kind"`
	Title       string        `bson:"title"`
	Message     string        `bson:"message"`
	Reference   *referenceDoc `bson:"reference,omitempty"`
	IsRead      bool          `bson:"is_read"`
	ReadAt      *time.Time    `bson:"read_at,omitempty"`
	CreatedAt   time.Time     `bson:"created_at"`
}

func toNotificationDoc(n persistence.Notification) notificationDoc {
	return notificationDoc{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Kind:        string(n.Kind),
		Title:       n.Title,
		Message:     n.Message,
		Reference:   toReferenceDoc(n.Reference),
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
	}
}

func (d notificationDoc) model() persistence.Notification {
	return persistence.Notification{
		ID:          d.ID,
		RecipientID: d.RecipientID,
		SenderID:    d.SenderID,
		Kind:        persistence.NotificationKind(d.Kind),
		Title:       d.Title,
		Message:     d.Message,
		Reference:   d.Reference.model(),
		IsRead:      d.IsRead,
		ReadAt:      d.ReadAt,
		CreatedAt:   d.CreatedAt,
	}
}

type todoDoc struct {
	ID          string     `bson:"_id"`
	OwnerID     string     `bson:"owner_id"`
	Title       string     `bson:"title"`
	Description string     `bson:"description"`
	Priority    string     `bson:"priority"`
	Status      string     `bson:"status"`
	DueDate     *time.Time `bson:"due_date,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

func toTodoDoc(t persistence.Todo) todoDoc {
	return todoDoc{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		DueDate:     t.DueDate,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (d todoDoc) model() persistence.Todo {
	return persistence.Todo{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		Description: d.Description,
		Priority:    persistence.TodoPriority(d.Priority),
		Status:      persistence.TodoStatus(d.Status),
		DueDate:     d.DueDate,
		CompletedAt: d.CompletedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type feedbackDoc struct {
	ID            string     `bson:"_id"`
	AuthorID      string     `bson:"author_id"`
	Category      string     `bson:"category"`
	Subject       string     `bson:"subject"`
	Message       string     `bson:"message"`
	IsAnonymous   bool       `bson:"is_anonymous"`
	Status        string     `bson:"status"`
	AdminResponse string     `bson:"admin_response"`
	RespondedBy   string     `bson:"responded_by"`
	RespondedAt   *time.Time `bson:"responded_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toFeedbackDoc(f persistence.Feedback) feedbackDoc {
	return feedbackDoc{
		ID:            f.ID,
		AuthorID:      f.AuthorID,
		Category:      string(f.Category),
		Subject:       f.Subject,
		Message:       f.Message,
		IsAnonymous:   f.IsAnonymous,
		Status:        string(f.Status),
		AdminResponse: f.AdminResponse,
		RespondedBy:   f.RespondedBy,
		RespondedAt:   f.RespondedAt,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

func (d feedbackDoc) model() persistence.Feedback {
	return persistence.Feedback{
		ID:            d.ID,
		AuthorID:      d.AuthorID,
		Category:      persistence.FeedbackCategory(d.Category),
		Subject:       d.Subject,
		Message:       d.Message,
		IsAnonymous:   d.IsAnonymous,
		Status:        persistence.FeedbackStatus(d.Status),
		AdminResponse: d.AdminResponse,
		RespondedBy:   d.RespondedBy,
		RespondedAt:   d.RespondedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type auditDoc struct {
	ID        string            `bson:"_id"`
	ActorID   string            `bson:"actor_id"`
	Action    string            `bson:"action"`
	Reference *referenceDoc     `bson:"reference,omitempty"`
	Summary   string            `bson:"summary"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
	CreatedAt time.Time         `bson:"created_at"`
}

func toAuditDoc(e persistence.AuditEntry) auditDoc {
	return auditDoc{
		ID:        e.ID,
		ActorID:   e.ActorID,
		Action:    e.Action,
		Reference: toReferenceDoc(e.Reference),
		Summary:   e.Summary,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}

func (d auditDoc) model() persistence.AuditEntry {
	return persistence.AuditEntry{
		ID:        d.ID,
		ActorID:   d.ActorID,
		Action:    d.Action,
		Reference: d.Reference.model(),
		Summary:   d.Summary,
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
	}
}

type outboxDoc struct {
	ID           string     `bson:"_id"`
	Kind         string     `bson:"kind"`
	Payload      []byte     `bson:"payload"`
	Status       string     `bson:"status"`
	Attempts     int        `bson:"attempts"`
	LastError    string     `bson:"last_error"`
	AvailableAt  time.Time  `bson:"available_at"`
	CreatedAt    time.Time  `bson:"created_at"`
	DispatchedAt *time.Time `bson:"dispatched_at,omitempty"`
}

func toOutboxDoc(m persistence.OutboxMessage) outboxDoc {
	status := m.Status
	if status == "" {
		status = persistence.OutboxPending
	}
	return outboxDoc{
		ID:           m.ID,
		Kind:         string(m.Kind),
		Payload:      m.Payload,
		Status:       string(status),
		Attempts:     m.Attempts,
		LastError:    m.LastError,
		AvailableAt:  m.AvailableAt,
		CreatedAt:    m.CreatedAt,
		DispatchedAt: m.DispatchedAt,
	}
}

func (d outboxDoc) model() persistence.OutboxMessage {
	return persistence.OutboxMessage{
		ID:           d.ID,
		Kind:         persistence.OutboxKind(d.Kind),
		Payload:      d.Payload,
		Status:       persistence.OutboxStatus(d.Status),
		Attempts:     d.Attempts,
		LastError:    d.LastError,
		AvailableAt:  d.AvailableAt,
		CreatedAt:    d.CreatedAt,
		DispatchedAt: d.DispatchedAt,
	}
}

// dayOf truncates t to midnight UTC of its calendar date.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
