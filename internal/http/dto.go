package http

import (
	"time"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := application.FormatDate(*t)
	return &s
}

// mapAll converts a slice, never returning nil so empty lists encode as [].
func mapAll[T, D any](items []T, convert func(T) D) []D {
	out := make([]D, 0, len(items))
	for _, item := range items {
		out = append(out, convert(item))
	}
	return out
}

type employeeDTO struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	Role         string `json:"role"`
	Department   string `json:"department,omitempty"`
	Position     string `json:"position,omitempty"`
	DeviceUserID string `json:"deviceUserId,omitempty"`
	IsActive     bool   `json:"isActive"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func toEmployeeDTO(e persistence.Employee) employeeDTO {
	return employeeDTO{
		ID:           e.ID,
		Email:        e.Email,
		DisplayName:  e.DisplayName,
		Role:         string(e.Role),
		Department:   e.Department,
		Position:     e.Position,
		DeviceUserID: e.DeviceUserID,
		IsActive:     e.IsActive,
		CreatedAt:    formatTime(e.CreatedAt),
		UpdatedAt:    formatTime(e.UpdatedAt),
	}
}

type assetDTO struct {
	ID                string  `json:"id"`
	Code              string  `json:"code"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	Condition         string  `json:"condition"`
	Status            string  `json:"status"`
	Quantity          int     `json:"quantity"`
	QuantityAssigned  int     `json:"quantityAssigned"`
	QuantityAvailable int     `json:"quantityAvailable"`
	SerialNumber      string  `json:"serialNumber,omitempty"`
	Location          string  `json:"location,omitempty"`
	Description       string  `json:"description,omitempty"`
	PurchaseDate      *string `json:"purchaseDate,omitempty"`
	IsActive          bool    `json:"isActive"`
	Version           int64   `json:"version"`
	CreatedBy         string  `json:"createdBy,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

func toAssetDTO(a persistence.Asset) assetDTO {
	return assetDTO{
		ID:                a.ID,
		Code:              a.Code,
		Name:              a.Name,
		Category:          string(a.Category),
		Condition:         string(a.Condition),
		Status:            string(a.Status),
		Quantity:          a.Quantity,
		QuantityAssigned:  a.QuantityAssigned,
		QuantityAvailable: a.Available(),
		SerialNumber:      a.SerialNumber,
		Location:          a.Location,
		Description:       a.Description,
		PurchaseDate:      formatDatePtr(a.PurchaseDate),
		IsActive:          a.IsActive,
		Version:           a.Version,
		CreatedBy:         a.CreatedBy,
		CreatedAt:         formatTime(a.CreatedAt),
		UpdatedAt:         formatTime(a.UpdatedAt),
	}
}

type assignmentDTO struct {
	ID                    string  `json:"id"`
	AssetID               string  `json:"assetId"`
	AssetCode             string  `json:"assetCode,omitempty"`
	AssetName             string  `json:"assetName,omitempty"`
	EmployeeID            string  `json:"employeeId,omitempty"`
	EmployeeName          string  `json:"employeeName,omitempty"`
	Room                  string  `json:"room,omitempty"`
	Quantity              int     `json:"quantity"`
	ConditionAtAssignment string  `json:"conditionAtAssignment,omitempty"`
	Notes                 string  `json:"notes,omitempty"`
	AssignedBy            string  `json:"assignedBy"`
	AssignedByName        string  `json:"assignedByName,omitempty"`
	AssignedAt            string  `json:"assignedAt"`
	Status                string  `json:"status"`
	ReturnDate            *string `json:"returnDate,omitempty"`
	ConditionAtReturn     string  `json:"conditionAtReturn,omitempty"`
	ReturnNotes           string  `json:"returnNotes,omitempty"`
	ReturnedBy            string  `json:"returnedBy,omitempty"`
	ReturnedByName        string  `json:"returnedByName,omitempty"`
}

func toAssignmentDTO(d application.AssignmentDetail) assignmentDTO {
	return assignmentDTO{
		ID:                    d.ID,
		AssetID:               d.AssetID,
		AssetCode:             d.AssetCode,
		AssetName:             d.AssetName,
		EmployeeID:            d.EmployeeID,
		EmployeeName:          d.EmployeeName,
		Room:                  d.Room,
		Quantity:              d.Quantity,
		ConditionAtAssignment: string(d.ConditionAtAssignment),
		Notes:                 d.Notes,
		AssignedBy:            d.AssignedBy,
		AssignedByName:        d.AssignedByName,
		AssignedAt:            formatTime(d.AssignedAt),
		Status:                string(d.Status),
		ReturnDate:            formatTimePtr(d.ReturnDate),
		ConditionAtReturn:     string(d.ConditionAtReturn),
		ReturnNotes:           d.ReturnNotes,
		ReturnedBy:            d.ReturnedBy,
		ReturnedByName:        d.ReturnedByName,
	}
}

type assignmentResultDTO struct {
	Assignment assignmentDTO `json:"assignment"`
	Asset      assetDTO      `json:"asset"`
}

func toAssignmentResultDTO(result application.AssignmentResult) assignmentResultDTO {
	return assignmentResultDTO{
		Assignment: toAssignmentDTO(result.Assignment),
		Asset:      toAssetDTO(result.Asset),
	}
}

type leaveDTO struct {
	ID              string  `json:"id"`
	EmployeeID      string  `json:"employeeId"`
	LeaveType       string  `json:"leaveType"`
	StartDate       string  `json:"startDate"`
	EndDate         string  `json:"endDate"`
	Days            int     `json:"days"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status"`
	ApprovedBy      string  `json:"approvedBy,omitempty"`
	RejectionReason string  `json:"rejectionReason,omitempty"`
	ReviewedAt      *string `json:"reviewedAt,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

func toLeaveDTO(l persistence.Leave) leaveDTO {
	return leaveDTO{
		ID:              l.ID,
		EmployeeID:      l.EmployeeID,
		LeaveType:       string(l.LeaveType),
		StartDate:       application.FormatDate(l.StartDate),
		EndDate:         application.FormatDate(l.EndDate),
		Days:            l.Days(),
		Reason:          l.Reason,
		Status:          string(l.Status),
		ApprovedBy:      l.ApprovedBy,
		RejectionReason: l.RejectionReason,
		ReviewedAt:      formatTimePtr(l.ReviewedAt),
		CreatedAt:       formatTime(l.CreatedAt),
		UpdatedAt:       formatTime(l.UpdatedAt),
	}
}

type justificationDTO struct {
	Reason      string  `json:"reason"`
	Status      string  `json:"status"`
	SubmittedAt *string `json:"submittedAt,omitempty"`
	ReviewedBy  string  `json:"reviewedBy,omitempty"`
	ReviewedAt  *string `json:"reviewedAt,omitempty"`
	ReviewNote  string  `json:"reviewNote,omitempty"`
}

type attendanceDTO struct {
	ID            string            `json:"id"`
	EmployeeID    string            `json:"employeeId"`
	WorkDate      string            `json:"workDate"`
	Status        string            `json:"status"`
	CheckIn       *string           `json:"checkIn,omitempty"`
	CheckOut      *string           `json:"checkOut,omitempty"`
	Source        string            `json:"source"`
	Remarks       string            `json:"remarks,omitempty"`
	Justification *justificationDTO `json:"justification,omitempty"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
}

func toAttendanceDTO(a persistence.Attendance) attendanceDTO {
	dto := attendanceDTO{
		ID:         a.ID,
		EmployeeID: a.EmployeeID,
		WorkDate:   application.FormatDate(a.WorkDate),
		Status:     string(a.Status),
		CheckIn:    formatTimePtr(a.CheckIn),
		CheckOut:   formatTimePtr(a.CheckOut),
		Source:     string(a.Source),
		Remarks:    a.Remarks,
		CreatedAt:  formatTime(a.CreatedAt),
		UpdatedAt:  formatTime(a.UpdatedAt),
	}
	if j := a.Justification; j.Status != persistence.JustificationNone {
		dto.Justification = &justificationDTO{
			Reason:      j.Reason,
			Status:      string(j.Status),
			SubmittedAt: formatTimePtr(j.SubmittedAt),
			ReviewedBy:  j.ReviewedBy,
			ReviewedAt:  formatTimePtr(j.ReviewedAt),
			ReviewNote:  j.ReviewNote,
		}
	}
	return dto
}

type notificationDTO struct {
	ID          string                 `json:"id"`
	RecipientID string                 `json:"recipientId"`
	SenderID    string                 `json:"senderId,omitempty"`
	Kind        string                 `json:"kind"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Reference   *persistence.Reference `json:"reference,omitempty"`
	IsRead      bool                   `json:"isRead"`
	ReadAt      *string                `json:"readAt,omitempty"`
	CreatedAt   string                 `json:"createdAt"`
}

func toNotificationDTO(n persistence.Notification) notificationDTO {
	return notificationDTO{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Kind:        string(n.Kind),
		Title:       n.Title,
		Message:     n.Message,
		Reference:   n.Reference,
		IsRead:      n.IsRead,
		ReadAt:      formatTimePtr(n.ReadAt),
		CreatedAt:   formatTime(n.CreatedAt),
	}
}

type todoDTO struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	DueDate     *string `json:"dueDate,omitempty"`
	CompletedAt *string `json:"completedAt,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func toTodoDTO(t persistence.Todo) todoDTO {
	return todoDTO{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		DueDate:     formatDatePtr(t.DueDate),
		CompletedAt: formatTimePtr(t.CompletedAt),
		CreatedAt:   formatTime(t.CreatedAt),
		UpdatedAt:   formatTime(t.UpdatedAt),
	}
}

type feedbackDTO struct {
	ID            string  `json:"id"`
	AuthorID      string  `json:"authorId,omitempty"`
	AuthorName    string  `json:"authorName"`
	Category      string  `json:"category"`
	Subject       string  `json:"subject"`
	Message       string  `json:"message"`
	IsAnonymous   bool    `json:"isAnonymous"`
	Status        string  `json:"status"`
	AdminResponse string  `json:"adminResponse,omitempty"`
	RespondedBy   string  `json:"respondedBy,omitempty"`
	RespondedAt   *string `json:"respondedAt,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

func toFeedbackDTO(v application.FeedbackView) feedbackDTO {
	return feedbackDTO{
		ID:            v.ID,
		AuthorID:      v.AuthorID,
		AuthorName:    v.AuthorName,
		Category:      string(v.Category),
		Subject:       v.Subject,
		Message:       v.Message,
		IsAnonymous:   v.IsAnonymous,
		Status:        string(v.Status),
		AdminResponse: v.AdminResponse,
		RespondedBy:   v.RespondedBy,
		RespondedAt:   formatTimePtr(v.RespondedAt),
		CreatedAt:     formatTime(v.CreatedAt),
		UpdatedAt:     formatTime(v.UpdatedAt),
	}
}

type auditDTO struct {
	ID        string                 `json:"id"`
	ActorID   string                 `json:"actorId"`
	Action    string                 `json:"action"`
	Reference *persistence.Reference `json:"reference,omitempty"`
	Summary   string                 `json:"summary"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	CreatedAt string                 `json:"createdAt"`
}

func toAuditDTO(e persistence.AuditEntry) auditDTO {
	return auditDTO{
		ID:        e.ID,
		ActorID:   e.ActorID,
		Action:    e.Action,
		Reference: e.Reference,
		Summary:   e.Summary,
		Metadata:  e.Metadata,
		CreatedAt: formatTime(e.CreatedAt),
	}
}

type outboxDTO struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	Attempts     int     `json:"attempts"`
	LastError    string  `json:"lastError,omitempty"`
	AvailableAt  string  `json:"availableAt"`
	CreatedAt    string  `json:"createdAt"`
	DispatchedAt *string `json:"dispatchedAt,omitempty"`
}

func toOutboxDTO(m persistence.OutboxMessage) outboxDTO {
	return outboxDTO{
		ID:           m.ID,
		Kind:         string(m.Kind),
		Status:       string(m.Status),
		Attempts:     m.Attempts,
		LastError:    m.LastError,
		AvailableAt:  formatTime(m.AvailableAt),
		CreatedAt:    formatTime(m.CreatedAt),
		DispatchedAt: formatTimePtr(m.DispatchedAt),
	}
}
