package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
)

type leaveService interface {
	Apply(ctx context.Context, principal application.Principal, input application.LeaveInput) (persistence.Leave, error)
	MyLeaves(ctx context.Context, principal application.Principal) ([]persistence.Leave, error)
	ListLeaves(ctx context.Context, principal application.Principal, filter persistence.LeaveFilter) ([]persistence.Leave, error)
	Decide(ctx context.Context, params application.LeaveDecisionParams) (persistence.Leave, error)
	Cancel(ctx context.Context, principal application.Principal, leaveID string) error
}

// LeaveHandler serves leave applications and their review.
type LeaveHandler struct {
	service   leaveService
	responder responder
	logger    *slog.Logger
}

func NewLeaveHandler(service leaveService, logger *slog.Logger) *LeaveHandler {
	base := defaultLogger(logger)
	return &LeaveHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *LeaveHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "LeaveHandler", operation, attrs...)
}

type applyLeaveRequest struct {
	LeaveType string `json:"leaveType" validate:"required"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"required,max=2000"`
}

type leaveStatusRequest struct {
	Status          string `json:"status" validate:"required,oneof=approved rejected"`
	RejectionReason string `json:"rejectionReason" validate:"max=2000"`
}

func (h *LeaveHandler) Apply(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req applyLeaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	start, _ := time.Parse(application.DateLayout, req.StartDate)
	end, _ := time.Parse(application.DateLayout, req.EndDate)

	logger := h.log(r.Context(), "Apply")
	leave, err := h.service.Apply(r.Context(), principal, application.LeaveInput{
		LeaveType: persistence.LeaveType(strings.TrimSpace(req.LeaveType)),
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "leave application failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("leave_id", leave.ID).InfoContext(r.Context(), "leave requested")
	h.responder.writeData(r.Context(), w, http.StatusCreated, toLeaveDTO(leave), "Leave request submitted.")
}

func (h *LeaveHandler) Mine(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	leaves, err := h.service.MyLeaves(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(leaves, toLeaveDTO), len(leaves))
}

func (h *LeaveHandler) All(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	filter := persistence.LeaveFilter{EmployeeID: strings.TrimSpace(query.Get("employeeId"))}
	if status := strings.TrimSpace(query.Get("status")); status != "" {
		filter.Statuses = []persistence.LeaveStatus{persistence.LeaveStatus(status)}
	}

	leaves, err := h.service.ListLeaves(r.Context(), principal, filter)
	if err != nil {
		h.log(r.Context(), "All").WarnContext(r.Context(), "leave list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(leaves, toLeaveDTO), len(leaves))
}

func (h *LeaveHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	leaveID := chi.URLParam(r, "id")

	var req leaveStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "UpdateStatus", "leave_id", leaveID, "decision", req.Status)
	leave, err := h.service.Decide(r.Context(), application.LeaveDecisionParams{
		Principal:       principal,
		LeaveID:         leaveID,
		Status:          persistence.LeaveStatus(req.Status),
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "leave decision failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "leave decided")
	h.responder.writeData(r.Context(), w, http.StatusOK, toLeaveDTO(leave), "Leave request "+string(leave.Status)+".")
}

func (h *LeaveHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	leaveID := chi.URLParam(r, "id")

	logger := h.log(r.Context(), "Cancel", "leave_id", leaveID)
	if err := h.service.Cancel(r.Context(), principal, leaveID); err != nil {
		logger.WarnContext(r.Context(), "leave cancellation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "leave cancelled")
	h.responder.writeMessage(r.Context(), w, http.StatusOK, "Leave request cancelled.")
}
