package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
)

type feedbackService interface {
	Create(ctx context.Context, principal application.Principal, input application.FeedbackInput) (application.FeedbackView, error)
	Mine(ctx context.Context, principal application.Principal) ([]application.FeedbackView, error)
	List(ctx context.Context, principal application.Principal, status persistence.FeedbackStatus) ([]application.FeedbackView, error)
	Update(ctx context.Context, principal application.Principal, feedbackID string, update application.FeedbackUpdate) (application.FeedbackView, error)
	Delete(ctx context.Context, principal application.Principal, feedbackID string) error
}

// FeedbackHandler serves feedback submission and its administrative review.
type FeedbackHandler struct {
	service   feedbackService
	responder responder
	logger    *slog.Logger
}

func NewFeedbackHandler(service feedbackService, logger *slog.Logger) *FeedbackHandler {
	base := defaultLogger(logger)
	return &FeedbackHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *FeedbackHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "FeedbackHandler", operation, attrs...)
}

type createFeedbackRequest struct {
	Category    string `json:"category" validate:"required,oneof=suggestion complaint appreciation issue other"`
	Subject     string `json:"subject" validate:"required,max=200"`
	Message     string `json:"message" validate:"required,max=5000"`
	IsAnonymous bool   `json:"isAnonymous"`
}

type updateFeedbackRequest struct {
	Category      *string `json:"category" validate:"omitempty,oneof=suggestion complaint appreciation issue other"`
	Subject       *string `json:"subject" validate:"omitempty,max=200"`
	Message       *string `json:"message" validate:"omitempty,max=5000"`
	Status        *string `json:"status" validate:"omitempty,oneof=open in_review resolved closed"`
	AdminResponse *string `json:"adminResponse" validate:"omitempty,max=5000"`
}

func (req updateFeedbackRequest) toUpdate() application.FeedbackUpdate {
	var update application.FeedbackUpdate
	if req.Category != nil {
		category := persistence.FeedbackCategory(*req.Category)
		update.Category = &category
	}
	if req.Status != nil {
		status := persistence.FeedbackStatus(*req.Status)
		update.Status = &status
	}
	update.Subject = req.Subject
	update.Message = req.Message
	update.AdminResponse = req.AdminResponse
	return update
}

func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req createFeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Create")
	view, err := h.service.Create(r.Context(), principal, application.FeedbackInput{
		Category:    persistence.FeedbackCategory(req.Category),
		Subject:     strings.TrimSpace(req.Subject),
		Message:     strings.TrimSpace(req.Message),
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "feedback submission failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.With("feedback_id", view.ID).InfoContext(r.Context(), "feedback submitted")
	h.responder.writeData(r.Context(), w, http.StatusCreated, toFeedbackDTO(view), "Feedback submitted.")
}

func (h *FeedbackHandler) Mine(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	views, err := h.service.Mine(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(views, toFeedbackDTO), len(views))
}

func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	status := persistence.FeedbackStatus(strings.TrimSpace(r.URL.Query().Get("status")))

	views, err := h.service.List(r.Context(), principal, status)
	if err != nil {
		h.log(r.Context(), "List").WarnContext(r.Context(), "feedback list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(views, toFeedbackDTO), len(views))
}

func (h *FeedbackHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	feedbackID := chi.URLParam(r, "id")

	var req updateFeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Update", "feedback_id", feedbackID)
	view, err := h.service.Update(r.Context(), principal, feedbackID, req.toUpdate())
	if err != nil {
		logger.WarnContext(r.Context(), "feedback update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "feedback updated", "status", view.Status)
	h.responder.writeData(r.Context(), w, http.StatusOK, toFeedbackDTO(view), "Feedback updated.")
}

func (h *FeedbackHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	feedbackID := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), principal, feedbackID); err != nil {
		h.log(r.Context(), "Delete", "feedback_id", feedbackID).WarnContext(r.Context(), "feedback delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeMessage(r.Context(), w, http.StatusOK, "Feedback deleted.")
}
