package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
)

type notificationService interface {
	List(ctx context.Context, principal application.Principal, unreadOnly bool, limit int) ([]persistence.Notification, error)
	UnreadCount(ctx context.Context, principal application.Principal) (int, error)
	MarkRead(ctx context.Context, principal application.Principal, notificationID string) error
	MarkAllRead(ctx context.Context, principal application.Principal) (int64, error)
	Delete(ctx context.Context, principal application.Principal, notificationID string) error
	DeleteRead(ctx context.Context, principal application.Principal) (int64, error)
}

// NotificationHandler serves the recipient's notification inbox.
type NotificationHandler struct {
	service   notificationService
	responder responder
	logger    *slog.Logger
}

func NewNotificationHandler(service notificationService, logger *slog.Logger) *NotificationHandler {
	base := defaultLogger(logger)
	return &NotificationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *NotificationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "NotificationHandler", operation, attrs...)
}

type unreadCountDTO struct {
	Count int `json:"count"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	items, err := h.service.List(r.Context(), principal, queryBool(r, "unread"), limit)
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "notification list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(items, toNotificationDTO), len(items))
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	count, err := h.service.UnreadCount(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, unreadCountDTO{Count: count}, "")
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	notificationID := chi.URLParam(r, "id")

	if err := h.service.MarkRead(r.Context(), principal, notificationID); err != nil {
		h.log(r.Context(), "MarkRead", "notification_id", notificationID).WarnContext(r.Context(), "mark read failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeMessage(r.Context(), w, http.StatusOK, "Notification marked as read.")
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	updated, err := h.service.MarkAllRead(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "MarkAllRead").ErrorContext(r.Context(), "mark all read failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeMessage(r.Context(), w, http.StatusOK, strconv.FormatInt(updated, 10)+" notification(s) marked as read.")
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	notificationID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), principal, notificationID); err != nil {
		h.log(r.Context(), "Delete", "notification_id", notificationID).WarnContext(r.Context(), "notification delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeMessage(r.Context(), w, http.StatusOK, "Notification deleted.")
}

func (h *NotificationHandler) DeleteRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	removed, err := h.service.DeleteRead(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "DeleteRead").ErrorContext(r.Context(), "read notification purge failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeMessage(r.Context(), w, http.StatusOK, strconv.FormatInt(removed, 10)+" read notification(s) deleted.")
}
