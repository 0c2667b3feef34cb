package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
)

type auditService interface {
	List(ctx context.Context, principal application.Principal, filter persistence.AuditFilter) ([]persistence.AuditEntry, error)
}

type settingsService interface {
	Get(ctx context.Context) (map[string]string, error)
	Put(ctx context.Context, principal application.Principal, values map[string]string) (map[string]string, error)
}

type outboxInspector interface {
	Overview(ctx context.Context, principal application.Principal, status persistence.OutboxStatus, limit int) (application.OutboxOverview, error)
}

// AdminHandler serves audit history, system settings and outbox inspection.
type AdminHandler struct {
	audit     auditService
	settings  settingsService
	outbox    outboxInspector
	responder responder
	logger    *slog.Logger
}

func NewAdminHandler(audit auditService, settings settingsService, outbox outboxInspector, logger *slog.Logger) *AdminHandler {
	base := defaultLogger(logger)
	return &AdminHandler{audit: audit, settings: settings, outbox: outbox, responder: newResponder(base), logger: base}
}

func (h *AdminHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AdminHandler", operation, attrs...)
}

type outboxOverviewDTO struct {
	Counts   map[string]int `json:"counts"`
	Messages []outboxDTO    `json:"messages"`
}

// AuditLogs lists audit entries, newest first.
func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	query := r.URL.Query()
	filter := persistence.AuditFilter{
		ActorID:  strings.TrimSpace(query.Get("actorId")),
		Kind:     persistence.ReferenceKind(strings.TrimSpace(query.Get("entityKind"))),
		EntityID: strings.TrimSpace(query.Get("entityId")),
		Limit:    limit,
	}

	entries, err := h.audit.List(r.Context(), principal, filter)
	if err != nil {
		h.log(r.Context(), "AuditLogs").WarnContext(r.Context(), "audit listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(entries, toAuditDTO), len(entries))
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	values, err := h.settings.Get(r.Context())
	if err != nil {
		h.log(r.Context(), "GetSettings").ErrorContext(r.Context(), "settings load failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, values, "")
}

// PutSettings accepts a flat JSON object of setting keys to values.
func (h *AdminHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var values map[string]string
	if err := decodeJSON(w, r, &values); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	merged, err := h.settings.Put(r.Context(), principal, values)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, merged, "Settings updated.")
}

// Outbox reports pending and failed side effects for operators.
func (h *AdminHandler) Outbox(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	status := persistence.OutboxStatus(strings.TrimSpace(r.URL.Query().Get("status")))

	overview, err := h.outbox.Overview(r.Context(), principal, status, limit)
	if err != nil {
		h.log(r.Context(), "Outbox").WarnContext(r.Context(), "outbox overview failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	counts := make(map[string]int, len(overview.Counts))
	for key, n := range overview.Counts {
		counts[string(key)] = n
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, outboxOverviewDTO{
		Counts:   counts,
		Messages: mapAll(overview.Messages, toOutboxDTO),
	}, "")
}
