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

type todoService interface {
	List(ctx context.Context, principal application.Principal, status persistence.TodoStatus) ([]persistence.Todo, error)
	Create(ctx context.Context, principal application.Principal, input application.TodoInput) (persistence.Todo, error)
	Update(ctx context.Context, principal application.Principal, todoID string, input application.TodoInput) (persistence.Todo, error)
	Toggle(ctx context.Context, principal application.Principal, todoID string) (persistence.Todo, error)
	Delete(ctx context.Context, principal application.Principal, todoID string) error
}

// TodoHandler serves the caller's personal todo list.
type TodoHandler struct {
	service   todoService
	responder responder
	logger    *slog.Logger
}

func NewTodoHandler(service todoService, logger *slog.Logger) *TodoHandler {
	base := defaultLogger(logger)
	return &TodoHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *TodoHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "TodoHandler", operation, attrs...)
}

type todoRequest struct {
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=2000"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status      string `json:"status" validate:"omitempty,oneof=pending completed"`
	DueDate     string `json:"dueDate"`
}

func (req todoRequest) toInput() (application.TodoInput, error) {
	due, err := optionalDate("dueDate", req.DueDate)
	if err != nil {
		return application.TodoInput{}, err
	}
	return application.TodoInput{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Priority:    persistence.TodoPriority(req.Priority),
		Status:      persistence.TodoStatus(req.Status),
		DueDate:     due,
	}, nil
}

func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	status := persistence.TodoStatus(strings.TrimSpace(r.URL.Query().Get("status")))

	todos, err := h.service.List(r.Context(), principal, status)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(todos, toTodoDTO), len(todos))
}

func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req todoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Create")
	todo, err := h.service.Create(r.Context(), principal, input)
	if err != nil {
		logger.WarnContext(r.Context(), "todo creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.With("todo_id", todo.ID).DebugContext(r.Context(), "todo created")
	h.responder.writeData(r.Context(), w, http.StatusCreated, toTodoDTO(todo), "Todo created.")
}

func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	todoID := chi.URLParam(r, "id")

	var req todoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	todo, err := h.service.Update(r.Context(), principal, todoID, input)
	if err != nil {
		h.log(r.Context(), "Update", "todo_id", todoID).WarnContext(r.Context(), "todo update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toTodoDTO(todo), "Todo updated.")
}

func (h *TodoHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	todo, err := h.service.Toggle(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toTodoDTO(todo), "")
}

func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	todoID := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), principal, todoID); err != nil {
		h.log(r.Context(), "Delete", "todo_id", todoID).WarnContext(r.Context(), "todo delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeMessage(r.Context(), w, http.StatusOK, "Todo deleted.")
}
