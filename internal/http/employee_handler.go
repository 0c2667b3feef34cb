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

type employeeService interface {
	CreateEmployee(ctx context.Context, principal application.Principal, input application.EmployeeInput) (persistence.Employee, error)
	UpdateEmployee(ctx context.Context, principal application.Principal, employeeID string, input application.EmployeeInput) (persistence.Employee, error)
	DeactivateEmployee(ctx context.Context, principal application.Principal, employeeID string) error
	GetEmployee(ctx context.Context, principal application.Principal, employeeID string) (persistence.Employee, error)
	ListEmployees(ctx context.Context, principal application.Principal, activeOnly bool) ([]persistence.Employee, error)
}

// EmployeeHandler serves employee account management.
type EmployeeHandler struct {
	service   employeeService
	responder responder
	logger    *slog.Logger
}

func NewEmployeeHandler(service employeeService, logger *slog.Logger) *EmployeeHandler {
	base := defaultLogger(logger)
	return &EmployeeHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EmployeeHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "EmployeeHandler", operation, attrs...)
}

type employeeRequest struct {
	Email        string `json:"email" validate:"omitempty,email"`
	DisplayName  string `json:"displayName" validate:"max=120"`
	Role         string `json:"role" validate:"omitempty,oneof=admin manager employee"`
	Department   string `json:"department" validate:"max=120"`
	Position     string `json:"position" validate:"max=120"`
	DeviceUserID string `json:"deviceUserId" validate:"max=64"`
	Password     string `json:"password"`
	IsActive     *bool  `json:"isActive"`
}

func (r employeeRequest) toInput() application.EmployeeInput {
	return application.EmployeeInput{
		Email:        strings.TrimSpace(r.Email),
		DisplayName:  strings.TrimSpace(r.DisplayName),
		Role:         persistence.Role(r.Role),
		Department:   strings.TrimSpace(r.Department),
		Position:     strings.TrimSpace(r.Position),
		DeviceUserID: strings.TrimSpace(r.DeviceUserID),
		Password:     r.Password,
		IsActive:     r.IsActive,
	}
}

func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	employees, err := h.service.ListEmployees(r.Context(), principal, queryBool(r, "active"))
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "employee list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(employees, toEmployeeDTO), len(employees))
}

func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	employee, err := h.service.GetEmployee(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toEmployeeDTO(employee), "")
}

func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req employeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Create")
	employee, err := h.service.CreateEmployee(r.Context(), principal, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "employee creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("employee_id", employee.ID).InfoContext(r.Context(), "employee created")
	h.responder.writeData(r.Context(), w, http.StatusCreated, toEmployeeDTO(employee), "Employee created.")
}

func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	employeeID := chi.URLParam(r, "id")

	var req employeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Update", "employee_id", employeeID)
	employee, err := h.service.UpdateEmployee(r.Context(), principal, employeeID, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "employee update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "employee updated")
	h.responder.writeData(r.Context(), w, http.StatusOK, toEmployeeDTO(employee), "Employee updated.")
}

func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	employeeID := chi.URLParam(r, "id")

	logger := h.log(r.Context(), "Delete", "employee_id", employeeID)
	if err := h.service.DeactivateEmployee(r.Context(), principal, employeeID); err != nil {
		logger.ErrorContext(r.Context(), "employee deactivation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "employee deactivated")
	h.responder.writeMessage(r.Context(), w, http.StatusOK, "Employee deactivated.")
}
