package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

const minPasswordLength = 8

// PasswordHasher derives a storable hash from a plain password.
type PasswordHasher func(password string) (string, error)

// EmployeeService orchestrates validation, authorization, and persistence for employee accounts.
type EmployeeService struct {
	employees   persistence.EmployeeRepository
	hash        PasswordHasher
	effects     sideEffects
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEmployeeService wires dependencies for the employee service.
func NewEmployeeService(employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, idGenerator func() string, now func() time.Time) *EmployeeService {
	return NewEmployeeServiceWithLogger(employees, outbox, nil, idGenerator, now, nil)
}

// NewEmployeeServiceWithLogger wires dependencies with a custom password hasher and logger.
func NewEmployeeServiceWithLogger(employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, hash PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EmployeeService {
	if hash == nil {
		hash = DefaultPasswordPolicy.Hash
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EmployeeService{
		employees:   employees,
		hash:        hash,
		effects:     newSideEffects(outbox, idGenerator, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EmployeeService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EmployeeService", operation, attrs...)
}

// CreateEmployee validates input and persists a new account for administrators.
func (s *EmployeeService) CreateEmployee(ctx context.Context, principal Principal, input EmployeeInput) (employee persistence.Employee, err error) {
	if s == nil {
		err = fmt.Errorf("EmployeeService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEmployee", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create employee", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("employee_id", employee.ID).InfoContext(ctx, "employee created")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	employee, err = s.create(ctx, input)
	if err != nil {
		return
	}

	s.effects.enqueue(ctx, logger, s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "employee.create",
		Reference: persistence.EmployeeRef(employee.ID),
		Summary:   fmt.Sprintf("Created %s account for %s.", employee.Role, employee.Email),
	}))
	return
}

func (s *EmployeeService) create(ctx context.Context, input EmployeeInput) (persistence.Employee, error) {
	normalized := normalizeEmployeeInput(input)
	vErr := validateEmployeeInput(normalized)
	if len(normalized.Password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if vErr.HasErrors() {
		vErr.Message = "Invalid employee details."
		return persistence.Employee{}, vErr
	}

	hash, err := s.hash(normalized.Password)
	if err != nil {
		return persistence.Employee{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	employee := persistence.Employee{
		ID:           s.idGenerator(),
		Email:        normalized.Email,
		DisplayName:  normalized.DisplayName,
		Role:         normalized.Role,
		Department:   normalized.Department,
		Position:     normalized.Position,
		DeviceUserID: normalized.DeviceUserID,
		PasswordHash: hash,
		IsActive:     normalized.IsActive == nil || *normalized.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.employees.CreateEmployee(ctx, employee); err != nil {
		return persistence.Employee{}, mapRepoError("Employee", err)
	}
	return employee, nil
}

// UpdateEmployee validates input and updates an existing account for administrators.
// The password is left untouched.
func (s *EmployeeService) UpdateEmployee(ctx context.Context, principal Principal, employeeID string, input EmployeeInput) (employee persistence.Employee, err error) {
	if s == nil {
		err = fmt.Errorf("EmployeeService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEmployee", "principal_id", principal.UserID, "employee_id", employeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update employee", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "employee updated")
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	employee, err = s.employees.GetEmployee(ctx, employeeID)
	if err != nil {
		err = mapRepoError("Employee", err)
		return
	}

	normalized := normalizeEmployeeInput(input)
	if vErr := validateEmployeeInput(normalized); vErr.HasErrors() {
		vErr.Message = "Invalid employee details."
		err = vErr
		return
	}
	if employee.ID == principal.UserID && (normalized.Role != persistence.RoleAdmin || (normalized.IsActive != nil && !*normalized.IsActive)) {
		err = invalid("You cannot remove your own administrator access.")
		return
	}

	employee.Email = normalized.Email
	employee.DisplayName = normalized.DisplayName
	employee.Role = normalized.Role
	employee.Department = normalized.Department
	employee.Position = normalized.Position
	employee.DeviceUserID = normalized.DeviceUserID
	if normalized.IsActive != nil {
		employee.IsActive = *normalized.IsActive
	}
	employee.UpdatedAt = s.now()

	if err = s.employees.UpdateEmployee(ctx, employee); err != nil {
		err = mapRepoError("Employee", err)
		return
	}

	s.effects.enqueue(ctx, logger, s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "employee.update",
		Reference: persistence.EmployeeRef(employee.ID),
		Summary:   fmt.Sprintf("Updated account %s.", employee.Email),
	}))
	return
}

// DeactivateEmployee disables an account. Records that reference the
// employee are kept, so accounts are never hard deleted.
func (s *EmployeeService) DeactivateEmployee(ctx context.Context, principal Principal, employeeID string) (err error) {
	if s == nil {
		return fmt.Errorf("EmployeeService is nil")
	}

	logger := s.loggerWith(ctx, "DeactivateEmployee", "principal_id", principal.UserID, "employee_id", employeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to deactivate employee", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "employee deactivated")
	}()

	if !principal.IsAdmin() {
		return ErrUnauthorized
	}
	if employeeID == principal.UserID {
		return invalid("You cannot deactivate your own account.")
	}

	employee, err := s.employees.GetEmployee(ctx, employeeID)
	if err != nil {
		return mapRepoError("Employee", err)
	}
	if !employee.IsActive {
		return nil
	}
	employee.IsActive = false
	employee.UpdatedAt = s.now()
	if err = s.employees.UpdateEmployee(ctx, employee); err != nil {
		return mapRepoError("Employee", err)
	}

	s.effects.enqueue(ctx, logger, s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "employee.deactivate",
		Reference: persistence.EmployeeRef(employee.ID),
		Summary:   fmt.Sprintf("Deactivated account %s.", employee.Email),
	}))
	return nil
}

// GetEmployee returns one account. Employees may read their own record.
func (s *EmployeeService) GetEmployee(ctx context.Context, principal Principal, employeeID string) (persistence.Employee, error) {
	if s == nil {
		return persistence.Employee{}, fmt.Errorf("EmployeeService is nil")
	}
	if employeeID != principal.UserID && !principal.CanManage() {
		return persistence.Employee{}, ErrUnauthorized
	}
	employee, err := s.employees.GetEmployee(ctx, employeeID)
	if err != nil {
		return persistence.Employee{}, mapRepoError("Employee", err)
	}
	return employee, nil
}

// ListEmployees returns every account ordered by display name. Managers see
// the directory too, since they assign assets and review leave.
func (s *EmployeeService) ListEmployees(ctx context.Context, principal Principal, activeOnly bool) ([]persistence.Employee, error) {
	if s == nil {
		return nil, fmt.Errorf("EmployeeService is nil")
	}
	if !principal.CanManage() {
		return nil, ErrUnauthorized
	}

	employees, err := s.employees.ListEmployees(ctx, persistence.EmployeeFilter{ActiveOnly: activeOnly})
	if err != nil {
		s.loggerWith(ctx, "ListEmployees", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list employees", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}

	sort.SliceStable(employees, func(i, j int) bool {
		if strings.EqualFold(employees[i].DisplayName, employees[j].DisplayName) {
			return employees[i].ID < employees[j].ID
		}
		return strings.ToLower(employees[i].DisplayName) < strings.ToLower(employees[j].DisplayName)
	})
	return employees, nil
}

// EnsureBootstrapAdmin creates the first administrator when no admin exists yet.
// It reports whether an account was created.
func (s *EmployeeService) EnsureBootstrapAdmin(ctx context.Context, email, password string) (created bool, err error) {
	if s == nil {
		return false, fmt.Errorf("EmployeeService is nil")
	}
	if strings.TrimSpace(email) == "" {
		return false, nil
	}

	logger := s.loggerWith(ctx, "EnsureBootstrapAdmin", "email", email)

	admins, err := s.employees.ListEmployees(ctx, persistence.EmployeeFilter{Roles: []persistence.Role{persistence.RoleAdmin}})
	if err != nil {
		return false, err
	}
	if len(admins) > 0 {
		return false, nil
	}

	employee, err := s.create(ctx, EmployeeInput{
		Email:       email,
		DisplayName: "Administrator",
		Role:        persistence.RoleAdmin,
		Password:    password,
	})
	if errors.Is(err, ErrAlreadyExists) {
		logger.WarnContext(ctx, "bootstrap email already used by a non-admin account")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logger.With("employee_id", employee.ID).InfoContext(ctx, "bootstrap administrator created")
	return true, nil
}

func normalizeEmployeeInput(input EmployeeInput) EmployeeInput {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.Department = strings.TrimSpace(input.Department)
	input.Position = strings.TrimSpace(input.Position)
	input.DeviceUserID = strings.TrimSpace(input.DeviceUserID)
	if input.Role == "" {
		input.Role = persistence.RoleEmployee
	}
	return input
}

func validateEmployeeInput(input EmployeeInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Email == "" {
		vErr.add("email", "email is required")
	} else if _, err := mail.ParseAddress(input.Email); err != nil {
		vErr.add("email", "email is invalid")
	}

	if input.DisplayName == "" {
		vErr.add("displayName", "display name is required")
	}
	if !input.Role.Valid() {
		vErr.add("role", "role is invalid")
	}

	return vErr
}
