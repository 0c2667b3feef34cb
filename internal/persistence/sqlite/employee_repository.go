package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/orgdesk/internal/persistence"
)

const employeeColumns = `id, email, display_name, role, department, position, device_user_id,
	password_hash, is_active, created_at, updated_at`

// EmployeeRepository implements persistence.EmployeeRepository using SQLite
type EmployeeRepository struct {
	repository
}

// NewEmployeeRepository creates a new SQLite employee repository
func NewEmployeeRepository(pool *ConnectionPool) *EmployeeRepository {
	return &EmployeeRepository{repository: newRepository(pool)}
}

// CreateEmployee inserts a new employee.
func (r *EmployeeRepository) CreateEmployee(ctx context.Context, employee persistence.Employee) error {
	if employee.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO employees (` + employeeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.exec(ctx, query,
		employee.ID,
		employee.Email,
		employee.DisplayName,
		string(employee.Role),
		employee.Department,
		employee.Position,
		nullString(employee.DeviceUserID),
		employee.PasswordHash,
		employee.IsActive,
		formatTime(employee.CreatedAt),
		formatTime(employee.UpdatedAt),
	)
	return err
}

// UpdateEmployee replaces every mutable column of an existing employee.
func (r *EmployeeRepository) UpdateEmployee(ctx context.Context, employee persistence.Employee) error {
	query := `
		UPDATE employees
		SET email = ?, display_name = ?, role = ?, department = ?, position = ?,
			device_user_id = ?, password_hash = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`
	return requireAffected(r.exec(ctx, query,
		employee.Email,
		employee.DisplayName,
		string(employee.Role),
		employee.Department,
		employee.Position,
		nullString(employee.DeviceUserID),
		employee.PasswordHash,
		employee.IsActive,
		formatTime(employee.UpdatedAt),
		employee.ID,
	))
}

// GetEmployee retrieves an employee by id.
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id string) (persistence.Employee, error) {
	return r.getOne(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
}

// GetEmployeeByEmail retrieves an employee by case-insensitive email.
func (r *EmployeeRepository) GetEmployeeByEmail(ctx context.Context, email string) (persistence.Employee, error) {
	if email == "" {
		return persistence.Employee{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+employeeColumns+` FROM employees WHERE email = ? COLLATE NOCASE`, email)
}

// GetEmployeeByDeviceUserID retrieves the employee enrolled under deviceUserID.
func (r *EmployeeRepository) GetEmployeeByDeviceUserID(ctx context.Context, deviceUserID string) (persistence.Employee, error) {
	if deviceUserID == "" {
		return persistence.Employee{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+employeeColumns+` FROM employees WHERE device_user_id = ?`, deviceUserID)
}

// ListEmployees returns employees ordered by display name.
func (r *EmployeeRepository) ListEmployees(ctx context.Context, filter persistence.EmployeeFilter) ([]persistence.Employee, error) {
	var where whereClause
	if filter.ActiveOnly {
		where.add("is_active = 1")
	}
	where.in("role", stringsOf(filter.Roles))

	rows, err := r.helper.Query(ctx, `SELECT `+employeeColumns+` FROM employees`+where.String()+` ORDER BY display_name, id`, where.args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	employees := make([]persistence.Employee, 0)
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return employees, nil
}

func (r *EmployeeRepository) getOne(ctx context.Context, query string, args ...any) (persistence.Employee, error) {
	employee, err := scanEmployee(r.helper.QueryRow(ctx, query, args...))
	if err != nil {
		return persistence.Employee{}, r.mapper.MapError(err)
	}
	return employee, nil
}

func scanEmployee(row rowScanner) (persistence.Employee, error) {
	var (
		employee             persistence.Employee
		role                 string
		deviceUserID         sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&employee.ID,
		&employee.Email,
		&employee.DisplayName,
		&role,
		&employee.Department,
		&employee.Position,
		&deviceUserID,
		&employee.PasswordHash,
		&employee.IsActive,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Employee{}, err
	}

	var d decoder
	employee.Role = persistence.Role(role)
	employee.DeviceUserID = deviceUserID.String
	employee.CreatedAt = d.time("created_at", createdAt)
	employee.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return persistence.Employee{}, fmt.Errorf("employee %s: %w", employee.ID, d.err)
	}
	return employee, nil
}
