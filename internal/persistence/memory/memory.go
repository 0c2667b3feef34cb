// Package memory provides an in-process implementation of every repository
// in the persistence package. It backs tests and the "memory" storage driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

type dayKey struct {
	employeeID string
	date       string
}

// Storage keeps all records in maps guarded by a single lock, so every
// method is atomic with respect to the others.
type Storage struct {
	mu            sync.RWMutex
	employees     map[string]persistence.Employee
	sessions      map[string]persistence.Session
	assets        map[string]persistence.Asset
	assignments   map[string]persistence.AssetAssignment
	assetSequence int64
	leaves        map[string]persistence.Leave
	attendance    map[string]persistence.Attendance
	attendanceDay map[dayKey]string
	watermarks    map[string]time.Time
	notifications map[string]persistence.Notification
	todos         map[string]persistence.Todo
	feedback      map[string]persistence.Feedback
	audit         map[string]persistence.AuditEntry
	outbox        map[string]persistence.OutboxMessage
	settings      map[string]string
	idCounter     int64
}

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{
		employees:     make(map[string]persistence.Employee),
		sessions:      make(map[string]persistence.Session),
		assets:        make(map[string]persistence.Asset),
		assignments:   make(map[string]persistence.AssetAssignment),
		leaves:        make(map[string]persistence.Leave),
		attendance:    make(map[string]persistence.Attendance),
		attendanceDay: make(map[dayKey]string),
		watermarks:    make(map[string]time.Time),
		notifications: make(map[string]persistence.Notification),
		todos:         make(map[string]persistence.Todo),
		feedback:      make(map[string]persistence.Feedback),
		audit:         make(map[string]persistence.AuditEntry),
		outbox:        make(map[string]persistence.OutboxMessage),
		settings:      make(map[string]string),
	}
}

// Repositories exposes the storage through the repository interfaces.
func (s *Storage) Repositories() persistence.Repositories {
	return persistence.Repositories{
		Employees:     s,
		Sessions:      s,
		Assets:        s,
		Leaves:        s,
		Attendance:    s,
		Notifications: s,
		Todos:         s,
		Feedback:      s,
		Audit:         s,
		Outbox:        s,
		Settings:      s,
	}
}

// Migrate is a no-op for the in-memory implementation.
func (s *Storage) Migrate(context.Context) error { return nil }

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error { return nil }

// Close is a no-op for the in-memory implementation.
func (s *Storage) Close() error { return nil }

func (s *Storage) nextIDLocked(prefix string) string {
	s.idCounter++
	return fmt.Sprintf("%s-%d", prefix, s.idCounter)
}

// --- EmployeeRepository ---

// CreateEmployee stores a new employee.
func (s *Storage) CreateEmployee(_ context.Context, employee persistence.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if employee.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.employees[employee.ID]; ok {
		return persistence.ErrDuplicate
	}
	if err := s.ensureUniqueEmployeeLocked(employee); err != nil {
		return err
	}
	s.employees[employee.ID] = employee
	return nil
}

// UpdateEmployee replaces an existing employee.
func (s *Storage) UpdateEmployee(_ context.Context, employee persistence.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[employee.ID]; !ok {
		return persistence.ErrNotFound
	}
	if err := s.ensureUniqueEmployeeLocked(employee); err != nil {
		return err
	}
	s.employees[employee.ID] = employee
	return nil
}

func (s *Storage) ensureUniqueEmployeeLocked(employee persistence.Employee) error {
	email := strings.ToLower(employee.Email)
	for id, existing := range s.employees {
		if id == employee.ID {
			continue
		}
		if strings.ToLower(existing.Email) == email {
			return persistence.ErrDuplicate
		}
		if employee.DeviceUserID != "" && existing.DeviceUserID == employee.DeviceUserID {
			return persistence.ErrDuplicate
		}
	}
	return nil
}

// GetEmployee retrieves an employee by id.
func (s *Storage) GetEmployee(_ context.Context, id string) (persistence.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, ok := s.employees[id]
	if !ok {
		return persistence.Employee{}, persistence.ErrNotFound
	}
	return employee, nil
}

// GetEmployeeByEmail retrieves an employee by case-insensitive email.
func (s *Storage) GetEmployeeByEmail(_ context.Context, email string) (persistence.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(email)
	for _, employee := range s.employees {
		if strings.ToLower(employee.Email) == lower {
			return employee, nil
		}
	}
	return persistence.Employee{}, persistence.ErrNotFound
}

// GetEmployeeByDeviceUserID retrieves the employee enrolled under deviceUserID.
func (s *Storage) GetEmployeeByDeviceUserID(_ context.Context, deviceUserID string) (persistence.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if deviceUserID == "" {
		return persistence.Employee{}, persistence.ErrNotFound
	}
	for _, employee := range s.employees {
		if employee.DeviceUserID == deviceUserID {
			return employee, nil
		}
	}
	return persistence.Employee{}, persistence.ErrNotFound
}

// ListEmployees returns employees ordered by display name.
func (s *Storage) ListEmployees(_ context.Context, filter persistence.EmployeeFilter) ([]persistence.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]persistence.Employee, 0, len(s.employees))
	for _, employee := range s.employees {
		if filter.ActiveOnly && !employee.IsActive {
			continue
		}
		if len(filter.Roles) > 0 && !containsValue(filter.Roles, employee.Role) {
			continue
		}
		employees = append(employees, employee)
	}
	sort.Slice(employees, func(i, j int) bool {
		if employees[i].DisplayName == employees[j].DisplayName {
			return employees[i].ID < employees[j].ID
		}
		return employees[i].DisplayName < employees[j].DisplayName
	})
	return employees, nil
}

// --- SessionRepository ---

// CreateSession stores a session keyed by its token.
func (s *Storage) CreateSession(_ context.Context, session persistence.Session) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	if _, ok := s.sessions[session.Token]; ok {
		return persistence.Session{}, persistence.ErrDuplicate
	}
	s.sessions[session.Token] = session
	return session, nil
}

// GetSession retrieves a session by token.
func (s *Storage) GetSession(_ context.Context, token string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return session, nil
}

// UpdateSession replaces the session with the same id, re-keying it when the token changed.
func (s *Storage) UpdateSession(_ context.Context, session persistence.Session) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, existing := range s.sessions {
		if existing.ID == session.ID {
			delete(s.sessions, token)
			s.sessions[session.Token] = session
			return session, nil
		}
	}
	return persistence.Session{}, persistence.ErrNotFound
}

// RevokeSession marks a session revoked.
func (s *Storage) RevokeSession(_ context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	at := revokedAt
	session.RevokedAt = &at
	session.UpdatedAt = revokedAt
	s.sessions[token] = session
	return session, nil
}

// DeleteExpiredSessions removes sessions that expired at or before reference.
func (s *Storage) DeleteExpiredSessions(_ context.Context, reference time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, session := range s.sessions {
		if !session.ExpiresAt.After(reference) {
			delete(s.sessions, token)
		}
	}
	return nil
}

// --- SettingsRepository ---

// GetSettings returns a copy of the stored settings.
func (s *Storage) GetSettings(context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

// PutSettings merges values into the stored settings.
func (s *Storage) PutSettings(_ context.Context, values map[string]string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range values {
		s.settings[k] = v
	}
	return nil
}

func containsValue[T comparable](values []T, candidate T) bool {
	for _, v := range values {
		if v == candidate {
			return true
		}
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
