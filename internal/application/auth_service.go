package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

// RefreshSessionParams wraps a token rotation request.
type RefreshSessionParams struct {
	Token       string
	Fingerprint string
}

// RefreshSessionResult carries the rotated session.
type RefreshSessionResult struct {
	Session persistence.Session
}

// AuthConfig tunes an AuthService. Zero fields fall back to defaults.
type AuthConfig struct {
	Passwords  PasswordPolicy
	SessionTTL time.Duration
	NewToken   func() string
	Now        func() time.Time
	Logger     *slog.Logger
}

// AuthService signs employees in and resolves session tokens to principals.
// Every path that yields a principal goes through admit.
type AuthService struct {
	employees persistence.EmployeeRepository
	sessions  persistence.SessionRepository
	passwords PasswordPolicy
	ttl       time.Duration
	newToken  func() string
	now       func() time.Time
	logger    *slog.Logger
}

func NewAuthService(employees persistence.EmployeeRepository, sessions persistence.SessionRepository, cfg AuthConfig) *AuthService {
	s := &AuthService{
		employees: employees,
		sessions:  sessions,
		passwords: cfg.Passwords,
		ttl:       cfg.SessionTTL,
		newToken:  cfg.NewToken,
		now:       cfg.Now,
		logger:    defaultLogger(cfg.Logger),
	}
	if s.passwords == (PasswordPolicy{}) {
		s.passwords = DefaultPasswordPolicy
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	if s.newToken == nil {
		s.newToken = func() string { return "" }
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) ready() error {
	switch {
	case s == nil:
		return fmt.Errorf("AuthService is nil")
	case s.employees == nil:
		return fmt.Errorf("employee repository not configured")
	case s.sessions == nil:
		return fmt.Errorf("session repository not configured")
	}
	return nil
}

// admit turns an account into a principal, refusing disabled accounts and
// accounts with an unknown role.
func admit(employee persistence.Employee) (Principal, error) {
	if !employee.IsActive {
		return Principal{}, ErrAccountDisabled
	}
	if !employee.Role.Valid() {
		return Principal{}, ErrUnauthorized
	}
	return Principal{UserID: employee.ID, Role: employee.Role}, nil
}

// Authenticate checks an email and password and opens a session.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if err = s.ready(); err != nil {
		return
	}
	email := strings.ToLower(strings.TrimSpace(params.Email))
	logger := s.loggerWith(ctx, "Authenticate", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "authentication succeeded", "employee_id", result.Employee.ID, "session_id", result.Session.ID)
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}
	if result.Employee, err = s.checkPassword(ctx, logger, email, params.Password); err != nil {
		return
	}
	if _, err = admit(result.Employee); err != nil {
		return
	}

	now := s.now()
	if err = s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		return
	}
	id := s.newToken()
	token := s.newToken()
	if token == "" {
		token = id
	}
	result.Session, err = s.sessions.CreateSession(ctx, persistence.Session{
		ID:          id,
		EmployeeID:  result.Employee.ID,
		Token:       token,
		Fingerprint: strings.TrimSpace(params.Fingerprint),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	})
	return
}

// checkPassword loads the account for email and verifies password against it.
// A match under an outdated cost is re-hashed in place; failing to store the
// upgrade does not fail the login.
func (s *AuthService) checkPassword(ctx context.Context, logger *slog.Logger, email, password string) (persistence.Employee, error) {
	employee, err := s.employees.GetEmployeeByEmail(ctx, email)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Employee{}, ErrInvalidCredentials
	}
	if err != nil {
		return persistence.Employee{}, err
	}

	stale, err := s.passwords.Check(employee.PasswordHash, password)
	if errors.Is(err, ErrMalformedPasswordHash) {
		logger.WarnContext(ctx, "stored password hash is unreadable", "employee_id", employee.ID)
		return persistence.Employee{}, ErrInvalidCredentials
	}
	if err != nil {
		return persistence.Employee{}, ErrInvalidCredentials
	}
	if !stale || !employee.IsActive {
		return employee, nil
	}

	hash, err := s.passwords.Hash(password)
	if err == nil {
		upgraded := employee
		upgraded.PasswordHash = hash
		if err = s.employees.UpdateEmployee(ctx, upgraded); err == nil {
			logger.InfoContext(ctx, "password hash upgraded", "employee_id", employee.ID)
			return upgraded, nil
		}
	}
	logger.WarnContext(ctx, "password hash upgrade skipped", "employee_id", employee.ID, "error", err)
	return employee, nil
}

// liveSession loads an unrevoked, unexpired session and its admitted owner.
// missing is returned for unknown tokens.
func (s *AuthService) liveSession(ctx context.Context, token string, missing error) (persistence.Session, Principal, error) {
	if token == "" {
		return persistence.Session{}, Principal{}, ErrInvalidCredentials
	}
	session, err := s.sessions.GetSession(ctx, token)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Session{}, Principal{}, missing
	}
	if err != nil {
		return persistence.Session{}, Principal{}, err
	}
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		return persistence.Session{}, Principal{}, ErrSessionRevoked
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(s.now()) {
		return persistence.Session{}, Principal{}, ErrSessionExpired
	}

	employee, err := s.employees.GetEmployee(ctx, session.EmployeeID)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Session{}, Principal{}, ErrUnauthorized
	}
	if err != nil {
		return persistence.Session{}, Principal{}, err
	}
	principal, err := admit(employee)
	if err != nil {
		return persistence.Session{}, Principal{}, err
	}
	return session, principal, nil
}

// ValidateSession resolves a bearer or cookie token to its principal.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if err = s.ready(); err != nil {
		return
	}
	token = strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", token != "")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "session validated", "principal_id", principal.UserID)
	}()

	_, principal, err = s.liveSession(ctx, token, ErrUnauthorized)
	return
}

// RefreshSession swaps the token of a live session and restarts its expiry.
func (s *AuthService) RefreshSession(ctx context.Context, params RefreshSessionParams) (result RefreshSessionResult, err error) {
	if err = s.ready(); err != nil {
		return
	}
	token := strings.TrimSpace(params.Token)
	logger := s.loggerWith(ctx, "RefreshSession", "token_provided", token != "")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session refreshed", "session_id", result.Session.ID, "employee_id", result.Session.EmployeeID)
	}()

	session, _, err := s.liveSession(ctx, token, ErrInvalidCredentials)
	if err != nil {
		return
	}
	now := s.now()
	if next := s.newToken(); next != "" {
		session.Token = next
	}
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(s.ttl)
	if fp := strings.TrimSpace(params.Fingerprint); fp != "" {
		session.Fingerprint = fp
	}
	result.Session, err = s.sessions.UpdateSession(ctx, session)
	return
}

// RevokeSession ends a session. Unknown tokens are reported as bad credentials.
func (s *AuthService) RevokeSession(ctx context.Context, token string) (err error) {
	if err = s.ready(); err != nil {
		return
	}
	token = strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "RevokeSession", "token_provided", token != "")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session revoked")
	}()

	if token == "" {
		return ErrInvalidCredentials
	}
	now := s.now()
	if _, err = s.sessions.RevokeSession(ctx, token, now); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}
	return s.sessions.DeleteExpiredSessions(ctx, now)
}

// PurgeExpiredSessions drops sessions whose expiry has passed.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.sessions.DeleteExpiredSessions(ctx, s.now()); err != nil {
		s.loggerWith(ctx, "PurgeExpiredSessions").ErrorContext(ctx, "failed to purge sessions", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	return nil
}
