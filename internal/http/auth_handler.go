package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
)

const sessionCookieName = "session_token"

type authService interface {
	Authenticate(ctx context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error)
	RefreshSession(ctx context.Context, params application.RefreshSessionParams) (application.RefreshSessionResult, error)
	RevokeSession(ctx context.Context, token string) error
}

type employeeLookup interface {
	GetEmployee(ctx context.Context, principal application.Principal, employeeID string) (persistence.Employee, error)
}

// AuthHandler serves the session lifecycle endpoints.
type AuthHandler struct {
	service      authService
	employees    employeeLookup
	secureCookie bool
	responder    responder
	logger       *slog.Logger
}

// NewAuthHandler constructs an AuthHandler. secureCookie marks the session
// cookie Secure and should be true whenever the API is served over TLS.
func NewAuthHandler(service authService, employees employeeLookup, secureCookie bool, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, employees: employees, secureCookie: secureCookie, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionDTO struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	Employee  *employeeDTO `json:"employee,omitempty"`
}

// Login verifies credentials and opens a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	logger := h.log(r.Context(), "Login", "email", email)

	result, err := h.service.Authenticate(r.Context(), application.AuthenticateParams{
		Email:       email,
		Password:    req.Password,
		Fingerprint: r.UserAgent(),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "authentication rejected", "error", err, "error_kind", application.ErrorKind(err))
		if errors.Is(err, application.ErrUnauthorized) {
			err = application.ErrInvalidCredentials
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt)
	w.Header().Set("X-Session-Token", result.Session.Token)

	logger.With("employee_id", result.Employee.ID).InfoContext(r.Context(), "employee authenticated")
	employee := toEmployeeDTO(result.Employee)
	h.responder.writeData(r.Context(), w, http.StatusOK, sessionDTO{
		Token:     result.Session.Token,
		ExpiresAt: formatTime(result.Session.ExpiresAt),
		Employee:  &employee,
	}, "Login successful.")
}

// Refresh rotates the current session token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := extractTokenFromRequest(r)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}

	logger := h.log(r.Context(), "Refresh")
	result, err := h.service.RefreshSession(r.Context(), application.RefreshSessionParams{
		Token:       token,
		Fingerprint: r.UserAgent(),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "session refresh rejected", "error", err, "error_kind", application.ErrorKind(err))
		if errors.Is(err, application.ErrUnauthorized) || errors.Is(err, application.ErrInvalidCredentials) {
			err = application.ErrSessionRevoked
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt)
	w.Header().Set("X-Session-Token", result.Session.Token)
	logger.InfoContext(r.Context(), "session refreshed")
	h.responder.writeData(r.Context(), w, http.StatusOK, sessionDTO{
		Token:     result.Session.Token,
		ExpiresAt: formatTime(result.Session.ExpiresAt),
	}, "")
}

// Logout revokes the current session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := extractTokenFromRequest(r)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}

	logger := h.log(r.Context(), "Logout")
	if err := h.service.RevokeSession(r.Context(), token); err != nil {
		logger.ErrorContext(r.Context(), "failed to revoke session", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.clearSessionCookie(w)
	logger.InfoContext(r.Context(), "session revoked")
	h.responder.writeMessage(r.Context(), w, http.StatusOK, "Logged out.")
}

// Me returns the authenticated employee.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	employee, err := h.employees.GetEmployee(r.Context(), principal, principal.UserID)
	if err != nil {
		h.log(r.Context(), "Me").ErrorContext(r.Context(), "failed to load current employee", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toEmployeeDTO(employee), "")
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
