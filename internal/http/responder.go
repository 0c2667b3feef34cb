package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/logging"
)

var (
	errBadRequestBody      = errors.New("Invalid request body.")
	errMissingSessionToken = errors.New("Authentication token is required.")
	errMissingDeviceToken  = errors.New("Device token is required.")
	errInvalidDeviceToken  = errors.New("Device token is invalid or expired.")
	errForbidden           = errors.New("You do not have permission to perform this action.")
	errRateLimited         = errors.New("Too many requests. Please slow down.")
)

// envelope is the shape of every JSON response.
type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Count   *int              `json:"count,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeData answers with a success envelope.
func (r responder) writeData(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	r.writeJSON(ctx, w, status, envelope{Success: true, Data: data, Message: message})
}

// writeList answers with a success envelope that also carries the item count.
func (r responder) writeList(ctx context.Context, w http.ResponseWriter, data any, count int) {
	r.writeJSON(ctx, w, http.StatusOK, envelope{Success: true, Data: data, Count: &count})
}

func (r responder) writeMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	r.writeJSON(ctx, w, status, envelope{Success: true, Message: message})
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, envelope{Message: message})
}

func (r responder) writeValidation(ctx context.Context, w http.ResponseWriter, message string, fields map[string]string) {
	if message == "" {
		message = statusMessage(http.StatusBadRequest)
	}
	r.writeJSON(ctx, w, http.StatusBadRequest, envelope{Message: message, Errors: fields})
}

// handleServiceError maps application errors onto status codes. Anything
// unrecognized is a 500 that carries the raw error text.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		r.writeValidation(ctx, w, vErr.Message, vErr.FieldErrors)
	case errors.Is(err, application.ErrUnauthorized):
		r.writeError(ctx, w, http.StatusForbidden, errForbidden)
	case errors.Is(err, application.ErrNotFound):
		var nf *application.NotFoundError
		if errors.As(err, &nf) {
			r.writeError(ctx, w, http.StatusNotFound, nf)
			return
		}
		r.writeError(ctx, w, http.StatusNotFound, nil)
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeError(ctx, w, http.StatusConflict, errors.New("A record with the same unique value already exists."))
	case errors.Is(err, application.ErrConflict):
		r.writeError(ctx, w, http.StatusConflict, errors.New("The record was changed by another request. Please retry."))
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeError(ctx, w, http.StatusUnauthorized, errors.New("Invalid email or password."))
	case errors.Is(err, application.ErrAccountDisabled):
		r.writeError(ctx, w, http.StatusForbidden, errors.New("This account has been deactivated."))
	case errors.Is(err, application.ErrSessionExpired), errors.Is(err, application.ErrSessionRevoked):
		r.writeError(ctx, w, http.StatusUnauthorized, errors.New("Session is no longer valid. Please sign in again."))
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, envelope{Message: err.Error()})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Invalid request."
	case http.StatusUnauthorized:
		return "Authentication is required."
	case http.StatusForbidden:
		return errForbidden.Error()
	case http.StatusNotFound:
		return "Resource not found."
	case http.StatusConflict:
		return "The request conflicts with the current state of the resource."
	case http.StatusTooManyRequests:
		return errRateLimited.Error()
	default:
		return "Internal server error."
	}
}
