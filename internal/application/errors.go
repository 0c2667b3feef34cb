package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute such as an email is taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrConflict is returned when a concurrent update kept winning until retries ran out.
	ErrConflict = errors.New("application: concurrent update conflict")

	ErrInvalidCredentials = errors.New("application: invalid credentials")
	ErrAccountDisabled    = errors.New("application: account disabled")
	ErrSessionExpired     = errors.New("application: session expired")
	ErrSessionRevoked     = errors.New("application: session revoked")
)

// NotFoundError names the missing resource while still matching ErrNotFound.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	if e == nil || e.Resource == "" {
		return "Resource not found."
	}
	return fmt.Sprintf("%s not found.", e.Resource)
}

// Is reports ErrNotFound equivalence for errors.Is.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// ValidationError captures validation issues that callers can surface to users.
// Message is the human-readable summary; FieldErrors carries per-field detail.
type ValidationError struct {
	Message     string
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if v.Message != "" {
		return v.Message
	}
	return "validation failed"
}

// HasErrors reports whether any issue was recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && (v.Message != "" || len(v.FieldErrors) > 0)
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil {
		return
	}
	if v.Message == "" {
		v.Message = other.Message
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
