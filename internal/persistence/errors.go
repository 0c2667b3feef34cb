package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a record fails a storage level check.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrVersionConflict is returned when an optimistic version guard does not match
	// the stored version. Callers are expected to re-read and retry.
	ErrVersionConflict = errors.New("persistence: version conflict")
	// ErrStaleState is returned when a guarded state transition finds the record
	// already moved out of the expected state.
	ErrStaleState = errors.New("persistence: stale state")
)
