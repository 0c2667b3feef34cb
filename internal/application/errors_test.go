package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	assert.Equal(t, "", nilErr.Error())
	assert.Equal(t, "validation failed", (&ValidationError{}).Error())
	assert.Equal(t, "validation failed", (&ValidationError{FieldErrors: map[string]string{"field": "invalid"}}).Error())
	assert.Equal(t, "Only 2 unit(s) available. Cannot assign 3 unit(s).", invalid("Only %d unit(s) available. Cannot assign %d unit(s).", 2, 3).Error())
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	assert.False(t, nilErr.HasErrors())
	assert.False(t, (&ValidationError{}).HasErrors())
	assert.True(t, (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors())
	assert.True(t, (&ValidationError{Message: "A reason is required."}).HasErrors())
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	assert.Equal(t, "value", base.FieldErrors["first"])

	base.merge(&ValidationError{Message: "Invalid asset details.", FieldErrors: map[string]string{"second": "another"}})
	assert.Equal(t, "another", base.FieldErrors["second"])
	assert.Equal(t, "Invalid asset details.", base.Message)

	base.merge(nil)
	assert.Len(t, base.FieldErrors, 2)
}

func TestNotFoundError(t *testing.T) {
	t.Parallel()

	err := notFound("Assignment")
	assert.EqualError(t, err, "Assignment not found.")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	var empty *NotFoundError
	assert.Equal(t, "Resource not found.", empty.Error())
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, mapRepoError("Asset", nil))
	assert.EqualError(t, mapRepoError("Asset", persistence.ErrNotFound), "Asset not found.")
	assert.ErrorIs(t, mapRepoError("Employee", fmt.Errorf("insert: %w", persistence.ErrDuplicate)), ErrAlreadyExists)
	assert.ErrorIs(t, mapRepoError("Asset", persistence.ErrVersionConflict), persistence.ErrVersionConflict)

	var vErr *ValidationError
	require.ErrorAs(t, mapRepoError("Leave request", persistence.ErrConstraintViolation), &vErr)
	assert.Equal(t, "Leave request violates a storage constraint.", vErr.Message)

	opaque := errors.New("disk on fire")
	assert.Same(t, opaque, mapRepoError("Asset", opaque))
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrUnauthorized, "unauthorized"},
		{notFound("Todo"), "not_found"},
		{fmt.Errorf("employee: %w", ErrAlreadyExists), "already_exists"},
		{fmt.Errorf("%w: gave up after 3 attempts", ErrConflict), "conflict"},
		{ErrInvalidCredentials, "invalid_credentials"},
		{ErrAccountDisabled, "account_disabled"},
		{ErrSessionExpired, "session_expired"},
		{ErrSessionRevoked, "session_revoked"},
		{context.DeadlineExceeded, "canceled"},
		{invalid("Invalid todo."), "validation"},
		{errors.New("boom"), "unexpected"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorKind(tc.err), "%v", tc.err)
	}
}
