package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/testfixtures"
)

func TestTodoService(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	owner := testfixtures.PrincipalOf(h.SeedEmployee(t))
	other := testfixtures.PrincipalOf(h.SeedEmployee(t, testfixtures.AsAdmin()))

	_, err := h.Todos.Create(ctx, owner, application.TodoInput{Title: "  ", Priority: "urgent"})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Invalid todo.", vErr.Message)
	assert.Contains(t, vErr.FieldErrors, "title")
	assert.Contains(t, vErr.FieldErrors, "priority")

	due := testfixtures.Date(2025, time.June, 6)
	todo, err := h.Todos.Create(ctx, owner, application.TodoInput{Title: " Submit expenses ", DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, "Submit expenses", todo.Title)
	assert.Equal(t, persistence.PriorityMedium, todo.Priority)
	assert.Equal(t, persistence.TodoPending, todo.Status)
	assert.Nil(t, todo.CompletedAt)

	t.Run("other people's todos are invisible", func(t *testing.T) {
		_, err := h.Todos.Toggle(ctx, other, todo.ID)
		assert.ErrorIs(t, err, application.ErrNotFound)
		assert.ErrorIs(t, h.Todos.Delete(ctx, other, todo.ID), application.ErrNotFound)

		listed, err := h.Todos.List(ctx, other, "")
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("toggle flips completion", func(t *testing.T) {
		done, err := h.Todos.Toggle(ctx, owner, todo.ID)
		require.NoError(t, err)
		assert.Equal(t, persistence.TodoCompleted, done.Status)
		require.NotNil(t, done.CompletedAt)

		completed, err := h.Todos.List(ctx, owner, persistence.TodoCompleted)
		require.NoError(t, err)
		assert.Len(t, completed, 1)

		undone, err := h.Todos.Toggle(ctx, owner, todo.ID)
		require.NoError(t, err)
		assert.Equal(t, persistence.TodoPending, undone.Status)
		assert.Nil(t, undone.CompletedAt)
	})

	t.Run("update replaces fields", func(t *testing.T) {
		updated, err := h.Todos.Update(ctx, owner, todo.ID, application.TodoInput{
			Title:    "Submit June expenses",
			Priority: persistence.PriorityHigh,
			Status:   persistence.TodoCompleted,
		})
		require.NoError(t, err)
		assert.Equal(t, persistence.PriorityHigh, updated.Priority)
		assert.Nil(t, updated.DueDate)
		require.NotNil(t, updated.CompletedAt)
	})

	t.Run("status filter is validated", func(t *testing.T) {
		_, err := h.Todos.List(ctx, owner, "archived")
		assert.EqualError(t, err, "Status must be pending or completed.")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, h.Todos.Delete(ctx, owner, todo.ID))
		assert.ErrorIs(t, h.Todos.Delete(ctx, owner, todo.ID), application.ErrNotFound)
	})
}
