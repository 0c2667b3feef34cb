package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

// TodoService manages personal todos. Every operation is scoped to the owner.
type TodoService struct {
	todos       persistence.TodoRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewTodoService constructs a todo service.
func NewTodoService(todos persistence.TodoRepository, idGenerator func() string, now func() time.Time) *TodoService {
	return NewTodoServiceWithLogger(todos, idGenerator, now, nil)
}

// NewTodoServiceWithLogger constructs a todo service with a specified logger.
func NewTodoServiceWithLogger(todos persistence.TodoRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *TodoService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TodoService{todos: todos, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *TodoService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TodoService", operation, attrs...)
}

// List returns the principal's todos, optionally narrowed by status.
func (s *TodoService) List(ctx context.Context, principal Principal, status persistence.TodoStatus) ([]persistence.Todo, error) {
	if s == nil {
		return nil, fmt.Errorf("TodoService is nil")
	}
	if status != "" && status != persistence.TodoPending && status != persistence.TodoCompleted {
		return nil, invalid("Status must be pending or completed.")
	}
	todos, err := s.todos.ListTodos(ctx, persistence.TodoFilter{OwnerID: principal.UserID, Status: status})
	if err != nil {
		s.loggerWith(ctx, "List", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list todos", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return todos, nil
}

// Create adds a todo owned by the principal.
func (s *TodoService) Create(ctx context.Context, principal Principal, input TodoInput) (todo persistence.Todo, err error) {
	if s == nil {
		err = fmt.Errorf("TodoService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Create", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create todo", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("todo_id", todo.ID).InfoContext(ctx, "todo created")
	}()

	input = normalizeTodoInput(input)
	if vErr := validateTodoInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	todo = persistence.Todo{
		ID:          s.idGenerator(),
		OwnerID:     principal.UserID,
		Title:       input.Title,
		Description: input.Description,
		Priority:    input.Priority,
		Status:      input.Status,
		DueDate:     input.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if todo.Status == persistence.TodoCompleted {
		todo.CompletedAt = &now
	}
	err = mapRepoError("Todo", s.todos.CreateTodo(ctx, todo))
	return
}

// Update replaces the editable fields of one of the principal's todos.
func (s *TodoService) Update(ctx context.Context, principal Principal, todoID string, input TodoInput) (todo persistence.Todo, err error) {
	if s == nil {
		err = fmt.Errorf("TodoService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Update", "principal_id", principal.UserID, "todo_id", todoID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update todo", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	todo, err = s.owned(ctx, principal, todoID)
	if err != nil {
		return
	}

	input = normalizeTodoInput(input)
	if vErr := validateTodoInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	todo.Title = input.Title
	todo.Description = input.Description
	todo.Priority = input.Priority
	todo.DueDate = input.DueDate
	s.setStatus(&todo, input.Status, now)
	todo.UpdatedAt = now
	err = mapRepoError("Todo", s.todos.UpdateTodo(ctx, todo))
	return
}

// Toggle flips a todo between pending and completed.
func (s *TodoService) Toggle(ctx context.Context, principal Principal, todoID string) (todo persistence.Todo, err error) {
	if s == nil {
		err = fmt.Errorf("TodoService is nil")
		return
	}

	todo, err = s.owned(ctx, principal, todoID)
	if err != nil {
		return
	}

	now := s.now()
	next := persistence.TodoCompleted
	if todo.Status == persistence.TodoCompleted {
		next = persistence.TodoPending
	}
	s.setStatus(&todo, next, now)
	todo.UpdatedAt = now
	err = mapRepoError("Todo", s.todos.UpdateTodo(ctx, todo))
	return
}

// Delete removes one of the principal's todos.
func (s *TodoService) Delete(ctx context.Context, principal Principal, todoID string) error {
	if s == nil {
		return fmt.Errorf("TodoService is nil")
	}
	if _, err := s.owned(ctx, principal, todoID); err != nil {
		return err
	}
	return mapRepoError("Todo", s.todos.DeleteTodo(ctx, todoID))
}

// owned loads a todo and hides other people's todos behind not found.
func (s *TodoService) owned(ctx context.Context, principal Principal, todoID string) (persistence.Todo, error) {
	todo, err := s.todos.GetTodo(ctx, todoID)
	if err != nil {
		return persistence.Todo{}, mapRepoError("Todo", err)
	}
	if todo.OwnerID != principal.UserID {
		return persistence.Todo{}, notFound("Todo")
	}
	return todo, nil
}

func (s *TodoService) setStatus(todo *persistence.Todo, status persistence.TodoStatus, now time.Time) {
	if todo.Status == status {
		return
	}
	todo.Status = status
	if status == persistence.TodoCompleted {
		todo.CompletedAt = &now
		return
	}
	todo.CompletedAt = nil
}

func normalizeTodoInput(input TodoInput) TodoInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if input.Priority == "" {
		input.Priority = persistence.PriorityMedium
	}
	if input.Status == "" {
		input.Status = persistence.TodoPending
	}
	return input
}

func validateTodoInput(input TodoInput) *ValidationError {
	vErr := &ValidationError{}
	if input.Title == "" {
		vErr.add("title", "title is required")
	}
	if !input.Priority.Valid() {
		vErr.add("priority", "priority must be low, medium or high")
	}
	if input.Status != persistence.TodoPending && input.Status != persistence.TodoCompleted {
		vErr.add("status", "status must be pending or completed")
	}
	if vErr.HasErrors() {
		vErr.Message = "Invalid todo."
	}
	return vErr
}
