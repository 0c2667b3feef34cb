package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/orgdesk/internal/persistence"
)

const todoColumns = `id, owner_id, title, description, priority, status, due_date, completed_at, created_at, updated_at`

// TodoRepository implements persistence.TodoRepository using SQLite
type TodoRepository struct {
	repository
}

// NewTodoRepository creates a new SQLite todo repository
func NewTodoRepository(pool *ConnectionPool) *TodoRepository {
	return &TodoRepository{repository: newRepository(pool)}
}

// CreateTodo inserts a new todo.
func (r *TodoRepository) CreateTodo(ctx context.Context, todo persistence.Todo) error {
	if todo.ID == "" || todo.OwnerID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.exec(ctx, `INSERT INTO todos (`+todoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		todo.ID,
		todo.OwnerID,
		todo.Title,
		todo.Description,
		string(todo.Priority),
		string(todo.Status),
		formatNullableTime(todo.DueDate),
		formatNullableTime(todo.CompletedAt),
		formatTime(todo.CreatedAt),
		formatTime(todo.UpdatedAt),
	)
	return err
}

// GetTodo retrieves a todo by id.
func (r *TodoRepository) GetTodo(ctx context.Context, id string) (persistence.Todo, error) {
	todo, err := scanTodo(r.helper.QueryRow(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id))
	if err != nil {
		return persistence.Todo{}, r.mapper.MapError(err)
	}
	return todo, nil
}

// ListTodos returns matching todos, newest first.
func (r *TodoRepository) ListTodos(ctx context.Context, filter persistence.TodoFilter) ([]persistence.Todo, error) {
	var where whereClause
	if filter.OwnerID != "" {
		where.add("owner_id = ?", filter.OwnerID)
	}
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}

	rows, err := r.helper.Query(ctx, `SELECT `+todoColumns+` FROM todos`+where.String()+` ORDER BY created_at DESC, id DESC`, where.args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, todo)
	}
	return out, r.mapper.MapError(rows.Err())
}

// UpdateTodo replaces the mutable columns of an existing todo.
func (r *TodoRepository) UpdateTodo(ctx context.Context, todo persistence.Todo) error {
	query := `
		UPDATE todos
		SET title = ?, description = ?, priority = ?, status = ?, due_date = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	return requireAffected(r.exec(ctx, query,
		todo.Title,
		todo.Description,
		string(todo.Priority),
		string(todo.Status),
		formatNullableTime(todo.DueDate),
		formatNullableTime(todo.CompletedAt),
		formatTime(todo.UpdatedAt),
		todo.ID,
	))
}

// DeleteTodo removes a todo.
func (r *TodoRepository) DeleteTodo(ctx context.Context, id string) error {
	return requireAffected(r.exec(ctx, `DELETE FROM todos WHERE id = ?`, id))
}

func scanTodo(row rowScanner) (persistence.Todo, error) {
	var (
		todo                 persistence.Todo
		priority, status     string
		dueDate, completedAt sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&todo.ID,
		&todo.OwnerID,
		&todo.Title,
		&todo.Description,
		&priority,
		&status,
		&dueDate,
		&completedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Todo{}, err
	}

	var d decoder
	todo.Priority = persistence.TodoPriority(priority)
	todo.Status = persistence.TodoStatus(status)
	todo.DueDate = d.nullableTime("due_date", dueDate)
	todo.CompletedAt = d.nullableTime("completed_at", completedAt)
	todo.CreatedAt = d.time("created_at", createdAt)
	todo.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return persistence.Todo{}, fmt.Errorf("todo %s: %w", todo.ID, d.err)
	}
	return todo, nil
}
