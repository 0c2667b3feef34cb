package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	// timestampLayout is fixed width so stored values sort chronologically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout      = "2006-01-02"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func formatNullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// decoder parses stored text columns, remembering the first failure so a
// row can be decoded without checking every field.
type decoder struct {
	err error
}

func (d *decoder) time(column, value string) time.Time {
	t, err := time.Parse(timestampLayout, value)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return t
}

func (d *decoder) nullableTime(column string, value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t := d.time(column, value.String)
	return &t
}

func (d *decoder) date(column, value string) time.Time {
	t, err := time.Parse(dateLayout, value)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return t
}

// whereClause accumulates AND-ed conditions and their arguments.
type whereClause struct {
	conditions []string
	args       []any
}

func (w *whereClause) add(condition string, args ...any) {
	w.conditions = append(w.conditions, condition)
	w.args = append(w.args, args...)
}

func (w *whereClause) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		w.args = append(w.args, v)
	}
	w.conditions = append(w.conditions, column+" IN ("+strings.Join(marks, ", ")+")")
}

func (w *whereClause) String() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
