package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

const sessionColumns = `id, employee_id, token, fingerprint, expires_at, revoked_at, created_at, updated_at`

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	repository
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{repository: newRepository(pool)}
}

// CreateSession stores a new session token for an employee
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if strings.TrimSpace(session.Token) == "" || session.ID == "" || session.EmployeeID == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	query := `INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.exec(ctx, query,
		session.ID,
		session.EmployeeID,
		session.Token,
		session.Fingerprint,
		formatTime(session.ExpiresAt),
		formatNullableTime(session.RevokedAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// GetSession retrieves a session by token
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	session, err := scanSession(r.helper.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token))
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// UpdateSession rewrites the session with the same id, including its token.
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	query := `
		UPDATE sessions
		SET token = ?, fingerprint = ?, expires_at = ?, revoked_at = ?, updated_at = ?
		WHERE id = ?
	`
	if err := requireAffected(r.exec(ctx, query,
		session.Token,
		session.Fingerprint,
		formatTime(session.ExpiresAt),
		formatNullableTime(session.RevokedAt),
		formatTime(session.UpdatedAt),
		session.ID,
	)); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// RevokeSession marks the session revoked and returns its new state.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	var session persistence.Session
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(ctx, tx,
			`UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE token = ?`,
			formatTime(revokedAt), formatTime(revokedAt), token)
		if err != nil {
			return err
		}
		if affected, err := result.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return persistence.ErrNotFound
		}
		session, err = scanSession(r.helper.QueryRowTx(ctx, tx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token))
		return err
	})
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// DeleteExpiredSessions removes sessions that expired at or before reference.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference))
	return err
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                         persistence.Session
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	if err := row.Scan(
		&session.ID,
		&session.EmployeeID,
		&session.Token,
		&session.Fingerprint,
		&expiresAt,
		&revokedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Session{}, err
	}

	var d decoder
	session.ExpiresAt = d.time("expires_at", expiresAt)
	session.RevokedAt = d.nullableTime("revoked_at", revokedAt)
	session.CreatedAt = d.time("created_at", createdAt)
	session.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return persistence.Session{}, fmt.Errorf("session %s: %w", session.ID, d.err)
	}
	return session, nil
}
