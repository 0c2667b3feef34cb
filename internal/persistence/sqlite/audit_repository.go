package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/orgdesk/internal/persistence"
)

const auditColumns = `id, actor_id, action, ref_kind, ref_id, summary, metadata, created_at`

// AuditRepository implements persistence.AuditRepository using SQLite
type AuditRepository struct {
	repository
}

// NewAuditRepository creates a new SQLite audit repository
func NewAuditRepository(pool *ConnectionPool) *AuditRepository {
	return &AuditRepository{repository: newRepository(pool)}
}

// AppendAudit stores the entry unless its id already exists.
func (r *AuditRepository) AppendAudit(ctx context.Context, entry persistence.AuditEntry) error {
	if entry.ID == "" {
		return persistence.ErrConstraintViolation
	}

	metadata := ""
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = string(encoded)
	}

	refKind, refID := splitReference(entry.Reference)
	query := `INSERT INTO audit_entries (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	_, err := r.exec(ctx, query,
		entry.ID,
		entry.ActorID,
		entry.Action,
		refKind,
		refID,
		entry.Summary,
		metadata,
		formatTime(entry.CreatedAt),
	)
	return err
}

// ListAudit returns matching entries, newest first.
func (r *AuditRepository) ListAudit(ctx context.Context, filter persistence.AuditFilter) ([]persistence.AuditEntry, error) {
	var where whereClause
	if filter.ActorID != "" {
		where.add("actor_id = ?", filter.ActorID)
	}
	if filter.Kind != "" {
		where.add("ref_kind = ?", string(filter.Kind))
	}
	if filter.EntityID != "" {
		where.add("ref_kind <> '' AND ref_id = ?", filter.EntityID)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_entries` + where.String() +
		` ORDER BY created_at DESC, id DESC` + limitClause(filter.Limit)
	rows, err := r.helper.Query(ctx, query, where.args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	out := make([]persistence.AuditEntry, 0)
	for rows.Next() {
		var (
			entry               persistence.AuditEntry
			refKind, refID      string
			metadata, createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &refKind, &refID, &entry.Summary, &metadata, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		entry.Reference = joinReference(refKind, refID)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("audit %s: decode metadata: %w", entry.ID, err)
			}
		}
		var d decoder
		entry.CreatedAt = d.time("created_at", createdAt)
		if d.err != nil {
			return nil, fmt.Errorf("audit %s: %w", entry.ID, d.err)
		}
		out = append(out, entry)
	}
	return out, r.mapper.MapError(rows.Err())
}
