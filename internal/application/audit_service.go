package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/orgdesk/internal/persistence"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

// AuditService exposes the audit trail to administrators. Entries are written
// by the outbox dispatcher only.
type AuditService struct {
	audit  persistence.AuditRepository
	logger *slog.Logger
}

// NewAuditService constructs an audit service.
func NewAuditService(audit persistence.AuditRepository, logger *slog.Logger) *AuditService {
	return &AuditService{audit: audit, logger: defaultLogger(logger)}
}

// List returns audit entries newest first.
func (s *AuditService) List(ctx context.Context, principal Principal, filter persistence.AuditFilter) (entries []persistence.AuditEntry, err error) {
	if s == nil {
		err = fmt.Errorf("AuditService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "AuditService", "List", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list audit entries", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		err = invalid("Entity kind is invalid.")
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	entries, err = s.audit.ListAudit(ctx, filter)
	return
}
