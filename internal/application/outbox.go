package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

// NotificationIntent is the outbox payload for a notification fan-out.
type NotificationIntent struct {
	SenderID     string                       `json:"senderId,omitempty"`
	RecipientIDs []string                     `json:"recipientIds"`
	Kind         persistence.NotificationKind `json:"kind"`
	Title        string                       `json:"title"`
	Message      string                       `json:"message"`
	Reference    *persistence.Reference       `json:"reference,omitempty"`
}

// AuditIntent is the outbox payload for an audit entry.
type AuditIntent struct {
	ActorID    string                 `json:"actorId"`
	Action     string                 `json:"action"`
	Reference  *persistence.Reference `json:"reference,omitempty"`
	Summary    string                 `json:"summary"`
	Metadata   map[string]string      `json:"metadata,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// sideEffects builds outbox messages and enqueues the ones that are not
// committed together with a business write.
type sideEffects struct {
	outbox      persistence.OutboxRepository
	idGenerator func() string
	now         func() time.Time
}

func newSideEffects(outbox persistence.OutboxRepository, idGenerator func() string, now func() time.Time) sideEffects {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return sideEffects{outbox: outbox, idGenerator: idGenerator, now: now}
}

func (e sideEffects) message(kind persistence.OutboxKind, payload any) persistence.OutboxMessage {
	// Intents hold only strings, maps of strings and times; Marshal cannot fail.
	data, _ := json.Marshal(payload)
	now := e.now()
	return persistence.OutboxMessage{
		ID:          e.idGenerator(),
		Kind:        kind,
		Payload:     data,
		Status:      persistence.OutboxPending,
		AvailableAt: now,
		CreatedAt:   now,
	}
}

// notify returns the message for intent, or nothing when it has no recipients.
func (e sideEffects) notify(intent NotificationIntent) []persistence.OutboxMessage {
	recipients := make([]string, 0, len(intent.RecipientIDs))
	for _, id := range intent.RecipientIDs {
		if id != "" {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return nil
	}
	intent.RecipientIDs = recipients
	return []persistence.OutboxMessage{e.message(persistence.OutboxNotification, intent)}
}

func (e sideEffects) audit(intent AuditIntent) persistence.OutboxMessage {
	if intent.OccurredAt.IsZero() {
		intent.OccurredAt = e.now()
	}
	return e.message(persistence.OutboxAudit, intent)
}

// enqueue records messages outside of any business transaction. Failures are
// logged and swallowed so the caller's operation still succeeds.
func (e sideEffects) enqueue(ctx context.Context, logger *slog.Logger, messages ...persistence.OutboxMessage) {
	if e.outbox == nil || len(messages) == 0 {
		return
	}
	if err := e.outbox.EnqueueOutbox(ctx, messages); err != nil {
		logger.WarnContext(ctx, "failed to enqueue side effects", "error", err, "messages", len(messages))
	}
}
