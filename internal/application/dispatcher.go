package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/orgdesk/internal/persistence"
)

const (
	defaultOutboxBatch       = 50
	defaultOutboxMaxAttempts = 5
	defaultOutboxBackoff     = 5 * time.Second
	maxOutboxBackoff         = 10 * time.Minute
)

// NotificationDeliverer applies a notification intent.
type NotificationDeliverer interface {
	Deliver(ctx context.Context, messageID string, intent NotificationIntent) ([]persistence.Notification, error)
}

// DispatcherOptions tunes outbox draining. Zero values select defaults.
type DispatcherOptions struct {
	BatchSize   int
	MaxAttempts int
	Backoff     time.Duration
}

// DrainResult counts what one drain pass did.
type DrainResult struct {
	Dispatched int
	Retried    int
	Failed     int
}

// OutboxOverview is the operator view of the outbox.
type OutboxOverview struct {
	Counts   map[persistence.OutboxStatus]int
	Messages []persistence.OutboxMessage
}

// Dispatcher applies outbox messages after the business write that produced
// them has committed. Delivery is idempotent, so a message applied twice
// leaves one notification per recipient and one audit entry.
type Dispatcher struct {
	outbox        persistence.OutboxRepository
	audit         persistence.AuditRepository
	notifications NotificationDeliverer
	now           func() time.Time
	options       DispatcherOptions
	logger        *slog.Logger
	outcomes      metric.Int64Counter
}

// NewDispatcher constructs an outbox dispatcher.
func NewDispatcher(outbox persistence.OutboxRepository, audit persistence.AuditRepository, notifications NotificationDeliverer, now func() time.Time, options DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	if options.BatchSize <= 0 {
		options.BatchSize = defaultOutboxBatch
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = defaultOutboxMaxAttempts
	}
	if options.Backoff <= 0 {
		options.Backoff = defaultOutboxBackoff
	}
	outcomes, err := otel.Meter("github.com/example/orgdesk/internal/application").Int64Counter(
		"orgdesk.outbox.messages",
		metric.WithDescription("Outbox messages processed, by kind and outcome."),
	)
	if err != nil {
		defaultLogger(logger).Warn("outbox metric unavailable", "error", err)
	}
	return &Dispatcher{
		outbox:        outbox,
		audit:         audit,
		notifications: notifications,
		now:           now,
		options:       options,
		logger:        defaultLogger(logger),
		outcomes:      outcomes,
	}
}

func (d *Dispatcher) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, d.logger, "Dispatcher", operation, attrs...)
}

// DrainOnce applies one batch of due messages. A failing message is retried
// with exponential backoff until MaxAttempts, then parked as failed.
func (d *Dispatcher) DrainOnce(ctx context.Context) (result DrainResult, err error) {
	if d == nil {
		err = fmt.Errorf("Dispatcher is nil")
		return
	}

	ctx, span := tracer().Start(ctx, "Dispatcher.DrainOnce")
	defer func() {
		span.SetAttributes(
			attribute.Int("outbox.dispatched", result.Dispatched),
			attribute.Int("outbox.retried", result.Retried),
			attribute.Int("outbox.failed", result.Failed),
		)
		endSpan(span, err)
	}()

	logger := d.loggerWith(ctx, "DrainOnce")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "outbox drain failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if result.Dispatched+result.Retried+result.Failed > 0 {
			logger.With(
				"dispatched", result.Dispatched,
				"retried", result.Retried,
				"failed", result.Failed,
			).InfoContext(ctx, "outbox drained")
		}
	}()

	var due []persistence.OutboxMessage
	due, err = d.outbox.ListDueOutbox(ctx, d.now(), d.options.BatchSize)
	if err != nil {
		return
	}

	for _, message := range due {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return
		}

		applyErr := d.apply(ctx, message)
		if applyErr == nil {
			if err = d.outbox.MarkOutboxDispatched(ctx, message.ID, d.now()); err != nil {
				return
			}
			result.Dispatched++
			d.record(ctx, message.Kind, "dispatched")
			continue
		}

		attempts := message.Attempts + 1
		var next time.Time
		outcome := "retried"
		if attempts < d.options.MaxAttempts {
			next = d.now().Add(d.backoff(attempts))
			result.Retried++
		} else {
			outcome = "failed"
			result.Failed++
		}
		span.AddEvent("outbox_attempt_failed", trace.WithAttributes(
			attribute.String("outbox.id", message.ID),
			attribute.Int("outbox.attempts", attempts),
		))
		logger.WarnContext(ctx, "outbox message not applied",
			"message_id", message.ID,
			"kind", message.Kind,
			"attempts", attempts,
			"error", applyErr,
		)
		if err = d.outbox.MarkOutboxAttempt(ctx, message.ID, attempts, applyErr.Error(), next); err != nil {
			return
		}
		d.record(ctx, message.Kind, outcome)
	}
	return
}

func (d *Dispatcher) apply(ctx context.Context, message persistence.OutboxMessage) error {
	switch message.Kind {
	case persistence.OutboxNotification:
		var intent NotificationIntent
		if err := json.Unmarshal(message.Payload, &intent); err != nil {
			return fmt.Errorf("decode notification payload: %w", err)
		}
		if d.notifications == nil {
			return errors.New("no notification deliverer configured")
		}
		_, err := d.notifications.Deliver(ctx, message.ID, intent)
		return err
	case persistence.OutboxAudit:
		var intent AuditIntent
		if err := json.Unmarshal(message.Payload, &intent); err != nil {
			return fmt.Errorf("decode audit payload: %w", err)
		}
		if d.audit == nil {
			return errors.New("no audit repository configured")
		}
		createdAt := intent.OccurredAt
		if createdAt.IsZero() {
			createdAt = message.CreatedAt
		}
		return d.audit.AppendAudit(ctx, persistence.AuditEntry{
			ID:        message.ID,
			ActorID:   intent.ActorID,
			Action:    intent.Action,
			Reference: intent.Reference,
			Summary:   intent.Summary,
			Metadata:  intent.Metadata,
			CreatedAt: createdAt,
		})
	default:
		return fmt.Errorf("unknown outbox kind %q", message.Kind)
	}
}

func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.options.Backoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxOutboxBackoff {
			return maxOutboxBackoff
		}
	}
	return delay
}

func (d *Dispatcher) record(ctx context.Context, kind persistence.OutboxKind, outcome string) {
	if d.outcomes == nil {
		return
	}
	d.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	))
}

// Overview reports outbox counts and recent messages for administrators.
func (d *Dispatcher) Overview(ctx context.Context, principal Principal, status persistence.OutboxStatus, limit int) (overview OutboxOverview, err error) {
	if d == nil {
		err = fmt.Errorf("Dispatcher is nil")
		return
	}

	logger := d.loggerWith(ctx, "Overview", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to inspect outbox", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if limit <= 0 || limit > maxNotificationLimit {
		limit = defaultNotificationLimit
	}
	if overview.Counts, err = d.outbox.CountOutbox(ctx); err != nil {
		return
	}
	overview.Messages, err = d.outbox.ListOutbox(ctx, persistence.OutboxFilter{Status: status, Limit: limit})
	return
}
