package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/orgdesk/internal/logging"
)

const sessionPurgeSpec = "@hourly"

// startJobs schedules outbox draining and session cleanup. Overlapping runs
// of the same job are skipped.
func startJobs(ctx context.Context, a *app, outboxInterval time.Duration, logger *slog.Logger) (*cron.Cron, error) {
	cronLog := logging.CronLogger(logger)
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))

	if _, err := c.AddFunc("@every "+outboxInterval.String(), func() {
		_, _ = a.dispatcher.DrainOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("schedule outbox dispatcher: %w", err)
	}
	if _, err := c.AddFunc(sessionPurgeSpec, func() {
		_ = a.auth.PurgeExpiredSessions(ctx)
	}); err != nil {
		return nil, fmt.Errorf("schedule session purge: %w", err)
	}

	c.Start()
	logger.Info("background jobs started", "outbox_interval", outboxInterval, "session_purge", sessionPurgeSpec)
	return c, nil
}
