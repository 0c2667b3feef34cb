package devicesync

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/orgdesk/internal/logging"
)

// Run syncs once immediately and then every interval until ctx is cancelled.
// A poll that overruns the interval makes the next tick a no-op.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("devicesync: poll interval must be positive, got %s", interval)
	}
	logger := s.logger()
	cronLog := logging.CronLogger(logger)

	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))
	if _, err := c.AddFunc("@every "+interval.String(), func() {
		_, _ = s.SyncOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule device sync: %w", err)
	}

	logger.InfoContext(ctx, "device sync started", "interval", interval)
	_, _ = s.SyncOnce(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("device sync stopped")
	return nil
}
