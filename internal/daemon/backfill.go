package daemon

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hiddenhistory/memctl/internal/observability/logging"
)

// defaultBackfillSchedule runs once a day at 03:17 — an off-the-hour
// minute so a fleet of these daemons doesn't all wake at once, the
// same reasoning spec section 4.2's maintenance scripts leave to the
// operator's crontab, just pinned to a sane default here.
const defaultBackfillSchedule = "17 3 * * *"

// Backfill wraps a Retrier in a cron schedule that force-reprocesses
// every entry regardless of next_retry_at/max_retries — the direct
// vector backfill maintenance script from spec section 9.8's CLI
// surface, running as a daemon instead of an ad hoc invocation.
// Grounded on teradata-labs-loom/pkg/scheduler/scheduler.go's
// cron.New/AddFunc/Start/Stop usage.
type Backfill struct {
	retrier  *Retrier
	cron     *cron.Cron
	schedule string
	logger   *zap.Logger
}

// NewBackfill wires a Backfill against retrier. schedule is a standard
// 5-field cron expression; "" uses defaultBackfillSchedule.
func NewBackfill(retrier *Retrier, schedule string) *Backfill {
	if schedule == "" {
		schedule = defaultBackfillSchedule
	}
	return &Backfill{
		retrier: retrier, cron: cron.New(), schedule: schedule,
		logger: logging.Get(logging.CategoryQueue),
	}
}

// Start registers the scheduled job and begins the cron engine's
// internal goroutine.
func (b *Backfill) Start(ctx context.Context) error {
	_, err := b.cron.AddFunc(b.schedule, func() {
		b.logger.Info("backfill sweep starting")
		b.retrier.processPass(ctx, true)
	})
	if err != nil {
		return err
	}
	b.cron.Start()
	return nil
}

// Stop halts the cron engine, waiting up to 30 seconds for any
// in-flight job to finish.
func (b *Backfill) Stop() {
	stopCtx := b.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
	}
}

// RunOnce runs one force-backfill pass immediately, bypassing the
// schedule — used by the `backfill` CLI command for an on-demand run.
func (b *Backfill) RunOnce(ctx context.Context) {
	b.retrier.processPass(ctx, true)
}
