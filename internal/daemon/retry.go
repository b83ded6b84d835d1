package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hiddenhistory/memctl/internal/observability/logging"
	"github.com/hiddenhistory/memctl/internal/observability/metrics"
	"github.com/hiddenhistory/memctl/internal/retryqueue"
	"github.com/hiddenhistory/memctl/internal/storage"
)

const retryPollInterval = 15 * time.Second

// Retrier is the retry-queue processor from spec section 4.2/9.5: each
// pass acquires the queue's exclusive lock, rehydrates every due
// entry, and rewrites the queue with successes dropped, retryable
// failures rescheduled with exponential backoff, and exhausted entries
// moved to the dead-letter file. A lock conflict means another
// processor is already running this pass — the processor exits the
// pass immediately rather than waiting, per retryqueue.ErrLockConflict.
type Retrier struct {
	queue  *retryqueue.Queue
	store  *storage.Store
	logger *zap.Logger
}

// NewRetrier wires a Retrier.
func NewRetrier(queue *retryqueue.Queue, store *storage.Store) *Retrier {
	return &Retrier{queue: queue, store: store, logger: logging.Get(logging.CategoryQueue)}
}

// Run polls until ctx is canceled.
func (r *Retrier) Run(ctx context.Context) error {
	ticker := time.NewTicker(retryPollInterval)
	defer ticker.Stop()

	r.processPass(ctx, false)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.processPass(ctx, false)
		}
	}
}

// processPass runs one pass over due entries. force bypasses
// next_retry_at/max_retries gating — the backfill scheduler's
// "rehydrate everything regardless of backoff" sweep reuses this with
// force=true rather than duplicating the lock/rewrite dance.
func (r *Retrier) processPass(ctx context.Context, force bool) {
	release, err := r.queue.Lock()
	if err != nil {
		if errors.Is(err, retryqueue.ErrLockConflict) {
			return // another processor already owns this pass
		}
		r.logger.Error("retry queue lock failed", zap.Error(err))
		return
	}
	defer release()

	entries, err := r.queue.ReadAll()
	if err != nil {
		r.logger.Error("retry queue corrupt, skipping pass", zap.Error(err))
		return
	}
	metrics.QueueDepth.WithLabelValues("retry").Set(float64(len(entries)))

	due := retryqueue.Due(entries, time.Now(), force, 0)
	dueSet := make(map[string]bool, len(due))
	for _, e := range due {
		dueSet[e.ID] = true
	}

	var kept []retryqueue.Entry
	for _, e := range entries {
		if !dueSet[e.ID] {
			kept = append(kept, e)
			continue
		}

		rehydrateErr := r.store.Rehydrate(ctx, e)
		switch {
		case rehydrateErr == nil:
			metrics.Failures.WithLabelValues("retry", "recovered").Inc()
			// success: drop the entry.
		case errors.Is(rehydrateErr, storage.ErrRehydrateCorrupt) || errors.Is(rehydrateErr, storage.ErrRehydrateUnknownType):
			// Likely bug, not a transient failure: log with
			// traceback-equivalent context and leave the entry
			// completely untouched so the same bug does not silently
			// exhaust retries on every item (spec section 9.5).
			r.logger.Error("retry entry looks like a bug, leaving untouched", zap.String("id", e.ID), zap.Error(rehydrateErr))
			kept = append(kept, e)
		default:
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				if dlqErr := r.queue.MoveToDeadLetter(e); dlqErr != nil {
					r.logger.Error("failed to move entry to dead letter", zap.Error(dlqErr))
					kept = append(kept, e)
					continue
				}
				r.logger.Warn("retry entry exhausted max_retries, moved to dead letter", zap.String("id", e.ID))
				metrics.Failures.WithLabelValues("retry", "dead_letter").Inc()
				continue
			}
			e.NextRetryAt = time.Now().Add(retryqueue.BackoffFor(e.RetryCount))
			e.FailureReason = rehydrateErr.Error()
			r.logger.Warn("retry entry rescheduled", zap.String("id", e.ID), zap.Int("retry_count", e.RetryCount))
			kept = append(kept, e)
		}
	}

	if err := r.queue.ReplaceAll(kept); err != nil {
		r.logger.Error("failed to persist retry queue pass", zap.Error(err))
	}
}
