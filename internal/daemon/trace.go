package daemon

import (
	"context"

	"github.com/hiddenhistory/memctl/internal/trace"
)

// TraceFlush adapts trace.Flusher's Start/Stop lifecycle to the same
// blocking Run(ctx) shape as Classifier and Retrier, so cmd/memctl can
// run every daemon the same way (one goroutine per Run call, exit on
// ctx cancellation).
type TraceFlush struct {
	flusher *trace.Flusher
}

// NewTraceFlush wraps an already-constructed Flusher.
func NewTraceFlush(flusher *trace.Flusher) *TraceFlush {
	return &TraceFlush{flusher: flusher}
}

// Run starts the flusher and blocks until ctx is canceled, then stops
// it before returning.
func (t *TraceFlush) Run(ctx context.Context) error {
	if err := t.flusher.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	_ = t.flusher.Stop()
	return ctx.Err()
}
