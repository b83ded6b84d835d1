// Package daemon hosts the long-lived, context-cancelable background
// loops spec section 4.3/9.4 describes as running independent of any
// single hook invocation: the classifier worker, the retry processor,
// the trace flush daemon, and the backfill scheduler. Each loop
// coordinates with the rest of the system exclusively through the
// vector store and the on-disk queues — spec section 9's
// "cross-process state as the only durable coordination."
package daemon

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hiddenhistory/memctl/internal/classifier"
	"github.com/hiddenhistory/memctl/internal/classqueue"
	"github.com/hiddenhistory/memctl/internal/observability/logging"
	"github.com/hiddenhistory/memctl/internal/observability/metrics"
	"github.com/hiddenhistory/memctl/internal/trace"
	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
	"github.com/hiddenhistory/memctl/internal/worker"
)

// Classifier is the worker loop from spec section 4.3: poll the
// classification queue every 5s, dequeue up to 10 tasks, classify up
// to 4 concurrently, write back reclassifications, and always commit
// (classifier errors drop the task's effect rather than retry it).
type Classifier struct {
	queue    *classqueue.Queue
	vectors  *vectorstore.Store
	client   *classifier.Client
	traceBuf *trace.Buffer // optional; nil disables span emission
	logger   *zap.Logger
}

// NewClassifier wires a Classifier. traceBuf may be nil when trace
// buffering is disabled.
func NewClassifier(queue *classqueue.Queue, vectors *vectorstore.Store, client *classifier.Client, traceBuf *trace.Buffer) *Classifier {
	return &Classifier{
		queue: queue, vectors: vectors, client: client, traceBuf: traceBuf,
		logger: logging.Get(logging.CategoryClassifier),
	}
}

// Run polls until ctx is canceled, matching spec section 9.7's
// "between processes, rely on files and idempotency" daemon model.
func (c *Classifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(classqueue.PollInterval())
	defer ticker.Stop()

	c.processBatch(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.processBatch(ctx)
		}
	}
}

// ProcessAll drains the classification queue completely, one batch at
// a time, and returns the number of tasks processed — used by the
// `reclassify` CLI command for an on-demand sweep instead of the
// ticker-driven Run loop.
func (c *Classifier) ProcessAll(ctx context.Context) int {
	total := 0
	for {
		n := c.processBatch(ctx)
		if n == 0 {
			return total
		}
		total += n
	}
}

func (c *Classifier) processBatch(ctx context.Context) int {
	claimed, err := c.queue.Dequeue(classqueue.BatchSize())
	if err != nil {
		c.logger.Error("classifier dequeue failed", zap.Error(err))
		return 0
	}
	if len(claimed) == 0 {
		return 0
	}
	metrics.QueueDepth.WithLabelValues("classify").Set(float64(len(claimed)))

	// worker.Pool's generic Process takes []string items; index strings
	// stand in for the claimed slice so the bounded-concurrency pool
	// (4 in-flight, spec section 4.3/9.7) can be reused as-is rather
	// than forked for a non-string item type.
	items := make([]string, len(claimed))
	for i := range claimed {
		items[i] = strconv.Itoa(i)
	}

	pool := worker.NewPool[struct{}](4)
	pool.Process(items, func(s string) (struct{}, error) {
		i, _ := strconv.Atoi(s)
		c.classifyOne(ctx, claimed[i])
		return struct{}{}, nil
	})
	return len(claimed)
}

func (c *Classifier) classifyOne(ctx context.Context, task classqueue.ClaimedTask) {
	span := trace.StartSpan(task.TraceID, "", "classifier.task")
	span.SetAttribute("point_id", task.PointID)
	span.Input = task.Content
	defer func() {
		span.End()
		if c.traceBuf != nil {
			_ = c.traceBuf.Write(span)
		}
	}()

	result, err := c.client.Classify(ctx, task.Content, types.Collection(task.Collection), types.MemoryType(task.CurrentType), "")
	if err != nil {
		span.RecordError(err)
		c.logger.Error("classifier error, dropping task effect", zap.String("point_id", task.PointID), zap.Error(err))
		metrics.Failures.WithLabelValues("classifier", "classify_error").Inc()
		if commitErr := task.Commit(); commitErr != nil {
			c.logger.Error("failed to commit classifier task after error", zap.Error(commitErr))
		}
		return
	}

	span.Model = result.ModelName
	span.InputTokens = result.InputTokens
	span.OutputTokens = result.OutputTokens
	span.Output = string(result.ClassifiedType)

	if result.WasReclassified {
		if err := c.vectors.SetType(task.Collection, task.PointID, string(result.ClassifiedType)); err != nil {
			c.logger.Error("classifier type write-back failed", zap.Error(err))
		}
		if err := c.vectors.SetPayload(task.Collection, task.PointID, map[string]any{
			"type":                      string(result.ClassifiedType),
			"classification_confidence": result.Confidence,
			"was_reclassified":          true,
			"classification_reasoning":  result.Reasoning,
		}); err != nil {
			c.logger.Error("classifier payload write-back failed", zap.Error(err))
		}
	}

	if err := task.Commit(); err != nil {
		c.logger.Error("failed to commit classified task", zap.Error(err))
	}
}
