// Flush daemon: watches the span buffer directory with fsnotify (the
// directory-watch idiom is grounded on loom's artifacts.Watcher —
// Start/Stop lifecycle, a watchLoop select over fsnotify's Events/
// Errors channels plus a stop channel) and drains it on a fixed poll
// interval as a fallback, since fsnotify delivers "a write happened"
// but never guarantees delivery across a daemon restart or a missed
// event. Nothing in this module's dependency surface (or anywhere in
// the example pack this was grounded on) imports an OpenTelemetry,
// Jaeger, or other tracing-backend client — so rather than fabricate
// one, the "tracing backend" a span is flushed to is this package's
// own structured zap sink (internal/observability/logging), which is
// the corpus's actual idiom for emitting structured events. A real
// tracing backend client can replace Flusher's emit step without
// touching Buffer or Span.
package trace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hiddenhistory/memctl/internal/observability/logging"
)

const (
	defaultPollInterval      = 2 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
)

// FlusherConfig tunes the daemon's poll cadence, heartbeat cadence,
// and the buffer byte cap eviction enforces.
type FlusherConfig struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxBufferBytes    int64
}

func (c FlusherConfig) withDefaults() FlusherConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = 10 * 1024 * 1024
	}
	return c
}

// Flusher drains a Buffer into the structured-log sink and maintains
// a liveness heartbeat file external health checks can observe.
type Flusher struct {
	buf     *Buffer
	cfg     FlusherConfig
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopMu  sync.Mutex
	stopped bool
}

// NewFlusher wires a Flusher to buf. The fsnotify watcher is created
// here but not started until Start.
func NewFlusher(buf *Buffer, cfg FlusherConfig) (*Flusher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Flusher{
		buf:     buf,
		cfg:     cfg.withDefaults(),
		watcher: w,
		logger:  logging.Get(logging.CategoryTrace),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// heartbeatPath is the liveness file external health checks poll.
func (f *Flusher) heartbeatPath() string {
	return filepath.Join(f.buf.Dir(), ".heartbeat")
}

// touchHeartbeat updates the heartbeat file's mtime.
func (f *Flusher) touchHeartbeat() {
	now := time.Now()
	path := f.heartbeatPath()
	if err := os.Chtimes(path, now, now); err != nil {
		_ = os.WriteFile(path, []byte{}, 0o644)
	}
}

// Start begins watching the buffer directory and draining it on both
// filesystem events and the poll fallback. It returns once the watch
// is registered; draining runs in a background goroutine until Stop.
func (f *Flusher) Start(ctx context.Context) error {
	if err := f.watcher.Add(f.buf.Dir()); err != nil {
		return err
	}
	f.logger.Info("trace flush daemon started", zap.String("dir", f.buf.Dir()))
	go f.loop(ctx)
	return nil
}

// Stop halts the daemon and closes the underlying fsnotify watcher.
func (f *Flusher) Stop() error {
	f.stopMu.Lock()
	defer f.stopMu.Unlock()
	if f.stopped {
		return nil
	}
	f.stopped = true
	close(f.stopCh)
	<-f.doneCh
	return f.watcher.Close()
}

func (f *Flusher) loop(ctx context.Context) {
	defer close(f.doneCh)

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(f.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	f.drain()
	f.touchHeartbeat()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				f.drain()
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("trace flush daemon watch error", zap.Error(err))
		case <-ticker.C:
			f.drain()
		case <-heartbeat.C:
			f.touchHeartbeat()
		}
	}
}

// drain reads every pending span file, emits it, removes it, then
// evicts oldest-first if the buffer is still over its byte cap.
func (f *Flusher) drain() {
	files, err := f.buf.Pending()
	if err != nil {
		f.logger.Warn("trace flush daemon failed to list buffer", zap.Error(err))
		return
	}

	for _, file := range files {
		span, err := ReadSpan(file.path)
		if err != nil {
			// Leave unreadable files in place; they are rare and small,
			// and eviction will reclaim space if they accumulate.
			continue
		}
		f.emit(span)
		_ = os.Remove(file.path)
	}

	if evicted, err := f.buf.EvictOldest(f.cfg.MaxBufferBytes); err == nil && evicted > 0 {
		f.logger.Warn("trace buffer over cap, evicted oldest spans",
			zap.Int("evicted", evicted), zap.Int64("max_bytes", f.cfg.MaxBufferBytes))
	}
}

// emit is the tracing-backend substitute described in this file's
// package-level doc comment.
func (f *Flusher) emit(s *Span) {
	fields := []zap.Field{
		zap.String("trace_id", s.TraceID),
		zap.String("span_id", s.SpanID),
		zap.String("name", s.Name),
		zap.Duration("duration", s.EndTime.Sub(s.StartTime)),
	}
	if s.ParentSpanID != "" {
		fields = append(fields, zap.String("parent_span_id", s.ParentSpanID))
	}
	if s.Model != "" {
		fields = append(fields, zap.String("model", s.Model), zap.Int("input_tokens", s.InputTokens), zap.Int("output_tokens", s.OutputTokens))
	}
	if s.Failed {
		fields = append(fields, zap.String("error", s.Error))
		f.logger.Error("span", fields...)
		return
	}
	f.logger.Info("span", fields...)
}
