// Package trace implements the disk-backed span buffer from spec
// section 4.10/9.3: hooks mint a trace id per user turn and hand it to
// detached workers via MEMCTL_TRACE_ID; workers record spans here; a
// separate flush daemon (see flush.go) drains the buffer into a
// tracing backend. No OpenTelemetry-style client exists anywhere in
// this codebase's dependency surface, so the "tracing backend" a span
// is flushed to is this package's own structured logger sink — see
// flush.go's doc comment for why that substitution is the grounded
// choice rather than a fabricated client dependency.
package trace

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// traceIDEnv is the variable hooks.Spawn sets on a detached worker's
// environment to propagate the turn's trace id (spec section 4.4's
// "the worker inherits a trace id via environment for trace linkage").
const traceIDEnv = "MEMCTL_TRACE_ID"

// TraceIDFromEnv reads the trace id a parent hook propagated, or ""
// if the process was not spawned with one (e.g. run directly by an
// operator, or a daemon with no single originating turn).
func TraceIDFromEnv() string {
	return os.Getenv(traceIDEnv)
}

// Span mirrors spec section 4.10's "input, output, model identifier,
// and token usage" span shape. Start/End are real wall-clock times
// captured by the caller around the traced work, never around
// emission — callers must set them explicitly via Start/End, not rely
// on construction or buffer-write time.
type Span struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Name         string            `json:"name"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Input        string            `json:"input,omitempty"`
	Output       string            `json:"output,omitempty"`
	Model        string            `json:"model,omitempty"`
	InputTokens  int               `json:"input_tokens,omitempty"`
	OutputTokens int               `json:"output_tokens,omitempty"`
	Failed       bool              `json:"failed,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// NewTraceID mints a fresh trace id for one user turn (spec section
// 4.10's "hooks generate a trace id per user turn").
func NewTraceID() string {
	return uuid.NewString()
}

// StartSpan begins a span under traceID, optionally nested under
// parentSpanID ("" for a root span).
func StartSpan(traceID, parentSpanID, name string) *Span {
	return &Span{
		TraceID:      traceID,
		SpanID:       uuid.NewString(),
		ParentSpanID: parentSpanID,
		Name:         name,
		StartTime:    time.Now(),
	}
}

// SetAttribute records a key/value pair, initializing the map lazily.
func (s *Span) SetAttribute(key, value string) {
	if s.Attributes == nil {
		s.Attributes = make(map[string]string)
	}
	s.Attributes[key] = value
}

// RecordError marks the span as failed — spec section 9.5's "emit a
// trace span marked as a failure" for classifier errors.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.Failed = true
	s.Error = err.Error()
}

// End stamps the real end time. Callers still must hand the span to a
// Buffer to persist it.
func (s *Span) End() {
	s.EndTime = time.Now()
}
