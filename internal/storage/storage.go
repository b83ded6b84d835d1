// Package storage implements the canonical write path from spec
// section 4.1: the single entrypoint every capture hook and connector
// funnels through. Rewrite of the teacher's internal/storage/storage.go
// (which modeled session/index/provenance file persistence with no
// vector concept at all) into the nine-step validate → scan → route →
// truncate → dedup → embed → upsert → enqueue → observe pipeline,
// keeping the teacher's interface-first shape and Init()/Close()
// lifecycle names.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hiddenhistory/memctl/internal/bus"
	"github.com/hiddenhistory/memctl/internal/classqueue"
	"github.com/hiddenhistory/memctl/internal/embedding"
	"github.com/hiddenhistory/memctl/internal/groupid"
	"github.com/hiddenhistory/memctl/internal/observability/logging"
	"github.com/hiddenhistory/memctl/internal/observability/metrics"
	"github.com/hiddenhistory/memctl/internal/retryqueue"
	"github.com/hiddenhistory/memctl/internal/security"
	"github.com/hiddenhistory/memctl/internal/truncate"
	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

// Status is the write path's terminal outcome, spec section 4.1 verbatim.
type Status string

const (
	StatusStored    Status = "stored"
	StatusDuplicate Status = "duplicate"
	StatusBlocked   Status = "blocked"
	StatusQueued    Status = "queued"
)

// Input is the canonical write entrypoint's contract.
type Input struct {
	Content    string
	CWD        string
	Type       types.MemoryType
	SourceHook string
	SessionID  string
	GroupID    string // explicit override; falls back to CWD-derived resolution

	FilePath       string
	FileReferences []string
	Language       string
	Framework      string
	Importance     float64
	Tags           []string
	TurnNumber     int
	AgentID        string
	ConnectorIDs   map[string]string
	TraceID        string // propagated from the originating hook's turn, if any
}

// Output is the canonical write entrypoint's result contract.
type Output struct {
	Status          Status
	MemoryID        string
	EmbeddingStatus types.EmbeddingStatus
}

var sourceHookWhitelist = map[string]bool{
	"user_prompt_capture": true,
	"assistant_response":  true,
	"pre_tool_use":        true,
	"post_tool_use":       true,
	"session_start":       true,
	"session_end":         true,
	"pre_compact":         true,
	"notification":        true,
	"subagent_start":      true,
	"subagent_stop":       true,
	"stop":                true,
	"github_sync":         true,
	"jira_sync":           true,
	"manual":              true,
}

// Store is the canonical write path. Construct with New.
type Store struct {
	vectors  *vectorstore.Store
	embedder *embedding.Client
	classify *classqueue.Queue
	retry    *retryqueue.Queue
	secOpts  security.Options
	bus      *bus.Bus // optional; nil means "no wake-up, rely on pollers"
}

// New wires a Store from its already-opened collaborators. cwd-based
// group id resolution happens per-call, not at construction time.
func New(vectors *vectorstore.Store, embedder *embedding.Client, classify *classqueue.Queue, retry *retryqueue.Queue, secOpts security.Options) *Store {
	return &Store{vectors: vectors, embedder: embedder, classify: classify, retry: retry, secOpts: secOpts}
}

// SetBus attaches an optional wake-up publisher. When set, a
// successful classification enqueue notifies bus.SubjectClassifyEnqueued
// so a daemon blocked on its subscription wakes immediately instead of
// waiting for its next poll — never required for correctness.
func (s *Store) SetBus(b *bus.Bus) { s.bus = b }

// Init creates the three collections this store writes to. Idempotent.
func (s *Store) Init(dimension int) error {
	for _, c := range []types.Collection{types.CollectionCodePatterns, types.CollectionConventions, types.CollectionDiscussions} {
		if err := s.vectors.CreateCollection(string(c), dimension); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.vectors.Close()
}

// StoreMemory runs the nine-step canonical write path for one record.
func (s *Store) StoreMemory(ctx context.Context, in Input) (Output, error) {
	logger := logging.Get(logging.CategoryStorage)

	// Step 1: validation.
	if len(in.Content) < 4 {
		return Output{}, &types.ValidationError{Field: "content", Err: types.ErrEmptyContent}
	}
	rule, ok := types.Route(in.Type)
	if !ok {
		return Output{}, &types.ValidationError{Field: "type", Err: types.ErrUnknownType}
	}
	if !sourceHookWhitelist[in.SourceHook] {
		return Output{}, &types.ValidationError{Field: "source_hook", Err: types.ErrUnknownSourceHook}
	}
	groupID := in.GroupID
	if groupID == "" {
		resolved, err := groupid.Resolve("", in.CWD)
		if err != nil {
			return Output{}, &types.ValidationError{Field: "group_id", Err: err}
		}
		groupID = resolved
	}

	// Step 2: security scan.
	scan := security.Scan(in.Content, s.secOpts)
	if scan.Action == security.ActionBlocked {
		metrics.Captures.WithLabelValues(in.SourceHook, string(StatusBlocked), groupID, string(rule.Collection)).Inc()
		return Output{Status: StatusBlocked}, nil
	}
	content := scan.Content

	// Step 3: routing already resolved via rule above.

	// Step 4: smart truncation.
	content, _ = truncate.Apply(rule.TruncationClass, content)

	// Step 5: dedup.
	contentHash := hashContent(content)
	existing, err := s.vectors.Scroll(string(rule.Collection), vectorstore.Filter{
		"group_id":     groupID,
		"content_hash": contentHash,
		"type":         string(in.Type),
	}, 1, false)
	if err != nil {
		return s.queueForRetry(in, content, contentHash, groupID, "dedup scroll failed: "+err.Error())
	}
	if len(existing) > 0 {
		metrics.DedupEvents.WithLabelValues(groupID).Inc()
		return Output{Status: StatusDuplicate, MemoryID: existing[0].ID}, nil
	}

	// Step 6: embed.
	pointID := types.PointID(types.Namespace, contentHash)
	vector := s.embedder.ZeroVector()
	embStatus := types.EmbeddingPending
	embStart := time.Now()
	vec, embErr := s.embedder.Embed(ctx, rule.Collection, content)
	metrics.EmbeddingDuration.WithLabelValues(string(rule.Model)).Observe(time.Since(embStart).Seconds())
	if embErr == nil {
		vector = vec
		embStatus = types.EmbeddingComplete
		metrics.EmbeddingRequests.WithLabelValues("success").Inc()
	} else {
		metrics.EmbeddingRequests.WithLabelValues("failed").Inc()
		logger.Warn("embedding failed, upserting pending", zap.Error(embErr))
	}

	// Step 7: upsert.
	payload := recordPayload(in, content, contentHash, groupID, rule, embStatus)
	if err := s.vectors.Upsert(string(rule.Collection), vectorstore.Point{
		ID: pointID.String(), GroupID: groupID, ContentHash: contentHash, Type: string(in.Type),
		Payload: payload, Vector: vector, EmbeddingStatus: string(embStatus),
	}); err != nil {
		return s.queueForRetry(in, content, contentHash, groupID, "upsert failed: "+err.Error())
	}

	// Step 8: enqueue classification.
	if err := s.classify.Enqueue(classqueue.Task{
		PointID: pointID.String(), Collection: string(rule.Collection), Content: truncateForQueue(content),
		CurrentType: string(in.Type), GroupID: groupID, SourceHook: in.SourceHook, SessionID: in.SessionID,
		TraceID: in.TraceID,
	}); err != nil {
		logger.Warn("classification enqueue failed", zap.Error(err))
	} else if s.bus != nil {
		if err := s.bus.Notify(bus.SubjectClassifyEnqueued); err != nil {
			logger.Debug("bus notify failed, classifier falls back to its poll ticker", zap.Error(err))
		}
	}

	// Step 9: observability.
	metrics.Captures.WithLabelValues(in.SourceHook, string(StatusStored), groupID, string(rule.Collection)).Inc()
	metrics.Tokens.WithLabelValues("capture", "stored").Add(float64(truncate.CountTokens(content)))

	return Output{Status: StatusStored, MemoryID: pointID.String(), EmbeddingStatus: embStatus}, nil
}

// StoreMemoryBatch applies StoreMemory to every input, preserving one
// result (including blocked entries) per input record in order.
func (s *Store) StoreMemoryBatch(ctx context.Context, inputs []Input) ([]Output, error) {
	outputs := make([]Output, len(inputs))
	for i, in := range inputs {
		out, err := s.StoreMemory(ctx, in)
		if err != nil {
			return outputs, fmt.Errorf("batch item %d: %w", i, err)
		}
		outputs[i] = out
	}
	return outputs, nil
}

// ErrRehydrateCorrupt and ErrRehydrateUnknownType mark a retry entry
// as a likely bug rather than a transient failure — spec section 9.5's
// "on unexpected error (a likely bug): log with traceback, do not mark
// failed (so the same bug does not silently exhaust retries on every
// item)." Callers use errors.Is to decide whether to increment
// RetryCount or leave the entry untouched.
var (
	ErrRehydrateCorrupt     = errors.New("rehydrate: corrupt memory_data")
	ErrRehydrateUnknownType = errors.New("rehydrate: unknown type")
)

// Rehydrate replays a retry-queue entry into the vector store: it
// re-derives the routing rule from the persisted payload, re-embeds
// (embedding is the step most likely to have failed originally), and
// upserts plus enqueues classification exactly like StoreMemory's
// steps 6-8 — but skips validation/security/dedup/truncation, since
// MemoryData already carries their output. Spec section 4.2's "for
// each entry, rehydrates into the storage core."
func (s *Store) Rehydrate(ctx context.Context, entry retryqueue.Entry) error {
	var payload map[string]any
	if err := json.Unmarshal(entry.MemoryData, &payload); err != nil {
		return fmt.Errorf("%w: %w", ErrRehydrateCorrupt, err)
	}

	content, _ := payload["content"].(string)
	contentHash, _ := payload["content_hash"].(string)
	groupID, _ := payload["group_id"].(string)
	memType, _ := payload["type"].(string)
	sourceHook, _ := payload["source_hook"].(string)
	sessionID, _ := payload["session_id"].(string)

	rule, ok := types.Route(types.MemoryType(memType))
	if !ok {
		return fmt.Errorf("%w: %q", ErrRehydrateUnknownType, memType)
	}

	vec, err := s.embedder.Embed(ctx, rule.Collection, content)
	if err != nil {
		return fmt.Errorf("rehydrate: embedding failed: %w", err)
	}
	payload["embedding_status"] = string(types.EmbeddingComplete)

	pointID := types.PointID(types.Namespace, contentHash)
	if err := s.vectors.Upsert(string(rule.Collection), vectorstore.Point{
		ID: pointID.String(), GroupID: groupID, ContentHash: contentHash, Type: memType,
		Payload: payload, Vector: vec, EmbeddingStatus: string(types.EmbeddingComplete),
	}); err != nil {
		return fmt.Errorf("rehydrate: upsert failed: %w", err)
	}

	if err := s.classify.Enqueue(classqueue.Task{
		PointID: pointID.String(), Collection: string(rule.Collection), Content: truncateForQueue(content),
		CurrentType: memType, GroupID: groupID, SourceHook: sourceHook, SessionID: sessionID,
	}); err != nil {
		logging.Get(logging.CategoryQueue).Warn("rehydrate: classification enqueue failed", zap.Error(err))
	}

	metrics.Captures.WithLabelValues(sourceHook, string(StatusStored), groupID, string(rule.Collection)).Inc()
	return nil
}

func (s *Store) queueForRetry(in Input, content, contentHash, groupID, reason string) (Output, error) {
	payload := recordPayload(in, content, contentHash, groupID, mustRule(in.Type), types.EmbeddingPending)
	data, err := json.Marshal(payload)
	if err != nil {
		return Output{}, err
	}
	entry := retryqueue.Entry{
		ID:            contentHash,
		EnqueuedAt:    time.Now(),
		MemoryData:    data,
		FailureReason: reason,
	}
	if err := s.retry.Enqueue(entry, false); err != nil {
		return Output{}, err
	}
	metrics.Failures.WithLabelValues("storage", "queued_for_retry").Inc()
	return Output{Status: StatusQueued}, nil
}

func mustRule(t types.MemoryType) types.RoutingRule {
	rule, _ := types.Route(t)
	return rule
}

func recordPayload(in Input, content, contentHash, groupID string, rule types.RoutingRule, embStatus types.EmbeddingStatus) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	return map[string]any{
		"content":          content,
		"content_hash":     contentHash,
		"group_id":         groupID,
		"type":             string(in.Type),
		"source_hook":      in.SourceHook,
		"session_id":       in.SessionID,
		"timestamp":        now,
		"created_at":       now,
		"embedding_status": string(embStatus),
		"embedding_model":  string(rule.Model),
		"source_authority": rule.SourceAuthority,
		"is_current":       true,
		"version":          1,
		"file_path":        in.FilePath,
		"file_references":  in.FileReferences,
		"language":         in.Language,
		"framework":        in.Framework,
		"importance":       in.Importance,
		"tags":             in.Tags,
		"turn_number":      in.TurnNumber,
		"agent_id":         in.AgentID,
		"connector_ids":    in.ConnectorIDs,
	}
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func truncateForQueue(content string) string {
	if len(content) <= 2000 {
		return content
	}
	return content[:2000]
}
