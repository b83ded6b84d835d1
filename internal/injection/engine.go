package injection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hiddenhistory/memctl/internal/observability/audit"
	"github.com/hiddenhistory/memctl/internal/retrieval"
	"github.com/hiddenhistory/memctl/internal/truncate"
	"github.com/hiddenhistory/memctl/internal/types"
)

// Config holds the tunables spec section 4.9 step 6 and the
// confidence gate depend on, sourced from internal/config at the
// call site rather than read directly here.
type Config struct {
	ConfidenceThreshold float64
	BudgetFloor         int
	BudgetCeiling       int
	Weights             types.SignalWeights
}

// Engine drives Tier-1 bootstrap and Tier-2 per-turn injection over an
// already-built Search.
type Engine struct {
	search *retrieval.Search
	audit  *audit.Log
	cfg    Config
}

// New builds an Engine over an existing search index, audit log, and config.
func New(search *retrieval.Search, auditLog *audit.Log, cfg Config) *Engine {
	return &Engine{search: search, audit: auditLog, cfg: cfg}
}

// Entry is one selected result carrying its rendered line prefix.
type Entry struct {
	retrieval.Result
	Collection types.Collection
	Tokens     int
}

// Bootstrap implements Tier 1 (spec section 4.9): one pass pulling the
// most recent agent handoff, recent decisions and summaries, and
// shared best-practice guidelines, merged and deduped by id.
func (e *Engine) Bootstrap(ctx context.Context, project, agentID string) (string, error) {
	seen := map[string]bool{}
	var entries []Entry

	if handoffs, err := e.search.GetRecent(types.CollectionDiscussions, string(types.TypeAgentHandoff), agentID, 1); err == nil {
		for _, r := range handoffs {
			addUnique(&entries, &seen, r, types.CollectionDiscussions)
		}
	}

	if decisions, err := e.search.Run(ctx, retrieval.Query{
		Text: "recent decisions and session summary", Collection: types.CollectionDiscussions,
		GroupID: project, Limit: 10, ScoreThreshold: 0,
	}); err == nil {
		for _, r := range decisions {
			addUnique(&entries, &seen, r, types.CollectionDiscussions)
		}
	}

	if guidelines, err := e.search.Run(ctx, retrieval.Query{
		Text: "best practice guidelines", Collection: types.CollectionConventions,
		Limit: 5, ScoreThreshold: 0,
	}); err == nil {
		for _, r := range guidelines {
			addUnique(&entries, &seen, r, types.CollectionConventions)
		}
	}

	if len(entries) == 0 {
		return "", nil
	}
	return formatBlock(entries), nil
}

func addUnique(entries *[]Entry, seen *map[string]bool, r retrieval.Result, collection types.Collection) {
	if (*seen)[r.ID] {
		return
	}
	(*seen)[r.ID] = true
	*entries = append(*entries, Entry{Result: r, Collection: collection, Tokens: truncate.CountTokens(r.Content)})
}

// TurnResult is what Tier2 returns for the caller to emit as
// additionalContext and fold into the next audit/state write.
type TurnResult struct {
	Block              string
	SkippedConfidence  bool
	ResultsConsidered  int
	ResultsSelected    int
	TokensUsed         int
	Budget             int
	BestScore          float64
	TopicDrift         float64
	CollectionsSearched []string
	SelectedIDs        []string
	QueryEmbedding     []float32
}

// Tier2 implements spec section 4.9 steps 1-9: routes collections,
// searches each with group scoping, gates on confidence, computes
// topic drift against the session's previous embedding, blends an
// adaptive token budget, greedily fills it skipping already-injected
// ids, and advances state. Callers persist the returned state and
// emit the audit event via Audit.
func (e *Engine) Tier2(ctx context.Context, prompt, project string, st *State, decisionTopic string, filePaths []string, intent string) (TurnResult, error) {
	targets := retrieval.RouteCollections(prompt, decisionTopic, filePaths, intent)

	queryVec, embedErr := e.search.EmbedQuery(ctx, targets, prompt)
	if embedErr != nil {
		return TurnResult{}, embedErr
	}

	var merged []Entry
	var collections []string
	for _, target := range targets {
		group := project
		if target.Shared {
			group = ""
		}
		collections = append(collections, string(target.Collection))
		results, err := e.search.Run(ctx, retrieval.Query{
			Text: prompt, Collection: target.Collection, GroupID: group,
			Limit: 20, ScoreThreshold: 0, FastMode: true, PrecomputedVec: queryVec,
		})
		if err != nil {
			continue
		}
		for _, r := range results {
			merged = append(merged, Entry{Result: r, Collection: target.Collection, Tokens: truncate.CountTokens(r.Content)})
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	result := TurnResult{
		ResultsConsidered:   len(merged),
		CollectionsSearched: collections,
		QueryEmbedding:      queryVec,
	}

	if len(merged) == 0 || merged[0].Score < e.cfg.ConfidenceThreshold {
		result.SkippedConfidence = true
		if len(merged) > 0 {
			result.BestScore = merged[0].Score
		}
		st.TurnCount++
		return result, nil
	}
	result.BestScore = merged[0].Score

	drift := topicDrift(st.LastQueryEmbedding, queryVec)
	result.TopicDrift = drift

	density := fractionAboveThreshold(merged, e.cfg.ConfidenceThreshold)
	blend := e.cfg.Weights.Blend(result.BestScore, density, drift)
	budget := types.MapToRange(blend, e.cfg.BudgetFloor, e.cfg.BudgetCeiling)
	result.Budget = budget

	var selected []Entry
	remaining := budget
	for _, cand := range merged {
		if st.HasInjected(cand.ID) {
			continue
		}
		if cand.Tokens > remaining {
			continue
		}
		selected = append(selected, cand)
		remaining -= cand.Tokens
	}

	result.ResultsSelected = len(selected)
	result.TokensUsed = budget - remaining
	result.Block = formatBlock(selected)
	for _, s := range selected {
		result.SelectedIDs = append(result.SelectedIDs, s.ID)
	}

	st.InjectedPointIDs = append(st.InjectedPointIDs, result.SelectedIDs...)
	st.LastQueryEmbedding = queryVec
	st.TopicDrift = drift
	st.TotalTokensInjected += result.TokensUsed
	st.TurnCount++

	return result, nil
}

// Audit records a Tier-2 turn per spec section 4.9 step 10.
func (e *Engine) Audit(sessionID, project string, r TurnResult) error {
	if e.audit == nil {
		return nil
	}
	return e.audit.Record(audit.Event{
		Tier:                2,
		Trigger:             "user_prompt",
		Project:             project,
		SessionID:           sessionID,
		ResultsConsidered:   r.ResultsConsidered,
		ResultsSelected:     r.ResultsSelected,
		TokensUsed:          r.TokensUsed,
		Budget:              r.Budget,
		BestScore:           r.BestScore,
		SkippedConfidence:   r.SkippedConfidence,
		TopicDrift:          r.TopicDrift,
		CollectionsSearched: r.CollectionsSearched,
	})
}

func fractionAboveThreshold(results []Entry, threshold float64) float64 {
	if len(results) == 0 {
		return 0
	}
	above := 0
	for _, r := range results {
		if r.Score >= threshold {
			above++
		}
	}
	return float64(above) / float64(len(results))
}

// topicDrift is the cosine distance (1 - cosine similarity) between
// the current and previous query embeddings. First turn (no previous
// embedding) uses the spec's neutral 0.5.
func topicDrift(prev, cur []float32) float64 {
	if len(prev) == 0 || len(prev) != len(cur) {
		return defaultTopicDrift
	}
	var dot, normA, normB float64
	for i := range cur {
		dot += float64(prev[i]) * float64(cur[i])
		normA += float64(prev[i]) * float64(prev[i])
		normB += float64(cur[i]) * float64(cur[i])
	}
	if normA == 0 || normB == 0 {
		return defaultTopicDrift
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clamp01(1 - cos)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatBlock(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<retrieved_context>\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "[%s | %s | %.2f] %s\n", entry.Type, entry.Collection, entry.Score, entry.Content)
	}
	b.WriteString("</retrieved_context>")
	return b.String()
}
