// Package retrieval implements the search and collection-routing
// contract from spec section 4.6. Grounded on the teacher's
// internal/search/index.go scoring-blend idiom (computeSearchScore
// combining multiple signals) — adapted here to blend ANN score with
// routing-table collection selection rather than the teacher's MemRL
// utility lambda, which models a different domain entirely.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/hiddenhistory/memctl/internal/embedding"
	"github.com/hiddenhistory/memctl/internal/observability/metrics"
	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

// Result is one flattened search hit: score plus payload fields lifted
// to the top level for callers, per spec section 4.6's "flattened
// records {id, score, content, type, source_hook, group_id,
// timestamp, …payload}".
type Result struct {
	ID         string
	Score      float64
	Content    string
	Type       string
	SourceHook string
	GroupID    string
	Timestamp  string
	Payload    map[string]any
}

// Query is MemorySearch.search's parameter set.
type Query struct {
	Text           string
	Collection     types.Collection
	GroupID        string // "" means the collection is treated as global (no group filter)
	Limit          int
	ScoreThreshold float64
	MemoryType     string // optional, "" means no type filter
	AgentID        string
	Source         string
	FastMode       bool
	PrecomputedVec []float32 // used only when FastMode is true
}

// Search is the vector-backed MemorySearch contract.
type Search struct {
	vectors  *vectorstore.Store
	embedder *embedding.Client
}

// New builds a Search over an already-open vector store and embedding client.
func New(vectors *vectorstore.Store, embedder *embedding.Client) *Search {
	return &Search{vectors: vectors, embedder: embedder}
}

// Run embeds the query (unless FastMode supplies a precomputed vector),
// builds the compound filter, and returns flattened, score-sorted hits.
func (s *Search) Run(ctx context.Context, q Query) ([]Result, error) {
	vec := q.PrecomputedVec
	if !q.FastMode || len(vec) == 0 {
		var err error
		vec, err = s.embedder.Embed(ctx, q.Collection, q.Text)
		if err != nil {
			metrics.Retrievals.WithLabelValues(string(q.Collection), "embedding_failed").Inc()
			return nil, err
		}
	}

	filter := vectorstore.Filter{}
	if q.GroupID != "" {
		filter["group_id"] = q.GroupID
	}
	if q.MemoryType != "" {
		filter["type"] = q.MemoryType
	}
	if q.AgentID != "" {
		filter["agent_id"] = q.AgentID
	}
	if q.Source != "" {
		filter["source_hook"] = q.Source
	}

	scored, err := s.vectors.Search(string(q.Collection), vec, q.Limit, q.ScoreThreshold, filter)
	if err != nil {
		metrics.Retrievals.WithLabelValues(string(q.Collection), "error").Inc()
		return nil, err
	}
	metrics.Retrievals.WithLabelValues(string(q.Collection), "ok").Inc()

	results := make([]Result, len(scored))
	for i, sp := range scored {
		results[i] = flatten(sp)
	}
	return results, nil
}

// EmbedQuery embeds text once, routing the embedding model off the
// first routed collection (callers searching multiple collections in
// one turn still only pay for a single embedding call).
func (s *Search) EmbedQuery(ctx context.Context, targets []RouteTarget, text string) ([]float32, error) {
	collection := types.CollectionDiscussions
	if len(targets) > 0 {
		collection = targets[0].Collection
	}
	return s.embedder.Embed(ctx, collection, text)
}

// GetRecent returns the most recent limit records of memoryType via a
// non-semantic, recency-ordered scroll — used for "latest handoff"
// style lookups where ranking by similarity would be wrong.
func (s *Search) GetRecent(collection types.Collection, memoryType, agentID string, limit int) ([]Result, error) {
	filter := vectorstore.Filter{}
	if memoryType != "" {
		filter["type"] = memoryType
	}
	if agentID != "" {
		filter["agent_id"] = agentID
	}

	// Scroll returns rows in insertion order, so read every match (a
	// negative limit is unbounded in sqlite) and trim after sorting.
	points, err := s.vectors.Scroll(string(collection), filter, -1, false)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(points))
	for i, p := range points {
		results[i] = flatten(vectorstore.ScoredPoint{Point: p, Score: 0})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp > results[j].Timestamp
	})
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func flatten(sp vectorstore.ScoredPoint) Result {
	content, _ := sp.Payload["content"].(string)
	timestamp, _ := sp.Payload["timestamp"].(string)
	return Result{
		ID:         sp.ID,
		Score:      sp.Score,
		Content:    content,
		Type:       sp.Type,
		SourceHook: stringField(sp.Payload, "source_hook"),
		GroupID:    sp.GroupID,
		Timestamp:  timestamp,
		Payload:    sp.Payload,
	}
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

// RouteTarget is one entry in route_collections' output.
type RouteTarget struct {
	Collection types.Collection
	Shared     bool
}

var bestPracticeKeywords = []string{"best practice", "convention", "guideline", "should we", "anti-pattern"}

// RouteCollections implements spec section 4.6's route_collections:
// evaluates rules in order, dedups repeated hits, cascades to all
// three collections only when nothing else matched.
func RouteCollections(prompt string, decisionTopic string, filePaths []string, intent string) []RouteTarget {
	seen := map[types.Collection]bool{}
	var targets []RouteTarget
	add := func(c types.Collection, shared bool) {
		if seen[c] {
			return
		}
		seen[c] = true
		targets = append(targets, RouteTarget{Collection: c, Shared: shared})
	}

	if decisionTopic != "" {
		add(types.CollectionDiscussions, false)
	}

	lower := strings.ToLower(prompt)
	for _, kw := range bestPracticeKeywords {
		if strings.Contains(lower, kw) {
			add(types.CollectionConventions, true)
			break
		}
	}

	if len(filePaths) > 0 {
		add(types.CollectionCodePatterns, false)
	}

	if c, ok := intentCollection(intent); ok {
		add(c, c == types.CollectionConventions)
	}

	if len(targets) == 0 {
		add(types.CollectionDiscussions, false)
		add(types.CollectionConventions, true)
		add(types.CollectionCodePatterns, false)
	}
	return targets
}

func intentCollection(intent string) (types.Collection, bool) {
	switch intent {
	case "how":
		return types.CollectionCodePatterns, true
	case "what":
		return types.CollectionConventions, true
	case "why":
		return types.CollectionDiscussions, true
	default:
		return "", false
	}
}
