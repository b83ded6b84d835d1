package injection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiddenhistory/memctl/internal/embedding"
	"github.com/hiddenhistory/memctl/internal/observability/audit"
	"github.com/hiddenhistory/memctl/internal/retrieval"
	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

func testEngine(t *testing.T, vec []float32) (*Engine, *vectorstore.Store) {
	t.Helper()
	vs, err := vectorstore.Open(filepath.Join(t.TempDir(), "v.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	require.NoError(t, vs.CreateCollection("discussions", len(vec)))
	require.NoError(t, vs.CreateCollection("conventions", len(vec)))
	require.NoError(t, vs.CreateCollection("code-patterns", len(vec)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"vectors": [][]float32{vec}})
	}))
	t.Cleanup(srv.Close)

	emb := embedding.New(srv.URL, len(vec))
	search := retrieval.New(vs, emb)
	cfg := Config{
		ConfidenceThreshold: 0.5,
		BudgetFloor:         50,
		BudgetCeiling:       500,
		Weights:             types.SignalWeights{Quality: 0.5, Density: 0.3, Drift: 0.2},
	}
	return New(search, audit.New(t.TempDir()), cfg), vs
}

func TestTier2ConfidenceGateSkipsWhenNoRelevantResult(t *testing.T) {
	e, _ := testEngine(t, []float32{1, 0, 0})
	st := NewState("s1")

	result, err := e.Tier2(context.Background(), "totally unrelated text", "proj", st, "", nil, "")
	require.NoError(t, err)
	assert.True(t, result.SkippedConfidence)
	assert.Equal(t, 0, result.ResultsSelected)
	assert.Equal(t, 1, st.TurnCount)
}

func TestTier2SelectsAndUpdatesState(t *testing.T) {
	e, vs := testEngine(t, []float32{1, 0, 0})
	require.NoError(t, vs.Upsert("discussions", vectorstore.Point{
		ID: "d1", GroupID: "proj", ContentHash: "h1", Type: "decision",
		Payload: map[string]any{"content": "we picked port 26350 for the api", "source_hook": "user_prompt_capture"},
		Vector: []float32{1, 0, 0}, EmbeddingStatus: "complete",
	}))

	st := NewState("s1")
	result, err := e.Tier2(context.Background(), "why did we choose this port", "proj", st, "port choice", nil, "")
	require.NoError(t, err)
	require.False(t, result.SkippedConfidence)
	assert.Equal(t, 1, result.ResultsSelected)
	assert.Contains(t, result.Block, "<retrieved_context>")
	assert.Contains(t, result.Block, "port 26350")
	assert.Contains(t, st.InjectedPointIDs, "d1")
	assert.Equal(t, 1, st.TurnCount)
	assert.NotEmpty(t, st.LastQueryEmbedding)
}

func TestTier2PerSessionDedupAcrossRepeatedTurns(t *testing.T) {
	e, vs := testEngine(t, []float32{1, 0, 0})
	require.NoError(t, vs.Upsert("discussions", vectorstore.Point{
		ID: "d1", GroupID: "proj", ContentHash: "h1", Type: "decision",
		Payload: map[string]any{"content": "we picked port 26350", "source_hook": "user_prompt_capture"},
		Vector: []float32{1, 0, 0}, EmbeddingStatus: "complete",
	}))

	st := NewState("s1")
	first, err := e.Tier2(context.Background(), "why this port", "proj", st, "port", nil, "")
	require.NoError(t, err)
	require.Equal(t, 1, first.ResultsSelected)

	second, err := e.Tier2(context.Background(), "why this port", "proj", st, "port", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, second.ResultsSelected, "already-injected id must be skipped on the next turn")
}

func TestAuditRecordsEventWithoutError(t *testing.T) {
	e, _ := testEngine(t, []float32{1, 0, 0})
	err := e.Audit("s1", "proj", TurnResult{ResultsConsidered: 2, ResultsSelected: 1, Budget: 500})
	require.NoError(t, err)
}

func TestStateLoadReturnsFreshStateOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ai-memory-s1-injection-state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	st := Load(dir, "s1")
	assert.Equal(t, "s1", st.SessionID)
	assert.Equal(t, defaultTopicDrift, st.TopicDrift)
	assert.Empty(t, st.InjectedPointIDs)
}

func TestStateSaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	st := NewState("s2")
	st.InjectedPointIDs = []string{"a", "b"}
	st.TopicDrift = 0.3
	require.NoError(t, st.Save(dir))

	loaded := Load(dir, "s2")
	assert.Equal(t, st.InjectedPointIDs, loaded.InjectedPointIDs)
	assert.Equal(t, 0.3, loaded.TopicDrift)
}

func TestResetAfterCompactClearsInjectedIDsOnly(t *testing.T) {
	st := NewState("s3")
	st.InjectedPointIDs = []string{"a"}
	st.LastQueryEmbedding = []float32{1, 2, 3}
	st.TopicDrift = 0.7

	st.ResetAfterCompact()

	assert.Empty(t, st.InjectedPointIDs)
	assert.Equal(t, []float32{1, 2, 3}, st.LastQueryEmbedding)
	assert.Equal(t, 0.7, st.TopicDrift)
}
