package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiddenhistory/memctl/internal/embedding"
	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

func setup(t *testing.T) (*Search, *vectorstore.Store) {
	t.Helper()
	vs, err := vectorstore.Open(filepath.Join(t.TempDir(), "v.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	require.NoError(t, vs.CreateCollection("discussions", 3))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"vectors": [][]float32{{1, 0, 0}}})
	}))
	t.Cleanup(srv.Close)

	emb := embedding.New(srv.URL, 3)
	return New(vs, emb), vs
}

func TestRunFlattensAndScopesByGroup(t *testing.T) {
	s, vs := setup(t)
	require.NoError(t, vs.Upsert("discussions", vectorstore.Point{
		ID: "a", GroupID: "proj-1", ContentHash: "h", Type: "decision",
		Payload: map[string]any{"content": "we picked port 26350", "source_hook": "user_prompt_capture", "timestamp": "2026-01-01T00:00:00Z"},
		Vector: []float32{1, 0, 0}, EmbeddingStatus: "complete",
	}))

	results, err := s.Run(context.Background(), Query{Text: "why port", Collection: types.CollectionDiscussions, GroupID: "proj-1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "we picked port 26350", results[0].Content)
}

func TestGetRecentOrdersByTimestampDescending(t *testing.T) {
	s, vs := setup(t)
	require.NoError(t, vs.Upsert("discussions", vectorstore.Point{
		ID: "old", GroupID: "g", ContentHash: "h1", Type: "agent_handoff",
		Payload: map[string]any{"timestamp": "2026-01-01T00:00:00Z"}, EmbeddingStatus: "complete",
	}))
	require.NoError(t, vs.Upsert("discussions", vectorstore.Point{
		ID: "new", GroupID: "g", ContentHash: "h2", Type: "agent_handoff",
		Payload: map[string]any{"timestamp": "2026-02-01T00:00:00Z"}, EmbeddingStatus: "complete",
	}))

	results, err := s.GetRecent(types.CollectionDiscussions, "agent_handoff", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "new", results[0].ID)
}

func TestRouteCollectionsDecisionTopic(t *testing.T) {
	targets := RouteCollections("why did we choose this", "port choice", nil, "")
	require.Len(t, targets, 1)
	assert.Equal(t, types.CollectionDiscussions, targets[0].Collection)
}

func TestRouteCollectionsUnknownIntentCascadesAll(t *testing.T) {
	targets := RouteCollections("random words", "", nil, "")
	assert.Len(t, targets, 3)
}

func TestRouteCollectionsDedupsRepeatedHits(t *testing.T) {
	targets := RouteCollections("best practice for naming conventions, best practice again", "", nil, "what")
	count := 0
	for _, target := range targets {
		if target.Collection == types.CollectionConventions {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
