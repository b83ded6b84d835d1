package vectorstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.CreateCollection("code-patterns", 3))
	return s
}

func TestUpsertAndScroll(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Upsert("code-patterns", Point{
		ID: "a", GroupID: "proj-1", ContentHash: "h1", Type: "implementation",
		Payload: map[string]any{"content": "hello"}, Vector: []float32{1, 0, 0}, EmbeddingStatus: "complete",
	}))

	points, err := s.Scroll("code-patterns", Filter{"group_id": "proj-1"}, 10, false)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "a", points[0].ID)
	require.Nil(t, points[0].Vector)
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := open(t)
	p := Point{ID: "a", GroupID: "g", ContentHash: "h1", Type: "implementation", Payload: map[string]any{}, Vector: []float32{1, 0, 0}, EmbeddingStatus: "complete"}
	require.NoError(t, s.Upsert("code-patterns", p))
	require.NoError(t, s.Upsert("code-patterns", p))

	points, err := s.Scroll("code-patterns", nil, 10, false)
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Upsert("code-patterns", Point{ID: "close", GroupID: "g", ContentHash: "h1", Type: "t", Payload: map[string]any{}, Vector: []float32{1, 0, 0}, EmbeddingStatus: "complete"}))
	require.NoError(t, s.Upsert("code-patterns", Point{ID: "far", GroupID: "g", ContentHash: "h2", Type: "t", Payload: map[string]any{}, Vector: []float32{0, 1, 0}, EmbeddingStatus: "complete"}))

	results, err := s.Search("code-patterns", []float32{1, 0, 0}, 5, 0.0, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "close", results[0].ID)
}

func TestSearchSkipsPendingEmbeddings(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Upsert("code-patterns", Point{ID: "pending", GroupID: "g", ContentHash: "h1", Type: "t", Payload: map[string]any{}, EmbeddingStatus: "pending"}))

	results, err := s.Search("code-patterns", []float32{1, 0, 0}, 5, 0.0, nil)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSetPayloadMerges(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Upsert("code-patterns", Point{ID: "a", GroupID: "g", ContentHash: "h1", Type: "t", Payload: map[string]any{"x": 1.0}, Vector: []float32{1, 0, 0}, EmbeddingStatus: "complete"}))
	require.NoError(t, s.SetPayload("code-patterns", "a", map[string]any{"y": 2.0}))

	points, err := s.Scroll("code-patterns", nil, 10, false)
	require.NoError(t, err)
	require.Equal(t, 1.0, points[0].Payload["x"])
	require.Equal(t, 2.0, points[0].Payload["y"])
}

func TestSetTypeUpdatesIndexedColumn(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Upsert("code-patterns", Point{ID: "a", GroupID: "g", ContentHash: "h1", Type: "implementation", Payload: map[string]any{}, Vector: []float32{1, 0, 0}, EmbeddingStatus: "complete"}))
	require.NoError(t, s.SetType("code-patterns", "a", "error_fix"))

	points, err := s.Scroll("code-patterns", Filter{"type": "error_fix"}, 10, false)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "a", points[0].ID)
}

func TestQuantizationRoundsVectorComponents(t *testing.T) {
	s := open(t)
	s.EnableQuantization("code-patterns", 0.99, true)
	require.NoError(t, s.Upsert("code-patterns", Point{ID: "a", GroupID: "g", ContentHash: "h1", Type: "t", Payload: map[string]any{}, Vector: []float32{0.501, 0.2, -0.3}, EmbeddingStatus: "complete"}))

	points, err := s.Scroll("code-patterns", nil, 10, true)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.NotEqual(t, float32(0.501), points[0].Vector[0])
}
