package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiddenhistory/memctl/internal/classqueue"
	"github.com/hiddenhistory/memctl/internal/embedding"
	"github.com/hiddenhistory/memctl/internal/retryqueue"
	"github.com/hiddenhistory/memctl/internal/security"
	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

func newTestStore(t *testing.T, embedURL string) *Store {
	t.Helper()
	vs, err := vectorstore.Open(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	cq, err := classqueue.Open(filepath.Join(t.TempDir(), "classify"))
	require.NoError(t, err)

	rq := retryqueue.Open(filepath.Join(t.TempDir(), "retry.jsonl"))
	emb := embedding.New(embedURL, 3)

	s := New(vs, emb, cq, rq, security.DefaultOptions())
	require.NoError(t, s.Init(3))
	return s
}

func embedServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"vectors": [][]float32{{0.1, 0.2, 0.3}}})
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestStoreMemoryStoresAndDedups(t *testing.T) {
	s := newTestStore(t, embedServer(t))
	in := Input{
		Content: "we decided to use port 26350 for the internal bus", CWD: t.TempDir(),
		Type: types.TypeDecision, SourceHook: "user_prompt_capture", GroupID: "proj-1",
	}

	out, err := s.StoreMemory(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusStored, out.Status)
	require.Equal(t, types.EmbeddingComplete, out.EmbeddingStatus)

	dup, err := s.StoreMemory(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusDuplicate, dup.Status)
	require.Equal(t, out.MemoryID, dup.MemoryID)
}

func TestStoreMemoryBlocksHardSecret(t *testing.T) {
	s := newTestStore(t, embedServer(t))
	in := Input{
		Content: "token: ghp_" + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", CWD: t.TempDir(),
		Type: types.TypeImplementation, SourceHook: "post_tool_use", GroupID: "proj-1",
	}

	out, err := s.StoreMemory(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, out.Status)
}

func TestStoreMemoryRejectsUnknownType(t *testing.T) {
	s := newTestStore(t, embedServer(t))
	_, err := s.StoreMemory(context.Background(), Input{
		Content: "some content here", CWD: t.TempDir(), Type: "not_a_real_type",
		SourceHook: "user_prompt_capture", GroupID: "proj-1",
	})
	require.Error(t, err)
}

func TestStoreMemoryRejectsUnknownSourceHook(t *testing.T) {
	s := newTestStore(t, embedServer(t))
	_, err := s.StoreMemory(context.Background(), Input{
		Content: "some content here", CWD: t.TempDir(), Type: types.TypeImplementation,
		SourceHook: "totally_made_up", GroupID: "proj-1",
	})
	require.Error(t, err)
}

func TestStoreMemoryEnqueuesClassificationTask(t *testing.T) {
	s := newTestStore(t, embedServer(t))
	_, err := s.StoreMemory(context.Background(), Input{
		Content: "fixed a race condition in the worker pool shutdown path", CWD: t.TempDir(),
		Type: types.TypeErrorFix, SourceHook: "post_tool_use", GroupID: "proj-1",
	})
	require.NoError(t, err)

	claimed, err := s.classify.Dequeue(10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, "proj-1", claimed[0].GroupID)
}

func TestStoreMemoryBatchPreservesOrderAndBlocked(t *testing.T) {
	s := newTestStore(t, embedServer(t))
	inputs := []Input{
		{Content: "clean content one here", CWD: t.TempDir(), Type: types.TypeImplementation, SourceHook: "post_tool_use", GroupID: "proj-1"},
		{Content: "token: ghp_" + "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", CWD: t.TempDir(), Type: types.TypeImplementation, SourceHook: "post_tool_use", GroupID: "proj-1"},
	}
	outs, err := s.StoreMemoryBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	require.Equal(t, StatusStored, outs[0].Status)
	require.Equal(t, StatusBlocked, outs[1].Status)
}

func TestRehydrateUpsertsAndEnqueuesClassification(t *testing.T) {
	s := newTestStore(t, embedServer(t))
	payload := recordPayload(Input{
		Type: types.TypeDecision, SourceHook: "user_prompt_capture", GroupID: "proj-1",
	}, "we picked port 26350 after rehydration", "hash-1", "proj-1", mustRule(types.TypeDecision), types.EmbeddingPending)
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	err = s.Rehydrate(context.Background(), retryqueue.Entry{ID: "hash-1", MemoryData: data})
	require.NoError(t, err)

	pointID := types.PointID(types.Namespace, "hash-1")
	points, err := s.vectors.Scroll(string(types.CollectionDiscussions), nil, 10, true)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, pointID.String(), points[0].ID)
	require.Equal(t, string(types.EmbeddingComplete), points[0].EmbeddingStatus)

	claimed, err := s.classify.Dequeue(10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
}

func TestRehydrateRejectsUnknownType(t *testing.T) {
	s := newTestStore(t, embedServer(t))
	data, err := json.Marshal(map[string]any{"content": "x", "content_hash": "h", "group_id": "g", "type": "not-a-real-type"})
	require.NoError(t, err)

	err = s.Rehydrate(context.Background(), retryqueue.Entry{ID: "h", MemoryData: data})
	require.ErrorIs(t, err, ErrRehydrateUnknownType)
}
