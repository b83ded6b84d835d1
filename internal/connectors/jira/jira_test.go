package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hiddenhistory/memctl/internal/classqueue"
	"github.com/hiddenhistory/memctl/internal/embedding"
	"github.com/hiddenhistory/memctl/internal/retryqueue"
	"github.com/hiddenhistory/memctl/internal/security"
	"github.com/hiddenhistory/memctl/internal/storage"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	vs, err := vectorstore.Open(filepath.Join(t.TempDir(), "v.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	cq, err := classqueue.Open(filepath.Join(t.TempDir(), "classify"))
	require.NoError(t, err)
	rq := retryqueue.Open(filepath.Join(t.TempDir(), "retry.jsonl"))

	embSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"vectors": [][]float32{{0.1, 0.2, 0.3}}})
	}))
	t.Cleanup(embSrv.Close)
	emb := embedding.New(embSrv.URL, 3)

	s := storage.New(vs, emb, cq, rq, security.DefaultOptions())
	require.NoError(t, s.Init(3))
	return s
}

func TestSyncStoresIssuesAndComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issues": []map[string]any{
				{"key": "PROJ-1", "fields": map[string]any{"summary": "login broken", "description": "oauth fails", "updated": "2026-07-29"}},
			},
		})
	})
	mux.HandleFunc("/rest/api/2/issue/PROJ-1/comment", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"comments": []map[string]any{
				{"id": "1001", "body": "confirmed, looking into it", "author": map[string]any{"displayName": "Dana"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := newTestStore(t)
	conn := New(Config{Host: srv.URL, Email: "bot@example.com", Token: "tok", Project: "PROJ", GroupID: "proj-1"}, store)

	require.NoError(t, conn.Sync(context.Background(), time.Now().Add(-24*time.Hour)))
}

func TestSyncPropagatesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := newTestStore(t)
	conn := New(Config{Host: srv.URL, Project: "PROJ"}, store)

	err := conn.Sync(context.Background(), time.Now())
	require.Error(t, err)
}
