package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	gh "github.com/google/go-github/v68/github"
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

func TestSyncPullRequestsStoresRecentOnly(t *testing.T) {
	now := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		prs := []map[string]any{
			{"number": 2, "title": "newer PR", "body": "fixes the bug", "html_url": "https://github.com/acme/widgets/pull/2",
				"updated_at": now.Format(time.RFC3339)},
			{"number": 1, "title": "older PR", "body": "stale", "html_url": "https://github.com/acme/widgets/pull/1",
				"updated_at": now.Add(-72 * time.Hour).Format(time.RFC3339)},
		}
		_ = json.NewEncoder(w).Encode(prs)
	})
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	})
	mux.HandleFunc("/repos/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	})
	mux.HandleFunc("/repos/acme/widgets/releases", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := gh.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	store := newTestStore(t)
	conn := NewWithClient(client, Config{Owner: "acme", Repo: "widgets", GroupID: "proj-1"}, store)

	require.NoError(t, conn.Sync(context.Background(), now.Add(-24*time.Hour)))
}
