package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

func newTestVectorStore(t *testing.T) *vectorstore.Store {
	t.Helper()
	store, err := vectorstore.Open(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.CreateCollection(string(types.CollectionCodePatterns), 3))
	return store
}

func TestSnapshotCollectionWritesManifestEntry(t *testing.T) {
	store := newTestVectorStore(t)
	require.NoError(t, store.Upsert(string(types.CollectionCodePatterns), vectorstore.Point{
		ID: "p1", GroupID: "proj-1", ContentHash: "h1", Type: "code_pattern",
		Payload: map[string]any{"content": "use a retry with jitter"},
		Vector:  []float32{0.1, 0.2, 0.3},
	}))
	require.NoError(t, store.Upsert(string(types.CollectionCodePatterns), vectorstore.Point{
		ID: "p2", GroupID: "proj-1", ContentHash: "h2", Type: "code_pattern",
		Payload: map[string]any{"content": "wrap errors with context"},
		Vector:  []float32{0.4, 0.5, 0.6},
	}))

	dir := t.TempDir()
	entry, err := snapshotCollection(store, dir, types.CollectionCodePatterns)
	require.NoError(t, err)
	require.Equal(t, string(types.CollectionCodePatterns), entry.Collection)
	require.Equal(t, 2, entry.Count)
	require.NotEmpty(t, entry.SHA256)

	data, err := os.ReadFile(filepath.Join(dir, entry.File))
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestSnapshotEmptyCollectionProducesZeroCount(t *testing.T) {
	store := newTestVectorStore(t)
	dir := t.TempDir()

	entry, err := snapshotCollection(store, dir, types.CollectionCodePatterns)
	require.NoError(t, err)
	require.Equal(t, 0, entry.Count)
}

func TestCopyTraceLogsSkipsMissingDirectory(t *testing.T) {
	err := copyTraceLogs(t.TempDir(), t.TempDir())
	require.NoError(t, err)
}

func TestCopyTraceLogsCopiesFiles(t *testing.T) {
	installDir := t.TempDir()
	tracesDir := filepath.Join(installDir, "traces")
	require.NoError(t, os.MkdirAll(tracesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tracesDir, "session-1.jsonl"), []byte(`{"event":"span"}`), 0o644))

	dest := t.TempDir()
	require.NoError(t, copyTraceLogs(installDir, dest))

	data, err := os.ReadFile(filepath.Join(dest, "traces", "session-1.jsonl"))
	require.NoError(t, err)
	require.Equal(t, `{"event":"span"}`, string(data))
}
