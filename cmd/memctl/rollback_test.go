package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiddenhistory/memctl/internal/types"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

func TestRestoreCollectionRoundTrips(t *testing.T) {
	source := newTestVectorStore(t)
	require.NoError(t, source.Upsert(string(types.CollectionCodePatterns), vectorstore.Point{
		ID: "p1", GroupID: "proj-1", ContentHash: "h1", Type: "code_pattern",
		Payload: map[string]any{"content": "use a retry with jitter"},
		Vector:  []float32{0.1, 0.2, 0.3},
	}))
	dir := t.TempDir()
	entry, err := snapshotCollection(source, dir, types.CollectionCodePatterns)
	require.NoError(t, err)

	dest := newTestVectorStore(t)
	sigCh := make(chan os.Signal)
	n, err := restoreCollection(dest, dir, entry, sigCh)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	points, err := dest.Scroll(string(types.CollectionCodePatterns), nil, 10, false)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "p1", points[0].ID)
}

func TestRestoreCollectionDetectsChecksumMismatch(t *testing.T) {
	source := newTestVectorStore(t)
	require.NoError(t, source.Upsert(string(types.CollectionCodePatterns), vectorstore.Point{
		ID: "p1", GroupID: "proj-1", ContentHash: "h1", Type: "code_pattern",
		Payload: map[string]any{"content": "original"},
		Vector:  []float32{0.1, 0.2, 0.3},
	}))
	dir := t.TempDir()
	entry, err := snapshotCollection(source, dir, types.CollectionCodePatterns)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, entry.File), []byte("tampered\n"), 0o644))

	dest := newTestVectorStore(t)
	sigCh := make(chan os.Signal)
	_, err = restoreCollection(dest, dir, entry, sigCh)
	require.ErrorContains(t, err, "checksum mismatch")
}

func TestConfirmRollbackRespectsStdinAnswer(t *testing.T) {
	manifest := backupManifest{Collections: []backupManifestEntry{{Collection: "code-patterns", Count: 2}}}

	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStdin := os.Stdin
	os.Stdin = r
	t.Cleanup(func() { os.Stdin = origStdin })

	_, err = w.WriteString("y\n")
	require.NoError(t, err)
	w.Close()

	ok, err := confirmRollback(t.TempDir(), manifest)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConfirmRollbackDefaultsToNo(t *testing.T) {
	manifest := backupManifest{Collections: []backupManifestEntry{{Collection: "code-patterns", Count: 2}}}

	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStdin := os.Stdin
	os.Stdin = r
	t.Cleanup(func() { os.Stdin = origStdin })

	_, err = w.WriteString("\n")
	require.NoError(t, err)
	w.Close()

	ok, err := confirmRollback(t.TempDir(), manifest)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRestoreCollectionStopsOnSignal(t *testing.T) {
	source := newTestVectorStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, source.Upsert(string(types.CollectionCodePatterns), vectorstore.Point{
			ID: string(rune('a' + i)), GroupID: "proj-1", ContentHash: string(rune('a' + i)), Type: "code_pattern",
			Payload: map[string]any{"content": "record"},
			Vector:  []float32{0.1, 0.2, 0.3},
		}))
	}
	dir := t.TempDir()
	entry, err := snapshotCollection(source, dir, types.CollectionCodePatterns)
	require.NoError(t, err)

	dest := newTestVectorStore(t)
	sigCh := make(chan os.Signal, 1)
	sigCh <- os.Interrupt

	n, err := restoreCollection(dest, dir, entry, sigCh)
	require.Error(t, err)
	require.Equal(t, 0, n)
}
