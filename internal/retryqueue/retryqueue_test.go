package retryqueue

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueAndReadAll(t *testing.T) {
	q := Open(filepath.Join(t.TempDir(), "retry.jsonl"))
	require.NoError(t, q.Enqueue(Entry{ID: "a", FailureReason: "store unavailable", MemoryData: json.RawMessage(`{"content":"x"}`)}, true))
	require.NoError(t, q.Enqueue(Entry{ID: "b", FailureReason: "embedding timeout"}, true))

	entries, err := q.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, defaultMaxRetries, entries[0].MaxRetries)
}

func TestDueExcludesFutureAndExhausted(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "ready", NextRetryAt: now.Add(-time.Minute), RetryCount: 1, MaxRetries: 5},
		{ID: "future", NextRetryAt: now.Add(time.Hour), RetryCount: 0, MaxRetries: 5},
		{ID: "exhausted", NextRetryAt: now.Add(-time.Minute), RetryCount: 5, MaxRetries: 5},
	}

	due := Due(entries, now, false, 0)
	require.Len(t, due, 1)
	assert.Equal(t, "ready", due[0].ID)

	forced := Due(entries, now, true, 0)
	assert.Len(t, forced, 2)
}

func TestDueRespectsLimit(t *testing.T) {
	now := time.Now()
	entries := []Entry{
		{ID: "a", NextRetryAt: now.Add(-time.Minute), MaxRetries: 5},
		{ID: "b", NextRetryAt: now.Add(-time.Minute), MaxRetries: 5},
	}
	due := Due(entries, now, false, 1)
	assert.Len(t, due, 1)
}

func TestLockConflictsWithSelfWhileHeld(t *testing.T) {
	q := Open(filepath.Join(t.TempDir(), "retry.jsonl"))
	release, err := q.Lock()
	require.NoError(t, err)
	defer release()

	_, err = q.Lock()
	assert.ErrorIs(t, err, ErrLockConflict)
}

func TestReplaceAllRewritesFile(t *testing.T) {
	q := Open(filepath.Join(t.TempDir(), "retry.jsonl"))
	require.NoError(t, q.Enqueue(Entry{ID: "a"}, true))
	require.NoError(t, q.ReplaceAll([]Entry{{ID: "b"}}))

	entries, err := q.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ID)
}

func TestBackoffDoubles(t *testing.T) {
	assert.Equal(t, 30*time.Second, BackoffFor(0))
	assert.Equal(t, 60*time.Second, BackoffFor(1))
	assert.Equal(t, 120*time.Second, BackoffFor(2))
}
