package classqueue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueCommit(t *testing.T) {
	q, err := Open(filepath.Join(t.TempDir(), "classify"))
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(Task{PointID: "p1", Collection: "code-patterns", Content: "x", CurrentType: "implementation"}))
	require.NoError(t, q.Enqueue(Task{PointID: "p2", Collection: "conventions", Content: "y", CurrentType: "rule"}))

	claimed, err := q.Dequeue(10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "p1", claimed[0].PointID)
	assert.Equal(t, "p2", claimed[1].PointID)

	require.NoError(t, claimed[0].Commit())

	remaining, err := q.Dequeue(10)
	require.NoError(t, err)
	assert.Empty(t, remaining) // claimed[1] is still ".processing", not re-claimable
}

func TestDequeueRespectsBatchLimit(t *testing.T) {
	q, err := Open(filepath.Join(t.TempDir(), "classify"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Task{PointID: "p", Content: "x"}))
	}

	claimed, err := q.Dequeue(3)
	require.NoError(t, err)
	assert.Len(t, claimed, 3)
}

func TestBatchSizeAndPollIntervalMatchWorkerContract(t *testing.T) {
	assert.Equal(t, 10, BatchSize())
	assert.Equal(t, pollInterval, PollInterval())
}

func TestStatsCountsPendingOnly(t *testing.T) {
	q, err := Open(filepath.Join(t.TempDir(), "classify"))
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(Task{PointID: "p1", Content: "x"}))
	require.NoError(t, q.Enqueue(Task{PointID: "p2", Content: "y"}))

	claimed, err := q.Dequeue(1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	pending, _, err := q.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "claimed .processing file must not count as pending")
}

func TestClearRemovesPendingOnly(t *testing.T) {
	q, err := Open(filepath.Join(t.TempDir(), "classify"))
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(Task{PointID: "p1", Content: "x"}))
	require.NoError(t, q.Enqueue(Task{PointID: "p2", Content: "y"}))

	claimed, err := q.Dequeue(1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	removed, err := q.Clear()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	pending, _, err := q.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}
