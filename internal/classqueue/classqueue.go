// Package classqueue implements the classification queue from spec
// section 4.2 / 4.3: a directory of one JSON file per task, N writers
// (storage core) and one reader (the classifier worker), dequeued by
// rename-then-read-then-unlink so a crash mid-dequeue never loses a
// task silently — it is left renamed with a ".processing" suffix for
// inspection rather than deleted.
package classqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Task is one classification queue entry, spec section 4.2's field
// list verbatim.
type Task struct {
	PointID     string    `json:"point_id"`
	Collection  string    `json:"collection"`
	Content     string    `json:"content"` // already truncated to <=2000 chars by the caller
	CurrentType string    `json:"current_type"`
	GroupID     string    `json:"group_id"`
	SourceHook  string    `json:"source_hook"`
	CreatedAt   time.Time `json:"created_at"`
	SessionID   string    `json:"session_id,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
}

const (
	batchSize    = 10
	pollInterval = 5 * time.Second
)

// Queue is the on-disk directory-backed classification queue.
type Queue struct {
	dir string
}

// Open ensures dir exists and returns a Queue rooted there.
func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Queue{dir: dir}, nil
}

// BatchSize and PollInterval expose the worker's fixed concurrency
// parameters (spec section 4.3 / 4.9's "10-item batches, 5s polls").
func BatchSize() int              { return batchSize }
func PollInterval() time.Duration { return pollInterval }

// Enqueue writes task as a new file, named so that lexical directory
// ordering matches submission order (FIFO).
func (q *Queue) Enqueue(task Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	name := fmt.Sprintf("%020d-%s.json", task.CreatedAt.UnixNano(), uuid.NewString())
	path := filepath.Join(q.dir, name)

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Dequeue claims up to n pending tasks by renaming each candidate file
// to a ".processing" suffix before reading it, so a concurrent reader
// (there should only ever be one, but this is cheap insurance) never
// double-claims. Returns the tasks plus a commit function the caller
// invokes per-task once it has durably applied the result, which
// unlinks the claimed file; failing to call commit leaves the file on
// disk for inspection or replay.
func (q *Queue) Dequeue(n int) ([]ClaimedTask, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var claimed []ClaimedTask
	for _, name := range names {
		if len(claimed) >= n {
			break
		}
		src := filepath.Join(q.dir, name)
		dst := src + ".processing"
		if err := os.Rename(src, dst); err != nil {
			continue // already claimed by a concurrent reader, or vanished
		}
		data, err := os.ReadFile(dst)
		if err != nil {
			continue
		}
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			continue // left on disk as .processing for operator inspection
		}
		claimed = append(claimed, ClaimedTask{Task: t, path: dst})
	}
	return claimed, nil
}

// Stats reports the number of pending (not yet claimed) tasks and the
// age of the oldest one, for the `reclassify --stats` CLI report.
func (q *Queue) Stats() (pending int, oldest time.Duration, err error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return 0, 0, err
	}

	var oldestNanos int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		pending++
		info, err := e.Info()
		if err != nil {
			continue
		}
		if oldestNanos == 0 || info.ModTime().UnixNano() < oldestNanos {
			oldestNanos = info.ModTime().UnixNano()
		}
	}
	if oldestNanos > 0 {
		oldest = time.Since(time.Unix(0, oldestNanos))
	}
	return pending, oldest, nil
}

// Clear removes every pending (not yet claimed) task file. Files
// already claimed (".processing" suffix) are left untouched — they
// represent work a dequeue caller is actively applying.
func (q *Queue) Clear() (int, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(q.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// ClaimedTask pairs a dequeued Task with the on-disk handle needed to
// finish processing it.
type ClaimedTask struct {
	Task
	path string
}

// Commit removes the claimed file after the worker has durably applied
// the classification result.
func (c ClaimedTask) Commit() error {
	return os.Remove(c.path)
}
