package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Buffer is the disk-backed span buffer directory workers write to
// and the flush daemon drains, following classqueue's one-file-per-
// entry, write-tmp-then-rename FIFO convention.
type Buffer struct {
	dir string
}

// NewBuffer ensures dir exists and returns a Buffer rooted there.
func NewBuffer(dir string) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Buffer{dir: dir}, nil
}

// Dir returns the buffer's root directory.
func (b *Buffer) Dir() string { return b.dir }

// Write persists a completed span as its own file, named so that
// lexical ordering matches emission order; the trace/parent
// relationship lives in the JSON body, not the filename, so the flush
// daemon can reconstruct span trees after eviction reorders files.
func (b *Buffer) Write(s *Span) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%020d-%s.json", s.EndTime.UnixNano(), s.SpanID)
	path := filepath.Join(b.dir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// pendingFile is one buffered span file discovered on disk.
type pendingFile struct {
	path string
	size int64
}

// Pending lists buffered span files in emission order (oldest first).
func (b *Buffer) Pending() ([]pendingFile, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var files []pendingFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, pendingFile{path: filepath.Join(b.dir, e.Name()), size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

// ReadSpan loads one buffered span file. It leaves the file on disk;
// the flusher removes it after processing.
func ReadSpan(path string) (*Span, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Span
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// TotalBytes sums the size of every buffered span file still on disk.
func (b *Buffer) TotalBytes() (int64, error) {
	files, err := b.Pending()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	return total, nil
}

// EvictOldest removes files from the front of the (oldest-first)
// pending list until total buffered bytes is at or under maxBytes.
// Returns the number of files evicted — spec section 9.6's "trace
// buffer eviction policy (oldest first)".
func (b *Buffer) EvictOldest(maxBytes int64) (int, error) {
	files, err := b.Pending()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, f := range files {
		total += f.size
	}

	evicted := 0
	for _, f := range files {
		if total <= maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			continue
		}
		total -= f.size
		evicted++
	}
	return evicted, nil
}
