// Package vectorstore implements the adapter spec section 6 describes
// at design level: create collection, upsert, scroll-with-filter, ANN
// search, set_payload, update_vectors, create_payload_index, and
// quantization enable. It is backed by modernc.org/sqlite (pure Go, no
// cgo) with vectors serialized as float32 blobs and brute-force cosine
// search — see DESIGN.md for why this codebase does not depend on
// sqlite-vec's cgo bindings.
package vectorstore

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Point is one record as stored in the vector store: payload plus
// vector, keyed by the deterministic point id.
type Point struct {
	ID              string
	GroupID         string
	ContentHash     string
	Type            string
	Payload         map[string]any
	Vector          []float32
	EmbeddingStatus string
}

// ScoredPoint is a Point with its similarity score from an ANN query.
type ScoredPoint struct {
	Point
	Score float64
}

// Filter is a conjunction ("must") of equality conditions, matching the
// compound-filter shape spec section 6 names.
type Filter map[string]string

// Store is the adapter. One Store wraps one sqlite database file; each
// spec collection (code-patterns, conventions, discussions) becomes its
// own table.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	quant map[string]bool
}

// Open opens (creating if absent) the sqlite-backed vector store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer is simplest and correct here.
	return &Store{db: db, quant: map[string]bool{}}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func tableName(collection string) string {
	return "collection_" + strings.ReplaceAll(collection, "-", "_")
}

// CreateCollection creates the backing table (with a fixed cosine
// distance convention and a payload index on group_id/content_hash/type)
// if it does not already exist. dimension is accepted but neither
// recorded nor enforced.
func (s *Store) CreateCollection(collection string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := tableName(collection)
	_, err := s.db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	group_id TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	type TEXT NOT NULL,
	payload TEXT NOT NULL,
	vector BLOB,
	embedding_status TEXT NOT NULL,
	created_at TEXT NOT NULL
)`, t))
	if err != nil {
		return err
	}
	return s.CreatePayloadIndex(collection, "group_id", "content_hash", "type")
}

// CreatePayloadIndex creates a real SQL index over the given payload
// fields — this is the concrete analog of spec section 6's
// create_payload_index / tenant-flag requirement for per-tenant
// co-location.
func (s *Store) CreatePayloadIndex(collection string, fields ...string) error {
	t := tableName(collection)
	idxName := fmt.Sprintf("idx_%s_%s", t, strings.Join(fields, "_"))
	cols := strings.Join(fields, ", ")
	_, err := s.db.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, idxName, t, cols))
	return err
}

// EnableQuantization models scalar (int8) quantization: subsequent
// Upsert calls for this collection round each vector component to an
// 8-bit-equivalent grid before storing. quantile and alwaysRAM are
// accepted for interface fidelity with spec section 6 but have no
// further effect in a single-process sqlite-backed store.
func (s *Store) EnableQuantization(collection string, quantile float64, alwaysRAM bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quant[collection] = true
}

// Upsert inserts or replaces a point by id, idempotent on repeated
// calls with the same id (spec section 3's deterministic-id guarantee).
func (s *Store) Upsert(collection string, p Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return err
	}
	vecBlob := encodeVector(s.quantizeIfEnabledLocked(collection, p.Vector))

	t := tableName(collection)
	_, err = s.db.Exec(fmt.Sprintf(`
INSERT INTO %s (id, group_id, content_hash, type, payload, vector, embedding_status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM %s WHERE id = ?), datetime('now')))
ON CONFLICT(id) DO UPDATE SET
	group_id=excluded.group_id, content_hash=excluded.content_hash, type=excluded.type,
	payload=excluded.payload, vector=excluded.vector, embedding_status=excluded.embedding_status
`, t, t), p.ID, p.GroupID, p.ContentHash, p.Type, string(payload), vecBlob, p.EmbeddingStatus, p.ID)
	return err
}

// quantizeIfEnabledLocked assumes s.mu is already held for writing.
func (s *Store) quantizeIfEnabledLocked(collection string, vec []float32) []float32 {
	if !s.quant[collection] || vec == nil {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		q := math.Round(float64(v)*127) / 127
		out[i] = float32(q)
	}
	return out
}

// SetPayload merges updates into the existing payload for id, without
// touching the vector — the classifier worker's write-back path (spec
// section 4.3) and the backfill worker's status flip both use this.
func (s *Store) SetPayload(collection, id string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := tableName(collection)
	row := s.db.QueryRow(fmt.Sprintf(`SELECT payload FROM %s WHERE id = ?`, t), id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return err
	}
	for k, v := range updates {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf(`UPDATE %s SET payload = ? WHERE id = ?`, t), string(data), id)
	return err
}

// SetType updates the indexed type column for id — distinct from
// SetPayload because `type` is a real column (it backs Scroll's
// dedup/routing filters), not just a payload field. The classifier's
// write-back path (spec section 4.3) must update both: this column so
// future filters see the corrected type, and the payload's mirrored
// "type" field for callers that only read payload.
func (s *Store) SetType(collection, id, newType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := tableName(collection)
	_, err := s.db.Exec(fmt.Sprintf(`UPDATE %s SET type = ? WHERE id = ?`, t), newType, id)
	return err
}

// UpdateVectors replaces the vector for id (and only the vector,
// leaving payload untouched except for whatever the caller also passes
// via SetPayload) — the backfill worker's "direct-vector" primitive
// from spec section 4.2, distinct from a full re-upsert.
func (s *Store) UpdateVectors(collection, id string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := tableName(collection)
	blob := encodeVector(s.quantizeIfEnabledLocked(collection, vector))
	_, err := s.db.Exec(fmt.Sprintf(`UPDATE %s SET vector = ? WHERE id = ?`, t), blob, id)
	return err
}

// Scroll returns points matching filter (an AND of equality
// conditions), without vectors by default — "payload but without
// vectors" is the hot-path correctness bit spec section 6 calls out —
// ordered by rowid (insertion order), capped at limit.
func (s *Store) Scroll(collection string, filter Filter, limit int, withVectors bool) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := tableName(collection)
	where, args := buildWhere(filter)
	cols := "id, group_id, content_hash, type, payload, embedding_status"
	if withVectors {
		cols += ", vector"
	}
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY rowid LIMIT ?`, cols, t, where)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		p, vecBlob, err := scanPoint(rows, withVectors)
		if err != nil {
			return nil, err
		}
		if withVectors {
			p.Vector = decodeVector(vecBlob)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of points in collection matching filter,
// for status/health reporting where full rows are unnecessary.
func (s *Store) Count(collection string, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := tableName(collection)
	where, args := buildWhere(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, t, where)

	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Search performs brute-force cosine-similarity ANN search against
// query, restricted by filter, returning up to limit results scoring at
// or above threshold, descending by score.
func (s *Store) Search(collection string, query []float32, limit int, threshold float64, filter Filter) ([]ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := tableName(collection)
	where, args := buildWhere(filter)
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT id, group_id, content_hash, type, payload, embedding_status, vector FROM %s %s`, t, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []ScoredPoint
	for rows.Next() {
		p, vecBlob, err := scanPoint(rows, true)
		if err != nil {
			return nil, err
		}
		vec := decodeVector(vecBlob)
		if len(vec) == 0 {
			continue // pending embedding, not yet searchable
		}
		score := cosineSimilarity(query, vec)
		if score < threshold {
			continue
		}
		p.Vector = nil
		candidates = append(candidates, ScoredPoint{Point: p, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func buildWhere(filter Filter) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conds []string
	var args []any
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("%s = ?", k))
		args = append(args, filter[k])
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func scanPoint(rows *sql.Rows, withVectors bool) (Point, []byte, error) {
	var p Point
	var payloadRaw string
	var vecBlob []byte

	var err error
	if withVectors {
		err = rows.Scan(&p.ID, &p.GroupID, &p.ContentHash, &p.Type, &payloadRaw, &p.EmbeddingStatus, &vecBlob)
	} else {
		err = rows.Scan(&p.ID, &p.GroupID, &p.ContentHash, &p.Type, &payloadRaw, &p.EmbeddingStatus)
	}
	if err != nil {
		return Point{}, nil, err
	}
	if err := json.Unmarshal([]byte(payloadRaw), &p.Payload); err != nil {
		return Point{}, nil, err
	}
	return p, vecBlob, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
