// Package injection implements the progressive context-injection
// engine from spec section 4.9: Tier-1 session bootstrap and Tier-2
// per-turn retrieval under an adaptive token budget. Session state
// persistence is grounded on the teacher's
// internal/context/budget.go (BudgetTracker.Save/Load by session id,
// one JSON file per session, 0600 perms) — adapted from a
// context-window tracker into the {injected_point_ids,
// last_query_embedding, topic_drift, turn_count,
// total_tokens_injected} shape spec section 3 and 6 require.
package injection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State is the per-session injection state spec section 4.9's "Session
// state lifecycle" names, persisted as one JSON file per session.
type State struct {
	SessionID           string    `json:"session_id"`
	InjectedPointIDs    []string  `json:"injected_point_ids"`
	LastQueryEmbedding  []float32 `json:"last_query_embedding,omitempty"`
	TopicDrift          float64   `json:"topic_drift"`
	TurnCount           int       `json:"turn_count"`
	TotalTokensInjected int       `json:"total_tokens_injected"`
}

// defaultTopicDrift is the neutral drift value for a session's first turn.
const defaultTopicDrift = 0.5

// NewState returns a fresh state for sessionID, neutral drift, no
// injected ids yet.
func NewState(sessionID string) *State {
	return &State{SessionID: sessionID, TopicDrift: defaultTopicDrift}
}

func statePath(baseDir, sessionID string) string {
	return filepath.Join(baseDir, fmt.Sprintf("ai-memory-%s-injection-state.json", sessionID))
}

// Load reads a session's state from baseDir (typically os.TempDir()).
// A missing or corrupt file returns a fresh State rather than an
// error — spec section 4.9's "corrupt file → fresh state."
func Load(baseDir, sessionID string) *State {
	data, err := os.ReadFile(statePath(baseDir, sessionID))
	if err != nil {
		return NewState(sessionID)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return NewState(sessionID)
	}
	return &s
}

// Save persists s to baseDir.
func (s *State) Save(baseDir string) error {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(statePath(baseDir, s.SessionID), data, 0o600)
}

// ResetAfterCompact clears injected_point_ids but preserves
// last_query_embedding and topic_drift so drift accounting spans
// compactions (spec section 4.9).
func (s *State) ResetAfterCompact() {
	s.InjectedPointIDs = nil
}

// HasInjected reports whether pointID was already surfaced this session.
func (s *State) HasInjected(pointID string) bool {
	for _, id := range s.InjectedPointIDs {
		if id == pointID {
			return true
		}
	}
	return false
}
