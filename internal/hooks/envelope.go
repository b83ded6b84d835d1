// Package hooks implements the stdin-JSON event dispatch contract from
// spec section 4.4: one short-lived handler per canonical event, a
// <500ms wall-clock budget, and a hard rule that no hook ever
// propagates failure to the assistant. Gated envelope validation is
// grounded on the wire protocol spec section 6 names; the
// spawn-detached-worker idiom is grounded on the teacher's process
// model via internal/procutil (adapted from the teacher's
// settings-file hook *configuration* in cmd/ao/hooks.go, which this
// package does not replace — see cmd/memctl/hooks.go for that half).
package hooks

import (
	"encoding/json"
	"errors"
	"io"
)

// Envelope is the JSON object every hook reads from stdin (spec
// section 6's "Hook wire protocol"). Every field is optional; a hook
// uses only the subset relevant to its event.
type Envelope struct {
	SessionID      string          `json:"session_id"`
	TranscriptPath string          `json:"transcript_path"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
	ToolResponse   *ToolResponse   `json:"tool_response"`
	CWD            string          `json:"cwd"`
	Prompt         string          `json:"prompt"`
}

// ToolResponse is the subset of a tool's result hooks inspect.
type ToolResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

// ErrMissingRequiredField marks an envelope missing a field its event
// requires — spec section 4.4 step 1 says this means "exit 0", not an
// error surfaced to the assistant.
var ErrMissingRequiredField = errors.New("hooks: envelope missing required field")

// ParseEnvelope reads and decodes one JSON envelope. A malformed
// envelope is reported as an error; callers must treat ANY error from
// this function as "exit 0, log a warning, do nothing" per spec
// section 4.4 step 1 — never propagate it as a process failure.
func ParseEnvelope(r io.Reader) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(r)
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// RequireSessionID is the common "missing required field" check most
// event handlers need before doing any work.
func (e Envelope) RequireSessionID() error {
	if e.SessionID == "" {
		return ErrMissingRequiredField
	}
	return nil
}

// ToolInputString extracts a named string field from tool_input
// (e.g. "command" for Bash, "file_path" for Edit/Write), or "" if
// absent or not a string.
func (e Envelope) ToolInputString(field string) string {
	if len(e.ToolInput) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(e.ToolInput, &m); err != nil {
		return ""
	}
	v, _ := m[field].(string)
	return v
}
