// Package triggers implements the pure, I/O-free detector functions
// from spec section 4.5: error-signal and decision-keyword detection,
// new-file/first-edit checks, and shell-command file-path extraction.
// Grounded verbatim on original_source's hooks_common.py keyword lists
// and truncation length, translated into idiomatic Go detector
// functions rather than the original's module-level dict dispatch.
package triggers

import (
	"os"
	"regexp"
	"strings"
	"sync"
)

const errorSignalMaxLen = 200

var errorSignalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bError\b`),
	regexp.MustCompile(`Exception`),
	regexp.MustCompile(`Traceback`),
	regexp.MustCompile(`\bFAILED:`),
	regexp.MustCompile(`\bpanic:`),
	regexp.MustCompile(`\bbug\b`),
}

// DetectErrorSignal returns the enclosing line of the first matched
// error-like pattern, truncated to 200 chars, or "" if nothing
// matches. A traceback is reduced to its final exception line, the
// part that actually names the failure.
func DetectErrorSignal(text string) string {
	lines := strings.Split(text, "\n")

	if idx := lastTracebackLine(lines); idx >= 0 {
		return truncateSignal(lines[idx])
	}

	for _, line := range lines {
		for _, p := range errorSignalPatterns {
			if p.MatchString(line) {
				return truncateSignal(line)
			}
		}
	}
	return ""
}

func lastTracebackLine(lines []string) int {
	sawTraceback := false
	last := -1
	for i, line := range lines {
		if strings.Contains(line, "Traceback") {
			sawTraceback = true
			continue
		}
		if sawTraceback && strings.Contains(line, ":") && !strings.HasPrefix(strings.TrimSpace(line), "File ") {
			last = i
		}
	}
	return last
}

func truncateSignal(line string) string {
	line = strings.TrimSpace(line)
	if len(line) > errorSignalMaxLen {
		return line[:errorSignalMaxLen]
	}
	return line
}

var decisionKeywordPattern = regexp.MustCompile(`(?i)\b(?:why did|why do) we\b|\b(?:what was|what did) we decide\b|\bremember (?:when|the decision)\b`)

// DetectDecisionKeywords returns the residual topic (trailing "?"
// stripped) when prompt asks about a past decision, or "" otherwise.
func DetectDecisionKeywords(prompt string) string {
	loc := decisionKeywordPattern.FindStringIndex(prompt)
	if loc == nil {
		return ""
	}
	rest := strings.TrimSpace(prompt[loc[1]:])
	rest = strings.TrimSuffix(rest, "?")
	return strings.TrimSpace(rest)
}

// IsNewFile reports whether path does not yet exist on disk.
func IsNewFile(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

const maxTrackedSessions = 500

// SessionEditTracker is the thread-safe, capacity-bounded
// session-id → edited-paths tracker spec section 4.5 requires: first
// edit of a path in a session returns true, later edits of the same
// path in the same session return false. Tracking is strictly
// per-session; the total number of tracked sessions never exceeds its cap.
type SessionEditTracker struct {
	mu       sync.Mutex
	sessions map[string]map[string]bool
	order    []string // insertion order, for FIFO eviction at cap
}

// NewSessionEditTracker returns an empty tracker.
func NewSessionEditTracker() *SessionEditTracker {
	return &SessionEditTracker{sessions: make(map[string]map[string]bool)}
}

// IsFirstEditInSession records path against sessionID and reports
// whether this is the first time that pair has been seen.
func (t *SessionEditTracker) IsFirstEditInSession(sessionID, path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	edited, ok := t.sessions[sessionID]
	if !ok {
		if len(t.sessions) >= maxTrackedSessions {
			t.evictOldestLocked()
		}
		edited = make(map[string]bool)
		t.sessions[sessionID] = edited
		t.order = append(t.order, sessionID)
	}

	if edited[path] {
		return false
	}
	edited[path] = true
	return true
}

func (t *SessionEditTracker) evictOldestLocked() {
	if len(t.order) == 0 {
		return
	}
	oldest := t.order[0]
	t.order = t.order[1:]
	delete(t.sessions, oldest)
}

var knownLanguageSuffixes = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".rs": true, ".java": true, ".rb": true, ".c": true, ".cpp": true, ".h": true,
	".hpp": true, ".cs": true, ".sh": true, ".yaml": true, ".yml": true, ".json": true,
	".md": true, ".sql": true, ".toml": true,
}

// ExtractFilePaths splits a shell command into tokens, drops flags and
// quoting, and keeps tokens that look like a file reference (contain
// "." or "/" and carry a recognized language suffix).
func ExtractFilePaths(command string) []string {
	var paths []string
	for _, tok := range strings.Fields(command) {
		tok = strings.Trim(tok, `"'`)
		if strings.HasPrefix(tok, "-") {
			continue
		}
		if !strings.ContainsAny(tok, "./") {
			continue
		}
		ext := extOf(tok)
		if knownLanguageSuffixes[ext] {
			paths = append(paths, tok)
		}
	}
	return paths
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}
