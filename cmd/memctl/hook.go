package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/hooks"
	"github.com/hiddenhistory/memctl/internal/trace"
	"github.com/hiddenhistory/memctl/internal/triggers"
)

// readSideHooks names the hook runtime methods that perform bounded
// retrieval and print to stdout, per spec section 4.4's 500ms-budget
// hooks. Everything else is a write-side hook: gate, build a payload,
// spawn a detached worker, exit immediately.
var readSideHooks = map[string]bool{
	"session_start":           true,
	"context_injection_tier2": true,
	"error_context_retrieval": true,
	"first_edit_trigger":      true,
	"new_file_trigger":        true,
	"read_context_trigger":    true,
}

var hookCmd = &cobra.Command{
	Use:   "hook <name>",
	Short: "Run one hook handler, reading its JSON envelope from stdin",
	Long: `Run a single Claude Code hook handler. The handler's JSON envelope
(session_id, cwd, tool_name, tool_input, tool_response, prompt,
transcript_path) is read from stdin; read-side hooks print a result to
stdout, write-side hooks spawn a detached worker and return
immediately.

Hook names: session_start, user_prompt_capture, context_injection_tier2,
post_tool_capture, agent_response_capture, error_pattern_capture,
error_context_retrieval, first_edit_trigger, new_file_trigger,
read_context_trigger, pre_compact_save.`,
	Args: cobra.ExactArgs(1),
	RunE: runHook,
}

// hookWorkerCmd is the detached write-side worker, never invoked by a
// person directly — hooks.Spawn execs this subcommand and pipes it a
// WorkerPayload on stdin.
var hookWorkerCmd = &cobra.Command{
	Use:    "hook-worker",
	Hidden: true,
	RunE:   runHookWorker,
}

// sessionTracker is process-local: each hook invocation is a separate
// short-lived process, so first-edit-in-session state does not
// survive across invocations; the edited-path set is not persisted
// to disk.
var sessionTracker = triggers.NewSessionEditTracker()

func init() {
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(hookWorkerCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	name := args[0]

	env, err := hooks.ParseEnvelope(os.Stdin)
	if err != nil {
		return nil // malformed envelope: exit 0, never fail the assistant
	}

	deadline := 500 * time.Millisecond
	if !readSideHooks[name] {
		deadline = 50 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), deadline)
	defer cancel()

	traceID := trace.TraceIDFromEnv()
	if traceID == "" {
		traceID = trace.NewTraceID()
	}

	if readSideHooks[name] {
		return runReadSideHook(ctx, name, env)
	}
	return runWriteSideHook(name, env, traceID)
}

func runReadSideHook(ctx context.Context, name string, env hooks.Envelope) error {
	c, err := loadComponents()
	if err != nil {
		// Hooks never fail the assistant; a broken component chain
		// degrades to no context rather than a nonzero exit.
		return nil
	}
	defer c.Close()

	rt := &hooks.Runtime{
		Store:    c.store,
		Search:   c.search,
		Engine:   c.engine,
		Tracker:  sessionTracker,
		StateDir: os.TempDir(),
	}

	var out hooks.Output
	switch name {
	case "session_start":
		out = rt.SessionStart(ctx, env)
	case "context_injection_tier2":
		out = rt.ContextInjectionTier2(ctx, env)
	case "error_context_retrieval":
		out = rt.ErrorContextRetrieval(ctx, env)
	case "first_edit_trigger":
		out = rt.FirstEditTrigger(ctx, env)
	case "new_file_trigger":
		out = rt.NewFileTrigger(ctx, env)
	case "read_context_trigger":
		out = rt.ReadContextTrigger(ctx, env)
	default:
		return newUsageError("unknown hook %q", name)
	}

	return json.NewEncoder(os.Stdout).Encode(out)
}

func runWriteSideHook(name string, env hooks.Envelope, traceID string) error {
	if name == "agent_response_capture" {
		payload, ok := hooks.ReadTranscriptPayload(env, readLastAssistantMessage)
		if !ok {
			return nil
		}
		payload.TraceID = traceID
		return spawnWorker(payload, traceID)
	}

	payload, ok := hooks.BuildPayload(name, env)
	if !ok {
		return nil
	}
	payload.TraceID = traceID
	return spawnWorker(payload, traceID)
}

func spawnWorker(payload hooks.WorkerPayload, traceID string) error {
	self, err := os.Executable()
	if err != nil {
		return nil // degrade silently; spec section 4.4 step 5
	}
	if err := hooks.Spawn(self, []string{"hook-worker"}, payload, traceID); err != nil {
		fmt.Fprintln(os.Stderr, "memctl: hook worker spawn failed:", err)
	}
	return nil
}

func runHookWorker(cmd *cobra.Command, args []string) error {
	var payload hooks.WorkerPayload
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil {
		return nil
	}

	c, err := loadComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	rt := &hooks.Runtime{Store: c.store, StateDir: os.TempDir()}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err = rt.RunWorker(ctx, payload)
	return err
}

// readLastAssistantMessage scans a Claude Code session transcript
// (JSONL, one event per line) backwards for the most recent assistant
// message and returns its text content.
func readLastAssistantMessage(transcriptPath string) (string, error) {
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return "", err
	}

	var lastText string
	lines := splitLines(data)
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if len(line) == 0 {
			continue
		}
		var event struct {
			Type    string `json:"type"`
			Message struct {
				Role    string `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if event.Message.Role != "assistant" {
			continue
		}
		if text := extractTextContent(event.Message.Content); text != "" {
			lastText = text
			break
		}
	}
	if lastText == "" {
		return "", fmt.Errorf("no assistant message found in %s", filepath.Base(transcriptPath))
	}
	return lastText, nil
}

func extractTextContent(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			return b.Text
		}
	}
	return ""
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
