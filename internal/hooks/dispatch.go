package hooks

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hiddenhistory/memctl/internal/groupid"
	"github.com/hiddenhistory/memctl/internal/injection"
	"github.com/hiddenhistory/memctl/internal/observability/logging"
	"github.com/hiddenhistory/memctl/internal/procutil"
	"github.com/hiddenhistory/memctl/internal/retrieval"
	"github.com/hiddenhistory/memctl/internal/storage"
	"github.com/hiddenhistory/memctl/internal/triggers"
	"github.com/hiddenhistory/memctl/internal/types"
)

// Output is the documented JSON envelope read-side hooks may emit
// (spec section 6): {"hookSpecificOutput": {"hookEventName", "additionalContext"}}.
type Output struct {
	HookSpecificOutput HookSpecificOutput `json:"hookSpecificOutput"`
}

// HookSpecificOutput is the inner payload of Output.
type HookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

func emitEnvelope(event, block string) Output {
	return Output{HookSpecificOutput: HookSpecificOutput{HookEventName: event, AdditionalContext: block}}
}

// Runtime wires the hook handlers to the already-open components
// they need. A single instance is built once per process and shared
// by both read-side and write-side dispatch.
type Runtime struct {
	Store    *storage.Store
	Search   *retrieval.Search
	Engine   *injection.Engine
	Tracker  *triggers.SessionEditTracker
	StateDir string // base dir for injection session state, typically os.TempDir()
}

func (rt *Runtime) logger() *zap.Logger { return logging.Get(logging.CategoryHooks) }

func (rt *Runtime) resolveGroup(cwd string) string {
	gid, err := groupid.Resolve("", cwd)
	if err != nil {
		return "default"
	}
	return gid
}

// SessionStart implements the Tier-1 bootstrap read-side hook.
func (rt *Runtime) SessionStart(ctx context.Context, env Envelope) Output {
	project := rt.resolveGroup(env.CWD)
	block, err := rt.Engine.Bootstrap(ctx, project, "")
	if err != nil {
		rt.logger().Warn("session_start bootstrap failed", zap.Error(err))
		return emitEnvelope("SessionStart", "")
	}
	return emitEnvelope("SessionStart", block)
}

// ContextInjectionTier2 implements the per-turn retrieval hook.
func (rt *Runtime) ContextInjectionTier2(ctx context.Context, env Envelope) Output {
	if env.Prompt == "" {
		return emitEnvelope("UserPromptSubmit", "")
	}
	project := rt.resolveGroup(env.CWD)
	st := injection.Load(rt.StateDir, env.SessionID)

	decisionTopic := triggers.DetectDecisionKeywords(env.Prompt)
	intent := classifyIntent(env.Prompt)

	result, err := rt.Engine.Tier2(ctx, env.Prompt, project, st, decisionTopic, nil, intent)
	if err != nil {
		rt.logger().Warn("tier2 injection failed", zap.Error(err))
		return emitEnvelope("UserPromptSubmit", "")
	}

	if err := st.Save(rt.StateDir); err != nil {
		rt.logger().Warn("failed to persist injection state", zap.Error(err))
	}
	if err := rt.Engine.Audit(env.SessionID, project, result); err != nil {
		rt.logger().Warn("failed to write injection audit event", zap.Error(err))
	}
	return emitEnvelope("UserPromptSubmit", result.Block)
}

// classifyIntent is a cheap heuristic over the prompt's leading words,
// feeding route_collections' explicit-intent rule (spec section 4.6).
func classifyIntent(prompt string) string {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	switch {
	case strings.HasPrefix(lower, "how"):
		return "how"
	case strings.HasPrefix(lower, "what"):
		return "what"
	case strings.HasPrefix(lower, "why"):
		return "why"
	default:
		return ""
	}
}

// ErrorContextRetrieval retrieves prior fixes when an error-like
// signal is present in a tool response.
func (rt *Runtime) ErrorContextRetrieval(ctx context.Context, env Envelope) Output {
	text := ""
	if env.ToolResponse != nil {
		text = env.ToolResponse.Stdout + "\n" + env.ToolResponse.Stderr
	}
	signal := triggers.DetectErrorSignal(text)
	if signal == "" {
		return emitEnvelope("PostToolUse", "")
	}

	project := rt.resolveGroup(env.CWD)
	results, err := rt.Search.Run(ctx, retrieval.Query{
		Text: signal, Collection: types.CollectionCodePatterns, GroupID: project,
		MemoryType: string(types.TypeErrorPattern), Limit: 5, ScoreThreshold: 0,
	})
	if err != nil || len(results) == 0 {
		return emitEnvelope("PostToolUse", "")
	}
	return emitEnvelope("PostToolUse", formatResults(results))
}

// FirstEditTrigger retrieves file-specific patterns the first time a
// session edits a given path.
func (rt *Runtime) FirstEditTrigger(ctx context.Context, env Envelope) Output {
	path := env.ToolInputString("file_path")
	if path == "" || !rt.Tracker.IsFirstEditInSession(env.SessionID, path) {
		return emitEnvelope("PreToolUse", "")
	}
	project := rt.resolveGroup(env.CWD)
	results, err := rt.Search.Run(ctx, retrieval.Query{
		Text: path, Collection: types.CollectionCodePatterns, GroupID: project,
		Limit: 5, ScoreThreshold: 0,
	})
	if err != nil || len(results) == 0 {
		return emitEnvelope("PreToolUse", "")
	}
	return emitEnvelope("PreToolUse", formatResults(results))
}

// NewFileTrigger retrieves naming/structure conventions when a Write
// targets a path that does not yet exist.
func (rt *Runtime) NewFileTrigger(ctx context.Context, env Envelope) Output {
	path := env.ToolInputString("file_path")
	if path == "" || !triggers.IsNewFile(path) {
		return emitEnvelope("PreToolUse", "")
	}
	results, err := rt.Search.Run(ctx, retrieval.Query{
		Text: "naming and structure conventions for " + path, Collection: types.CollectionConventions,
		Limit: 5, ScoreThreshold: 0,
	})
	if err != nil || len(results) == 0 {
		return emitEnvelope("PreToolUse", "")
	}
	return emitEnvelope("PreToolUse", formatResults(results))
}

// ReadContextTrigger retrieves conventions relevant to a file a Read
// tool call just loaded.
func (rt *Runtime) ReadContextTrigger(ctx context.Context, env Envelope) Output {
	path := env.ToolInputString("file_path")
	if path == "" {
		return emitEnvelope("PostToolUse", "")
	}
	results, err := rt.Search.Run(ctx, retrieval.Query{
		Text: "conventions for " + path, Collection: types.CollectionConventions,
		Limit: 3, ScoreThreshold: 0,
	})
	if err != nil || len(results) == 0 {
		return emitEnvelope("PostToolUse", "")
	}
	return emitEnvelope("PostToolUse", formatResults(results))
}

func formatResults(results []retrieval.Result) string {
	var b strings.Builder
	b.WriteString("<retrieved_context>\n")
	for _, r := range results {
		b.WriteString("[" + r.Type + "] " + r.Content + "\n")
	}
	b.WriteString("</retrieved_context>")
	return b.String()
}

// WorkerPayload is what a write-side hook pipes to its detached
// worker's stdin: everything the worker needs to build a storage.Input
// without re-parsing the original envelope (spec section 4.4 step 3).
type WorkerPayload struct {
	Event      string `json:"event"`
	SessionID  string `json:"session_id"`
	CWD        string `json:"cwd"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	SourceHook string `json:"source_hook"`
	FilePath   string `json:"file_path"`
	TraceID    string `json:"trace_id"`
}

// BuildPayload applies each write-side event's gating predicate and,
// on a match, returns the payload its detached worker needs. ok=false
// means the hook has nothing to do this invocation (not an error).
func BuildPayload(event string, env Envelope) (WorkerPayload, bool) {
	switch event {
	case "user_prompt_capture":
		if env.Prompt == "" {
			return WorkerPayload{}, false
		}
		return WorkerPayload{Event: event, SessionID: env.SessionID, CWD: env.CWD,
			Content: env.Prompt, Type: string(types.TypeUserMessage), SourceHook: event}, true

	case "post_tool_capture":
		if env.ToolName != "Edit" && env.ToolName != "Write" && env.ToolName != "NotebookEdit" {
			return WorkerPayload{}, false
		}
		path := env.ToolInputString("file_path")
		content := env.ToolInputString("new_string")
		if content == "" {
			content = env.ToolInputString("content")
		}
		if content == "" {
			return WorkerPayload{}, false
		}
		return WorkerPayload{Event: event, SessionID: env.SessionID, CWD: env.CWD,
			Content: content, Type: string(types.TypeFilePattern), SourceHook: event, FilePath: path}, true

	case "error_pattern_capture":
		if env.ToolName != "Bash" || env.ToolResponse == nil {
			return WorkerPayload{}, false
		}
		if env.ToolResponse.ExitCode == nil || *env.ToolResponse.ExitCode == 0 {
			return WorkerPayload{}, false
		}
		signal := triggers.DetectErrorSignal(env.ToolResponse.Stdout + "\n" + env.ToolResponse.Stderr)
		if signal == "" {
			return WorkerPayload{}, false
		}
		return WorkerPayload{Event: event, SessionID: env.SessionID, CWD: env.CWD,
			Content: signal, Type: string(types.TypeErrorPattern), SourceHook: event,
			FilePath: env.ToolInputString("command")}, true

	case "agent_response_capture":
		return WorkerPayload{}, false // requires a transcript read; handled by ReadTranscriptPayload

	case "pre_compact_save":
		return WorkerPayload{Event: event, SessionID: env.SessionID, CWD: env.CWD}, true

	default:
		return WorkerPayload{}, false
	}
}

// Spawn forks selfExe with workerArgs as a detached child, pipes
// payload to its stdin, closes it, and returns without waiting for the
// child to exit (spec section 4.4 step 3). A broken pipe on the stdin
// write is logged, not treated as hook failure.
func Spawn(selfExe string, workerArgs []string, payload WorkerPayload, traceID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	cmd := exec.Command(selfExe, workerArgs...)
	cmd.Env = append(os.Environ(), "MEMCTL_TRACE_ID="+traceID)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	if err := procutil.SpawnDetached(cmd); err != nil {
		return err
	}

	if _, err := stdin.Write(data); err != nil {
		logging.Get(logging.CategoryHooks).Warn("hook worker stdin write failed", zap.Error(err))
	}
	_ = stdin.Close()
	return nil
}

// RunWorker performs the heavy lifting a detached worker does for a
// write-side hook: resolve group id, build a storage.Input, and store
// it. This runs out-of-band from the foreground hook process.
func (rt *Runtime) RunWorker(ctx context.Context, payload WorkerPayload) (storage.Output, error) {
	if payload.Event == "pre_compact_save" {
		st := injection.Load(rt.StateDir, payload.SessionID)
		st.ResetAfterCompact()
		if err := st.Save(rt.StateDir); err != nil {
			return storage.Output{}, err
		}
		return storage.Output{Status: storage.StatusStored}, nil
	}

	return rt.Store.StoreMemory(ctx, storage.Input{
		Content:    payload.Content,
		CWD:        payload.CWD,
		Type:       types.MemoryType(payload.Type),
		SourceHook: payload.SourceHook,
		SessionID:  payload.SessionID,
		FilePath:   payload.FilePath,
		TraceID:    payload.TraceID,
	})
}

// ReadTranscriptPayload builds the agent_response_capture payload by
// reading the last assistant message from the session transcript,
// retrying briefly since the transcript may not be flushed yet (spec
// section 4.4 hook inventory).
func ReadTranscriptPayload(env Envelope, readLastAssistantMessage func(path string) (string, error)) (WorkerPayload, bool) {
	if env.TranscriptPath == "" {
		return WorkerPayload{}, false
	}
	var content string
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		content, err = readLastAssistantMessage(env.TranscriptPath)
		if err == nil && content != "" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if content == "" {
		return WorkerPayload{}, false
	}
	return WorkerPayload{
		Event: "agent_response_capture", SessionID: env.SessionID, CWD: env.CWD,
		Content: content, Type: string(types.TypeAgentResponse), SourceHook: "agent_response_capture",
	}, true
}
