package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	hooksDryRun bool
	hooksForce  bool
)

// hookEntry is one Claude Code settings.json hook command.
type hookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// hookGroup pairs an optional tool-name matcher with its commands.
type hookGroup struct {
	Matcher string      `json:"matcher,omitempty"`
	Hooks   []hookEntry `json:"hooks"`
}

// hooksConfig is the subset of settings.json's "hooks" object this
// binary installs into — the six Claude Code events its 11 hook
// handlers attach to (spec section 4.4's hook inventory).
type hooksConfig struct {
	SessionStart     []hookGroup `json:"SessionStart,omitempty"`
	UserPromptSubmit []hookGroup `json:"UserPromptSubmit,omitempty"`
	PreToolUse       []hookGroup `json:"PreToolUse,omitempty"`
	PostToolUse      []hookGroup `json:"PostToolUse,omitempty"`
	Stop             []hookGroup `json:"Stop,omitempty"`
	PreCompact       []hookGroup `json:"PreCompact,omitempty"`
}

// claudeSettings mirrors ~/.claude/settings.json, preserving every key
// this binary doesn't own.
type claudeSettings struct {
	Hooks *hooksConfig   `json:"hooks,omitempty"`
	Other map[string]any `json:"-"`
}

func (s *claudeSettings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if hooksRaw, ok := raw["hooks"]; ok {
		var h hooksConfig
		if err := json.Unmarshal(hooksRaw, &h); err != nil {
			return err
		}
		s.Hooks = &h
		delete(raw, "hooks")
	}
	s.Other = map[string]any{}
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			s.Other[k] = val
		}
	}
	return nil
}

func (s claudeSettings) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range s.Other {
		out[k] = v
	}
	if s.Hooks != nil {
		out["hooks"] = s.Hooks
	}
	return json.MarshalIndent(out, "", "  ")
}

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage Claude Code hooks for the memory flywheel",
	Long: `Install, inspect, or test the Claude Code hooks that drive the
capture/classify/retrieve pipeline.

Subcommands:
  install   Install hooks into ~/.claude/settings.json
  show      Print the currently installed hook configuration
  test      Verify the memctl binary path resolves and is executable`,
}

var hooksInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install hooks into Claude Code settings",
	Long: `Merge this binary's 11 hook handlers into
~/.claude/settings.json, backing up the original file first.

Examples:
  memctl hooks install
  memctl hooks install --force
  memctl hooks install --dry-run`,
	RunE: runHooksInstall,
}

var hooksShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the currently installed hook configuration",
	RunE:  runHooksShow,
}

var hooksTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify hook dependencies are available",
	RunE:  runHooksTest,
}

func init() {
	rootCmd.AddCommand(hooksCmd)
	hooksCmd.AddCommand(hooksInstallCmd)
	hooksCmd.AddCommand(hooksShowCmd)
	hooksCmd.AddCommand(hooksTestCmd)

	hooksInstallCmd.Flags().BoolVar(&hooksDryRun, "dry-run", false, "show what would be installed without making changes")
	hooksInstallCmd.Flags().BoolVar(&hooksForce, "force", false, "overwrite existing memctl hook entries")
}

// generateHooksConfig builds the full 11-handler configuration,
// invoking selfExe (this same binary) for every hook name.
func generateHooksConfig(selfExe string) *hooksConfig {
	cmdFor := func(name string) hookEntry {
		return hookEntry{Type: "command", Command: fmt.Sprintf("%s hook %s", selfExe, name)}
	}

	return &hooksConfig{
		SessionStart: []hookGroup{{Hooks: []hookEntry{cmdFor("session_start")}}},
		UserPromptSubmit: []hookGroup{{Hooks: []hookEntry{
			cmdFor("user_prompt_capture"),
			cmdFor("context_injection_tier2"),
		}}},
		PreToolUse: []hookGroup{
			{Matcher: "Edit", Hooks: []hookEntry{cmdFor("first_edit_trigger")}},
			{Matcher: "Write", Hooks: []hookEntry{cmdFor("new_file_trigger")}},
		},
		PostToolUse: []hookGroup{
			{Matcher: "Edit|Write|NotebookEdit", Hooks: []hookEntry{cmdFor("post_tool_capture")}},
			{Matcher: "Bash", Hooks: []hookEntry{
				cmdFor("error_pattern_capture"),
				cmdFor("error_context_retrieval"),
			}},
			{Matcher: "Read", Hooks: []hookEntry{cmdFor("read_context_trigger")}},
		},
		Stop:       []hookGroup{{Hooks: []hookEntry{cmdFor("agent_response_capture")}}},
		PreCompact: []hookGroup{{Hooks: []hookEntry{cmdFor("pre_compact_save")}}},
	}
}

func settingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "settings.json"), nil
}

func loadSettings(path string) (claudeSettings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return claudeSettings{Other: map[string]any{}}, nil
	}
	if err != nil {
		return claudeSettings{}, err
	}
	var s claudeSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return claudeSettings{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.Other == nil {
		s.Other = map[string]any{}
	}
	return s, nil
}

// hasMemctlHooks reports whether any command string under cfg already
// invokes this binary's hook dispatcher, the signal --force overrides.
func hasMemctlHooks(cfg *hooksConfig) bool {
	if cfg == nil {
		return false
	}
	all := [][]hookGroup{cfg.SessionStart, cfg.UserPromptSubmit, cfg.PreToolUse, cfg.PostToolUse, cfg.Stop, cfg.PreCompact}
	for _, groups := range all {
		for _, g := range groups {
			for _, h := range g.Hooks {
				if strings.Contains(h.Command, " hook ") || strings.Contains(h.Command, "hook-worker") {
					return true
				}
			}
		}
	}
	return false
}

func runHooksInstall(cmd *cobra.Command, args []string) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}

	settings, err := loadSettings(path)
	if err != nil {
		return err
	}

	if hasMemctlHooks(settings.Hooks) && !hooksForce {
		return fmt.Errorf("memctl hooks already installed in %s (use --force to overwrite)", path)
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve memctl executable path: %w", err)
	}

	newCfg := generateHooksConfig(self)

	if GetDryRun() || hooksDryRun {
		data, _ := json.MarshalIndent(newCfg, "", "  ")
		fmt.Printf("[dry-run] would write hooks to %s:\n%s\n", path, string(data))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	if _, err := os.Stat(path); err == nil {
		backup := fmt.Sprintf("%s.bak.%d", path, time.Now().Unix())
		if data, readErr := os.ReadFile(path); readErr == nil {
			_ = os.WriteFile(backup, data, 0o644)
		}
	}

	settings.Hooks = newCfg
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Printf("Installed memctl hooks into %s\n", path)
	return nil
}

func runHooksShow(cmd *cobra.Command, args []string) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	settings, err := loadSettings(path)
	if err != nil {
		return err
	}
	if settings.Hooks == nil {
		fmt.Println("No hooks installed.")
		return nil
	}
	data, err := json.MarshalIndent(settings.Hooks, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runHooksTest(cmd *cobra.Command, args []string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve memctl executable path: %w", err)
	}
	fmt.Printf("memctl binary: %s\n", self)

	if _, err := exec.LookPath(self); err != nil {
		if _, statErr := os.Stat(self); statErr != nil {
			return fmt.Errorf("memctl binary not executable at %s: %w", self, statErr)
		}
	}
	fmt.Println("hook dispatch: ok (memctl hook <name> reads stdin, exits 0 on malformed input)")
	return nil
}
