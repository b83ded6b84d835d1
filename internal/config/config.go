// Package config resolves the process-wide configuration for the
// memory layer: embedding/vector-store endpoints, feature flags,
// injection tuning, and connector credentials. It follows the same
// precedence chain the rest of this codebase's CLI tooling uses — flags
// override environment, environment overrides project file, project
// file overrides home file, home file overrides defaults — and tracks,
// per field, which source won (Config.Source) so `config --show` and
// tests can explain where a value came from.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hiddenhistory/memctl/internal/observability/logging"
)

// Config holds every documented environment knob from spec section 6.
type Config struct {
	InstallDir string `yaml:"install_dir"`

	EmbeddingEndpoint   string `yaml:"embedding_endpoint"`
	VectorStoreEndpoint string `yaml:"vector_store_endpoint"`
	VectorStoreAuth     string `yaml:"vector_store_auth"`
	VectorDimension     int    `yaml:"vector_dimension"`

	SecurityScanEnabled bool `yaml:"security_scan_enabled"`
	ClassifierEnabled   bool `yaml:"classifier_enabled"`
	InjectionEnabled    bool `yaml:"injection_enabled"`

	InjectionConfidenceThreshold float64 `yaml:"injection_confidence_threshold"`
	BudgetFloor                  int     `yaml:"budget_floor"`
	BudgetCeiling                int     `yaml:"budget_ceiling"`
	WeightQuality                float64 `yaml:"weight_quality"`
	WeightDensity                float64 `yaml:"weight_density"`
	WeightDrift                   float64 `yaml:"weight_drift"`

	DecayEnabled      bool `yaml:"decay_enabled"`
	AutoUpdateEnabled bool `yaml:"auto_update_enabled"`

	ParzivalEnabled bool   `yaml:"parzival_enabled"`
	AgentProfile    string `yaml:"agent_profile"`

	GithubRepo  string `yaml:"github_repo"`
	GithubToken string `yaml:"github_token"`
	JiraHost    string `yaml:"jira_host"`
	JiraToken   string `yaml:"jira_token"`

	RetryMaxAttempts  int `yaml:"retry_max_attempts"`
	RetentionSessions int `yaml:"retention_sessions"`

	HookTimeoutSeconds    int `yaml:"hook_timeout_seconds"`
	ClassifierPollSeconds int `yaml:"classifier_poll_seconds"`
	ClassifierBatchSize   int `yaml:"classifier_batch_size"`
	ClassifierConcurrency int `yaml:"classifier_concurrency"`

	TraceBufferMaxBytes   int64 `yaml:"trace_buffer_max_bytes"`
	TraceHeartbeatSeconds int   `yaml:"trace_heartbeat_seconds"`

	// Source records, per field name, which layer supplied the final
	// value: "flag", "env", "project", "home", or "default".
	Source map[string]string `yaml:"-"`
}

// Default returns the built-in baseline, matching the values spec
// section 6 documents explicitly (confidence threshold 0.6, budget
// 500/1500, weights summing to 1).
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		InstallDir:                   filepath.Join(home, ".ai-memory"),
		EmbeddingEndpoint:            "http://localhost:8070",
		VectorStoreEndpoint:          "http://localhost:6333",
		VectorDimension:              768,
		SecurityScanEnabled:          true,
		ClassifierEnabled:            true,
		InjectionEnabled:             true,
		InjectionConfidenceThreshold: 0.6,
		BudgetFloor:                  500,
		BudgetCeiling:                1500,
		WeightQuality:                0.5,
		WeightDensity:                0.3,
		WeightDrift:                  0.2,
		DecayEnabled:                 false,
		AutoUpdateEnabled:            false,
		ParzivalEnabled:              false,
		RetryMaxAttempts:             3,
		RetentionSessions:            50,
		HookTimeoutSeconds:           60,
		ClassifierPollSeconds:        5,
		ClassifierBatchSize:          10,
		ClassifierConcurrency:        4,
		TraceBufferMaxBytes:          10 * 1024 * 1024,
		TraceHeartbeatSeconds:        30,
		Source:                       map[string]string{},
	}
}

// FlagOverrides carries explicit CLI flag values; zero values mean "not
// set" and are skipped during merge.
type FlagOverrides struct {
	InstallDir          string
	EmbeddingEndpoint   string
	VectorStoreEndpoint string
	GroupID             string
}

// Load builds the final Config by merging defaults, the home file, the
// project file, the environment, then flags, recording provenance at
// each step.
func Load(flags FlagOverrides) (*Config, error) {
	cfg := Default()
	markAll(cfg, "default")

	if home, err := os.UserHomeDir(); err == nil {
		mergeFile(cfg, filepath.Join(home, ".ai-memory", "config.yaml"), "home")
	}
	if cwd, err := os.Getwd(); err == nil {
		mergeFile(cfg, filepath.Join(cwd, ".ai-memory.yaml"), "project")
	}

	applyEnv(cfg)
	applyFlags(cfg, flags)

	return cfg, nil
}

func mergeFile(cfg *Config, path, source string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return
	}
	merge(cfg, &file, source)
}

// merge copies the non-zero endpoint, vector-dimension, confidence
// threshold, budget and connector fields from src into dst, recording
// source for each field actually changed. The other fields (feature
// flags, weights, retry/retention counts, timeouts, classifier and
// trace tunables) are not read from config files.
func merge(dst, src *Config, source string) {
	if src.InstallDir != "" {
		dst.InstallDir = src.InstallDir
		dst.Source["InstallDir"] = source
	}
	if src.EmbeddingEndpoint != "" {
		dst.EmbeddingEndpoint = src.EmbeddingEndpoint
		dst.Source["EmbeddingEndpoint"] = source
	}
	if src.VectorStoreEndpoint != "" {
		dst.VectorStoreEndpoint = src.VectorStoreEndpoint
		dst.Source["VectorStoreEndpoint"] = source
	}
	if src.VectorStoreAuth != "" {
		dst.VectorStoreAuth = src.VectorStoreAuth
		dst.Source["VectorStoreAuth"] = source
	}
	if src.VectorDimension != 0 {
		dst.VectorDimension = src.VectorDimension
		dst.Source["VectorDimension"] = source
	}
	if src.InjectionConfidenceThreshold != 0 {
		dst.InjectionConfidenceThreshold = src.InjectionConfidenceThreshold
		dst.Source["InjectionConfidenceThreshold"] = source
	}
	if src.BudgetFloor != 0 {
		dst.BudgetFloor = src.BudgetFloor
		dst.Source["BudgetFloor"] = source
	}
	if src.BudgetCeiling != 0 {
		dst.BudgetCeiling = src.BudgetCeiling
		dst.Source["BudgetCeiling"] = source
	}
	if src.GithubRepo != "" {
		dst.GithubRepo = src.GithubRepo
		dst.Source["GithubRepo"] = source
	}
	if src.GithubToken != "" {
		dst.GithubToken = src.GithubToken
		dst.Source["GithubToken"] = source
	}
	if src.JiraHost != "" {
		dst.JiraHost = src.JiraHost
		dst.Source["JiraHost"] = source
	}
	if src.JiraToken != "" {
		dst.JiraToken = src.JiraToken
		dst.Source["JiraToken"] = source
	}
}

func applyEnv(cfg *Config) {
	setString(cfg, "AI_MEMORY_INSTALL_DIR", "InstallDir", &cfg.InstallDir)
	setString(cfg, "AI_MEMORY_EMBEDDING_ENDPOINT", "EmbeddingEndpoint", &cfg.EmbeddingEndpoint)
	setString(cfg, "AI_MEMORY_VECTOR_STORE_ENDPOINT", "VectorStoreEndpoint", &cfg.VectorStoreEndpoint)
	setString(cfg, "AI_MEMORY_VECTOR_STORE_AUTH", "VectorStoreAuth", &cfg.VectorStoreAuth)
	setBool(cfg, "AI_MEMORY_SECURITY_SCAN_ENABLED", "SecurityScanEnabled", &cfg.SecurityScanEnabled)
	setBool(cfg, "AI_MEMORY_CLASSIFIER_ENABLED", "ClassifierEnabled", &cfg.ClassifierEnabled)
	setBool(cfg, "AI_MEMORY_INJECTION_ENABLED", "InjectionEnabled", &cfg.InjectionEnabled)
	setFloat(cfg, "AI_MEMORY_INJECTION_CONFIDENCE_THRESHOLD", "InjectionConfidenceThreshold", &cfg.InjectionConfidenceThreshold)
	setInt(cfg, "AI_MEMORY_BUDGET_FLOOR", "BudgetFloor", &cfg.BudgetFloor)
	setInt(cfg, "AI_MEMORY_BUDGET_CEILING", "BudgetCeiling", &cfg.BudgetCeiling)
	setFloat(cfg, "AI_MEMORY_WEIGHT_QUALITY", "WeightQuality", &cfg.WeightQuality)
	setFloat(cfg, "AI_MEMORY_WEIGHT_DENSITY", "WeightDensity", &cfg.WeightDensity)
	setFloat(cfg, "AI_MEMORY_WEIGHT_DRIFT", "WeightDrift", &cfg.WeightDrift)
	setBool(cfg, "AI_MEMORY_DECAY_ENABLED", "DecayEnabled", &cfg.DecayEnabled)
	setBool(cfg, "AUTO_UPDATE_ENABLED", "AutoUpdateEnabled", &cfg.AutoUpdateEnabled)
	setBool(cfg, "PARZIVAL_ENABLED", "ParzivalEnabled", &cfg.ParzivalEnabled)
	setString(cfg, "PARZIVAL_PROFILE", "AgentProfile", &cfg.AgentProfile)
	setString(cfg, "AI_MEMORY_GITHUB_REPO", "GithubRepo", &cfg.GithubRepo)
	setString(cfg, "AI_MEMORY_GITHUB_TOKEN", "GithubToken", &cfg.GithubToken)
	setString(cfg, "AI_MEMORY_JIRA_HOST", "JiraHost", &cfg.JiraHost)
	setString(cfg, "AI_MEMORY_JIRA_TOKEN", "JiraToken", &cfg.JiraToken)
	setInt(cfg, "AI_MEMORY_RETENTION_SESSIONS", "RetentionSessions", &cfg.RetentionSessions)

	if v := os.Getenv("HOOK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HookTimeoutSeconds = n
			cfg.Source["HookTimeoutSeconds"] = "env"
		} else {
			// Invalid value: keep the default and warn the operator.
			logging.Get(logging.CategoryHooks).Warn("invalid HOOK_TIMEOUT, keeping default",
				zap.String("value", v), zap.Int("default_seconds", cfg.HookTimeoutSeconds))
		}
	}
}

func applyFlags(cfg *Config, flags FlagOverrides) {
	if flags.InstallDir != "" {
		cfg.InstallDir = flags.InstallDir
		cfg.Source["InstallDir"] = "flag"
	}
	if flags.EmbeddingEndpoint != "" {
		cfg.EmbeddingEndpoint = flags.EmbeddingEndpoint
		cfg.Source["EmbeddingEndpoint"] = "flag"
	}
	if flags.VectorStoreEndpoint != "" {
		cfg.VectorStoreEndpoint = flags.VectorStoreEndpoint
		cfg.Source["VectorStoreEndpoint"] = "flag"
	}
}

func setString(cfg *Config, env, field string, dst *string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
		cfg.Source[field] = "env"
	}
}

func setBool(cfg *Config, env, field string, dst *bool) {
	if v := os.Getenv(env); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
		cfg.Source[field] = "env"
	}
}

func setInt(cfg *Config, env, field string, dst *int) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
			cfg.Source[field] = "env"
		}
	}
}

func setFloat(cfg *Config, env, field string, dst *float64) {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
			cfg.Source[field] = "env"
		}
	}
}

func markAll(cfg *Config, source string) {
	for _, field := range []string{
		"InstallDir", "EmbeddingEndpoint", "VectorStoreEndpoint", "VectorDimension",
		"InjectionConfidenceThreshold", "BudgetFloor", "BudgetCeiling",
		"WeightQuality", "WeightDensity", "WeightDrift",
	} {
		cfg.Source[field] = source
	}
}

var (
	mu       sync.Mutex
	memoized *Config
)

// Get returns the process-wide config, loading and memoizing it on
// first call. Matches spec section 9's "process-wide singleton" design
// note.
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()
	if memoized == nil {
		cfg, _ := Load(FlagOverrides{})
		memoized = cfg
	}
	return memoized
}

// ResetForTests clears the memoized config so the next Get() call
// reloads from the current environment. Tests must call this after
// mutating env vars.
func ResetForTests() {
	mu.Lock()
	defer mu.Unlock()
	memoized = nil
}
