package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	memconfig "github.com/hiddenhistory/memctl/internal/config"
	"github.com/hiddenhistory/memctl/internal/vectorstore"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check memory layer health",
	Long: `Run health checks against the memory layer's installation.

Validates that the vector store, embedding endpoint, classifier, and
installed hooks are reachable and configured. Optional components are
reported as warnings but do not cause failure.

Examples:
  memctl doctor
  memctl doctor --json`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output results as JSON")
}

type doctorCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "pass", "warn", "fail"
	Detail   string `json:"detail"`
	Required bool   `json:"required"`
}

type doctorOutput struct {
	Checks  []doctorCheck `json:"checks"`
	Result  string        `json:"result"` // "HEALTHY", "DEGRADED", "UNHEALTHY"
	Summary string        `json:"summary"`
}

func gatherDoctorChecks(cfg *memconfig.Config) []doctorCheck {
	return []doctorCheck{
		{Name: "memctl CLI", Status: "pass", Detail: fmt.Sprintf("v%s", version), Required: true},
		checkVectorStore(cfg),
		checkEmbeddingEndpoint(cfg),
		checkClassifier(cfg),
		checkHookCoverage(),
		checkQueueDepth(cfg),
		checkTraceDir(cfg),
	}
}

func checkVectorStore(cfg *memconfig.Config) doctorCheck {
	path := filepath.Join(cfg.InstallDir, "vectors.db")
	store, err := vectorstore.Open(path)
	if err != nil {
		return doctorCheck{Name: "Vector Store", Status: "fail", Detail: fmt.Sprintf("cannot open %s: %v", path, err), Required: true}
	}
	defer store.Close()
	return doctorCheck{Name: "Vector Store", Status: "pass", Detail: path, Required: true}
}

func checkEmbeddingEndpoint(cfg *memconfig.Config) doctorCheck {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(cfg.EmbeddingEndpoint)
	if err != nil {
		return doctorCheck{
			Name:     "Embedding Endpoint",
			Status:   "warn",
			Detail:   fmt.Sprintf("%s unreachable: %v", cfg.EmbeddingEndpoint, err),
			Required: false,
		}
	}
	defer resp.Body.Close()
	return doctorCheck{Name: "Embedding Endpoint", Status: "pass", Detail: cfg.EmbeddingEndpoint, Required: false}
}

func checkClassifier(cfg *memconfig.Config) doctorCheck {
	if !cfg.ClassifierEnabled {
		return doctorCheck{Name: "Classifier", Status: "warn", Detail: "disabled in config", Required: false}
	}
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return doctorCheck{
			Name:     "Classifier",
			Status:   "warn",
			Detail:   "ANTHROPIC_API_KEY not set — tasks will queue but never drain",
			Required: false,
		}
	}
	return doctorCheck{Name: "Classifier", Status: "pass", Detail: "API key present", Required: false}
}

func checkHookCoverage() doctorCheck {
	path, err := settingsPath()
	if err != nil {
		return doctorCheck{Name: "Hook Coverage", Status: "warn", Detail: "cannot determine home directory", Required: false}
	}

	settings, err := loadSettings(path)
	if err != nil {
		return doctorCheck{
			Name:     "Hook Coverage",
			Status:   "warn",
			Detail:   fmt.Sprintf("cannot read %s: %v", path, err),
			Required: false,
		}
	}

	if settings.Hooks == nil {
		return doctorCheck{
			Name:     "Hook Coverage",
			Status:   "warn",
			Detail:   "no hooks installed — run 'memctl hooks install'",
			Required: false,
		}
	}

	if !hasMemctlHooks(settings.Hooks) {
		return doctorCheck{
			Name:     "Hook Coverage",
			Status:   "warn",
			Detail:   "hooks present but none invoke memctl — run 'memctl hooks install --force'",
			Required: false,
		}
	}

	return doctorCheck{Name: "Hook Coverage", Status: "pass", Detail: path, Required: false}
}

func checkQueueDepth(cfg *memconfig.Config) doctorCheck {
	c, err := loadComponents()
	if err != nil {
		return doctorCheck{Name: "Queue Depth", Status: "warn", Detail: fmt.Sprintf("cannot load components: %v", err), Required: false}
	}
	defer c.Close()

	pending, oldest, err := c.classify.Stats()
	if err != nil {
		return doctorCheck{Name: "Queue Depth", Status: "warn", Detail: fmt.Sprintf("cannot read classify queue: %v", err), Required: false}
	}
	if pending == 0 {
		return doctorCheck{Name: "Queue Depth", Status: "pass", Detail: "classify queue empty", Required: false}
	}
	return doctorCheck{
		Name:     "Queue Depth",
		Status:   "warn",
		Detail:   fmt.Sprintf("%d pending, oldest %s — run 'memctl reclassify'", pending, oldest.Round(time.Second)),
		Required: false,
	}
}

func checkTraceDir(cfg *memconfig.Config) doctorCheck {
	dir := filepath.Join(cfg.InstallDir, "traces")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return doctorCheck{Name: "Trace Directory", Status: "warn", Detail: fmt.Sprintf("cannot create %s: %v", dir, err), Required: false}
	}
	return doctorCheck{Name: "Trace Directory", Status: "pass", Detail: dir, Required: false}
}

func doctorStatusIcon(status string) string {
	switch status {
	case "pass":
		return "✓"
	case "warn":
		return "!"
	case "fail":
		return "✗"
	}
	return "?"
}

func renderDoctorTable(w io.Writer, output doctorOutput) {
	fmt.Fprintln(w, "memctl doctor")
	fmt.Fprintln(w, "─────────────")

	maxName := 0
	for _, c := range output.Checks {
		if len(c.Name) > maxName {
			maxName = len(c.Name)
		}
	}

	for _, c := range output.Checks {
		padding := strings.Repeat(" ", maxName-len(c.Name))
		fmt.Fprintf(w, "%s %s%s  %s\n", doctorStatusIcon(c.Status), c.Name, padding, c.Detail)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s\n", output.Summary)
}

func hasRequiredFailure(checks []doctorCheck) bool {
	for _, c := range checks {
		if c.Required && c.Status == "fail" {
			return true
		}
	}
	return false
}

func countCheckStatuses(checks []doctorCheck) (passes, fails, warns int) {
	for _, c := range checks {
		switch c.Status {
		case "pass":
			passes++
		case "fail":
			fails++
		case "warn":
			warns++
		}
	}
	return passes, fails, warns
}

func buildDoctorSummary(passes, fails, warns, total int) string {
	switch {
	case fails == 0 && warns == 0:
		return fmt.Sprintf("%d/%d checks passed", passes, total)
	case fails == 0:
		summary := fmt.Sprintf("%d/%d checks passed, %d warning", passes, total, warns)
		if warns > 1 {
			summary += "s"
		}
		return summary
	default:
		parts := []string{fmt.Sprintf("%d/%d checks passed", passes, total)}
		if warns > 0 {
			w := fmt.Sprintf("%d warning", warns)
			if warns > 1 {
				w += "s"
			}
			parts = append(parts, w)
		}
		f := fmt.Sprintf("%d failed", fails)
		parts = append(parts, f)
		return strings.Join(parts, ", ")
	}
}

func computeResult(checks []doctorCheck) doctorOutput {
	passes, fails, warns := countCheckStatuses(checks)
	total := len(checks)

	result := "HEALTHY"
	switch {
	case fails > 0:
		result = "UNHEALTHY"
	case warns > 0:
		result = "DEGRADED"
	}

	return doctorOutput{
		Checks:  checks,
		Result:  result,
		Summary: buildDoctorSummary(passes, fails, warns, total),
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := memconfig.Load(memconfig.FlagOverrides{})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	output := computeResult(gatherDoctorChecks(cfg))
	w := cmd.OutOrStdout()

	if doctorJSON {
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal doctor output: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	renderDoctorTable(w, output)

	if hasRequiredFailure(output.Checks) {
		return fmt.Errorf("doctor failed: one or more required checks did not pass")
	}

	return nil
}
