package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	memconfig "github.com/hiddenhistory/memctl/internal/config"
)

var configShow bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	Long: `View the resolved memory-layer configuration and where each value
came from.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (AI_MEMORY_*)
  3. Project config (./.ai-memory.yaml)
  4. Home config (~/.ai-memory/config.yaml)
  5. Defaults

Examples:
  memctl config --show
  memctl config --show -o json`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}

	cfg, err := memconfig.Load(memconfig.FlagOverrides{})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if GetOutput() == "json" {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("Memory Layer Configuration")
	fmt.Println("==========================")
	fmt.Println()

	fmt.Println("Config files:")
	home, _ := os.UserHomeDir()
	homeConfig := filepath.Join(home, ".ai-memory", "config.yaml")
	printConfigFileStatus("Home", homeConfig)

	cwd, _ := os.Getwd()
	projectConfig := filepath.Join(cwd, ".ai-memory.yaml")
	printConfigFileStatus("Project", projectConfig)

	fmt.Println()
	fmt.Println("Resolved values:")
	printResolved(cfg, "install_dir", cfg.InstallDir, "InstallDir")
	printResolved(cfg, "embedding_endpoint", cfg.EmbeddingEndpoint, "EmbeddingEndpoint")
	printResolved(cfg, "vector_store_endpoint", cfg.VectorStoreEndpoint, "VectorStoreEndpoint")
	printResolved(cfg, "vector_dimension", cfg.VectorDimension, "VectorDimension")
	printResolved(cfg, "security_scan_enabled", cfg.SecurityScanEnabled, "SecurityScanEnabled")
	printResolved(cfg, "classifier_enabled", cfg.ClassifierEnabled, "ClassifierEnabled")
	printResolved(cfg, "injection_enabled", cfg.InjectionEnabled, "InjectionEnabled")
	printResolved(cfg, "injection_confidence_threshold", cfg.InjectionConfidenceThreshold, "InjectionConfidenceThreshold")
	printResolved(cfg, "budget_floor", cfg.BudgetFloor, "BudgetFloor")
	printResolved(cfg, "budget_ceiling", cfg.BudgetCeiling, "BudgetCeiling")
	printResolved(cfg, "decay_enabled", cfg.DecayEnabled, "DecayEnabled")
	printResolved(cfg, "retention_sessions", cfg.RetentionSessions, "RetentionSessions")

	fmt.Println()
	fmt.Println("Environment variables (if set):")
	envVars := []string{
		"AI_MEMORY_INSTALL_DIR",
		"AI_MEMORY_EMBEDDING_ENDPOINT",
		"AI_MEMORY_VECTOR_STORE_ENDPOINT",
		"AI_MEMORY_VECTOR_STORE_AUTH",
		"AI_MEMORY_SECURITY_SCAN_ENABLED",
		"AI_MEMORY_CLASSIFIER_ENABLED",
		"AI_MEMORY_INJECTION_ENABLED",
		"AI_MEMORY_GITHUB_REPO",
		"AI_MEMORY_JIRA_HOST",
		"ANTHROPIC_API_KEY",
	}
	anySet := false
	for _, env := range envVars {
		if v := os.Getenv(env); v != "" {
			fmt.Printf("  %s is set\n", env)
			anySet = true
		}
	}
	if !anySet {
		fmt.Println("  (none set)")
	}

	return nil
}

func printConfigFileStatus(label, path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  found:     %-8s %s\n", label, path)
	} else {
		fmt.Printf("  not found: %-8s %s\n", label, path)
	}
}

func printResolved(cfg *memconfig.Config, name string, value any, field string) {
	source := cfg.Source[field]
	if source == "" {
		source = "default"
	}
	fmt.Printf("  %-32s %v  (from %s)\n", name, value, source)
}
