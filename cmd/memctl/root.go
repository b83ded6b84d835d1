package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dryRun  bool
	verbose bool
	output  string
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Automated memory layer for AI coding assistants",
	Long: `memctl drives the capture/classify/retrieve pipeline that lets an
AI coding assistant's session knowledge compound across sessions
instead of evaporating every time the context window resets.

Hook dispatch (wired into Claude Code's settings.json by 'hooks install'):
  hook <name>         Run one hook handler, reading its envelope from stdin

Query surface:
  search              Search stored memories
  save-memory         Store a memory record directly
  memory-status       Show pipeline and queue health

Maintenance:
  reclassify          Drain the classification queue on demand
  backfill            Force a retry-queue rehydration pass
  quantize            Enable vector quantization on a collection
  optimize-tenancy    Create payload indexes for multi-tenant filtering
  backup / rollback   Snapshot and restore the vector store

  daemon              Run the classifier, retry, backfill, and trace-flush loops
  doctor              Check installation health
  config              Show resolved configuration
  version             Show version information`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps its error, if any, onto the
// documented exit-code convention: 0 for success or partial success,
// 1 for fatal errors, 2 for argument validation failures.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "memctl:", err)

	var uerr usageError
	if errors.As(err, &uerr) {
		os.Exit(2)
	}
	os.Exit(1)
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "show what would happen without executing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.ai-memory/config.yaml)")
}

// GetDryRun returns the dry-run flag value for use by subcommands.
func GetDryRun() bool { return dryRun }

// GetVerbose returns the verbose flag value for use by subcommands.
func GetVerbose() bool { return verbose }

// GetOutput returns the output format for use by subcommands.
func GetOutput() string { return output }

// GetConfigFile returns the config file path for use by subcommands.
func GetConfigFile() string { return cfgFile }

// VerbosePrintf prints only when verbose mode is enabled.
func VerbosePrintf(format string, args ...any) {
	if verbose {
		fmt.Printf(format, args...)
	}
}

// usageError marks an argument-validation failure so Execute can map
// it to exit code 2 instead of the generic fatal-error code 1.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func newUsageError(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}
