package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/observability/metrics"
)

var (
	internalPushMetricsGateway string
	internalPushMetricsJob     string
)

// internalPushMetricsCmd is the detached child metrics.PushDetached
// re-execs: one synchronous push, then exit. Never invoked directly.
var internalPushMetricsCmd = &cobra.Command{
	Use:    "internal-push-metrics",
	Hidden: true,
	RunE:   runInternalPushMetrics,
}

func init() {
	rootCmd.AddCommand(internalPushMetricsCmd)
	internalPushMetricsCmd.Flags().StringVar(&internalPushMetricsGateway, "gateway", "", "push gateway URL")
	internalPushMetricsCmd.Flags().StringVar(&internalPushMetricsJob, "job", "memctl", "push gateway job label")
}

func runInternalPushMetrics(cmd *cobra.Command, args []string) error {
	if internalPushMetricsGateway == "" {
		return newUsageError("--gateway is required")
	}
	if err := metrics.NewPusher(internalPushMetricsGateway, internalPushMetricsJob).Push(); err != nil {
		fmt.Fprintln(os.Stderr, "memctl: metrics push failed:", err)
		return err
	}
	return nil
}
