package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/daemon"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Force a retry-queue rehydration pass",
	Long: `Reprocess every retry-queue entry right now, ignoring
next_retry_at and max_retries — the same sweep the daemon runs
once a day on its own schedule, invoked on demand.

Examples:
  memctl backfill
  memctl backfill --dry-run`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	c, err := loadComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	if GetDryRun() {
		entries, err := c.retry.ReadAll()
		if err != nil {
			return fmt.Errorf("read retry queue: %w", err)
		}
		fmt.Printf("[dry-run] would force-reprocess %d retry-queue entries\n", len(entries))
		return nil
	}

	retrier := daemon.NewRetrier(c.retry, c.store)
	backfill := daemon.NewBackfill(retrier, "")

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	backfill.RunOnce(ctx)
	fmt.Println("backfill sweep complete")
	return nil
}
