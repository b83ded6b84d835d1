package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/daemon"
)

var (
	reclassifyStats bool
	reclassifyClear bool
	reclassifyForce bool
)

var reclassifyCmd = &cobra.Command{
	Use:   "reclassify",
	Short: "Drain the classification queue on demand",
	Long: `Process every pending classification task right now instead of
waiting for the daemon's poll ticker, or inspect/clear the queue
without processing it.

Examples:
  memctl reclassify             # drain the queue once
  memctl reclassify --stats     # report pending count and queue age
  memctl reclassify --clear     # discard every pending (unclaimed) task
  memctl reclassify --dry-run   # report how many tasks would be processed`,
	RunE: runReclassify,
}

func init() {
	rootCmd.AddCommand(reclassifyCmd)
	reclassifyCmd.Flags().BoolVar(&reclassifyStats, "stats", false, "report queue depth and oldest pending age, then exit")
	reclassifyCmd.Flags().BoolVar(&reclassifyClear, "clear", false, "remove every pending task without processing it")
	reclassifyCmd.Flags().BoolVar(&reclassifyForce, "force", false, "accepted for CLI-convention compatibility; reclassify has no backoff to override")
}

func runReclassify(cmd *cobra.Command, args []string) error {
	c, err := loadComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	if reclassifyStats {
		pending, oldest, err := c.classify.Stats()
		if err != nil {
			return fmt.Errorf("queue stats: %w", err)
		}
		fmt.Printf("pending: %d\n", pending)
		if pending > 0 {
			fmt.Printf("oldest:  %s\n", oldest.Round(time.Second))
		}
		return nil
	}

	if reclassifyClear {
		if GetDryRun() {
			pending, _, err := c.classify.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("[dry-run] would clear %d pending tasks\n", pending)
			return nil
		}
		removed, err := c.classify.Clear()
		if err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}
		fmt.Printf("cleared %d pending tasks\n", removed)
		return nil
	}

	client := classifierClient(c.cfg)
	if client == nil {
		return fmt.Errorf("classifier is disabled or ANTHROPIC_API_KEY is unset")
	}

	if GetDryRun() {
		pending, _, err := c.classify.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("[dry-run] would process %d pending tasks\n", pending)
		return nil
	}

	cl := daemon.NewClassifier(c.classify, c.vectors, client, c.traceBuf)
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	n := cl.ProcessAll(ctx)
	fmt.Printf("processed %d tasks\n", n)
	return nil
}
