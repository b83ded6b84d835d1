package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/groupid"
	"github.com/hiddenhistory/memctl/internal/retryqueue"
	"github.com/hiddenhistory/memctl/internal/types"
)

var memoryStatusCmd = &cobra.Command{
	Use:   "memory-status",
	Short: "Show pipeline and queue health",
	Long: `Display collection sizes (all group ids combined),
classification queue depth, and retry queue backlog, alongside the
group id resolved for the current directory.

Examples:
  memctl memory-status
  memctl memory-status -o json`,
	RunE: runMemoryStatus,
}

func init() {
	rootCmd.AddCommand(memoryStatusCmd)
}

type collectionStatus struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

type memoryStatusOutput struct {
	GroupID            string              `json:"group_id"`
	InstallDir         string              `json:"install_dir"`
	Collections        []collectionStatus  `json:"collections"`
	ClassifyPending    int                 `json:"classify_queue_pending"`
	ClassifyOldestSecs float64             `json:"classify_queue_oldest_seconds"`
	RetryEntries       int                 `json:"retry_queue_entries"`
	RetryDue           int                 `json:"retry_queue_due"`
}

func runMemoryStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	project, err := groupid.Resolve("", cwd)
	if err != nil {
		project = "default"
	}

	c, err := loadComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	status := memoryStatusOutput{GroupID: project, InstallDir: c.cfg.InstallDir}

	for _, col := range []types.Collection{types.CollectionCodePatterns, types.CollectionConventions, types.CollectionDiscussions} {
		n, err := c.vectors.Count(string(col), nil)
		if err != nil {
			return fmt.Errorf("count %s: %w", col, err)
		}
		status.Collections = append(status.Collections, collectionStatus{Collection: string(col), Count: n})
	}

	pending, oldest, err := c.classify.Stats()
	if err != nil {
		return fmt.Errorf("classify queue stats: %w", err)
	}
	status.ClassifyPending = pending
	status.ClassifyOldestSecs = oldest.Seconds()

	entries, err := c.retry.ReadAll()
	if err != nil {
		return fmt.Errorf("read retry queue: %w", err)
	}
	status.RetryEntries = len(entries)
	status.RetryDue = len(retryqueue.Due(entries, time.Now(), false, len(entries)))

	return printMemoryStatus(status)
}

func printMemoryStatus(s memoryStatusOutput) error {
	if GetOutput() == "json" {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("Memory Status")
	fmt.Println("=============")
	fmt.Printf("Group:       %s\n", s.GroupID)
	fmt.Printf("Install dir: %s\n", s.InstallDir)
	fmt.Println()
	fmt.Println("Collections:")
	for _, col := range s.Collections {
		fmt.Printf("  %-14s %d\n", col.Collection, col.Count)
	}
	fmt.Println()
	fmt.Printf("Classify queue: %d pending (oldest %.0fs)\n", s.ClassifyPending, s.ClassifyOldestSecs)
	fmt.Printf("Retry queue:    %d entries, %d due\n", s.RetryEntries, s.RetryDue)
	return nil
}
