package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/groupid"
	"github.com/hiddenhistory/memctl/internal/storage"
	"github.com/hiddenhistory/memctl/internal/types"
)

var saveMemoryType string

var allowedSaveMemoryTypes = map[types.MemoryType]bool{
	types.TypeAgentMemory:  true,
	types.TypeAgentInsight: true,
}

var saveMemoryCmd = &cobra.Command{
	Use:   "save-memory <content>",
	Short: "Store a memory record directly",
	Long: `Store arbitrary content as a memory record outside of the hook
pipeline — for agent-authored insights or memories an operator wants
to seed by hand.

--type must be one of: agent_memory, agent_insight.

Examples:
  memctl save-memory "retry storms come from the backoff jitter bug" --type agent_insight
  memctl save-memory "prefer sqlite for single-writer stores here"`,
	Args: cobra.ExactArgs(1),
	RunE: runSaveMemory,
}

func init() {
	rootCmd.AddCommand(saveMemoryCmd)
	saveMemoryCmd.Flags().StringVar(&saveMemoryType, "type", string(types.TypeAgentMemory), "memory type: agent_memory or agent_insight")
}

func runSaveMemory(cmd *cobra.Command, args []string) error {
	content := args[0]
	memType := types.MemoryType(saveMemoryType)
	if !allowedSaveMemoryTypes[memType] {
		return newUsageError("--type must be agent_memory or agent_insight, got %q", saveMemoryType)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	if GetDryRun() {
		fmt.Printf("[dry-run] would store %q as %s\n", truncateLine(content, 80), memType)
		return nil
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

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	out, err := c.store.StoreMemory(ctx, storage.Input{
		Content:    content,
		CWD:        cwd,
		Type:       memType,
		SourceHook: "manual",
		GroupID:    project,
	})
	if err != nil {
		return fmt.Errorf("store memory: %w", err)
	}

	fmt.Printf("%s (id=%s, embedding=%s)\n", out.Status, out.MemoryID, out.EmbeddingStatus)
	return nil
}
