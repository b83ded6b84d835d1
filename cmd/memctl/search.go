package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/groupid"
	"github.com/hiddenhistory/memctl/internal/retrieval"
	"github.com/hiddenhistory/memctl/internal/types"
)

var (
	searchCollection string
	searchType       string
	searchIntent     string
	searchLimit      int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored memories",
	Long: `Search the vector store for memories relevant to a query.

Examples:
  memctl search "mutex pattern"
  memctl search "auth flow" --collection code-patterns --limit 20
  memctl search "why did we pick sqlite" --intent why`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchCollection, "collection", "", "restrict to one collection (code-patterns, conventions, discussions)")
	searchCmd.Flags().StringVar(&searchType, "type", "", "filter by memory type")
	searchCmd.Flags().StringVar(&searchIntent, "intent", "", "query intent hint (how, what, why) used for collection routing when --collection is unset")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results to return")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	if searchLimit <= 0 {
		return newUsageError("--limit must be a positive integer, got %d", searchLimit)
	}

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

	collection := types.Collection(searchCollection)
	if collection == "" {
		targets := retrieval.RouteCollections(query, "", nil, searchIntent)
		if len(targets) > 0 {
			collection = targets[0].Collection
		} else {
			collection = types.CollectionDiscussions
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	results, err := c.search.Run(ctx, retrieval.Query{
		Text: query, Collection: collection, GroupID: project,
		MemoryType: searchType, Limit: searchLimit, ScoreThreshold: 0,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	return printSearchResults(results)
}

func printSearchResults(results []retrieval.Result) error {
	if GetOutput() == "json" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("[%.3f] (%s) %s\n", r.Score, r.Type, truncateLine(r.Content, 120))
	}
	return nil
}

func truncateLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
