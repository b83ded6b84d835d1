package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/types"
)

var optimizeTenancyFields []string

var optimizeTenancyCmd = &cobra.Command{
	Use:   "optimize-tenancy",
	Short: "Create payload indexes for multi-tenant filtering",
	Long: `Create (or recreate) a SQL index over the given payload fields
on every collection, speeding up group_id-scoped queries on large
multi-tenant installs. Safe to re-run; CREATE INDEX IF NOT EXISTS
makes it idempotent.

Examples:
  memctl optimize-tenancy
  memctl optimize-tenancy --fields group_id,type`,
	RunE: runOptimizeTenancy,
}

func init() {
	rootCmd.AddCommand(optimizeTenancyCmd)
	optimizeTenancyCmd.Flags().StringSliceVar(&optimizeTenancyFields, "fields", []string{"group_id"}, "payload fields to index, comma-separated")
}

func runOptimizeTenancy(cmd *cobra.Command, args []string) error {
	if len(optimizeTenancyFields) == 0 {
		return newUsageError("--fields must name at least one payload field")
	}

	collections := []types.Collection{types.CollectionCodePatterns, types.CollectionConventions, types.CollectionDiscussions}

	if GetDryRun() {
		fmt.Printf("[dry-run] would index %v on %d collections\n", optimizeTenancyFields, len(collections))
		return nil
	}

	c, err := loadComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	for _, col := range collections {
		if err := c.vectors.CreatePayloadIndex(string(col), optimizeTenancyFields...); err != nil {
			return fmt.Errorf("index %s on %s: %w", optimizeTenancyFields, col, err)
		}
		VerbosePrintf("indexed %v on %s\n", optimizeTenancyFields, col)
	}

	fmt.Printf("indexed %v on %d collections\n", optimizeTenancyFields, len(collections))
	return nil
}
