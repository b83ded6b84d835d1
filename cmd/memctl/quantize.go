package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hiddenhistory/memctl/internal/types"
)

var (
	quantizeQuantile  float64
	quantizeAlwaysRAM bool
)

var quantizeCmd = &cobra.Command{
	Use:   "quantize <collection>",
	Short: "Enable scalar quantization on a collection",
	Long: `Enable int8 scalar quantization for a collection's stored
vectors, trading a small recall loss for reduced storage size on
large collections.

collection must be one of: code-patterns, conventions, discussions.

Examples:
  memctl quantize code-patterns
  memctl quantize discussions --quantile 0.95 --always-ram`,
	Args: cobra.ExactArgs(1),
	RunE: runQuantize,
}

func init() {
	rootCmd.AddCommand(quantizeCmd)
	quantizeCmd.Flags().Float64Var(&quantizeQuantile, "quantile", 0.99, "quantization quantile, trims outlier vector components")
	quantizeCmd.Flags().BoolVar(&quantizeAlwaysRAM, "always-ram", false, "keep quantized vectors resident instead of paging to disk")
}

var validQuantizeCollections = map[string]bool{
	string(types.CollectionCodePatterns): true,
	string(types.CollectionConventions):  true,
	string(types.CollectionDiscussions):  true,
}

func runQuantize(cmd *cobra.Command, args []string) error {
	collection := args[0]
	if !validQuantizeCollections[collection] {
		return newUsageError("collection must be one of code-patterns, conventions, discussions, got %q", collection)
	}
	if quantizeQuantile <= 0 || quantizeQuantile > 1 {
		return newUsageError("--quantile must be in (0, 1], got %v", quantizeQuantile)
	}

	if GetDryRun() {
		fmt.Printf("[dry-run] would enable quantization on %s (quantile=%v, always_ram=%v)\n", collection, quantizeQuantile, quantizeAlwaysRAM)
		return nil
	}

	c, err := loadComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	c.vectors.EnableQuantization(collection, quantizeQuantile, quantizeAlwaysRAM)
	fmt.Printf("quantization enabled on %s\n", collection)
	return nil
}
