package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored memories across all entities",
	Long: `Search stored memories using hybrid BM25 + vector search.

Examples:
  memcore search "coffee"
  memcore search "파이썬"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, _, err := buildService()
	if err != nil {
		return err
	}

	results, err := svc.SearchMemories(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No memories found.")
		return nil
	}

	fmt.Printf("Found %d memories:\n\n", len(results))
	for i, r := range results {
		fmt.Printf("%d. [%s] %s\n", i+1, r.MemoryType, r.Content)
		if verbose {
			fmt.Printf("   id=%s score=%.3f\n", r.ID, r.Score)
		}
	}
	return nil
}
