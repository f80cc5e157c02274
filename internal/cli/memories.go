package cli

import (
	"context"
	"fmt"

	"github.com/arialive/memcore/internal/db"
	"github.com/spf13/cobra"
)

var memoriesCmd = &cobra.Command{
	Use:   "memories <identifier>",
	Short: "List an entity's valid memories",
	Long: `List an entity's valid memories, most recently mentioned first.

The identifier is the platform-level user name, e.g.
  memcore memories alice --platform twitch`,
	Args: cobra.ExactArgs(1),
	RunE: runMemories,
}

func runMemories(cmd *cobra.Command, args []string) error {
	svc, _, err := buildService()
	if err != nil {
		return err
	}

	ctx := context.Background()
	entityID := db.EntityKey(args[0], platform)

	nodes, err := svc.GetAllMemories(ctx, entityID)
	if err != nil {
		return fmt.Errorf("list memories: %w", err)
	}

	if len(nodes) == 0 {
		fmt.Printf("No memories for %q on %s.\n", args[0], platform)
		return nil
	}

	fmt.Printf("%d memories for %q:\n\n", len(nodes), args[0])
	for i, n := range nodes {
		fmt.Printf("%d. [%s] %s\n", i+1, n.Type, n.Content)
		fmt.Printf("   importance=%.2f confidence=%.2f mentions=%d", n.Importance, n.Confidence, n.MentionCount)
		if n.Category != "" {
			fmt.Printf(" category=%s", n.Category)
		}
		fmt.Println()
	}
	return nil
}
