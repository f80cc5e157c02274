package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var decayDays int

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Decay importance of long-unmentioned memories",
	Long: `Reduce the importance of memories not mentioned within the given
number of days. Run this between streams as a maintenance job.`,
	Args: cobra.NoArgs,
	RunE: runDecay,
}

func init() {
	decayCmd.Flags().IntVarP(&decayDays, "days", "d", 30, "decay memories older than this many days")
}

func runDecay(cmd *cobra.Command, args []string) error {
	svc, _, err := buildService()
	if err != nil {
		return err
	}

	affected, err := svc.DecayMemories(context.Background(), decayDays)
	if err != nil {
		return fmt.Errorf("decay: %w", err)
	}

	fmt.Printf("Decayed %d memories older than %d days.\n", affected, decayDays)
	return nil
}
