package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arialive/memcore/internal/metrics"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var statsAddr string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show runtime statistics of a running gateway",
	Long: `Fetch and display the metrics snapshot of a running gateway
(started with 'memcore serve').`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsAddr, "addr", "http://localhost:8710", "gateway base URL")
}

var (
	statsHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFD7"))
	statsNameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787"))
	statsDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
)

func runStats(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(statsAddr, "/") + "/stats")
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch stats: gateway returned %s", resp.Status)
	}

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	fmt.Println(statsHeaderStyle.Render("Gateway statistics"))
	fmt.Printf("Uptime: %s\n\n", (time.Duration(snap.UptimeSeconds) * time.Second).String())

	if len(snap.Operations) == 0 {
		fmt.Println(statsDimStyle.Render("No operations recorded yet."))
		return nil
	}

	for _, op := range snap.Operations {
		fmt.Printf("%s\n", statsNameStyle.Render(op.Name))
		fmt.Printf("  count=%d avg=%.1fms min=%dms max=%dms\n",
			op.Count, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
		if op.TotalInputTokens > 0 || op.TotalOutputTokens > 0 {
			fmt.Printf("  tokens in=%d out=%d\n", op.TotalInputTokens, op.TotalOutputTokens)
		}
	}
	return nil
}
