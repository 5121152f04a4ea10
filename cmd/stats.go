package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ca-srg/searchagent/internal/metrics"
)

var (
	statsDays   int
	statsDBPath string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show prompt usage statistics",
	Long: `
Show how many prompts were handled per mode (batch, stream, search_only, mcp),
in total and per day. Counts are read from METRICS_DB_PATH
(default ~/.searchagent/stats.db).

Examples:
  searchagent stats
  searchagent stats --days 30
`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Number of recent days to list")
	statsCmd.Flags().StringVar(&statsDBPath, "db", "", "Statistics database path (overrides METRICS_DB_PATH)")
}

func runStats(cmd *cobra.Command, args []string) error {
	dbPath := statsDBPath
	if dbPath == "" {
		dbPath = os.Getenv("METRICS_DB_PATH")
	}
	if err := metrics.Init(dbPath); err != nil {
		return fmt.Errorf("failed to open usage statistics: %w", err)
	}
	defer func() { _ = metrics.Close() }()

	return printStats(cmd.OutOrStdout(), metrics.GetStore(), statsDays)
}

func printStats(w io.Writer, store *metrics.Store, days int) error {
	totals, err := store.GetAllTotals()
	if err != nil {
		return fmt.Errorf("failed to read totals: %w", err)
	}
	daily, err := store.GetRecentDaily(days)
	if err != nil {
		return fmt.Errorf("failed to read daily counts: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODE\tTOTAL")
	var sum int64
	for _, mode := range metrics.Modes {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", mode, totals[mode])
		sum += totals[mode]
	}
	_, _ = fmt.Fprintf(tw, "all\t%d\n", sum)
	if err := tw.Flush(); err != nil {
		return err
	}

	if days <= 0 {
		return nil
	}
	_, _ = fmt.Fprintf(w, "\nLast %d days:\n", days)
	if len(daily) == 0 {
		_, _ = fmt.Fprintln(w, "(no activity)")
		return nil
	}

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DATE\tMODE\tCOUNT")
	for _, row := range daily {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", row.Date, row.Mode, row.Count)
	}
	return tw.Flush()
}
