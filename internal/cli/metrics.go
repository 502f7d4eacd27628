package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tinker/internal/mcp"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display assessment and chat metrics",
	Long: `Display aggregated metrics derived from the event log.

Metrics include goal and assessment counts, the mean and latest scores,
tool usage by name, chat turns and checkpoints.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}

		since := metricsSince
		if since == "" {
			since = "7d"
		}
		sinceTime, err := mcp.ParseSince(since, now().UTC())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		// Table format.
		fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Fprintf(out, "  %-24s %d\n", "Goals locked:", metrics.GoalsCreated)
		fmt.Fprintf(out, "  %-24s %d\n", "Goals archived:", metrics.GoalsArchived)
		fmt.Fprintf(out, "  %-24s %d\n", "Assessments:", metrics.Assessments)
		fmt.Fprintf(out, "  %-24s %.1f\n", "Mean score:", metrics.MeanScore)
		fmt.Fprintf(out, "  %-24s %d (%d exhausted)\n", "Chat turns:", metrics.Turns, metrics.ExhaustedTurns)
		fmt.Fprintf(out, "  %-24s %d\n", "Checkpoints:", metrics.Checkpoints)

		if len(metrics.ToolCalls) > 0 {
			fmt.Fprintf(out, "\n  Tool calls (%d failed):\n", metrics.ToolErrors)
			for _, name := range metrics.ToolNames() {
				fmt.Fprintf(out, "    %-28s %d\n", name+":", metrics.ToolCalls[name])
			}
		}

		if len(metrics.LatestScores) > 0 {
			fmt.Fprintln(out, "\n  Latest score by goal:")
			for id, score := range metrics.LatestScores {
				fmt.Fprintf(out, "    %-28s %d\n", shortID(id)+":", score)
			}
		}

		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
