package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tinker/internal/observability"
)

var (
	alertsNotify bool
	alertsGoal   string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show alerts raised against your goals",
	Long: `Evaluate alert conditions against the event log and list what fired,
grouped by goal.

Alerts fire when a goal drifts (consecutive low scores), when check-ins stop
for too long, and when a chat turn hits the tool iteration ceiling. With
--notify the same alerts are posted to the configured Slack webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized (observability may be disabled)")
		}

		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}
		if alertsGoal != "" {
			id, err := resolveGoal(alertsGoal)
			if err != nil {
				return err
			}
			alerts = alertsForGoal(alerts, id)
		}

		out := cmd.OutOrStdout()
		if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
			return nil
		}
		printAlerts(out, alerts)

		if !alertsNotify {
			return nil
		}
		if Notifier == nil {
			return fmt.Errorf("notifier not configured (set notifications.slack.webhook_url)")
		}
		if err := Notifier.Notify(commandContext(cmd), alerts); err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
		fmt.Fprintln(out, "Notification sent.")
		return nil
	},
}

func alertsForGoal(alerts []observability.Alert, goalID string) []observability.Alert {
	var kept []observability.Alert
	for _, a := range alerts {
		if a.GoalID == goalID {
			kept = append(kept, a)
		}
	}
	return kept
}

// printAlerts writes alerts grouped under their goal, keeping the order in
// which each goal first appears.
func printAlerts(out io.Writer, alerts []observability.Alert) {
	fmt.Fprintf(out, "%d active alert(s):\n", len(alerts))

	var order []string
	groups := map[string][]observability.Alert{}
	for _, a := range alerts {
		if _, seen := groups[a.GoalID]; !seen {
			order = append(order, a.GoalID)
		}
		groups[a.GoalID] = append(groups[a.GoalID], a)
	}

	for _, goalID := range order {
		fmt.Fprintf(out, "\n%s\n", alertGroupLabel(goalID))
		for _, a := range groups[goalID] {
			fmt.Fprintf(out, "  [%s] %s\n", strings.ToUpper(string(a.Severity)), a.Message)
			fmt.Fprintf(out, "         triggered at %s\n", a.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC"))
		}
	}
}

func alertGroupLabel(goalID string) string {
	if goalID == "" {
		return "General:"
	}
	if Goals != nil {
		if gc, err := Goals.GetContext(goalID); err == nil {
			return fmt.Sprintf("%s (%s):", gc.Goal.Description, shortID(goalID))
		}
	}
	return fmt.Sprintf("Goal %s:", shortID(goalID))
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Also send the alerts to the configured Slack webhook")
	alertsCmd.Flags().StringVar(&alertsGoal, "goal", "", "Only show alerts for this goal (id or prefix)")
	rootCmd.AddCommand(alertsCmd)
}
