package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/internal/core"
)

var observeGoal string

var observeCmd = &cobra.Command{
	Use:   "observe [date]",
	Short: "Show the signals gathered from the vault for a day",
	Long: `Gather the evidence of work for a day without scoring it: the daily
note's priority actions and ships, feedback, reflections, vault activity
and the most significant edited files.

The date defaults to today and accepts YYYY-MM-DD, today or yesterday.
Observing today also records a checkpoint commit when the vault is a git
repository.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTools(cmd, args, core.ObserveSignalsCall{})
	},
}

var assessCmd = &cobra.Command{
	Use:   "assess [date]",
	Short: "Observe a day and score it against the goal",
	Long: `Observe a day's signals, score them against the active goal and write
the day's alignment report into the vault. Re-assessing a day replaces
its earlier assessment.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTools(cmd, args, core.ObserveSignalsCall{}, core.RunAssessmentCall{})
	},
}

// runTools resolves the date argument and runs calls in order on one session,
// printing each result. Calls without a date use the resolved one.
func runTools(cmd *cobra.Command, args []string, calls ...core.ToolCall) error {
	if Tools == nil {
		return fmt.Errorf("tool executor not initialized")
	}
	goalID, err := resolveGoal(observeGoal)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	session := core.NewSession(goalID)
	dateArg := ""
	if len(args) == 1 {
		dateArg = args[0]
	}
	resolved, err := Tools.Execute(ctx, session, core.ResolveDateCall{Date: dateArg})
	if err != nil {
		return fmt.Errorf("resolving date: %w", err)
	}
	Logger.Debug("resolved date", zap.String("result", resolved))

	out := cmd.OutOrStdout()
	for _, call := range calls {
		result, err := Tools.Execute(ctx, session, call)
		if err != nil {
			return fmt.Errorf("%s: %w", call.ToolName(), err)
		}
		fmt.Fprintln(out, result)
	}
	return nil
}

// commandContext returns the command's context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	observeCmd.Flags().StringVar(&observeGoal, "goal", "", "Goal id or prefix (defaults to the active goal)")
	assessCmd.Flags().StringVar(&observeGoal, "goal", "", "Goal id or prefix (defaults to the active goal)")
	rootCmd.AddCommand(observeCmd, assessCmd)
}
