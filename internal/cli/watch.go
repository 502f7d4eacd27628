package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/pkg/models"
)

var watchGoal string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the vault and re-observe today as files change",
	Long: `Watch the vault for edits to tracked documents. After each burst of
changes tinker observes today again and prints the refreshed signals.
Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if NewWatcher == nil {
			return fmt.Errorf("vault watcher not initialized")
		}
		if Tools == nil {
			return fmt.Errorf("tool executor not initialized")
		}
		goalID, err := resolveGoal(watchGoal)
		if err != nil {
			return err
		}

		w, err := NewWatcher()
		if err != nil {
			return fmt.Errorf("starting vault watcher: %w", err)
		}
		defer w.Close()

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintln(cmd.OutOrStdout(), "Watching the vault. Press Ctrl-C to stop.")
		return watchLoop(ctx, cmd.OutOrStdout(), w.Batches(), core.NewSession(goalID))
	},
}

// watchLoop re-observes today for every batch until ctx ends or batches
// closes.
func watchLoop(ctx context.Context, out io.Writer, batches <-chan []models.ChangeEvent, session *core.Session) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			for _, c := range batch {
				fmt.Fprintf(out, "%s %-6s %s\n", c.At.Format("15:04:05"), c.Op, c.Path)
			}
			today := core.FormatDate(now())
			summary, err := Tools.Execute(ctx, session, core.ObserveSignalsCall{Date: today})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				Logger.Warn("re-observing today", zap.Error(err))
				fmt.Fprintf(out, "[error] observing %s: %v\n", today, err)
				continue
			}
			Logger.Info("vault activity", zap.Int("changes", len(batch)), zap.String("date", today))
			fmt.Fprintln(out, summary)
		}
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchGoal, "goal", "", "Goal id or prefix (defaults to the active goal)")
	rootCmd.AddCommand(watchCmd)
}
