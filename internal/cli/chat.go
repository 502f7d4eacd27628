package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/internal/core"
)

var (
	chatGoal    string
	chatNoWatch bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk through your day with tinker",
	Long: `Start an interactive conversation about the active goal.

tinker can resolve dates, observe the vault, run the day's assessment,
look up past scores and save a summary of the conversation into the
day's report. Vault edits made while chatting are picked up before the
next message. Type /quit or send EOF to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Agent == nil {
			return fmt.Errorf("chat agent not initialized")
		}
		goalID, err := resolveGoal(chatGoal)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer stop()

		var queue core.ChangeQueue
		if !chatNoWatch && NewWatcher != nil {
			w, err := NewWatcher()
			if err != nil {
				Logger.Warn("vault watcher unavailable", zap.Error(err))
			} else {
				var wg sync.WaitGroup
				wg.Add(1)
				go func() {
					defer wg.Done()
					for batch := range w.Batches() {
						queue.Push(batch...)
					}
				}()
				defer func() {
					_ = w.Close()
					wg.Wait()
				}()
			}
		}

		return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), core.NewSession(goalID), &queue)
	},
}

// runChat reads one message per line and runs a turn for each, draining
// queued vault changes before every turn.
func runChat(ctx context.Context, in io.Reader, out io.Writer, session *core.Session, queue *core.ChangeQueue) error {
	ext := ".md"
	if Config != nil && Config.Vault.Extension != "" {
		ext = Config.Vault.Extension
	}

	fmt.Fprintln(out, "tinker is listening. Type /quit to leave.")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		if changes := queue.Drain(); len(changes) > 0 {
			if session.ApplyChanges(changes, ext) {
				Logger.Debug("vault changed, dropping cached observation", zap.Int("changes", len(changes)))
			}
		}

		result, err := Agent.Turn(ctx, session, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, core.ErrAuthentication) || errors.Is(err, core.ErrMissingAPIKey) || errors.Is(err, core.ErrNoActiveGoal) {
				return err
			}
			fmt.Fprintf(out, "[error] %v\n", err)
			continue
		}

		fmt.Fprintln(out, result.Text)
		if result.Exhausted {
			fmt.Fprintf(out, "[stopped after %d tool rounds without a final answer]\n", result.Iterations)
		}
		if result.AssessmentID != "" {
			Logger.Debug("turn produced assessment", zap.String("assessment_id", result.AssessmentID))
		}
	}
}

func init() {
	chatCmd.Flags().StringVar(&chatGoal, "goal", "", "Goal id or prefix (defaults to the active goal)")
	chatCmd.Flags().BoolVar(&chatNoWatch, "no-watch", false, "Do not watch the vault for changes during the session")
	rootCmd.AddCommand(chatCmd)
}
