package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	tinkermcp "github.com/valter-silva-au/tinker/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve tinker's tools over the Model Context Protocol",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdin/stdout",
	Long: `Run an MCP server on stdio so another assistant can drive tinker.

Exposed tools: resolve_date, observe_signals, run_assessment,
save_conversation_summary, get_assessment_history, get_metrics, get_alerts.
Each call works on the active goal unless it passes goal_id. The server
stops on SIGINT, SIGTERM or when the client closes stdin.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tools == nil || Goals == nil {
			return fmt.Errorf("tool executor not initialized")
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := tinkermcp.NewServer(Tools, Goals, MetricsCalc, AlertEngine, appVersion)
		Logger.Info("mcp server listening on stdio", zap.String("version", appVersion))
		err := srv.Run(ctx)
		if err != nil && !errors.Is(err, ctx.Err()) {
			return fmt.Errorf("running MCP server: %w", err)
		}
		Logger.Info("mcp server stopped")
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
