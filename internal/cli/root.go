package cli

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// AppVersion returns the version string set via SetVersionInfo.
func AppVersion() string {
	return appVersion
}

var rootCmd = &cobra.Command{
	Use:   "tinker",
	Short: "tinker - daily goal alignment for a markdown vault",
	Long: `tinker keeps you honest about one or two long-running goals.

It reads what you actually did each day from your markdown vault (daily
notes, feedback files, reflections and edited documents), scores that
evidence against the goal you locked in, and talks it through with you.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tinker %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var completionsOnce sync.Once

// Execute runs the root command.
func Execute() error {
	completionsOnce.Do(registerGoalCompletions)
	return rootCmd.Execute()
}
