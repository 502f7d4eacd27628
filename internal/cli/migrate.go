package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tinker/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade the goal store to the current schema",
	Long: `Rewrite the goal store file in the current schema.

Older files are read transparently, so this is only needed to make the
upgrade permanent. Single-goal files become one goal context; files with a
shared transcript have their messages split per goal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if GoalsFile == nil {
			return fmt.Errorf("goal store not initialized")
		}
		from, err := GoalsFile.Migrate()
		if err != nil {
			return fmt.Errorf("migrating goal store: %w", err)
		}
		out := cmd.OutOrStdout()
		if from == storage.SchemaVersion {
			fmt.Fprintf(out, "Goal store is already at schema v%d.\n", storage.SchemaVersion)
			return nil
		}
		fmt.Fprintf(out, "Migrated goal store from schema v%d to v%d.\n", from, storage.SchemaVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
