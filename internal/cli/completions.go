package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// completeGoalIDs lists active goal ids with their description.
func completeGoalIDs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Goals == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	goals, err := Goals.ListGoals()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var ids []string
	for _, g := range goals {
		if toComplete == "" || strings.HasPrefix(g.ID, toComplete) {
			ids = append(ids, g.ID+"\t"+g.Description)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

func completeGoalFlag(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeGoalIDs(cmd, nil, toComplete)
}

// completePhases lists the goal phases.
func completePhases(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{
		string(models.PhaseExploration) + "\tFinding the shape of the work",
		string(models.PhaseExecution) + "\tBuilding and shipping",
		string(models.PhaseRefinement) + "\tPolishing what exists",
	}, cobra.ShellCompDirectiveNoFileComp
}

// registerGoalCompletions wires completion for goal arguments and --goal
// flags. It runs from Execute, after every command's flags are defined.
func registerGoalCompletions() {
	goalArchiveCmd.ValidArgsFunction = completeGoalIDs
	goalUseCmd.ValidArgsFunction = completeGoalIDs
	goalPhaseCmd.ValidArgsFunction = completePhases

	for _, c := range []*cobra.Command{
		goalContextCmd, goalPhaseCmd, goalPolicyCmd,
		observeCmd, assessCmd, chatCmd, historyCmd, watchCmd, alertsCmd,
	} {
		_ = c.RegisterFlagCompletionFunc("goal", completeGoalFlag)
	}
}
