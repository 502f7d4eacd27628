package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/pkg/models"
)

var (
	goalContext  string
	goalDays     int
	goalPhase    string
	goalFlag     string
	listArchived bool

	policyWeights    []string
	policyMilestones []string
	policyComplete   []string
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Lock in, list and manage goals",
	Long: `Manage the goals tinker holds you to.

At most two goals can be active at once. Archiving a goal keeps its
assessment history and transcript.`,
}

var goalLockCmd = &cobra.Command{
	Use:   "lock <description>",
	Short: "Lock in a new goal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Goals == nil {
			return fmt.Errorf("goal store not initialized")
		}
		spec := models.GoalSpec{
			Description:    strings.Join(args, " "),
			Context:        goalContext,
			TimeWindowDays: goalDays,
			Phase:          models.Phase(goalPhase),
		}
		goal, err := Goals.CreateGoal(spec)
		if err != nil {
			return fmt.Errorf("locking goal: %w", err)
		}
		logEvent(core.EventGoalCreated, map[string]any{
			"goal_id":     goal.ID,
			"description": goal.Description,
			"window_days": goal.TimeWindowDays,
		})

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Locked goal %s: %s\n", shortID(goal.ID), goal.Description)
		fmt.Fprintf(out, "  window: %d days from %s\n", goal.TimeWindowDays, goal.LockedAt.Format(core.DateLayout))
		fmt.Fprintf(out, "  phase:  %s\n", goal.CurrentPhase)
		return nil
	},
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active goals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Goals == nil {
			return fmt.Errorf("goal store not initialized")
		}
		out := cmd.OutOrStdout()

		if listArchived {
			archived, err := Goals.ListArchived()
			if err != nil {
				return fmt.Errorf("listing archived goals: %w", err)
			}
			if len(archived) == 0 {
				fmt.Fprintln(out, "No archived goals.")
				return nil
			}
			for _, a := range archived {
				fmt.Fprintf(out, "  %s  %s  (archived %s, %d assessments)\n",
					shortID(a.Goal.ID), a.Goal.Description, a.ArchivedAt.Format(core.DateLayout), len(a.Assessments))
			}
			return nil
		}

		goals, err := Goals.ListGoals()
		if err != nil {
			return fmt.Errorf("listing goals: %w", err)
		}
		if len(goals) == 0 {
			fmt.Fprintln(out, "No active goals. Lock one in with: tinker goal lock \"<description>\"")
			return nil
		}
		active, err := Goals.ActiveGoalID()
		if err != nil {
			return fmt.Errorf("reading active goal: %w", err)
		}
		today := core.FormatDate(now())
		for _, g := range goals {
			marker := " "
			if g.ID == active {
				marker = "*"
			}
			day, _ := core.DayNumber(g.LockedAt, today, now().Location())
			fmt.Fprintf(out, "%s %s  %s  [%s, day %d of %d]\n",
				marker, shortID(g.ID), g.Description, g.CurrentPhase, day, g.TimeWindowDays)
		}
		return nil
	},
}

var goalArchiveCmd = &cobra.Command{
	Use:   "archive <goal-id>",
	Short: "Archive a goal, keeping its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Goals == nil {
			return fmt.Errorf("goal store not initialized")
		}
		gc, err := Goals.GetContext(args[0])
		if err != nil {
			return fmt.Errorf("finding goal %s: %w", args[0], err)
		}
		if err := Goals.ArchiveGoal(gc.Goal.ID); err != nil {
			return fmt.Errorf("archiving goal: %w", err)
		}
		logEvent(core.EventGoalArchived, map[string]any{
			"goal_id":     gc.Goal.ID,
			"assessments": len(gc.Assessments),
		})
		fmt.Fprintf(cmd.OutOrStdout(), "Archived goal %s: %s\n", shortID(gc.Goal.ID), gc.Goal.Description)
		return nil
	},
}

var goalUseCmd = &cobra.Command{
	Use:   "use <goal-id>",
	Short: "Select the goal that chat, observe and assess act on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Goals == nil {
			return fmt.Errorf("goal store not initialized")
		}
		if err := Goals.SetActiveGoal(args[0]); err != nil {
			return fmt.Errorf("selecting goal: %w", err)
		}
		id, err := Goals.ActiveGoalID()
		if err != nil {
			return fmt.Errorf("reading active goal: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Now working on goal %s\n", shortID(id))
		return nil
	},
}

var goalContextCmd = &cobra.Command{
	Use:   "context <text>",
	Short: "Replace the goal's background context",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveGoal(goalFlag)
		if err != nil {
			return err
		}
		if err := Goals.UpdateGoalContext(id, strings.Join(args, " ")); err != nil {
			return fmt.Errorf("updating context: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated context for goal %s\n", shortID(id))
		return nil
	},
}

var goalPhaseCmd = &cobra.Command{
	Use:   "phase <exploration|execution|refinement>",
	Short: "Set the goal's current phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveGoal(goalFlag)
		if err != nil {
			return err
		}
		if err := Goals.SetPhase(id, models.Phase(args[0])); err != nil {
			return fmt.Errorf("setting phase: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Goal %s is now in %s\n", shortID(id), args[0])
		return nil
	},
}

var goalPolicyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show or change the goal's scoring policy",
	Long: `Show the goal's scoring policy, or change it.

Weights are given as category=weight and must sum to 1.0 when any are set;
the full set replaces the current weights and bumps the policy version.
Milestones are given as "text" or "text@YYYY-MM-DD".

Examples:
  tinker goal policy
  tinker goal policy --weight build=0.5 --weight ship=0.3 --weight reflect=0.2
  tinker goal policy --milestone "first draft@2026-05-01"
  tinker goal policy --complete 3f2a`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveGoal(goalFlag)
		if err != nil {
			return err
		}
		gc, err := Goals.GetContext(id)
		if err != nil {
			return fmt.Errorf("loading goal: %w", err)
		}
		policy := gc.Policy

		changed := false
		if len(policyWeights) > 0 {
			weights, err := parseWeights(policyWeights)
			if err != nil {
				return err
			}
			policy.Weights = weights
			changed = true
		}
		for _, m := range policyMilestones {
			milestone, err := parseMilestone(m)
			if err != nil {
				return err
			}
			policy.Milestones = append(policy.Milestones, milestone)
			changed = true
		}
		for _, prefix := range policyComplete {
			if err := completeMilestone(policy.Milestones, prefix); err != nil {
				return err
			}
			changed = true
		}

		if changed {
			updated, err := Goals.UpdatePolicy(id, policy)
			if err != nil {
				return fmt.Errorf("updating policy: %w", err)
			}
			policy = *updated
		}
		printPolicy(cmd, policy)
		return nil
	},
}

// resolveGoal returns the explicit goal id, or the active goal.
func resolveGoal(explicit string) (string, error) {
	if Goals == nil {
		return "", fmt.Errorf("goal store not initialized")
	}
	if explicit != "" {
		gc, err := Goals.GetContext(explicit)
		if err != nil {
			return "", fmt.Errorf("finding goal %s: %w", explicit, err)
		}
		return gc.Goal.ID, nil
	}
	id, err := Goals.ActiveGoalID()
	if err != nil {
		return "", fmt.Errorf("reading active goal: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: lock one in with: tinker goal lock \"<description>\"", core.ErrNoActiveGoal)
	}
	return id, nil
}

func parseWeights(specs []string) ([]models.SignalWeight, error) {
	weights := make([]models.SignalWeight, 0, len(specs))
	for _, spec := range specs {
		category, value, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q, expected category=weight", spec)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", spec, err)
		}
		weights = append(weights, models.SignalWeight{Category: strings.TrimSpace(category), Weight: w})
	}
	return weights, nil
}

func parseMilestone(spec string) (models.Milestone, error) {
	text, deadline, _ := strings.Cut(spec, "@")
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Milestone{}, fmt.Errorf("milestone %q has no text", spec)
	}
	deadline = strings.TrimSpace(deadline)
	if deadline != "" {
		if _, err := core.ParseDate(deadline, now().Location()); err != nil {
			return models.Milestone{}, fmt.Errorf("milestone deadline: %w", err)
		}
	}
	return models.Milestone{ID: uuid.NewString(), Text: text, Deadline: deadline}, nil
}

func completeMilestone(milestones []models.Milestone, prefix string) error {
	match := -1
	for i, m := range milestones {
		if strings.HasPrefix(m.ID, prefix) {
			if match >= 0 {
				return fmt.Errorf("milestone id %q is ambiguous", prefix)
			}
			match = i
		}
	}
	if match < 0 {
		return fmt.Errorf("no milestone matches %q", prefix)
	}
	milestones[match].Completed = true
	return nil
}

func printPolicy(cmd *cobra.Command, p models.Policy) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Policy v%d\n", p.Version)
	for _, w := range p.Weights {
		fmt.Fprintf(out, "  %-12s %.2f (max %d points)\n", w.Category, w.Weight, core.MaxScore(w.Weight))
	}
	if len(p.Milestones) > 0 {
		fmt.Fprintln(out, "Milestones:")
		for _, m := range p.Milestones {
			box := "[ ]"
			if m.Completed {
				box = "[x]"
			}
			due := ""
			if m.Deadline != "" {
				due = " (due " + m.Deadline + ")"
			}
			fmt.Fprintf(out, "  %s %s %s%s\n", box, shortID(m.ID), m.Text, due)
		}
	}
}

// shortID abbreviates a uuid for display; commands accept the prefix back.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	goalLockCmd.Flags().StringVar(&goalContext, "context", "", "Background on why this goal matters")
	goalLockCmd.Flags().IntVar(&goalDays, "days", 0, "Length of the goal window in days (default 30)")
	goalLockCmd.Flags().StringVar(&goalPhase, "phase", "", "Starting phase: exploration, execution or refinement")
	goalListCmd.Flags().BoolVar(&listArchived, "archived", false, "List archived goals instead")

	for _, c := range []*cobra.Command{goalContextCmd, goalPhaseCmd, goalPolicyCmd} {
		c.Flags().StringVar(&goalFlag, "goal", "", "Goal id or prefix (defaults to the active goal)")
	}
	goalPolicyCmd.Flags().StringArrayVar(&policyWeights, "weight", nil, "Category weight as category=weight (repeatable)")
	goalPolicyCmd.Flags().StringArrayVar(&policyMilestones, "milestone", nil, "Add a milestone as text or text@YYYY-MM-DD (repeatable)")
	goalPolicyCmd.Flags().StringArrayVar(&policyComplete, "complete", nil, "Mark the milestone with this id prefix complete (repeatable)")

	goalCmd.AddCommand(goalLockCmd, goalListCmd, goalArchiveCmd, goalUseCmd, goalContextCmd, goalPhaseCmd, goalPolicyCmd)
	rootCmd.AddCommand(goalCmd)
}
