package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/pkg/models"
)

var (
	historyGoal  string
	historyLimit int
)

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	scoreHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	scoreMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	scoreLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	driftStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	momentumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
)

const barWidth = 20

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent assessments for a goal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveGoal(historyGoal)
		if err != nil {
			return err
		}
		gc, err := Goals.GetContext(id)
		if err != nil {
			return fmt.Errorf("loading goal: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), renderHistory(gc, historyLimit))
		return nil
	},
}

// renderHistory formats the last limit assessments, oldest first.
func renderHistory(gc *models.GoalContext, limit int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(gc.Goal.Description))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s  phase %s  policy v%d  locked %s",
		shortID(gc.Goal.ID), gc.Goal.CurrentPhase, gc.Policy.Version, gc.Goal.LockedAt.Format(core.DateLayout))))
	b.WriteString("\n\n")

	recent := core.RecentAssessments(gc.Assessments, limit)
	if len(recent) == 0 {
		b.WriteString("No assessments yet. Run: tinker assess\n")
		return b.String()
	}

	prev := -1
	for _, a := range recent {
		fmt.Fprintf(&b, "%s  day %-3d %s %s %s\n",
			a.Date, a.DayNumber, scoreBar(a.OverallScore), styleScore(a.OverallScore), trend(prev, a.OverallScore))
		for _, d := range a.DriftIndicators {
			b.WriteString("    " + driftStyle.Render("- "+d) + "\n")
		}
		for _, m := range a.MomentumIndicators {
			b.WriteString("    " + momentumStyle.Render("+ "+m) + "\n")
		}
		prev = a.OverallScore
	}

	var sum int
	for _, a := range recent {
		sum += a.OverallScore
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("average %.1f over %d assessments", float64(sum)/float64(len(recent)), len(recent))))
	b.WriteString("\n")
	return b.String()
}

func styleScore(score int) string {
	text := fmt.Sprintf("%3d/100", score)
	switch {
	case score >= 70:
		return scoreHigh.Render(text)
	case score >= 40:
		return scoreMid.Render(text)
	default:
		return scoreLow.Render(text)
	}
}

func scoreBar(score int) string {
	filled := score * barWidth / 100
	filled = max(0, min(barWidth, filled))
	return strings.Repeat("█", filled) + dimStyle.Render(strings.Repeat("░", barWidth-filled))
}

func trend(prev, score int) string {
	switch {
	case prev < 0:
		return ""
	case score > prev:
		return "↑"
	case score < prev:
		return "↓"
	default:
		return "→"
	}
}

func init() {
	historyCmd.Flags().StringVar(&historyGoal, "goal", "", "Goal id or prefix (defaults to the active goal)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 14, "Number of assessments to show")
	rootCmd.AddCommand(historyCmd)
}
