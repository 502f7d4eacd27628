package core

import (
	"fmt"
	"strings"

	"github.com/valter-silva-au/tinker/pkg/models"
)

const assessmentSystemPrompt = `You are tinker, a strict but fair accountability partner scoring one day of work against a long-running goal.

Scoring categories are the policy weights you are given. For each category return a score between 0 and round(weight*100); the overall score is the sum of the category scores.

Evidence sources, strongest first:
1. File diffs: what actually changed in the vault on this date.
2. Ships: things the user marked as shipped.
3. Priority actions: planned tasks, completed or not. Time-blocked tasks are deep work.
4. Feedback from other people, positive or negative.
5. Reflections the user wrote.
6. Chat excerpts written by the user. Never treat assistant suggestions as accomplished work.

Rules:
- Score today only. Work from other dates, including work mentioned in reflections, does not count.
- Do not penalize optional structure. A missing daily note, empty sections or absent feedback are not failures when other evidence shows aligned work.
- Weigh evidence by how directly it advances the goal in its current phase.
- Drift indicators name concrete ways the day pulled away from the goal. Momentum indicators name concrete ways it advanced.

Respond with a single JSON object and nothing else:
{
  "overallScore": <integer 0-100>,
  "signalBreakdown": [
    {"category": "<policy category>", "weight": <policy weight>, "score": <integer>, "maxScore": <integer>, "reasoning": "<one or two sentences>"}
  ],
  "driftIndicators": ["<string>"],
  "momentumIndicators": ["<string>"]
}`

// buildAssessmentPayload renders the per-run user message for the model.
func buildAssessmentPayload(goal models.Goal, signals *models.DaySignals, policy models.Policy, dayNumber int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Goal\n%s\n", goal.Description)
	if goal.Context != "" {
		fmt.Fprintf(&b, "\n## Context\n%s\n", goal.Context)
	}
	fmt.Fprintf(&b, "\nPhase: %s\n", goal.CurrentPhase)
	fmt.Fprintf(&b, "Date: %s (day %d of %d)\n", signals.Date, dayNumber, goal.TimeWindowDays)

	b.WriteString("\n# Policy weights\n")
	for _, w := range policy.Weights {
		fmt.Fprintf(&b, "- %s: %.2f (max %d)\n", w.Category, w.Weight, MaxScore(w.Weight))
	}
	if len(policy.Milestones) > 0 {
		b.WriteString("\n# Milestones\n")
		for _, m := range policy.Milestones {
			mark := " "
			if m.Completed {
				mark = "x"
			}
			if m.Deadline != "" {
				fmt.Fprintf(&b, "- [%s] %s (due %s)\n", mark, m.Text, m.Deadline)
			} else {
				fmt.Fprintf(&b, "- [%s] %s\n", mark, m.Text)
			}
		}
	}

	b.WriteString("\n# Priority actions\n")
	if len(signals.PriorityActions) == 0 {
		b.WriteString("(none recorded)\n")
	}
	for _, t := range signals.PriorityActions {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s", mark, t.Title)
		if t.TimeAnnotation != "" {
			fmt.Fprintf(&b, " (%s, %d min, %s)", t.TimeAnnotation, t.DurationMin, t.Effort)
		}
		if len(t.Tags) > 0 {
			fmt.Fprintf(&b, " tags: %s", strings.Join(t.Tags, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n# Ships\n")
	if len(signals.Ships) == 0 {
		b.WriteString("(none recorded)\n")
	}
	for _, s := range signals.Ships {
		mark := " "
		if s.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", mark, s.Title)
	}

	if len(signals.Feedback) > 0 {
		b.WriteString("\n# Feedback\n")
		for _, f := range signals.Feedback {
			fmt.Fprintf(&b, "- (%s) %s\n", f.Polarity, f.Text)
		}
	}

	if len(signals.Reflections) > 0 {
		b.WriteString("\n# Reflections\n")
		for _, r := range signals.Reflections {
			fmt.Fprintf(&b, "From %s:\n%s\n\n", r.SourceFile, r.Text)
		}
	}

	act := signals.VaultActivity
	fmt.Fprintf(&b, "\n# Vault activity\nFiles touched: %d\n", act.FilesTouched)
	if len(act.ActiveFolders) > 0 {
		fmt.Fprintf(&b, "Active folders: %s\n", strings.Join(act.ActiveFolders, ", "))
	}
	for _, f := range act.ModifiedFiles {
		fmt.Fprintf(&b, "\n## %s", f.Path)
		if f.CreatedToday {
			b.WriteString(" (new)")
		}
		b.WriteString("\n")
		if len(f.Headings) > 0 {
			fmt.Fprintf(&b, "Headings: %s\n", strings.Join(f.Headings, " | "))
		}
		if f.Source == models.DiffSourceGit {
			fmt.Fprintf(&b, "```diff\n%s\n```\n", f.Diff)
		} else {
			fmt.Fprintf(&b, "%s\n", f.Diff)
		}
	}

	if signals.ConversationContext != "" {
		fmt.Fprintf(&b, "\n# Chat excerpts from the user\n%s\n", signals.ConversationContext)
	}
	return b.String()
}

// chatSystemPrompt is the system contract for the conversational tool loop.
func chatSystemPrompt(goal models.Goal, today string) string {
	var b strings.Builder
	b.WriteString("You are tinker, an accountability partner helping the user stay aligned with one goal.\n\n")
	fmt.Fprintf(&b, "Goal: %s\nPhase: %s\nTime window: %d days, locked %s\nToday: %s\n",
		goal.Description, goal.CurrentPhase, goal.TimeWindowDays, FormatDate(goal.LockedAt), today)
	if goal.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", goal.Context)
	}
	b.WriteString(`
For a check-in:
1. Call resolve_date first and use its resolved date for every later call.
2. Call observe_signals for that date.
3. Call run_assessment to score it, then discuss the result.
4. Before the conversation ends, call save_conversation_summary with a short summary. If one already exists, merge both into one and call again with overwrite=true.

Use get_assessment_history when the user asks about trends. Be concise and concrete.`)
	return b.String()
}
