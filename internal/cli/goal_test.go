package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/internal/storage"
	"github.com/valter-silva-au/tinker/pkg/models"
)

func TestGoalLock(t *testing.T) {
	store, events, _ := setupServices(t)

	out, err := run(t, "goal", "lock", "Finish", "the", "thesis", "--days", "45", "--phase", "execution", "--context", "last semester")
	require.NoError(t, err)
	assert.Contains(t, out, "Locked goal")
	assert.Contains(t, out, "Finish the thesis")
	assert.Contains(t, out, "window: 45 days from 2026-03-14")

	goals, err := store.ListGoals()
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, models.PhaseExecution, goals[0].CurrentPhase)
	assert.Equal(t, "last semester", goals[0].Context)

	created := events.ofType(core.EventGoalCreated)
	require.Len(t, created, 1)
	assert.Equal(t, goals[0].ID, created[0].Data["goal_id"])
	assert.Equal(t, "Finish the thesis", created[0].Data["description"])
}

func TestGoalLock_Capacity(t *testing.T) {
	_, events, _ := setupServices(t)

	_, err := run(t, "goal", "lock", "one")
	require.NoError(t, err)
	_, err = run(t, "goal", "lock", "two")
	require.NoError(t, err)
	_, err = run(t, "goal", "lock", "three")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrGoalCapacity), "got %v", err)
	assert.Len(t, events.ofType(core.EventGoalCreated), 2)
}

func TestGoalList(t *testing.T) {
	setupServices(t)

	out, err := run(t, "goal", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No active goals")

	_, err = run(t, "goal", "lock", "Run a marathon", "--days", "90")
	require.NoError(t, err)
	_, err = run(t, "goal", "lock", "Ship the app")
	require.NoError(t, err)

	out, err = run(t, "goal", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "* "), "first goal is selected: %q", lines[0])
	assert.Contains(t, lines[0], "day 1 of 90")
	assert.True(t, strings.HasPrefix(lines[1], "  "))
}

func TestGoalArchiveAndUse(t *testing.T) {
	store, events, _ := setupServices(t)

	first, err := store.CreateGoal(models.GoalSpec{Description: "first"})
	require.NoError(t, err)
	second, err := store.CreateGoal(models.GoalSpec{Description: "second"})
	require.NoError(t, err)

	out, err := run(t, "goal", "use", second.ID[:8])
	require.NoError(t, err)
	assert.Contains(t, out, shortID(second.ID))
	active, err := store.ActiveGoalID()
	require.NoError(t, err)
	assert.Equal(t, second.ID, active)

	out, err = run(t, "goal", "archive", first.ID[:8])
	require.NoError(t, err)
	assert.Contains(t, out, "Archived goal")

	archived := events.ofType(core.EventGoalArchived)
	require.Len(t, archived, 1)
	assert.Equal(t, first.ID, archived[0].Data["goal_id"])

	out, err = run(t, "goal", "list", "--archived")
	require.NoError(t, err)
	assert.Contains(t, out, "first")

	_, err = run(t, "goal", "archive", "does-not-exist")
	assert.ErrorIs(t, err, storage.ErrGoalNotFound)
}

func TestGoalContextAndPhase(t *testing.T) {
	store, _, _ := setupServices(t)
	g, err := store.CreateGoal(models.GoalSpec{Description: "write"})
	require.NoError(t, err)

	_, err = run(t, "goal", "context", "mornings", "only")
	require.NoError(t, err)
	_, err = run(t, "goal", "phase", "refinement")
	require.NoError(t, err)

	gc, err := store.GetContext(g.ID)
	require.NoError(t, err)
	assert.Equal(t, "mornings only", gc.Goal.Context)
	assert.Equal(t, models.PhaseRefinement, gc.Goal.CurrentPhase)

	_, err = run(t, "goal", "phase", "procrastination")
	assert.Error(t, err)
}

func TestGoalCommands_NoActiveGoal(t *testing.T) {
	setupServices(t)

	_, err := run(t, "goal", "phase", "execution")
	assert.ErrorIs(t, err, core.ErrNoActiveGoal)
}

func TestGoalPolicy(t *testing.T) {
	store, _, _ := setupServices(t)
	g, err := store.CreateGoal(models.GoalSpec{Description: "write"})
	require.NoError(t, err)

	out, err := run(t, "goal", "policy")
	require.NoError(t, err)
	assert.Contains(t, out, "Policy v1")
	assert.Contains(t, out, "build")

	out, err = run(t, "goal", "policy", "--weight", "build=0.5", "--weight", "ship=0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Policy v2")
	assert.Contains(t, out, "max 50 points")

	_, err = run(t, "goal", "policy", "--weight", "build=0.5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum")

	out, err = run(t, "goal", "policy", "--milestone", "first draft@2026-04-01")
	require.NoError(t, err)
	assert.Contains(t, out, "[ ]")
	assert.Contains(t, out, "first draft (due 2026-04-01)")
	assert.Contains(t, out, "Policy v2", "milestones do not bump the version")

	gc, err := store.GetContext(g.ID)
	require.NoError(t, err)
	require.Len(t, gc.Policy.Milestones, 1)

	out, err = run(t, "goal", "policy", "--complete", gc.Policy.Milestones[0].ID[:6])
	require.NoError(t, err)
	assert.Contains(t, out, "[x]")
}

func TestParseWeights(t *testing.T) {
	tests := []struct {
		name    string
		specs   []string
		want    []models.SignalWeight
		wantErr bool
	}{
		{"valid", []string{"build=0.6", " ship = 0.4"}, []models.SignalWeight{{Category: "build", Weight: 0.6}, {Category: "ship", Weight: 0.4}}, false},
		{"missing equals", []string{"build"}, nil, true},
		{"not a number", []string{"build=lots"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWeights(tt.specs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMilestone(t *testing.T) {
	setupServices(t)

	m, err := parseMilestone("demo day @ 2026-05-02")
	require.NoError(t, err)
	assert.Equal(t, "demo day", m.Text)
	assert.Equal(t, "2026-05-02", m.Deadline)
	assert.NotEmpty(t, m.ID)

	m, err = parseMilestone("no deadline")
	require.NoError(t, err)
	assert.Empty(t, m.Deadline)

	_, err = parseMilestone("@2026-05-02")
	assert.Error(t, err)
	_, err = parseMilestone("bad date@May 2")
	assert.Error(t, err)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "3f2a9c1d", shortID("3f2a9c1d-0000-4000-8000-000000000000"))
	assert.Equal(t, "abc", shortID("abc"))
}
