package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/internal/storage"
	"github.com/valter-silva-au/tinker/pkg/models"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type recordedEvent struct {
	Type string
	Data map[string]any
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) LogEvent(eventType string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (f *fakeEvents) ofType(eventType string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type toolInvocation struct {
	goalID string
	call   core.ToolCall
}

type fakeTools struct {
	mu    sync.Mutex
	calls []toolInvocation
	fail  map[string]error
}

func (f *fakeTools) Execute(_ context.Context, s *core.Session, call core.ToolCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolInvocation{goalID: s.GoalID, call: call})
	if err := f.fail[call.ToolName()]; err != nil {
		return "", err
	}
	return call.ToolName() + " ok", nil
}

func (f *fakeTools) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.call.ToolName()
	}
	return names
}

// setupServices points the package-level services at a fresh goal store and
// fakes, restoring the previous values when the test ends.
func setupServices(t *testing.T) (storage.GoalStore, *fakeEvents, *fakeTools) {
	t.Helper()

	origGoals, origEvents, origTools, origClock := Goals, Events, Tools, Clock
	origAgent, origFile, origWatcher, origConfig := Agent, GoalsFile, NewWatcher, Config
	t.Cleanup(func() {
		Goals, Events, Tools, Clock = origGoals, origEvents, origTools, origClock
		Agent, GoalsFile, NewWatcher, Config = origAgent, origFile, origWatcher, origConfig
	})

	clock := testNow
	store := storage.NewGoalStore(t.TempDir(), func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	events := &fakeEvents{}
	tools := &fakeTools{fail: map[string]error{}}

	Goals = store
	GoalsFile = store
	Events = events
	Tools = tools
	Clock = core.FixedClock{At: testNow}
	Config = &models.TinkerConfig{Vault: models.VaultConfig{Extension: ".md"}}
	NewWatcher = nil
	return store, events, tools
}

// resetFlags restores every flag variable to its default.
func resetFlags() {
	goalContext, goalDays, goalPhase, goalFlag, listArchived = "", 0, "", "", false
	policyWeights, policyMilestones, policyComplete = nil, nil, nil
	observeGoal, chatGoal, chatNoWatch, watchGoal = "", "", false, ""
	historyGoal, historyLimit = "", 14
	alertsNotify, alertsGoal = false, ""
	metricsJSON, metricsSince = false, "7d"
}

// run executes the root command with args and returns its combined output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := Execute()
	return out.String(), err
}
