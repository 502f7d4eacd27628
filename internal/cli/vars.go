package cli

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/internal/observability"
	"github.com/valter-silva-au/tinker/pkg/models"
)

// ToolRunner executes one alignment tool for a session.
type ToolRunner interface {
	Execute(ctx context.Context, s *core.Session, call core.ToolCall) (string, error)
}

// ChatAgent runs one bounded conversation turn.
type ChatAgent interface {
	Turn(ctx context.Context, s *core.Session, userText string) (*core.TurnResult, error)
}

// Migrator upgrades the goal store file to the current schema.
type Migrator interface {
	Migrate() (from int, err error)
}

// ChangeSource streams debounced vault change batches until closed.
type ChangeSource interface {
	Batches() <-chan []models.ChangeEvent
	Close() error
}

// Service instances, set during app initialization in app.go.
var (
	Config    *models.TinkerConfig
	Logger    *zap.Logger = zap.NewNop()
	Clock     core.Clock  = core.NewSystemClock()
	Goals     core.GoalContextStore
	Tools     ToolRunner
	Agent     ChatAgent
	Reports   core.ReportRenderer
	Events    core.EventLogger
	GoalsFile Migrator

	// NewWatcher opens a vault watcher. Nil when watching is unavailable.
	NewWatcher func() (ChangeSource, error)
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

// logEvent records a domain event when an event logger is configured.
func logEvent(eventType string, data map[string]any) {
	if Events == nil {
		return
	}
	if err := Events.LogEvent(eventType, data); err != nil {
		Logger.Warn("recording event", zap.String("type", eventType), zap.Error(err))
	}
}

// now returns the current time from the configured clock.
func now() time.Time {
	return Clock.Now()
}
