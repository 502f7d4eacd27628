package core

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Domain event types written to the event log.
const (
	EventGoalCreated       = "goal.created"
	EventGoalArchived      = "goal.archived"
	EventAssessmentCreated = "assessment.created"
	EventToolExecuted      = "tool.executed"
	EventTurnCompleted     = "turn.completed"
	EventTurnExhausted     = "turn.exhausted"
	EventCheckpointCreated = "checkpoint.created"
)

func logEvent(l EventLogger, eventType string, data map[string]any) {
	if l == nil {
		return
	}
	_ = l.LogEvent(eventType, data)
}
