package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/tinker/internal/core"
)

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	GoalsCreated   int            `json:"goals_created"`
	GoalsArchived  int            `json:"goals_archived"`
	Assessments    int            `json:"assessments"`
	MeanScore      float64        `json:"mean_score"`
	LatestScores   map[string]int `json:"latest_scores"`
	ToolCalls      map[string]int `json:"tool_calls"`
	ToolErrors     int            `json:"tool_errors"`
	Turns          int            `json:"turns"`
	ExhaustedTurns int            `json:"exhausted_turns"`
	Checkpoints    int            `json:"checkpoints"`
	EventCount     int            `json:"event_count"`
	OldestEvent    *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent    *time.Time     `json:"newest_event,omitempty"`
}

// ToolNames returns the tools seen, sorted by name.
func (m *Metrics) ToolNames() []string {
	names := make([]string, 0, len(m.ToolCalls))
	for n := range m.ToolCalls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator that reads from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event since the given time. LatestScores holds
// the most recent assessment score per goal.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		LatestScores: make(map[string]int),
		ToolCalls:    make(map[string]int),
	}
	m.EventCount = len(events)

	var scoreSum float64
	var scored int
	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case core.EventGoalCreated:
			m.GoalsCreated++
		case core.EventGoalArchived:
			m.GoalsArchived++
		case core.EventAssessmentCreated:
			m.Assessments++
			if score, ok := number(event.Data["score"]); ok {
				scoreSum += score
				scored++
				m.LatestScores[event.GoalID()] = int(score)
			}
		case core.EventToolExecuted:
			if tool, ok := event.Data["tool"].(string); ok {
				m.ToolCalls[tool]++
			}
			if ok, _ := event.Data["ok"].(bool); !ok {
				m.ToolErrors++
			}
		case core.EventTurnCompleted:
			m.Turns++
		case core.EventTurnExhausted:
			m.Turns++
			m.ExhaustedTurns++
		case core.EventCheckpointCreated:
			m.Checkpoints++
		}
	}
	if scored > 0 {
		m.MeanScore = scoreSum / float64(scored)
	}
	return m, nil
}

// number reads a JSON-decoded numeric field.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
