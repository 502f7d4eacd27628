package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionDrift          = "goal_drifting"
	ConditionMissedCheckIns = "missed_check_ins"
	ConditionExhaustedTurn  = "turn_exhausted"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	GoalID      string        `json:"goal_id,omitempty"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire.
type AlertThresholds struct {
	// LowScore is the score below which an assessment counts toward drift.
	LowScore int `yaml:"low_score" json:"low_score"`
	// LowScoreDays is how many consecutive low assessments raise a drift alert.
	LowScoreDays int `yaml:"low_score_days" json:"low_score_days"`
	// MissedDays is how many days without an assessment raise a missed
	// check-in alert.
	MissedDays int `yaml:"missed_days" json:"missed_days"`
}

// DefaultAlertThresholds returns the thresholds used when none are configured.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{LowScore: 40, LowScoreDays: 3, MissedDays: 2}
}

// ThresholdsFromConfig maps the alerts section of .tinkerconfig.
func ThresholdsFromConfig(cfg models.AlertConfig) AlertThresholds {
	t := AlertThresholds{LowScore: cfg.LowScore, LowScoreDays: cfg.LowScoreDays, MissedDays: cfg.MissedDays}
	def := DefaultAlertThresholds()
	if t.LowScoreDays <= 0 {
		t.LowScoreDays = def.LowScoreDays
	}
	if t.MissedDays <= 0 {
		t.MissedDays = def.MissedDays
	}
	return t
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine. A nil now uses time.Now; its
// location decides calendar days.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds, now func() time.Time) AlertEngine {
	if now == nil {
		now = time.Now
	}
	return &alertEngine{eventLog: eventLog, thresholds: thresholds, now: now}
}

// goalHistory is what the event log says about one goal.
type goalHistory struct {
	id          string
	description string
	createdAt   time.Time
	archived    bool
	// scores by assessment date; a re-run replaces the earlier score.
	scores map[string]int
}

// Evaluate reads the event log and returns every triggered alert, ordered
// by severity then id.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading events for alerts: %w", err)
	}
	now := ae.now()

	goals := map[string]*goalHistory{}
	get := func(id string) *goalHistory {
		g, ok := goals[id]
		if !ok {
			g = &goalHistory{id: id, scores: map[string]int{}}
			goals[id] = g
		}
		return g
	}

	var exhausted []Event
	for _, event := range events {
		id := event.GoalID()
		switch event.Type {
		case core.EventGoalCreated:
			if id == "" {
				continue
			}
			g := get(id)
			g.createdAt = event.Time
			g.description, _ = event.Data["description"].(string)
		case core.EventGoalArchived:
			if id != "" {
				get(id).archived = true
			}
		case core.EventAssessmentCreated:
			date, _ := event.Data["date"].(string)
			score, ok := number(event.Data["score"])
			if id == "" || date == "" || !ok {
				continue
			}
			get(id).scores[date] = int(score)
		case core.EventTurnExhausted:
			exhausted = append(exhausted, event)
		}
	}

	var alerts []Alert
	for _, g := range goals {
		if g.archived {
			continue
		}
		if a, ok := ae.checkDrift(g, now); ok {
			alerts = append(alerts, a)
		}
		if a, ok := ae.checkMissed(g, now); ok {
			alerts = append(alerts, a)
		}
	}
	alerts = append(alerts, ae.checkExhausted(exhausted, now)...)

	rank := map[AlertSeverity]int{SeverityHigh: 0, SeverityMedium: 1, SeverityLow: 2}
	sort.Slice(alerts, func(i, j int) bool {
		if rank[alerts[i].Severity] != rank[alerts[j].Severity] {
			return rank[alerts[i].Severity] < rank[alerts[j].Severity]
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

// checkDrift fires when the last LowScoreDays assessed dates all scored
// below LowScore.
func (ae *alertEngine) checkDrift(g *goalHistory, now time.Time) (Alert, bool) {
	n := ae.thresholds.LowScoreDays
	if n <= 0 || len(g.scores) < n {
		return Alert{}, false
	}
	dates := sortedDates(g.scores)
	recent := dates[len(dates)-n:]
	for _, d := range recent {
		if g.scores[d] >= ae.thresholds.LowScore {
			return Alert{}, false
		}
	}
	return Alert{
		ID:        "drift-" + g.id,
		GoalID:    g.id,
		Condition: ConditionDrift,
		Severity:  SeverityHigh,
		Message: fmt.Sprintf("%s scored below %d on the last %d assessments (%s to %s)",
			g.label(), ae.thresholds.LowScore, n, recent[0], recent[len(recent)-1]),
		TriggeredAt: now.UTC(),
	}, true
}

// checkMissed fires when no assessment exists for MissedDays calendar days,
// counting from the last assessed date or, failing that, the lock date.
func (ae *alertEngine) checkMissed(g *goalHistory, now time.Time) (Alert, bool) {
	if ae.thresholds.MissedDays <= 0 {
		return Alert{}, false
	}
	loc := now.Location()
	today := startOfDay(now)

	var last time.Time
	if dates := sortedDates(g.scores); len(dates) > 0 {
		d, err := core.ParseDate(dates[len(dates)-1], loc)
		if err != nil {
			return Alert{}, false
		}
		last = d
	} else if !g.createdAt.IsZero() {
		last = startOfDay(g.createdAt.In(loc)).AddDate(0, 0, -1)
	} else {
		return Alert{}, false
	}

	missed := int(today.Sub(last).Hours()/24+0.5) - 1
	if missed < ae.thresholds.MissedDays {
		return Alert{}, false
	}
	return Alert{
		ID:          "missed-" + g.id,
		GoalID:      g.id,
		Condition:   ConditionMissedCheckIns,
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%s has no check-in for %d days", g.label(), missed),
		TriggeredAt: now.UTC(),
	}, true
}

// checkExhausted reports turns that hit the iteration ceiling in the last day.
func (ae *alertEngine) checkExhausted(events []Event, now time.Time) []Alert {
	cutoff := now.Add(-24 * time.Hour)
	var alerts []Alert
	for _, e := range events {
		if e.Time.Before(cutoff) {
			continue
		}
		iterations, _ := number(e.Data["iterations"])
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("exhausted-%s-%d", e.GoalID(), e.Time.Unix()),
			GoalID:      e.GoalID(),
			Condition:   ConditionExhaustedTurn,
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("a chat turn stopped after %d tool iterations without an answer", int(iterations)),
			TriggeredAt: e.Time,
		})
	}
	return alerts
}

func (g *goalHistory) label() string {
	if g.description != "" {
		return fmt.Sprintf("goal %q", g.description)
	}
	short := g.id
	if len(short) > 8 {
		short = short[:8]
	}
	return "goal " + short
}

func sortedDates(scores map[string]int) []string {
	dates := make([]string, 0, len(scores))
	for d := range scores {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
