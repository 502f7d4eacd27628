package models

import "time"

// BreakdownItem scores one policy category.
type BreakdownItem struct {
	Category  string  `yaml:"category" json:"category"`
	Weight    float64 `yaml:"weight" json:"weight"`
	Score     int     `yaml:"score" json:"score"`
	MaxScore  int     `yaml:"max_score" json:"maxScore"`
	Reasoning string  `yaml:"reasoning" json:"reasoning"`
}

// Assessment is the model's scored verdict on a day's alignment with a goal.
// OverallScore always equals the clamped sum of the breakdown scores.
type Assessment struct {
	ID                 string          `yaml:"id"`
	GoalID             string          `yaml:"goal_id"`
	Date               string          `yaml:"date"`
	DayNumber          int             `yaml:"day_number"`
	OverallScore       int             `yaml:"overall_score"`
	SignalBreakdown    []BreakdownItem `yaml:"signal_breakdown"`
	DriftIndicators    []string        `yaml:"drift_indicators"`
	MomentumIndicators []string        `yaml:"momentum_indicators"`
	RawSignals         DaySignals      `yaml:"raw_signals"`
	PolicyVersion      int             `yaml:"policy_version"`
	CreatedAt          time.Time       `yaml:"created_at"`
}
