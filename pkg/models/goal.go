package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Phase is the stage of work a goal is currently in.
type Phase string

const (
	PhaseExploration Phase = "exploration"
	PhaseExecution   Phase = "execution"
	PhaseRefinement  Phase = "refinement"
)

// MaxActiveGoals is the hard cap on simultaneously active goals.
const MaxActiveGoals = 2

// Goal is a long-running, time-boxed objective the user has locked in.
// Only Context, CurrentPhase and Active change after creation.
type Goal struct {
	ID             string    `yaml:"id" json:"id"`
	Description    string    `yaml:"description" json:"description"`
	Context        string    `yaml:"context,omitempty" json:"context,omitempty"`
	TimeWindowDays int       `yaml:"time_window_days" json:"timeWindowDays"`
	LockedAt       time.Time `yaml:"locked_at" json:"lockedAt"`
	CurrentPhase   Phase     `yaml:"current_phase" json:"currentPhase"`
	Active         bool      `yaml:"active" json:"active"`
}

// SignalWeight assigns a share of the daily score to one evidence category.
type SignalWeight struct {
	Category string  `yaml:"category" json:"category"`
	Weight   float64 `yaml:"weight" json:"weight"`
}

// Milestone is a dated checkpoint on the way to a goal.
type Milestone struct {
	ID        string `yaml:"id" json:"id"`
	Text      string `yaml:"text" json:"text"`
	Deadline  string `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	Completed bool   `yaml:"completed" json:"completed"`
}

// Policy is the per-goal scoring configuration handed to the model as guidance.
// Weights must sum to 1.0 and Version increases whenever they change.
type Policy struct {
	Weights    []SignalWeight `yaml:"weights" json:"weights"`
	Milestones []Milestone    `yaml:"milestones,omitempty" json:"milestones,omitempty"`
	Version    int            `yaml:"version" json:"version"`
}

// DefaultPolicy returns the policy assigned to a freshly locked goal.
func DefaultPolicy() Policy {
	return Policy{
		Weights: []SignalWeight{
			{Category: "build", Weight: 0.4},
			{Category: "ship", Weight: 0.3},
			{Category: "learn", Weight: 0.2},
			{Category: "reflect", Weight: 0.1},
		},
		Version: 1,
	}
}

// weightTolerance bounds the rounding error accepted when weights are summed.
const weightTolerance = 1e-6

// Validate checks that the policy has at least one weight, that every weight is
// non-negative with a unique category, and that the weights sum to 1.0.
func (p Policy) Validate() error {
	if len(p.Weights) == 0 {
		return fmt.Errorf("policy has no weights")
	}
	seen := make(map[string]bool, len(p.Weights))
	var sum float64
	for _, w := range p.Weights {
		key := strings.ToLower(strings.TrimSpace(w.Category))
		if key == "" {
			return fmt.Errorf("policy weight has an empty category")
		}
		if seen[key] {
			return fmt.Errorf("policy category %q is listed twice", w.Category)
		}
		seen[key] = true
		if w.Weight < 0 {
			return fmt.Errorf("policy weight for %q is negative", w.Category)
		}
		sum += w.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("policy weights sum to %.4f, must sum to 1.0", sum)
	}
	return nil
}

// WeightFor returns the weight assigned to category, matched case-insensitively.
func (p Policy) WeightFor(category string) (float64, bool) {
	for _, w := range p.Weights {
		if strings.EqualFold(w.Category, category) {
			return w.Weight, true
		}
	}
	return 0, false
}

// SameWeights reports whether two policies assign identical weights in the same order.
func (p Policy) SameWeights(other Policy) bool {
	if len(p.Weights) != len(other.Weights) {
		return false
	}
	for i := range p.Weights {
		if !strings.EqualFold(p.Weights[i].Category, other.Weights[i].Category) ||
			math.Abs(p.Weights[i].Weight-other.Weights[i].Weight) > weightTolerance {
			return false
		}
	}
	return true
}

// GoalContext is the unit of persistence: a goal with its policy, its
// assessment history and its chat transcript.
type GoalContext struct {
	Goal        Goal            `yaml:"goal"`
	Policy      Policy          `yaml:"policy"`
	Assessments []Assessment    `yaml:"assessments"`
	Messages    []TinkerMessage `yaml:"messages"`
}

// ArchivedGoal is a goal context that has been retired from the active set.
type ArchivedGoal struct {
	GoalContext `yaml:",inline"`
	ArchivedAt  time.Time `yaml:"archived_at"`
}

// GoalSpec carries the user-supplied fields for locking in a new goal.
type GoalSpec struct {
	Description    string
	Context        string
	TimeWindowDays int
	Phase          Phase
	Policy         *Policy
}
