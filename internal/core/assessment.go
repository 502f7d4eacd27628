package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// AssessmentEngine turns a day's signals into a scored Assessment with one
// model call.
type AssessmentEngine interface {
	Assess(ctx context.Context, goal models.Goal, signals *models.DaySignals, policy models.Policy, dayNumber int) (*models.Assessment, error)
}

type assessmentEngine struct {
	model     LanguageModel
	clock     Clock
	maxTokens int
	logger    *zap.Logger
}

// NewAssessmentEngine creates an AssessmentEngine backed by model.
func NewAssessmentEngine(model LanguageModel, clock Clock, maxTokens int, logger *zap.Logger) AssessmentEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &assessmentEngine{
		model:     model,
		clock:     clock,
		maxTokens: maxTokens,
		logger:    logger.Named("assessment"),
	}
}

// rawAssessment is the JSON object the model is asked to return.
type rawAssessment struct {
	OverallScore    float64 `json:"overallScore"`
	SignalBreakdown []struct {
		Category  string  `json:"category"`
		Weight    float64 `json:"weight"`
		Score     float64 `json:"score"`
		MaxScore  float64 `json:"maxScore"`
		Reasoning string  `json:"reasoning"`
	} `json:"signalBreakdown"`
	DriftIndicators    []string `json:"driftIndicators"`
	MomentumIndicators []string `json:"momentumIndicators"`
}

// Assess sends the scoring request once and normalizes the reply. It is not
// retried on failure.
func (e *assessmentEngine) Assess(ctx context.Context, goal models.Goal, signals *models.DaySignals, policy models.Policy, dayNumber int) (*models.Assessment, error) {
	if signals == nil {
		return nil, ErrNoObservation
	}

	req := models.ModelRequest{
		System: assessmentSystemPrompt,
		Messages: []models.ChatMessage{{
			Role:    models.RoleUser,
			Content: []models.ContentBlock{models.TextBlock(buildAssessmentPayload(goal, signals, policy, dayNumber))},
		}},
		MaxTokens: e.maxTokens,
	}
	resp, err := e.model.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("requesting assessment: %w", err)
	}

	raw, err := parseAssessmentJSON(resp.Text())
	if err != nil {
		return nil, err
	}

	a := normalizeAssessment(raw, policy, e.logger)
	a.ID = AssessmentID(goal.ID, signals.Date)
	a.GoalID = goal.ID
	a.Date = signals.Date
	a.DayNumber = dayNumber
	a.RawSignals = *signals
	a.PolicyVersion = policy.Version
	a.CreatedAt = e.clock.Now()
	return a, nil
}

// AssessmentID derives the stable id of a goal's assessment for date.
func AssessmentID(goalID, date string) string {
	return goalID + "-" + CompactDate(date)
}

// MaxScore is the ceiling of a category with the given weight.
func MaxScore(weight float64) int {
	return int(math.Round(weight * 100))
}

// parseAssessmentJSON strips an optional fenced-code wrapper and strictly
// decodes the model's reply.
func parseAssessmentJSON(text string) (*rawAssessment, error) {
	body := stripCodeFence(text)
	dec := json.NewDecoder(strings.NewReader(body))
	var raw rawAssessment
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAssessment, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing content after JSON object", ErrMalformedAssessment)
	}
	return &raw, nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop an info string such as "json".
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// normalizeAssessment clamps every category score to [0, maxScore] and sets the overall
// score to the clamped sum. Weight disagreements with the policy are logged,
// not rejected.
func normalizeAssessment(raw *rawAssessment, policy models.Policy, logger *zap.Logger) *models.Assessment {
	a := &models.Assessment{
		SignalBreakdown:    make([]models.BreakdownItem, 0, len(raw.SignalBreakdown)),
		DriftIndicators:    raw.DriftIndicators,
		MomentumIndicators: raw.MomentumIndicators,
	}
	if a.DriftIndicators == nil {
		a.DriftIndicators = []string{}
	}
	if a.MomentumIndicators == nil {
		a.MomentumIndicators = []string{}
	}

	sum := 0
	for _, item := range raw.SignalBreakdown {
		if want, ok := policy.WeightFor(item.Category); !ok || math.Abs(want-item.Weight) > 1e-6 {
			logger.Warn("assessment weight differs from policy",
				zap.String("category", item.Category),
				zap.Float64("reported", item.Weight),
				zap.Float64("policy", want),
			)
		}
		maxScore := MaxScore(item.Weight)
		score := clamp(int(math.Round(item.Score)), 0, maxScore)
		sum += score
		a.SignalBreakdown = append(a.SignalBreakdown, models.BreakdownItem{
			Category:  item.Category,
			Weight:    item.Weight,
			Score:     score,
			MaxScore:  maxScore,
			Reasoning: item.Reasoning,
		})
	}
	if int(math.Round(raw.OverallScore)) != clamp(sum, 0, 100) {
		logger.Debug("overriding reported overall score",
			zap.Float64("reported", raw.OverallScore),
			zap.Int("computed", clamp(sum, 0, 100)),
		)
	}
	a.OverallScore = clamp(sum, 0, 100)
	return a
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
