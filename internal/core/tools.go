package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// Tool names exposed to the model.
const (
	ToolResolveDate        = "resolve_date"
	ToolObserveSignals     = "observe_signals"
	ToolRunAssessment      = "run_assessment"
	ToolSaveSummary        = "save_conversation_summary"
	ToolAssessmentHistory  = "get_assessment_history"
	defaultHistoryLimit    = 7
	maxConversationContext = 2000
)

// ToolCall is one request from the model to run a tool. The set of
// implementations is closed.
type ToolCall interface {
	ToolName() string
	isToolCall()
}

// ResolveDateCall resolves an optional date argument against today.
type ResolveDateCall struct {
	Date string `json:"date,omitempty"`
}

// ObserveSignalsCall gathers the signals for a date.
type ObserveSignalsCall struct {
	Date string `json:"date,omitempty"`
}

// RunAssessmentCall scores the last observed signals.
type RunAssessmentCall struct{}

// SaveSummaryCall stores a conversation summary in the day's report.
type SaveSummaryCall struct {
	Summary   string `json:"summary"`
	Date      string `json:"date,omitempty"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

// AssessmentHistoryCall lists recent assessments.
type AssessmentHistoryCall struct {
	Limit int `json:"limit,omitempty"`
}

func (ResolveDateCall) ToolName() string       { return ToolResolveDate }
func (ObserveSignalsCall) ToolName() string    { return ToolObserveSignals }
func (RunAssessmentCall) ToolName() string     { return ToolRunAssessment }
func (SaveSummaryCall) ToolName() string       { return ToolSaveSummary }
func (AssessmentHistoryCall) ToolName() string { return ToolAssessmentHistory }

func (ResolveDateCall) isToolCall()       {}
func (ObserveSignalsCall) isToolCall()    {}
func (RunAssessmentCall) isToolCall()     {}
func (SaveSummaryCall) isToolCall()       {}
func (AssessmentHistoryCall) isToolCall() {}

// ParseToolCall decodes a tool_use block into its typed call.
func ParseToolCall(name string, input json.RawMessage) (ToolCall, error) {
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage("{}")
	}
	var (
		call ToolCall
		err  error
	)
	switch name {
	case ToolResolveDate:
		var c ResolveDateCall
		err = json.Unmarshal(input, &c)
		call = c
	case ToolObserveSignals:
		var c ObserveSignalsCall
		err = json.Unmarshal(input, &c)
		call = c
	case ToolRunAssessment:
		call = RunAssessmentCall{}
	case ToolSaveSummary:
		var c SaveSummaryCall
		err = json.Unmarshal(input, &c)
		call = c
	case ToolAssessmentHistory:
		var c AssessmentHistoryCall
		err = json.Unmarshal(input, &c)
		call = c
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s input: %w", name, err)
	}
	return call, nil
}

func dateProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": `Calendar date as YYYY-MM-DD, or "yesterday". Defaults to the date resolved earlier in this turn, else today.`,
	}
}

// ToolCatalog returns the schemas of every tool, in a fixed order.
func ToolCatalog() []models.ToolSchema {
	return []models.ToolSchema{
		{
			Name:        ToolResolveDate,
			Description: "Resolve the date being checked in for. Call this first in every check-in; later tools use the resolved date.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"date": dateProperty()},
			},
		},
		{
			Name:        ToolObserveSignals,
			Description: "Gather the day's evidence of work: planned tasks, ships, feedback, reflections and changed vault files.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"date": dateProperty()},
			},
		},
		{
			Name:        ToolRunAssessment,
			Description: "Score the most recently observed signals against the goal and write the day's report.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ToolSaveSummary,
			Description: "Save a short conversation summary into the day's report. If one exists it is returned; merge both and call again with overwrite=true.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"summary":   map[string]any{"type": "string", "description": "Summary of the conversation."},
					"date":      dateProperty(),
					"overwrite": map[string]any{"type": "boolean", "description": "Replace an existing summary."},
				},
				"required": []string{"summary"},
			},
		},
		{
			Name:        ToolAssessmentHistory,
			Description: "List recent assessments with date, day number and score.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{"type": "integer", "description": "Number of assessments, default 7."},
				},
			},
		},
	}
}

// ToolExecutor runs tool calls against the store, observer, engine and report
// renderer on behalf of a Session.
type ToolExecutor struct {
	store        GoalContextStore
	observer     Observer
	engine       AssessmentEngine
	reports      ReportRenderer
	clock        Clock
	events       EventLogger
	logger       *zap.Logger
	boundaryHour int
}

// NewToolExecutor creates a ToolExecutor.
func NewToolExecutor(store GoalContextStore, observer Observer, engine AssessmentEngine, reports ReportRenderer,
	clock Clock, events EventLogger, logger *zap.Logger, boundaryHour int) *ToolExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolExecutor{
		store:        store,
		observer:     observer,
		engine:       engine,
		reports:      reports,
		clock:        clock,
		events:       events,
		logger:       logger.Named("tools"),
		boundaryHour: boundaryHour,
	}
}

// Execute runs call for session s and returns the text handed back to the
// model. A returned error is either reported to the model as a tool error or,
// when fatal, aborts the turn.
func (x *ToolExecutor) Execute(ctx context.Context, s *Session, call ToolCall) (string, error) {
	started := x.clock.Now()
	var (
		out string
		err error
	)
	switch c := call.(type) {
	case ResolveDateCall:
		out, err = x.resolveDate(s, c)
	case ObserveSignalsCall:
		out, err = x.observeSignals(ctx, s, c)
	case RunAssessmentCall:
		out, err = x.runAssessment(ctx, s)
	case SaveSummaryCall:
		out, err = x.saveSummary(s, c)
	case AssessmentHistoryCall:
		out, err = x.history(s, c)
	default:
		err = fmt.Errorf("unsupported tool call %T", call)
	}

	logEvent(x.events, EventToolExecuted, map[string]any{
		"tool":        call.ToolName(),
		"goal_id":     s.GoalID,
		"ok":          err == nil,
		"duration_ms": x.clock.Now().Sub(started).Milliseconds(),
	})
	if err != nil {
		x.logger.Debug("tool failed", zap.String("tool", call.ToolName()), zap.Error(err))
	}
	return out, err
}

// dateFor picks the explicit argument, then the turn's resolved date, then today.
func (x *ToolExecutor) dateFor(s *Session, arg string) (string, error) {
	if strings.TrimSpace(arg) != "" {
		return ResolveDate(arg, x.clock.Now())
	}
	if s.date != "" {
		return s.date, nil
	}
	return FormatDate(x.clock.Now()), nil
}

func (x *ToolExecutor) goalContext(s *Session) (*models.GoalContext, error) {
	if s.GoalID == "" {
		return nil, ErrNoActiveGoal
	}
	gc, err := x.store.GetContext(s.GoalID)
	if err != nil {
		return nil, fmt.Errorf("loading goal %s: %w", s.GoalID, err)
	}
	return gc, nil
}

type resolveDateResult struct {
	Today            string   `json:"today"`
	ResolvedDate     string   `json:"resolvedDate"`
	DayNumber        int      `json:"dayNumber"`
	TimeWindowDays   int      `json:"timeWindowDays"`
	AssessmentExists bool     `json:"assessmentExists"`
	Guidance         []string `json:"guidance,omitempty"`
}

func (x *ToolExecutor) resolveDate(s *Session, c ResolveDateCall) (string, error) {
	now := x.clock.Now()
	resolved, err := ResolveDate(c.Date, now)
	if err != nil {
		return "", err
	}
	gc, err := x.goalContext(s)
	if err != nil {
		return "", err
	}
	day, err := DayNumber(gc.Goal.LockedAt, resolved, now.Location())
	if err != nil {
		return "", err
	}
	exists := false
	for _, a := range gc.Assessments {
		if a.Date == resolved {
			exists = true
			break
		}
	}

	s.date = resolved
	res := resolveDateResult{
		Today:            FormatDate(now),
		ResolvedDate:     resolved,
		DayNumber:        day,
		TimeWindowDays:   gc.Goal.TimeWindowDays,
		AssessmentExists: exists,
		Guidance:         DateGuidance(resolved, now, x.boundaryHour),
	}
	if day < 1 {
		res.Guidance = append(res.Guidance, fmt.Sprintf(
			"%s is before the goal was locked on %s: there is no goal day to score. Pick a date on or after the lock day.",
			resolved, FormatDate(gc.Goal.LockedAt.In(now.Location()))))
	}
	if exists {
		res.Guidance = append(res.Guidance,
			"An assessment already exists for this date; running it again replaces it.")
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding resolve_date result: %w", err)
	}
	return string(data), nil
}

func (x *ToolExecutor) observeSignals(ctx context.Context, s *Session, c ObserveSignalsCall) (string, error) {
	date, err := x.dateFor(s, c.Date)
	if err != nil {
		return "", err
	}
	gc, err := x.goalContext(s)
	if err != nil {
		return "", err
	}
	signals, err := x.observer.Observe(ctx, date, x.clock.Now())
	if err != nil {
		return "", err
	}
	signals.ConversationContext = ConversationExcerpts(gc.Messages, date, x.clock.Now().Location())
	s.lastObserved = signals
	return SummarizeSignals(signals), nil
}

// ConversationExcerpts joins the user-authored messages sent on date, most
// recent last, truncated to the conversation context limit.
func ConversationExcerpts(messages []models.TinkerMessage, date string, loc *time.Location) string {
	var parts []string
	for _, m := range messages {
		if m.Role != models.RoleUser || m.Timestamp.In(loc).Format(DateLayout) != date {
			continue
		}
		if text := strings.TrimSpace(m.Content); text != "" {
			parts = append(parts, text)
		}
	}
	joined := strings.Join(parts, "\n---\n")
	if len(joined) > maxConversationContext {
		joined = truncateLines(joined, maxConversationContext)
	}
	return joined
}

// SummarizeSignals renders a compact, human-readable digest of signals.
func SummarizeSignals(sig *models.DaySignals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Signals for %s\n", sig.Date)

	done := 0
	for _, t := range sig.PriorityActions {
		if t.Completed {
			done++
		}
	}
	fmt.Fprintf(&b, "Priority actions: %d/%d done\n", done, len(sig.PriorityActions))
	for _, t := range sig.PriorityActions {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "  [%s] %s", mark, t.Title)
		if t.DurationMin > 0 {
			fmt.Fprintf(&b, " (%d min deep work)", t.DurationMin)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Ships: %d\n", len(sig.Ships))
	for _, sh := range sig.Ships {
		fmt.Fprintf(&b, "  - %s\n", sh.Title)
	}
	fmt.Fprintf(&b, "Feedback: %d, reflections: %d\n", len(sig.Feedback), len(sig.Reflections))

	act := sig.VaultActivity
	fmt.Fprintf(&b, "Files touched: %d", act.FilesTouched)
	if len(act.ActiveFolders) > 0 {
		fmt.Fprintf(&b, " in %s", strings.Join(act.ActiveFolders, ", "))
	}
	b.WriteString("\n")
	for _, f := range act.ModifiedFiles {
		fmt.Fprintf(&b, "  * %s", f.Path)
		if f.CreatedToday {
			b.WriteString(" (new)")
		}
		if f.Source == models.DiffSourceMtimeFallback {
			b.WriteString(" (no diff)")
		}
		b.WriteString("\n")
	}
	if sig.ConversationContext != "" {
		b.WriteString("Includes chat excerpts from today's conversation.\n")
	}
	if sig.Empty() {
		b.WriteString("No evidence found for this date.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (x *ToolExecutor) runAssessment(ctx context.Context, s *Session) (string, error) {
	if s.lastObserved == nil {
		return "", ErrNoObservation
	}
	gc, err := x.goalContext(s)
	if err != nil {
		return "", err
	}
	signals := s.lastObserved
	day, err := DayNumber(gc.Goal.LockedAt, signals.Date, x.clock.Now().Location())
	if err != nil {
		return "", err
	}

	a, err := x.engine.Assess(ctx, gc.Goal, signals, gc.Policy, day)
	if err != nil {
		return "", err
	}
	if err := x.store.UpsertAssessment(gc.Goal.ID, *a); err != nil {
		return "", fmt.Errorf("saving assessment: %w", err)
	}
	s.lastAssessment = a
	logEvent(x.events, EventAssessmentCreated, map[string]any{
		"goal_id":       gc.Goal.ID,
		"assessment_id": a.ID,
		"date":          a.Date,
		"day":           a.DayNumber,
		"score":         a.OverallScore,
	})

	reportPath, err := x.reports.Render(gc.Goal, a)
	if err != nil {
		// The assessment stays saved.
		x.logger.Warn("rendering report", zap.String("assessment_id", a.ID), zap.Error(err))
	}
	return SummarizeAssessment(a, reportPath), nil
}

// SummarizeAssessment renders the result text of run_assessment.
func SummarizeAssessment(a *models.Assessment, reportPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assessment %s: day %d, score %d/100\n", a.Date, a.DayNumber, a.OverallScore)
	for _, item := range a.SignalBreakdown {
		fmt.Fprintf(&b, "- %s %d/%d: %s\n", item.Category, item.Score, item.MaxScore, item.Reasoning)
	}
	if len(a.MomentumIndicators) > 0 {
		fmt.Fprintf(&b, "Momentum: %s\n", strings.Join(a.MomentumIndicators, "; "))
	}
	if len(a.DriftIndicators) > 0 {
		fmt.Fprintf(&b, "Drift: %s\n", strings.Join(a.DriftIndicators, "; "))
	}
	if reportPath != "" {
		fmt.Fprintf(&b, "Report: %s\n", reportPath)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (x *ToolExecutor) saveSummary(s *Session, c SaveSummaryCall) (string, error) {
	summary := strings.TrimSpace(c.Summary)
	if summary == "" {
		return "", errors.New("summary must not be empty")
	}
	date, err := x.dateFor(s, c.Date)
	if err != nil {
		return "", err
	}
	gc, err := x.goalContext(s)
	if err != nil {
		return "", err
	}

	if !c.Overwrite {
		existing, err := x.reports.ConversationNotes(gc.Goal, date)
		if err != nil {
			return "", err
		}
		if existing != "" {
			return fmt.Sprintf(
				"A conversation summary already exists for %s:\n\n%s\n\nDo not discard it. Write one merged summary that unifies the existing notes with the new ones, then call %s again with overwrite=true.",
				date, existing, ToolSaveSummary), nil
		}
	}

	p, err := x.reports.SaveConversationNotes(gc.Goal, date, summary)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved conversation summary for %s to %s.", date, p), nil
}

func (x *ToolExecutor) history(s *Session, c AssessmentHistoryCall) (string, error) {
	gc, err := x.goalContext(s)
	if err != nil {
		return "", err
	}
	limit := c.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	recent := RecentAssessments(gc.Assessments, limit)
	if len(recent) == 0 {
		return "No assessments yet.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Last %d assessments:\n", len(recent))
	for _, a := range recent {
		fmt.Fprintf(&b, "- %s day %d: %d/100\n", a.Date, a.DayNumber, a.OverallScore)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// RecentAssessments returns the last limit assessments ordered by date.
func RecentAssessments(all []models.Assessment, limit int) []models.Assessment {
	sorted := make([]models.Assessment, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted
}
