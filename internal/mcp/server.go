// Package mcp provides an MCP (Model Context Protocol) server that exposes
// tinker's alignment tools to external AI assistants.
package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/internal/observability"
	"github.com/valter-silva-au/tinker/pkg/models"
)

// Executor runs one tool call for a session.
type Executor interface {
	Execute(ctx context.Context, s *core.Session, call core.ToolCall) (string, error)
}

// GoalSelector reports which goal tool calls act on when none is named.
type GoalSelector interface {
	ActiveGoalID() (string, error)
	// GetContext resolves a goal id or unique prefix.
	GetContext(goalID string) (*models.GoalContext, error)
}

// Server wraps tinker services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	executor    Executor
	goals       GoalSelector
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	now         func() time.Time

	// mu serialises tool calls; sessions carry the last observed signals
	// between observe_signals and run_assessment.
	mu       sync.Mutex
	sessions map[string]*core.Session
}

// NewServer creates a new MCP server. metricsCalc and alertEngine may be nil
// if observability is disabled.
func NewServer(executor Executor, goals GoalSelector, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		executor:    executor,
		goals:       goals,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		now:         time.Now,
		sessions:    make(map[string]*core.Session),
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "tinker", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves MCP over stdio, blocking until the client disconnects or the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type resolveDateInput struct {
	GoalID string `json:"goal_id,omitempty" jsonschema:"goal to act on; defaults to the active goal"`
	Date   string `json:"date,omitempty" jsonschema:"today, yesterday or a date as YYYY-MM-DD; defaults to today"`
}

type observeSignalsInput struct {
	GoalID string `json:"goal_id,omitempty" jsonschema:"goal to act on; defaults to the active goal"`
	Date   string `json:"date,omitempty" jsonschema:"day to observe as YYYY-MM-DD; defaults to today"`
}

type runAssessmentInput struct {
	GoalID string `json:"goal_id,omitempty" jsonschema:"goal to act on; defaults to the active goal"`
}

type saveSummaryInput struct {
	GoalID    string `json:"goal_id,omitempty" jsonschema:"goal to act on; defaults to the active goal"`
	Summary   string `json:"summary" jsonschema:"the conversation summary to store in the day's report"`
	Date      string `json:"date,omitempty" jsonschema:"report date as YYYY-MM-DD; defaults to today"`
	Overwrite bool   `json:"overwrite,omitempty" jsonschema:"replace an existing summary instead of appending"`
}

type historyInput struct {
	GoalID string `json:"goal_id,omitempty" jsonschema:"goal to act on; defaults to the active goal"`
	Limit  int    `json:"limit,omitempty" jsonschema:"number of recent assessments to return; defaults to 7"`
}

type toolOutput struct {
	GoalID string `json:"goal_id"`
	Result string `json:"result"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
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
	OldestEvent    string         `json:"oldest_event,omitempty"`
	NewestEvent    string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        core.ToolResolveDate,
		Description: "Resolve a date expression against today in the user's local time. Returns today, the resolved date and whether it lies in the future.",
	}, s.handleResolveDate)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        core.ToolObserveSignals,
		Description: "Gather the day's signals from the vault: daily note sections, feedback, reflections, edited files and conversation excerpts.",
	}, s.handleObserveSignals)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        core.ToolRunAssessment,
		Description: "Score the most recently observed signals against the goal and write the day's report. Call observe_signals first.",
	}, s.handleRunAssessment)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        core.ToolSaveSummary,
		Description: "Store a conversation summary in the day's alignment report.",
	}, s.handleSaveSummary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        core.ToolAssessmentHistory,
		Description: "List the goal's most recent assessments with scores and trends.",
	}, s.handleHistory)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated metrics from the event log, including assessment scores, tool usage and turn counts.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (drifting goals, missed check-ins, exhausted turns).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleResolveDate(ctx context.Context, _ *gomcp.CallToolRequest, input resolveDateInput) (*gomcp.CallToolResult, toolOutput, error) {
	return s.execute(ctx, input.GoalID, core.ResolveDateCall{Date: input.Date})
}

func (s *Server) handleObserveSignals(ctx context.Context, _ *gomcp.CallToolRequest, input observeSignalsInput) (*gomcp.CallToolResult, toolOutput, error) {
	return s.execute(ctx, input.GoalID, core.ObserveSignalsCall{Date: input.Date})
}

func (s *Server) handleRunAssessment(ctx context.Context, _ *gomcp.CallToolRequest, input runAssessmentInput) (*gomcp.CallToolResult, toolOutput, error) {
	return s.execute(ctx, input.GoalID, core.RunAssessmentCall{})
}

func (s *Server) handleSaveSummary(ctx context.Context, _ *gomcp.CallToolRequest, input saveSummaryInput) (*gomcp.CallToolResult, toolOutput, error) {
	if input.Summary == "" {
		return errorResult("summary is required"), toolOutput{}, nil
	}
	return s.execute(ctx, input.GoalID, core.SaveSummaryCall{Summary: input.Summary, Date: input.Date, Overwrite: input.Overwrite})
}

func (s *Server) handleHistory(ctx context.Context, _ *gomcp.CallToolRequest, input historyInput) (*gomcp.CallToolResult, toolOutput, error) {
	if input.Limit < 0 {
		return errorResult("limit must not be negative"), toolOutput{}, nil
	}
	return s.execute(ctx, input.GoalID, core.AssessmentHistoryCall{Limit: input.Limit})
}

// execute resolves the goal, reuses its session and runs call. Tool failures
// are reported as error results, never as protocol errors.
func (s *Server) execute(ctx context.Context, goalID string, call core.ToolCall) (*gomcp.CallToolResult, toolOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if goalID == "" {
		id, err := s.goals.ActiveGoalID()
		if err != nil {
			return errorResult(fmt.Sprintf("finding active goal: %s", err)), toolOutput{}, nil
		}
		if id == "" {
			return errorResult(core.ErrNoActiveGoal.Error()), toolOutput{}, nil
		}
		goalID = id
	} else {
		gc, err := s.goals.GetContext(goalID)
		if err != nil {
			return errorResult(fmt.Sprintf("finding goal %s: %s", goalID, err)), toolOutput{}, nil
		}
		goalID = gc.Goal.ID
	}

	session, ok := s.sessions[goalID]
	if !ok {
		session = core.NewSession(goalID)
		s.sessions[goalID] = session
	}

	out, err := s.executor.Execute(ctx, session, call)
	if err != nil {
		return errorResult(fmt.Sprintf("%s: %s", call.ToolName(), err)), toolOutput{}, nil
	}
	return nil, toolOutput{GoalID: goalID, Result: out}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := ParseSince(sinceStr, s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		GoalsCreated:   metrics.GoalsCreated,
		GoalsArchived:  metrics.GoalsArchived,
		Assessments:    metrics.Assessments,
		MeanScore:      metrics.MeanScore,
		LatestScores:   metrics.LatestScores,
		ToolCalls:      metrics.ToolCalls,
		ToolErrors:     metrics.ToolErrors,
		Turns:          metrics.Turns,
		ExhaustedTurns: metrics.ExhaustedTurns,
		Checkpoints:    metrics.Checkpoints,
		EventCount:     metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		LatestScores: make(map[string]int),
		ToolCalls:    make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or
// "24h" into the corresponding instant before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if num < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q: must not be negative", s)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
