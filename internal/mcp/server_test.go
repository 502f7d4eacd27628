package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/internal/observability"
	"github.com/valter-silva-au/tinker/pkg/models"
)

// --- Fake implementations ---

type executedCall struct {
	session *core.Session
	call    core.ToolCall
}

type fakeExecutor struct {
	calls []executedCall
	out   string
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, s *core.Session, call core.ToolCall) (string, error) {
	f.calls = append(f.calls, executedCall{session: s, call: call})
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

type fakeGoals struct {
	active string
	others []string
	err    error
}

func (f fakeGoals) ActiveGoalID() (string, error) { return f.active, f.err }

func (f fakeGoals) GetContext(goalID string) (*models.GoalContext, error) {
	for _, id := range append([]string{f.active}, f.others...) {
		if id != "" && strings.HasPrefix(id, goalID) {
			return &models.GoalContext{Goal: models.Goal{ID: id}}, nil
		}
	}
	return nil, fmt.Errorf("goal %s not found", goalID)
}

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
	since   time.Time
}

func (f *fakeMetricsCalculator) Calculate(since time.Time) (*observability.Metrics, error) {
	f.since = since
	return f.metrics, nil
}

type fakeAlertEngine struct {
	alerts []observability.Alert
}

func (f *fakeAlertEngine) Evaluate() ([]observability.Alert, error) {
	return f.alerts, nil
}

// --- Test helpers ---

// connect starts srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *Server) *gomcp.ClientSession {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	t1, t2 := gomcp.NewInMemoryTransports()

	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		cancel()
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
		cancel()
	})
	return session
}

func callTool(t *testing.T, session *gomcp.ClientSession, name string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &gomcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call tool %s: %v", name, err)
	}
	return result
}

// decode reads the tool output from structured content, falling back to the
// text content.
func decode(t *testing.T, result *gomcp.CallToolResult, v any) {
	t.Helper()
	if result.StructuredContent != nil {
		data, _ := json.Marshal(result.StructuredContent)
		if err := json.Unmarshal(data, v); err == nil {
			return
		}
	}
	if err := json.Unmarshal([]byte(extractText(result)), v); err != nil {
		t.Fatalf("decoding tool output: %v (text was: %s)", err, extractText(result))
	}
}

func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Tests ---

func TestListTools(t *testing.T) {
	srv := NewServer(&fakeExecutor{}, fakeGoals{active: "g1"}, nil, nil, "test")
	session := connect(t, srv)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("listing tools: %v", err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
		if tool.Name == core.ToolResolveDate {
			schema, _ := json.Marshal(tool.InputSchema)
			if strings.Contains(string(schema), "monday") || !strings.Contains(string(schema), "YYYY-MM-DD") {
				t.Errorf("resolve_date schema should only advertise accepted dates: %s", schema)
			}
		}
	}
	for _, want := range []string{
		core.ToolResolveDate, core.ToolObserveSignals, core.ToolRunAssessment,
		core.ToolSaveSummary, core.ToolAssessmentHistory, "get_metrics", "get_alerts",
	} {
		if !got[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

func TestToolCallsUseActiveGoal(t *testing.T) {
	exec := &fakeExecutor{out: `{"today":"2026-03-14","resolvedDate":"2026-03-13"}`}
	srv := NewServer(exec, fakeGoals{active: "g1"}, nil, nil, "test")
	session := connect(t, srv)

	result := callTool(t, session, core.ToolResolveDate, map[string]any{"date": "yesterday"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out toolOutput
	decode(t, result, &out)
	if out.GoalID != "g1" {
		t.Errorf("goal_id = %q, want g1", out.GoalID)
	}
	if !strings.Contains(out.Result, "2026-03-13") {
		t.Errorf("result = %q, want resolved date", out.Result)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("expected 1 executed call, got %d", len(exec.calls))
	}
	call, ok := exec.calls[0].call.(core.ResolveDateCall)
	if !ok || call.Date != "yesterday" {
		t.Errorf("executed %#v, want ResolveDateCall{Date: yesterday}", exec.calls[0].call)
	}
	if exec.calls[0].session.GoalID != "g1" {
		t.Errorf("session goal = %q, want g1", exec.calls[0].session.GoalID)
	}
}

func TestSessionReusedPerGoal(t *testing.T) {
	exec := &fakeExecutor{out: "ok"}
	srv := NewServer(exec, fakeGoals{active: "g1", others: []string{"g2"}}, nil, nil, "test")
	session := connect(t, srv)

	callTool(t, session, core.ToolObserveSignals, map[string]any{"date": "2026-03-14"})
	callTool(t, session, core.ToolRunAssessment, map[string]any{})
	callTool(t, session, core.ToolAssessmentHistory, map[string]any{"goal_id": "g2", "limit": 3})

	if len(exec.calls) != 3 {
		t.Fatalf("expected 3 executed calls, got %d", len(exec.calls))
	}
	if exec.calls[0].session != exec.calls[1].session {
		t.Error("observe and assess for the same goal should share a session")
	}
	if exec.calls[2].session == exec.calls[0].session {
		t.Error("a different goal should get its own session")
	}
	if h, ok := exec.calls[2].call.(core.AssessmentHistoryCall); !ok || h.Limit != 3 {
		t.Errorf("executed %#v, want AssessmentHistoryCall{Limit: 3}", exec.calls[2].call)
	}
}

func TestGoalPrefixSharesSession(t *testing.T) {
	exec := &fakeExecutor{out: "ok"}
	full := "3f2a9c1d-aaaa-bbbb-cccc-000000000001"
	srv := NewServer(exec, fakeGoals{active: "g1", others: []string{full}}, nil, nil, "test")
	session := connect(t, srv)

	callTool(t, session, core.ToolObserveSignals, map[string]any{"goal_id": full})
	result := callTool(t, session, core.ToolRunAssessment, map[string]any{"goal_id": "3f2a9c"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	if exec.calls[0].session != exec.calls[1].session {
		t.Error("a prefix and the full id should share one session")
	}
	if exec.calls[1].session.GoalID != full {
		t.Errorf("session goal = %q, want the full id", exec.calls[1].session.GoalID)
	}
	var out toolOutput
	decode(t, result, &out)
	if out.GoalID != full {
		t.Errorf("goal_id = %q, want %q", out.GoalID, full)
	}

	unknown := callTool(t, session, core.ToolRunAssessment, map[string]any{"goal_id": "zzz"})
	if !unknown.IsError || !strings.Contains(extractText(unknown), "finding goal zzz") {
		t.Errorf("unknown goal should be an error result, got %q", extractText(unknown))
	}
	if len(exec.calls) != 2 {
		t.Errorf("unknown goal must not reach the executor, got %d calls", len(exec.calls))
	}
}

func TestSaveSummary(t *testing.T) {
	exec := &fakeExecutor{out: "saved"}
	srv := NewServer(exec, fakeGoals{active: "g1"}, nil, nil, "test")
	session := connect(t, srv)

	result := callTool(t, session, core.ToolSaveSummary, map[string]any{"summary": "talked about focus", "overwrite": true})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	call, ok := exec.calls[0].call.(core.SaveSummaryCall)
	if !ok || call.Summary != "talked about focus" || !call.Overwrite {
		t.Errorf("executed %#v", exec.calls[0].call)
	}
}

func TestToolErrors(t *testing.T) {
	tests := []struct {
		name    string
		exec    *fakeExecutor
		goals   fakeGoals
		tool    string
		args    map[string]any
		wantMsg string
	}{
		{
			name:    "no active goal",
			exec:    &fakeExecutor{},
			goals:   fakeGoals{},
			tool:    core.ToolObserveSignals,
			args:    map[string]any{},
			wantMsg: "no active goal",
		},
		{
			name:    "store failure",
			exec:    &fakeExecutor{},
			goals:   fakeGoals{err: errors.New("disk gone")},
			tool:    core.ToolObserveSignals,
			args:    map[string]any{},
			wantMsg: "disk gone",
		},
		{
			name:    "executor failure",
			exec:    &fakeExecutor{err: core.ErrNoObservation},
			goals:   fakeGoals{active: "g1"},
			tool:    core.ToolRunAssessment,
			args:    map[string]any{},
			wantMsg: core.ToolRunAssessment,
		},
		{
			name:    "empty summary",
			exec:    &fakeExecutor{},
			goals:   fakeGoals{active: "g1"},
			tool:    core.ToolSaveSummary,
			args:    map[string]any{"summary": ""},
			wantMsg: "summary is required",
		},
		{
			name:    "negative limit",
			exec:    &fakeExecutor{},
			goals:   fakeGoals{active: "g1"},
			tool:    core.ToolAssessmentHistory,
			args:    map[string]any{"limit": -1},
			wantMsg: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(tt.exec, tt.goals, nil, nil, "test")
			session := connect(t, srv)

			result := callTool(t, session, tt.tool, tt.args)
			if !result.IsError {
				t.Fatal("expected error result")
			}
			if text := extractText(result); !strings.Contains(text, tt.wantMsg) {
				t.Errorf("error text %q does not contain %q", text, tt.wantMsg)
			}
		})
	}
}

func TestGetMetrics(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mc := &fakeMetricsCalculator{
		metrics: &observability.Metrics{
			GoalsCreated: 2,
			Assessments:  5,
			MeanScore:    62.5,
			LatestScores: map[string]int{"g1": 70},
			ToolCalls:    map[string]int{"observe_signals": 4},
			Turns:        6,
			EventCount:   42,
			OldestEvent:  &now,
			NewestEvent:  &now,
		},
	}
	srv := NewServer(&fakeExecutor{}, fakeGoals{}, mc, nil, "test")
	srv.now = func() time.Time { return now }
	session := connect(t, srv)

	result := callTool(t, session, "get_metrics", map[string]any{"since": "30d"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var m metricsOutput
	decode(t, result, &m)
	if m.Assessments != 5 || m.EventCount != 42 || m.MeanScore != 62.5 {
		t.Errorf("unexpected metrics %+v", m)
	}
	if m.LatestScores["g1"] != 70 || m.ToolCalls["observe_signals"] != 4 {
		t.Errorf("unexpected maps %+v / %+v", m.LatestScores, m.ToolCalls)
	}
	if m.OldestEvent != "2026-03-14T09:00:00Z" {
		t.Errorf("oldest_event = %q", m.OldestEvent)
	}
	if want := now.AddDate(0, 0, -30); !mc.since.Equal(want) {
		t.Errorf("since = %v, want %v", mc.since, want)
	}
}

func TestGetMetricsUnavailable(t *testing.T) {
	srv := NewServer(&fakeExecutor{}, fakeGoals{}, nil, nil, "test")
	session := connect(t, srv)

	result := callTool(t, session, "get_metrics", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error when metrics calculator is nil")
	}
}

func TestGetAlerts(t *testing.T) {
	ae := &fakeAlertEngine{alerts: []observability.Alert{{
		ID:          "drift-g1",
		Condition:   observability.ConditionDrift,
		Severity:    observability.SeverityHigh,
		Message:     "goal drifting",
		TriggeredAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}}}
	srv := NewServer(&fakeExecutor{}, fakeGoals{}, nil, ae, "test")
	session := connect(t, srv)

	result := callTool(t, session, "get_alerts", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out getAlertsOutput
	decode(t, result, &out)
	if out.Count != 1 || out.Alerts[0].ID != "drift-g1" || out.Alerts[0].Severity != "high" {
		t.Errorf("unexpected alerts %+v", out)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"7d", now.AddDate(0, 0, -7), false},
		{"24h", now.Add(-24 * time.Hour), false},
		{"0d", now, false},
		{"d", time.Time{}, true},
		{"7w", time.Time{}, true},
		{"xd", time.Time{}, true},
		{"-3d", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSince(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSince(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseSince(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
