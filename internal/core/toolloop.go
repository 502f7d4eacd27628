package core

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// historyMessages bounds how much of the persisted transcript is replayed to
// the model at the start of a turn.
const historyMessages = 20

// Session is the per-goal conversation state shared by consecutive turns.
// It is not safe for concurrent turns.
type Session struct {
	GoalID string

	// date is the authoritative date resolved during the current turn.
	date string
	// lastObserved survives across turns until vault changes invalidate it.
	lastObserved *models.DaySignals
	// lastAssessment is the assessment produced during the current turn.
	lastAssessment *models.Assessment
}

// NewSession starts a conversation about goalID.
func NewSession(goalID string) *Session {
	return &Session{GoalID: goalID}
}

// LastObserved returns the cached signals, if any.
func (s *Session) LastObserved() *models.DaySignals {
	return s.lastObserved
}

// ApplyChanges drops the cached observation when any change touches a
// document with extension ext. It reports whether the cache was dropped.
func (s *Session) ApplyChanges(changes []models.ChangeEvent, ext string) bool {
	if s.lastObserved == nil {
		return false
	}
	for _, c := range changes {
		if strings.EqualFold(path.Ext(c.Path), ext) {
			s.lastObserved = nil
			return true
		}
	}
	return false
}

// ChangeQueue buffers vault change notifications that arrive while a turn is
// in flight. Producers push from any goroutine; the session drains between
// turns.
type ChangeQueue struct {
	mu      sync.Mutex
	pending []models.ChangeEvent
}

// Push appends events to the queue.
func (q *ChangeQueue) Push(events ...models.ChangeEvent) {
	q.mu.Lock()
	q.pending = append(q.pending, events...)
	q.mu.Unlock()
}

// Drain removes and returns everything queued so far.
func (q *ChangeQueue) Drain() []models.ChangeEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len reports the number of queued events.
func (q *ChangeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// TurnResult describes how a user turn ended.
type TurnResult struct {
	Text         string
	AssessmentID string
	Iterations   int
	StopReason   models.StopReason
	Exhausted    bool
	Persisted    bool
}

// Agent runs the bounded tool-using conversation for one user message.
type Agent struct {
	model         LanguageModel
	store         GoalContextStore
	tools         *ToolExecutor
	clock         Clock
	events        EventLogger
	logger        *zap.Logger
	maxIterations int
	maxTokens     int
}

// NewAgent creates an Agent. maxIterations is capped at MaxToolIterations.
func NewAgent(model LanguageModel, store GoalContextStore, tools *ToolExecutor, clock Clock,
	events EventLogger, logger *zap.Logger, maxIterations, maxTokens int) *Agent {
	if maxIterations <= 0 || maxIterations > MaxToolIterations {
		maxIterations = MaxToolIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		model:         model,
		store:         store,
		tools:         tools,
		clock:         clock,
		events:        events,
		logger:        logger.Named("agent"),
		maxIterations: maxIterations,
		maxTokens:     maxTokens,
	}
}

// Turn handles one user message. The user message is persisted first; the
// assistant reply is persisted only when the model ends its turn normally.
// Tool effects are never rolled back, even when the turn fails.
func (a *Agent) Turn(ctx context.Context, s *Session, userText string) (*TurnResult, error) {
	if s == nil || s.GoalID == "" {
		return nil, ErrNoActiveGoal
	}
	gc, err := a.store.GetContext(s.GoalID)
	if err != nil {
		return nil, fmt.Errorf("loading goal %s: %w", s.GoalID, err)
	}

	history := gc.Messages
	if err := a.store.AppendMessage(s.GoalID, models.TinkerMessage{
		Role:      models.RoleUser,
		Content:   userText,
		Timestamp: a.clock.Now(),
	}); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}

	s.date = ""
	s.lastAssessment = nil

	transcript := replayHistory(history)
	transcript = appendMessage(transcript, models.ChatMessage{
		Role:    models.RoleUser,
		Content: []models.ContentBlock{models.TextBlock(userText)},
	})
	system := chatSystemPrompt(gc.Goal, FormatDate(a.clock.Now()))
	catalog := ToolCatalog()

	result := &TurnResult{}
	var texts []string

	for result.Iterations < a.maxIterations {
		result.Iterations++
		resp, err := a.model.Complete(ctx, models.ModelRequest{
			System:    system,
			Messages:  transcript,
			Tools:     catalog,
			MaxTokens: a.maxTokens,
		})
		if err != nil {
			return result, fmt.Errorf("calling language model: %w", err)
		}
		result.StopReason = resp.StopReason
		transcript = append(transcript, models.ChatMessage{Role: models.RoleAssistant, Content: resp.Content})
		if text := resp.Text(); text != "" {
			texts = append(texts, text)
		}

		switch resp.StopReason {
		case models.StopEndTurn:
			result.Text = strings.Join(texts, "\n\n")
			if err := a.finish(s, result); err != nil {
				return result, err
			}
			return result, nil

		case models.StopToolUse:
			results, err := a.runTools(ctx, s, resp.ToolUses())
			if err != nil {
				result.Text = strings.Join(texts, "\n\n")
				return result, err
			}
			transcript = append(transcript, models.ChatMessage{Role: models.RoleUser, Content: results})

		default:
			result.Text = strings.Join(texts, "\n\n")
			a.logger.Info("turn ended without end_turn", zap.String("stop_reason", string(resp.StopReason)))
			return result, nil
		}
	}

	result.Text = strings.Join(texts, "\n\n")
	result.Exhausted = true
	a.logger.Warn("tool loop reached iteration ceiling", zap.Int("iterations", result.Iterations))
	logEvent(a.events, EventTurnExhausted, map[string]any{
		"goal_id":    s.GoalID,
		"iterations": result.Iterations,
	})
	return result, nil
}

// runTools executes every tool_use block in order and bundles the results.
// Only fatal errors are returned; other failures become is_error results.
func (a *Agent) runTools(ctx context.Context, s *Session, uses []models.ContentBlock) ([]models.ContentBlock, error) {
	results := make([]models.ContentBlock, 0, len(uses))
	for _, use := range uses {
		block := models.ContentBlock{Type: models.BlockToolResult, ToolUseID: use.ID}

		call, err := ParseToolCall(use.Name, use.Input)
		if err == nil {
			block.Content, err = a.tools.Execute(ctx, s, call)
		}
		if err != nil {
			if isFatal(err) {
				return nil, fmt.Errorf("running %s: %w", use.Name, err)
			}
			block.Content = "Error: " + err.Error()
			block.IsError = true
		}
		results = append(results, block)
	}
	return results, nil
}

func (a *Agent) finish(s *Session, result *TurnResult) error {
	msg := models.TinkerMessage{
		Role:      models.RoleAssistant,
		Content:   result.Text,
		Timestamp: a.clock.Now(),
	}
	if s.lastAssessment != nil {
		msg.AssessmentID = s.lastAssessment.ID
		result.AssessmentID = s.lastAssessment.ID
		for _, f := range s.lastAssessment.RawSignals.VaultActivity.ModifiedFiles {
			msg.Sources = append(msg.Sources, models.SourceRef{Path: f.Path, DisplayName: f.DisplayName})
		}
	}
	if err := a.store.AppendMessage(s.GoalID, msg); err != nil {
		return fmt.Errorf("saving assistant message: %w", err)
	}
	result.Persisted = true
	logEvent(a.events, EventTurnCompleted, map[string]any{
		"goal_id":       s.GoalID,
		"iterations":    result.Iterations,
		"assessment_id": result.AssessmentID,
	})
	return nil
}

// replayHistory converts the tail of the persisted transcript into model
// messages, merging consecutive messages from the same role.
func replayHistory(history []models.TinkerMessage) []models.ChatMessage {
	if len(history) > historyMessages {
		history = history[len(history)-historyMessages:]
	}
	var out []models.ChatMessage
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if len(out) == 0 && m.Role != models.RoleUser {
			continue
		}
		out = appendMessage(out, models.ChatMessage{
			Role:    m.Role,
			Content: []models.ContentBlock{models.TextBlock(m.Content)},
		})
	}
	return out
}

func appendMessage(msgs []models.ChatMessage, m models.ChatMessage) []models.ChatMessage {
	if n := len(msgs); n > 0 && msgs[n-1].Role == m.Role {
		msgs[n-1].Content = append(msgs[n-1].Content, m.Content...)
		return msgs
	}
	return append(msgs, m)
}
