package core

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// --- fakeDocs: in-memory DocumentStore ---

type fakeDoc struct {
	content string
	modTime time.Time
	created time.Time
}

type fakeDocs struct {
	mu    sync.Mutex
	files map[string]*fakeDoc
	now   time.Time
}

func newFakeDocs(now time.Time) *fakeDocs {
	return &fakeDocs{files: map[string]*fakeDoc{}, now: now}
}

func (d *fakeDocs) put(p, content string, mod time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[p] = &fakeDoc{content: content, modTime: mod, created: mod}
}

func (d *fakeDocs) Read(p string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[p]
	if !ok {
		return "", fmt.Errorf("reading %s: %w", p, ErrDocumentNotFound)
	}
	return f.content, nil
}

func (d *fakeDocs) List(context.Context) ([]models.DocumentInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.DocumentInfo
	for p, f := range d.files {
		folder := path.Dir(p)
		if folder == "." {
			folder = ""
		}
		out = append(out, models.DocumentInfo{
			Path:      p,
			Name:      path.Base(p),
			Folder:    folder,
			Extension: path.Ext(p),
			ModTime:   f.modTime,
			CreatedAt: f.created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (d *fakeDocs) Write(p, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.files[p]; ok {
		f.content = content
		f.modTime = d.now
		return nil
	}
	d.files[p] = &fakeDoc{content: content, modTime: d.now, created: d.now}
	return nil
}

func (d *fakeDocs) CreateFolder(string) error { return nil }

func (d *fakeDocs) Metadata(p string) (*models.DocumentMeta, error) {
	content, err := d.Read(p)
	if err != nil {
		return nil, err
	}
	return ParseMarkdownMeta(content), nil
}

// --- fakeShell: scripted Shell recording every call ---

type fakeShell struct {
	mu        sync.Mutex
	responses map[string]string
	calls     []string
	// onRun lets a test mutate responses as commands execute.
	onRun func(cmd string)
}

func newFakeShell() *fakeShell {
	return &fakeShell{responses: map[string]string{}}
}

func (s *fakeShell) Run(_ context.Context, args ...string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := strings.Join(args, " ")
	s.calls = append(s.calls, cmd)
	if s.onRun != nil {
		s.onRun(cmd)
	}
	best, found := "", false
	for prefix := range s.responses {
		if strings.HasPrefix(cmd, prefix) && len(prefix) >= len(best) {
			best, found = prefix, true
		}
	}
	if !found {
		return "", fmt.Errorf("unexpected command: git %s", cmd)
	}
	return s.responses[best], nil
}

func (s *fakeShell) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// --- scriptedModel: LanguageModel replaying canned responses ---

type scriptedModel struct {
	mu        sync.Mutex
	responses []*models.ModelResponse
	// repeat is returned once responses are exhausted.
	repeat   *models.ModelResponse
	requests []models.ModelRequest
	err      error
}

func (m *scriptedModel) Complete(_ context.Context, req models.ModelRequest) (*models.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) > 0 {
		r := m.responses[0]
		m.responses = m.responses[1:]
		return r, nil
	}
	if m.repeat != nil {
		return m.repeat, nil
	}
	return nil, fmt.Errorf("scripted model has no more responses")
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func textResponse(text string) *models.ModelResponse {
	return &models.ModelResponse{
		Content:    []models.ContentBlock{models.TextBlock(text)},
		StopReason: models.StopEndTurn,
	}
}

func toolResponse(name, input string) *models.ModelResponse {
	return &models.ModelResponse{
		Content: []models.ContentBlock{{
			Type:  models.BlockToolUse,
			ID:    "toolu_" + uuid.NewString()[:8],
			Name:  name,
			Input: []byte(input),
		}},
		StopReason: models.StopToolUse,
	}
}

// --- memStore: in-memory GoalContextStore ---

type memStore struct {
	mu       sync.Mutex
	contexts map[string]*models.GoalContext
	archived []models.ArchivedGoal
	active   string
}

func newMemStore() *memStore {
	return &memStore{contexts: map[string]*models.GoalContext{}}
}

func (s *memStore) addGoal(g models.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[g.ID] = &models.GoalContext{Goal: g, Policy: models.DefaultPolicy()}
	if s.active == "" {
		s.active = g.ID
	}
}

func (s *memStore) CreateGoal(spec models.GoalSpec) (*models.Goal, error) {
	g := models.Goal{
		ID:             uuid.NewString(),
		Description:    spec.Description,
		TimeWindowDays: spec.TimeWindowDays,
		CurrentPhase:   models.PhaseExploration,
		Active:         true,
	}
	s.addGoal(g)
	return &g, nil
}

func (s *memStore) ListGoals() ([]models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Goal
	for _, gc := range s.contexts {
		out = append(out, gc.Goal)
	}
	return out, nil
}

func (s *memStore) ListArchived() ([]models.ArchivedGoal, error) { return s.archived, nil }

func (s *memStore) ArchiveGoal(goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gc, ok := s.contexts[goalID]
	if !ok {
		return fmt.Errorf("goal %s not found", goalID)
	}
	s.archived = append(s.archived, models.ArchivedGoal{GoalContext: *gc})
	delete(s.contexts, goalID)
	return nil
}

func (s *memStore) GetContext(goalID string) (*models.GoalContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gc, ok := s.contexts[goalID]
	if !ok {
		return nil, fmt.Errorf("goal %s not found", goalID)
	}
	cp := *gc
	cp.Assessments = append([]models.Assessment(nil), gc.Assessments...)
	cp.Messages = append([]models.TinkerMessage(nil), gc.Messages...)
	return &cp, nil
}

func (s *memStore) UpsertAssessment(goalID string, a models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gc := s.contexts[goalID]
	for i := range gc.Assessments {
		if gc.Assessments[i].Date == a.Date {
			gc.Assessments[i] = a
			return nil
		}
	}
	gc.Assessments = append(gc.Assessments, a)
	return nil
}

func (s *memStore) AppendMessage(goalID string, m models.TinkerMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gc, ok := s.contexts[goalID]
	if !ok {
		return fmt.Errorf("goal %s not found", goalID)
	}
	gc.Messages = append(gc.Messages, m)
	return nil
}

func (s *memStore) UpdateGoalContext(goalID, context string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[goalID].Goal.Context = context
	return nil
}

func (s *memStore) SetPhase(goalID string, phase models.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[goalID].Goal.CurrentPhase = phase
	return nil
}

func (s *memStore) UpdatePolicy(goalID string, p models.Policy) (*models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[goalID].Policy = p
	return &p, nil
}

func (s *memStore) ActiveGoalID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, nil
}

func (s *memStore) SetActiveGoal(goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = goalID
	return nil
}

func (s *memStore) messages(goalID string) []models.TinkerMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TinkerMessage(nil), s.contexts[goalID].Messages...)
}

// --- recordingEvents: EventLogger capturing event types ---

type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEvents) LogEvent(eventType string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	return nil
}

func (r *recordingEvents) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// testConfig returns the default configuration rooted at vault.
func testConfig(vault string) *models.TinkerConfig {
	return &models.TinkerConfig{
		Vault: models.VaultConfig{
			Path:          vault,
			DailyFolder:   "Daily",
			DailyFormat:   DateLayout,
			Extension:     ".md",
			ReportsFolder: "Tinker/Reports",
		},
		DataDir:     ".tinker",
		Sections:    models.SectionConfig{Priority: "Priority Actions", Ships: "Ships"},
		Feedback:    models.FeedbackConfig{PositiveFile: "Feedback/Positive.md", NegativeFile: "Feedback/Negative.md"},
		Reflections: models.ReflectionConfig{Tag: "reflection"},
		Git:         models.GitConfig{Enabled: true, Timeout: 12 * time.Second},
		Diff:        models.DiffConfig{MaxFiles: 15, MaxChars: 1500, MinLines: 3},
		LLM:         models.LLMConfig{MaxTokens: 1024},
		Loop:        models.LoopConfig{MaxIterations: MaxToolIterations, DayBoundaryHour: 4},
	}
}
