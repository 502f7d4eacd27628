package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// SchemaVersion is the current on-disk layout of goals.yaml.
const SchemaVersion = 3

const (
	goalsFileName     = "goals.yaml"
	defaultWindowDays = 30
)

var (
	// ErrGoalCapacity is returned when locking a goal would exceed
	// models.MaxActiveGoals.
	ErrGoalCapacity = errors.New("goal capacity reached")
	// ErrGoalNotFound is returned for an unknown or archived goal id.
	ErrGoalNotFound = errors.New("goal not found")
)

// goalFile is the v3 schema: one context per goal, each owning its own
// assessments and transcript.
type goalFile struct {
	Version  int                   `yaml:"version"`
	ActiveID string                `yaml:"active_id,omitempty"`
	Contexts []models.GoalContext  `yaml:"contexts"`
	Archived []models.ArchivedGoal `yaml:"archived"`
}

// GoalStore persists goal contexts in a single YAML file under the data
// directory. Every mutation reloads the file, applies the change and writes it
// back atomically before returning.
type GoalStore interface {
	CreateGoal(spec models.GoalSpec) (*models.Goal, error)
	ListGoals() ([]models.Goal, error)
	ListArchived() ([]models.ArchivedGoal, error)
	ArchiveGoal(goalID string) error
	GetContext(goalID string) (*models.GoalContext, error)
	UpsertAssessment(goalID string, a models.Assessment) error
	AppendMessage(goalID string, m models.TinkerMessage) error
	UpdateGoalContext(goalID, context string) error
	SetPhase(goalID string, phase models.Phase) error
	UpdatePolicy(goalID string, policy models.Policy) (*models.Policy, error)
	ActiveGoalID() (string, error)
	SetActiveGoal(goalID string) error
	// Migrate upgrades a legacy file in place and reports the version it
	// found. A missing file reports SchemaVersion.
	Migrate() (from int, err error)
}

type fileGoalStore struct {
	mu      sync.Mutex
	dataDir string
	now     func() time.Time
}

// NewGoalStore creates a GoalStore backed by <dataDir>/goals.yaml. now stamps
// LockedAt and ArchivedAt; nil means time.Now.
func NewGoalStore(dataDir string, now func() time.Time) GoalStore {
	if now == nil {
		now = time.Now
	}
	return &fileGoalStore{dataDir: dataDir, now: now}
}

func (s *fileGoalStore) filePath() string {
	return filepath.Join(s.dataDir, goalsFileName)
}

func (s *fileGoalStore) lockPath() string {
	return s.filePath() + ".lock"
}

// load reads and, if needed, upgrades the goal file. A missing file is an
// empty v3 store.
func (s *fileGoalStore) load() (*goalFile, int, error) {
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &goalFile{Version: SchemaVersion}, SchemaVersion, nil
		}
		return nil, 0, fmt.Errorf("reading %s: %w", goalsFileName, err)
	}
	f, from, err := upgrade(data)
	if err != nil {
		return nil, 0, fmt.Errorf("loading %s: %w", goalsFileName, err)
	}
	return f, from, nil
}

func (s *fileGoalStore) save(f *goalFile) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	f.Version = SchemaVersion
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", goalsFileName, err)
	}
	if err := writeFileAtomic(s.filePath(), data); err != nil {
		return fmt.Errorf("writing %s: %w", goalsFileName, err)
	}
	return nil
}

// read loads a snapshot for a query.
func (s *fileGoalStore) read() (*goalFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, _, err := s.load()
	return f, err
}

// locked runs fn holding both the in-process mutex and the cross-process
// file lock.
func (s *fileGoalStore) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	unlock, err := lockFile(s.lockPath())
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// mutate applies fn to a freshly loaded file and persists the result. Nothing
// is written when fn fails.
func (s *fileGoalStore) mutate(fn func(f *goalFile) error) error {
	return s.locked(func() error {
		f, _, err := s.load()
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		return s.save(f)
	})
}

func (f *goalFile) find(goalID string) (*models.GoalContext, error) {
	for i := range f.Contexts {
		if f.Contexts[i].Goal.ID == goalID {
			return &f.Contexts[i], nil
		}
	}
	return nil, fmt.Errorf("goal %s: %w", goalID, ErrGoalNotFound)
}

func (s *fileGoalStore) CreateGoal(spec models.GoalSpec) (*models.Goal, error) {
	desc := strings.TrimSpace(spec.Description)
	if desc == "" {
		return nil, fmt.Errorf("creating goal: description must not be empty")
	}
	if spec.TimeWindowDays < 0 {
		return nil, fmt.Errorf("creating goal: time window must be positive, got %d", spec.TimeWindowDays)
	}
	phase := spec.Phase
	if phase == "" {
		phase = models.PhaseExploration
	}
	if !validPhase(phase) {
		return nil, fmt.Errorf("creating goal: unknown phase %q", phase)
	}
	policy := models.DefaultPolicy()
	if spec.Policy != nil {
		if err := spec.Policy.Validate(); err != nil {
			return nil, fmt.Errorf("creating goal: %w", err)
		}
		policy = *spec.Policy
		if policy.Version < 1 {
			policy.Version = 1
		}
	}

	goal := models.Goal{
		ID:             uuid.NewString(),
		Description:    desc,
		Context:        strings.TrimSpace(spec.Context),
		TimeWindowDays: spec.TimeWindowDays,
		LockedAt:       s.now().UTC(),
		CurrentPhase:   phase,
		Active:         true,
	}
	if goal.TimeWindowDays == 0 {
		goal.TimeWindowDays = defaultWindowDays
	}

	err := s.mutate(func(f *goalFile) error {
		if len(f.Contexts) >= models.MaxActiveGoals {
			return fmt.Errorf("creating goal: %d goals already active: %w", len(f.Contexts), ErrGoalCapacity)
		}
		f.Contexts = append(f.Contexts, models.GoalContext{Goal: goal, Policy: policy})
		if f.ActiveID == "" {
			f.ActiveID = goal.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

// ListGoals returns the active goals ordered by lock time.
func (s *fileGoalStore) ListGoals() ([]models.Goal, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	goals := make([]models.Goal, 0, len(f.Contexts))
	for _, gc := range f.Contexts {
		goals = append(goals, gc.Goal)
	}
	sort.SliceStable(goals, func(i, j int) bool {
		return goals[i].LockedAt.Before(goals[j].LockedAt)
	})
	return goals, nil
}

func (s *fileGoalStore) ListArchived() ([]models.ArchivedGoal, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	return f.Archived, nil
}

// ArchiveGoal moves a context, with its full history, to the archive list.
// If it was the selected goal, the selection moves to the remaining goal.
// ref may be a unique id prefix.
func (s *fileGoalStore) ArchiveGoal(ref string) error {
	return s.mutate(func(f *goalFile) error {
		goalID, err := f.resolve(ref)
		if err != nil {
			return fmt.Errorf("archiving goal: %w", err)
		}
		idx := -1
		for i := range f.Contexts {
			if f.Contexts[i].Goal.ID == goalID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("archiving goal %s: %w", goalID, ErrGoalNotFound)
		}
		gc := f.Contexts[idx]
		gc.Goal.Active = false
		f.Archived = append(f.Archived, models.ArchivedGoal{GoalContext: gc, ArchivedAt: s.now().UTC()})
		f.Contexts = append(f.Contexts[:idx], f.Contexts[idx+1:]...)

		if f.ActiveID == goalID {
			f.ActiveID = ""
			if len(f.Contexts) > 0 {
				f.ActiveID = f.Contexts[0].Goal.ID
			}
		}
		return nil
	})
}

// GetContext returns the active goal's context. goalID may be a unique prefix.
func (s *fileGoalStore) GetContext(goalID string) (*models.GoalContext, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	id, err := f.resolve(goalID)
	if err != nil {
		return nil, err
	}
	gc, err := f.find(id)
	if err != nil {
		return nil, err
	}
	return gc, nil
}

// UpsertAssessment stores a, replacing in place any assessment for the same
// date.
func (s *fileGoalStore) UpsertAssessment(goalID string, a models.Assessment) error {
	if a.Date == "" {
		return fmt.Errorf("saving assessment: date must not be empty")
	}
	return s.mutate(func(f *goalFile) error {
		gc, err := f.find(goalID)
		if err != nil {
			return fmt.Errorf("saving assessment: %w", err)
		}
		a.GoalID = goalID
		for i := range gc.Assessments {
			if gc.Assessments[i].Date == a.Date {
				gc.Assessments[i] = a
				return nil
			}
		}
		gc.Assessments = append(gc.Assessments, a)
		return nil
	})
}

func (s *fileGoalStore) AppendMessage(goalID string, m models.TinkerMessage) error {
	if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
		return fmt.Errorf("appending message: unknown role %q", m.Role)
	}
	return s.mutate(func(f *goalFile) error {
		gc, err := f.find(goalID)
		if err != nil {
			return fmt.Errorf("appending message: %w", err)
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = s.now().UTC()
		}
		gc.Messages = append(gc.Messages, m)
		return nil
	})
}

func (s *fileGoalStore) UpdateGoalContext(goalID, context string) error {
	return s.mutate(func(f *goalFile) error {
		gc, err := f.find(goalID)
		if err != nil {
			return fmt.Errorf("updating goal context: %w", err)
		}
		gc.Goal.Context = strings.TrimSpace(context)
		return nil
	})
}

func (s *fileGoalStore) SetPhase(goalID string, phase models.Phase) error {
	if !validPhase(phase) {
		return fmt.Errorf("setting phase: unknown phase %q", phase)
	}
	return s.mutate(func(f *goalFile) error {
		gc, err := f.find(goalID)
		if err != nil {
			return fmt.Errorf("setting phase: %w", err)
		}
		gc.Goal.CurrentPhase = phase
		return nil
	})
}

// UpdatePolicy replaces the goal's weights and milestones. The version is
// bumped only when the weights actually change.
func (s *fileGoalStore) UpdatePolicy(goalID string, policy models.Policy) (*models.Policy, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("updating policy: %w", err)
	}
	var updated models.Policy
	err := s.mutate(func(f *goalFile) error {
		gc, err := f.find(goalID)
		if err != nil {
			return fmt.Errorf("updating policy: %w", err)
		}
		version := gc.Policy.Version
		if version < 1 {
			version = 1
		}
		if !gc.Policy.SameWeights(policy) {
			version++
		}
		policy.Version = version
		gc.Policy = policy
		updated = policy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ActiveGoalID returns the selected goal, falling back to the earliest
// locked goal. It returns "" when no goals exist.
func (s *fileGoalStore) ActiveGoalID() (string, error) {
	f, err := s.read()
	if err != nil {
		return "", err
	}
	if f.ActiveID != "" {
		if _, err := f.find(f.ActiveID); err == nil {
			return f.ActiveID, nil
		}
	}
	if len(f.Contexts) == 0 {
		return "", nil
	}
	first := f.Contexts[0].Goal
	for _, gc := range f.Contexts[1:] {
		if gc.Goal.LockedAt.Before(first.LockedAt) {
			first = gc.Goal
		}
	}
	return first.ID, nil
}

// SetActiveGoal selects goalID, which may be a unique id prefix.
func (s *fileGoalStore) SetActiveGoal(goalID string) error {
	return s.mutate(func(f *goalFile) error {
		id, err := f.resolve(goalID)
		if err != nil {
			return fmt.Errorf("selecting goal: %w", err)
		}
		f.ActiveID = id
		return nil
	})
}

func (s *fileGoalStore) Migrate() (int, error) {
	from := SchemaVersion
	err := s.locked(func() error {
		f, v, err := s.load()
		if err != nil {
			return err
		}
		from = v
		if v == SchemaVersion {
			return nil
		}
		return s.save(f)
	})
	if err != nil {
		return 0, fmt.Errorf("migrating goal store: %w", err)
	}
	return from, nil
}

// resolve matches an exact id or a unique prefix of one.
func (f *goalFile) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty goal id: %w", ErrGoalNotFound)
	}
	var matches []string
	for _, gc := range f.Contexts {
		if gc.Goal.ID == ref {
			return ref, nil
		}
		if strings.HasPrefix(gc.Goal.ID, ref) {
			matches = append(matches, gc.Goal.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("goal %s: %w", ref, ErrGoalNotFound)
	default:
		return "", fmt.Errorf("goal prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
}

func validPhase(p models.Phase) bool {
	switch p {
	case models.PhaseExploration, models.PhaseExecution, models.PhaseRefinement:
		return true
	}
	return false
}
