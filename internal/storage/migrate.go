package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// Legacy layouts of goals.yaml.
//
// v1 held a single goal with a top-level transcript and no version field.
// v2 held several goals but one shared transcript; messages carried an
// optional goal_id.

type schemaProbe struct {
	Version int        `yaml:"version"`
	Goals   *yaml.Node `yaml:"goals"`
}

type fileV1 struct {
	Goal        *models.Goal           `yaml:"goal"`
	Policy      *models.Policy         `yaml:"policy"`
	Assessments []models.Assessment    `yaml:"assessments"`
	Messages    []models.TinkerMessage `yaml:"messages"`
}

type goalV2 struct {
	models.Goal `yaml:",inline"`
	Policy      *models.Policy      `yaml:"policy"`
	Assessments []models.Assessment `yaml:"assessments"`
	ArchivedAt  time.Time           `yaml:"archived_at,omitempty"`
}

type messageV2 struct {
	models.TinkerMessage `yaml:",inline"`
	GoalID               string `yaml:"goal_id,omitempty"`
}

type fileV2 struct {
	ActiveGoalID  string      `yaml:"active_goal_id"`
	Goals         []goalV2    `yaml:"goals"`
	ArchivedGoals []goalV2    `yaml:"archived_goals"`
	Messages      []messageV2 `yaml:"messages"`
}

// upgrade decodes data in whatever schema it was written and returns the v3
// shape together with the version it found.
func upgrade(data []byte) (*goalFile, int, error) {
	var probe schemaProbe
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, 0, fmt.Errorf("detecting schema version: %w", err)
	}
	version := probe.Version
	if version == 0 {
		version = 1
		if probe.Goals != nil {
			version = 2
		}
	}

	switch version {
	case SchemaVersion:
		f := &goalFile{}
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, 0, fmt.Errorf("decoding v%d: %w", SchemaVersion, err)
		}
		return f, version, nil
	case 2:
		var old fileV2
		if err := yaml.Unmarshal(data, &old); err != nil {
			return nil, 0, fmt.Errorf("decoding v2: %w", err)
		}
		f, err := migrateV2(old)
		if err != nil {
			return nil, 0, err
		}
		return f, version, nil
	case 1:
		var old fileV1
		if err := yaml.Unmarshal(data, &old); err != nil {
			return nil, 0, fmt.Errorf("decoding v1: %w", err)
		}
		return migrateV1(old), version, nil
	default:
		return nil, 0, fmt.Errorf("schema version %d is newer than supported version %d", version, SchemaVersion)
	}
}

func migrateV1(old fileV1) *goalFile {
	f := &goalFile{Version: SchemaVersion}
	if old.Goal == nil {
		return f
	}
	gc := models.GoalContext{
		Goal:        normalizeGoal(*old.Goal),
		Policy:      normalizePolicy(old.Policy),
		Assessments: old.Assessments,
		Messages:    old.Messages,
	}
	stampAssessments(&gc)
	f.Contexts = []models.GoalContext{gc}
	f.ActiveID = gc.Goal.ID
	return f
}

// migrateV2 splits the shared transcript by goal_id. Untagged messages belong
// to the goal that was active when the file was written. Goals beyond
// models.MaxActiveGoals move to the archive, newest kept active.
func migrateV2(old fileV2) (*goalFile, error) {
	f := &goalFile{Version: SchemaVersion, ActiveID: old.ActiveGoalID}

	byID := map[string]*models.GoalContext{}
	contexts := make([]models.GoalContext, 0, len(old.Goals))
	for _, g := range old.Goals {
		contexts = append(contexts, contextFromV2(g))
	}
	archived := make([]models.ArchivedGoal, 0, len(old.ArchivedGoals))
	for _, g := range old.ArchivedGoals {
		gc := contextFromV2(g)
		gc.Goal.Active = false
		archived = append(archived, models.ArchivedGoal{GoalContext: gc, ArchivedAt: g.ArchivedAt})
	}

	if f.ActiveID == "" && len(contexts) > 0 {
		f.ActiveID = contexts[0].Goal.ID
	}
	fallback := f.ActiveID
	if fallback == "" && len(archived) > 0 {
		fallback = archived[0].Goal.ID
	}

	for i := range contexts {
		byID[contexts[i].Goal.ID] = &contexts[i]
	}
	for i := range archived {
		byID[archived[i].Goal.ID] = &archived[i].GoalContext
	}

	for _, m := range old.Messages {
		id := m.GoalID
		if _, ok := byID[id]; !ok {
			id = fallback
		}
		gc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("migrating v2: message from %s has no goal to attach to", m.Timestamp.Format(time.RFC3339))
		}
		gc.Messages = append(gc.Messages, m.TinkerMessage)
	}

	if len(contexts) > models.MaxActiveGoals {
		sort.SliceStable(contexts, func(i, j int) bool {
			if contexts[i].Goal.ID == f.ActiveID {
				return true
			}
			if contexts[j].Goal.ID == f.ActiveID {
				return false
			}
			return contexts[i].Goal.LockedAt.After(contexts[j].Goal.LockedAt)
		})
		for _, gc := range contexts[models.MaxActiveGoals:] {
			gc.Goal.Active = false
			archived = append(archived, models.ArchivedGoal{GoalContext: gc, ArchivedAt: lastActivity(gc)})
		}
		contexts = contexts[:models.MaxActiveGoals]
	}

	f.Contexts = contexts
	f.Archived = archived
	return f, nil
}

func contextFromV2(g goalV2) models.GoalContext {
	gc := models.GoalContext{
		Goal:        normalizeGoal(g.Goal),
		Policy:      normalizePolicy(g.Policy),
		Assessments: g.Assessments,
	}
	stampAssessments(&gc)
	return gc
}

func normalizeGoal(g models.Goal) models.Goal {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.TimeWindowDays <= 0 {
		g.TimeWindowDays = defaultWindowDays
	}
	if g.CurrentPhase == "" {
		g.CurrentPhase = models.PhaseExploration
	}
	g.Active = true
	return g
}

func normalizePolicy(p *models.Policy) models.Policy {
	if p == nil || len(p.Weights) == 0 {
		return models.DefaultPolicy()
	}
	out := *p
	if out.Version < 1 {
		out.Version = 1
	}
	return out
}

func stampAssessments(gc *models.GoalContext) {
	for i := range gc.Assessments {
		gc.Assessments[i].GoalID = gc.Goal.ID
	}
}

// lastActivity is the latest timestamp recorded for a context.
func lastActivity(gc models.GoalContext) time.Time {
	last := gc.Goal.LockedAt
	for _, a := range gc.Assessments {
		if a.CreatedAt.After(last) {
			last = a.CreatedAt
		}
	}
	for _, m := range gc.Messages {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	return last
}
