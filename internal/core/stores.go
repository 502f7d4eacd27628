package core

import (
	"context"

	"github.com/valter-silva-au/tinker/pkg/models"
)

// DocumentStore gives read/write access to the markdown vault. Paths are
// vault-relative with forward slashes. Read returns ErrDocumentNotFound for a
// missing document.
type DocumentStore interface {
	Read(path string) (string, error)
	List(ctx context.Context) ([]models.DocumentInfo, error)
	Write(path, content string) error
	CreateFolder(path string) error
	Metadata(path string) (*models.DocumentMeta, error)
}

// Shell runs version-control commands relative to the vault's working tree.
// Implementations enforce their own timeout.
type Shell interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// LanguageModel sends one request to the model endpoint.
type LanguageModel interface {
	Complete(ctx context.Context, req models.ModelRequest) (*models.ModelResponse, error)
}

// GoalContextStore persists goals together with their policy, assessments and
// transcript. This interface is defined locally in core to avoid importing
// storage. Every mutation is durable before it returns.
type GoalContextStore interface {
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
}
