package models

import "time"

// MessageRole identifies the author of a transcript entry.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// SourceRef points at a vault document referenced by a message.
type SourceRef struct {
	Path        string `yaml:"path" json:"path"`
	DisplayName string `yaml:"display_name" json:"displayName"`
}

// TinkerMessage is a single entry in a goal's chat transcript.
type TinkerMessage struct {
	Role         MessageRole `yaml:"role"`
	Content      string      `yaml:"content"`
	Timestamp    time.Time   `yaml:"timestamp"`
	AssessmentID string      `yaml:"assessment_id,omitempty"`
	Sources      []SourceRef `yaml:"sources,omitempty"`
}
