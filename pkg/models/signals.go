package models

// Effort classifies a priority action by whether it was time-blocked.
type Effort string

const (
	EffortDeepWork    Effort = "deep_work"
	EffortQuickAction Effort = "quick_action"
)

// Polarity distinguishes positive from negative feedback.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
)

// DiffSource records how a modified file's diff body was obtained.
type DiffSource string

const (
	DiffSourceGit           DiffSource = "git"
	DiffSourceMtimeFallback DiffSource = "mtime_fallback"
)

// TaskItem is a checkbox line from the daily note's priority section.
type TaskItem struct {
	Title          string   `yaml:"title" json:"title"`
	Tags           []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Completed      bool     `yaml:"completed" json:"completed"`
	TimeAnnotation string   `yaml:"time_annotation,omitempty" json:"timeAnnotation,omitempty"`
	DurationMin    int      `yaml:"duration_min,omitempty" json:"durationMin,omitempty"`
	Effort         Effort   `yaml:"effort" json:"effort"`
}

// ShipItem is a checkbox line from the daily note's ships section.
type ShipItem struct {
	Title     string `yaml:"title" json:"title"`
	Completed bool   `yaml:"completed" json:"completed"`
}

// FeedbackItem is one dated entry from a feedback collection.
type FeedbackItem struct {
	Text     string   `yaml:"text" json:"text"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Polarity Polarity `yaml:"polarity" json:"polarity"`
}

// Reflection is a tagged snippet of reflective writing.
type Reflection struct {
	Text       string `yaml:"text" json:"text"`
	SourceFile string `yaml:"source_file" json:"sourceFile"`
}

// ModifiedFileSignal describes one vault document changed on the observed date.
type ModifiedFileSignal struct {
	Path         string     `yaml:"path" json:"path"`
	DisplayName  string     `yaml:"display_name" json:"displayName"`
	Folder       string     `yaml:"folder" json:"folder"`
	Headings     []string   `yaml:"headings,omitempty" json:"headings,omitempty"`
	Diff         string     `yaml:"diff" json:"diff"`
	CreatedToday bool       `yaml:"created_today" json:"createdToday"`
	Source       DiffSource `yaml:"source" json:"source"`
}

// VaultActivity summarises which documents were touched on a date.
type VaultActivity struct {
	FilesTouched  int                  `yaml:"files_touched" json:"filesTouched"`
	ActiveFolders []string             `yaml:"active_folders,omitempty" json:"activeFolders,omitempty"`
	ModifiedFiles []ModifiedFileSignal `yaml:"modified_files,omitempty" json:"modifiedFiles,omitempty"`
}

// DaySignals is the evidence bundle for one calendar date.
type DaySignals struct {
	Date                string         `yaml:"date" json:"date"`
	PriorityActions     []TaskItem     `yaml:"priority_actions,omitempty" json:"priorityActions,omitempty"`
	Ships               []ShipItem     `yaml:"ships,omitempty" json:"ships,omitempty"`
	Feedback            []FeedbackItem `yaml:"feedback,omitempty" json:"feedback,omitempty"`
	Reflections         []Reflection   `yaml:"reflections,omitempty" json:"reflections,omitempty"`
	VaultActivity       VaultActivity  `yaml:"vault_activity" json:"vaultActivity"`
	ConversationContext string         `yaml:"conversation_context,omitempty" json:"conversationContext,omitempty"`
}

// Empty reports whether no evidence at all was found.
func (s *DaySignals) Empty() bool {
	return len(s.PriorityActions) == 0 &&
		len(s.Ships) == 0 &&
		len(s.Feedback) == 0 &&
		len(s.Reflections) == 0 &&
		s.VaultActivity.FilesTouched == 0 &&
		s.ConversationContext == ""
}
