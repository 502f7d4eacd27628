package models

import "time"

// VaultConfig locates documents inside the vault.
type VaultConfig struct {
	Path            string   `yaml:"path" mapstructure:"path"`
	DailyFolder     string   `yaml:"daily_folder" mapstructure:"daily_folder"`
	DailyFormat     string   `yaml:"daily_format" mapstructure:"daily_format"`
	Extension       string   `yaml:"extension" mapstructure:"extension"`
	ExcludedFolders []string `yaml:"excluded_folders" mapstructure:"excluded_folders"`
	ReportsFolder   string   `yaml:"reports_folder" mapstructure:"reports_folder"`
}

// SectionConfig names the daily note sections that hold structured plans.
type SectionConfig struct {
	Priority string `yaml:"priority" mapstructure:"priority"`
	Ships    string `yaml:"ships" mapstructure:"ships"`
}

// FeedbackConfig points at the two feedback collections.
type FeedbackConfig struct {
	PositiveFile string `yaml:"positive_file" mapstructure:"positive_file"`
	NegativeFile string `yaml:"negative_file" mapstructure:"negative_file"`
}

// GitConfig controls version-control diff collection.
type GitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DiffConfig bounds the file diffs attached to day signals.
type DiffConfig struct {
	MaxFiles int `yaml:"max_files" mapstructure:"max_files"`
	MaxChars int `yaml:"max_chars" mapstructure:"max_chars"`
	MinLines int `yaml:"min_lines" mapstructure:"min_lines"`
}

// LLMConfig configures the language-model endpoint.
type LLMConfig struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Model     string        `yaml:"model" mapstructure:"model"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	MaxTokens int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LoopConfig bounds the agentic tool loop.
type LoopConfig struct {
	MaxIterations   int `yaml:"max_iterations" mapstructure:"max_iterations"`
	DayBoundaryHour int `yaml:"day_boundary_hour" mapstructure:"day_boundary_hour"`
}

// AlertConfig sets thresholds for drift alerts.
type AlertConfig struct {
	LowScore     int `yaml:"low_score" mapstructure:"low_score"`
	LowScoreDays int `yaml:"low_score_days" mapstructure:"low_score_days"`
	MissedDays   int `yaml:"missed_days" mapstructure:"missed_days"`
}

// SlackConfig holds the Slack incoming-webhook target.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotificationConfig configures outbound alert delivery.
type NotificationConfig struct {
	Slack SlackConfig `yaml:"slack" mapstructure:"slack"`
}

// ReflectionConfig names the marker tag for reflective writing.
type ReflectionConfig struct {
	Tag string `yaml:"tag" mapstructure:"tag"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TinkerConfig holds all settings read from .tinkerconfig via Viper.
type TinkerConfig struct {
	Vault         VaultConfig        `yaml:"vault" mapstructure:"vault"`
	DataDir       string             `yaml:"data_dir" mapstructure:"data_dir"`
	Sections      SectionConfig      `yaml:"sections" mapstructure:"sections"`
	Feedback      FeedbackConfig     `yaml:"feedback" mapstructure:"feedback"`
	Reflections   ReflectionConfig   `yaml:"reflections" mapstructure:"reflections"`
	Git           GitConfig          `yaml:"git" mapstructure:"git"`
	Diff          DiffConfig         `yaml:"diff" mapstructure:"diff"`
	LLM           LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Loop          LoopConfig         `yaml:"loop" mapstructure:"loop"`
	Alerts        AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
	Log           LogConfig          `yaml:"log" mapstructure:"log"`
}
