// Package core contains the business logic for tinker: configuration, signal
// observation, assessment, report rendering and the agentic tool loop.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/tinker/pkg/models"
)

// MaxToolIterations is the hard ceiling on model round-trips per user turn.
const MaxToolIterations = 10

// ConfigurationManager loads and validates .tinkerconfig from the vault root.
type ConfigurationManager interface {
	LoadConfig() (*models.TinkerConfig, error)
	ValidateConfig(cfg *models.TinkerConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading the YAML configuration file.
type viperConfigManager struct {
	// basePath is the vault root where .tinkerconfig resides.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .tinkerconfig from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vault.daily_folder", "Daily")
	v.SetDefault("vault.daily_format", DateLayout)
	v.SetDefault("vault.extension", ".md")
	v.SetDefault("vault.excluded_folders", []string{})
	v.SetDefault("vault.reports_folder", "Tinker/Reports")
	v.SetDefault("data_dir", ".tinker")
	v.SetDefault("sections.priority", "Priority Actions")
	v.SetDefault("sections.ships", "Ships")
	v.SetDefault("feedback.positive_file", "Feedback/Positive.md")
	v.SetDefault("feedback.negative_file", "Feedback/Negative.md")
	v.SetDefault("reflections.tag", "reflection")
	v.SetDefault("git.enabled", true)
	v.SetDefault("git.timeout", 12*time.Second)
	v.SetDefault("diff.max_files", 15)
	v.SetDefault("diff.max_chars", 1500)
	v.SetDefault("diff.min_lines", 3)
	v.SetDefault("llm.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("loop.max_iterations", MaxToolIterations)
	v.SetDefault("loop.day_boundary_hour", 4)
	v.SetDefault("alerts.low_score", 40)
	v.SetDefault("alerts.low_score_days", 3)
	v.SetDefault("alerts.missed_days", 2)
	v.SetDefault("notifications.slack.webhook_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads .tinkerconfig from the base path. A missing file yields
// defaults. TINKER_* environment variables override file values, and
// ANTHROPIC_API_KEY is accepted for the model credential.
func (cm *viperConfigManager) LoadConfig() (*models.TinkerConfig, error) {
	v := viper.New()
	v.SetConfigName(".tinkerconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("TINKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", "TINKER_LLM_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding api key environment: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading .tinkerconfig: %w", err)
		}
	}

	cfg := &models.TinkerConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding .tinkerconfig: %w", err)
	}
	cfg.Vault.Path = cm.basePath
	cfg.Vault.DailyFormat = GoDateLayout(cfg.Vault.DailyFormat)
	cfg.Reflections.Tag = strings.TrimPrefix(strings.TrimSpace(cfg.Reflections.Tag), "#")
	if cfg.Vault.Extension != "" && !strings.HasPrefix(cfg.Vault.Extension, ".") {
		cfg.Vault.Extension = "." + cfg.Vault.Extension
	}
	return cfg, nil
}

// GoDateLayout converts a YYYY-MM-DD style pattern into a Go time layout.
// Layouts already written in Go's reference form pass through unchanged.
func GoDateLayout(pattern string) string {
	if !strings.Contains(pattern, "YYYY") && !strings.Contains(pattern, "DD") {
		return pattern
	}
	r := strings.NewReplacer(
		"YYYY", "2006",
		"YY", "06",
		"MMMM", "January",
		"MMM", "Jan",
		"MM", "01",
		"DD", "02",
		"dddd", "Monday",
		"ddd", "Mon",
	)
	return r.Replace(pattern)
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig reports every invalid value in a single error.
func (cm *viperConfigManager) ValidateConfig(cfg *models.TinkerConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Vault.DailyFormat == "" {
		errs = append(errs, "vault.daily_format must not be empty")
	}
	if !strings.HasPrefix(cfg.Vault.Extension, ".") {
		errs = append(errs, fmt.Sprintf("vault.extension %q must start with a dot", cfg.Vault.Extension))
	}
	if strings.TrimSpace(cfg.Vault.ReportsFolder) == "" {
		errs = append(errs, "vault.reports_folder must not be empty")
	}
	if cfg.Sections.Priority == "" || cfg.Sections.Ships == "" {
		errs = append(errs, "sections.priority and sections.ships must not be empty")
	}
	if cfg.Git.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("git.timeout must be positive, got %s", cfg.Git.Timeout))
	}
	if cfg.Diff.MaxFiles <= 0 {
		errs = append(errs, fmt.Sprintf("diff.max_files must be positive, got %d", cfg.Diff.MaxFiles))
	}
	if cfg.Diff.MaxChars <= 0 {
		errs = append(errs, fmt.Sprintf("diff.max_chars must be positive, got %d", cfg.Diff.MaxChars))
	}
	if cfg.Diff.MinLines < 0 {
		errs = append(errs, fmt.Sprintf("diff.min_lines must be non-negative, got %d", cfg.Diff.MinLines))
	}
	if cfg.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Sprintf("llm.max_tokens must be positive, got %d", cfg.LLM.MaxTokens))
	}
	if cfg.Loop.MaxIterations < 1 || cfg.Loop.MaxIterations > MaxToolIterations {
		errs = append(errs, fmt.Sprintf(
			"loop.max_iterations %d is invalid, must be between 1 and %d",
			cfg.Loop.MaxIterations, MaxToolIterations,
		))
	}
	if cfg.Loop.DayBoundaryHour < 0 || cfg.Loop.DayBoundaryHour > 23 {
		errs = append(errs, fmt.Sprintf(
			"loop.day_boundary_hour %d is invalid, must be between 0 and 23",
			cfg.Loop.DayBoundaryHour,
		))
	}
	if cfg.Alerts.LowScore < 0 || cfg.Alerts.LowScore > 100 {
		errs = append(errs, fmt.Sprintf("alerts.low_score %d is invalid, must be between 0 and 100", cfg.Alerts.LowScore))
	}
	if cfg.Alerts.LowScoreDays < 1 || cfg.Alerts.MissedDays < 1 {
		errs = append(errs, "alerts.low_score_days and alerts.missed_days must be at least 1")
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be console or json", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
