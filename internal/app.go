// Package internal provides the App struct that wires all components of
// tinker together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/valter-silva-au/tinker/internal/cli"
	"github.com/valter-silva-au/tinker/internal/core"
	"github.com/valter-silva-au/tinker/internal/integration"
	"github.com/valter-silva-au/tinker/internal/observability"
	"github.com/valter-silva-au/tinker/internal/storage"
	"github.com/valter-silva-au/tinker/pkg/models"
)

// App holds all service dependencies for tinker.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.TinkerConfig
	Logger    *zap.Logger

	// Storage layer
	Goals storage.GoalStore

	// Integration services
	Vault *integration.VaultStore
	Git   *integration.GitShell
	Model *integration.AnthropicClient

	// Core services
	Clock    core.Clock
	Observer core.Observer
	Engine   core.AssessmentEngine
	Reports  core.ReportRenderer
	Tools    *core.ToolExecutor
	Agent    *core.Agent

	// Observability
	EventLog    observability.EventLog
	Events      core.EventLogger
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components of tinker. basePath is the vault
// root, where .tinkerconfig lives.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath, Clock: core.NewSystemClock()}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	app.Logger, err = observability.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := app.Logger

	dataDir := cfg.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(basePath, dataDir)
	}

	// --- Storage layer ---
	app.Goals = storage.NewGoalStore(dataDir, app.Clock.Now)

	// --- Integration services ---
	app.Vault = integration.NewVaultStore(basePath, logger)
	var shell core.Shell
	if cfg.Git.Enabled {
		git := integration.NewGitShell(basePath, cfg.Git.Timeout)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Git.Timeout)
		if git.IsRepository(ctx) {
			app.Git = git
			shell = git
		} else {
			logger.Debug("vault is not a git repository, using modify times", zap.String("path", basePath))
		}
		cancel()
	}
	app.Model = integration.NewAnthropicClient(integration.AnthropicConfig{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	}, logger)

	// --- Observability ---
	eventLogPath := filepath.Join(dataDir, "events.jsonl")
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: disable observability if log can't be created.
		logger.Warn("event log unavailable", zap.String("path", eventLogPath), zap.Error(err))
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.Events = observability.NewRecorder(app.EventLog, app.Clock.Now)
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.ThresholdsFromConfig(cfg.Alerts), app.Clock.Now)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if url := cfg.Notifications.Slack.WebhookURL; url != "" {
		app.Notifier = observability.NewSlackNotifier(url)
	}

	// --- Core services ---
	app.Observer = core.NewObserver(app.Vault, shell, cfg, app.Events, logger)
	app.Engine = core.NewAssessmentEngine(app.Model, app.Clock, cfg.LLM.MaxTokens, logger)
	app.Reports = core.NewReportRenderer(app.Vault, cfg.Vault.ReportsFolder)
	app.Tools = core.NewToolExecutor(app.Goals, app.Observer, app.Engine, app.Reports,
		app.Clock, app.Events, logger, cfg.Loop.DayBoundaryHour)
	app.Agent = core.NewAgent(app.Model, app.Goals, app.Tools, app.Clock,
		app.Events, logger, cfg.Loop.MaxIterations, cfg.LLM.MaxTokens)

	// --- Wire CLI package-level variables ---
	cli.Config = cfg
	cli.Logger = logger
	cli.Clock = app.Clock
	cli.Goals = app.Goals
	cli.GoalsFile = app.Goals
	cli.Tools = app.Tools
	cli.Agent = app.Agent
	cli.Reports = app.Reports
	cli.Events = app.Events
	cli.NewWatcher = app.newWatcher

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// newWatcher opens a vault watcher that skips the reports folder and the
// data directory, which tinker writes itself.
func (a *App) newWatcher() (cli.ChangeSource, error) {
	excluded := append([]string{}, a.Config.Vault.ExcludedFolders...)
	excluded = append(excluded, a.Config.Vault.ReportsFolder)
	if !filepath.IsAbs(a.Config.DataDir) {
		excluded = append(excluded, a.Config.DataDir)
	}
	w, err := integration.NewVaultWatcher(a.BasePath, integration.WatchOptions{
		Extension: a.Config.Vault.Extension,
		Excluded:  excluded,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the vault root. It checks the TINKER_VAULT env
// var, then walks up from the current directory looking for .tinkerconfig.
func ResolveBasePath() string {
	if vault := os.Getenv("TINKER_VAULT"); vault != "" {
		return vault
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".tinkerconfig")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	// Fall back to cwd.
	cwd, _ := os.Getwd()
	return cwd
}
