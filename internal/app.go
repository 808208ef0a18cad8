// Package internal provides the App struct that wires all components of the
// specify CLI together and initializes the CLI layer.
package internal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/specify-cli/internal/cli"
	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/internal/observability"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// App holds all service dependencies of the specify CLI.
type App struct {
	BasePath string
	// ProjectRoot is the detected project root, empty outside a project.
	ProjectRoot string
	Settings    *core.Settings

	Registry    *models.ModelRegistry
	Configs     core.ConfigManager
	Detector    core.ProjectDetector
	Switcher    core.ModelSwitcher
	Resetter    core.ProjectResetter
	ProjectInit core.ProjectInitializer

	// Observability
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
}

// NewApp creates and wires all components. basePath is where project
// detection starts, normally the working directory.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}
	logger := slog.New(defaultHandler{})

	app.Registry = models.DefaultModelRegistry()

	// --- Settings ---
	// Settings live inside the project, so find the root with default
	// options first.
	finder := core.NewProjectDetector(core.DetectorOptions{Catalog: app.Registry, Logger: logger})
	if root, found, err := finder.FindProjectRoot(basePath, core.DefaultSettings().SearchDepth); err == nil && found {
		app.ProjectRoot = root
	}
	settings := core.DefaultSettings()
	if app.ProjectRoot != "" {
		loaded, err := core.LoadSettings(app.ProjectRoot)
		if err != nil {
			// Defaults keep the CLI usable with a broken settings file.
			logger.Warn("using default settings", "error", err)
		} else {
			settings = loaded
		}
	}
	app.Settings = settings

	// --- Observability ---
	if app.ProjectRoot != "" {
		if info, err := os.Stat(filepath.Join(app.ProjectRoot, core.SpecifyDir)); err == nil && info.IsDir() {
			eventLog, err := observability.NewJSONLEventLog(observability.ProjectEventLogPath(app.ProjectRoot))
			if err != nil {
				// Non-fatal: run without the event log.
				logger.Warn("event log disabled", "error", err)
			} else {
				app.EventLog = eventLog
				app.MetricsCalc = observability.NewMetricsCalculator(eventLog)
			}
		}
	}
	var events core.EventLogger
	if app.EventLog != nil {
		events = &eventLogAdapter{log: app.EventLog}
	}

	// --- Core services ---
	app.Configs = core.NewConfigManager(core.ConfigManagerOptions{
		Catalog:       app.Registry,
		BackupEnabled: settings.Backup.Enabled,
		MaxBackups:    settings.Backup.MaxBackups,
		Logger:        logger,
	})
	app.Detector = core.NewProjectDetector(core.DetectorOptions{
		Configs:     app.Configs,
		Catalog:     app.Registry,
		EventLogger: events,
		Logger:      logger,
	})
	app.Switcher = core.NewModelSwitcher(core.SwitcherOptions{
		Configs:         app.Configs,
		Registry:        app.Registry,
		BackupDirectory: settings.Backup.Directory,
		CLIVersion:      settings.CLIVersion,
		EventLogger:     events,
		Logger:          logger,
	})
	app.Resetter = core.NewProjectResetter(core.ResetterOptions{
		Detector:    app.Detector,
		EventLogger: events,
		Logger:      logger,
	})
	app.ProjectInit = core.NewProjectInitializer(app.Configs, app.Registry)

	trackerOpts := core.TrackerOptions{
		RealTimeUpdates: settings.Tasks.RealTime,
		AutoSave:        settings.Tasks.AutoSave,
		Debounce:        settings.Tasks.Debounce,
		EventLogger:     events,
		Logger:          logger,
	}

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Settings = settings
	cli.Registry = app.Registry
	cli.Configs = app.Configs
	cli.Detector = app.Detector
	cli.Switcher = app.Switcher
	cli.Resetter = app.Resetter
	cli.ProjectInit = app.ProjectInit
	cli.NewTracker = func(cfg *models.ProjectConfig) core.TaskTracker {
		return core.NewTaskTracker(cfg, trackerOpts)
	}
	cli.EventLog = app.EventLog
	cli.MetricsCalc = app.MetricsCalc

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath returns where project detection starts: SPECIFY_PROJECT
// when set, otherwise the current directory.
func ResolveBasePath() string {
	if p := os.Getenv("SPECIFY_PROJECT"); p != "" {
		return p
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	level := observability.LevelInfo
	switch eventType {
	case core.EventMigrationFailed:
		level = observability.LevelError
	case core.EventMigrationRolledBack:
		level = observability.LevelWarn
	}
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   level,
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}

// defaultHandler forwards to the handler of slog.Default() at log time, so
// services built before the CLI parses --debug still honor it.
type defaultHandler struct{}

func (defaultHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, level)
}

func (defaultHandler) Handle(ctx context.Context, r slog.Record) error {
	return slog.Default().Handler().Handle(ctx, r)
}

func (defaultHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return slog.Default().Handler().WithAttrs(attrs)
}

func (defaultHandler) WithGroup(name string) slog.Handler {
	return slog.Default().Handler().WithGroup(name)
}
