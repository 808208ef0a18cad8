package internal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/internal/observability"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// newTestApp creates a fully wired App for dir. The event log is closed
// automatically when the test finishes.
func newTestApp(t *testing.T, dir string) *App {
	t.Helper()
	app, err := NewApp(dir)
	if err != nil {
		t.Fatalf("creating test app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

// newInitializedProject runs init in a fresh directory and returns an App
// rebuilt inside the project, the way the CLI starts on the next run.
func newInitializedProject(t *testing.T) (*App, *models.ProjectConfig) {
	t.Helper()
	root := t.TempDir()
	boot := newTestApp(t, root)
	res, err := boot.ProjectInit.Init(core.InitOptions{TargetDir: root, Name: "shop"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(res.Config.SpecDirectory, "spec.md"), []byte("# Checkout\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	app := newTestApp(t, root)
	return app, res.Config
}

func readEvents(t *testing.T, app *App) []observability.Event {
	t.Helper()
	if app.EventLog == nil {
		t.Fatal("expected an event log")
	}
	events, err := app.EventLog.Read(observability.EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	return events
}

// =========================================================================
// 1. Init -> detect -> switch model -> metrics
// =========================================================================

func TestIntegration_InitDetectSwitch(t *testing.T) {
	app, cfg := newInitializedProject(t)

	det := app.Detector.DetectProject(app.BasePath, core.DefaultDetectOptions())
	if !det.Found || det.Config == nil {
		t.Fatalf("detection failed: %+v", det.Issues)
	}
	if det.HasErrors() {
		t.Fatalf("fresh project has errors: %+v", det.Issues)
	}
	if det.Config.ProjectID != cfg.ProjectID {
		t.Fatalf("detected project %s, want %s", det.Config.ProjectID, cfg.ProjectID)
	}

	res := app.Switcher.SwitchModel(det.Config, core.SwitchOptions{TargetModel: models.ModelGemini, CreateBackup: true})
	if !res.Success {
		t.Fatalf("switch failed: %s", res.ErrorMessage)
	}
	if res.BackupPath == "" {
		t.Fatal("expected a migration backup")
	}
	if rel, err := filepath.Rel(app.Settings.BackupDir(app.ProjectRoot), res.BackupPath); err != nil || rel == "" || rel[0] == '.' {
		t.Errorf("backup %s not under settings backup dir %s", res.BackupPath, app.Settings.BackupDir(app.ProjectRoot))
	}

	reloaded, err := app.Configs.LoadConfig(cfg.ConfigPath)
	if err != nil {
		t.Fatalf("reloading config: %v", err)
	}
	if reloaded.AIModel != models.ModelGemini {
		t.Errorf("AIModel = %s, want gemini", reloaded.AIModel)
	}
	if len(reloaded.MigrationHistory) != 1 || !reloaded.MigrationHistory[0].Success {
		t.Errorf("migration history = %+v", reloaded.MigrationHistory)
	}

	m, err := app.MetricsCalc.Calculate(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.MigrationsStarted != 1 || m.MigrationsCompleted != 1 || m.MigrationsFailed != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if m.MigrationsByTarget["gemini"] != 1 {
		t.Errorf("MigrationsByTarget = %v", m.MigrationsByTarget)
	}
}

// =========================================================================
// 2. A failing migration rolls back and is recorded
// =========================================================================

func TestIntegration_FailedMigrationRollsBack(t *testing.T) {
	app, cfg := newInitializedProject(t)

	failing := core.NewModelSwitcher(core.SwitcherOptions{
		Configs:         app.Configs,
		Registry:        app.Registry,
		BackupDirectory: app.Settings.Backup.Directory,
		EventLogger:     &eventLogAdapter{log: app.EventLog},
		Transformer: core.SpecTransformerFunc(func(string, []byte, models.AIModel, models.AIModel) ([]byte, error) {
			return nil, errors.New("transform exploded")
		}),
	})
	res := failing.SwitchModel(cfg, core.SwitchOptions{TargetModel: models.ModelGemini, CreateBackup: true})
	if res.Success {
		t.Fatal("expected the switch to fail")
	}
	var migErr *core.MigrationError
	if !errors.As(res.Err, &migErr) {
		t.Fatalf("Err = %T %v, want *core.MigrationError", res.Err, res.Err)
	}

	reloaded, err := app.Configs.LoadConfig(cfg.ConfigPath)
	if err != nil {
		t.Fatalf("reloading config: %v", err)
	}
	if reloaded.AIModel != models.ModelClaude {
		t.Errorf("AIModel = %s after rollback, want claude", reloaded.AIModel)
	}

	var types []string
	for _, e := range readEvents(t, app) {
		types = append(types, e.Type)
	}
	want := []string{core.EventMigrationStarted, core.EventMigrationFailed, core.EventMigrationRolledBack}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

// =========================================================================
// 3. Task tracking survives a restart and logs saves
// =========================================================================

func TestIntegration_TasksPersistAcrossApps(t *testing.T) {
	app, cfg := newInitializedProject(t)

	tr := core.NewTaskTracker(cfg, core.TrackerOptions{
		Debounce:    10 * time.Millisecond,
		EventLogger: &eventLogAdapter{log: app.EventLog},
	})
	tr.Initialize()
	if _, err := tr.AddTask(models.NewTaskParams{ID: "T1", Title: "Set up CI", Category: models.CategorySetup}); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.AddTask(models.NewTaskParams{ID: "T2", Title: "Checkout page", Dependencies: []string{"T1"}}); err != nil {
		t.Fatal(err)
	}
	tr.UpdateTaskStatus("T1", models.StatusCompleted, models.MetadataPatch{})
	if err := tr.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = tr.Close()

	again := newTestApp(t, app.BasePath)
	_, cfg2, err := findProject(again)
	if err != nil {
		t.Fatal(err)
	}
	tr2 := core.NewTaskTracker(cfg2, core.TrackerOptions{})
	tr2.Initialize()
	defer func() { _ = tr2.Close() }()

	stats := tr2.GetTaskStats()
	if stats.Total != 2 || stats.Completed != 1 || stats.PercentComplete != 50 {
		t.Errorf("stats = %+v", stats)
	}
	ready := tr2.GetReadyTasks()
	if len(ready) != 1 || ready[0].ID != "T2" {
		t.Errorf("ready = %+v, want T2", ready)
	}

	saved := 0
	for _, e := range readEvents(t, app) {
		if e.Type == core.EventTasksSaved {
			saved++
		}
	}
	if saved == 0 {
		t.Error("expected a tasks.saved event")
	}
}

// =========================================================================
// 4. Reset keeps project backups and allows a fresh init
// =========================================================================

func TestIntegration_ResetThenReinit(t *testing.T) {
	app, cfg := newInitializedProject(t)
	root := app.ProjectRoot

	backup, err := app.Resetter.CreateProjectBackup(root, cfg)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if err := app.Resetter.Reset(root, cfg, core.ResetOptions{}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := os.Stat(cfg.ConfigPath); !os.IsNotExist(err) {
		t.Error("config.json should be gone after reset")
	}
	if _, err := os.Stat(backup); err != nil {
		t.Errorf("project backup removed by reset: %v", err)
	}

	det := app.Detector.DetectProject(root, core.DefaultDetectOptions())
	if !det.Found || det.Config != nil {
		t.Fatalf("after reset want found project without config, got found=%t config=%v", det.Found, det.Config)
	}

	res, err := app.ProjectInit.Init(core.InitOptions{TargetDir: root, AIModel: models.ModelCopilot})
	if err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if res.Config.ProjectID == cfg.ProjectID {
		t.Error("re-init should create a new project id")
	}

	backups, err := app.Resetter.ListProjectBackups(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 || backups[0].Path != backup {
		t.Errorf("backups = %+v, want [%s]", backups, backup)
	}
}

// findProject detects the project around the app's base path.
func findProject(app *App) (string, *models.ProjectConfig, error) {
	det := app.Detector.DetectProject(app.BasePath, core.DefaultDetectOptions())
	if !det.Found || det.Config == nil {
		return "", nil, errors.New("project not found")
	}
	return det.ProjectPath, det.Config, nil
}
