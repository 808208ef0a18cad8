package core

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valter-silva-au/specify-cli/pkg/models"
)

func newTestTracker(t *testing.T, opts TrackerOptions) (TaskTracker, *models.ProjectConfig) {
	t.Helper()
	root := t.TempDir()
	cfg := &models.ProjectConfig{ConfigPath: ConfigPathFor(root), SpecDirectory: filepath.Join(root, "specs")}
	if opts.Now == nil {
		opts.Now = steppingClock(baseTime)
	}
	tr := NewTaskTracker(cfg, opts)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, cfg
}

func quietOptions() TrackerOptions {
	return TrackerOptions{RealTimeUpdates: true, AutoSave: false, Debounce: time.Second}
}

func mustAdd(t *testing.T, tr TaskTracker, p models.NewTaskParams) models.TaskState {
	t.Helper()
	task, err := tr.AddTask(p)
	if err != nil {
		t.Fatalf("AddTask(%s): %v", p.ID, err)
	}
	return task
}

func taskIDs(tasks []models.TaskState) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}

func TestTaskTracker_AddTask(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())

	task := mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "Setup"})
	if task.Status != models.StatusPending || task.Priority != models.PriorityMedium {
		t.Errorf("task = %+v, want pending/medium", task)
	}

	if _, err := tr.AddTask(models.NewTaskParams{ID: "T1", Title: "dup"}); !errors.Is(err, ErrValidation) {
		t.Errorf("duplicate id err = %v, want ErrValidation", err)
	}
	if _, err := tr.AddTask(models.NewTaskParams{ID: "  "}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty id err = %v, want ErrValidation", err)
	}
	if got := len(tr.GetAllTasks()); got != 1 {
		t.Errorf("task count = %d, want 1", got)
	}
}

func TestTaskTracker_BlockedAndReady(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())
	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "first"})
	mustAdd(t, tr, models.NewTaskParams{ID: "T2", Title: "second", Dependencies: []string{"T1"}})

	if ready := taskIDs(tr.GetReadyTasks()); !slices.Equal(ready, []string{"T1"}) {
		t.Errorf("ready = %v, want [T1]", ready)
	}
	if blocked := taskIDs(tr.GetBlockedTasks()); !slices.Equal(blocked, []string{"T2"}) {
		t.Errorf("blocked = %v, want [T2]", blocked)
	}

	if _, ok := tr.UpdateTaskStatus("T1", models.StatusCompleted, models.MetadataPatch{}); !ok {
		t.Fatal("UpdateTaskStatus(T1) = false")
	}
	if ready := taskIDs(tr.GetReadyTasks()); !slices.Equal(ready, []string{"T2"}) {
		t.Errorf("ready after completing T1 = %v, want [T2]", ready)
	}
	if blocked := tr.GetBlockedTasks(); len(blocked) != 0 {
		t.Errorf("blocked after completing T1 = %v", taskIDs(blocked))
	}
}

func TestTaskTracker_Stats(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())
	for _, id := range []string{"A", "B", "C"} {
		mustAdd(t, tr, models.NewTaskParams{ID: id, Title: id})
	}
	tr.UpdateTaskStatus("A", models.StatusCompleted, models.MetadataPatch{})
	tr.UpdateTaskStatus("B", models.StatusCompleted, models.MetadataPatch{})
	tr.UpdateTaskStatus("C", models.StatusFailed, models.MetadataPatch{})

	stats := tr.GetTaskStats()
	if stats.Total != 3 || stats.Completed != 2 || stats.Failed != 1 || stats.PercentComplete != 67 {
		t.Errorf("stats = %+v, want total 3, completed 2, failed 1, 67%%", stats)
	}
}

func TestComputeTaskStats_EstimatedRemaining(t *testing.T) {
	est := func(ms int64) *int64 { return &ms }
	tasks := []models.TaskState{
		{Status: models.StatusPending, EstimatedDuration: est(1000)},
		{Status: models.StatusInProgress, EstimatedDuration: est(500)},
		{Status: models.StatusCompleted, EstimatedDuration: est(9000)},
		{Status: models.StatusSkipped},
	}
	stats := ComputeTaskStats(tasks)
	if stats.EstimatedTimeRemainingMs != 1500 {
		t.Errorf("EstimatedTimeRemainingMs = %d, want 1500", stats.EstimatedTimeRemainingMs)
	}
	if stats.Skipped != 1 || stats.PercentComplete != 25 {
		t.Errorf("stats = %+v", stats)
	}
	if empty := ComputeTaskStats(nil); empty.PercentComplete != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestTaskTracker_MissingTaskReturnsFalse(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())
	if _, ok := tr.UpdateTaskStatus("nope", models.StatusCompleted, models.MetadataPatch{}); ok {
		t.Error("UpdateTaskStatus on missing task = true")
	}
	if _, ok := tr.UpdateTask("nope", models.TaskPatch{}); ok {
		t.Error("UpdateTask on missing task = true")
	}
	if _, ok := tr.GetTask("nope"); ok {
		t.Error("GetTask on missing task = true")
	}
	if _, ok := tr.RetryTask("nope"); ok {
		t.Error("RetryTask on missing task = true")
	}
}

func TestTaskTracker_FailAndRetry(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())
	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "flaky", MaxRetries: 2})

	failed, ok := tr.MarkTaskAsFailed("T1", "network down", true)
	if !ok || failed.Status != models.StatusFailed || failed.Metadata.RetryCount != 1 {
		t.Fatalf("failed = %+v", failed)
	}
	if failed.Metadata.ErrorMessage != "network down" {
		t.Errorf("ErrorMessage = %q", failed.Metadata.ErrorMessage)
	}

	retried, ok := tr.RetryTask("T1")
	if !ok || retried.Status != models.StatusPending || retried.Metadata.ErrorMessage != "" {
		t.Fatalf("retried = %+v, %v", retried, ok)
	}

	tr.MarkTaskAsFailed("T1", "again", true)
	if _, ok := tr.RetryTask("T1"); ok {
		t.Error("retry allowed after retries were exhausted")
	}
	if task, _ := tr.GetTask("T1"); task.Status != models.StatusFailed {
		t.Errorf("status after refused retry = %s, want failed", task.Status)
	}
}

func TestTaskTracker_FailWithoutRetryExhausts(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())
	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "fatal"})

	failed, _ := tr.MarkTaskAsFailed("T1", "fatal", false)
	if failed.Metadata.RetryCount != failed.Metadata.MaxRetries {
		t.Errorf("RetryCount = %d, want %d", failed.Metadata.RetryCount, failed.Metadata.MaxRetries)
	}
	if _, ok := tr.RetryTask("T1"); ok {
		t.Error("retry allowed after a no-retry failure")
	}
}

func TestTaskTracker_RetryOnlyFromFailed(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())
	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "x"})
	if _, ok := tr.RetryTask("T1"); ok {
		t.Error("retry of a pending task succeeded")
	}
}

func TestTaskTracker_Filter(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())
	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "Configure caf\u00e9 login", Category: models.CategorySetup, Tags: []string{"auth"}})
	mustAdd(t, tr, models.NewTaskParams{ID: "T2", Title: "Write tests", Category: models.CategoryTest, Priority: models.PriorityHigh})
	mustAdd(t, tr, models.NewTaskParams{ID: "T3", Title: "Polish UI", Category: models.CategoryPolish, Tags: []string{"ui"}})
	tr.UpdateTaskStatus("T3", models.StatusInProgress, models.MetadataPatch{})

	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"empty", TaskFilter{}, []string{"T1", "T2", "T3"}},
		{"status", ParseFilter("in_progress"), []string{"T3"}},
		{"category", ParseFilter("test"), []string{"T2"}},
		{"priority", ParseFilter("high"), []string{"T2"}},
		{"search case-insensitive", ParseFilter("WRITE"), []string{"T2"}},
		{"search normalized", ParseFilter("cafe\u0301"), []string{"T1"}},
		{"tags", TaskFilter{Tags: []string{"ui", "auth"}}, []string{"T1", "T3"}},
		{"combined", TaskFilter{Category: []models.TaskCategory{models.CategorySetup}, Search: "tests"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := taskIDs(tr.GetFilteredTasks(tt.filter))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	if f := ParseFilter(""); f.Search != "" || len(f.Status) != 0 {
		t.Errorf("ParseFilter(\"\") = %+v, want empty", f)
	}
	if f := ParseFilter("Completed"); len(f.Status) != 1 || f.Status[0] != models.StatusCompleted {
		t.Errorf("ParseFilter(Completed) = %+v", f)
	}
	if f := ParseFilter("login page"); f.Search != "login page" {
		t.Errorf("ParseFilter(login page) = %+v", f)
	}
}

func TestTaskTracker_ListenersAreIsolated(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())

	var calls atomic.Int32
	tr.OnTasksChanged(func([]models.TaskState) { panic("listener bug") })
	unsubscribe := tr.OnTasksChanged(func(tasks []models.TaskState) {
		calls.Add(1)
		tasks[0].Title = "mutated by listener"
	})

	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "original"})
	if calls.Load() != 1 {
		t.Fatalf("listener calls = %d, want 1", calls.Load())
	}
	if task, _ := tr.GetTask("T1"); task.Title != "original" {
		t.Errorf("listener mutation leaked into tracker: %q", task.Title)
	}

	unsubscribe()
	tr.UpdateTaskStatus("T1", models.StatusInProgress, models.MetadataPatch{})
	if calls.Load() != 1 {
		t.Errorf("listener called after unsubscribe: %d", calls.Load())
	}
}

func TestTaskTracker_NoNotificationsWithoutRealTime(t *testing.T) {
	opts := quietOptions()
	opts.RealTimeUpdates = false
	tr, _ := newTestTracker(t, opts)

	called := false
	tr.OnTasksChanged(func([]models.TaskState) { called = true })
	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "x"})
	if called {
		t.Error("listener called with real-time updates off")
	}
}

func TestTaskTracker_SaveAndReload(t *testing.T) {
	opts := quietOptions()
	tr, cfg := newTestTracker(t, opts)
	mustAdd(t, tr, models.NewTaskParams{ID: "B", Title: "second"})
	mustAdd(t, tr, models.NewTaskParams{ID: "A", Title: "first?"})
	tr.UpdateTaskProgress("B", models.ProgressPatch{Percentage: ptr(40)})
	if err := tr.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var raw struct {
		Tasks   map[string]json.RawMessage `json:"tasks"`
		SavedAt time.Time                  `json:"savedAt"`
		Version string                     `json:"version"`
	}
	if err := readJSON(tr.FilePath(), &raw); err != nil {
		t.Fatalf("reading tasks.json: %v", err)
	}
	if raw.Version != "1.0" || len(raw.Tasks) != 2 || raw.SavedAt.IsZero() {
		t.Errorf("tasks.json = %+v", raw)
	}
	if tr.FilePath() != filepath.Join(filepath.Dir(cfg.ConfigPath), TasksFileName) {
		t.Errorf("FilePath = %q", tr.FilePath())
	}

	reloaded := NewTaskTracker(cfg, opts)
	reloaded.Initialize()
	// B was created first, so it sorts first on load.
	if ids := taskIDs(reloaded.GetAllTasks()); !slices.Equal(ids, []string{"B", "A"}) {
		t.Errorf("reloaded order = %v, want [B A]", ids)
	}
	if b, _ := reloaded.GetTask("B"); b.Progress.Percentage != 40 {
		t.Errorf("reloaded progress = %d, want 40", b.Progress.Percentage)
	}
}

func ptr[T any](v T) *T { return &v }

func TestTaskTracker_CorruptFileLoadsEmpty(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())
	writeFile(t, filepath.Dir(tr.FilePath()), TasksFileName, "{not json")

	tr.Initialize()
	if got := tr.GetAllTasks(); len(got) != 0 {
		t.Errorf("tasks = %v, want none", taskIDs(got))
	}
}

func TestTaskTracker_DebouncedAutoSave(t *testing.T) {
	opts := TrackerOptions{RealTimeUpdates: true, AutoSave: true, Debounce: time.Hour}
	tr, _ := newTestTracker(t, opts)

	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "x"})
	mustAdd(t, tr, models.NewTaskParams{ID: "T2", Title: "y"})
	if pathExists(tr.FilePath()) {
		t.Fatal("tasks saved before the debounce elapsed")
	}

	if err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	var data tasksFile
	if err := readJSON(tr.FilePath(), &data); err != nil {
		t.Fatalf("reading tasks.json: %v", err)
	}
	if len(data.Tasks) != 2 {
		t.Errorf("saved %d tasks, want 2", len(data.Tasks))
	}

	// Nothing pending, so a second flush does not rewrite the file.
	if err := os.Remove(tr.FilePath()); err != nil {
		t.Fatal(err)
	}
	if err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if pathExists(tr.FilePath()) {
		t.Error("second Flush wrote the file")
	}
}

func TestTaskTracker_AutoSaveFires(t *testing.T) {
	opts := TrackerOptions{RealTimeUpdates: true, AutoSave: true, Debounce: 10 * time.Millisecond}
	tr, _ := newTestTracker(t, opts)
	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "x"})

	deadline := time.Now().Add(2 * time.Second)
	for !pathExists(tr.FilePath()) {
		if time.Now().After(deadline) {
			t.Fatal("debounced save never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTaskTracker_ResetSavesImmediately(t *testing.T) {
	opts := TrackerOptions{RealTimeUpdates: true, AutoSave: true, Debounce: time.Hour}
	tr, _ := newTestTracker(t, opts)
	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "x"})

	if err := tr.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	var data tasksFile
	if err := readJSON(tr.FilePath(), &data); err != nil {
		t.Fatalf("reading tasks.json: %v", err)
	}
	if len(data.Tasks) != 0 {
		t.Errorf("saved %d tasks after reset, want 0", len(data.Tasks))
	}
}

func TestTaskTracker_ClearCompleted(t *testing.T) {
	tr, _ := newTestTracker(t, quietOptions())
	mustAdd(t, tr, models.NewTaskParams{ID: "T1", Title: "a"})
	mustAdd(t, tr, models.NewTaskParams{ID: "T2", Title: "b"})
	mustAdd(t, tr, models.NewTaskParams{ID: "T3", Title: "c"})
	tr.UpdateTaskStatus("T2", models.StatusCompleted, models.MetadataPatch{})

	if n := tr.ClearCompleted(); n != 1 {
		t.Errorf("ClearCompleted = %d, want 1", n)
	}
	if ids := taskIDs(tr.GetAllTasks()); !slices.Equal(ids, []string{"T1", "T3"}) {
		t.Errorf("remaining = %v", ids)
	}
}

func TestTaskTracker_SaveLogsEvent(t *testing.T) {
	events := &recordingEvents{}
	opts := quietOptions()
	opts.EventLogger = events
	tr, _ := newTestTracker(t, opts)
	if err := tr.Save(); err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(events.types(), EventTasksSaved) {
		t.Errorf("events = %v", events.types())
	}
}

func TestExportTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tasks-export.json")
	tasks := []models.TaskState{models.NewTaskState(models.NewTaskParams{ID: "T1", Title: "x"}, baseTime)}
	if err := ExportTasks(path, tasks, baseTime); err != nil {
		t.Fatalf("ExportTasks: %v", err)
	}
	var data struct {
		ExportedAt time.Time          `json:"exportedAt"`
		TaskCount  int                `json:"taskCount"`
		Tasks      []models.TaskState `json:"tasks"`
	}
	if err := readJSON(path, &data); err != nil {
		t.Fatal(err)
	}
	if data.TaskCount != 1 || len(data.Tasks) != 1 || !data.ExportedAt.Equal(baseTime) {
		t.Errorf("export = %+v", data)
	}
}
