package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

func sidebarTasks() []models.TaskState {
	now := time.Now()
	done := models.NewTaskState(models.NewTaskParams{ID: "T001", Title: "Create project structure", Category: models.CategorySetup}, now)
	done.Status = models.StatusCompleted
	done.Progress.Percentage = 100
	active := models.NewTaskState(models.NewTaskParams{ID: "T002", Title: "Write checkout tests", Category: models.CategoryTest}, now)
	active.Status = models.StatusInProgress
	active.Progress.Percentage = 40
	pending := models.NewTaskState(models.NewTaskParams{ID: "T003", Title: "Implement checkout"}, now)
	return []models.TaskState{done, active, pending}
}

func TestNewSidebarModel(t *testing.T) {
	m := newSidebarModel("shop", core.TaskFilter{}, sidebarTasks(), nil)

	if len(m.tasks) != 3 {
		t.Errorf("got %d tasks, want 3", len(m.tasks))
	}
	if m.stats.Total != 3 || m.stats.Completed != 1 || m.stats.InProgress != 1 {
		t.Errorf("stats = %+v", m.stats)
	}
	if m.updated.IsZero() {
		t.Error("updated time not set")
	}
	if m.Init() == nil {
		t.Error("expected Init to schedule a reload tick")
	}
}

func TestSidebarModel_FilterKeepsOverallStats(t *testing.T) {
	m := newSidebarModel("shop", core.ParseFilter("test"), sidebarTasks(), nil)

	if len(m.tasks) != 1 || m.tasks[0].ID != "T002" {
		t.Errorf("filtered tasks = %v", taskIDs(m.tasks))
	}
	if m.stats.Total != 3 {
		t.Errorf("stats.Total = %d, want all 3 tasks", m.stats.Total)
	}
}

func TestSidebarModel_TasksUpdated(t *testing.T) {
	m := newSidebarModel("shop", core.TaskFilter{}, nil, nil)
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.Local)

	updated, cmd := m.Update(tasksUpdatedMsg{tasks: sidebarTasks(), at: at})
	if cmd != nil {
		t.Error("expected no command after a task update")
	}
	sm := updated.(sidebarModel)
	if len(sm.tasks) != 3 {
		t.Errorf("got %d tasks after update, want 3", len(sm.tasks))
	}
	if !sm.updated.Equal(at) {
		t.Errorf("updated = %v, want %v", sm.updated, at)
	}
	if !strings.Contains(sm.View(), "12:30:00") {
		t.Error("view does not show the update time")
	}
}

func TestSidebarModel_Keys(t *testing.T) {
	reloads := 0
	m := newSidebarModel("shop", core.TaskFilter{}, nil, func() { reloads++ })

	for _, key := range []string{"q", "esc", "ctrl+c"} {
		var msg tea.KeyMsg
		switch key {
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "ctrl+c":
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Fatalf("%s: expected quit command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: expected tea.QuitMsg", key)
		}
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("r: expected reload command")
	}
	cmd()
	if reloads != 1 {
		t.Errorf("reload called %d times, want 1", reloads)
	}
}

func TestSidebarModel_ReloadWithoutCallback(t *testing.T) {
	m := newSidebarModel("shop", core.TaskFilter{}, nil, nil)
	if cmd := m.reloadCmd(); cmd != nil {
		t.Error("expected no reload command without a callback")
	}
}

func TestSidebarModel_ReloadTick(t *testing.T) {
	m := newSidebarModel("shop", core.TaskFilter{}, nil, func() {})
	_, cmd := m.Update(reloadTickMsg{})
	if cmd == nil {
		t.Error("expected reload and next tick commands")
	}
}

func TestSidebarModel_View(t *testing.T) {
	m := newSidebarModel("shop", core.TaskFilter{}, sidebarTasks(), nil)
	view := m.View()

	for _, want := range []string{"Tasks: shop", "33%", "T001", "Write checkout tests", "40%", "r: refresh | q: quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestSidebarModel_ViewEmpty(t *testing.T) {
	m := newSidebarModel("shop", core.TaskFilter{}, nil, nil)
	if !strings.Contains(m.View(), "No tasks found.") {
		t.Errorf("empty view:\n%s", m.View())
	}
}

func TestSidebarModel_ViewLimitsToHeight(t *testing.T) {
	var tasks []models.TaskState
	for i := range 20 {
		tasks = append(tasks, models.NewTaskState(models.NewTaskParams{ID: "T" + strings.Repeat("0", 2) + string(rune('A'+i)), Title: "task"}, time.Now()))
	}
	m := newSidebarModel("shop", core.TaskFilter{}, tasks, nil)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 14})
	view := updated.(sidebarModel).View()

	if !strings.Contains(view, "... and 16 more") {
		t.Errorf("expected hidden task count:\n%s", view)
	}
}

func TestSidebarLine_Truncates(t *testing.T) {
	task := models.NewTaskState(models.NewTaskParams{ID: "T001", Title: strings.Repeat("long title ", 10)}, time.Now())
	line := sidebarLine(task, 40)

	if !strings.Contains(line, "…") {
		t.Errorf("long title not truncated: %q", line)
	}
	if !strings.Contains(line, "  0%") {
		t.Errorf("progress missing: %q", line)
	}
}

func TestSidebarLine_StripsEscapes(t *testing.T) {
	task := models.NewTaskState(models.NewTaskParams{ID: "T001", Title: "\x1b[31mred\x1b[0m"}, time.Now())
	if strings.Contains(sidebarLine(task, 40), "\x1b[31m") {
		t.Error("escape sequence from task title rendered")
	}
}

// orderedTracker records the Flush and Initialize calls made on it.
type orderedTracker struct {
	core.TaskTracker
	calls    []string
	flushErr error
}

func (o *orderedTracker) Flush() error {
	o.calls = append(o.calls, "flush")
	return o.flushErr
}

func (o *orderedTracker) Initialize() {
	o.calls = append(o.calls, "initialize")
}

func TestReloadTasks_FlushesBeforeRereading(t *testing.T) {
	tr := &orderedTracker{}
	reloadTasks(tr)()

	if strings.Join(tr.calls, ",") != "flush,initialize" {
		t.Errorf("calls = %v, want flush then initialize", tr.calls)
	}
}

func TestReloadTasks_KeepsTasksWhenFlushFails(t *testing.T) {
	tr := &orderedTracker{flushErr: errors.New("disk full")}
	reloadTasks(tr)()

	if strings.Join(tr.calls, ",") != "flush" {
		t.Errorf("calls = %v, want only flush", tr.calls)
	}
}

func TestReloadTasks_KeepsPendingChange(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.initProject(t)
	tr := seedTasks(t, cfg, models.NewTaskParams{ID: "T001", Title: "Set up"})
	defer tr.Close()

	// Debounce is an hour, so this change is only in memory.
	if _, err := tr.AddTask(models.NewTaskParams{ID: "T002", Title: "Build"}); err != nil {
		t.Fatal(err)
	}
	reloadTasks(tr)()

	if got := len(tr.GetAllTasks()); got != 2 {
		t.Errorf("got %d tasks after reload, want 2", got)
	}
}
