package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// sidebarRefresh is how often the sidebar rereads tasks.json, picking up
// changes written by other processes.
const sidebarRefresh = 2 * time.Second

// sidebarWidth is the panel width when the terminal size is unknown.
const sidebarWidth = 48

var (
	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type sidebarModel struct {
	project string
	filter  core.TaskFilter
	reload  func()

	tasks   []models.TaskState
	stats   core.TaskStats
	updated time.Time
	width   int
	height  int
}

// tasksUpdatedMsg carries a task snapshot from the tracker listener.
type tasksUpdatedMsg struct {
	tasks []models.TaskState
	at    time.Time
}

type reloadTickMsg struct{}

func newSidebarModel(project string, filter core.TaskFilter, tasks []models.TaskState, reload func()) sidebarModel {
	m := sidebarModel{project: project, filter: filter, reload: reload}
	return m.withTasks(tasks, time.Now())
}

func (m sidebarModel) withTasks(tasks []models.TaskState, at time.Time) sidebarModel {
	var shown []models.TaskState
	for _, t := range tasks {
		if m.filter.Matches(t) {
			shown = append(shown, t)
		}
	}
	m.tasks = shown
	m.stats = core.ComputeTaskStats(tasks)
	m.updated = at
	return m
}

func reloadTick() tea.Cmd {
	return tea.Tick(sidebarRefresh, func(time.Time) tea.Msg { return reloadTickMsg{} })
}

func (m sidebarModel) Init() tea.Cmd {
	return reloadTick()
}

func (m sidebarModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.reloadCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tasksUpdatedMsg:
		return m.withTasks(msg.tasks, msg.at), nil

	case reloadTickMsg:
		return m, tea.Batch(m.reloadCmd(), reloadTick())
	}
	return m, nil
}

// reloadCmd rereads the task file off the UI loop. The tracker listener
// delivers the result as a tasksUpdatedMsg.
func (m sidebarModel) reloadCmd() tea.Cmd {
	if m.reload == nil {
		return nil
	}
	reload := m.reload
	return func() tea.Msg {
		reload()
		return nil
	}
}

func (m sidebarModel) View() string {
	width := sidebarWidth
	if m.width > 0 {
		width = min(m.width-2, 80)
	}
	inner := max(width-4, 20)

	var b strings.Builder
	b.WriteString(titleStyle.Render(" Tasks: " + truncate(sanitize(m.project), inner-9) + " "))
	b.WriteString("\n\n")
	b.WriteString(progressBar(m.stats.PercentComplete, inner-6))
	fmt.Fprintf(&b, " %3d%%\n", m.stats.PercentComplete)
	fmt.Fprintf(&b, "%s %d  %s %d  %s %d  %s %d\n\n",
		statusIcon(models.StatusCompleted), m.stats.Completed,
		statusIcon(models.StatusInProgress), m.stats.InProgress,
		statusIcon(models.StatusPending), m.stats.Pending,
		statusIcon(models.StatusFailed), m.stats.Failed)

	limit := len(m.tasks)
	if m.height > 0 {
		// title, bar, counts, blank lines, border and help
		limit = min(limit, max(m.height-10, 1))
	}
	if len(m.tasks) == 0 {
		b.WriteString(dimStyle.Render("No tasks found."))
		b.WriteString("\n")
	}
	for _, t := range m.tasks[:limit] {
		b.WriteString(sidebarLine(t, inner))
		b.WriteString("\n")
	}
	if hidden := len(m.tasks) - limit; hidden > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("... and %d more", hidden)))
		b.WriteString("\n")
	}

	panel := activePanelStyle.Width(width).Render(strings.TrimRight(b.String(), "\n"))
	help := helpStyle.Render(fmt.Sprintf("r: refresh | q: quit | updated %s", m.updated.Format("15:04:05")))
	return panel + "\n" + help
}

// sidebarLine renders one task as "<icon> <id> <title> <pct>".
func sidebarLine(t models.TaskState, width int) string {
	pct := fmt.Sprintf("%3d%%", t.Progress.Percentage)
	id := truncate(sanitize(t.ID), 10)
	titleWidth := max(width-len([]rune(id))-len(pct)-4, 5)
	title := truncate(sanitize(t.Title), titleWidth)
	pad := strings.Repeat(" ", max(titleWidth-len([]rune(title)), 0))
	return fmt.Sprintf("%s %s %s%s %s",
		statusIcon(t.Status),
		styleForPriority(t.Priority).Render(id),
		title, pad,
		dimStyle.Render(pct))
}

// runSidebar shows the live task panel until the user quits. Tracker
// changes reach the panel through OnTasksChanged; a periodic reload picks
// up writes made by other processes.
func runSidebar(project string, tr core.TaskTracker, filter core.TaskFilter) error {
	m := newSidebarModel(project, filter, tr.GetAllTasks(), reloadTasks(tr))
	p := tea.NewProgram(m, tea.WithAltScreen())
	unsubscribe := tr.OnTasksChanged(func(tasks []models.TaskState) {
		p.Send(tasksUpdatedMsg{tasks: tasks, at: time.Now()})
	})
	defer unsubscribe()
	_, err := p.Run()
	return err
}

// reloadTasks returns a callback that rereads tasks.json into tr. Pending
// debounced changes are flushed first so the reread cannot drop them; if
// the flush fails the in-memory tasks are kept.
func reloadTasks(tr core.TaskTracker) func() {
	return func() {
		if err := tr.Flush(); err != nil {
			slog.Warn("sidebar reload skipped", "error", err)
			return
		}
		tr.Initialize()
	}
}
