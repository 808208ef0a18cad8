package core

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// TasksFileName is the task store beside config.json.
const TasksFileName = "tasks.json"

// tasksFileVersion is written into every tasks.json.
const tasksFileVersion = "1.0"

// TaskFilter selects tasks. Empty fields match everything; Tags matches
// tasks carrying any of the listed tags.
type TaskFilter struct {
	Status   []models.TaskStatus
	Category []models.TaskCategory
	Priority []models.TaskPriority
	Tags     []string
	Search   string
}

// ParseFilter maps a single CLI filter term to a TaskFilter. Status,
// category and priority names select on that field; anything else is a
// text search.
func ParseFilter(term string) TaskFilter {
	lower := strings.ToLower(strings.TrimSpace(term))
	switch {
	case lower == "":
		return TaskFilter{}
	case models.IsValidTaskStatus(models.TaskStatus(lower)):
		return TaskFilter{Status: []models.TaskStatus{models.TaskStatus(lower)}}
	case models.IsValidTaskCategory(models.TaskCategory(lower)):
		return TaskFilter{Category: []models.TaskCategory{models.TaskCategory(lower)}}
	case models.IsValidTaskPriority(models.TaskPriority(lower)):
		return TaskFilter{Priority: []models.TaskPriority{models.TaskPriority(lower)}}
	}
	return TaskFilter{Search: term}
}

// Matches reports whether t passes every set criterion of f. Search is a
// case-insensitive, NFC-normalized substring match on title, description
// and id.
func (f TaskFilter) Matches(t models.TaskState) bool {
	if len(f.Status) > 0 && !slices.Contains(f.Status, t.Status) {
		return false
	}
	if len(f.Category) > 0 && !slices.Contains(f.Category, t.Metadata.Category) {
		return false
	}
	if len(f.Priority) > 0 && !slices.Contains(f.Priority, t.Priority) {
		return false
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(f.Tags, func(tag string) bool { return slices.Contains(t.Tags, tag) }) {
		return false
	}
	if f.Search != "" {
		needle := foldText(f.Search)
		if !strings.Contains(foldText(t.Title), needle) &&
			!strings.Contains(foldText(t.Description), needle) &&
			!strings.Contains(foldText(t.ID), needle) {
			return false
		}
	}
	return true
}

func foldText(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// TaskStats aggregates the tracked tasks.
type TaskStats struct {
	Total                    int   `json:"total" yaml:"total"`
	Pending                  int   `json:"pending" yaml:"pending"`
	InProgress               int   `json:"inProgress" yaml:"inProgress"`
	Completed                int   `json:"completed" yaml:"completed"`
	Failed                   int   `json:"failed" yaml:"failed"`
	Skipped                  int   `json:"skipped" yaml:"skipped"`
	PercentComplete          int   `json:"percentComplete" yaml:"percentComplete"`
	EstimatedTimeRemainingMs int64 `json:"estimatedTimeRemaining" yaml:"estimatedTimeRemaining"`
}

// ComputeTaskStats counts tasks by status. PercentComplete is rounded and
// the remaining estimate sums pending and in-progress estimates.
func ComputeTaskStats(tasks []models.TaskState) TaskStats {
	var s TaskStats
	s.Total = len(tasks)
	for _, t := range tasks {
		switch t.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusInProgress:
			s.InProgress++
		case models.StatusCompleted:
			s.Completed++
		case models.StatusFailed:
			s.Failed++
		case models.StatusSkipped:
			s.Skipped++
		}
		if (t.Status == models.StatusPending || t.Status == models.StatusInProgress) && t.EstimatedDuration != nil {
			s.EstimatedTimeRemainingMs += *t.EstimatedDuration
		}
	}
	if s.Total > 0 {
		s.PercentComplete = int(math.Round(float64(s.Completed) * 100 / float64(s.Total)))
	}
	return s
}

// TaskListener receives the full task list after every mutation.
type TaskListener func(tasks []models.TaskState)

// TaskTracker holds a project's tasks in memory, answers dependency-aware
// queries, and persists changes to tasks.json with a debounced save.
// Mutators that target a missing task return false.
type TaskTracker interface {
	Initialize()
	AddTask(params models.NewTaskParams) (models.TaskState, error)
	UpdateTask(id string, patch models.TaskPatch) (models.TaskState, bool)
	UpdateTaskStatus(id string, status models.TaskStatus, patch models.MetadataPatch) (models.TaskState, bool)
	UpdateTaskProgress(id string, patch models.ProgressPatch) (models.TaskState, bool)
	MarkTaskAsFailed(id, message string, allowRetry bool) (models.TaskState, bool)
	RetryTask(id string) (models.TaskState, bool)

	GetTask(id string) (models.TaskState, bool)
	GetAllTasks() []models.TaskState
	GetFilteredTasks(filter TaskFilter) []models.TaskState
	GetTaskStats() TaskStats
	GetReadyTasks() []models.TaskState
	GetBlockedTasks() []models.TaskState
	GetParallelTasks() []models.TaskState

	OnTasksChanged(listener TaskListener) (unsubscribe func())
	ClearCompleted() int
	Reset() error
	Save() error
	Flush() error
	Close() error
	FilePath() string
}

// TrackerOptions configures a TaskTracker.
type TrackerOptions struct {
	RealTimeUpdates bool
	AutoSave        bool
	Debounce        time.Duration
	EventLogger     EventLogger
	Logger          *slog.Logger
	Now             func() time.Time
}

// DefaultTrackerOptions enables notifications and a one second autosave.
func DefaultTrackerOptions() TrackerOptions {
	return TrackerOptions{RealTimeUpdates: true, AutoSave: true, Debounce: time.Second}
}

type tasksFile struct {
	Tasks   map[string]models.TaskState `json:"tasks"`
	SavedAt time.Time                   `json:"savedAt"`
	Version string                      `json:"version"`
}

type taskTracker struct {
	mu    sync.Mutex
	tasks map[string]models.TaskState
	order []string

	listenerMu sync.Mutex
	listeners  map[int]TaskListener
	nextID     int

	path   string
	opts   TrackerOptions
	saver  *debouncer
	logger *slog.Logger
	now    func() time.Time
}

// NewTaskTracker creates a tracker whose store sits beside cfg's
// config.json. Call Initialize to load existing tasks.
func NewTaskTracker(cfg *models.ProjectConfig, opts TrackerOptions) TaskTracker {
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	t := &taskTracker{
		tasks:     make(map[string]models.TaskState),
		listeners: make(map[int]TaskListener),
		path:      filepath.Join(filepath.Dir(cfg.ConfigPath), TasksFileName),
		opts:      opts,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	t.saver = newDebouncer(opts.Debounce, func() {
		if err := t.Save(); err != nil {
			t.logger.Warn("saving tasks failed", "path", t.path, "error", err)
		}
	})
	return t
}

func (t *taskTracker) FilePath() string { return t.path }

// Initialize loads tasks.json, replacing the tasks in memory, and notifies
// listeners. A missing or corrupt file leaves the tracker empty.
func (t *taskTracker) Initialize() {
	var data tasksFile
	err := readJSON(t.path, &data)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.logger.Warn("ignoring unreadable task file", "path", t.path, "error", err)
	}

	loaded := make([]models.TaskState, 0, len(data.Tasks))
	if err == nil {
		for id, task := range data.Tasks {
			if task.ID == "" {
				task.ID = id
			}
			loaded = append(loaded, task)
		}
	}
	sort.Slice(loaded, func(i, j int) bool {
		if !loaded[i].CreatedAt.Equal(loaded[j].CreatedAt) {
			return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
		}
		return loaded[i].ID < loaded[j].ID
	})

	t.mu.Lock()
	t.tasks = make(map[string]models.TaskState, len(loaded))
	t.order = nil
	for _, task := range loaded {
		t.tasks[task.ID] = task
		t.order = append(t.order, task.ID)
	}
	t.mu.Unlock()

	t.notify()
}

// AddTask creates a pending task. Ids must be non-empty and unique.
func (t *taskTracker) AddTask(p models.NewTaskParams) (models.TaskState, error) {
	if strings.TrimSpace(p.ID) == "" {
		return models.TaskState{}, fmt.Errorf("adding task: %w: id is required", ErrValidation)
	}
	task := models.NewTaskState(p, t.now())

	t.mu.Lock()
	if _, exists := t.tasks[p.ID]; exists {
		t.mu.Unlock()
		return models.TaskState{}, fmt.Errorf("adding task %s: %w: id already exists", p.ID, ErrValidation)
	}
	t.tasks[task.ID] = task
	t.order = append(t.order, task.ID)
	t.mu.Unlock()

	t.changed()
	return task.Clone(), nil
}

// mutate applies fn to the task with id and publishes the change when fn
// reports one.
func (t *taskTracker) mutate(id string, fn func(models.TaskState) (models.TaskState, bool)) (models.TaskState, bool) {
	t.mu.Lock()
	task, ok := t.tasks[id]
	if !ok {
		t.mu.Unlock()
		return models.TaskState{}, false
	}
	updated, ok := fn(task)
	if !ok {
		t.mu.Unlock()
		return models.TaskState{}, false
	}
	t.tasks[id] = updated
	t.mu.Unlock()

	t.changed()
	return updated.Clone(), true
}

func (t *taskTracker) UpdateTask(id string, patch models.TaskPatch) (models.TaskState, bool) {
	return t.mutate(id, func(task models.TaskState) (models.TaskState, bool) {
		return models.ApplyPatch(task, patch, t.now()), true
	})
}

func (t *taskTracker) UpdateTaskStatus(id string, status models.TaskStatus, patch models.MetadataPatch) (models.TaskState, bool) {
	return t.mutate(id, func(task models.TaskState) (models.TaskState, bool) {
		return models.Transition(task, status, patch, t.now()), true
	})
}

func (t *taskTracker) UpdateTaskProgress(id string, patch models.ProgressPatch) (models.TaskState, bool) {
	return t.mutate(id, func(task models.TaskState) (models.TaskState, bool) {
		return models.UpdateProgress(task, patch, t.now()), true
	})
}

// MarkTaskAsFailed moves the task to failed. With allowRetry the retry
// count grows by one until it reaches the maximum; without it the retries
// are exhausted outright.
func (t *taskTracker) MarkTaskAsFailed(id, message string, allowRetry bool) (models.TaskState, bool) {
	return t.mutate(id, func(task models.TaskState) (models.TaskState, bool) {
		retries := task.Metadata.MaxRetries
		if allowRetry {
			retries = min(task.Metadata.RetryCount+1, task.Metadata.MaxRetries)
			retries = max(retries, task.Metadata.RetryCount)
		}
		return models.Transition(task, models.StatusFailed, models.MetadataPatch{
			ErrorMessage: &message,
			RetryCount:   &retries,
		}, t.now()), true
	})
}

// RetryTask returns a failed task to pending if it has retries left. It
// reports false, leaving the task untouched, otherwise.
func (t *taskTracker) RetryTask(id string) (models.TaskState, bool) {
	return t.mutate(id, func(task models.TaskState) (models.TaskState, bool) {
		if task.Status != models.StatusFailed || task.Metadata.RetryCount >= task.Metadata.MaxRetries {
			return task, false
		}
		cleared := ""
		return models.Transition(task, models.StatusPending, models.MetadataPatch{ErrorMessage: &cleared}, t.now()), true
	})
}

func (t *taskTracker) GetTask(id string) (models.TaskState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return models.TaskState{}, false
	}
	return task.Clone(), true
}

// GetAllTasks returns copies of every task in insertion order.
func (t *taskTracker) GetAllTasks() []models.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *taskTracker) snapshotLocked() []models.TaskState {
	out := make([]models.TaskState, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.tasks[id].Clone())
	}
	return out
}

func (t *taskTracker) GetFilteredTasks(filter TaskFilter) []models.TaskState {
	var out []models.TaskState
	for _, task := range t.GetAllTasks() {
		if filter.Matches(task) {
			out = append(out, task)
		}
	}
	return out
}

func (t *taskTracker) GetTaskStats() TaskStats {
	return ComputeTaskStats(t.GetAllTasks())
}

// GetReadyTasks returns the tasks that can start given the current
// completed set.
func (t *taskTracker) GetReadyTasks() []models.TaskState {
	tasks := t.GetAllTasks()
	done := models.CompletedIDs(tasks)
	var out []models.TaskState
	for _, task := range tasks {
		if models.CanStart(task, done) {
			out = append(out, task)
		}
	}
	return out
}

// GetBlockedTasks returns the pending tasks that cannot start yet.
func (t *taskTracker) GetBlockedTasks() []models.TaskState {
	tasks := t.GetAllTasks()
	done := models.CompletedIDs(tasks)
	var out []models.TaskState
	for _, task := range tasks {
		if task.Status == models.StatusPending && !models.CanStart(task, done) {
			out = append(out, task)
		}
	}
	return out
}

func (t *taskTracker) GetParallelTasks() []models.TaskState {
	return models.ParallelTasks(t.GetAllTasks())
}

// OnTasksChanged registers listener and returns a function removing it.
func (t *taskTracker) OnTasksChanged(listener TaskListener) func() {
	t.listenerMu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = listener
	t.listenerMu.Unlock()

	return func() {
		t.listenerMu.Lock()
		delete(t.listeners, id)
		t.listenerMu.Unlock()
	}
}

// ClearCompleted removes completed tasks and returns how many were removed.
func (t *taskTracker) ClearCompleted() int {
	t.mu.Lock()
	kept := t.order[:0:0]
	removed := 0
	for _, id := range t.order {
		if t.tasks[id].Status == models.StatusCompleted {
			delete(t.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	t.mu.Unlock()

	t.changed()
	return removed
}

// Reset removes every task and saves immediately.
func (t *taskTracker) Reset() error {
	t.mu.Lock()
	t.tasks = make(map[string]models.TaskState)
	t.order = nil
	t.mu.Unlock()

	t.notify()
	t.saver.Stop()
	return t.Save()
}

// Save writes tasks.json now, holding the file lock so concurrent
// processes do not interleave their writes.
func (t *taskTracker) Save() error {
	t.mu.Lock()
	data := tasksFile{
		Tasks:   make(map[string]models.TaskState, len(t.tasks)),
		SavedAt: t.now().UTC(),
		Version: tasksFileVersion,
	}
	for id, task := range t.tasks {
		data.Tasks[id] = task
	}
	t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0o750); err != nil {
		return fmt.Errorf("saving tasks: %w", err)
	}
	err := withFileLock(t.path, func() error { return writeJSONAtomic(t.path, data) })
	if err != nil {
		return fmt.Errorf("saving tasks: %w", err)
	}
	logEvent(t.opts.EventLogger, EventTasksSaved, map[string]any{"path": t.path, "count": len(data.Tasks)})
	return nil
}

// Flush writes a pending debounced save immediately.
func (t *taskTracker) Flush() error {
	if !t.saver.Stop() {
		return nil
	}
	return t.Save()
}

// Close flushes any pending save and disarms the timer.
func (t *taskTracker) Close() error {
	return t.Flush()
}

func (t *taskTracker) changed() {
	t.notify()
	if t.opts.AutoSave {
		t.saver.Trigger()
	}
}

// notify calls every listener with the current tasks. A panicking
// listener is logged and skipped.
func (t *taskTracker) notify() {
	if !t.opts.RealTimeUpdates {
		return
	}
	t.listenerMu.Lock()
	ids := make([]int, 0, len(t.listeners))
	for id := range t.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]TaskListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, t.listeners[id])
	}
	t.listenerMu.Unlock()

	if len(listeners) == 0 {
		return
	}
	for _, l := range listeners {
		t.callListener(l, t.GetAllTasks())
	}
}

func (t *taskTracker) callListener(l TaskListener, tasks []models.TaskState) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("task listener panicked", "panic", r)
		}
	}()
	l(tasks)
}

// ExportTasks writes tasks to path as {exportedAt, taskCount, tasks}.
func ExportTasks(path string, tasks []models.TaskState, now time.Time) error {
	if tasks == nil {
		tasks = []models.TaskState{}
	}
	data := struct {
		ExportedAt time.Time          `json:"exportedAt"`
		TaskCount  int                `json:"taskCount"`
		Tasks      []models.TaskState `json:"tasks"`
	}{now.UTC(), len(tasks), tasks}
	if err := writeJSONAtomic(path, data); err != nil {
		return fmt.Errorf("exporting tasks: %w", err)
	}
	return nil
}
