package models

import (
	"slices"
	"time"
)

// TaskStatus is the lifecycle state of a tracked task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusSkipped    TaskStatus = "skipped"
)

// TaskStatuses lists every status in display order.
var TaskStatuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusSkipped}

// TaskPriority ranks how urgent a task is.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// TaskPriorities lists every priority from lowest to highest.
var TaskPriorities = []TaskPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// TaskCategory groups tasks by the phase of work they belong to.
type TaskCategory string

const (
	CategorySetup          TaskCategory = "setup"
	CategoryTest           TaskCategory = "test"
	CategoryImplementation TaskCategory = "implementation"
	CategoryUI             TaskCategory = "ui"
	CategoryIntegration    TaskCategory = "integration"
	CategoryPolish         TaskCategory = "polish"
)

// TaskCategories lists every category.
var TaskCategories = []TaskCategory{CategorySetup, CategoryTest, CategoryImplementation, CategoryUI, CategoryIntegration, CategoryPolish}

// DefaultMaxRetries is applied when a task is created without one.
const DefaultMaxRetries = 3

// StartedPercentage is the progress recorded the first time a task starts.
const StartedPercentage = 10

// TaskProgress tracks how far along a task is.
type TaskProgress struct {
	Percentage     int       `json:"percentage" yaml:"percentage"`
	CurrentStep    string    `json:"currentStep,omitempty" yaml:"currentStep,omitempty"`
	TotalSteps     *int      `json:"totalSteps,omitempty" yaml:"totalSteps,omitempty"`
	CompletedSteps *int      `json:"completedSteps,omitempty" yaml:"completedSteps,omitempty"`
	LastActivity   time.Time `json:"lastActivity" yaml:"lastActivity"`
}

// TaskMetadata carries classification and retry bookkeeping.
type TaskMetadata struct {
	Category     TaskCategory `json:"category" yaml:"category"`
	FilePath     string       `json:"filePath,omitempty" yaml:"filePath,omitempty"`
	IsParallel   bool         `json:"isParallel" yaml:"isParallel"`
	ErrorMessage string       `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	RetryCount   int          `json:"retryCount" yaml:"retryCount"`
	MaxRetries   int          `json:"maxRetries" yaml:"maxRetries"`
}

// TaskState is one declared unit of work. Durations are milliseconds.
type TaskState struct {
	ID                string       `json:"id" yaml:"id"`
	Title             string       `json:"title" yaml:"title"`
	Description       string       `json:"description" yaml:"description"`
	Status            TaskStatus   `json:"status" yaml:"status"`
	Priority          TaskPriority `json:"priority" yaml:"priority"`
	Tags              []string     `json:"tags" yaml:"tags"`
	CreatedAt         time.Time    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt" yaml:"updatedAt"`
	StartedAt         *time.Time   `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	CompletedAt       *time.Time   `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	EstimatedDuration *int64       `json:"estimatedDuration,omitempty" yaml:"estimatedDuration,omitempty"`
	ActualDuration    *int64       `json:"actualDuration,omitempty" yaml:"actualDuration,omitempty"`
	Dependencies      []string     `json:"dependencies" yaml:"dependencies"`
	BlockedBy         []string     `json:"blockedBy" yaml:"blockedBy"`
	Progress          TaskProgress `json:"progress" yaml:"progress"`
	Metadata          TaskMetadata `json:"metadata" yaml:"metadata"`
}

// NewTaskParams holds the caller-supplied fields of a new task.
type NewTaskParams struct {
	ID                string
	Title             string
	Description       string
	Priority          TaskPriority
	Category          TaskCategory
	Tags              []string
	Dependencies      []string
	BlockedBy         []string
	FilePath          string
	IsParallel        bool
	EstimatedDuration *int64
	MaxRetries        int
}

// NewTaskState builds a pending task. Priority defaults to medium, category
// to implementation and MaxRetries to DefaultMaxRetries.
func NewTaskState(p NewTaskParams, now time.Time) TaskState {
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
	if p.Category == "" {
		p.Category = CategoryImplementation
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	return TaskState{
		ID:                p.ID,
		Title:             p.Title,
		Description:       p.Description,
		Status:            StatusPending,
		Priority:          p.Priority,
		Tags:              cloneStrings(p.Tags),
		CreatedAt:         now,
		UpdatedAt:         now,
		EstimatedDuration: p.EstimatedDuration,
		Dependencies:      cloneStrings(p.Dependencies),
		BlockedBy:         cloneStrings(p.BlockedBy),
		Progress:          TaskProgress{LastActivity: now},
		Metadata: TaskMetadata{
			Category:   p.Category,
			FilePath:   p.FilePath,
			IsParallel: p.IsParallel,
			MaxRetries: p.MaxRetries,
		},
	}
}

// Clone returns a deep copy of t.
func (t TaskState) Clone() TaskState {
	t.Tags = cloneStrings(t.Tags)
	t.Dependencies = cloneStrings(t.Dependencies)
	t.BlockedBy = cloneStrings(t.BlockedBy)
	t.StartedAt = clonePtr(t.StartedAt)
	t.CompletedAt = clonePtr(t.CompletedAt)
	t.EstimatedDuration = clonePtr(t.EstimatedDuration)
	t.ActualDuration = clonePtr(t.ActualDuration)
	t.Progress.TotalSteps = clonePtr(t.Progress.TotalSteps)
	t.Progress.CompletedSteps = clonePtr(t.Progress.CompletedSteps)
	return t
}

// MetadataPatch lists the metadata fields to overwrite. Nil fields are left
// alone; a pointer to "" clears ErrorMessage.
type MetadataPatch struct {
	Category     *TaskCategory
	FilePath     *string
	IsParallel   *bool
	ErrorMessage *string
	RetryCount   *int
	MaxRetries   *int
}

func (p MetadataPatch) apply(m TaskMetadata) TaskMetadata {
	if p.Category != nil {
		m.Category = *p.Category
	}
	if p.FilePath != nil {
		m.FilePath = *p.FilePath
	}
	if p.IsParallel != nil {
		m.IsParallel = *p.IsParallel
	}
	if p.ErrorMessage != nil {
		m.ErrorMessage = *p.ErrorMessage
	}
	if p.RetryCount != nil {
		m.RetryCount = *p.RetryCount
	}
	if p.MaxRetries != nil {
		m.MaxRetries = *p.MaxRetries
	}
	return m
}

// Transition moves t to status and returns the updated copy. It always
// stamps UpdatedAt and Progress.LastActivity and merges patch into the
// metadata. The first entry into in_progress records StartedAt and sets
// progress to StartedPercentage. Entering completed or failed records
// CompletedAt, forces progress to 100 or 0 and derives ActualDuration.
func Transition(t TaskState, status TaskStatus, patch MetadataPatch, now time.Time) TaskState {
	t = t.Clone()
	t.Status = status
	t.UpdatedAt = now
	t.Progress.LastActivity = now
	t.Metadata = patch.apply(t.Metadata)

	switch status {
	case StatusInProgress:
		if t.StartedAt == nil {
			started := now
			t.StartedAt = &started
			t.Progress.Percentage = StartedPercentage
		}
	case StatusCompleted, StatusFailed:
		done := now
		t.CompletedAt = &done
		if status == StatusCompleted {
			t.Progress.Percentage = 100
		} else {
			t.Progress.Percentage = 0
		}
		if t.StartedAt != nil {
			d := now.Sub(*t.StartedAt).Milliseconds()
			t.ActualDuration = &d
		}
	}
	return t
}

// TaskPatch lists task fields to overwrite. Nil fields are left alone.
type TaskPatch struct {
	Title             *string
	Description       *string
	Status            *TaskStatus
	Priority          *TaskPriority
	Tags              []string
	Dependencies      []string
	BlockedBy         []string
	EstimatedDuration *int64
	Metadata          MetadataPatch
}

// ApplyPatch overwrites the patched fields of t and stamps UpdatedAt. It
// does no status bookkeeping; use Transition for that.
func ApplyPatch(t TaskState, p TaskPatch, now time.Time) TaskState {
	t = t.Clone()
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Tags != nil {
		t.Tags = cloneStrings(p.Tags)
	}
	if p.Dependencies != nil {
		t.Dependencies = cloneStrings(p.Dependencies)
	}
	if p.BlockedBy != nil {
		t.BlockedBy = cloneStrings(p.BlockedBy)
	}
	if p.EstimatedDuration != nil {
		d := *p.EstimatedDuration
		t.EstimatedDuration = &d
	}
	t.Metadata = p.Metadata.apply(t.Metadata)
	t.UpdatedAt = now
	return t
}

// ProgressPatch lists progress fields to overwrite.
type ProgressPatch struct {
	Percentage     *int
	CurrentStep    *string
	TotalSteps     *int
	CompletedSteps *int
}

// UpdateProgress merges p into the task's progress. Percentage is clamped
// to 0..100.
func UpdateProgress(t TaskState, p ProgressPatch, now time.Time) TaskState {
	t = t.Clone()
	if p.Percentage != nil {
		t.Progress.Percentage = min(max(*p.Percentage, 0), 100)
	}
	if p.CurrentStep != nil {
		t.Progress.CurrentStep = *p.CurrentStep
	}
	if p.TotalSteps != nil {
		n := *p.TotalSteps
		t.Progress.TotalSteps = &n
	}
	if p.CompletedSteps != nil {
		n := *p.CompletedSteps
		t.Progress.CompletedSteps = &n
	}
	t.Progress.LastActivity = now
	t.UpdatedAt = now
	return t
}

// CanStart reports whether t is pending, not manually blocked, and every
// dependency is in completed.
func CanStart(t TaskState, completed map[string]bool) bool {
	if t.Status != StatusPending || len(t.BlockedBy) > 0 {
		return false
	}
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// CompletedIDs returns the set of ids whose status is completed.
func CompletedIDs(tasks []TaskState) map[string]bool {
	done := make(map[string]bool)
	for _, t := range tasks {
		if t.Status == StatusCompleted {
			done[t.ID] = true
		}
	}
	return done
}

// ParallelTasks returns the pending tasks flagged as parallel, in input
// order.
func ParallelTasks(tasks []TaskState) []TaskState {
	var out []TaskState
	for _, t := range tasks {
		if t.Status == StatusPending && t.Metadata.IsParallel {
			out = append(out, t)
		}
	}
	return out
}

// IsValidTaskStatus reports whether s names a known status.
func IsValidTaskStatus(s TaskStatus) bool { return slices.Contains(TaskStatuses, s) }

// IsValidTaskPriority reports whether p names a known priority.
func IsValidTaskPriority(p TaskPriority) bool { return slices.Contains(TaskPriorities, p) }

// IsValidTaskCategory reports whether c names a known category.
func IsValidTaskCategory(c TaskCategory) bool { return slices.Contains(TaskCategories, c) }

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
