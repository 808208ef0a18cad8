package models

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func taskStatusGenerator() *rapid.Generator[TaskStatus] {
	return rapid.SampledFrom(TaskStatuses)
}

func idGenerator() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		return fmt.Sprintf("T%d", rapid.IntRange(1, 12).Draw(t, "n"))
	})
}

// Feature: task tracking, Property: Readiness Gates
// CanStart holds exactly when the task is pending, unblocked and every
// dependency is completed.
func TestProperty_CanStartGates(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		deps := rapid.SliceOfNDistinct(idGenerator(), 0, 4, rapid.ID).Draw(rt, "deps")
		blocked := rapid.SliceOfN(idGenerator(), 0, 2).Draw(rt, "blockedBy")
		status := taskStatusGenerator().Draw(rt, "status")
		done := rapid.SliceOfN(idGenerator(), 0, 8).Draw(rt, "completed")

		completed := make(map[string]bool)
		for _, id := range done {
			completed[id] = true
		}
		task := NewTaskState(NewTaskParams{ID: "X", Dependencies: deps, BlockedBy: blocked}, baseTime)
		task.Status = status

		want := status == StatusPending && len(blocked) == 0
		for _, d := range deps {
			want = want && completed[d]
		}
		if got := CanStart(task, completed); got != want {
			rt.Fatalf("CanStart = %v, want %v (deps=%v blocked=%v completed=%v)", got, want, deps, blocked, done)
		}
	})
}

// Feature: task tracking, Property: Readiness Monotonicity
// Adding ids to the completed set never makes a ready task not ready.
func TestProperty_ReadinessMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		deps := rapid.SliceOfN(idGenerator(), 0, 4).Draw(rt, "deps")
		done := rapid.SliceOfN(idGenerator(), 0, 8).Draw(rt, "completed")
		extra := rapid.SliceOfN(idGenerator(), 1, 4).Draw(rt, "extra")

		task := NewTaskState(NewTaskParams{ID: "X", Dependencies: deps}, baseTime)
		completed := make(map[string]bool)
		for _, id := range done {
			completed[id] = true
		}
		before := CanStart(task, completed)
		for _, id := range extra {
			completed[id] = true
		}
		after := CanStart(task, completed)

		if before && !after {
			rt.Fatalf("task became not ready after adding %v to completed set", extra)
		}
	})
}

// Feature: task tracking, Property: Transition Stamping
// Completing always yields 100% and a completion time; failing yields 0%.
func TestProperty_TransitionStamping(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		task := newTestTask("T1")
		task.Status = taskStatusGenerator().Draw(rt, "from")
		task.Progress.Percentage = rapid.IntRange(0, 100).Draw(rt, "percentage")
		if rapid.Bool().Draw(rt, "started") {
			task = Transition(task, StatusInProgress, MetadataPatch{}, baseTime)
		}
		offset := rapid.Int64Range(0, 1_000_000).Draw(rt, "offset")
		now := baseTime.Add(msDuration(offset))

		completed := Transition(task, StatusCompleted, MetadataPatch{}, now)
		if completed.Progress.Percentage != 100 || completed.CompletedAt == nil {
			rt.Fatalf("completed: percentage=%d completedAt=%v", completed.Progress.Percentage, completed.CompletedAt)
		}

		failed := Transition(task, StatusFailed, MetadataPatch{}, now)
		if failed.Progress.Percentage != 0 || failed.CompletedAt == nil {
			rt.Fatalf("failed: percentage=%d completedAt=%v", failed.Progress.Percentage, failed.CompletedAt)
		}
	})
}

func msDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
