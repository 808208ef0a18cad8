package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: observability, Property: Metrics partition the event log
// For any mix of domain events, EventCount equals the number written and
// the per-type counters sum to it.
func TestProperty_MetricsPartitionEvents(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "specify-events-*")
		if err != nil {
			rt.Fatalf("MkdirTemp: %v", err)
		}
		defer os.RemoveAll(dir)

		el, err := NewJSONLEventLog(filepath.Join(dir, EventLogFileName))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer el.Close()

		eventTypes := []string{
			"migration.started", "migration.completed", "migration.failed",
			"migration.rolled_back", "project.repaired", "project.reset", "tasks.saved",
		}
		base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
		n := rapid.IntRange(0, 30).Draw(rt, "numEvents")
		for i := 0; i < n; i++ {
			eventType := rapid.SampledFrom(eventTypes).Draw(rt, fmt.Sprintf("type_%d", i))
			offset := rapid.IntRange(0, 168).Draw(rt, fmt.Sprintf("hours_%d", i))
			event := Event{
				Time: base.Add(time.Duration(offset) * time.Hour),
				Type: eventType,
				Data: map[string]any{"to": "claude"},
			}
			if err := el.Write(event); err != nil {
				rt.Fatalf("writing event: %v", err)
			}
		}

		m, err := NewMetricsCalculator(el).Calculate(base)
		if err != nil {
			rt.Fatalf("calculating metrics: %v", err)
		}
		if m.EventCount != n {
			rt.Fatalf("EventCount = %d, want %d", m.EventCount, n)
		}
		sum := m.MigrationsStarted + m.MigrationsCompleted + m.MigrationsFailed +
			m.MigrationsRolledBack + m.Repairs + m.Resets + m.TaskSaves
		if sum != n {
			rt.Fatalf("per-type counters sum to %d, want %d", sum, n)
		}
		if m.MigrationsByTarget["claude"] != m.MigrationsStarted {
			rt.Fatalf("by-target %d != started %d", m.MigrationsByTarget["claude"], m.MigrationsStarted)
		}
	})
}
