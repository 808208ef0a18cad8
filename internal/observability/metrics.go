package observability

import (
	"fmt"
	"time"
)

// Metrics summarises project activity derived from the event log.
type Metrics struct {
	MigrationsStarted    int            `json:"migrations_started" yaml:"migrations_started"`
	MigrationsCompleted  int            `json:"migrations_completed" yaml:"migrations_completed"`
	MigrationsFailed     int            `json:"migrations_failed" yaml:"migrations_failed"`
	MigrationsRolledBack int            `json:"migrations_rolled_back" yaml:"migrations_rolled_back"`
	MigrationsByTarget   map[string]int `json:"migrations_by_target" yaml:"migrations_by_target"`
	Repairs              int            `json:"repairs" yaml:"repairs"`
	Resets               int            `json:"resets" yaml:"resets"`
	TaskSaves            int            `json:"task_saves" yaml:"task_saves"`
	EventCount           int            `json:"event_count" yaml:"event_count"`
	OldestEvent          *time.Time     `json:"oldest_event,omitempty" yaml:"oldest_event,omitempty"`
	NewestEvent          *time.Time     `json:"newest_event,omitempty" yaml:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event at or after since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{MigrationsByTarget: make(map[string]int), EventCount: len(events)}
	for _, event := range events {
		t := event.Time
		if m.OldestEvent == nil || t.Before(*m.OldestEvent) {
			m.OldestEvent = &t
		}
		if m.NewestEvent == nil || t.After(*m.NewestEvent) {
			m.NewestEvent = &t
		}

		switch event.Type {
		case "migration.started":
			m.MigrationsStarted++
			if to, ok := event.Data["to"].(string); ok {
				m.MigrationsByTarget[to]++
			}
		case "migration.completed":
			m.MigrationsCompleted++
		case "migration.failed":
			m.MigrationsFailed++
		case "migration.rolled_back":
			m.MigrationsRolledBack++
		case "project.repaired":
			m.Repairs++
		case "project.reset":
			m.Resets++
		case "tasks.saved":
			m.TaskSaves++
		}
	}
	return m, nil
}
