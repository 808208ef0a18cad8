package core

// EventLogger records domain events such as migrations, repairs, resets
// and task saves. The observability event log satisfies it through an
// adapter so core does not import observability.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Event types written by core services.
const (
	EventMigrationStarted    = "migration.started"
	EventMigrationCompleted  = "migration.completed"
	EventMigrationFailed     = "migration.failed"
	EventMigrationRolledBack = "migration.rolled_back"
	EventProjectRepaired     = "project.repaired"
	EventProjectReset        = "project.reset"
	EventTasksSaved          = "tasks.saved"
)

// logEvent writes to l when it is set. Failures are ignored since event
// logging is best-effort.
func logEvent(l EventLogger, eventType string, data map[string]any) {
	if l == nil {
		return
	}
	_ = l.LogEvent(eventType, data)
}
