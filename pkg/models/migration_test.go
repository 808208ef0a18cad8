package models

import (
	"errors"
	"testing"
	"time"
)

func newTestMigration() MigrationState {
	return NewMigrationState(NewMigrationParams{
		ID:         "migration_1",
		FromModel:  ModelClaude,
		ToModel:    ModelGemini,
		ProjectID:  "project_1",
		BackupPath: "/tmp/backups/project_1_x",
	}, baseTime)
}

func TestNewMigrationState_CanonicalSteps(t *testing.T) {
	m := newTestMigration()

	want := []string{
		StepValidateProject, StepCreateBackup, StepUpdateConfig,
		StepMigrateSpecs, StepUpdateTasks, StepValidateMigration,
	}
	if len(m.Steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(m.Steps), len(want))
	}
	for i, name := range want {
		s := m.Steps[i]
		if s.Name != name || s.Order != i+1 || s.Status != StepPending {
			t.Errorf("step %d = %+v, want name %q order %d pending", i, s, name, i+1)
		}
		if s.ID != StepID(i+1, name) {
			t.Errorf("step %d id = %q", i, s.ID)
		}
	}
	if m.Status != MigrationPending {
		t.Errorf("Status = %q, want pending", m.Status)
	}
	if !m.Metadata.AutomaticRollback || !m.Metadata.PreserveHistory {
		t.Error("automatic rollback and preserve history should default on")
	}
	if m.Metadata.Version != MigrationVersion {
		t.Errorf("Version = %q", m.Metadata.Version)
	}
	if m.Backup.ID != "backup_migration_1" {
		t.Errorf("Backup.ID = %q", m.Backup.ID)
	}
}

func TestUpdateStep_DoesNotShareSteps(t *testing.T) {
	m := newTestMigration()
	updated := UpdateStep(m, StepCreateBackup, StepInProgress, "", baseTime)

	if m.Steps[1].Status != StepPending {
		t.Error("original migration steps were mutated")
	}
	s, _ := updated.StepByName(StepCreateBackup)
	if s.Status != StepInProgress || s.StartedAt == nil {
		t.Errorf("step = %+v, want in_progress with StartedAt", s)
	}

	updated = UpdateStep(updated, StepCreateBackup, StepFailed, "disk full", baseTime.Add(time.Second))
	s, _ = updated.StepByName(StepCreateBackup)
	if s.CompletedAt == nil || s.ErrorMessage != "disk full" {
		t.Errorf("step = %+v, want failed with CompletedAt and message", s)
	}
}

func TestCanRollback(t *testing.T) {
	m := newTestMigration()
	if CanRollback(m) {
		t.Error("no backup files captured, rollback should not be possible")
	}

	m.Backup.Files = []BackupFile{{OriginalPath: "a", BackupPath: "b"}}
	if !CanRollback(m) {
		t.Error("expected rollback to be possible")
	}

	m.Metadata.AutomaticRollback = false
	if CanRollback(m) {
		t.Error("automatic rollback disabled")
	}
	m.Metadata.AutomaticRollback = true

	rolled := StartRollback(m, "boom", baseTime)
	if CanRollback(rolled) {
		t.Error("already rolled back")
	}
}

func TestRollbackLifecycle(t *testing.T) {
	m := StartRollback(newTestMigration(), "validation failed", baseTime)
	if m.Status != MigrationRolledBack || m.Rollback == nil || m.Rollback.Success {
		t.Fatalf("unexpected rollback state: %+v", m.Rollback)
	}

	ok := FinishRollback(m, []string{"config.json"}, nil, baseTime.Add(time.Second))
	if !ok.Rollback.Success || ok.Rollback.CompletedAt == nil || len(ok.Rollback.RestoredFiles) != 1 {
		t.Errorf("successful rollback = %+v", ok.Rollback)
	}
	if m.Rollback.Success {
		t.Error("FinishRollback mutated its input")
	}

	failed := FinishRollback(m, nil, errors.New("permission denied"), baseTime)
	if failed.Rollback.Success || failed.Rollback.ErrorMessage != "permission denied" {
		t.Errorf("failed rollback = %+v", failed.Rollback)
	}
}

func TestCompleteMigration(t *testing.T) {
	m := CompleteMigration(newTestMigration(), true, baseTime.Add(2*time.Second))
	if m.Status != MigrationCompleted {
		t.Errorf("Status = %q", m.Status)
	}
	if m.DurationMs == nil || *m.DurationMs != 2000 {
		t.Errorf("DurationMs = %v, want 2000", m.DurationMs)
	}

	m = CompleteMigration(newTestMigration(), false, baseTime)
	if m.Status != MigrationFailed {
		t.Errorf("Status = %q, want failed", m.Status)
	}
}
