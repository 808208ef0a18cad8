package models

import (
	"fmt"
	"time"
)

// MigrationStatus is the lifecycle state of one model switch attempt.
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationInProgress MigrationStatus = "in_progress"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
	MigrationRolledBack MigrationStatus = "rolled_back"
)

// StepStatus is the state of a single migration step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// Canonical migration step names, in execution order.
const (
	StepValidateProject   = "validate_project"
	StepCreateBackup      = "create_backup"
	StepUpdateConfig      = "update_config"
	StepMigrateSpecs      = "migrate_specs"
	StepUpdateTasks       = "update_tasks"
	StepValidateMigration = "validate_migration"
)

// MigrationVersion is recorded in every migration's metadata.
const MigrationVersion = "0.1.0"

// MigrationStep is one informational progress entry of a migration.
type MigrationStep struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Status        StepStatus `json:"status"`
	Order         int        `json:"order"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	RequiredFiles []string   `json:"requiredFiles"`
	OutputFiles   []string   `json:"outputFiles"`
}

// BackupFile records one artifact copied into a migration backup.
// Checksum is a hex SHA-256 digest of the copied content.
type BackupFile struct {
	OriginalPath string `json:"originalPath"`
	BackupPath   string `json:"backupPath"`
	Checksum     string `json:"checksum"`
	Size         int64  `json:"size"`
}

// BackupInfo describes the backup taken before a migration.
type BackupInfo struct {
	ID        string       `json:"id"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"createdAt"`
	Size      int64        `json:"size"`
	Checksum  string       `json:"checksum"`
	Files     []BackupFile `json:"files"`
}

// RollbackInfo records an automatic rollback.
type RollbackInfo struct {
	TriggeredAt   time.Time  `json:"triggeredAt"`
	Reason        string     `json:"reason"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	Success       bool       `json:"success"`
	RestoredFiles []string   `json:"restoredFiles"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
}

// MigrationMetadata holds the switches a migration ran under.
type MigrationMetadata struct {
	Version           string         `json:"version"`
	DryRun            bool           `json:"dryRun"`
	PreserveHistory   bool           `json:"preserveHistory"`
	UserConfirmation  bool           `json:"userConfirmation"`
	AutomaticRollback bool           `json:"automaticRollback"`
	SkipValidation    bool           `json:"skipValidation"`
	CustomSettings    map[string]any `json:"customSettings"`
}

// MigrationState is the audit record of one model switch attempt.
type MigrationState struct {
	ID          string            `json:"id"`
	FromModel   AIModel           `json:"fromModel"`
	ToModel     AIModel           `json:"toModel"`
	ProjectID   string            `json:"projectId"`
	Status      MigrationStatus   `json:"status"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	DurationMs  *int64            `json:"duration,omitempty"`
	Steps       []MigrationStep   `json:"steps"`
	Backup      BackupInfo        `json:"backup"`
	Rollback    *RollbackInfo     `json:"rollback,omitempty"`
	Metadata    MigrationMetadata `json:"metadata"`
}

// NewMigrationParams holds the inputs of NewMigrationState.
type NewMigrationParams struct {
	ID         string
	FromModel  AIModel
	ToModel    AIModel
	ProjectID  string
	BackupPath string
	DryRun     bool
}

// NewMigrationState creates a pending migration with the six canonical
// steps.
func NewMigrationState(p NewMigrationParams, now time.Time) MigrationState {
	return MigrationState{
		ID:        p.ID,
		FromModel: p.FromModel,
		ToModel:   p.ToModel,
		ProjectID: p.ProjectID,
		Status:    MigrationPending,
		StartedAt: now,
		Steps:     defaultSteps(p.FromModel, p.ToModel),
		Backup: BackupInfo{
			ID:        "backup_" + p.ID,
			Path:      p.BackupPath,
			CreatedAt: now,
			Files:     []BackupFile{},
		},
		Metadata: MigrationMetadata{
			Version:           MigrationVersion,
			DryRun:            p.DryRun,
			PreserveHistory:   true,
			AutomaticRollback: true,
			CustomSettings:    map[string]any{},
		},
	}
}

func defaultSteps(from, to AIModel) []MigrationStep {
	base := []MigrationStep{
		{Name: StepValidateProject, Description: "Validate project configuration and structure", RequiredFiles: []string{".specify/config.json"}},
		{Name: StepCreateBackup, Description: "Create backup of current project state"},
		{Name: StepUpdateConfig, Description: fmt.Sprintf("Update AI model from %s to %s", from, to), RequiredFiles: []string{".specify/config.json"}, OutputFiles: []string{".specify/config.json"}},
		{Name: StepMigrateSpecs, Description: "Migrate specification files to new model format"},
		{Name: StepUpdateTasks, Description: "Update task tracking configuration"},
		{Name: StepValidateMigration, Description: "Validate migration success and functionality"},
	}
	for i := range base {
		base[i].ID = StepID(i+1, base[i].Name)
		base[i].Order = i + 1
		base[i].Status = StepPending
		if base[i].RequiredFiles == nil {
			base[i].RequiredFiles = []string{}
		}
		if base[i].OutputFiles == nil {
			base[i].OutputFiles = []string{}
		}
	}
	return base
}

// StepID formats the id of the step at 1-based position order.
func StepID(order int, name string) string {
	return fmt.Sprintf("step_%d_%s", order, name)
}

// StepByName returns the step with the given name.
func (m MigrationState) StepByName(name string) (MigrationStep, bool) {
	for _, s := range m.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return MigrationStep{}, false
}

// UpdateStep returns m with the named step moved to status. Entering
// in_progress stamps StartedAt; any terminal status stamps CompletedAt.
func UpdateStep(m MigrationState, name string, status StepStatus, errMsg string, now time.Time) MigrationState {
	steps := make([]MigrationStep, len(m.Steps))
	copy(steps, m.Steps)
	for i := range steps {
		if steps[i].Name != name {
			continue
		}
		steps[i].Status = status
		steps[i].ErrorMessage = errMsg
		t := now
		if status == StepInProgress {
			steps[i].StartedAt = &t
		} else if status != StepPending {
			steps[i].CompletedAt = &t
		}
	}
	m.Steps = steps
	return m
}

// StartRollback marks m rolled back and opens a rollback record.
func StartRollback(m MigrationState, reason string, now time.Time) MigrationState {
	m.Status = MigrationRolledBack
	m.Rollback = &RollbackInfo{
		TriggeredAt:   now,
		Reason:        reason,
		RestoredFiles: []string{},
	}
	return m
}

// FinishRollback closes the rollback record opened by StartRollback.
func FinishRollback(m MigrationState, restored []string, rollbackErr error, now time.Time) MigrationState {
	if m.Rollback == nil {
		return m
	}
	rb := *m.Rollback
	rb.RestoredFiles = append([]string{}, restored...)
	rb.Success = rollbackErr == nil
	if rollbackErr != nil {
		rb.ErrorMessage = rollbackErr.Error()
	} else {
		t := now
		rb.CompletedAt = &t
	}
	m.Rollback = &rb
	return m
}

// CompleteMigration marks m completed or failed and records its duration.
func CompleteMigration(m MigrationState, success bool, now time.Time) MigrationState {
	if success {
		m.Status = MigrationCompleted
	} else {
		m.Status = MigrationFailed
	}
	t := now
	m.CompletedAt = &t
	d := now.Sub(m.StartedAt).Milliseconds()
	m.DurationMs = &d
	return m
}

// CanRollback reports whether m has not been rolled back yet, captured at
// least one backup file and allows automatic rollback.
func CanRollback(m MigrationState) bool {
	return m.Status != MigrationRolledBack &&
		len(m.Backup.Files) > 0 &&
		m.Metadata.AutomaticRollback
}
