package core

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// migrationAuditFile is written into a migration's backup folder.
const migrationAuditFile = "migration.json"

// SwitchOptions controls a model switch.
type SwitchOptions struct {
	TargetModel models.AIModel
	// CreateBackup must be true for automatic rollback to be possible.
	CreateBackup   bool
	DryRun         bool
	Force          bool
	SkipValidation bool
}

// SwitchResult is the outcome of SwitchModel. Err carries the typed error
// (*MigrationError, *RollbackError or a wrapped ErrValidation) when
// Success is false.
type SwitchResult struct {
	Success      bool                   `json:"success" yaml:"success"`
	MigrationID  string                 `json:"migrationId" yaml:"migrationId"`
	ErrorMessage string                 `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	BackupPath   string                 `json:"backupPath,omitempty" yaml:"backupPath,omitempty"`
	Warnings     []string               `json:"warnings" yaml:"warnings"`
	Config       *models.ProjectConfig  `json:"config,omitempty" yaml:"config,omitempty"`
	Migration    *models.MigrationState `json:"migration,omitempty" yaml:"migration,omitempty"`
	Err          error                  `json:"-" yaml:"-"`
}

// SpecTransformer rewrites one spec file for the target model. It is the
// extension point for model-specific spec content.
type SpecTransformer interface {
	TransformSpec(path string, content []byte, from, to models.AIModel) ([]byte, error)
}

// SpecTransformerFunc adapts a function to SpecTransformer.
type SpecTransformerFunc func(path string, content []byte, from, to models.AIModel) ([]byte, error)

// TransformSpec calls f.
func (f SpecTransformerFunc) TransformSpec(path string, content []byte, from, to models.AIModel) ([]byte, error) {
	return f(path, content, from, to)
}

// IdentityTransformer returns spec content unchanged.
var IdentityTransformer SpecTransformer = SpecTransformerFunc(
	func(_ string, content []byte, _, _ models.AIModel) ([]byte, error) { return content, nil },
)

// ModelSwitcher migrates a project from one AI model to another.
type ModelSwitcher interface {
	SwitchModel(cfg *models.ProjectConfig, opts SwitchOptions) SwitchResult
}

// SwitcherOptions configures a ModelSwitcher.
type SwitcherOptions struct {
	Configs  ConfigManager
	Registry *models.ModelRegistry
	// BackupDirectory holds migration backups. Relative paths resolve
	// against the project root; empty means <configDir>/backups.
	BackupDirectory string
	CLIVersion      string
	Transformer     SpecTransformer
	EventLogger     EventLogger
	Logger          *slog.Logger
	Now             func() time.Time
}

type modelSwitcher struct {
	configs     ConfigManager
	registry    *models.ModelRegistry
	backupDir   string
	cliVersion  string
	transformer SpecTransformer
	eventLogger EventLogger
	logger      *slog.Logger
	now         func() time.Time
}

// NewModelSwitcher creates a ModelSwitcher.
func NewModelSwitcher(opts SwitcherOptions) ModelSwitcher {
	if opts.Registry == nil {
		opts.Registry = models.DefaultModelRegistry()
	}
	if opts.Transformer == nil {
		opts.Transformer = IdentityTransformer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Configs == nil {
		opts.Configs = NewConfigManager(ConfigManagerOptions{Catalog: opts.Registry, BackupEnabled: true, Logger: opts.Logger, Now: opts.Now})
	}
	return &modelSwitcher{
		configs:     opts.Configs,
		registry:    opts.Registry,
		backupDir:   opts.BackupDirectory,
		cliVersion:  opts.CLIVersion,
		transformer: opts.Transformer,
		eventLogger: opts.EventLogger,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// backupRoot resolves where migration backups for cfg live.
func (s *modelSwitcher) backupRoot(cfg *models.ProjectConfig) string {
	configDir := filepath.Dir(cfg.ConfigPath)
	switch {
	case s.backupDir == "":
		return filepath.Join(configDir, "backups")
	case filepath.IsAbs(s.backupDir):
		return s.backupDir
	default:
		return filepath.Join(filepath.Dir(configDir), s.backupDir)
	}
}

func rejected(format string, args ...any) SwitchResult {
	msg := fmt.Sprintf(format, args...)
	return SwitchResult{
		ErrorMessage: msg,
		Warnings:     []string{},
		Err:          fmt.Errorf("%w: %s", ErrValidation, msg),
	}
}

// SwitchModel validates the request, then backs up the project, rewrites
// the config, migrates spec files and verifies the result. Any failure
// after the backup restores config and specs from it. A switch to the
// current model or an unknown model is rejected before any state exists.
func (s *modelSwitcher) SwitchModel(cfg *models.ProjectConfig, opts SwitchOptions) SwitchResult {
	if cfg == nil {
		return rejected("project config is required")
	}
	if cfg.AIModel == opts.TargetModel {
		return rejected("Project is already using %s", opts.TargetModel)
	}
	target, ok := s.registry.Get(opts.TargetModel)
	if !ok {
		return rejected("Unknown target model: %s", opts.TargetModel)
	}
	if !target.Compatibility.MigrationSupport && !opts.Force {
		return rejected("Model %s does not support migration (use --force to override)", opts.TargetModel)
	}

	res := SwitchResult{Warnings: []string{}}
	if w := target.Compatibility.DeprecationWarning; w != "" {
		res.Warnings = append(res.Warnings, w)
	}
	if s.cliVersion != "" && !s.registry.IsCompatible(opts.TargetModel, s.cliVersion) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("CLI version %s is below the minimum %s required by %s",
			s.cliVersion, target.Compatibility.MinimumCLIVersion, opts.TargetModel))
	}

	now := s.now()
	m := models.NewMigrationState(models.NewMigrationParams{
		ID:         newMigrationID(),
		FromModel:  cfg.AIModel,
		ToModel:    opts.TargetModel,
		ProjectID:  cfg.ProjectID,
		BackupPath: filepath.Join(s.backupRoot(cfg), cfg.ProjectID+"_"+fileTimestamp(now)),
		DryRun:     opts.DryRun,
	}, now)
	m.Metadata.SkipValidation = opts.SkipValidation
	m.Metadata.UserConfirmation = opts.Force
	res.MigrationID = m.ID

	if opts.DryRun {
		res.Success = true
		res.Warnings = append(res.Warnings, "Dry run completed - no changes made")
		res.Migration = &m
		return res
	}

	logEvent(s.eventLogger, EventMigrationStarted, map[string]any{
		"migration_id": m.ID, "from": string(m.FromModel), "to": string(m.ToModel), "project_id": m.ProjectID,
	})
	s.logger.Debug("migration started", "id", m.ID, "from", m.FromModel, "to", m.ToModel)

	updated, m, err := s.executeMigration(m, cfg, opts)
	if err == nil {
		m = models.CompleteMigration(m, true, s.now())
		s.writeAudit(m)
		res.Success = true
		res.Config = updated
		res.Migration = &m
		if len(m.Backup.Files) > 0 {
			res.BackupPath = m.Backup.Path
		}
		logEvent(s.eventLogger, EventMigrationCompleted, map[string]any{
			"migration_id": m.ID, "backup_path": res.BackupPath,
		})
		return res
	}

	res.ErrorMessage = err.Error()
	if len(m.Backup.Files) > 0 {
		res.BackupPath = m.Backup.Path
	}
	logEvent(s.eventLogger, EventMigrationFailed, map[string]any{"migration_id": m.ID, "error": err.Error()})

	if models.CanRollback(m) {
		var rbErr error
		m, rbErr = s.rollback(m, err.Error())
		logEvent(s.eventLogger, EventMigrationRolledBack, map[string]any{
			"migration_id": m.ID, "success": rbErr == nil, "restored": m.Rollback.RestoredFiles,
		})
		if rbErr != nil {
			s.logger.Error("rollback failed", "id", m.ID, "error", rbErr)
			res.ErrorMessage = fmt.Sprintf("%v. Rollback also failed: %v", err, rbErr)
			res.Err = &RollbackError{MigrationID: m.ID, BackupPath: m.Backup.Path, Cause: err, RollbackErr: rbErr}
		}
	} else {
		m = models.CompleteMigration(m, false, s.now())
	}
	if res.Err == nil {
		res.Err = &MigrationError{MigrationID: m.ID, BackupPath: res.BackupPath, Err: err}
	}
	s.writeAudit(m)
	res.Migration = &m
	return res
}

// executeMigration runs the canonical steps in order and stops at the
// first failure.
func (s *modelSwitcher) executeMigration(m models.MigrationState, cfg *models.ProjectConfig, opts SwitchOptions) (*models.ProjectConfig, models.MigrationState, error) {
	m.Status = models.MigrationInProgress

	if err := s.step(&m, models.StepValidateProject, func() error { return validateForMigration(cfg) }); err != nil {
		return nil, m, err
	}

	if opts.CreateBackup {
		if err := s.step(&m, models.StepCreateBackup, func() error { return s.createBackup(&m, cfg) }); err != nil {
			return nil, m, err
		}
	} else {
		m = models.UpdateStep(m, models.StepCreateBackup, models.StepSkipped, "", s.now())
	}

	var updated *models.ProjectConfig
	err := s.step(&m, models.StepUpdateConfig, func() error {
		var err error
		updated, err = s.updateConfig(cfg, m)
		return err
	})
	if err != nil {
		return nil, m, err
	}

	if err := s.step(&m, models.StepMigrateSpecs, func() error { return s.migrateSpecFiles(cfg, m) }); err != nil {
		return nil, m, err
	}

	// Tasks carry no model-specific data.
	m = models.UpdateStep(m, models.StepUpdateTasks, models.StepSkipped, "", s.now())

	if opts.SkipValidation {
		m = models.UpdateStep(m, models.StepValidateMigration, models.StepSkipped, "", s.now())
		return updated, m, nil
	}
	if err := s.step(&m, models.StepValidateMigration, func() error { return s.validateMigration(updated) }); err != nil {
		return nil, m, err
	}
	return updated, m, nil
}

// step records a step as in progress, runs fn, and records the outcome.
func (s *modelSwitcher) step(m *models.MigrationState, name string, fn func() error) error {
	*m = models.UpdateStep(*m, name, models.StepInProgress, "", s.now())
	if err := fn(); err != nil {
		*m = models.UpdateStep(*m, name, models.StepFailed, err.Error(), s.now())
		return err
	}
	*m = models.UpdateStep(*m, name, models.StepCompleted, "", s.now())
	return nil
}

func validateForMigration(cfg *models.ProjectConfig) error {
	if !cfg.IsInitialized {
		return fmt.Errorf("%w: project is not properly initialized", ErrValidation)
	}
	if !pathExists(cfg.ConfigPath) {
		return fmt.Errorf("project configuration file %s: %w", cfg.ConfigPath, ErrNotFound)
	}
	if !isDir(cfg.SpecDirectory) {
		return fmt.Errorf("specification directory %s: %w", cfg.SpecDirectory, ErrNotFound)
	}
	return nil
}

// createBackup copies the config file and the spec tree into the
// migration's backup folder and records a manifest entry for each. The
// .specify directory is left out of the spec tree copy. A partially
// written folder is removed on failure.
func (s *modelSwitcher) createBackup(m *models.MigrationState, cfg *models.ProjectConfig) (err error) {
	dir := m.Backup.Path
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()
	specifyDir := filepath.Dir(cfg.ConfigPath)

	artifacts := []struct{ original, backup string }{
		{cfg.ConfigPath, filepath.Join(dir, ConfigFileName)},
		{cfg.SpecDirectory, filepath.Join(dir, "specs")},
	}
	files := make([]models.BackupFile, 0, len(artifacts))
	for _, a := range artifacts {
		if err := copyPath(a.original, a.backup, specifyDir); err != nil {
			return fmt.Errorf("backing up %s: %w", a.original, err)
		}
		sum, err := pathDigest(a.backup)
		if err != nil {
			return fmt.Errorf("checksumming %s: %w", a.backup, err)
		}
		size, err := pathSize(a.backup)
		if err != nil {
			return fmt.Errorf("sizing %s: %w", a.backup, err)
		}
		files = append(files, models.BackupFile{OriginalPath: a.original, BackupPath: a.backup, Checksum: sum, Size: size})
	}

	size, err := pathSize(dir)
	if err != nil {
		return fmt.Errorf("sizing backup: %w", err)
	}
	sum, err := pathDigest(dir)
	if err != nil {
		return fmt.Errorf("checksumming backup: %w", err)
	}
	m.Backup.Files = files
	m.Backup.Size = size
	m.Backup.Checksum = sum
	m.Backup.CreatedAt = s.now()
	return nil
}

// updateConfig saves a copy of cfg pointing at the target model with the
// migration appended to its history.
func (s *modelSwitcher) updateConfig(cfg *models.ProjectConfig, m models.MigrationState) (*models.ProjectConfig, error) {
	updated := cfg.Clone()
	updated.AIModel = m.ToModel
	updated.MigrationHistory = append(updated.MigrationHistory, models.MigrationRecord{
		ID:         m.ID,
		FromModel:  m.FromModel,
		ToModel:    m.ToModel,
		Timestamp:  s.now().UTC(),
		Success:    true,
		BackupPath: backupPathIfTaken(m),
	})
	if err := s.configs.SaveConfig(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func backupPathIfTaken(m models.MigrationState) string {
	if len(m.Backup.Files) == 0 {
		return ""
	}
	return m.Backup.Path
}

// migrateSpecFiles passes every spec file through the transformer and
// writes the result back in place.
func (s *modelSwitcher) migrateSpecFiles(cfg *models.ProjectConfig, m models.MigrationState) error {
	matches, err := doublestar.Glob(os.DirFS(cfg.SpecDirectory), SpecFilePattern,
		doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return fmt.Errorf("listing spec files: %w", err)
	}
	specifyDir := filepath.Dir(cfg.ConfigPath)
	for _, rel := range matches {
		path := filepath.Join(cfg.SpecDirectory, filepath.FromSlash(rel))
		if isWithin(specifyDir, path) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("migrating %s: %w", rel, err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("migrating %s: %w", rel, err)
		}
		out, err := s.transformer.TransformSpec(path, content, m.FromModel, m.ToModel)
		if err != nil {
			return fmt.Errorf("migrating %s: %w", rel, err)
		}
		if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
			return fmt.Errorf("migrating %s: %w", rel, err)
		}
	}
	return nil
}

// validateMigration reloads the config from disk and checks the model.
func (s *modelSwitcher) validateMigration(updated *models.ProjectConfig) error {
	if !pathExists(updated.ConfigPath) {
		return fmt.Errorf("configuration file missing after migration: %w", ErrNotFound)
	}
	saved, err := s.configs.LoadConfig(updated.ConfigPath)
	if err != nil {
		return fmt.Errorf("reloading configuration: %w", err)
	}
	if saved.AIModel != updated.AIModel {
		return fmt.Errorf("%w: configuration not properly updated (found %s, want %s)", ErrValidation, saved.AIModel, updated.AIModel)
	}
	return nil
}

// rollback restores every backed-up artifact. Directories are replaced
// wholesale so files created during the migration do not survive, unless
// the backup itself lives inside the directory; then the copy is laid
// over the existing tree.
func (s *modelSwitcher) rollback(m models.MigrationState, reason string) (models.MigrationState, error) {
	m = models.StartRollback(m, reason, s.now())
	var restored []string
	var errs []error
	for _, f := range m.Backup.Files {
		if err := restoreArtifact(f.BackupPath, f.OriginalPath); err != nil {
			errs = append(errs, fmt.Errorf("restoring %s: %w", f.OriginalPath, err))
			continue
		}
		restored = append(restored, f.OriginalPath)
	}
	err := errors.Join(errs...)
	return models.FinishRollback(m, restored, err, s.now()), err
}

func restoreArtifact(backup, original string) error {
	info, err := os.Stat(backup)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if !isWithin(original, backup) {
			if err := os.RemoveAll(original); err != nil {
				return err
			}
		}
		return copyPath(backup, original)
	}
	tmp := original + ".tmp"
	if err := copyFile(backup, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, original); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// writeAudit stores the migration record next to its backup, when one
// was taken.
func (s *modelSwitcher) writeAudit(m models.MigrationState) {
	if !isDir(m.Backup.Path) {
		return
	}
	if err := writeJSONAtomic(filepath.Join(m.Backup.Path, migrationAuditFile), m); err != nil {
		s.logger.Warn("writing migration audit failed", "id", m.ID, "error", err)
	}
}
