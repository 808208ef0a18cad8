package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// ConfigFileName is the name of the project config inside .specify.
const ConfigFileName = "config.json"

// DefaultMaxBackups is the config backup retention used when none is set.
const DefaultMaxBackups = 10

// ConfigManager loads, saves, and validates project config files. It is the
// only writer of config.json.
type ConfigManager interface {
	LoadConfig(path string) (*models.ProjectConfig, error)
	SaveConfig(cfg *models.ProjectConfig) error
	CreateConfig(params CreateConfigParams) (*models.ProjectConfig, error)
	UpdateConfig(path string, patch func(*models.ProjectConfig)) (*models.ProjectConfig, error)
	ValidateConfig(path string) ValidationResult
	ListBackups(configPath string) ([]ConfigBackup, error)
	RestoreBackup(backup ConfigBackup) error
	CleanupBackups(configPath string) error
}

// CreateConfigParams describes a new project config.
type CreateConfigParams struct {
	ProjectPath string
	Name        string
	AIModel     models.AIModel
	// SpecDirectory defaults to <ProjectPath>/specs.
	SpecDirectory string
	// Version defaults to "1.0.0".
	Version string
}

// ValidationResult is the outcome of ValidateConfig.
type ValidationResult struct {
	Valid    bool     `json:"valid" yaml:"valid"`
	Errors   []string `json:"errors" yaml:"errors"`
	Warnings []string `json:"warnings" yaml:"warnings"`
}

// ConfigBackup is one rotated copy of a config file.
type ConfigBackup struct {
	Path         string    `json:"path"`
	OriginalPath string    `json:"originalPath"`
	CreatedAt    time.Time `json:"createdAt"`
	Size         int64     `json:"size"`
}

// ConfigManagerOptions configures a ConfigManager.
type ConfigManagerOptions struct {
	Catalog       models.ModelCatalog
	BackupEnabled bool
	MaxBackups    int
	Logger        *slog.Logger
	Now           func() time.Time
}

type fileConfigManager struct {
	catalog       models.ModelCatalog
	backupEnabled bool
	maxBackups    int
	logger        *slog.Logger
	now           func() time.Time
}

// NewConfigManager creates a ConfigManager backed by JSON files.
func NewConfigManager(opts ConfigManagerOptions) ConfigManager {
	if opts.Catalog == nil {
		opts.Catalog = models.DefaultModelRegistry()
	}
	if opts.MaxBackups < 1 {
		opts.MaxBackups = DefaultMaxBackups
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &fileConfigManager{
		catalog:       opts.Catalog,
		backupEnabled: opts.BackupEnabled,
		maxBackups:    opts.MaxBackups,
		logger:        opts.Logger,
		now:           opts.Now,
	}
}

// ConfigPathFor returns the config.json location of a project root.
func ConfigPathFor(projectPath string) string {
	return filepath.Join(projectPath, SpecifyDir, ConfigFileName)
}

// configBackupDir returns <configDir>/backups/config.
func configBackupDir(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "backups", "config")
}

// LoadConfig reads and structurally validates the config at path.
func (m *fileConfigManager) LoadConfig(path string) (*models.ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg, problems := m.decode(data)
	if len(problems) > 0 {
		return nil, fmt.Errorf("loading config %s: %w:\n  - %s", path, ErrInvalidFormat, strings.Join(problems, "\n  - "))
	}
	return cfg, nil
}

// decode parses raw JSON, returning validator messages on failure.
func (m *fileConfigManager) decode(data []byte) (*models.ProjectConfig, []string) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, []string{fmt.Sprintf("parsing JSON: %v", err)}
	}
	if problems := models.ValidateConfigData(raw, m.catalog); len(problems) > 0 {
		return nil, problems
	}
	var cfg models.ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, []string{fmt.Sprintf("decoding config: %v", err)}
	}
	if cfg.MigrationHistory == nil {
		cfg.MigrationHistory = []models.MigrationRecord{}
	}
	return &cfg, nil
}

// SaveConfig validates cfg, backs up any existing file, stamps UpdatedAt,
// and writes the config atomically to cfg.ConfigPath.
func (m *fileConfigManager) SaveConfig(cfg *models.ProjectConfig) error {
	if cfg == nil {
		return fmt.Errorf("saving config: %w: config is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(m.catalog); err != nil {
		return fmt.Errorf("saving config: %w: %v", ErrInvalidConfig, err)
	}

	if m.backupEnabled && pathExists(cfg.ConfigPath) {
		if err := m.backup(cfg.ConfigPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
	}

	cfg.UpdatedAt = m.now().UTC()
	if cfg.MigrationHistory == nil {
		cfg.MigrationHistory = []models.MigrationRecord{}
	}
	if err := writeJSONAtomic(cfg.ConfigPath, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	m.logger.Debug("config saved", "path", cfg.ConfigPath, "model", cfg.AIModel)
	return nil
}

// backup copies the current config into the rotation directory and trims
// old copies.
func (m *fileConfigManager) backup(configPath string) error {
	dir := configBackupDir(configPath)
	name := filepath.Base(configPath) + ".backup." + fileTimestamp(m.now())
	if err := copyFile(configPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("backing up config: %w", err)
	}
	if err := m.CleanupBackups(configPath); err != nil {
		m.logger.Warn("config backup cleanup failed", "path", dir, "error", err)
	}
	return nil
}

// CreateConfig synthesizes and persists a fresh, initialized config.
func (m *fileConfigManager) CreateConfig(p CreateConfigParams) (*models.ProjectConfig, error) {
	if p.ProjectPath == "" {
		return nil, fmt.Errorf("creating config: %w: project path is required", ErrInvalidConfig)
	}
	if p.AIModel == "" {
		p.AIModel = models.ModelClaude
	}
	if p.Name == "" {
		p.Name = filepath.Base(p.ProjectPath)
	}
	if p.SpecDirectory == "" {
		p.SpecDirectory = filepath.Join(p.ProjectPath, "specs")
	}
	if p.Version == "" {
		p.Version = "1.0.0"
	}

	now := m.now().UTC()
	cfg := &models.ProjectConfig{
		ProjectID:        newProjectID(),
		Name:             p.Name,
		AIModel:          p.AIModel,
		Version:          p.Version,
		CreatedAt:        now,
		UpdatedAt:        now,
		SpecDirectory:    p.SpecDirectory,
		ConfigPath:       ConfigPathFor(p.ProjectPath),
		IsInitialized:    true,
		MigrationHistory: []models.MigrationRecord{},
	}
	if err := os.MkdirAll(cfg.SpecDirectory, 0o750); err != nil {
		return nil, fmt.Errorf("creating spec directory: %w", err)
	}
	if err := m.SaveConfig(cfg); err != nil {
		return nil, fmt.Errorf("creating config: %w", err)
	}
	return cfg, nil
}

// UpdateConfig loads the config at path, applies patch, and saves it.
func (m *fileConfigManager) UpdateConfig(path string, patch func(*models.ProjectConfig)) (*models.ProjectConfig, error) {
	cfg, err := m.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("updating config: %w", err)
	}
	patch(cfg)
	if err := m.SaveConfig(cfg); err != nil {
		return nil, fmt.Errorf("updating config: %w", err)
	}
	return cfg, nil
}

// ValidateConfig inspects the config at path without returning errors;
// every problem is reported in the result.
func (m *fileConfigManager) ValidateConfig(path string) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.Errors = append(res.Errors, fmt.Sprintf("config file not found: %s", path))
		} else {
			res.Errors = append(res.Errors, fmt.Sprintf("reading config: %v", err))
		}
		return res
	}

	cfg, problems := m.decode(data)
	if len(problems) > 0 {
		res.Errors = append(res.Errors, problems...)
		return res
	}

	if !isDir(cfg.SpecDirectory) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("spec directory does not exist: %s", cfg.SpecDirectory))
	}
	if failed := cfg.FailedMigrations(); len(failed) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d failed migration(s) in history", len(failed)))
	}
	res.Valid = true
	return res
}

// ListBackups returns the rotated copies of configPath, newest first.
func (m *fileConfigManager) ListBackups(configPath string) ([]ConfigBackup, error) {
	dir := configBackupDir(configPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing config backups: %w", err)
	}

	prefix := filepath.Base(configPath) + ".backup."
	var backups []ConfigBackup
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		created, err := parseFileTimestamp(strings.TrimPrefix(e.Name(), prefix))
		if err != nil {
			created = info.ModTime()
		}
		backups = append(backups, ConfigBackup{
			Path:         filepath.Join(dir, e.Name()),
			OriginalPath: configPath,
			CreatedAt:    created,
			Size:         info.Size(),
		})
	}
	sort.SliceStable(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// RestoreBackup replaces the original config with the backup copy. The
// current file is backed up first so a restore can itself be undone.
func (m *fileConfigManager) RestoreBackup(b ConfigBackup) error {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("restoring backup %s: %w", b.Path, ErrNotFound)
		}
		return fmt.Errorf("restoring backup %s: %w", b.Path, err)
	}
	if _, problems := m.decode(data); len(problems) > 0 {
		return fmt.Errorf("restoring backup %s: %w:\n  - %s", b.Path, ErrInvalidFormat, strings.Join(problems, "\n  - "))
	}

	if m.backupEnabled && pathExists(b.OriginalPath) {
		if err := m.backup(b.OriginalPath); err != nil {
			return fmt.Errorf("restoring backup: %w", err)
		}
	}

	tmpPath := b.OriginalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("restoring backup: writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, b.OriginalPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("restoring backup: renaming: %w", err)
	}
	return nil
}

// CleanupBackups removes all but the newest maxBackups copies.
func (m *fileConfigManager) CleanupBackups(configPath string) error {
	backups, err := m.ListBackups(configPath)
	if err != nil {
		return err
	}
	if len(backups) <= m.maxBackups {
		return nil
	}
	var errs []error
	for _, b := range backups[m.maxBackups:] {
		if err := os.Remove(b.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
