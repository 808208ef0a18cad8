// Package core contains the business logic of the specify CLI: project
// configuration, project detection and repair, AI model migration, project
// reset, and dependency-aware task tracking.
package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SpecifyDir is the directory that marks a project root.
const SpecifyDir = ".specify"

// Settings are tool-level preferences read from .specify/settings.yaml.
// They are distinct from the project's config.json.
type Settings struct {
	SearchDepth int
	Backup      BackupSettings
	Tasks       TaskSettings
	CLIVersion  string
}

// BackupSettings controls config and migration backups.
type BackupSettings struct {
	Enabled    bool
	MaxBackups int
	// Directory is relative to the project root unless absolute.
	Directory string
}

// TaskSettings controls task tracking persistence.
type TaskSettings struct {
	AutoSave bool
	Debounce time.Duration
	RealTime bool
}

// DefaultSettings returns the settings used when no settings file exists.
func DefaultSettings() *Settings {
	return &Settings{
		SearchDepth: 5,
		Backup: BackupSettings{
			Enabled:    true,
			MaxBackups: 10,
			Directory:  filepath.Join(SpecifyDir, "backups"),
		},
		Tasks: TaskSettings{
			AutoSave: true,
			Debounce: time.Second,
			RealTime: true,
		},
		CLIVersion: "0.1.0",
	}
}

// LoadSettings reads settings.yaml from the .specify directory under
// projectRoot, applying SPECIFY_* environment overrides. A missing file
// yields defaults (still subject to environment overrides).
func LoadSettings(projectRoot string) (*Settings, error) {
	def := DefaultSettings()

	v := viper.New()
	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(projectRoot, SpecifyDir))
	v.SetEnvPrefix("SPECIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("search_depth", def.SearchDepth)
	v.SetDefault("backup.enabled", def.Backup.Enabled)
	v.SetDefault("backup.max_backups", def.Backup.MaxBackups)
	v.SetDefault("backup.directory", def.Backup.Directory)
	v.SetDefault("tasks.autosave", def.Tasks.AutoSave)
	v.SetDefault("tasks.debounce", def.Tasks.Debounce)
	v.SetDefault("tasks.realtime", def.Tasks.RealTime)
	v.SetDefault("cli_version", def.CLIVersion)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading settings.yaml: %w", err)
		}
	}

	s := &Settings{
		SearchDepth: v.GetInt("search_depth"),
		Backup: BackupSettings{
			Enabled:    v.GetBool("backup.enabled"),
			MaxBackups: v.GetInt("backup.max_backups"),
			Directory:  v.GetString("backup.directory"),
		},
		Tasks: TaskSettings{
			AutoSave: v.GetBool("tasks.autosave"),
			Debounce: v.GetDuration("tasks.debounce"),
			RealTime: v.GetBool("tasks.realtime"),
		},
		CLIVersion: v.GetString("cli_version"),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports every invalid value at once.
func (s *Settings) Validate() error {
	var errs []string
	if s.SearchDepth < 0 {
		errs = append(errs, fmt.Sprintf("search_depth must be >= 0, got %d", s.SearchDepth))
	}
	if s.Backup.MaxBackups < 1 {
		errs = append(errs, fmt.Sprintf("backup.max_backups must be >= 1, got %d", s.Backup.MaxBackups))
	}
	if s.Backup.Directory == "" {
		errs = append(errs, "backup.directory must not be empty")
	}
	if s.Tasks.Debounce <= 0 {
		errs = append(errs, fmt.Sprintf("tasks.debounce must be positive, got %s", s.Tasks.Debounce))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidSettings, strings.Join(errs, "\n  - "))
	}
	return nil
}

// BackupDir resolves the backup directory against projectRoot.
func (s *Settings) BackupDir(projectRoot string) string {
	if filepath.IsAbs(s.Backup.Directory) {
		return s.Backup.Directory
	}
	return filepath.Join(projectRoot, s.Backup.Directory)
}
