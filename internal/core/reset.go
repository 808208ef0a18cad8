package core

import (
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

const (
	projectBackupPrefix = "project-backup-"
	manifestFileName    = "manifest.json"
	backupTypeFull      = "full-project"
)

// ResetOptions selects what a reset keeps.
type ResetOptions struct {
	KeepSpecs bool
	KeepTasks bool
}

// ResetItem is one entry of a reset plan.
type ResetItem struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Path        string `json:"path" yaml:"path"`
	Keep        bool   `json:"keep" yaml:"keep"`
	Exists      bool   `json:"exists" yaml:"exists"`
}

// ProjectBackup describes a full-project backup bundle.
type ProjectBackup struct {
	Name      string    `json:"name" yaml:"name"`
	Path      string    `json:"path" yaml:"path"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	Size      int64     `json:"size" yaml:"size"`
}

// BackupManifest is written as manifest.json into each project backup.
type BackupManifest struct {
	CreatedAt    time.Time      `json:"createdAt"`
	ProjectName  string         `json:"projectName"`
	ProjectID    string         `json:"projectId"`
	AIModel      models.AIModel `json:"aiModel"`
	OriginalPath string         `json:"originalPath"`
	BackupType   string         `json:"backupType"`
}

// ProjectResetter backs up and resets the specify state of a project.
type ProjectResetter interface {
	CreateProjectBackup(projectPath string, cfg *models.ProjectConfig) (string, error)
	PlanReset(projectPath string, cfg *models.ProjectConfig, opts ResetOptions) []ResetItem
	Reset(projectPath string, cfg *models.ProjectConfig, opts ResetOptions) error
	ListProjectBackups(projectPath string) ([]ProjectBackup, error)
	Repair(projectPath string, cfg *models.ProjectConfig) DetectionResult
}

// ResetterOptions configures a ProjectResetter.
type ResetterOptions struct {
	Detector    ProjectDetector
	EventLogger EventLogger
	Logger      *slog.Logger
	Now         func() time.Time
}

type projectResetter struct {
	detector ProjectDetector
	events   EventLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewProjectResetter creates a ProjectResetter.
func NewProjectResetter(opts ResetterOptions) ProjectResetter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &projectResetter{
		detector: opts.Detector,
		events:   opts.EventLogger,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

func projectBackupsDir(projectPath string) string {
	return filepath.Join(projectPath, SpecifyDir, "backups")
}

func specsDirFor(projectPath string, cfg *models.ProjectConfig) string {
	if cfg != nil && cfg.SpecDirectory != "" {
		return cfg.SpecDirectory
	}
	return filepath.Join(projectPath, "specs")
}

// CreateProjectBackup copies config.json, tasks.json and the spec
// directory into .specify/backups/project-backup-<ts> and writes a
// manifest. Missing sources are skipped and the .specify directory is left
// out of the spec copy. A partially written backup is removed on failure.
func (r *projectResetter) CreateProjectBackup(projectPath string, cfg *models.ProjectConfig) (_ string, err error) {
	now := r.now().UTC()
	dst := filepath.Join(projectBackupsDir(projectPath), projectBackupPrefix+fileTimestamp(now))
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return "", fmt.Errorf("creating project backup: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dst)
		}
	}()
	specifyDir := filepath.Join(projectPath, SpecifyDir)

	sources := []struct{ src, name string }{
		{filepath.Join(projectPath, SpecifyDir, ConfigFileName), ConfigFileName},
		{filepath.Join(projectPath, SpecifyDir, TasksFileName), TasksFileName},
		{specsDirFor(projectPath, cfg), "specs"},
	}
	for _, s := range sources {
		if !pathExists(s.src) {
			continue
		}
		if err := copyPath(s.src, filepath.Join(dst, s.name), specifyDir); err != nil {
			return "", fmt.Errorf("backing up %s: %w", s.name, err)
		}
	}

	manifest := BackupManifest{
		CreatedAt:    now,
		OriginalPath: projectPath,
		BackupType:   backupTypeFull,
	}
	if cfg != nil {
		manifest.ProjectName = cfg.Name
		manifest.ProjectID = cfg.ProjectID
		manifest.AIModel = cfg.AIModel
	}
	if err := writeJSONAtomic(filepath.Join(dst, manifestFileName), manifest); err != nil {
		return "", fmt.Errorf("writing backup manifest: %w", err)
	}
	r.logger.Debug("created project backup", "path", dst)
	return dst, nil
}

// PlanReset lists what Reset would touch.
func (r *projectResetter) PlanReset(projectPath string, cfg *models.ProjectConfig, opts ResetOptions) []ResetItem {
	specifyDir := filepath.Join(projectPath, SpecifyDir)
	items := []ResetItem{
		{Name: "Project Configuration", Description: "AI model settings, project metadata", Path: filepath.Join(specifyDir, ConfigFileName)},
		{Name: "Task Tracking Data", Description: "Task states, progress tracking", Path: filepath.Join(specifyDir, TasksFileName), Keep: opts.KeepTasks},
		{Name: "Specification Files", Description: "Feature specs, plans, contracts", Path: specsDirFor(projectPath, cfg), Keep: opts.KeepSpecs},
		{Name: "Migration History", Description: "Model switch history and backups", Path: projectBackupsDir(projectPath)},
		{Name: "Cache & Temporary Files", Description: "Cached data, temporary files", Path: filepath.Join(specifyDir, "cache")},
	}
	for i := range items {
		items[i].Exists = pathExists(items[i].Path)
	}
	return items
}

// Reset removes the project's config, tasks and specs (unless kept),
// every backup that is not a project backup, and the cache.
func (r *projectResetter) Reset(projectPath string, cfg *models.ProjectConfig, opts ResetOptions) error {
	specifyDir := filepath.Join(projectPath, SpecifyDir)
	var errs []string
	remove := func(path string) {
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err.Error())
		}
	}

	remove(filepath.Join(specifyDir, ConfigFileName))
	if !opts.KeepTasks {
		remove(filepath.Join(specifyDir, TasksFileName))
	}
	if !opts.KeepSpecs {
		specs := specsDirFor(projectPath, cfg)
		if removableSpecDir(projectPath, specs) {
			remove(specs)
		} else {
			errs = append(errs, fmt.Sprintf("refusing to remove spec directory %s: not a subdirectory of the project", specs))
		}
	}

	backups := projectBackupsDir(projectPath)
	entries, err := os.ReadDir(backups)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Sprintf("listing backups: %v", err))
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), projectBackupPrefix) {
			continue
		}
		remove(filepath.Join(backups, e.Name()))
	}
	remove(filepath.Join(specifyDir, "cache"))

	logEvent(r.events, EventProjectReset, map[string]any{
		"project_path": projectPath,
		"keep_specs":   opts.KeepSpecs,
		"keep_tasks":   opts.KeepTasks,
		"errors":       len(errs),
	})
	if len(errs) > 0 {
		return fmt.Errorf("resetting project:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ListProjectBackups returns the project-backup-* directories under
// .specify/backups, newest first. The manifest's createdAt wins over the directory mtime.
func (r *projectResetter) ListProjectBackups(projectPath string) ([]ProjectBackup, error) {
	dir := projectBackupsDir(projectPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing project backups: %w", err)
	}

	var out []ProjectBackup
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), projectBackupPrefix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		b := ProjectBackup{Name: e.Name(), Path: path, CreatedAt: info.ModTime()}
		var m BackupManifest
		if err := readJSON(filepath.Join(path, manifestFileName), &m); err == nil && !m.CreatedAt.IsZero() {
			b.CreatedAt = m.CreatedAt
		}
		if size, err := pathSize(path); err == nil {
			b.Size = size
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Repair fixes what the detector can fix.
func (r *projectResetter) Repair(projectPath string, cfg *models.ProjectConfig) DetectionResult {
	if r.detector == nil {
		return detectionFailed("repairing project", errors.New("no project detector configured"))
	}
	return r.detector.RepairProject(projectPath, cfg)
}

// removableSpecDir reports whether specs lies strictly below projectPath
// and outside its .specify directory.
func removableSpecDir(projectPath, specs string) bool {
	if !isWithin(projectPath, specs) || isWithin(specs, projectPath) {
		return false
	}
	return !isWithin(filepath.Join(projectPath, SpecifyDir), specs)
}
