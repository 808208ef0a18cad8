package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// SpecFilePattern matches the spec artifacts under a spec directory.
const SpecFilePattern = "**/*.{md,json}"

// recommendedFiles are project files whose absence is reported as info.
var recommendedFiles = []string{"package.json", "tsconfig.json", ".gitignore"}

// canonicalSpecFiles are the three kinds of feature spec artifacts.
var canonicalSpecFiles = []string{"spec.md", "plan.md", "tasks.md"}

// backupSuggestionThreshold is the backup count above which detection
// suggests cleaning up.
const backupSuggestionThreshold = 10

// DetectOptions controls DetectProject.
type DetectOptions struct {
	SearchDepth    int
	ValidateConfig bool
	AutoFix        bool
	IncludeDrafts  bool
}

// DefaultDetectOptions returns depth 5 with config validation on.
func DefaultDetectOptions() DetectOptions {
	return DetectOptions{SearchDepth: 5, ValidateConfig: true}
}

// DetectionResult is the outcome of detecting or repairing a project.
type DetectionResult struct {
	Found       bool                  `json:"found" yaml:"found"`
	ProjectPath string                `json:"projectPath,omitempty" yaml:"projectPath,omitempty"`
	Config      *models.ProjectConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Issues      []models.Issue        `json:"issues" yaml:"issues"`
	Suggestions []string              `json:"suggestions" yaml:"suggestions"`
}

// HasErrors reports whether any issue has error severity.
func (r DetectionResult) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

// ProjectDetector finds project roots and checks and repairs their
// structure. Detection and repair never return errors; failures become
// issues in the result.
type ProjectDetector interface {
	DetectProject(startPath string, opts DetectOptions) DetectionResult
	ValidateProject(projectPath string, cfg *models.ProjectConfig) []models.Issue
	RepairProject(projectPath string, cfg *models.ProjectConfig) DetectionResult
	FindProjectRoot(startPath string, maxDepth int) (string, bool, error)
	SpecFiles(specDir string) []string
}

// DetectorOptions configures a ProjectDetector.
type DetectorOptions struct {
	Configs     ConfigManager
	Catalog     models.ModelCatalog
	EventLogger EventLogger
	Logger      *slog.Logger
	Now         func() time.Time
	// Stat defaults to os.Stat.
	Stat func(string) (fs.FileInfo, error)
}

type projectDetector struct {
	configs     ConfigManager
	catalog     models.ModelCatalog
	eventLogger EventLogger
	logger      *slog.Logger
	now         func() time.Time
	stat        func(string) (fs.FileInfo, error)
}

// NewProjectDetector creates a ProjectDetector that writes configs through
// opts.Configs.
func NewProjectDetector(opts DetectorOptions) ProjectDetector {
	if opts.Catalog == nil {
		opts.Catalog = models.DefaultModelRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Stat == nil {
		opts.Stat = os.Stat
	}
	if opts.Configs == nil {
		opts.Configs = NewConfigManager(ConfigManagerOptions{Catalog: opts.Catalog, BackupEnabled: true, Logger: opts.Logger, Now: opts.Now})
	}
	return &projectDetector{
		configs:     opts.Configs,
		catalog:     opts.Catalog,
		eventLogger: opts.EventLogger,
		logger:      opts.Logger,
		now:         opts.Now,
		stat:        opts.Stat,
	}
}

// FindProjectRoot walks from startPath up through at most maxDepth parents
// looking for a .specify directory. The first match wins.
func (d *projectDetector) FindProjectRoot(startPath string, maxDepth int) (string, bool, error) {
	current, err := filepath.Abs(startPath)
	if err != nil {
		return "", false, fmt.Errorf("resolving %s: %w", startPath, err)
	}
	for depth := 0; depth <= maxDepth; depth++ {
		info, err := d.stat(filepath.Join(current, SpecifyDir))
		switch {
		case err == nil && info.IsDir():
			return current, true, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", false, fmt.Errorf("checking %s: %w", current, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", false, nil
}

// DetectProject locates the project containing startPath and reports its
// issues. With AutoFix, a missing config is created and an invalid one is
// repaired field by field.
func (d *projectDetector) DetectProject(startPath string, opts DetectOptions) DetectionResult {
	root, found, err := d.FindProjectRoot(startPath, opts.SearchDepth)
	if err != nil {
		return detectionFailed("Detection failed", err, "Check file permissions and try again")
	}
	if !found {
		return DetectionResult{
			Issues: []models.Issue{models.NewIssue(models.IssueNotFound, models.SeverityInfo,
				"No .specify directory found in current path or parent directories", "")},
			Suggestions: []string{
				`Run "specify init" to initialize a new project`,
				"Ensure you are in the correct project directory",
			},
		}
	}

	res := DetectionResult{Found: true, ProjectPath: root, Issues: []models.Issue{}, Suggestions: []string{}}
	configPath := ConfigPathFor(root)

	if !pathExists(configPath) {
		res.addIssue(models.NewIssue(models.IssueMissingConfig, models.SeverityError, "Configuration file not found", configPath))
		if opts.AutoFix {
			if _, err := d.configs.CreateConfig(CreateConfigParams{ProjectPath: root}); err != nil {
				res.Suggestions = append(res.Suggestions, fmt.Sprintf("Could not create default configuration: %v", err))
			} else {
				res.Suggestions = append(res.Suggestions, "Created default configuration file")
			}
		} else {
			res.Suggestions = append(res.Suggestions, `Run "specify detect-project --auto-fix" to create default configuration`)
		}
	}

	if pathExists(configPath) {
		res.Config = d.loadForDetection(root, configPath, opts, &res)
	}

	d.checkStructure(root, res.Config, opts.IncludeDrafts, &res)
	if res.Config != nil {
		d.checkMigrations(res.Config, &res)
	}
	return res
}

// loadForDetection reads the config and records why it cannot be used.
func (d *projectDetector) loadForDetection(root, configPath string, opts DetectOptions, res *DetectionResult) *models.ProjectConfig {
	data, err := os.ReadFile(configPath)
	if err != nil {
		res.addIssue(models.NewIssue(models.IssueUnreadableConfig, models.SeverityError,
			fmt.Sprintf("Failed to read configuration: %v", err), configPath))
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		res.addIssue(models.NewIssue(models.IssueUnreadableConfig, models.SeverityError,
			fmt.Sprintf("Failed to parse configuration: %v", err), configPath))
		return d.maybeRepair(root, nil, opts.AutoFix, res)
	}

	if opts.ValidateConfig {
		if problems := models.ValidateConfigData(raw, d.catalog); len(problems) > 0 {
			res.addIssue(models.NewIssue(models.IssueInvalidConfig, models.SeverityError,
				"Invalid configuration file format: "+strings.Join(problems, "; "), configPath))
			return d.maybeRepair(root, raw, opts.AutoFix, res)
		}
	}

	var cfg models.ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		res.addIssue(models.NewIssue(models.IssueUnreadableConfig, models.SeverityError,
			fmt.Sprintf("Failed to decode configuration: %v", err), configPath))
		return d.maybeRepair(root, raw, opts.AutoFix, res)
	}
	return &cfg
}

func (d *projectDetector) maybeRepair(root string, raw map[string]any, autoFix bool, res *DetectionResult) *models.ProjectConfig {
	if !autoFix {
		res.Suggestions = append(res.Suggestions, "Run with --auto-fix to repair configuration")
		return nil
	}
	cfg, err := d.repairConfig(root, raw)
	if err != nil {
		res.Suggestions = append(res.Suggestions, fmt.Sprintf("Could not repair configuration: %v", err))
		return nil
	}
	res.Suggestions = append(res.Suggestions, "Repaired configuration file")
	return cfg
}

// repairConfig fills every missing or invalid field of raw with a default
// while keeping the valid ones, then saves the result. ConfigPath always
// becomes the file's actual location.
func (d *projectDetector) repairConfig(root string, raw map[string]any) (*models.ProjectConfig, error) {
	now := d.now().UTC()
	cfg := &models.ProjectConfig{
		ProjectID:        stringOr(raw, "projectId", newProjectID()),
		Name:             stringOr(raw, "name", filepath.Base(root)),
		AIModel:          models.ModelClaude,
		Version:          stringOr(raw, "version", "0.1.0"),
		CreatedAt:        timeOr(raw, "createdAt", now),
		UpdatedAt:        now,
		SpecDirectory:    stringOr(raw, "specDirectory", filepath.Join(root, "specs")),
		ConfigPath:       ConfigPathFor(root),
		IsInitialized:    true,
		MigrationHistory: []models.MigrationRecord{},
	}
	if m, ok := raw["aiModel"].(string); ok && d.catalog.IsKnown(models.AIModel(m)) {
		cfg.AIModel = models.AIModel(m)
	}
	if b, ok := raw["isInitialized"].(bool); ok {
		cfg.IsInitialized = b
	}
	if history, ok := raw["migrationHistory"].([]any); ok {
		for _, entry := range history {
			if rec, ok := decodeRecord(entry); ok {
				cfg.MigrationHistory = append(cfg.MigrationHistory, rec)
			}
		}
	}
	if err := d.configs.SaveConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func stringOr(raw map[string]any, key, def string) string {
	if s, ok := raw[key].(string); ok && s != "" {
		return s
	}
	return def
}

func timeOr(raw map[string]any, key string, def time.Time) time.Time {
	if s, ok := raw[key].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return def
}

func decodeRecord(entry any) (models.MigrationRecord, bool) {
	rec, ok := entry.(map[string]any)
	if !ok {
		return models.MigrationRecord{}, false
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return models.MigrationRecord{}, false
	}
	var out models.MigrationRecord
	if err := json.Unmarshal(data, &out); err != nil || out.ID == "" {
		return models.MigrationRecord{}, false
	}
	return out, true
}

// checkStructure reports recommended files and spec artifacts.
func (d *projectDetector) checkStructure(root string, cfg *models.ProjectConfig, includeDrafts bool, res *DetectionResult) {
	for _, name := range recommendedFiles {
		p := filepath.Join(root, name)
		if !pathExists(p) {
			res.addIssue(models.NewIssue(models.IssueMissingRecommendedFile, models.SeverityInfo,
				"Recommended file missing: "+name, p))
		}
	}

	if cfg == nil || !isDir(cfg.SpecDirectory) {
		return
	}
	specFiles := d.SpecFiles(cfg.SpecDirectory)
	if len(specFiles) == 0 {
		res.addIssue(models.NewIssue(models.IssueNoSpecFiles, models.SeverityInfo,
			"No specification files found", cfg.SpecDirectory))
		if !includeDrafts {
			res.Suggestions = append(res.Suggestions, `No specification files found - consider running "specify init" to create initial specs`)
		}
		return
	}
	for _, kind := range canonicalSpecFiles {
		if !containsBase(specFiles, kind) {
			res.addIssue(models.NewIssue(models.IssueMissingFeatureSpec, models.SeverityInfo,
				fmt.Sprintf("No %s files found", kind), cfg.SpecDirectory))
		}
	}
}

func containsBase(paths []string, base string) bool {
	for _, p := range paths {
		if filepath.Base(p) == base {
			return true
		}
	}
	return false
}

// checkMigrations flags failed history entries and a crowded backup
// directory.
func (d *projectDetector) checkMigrations(cfg *models.ProjectConfig, res *DetectionResult) {
	if failed := cfg.FailedMigrations(); len(failed) > 0 {
		res.addIssue(models.NewIssue(models.IssueIncompleteMigration, models.SeverityWarning,
			fmt.Sprintf("%d incomplete migration(s) found", len(failed)), cfg.ConfigPath))
		res.Suggestions = append(res.Suggestions, `Run "specify reset-project --repair" to clean up incomplete migrations`)
	}

	backupDir := filepath.Join(filepath.Dir(cfg.ConfigPath), "backups")
	if entries, err := os.ReadDir(backupDir); err == nil && len(entries) > backupSuggestionThreshold {
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("%d backup files found - consider cleaning old backups", len(entries)))
	}
}

// SpecFiles returns every .md and .json file under specDir. A missing or
// unreadable directory yields no files.
func (d *projectDetector) SpecFiles(specDir string) []string {
	matches, err := doublestar.Glob(os.DirFS(specDir), SpecFilePattern, doublestar.WithFilesOnly())
	if err != nil {
		d.logger.Debug("listing spec files failed", "dir", specDir, "error", err)
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(specDir, filepath.FromSlash(m)))
	}
	return out
}

// ValidateProject checks the directories, config file, model, and spec
// files a configured project needs.
func (d *projectDetector) ValidateProject(projectPath string, cfg *models.ProjectConfig) []models.Issue {
	issues := []models.Issue{}
	if cfg == nil {
		configPath := ConfigPathFor(projectPath)
		return append(issues, models.NewIssue(models.IssueMissingConfig, models.SeverityError,
			"Configuration file missing", configPath))
	}
	for _, dir := range []string{filepath.Join(projectPath, SpecifyDir), cfg.SpecDirectory} {
		if !isDir(dir) {
			issues = append(issues, models.NewIssue(models.IssueMissingDirectory, models.SeverityError,
				"Required directory missing: "+dir, dir))
		}
	}
	if !pathExists(cfg.ConfigPath) {
		issues = append(issues, models.NewIssue(models.IssueMissingConfig, models.SeverityError,
			"Configuration file missing", cfg.ConfigPath))
	}
	if !d.catalog.IsKnown(cfg.AIModel) {
		issues = append(issues, models.NewIssue(models.IssueUnknownModel, models.SeverityError,
			fmt.Sprintf("Unknown AI model: %s", cfg.AIModel), ""))
	}
	if len(d.SpecFiles(cfg.SpecDirectory)) == 0 {
		issues = append(issues, models.NewIssue(models.IssueNoSpecFiles, models.SeverityWarning,
			"No specification files found", cfg.SpecDirectory))
	}
	return issues
}

// RepairProject applies every fixable issue it can find and returns the
// rest. With a nil cfg, an existing config file is repaired field by field
// and a missing one is created.
func (d *projectDetector) RepairProject(projectPath string, cfg *models.ProjectConfig) DetectionResult {
	res := DetectionResult{Found: true, ProjectPath: projectPath, Issues: []models.Issue{}, Suggestions: []string{}}

	if err := os.MkdirAll(filepath.Join(projectPath, SpecifyDir), 0o750); err != nil {
		return detectionFailed("Repair failed", err)
	}

	configPath := ConfigPathFor(projectPath)
	if cfg == nil {
		var err error
		if pathExists(configPath) {
			var raw map[string]any
			_ = readJSON(configPath, &raw) // Unparseable content is rebuilt from defaults.
			cfg, err = d.repairConfig(projectPath, raw)
			res.Suggestions = append(res.Suggestions, "Repaired configuration")
		} else {
			cfg, err = d.configs.CreateConfig(CreateConfigParams{ProjectPath: projectPath})
			res.Suggestions = append(res.Suggestions, "Created default configuration")
		}
		if err != nil {
			return detectionFailed("Repair failed", err)
		}
	} else {
		found := d.ValidateProject(projectPath, cfg)
		if failed := cfg.FailedMigrations(); len(failed) > 0 {
			found = append(found, models.NewIssue(models.IssueIncompleteMigration, models.SeverityWarning,
				fmt.Sprintf("%d incomplete migration(s) found", len(failed)), cfg.ConfigPath))
		}
		for _, issue := range found {
			if !issue.Fixable {
				res.addIssue(issue)
				continue
			}
			repaired, err := d.fixIssue(issue, projectPath, cfg)
			if err != nil {
				return detectionFailed("Repair failed", err)
			}
			cfg = repaired
			res.Suggestions = append(res.Suggestions, "Fixed: "+issue.Message)
		}
	}

	if err := os.MkdirAll(cfg.SpecDirectory, 0o750); err != nil {
		return detectionFailed("Repair failed", err)
	}
	res.Config = cfg

	logEvent(d.eventLogger, EventProjectRepaired, map[string]any{
		"project_path": projectPath,
		"fixed":        len(res.Suggestions),
		"remaining":    len(res.Issues),
	})
	return res
}

// fixIssue applies the fix for one fixable issue and returns the config
// as it stands afterwards.
func (d *projectDetector) fixIssue(issue models.Issue, projectPath string, cfg *models.ProjectConfig) (*models.ProjectConfig, error) {
	switch issue.Kind {
	case models.IssueMissingDirectory:
		if err := os.MkdirAll(issue.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating %s: %w", issue.Path, err)
		}
		return cfg, nil
	case models.IssueMissingConfig:
		restored := cfg.Clone()
		restored.ConfigPath = ConfigPathFor(projectPath)
		if err := d.configs.SaveConfig(&restored); err != nil {
			return nil, fmt.Errorf("restoring config: %w", err)
		}
		return &restored, nil
	case models.IssueInvalidConfig, models.IssueUnreadableConfig:
		var raw map[string]any
		_ = readJSON(ConfigPathFor(projectPath), &raw) // Unparseable content is rebuilt from defaults.
		return d.repairConfig(projectPath, raw)
	case models.IssueUnknownModel, models.IssueMissingRecommendedFile, models.IssueNoSpecFiles,
		models.IssueMissingFeatureSpec, models.IssueIncompleteMigration, models.IssueNotFound, models.IssueDetectionFailed:
		return cfg, nil
	}
	return cfg, nil
}

func (r *DetectionResult) addIssue(issue models.Issue) {
	r.Issues = append(r.Issues, issue)
}

func detectionFailed(prefix string, err error, suggestions ...string) DetectionResult {
	if suggestions == nil {
		suggestions = []string{}
	}
	return DetectionResult{
		Issues: []models.Issue{models.NewIssue(models.IssueDetectionFailed, models.SeverityError,
			fmt.Sprintf("%s: %v", prefix, err), "")},
		Suggestions: suggestions,
	}
}
