package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// InitOptions holds the parameters for initializing a spec-kit project.
type InitOptions struct {
	TargetDir string
	// Name defaults to the base name of TargetDir.
	Name    string
	AIModel models.AIModel
	// Force replaces an existing config.json.
	Force bool
}

// InitResult holds a summary of what was created vs. skipped.
type InitResult struct {
	Created []string
	Skipped []string
	Config  *models.ProjectConfig
}

// ProjectInitializer creates the .specify layout, the spec directory and
// a fresh config for a new project.
type ProjectInitializer interface {
	Init(opts InitOptions) (*InitResult, error)
}

type projectInitializer struct {
	configs  ConfigManager
	registry *models.ModelRegistry
}

// NewProjectInitializer creates a new ProjectInitializer.
func NewProjectInitializer(configs ConfigManager, registry *models.ModelRegistry) ProjectInitializer {
	if registry == nil {
		registry = models.DefaultModelRegistry()
	}
	return &projectInitializer{configs: configs, registry: registry}
}

// Init is safe to run on an existing directory: directories and files that
// already exist are skipped. An existing config.json is an error unless
// Force is set.
func (pi *projectInitializer) Init(opts InitOptions) (*InitResult, error) {
	if opts.TargetDir == "" {
		return nil, fmt.Errorf("initializing project: %w: target directory is required", ErrValidation)
	}
	if opts.AIModel == "" {
		opts.AIModel = models.ModelClaude
	}
	if !pi.registry.IsKnown(opts.AIModel) {
		return nil, fmt.Errorf("initializing project: %w: unknown AI model %q", ErrValidation, opts.AIModel)
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(opts.TargetDir)
	}

	configPath := ConfigPathFor(opts.TargetDir)
	if pathExists(configPath) && !opts.Force {
		return nil, fmt.Errorf("initializing project: %w: %s already exists (use --force to overwrite)", ErrValidation, configPath)
	}

	result := &InitResult{}
	specifyDir := filepath.Join(opts.TargetDir, SpecifyDir)
	specsDir := filepath.Join(opts.TargetDir, "specs")
	dirs := []string{
		opts.TargetDir,
		specifyDir,
		filepath.Join(specifyDir, "scripts", "bash"),
		filepath.Join(specifyDir, "scripts", "powershell"),
		filepath.Join(specifyDir, "state"),
		specsDir,
	}
	for _, dir := range dirs {
		created, err := ensureDir(dir)
		if err != nil {
			return nil, fmt.Errorf("initializing project: creating directory %s: %w", dir, err)
		}
		if created {
			result.Created = append(result.Created, dir)
		} else {
			result.Skipped = append(result.Skipped, dir)
		}
	}

	cfg, err := pi.configs.CreateConfig(CreateConfigParams{
		ProjectPath:   opts.TargetDir,
		Name:          opts.Name,
		AIModel:       opts.AIModel,
		SpecDirectory: specsDir,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing project: %w", err)
	}
	result.Config = cfg
	result.Created = append(result.Created, configPath)

	data := struct {
		Name    string
		AIModel models.AIModel
		Models  []models.AIModel
	}{opts.Name, opts.AIModel, pi.registry.Models()}

	files := []struct {
		target   string
		template string
		render   bool
	}{
		{filepath.Join(specsDir, "README.md"), "specs-readme.md", false},
		{filepath.Join(opts.TargetDir, "README.md"), "project-readme.md", true},
		{filepath.Join(opts.TargetDir, ".gitignore"), "gitignore", false},
	}
	for _, f := range files {
		err := writeFileIfNotExists(f.target, func() ([]byte, error) {
			if f.render {
				return renderTemplate(f.template, data)
			}
			content, err := getTemplate(f.template)
			return []byte(content), err
		}, result)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ensureDir creates a directory if it does not exist. Returns true if created.
func ensureDir(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return false, err
	}
	return true, nil
}

// writeFileIfNotExists writes content from contentFn if the file does not
// exist, recording created/skipped in result.
func writeFileIfNotExists(path string, contentFn func() ([]byte, error), result *InitResult) error {
	if _, err := os.Stat(path); err == nil {
		result.Skipped = append(result.Skipped, path)
		return nil
	}
	content, err := contentFn()
	if err != nil {
		return fmt.Errorf("initializing project: generating content for %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("initializing project: writing %s: %w", path, err)
	}
	result.Created = append(result.Created, path)
	return nil
}
