package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// errNoProject is returned by commands that need a spec-kit project.
var errNoProject = errors.New(`no spec-kit project found (run "specify init")`)

func currentSettings() *core.Settings {
	if Settings == nil {
		return core.DefaultSettings()
	}
	return Settings
}

func searchDepth() int {
	if d := currentSettings().SearchDepth; d > 0 {
		return d
	}
	return core.DefaultDetectOptions().SearchDepth
}

// requireProject detects the project around BasePath and returns its root
// and config. A project whose config cannot be loaded is an error.
func requireProject() (string, *models.ProjectConfig, error) {
	if Detector == nil {
		return "", nil, fmt.Errorf("project detector not initialized")
	}
	opts := core.DefaultDetectOptions()
	opts.SearchDepth = searchDepth()
	res := Detector.DetectProject(BasePath, opts)
	if !res.Found {
		return "", nil, errNoProject
	}
	if res.Config == nil {
		var msgs []string
		for _, i := range res.Issues {
			if i.Severity == models.SeverityError {
				msgs = append(msgs, i.Message)
			}
		}
		if len(msgs) == 0 {
			return "", nil, fmt.Errorf("project at %s has no usable config (run \"specify detect-project --repair\")", res.ProjectPath)
		}
		return "", nil, fmt.Errorf("project at %s has an invalid config:\n  - %s", res.ProjectPath, strings.Join(msgs, "\n  - "))
	}
	return res.ProjectPath, res.Config, nil
}

// openTracker opens and loads the task tracker of cfg.
func openTracker(cfg *models.ProjectConfig) (core.TaskTracker, error) {
	if NewTracker == nil {
		return nil, fmt.Errorf("task tracker not initialized")
	}
	tr := NewTracker(cfg)
	tr.Initialize()
	return tr, nil
}
