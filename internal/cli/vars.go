package cli

import (
	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/internal/observability"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	// BasePath is where project detection starts, normally the working
	// directory.
	BasePath string

	Settings    *core.Settings
	Registry    *models.ModelRegistry
	Configs     core.ConfigManager
	Detector    core.ProjectDetector
	Switcher    core.ModelSwitcher
	Resetter    core.ProjectResetter
	ProjectInit core.ProjectInitializer

	// NewTracker opens the task tracker of a project.
	NewTracker func(cfg *models.ProjectConfig) core.TaskTracker

	// EventLog and MetricsCalc are nil outside a project.
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
)
