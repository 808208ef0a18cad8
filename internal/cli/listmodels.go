package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/specify-cli/pkg/models"
)

var (
	listModelsFormat        string
	listModelsDetails       bool
	listModelsCurrent       bool
	listModelsCompatibility bool
)

// modelListing is the structured output of list-models.
type modelListing struct {
	CurrentProject *currentProject `json:"currentProject" yaml:"currentProject"`
	Models         []modelEntry    `json:"models" yaml:"models"`
	Summary        modelSummary    `json:"summary" yaml:"summary"`
}

type currentProject struct {
	Name    string         `json:"name" yaml:"name"`
	Model   models.AIModel `json:"model" yaml:"model"`
	Version string         `json:"version" yaml:"version"`
}

type modelEntry struct {
	Type          models.AIModel            `json:"type" yaml:"type"`
	Version       string                    `json:"version" yaml:"version"`
	Current       bool                      `json:"current" yaml:"current"`
	Compatible    bool                      `json:"compatible" yaml:"compatible"`
	Capabilities  models.ModelCapabilities  `json:"capabilities" yaml:"capabilities"`
	Compatibility models.ModelCompatibility `json:"compatibility" yaml:"compatibility"`
	Configuration models.ModelConfiguration `json:"configuration" yaml:"configuration"`
}

type modelSummary struct {
	Total      int `json:"total" yaml:"total"`
	Compatible int `json:"compatible" yaml:"compatible"`
}

var listModelsCmd = &cobra.Command{
	Use:     "list-models",
	Aliases: []string{"models"},
	Short:   "Show available AI models and their capabilities",
	Long: `List the AI models a project can use. The model of the current
project, if any, is marked.

Use --details for limits and features, --compatibility for CLI version
requirements, and --current to show only the project's model.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return fmt.Errorf("model registry not initialized")
		}
		if err := validateFormat(listModelsFormat, formatTable, formatJSON, formatYAML); err != nil {
			return err
		}

		listing := buildModelListing()
		if listModelsCurrent {
			var current []modelEntry
			for _, e := range listing.Models {
				if e.Current {
					current = append(current, e)
				}
			}
			if len(current) == 0 {
				return fmt.Errorf("no current project found or invalid model configuration")
			}
			listing.Models = current
		}

		if listModelsFormat != formatTable {
			return writeStructured(listModelsFormat, listing)
		}
		printModelTable(listing)
		return nil
	},
}

// buildModelListing collects every registry model, marking the model of
// the project around BasePath. Detection failure just means no project.
func buildModelListing() modelListing {
	listing := modelListing{Models: []modelEntry{}}
	if _, cfg, err := requireProject(); err == nil {
		listing.CurrentProject = &currentProject{Name: cfg.Name, Model: cfg.AIModel, Version: cfg.Version}
	}

	cliVersion := currentSettings().CLIVersion
	for _, s := range Registry.All() {
		e := modelEntry{
			Type:          s.ModelType,
			Version:       s.Version,
			Current:       listing.CurrentProject != nil && listing.CurrentProject.Model == s.ModelType,
			Compatible:    Registry.IsCompatible(s.ModelType, cliVersion),
			Capabilities:  s.Capabilities,
			Compatibility: s.Compatibility,
			Configuration: s.Configuration,
		}
		listing.Models = append(listing.Models, e)
		listing.Summary.Total++
		if e.Compatible {
			listing.Summary.Compatible++
		}
	}
	return listing
}

func printModelTable(l modelListing) {
	fmt.Println(titleStyle.Render("Available AI Models"))
	fmt.Println()
	if l.CurrentProject != nil {
		fmt.Printf("Current project: %s (%s)\n\n", sanitize(l.CurrentProject.Name), l.CurrentProject.Model)
	}

	for _, m := range l.Models {
		marker := " "
		if m.Current {
			marker = successStyle.Render("●")
		}
		fmt.Printf("%s %s %s\n", marker, headerStyle.Render(string(m.Type)), dimStyle.Render("v"+m.Version))

		if listModelsDetails {
			fmt.Printf("    Max tokens:  %d\n", m.Capabilities.MaxTokens)
			fmt.Printf("    Rate limit:  %d/min\n", m.Capabilities.RateLimit.RequestsPerMinute)
			fmt.Printf("    Features:    %d\n", len(m.Capabilities.Features))
			var enabled []string
			for _, f := range m.Capabilities.Features {
				if f.Supported {
					enabled = append(enabled, f.Name)
				}
			}
			if len(enabled) > 0 {
				fmt.Printf("    Enabled:     %s\n", strings.Join(enabled, ", "))
			}
			if listModelsCompatibility {
				compat := successStyle.Render("yes")
				if !m.Compatible {
					compat = errorStyle.Render("no")
				}
				fmt.Printf("    Compatible:  %s (min CLI %s)\n", compat, m.Compatibility.MinimumCLIVersion)
			}
		}
		if w := m.Compatibility.DeprecationWarning; w != "" {
			fmt.Printf("    %s\n", warnStyle.Render("Deprecated: "+w))
		}
	}

	if !listModelsDetails {
		infof("\n%s\n", dimStyle.Render("Use --details for more information"))
	}
	if l.CurrentProject != nil && !listModelsCurrent {
		var others []models.AIModel
		for _, m := range l.Models {
			if !m.Current {
				others = append(others, m.Type)
			}
		}
		if len(others) > 0 {
			infof("\nMigration options:\n")
			for _, m := range others {
				infof("  specify switch-model %s\n", m)
			}
		}
	}
}

func init() {
	listModelsCmd.Flags().StringVar(&listModelsFormat, "format", formatTable, "Output format: table, json or yaml")
	listModelsCmd.Flags().BoolVar(&listModelsDetails, "details", false, "Show limits and features")
	listModelsCmd.Flags().BoolVar(&listModelsCurrent, "current", false, "Show only the current project's model")
	listModelsCmd.Flags().BoolVar(&listModelsCompatibility, "compatibility", false, "Show CLI compatibility (with --details)")
	rootCmd.AddCommand(listModelsCmd)
}
