package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

var (
	detectAutoFix       bool
	detectRepair        bool
	detectVerbose       bool
	detectDepth         int
	detectIncludeDrafts bool
	detectNoValidate    bool
	detectFormat        string
)

// detectReport is the structured output of detect-project.
type detectReport struct {
	Detection core.DetectionResult  `json:"detection" yaml:"detection"`
	Repair    *core.DetectionResult `json:"repair,omitempty" yaml:"repair,omitempty"`
}

var detectProjectCmd = &cobra.Command{
	Use:     "detect-project",
	Aliases: []string{"detect"},
	Short:   "Detect and validate the spec-kit project",
	Long: `Search upward from the working directory for a spec-kit project,
then check its config, directories and spec files.

--auto-fix repairs a broken config during detection. --repair fixes every
fixable issue afterwards. The command fails when no project is found or
errors remain.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Detector == nil {
			return fmt.Errorf("project detector not initialized")
		}
		if err := validateFormat(detectFormat, formatTable, formatJSON, formatYAML); err != nil {
			return err
		}
		depth := detectDepth
		if !cmd.Flags().Changed("depth") {
			depth = searchDepth()
		}
		if depth < 0 {
			return fmt.Errorf("invalid --depth %d: must be >= 0", depth)
		}

		opts := core.DetectOptions{
			SearchDepth:    depth,
			ValidateConfig: !detectNoValidate,
			AutoFix:        detectAutoFix,
			IncludeDrafts:  detectIncludeDrafts,
		}
		if detectFormat == formatTable {
			infof("Detecting spec-kit projects...\n")
			if detectVerbose {
				infof("%s\n", dimStyle.Render(fmt.Sprintf("Search path: %s, depth: %d, auto-fix: %t", BasePath, depth, detectAutoFix)))
			}
		}

		report := detectReport{Detection: Detector.DetectProject(BasePath, opts)}
		res := report.Detection
		if detectRepair && res.Found && hasFixable(res.Issues) {
			repaired := Detector.RepairProject(res.ProjectPath, res.Config)
			report.Repair = &repaired
		}

		if detectFormat != formatTable {
			if err := writeStructured(detectFormat, report); err != nil {
				return err
			}
		} else {
			printDetection(res)
			if report.Repair != nil {
				printRepair(*report.Repair)
			}
		}

		if !res.Found {
			return errNoProject
		}
		final := res
		if report.Repair != nil {
			final = *report.Repair
		}
		if final.HasErrors() {
			return fmt.Errorf("project at %s has unresolved errors", res.ProjectPath)
		}
		return nil
	},
}

func hasFixable(issues []models.Issue) bool {
	for _, i := range issues {
		if i.Fixable {
			return true
		}
	}
	return false
}

func printDetection(res core.DetectionResult) {
	if !res.Found {
		fmt.Println(warnStyle.Render("No spec-kit project detected"))
		printIssues("Detection issues:", res.Issues, true)
		printSuggestions(res.Suggestions)
		return
	}

	fmt.Printf("%s Spec-kit project detected\n", successStyle.Render("✓"))
	fmt.Printf("  Project path: %s\n", res.ProjectPath)
	if cfg := res.Config; cfg != nil {
		fmt.Println()
		fmt.Println(headerStyle.Render("Project Information"))
		fmt.Printf("  Name:           %s\n", sanitize(cfg.Name))
		fmt.Printf("  AI model:       %s\n", cfg.AIModel)
		fmt.Printf("  Version:        %s\n", sanitize(cfg.Version))
		fmt.Printf("  Initialized:    %s\n", yesNo(cfg.IsInitialized))
		fmt.Printf("  Spec directory: %s\n", relTo(res.ProjectPath, cfg.SpecDirectory))
		if n := len(cfg.MigrationHistory); n > 0 {
			fmt.Printf("  Migrations:     %d\n", n)
			if detectVerbose {
				for _, m := range cfg.MigrationHistory {
					icon := successStyle.Render("✓")
					if !m.Success {
						icon = errorStyle.Render("✗")
					}
					fmt.Printf("    %s %s -> %s (%s)\n", icon, m.FromModel, m.ToModel, m.Timestamp.Format("2006-01-02"))
				}
			}
		}
	}

	var errs, warns, infos []models.Issue
	for _, i := range res.Issues {
		switch i.Severity {
		case models.SeverityError:
			errs = append(errs, i)
		case models.SeverityWarning:
			warns = append(warns, i)
		default:
			infos = append(infos, i)
		}
	}
	printIssues("Errors:", errs, true)
	printIssues("Warnings:", warns, true)
	printIssues("Information:", infos, detectVerbose)

	if len(errs)+len(warns) > 0 && !detectRepair {
		fixable := 0
		for _, i := range res.Issues {
			if i.Fixable {
				fixable++
			}
		}
		if fixable > 0 {
			fmt.Printf("\n%d issue(s) can be fixed automatically; run with --repair\n", fixable)
		}
	}
	printSuggestions(res.Suggestions)

	if res.Config != nil && len(res.Issues) == 0 {
		infof("\nNext steps:\n")
		infof("  - \"specify list-models\" shows the available AI models\n")
		infof("  - \"specify switch-model <model>\" changes the project's model\n")
		infof("  - \"specify track-tasks enable\" turns on task tracking\n")
	}
}

func printRepair(res core.DetectionResult) {
	fmt.Println()
	if !res.Found || res.Config == nil {
		fmt.Println(errorStyle.Render("Project repair failed"))
		printIssues("Issues:", res.Issues, true)
		return
	}
	fmt.Printf("%s Project repair completed\n", successStyle.Render("✓"))
	if len(res.Suggestions) > 0 {
		fmt.Println("Repair actions taken:")
		for _, s := range res.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	}
	printIssues("Remaining issues:", res.Issues, true)
}

func printIssues(heading string, issues []models.Issue, show bool) {
	if !show || len(issues) == 0 {
		return
	}
	fmt.Printf("\n%s\n", heading)
	for _, i := range issues {
		fmt.Printf("  %s %s\n", severityLabel(i.Severity), sanitize(i.Message))
		if i.Path != "" {
			fmt.Printf("    %s\n", dimStyle.Render("Path: "+filepath.Clean(i.Path)))
		}
		if i.Fixable && detectVerbose {
			fmt.Printf("    %s\n", dimStyle.Render("Fixable: yes"))
		}
	}
}

func printSuggestions(suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Println("\nSuggestions:")
	for _, s := range suggestions {
		fmt.Printf("  - %s\n", s)
	}
}

func yesNo(b bool) string {
	if b {
		return successStyle.Render("yes")
	}
	return warnStyle.Render("no")
}

func init() {
	detectProjectCmd.Flags().BoolVar(&detectAutoFix, "auto-fix", false, "Repair a broken config during detection")
	detectProjectCmd.Flags().BoolVar(&detectRepair, "repair", false, "Fix every fixable issue after detection")
	detectProjectCmd.Flags().BoolVarP(&detectVerbose, "verbose", "v", false, "Show informational issues and migration history")
	detectProjectCmd.Flags().IntVarP(&detectDepth, "depth", "d", 5, "How many parent directories to search")
	detectProjectCmd.Flags().BoolVar(&detectIncludeDrafts, "include-drafts", false, "Include draft specifications in validation")
	detectProjectCmd.Flags().BoolVar(&detectNoValidate, "no-validate", false, "Skip config validation")
	detectProjectCmd.Flags().StringVar(&detectFormat, "format", formatTable, "Output format: table, json or yaml")
	rootCmd.AddCommand(detectProjectCmd)
}
