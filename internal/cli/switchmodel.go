package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

var (
	switchBackup     bool
	switchNoBackup   bool
	switchDryRun     bool
	switchForce      bool
	switchNoValidate bool
)

var switchModelCmd = &cobra.Command{
	Use:     "switch-model <model>",
	Aliases: []string{"switch"},
	Short:   "Switch the project's AI model without losing progress",
	Long: `Migrate the current project to another AI model.

The switch backs up config.json and the spec files, rewrites the config,
migrates the specs and validates the result. If any step fails the backup
is restored and the project is left on its original model.

Use --dry-run to preview the migration without touching the project.`,
	Example: `  specify switch-model gemini
  specify switch-model claude --dry-run
  specify switch claude --force --no-backup`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Switcher == nil || Registry == nil {
			return fmt.Errorf("model switcher not initialized")
		}

		target := models.AIModel(strings.ToLower(strings.TrimSpace(args[0])))
		if !Registry.IsKnown(target) {
			return fmt.Errorf("invalid target model %q: must be one of %s", args[0], joinModels(Registry.Models()))
		}

		_, cfg, err := requireProject()
		if err != nil {
			return err
		}

		infof("Switching AI model...\n")
		infof("  Current model: %s\n", cfg.AIModel)
		infof("  Target model:  %s\n", target)

		if cfg.AIModel == target {
			fmt.Println(warnStyle.Render(fmt.Sprintf("Project is already using %s", target)))
			return nil
		}

		if !switchNoValidate && !switchForce && Configs != nil {
			v := Configs.ValidateConfig(cfg.ConfigPath)
			if !v.Valid {
				return fmt.Errorf("project validation failed (use --force to proceed anyway):\n  - %s",
					strings.Join(v.Errors, "\n  - "))
			}
			printWarnings(v.Warnings)
		}

		if switchDryRun {
			infof("%s\n", dimStyle.Render("Dry run mode: no changes will be made"))
		}

		res := Switcher.SwitchModel(cfg, core.SwitchOptions{
			TargetModel:    target,
			CreateBackup:   switchBackup && !switchNoBackup,
			DryRun:         switchDryRun,
			Force:          switchForce,
			SkipValidation: switchNoValidate,
		})
		if !res.Success {
			if res.BackupPath != "" {
				fmt.Printf("Backup available at: %s\n", res.BackupPath)
			}
			if res.Err != nil {
				return fmt.Errorf("switching to %s: %w", target, res.Err)
			}
			return fmt.Errorf("switching to %s: %s", target, res.ErrorMessage)
		}

		if switchDryRun {
			fmt.Printf("%s Dry run completed (migration %s)\n", successStyle.Render("✓"), res.MigrationID)
			if res.Migration != nil {
				infof("Planned steps:\n")
				for _, s := range res.Migration.Steps {
					infof("  %d. %s\n", s.Order, s.Name)
				}
			}
		} else {
			fmt.Printf("%s Switched to %s\n", successStyle.Render("✓"), target)
			infof("  Migration ID: %s\n", res.MigrationID)
			if res.BackupPath != "" {
				infof("  Backup created: %s\n", res.BackupPath)
			}
		}
		printWarnings(res.Warnings)

		if !switchDryRun {
			infof("\nNext steps:\n")
			infof("  - Test the project to make sure everything still works\n")
			infof("  - Run \"specify list-models --details\" to see %s capabilities\n", target)
		}
		return nil
	},
}

func printWarnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Println(warnStyle.Render("Warnings:"))
	for _, w := range warnings {
		fmt.Printf("  - %s\n", w)
	}
}

func joinModels(ms []models.AIModel) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func init() {
	switchModelCmd.Flags().BoolVar(&switchBackup, "backup", true, "Back up the project before switching")
	switchModelCmd.Flags().BoolVar(&switchNoBackup, "no-backup", false, "Skip the backup (disables automatic rollback)")
	switchModelCmd.Flags().BoolVar(&switchDryRun, "dry-run", false, "Show what would change without changing anything")
	switchModelCmd.Flags().BoolVar(&switchForce, "force", false, "Switch even if validation fails")
	switchModelCmd.Flags().BoolVar(&switchNoValidate, "no-validate", false, "Skip validation checks")
	rootCmd.AddCommand(switchModelCmd)
}
