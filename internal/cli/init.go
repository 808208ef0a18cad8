package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a spec-kit project",
	Long: `Initialize a new or existing directory as a spec-kit project: the
.specify directory with its scripts and state folders, the specs directory,
a fresh config.json and starter README and .gitignore files.

Files and directories that already exist are skipped. An existing
config.json is only replaced with --force.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ProjectInit == nil {
			return fmt.Errorf("project initializer not initialized")
		}

		target := BasePath
		if len(args) > 0 {
			target = args[0]
		}
		if target == "" {
			target = "."
		}
		absPath, err := filepath.Abs(target)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		name, _ := cmd.Flags().GetString("name")
		ai, _ := cmd.Flags().GetString("ai")
		force, _ := cmd.Flags().GetBool("force")

		result, err := ProjectInit.Init(core.InitOptions{
			TargetDir: absPath,
			Name:      name,
			AIModel:   models.AIModel(strings.ToLower(ai)),
			Force:     force,
		})
		if err != nil {
			return err
		}

		if len(result.Created) > 0 {
			infof("Created:\n")
			for _, p := range result.Created {
				infof("  %s\n", relTo(absPath, p))
			}
		}
		if len(result.Skipped) > 0 {
			infof("Skipped (already exist):\n")
			for _, p := range result.Skipped {
				infof("  %s\n", relTo(absPath, p))
			}
		}

		fmt.Printf("\n%s Project %q initialized at %s (AI model: %s)\n",
			successStyle.Render("✓"), result.Config.Name, absPath, result.Config.AIModel)
		return nil
	},
}

// relTo renders p relative to base, falling back to p.
func relTo(base, p string) string {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return p
	}
	return rel
}

func init() {
	initCmd.Flags().String("name", "", "Project name (defaults to directory basename)")
	initCmd.Flags().String("ai", string(models.ModelClaude), "AI model the project starts with")
	initCmd.Flags().Bool("force", false, "Replace an existing config.json")
	rootCmd.AddCommand(initCmd)
}
