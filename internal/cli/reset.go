package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/specify-cli/internal/core"
)

var (
	resetNoBackup    bool
	resetForce       bool
	resetRepair      bool
	resetKeepSpecs   bool
	resetKeepTasks   bool
	resetDryRun      bool
	resetListBackups bool
)

// confirmInput is where confirmation answers are read from.
var confirmInput io.Reader = os.Stdin

// isInteractive reports whether prompts can be shown.
var isInteractive = interactive

var resetProjectCmd = &cobra.Command{
	Use:   "reset-project",
	Short: "Reset the project's specify state with a backup",
	Long: `Remove the project's config, task data, spec files, migration
backups and cache so the project can be initialized again.

A full-project backup is written to .specify/backups/project-backup-<ts>
first unless --no-backup is given. --keep-specs and --keep-tasks keep those
items. --repair fixes detected issues instead of resetting.

Without --force the command asks for confirmation, and refuses to run
when no terminal is attached.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Detector == nil || Resetter == nil {
			return fmt.Errorf("project resetter not initialized")
		}

		opts := core.DefaultDetectOptions()
		opts.SearchDepth = searchDepth()
		det := Detector.DetectProject(BasePath, opts)
		if !det.Found {
			fmt.Println(warnStyle.Render("No spec-kit project found; nothing to reset"))
			return nil
		}
		root, cfg := det.ProjectPath, det.Config

		if resetListBackups {
			return listProjectBackups(root)
		}

		infof("%s\n", titleStyle.Render("Project Reset"))
		if cfg != nil {
			infof("  Project: %s\n", sanitize(cfg.Name))
		}
		infof("  Path:    %s\n", root)
		if resetDryRun {
			infof("%s\n", dimStyle.Render("Dry run mode: no changes will be made"))
		}

		if resetRepair {
			return repairProject(det)
		}

		items := Resetter.PlanReset(root, cfg, core.ResetOptions{KeepSpecs: resetKeepSpecs, KeepTasks: resetKeepTasks})
		fmt.Println("\nItems to be reset:")
		for _, it := range items {
			state := errorStyle.Render("RESET")
			switch {
			case it.Keep:
				state = successStyle.Render("KEEP")
			case !it.Exists:
				state = dimStyle.Render("ABSENT")
			}
			fmt.Printf("  %-8s %s\n", state, it.Name)
			infof("           %s\n", dimStyle.Render(it.Description))
		}

		if resetDryRun {
			fmt.Println("\nDry run complete: no changes made")
			return nil
		}
		if !resetForce {
			ok, err := confirm("\nThis permanently resets the items above. Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Reset cancelled")
				return nil
			}
		}

		var backupPath string
		if !resetNoBackup {
			p, err := Resetter.CreateProjectBackup(root, cfg)
			if err != nil {
				return fmt.Errorf("creating backup: %w", err)
			}
			backupPath = p
			infof("Backup created: %s\n", backupPath)
		}

		if err := Resetter.Reset(root, cfg, core.ResetOptions{KeepSpecs: resetKeepSpecs, KeepTasks: resetKeepTasks}); err != nil {
			if backupPath != "" {
				return fmt.Errorf("%w\nbackup available for recovery at %s", err, backupPath)
			}
			return err
		}

		fmt.Printf("\n%s Project reset completed\n", successStyle.Render("✓"))
		if backupPath != "" {
			fmt.Printf("  Backup available at: %s\n", backupPath)
		}
		infof("\nNext steps:\n")
		infof("  - Run \"specify init\" to start fresh\n")
		infof("  - Run \"specify detect-project\" to verify the reset\n")
		return nil
	},
}

// repairProject fixes the fixable issues of a detected project, backing
// it up first unless --no-backup is set.
func repairProject(det core.DetectionResult) error {
	infof("\nRepair mode: fixing project issues\n")
	var fixable []string
	for _, i := range det.Issues {
		if i.Fixable {
			fixable = append(fixable, i.Message)
		}
	}
	if len(fixable) == 0 {
		fmt.Printf("%s No fixable issues found\n", successStyle.Render("✓"))
		printIssues("Issues that need manual attention:", det.Issues, true)
		return nil
	}
	fmt.Printf("Found %d fixable issue(s):\n", len(fixable))
	for _, m := range fixable {
		fmt.Printf("  - %s\n", sanitize(m))
	}
	if resetDryRun {
		fmt.Println("\nDry run complete: repairs would be applied")
		return nil
	}

	if !resetNoBackup {
		p, err := Resetter.CreateProjectBackup(det.ProjectPath, det.Config)
		if err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}
		infof("Backup created: %s\n", p)
	}
	res := Resetter.Repair(det.ProjectPath, det.Config)
	printRepair(res)
	if !res.Found || res.Config == nil {
		return fmt.Errorf("repairing project at %s failed", det.ProjectPath)
	}
	return nil
}

func listProjectBackups(root string) error {
	backups, err := Resetter.ListProjectBackups(root)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("No project backups found.")
		return nil
	}
	fmt.Printf("  %-40s %-20s %s\n", "NAME", "CREATED", "SIZE")
	for _, b := range backups {
		fmt.Printf("  %-40s %-20s %s\n", b.Name, b.CreatedAt.Local().Format("2006-01-02 15:04:05"), humanSize(b.Size))
	}
	return nil
}

// confirm asks a yes/no question on confirmInput. It fails when no
// terminal is attached so scripts must pass --force.
func confirm(question string) (bool, error) {
	if !isInteractive() {
		return false, fmt.Errorf("confirmation required; pass --force in non-interactive use")
	}
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(confirmInput)
	input, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading input: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	resetProjectCmd.Flags().BoolVar(&resetNoBackup, "no-backup", false, "Skip the full-project backup")
	resetProjectCmd.Flags().BoolVar(&resetForce, "force", false, "Reset without asking for confirmation")
	resetProjectCmd.Flags().BoolVar(&resetRepair, "repair", false, "Fix detected issues instead of resetting")
	resetProjectCmd.Flags().BoolVar(&resetKeepSpecs, "keep-specs", false, "Keep the spec files")
	resetProjectCmd.Flags().BoolVar(&resetKeepTasks, "keep-tasks", false, "Keep the task tracking data")
	resetProjectCmd.Flags().BoolVar(&resetDryRun, "dry-run", false, "Show what would be reset without changing anything")
	resetProjectCmd.Flags().BoolVar(&resetListBackups, "list-backups", false, "List existing project backups and exit")
	rootCmd.AddCommand(resetProjectCmd)
}
