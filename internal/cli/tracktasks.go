package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

var (
	trackSidebar       bool
	trackFormat        string
	trackFilter        string
	trackWatch         bool
	trackExport        string
	trackForce         bool
	trackCompletedOnly bool
)

// startSidebar runs the live task panel. Tests replace it.
var startSidebar = runSidebar

var trackTasksCmd = &cobra.Command{
	Use:   "track-tasks",
	Short: "Track implementation tasks of the project",
	Long: `Manage task tracking for the current project.

Tasks live in .specify/tasks.json. Use "enable --sidebar" for a live
terminal panel, "list" and "stats" for reports, and "clear" to drop task
data.`,
}

var trackEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable task tracking",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, cfg, err := requireProject()
		if err != nil {
			return err
		}
		if err := core.SaveTrackingPrefs(root, core.TrackingPrefs{Enabled: true, Sidebar: trackSidebar}); err != nil {
			return err
		}
		if trackSidebar {
			fmt.Printf("%s Task tracking sidebar enabled\n", successStyle.Render("✓"))
		} else {
			fmt.Printf("%s Task tracking enabled\n", successStyle.Render("✓"))
			infof("%s\n", dimStyle.Render("Use --sidebar for the live task panel"))
		}

		if !trackSidebar && !trackWatch {
			return nil
		}
		if !isInteractive() {
			return fmt.Errorf("the task sidebar needs a terminal")
		}
		tr, err := openTracker(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = tr.Close() }()
		return startSidebar(cfg.Name, tr, core.ParseFilter(trackFilter))
	},
}

var trackDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable task tracking",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _, err := requireProject()
		if err != nil {
			return err
		}
		if err := core.SaveTrackingPrefs(root, core.TrackingPrefs{}); err != nil {
			return err
		}
		fmt.Printf("%s Task tracking disabled\n", successStyle.Render("✓"))
		return nil
	},
}

// trackStatus is the structured output of track-tasks status.
type trackStatus struct {
	Tracking core.TrackingPrefs `json:"tracking" yaml:"tracking"`
	Stats    core.TaskStats     `json:"stats" yaml:"stats"`
	Ready    []string           `json:"ready" yaml:"ready"`
	Blocked  []string           `json:"blocked" yaml:"blocked"`
	Parallel []string           `json:"parallel" yaml:"parallel"`
}

var trackStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progress with ready, blocked and parallel tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(trackFormat, formatTable, formatJSON, formatYAML, formatSummary); err != nil {
			return err
		}
		root, cfg, err := requireProject()
		if err != nil {
			return err
		}
		prefs, err := core.LoadTrackingPrefs(root)
		if err != nil {
			return err
		}
		tr, err := openTracker(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = tr.Close() }()

		stats := tr.GetTaskStats()
		ready, blocked, parallel := tr.GetReadyTasks(), tr.GetBlockedTasks(), tr.GetParallelTasks()

		switch trackFormat {
		case formatJSON, formatYAML:
			return writeStructured(trackFormat, trackStatus{
				Tracking: prefs,
				Stats:    stats,
				Ready:    taskIDs(ready),
				Blocked:  taskIDs(blocked),
				Parallel: taskIDs(parallel),
			})
		case formatSummary:
			fmt.Println(summaryLine(stats))
			return nil
		}

		fmt.Println(titleStyle.Render("Task Tracking Status"))
		fmt.Printf("\nTracking: %s (sidebar: %s)\n\n", yesNo(prefs.Enabled), yesNo(prefs.Sidebar))
		printStats(stats)
		fmt.Printf("\n  %s %d%%\n\n", progressBar(stats.PercentComplete, 30), stats.PercentComplete)

		printTaskTitles(successStyle.Render(fmt.Sprintf("Ready to start (%d):", len(ready))), ready, 5, nil)
		printTaskTitles(errorStyle.Render(fmt.Sprintf("Blocked (%d):", len(blocked))), blocked, 3, func(t models.TaskState) string {
			return "waiting for: " + strings.Join(t.Dependencies, ", ")
		})
		printTaskTitles(headerStyle.Render(fmt.Sprintf("Parallel execution available (%d):", len(parallel))), parallel, 5, nil)
		return nil
	},
}

var trackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List the project's tasks. --filter takes a status, category or
priority name, or any other text to search titles, descriptions and ids.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(trackFormat, formatTable, formatJSON, formatYAML, formatSummary); err != nil {
			return err
		}
		_, cfg, err := requireProject()
		if err != nil {
			return err
		}
		tr, err := openTracker(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = tr.Close() }()

		filter := core.ParseFilter(trackFilter)
		if trackWatch {
			if !isInteractive() {
				return fmt.Errorf("watch mode needs a terminal")
			}
			return startSidebar(cfg.Name, tr, filter)
		}

		tasks := tr.GetFilteredTasks(filter)
		if err := displayTasks(tasks, tr.GetTaskStats()); err != nil {
			return err
		}
		if trackExport != "" {
			if err := core.ExportTasks(trackExport, tasks, time.Now()); err != nil {
				return err
			}
			infof("\nTasks exported to %s\n", trackExport)
		}
		return nil
	},
}

var trackClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove task tracking data",
	Long: `Remove every tracked task, or only completed ones with
--completed-only. Asks for confirmation unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := requireProject()
		if err != nil {
			return err
		}
		tr, err := openTracker(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = tr.Close() }()

		stats := tr.GetTaskStats()
		if stats.Total == 0 {
			fmt.Println("No tasks to clear.")
			return nil
		}

		if trackCompletedOnly {
			removed := tr.ClearCompleted()
			if err := tr.Save(); err != nil {
				return err
			}
			fmt.Printf("%s Cleared %d completed task(s)\n", successStyle.Render("✓"), removed)
			return nil
		}

		if !trackForce {
			ok, err := confirm(fmt.Sprintf("This removes all task tracking data (%d tasks). Continue?", stats.Total))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Clear cancelled")
				return nil
			}
		}
		if err := tr.Reset(); err != nil {
			return err
		}
		fmt.Printf("%s Task tracking data cleared (%d tasks removed, %d completed)\n",
			successStyle.Render("✓"), stats.Total, stats.Completed)
		return nil
	},
}

// trackStats is the structured output of track-tasks stats.
type trackStats struct {
	Stats      core.TaskStats `json:"stats" yaml:"stats"`
	ByCategory map[string]int `json:"categoryStats" yaml:"categoryStats"`
	ByPriority map[string]int `json:"priorityStats" yaml:"priorityStats"`
}

var trackStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task statistics by category and priority",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(trackFormat, formatTable, formatJSON, formatYAML, formatSummary); err != nil {
			return err
		}
		_, cfg, err := requireProject()
		if err != nil {
			return err
		}
		tr, err := openTracker(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = tr.Close() }()

		out := trackStats{Stats: tr.GetTaskStats(), ByCategory: map[string]int{}, ByPriority: map[string]int{}}
		for _, t := range tr.GetAllTasks() {
			out.ByCategory[string(t.Metadata.Category)]++
			out.ByPriority[string(t.Priority)]++
		}

		switch trackFormat {
		case formatJSON, formatYAML:
			return writeStructured(trackFormat, out)
		case formatSummary:
			fmt.Println(summaryLine(out.Stats))
			return nil
		}

		fmt.Println(titleStyle.Render("Task Statistics"))
		fmt.Println()
		fmt.Println(headerStyle.Render("Overall"))
		fmt.Printf("  Total:           %d\n", out.Stats.Total)
		fmt.Printf("  Completion rate: %d%%\n", out.Stats.PercentComplete)
		fmt.Printf("  Active:          %d\n", out.Stats.InProgress)
		fmt.Printf("  Failed:          %d\n", out.Stats.Failed)

		fmt.Println()
		fmt.Println(headerStyle.Render("By Category"))
		for _, c := range models.TaskCategories {
			if n := out.ByCategory[string(c)]; n > 0 {
				fmt.Printf("  %-16s %d\n", c, n)
			}
		}
		fmt.Println()
		fmt.Println(headerStyle.Render("By Priority"))
		for _, p := range models.TaskPriorities {
			if n := out.ByPriority[string(p)]; n > 0 {
				fmt.Printf("  %s %d\n", styleForPriority(p).Render(fmt.Sprintf("%-16s", p)), n)
			}
		}
		return nil
	},
}

// displayTasks renders tasks in the --format style.
func displayTasks(tasks []models.TaskState, stats core.TaskStats) error {
	switch trackFormat {
	case formatJSON, formatYAML:
		if tasks == nil {
			tasks = []models.TaskState{}
		}
		return writeStructured(trackFormat, tasks)
	case formatSummary:
		printSummary(tasks)
		fmt.Println(summaryLine(stats))
		return nil
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}
	fmt.Printf("%s\n\n", titleStyle.Render(fmt.Sprintf("Task List (%d tasks)", len(tasks))))
	for _, t := range tasks {
		fmt.Printf("%s %s %s\n", statusIcon(t.Status), dimStyle.Render(sanitize(t.ID)), sanitize(t.Title))
		if t.Description != "" {
			fmt.Printf("   %s\n", dimStyle.Render(sanitize(t.Description)))
		}
		fmt.Printf("   Priority: %s | Category: %s | Progress: %d%%\n",
			styleForPriority(t.Priority).Render(string(t.Priority)), t.Metadata.Category, t.Progress.Percentage)
		if t.Metadata.ErrorMessage != "" {
			fmt.Printf("   %s %s\n", errorStyle.Render("Error:"), sanitize(t.Metadata.ErrorMessage))
		}
		if len(t.Dependencies) > 0 {
			fmt.Printf("   %s %s\n", dimStyle.Render("Depends on:"), strings.Join(t.Dependencies, ", "))
		}
		fmt.Println()
	}
	return nil
}

// printSummary groups task titles under their status.
func printSummary(tasks []models.TaskState) {
	byStatus := make(map[models.TaskStatus][]models.TaskState)
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}
	for _, s := range models.TaskStatuses {
		group := byStatus[s]
		if len(group) == 0 {
			continue
		}
		fmt.Printf("%s %s (%d)\n", statusIcon(s), strings.ToUpper(string(s)), len(group))
		for _, t := range group {
			fmt.Printf("   - %s\n", sanitize(t.Title))
		}
		fmt.Println()
	}
}

// summaryLine is the one-line progress indicator.
func summaryLine(s core.TaskStats) string {
	return dimStyle.Render(fmt.Sprintf("[Tasks: %d%% | ✓%d ●%d ○%d ✗%d]",
		s.PercentComplete, s.Completed, s.InProgress, s.Pending, s.Failed))
}

func printStats(s core.TaskStats) {
	fmt.Printf("  Total:       %d\n", s.Total)
	fmt.Printf("  Completed:   %s (%d%%)\n", statusCompleted.Render(fmt.Sprint(s.Completed)), s.PercentComplete)
	fmt.Printf("  In progress: %s\n", statusInProgress.Render(fmt.Sprint(s.InProgress)))
	fmt.Printf("  Pending:     %s\n", statusPending.Render(fmt.Sprint(s.Pending)))
	if s.Failed > 0 {
		fmt.Printf("  Failed:      %s\n", statusFailed.Render(fmt.Sprint(s.Failed)))
	}
	if s.EstimatedTimeRemainingMs > 0 {
		fmt.Printf("  Estimated time remaining: %s\n", time.Duration(s.EstimatedTimeRemainingMs)*time.Millisecond)
	}
}

// printTaskTitles lists up to limit task titles under heading.
func printTaskTitles(heading string, tasks []models.TaskState, limit int, detail func(models.TaskState) string) {
	if len(tasks) == 0 {
		return
	}
	fmt.Println(heading)
	for i, t := range tasks {
		if i == limit {
			fmt.Printf("  %s\n", dimStyle.Render(fmt.Sprintf("... and %d more", len(tasks)-limit)))
			break
		}
		fmt.Printf("  - %s\n", sanitize(t.Title))
		if detail != nil {
			fmt.Printf("    %s\n", dimStyle.Render(detail(t)))
		}
	}
	fmt.Println()
}

func taskIDs(tasks []models.TaskState) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}

func init() {
	pf := trackTasksCmd.PersistentFlags()
	pf.StringVarP(&trackFormat, "format", "f", formatTable, "Output format: table, json, yaml or summary")
	pf.StringVar(&trackFilter, "filter", "", "Filter by status, category, priority or search text")
	pf.BoolVarP(&trackWatch, "watch", "w", false, "Keep the task display updated")

	trackEnableCmd.Flags().BoolVar(&trackSidebar, "sidebar", false, "Show the live task sidebar")
	trackListCmd.Flags().StringVar(&trackExport, "export", "", "Export the listed tasks to a JSON file")
	trackClearCmd.Flags().BoolVar(&trackForce, "force", false, "Clear without asking for confirmation")
	trackClearCmd.Flags().BoolVar(&trackCompletedOnly, "completed-only", false, "Only remove completed tasks")

	trackTasksCmd.AddCommand(trackEnableCmd, trackDisableCmd, trackStatusCmd, trackListCmd, trackClearCmd, trackStatsCmd)
	rootCmd.AddCommand(trackTasksCmd)
}
