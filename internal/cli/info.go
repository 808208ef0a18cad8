package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/specify-cli/internal/observability"
)

var (
	infoEvents    int
	infoEventType string
	infoSinceDays int
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show CLI information and recent project activity",
	Long: `Show the CLI version, the available commands and, inside a
project, activity metrics and the most recent entries of
.specify/events.jsonl.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(titleStyle.Render(fmt.Sprintf("Specify CLI %s", appVersion)))
		fmt.Println()
		fmt.Println(headerStyle.Render("Commands"))
		for _, c := range rootCmd.Commands() {
			if c.Hidden || c.Name() == "help" {
				continue
			}
			fmt.Printf("  %-16s %s\n", c.Name(), c.Short)
		}
		fmt.Println()
		fmt.Println(headerStyle.Render("Examples"))
		fmt.Println("  specify switch claude")
		fmt.Println("  specify models --details")
		fmt.Println("  specify detect --repair")
		fmt.Println("  specify track-tasks enable --sidebar")

		if MetricsCalc != nil {
			since := time.Now().UTC().AddDate(0, 0, -infoSinceDays)
			m, err := MetricsCalc.Calculate(since)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(headerStyle.Render(fmt.Sprintf("Activity (last %d days)", infoSinceDays)))
			fmt.Printf("  Migrations:  %d started, %d completed, %d failed, %d rolled back\n",
				m.MigrationsStarted, m.MigrationsCompleted, m.MigrationsFailed, m.MigrationsRolledBack)
			fmt.Printf("  Repairs:     %d\n", m.Repairs)
			fmt.Printf("  Resets:      %d\n", m.Resets)
			fmt.Printf("  Task saves:  %d\n", m.TaskSaves)
		}

		if EventLog != nil && infoEvents > 0 {
			events, err := EventLog.Read(observability.EventFilter{Type: infoEventType, Limit: infoEvents})
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(headerStyle.Render("Recent Events"))
			if len(events) == 0 {
				fmt.Println(dimStyle.Render("  No events recorded."))
			}
			for _, e := range events {
				fmt.Printf("  %s %-22s %s\n",
					dimStyle.Render(e.Time.Local().Format("2006-01-02 15:04:05")),
					eventLevelStyle(e.Level).Render(e.Type),
					sanitize(e.Message))
			}
		}

		fmt.Println()
		fmt.Println(dimStyle.Render("Use --help with any command for detailed usage information"))
		return nil
	},
}

func eventLevelStyle(level string) lipgloss.Style {
	switch level {
	case observability.LevelError:
		return errorStyle
	case observability.LevelWarn:
		return warnStyle
	default:
		return successStyle
	}
}

func init() {
	infoCmd.Flags().IntVar(&infoEvents, "events", 10, "Number of recent events to show (0 hides them)")
	infoCmd.Flags().StringVar(&infoEventType, "type", "", "Only show events of this type (e.g. migration.completed)")
	infoCmd.Flags().IntVar(&infoSinceDays, "days", 30, "Window for activity metrics, in days")
	rootCmd.AddCommand(infoCmd)
}
