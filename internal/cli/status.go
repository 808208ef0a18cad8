package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show project and task status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(titleStyle.Render("Specify Project Status"))
		fmt.Println()

		root, cfg, err := requireProject()
		if err != nil {
			fmt.Println(dimStyle.Render(`Run "specify detect-project" for more details`))
			return err
		}

		fmt.Println(headerStyle.Render("Project"))
		fmt.Printf("  Name:     %s\n", sanitize(cfg.Name))
		fmt.Printf("  AI model: %s\n", cfg.AIModel)
		fmt.Printf("  Version:  %s\n", sanitize(cfg.Version))
		fmt.Printf("  Path:     %s\n", root)

		fmt.Println()
		fmt.Println(headerStyle.Render("Tasks"))
		tr, err := openTracker(cfg)
		if err != nil {
			fmt.Println(dimStyle.Render("  No task data available"))
		} else {
			stats := tr.GetTaskStats()
			_ = tr.Close()
			if stats.Total == 0 {
				fmt.Println(dimStyle.Render("  No tasks tracked yet"))
			} else {
				printStats(stats)
				fmt.Printf("\n  %s %d%%\n", progressBar(stats.PercentComplete, 20), stats.PercentComplete)
			}
		}

		if Registry != nil {
			if s, ok := Registry.Get(cfg.AIModel); ok {
				fmt.Println()
				fmt.Println(headerStyle.Render("AI Model"))
				fmt.Printf("  Current:    %s v%s\n", s.ModelType, s.Version)
				fmt.Printf("  Max tokens: %d\n", s.Capabilities.MaxTokens)
				fmt.Printf("  Features:   %d available\n", len(s.Capabilities.Features))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
