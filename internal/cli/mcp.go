package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	specifymcp "github.com/valter-silva-au/specify-cli/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the specify MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the specify MCP server on stdio",
	Long: `Start the specify MCP server on stdio transport.

The server exposes project tools that AI coding assistants can call:
detect_project, list_models, list_tasks, get_ready_tasks, get_task_stats,
switch_model and get_metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Detector == nil || Switcher == nil {
			return fmt.Errorf("services not initialized")
		}

		srv := specifymcp.NewServer(specifymcp.Deps{
			Detector:    Detector,
			Switcher:    Switcher,
			Registry:    Registry,
			NewTracker:  NewTracker,
			SearchDepth: searchDepth(),
			ProjectRoot: BasePath,
			Metrics:     MetricsCalc,
		}, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
