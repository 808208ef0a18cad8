package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// Global flags.
var (
	debugFlag   bool
	noColorFlag bool
	quietFlag   bool
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "specify",
	Short: "Spec-driven development toolkit with multi-model AI support",
	Long: `specify manages spec-kit projects: it detects and repairs the project
layout, switches the project between AI models (claude, gemini, copilot)
with backup and rollback, resets projects, and tracks implementation tasks.

Run "specify init" to create a project, then "specify detect-project" to
check it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(debugFlag, quietFlag)
		configureColor(noColorFlag)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("specify %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Only print results and errors")
	rootCmd.AddCommand(versionCmd)
}

// configureLogging installs the default slog handler on stderr. Debug
// wins over quiet.
func configureLogging(debug, quiet bool) {
	level := slog.LevelWarn
	switch {
	case debug:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
