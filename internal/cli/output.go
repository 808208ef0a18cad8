package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	statusPending    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusCompleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusSkipped    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	priorityCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	priorityHigh     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	priorityMedium   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	priorityLow      = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	progressFull  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	progressEmpty = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Output formats accepted by --format.
const (
	formatTable   = "table"
	formatJSON    = "json"
	formatYAML    = "yaml"
	formatSummary = "summary"
)

// configureColor turns styling off for --no-color, NO_COLOR and
// non-terminal stdout.
func configureColor(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !stdoutIsTerminal() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// interactive reports whether both stdin and stdout are terminals.
func interactive() bool {
	return stdoutIsTerminal() && term.IsTerminal(int(os.Stdin.Fd()))
}

// sanitize strips terminal escape sequences from text read from project
// files before it is rendered.
func sanitize(s string) string {
	return stripansi.Strip(s)
}

// infof prints progress and status lines; --quiet suppresses them.
func infof(format string, args ...any) {
	if quietFlag {
		return
	}
	fmt.Printf(format, args...)
}

// writeStructured prints v as JSON or YAML.
func writeStructured(format string, v any) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		fmt.Println(string(data))
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		fmt.Print(string(data))
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	return nil
}

// validateFormat checks a --format value against the allowed set.
func validateFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(allowed, ", "))
}

func statusIcon(s models.TaskStatus) string {
	switch s {
	case models.StatusCompleted:
		return statusCompleted.Render("✓")
	case models.StatusInProgress:
		return statusInProgress.Render("●")
	case models.StatusFailed:
		return statusFailed.Render("✗")
	case models.StatusSkipped:
		return statusSkipped.Render("↷")
	default:
		return statusPending.Render("○")
	}
}

func styleForPriority(p models.TaskPriority) lipgloss.Style {
	switch p {
	case models.PriorityCritical:
		return priorityCritical
	case models.PriorityHigh:
		return priorityHigh
	case models.PriorityMedium:
		return priorityMedium
	default:
		return priorityLow
	}
}

func severityLabel(s models.Severity) string {
	label := fmt.Sprintf("[%s]", strings.ToUpper(string(s)))
	switch s {
	case models.SeverityError:
		return errorStyle.Render(label)
	case models.SeverityWarning:
		return warnStyle.Render(label)
	default:
		return dimStyle.Render(label)
	}
}

// progressBar renders percent (0..100) as a bar width cells wide.
func progressBar(percent, width int) string {
	if width <= 0 {
		return ""
	}
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	return progressFull.Render(strings.Repeat("█", filled)) +
		progressEmpty.Render(strings.Repeat("░", width-filled))
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
