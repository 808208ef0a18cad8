// Package mcp provides an MCP (Model Context Protocol) server that exposes
// spec-kit project detection, model switching and task tracking as tools
// for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/specify-cli/internal/core"
	"github.com/valter-silva-au/specify-cli/internal/observability"
	"github.com/valter-silva-au/specify-cli/pkg/models"
)

// TrackerFactory opens a TaskTracker for a project config. The server
// closes every tracker it opens.
type TrackerFactory func(cfg *models.ProjectConfig) core.TaskTracker

// Deps holds the services the MCP tools call into.
type Deps struct {
	Detector    core.ProjectDetector
	Switcher    core.ModelSwitcher
	Registry    *models.ModelRegistry
	NewTracker  TrackerFactory
	SearchDepth int
	// ProjectRoot is the default start path when a tool call omits one.
	ProjectRoot string
	// Metrics may be nil when no event log is available.
	Metrics observability.MetricsCalculator
}

// Server wraps specify services and exposes them as MCP tools.
type Server struct {
	server *gomcp.Server
	deps   Deps
}

// NewServer creates a new MCP server over deps.
func NewServer(deps Deps, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if deps.Registry == nil {
		deps.Registry = models.DefaultModelRegistry()
	}
	if deps.NewTracker == nil {
		deps.NewTracker = func(cfg *models.ProjectConfig) core.TaskTracker {
			return core.NewTaskTracker(cfg, core.TrackerOptions{Debounce: time.Second})
		}
	}

	s := &Server{deps: deps}
	s.server = gomcp.NewServer(&gomcp.Implementation{Name: "specify", Version: version}, nil)
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type projectInput struct {
	Path string `json:"path,omitempty" jsonschema:"directory to start the project search from; defaults to the server's working directory"`
}

type detectProjectInput struct {
	Path          string `json:"path,omitempty" jsonschema:"directory to start the project search from"`
	AutoFix       bool   `json:"auto_fix,omitempty" jsonschema:"repair fixable issues while detecting"`
	IncludeDrafts bool   `json:"include_drafts,omitempty" jsonschema:"treat an empty spec directory as expected"`
}

type issueOutput struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Fixable  bool   `json:"fixable"`
}

type detectProjectOutput struct {
	Found       bool          `json:"found"`
	ProjectPath string        `json:"project_path,omitempty"`
	ProjectID   string        `json:"project_id,omitempty"`
	Name        string        `json:"name,omitempty"`
	AIModel     string        `json:"ai_model,omitempty"`
	Issues      []issueOutput `json:"issues"`
	Suggestions []string      `json:"suggestions"`
}

type listModelsInput struct{}

type modelOutput struct {
	Model             string   `json:"model"`
	Version           string   `json:"version"`
	MaxTokens         int      `json:"max_tokens"`
	Formats           []string `json:"formats"`
	Features          []string `json:"features"`
	MigrationSupport  bool     `json:"migration_support"`
	MinimumCLIVersion string   `json:"minimum_cli_version"`
}

type listModelsOutput struct {
	Models []modelOutput `json:"models"`
	Count  int           `json:"count"`
}

type listTasksInput struct {
	Path   string `json:"path,omitempty" jsonschema:"directory to start the project search from"`
	Filter string `json:"filter,omitempty" jsonschema:"a status, category or priority name, or free text to search titles and descriptions"`
}

type taskOutput struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	Priority     string   `json:"priority"`
	Category     string   `json:"category"`
	Progress     int      `json:"progress"`
	Tags         []string `json:"tags,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	BlockedBy    []string `json:"blocked_by,omitempty"`
	IsParallel   bool     `json:"is_parallel"`
	Error        string   `json:"error,omitempty"`
	Updated      string   `json:"updated"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type taskStatsOutput struct {
	Total                    int   `json:"total"`
	Pending                  int   `json:"pending"`
	InProgress               int   `json:"in_progress"`
	Completed                int   `json:"completed"`
	Failed                   int   `json:"failed"`
	Skipped                  int   `json:"skipped"`
	PercentComplete          int   `json:"percent_complete"`
	EstimatedTimeRemainingMs int64 `json:"estimated_time_remaining_ms"`
}

type switchModelInput struct {
	Path           string `json:"path,omitempty" jsonschema:"directory to start the project search from"`
	Model          string `json:"model" jsonschema:"the target AI model (claude, gemini or copilot)"`
	DryRun         bool   `json:"dry_run,omitempty" jsonschema:"report what would happen without changing anything"`
	NoBackup       bool   `json:"no_backup,omitempty" jsonschema:"skip the pre-migration backup; disables rollback"`
	Force          bool   `json:"force,omitempty" jsonschema:"allow targets without migration support"`
	SkipValidation bool   `json:"skip_validation,omitempty" jsonschema:"skip post-migration validation"`
}

type switchModelOutput struct {
	Success     bool     `json:"success"`
	MigrationID string   `json:"migration_id,omitempty"`
	BackupPath  string   `json:"backup_path,omitempty"`
	Warnings    []string `json:"warnings"`
	AIModel     string   `json:"ai_model,omitempty"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	MigrationsStarted    int            `json:"migrations_started"`
	MigrationsCompleted  int            `json:"migrations_completed"`
	MigrationsFailed     int            `json:"migrations_failed"`
	MigrationsRolledBack int            `json:"migrations_rolled_back"`
	MigrationsByTarget   map[string]int `json:"migrations_by_target"`
	Repairs              int            `json:"repairs"`
	Resets               int            `json:"resets"`
	TaskSaves            int            `json:"task_saves"`
	EventCount           int            `json:"event_count"`
	OldestEvent          string         `json:"oldest_event,omitempty"`
	NewestEvent          string         `json:"newest_event,omitempty"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "detect_project",
		Description: "Find the enclosing spec-kit project and report its configuration, issues and suggestions.",
	}, s.handleDetectProject)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_models",
		Description: "List the supported AI models with their capabilities and compatibility.",
	}, s.handleListModels)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List the project's tracked tasks, optionally filtered by status, category, priority or search text.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_ready_tasks",
		Description: "List pending tasks whose dependencies are all completed.",
	}, s.handleGetReadyTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task_stats",
		Description: "Summarise tasks by status, priority and category with completion percentage.",
	}, s.handleGetTaskStats)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "switch_model",
		Description: "Switch the project's AI model. Backs up the project first and rolls back on failure.",
	}, s.handleSwitchModel)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get migration, repair and reset counts aggregated from the project's event log.",
	}, s.handleGetMetrics)
}

// --- Tool handlers ---

func (s *Server) handleDetectProject(_ context.Context, _ *gomcp.CallToolRequest, input detectProjectInput) (*gomcp.CallToolResult, detectProjectOutput, error) {
	opts := core.DefaultDetectOptions()
	opts.SearchDepth = s.searchDepth()
	opts.AutoFix = input.AutoFix
	opts.IncludeDrafts = input.IncludeDrafts

	res := s.deps.Detector.DetectProject(s.startPath(input.Path), opts)
	out := detectProjectOutput{
		Found:       res.Found,
		ProjectPath: res.ProjectPath,
		Issues:      make([]issueOutput, len(res.Issues)),
		Suggestions: res.Suggestions,
	}
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}
	if res.Config != nil {
		out.ProjectID = res.Config.ProjectID
		out.Name = res.Config.Name
		out.AIModel = string(res.Config.AIModel)
	}
	for i, issue := range res.Issues {
		out.Issues[i] = issueOutput{
			Kind:     string(issue.Kind),
			Severity: string(issue.Severity),
			Message:  issue.Message,
			Path:     issue.Path,
			Fixable:  issue.Fixable,
		}
	}
	return nil, out, nil
}

func (s *Server) handleListModels(_ context.Context, _ *gomcp.CallToolRequest, _ listModelsInput) (*gomcp.CallToolResult, listModelsOutput, error) {
	all := s.deps.Registry.All()
	out := listModelsOutput{Models: make([]modelOutput, len(all)), Count: len(all)}
	for i, m := range all {
		features := []string{}
		for _, f := range m.Capabilities.Features {
			if f.Supported {
				features = append(features, f.Name)
			}
		}
		out.Models[i] = modelOutput{
			Model:             string(m.ModelType),
			Version:           m.Version,
			MaxTokens:         m.Capabilities.MaxTokens,
			Formats:           m.Capabilities.SupportedFormats,
			Features:          features,
			MigrationSupport:  m.Compatibility.MigrationSupport,
			MinimumCLIVersion: m.Compatibility.MinimumCLIVersion,
		}
	}
	return nil, out, nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	var tasks []models.TaskState
	err := s.withTracker(input.Path, func(tr core.TaskTracker) {
		if input.Filter == "" {
			tasks = tr.GetAllTasks()
			return
		}
		tasks = tr.GetFilteredTasks(core.ParseFilter(input.Filter))
	})
	if err != nil {
		return errorResult(err.Error()), listTasksOutput{Tasks: []taskOutput{}}, nil
	}
	return nil, tasksToOutput(tasks), nil
}

func (s *Server) handleGetReadyTasks(_ context.Context, _ *gomcp.CallToolRequest, input projectInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	var tasks []models.TaskState
	if err := s.withTracker(input.Path, func(tr core.TaskTracker) { tasks = tr.GetReadyTasks() }); err != nil {
		return errorResult(err.Error()), listTasksOutput{Tasks: []taskOutput{}}, nil
	}
	return nil, tasksToOutput(tasks), nil
}

func (s *Server) handleGetTaskStats(_ context.Context, _ *gomcp.CallToolRequest, input projectInput) (*gomcp.CallToolResult, taskStatsOutput, error) {
	var stats core.TaskStats
	if err := s.withTracker(input.Path, func(tr core.TaskTracker) { stats = tr.GetTaskStats() }); err != nil {
		return errorResult(err.Error()), taskStatsOutput{}, nil
	}
	out := taskStatsOutput{
		Total:                    stats.Total,
		Pending:                  stats.Pending,
		InProgress:               stats.InProgress,
		Completed:                stats.Completed,
		Failed:                   stats.Failed,
		Skipped:                  stats.Skipped,
		PercentComplete:          stats.PercentComplete,
		EstimatedTimeRemainingMs: stats.EstimatedTimeRemainingMs,
	}
	return nil, out, nil
}

func (s *Server) handleSwitchModel(_ context.Context, _ *gomcp.CallToolRequest, input switchModelInput) (*gomcp.CallToolResult, switchModelOutput, error) {
	empty := switchModelOutput{Warnings: []string{}}
	if s.deps.Switcher == nil {
		return errorResult("model switching is not available"), empty, nil
	}
	model := models.AIModel(strings.ToLower(strings.TrimSpace(input.Model)))
	if model == "" {
		return errorResult("model is required"), empty, nil
	}

	cfg, err := s.loadProject(input.Path)
	if err != nil {
		return errorResult(err.Error()), empty, nil
	}

	res := s.deps.Switcher.SwitchModel(cfg, core.SwitchOptions{
		TargetModel:    model,
		CreateBackup:   !input.NoBackup,
		DryRun:         input.DryRun,
		Force:          input.Force,
		SkipValidation: input.SkipValidation,
	})
	out := switchModelOutput{
		Success:     res.Success,
		MigrationID: res.MigrationID,
		BackupPath:  res.BackupPath,
		Warnings:    res.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	if res.Config != nil {
		out.AIModel = string(res.Config.AIModel)
	}
	if !res.Success {
		return errorResult(fmt.Sprintf("switching to %s: %s", model, res.ErrorMessage)), out, nil
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	empty := metricsOutput{MigrationsByTarget: map[string]int{}}
	if s.deps.Metrics == nil {
		return errorResult("metrics are not available (no event log)"), empty, nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	since, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), empty, nil
	}

	m, err := s.deps.Metrics.Calculate(since)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), empty, nil
	}
	out := metricsOutput{
		MigrationsStarted:    m.MigrationsStarted,
		MigrationsCompleted:  m.MigrationsCompleted,
		MigrationsFailed:     m.MigrationsFailed,
		MigrationsRolledBack: m.MigrationsRolledBack,
		MigrationsByTarget:   m.MigrationsByTarget,
		Repairs:              m.Repairs,
		Resets:               m.Resets,
		TaskSaves:            m.TaskSaves,
		EventCount:           m.EventCount,
	}
	if m.OldestEvent != nil {
		out.OldestEvent = m.OldestEvent.Format(time.RFC3339)
	}
	if m.NewestEvent != nil {
		out.NewestEvent = m.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

// --- Helpers ---

func (s *Server) startPath(path string) string {
	if path != "" {
		return path
	}
	if s.deps.ProjectRoot != "" {
		return s.deps.ProjectRoot
	}
	return "."
}

func (s *Server) searchDepth() int {
	if s.deps.SearchDepth > 0 {
		return s.deps.SearchDepth
	}
	return core.DefaultDetectOptions().SearchDepth
}

// loadProject detects the project at path and returns its config.
func (s *Server) loadProject(path string) (*models.ProjectConfig, error) {
	opts := core.DefaultDetectOptions()
	opts.SearchDepth = s.searchDepth()
	res := s.deps.Detector.DetectProject(s.startPath(path), opts)
	if !res.Found {
		return nil, fmt.Errorf("no spec-kit project found from %s", s.startPath(path))
	}
	if res.Config == nil {
		msg := "project configuration is missing or invalid"
		if len(res.Issues) > 0 {
			msg += ": " + res.Issues[0].Message
		}
		return nil, fmt.Errorf("%s (run specify detect-project --auto-fix)", msg)
	}
	return res.Config, nil
}

// withTracker opens the project's task tracker, runs fn and closes it.
func (s *Server) withTracker(path string, fn func(core.TaskTracker)) error {
	cfg, err := s.loadProject(path)
	if err != nil {
		return err
	}
	tr := s.deps.NewTracker(cfg)
	tr.Initialize()
	defer func() { _ = tr.Close() }()
	fn(tr)
	return nil
}

func tasksToOutput(tasks []models.TaskState) listTasksOutput {
	out := listTasksOutput{Tasks: make([]taskOutput, len(tasks)), Count: len(tasks)}
	for i, t := range tasks {
		out.Tasks[i] = taskOutput{
			ID:           t.ID,
			Title:        t.Title,
			Status:       string(t.Status),
			Priority:     string(t.Priority),
			Category:     string(t.Metadata.Category),
			Progress:     t.Progress.Percentage,
			Tags:         t.Tags,
			Dependencies: t.Dependencies,
			BlockedBy:    t.BlockedBy,
			IsParallel:   t.Metadata.IsParallel,
			Error:        t.Metadata.ErrorMessage,
			Updated:      t.UpdatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a duration like "7d" or "24h" into the matching time
// in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	var num int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
