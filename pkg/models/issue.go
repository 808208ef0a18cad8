package models

// Severity grades a project issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IssueKind is the closed set of problems project detection can report.
type IssueKind string

const (
	IssueMissingConfig          IssueKind = "missing_config"
	IssueInvalidConfig          IssueKind = "invalid_config"
	IssueUnreadableConfig       IssueKind = "unreadable_config"
	IssueMissingDirectory       IssueKind = "missing_directory"
	IssueUnknownModel           IssueKind = "unknown_model"
	IssueMissingRecommendedFile IssueKind = "missing_recommended_file"
	IssueNoSpecFiles            IssueKind = "no_spec_files"
	IssueMissingFeatureSpec     IssueKind = "missing_feature_spec"
	IssueIncompleteMigration    IssueKind = "incomplete_migration"
	IssueNotFound               IssueKind = "not_found"
	IssueDetectionFailed        IssueKind = "detection_failed"
)

// Fixable reports whether RepairProject knows how to fix issues of kind k.
// Failed migrations stay in the append-only history, so they are never
// fixable.
func (k IssueKind) Fixable() bool {
	switch k {
	case IssueMissingConfig, IssueInvalidConfig, IssueUnreadableConfig,
		IssueMissingDirectory:
		return true
	case IssueUnknownModel, IssueMissingRecommendedFile, IssueNoSpecFiles,
		IssueMissingFeatureSpec, IssueIncompleteMigration, IssueNotFound, IssueDetectionFailed:
		return false
	}
	return false
}

// Issue is one finding of project detection or validation. Path names the
// file or directory the issue is about, when there is one.
type Issue struct {
	Kind     IssueKind `json:"kind" yaml:"kind"`
	Severity Severity  `json:"severity" yaml:"severity"`
	Message  string    `json:"message" yaml:"message"`
	Path     string    `json:"path,omitempty" yaml:"path,omitempty"`
	Fixable  bool      `json:"fixable" yaml:"fixable"`
}

// NewIssue builds an issue whose Fixable flag follows its kind.
func NewIssue(kind IssueKind, severity Severity, message, path string) Issue {
	return Issue{Kind: kind, Severity: severity, Message: message, Path: path, Fixable: kind.Fixable()}
}
