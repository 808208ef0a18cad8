package models

import (
	"strconv"
	"strings"
)

// AIModel identifies the AI assistant a project is configured for.
type AIModel string

const (
	ModelClaude  AIModel = "claude"
	ModelGemini  AIModel = "gemini"
	ModelCopilot AIModel = "copilot"
)

// RateLimit describes the request budget a model advertises.
type RateLimit struct {
	RequestsPerMinute int `json:"requestsPerMinute" yaml:"requestsPerMinute"`
	TokensPerMinute   int `json:"tokensPerMinute" yaml:"tokensPerMinute"`
	DailyLimit        int `json:"dailyLimit,omitempty" yaml:"dailyLimit,omitempty"`
}

// ModelFeature is a named capability a model supports.
type ModelFeature struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Supported    bool     `json:"supported" yaml:"supported"`
	Requirements []string `json:"requirements,omitempty" yaml:"requirements,omitempty"`
}

// ModelCapabilities holds the declared limits of a model.
type ModelCapabilities struct {
	MaxTokens        int            `json:"maxTokens" yaml:"maxTokens"`
	SupportedFormats []string       `json:"supportedFormats" yaml:"supportedFormats"`
	Features         []ModelFeature `json:"features" yaml:"features"`
	RateLimit        RateLimit      `json:"rateLimit" yaml:"rateLimit"`
}

// ModelConfiguration holds generation defaults.
type ModelConfiguration struct {
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens" yaml:"maxOutputTokens"`
}

// ModelCompatibility describes which CLI versions can drive a model and
// whether projects may migrate to it.
type ModelCompatibility struct {
	SupportedVersions  []string `json:"supportedVersions" yaml:"supportedVersions"`
	MigrationSupport   bool     `json:"migrationSupport" yaml:"migrationSupport"`
	DeprecationWarning string   `json:"deprecationWarning,omitempty" yaml:"deprecationWarning,omitempty"`
	MinimumCLIVersion  string   `json:"minimumCliVersion" yaml:"minimumCliVersion"`
}

// ModelSettings is the catalog entry for one model.
type ModelSettings struct {
	ModelType     AIModel            `json:"modelType" yaml:"modelType"`
	Version       string             `json:"version" yaml:"version"`
	Capabilities  ModelCapabilities  `json:"capabilities" yaml:"capabilities"`
	Configuration ModelConfiguration `json:"configuration" yaml:"configuration"`
	Compatibility ModelCompatibility `json:"compatibility" yaml:"compatibility"`
}

// ModelCatalog is the read-only view of known models used by validators.
type ModelCatalog interface {
	IsKnown(model AIModel) bool
}

// ModelRegistry is an immutable catalog of model settings. Build it once
// and pass it to the components that need it.
type ModelRegistry struct {
	order    []AIModel
	settings map[AIModel]ModelSettings
}

// NewModelRegistry builds a registry from the given entries, preserving
// their order. Later duplicates replace earlier ones.
func NewModelRegistry(entries ...ModelSettings) *ModelRegistry {
	r := &ModelRegistry{settings: make(map[AIModel]ModelSettings, len(entries))}
	for _, e := range entries {
		if _, ok := r.settings[e.ModelType]; !ok {
			r.order = append(r.order, e.ModelType)
		}
		r.settings[e.ModelType] = e
	}
	return r
}

// DefaultModelRegistry returns the built-in catalog of claude, gemini and
// copilot.
func DefaultModelRegistry() *ModelRegistry {
	formats := []string{"markdown", "json", "yaml"}
	return NewModelRegistry(
		ModelSettings{
			ModelType: ModelClaude,
			Version:   "3.0",
			Capabilities: ModelCapabilities{
				MaxTokens:        200000,
				SupportedFormats: formats,
				Features: []ModelFeature{
					{Name: "code-generation", Description: "Generate code from specifications", Supported: true},
					{Name: "spec-analysis", Description: "Analyze and refine specifications", Supported: true},
					{Name: "task-tracking", Description: "Track implementation tasks", Supported: true},
				},
				RateLimit: RateLimit{RequestsPerMinute: 60, TokensPerMinute: 100000, DailyLimit: 1000000},
			},
			Configuration: ModelConfiguration{Temperature: 0.7, MaxOutputTokens: 4096},
			Compatibility: ModelCompatibility{
				SupportedVersions: []string{"2.1", "3.0"},
				MigrationSupport:  true,
				MinimumCLIVersion: "0.1.0",
			},
		},
		ModelSettings{
			ModelType: ModelGemini,
			Version:   "1.5",
			Capabilities: ModelCapabilities{
				MaxTokens:        100000,
				SupportedFormats: formats,
				Features: []ModelFeature{
					{Name: "code-generation", Description: "Generate code from specifications", Supported: true},
					{Name: "spec-analysis", Description: "Analyze and refine specifications", Supported: true},
					{Name: "task-tracking", Description: "Track implementation tasks", Supported: true},
				},
				RateLimit: RateLimit{RequestsPerMinute: 30, TokensPerMinute: 50000},
			},
			Configuration: ModelConfiguration{Temperature: 0.8, MaxOutputTokens: 2048},
			Compatibility: ModelCompatibility{
				SupportedVersions: []string{"1.0", "1.5"},
				MigrationSupport:  true,
				MinimumCLIVersion: "0.1.0",
			},
		},
		ModelSettings{
			ModelType: ModelCopilot,
			Version:   "1.0",
			Capabilities: ModelCapabilities{
				MaxTokens:        8000,
				SupportedFormats: formats,
				Features: []ModelFeature{
					{Name: "code-generation", Description: "Inline code completion", Supported: true, Requirements: []string{"github-copilot-extension"}},
					{Name: "code-explanation", Description: "Explain selected code", Supported: true},
					{Name: "refactoring", Description: "Suggest refactorings", Supported: true},
				},
				RateLimit: RateLimit{RequestsPerMinute: 100, TokensPerMinute: 200000},
			},
			Configuration: ModelConfiguration{Temperature: 0.6, MaxOutputTokens: 1024},
			Compatibility: ModelCompatibility{
				SupportedVersions: []string{"1.0"},
				MigrationSupport:  true,
				MinimumCLIVersion: "0.1.0",
			},
		},
	)
}

// Get returns the settings for a model.
func (r *ModelRegistry) Get(model AIModel) (ModelSettings, bool) {
	s, ok := r.settings[model]
	return s, ok
}

// All returns every catalog entry in registration order.
func (r *ModelRegistry) All() []ModelSettings {
	out := make([]ModelSettings, 0, len(r.order))
	for _, m := range r.order {
		out = append(out, r.settings[m])
	}
	return out
}

// Models returns the known model identifiers in registration order.
func (r *ModelRegistry) Models() []AIModel {
	return append([]AIModel(nil), r.order...)
}

// IsKnown reports whether model is in the catalog.
func (r *ModelRegistry) IsKnown(model AIModel) bool {
	_, ok := r.settings[model]
	return ok
}

// IsCompatible reports whether cliVersion meets the model's minimum CLI
// version. Unknown models are never compatible.
func (r *ModelRegistry) IsCompatible(model AIModel, cliVersion string) bool {
	s, ok := r.settings[model]
	if !ok {
		return false
	}
	return CompareVersions(cliVersion, s.Compatibility.MinimumCLIVersion) >= 0
}

// CompareVersions compares dotted numeric versions segment by segment.
// Missing segments count as zero and non-numeric segments as zero.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	n := max(len(as), len(bs))
	for i := 0; i < n; i++ {
		av, bv := versionSegment(as, i), versionSegment(bs, i)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	}
	return 0
}

func versionSegment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}
