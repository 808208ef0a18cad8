package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MigrationRecord is one entry in a project's migration history. Entries
// are appended and never rewritten.
type MigrationRecord struct {
	ID           string    `json:"id" yaml:"id"`
	FromModel    AIModel   `json:"fromModel" yaml:"fromModel"`
	ToModel      AIModel   `json:"toModel" yaml:"toModel"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	Success      bool      `json:"success" yaml:"success"`
	BackupPath   string    `json:"backupPath,omitempty" yaml:"backupPath,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
}

// ProjectConfig is the persisted descriptor stored at .specify/config.json.
type ProjectConfig struct {
	ProjectID        string            `json:"projectId" yaml:"projectId"`
	Name             string            `json:"name" yaml:"name"`
	AIModel          AIModel           `json:"aiModel" yaml:"aiModel"`
	Version          string            `json:"version" yaml:"version"`
	CreatedAt        time.Time         `json:"createdAt" yaml:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt" yaml:"updatedAt"`
	SpecDirectory    string            `json:"specDirectory" yaml:"specDirectory"`
	ConfigPath       string            `json:"configPath" yaml:"configPath"`
	IsInitialized    bool              `json:"isInitialized" yaml:"isInitialized"`
	MigrationHistory []MigrationRecord `json:"migrationHistory" yaml:"migrationHistory"`
}

// Clone returns a copy that shares no slices with c.
func (c ProjectConfig) Clone() ProjectConfig {
	c.MigrationHistory = append([]MigrationRecord(nil), c.MigrationHistory...)
	return c
}

// FailedMigrations returns the history entries with success=false.
func (c ProjectConfig) FailedMigrations() []MigrationRecord {
	var out []MigrationRecord
	for _, r := range c.MigrationHistory {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks the in-memory config against the same rules
// ValidateConfigData applies to raw JSON, so anything LoadConfig accepts
// can be saved back. Identity fields may be empty; the paths may not.
func (c ProjectConfig) Validate(catalog ModelCatalog) error {
	var errs []string
	if catalog != nil && !catalog.IsKnown(c.AIModel) {
		errs = append(errs, fmt.Sprintf("aiModel %q is not a known model", c.AIModel))
	}
	if c.SpecDirectory == "" {
		errs = append(errs, "specDirectory is required")
	}
	if c.ConfigPath == "" {
		errs = append(errs, "configPath is required")
	}
	if len(errs) > 0 {
		return errors.New("invalid project config:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateConfigData performs a structural type check of decoded JSON.
// Every field must be present with the right primitive type and aiModel
// must be known to catalog. Cross-field consistency is not checked.
// It returns one message per problem; an empty result means valid.
func ValidateConfigData(data map[string]any, catalog ModelCatalog) []string {
	var errs []string
	for _, field := range []string{"projectId", "name", "version"} {
		if _, ok := data[field].(string); !ok {
			errs = append(errs, fmt.Sprintf("%s must be a string", field))
		}
	}
	for _, field := range []string{"specDirectory", "configPath"} {
		if s, ok := data[field].(string); !ok || s == "" {
			errs = append(errs, fmt.Sprintf("%s must be a non-empty string", field))
		}
	}
	for _, field := range []string{"createdAt", "updatedAt"} {
		if !isTimestamp(data[field]) {
			errs = append(errs, fmt.Sprintf("%s must be an RFC 3339 timestamp", field))
		}
	}
	if m, ok := data["aiModel"].(string); !ok {
		errs = append(errs, "aiModel must be a string")
	} else if catalog != nil && !catalog.IsKnown(AIModel(m)) {
		errs = append(errs, fmt.Sprintf("aiModel %q is not a known model", m))
	}
	if _, ok := data["isInitialized"].(bool); !ok {
		errs = append(errs, "isInitialized must be a boolean")
	}
	history, ok := data["migrationHistory"].([]any)
	if !ok {
		return append(errs, "migrationHistory must be an array")
	}
	for i, entry := range history {
		rec, ok := entry.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("migrationHistory[%d] must be an object", i))
			continue
		}
		for _, field := range []string{"id", "fromModel", "toModel"} {
			if _, ok := rec[field].(string); !ok {
				errs = append(errs, fmt.Sprintf("migrationHistory[%d].%s must be a string", i, field))
			}
		}
		if !isTimestamp(rec["timestamp"]) {
			errs = append(errs, fmt.Sprintf("migrationHistory[%d].timestamp must be an RFC 3339 timestamp", i))
		}
		if _, ok := rec["success"].(bool); !ok {
			errs = append(errs, fmt.Sprintf("migrationHistory[%d].success must be a boolean", i))
		}
	}
	return errs
}

func isTimestamp(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, err := time.Parse(time.RFC3339Nano, s)
	return err == nil
}
