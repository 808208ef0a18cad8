package core

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// TrackingFileName holds the task-tracking preferences inside .specify.
const TrackingFileName = "tracking.json"

// TrackingPrefs are the preferences set by track-tasks enable and disable.
type TrackingPrefs struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Sidebar bool `json:"sidebar" yaml:"sidebar"`
}

// TrackingPrefsPath returns the preferences file for a project root.
func TrackingPrefsPath(projectRoot string) string {
	return filepath.Join(projectRoot, SpecifyDir, TrackingFileName)
}

// LoadTrackingPrefs reads the preferences of a project. A missing file
// means tracking is disabled.
func LoadTrackingPrefs(projectRoot string) (TrackingPrefs, error) {
	var p TrackingPrefs
	if err := readJSON(TrackingPrefsPath(projectRoot), &p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TrackingPrefs{}, nil
		}
		return TrackingPrefs{}, fmt.Errorf("loading tracking preferences: %w", err)
	}
	return p, nil
}

// SaveTrackingPrefs writes the preferences of a project.
func SaveTrackingPrefs(projectRoot string, p TrackingPrefs) error {
	if err := writeJSONAtomic(TrackingPrefsPath(projectRoot), p); err != nil {
		return fmt.Errorf("saving tracking preferences: %w", err)
	}
	return nil
}
