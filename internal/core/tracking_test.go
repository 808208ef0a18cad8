package core

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestTrackingPrefs(t *testing.T) {
	root := t.TempDir()

	p, err := LoadTrackingPrefs(root)
	if err != nil {
		t.Fatalf("LoadTrackingPrefs on a fresh project: %v", err)
	}
	if p.Enabled || p.Sidebar {
		t.Errorf("default prefs = %+v, want disabled", p)
	}

	if err := SaveTrackingPrefs(root, TrackingPrefs{Enabled: true, Sidebar: true}); err != nil {
		t.Fatalf("SaveTrackingPrefs: %v", err)
	}
	p, err = LoadTrackingPrefs(root)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Enabled || !p.Sidebar {
		t.Errorf("reloaded prefs = %+v", p)
	}
}

func TestTrackingPrefs_Corrupt(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, SpecifyDir), TrackingFileName, "{nope")

	if _, err := LoadTrackingPrefs(root); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want a decode error", err)
	}
}
