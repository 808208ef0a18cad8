package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsWithin(t *testing.T) {
	tests := []struct {
		parent, path string
		want         bool
	}{
		{"/p", "/p", true},
		{"/p", "/p/specs", true},
		{"/p", "/p/specs/001/spec.md", true},
		{"/p", "/pq", false},
		{"/p/specs", "/p", false},
		{"/p", "/other", false},
		{"/p", "/p/../other", false},
	}
	for _, tt := range tests {
		if got := isWithin(tt.parent, tt.path); got != tt.want {
			t.Errorf("isWithin(%q, %q) = %v, want %v", tt.parent, tt.path, got, tt.want)
		}
	}
}

func TestCopyPath_SkipsDestinationInsideSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "spec.md", "# Root\n")
	writeFile(t, root, filepath.Join("001-login", "plan.md"), "# Plan\n")
	writeFile(t, root, filepath.Join(SpecifyDir, ConfigFileName), "{}")
	dst := filepath.Join(root, SpecifyDir, "backups", "b1", "specs")

	if err := copyPath(root, dst, filepath.Join(root, SpecifyDir)); err != nil {
		t.Fatalf("copyPath: %v", err)
	}
	for _, name := range []string{"spec.md", filepath.Join("001-login", "plan.md")} {
		if !pathExists(filepath.Join(dst, name)) {
			t.Errorf("%s not copied", name)
		}
	}
	if pathExists(filepath.Join(dst, SpecifyDir)) {
		t.Error("excluded .specify directory was copied")
	}
}

func TestCopyPath_DestinationOnlyExclusion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "spec.md", "# Root\n")
	dst := filepath.Join(root, "copy")

	if err := copyPath(root, dst); err != nil {
		t.Fatalf("copyPath: %v", err)
	}
	if pathExists(filepath.Join(dst, "copy")) {
		t.Error("copy recursed into its own destination")
	}
	if !pathExists(filepath.Join(dst, "spec.md")) {
		t.Error("spec.md not copied")
	}
}

func TestCopyPath_DanglingSymlinkFails(t *testing.T) {
	src := t.TempDir()
	if err := os.Symlink(filepath.Join(src, "missing"), filepath.Join(src, "link.md")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := copyPath(src, filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("expected an error copying a dangling symlink")
	}
}
