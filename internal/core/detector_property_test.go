package core

import (
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// dirInfo is a minimal fs.FileInfo for a directory.
type dirInfo struct{ name string }

func (d dirInfo) Name() string       { return d.name }
func (d dirInfo) Size() int64        { return 0 }
func (d dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o750 }
func (d dirInfo) ModTime() time.Time { return time.Time{} }
func (d dirInfo) IsDir() bool        { return true }
func (d dirInfo) Sys() any           { return nil }

// Feature: specify-cli, Property: Detector upward search bound
// FindProjectRoot never inspects a directory more than N levels above the
// start path and reports not found when the only project is further up.
func TestProperty_DetectorSearchBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		depth := rapid.IntRange(1, 12).Draw(rt, "pathDepth")
		segments := make([]string, depth)
		for i := range segments {
			segments[i] = rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "segment")
		}
		start := filepath.Join(append([]string{string(filepath.Separator)}, segments...)...)

		// projectLevel is how many levels above start the .specify lives;
		// -1 means nowhere.
		projectLevel := rapid.IntRange(-1, depth).Draw(rt, "projectLevel")
		projectRoot := ""
		if projectLevel >= 0 {
			projectRoot = start
			for i := 0; i < projectLevel; i++ {
				projectRoot = filepath.Dir(projectRoot)
			}
		}
		searchDepth := rapid.IntRange(0, depth+1).Draw(rt, "searchDepth")

		var probed []string
		stat := func(path string) (fs.FileInfo, error) {
			dir := filepath.Dir(path)
			probed = append(probed, dir)
			if projectRoot != "" && dir == projectRoot && filepath.Base(path) == SpecifyDir {
				return dirInfo{name: SpecifyDir}, nil
			}
			return nil, fs.ErrNotExist
		}
		d := NewProjectDetector(DetectorOptions{Stat: stat})

		root, found, err := d.FindProjectRoot(start, searchDepth)
		if err != nil {
			rt.Fatalf("FindProjectRoot: %v", err)
		}

		for _, dir := range probed {
			if !strings.HasPrefix(start, dir) {
				rt.Fatalf("probed %q outside the ancestry of %q", dir, start)
			}
			if levels := levelsAbove(start, dir); levels > searchDepth {
				rt.Fatalf("probed %q, %d levels above start with search depth %d", dir, levels, searchDepth)
			}
		}

		wantFound := projectLevel >= 0 && projectLevel <= searchDepth
		if found != wantFound {
			rt.Fatalf("found = %v, want %v (project level %d, search depth %d)", found, wantFound, projectLevel, searchDepth)
		}
		if found && root != projectRoot {
			rt.Fatalf("root = %q, want %q", root, projectRoot)
		}
	})
}

func levelsAbove(start, dir string) int {
	n := 0
	for cur := start; cur != dir; n++ {
		parent := filepath.Dir(cur)
		if parent == cur {
			return -1
		}
		cur = parent
	}
	return n
}
