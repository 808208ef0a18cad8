package core

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestWithFileLock_SerializesWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := withFileLock(path, func() error {
				mu.Lock()
				inside++
				if inside > 1 {
					overlap = true
				}
				mu.Unlock()

				err := writeJSONAtomic(path, map[string]int{"n": 1})

				mu.Lock()
				inside--
				mu.Unlock()
				return err
			})
			if err != nil {
				t.Errorf("withFileLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if overlap {
		t.Error("two writers held the lock at the same time")
	}
	if _, err := os.Stat(path + lockSuffix); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}

func TestWithFileLock_ReturnsCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	want := errors.New("boom")
	if err := withFileLock(path, func() error { return want }); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestWithFileLock_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "tasks.json")
	if err := withFileLock(path, func() error { return nil }); err == nil {
		t.Error("expected an error when the lock file cannot be created")
	}
}
