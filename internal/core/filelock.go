package core

import (
	"fmt"
	"os"
	"syscall"
)

// lockSuffix names the advisory lock file kept beside a guarded file.
const lockSuffix = ".lock"

// withFileLock runs fn while holding an exclusive advisory lock on
// path+".lock". It serializes writers of the same file across processes,
// such as the CLI and the MCP server saving one tasks.json.
func withFileLock(path string, fn func() error) error {
	f, err := os.OpenFile(path+lockSuffix, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquiring file lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	return fn()
}
