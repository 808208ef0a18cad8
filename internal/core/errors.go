package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a referenced file or directory that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidFormat marks a file that parses but fails structural validation.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrInvalidConfig marks an in-memory config rejected before saving.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrValidation marks a violated domain rule.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidSettings marks a settings.yaml with out-of-range values.
	ErrInvalidSettings = errors.New("invalid settings")
)

// MigrationError wraps a failure inside a model switch. BackupPath is set
// when a backup was taken and can be used for manual recovery.
type MigrationError struct {
	MigrationID string
	BackupPath  string
	Err         error
}

func (e *MigrationError) Error() string {
	if e.BackupPath != "" {
		return fmt.Sprintf("migration %s failed: %v (backup at %s)", e.MigrationID, e.Err, e.BackupPath)
	}
	return fmt.Sprintf("migration %s failed: %v", e.MigrationID, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// RollbackError reports a migration failure whose automatic rollback also
// failed. The project may need manual recovery.
type RollbackError struct {
	MigrationID string
	BackupPath  string
	Cause       error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("migration %s failed: %v; rollback also failed: %v (backup at %s)",
		e.MigrationID, e.Cause, e.RollbackErr, e.BackupPath)
}

func (e *RollbackError) Unwrap() []error { return []error{e.Cause, e.RollbackErr} }
