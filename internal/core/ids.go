package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const fileTimestampLayout = "2006-01-02T15:04:05.000Z"

// newProjectID returns a globally unique project id.
func newProjectID() string {
	return "project_" + uuid.Must(uuid.NewV7()).String()
}

// newMigrationID returns a globally unique migration id.
func newMigrationID() string {
	return "migration_" + uuid.Must(uuid.NewV7()).String()
}

// fileTimestamp formats t in UTC as an ISO timestamp safe for file names,
// with colons and the fractional dot replaced by dashes.
func fileTimestamp(t time.Time) string {
	s := t.UTC().Format(fileTimestampLayout)
	return strings.NewReplacer(":", "-", ".", "-").Replace(s)
}

// parseFileTimestamp reverses fileTimestamp.
func parseFileTimestamp(s string) (time.Time, error) {
	if len(s) != len(fileTimestampLayout) {
		return time.Time{}, fmt.Errorf("invalid file timestamp %q", s)
	}
	b := []byte(s)
	b[13], b[16], b[19] = ':', ':', '.'
	return time.Parse(fileTimestampLayout, string(b))
}
