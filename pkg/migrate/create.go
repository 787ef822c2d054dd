package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// Every migration runs on Postgres in deployed environments and on SQLite
// in dev and tests, so the stub nudges authors toward the common subset.
const migrationTemplate = `-- +goose Up
-- portable SQL only: this file also runs against sqlite3
-- %[1]s

-- +goose Down
-- rollback %[1]s
`

// CreateSQLMigration writes <dir>/<version>_<name>.sql stamped with now.
// The version moves forward a second at a time until it is unused in dir,
// keeping goose versions unique when two files are created back to back.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	stamp := now.UTC()
	for {
		existing, err := filepath.Glob(filepath.Join(dir, stamp.Format(versionLayout)+"_*.sql"))
		if err != nil {
			return "", fmt.Errorf("scan %q: %w", dir, err)
		}
		if len(existing) == 0 {
			break
		}
		stamp = stamp.Add(time.Second)
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", stamp.Format(versionLayout), safe))
	if err := os.WriteFile(fullpath, []byte(fmt.Sprintf(migrationTemplate, safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
