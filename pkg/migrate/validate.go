package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every migration in dir against the filename convention
// and the goose markers, catching a malformed file in CI before goose hits it
// at deploy time. An empty dir passes.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("migrations dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		match := migrationFileRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("migration %q does not match <version>_<name>.sql", name)
		}
		version := match[1]
		if _, err := time.Parse(versionTimeLayout, version); err != nil {
			return fmt.Errorf("migration %q version is not a UTC timestamp: %w", name, err)
		}
		if prev, dup := versions[version]; dup {
			return fmt.Errorf("migrations %q and %q share version %s", prev, name, version)
		}
		versions[version] = name

		if err := validateMarkers(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func validateMarkers(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", path, err)
	}
	text := string(raw)
	up := strings.Index(text, "-- +goose Up")
	down := strings.Index(text, "-- +goose Down")
	name := filepath.Base(path)
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing %q", name, "-- +goose Up")
	case down < 0:
		return fmt.Errorf("migration %q missing %q", name, "-- +goose Down")
	case down < up:
		return fmt.Errorf("migration %q has %q before %q", name, "-- +goose Down", "-- +goose Up")
	}
	return nil
}
