package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateSQLMigrationScaffoldsGooseFile(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Pot Settlements!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	name := filepath.Base(path)
	if !strings.HasSuffix(name, "_add_pot_settlements.sql") {
		t.Fatalf("unexpected filename %q", name)
	}
	if !migrationFileRe.MatchString(name) {
		t.Fatalf("filename %q fails the validation pattern", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scaffold: %v", err)
	}
	for _, marker := range []string{"-- +goose Up", "-- +goose Down", "-- +goose StatementBegin", "-- +goose StatementEnd"} {
		if !strings.Contains(string(data), marker) {
			t.Errorf("scaffold missing %q", marker)
		}
	}

	if err := ValidateDir(dir); err != nil {
		t.Fatalf("scaffold must validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsUnusableName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), "!!!"); err == nil {
		t.Fatal("expected error for name with no usable characters")
	}
	if _, err := CreateSQLMigration("", "ok"); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestValidateDirFlagsBadFiles(t *testing.T) {
	writeMigration := func(t *testing.T, dir, name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	t.Run("bad filename", func(t *testing.T) {
		dir := t.TempDir()
		writeMigration(t, dir, "001_short_version.sql", "-- +goose Up\n-- +goose Down\n")
		if err := ValidateDir(dir); err == nil {
			t.Fatal("expected filename rejection")
		}
	})

	t.Run("missing down marker", func(t *testing.T) {
		dir := t.TempDir()
		writeMigration(t, dir, "20260301000100_only_up.sql", "-- +goose Up\nSELECT 1;\n")
		if err := ValidateDir(dir); err == nil {
			t.Fatal("expected missing-marker rejection")
		}
	})

	t.Run("down before up", func(t *testing.T) {
		dir := t.TempDir()
		writeMigration(t, dir, "20260301000100_reversed.sql", "-- +goose Down\n-- +goose Up\n")
		if err := ValidateDir(dir); err == nil {
			t.Fatal("expected marker-order rejection")
		}
	})

	t.Run("duplicate version", func(t *testing.T) {
		dir := t.TempDir()
		body := "-- +goose Up\n-- +goose Down\n"
		writeMigration(t, dir, "20260301000100_first.sql", body)
		writeMigration(t, dir, "20260301000100_second.sql", body)
		if err := ValidateDir(dir); err == nil {
			t.Fatal("expected duplicate-version rejection")
		}
	})
}
