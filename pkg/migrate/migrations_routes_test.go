package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hopround/hopround-backend/pkg/migrate"
)

func TestRoutesMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_routes_and_stops.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no routes migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS routes",
		"CREATE TABLE IF NOT EXISTS stops",
		"CHECK (current_stop_index >= 0)",
		"CHECK (actual_rounds >= 0)",
		"CHECK (max_rounds IS NULL OR max_rounds >= planned_rounds)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_stops_route_position",
		"DROP TABLE IF EXISTS stops",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestParticipantsMigrationEnforcesIdentityXOR(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_participants.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no participants migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CHECK ((user_id IS NULL) <> (guest_id IS NULL))",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_participants_route_user",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_participants_route_guest",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSkipVotesMigrationHasUniqueVote(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_skip_votes_and_chat.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no skip votes migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	if !strings.Contains(string(data), "ux_skip_votes_stop_participant") {
		t.Errorf("missing unique vote index")
	}
}

func TestAllMigrationsValidate(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}
