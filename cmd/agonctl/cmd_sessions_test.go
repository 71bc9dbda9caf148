package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agon/pkg/agon"
)

// sqliteArgs shares one database and artifacts directory across separate
// command invocations.
func sqliteArgs(base string, extra ...string) []string {
	args := []string{
		"--store", "sqlite",
		"--db-path", filepath.Join(base, "agon.db"),
		"--artifacts-dir", filepath.Join(base, "sessions"),
		"--exports-dir", filepath.Join(base, "exports"),
	}
	return append(args, extra...)
}

func TestSessionsLifecycleAcrossInvocations(t *testing.T) {
	base := t.TempDir()

	out, err := runCLI(t, sqliteArgs(base, "--json",
		"run", "--population", "8", "--max-generations", "3", "--battles", "2", "--seed", "7")...)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var summary agon.RunSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}

	// sessions: the recorded run shows up in a fresh invocation.
	out, err = runCLI(t, sqliteArgs(base, "sessions")...)
	if err != nil {
		t.Fatalf("sessions: %v\n%s", err, out)
	}
	if !strings.Contains(out, summary.SessionID) || !strings.Contains(out, "yes") {
		t.Fatalf("expected session row:\n%s", out)
	}

	// history --latest resolves to the same session.
	out, err = runCLI(t, sqliteArgs(base, "--json", "history", "--latest")...)
	if err != nil {
		t.Fatalf("history: %v\n%s", err, out)
	}
	var historyPayload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &historyPayload); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if historyPayload.Count != 3 {
		t.Fatalf("history count = %d, want 3", historyPayload.Count)
	}

	// history --csv streams the same series as CSV.
	out, err = runCLI(t, sqliteArgs(base, "history", "--latest", "--csv", "-")...)
	if err != nil {
		t.Fatalf("history --csv: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "generation,population,avg_score") {
		t.Fatalf("expected CSV header:\n%s", out)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines:\n%s", len(lines), out)
	}

	// export copies the artifact files.
	exportDir := filepath.Join(base, "report")
	out, err = runCLI(t, sqliteArgs(base, "export", summary.SessionID, "--out", exportDir)...)
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Exported session") {
		t.Fatalf("unexpected export output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(exportDir, summary.SessionID, "history.csv")); err != nil {
		t.Fatalf("missing exported history.csv: %v", err)
	}

	// delete removes the record; the listing is empty afterwards.
	out, err = runCLI(t, sqliteArgs(base, "sessions", "delete", "--latest")...)
	if err != nil {
		t.Fatalf("delete: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Deleted session "+summary.SessionID) {
		t.Fatalf("unexpected delete output:\n%s", out)
	}
	out, err = runCLI(t, sqliteArgs(base, "sessions")...)
	if err != nil {
		t.Fatalf("sessions after delete: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No sessions recorded.") {
		t.Fatalf("expected empty listing:\n%s", out)
	}
}

func TestSessionsDeleteRequiresSelector(t *testing.T) {
	base := t.TempDir()
	_, err := runCLI(t, sqliteArgs(base, "sessions", "delete")...)
	if err == nil || !strings.Contains(err.Error(), "requires") {
		t.Fatalf("expected selector error, got %v", err)
	}
}

func TestHistoryRejectsIDWithLatest(t *testing.T) {
	base := t.TempDir()
	_, err := runCLI(t, sqliteArgs(base, "history", "some-id", "--latest")...)
	if err == nil || !strings.Contains(err.Error(), "either") {
		t.Fatalf("expected either/or error, got %v", err)
	}
}

func TestPresetsCmdListsBuiltinsAndFile(t *testing.T) {
	base := t.TempDir()

	out, err := runCLI(t, "presets")
	if err != nil {
		t.Fatalf("presets: %v\n%s", err, out)
	}
	for _, name := range []string{"default", "skirmish", "endurance"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected preset %q in output:\n%s", name, out)
		}
	}

	presetPath := filepath.Join(base, "presets.yaml")
	presetYAML := `presets:
  marathon:
    world_width: 100
    world_height: 80
    population_size: 64
    max_generations: 200
    battles_per_generation: 8
    mutation_rate: 0.08
    mutation_strength: 0.2
    elite_ratio: 0.1
    selection: tournament
    crossover: uniform
`
	if err := os.WriteFile(presetPath, []byte(presetYAML), 0o644); err != nil {
		t.Fatalf("write preset file: %v", err)
	}

	out, err = runCLI(t, "--json", "--presets-file", presetPath, "presets")
	if err != nil {
		t.Fatalf("presets --json: %v\n%s", err, out)
	}
	var payload struct {
		Presets []agon.PresetItem `json:"presets"`
		Count   int               `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode presets: %v\n%s", err, out)
	}
	found := false
	for _, item := range payload.Presets {
		if item.Name == "marathon" && item.Config.PopulationSize == 64 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected marathon preset in %+v", payload.Presets)
	}
}
