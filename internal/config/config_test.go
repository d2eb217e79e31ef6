package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coordination.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollIntervalSeconds != 5 || cfg.ProvenancePath != "coordination.db" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.PollInterval() != 5*time.Second {
		t.Fatalf("interval = %s", cfg.PollInterval())
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
poll_interval_seconds: 2
provenance_path: /tmp/decisions.db
extra_failure_keywords:
  - rollback executed
context_shifts:
  storage:
    - frontend
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollIntervalSeconds != 2 {
		t.Fatalf("interval = %d", cfg.PollIntervalSeconds)
	}
	if cfg.ProvenancePath != "/tmp/decisions.db" {
		t.Fatalf("provenance path = %q", cfg.ProvenancePath)
	}
	if len(cfg.ExtraFailureKeywords) != 1 || cfg.ExtraFailureKeywords[0] != "rollback executed" {
		t.Fatalf("keywords = %v", cfg.ExtraFailureKeywords)
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := writeConfig(t, "provenance_path: x.db\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollIntervalSeconds != 5 {
		t.Fatalf("interval default not applied: %d", cfg.PollIntervalSeconds)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "poll_interval_seconds: [not an int\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadRejectsNegativeInterval(t *testing.T) {
	path := writeConfig(t, "poll_interval_seconds: -3\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestMergedContextShifts(t *testing.T) {
	cfg := Config{ContextShifts: map[string][]string{
		"database": {"frontend"},
		"storage":  {"network"},
	}}
	base := map[string][]string{"database": {"network"}}

	merged := cfg.MergedContextShifts(base)
	if got := merged["database"]; len(got) != 2 || got[0] != "network" || got[1] != "frontend" {
		t.Fatalf("database = %v", got)
	}
	if got := merged["storage"]; len(got) != 1 || got[0] != "network" {
		t.Fatalf("storage = %v", got)
	}
	// Base table must not be mutated.
	if len(base["database"]) != 1 {
		t.Fatalf("base mutated: %v", base["database"])
	}
}
