package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSettings(t *testing.T) {
	s := Default()
	if s.AllowUnsafePipelines {
		t.Error("expected unsafe pipelines disabled by default")
	}
	if s.Level() != slog.LevelInfo {
		t.Errorf("expected default level info, got %v", s.Level())
	}
}

func TestLevelFallsBackOnUnrecognizedValue(t *testing.T) {
	s := Settings{ConsoleVerbosity: "not-a-level"}
	if s.Level() != slog.LevelInfo {
		t.Errorf("expected fallback to info, got %v", s.Level())
	}
}

func TestLevelParsesKnownValue(t *testing.T) {
	s := Settings{ConsoleVerbosity: "debug"}
	if s.Level() != slog.LevelDebug {
		t.Errorf("expected debug, got %v", s.Level())
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	yaml := "allow_unsafe_pipelines: true\nconsole_verbosity: warn\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.AllowUnsafePipelines {
		t.Error("expected allow_unsafe_pipelines true")
	}
	if s.Level() != slog.LevelWarn {
		t.Errorf("expected warn level, got %v", s.Level())
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
