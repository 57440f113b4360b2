// Package config holds process-wide, read-only settings (spec §6):
// allow_unsafe_pipelines and console_verbosity. Grounded on the pack's
// dpopsuev-asterisk repo, which carries gopkg.in/yaml.v3 as a direct
// dependency for exactly this shape of settings struct — the teacher
// (sandboxws/isotope) has no settings package of its own.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the process-wide, read-only configuration surface exposed to
// every node's control plane via AllowUnsafePipelines().
type Settings struct {
	// AllowUnsafePipelines enables operators that otherwise refuse to run
	// (e.g. ones touching raw sockets, unsandboxed shells, or other
	// security-sensitive surfaces).
	AllowUnsafePipelines bool `yaml:"allow_unsafe_pipelines"`

	// ConsoleVerbosity controls the default slog level for console output.
	ConsoleVerbosity string `yaml:"console_verbosity"`
}

// Default returns the conservative default settings: unsafe pipelines
// disabled, info-level logging.
func Default() Settings {
	return Settings{
		AllowUnsafePipelines: false,
		ConsoleVerbosity:     "info",
	}
}

// Level parses ConsoleVerbosity into a slog.Level, defaulting to Info on
// an empty or unrecognized value.
func (s Settings) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.ConsoleVerbosity)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads Settings from a YAML file at path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return s, nil
}
