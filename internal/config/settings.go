// Package config implements the Settings & ingest config ambient component:
// repo-local `.narrative/settings.json` (enable/disable, log level,
// telemetry opt-in) and the app-data-dir `ingest-config.json` consumed by
// the ingestion pipeline. Grounded on the teacher's cmd/entire/cli/config.go
// and cmd/entire/cli/settings/settings.go (default-then-local-override load,
// atomic temp+rename save); the atomic-write mechanics follow
// strategy/session_state.go's SaveSessionState.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jscraik/firefly-narrative/internal/jsonutil"
	"github.com/jscraik/firefly-narrative/internal/paths"
)

const (
	// SettingsFile is the repo-local, typically-committed settings file.
	SettingsFile = ".narrative/settings.json"
	// SettingsLocalFile overrides SettingsFile and is not meant to be committed.
	SettingsLocalFile = ".narrative/settings.local.json"
)

// Settings is the .narrative/settings.json schema.
type Settings struct {
	// Enabled gates the ingestion pipeline and hook shims; hooks exit 0
	// silently when false.
	Enabled bool `json:"enabled"`

	// LogLevel sets NARRATIVE_LOG_LEVEL's default when the env var is unset.
	LogLevel string `json:"logLevel,omitempty"`

	// Telemetry controls anonymous usage analytics: nil = not asked yet,
	// true = opted in, false = opted out.
	Telemetry *bool `json:"telemetry,omitempty"`

	// DisableMultiToolWarning silences the status/doctor warning shown when
	// more than one AI tool's hooks are active in the same repo.
	DisableMultiToolWarning bool `json:"disableMultiToolWarning,omitempty"`
}

// Load reads Settings from the repo root, applying SettingsLocalFile
// overrides on top of SettingsFile. Missing files yield defaults
// (Enabled: true).
func Load(repoRoot string) (*Settings, error) {
	base, err := loadFromFile(filepath.Join(repoRoot, SettingsFile))
	if err != nil {
		return nil, fmt.Errorf("config: reading settings: %w", err)
	}

	localData, err := os.ReadFile(filepath.Join(repoRoot, SettingsLocalFile)) //nolint:gosec // fixed relative path under repoRoot
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading local settings: %w", err)
		}
		return base, nil
	}
	if err := mergeJSON(base, localData); err != nil {
		return nil, fmt.Errorf("config: merging local settings: %w", err)
	}
	return base, nil
}

func loadFromFile(path string) (*Settings, error) {
	settings := &Settings{Enabled: true}
	data, err := os.ReadFile(path) //nolint:gosec // fixed relative path under repoRoot
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	return settings, nil
}

// mergeJSON overlays raw onto settings field by field, leaving fields the
// override omits untouched (rather than json.Unmarshal's zero-value reset).
func mergeJSON(settings *Settings, raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}
	if v, ok := fields["enabled"]; ok {
		if err := json.Unmarshal(v, &settings.Enabled); err != nil {
			return fmt.Errorf("parsing enabled: %w", err)
		}
	}
	if v, ok := fields["logLevel"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("parsing logLevel: %w", err)
		}
		if s != "" {
			settings.LogLevel = s
		}
	}
	if v, ok := fields["telemetry"]; ok {
		var t bool
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("parsing telemetry: %w", err)
		}
		settings.Telemetry = &t
	}
	if v, ok := fields["disableMultiToolWarning"]; ok {
		if err := json.Unmarshal(v, &settings.DisableMultiToolWarning); err != nil {
			return fmt.Errorf("parsing disableMultiToolWarning: %w", err)
		}
	}
	return nil
}

// Save atomically writes settings to <repoRoot>/.narrative/settings.json.
func Save(repoRoot string, settings *Settings) error {
	if err := paths.EnsureNarrativeMetaDir(repoRoot); err != nil {
		return fmt.Errorf("config: ensure .narrative dir: %w", err)
	}
	data, err := jsonutil.MarshalIndentWithNewline(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal settings: %w", err)
	}
	target := filepath.Join(repoRoot, SettingsFile)
	//nolint:gosec // G306: settings contain no secrets
	return jsonutil.WriteAtomic(target, data, 0o644)
}

// IsEnabled reports whether ingestion is active for repoRoot, defaulting to
// true if settings cannot be read.
func IsEnabled(repoRoot string) bool {
	settings, err := Load(repoRoot)
	if err != nil {
		return true
	}
	return settings.Enabled
}
