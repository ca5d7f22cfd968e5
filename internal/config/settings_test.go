package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EnabledDefaultsToTrue(t *testing.T) {
	repoRoot := t.TempDir()

	settings, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true when no settings file exists")
	}

	settingsDir := filepath.Join(repoRoot, filepath.Dir(SettingsFile))
	if err := os.MkdirAll(settingsDir, 0o755); err != nil {
		t.Fatalf("mkdir settings dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, SettingsFile), []byte(`{"logLevel":"debug"}`), 0o644); err != nil {
		t.Fatalf("write settings file: %v", err)
	}

	settings, err = Load(repoRoot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !settings.Enabled {
		t.Error("Enabled should default to true when field is missing from JSON")
	}
	if settings.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", settings.LogLevel)
	}
}

func TestLoad_ExplicitDisabled(t *testing.T) {
	repoRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repoRoot, ".narrative"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, SettingsFile), []byte(`{"enabled":false}`), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	settings, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if settings.Enabled {
		t.Error("Enabled should be false when explicitly set to false")
	}
	if IsEnabled(repoRoot) {
		t.Error("IsEnabled() should reflect the false setting")
	}
}

func TestLoad_LocalOverrideAppliesOnTop(t *testing.T) {
	repoRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repoRoot, ".narrative"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, SettingsFile), []byte(`{"enabled":true,"logLevel":"info"}`), 0o644); err != nil {
		t.Fatalf("write base settings: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, SettingsLocalFile), []byte(`{"logLevel":"debug"}`), 0o644); err != nil {
		t.Fatalf("write local settings: %v", err)
	}

	settings, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if settings.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (local override)", settings.LogLevel)
	}
	if !settings.Enabled {
		t.Error("Enabled should be preserved from base settings when local doesn't override it")
	}
}

func TestSave_PreservesEnabledAndRoundTrips(t *testing.T) {
	repoRoot := t.TempDir()
	telemetryOn := true

	if err := Save(repoRoot, &Settings{Enabled: false, LogLevel: "warn", Telemetry: &telemetryOn}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Enabled {
		t.Error("expected Enabled=false to round-trip")
	}
	if got.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", got.LogLevel)
	}
	if got.Telemetry == nil || !*got.Telemetry {
		t.Error("expected Telemetry=true to round-trip")
	}
}
