package config

import (
	"testing"
)

func TestLoadIngestConfig_DefaultsWhenAbsent(t *testing.T) {
	t.Setenv("NARRATIVE_APP_ID", "narrative-test-"+t.Name())
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg, err := LoadIngestConfig()
	if err != nil {
		t.Fatalf("LoadIngestConfig() error = %v", err)
	}
	if cfg.SchemaVersion != ingestConfigSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", cfg.SchemaVersion, ingestConfigSchemaVersion)
	}
	if len(cfg.TrackedRepos) != 0 {
		t.Errorf("expected no tracked repos by default, got %d", len(cfg.TrackedRepos))
	}
}

func TestSaveLoadIngestConfig_RoundTrips(t *testing.T) {
	t.Setenv("NARRATIVE_APP_ID", "narrative-test-"+t.Name())
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := &IngestConfig{
		AllowlistRoots:    []string{"/home/user/.claude", "/tmp"},
		EnabledTools:      []string{"claude-code", "codex"},
		WatcherDebounceMs: 500,
	}
	cfg.AddTrackedRepo(TrackedRepo{RepoID: 1, Path: "/repo/a"})

	if err := SaveIngestConfig(cfg); err != nil {
		t.Fatalf("SaveIngestConfig() error = %v", err)
	}

	got, err := LoadIngestConfig()
	if err != nil {
		t.Fatalf("LoadIngestConfig() error = %v", err)
	}
	if len(got.TrackedRepos) != 1 || got.TrackedRepos[0].Path != "/repo/a" {
		t.Errorf("TrackedRepos = %+v, want one entry for /repo/a", got.TrackedRepos)
	}
	if len(got.AllowlistRoots) != 2 {
		t.Errorf("AllowlistRoots = %v, want 2 entries", got.AllowlistRoots)
	}
	if got.WatcherDebounceMs != 500 {
		t.Errorf("WatcherDebounceMs = %d, want 500", got.WatcherDebounceMs)
	}
}

func TestAddTrackedRepo_IsIdempotentAndSorted(t *testing.T) {
	cfg := &IngestConfig{}
	cfg.AddTrackedRepo(TrackedRepo{RepoID: 3, Path: "/c"})
	cfg.AddTrackedRepo(TrackedRepo{RepoID: 1, Path: "/a"})
	cfg.AddTrackedRepo(TrackedRepo{RepoID: 3, Path: "/c-dup"})

	if len(cfg.TrackedRepos) != 2 {
		t.Fatalf("expected 2 tracked repos, got %d", len(cfg.TrackedRepos))
	}
	if cfg.TrackedRepos[0].RepoID != 1 || cfg.TrackedRepos[1].RepoID != 3 {
		t.Errorf("expected repos sorted by id, got %+v", cfg.TrackedRepos)
	}
}

func TestRemoveTrackedRepo(t *testing.T) {
	cfg := &IngestConfig{}
	cfg.AddTrackedRepo(TrackedRepo{RepoID: 1, Path: "/a"})
	cfg.AddTrackedRepo(TrackedRepo{RepoID: 2, Path: "/b"})

	cfg.RemoveTrackedRepo(1)
	if len(cfg.TrackedRepos) != 1 || cfg.TrackedRepos[0].RepoID != 2 {
		t.Errorf("expected only repo 2 to remain, got %+v", cfg.TrackedRepos)
	}
}
