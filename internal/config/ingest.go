package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jscraik/firefly-narrative/internal/jsonutil"
	"github.com/jscraik/firefly-narrative/internal/paths"
)

// ingestConfigSchemaVersion is bumped when IngestConfig's shape changes in a
// way that requires migration.
const ingestConfigSchemaVersion = 1

// TrackedRepo is one repository the ingestion pipeline watches.
type TrackedRepo struct {
	RepoID int64  `json:"repoId"`
	Path   string `json:"path"`
}

// IngestConfig is the schema of <app_data_dir>/<bundle-id>/ingest-config.json
// (spec §6). Camel-cased per the external-interfaces contract since this
// file is also read by the desktop UI shell, out of this module's scope.
type IngestConfig struct {
	SchemaVersion     int           `json:"schemaVersion"`
	TrackedRepos      []TrackedRepo `json:"trackedRepos"`
	AllowlistRoots    []string      `json:"allowlistRoots"`
	EnabledTools      []string      `json:"enabledTools,omitempty"`
	WatcherDebounceMs int           `json:"watcherDebounceMs,omitempty"`
}

// LoadIngestConfig reads the app-data-dir ingest config, returning an empty
// default (schema version stamped, no tracked repos) if the file is absent.
func LoadIngestConfig() (*IngestConfig, error) {
	path, err := paths.IngestConfigPath()
	if err != nil {
		return nil, fmt.Errorf("config: resolve ingest config path: %w", err)
	}

	cfg := &IngestConfig{SchemaVersion: ingestConfigSchemaVersion}
	data, err := os.ReadFile(path) //nolint:gosec // path is resolved by paths.IngestConfigPath
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading ingest config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing ingest config: %w", err)
	}
	return cfg, nil
}

// SaveIngestConfig atomically writes cfg to the app-data-dir ingest config
// path, stamping the current schema version.
func SaveIngestConfig(cfg *IngestConfig) error {
	path, err := paths.IngestConfigPath()
	if err != nil {
		return fmt.Errorf("config: resolve ingest config path: %w", err)
	}
	cfg.SchemaVersion = ingestConfigSchemaVersion

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("config: create app data dir: %w", err)
	}
	data, err := jsonutil.MarshalIndentWithNewline(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal ingest config: %w", err)
	}
	//nolint:gosec // G306: ingest config carries paths, not secrets
	return jsonutil.WriteAtomic(path, data, 0o644)
}

// AddTrackedRepo inserts repo into cfg if absent (matched by RepoID),
// keeping TrackedRepos sorted by RepoID for deterministic writes.
func (c *IngestConfig) AddTrackedRepo(repo TrackedRepo) {
	for _, r := range c.TrackedRepos {
		if r.RepoID == repo.RepoID {
			return
		}
	}
	c.TrackedRepos = append(c.TrackedRepos, repo)
	sort.Slice(c.TrackedRepos, func(i, j int) bool {
		return c.TrackedRepos[i].RepoID < c.TrackedRepos[j].RepoID
	})
}

// RemoveTrackedRepo deletes the tracked repo entry with the given RepoID, if
// present.
func (c *IngestConfig) RemoveTrackedRepo(repoID int64) {
	out := c.TrackedRepos[:0]
	for _, r := range c.TrackedRepos {
		if r.RepoID != repoID {
			out = append(out, r)
		}
	}
	c.TrackedRepos = out
}
