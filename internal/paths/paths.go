// Package paths resolves the filesystem layout spec §6 requires: the
// app-data directory (database, ingest config, CLI binary copy) and the
// per-repo `.narrative/` working directory. Repo-root discovery is
// grounded on the teacher's paths.RepoRoot (cmd/entire/cli/paths/paths.go)
// but resolves via go-git instead of shelling out to `git rev-parse`.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jscraik/firefly-narrative/internal/gitutil"
)

const (
	// DefaultBundleID names the app-data subdirectory when NARRATIVE_APP_ID
	// is unset (spec §6).
	DefaultBundleID = "dev.narrative.app"

	// NarrativeDir is the per-repo metadata directory.
	NarrativeDir     = ".narrative"
	NarrativeMetaDir = ".narrative/meta"
	HooksLogFile     = ".narrative/meta/hooks.log"

	DatabaseFileName      = "narrative.db"
	IngestConfigFileName  = "ingest-config.json"
	CLIBinaryFileName     = "narrative-cli"
)

// Env variable names from spec §6.
const (
	EnvDBPath             = "NARRATIVE_DB_PATH"
	EnvCLIPath            = "NARRATIVE_CLI_PATH"
	EnvWriteRecoveredNote = "NARRATIVE_WRITE_RECOVERED_NOTES"
	EnvAppID              = "NARRATIVE_APP_ID"
)

var (
	repoRootMu    sync.RWMutex
	repoRootCache = map[string]string{}
)

// BundleID returns NARRATIVE_APP_ID if set, else DefaultBundleID.
func BundleID() string {
	if v := os.Getenv(EnvAppID); v != "" {
		return v
	}
	return DefaultBundleID
}

// AppDataDir returns <user-config-dir>/<bundle-id>, creating it if absent.
func AppDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("paths: user config dir: %w", err)
	}
	dir := filepath.Join(base, BundleID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("paths: create app data dir: %w", err)
	}
	return dir, nil
}

// DatabasePath honors NARRATIVE_DB_PATH, else <app-data-dir>/narrative.db.
func DatabasePath() (string, error) {
	if v := os.Getenv(EnvDBPath); v != "" {
		return v, nil
	}
	dir, err := AppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DatabaseFileName), nil
}

// IngestConfigPath returns <app-data-dir>/ingest-config.json.
func IngestConfigPath() (string, error) {
	dir, err := AppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, IngestConfigFileName), nil
}

// CLIBinaryPath honors NARRATIVE_CLI_PATH, else <app-data-dir>/narrative-cli.
func CLIBinaryPath() (string, error) {
	if v := os.Getenv(EnvCLIPath); v != "" {
		return v, nil
	}
	dir, err := AppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CLIBinaryFileName), nil
}

// RepoRoot returns the git working-tree root containing dir, cached per
// starting directory since repeated object-store opens are unnecessary.
func RepoRoot(dir string) (string, error) {
	repoRootMu.RLock()
	if cached, ok := repoRootCache[dir]; ok {
		repoRootMu.RUnlock()
		return cached, nil
	}
	repoRootMu.RUnlock()

	repo, err := gitutil.Open(dir)
	if err != nil {
		return "", fmt.Errorf("paths: not a git repository: %w", err)
	}
	root := repo.Root()

	repoRootMu.Lock()
	repoRootCache[dir] = root
	repoRootMu.Unlock()
	return root, nil
}

// ClearRepoRootCache clears the cached repo roots; used by tests that
// change directories mid-run.
func ClearRepoRootCache() {
	repoRootMu.Lock()
	repoRootCache = map[string]string{}
	repoRootMu.Unlock()
}

// HooksLogPath returns <repoRoot>/.narrative/meta/hooks.log.
func HooksLogPath(repoRoot string) string {
	return filepath.Join(repoRoot, HooksLogFile)
}

// EnsureNarrativeMetaDir creates <repoRoot>/.narrative/meta.
func EnsureNarrativeMetaDir(repoRoot string) error {
	return os.MkdirAll(filepath.Join(repoRoot, NarrativeMetaDir), 0o755)
}

// WriteRecoveredNotesEnabled reports whether NARRATIVE_WRITE_RECOVERED_NOTES=1.
func WriteRecoveredNotesEnabled() bool {
	return os.Getenv(EnvWriteRecoveredNote) == "1"
}
