// Package versioncheck implements the non-blocking self-update notice
// ambient component: a once-a-day GitHub releases check, cached under the
// user's global config directory, printed as a one-line notice when the
// installed CLI is outdated. Grounded on the teacher's
// cmd/entire/cli/versioncheck package.
package versioncheck

import "time"

// VersionCache persists the last check time to <globalConfigDir>/version_check.json.
type VersionCache struct {
	LastCheckTime time.Time `json:"last_check_time"`
}

// GitHubRelease is the subset of the GitHub releases API response this
// package reads.
type GitHubRelease struct {
	TagName    string `json:"tag_name"`
	Prerelease bool   `json:"prerelease"`
}

// githubAPIURL is mutable so tests can point it at an httptest server.
var githubAPIURL = "https://api.github.com/repos/jscraik/firefly-narrative/releases/latest"

const (
	checkInterval = 24 * time.Hour
	httpTimeout   = 2 * time.Second

	cacheFileName       = "version_check.json"
	globalConfigDirName = ".config/narrative"
)
