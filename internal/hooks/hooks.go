// Package hooks implements the Hook Supervisor (spec §4.M): installs
// post-commit/post-merge/post-rewrite shims into a repository's effective
// hooks directory, re-entrancy guarded, timeout-wrapped, and always
// exiting 0 so git operations never fail because of narrative. Grounded on
// the teacher's strategy/hooks.go (writeHookFile idempotent-write pattern,
// hook marker comment, 0o755 executable perms) and hooks_git_cmd.go
// (per-hook cobra subcommand dispatch shape, reused by cmd/narrative/cli).
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jscraik/firefly-narrative/internal/gitutil"
)

const (
	hookMarker      = "firefly-narrative hooks"
	reentryGuardEnv = "NARRATIVE_HOOK_RUNNING"
	hookTimeoutSecs = "8"
)

// ManagedHooks are the git hooks the Hook Supervisor installs (spec §4.M);
// narrative does not touch prepare-commit-msg/commit-msg/pre-push.
var ManagedHooks = []string{"post-commit", "post-merge", "post-rewrite"}

// Install writes shims for every ManagedHooks entry into repo's effective
// hooks directory (core.hooksPath if set, else .git/hooks), honoring
// cliPath as the stable CLI invocation target. Returns the number of shims
// actually written (files already up to date are skipped).
func Install(repo *gitutil.Repo, cliPath string) (int, error) {
	hooksDir, err := ResolveHooksDir(repo)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return 0, fmt.Errorf("hooks: create hooks dir: %w", err)
	}

	written := 0
	for _, name := range ManagedHooks {
		path := filepath.Join(hooksDir, name)
		content := shimScript(name, cliPath)
		ok, err := writeIfChanged(path, content)
		if err != nil {
			return written, fmt.Errorf("hooks: install %s: %w", name, err)
		}
		if ok {
			written++
		}
	}
	return written, nil
}

// Remove deletes every narrative-managed shim from repo's effective hooks
// directory, leaving any hook file not carrying hookMarker untouched.
func Remove(repo *gitutil.Repo) (int, error) {
	hooksDir, err := ResolveHooksDir(repo)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range ManagedHooks {
		path := filepath.Join(hooksDir, name)
		data, err := os.ReadFile(path) //nolint:gosec // path built from fixed hook names
		if err != nil {
			continue
		}
		if strings.Contains(string(data), hookMarker) {
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("hooks: remove %s: %w", name, err)
			}
			removed++
		}
	}
	return removed, nil
}

// IsInstalled reports whether every managed hook is present and current.
func IsInstalled(repo *gitutil.Repo, cliPath string) bool {
	hooksDir, err := ResolveHooksDir(repo)
	if err != nil {
		return false
	}
	for _, name := range ManagedHooks {
		data, err := os.ReadFile(filepath.Join(hooksDir, name)) //nolint:gosec
		if err != nil || string(data) != shimScript(name, cliPath) {
			return false
		}
	}
	return true
}

// ResolveHooksDir honors a core.hooksPath override, resolved relative to
// the working tree root per git's own semantics; falls back to
// <gitdir>/hooks.
func ResolveHooksDir(repo *gitutil.Repo) (string, error) {
	override, err := repo.HooksPath()
	if err != nil {
		return "", err
	}
	if override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		return filepath.Join(repo.Root(), override), nil
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(gitDir, "hooks"), nil
}

// shimScript renders a POSIX shell shim per spec §4.M: re-entrancy guard,
// 5-8s timeout, errors redirected to .narrative/meta/hooks.log, always
// exits 0.
func shimScript(hookName, cliPath string) string {
	args := hookArgs(hookName)
	return fmt.Sprintf(`#!/bin/sh
# %s
if [ -n "$%s" ]; then
  exit 0
fi
export %s=1
mkdir -p .narrative/meta
timeout %s %s hook %s %s >> .narrative/meta/hooks.log 2>&1
exit 0
`, hookMarker, reentryGuardEnv, reentryGuardEnv, hookTimeoutSecs, cliPath, hookName, args)
}

func hookArgs(hookName string) string {
	switch hookName {
	case "post-rewrite":
		return `--repo "$PWD" --command "$1" --rewritten /dev/stdin`
	default:
		return `--repo "$PWD"`
	}
}

func writeIfChanged(path, content string) (bool, error) {
	existing, err := os.ReadFile(path) //nolint:gosec // path built from fixed hook names
	if err == nil && string(existing) == content {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil { //nolint:gosec // hooks must be executable
		return false, fmt.Errorf("hooks: write %s: %w", path, err)
	}
	return true, nil
}
