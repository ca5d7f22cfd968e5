package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jscraik/firefly-narrative/internal/gitutil"
)

func initTestRepo(t *testing.T) *gitutil.Repo {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	repo, err := gitutil.Open(dir)
	require.NoError(t, err)
	return repo
}

func TestInstall_WritesAllManagedHooks(t *testing.T) {
	repo := initTestRepo(t)
	n, err := Install(repo, "/usr/local/bin/narrative")
	require.NoError(t, err)
	assert.Equal(t, len(ManagedHooks), n)

	hooksDir, err := ResolveHooksDir(repo)
	require.NoError(t, err)
	for _, name := range ManagedHooks {
		data, err := os.ReadFile(filepath.Join(hooksDir, name))
		require.NoError(t, err)
		assert.Contains(t, string(data), hookMarker)
		assert.Contains(t, string(data), reentryGuardEnv)
	}
}

func TestInstall_IsIdempotent(t *testing.T) {
	repo := initTestRepo(t)
	_, err := Install(repo, "/usr/local/bin/narrative")
	require.NoError(t, err)

	n, err := Install(repo, "/usr/local/bin/narrative")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second install should find every shim already up to date")
}

func TestRemove_DeletesOnlyMarkedHooks(t *testing.T) {
	repo := initTestRepo(t)
	_, err := Install(repo, "/usr/local/bin/narrative")
	require.NoError(t, err)

	hooksDir, err := ResolveHooksDir(repo)
	require.NoError(t, err)
	foreignHook := filepath.Join(hooksDir, "pre-commit")
	require.NoError(t, os.WriteFile(foreignHook, []byte("#!/bin/sh\necho unrelated\n"), 0o755))

	removed, err := Remove(repo)
	require.NoError(t, err)
	assert.Equal(t, len(ManagedHooks), removed)
	assert.FileExists(t, foreignHook)
}

func TestIsInstalled_FalseBeforeInstall(t *testing.T) {
	repo := initTestRepo(t)
	assert.False(t, IsInstalled(repo, "/usr/local/bin/narrative"))
}

func TestIsInstalled_TrueAfterInstall(t *testing.T) {
	repo := initTestRepo(t)
	_, err := Install(repo, "/usr/local/bin/narrative")
	require.NoError(t, err)
	assert.True(t, IsInstalled(repo, "/usr/local/bin/narrative"))
}

func TestInstall_EveryShimPassesRepoPath(t *testing.T) {
	repo := initTestRepo(t)
	_, err := Install(repo, "/usr/local/bin/narrative")
	require.NoError(t, err)

	hooksDir, err := ResolveHooksDir(repo)
	require.NoError(t, err)
	for _, name := range ManagedHooks {
		data, err := os.ReadFile(filepath.Join(hooksDir, name))
		require.NoError(t, err)
		assert.Contains(t, string(data), `--repo "$PWD"`, "%s shim must tell the CLI which repo invoked it", name)
	}
}
