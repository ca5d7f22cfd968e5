package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/jscraik/firefly-narrative/internal/gitutil"
	"github.com/jscraik/firefly-narrative/internal/notes"
)

func initRepoWithCommit(t *testing.T) (dir string, sha string) {
	t.Helper()
	dir = t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	filePath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	hash, err := wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@test.com"},
	})
	require.NoError(t, err)

	return dir, hash.String()
}

func TestAllCommitSHAs_WalksHistory(t *testing.T) {
	dir, sha := initRepoWithCommit(t)
	repo, err := gitutil.Open(dir)
	require.NoError(t, err)

	shas, err := allCommitSHAs(repo)
	require.NoError(t, err)
	require.Contains(t, shas, sha)
}

func TestRunNotesMigrate_CopiesLegacyNotesToCanonicalRefs(t *testing.T) {
	dir, sha := initRepoWithCommit(t)
	repo, err := gitutil.Open(dir)
	require.NoError(t, err)

	store := notes.NewStore(repo.GoGit())
	require.NoError(t, store.WriteNote(notes.KindAttribution, sha, []byte("legacy-attribution")))

	// Move the note from its canonical ref to the legacy ref name so
	// runNotesMigrate has something to migrate.
	canonicalRef, err := repo.GoGit().Reference(plumbing.ReferenceName(notes.RefAttribution), true)
	require.NoError(t, err)
	require.NoError(t, repo.GoGit().Storer.SetReference(
		plumbing.NewHashReference(plumbing.ReferenceName(notes.LegacyRefFor(notes.KindAttribution)), canonicalRef.Hash())))
	require.NoError(t, repo.GoGit().Storer.RemoveReference(canonicalRef.Name()))

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runNotesMigrate(cmd, dir))

	got, err := store.ReadNote(notes.KindAttribution, sha)
	require.NoError(t, err)
	require.Equal(t, []byte("legacy-attribution"), got)
	require.Contains(t, out.String(), "attribution: migrated 1 note(s)")
}

func TestRunNotesMigrate_NothingToMigrate(t *testing.T) {
	dir, _ := initRepoWithCommit(t)

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runNotesMigrate(cmd, dir))
	require.Contains(t, out.String(), "Nothing to migrate.")
}
