package cli

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/jscraik/firefly-narrative/internal/gitutil"
	"github.com/jscraik/firefly-narrative/internal/notes"
	"github.com/spf13/cobra"
)

func newNotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Inspect and migrate story-anchor git notes",
	}
	cmd.AddCommand(newNotesMigrateCmd())
	return cmd
}

// newNotesMigrateCmd implements spec §4.H's batch migration: copy every
// commit's note body from the pre-namespacing legacy ref to the canonical
// refs/notes/narrative/* ref, for all three note kinds, leaving the legacy
// refs in place.
func newNotesMigrateCmd() *cobra.Command {
	var repoPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy notes from legacy refs to the canonical refs/notes/narrative/* refs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNotesMigrate(cmd, repoPath)
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository working tree path")
	return cmd
}

func runNotesMigrate(cmd *cobra.Command, repoPath string) error {
	out := cmd.OutOrStdout()

	repo, err := gitutil.Open(repoPath)
	if err != nil {
		return NewSilentError(fmt.Errorf("notes migrate: %w", err))
	}

	shas, err := allCommitSHAs(repo)
	if err != nil {
		return NewSilentError(fmt.Errorf("notes migrate: %w", err))
	}

	store := notes.NewStore(repo.GoGit())
	kinds := []notes.Kind{notes.KindAttribution, notes.KindSessions, notes.KindLineage}
	total := 0
	for _, kind := range kinds {
		legacyRef := notes.LegacyRefFor(kind)
		migrated, err := store.Migrate(kind, legacyRef, shas)
		if err != nil {
			return NewSilentError(fmt.Errorf("notes migrate: %s: %w", kind, err))
		}
		fmt.Fprintf(out, "%s: migrated %d note(s) from %s\n", kind, migrated, legacyRef)
		total += migrated
	}
	if total == 0 {
		fmt.Fprintln(out, "Nothing to migrate.")
	}
	return nil
}

// allCommitSHAs walks every commit reachable from any reference, since
// legacy notes may be attached to commits outside the current branch's
// history (stale feature branches, etc).
func allCommitSHAs(repo *gitutil.Repo) ([]string, error) {
	iter, err := repo.GoGit().Log(&git.LogOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("notes: walk history: %w", err)
	}
	var shas []string
	err = iter.ForEach(func(c *object.Commit) error {
		shas = append(shas, c.Hash.String())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("notes: walk history: %w", err)
	}
	return shas, nil
}
