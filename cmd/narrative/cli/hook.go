package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jscraik/firefly-narrative/internal/gitutil"
	"github.com/jscraik/firefly-narrative/internal/ingest"
	"github.com/jscraik/firefly-narrative/internal/logging"
	"github.com/jscraik/firefly-narrative/internal/model"
	"github.com/jscraik/firefly-narrative/internal/notes"
	"github.com/jscraik/firefly-narrative/internal/paths"
	"github.com/jscraik/firefly-narrative/internal/store"
	"github.com/spf13/cobra"
)

// newHookCmd is the hidden dispatch entry point git hook shims invoke
// (spec §6: `narrative-cli hook <name> --repo <path> ...`). It never
// returns a non-usage error: failures are logged to hooks.log and the
// command exits 0, since the shim's own "timeout ...; exit 0" wrapper
// relies on the CLI not wedging a git operation, not on its exit code.
func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hook",
		Short:  "Git hook handlers (invoked by installed shims)",
		Hidden: true,
	}
	cmd.AddCommand(newHookPostCommitCmd())
	cmd.AddCommand(newHookPostMergeCmd())
	cmd.AddCommand(newHookPostRewriteCmd())
	return cmd
}

func newHookPostCommitCmd() *cobra.Command {
	var repoPath string
	cmd := &cobra.Command{
		Use:   "post-commit",
		Short: "Handle the post-commit git hook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommitHook(cmd, repoPath)
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository working tree path")
	return cmd
}

func newHookPostMergeCmd() *cobra.Command {
	var repoPath string
	cmd := &cobra.Command{
		Use:   "post-merge",
		Short: "Handle the post-merge git hook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommitHook(cmd, repoPath)
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository working tree path")
	return cmd
}

func newHookPostRewriteCmd() *cobra.Command {
	var repoPath, command, rewrittenFile string
	cmd := &cobra.Command{
		Use:   "post-rewrite",
		Short: "Handle the post-rewrite git hook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRewriteHook(cmd, repoPath, command, rewrittenFile)
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository working tree path")
	cmd.Flags().StringVar(&command, "command", "", "the git command that triggered the rewrite (amend, rebase, ...)")
	cmd.Flags().StringVar(&rewrittenFile, "rewritten", "/dev/stdin", "file of old-sha new-sha pairs, one per line")
	return cmd
}

// hookEnv bundles the state every hook subcommand needs: an open repo, an
// open database, the resolved repo row, and a notes.Store wired to the
// same repository's object store.
type hookEnv struct {
	repo      *gitutil.Repo
	db        *store.DB
	repoRow   *model.Repo
	noteStore *notes.Store
}

func openHookEnv(repoPath string) (*hookEnv, func(), error) {
	repo, err := gitutil.Open(repoPath)
	if err != nil {
		return nil, nil, fmt.Errorf("hook: open repo: %w", err)
	}

	dbPath, err := paths.DatabasePath()
	if err != nil {
		return nil, nil, fmt.Errorf("hook: resolve db path: %w", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("hook: open db: %w", err)
	}

	repoRow, err := db.ResolveRepo(repo.Root())
	if err != nil {
		db.Close() //nolint:errcheck,gosec // best-effort cleanup on the error path
		return nil, nil, fmt.Errorf("hook: resolve repo row: %w", err)
	}

	env := &hookEnv{
		repo:      repo,
		db:        db,
		repoRow:   repoRow,
		noteStore: notes.NewStore(repo.GoGit()),
	}
	return env, func() { db.Close() }, nil //nolint:errcheck,gosec // best-effort cleanup
}

// runCommitHook handles both post-commit and post-merge: both leave HEAD
// pointing at the commit whose attribution/sessions notes need refreshing.
func runCommitHook(cmd *cobra.Command, repoPath string) error {
	env, cleanup, err := openHookEnv(repoPath)
	if err != nil {
		logHookFailure(repoPath, cmd.Name(), err)
		return nil
	}
	defer cleanup()

	head, err := env.repo.GoGit().Head()
	if err != nil {
		logHookFailure(repoPath, cmd.Name(), err)
		return nil
	}

	ctx := logging.WithComponent(cmd.Context(), "hooks")
	if err := ingest.OnCommit(ctx, env.db, env.repo, env.noteStore, env.repoRow.ID, head.Hash().String()); err != nil {
		logHookFailure(repoPath, cmd.Name(), err)
	}
	return nil
}

func runRewriteHook(cmd *cobra.Command, repoPath, command, rewrittenFile string) error {
	env, cleanup, err := openHookEnv(repoPath)
	if err != nil {
		logHookFailure(repoPath, "post-rewrite", err)
		return nil
	}
	defer cleanup()

	pairs, err := readRewrittenPairs(rewrittenFile)
	if err != nil {
		logHookFailure(repoPath, "post-rewrite", err)
		return nil
	}

	noteStore := env.noteStore
	if !paths.WriteRecoveredNotesEnabled() {
		// OnRewrite skips note export entirely when given a nil store; the
		// rewrite-key bookkeeping and link recovery still run either way.
		noteStore = nil
	}

	shaPairs := make([][2]string, len(pairs))
	for i, p := range pairs {
		shaPairs[i] = [2]string{p.oldSHA, p.newSHA}
	}

	ctx := logging.WithComponent(cmd.Context(), "hooks")
	if err := ingest.OnRewrite(ctx, env.db, env.repo, noteStore, env.repoRow.ID, shaPairs); err != nil {
		logHookFailure(repoPath, "post-rewrite", fmt.Errorf("command=%s: %w", command, err))
	}
	return nil
}

type rewrittenPair struct{ oldSHA, newSHA string }

// readRewrittenPairs parses git's post-rewrite hook input: one "<old-sha>
// <new-sha>[ <extra>]" triple per line, extra fields ignored.
func readRewrittenPairs(path string) ([]rewrittenPair, error) {
	f, err := os.Open(path) //nolint:gosec // path is the hook-supplied --rewritten file or /dev/stdin
	if err != nil {
		return nil, fmt.Errorf("hook: open rewritten file: %w", err)
	}
	defer f.Close()

	var pairs []rewrittenPair
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		pairs = append(pairs, rewrittenPair{oldSHA: fields[0], newSHA: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("hook: read rewritten file: %w", err)
	}
	return pairs, nil
}

func logHookFailure(repoPath, hookName string, err error) {
	if writeErr := appendHookLog(repoPath, hookName, err); writeErr != nil {
		fmt.Fprintf(os.Stderr, "narrative-cli: %s hook failed (and could not write hooks.log: %v): %v\n", hookName, writeErr, err)
	}
}

func appendHookLog(repoPath, hookName string, hookErr error) error {
	root, err := paths.RepoRoot(repoPath)
	if err != nil {
		root = repoPath
	}
	if err := paths.EnsureNarrativeMetaDir(root); err != nil {
		return err
	}
	f, err := os.OpenFile(paths.HooksLogPath(root), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // fixed path under .narrative/meta
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s: %v\n", hookName, hookErr)
	return err
}
