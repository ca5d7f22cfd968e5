package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jscraik/firefly-narrative/internal/config"
	"github.com/jscraik/firefly-narrative/internal/gitutil"
	"github.com/jscraik/firefly-narrative/internal/ingest"
	"github.com/jscraik/firefly-narrative/internal/logging"
	"github.com/jscraik/firefly-narrative/internal/paths"
	"github.com/jscraik/firefly-narrative/internal/store"
	"github.com/jscraik/firefly-narrative/internal/watcher"
	"github.com/spf13/cobra"
)

// newWatchCmd runs the File Watcher (spec §4.L) in the foreground over
// every tracked repo's allowlist roots, ingesting each settled session
// file it observes. Hidden: in normal operation the desktop app's
// background process runs this, not an interactive user.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "watch",
		Short:  "Watch tracked repositories for new session files and ingest them",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd)
		},
	}
	return cmd
}

func runWatch(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := config.LoadIngestConfig()
	if err != nil {
		return NewSilentError(fmt.Errorf("watch: %w", err))
	}
	if len(cfg.TrackedRepos) == 0 {
		fmt.Fprintln(out, "No repositories are tracked; run `narrative-cli setup` first.")
		return nil
	}

	dbPath, err := paths.DatabasePath()
	if err != nil {
		return NewSilentError(fmt.Errorf("watch: %w", err))
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return NewSilentError(fmt.Errorf("watch: %w", err))
	}
	defer db.Close() //nolint:errcheck,gosec // foreground daemon, closes on ctrl-C

	roots := make([]string, 0, len(cfg.TrackedRepos))
	for _, r := range cfg.TrackedRepos {
		roots = append(roots, r.Path)
	}

	predicate := watcher.Any(
		watcher.ClaudeCodePredicate,
		watcher.CodexPredicate,
		watcher.CursorPredicate,
		watcher.ContinuePredicate,
		watcher.GeminiCLIPredicate,
		watcher.CopilotPredicate,
	)

	onChange := func(changedPaths []string) {
		for _, p := range changedPaths {
			if err := ingestChangedPath(ctx, db, cfg, p); err != nil {
				logging.Warn(ctx, "watch: ingest failed", "path", p, "error", err.Error())
			}
		}
	}

	w, err := watcher.New(roots, predicate, onChange, slog.Default())
	if err != nil {
		return NewSilentError(fmt.Errorf("watch: %w", err))
	}

	watched, unwatched, err := w.WatchRoots()
	if err != nil {
		return NewSilentError(fmt.Errorf("watch: %w", err))
	}
	fmt.Fprintf(out, "Watching %d root(s) (%d unwatchable) across %d tracked repo(s). Press Ctrl+C to stop.\n", watched, unwatched, len(cfg.TrackedRepos))

	w.Start()
	defer w.Stop()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	return nil
}

// ingestChangedPath maps a changed file back to the tracked repo whose
// working-tree root contains it, then runs the A→B→C→D→E→J pipeline.
func ingestChangedPath(ctx context.Context, db *store.DB, cfg *config.IngestConfig, path string) error {
	var tracked *config.TrackedRepo
	for i := range cfg.TrackedRepos {
		if strings.HasPrefix(path, cfg.TrackedRepos[i].Path+string(os.PathSeparator)) {
			tracked = &cfg.TrackedRepos[i]
			break
		}
	}
	if tracked == nil {
		return fmt.Errorf("watch: no tracked repo contains %s", path)
	}

	repo, err := gitutil.Open(tracked.Path)
	if err != nil {
		return fmt.Errorf("watch: open repo: %w", err)
	}

	if _, err := ingest.IngestFile(ctx, db, repo, tracked.RepoID, path); err != nil {
		return fmt.Errorf("watch: ingest: %w", err)
	}
	return nil
}
