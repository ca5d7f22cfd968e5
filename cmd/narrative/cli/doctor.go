package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jscraik/firefly-narrative/internal/gitutil"
	"github.com/jscraik/firefly-narrative/internal/hooks"
	"github.com/jscraik/firefly-narrative/internal/paths"
	"github.com/jscraik/firefly-narrative/internal/store"
	"github.com/spf13/cobra"
)

// newDoctorCmd reports the ingestion pipeline's health for a single repo:
// hook install status, database schema/FTS availability, Atlas index
// staleness, and the tail of the ingest audit log, so a user can tell
// whether "nothing shows up in the Atlas" means "not tracked" or "tracked
// but erroring".
func newDoctorCmd() *cobra.Command {
	var repoPath string
	var since string
	var limit int

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report the ingestion pipeline's health for this repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, repoPath, since, limit)
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository working tree path")
	cmd.Flags().StringVar(&since, "since", "", "only show audit log entries with an id greater than this ULID")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum audit log entries to show")
	return cmd
}

func runDoctor(cmd *cobra.Command, repoPath, since string, limit int) error {
	out := cmd.OutOrStdout()
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	repo, err := gitutil.Open(repoPath)
	if err != nil {
		return NewSilentError(fmt.Errorf("doctor: %w", err))
	}

	cliPath, err := paths.CLIBinaryPath()
	if err != nil {
		return NewSilentError(fmt.Errorf("doctor: %w", err))
	}
	if hooks.IsInstalled(repo, cliPath) {
		fmt.Fprintf(out, "%s hooks installed (%s)\n", ok("✓"), cliPath)
	} else {
		fmt.Fprintf(out, "%s hooks not installed — run `narrative-cli setup`\n", bad("✗"))
	}

	dbPath, err := paths.DatabasePath()
	if err != nil {
		return NewSilentError(fmt.Errorf("doctor: %w", err))
	}
	db, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(out, "%s could not open database at %s: %v\n", bad("✗"), dbPath, err)
		return nil
	}
	defer db.Close() //nolint:errcheck,gosec // read-only command, best-effort close

	fmt.Fprintf(out, "%s database schema version %d (%s)\n", ok("✓"), db.SchemaVersion(), dbPath)
	if db.FTSAvailable() {
		fmt.Fprintf(out, "%s full-text search available\n", ok("✓"))
	} else {
		fmt.Fprintf(out, "%s full-text search unavailable (sqlite built without FTS5); Atlas search falls back to LIKE\n", bad("✗"))
	}

	repoRow, err := db.ResolveRepo(repo.Root())
	if err != nil {
		return NewSilentError(fmt.Errorf("doctor: %w", err))
	}

	state, err := db.GetAtlasIndexState(repoRow.ID)
	if err != nil || state == nil {
		fmt.Fprintf(out, "%s Atlas index has never been built for this repo\n", bad("✗"))
	} else {
		fmt.Fprintf(out, "%s Atlas index: %d sessions, %d chunks, last updated %s\n",
			ok("✓"), state.SessionsIndexed, state.ChunksIndexed, humanize.Time(state.LastUpdatedAt))
		if state.LastError != "" {
			fmt.Fprintf(out, "%s last rebuild error: %s\n", bad("✗"), state.LastError)
		}
	}

	entries, err := db.ListAuditLogSince(repoRow.ID, since, limit)
	if err != nil {
		return NewSilentError(fmt.Errorf("doctor: %w", err))
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No ingest audit log entries.")
		return nil
	}
	fmt.Fprintf(out, "\nRecent audit log entries:\n")
	for _, e := range entries {
		marker := ok("ok")
		if e.Status != "ok" {
			marker = bad(string(e.Status))
		}
		fmt.Fprintf(out, "  [%s] %s %s %s %s", marker, humanize.Time(e.CreatedAt), e.SourceTool, e.Action, e.SourcePath)
		if e.ErrorMessage != "" {
			fmt.Fprintf(out, " — %s", e.ErrorMessage)
		}
		fmt.Fprintln(out)
	}
	return nil
}
