package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jscraik/firefly-narrative/internal/gitutil"
	"github.com/jscraik/firefly-narrative/internal/paths"
	"github.com/jscraik/firefly-narrative/internal/store"
	"github.com/spf13/cobra"
)

// newStatusCmd renders recent HEAD history with the per-commit contribution
// tally computed by the Attribution engine, falling back to the session
// heuristic when a commit has no cached stats row yet.
func newStatusCmd() *cobra.Command {
	var repoPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show AI-contribution stats for recent commits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, repoPath, limit)
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository working tree path")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent commits to show")
	return cmd
}

func runStatus(cmd *cobra.Command, repoPath string, limit int) error {
	repo, err := gitutil.Open(repoPath)
	if err != nil {
		return NewSilentError(fmt.Errorf("status: %w", err))
	}

	dbPath, err := paths.DatabasePath()
	if err != nil {
		return NewSilentError(fmt.Errorf("status: %w", err))
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return NewSilentError(fmt.Errorf("status: %w", err))
	}
	defer db.Close() //nolint:errcheck,gosec // read-only command, best-effort close

	repoRow, err := db.ResolveRepo(repo.Root())
	if err != nil {
		return NewSilentError(fmt.Errorf("status: %w", err))
	}

	commits, err := repo.RecentCommits(limit)
	if err != nil {
		return NewSilentError(fmt.Errorf("status: %w", err))
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(cmd.OutOrStdout())
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Commit", "Summary", "AI %", "Human", "AI", "Primary tool"})

	for _, c := range commits {
		sha := c.Hash.String()
		stats, err := db.GetContributionStats(repoRow.ID, sha)
		if err != nil || stats == nil {
			tbl.AppendRow(table.Row{sha[:8], firstLine(c.Message), "-", "-", "-", "-"})
			continue
		}
		primary := string(stats.Tool)
		if primary == "" {
			primary = "-"
		}
		tbl.AppendRow(table.Row{
			sha[:8],
			firstLine(c.Message),
			fmt.Sprintf("%.0f%%", stats.AIPercentage*100),
			humanize.Comma(int64(stats.HumanLines)),
			humanize.Comma(int64(stats.AIAgentLines + stats.AIAssistLines + stats.CollaborativeLines)),
			primary,
		})
	}

	tbl.Render()
	return nil
}

// firstLine returns msg's subject line, truncated to a readable width.
func firstLine(msg string) string {
	for i, r := range msg {
		if r == '\n' {
			msg = msg[:i]
			break
		}
	}
	const maxLen = 60
	if len(msg) > maxLen {
		return msg[:maxLen-1] + "…"
	}
	return msg
}
