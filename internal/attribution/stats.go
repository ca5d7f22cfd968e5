// stats.go implements Contribution Stats (spec §4.G): re-deriving per-commit
// tallies from line_attributions by replaying the §4.F merge rule per file,
// with an explicit heuristic fallback when no attributions exist yet
// (message_count × 10, bounded by commit_file_count × 5), per the kept
// Open Question decision in DESIGN.md.
package attribution

import (
	"sort"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// ComputeStats replays the merge rule across every (file, line) covered by
// attrs and produces the cacheable tally. attrs may span multiple files;
// grouping/merging is done per file internally.
func ComputeStats(repoID int64, commitSHA string, attrs []model.LineAttribution) model.CommitContributionStats {
	byFile := map[string][]model.LineAttribution{}
	for _, a := range attrs {
		byFile[a.FilePath] = append(byFile[a.FilePath], a)
	}

	stats := model.CommitContributionStats{RepoID: repoID, CommitSHA: commitSHA}
	toolLines := map[model.Tool]int{}
	var primarySession string
	var primaryTool model.Tool
	var primaryModel string

	for _, fileAttrs := range byFile {
		lineMetas := mergeFileLines(fileAttrs)
		for _, meta := range lineMetas {
			stats.TotalLines++
			switch meta.Kind {
			case model.AuthorHuman:
				stats.HumanLines++
			case model.AuthorAIAgent:
				stats.AIAgentLines++
			case model.AuthorAITab:
				stats.AIAssistLines++
			case model.AuthorMixed:
				stats.CollaborativeLines++
			}
			if meta.Kind != model.AuthorHuman {
				toolLines[meta.Tool]++
				if primarySession == "" {
					primarySession = meta.SessionID
					primaryTool = meta.Tool
					primaryModel = meta.Model
				}
			}
		}
	}

	if stats.TotalLines > 0 {
		stats.AIPercentage = float64(stats.TotalLines-stats.HumanLines) / float64(stats.TotalLines)
	}
	stats.PrimarySessionID = primarySession
	stats.Tool = primaryTool
	stats.Model = primaryModel
	stats.ToolBreakdown = breakdown(toolLines)
	return stats
}

// mergeFileLines expands a file's attribution ranges into per-line merges.
func mergeFileLines(attrs []model.LineAttribution) []LineMeta {
	maxLine := 0
	for _, a := range attrs {
		if a.EndLine > maxLine {
			maxLine = a.EndLine
		}
	}
	lineAttrs := make([][]model.LineAttribution, maxLine+1)
	for _, a := range attrs {
		for line := a.StartLine; line <= a.EndLine; line++ {
			lineAttrs[line] = append(lineAttrs[line], a)
		}
	}

	metas := make([]LineMeta, 0, maxLine)
	for line := 1; line <= maxLine; line++ {
		if len(lineAttrs[line]) == 0 {
			metas = append(metas, LineMeta{Kind: model.AuthorHuman})
			continue
		}
		metas = append(metas, MergeOverlaps(lineAttrs[line]))
	}
	return metas
}

func breakdown(toolLines map[model.Tool]int) []model.ToolBreakdown {
	out := make([]model.ToolBreakdown, 0, len(toolLines))
	for tool, lines := range toolLines {
		out = append(out, model.ToolBreakdown{Tool: tool, Lines: lines})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lines > out[j].Lines })
	return out
}

// FallbackFromSession implements spec §4.G's heuristic for a commit with no
// attributions yet: message_count × 10, bounded by commit_file_count × 5,
// producing 100% AI stats. Marked by leaving ToolBreakdown with a single
// entry so callers can tell a heuristic estimate from a real computation by
// checking for attribution rows separately.
func FallbackFromSession(repoID int64, commitSHA string, s *model.Session, commitFileCount int) model.CommitContributionStats {
	estimate := s.MessageCount * 10
	bound := commitFileCount * 5
	if bound > 0 && estimate > bound {
		estimate = bound
	}
	return model.CommitContributionStats{
		RepoID: repoID, CommitSHA: commitSHA,
		AIAgentLines: estimate, TotalLines: estimate, AIPercentage: 1.0,
		PrimarySessionID: s.ID, Tool: s.Tool, Model: s.Model,
		ToolBreakdown: []model.ToolBreakdown{{Tool: s.Tool, Lines: estimate}},
	}
}
