// Package attribution implements the Line Attribution Engine (spec §4.F):
// walking zero-context unified diffs to produce changed ranges, classified
// as ai_agent (pure addition) or mixed (modification), attributed to the
// primary session linked to a commit. Grounded on go-git's
// object.Commit.Patch/FilePatch.Chunks walking, used by the teacher's
// strategy/content_overlap.go and manual_commit_attribution.go for the same
// tree/diff traversal.
package attribution

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// RangeKind discriminates a ChangedRange before attribution classification.
type RangeKind string

const (
	RangeAdded    RangeKind = "added"
	RangeModified RangeKind = "modified"
)

// ChangedRange is one contiguous span of changed lines in a file, as
// produced by walking a commit's zero-context diff (spec §4.F step 2).
type ChangedRange struct {
	FilePath  string
	StartLine int
	EndLine   int
	Kind      RangeKind
}

// ComputeChangedRanges implements spec §4.F steps 1–2: opens commit and its
// first parent, computes a zero-context patch, and walks hunks to produce
// ChangedRange values. kind = Added if the hunk introduces no preceding '-'
// lines in its current streak, else Modified.
func ComputeChangedRanges(commit *object.Commit) ([]ChangedRange, error) {
	if commit.NumParents() == 0 {
		return rootCommitRanges(commit)
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("attribution: parent: %w", err)
	}
	patch, err := parent.Patch(commit)
	if err != nil {
		return nil, fmt.Errorf("attribution: patch: %w", err)
	}

	var ranges []ChangedRange
	for _, fp := range patch.FilePatches() {
		_, to := fp.Files()
		if to == nil {
			continue // pure deletion; no lines to attribute on the new side
		}
		ranges = append(ranges, rangesFromChunks(to.Path(), fp.Chunks())...)
	}
	return ranges, nil
}

// rangesFromChunks walks one file's diff chunks, tracking the new-file line
// cursor, and coalesces consecutive Delete-then-Add runs into Modified
// ranges per spec §4.F's Added/Modified rule.
func rangesFromChunks(path string, chunks []diff.Chunk) []ChangedRange {
	var ranges []ChangedRange
	newLine := 1
	var current *ChangedRange
	sawDeleteInStreak := false

	flush := func() {
		if current != nil {
			ranges = append(ranges, *current)
			current = nil
		}
		sawDeleteInStreak = false
	}

	for _, c := range chunks {
		lines := countLines(c.Content())
		switch c.Type() {
		case diff.Equal:
			flush()
			newLine += lines
		case diff.Delete:
			sawDeleteInStreak = true
		case diff.Add:
			kind := RangeAdded
			if sawDeleteInStreak {
				kind = RangeModified
			}
			if current == nil {
				current = &ChangedRange{FilePath: path, StartLine: newLine, EndLine: newLine + lines - 1, Kind: kind}
			} else {
				current.EndLine = newLine + lines - 1
				if kind == RangeModified {
					current.Kind = RangeModified
				}
			}
			newLine += lines
		}
	}
	flush()
	return ranges
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func rootCommitRanges(commit *object.Commit) ([]ChangedRange, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("attribution: root tree: %w", err)
	}
	var ranges []ChangedRange
	err = tree.Files().ForEach(func(f *object.File) error {
		isBinary, err := f.IsBinary()
		if err != nil || isBinary {
			return nil //nolint:nilerr // binary/unreadable files carry no line attribution
		}
		content, err := f.Contents()
		if err != nil {
			return nil //nolint:nilerr
		}
		n := countLines(content)
		if n == 0 {
			return nil
		}
		ranges = append(ranges, ChangedRange{FilePath: f.Name, StartLine: 1, EndLine: n, Kind: RangeAdded})
		return nil
	})
	return ranges, err
}

// ToLineAttributions classifies ranges per spec §4.F step 3, attributing to
// the primary session linked to the commit.
func ToLineAttributions(repoID int64, commitSHA string, ranges []ChangedRange, sessionID string, tool model.Tool, modelName string) []model.LineAttribution {
	out := make([]model.LineAttribution, 0, len(ranges))
	for _, r := range ranges {
		a := model.LineAttribution{
			RepoID: repoID, CommitSHA: commitSHA, FilePath: r.FilePath,
			StartLine: r.StartLine, EndLine: r.EndLine, SessionID: sessionID,
			Tool: tool, Model: modelName, TraceAvailable: true,
		}
		if r.Kind == RangeAdded {
			a.AuthorType = model.AuthorAIAgent
			a.AIPercentage = 100
		} else {
			a.AuthorType = model.AuthorMixed
			a.AIPercentage = 50
		}
		out = append(out, a)
	}
	return out
}
