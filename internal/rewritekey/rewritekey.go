// Package rewritekey implements Rewrite-Key Recovery (spec §4.I): a
// content-derived patch-id over a commit's diff, stable across history
// rewrites that preserve patch content. spec.md only requires the notes
// wire format to be bit-exact for interop (§6) — not this algorithm — so
// this does not attempt bit-exact compatibility with `git patch-id`; it
// hashes the unified diff content itself. Grounded on go-git's diff
// primitives, shared with internal/attribution, for the same tree/diff
// traversal.
package rewritekey

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Algorithm identifies the rewrite-key algorithm recorded alongside the key.
const Algorithm = "narrative-content-diff-sha256/1"

// Compute implements spec §4.I step 1/2: patch_id(commit), a content hash
// over the commit's changed file paths and added/removed hunk text,
// independent of parent/line-number metadata so it is stable across
// rewrites (rebase, squash, amend) that preserve the same patch content.
func Compute(commit *object.Commit) (string, error) {
	if commit.NumParents() == 0 {
		return hashRootCommit(commit)
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return "", err
	}
	patch, err := parent.Patch(commit)
	if err != nil {
		return "", err
	}

	type fileDiff struct {
		path string
		text string
	}
	var diffs []fileDiff

	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		path := pathOf(from, to)
		var b strings.Builder
		for _, c := range fp.Chunks() {
			switch c.Type() {
			case diff.Add:
				b.WriteString("+")
				b.WriteString(normalize(c.Content()))
			case diff.Delete:
				b.WriteString("-")
				b.WriteString(normalize(c.Content()))
			}
		}
		diffs = append(diffs, fileDiff{path: path, text: b.String()})
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].path < diffs[j].path })

	h := sha256.New()
	for _, d := range diffs {
		h.Write([]byte(d.path))
		h.Write([]byte{0})
		h.Write([]byte(d.text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// normalize collapses whitespace runs (including line breaks) to a single
// space before hashing, so rewrites that only reflow or reindent a hunk's
// content still hash the same as the original.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func pathOf(from, to diff.File) string {
	if to != nil {
		return to.Path()
	}
	if from != nil {
		return from.Path()
	}
	return ""
}

func hashRootCommit(commit *object.Commit) (string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	err = tree.Files().ForEach(func(f *object.File) error {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write([]byte(f.Hash.String()))
		h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
