package gitutil

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitsInWindow returns CommitInfo for every commit on HEAD's history
// authored within [start, end], newest first. The Linker further narrows
// this to its own scoring window (spec §4.E).
func (r *Repo) CommitsInWindow(start, end time.Time) ([]CommitInfo, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("gitutil: head: %w", err)
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("gitutil: log: %w", err)
	}
	defer iter.Close()

	var out []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		authoredAt := c.Author.When
		if authoredAt.Before(start) {
			return storerStop // history walked past the window; commits only get older
		}
		if authoredAt.After(end) {
			return nil
		}
		files, ferr := r.ChangedFiles(c)
		if ferr != nil {
			return ferr
		}
		out = append(out, CommitInfo{SHA: c.Hash.String(), AuthoredAt: authoredAt.Unix(), Files: files})
		return nil
	})
	if err != nil && err != storerStop {
		return nil, fmt.Errorf("gitutil: walk window: %w", err)
	}
	return out, nil
}
