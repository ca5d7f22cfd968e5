// gitnotes.go persists note bodies as real git notes objects (tree + commit
// + ref, one flat tree keyed by full commit SHA) using go-git's plumbing
// package directly, the same way internal/gitutil walks commits — spec §4.H
// requires Story-Anchor Notes to be readable by plain `git notes show`, so
// the object graph must be indistinguishable from what git itself would
// write, even though nothing here shells out to the git binary. Grounded on
// go-git's object-creation primitives (plumbing.MemoryObject, object.Tree,
// object.Commit, Storer.SetEncodedObject/SetReference) as used read-side by
// internal/gitutil and internal/attribution.
package notes

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotFound is returned by ReadNote when no note exists for the commit.
var ErrNotFound = errors.New("notes: not found")

// Author identifies who to attribute generated note commits to.
const (
	authorName  = "firefly-narrative"
	authorEmail = "narrative@localhost"
)

// Store reads and writes notes against a single git repository's object
// store, canonical-ref-first with legacy fallback per spec §4.H.
type Store struct {
	repo *git.Repository
}

// NewStore wraps an already-opened go-git repository.
func NewStore(repo *git.Repository) *Store {
	return &Store{repo: repo}
}

// ReadNote returns the raw body of the note attached to commitSHA under
// kind's canonical ref. If the canonical ref has no entry, legacyRefs are
// tried in order (oldest first) before returning ErrNotFound, per spec
// §4.H's canonical-then-legacy read order.
func (s *Store) ReadNote(kind Kind, commitSHA string, legacyRefs ...string) ([]byte, error) {
	refs := append([]string{RefFor(kind)}, legacyRefs...)
	for _, refName := range refs {
		body, err := s.readFromRef(refName, commitSHA)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (s *Store) readFromRef(refName, commitSHA string) ([]byte, error) {
	ref, err := s.repo.Reference(plumbing.ReferenceName(refName), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("notes: resolve ref %s: %w", refName, err)
	}
	notesCommit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("notes: load notes commit: %w", err)
	}
	tree, err := notesCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("notes: load notes tree: %w", err)
	}
	entry, err := tree.File(commitSHA)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("notes: find note entry: %w", err)
	}
	r, err := entry.Reader()
	if err != nil {
		return nil, fmt.Errorf("notes: open note blob: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("notes: read note blob: %w", err)
	}
	return data, nil
}

// WriteNote attaches body to commitSHA under kind's canonical ref, creating
// the notes commit/tree/ref lineage if it does not yet exist. An existing
// entry for commitSHA is replaced (spec §4.H: notes are overwritten
// wholesale on reproject, never merged).
func (s *Store) WriteNote(kind Kind, commitSHA string, body []byte) error {
	refName := plumbing.ReferenceName(RefFor(kind))

	entries, parents, err := s.currentEntries(refName)
	if err != nil {
		return err
	}

	blobHash, err := s.writeBlob(body)
	if err != nil {
		return err
	}
	entries[commitSHA] = blobHash

	treeHash, err := s.writeTree(entries)
	if err != nil {
		return err
	}

	commitHash, err := s.writeCommit(treeHash, parents, fmt.Sprintf("narrative: update %s note for %s", kind, shortSHA(commitSHA)))
	if err != nil {
		return err
	}

	ref := plumbing.NewHashReference(refName, commitHash)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("notes: update ref %s: %w", refName, err)
	}
	return nil
}

// currentEntries loads the flat commitSHA->blobHash map from the ref's
// current tree, returning an empty map and no parent if the ref is unset.
func (s *Store) currentEntries(refName plumbing.ReferenceName) (map[string]plumbing.Hash, []plumbing.Hash, error) {
	ref, err := s.repo.Reference(refName, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return map[string]plumbing.Hash{}, nil, nil
		}
		return nil, nil, fmt.Errorf("notes: resolve ref %s: %w", refName, err)
	}
	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, nil, fmt.Errorf("notes: load notes commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("notes: load notes tree: %w", err)
	}
	entries := map[string]plumbing.Hash{}
	for _, e := range tree.Entries {
		entries[e.Name] = e.Hash
	}
	return entries, []plumbing.Hash{ref.Hash()}, nil
}

func (s *Store) writeBlob(content []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("notes: open blob writer: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, fmt.Errorf("notes: write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("notes: close blob writer: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("notes: store blob: %w", err)
	}
	return hash, nil
}

// writeTree builds a single flat tree keyed by full commit SHA. git's own
// notes machinery switches to a fanout of two-hex-char directories once a
// tree grows large; we keep it flat since a repo's narrative notes rarely
// number in the tens of thousands, and `git notes` reads flat trees fine.
func (s *Store) writeTree(entries map[string]plumbing.Hash) (plumbing.Hash, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	tree := &object.Tree{}
	for _, name := range names {
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: name,
			Mode: 0o100644,
			Hash: entries[name],
		})
	}

	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("notes: open tree writer: %w", err)
	}
	if err := tree.Encode(obj); err != nil {
		w.Close()
		return plumbing.ZeroHash, fmt.Errorf("notes: encode tree: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("notes: store tree: %w", err)
	}
	return hash, nil
}

func (s *Store) writeCommit(treeHash plumbing.Hash, parents []plumbing.Hash, message string) (plumbing.Hash, error) {
	now := time.Now()
	sig := object.Signature{Name: authorName, Email: authorEmail, When: now}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}

	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("notes: open commit writer: %w", err)
	}
	if err := commit.Encode(obj); err != nil {
		w.Close()
		return plumbing.ZeroHash, fmt.Errorf("notes: encode commit: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("notes: store commit: %w", err)
	}
	return hash, nil
}

// Migrate copies the note body attached to each of commits from legacyRef
// into kind's canonical ref, leaving legacyRef untouched (spec §4.H: "the
// legacy ref is left intact"). Commits already carrying a canonical entry,
// or with nothing under legacyRef, are skipped. Returns how many notes were
// actually copied.
func (s *Store) Migrate(kind Kind, legacyRef string, commits []string) (int, error) {
	migrated := 0
	for _, sha := range commits {
		if _, err := s.readFromRef(RefFor(kind), sha); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return migrated, err
		}

		body, err := s.readFromRef(legacyRef, sha)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return migrated, err
		}
		if err := s.WriteNote(kind, sha, body); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
