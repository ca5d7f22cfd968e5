package store

import (
	"fmt"
	"time"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// UpsertNoteMeta records the last-written note digest per (commit, kind),
// driving "note is stale" detection (spec §3 StoryAnchorNoteMeta).
func (db *DB) UpsertNoteMeta(m *model.StoryAnchorNoteMeta) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	_, err := db.sqlDB().Exec(
		`INSERT INTO story_anchor_note_meta (repo_id, commit_sha, note_kind, note_ref, note_hash, schema_version, updated_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(repo_id, commit_sha, note_kind) DO UPDATE SET
		   note_ref=excluded.note_ref, note_hash=excluded.note_hash,
		   schema_version=excluded.schema_version, updated_at=excluded.updated_at`,
		m.RepoID, m.CommitSHA, string(m.NoteKind), m.NoteRef, m.NoteHash, m.SchemaVersion, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert note meta: %w", err)
	}
	return nil
}

// GetNoteMeta returns the recorded digest for a (commit, kind), if any.
func (db *DB) GetNoteMeta(repoID int64, commitSHA string, kind model.NoteKind) (*model.StoryAnchorNoteMeta, error) {
	row := db.sqlDB().QueryRow(
		`SELECT repo_id, commit_sha, note_kind, note_ref, note_hash, schema_version, updated_at
		 FROM story_anchor_note_meta WHERE repo_id = ? AND commit_sha = ? AND note_kind = ?`,
		repoID, commitSHA, string(kind),
	)
	var m model.StoryAnchorNoteMeta
	var k string
	if err := row.Scan(&m.RepoID, &m.CommitSHA, &k, &m.NoteRef, &m.NoteHash, &m.SchemaVersion, &m.UpdatedAt); err != nil {
		return nil, fmt.Errorf("store: get note meta: %w", err)
	}
	m.NoteKind = model.NoteKind(k)
	return &m, nil
}

// InsertLineageEvent records a rewrite/merge event (spec §4.I "lineage note").
func (db *DB) InsertLineageEvent(repoID int64, headSHA, eventType, rewrittenPairsJSON, algorithm string) error {
	_, err := db.sqlDB().Exec(
		`INSERT INTO lineage_events (repo_id, head_sha, event_type, rewritten_pairs, algorithm, created_at)
		 VALUES (?,?,?,?,?,?)`,
		repoID, headSHA, eventType, rewrittenPairsJSON, algorithm, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: insert lineage event: %w", err)
	}
	return nil
}
