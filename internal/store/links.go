package store

import (
	"fmt"
	"time"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// UpsertSessionLink implements the 1:1 upsert from spec §3/§4.E: concurrent
// link attempts converge on the last writer's confidence (spec §5).
func (db *DB) UpsertSessionLink(l *model.SessionLink) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := db.sqlDB().Exec(
		`INSERT INTO session_links (repo_id, session_id, commit_sha, confidence, auto_linked, needs_review, created_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(repo_id, session_id) DO UPDATE SET
		   commit_sha = excluded.commit_sha,
		   confidence = excluded.confidence,
		   auto_linked = excluded.auto_linked,
		   needs_review = excluded.needs_review`,
		l.RepoID, l.SessionID, l.CommitSHA, l.Confidence, l.AutoLinked, l.NeedsReview, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert session link: %w", err)
	}
	return nil
}

// GetSessionLink returns the link for a session, if any.
func (db *DB) GetSessionLink(repoID int64, sessionID string) (*model.SessionLink, error) {
	row := db.sqlDB().QueryRow(
		`SELECT repo_id, session_id, commit_sha, confidence, auto_linked, needs_review, created_at
		 FROM session_links WHERE repo_id = ? AND session_id = ?`,
		repoID, sessionID,
	)
	var l model.SessionLink
	if err := row.Scan(&l.RepoID, &l.SessionID, &l.CommitSHA, &l.Confidence, &l.AutoLinked, &l.NeedsReview, &l.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: get session link: %w", err)
	}
	return &l, nil
}

// UpsertCommitSessionLink implements the many-to-many projection used by
// notes export and rewrite recovery (spec §3 CommitSessionLink).
func (db *DB) UpsertCommitSessionLink(l *model.CommitSessionLink) error {
	_, err := db.sqlDB().Exec(
		`INSERT INTO commit_session_links (repo_id, commit_sha, session_id, source, confidence)
		 VALUES (?,?,?,?,?)
		 ON CONFLICT(repo_id, commit_sha, session_id, source) DO UPDATE SET confidence = excluded.confidence`,
		l.RepoID, l.CommitSHA, l.SessionID, string(l.Source), l.Confidence,
	)
	if err != nil {
		return fmt.Errorf("store: upsert commit session link: %w", err)
	}
	return nil
}

// ListCommitSessionLinks returns every session linked to a commit, across
// all provenance sources, ordered by provenance precedence
// (notes > recovered > heuristic) per spec §3.
func (db *DB) ListCommitSessionLinks(repoID int64, commitSHA string) ([]model.CommitSessionLink, error) {
	rows, err := db.sqlDB().Query(
		`SELECT repo_id, commit_sha, session_id, source, confidence
		 FROM commit_session_links WHERE repo_id = ? AND commit_sha = ?
		 ORDER BY CASE source WHEN 'notes' THEN 0 WHEN 'recovered' THEN 1 ELSE 2 END`,
		repoID, commitSHA,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list commit session links: %w", err)
	}
	defer rows.Close()

	var out []model.CommitSessionLink
	for rows.Next() {
		var l model.CommitSessionLink
		var source string
		var confidence *float64
		if err := rows.Scan(&l.RepoID, &l.CommitSHA, &l.SessionID, &source, &confidence); err != nil {
			return nil, fmt.Errorf("store: scan commit session link: %w", err)
		}
		l.Source = model.LinkSource(source)
		if confidence != nil {
			l.Confidence = *confidence
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
