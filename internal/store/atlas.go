package store

import (
	"fmt"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// ReplaceAtlasChunks implements spec §4.J's replace semantics: on any
// re-projection the per-session chunk set is deleted and rewritten in one
// transaction, so readers never observe a partial rewrite.
func (db *DB) ReplaceAtlasChunks(repoID int64, sessionID string, chunks []model.AtlasChunk) error {
	tx, err := db.sqlDB().Begin()
	if err != nil {
		return fmt.Errorf("store: begin replace chunks: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM atlas_chunks WHERE repo_id = ? AND session_id = ?`, repoID, sessionID); err != nil {
		return fmt.Errorf("store: clear atlas chunks: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO atlas_chunks (
			chunk_uid, repo_id, session_id, chunk_index, start_message_index,
			end_message_index, role_mask, text, session_imported_at
		 ) VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("store: prepare insert chunk: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.Exec(
			c.ChunkUID, c.RepoID, c.SessionID, c.ChunkIndex, c.StartMessageIndex,
			c.EndMessageIndex, c.RoleMask, c.Text, c.SessionImportedAt,
		); err != nil {
			return fmt.Errorf("store: insert chunk: %w", err)
		}
	}

	return tx.Commit()
}

// ListAtlasChunks returns every chunk for a session, in chunk order.
func (db *DB) ListAtlasChunks(repoID int64, sessionID string) ([]model.AtlasChunk, error) {
	rows, err := db.sqlDB().Query(
		`SELECT chunk_uid, repo_id, session_id, chunk_index, start_message_index,
		        end_message_index, role_mask, text, session_imported_at
		 FROM atlas_chunks WHERE repo_id = ? AND session_id = ? ORDER BY chunk_index`,
		repoID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list atlas chunks: %w", err)
	}
	defer rows.Close()

	var out []model.AtlasChunk
	for rows.Next() {
		var c model.AtlasChunk
		if err := rows.Scan(&c.ChunkUID, &c.RepoID, &c.SessionID, &c.ChunkIndex, &c.StartMessageIndex,
			&c.EndMessageIndex, &c.RoleMask, &c.Text, &c.SessionImportedAt); err != nil {
			return nil, fmt.Errorf("store: scan atlas chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertAtlasIndexState records projection freshness (spec §3 AtlasIndexState).
func (db *DB) UpsertAtlasIndexState(s *model.AtlasIndexState) error {
	_, err := db.sqlDB().Exec(
		`INSERT INTO atlas_index_state (
			repo_id, derived_version, last_rebuild_at, last_updated_at,
			last_error, sessions_indexed, chunks_indexed
		 ) VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(repo_id) DO UPDATE SET
			derived_version=excluded.derived_version, last_rebuild_at=excluded.last_rebuild_at,
			last_updated_at=excluded.last_updated_at, last_error=excluded.last_error,
			sessions_indexed=excluded.sessions_indexed, chunks_indexed=excluded.chunks_indexed`,
		s.RepoID, s.DerivedVersion, s.LastRebuildAt, s.LastUpdatedAt, s.LastError,
		s.SessionsIndexed, s.ChunksIndexed,
	)
	if err != nil {
		return fmt.Errorf("store: upsert atlas index state: %w", err)
	}
	return nil
}

// GetAtlasIndexState returns the per-repo projection state, used by
// `narrative-cli doctor` to report index staleness.
func (db *DB) GetAtlasIndexState(repoID int64) (*model.AtlasIndexState, error) {
	row := db.sqlDB().QueryRow(
		`SELECT repo_id, derived_version, last_rebuild_at, last_updated_at,
		        last_error, sessions_indexed, chunks_indexed
		 FROM atlas_index_state WHERE repo_id = ?`,
		repoID,
	)
	var s model.AtlasIndexState
	if err := row.Scan(&s.RepoID, &s.DerivedVersion, &s.LastRebuildAt, &s.LastUpdatedAt,
		&s.LastError, &s.SessionsIndexed, &s.ChunksIndexed); err != nil {
		return nil, fmt.Errorf("store: get atlas index state: %w", err)
	}
	return &s, nil
}
