package store

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// InsertAuditLog appends an IngestAuditLog row; the id is a ulid so
// `narrative-cli doctor --since <ulid>` can page tail entries without a
// secondary index (see DESIGN.md).
func (db *DB) InsertAuditLog(entry *model.IngestAuditLog) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	_, err := db.sqlDB().Exec(
		`INSERT INTO ingest_audit_log (
			id, repo_id, source_tool, source_path, session_id, action, status,
			redaction_count, error_message, created_at
		 ) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		entry.ID, entry.RepoID, string(entry.SourceTool), entry.SourcePath, entry.SessionID,
		string(entry.Action), string(entry.Status), entry.RedactionCount, entry.ErrorMessage, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogSince returns audit rows with id > sinceULID (exclusive),
// ordered ascending; an empty sinceULID returns the oldest entries first.
func (db *DB) ListAuditLogSince(repoID int64, sinceULID string, limit int) ([]model.IngestAuditLog, error) {
	rows, err := db.sqlDB().Query(
		`SELECT id, repo_id, source_tool, source_path, session_id, action, status,
		        redaction_count, error_message, created_at
		 FROM ingest_audit_log WHERE repo_id = ? AND id > ? ORDER BY id ASC LIMIT ?`,
		repoID, sinceULID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list audit log: %w", err)
	}
	defer rows.Close()

	var out []model.IngestAuditLog
	for rows.Next() {
		var e model.IngestAuditLog
		var tool, action, status string
		var sourcePath, sessionID, errMsg *string
		if err := rows.Scan(&e.ID, &e.RepoID, &tool, &sourcePath, &sessionID, &action, &status,
			&e.RedactionCount, &errMsg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan audit log: %w", err)
		}
		e.SourceTool = model.Tool(tool)
		e.Action = model.IngestAction(action)
		e.Status = model.IngestStatus(status)
		if sourcePath != nil {
			e.SourcePath = *sourcePath
		}
		if sessionID != nil {
			e.SessionID = *sessionID
		}
		if errMsg != nil {
			e.ErrorMessage = *errMsg
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
