package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// ResolveRepo returns the repo row for path, creating it if absent, and
// bumps last_opened_at. Repo root resolution itself lives in internal/paths;
// this is purely the storage-side upsert.
func (db *DB) ResolveRepo(path string) (*model.Repo, error) {
	now := time.Now().UTC()
	conn := db.sqlDB()

	res, err := conn.Exec(
		`INSERT INTO repos(filesystem_path, last_opened_at) VALUES (?, ?)
		 ON CONFLICT(filesystem_path) DO UPDATE SET last_opened_at = excluded.last_opened_at`,
		path, now,
	)
	if err != nil {
		return nil, fmt.Errorf("store: resolve repo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		// Conflict path: LastInsertId is unreliable on UPSERT update branch,
		// so re-read by unique path.
		row := conn.QueryRow(`SELECT id FROM repos WHERE filesystem_path = ?`, path)
		if err := row.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: resolve repo id: %w", err)
		}
	}
	return &model.Repo{ID: id, FilesystemPath: path, LastOpenedAt: now}, nil
}

// GetRepo loads a repo by id.
func (db *DB) GetRepo(id int64) (*model.Repo, error) {
	row := db.sqlDB().QueryRow(`SELECT id, filesystem_path, last_opened_at FROM repos WHERE id = ?`, id)
	var r model.Repo
	if err := row.Scan(&r.ID, &r.FilesystemPath, &r.LastOpenedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: repo %d not found", id)
		}
		return nil, fmt.Errorf("store: get repo: %w", err)
	}
	return &r, nil
}
