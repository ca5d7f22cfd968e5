package store

// dataDDL defines the core relational tables (spec §3), mirroring
// rekal-dev's data-DDL-as-constant style (cmd/rekal/cli/db/schema.go).
const dataDDL = `
CREATE TABLE IF NOT EXISTS repos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filesystem_path TEXT NOT NULL UNIQUE,
	last_opened_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT NOT NULL,
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	tool TEXT NOT NULL,
	model TEXT,
	conversation_id TEXT NOT NULL,
	imported_at TIMESTAMP NOT NULL,
	duration_min REAL,
	message_count INTEGER NOT NULL DEFAULT 0,
	files TEXT NOT NULL DEFAULT '[]',
	raw_json BLOB NOT NULL,
	source_path TEXT,
	source_session_id TEXT,
	redaction_count INTEGER NOT NULL DEFAULT 0,
	redaction_types TEXT NOT NULL DEFAULT '[]',
	dedupe_key TEXT,
	purged_at TIMESTAMP,
	PRIMARY KEY (repo_id, id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_dedupe
	ON sessions(repo_id, dedupe_key) WHERE dedupe_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS session_links (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	session_id TEXT NOT NULL,
	commit_sha TEXT NOT NULL,
	confidence REAL NOT NULL,
	auto_linked INTEGER NOT NULL DEFAULT 1,
	needs_review INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(repo_id, session_id)
);

CREATE TABLE IF NOT EXISTS commit_session_links (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha TEXT NOT NULL,
	session_id TEXT NOT NULL,
	source TEXT NOT NULL,
	confidence REAL,
	UNIQUE(repo_id, commit_sha, session_id, source)
);

CREATE TABLE IF NOT EXISTS line_attributions (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha TEXT NOT NULL,
	file_path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	session_id TEXT,
	author_type TEXT NOT NULL,
	ai_percentage REAL,
	tool TEXT,
	model TEXT,
	trace_available INTEGER NOT NULL DEFAULT 0,
	CHECK (start_line <= end_line AND start_line >= 1)
);
CREATE INDEX IF NOT EXISTS idx_line_attributions_commit
	ON line_attributions(repo_id, commit_sha, file_path);

CREATE TABLE IF NOT EXISTS commit_contribution_stats (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha TEXT NOT NULL,
	human_lines INTEGER NOT NULL,
	ai_agent_lines INTEGER NOT NULL,
	ai_assist_lines INTEGER NOT NULL,
	collaborative_lines INTEGER NOT NULL,
	total_lines INTEGER NOT NULL,
	ai_percentage REAL NOT NULL,
	primary_session_id TEXT,
	tool TEXT,
	model TEXT,
	tool_breakdown TEXT NOT NULL DEFAULT '[]',
	computed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, commit_sha)
);

CREATE TABLE IF NOT EXISTS commit_rewrite_keys (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha TEXT NOT NULL,
	rewrite_key TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, commit_sha)
);
CREATE INDEX IF NOT EXISTS idx_rewrite_keys_key ON commit_rewrite_keys(repo_id, rewrite_key);

CREATE TABLE IF NOT EXISTS atlas_chunks (
	chunk_uid TEXT PRIMARY KEY,
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	session_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	start_message_index INTEGER NOT NULL,
	end_message_index INTEGER NOT NULL,
	role_mask TEXT NOT NULL,
	text TEXT NOT NULL,
	session_imported_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_atlas_chunks_session ON atlas_chunks(repo_id, session_id);

CREATE TABLE IF NOT EXISTS atlas_index_state (
	repo_id INTEGER PRIMARY KEY REFERENCES repos(id) ON DELETE CASCADE,
	derived_version INTEGER NOT NULL DEFAULT 0,
	last_rebuild_at TIMESTAMP,
	last_updated_at TIMESTAMP,
	last_error TEXT,
	sessions_indexed INTEGER NOT NULL DEFAULT 0,
	chunks_indexed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS story_anchor_note_meta (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha TEXT NOT NULL,
	note_kind TEXT NOT NULL,
	note_ref TEXT NOT NULL,
	note_hash TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, commit_sha, note_kind)
);

CREATE TABLE IF NOT EXISTS lineage_events (
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	head_sha TEXT NOT NULL,
	event_type TEXT NOT NULL,
	rewritten_pairs TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_audit_log (
	id TEXT PRIMARY KEY,
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	source_tool TEXT NOT NULL,
	source_path TEXT,
	session_id TEXT,
	action TEXT NOT NULL,
	status TEXT NOT NULL,
	redaction_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);
`

// indexDDL defines the FTS5 index over Atlas chunks (spec §4.N, §4.K). The
// content-linked table + sync triggers mirror wesm-agentsview's schemaFTS
// pattern in internal/db/db.go.
const indexDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS atlas_chunks_fts USING fts5(
	text,
	content='atlas_chunks',
	content_rowid='rowid',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS atlas_chunks_ai AFTER INSERT ON atlas_chunks BEGIN
	INSERT INTO atlas_chunks_fts(rowid, text) VALUES (new.rowid, new.text);
END;
CREATE TRIGGER IF NOT EXISTS atlas_chunks_ad AFTER DELETE ON atlas_chunks BEGIN
	INSERT INTO atlas_chunks_fts(atlas_chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
END;
CREATE TRIGGER IF NOT EXISTS atlas_chunks_au AFTER UPDATE ON atlas_chunks BEGIN
	INSERT INTO atlas_chunks_fts(atlas_chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
	INSERT INTO atlas_chunks_fts(rowid, text) VALUES (new.rowid, new.text);
END;
`

// schemaVersion gates the rebuild probe in Open(); bump when dataDDL or
// indexDDL changes shape in a way existing databases cannot migrate in place.
const schemaVersion = 1
