package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/jscraik/firefly-narrative/internal/model"
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
}

func compressRawJSON(b []byte) []byte {
	return zstdEncoder.EncodeAll(b, make([]byte, 0, len(b)))
}

func decompressRawJSON(b []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("store: decompress raw_json: %w", err)
	}
	return out, nil
}

// InsertSessionResult reports whether an insert happened or was skipped as
// a duplicate (spec §4.D: "zero rows affected ⇒ duplicate, idempotent skip").
type InsertSessionResult struct {
	Inserted bool
}

// InsertSession implements the Dedupe Store (spec §4.D): a single
// INSERT ... ON CONFLICT(repo_id, dedupe_key) WHERE dedupe_key IS NOT NULL
// DO NOTHING. raw_json is compressed with zstd before being written.
func (db *DB) InsertSession(s *model.Session) (InsertSessionResult, error) {
	filesJSON, err := json.Marshal(s.Files)
	if err != nil {
		return InsertSessionResult{}, err
	}
	typesJSON, err := json.Marshal(s.RedactionTypes)
	if err != nil {
		return InsertSessionResult{}, err
	}

	var dedupeKey any
	if s.DedupeKey != "" {
		dedupeKey = s.DedupeKey
	}

	res, err := db.sqlDB().Exec(
		`INSERT INTO sessions (
			id, repo_id, tool, model, conversation_id, imported_at, duration_min,
			message_count, files, raw_json, source_path, source_session_id,
			redaction_count, redaction_types, dedupe_key
		 ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(repo_id, dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING`,
		s.ID, s.RepoID, string(s.Tool), s.Model, s.ConversationID, s.ImportedAt, s.DurationMin,
		s.MessageCount, string(filesJSON), compressRawJSON(s.RawJSON), s.SourcePath, s.SourceSessionID,
		s.RedactionCount, string(typesJSON), dedupeKey,
	)
	if err != nil {
		return InsertSessionResult{}, fmt.Errorf("store: insert session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return InsertSessionResult{}, fmt.Errorf("store: rows affected: %w", err)
	}
	return InsertSessionResult{Inserted: n > 0}, nil
}

// GetSession loads a session by (repoID, id), decompressing raw_json.
func (db *DB) GetSession(repoID int64, id string) (*model.Session, error) {
	row := db.sqlDB().QueryRow(
		`SELECT id, repo_id, tool, model, conversation_id, imported_at, duration_min,
		        message_count, files, raw_json, source_path, source_session_id,
		        redaction_count, redaction_types, dedupe_key, purged_at
		 FROM sessions WHERE repo_id = ? AND id = ?`,
		repoID, id,
	)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var s model.Session
	var tool, filesJSON, typesJSON string
	var rawCompressed []byte
	var purgedAt sql.NullTime
	var duration sql.NullFloat64
	var model_, sourcePath, sourceSessionID, dedupeKey sql.NullString

	err := row.Scan(
		&s.ID, &s.RepoID, &tool, &model_, &s.ConversationID, &s.ImportedAt, &duration,
		&s.MessageCount, &filesJSON, &rawCompressed, &sourcePath, &sourceSessionID,
		&s.RedactionCount, &typesJSON, &dedupeKey, &purgedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: session not found")
		}
		return nil, fmt.Errorf("store: scan session: %w", err)
	}

	s.Tool = model.Tool(tool)
	s.Model = model_.String
	s.DurationMin = duration.Float64
	s.SourcePath = sourcePath.String
	s.SourceSessionID = sourceSessionID.String
	s.DedupeKey = dedupeKey.String
	if purgedAt.Valid {
		t := purgedAt.Time
		s.PurgedAt = &t
	}
	_ = json.Unmarshal([]byte(filesJSON), &s.Files)
	_ = json.Unmarshal([]byte(typesJSON), &s.RedactionTypes)

	raw, err := decompressRawJSON(rawCompressed)
	if err != nil {
		return nil, err
	}
	s.RawJSON = raw
	return &s, nil
}

// PurgeSession implements the tombstone invariant from spec §3: raw_json
// becomes the empty-messages sentinel, purged_at is set, the row is kept
// for referential integrity but excluded from Atlas/search by callers.
func (db *DB) PurgeSession(repoID int64, id string) error {
	now := time.Now().UTC()
	empty := compressRawJSON([]byte(`{"messages":[]}`))
	_, err := db.sqlDB().Exec(
		`UPDATE sessions SET raw_json = ?, purged_at = ? WHERE repo_id = ? AND id = ?`,
		empty, now, repoID, id,
	)
	if err != nil {
		return fmt.Errorf("store: purge session: %w", err)
	}
	return nil
}

// CanonicalizeTrace produces a stable JSON encoding of a trace for use in
// dedupe_key computation (spec §3: "sha256(tool:source_session_id:
// canonical(trace_json))"). Keys are sorted by json.Marshal's map ordering
// guarantee is insufficient for nested structures, so callers should pass
// already-ordered structs (model.TraceMessage slices preserve order).
func CanonicalizeTrace(messages []model.TraceMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(messages); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
