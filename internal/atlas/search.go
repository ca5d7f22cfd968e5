// search.go implements Atlas Search (spec §4.K): budget validation, term
// normalization, FTS MATCH expression construction, and response-budget
// tail truncation. Grounded directly on wesm-agentsview's internal/db/
// search.go (same snippet/limit+1/bm25-ordering shape), adapted to the
// envelope-based error model spec §6 requires.
package atlas

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	maxQueryChars   = 256
	maxTerms        = 8
	maxLimit        = 50
	maxSessionIDLen = 128
	maxChunksLimit  = 25
	snippetChars    = 240
	responseBudget  = 60000
	defaultLimit    = 20
)

// ErrorCode is the closed, versioned set of programmatic error codes
// spec §6 requires for the Atlas envelope.
type ErrorCode string

const (
	ErrRepoNotFound    ErrorCode = "repo-not-found"
	ErrFTSNotAvailable ErrorCode = "fts-not-available"
	ErrInvalidQuery    ErrorCode = "invalid-query"
	ErrBudgetQuery     ErrorCode = "budget-query-too-long"
	ErrBudgetTerms     ErrorCode = "budget-too-many-terms"
	ErrBudgetLimit     ErrorCode = "budget-limit-too-high"
	ErrBudgetSessionID ErrorCode = "budget-session-id-too-long"
	ErrBudgetMaxChunks ErrorCode = "budget-max-chunks-too-high"
	ErrBudgetResponse  ErrorCode = "budget-response-too-large"
	ErrSessionNotFound ErrorCode = "session-not-found"
	ErrInternal        ErrorCode = "internal"
)

// APIError is the typed error carried in an Envelope's error field.
type APIError struct {
	Code    ErrorCode
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Meta carries out-of-band response flags (spec §6 envelope).
type Meta struct {
	Truncated bool `json:"truncated,omitempty"`
}

// Envelope is the closed response shape spec §6 requires for every Atlas
// Search call: exactly one of Value/Error populated on success/failure.
type Envelope struct {
	OK    bool      `json:"ok"`
	Value *Result   `json:"value,omitempty"`
	Error *APIError `json:"error,omitempty"`
	Meta  *Meta     `json:"meta,omitempty"`
}

// Query is the raw, unvalidated search request.
type Query struct {
	RepoID    int64
	Text      string
	SessionID string
	Limit     int
	MaxChunks int
}

// Hit is a single ranked snippet result.
type Hit struct {
	ChunkUID        string  `json:"chunk_uid"`
	SessionID       string  `json:"session_id"`
	Snippet         string  `json:"snippet"`
	BM25            float64 `json:"bm25"`
	SessionImported int64   `json:"session_imported_at"`
}

// Result is the Envelope's success payload.
type Result struct {
	Hits []Hit `json:"hits"`
}

// Validate implements spec §4.K step 1, returning the closed budget error
// set on violation.
func (q Query) Validate() *APIError {
	if len(q.Text) > maxQueryChars {
		return &APIError{Code: ErrBudgetQuery, Message: "query exceeds 256 characters"}
	}
	if len(strings.Fields(q.Text)) > maxTerms {
		return &APIError{Code: ErrBudgetTerms, Message: "query has more than 8 terms"}
	}
	if q.Limit > maxLimit {
		return &APIError{Code: ErrBudgetLimit, Message: "limit exceeds 50"}
	}
	if len(q.SessionID) > maxSessionIDLen {
		return &APIError{Code: ErrBudgetSessionID, Message: "sessionId exceeds 128 characters"}
	}
	if q.MaxChunks > maxChunksLimit {
		return &APIError{Code: ErrBudgetMaxChunks, Message: "maxChunks exceeds 25"}
	}
	return nil
}

// NormalizeTerms implements spec §4.K step 2.
func NormalizeTerms(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		var b strings.Builder
		for _, r := range f {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			out = append(out, b.String())
		}
	}
	return out
}

// MatchExpr implements spec §4.K step 3: prefix-AND FTS5 MATCH expression.
func MatchExpr(terms []string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t + "*"
	}
	return strings.Join(parts, " AND ")
}

// Searcher executes the FTS query against the store's atlas_chunks_fts
// virtual table. db is passed as *sql.DB (not internal/store.DB) so this
// package has no import-cycle back onto internal/store.
type Searcher struct {
	db         *sql.DB
	ftsEnabled bool
}

// NewSearcher wraps an open database handle. ftsEnabled mirrors
// internal/store.DB.FTSAvailable() so a caller without FTS compiled in
// gets ErrFTSNotAvailable instead of a SQL error.
func NewSearcher(db *sql.DB, ftsEnabled bool) *Searcher {
	return &Searcher{db: db, ftsEnabled: ftsEnabled}
}

// Search runs the full §4.K pipeline and always returns an Envelope, never
// a raw error, per spec §6's "errors never leak raw exception text".
func (s *Searcher) Search(ctx context.Context, q Query) Envelope {
	if !s.ftsEnabled {
		return Envelope{OK: false, Error: &APIError{Code: ErrFTSNotAvailable, Message: "full-text index not compiled in"}}
	}
	if apiErr := q.Validate(); apiErr != nil {
		return Envelope{OK: false, Error: apiErr}
	}
	terms := NormalizeTerms(q.Text)
	if len(terms) == 0 {
		return Envelope{OK: false, Error: &APIError{Code: ErrInvalidQuery, Message: "query has no usable terms"}}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	maxChunks := q.MaxChunks
	if maxChunks <= 0 || maxChunks > maxChunksLimit {
		maxChunks = maxChunksLimit
	}
	if limit > maxChunks {
		limit = maxChunks
	}

	matchExpr := MatchExpr(terms)
	rows, err := s.queryRows(ctx, q.RepoID, q.SessionID, matchExpr, limit+1)
	if err != nil {
		return Envelope{OK: false, Error: &APIError{Code: ErrInternal, Message: err.Error()}}
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var snippet string
		if err := rows.Scan(&h.ChunkUID, &h.SessionID, &snippet, &h.BM25, &h.SessionImported); err != nil {
			return Envelope{OK: false, Error: &APIError{Code: ErrInternal, Message: err.Error()}}
		}
		if len(snippet) > snippetChars {
			snippet = snippet[:snippetChars]
		}
		h.Snippet = snippet
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return Envelope{OK: false, Error: &APIError{Code: ErrInternal, Message: err.Error()}}
	}

	moreThanLimit := len(hits) > limit
	if moreThanLimit {
		hits = hits[:limit]
	}

	hits, truncated := enforceResponseBudget(hits)
	truncated = truncated || moreThanLimit

	env := Envelope{OK: true, Value: &Result{Hits: hits}}
	if truncated {
		env.Meta = &Meta{Truncated: true}
	}
	return env
}

func (s *Searcher) queryRows(ctx context.Context, repoID int64, sessionID, matchExpr string, limit int) (*sql.Rows, error) {
	const base = `
SELECT c.chunk_uid, c.session_id,
       snippet(atlas_chunks_fts, 0, '', '', '...', 16) AS snip,
       bm25(atlas_chunks_fts) AS score,
       c.session_imported_at
FROM atlas_chunks_fts
JOIN atlas_chunks c ON c.rowid = atlas_chunks_fts.rowid
WHERE atlas_chunks_fts MATCH ? AND c.repo_id = ?`
	args := []any{matchExpr, repoID}
	query := base
	if sessionID != "" {
		query += " AND c.session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY score ASC, c.session_imported_at DESC, c.chunk_uid ASC LIMIT ?"
	args = append(args, limit)
	return s.db.QueryContext(ctx, query, args...)
}

// enforceResponseBudget implements spec §4.K step 5: pop hits from the tail
// until the estimated total response size is under 60 000 chars.
func enforceResponseBudget(hits []Hit) ([]Hit, bool) {
	truncated := false
	for estimateSize(hits) > responseBudget && len(hits) > 0 {
		hits = hits[:len(hits)-1]
		truncated = true
	}
	return hits, truncated
}

func estimateSize(hits []Hit) int {
	total := 0
	for _, h := range hits {
		total += len(h.ChunkUID) + len(h.SessionID) + len(h.Snippet) + 32
	}
	return total
}
