package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// ReplaceLineAttributions deletes and rewrites every attribution for a
// (repo, commit) in one transaction, matching the Atlas-chunk replace
// semantics from spec §4.J applied here to attribution recomputation
// (triggered whenever §4.F reruns for a commit, e.g. after rewrite recovery).
func (db *DB) ReplaceLineAttributions(repoID int64, commitSHA string, attrs []model.LineAttribution) error {
	tx, err := db.sqlDB().Begin()
	if err != nil {
		return fmt.Errorf("store: begin replace attributions: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM line_attributions WHERE repo_id = ? AND commit_sha = ?`, repoID, commitSHA); err != nil {
		return fmt.Errorf("store: clear attributions: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO line_attributions (
			repo_id, commit_sha, file_path, start_line, end_line, session_id,
			author_type, ai_percentage, tool, model, trace_available
		 ) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("store: prepare insert attribution: %w", err)
	}
	defer stmt.Close()

	for _, a := range attrs {
		if _, err := stmt.Exec(
			a.RepoID, a.CommitSHA, a.FilePath, a.StartLine, a.EndLine, a.SessionID,
			string(a.AuthorType), a.AIPercentage, string(a.Tool), a.Model, a.TraceAvailable,
		); err != nil {
			return fmt.Errorf("store: insert attribution: %w", err)
		}
	}

	return tx.Commit()
}

// ListLineAttributions returns every attribution range for a commit.
func (db *DB) ListLineAttributions(repoID int64, commitSHA string) ([]model.LineAttribution, error) {
	rows, err := db.sqlDB().Query(
		`SELECT repo_id, commit_sha, file_path, start_line, end_line, session_id,
		        author_type, ai_percentage, tool, model, trace_available
		 FROM line_attributions WHERE repo_id = ? AND commit_sha = ?
		 ORDER BY file_path, start_line`,
		repoID, commitSHA,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list attributions: %w", err)
	}
	defer rows.Close()

	var out []model.LineAttribution
	for rows.Next() {
		var a model.LineAttribution
		var authorType, tool string
		var sessionID, modelName *string
		var aiPct *float64
		if err := rows.Scan(&a.RepoID, &a.CommitSHA, &a.FilePath, &a.StartLine, &a.EndLine, &sessionID,
			&authorType, &aiPct, &tool, &modelName, &a.TraceAvailable); err != nil {
			return nil, fmt.Errorf("store: scan attribution: %w", err)
		}
		a.AuthorType = model.AuthorType(authorType)
		a.Tool = model.Tool(tool)
		if sessionID != nil {
			a.SessionID = *sessionID
		}
		if modelName != nil {
			a.Model = *modelName
		}
		if aiPct != nil {
			a.AIPercentage = *aiPct
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertContributionStats implements the cache in spec §3/§4.G, invalidated
// by the caller whenever ReplaceLineAttributions runs for the same commit.
func (db *DB) UpsertContributionStats(s *model.CommitContributionStats) error {
	if s.ComputedAt.IsZero() {
		s.ComputedAt = time.Now().UTC()
	}
	breakdownJSON, err := json.Marshal(s.ToolBreakdown)
	if err != nil {
		return err
	}
	_, err = db.sqlDB().Exec(
		`INSERT INTO commit_contribution_stats (
			repo_id, commit_sha, human_lines, ai_agent_lines, ai_assist_lines,
			collaborative_lines, total_lines, ai_percentage, primary_session_id,
			tool, model, tool_breakdown, computed_at
		 ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(repo_id, commit_sha) DO UPDATE SET
			human_lines=excluded.human_lines, ai_agent_lines=excluded.ai_agent_lines,
			ai_assist_lines=excluded.ai_assist_lines, collaborative_lines=excluded.collaborative_lines,
			total_lines=excluded.total_lines, ai_percentage=excluded.ai_percentage,
			primary_session_id=excluded.primary_session_id, tool=excluded.tool, model=excluded.model,
			tool_breakdown=excluded.tool_breakdown, computed_at=excluded.computed_at`,
		s.RepoID, s.CommitSHA, s.HumanLines, s.AIAgentLines, s.AIAssistLines,
		s.CollaborativeLines, s.TotalLines, s.AIPercentage, s.PrimarySessionID,
		string(s.Tool), s.Model, string(breakdownJSON), s.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert contribution stats: %w", err)
	}
	return nil
}

// GetContributionStats loads the cached stats row for a commit, if present.
func (db *DB) GetContributionStats(repoID int64, commitSHA string) (*model.CommitContributionStats, error) {
	row := db.sqlDB().QueryRow(
		`SELECT repo_id, commit_sha, human_lines, ai_agent_lines, ai_assist_lines,
		        collaborative_lines, total_lines, ai_percentage, primary_session_id,
		        tool, model, tool_breakdown, computed_at
		 FROM commit_contribution_stats WHERE repo_id = ? AND commit_sha = ?`,
		repoID, commitSHA,
	)
	var s model.CommitContributionStats
	var breakdownJSON string
	var primarySessionID, toolName, modelName *string
	if err := row.Scan(&s.RepoID, &s.CommitSHA, &s.HumanLines, &s.AIAgentLines, &s.AIAssistLines,
		&s.CollaborativeLines, &s.TotalLines, &s.AIPercentage, &primarySessionID,
		&toolName, &modelName, &breakdownJSON, &s.ComputedAt); err != nil {
		return nil, fmt.Errorf("store: get contribution stats: %w", err)
	}
	if primarySessionID != nil {
		s.PrimarySessionID = *primarySessionID
	}
	if toolName != nil {
		s.Tool = model.Tool(*toolName)
	}
	if modelName != nil {
		s.Model = *modelName
	}
	_ = json.Unmarshal([]byte(breakdownJSON), &s.ToolBreakdown)
	return &s, nil
}

// UpsertRewriteKey implements spec §4.I step 2.
func (db *DB) UpsertRewriteKey(k *model.CommitRewriteKey) error {
	if k.UpdatedAt.IsZero() {
		k.UpdatedAt = time.Now().UTC()
	}
	_, err := db.sqlDB().Exec(
		`INSERT INTO commit_rewrite_keys (repo_id, commit_sha, rewrite_key, algorithm, updated_at)
		 VALUES (?,?,?,?,?)
		 ON CONFLICT(repo_id, commit_sha) DO UPDATE SET
		   rewrite_key = excluded.rewrite_key, algorithm = excluded.algorithm, updated_at = excluded.updated_at`,
		k.RepoID, k.CommitSHA, k.RewriteKey, k.Algorithm, k.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert rewrite key: %w", err)
	}
	return nil
}

// FindCommitByRewriteKey implements spec §4.I step 3: look up any other
// commit with the same rewrite_key (excluding self).
func (db *DB) FindCommitByRewriteKey(repoID int64, rewriteKey, excludeSHA string) (string, bool, error) {
	row := db.sqlDB().QueryRow(
		`SELECT commit_sha FROM commit_rewrite_keys
		 WHERE repo_id = ? AND rewrite_key = ? AND commit_sha != ?
		 ORDER BY updated_at DESC LIMIT 1`,
		repoID, rewriteKey, excludeSHA,
	)
	var sha string
	if err := row.Scan(&sha); err != nil {
		return "", false, nil //nolint:nilerr // sql.ErrNoRows means "not found", not a storage error
	}
	return sha, true, nil
}
