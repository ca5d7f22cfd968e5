// Package ingest wires the Parser Registry, Redactor, Dedupe Store, Linker
// and Atlas Projection into the session ingestion pipeline (spec §2's
// "detect → parse → redact → dedupe → store → link" data flow: L feeds
// paths to A→B→C→D; on insert, D triggers E and J). It also implements the
// commit-time F→G→H chain (attribution → stats → notes) and the
// rewrite-time I→H chain, both invoked by the Hook Supervisor.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/jscraik/firefly-narrative/internal/atlas"
	"github.com/jscraik/firefly-narrative/internal/attribution"
	"github.com/jscraik/firefly-narrative/internal/gitutil"
	"github.com/jscraik/firefly-narrative/internal/linker"
	"github.com/jscraik/firefly-narrative/internal/logging"
	"github.com/jscraik/firefly-narrative/internal/model"
	"github.com/jscraik/firefly-narrative/internal/notes"
	"github.com/jscraik/firefly-narrative/internal/parser"
	"github.com/jscraik/firefly-narrative/internal/redact"
	"github.com/jscraik/firefly-narrative/internal/rewritekey"
	"github.com/jscraik/firefly-narrative/internal/store"
)

// Store is the subset of *store.DB the pipeline needs; declared as an
// interface so orchestration tests can substitute a fake without opening a
// real sqlite file.
type Store interface {
	InsertSession(s *model.Session) (store.InsertSessionResult, error)
	InsertAuditLog(entry *model.IngestAuditLog) error
	ReplaceAtlasChunks(repoID int64, sessionID string, chunks []model.AtlasChunk) error
	UpsertSessionLink(l *model.SessionLink) error
	GetSession(repoID int64, id string) (*model.Session, error)
	ReplaceLineAttributions(repoID int64, commitSHA string, attrs []model.LineAttribution) error
	UpsertContributionStats(s *model.CommitContributionStats) error
	UpsertRewriteKey(k *model.CommitRewriteKey) error
	FindCommitByRewriteKey(repoID int64, rewriteKey, excludeSHA string) (string, bool, error)
	ListCommitSessionLinks(repoID int64, commitSHA string) ([]model.CommitSessionLink, error)
	UpsertCommitSessionLink(l *model.CommitSessionLink) error
	UpsertNoteMeta(m *model.StoryAnchorNoteMeta) error
	InsertLineageEvent(repoID int64, headSHA, eventType, rewrittenPairsJSON, algorithm string) error
}

// Result reports what IngestFile did, for hook/CLI output.
type Result struct {
	Session    *model.Session
	Inserted   bool
	Duplicate  bool
	Linked     *linker.Result
	LinkError  error // ErrNoCommitsInWindow / ErrLowConfidence, non-fatal to ingestion
	Truncated  bool  // Atlas projection hit the 200-chunk cap
}

// IngestFile implements the A→B→C→D→E→J chain for a single session file
// already claimed by a parser. repo is used for §4.E linking against commit
// history and may be nil when linking isn't needed (tests, dry runs).
func IngestFile(ctx context.Context, db Store, repo *gitutil.Repo, repoID int64, sourcePath string) (*Result, error) {
	var allowedRoots []string
	if home, err := os.UserHomeDir(); err == nil {
		allowedRoots = append(allowedRoots, home)
	}
	if repo != nil {
		allowedRoots = append(allowedRoots, repo.Root())
	}
	validPath, err := parser.ValidatePath(sourcePath, allowedRoots...)
	if err != nil {
		logAudit(ctx, db, repoID, "", sourcePath, model.IngestActionParse, model.IngestStatusFailed, 0, err)
		return nil, err
	}
	sourcePath = validPath

	p, err := parser.Detect(sourcePath)
	if err != nil {
		logAudit(ctx, db, repoID, "", sourcePath, model.IngestActionParse, model.IngestStatusFailed, 0, err)
		return nil, err
	}

	if err := parser.CheckSize(sourcePath); err != nil {
		logAudit(ctx, db, repoID, string(p.Name()), sourcePath, model.IngestActionParse, model.IngestStatusFailed, 0, err)
		return nil, err
	}

	parsed, err := p.Parse(sourcePath)
	if err != nil {
		logAudit(ctx, db, repoID, string(p.Name()), sourcePath, model.IngestActionParse, model.IngestStatusFailed, 0, err)
		return nil, err
	}

	status := model.IngestStatusOK
	if len(parsed.Warnings) > 0 {
		status = model.IngestStatusPartial
	}
	logAudit(ctx, db, repoID, string(p.Name()), sourcePath, model.IngestActionParse, status, 0, nil)

	redactedMessages, summary := redactMessages(parsed.Messages)
	logAudit(ctx, db, repoID, string(p.Name()), sourcePath, model.IngestActionRedact, model.IngestStatusOK, summary.Total, nil)

	canonical, err := store.CanonicalizeTrace(redactedMessages)
	if err != nil {
		return nil, fmt.Errorf("ingest: canonicalize trace: %w", err)
	}

	session := &model.Session{
		ID:              sessionID(p.Name(), parsed.ConversationID),
		RepoID:          repoID,
		Tool:            p.Name(),
		Model:           parsed.Model,
		ConversationID:  parsed.ConversationID,
		ImportedAt:      time.Now().UTC(),
		DurationMin:     parsed.EndedAt.Sub(parsed.StartedAt).Minutes(),
		MessageCount:    len(redactedMessages),
		Files:           parsed.FilesTouched,
		RawJSON:         canonical,
		SourcePath:      sourcePath,
		SourceSessionID: parsed.SourceSessionID,
		RedactionCount:  summary.Total,
		RedactionTypes:  summary.Kinds(),
		DedupeKey:       dedupeKey(p.Name(), parsed.SourceSessionID, canonical),
	}

	insertResult, err := db.InsertSession(session)
	if err != nil {
		logAudit(ctx, db, repoID, string(p.Name()), sourcePath, model.IngestActionStore, model.IngestStatusFailed, 0, err)
		return nil, err
	}
	logAudit(ctx, db, repoID, string(p.Name()), sourcePath, model.IngestActionStore, model.IngestStatusOK, 0, nil)

	result := &Result{Session: session, Inserted: insertResult.Inserted, Duplicate: !insertResult.Inserted}
	if !insertResult.Inserted {
		return result, nil
	}

	chunks, truncated := atlas.Project(repoID, session.ID, toAtlasMessages(redactedMessages))
	if err := db.ReplaceAtlasChunks(repoID, session.ID, chunks); err != nil {
		logAudit(ctx, db, repoID, string(p.Name()), sourcePath, model.IngestActionProject, model.IngestStatusFailed, 0, err)
	} else {
		logAudit(ctx, db, repoID, string(p.Name()), sourcePath, model.IngestActionProject, model.IngestStatusOK, 0, nil)
	}
	result.Truncated = truncated

	if repo != nil {
		linked, linkErr := linkSession(ctx, db, repo, repoID, session, parsed)
		result.Linked = linked
		result.LinkError = linkErr
	}

	return result, nil
}

func linkSession(ctx context.Context, db Store, repo *gitutil.Repo, repoID int64, session *model.Session, parsed *parser.ParsedSession) (*linker.Result, error) {
	windowStart := parsed.EndedAt.Add(-4 * time.Hour)
	windowEnd := parsed.EndedAt.Add(4 * time.Hour)
	candidates, err := repo.CommitsInWindow(windowStart, windowEnd)
	if err != nil {
		logAudit(ctx, db, repoID, string(session.Tool), session.SourcePath, model.IngestActionLink, model.IngestStatusFailed, 0, err)
		return nil, err
	}

	excerpt := linker.SessionExcerpt{EndTime: parsed.EndedAt, DurationMin: session.DurationMin, Files: session.Files}
	result, err := linker.Link(excerpt, candidates)
	if err != nil {
		logAudit(ctx, db, repoID, string(session.Tool), session.SourcePath, model.IngestActionLink, model.IngestStatusPartial, 0, err)
		return nil, err
	}

	// Defence-in-depth (spec §4.E scenario S3): rescan the session text one
	// more time right before a link is written, independent of the redaction
	// already applied in IngestFile, and refuse the link rather than write it
	// on any hit.
	if _, summary := redact.Bytes(session.RawJSON); summary.Total > 0 {
		secretErr := &linker.SecretDetectedError{Kinds: summary.Kinds()}
		logAudit(ctx, db, repoID, string(session.Tool), session.SourcePath, model.IngestActionLink, model.IngestStatusFailed, summary.Total, secretErr)
		return nil, secretErr
	}

	link := &model.SessionLink{
		RepoID:      repoID,
		SessionID:   session.ID,
		CommitSHA:   result.CommitSHA,
		Confidence:  result.Confidence,
		AutoLinked:  result.AutoLinked,
		NeedsReview: result.NeedsReview,
	}
	if err := db.UpsertSessionLink(link); err != nil {
		logAudit(ctx, db, repoID, string(session.Tool), session.SourcePath, model.IngestActionLink, model.IngestStatusFailed, 0, err)
		return nil, err
	}
	if err := db.UpsertCommitSessionLink(&model.CommitSessionLink{
		RepoID: repoID, CommitSHA: result.CommitSHA, SessionID: session.ID,
		Source: model.LinkSourceHeuristic, Confidence: result.Confidence,
	}); err != nil {
		return result, err
	}
	logAudit(ctx, db, repoID, string(session.Tool), session.SourcePath, model.IngestActionLink, model.IngestStatusOK, 0, nil)
	return result, nil
}

// OnCommit implements the F→G→H chain: compute line attribution for
// commitSHA's diff, roll it into contribution stats, and write the
// attribution/sessions story-anchor notes. Called by the post-commit hook.
func OnCommit(ctx context.Context, db Store, repo *gitutil.Repo, noteStore *notes.Store, repoID int64, commitSHA string) error {
	commit, err := repo.Commit(commitSHA)
	if err != nil {
		return fmt.Errorf("ingest: onCommit: %w", err)
	}

	ranges, err := attribution.ComputeChangedRanges(commit)
	if err != nil {
		return fmt.Errorf("ingest: compute changed ranges: %w", err)
	}

	links, err := db.ListCommitSessionLinks(repoID, commitSHA)
	if err != nil {
		return fmt.Errorf("ingest: list commit session links: %w", err)
	}

	var allAttrs []model.LineAttribution
	for _, l := range links {
		session, err := db.GetSession(repoID, l.SessionID)
		if err != nil {
			continue
		}
		allAttrs = append(allAttrs, attribution.ToLineAttributions(repoID, commitSHA, ranges, session.ID, session.Tool, session.Model)...)
	}

	if err := db.ReplaceLineAttributions(repoID, commitSHA, allAttrs); err != nil {
		return fmt.Errorf("ingest: replace line attributions: %w", err)
	}

	stats := attribution.ComputeStats(repoID, commitSHA, allAttrs)
	if stats.TotalLines == 0 {
		if fallback, ok := fallbackStats(db, repo, commit, repoID, commitSHA, links); ok {
			stats = fallback
		}
	}
	if err := db.UpsertContributionStats(&stats); err != nil {
		return fmt.Errorf("ingest: upsert contribution stats: %w", err)
	}

	if noteStore == nil {
		return nil
	}
	return writeStoryAnchorNotes(db, noteStore, repoID, commitSHA, stats, links)
}

// fallbackStats implements spec §4.G's documented fallback: when a commit
// has linked sessions but no diff attributions to derive real stats from
// (e.g. a linked session whose changed ranges don't overlap this commit's
// diff), use attribution.FallbackFromSession's message-count proxy instead
// of persisting an all-zero stats row. Picks the first linked session that
// still resolves; returns ok=false if none do, leaving the zero stats as-is.
func fallbackStats(db Store, repo *gitutil.Repo, commit *object.Commit, repoID int64, commitSHA string, links []model.CommitSessionLink) (model.CommitContributionStats, bool) {
	var session *model.Session
	for _, l := range links {
		s, err := db.GetSession(repoID, l.SessionID)
		if err == nil {
			session = s
			break
		}
	}
	if session == nil {
		return model.CommitContributionStats{}, false
	}

	fileCount := 0
	if files, err := repo.ChangedFiles(commit); err == nil {
		fileCount = len(files)
	}
	return attribution.FallbackFromSession(repoID, commitSHA, session, fileCount), true
}

func writeStoryAnchorNotes(db Store, noteStore *notes.Store, repoID int64, commitSHA string, stats model.CommitContributionStats, links []model.CommitSessionLink) error {
	attrBody, err := notes.EncodeAttribution(stats)
	if err != nil {
		return err
	}
	if err := noteStore.WriteNote(notes.KindAttribution, commitSHA, attrBody); err != nil {
		return fmt.Errorf("ingest: write attribution note: %w", err)
	}
	if err := db.UpsertNoteMeta(&model.StoryAnchorNoteMeta{
		RepoID: repoID, CommitSHA: commitSHA, NoteKind: model.NoteKindAttribution,
		NoteRef: string(notes.RefFor(notes.KindAttribution)), NoteHash: notes.Hash(attrBody),
	}); err != nil {
		return err
	}

	sessionsBody, err := notes.EncodeSessions(commitSHA, links)
	if err != nil {
		return err
	}
	if err := noteStore.WriteNote(notes.KindSessions, commitSHA, sessionsBody); err != nil {
		return fmt.Errorf("ingest: write sessions note: %w", err)
	}
	return db.UpsertNoteMeta(&model.StoryAnchorNoteMeta{
		RepoID: repoID, CommitSHA: commitSHA, NoteKind: model.NoteKindSessions,
		NoteRef: string(notes.RefFor(notes.KindSessions)), NoteHash: notes.Hash(sessionsBody),
	})
}

// OnRewrite implements the I→H chain for a whole post-rewrite hook
// invocation: for every (old_sha, new_sha) pair git delivered, recompute its
// rewrite_key and attempt to recover its predecessor's links by matching
// content, then record and (if requested) export ONE lineage event/note for
// the resulting HEAD. Per spec §4.H, `refs/notes/narrative/lineage` is
// "per-HEAD, rewrite/merge event history" — one note per rewrite operation,
// not one per rewritten commit. Called once by the post-rewrite hook with
// every pair from that invocation.
func OnRewrite(ctx context.Context, db Store, repo *gitutil.Repo, noteStore *notes.Store, repoID int64, pairs [][2]string) error {
	if len(pairs) == 0 {
		return nil
	}

	keys := make(map[string]string, len(pairs))
	for _, p := range pairs {
		oldSHA, newSHA := p[0], p[1]
		key, err := recordRewrittenCommit(ctx, db, repo, repoID, oldSHA, newSHA)
		if err != nil {
			logging.Debug(ctx, "ingest: onRewrite: recording rewritten commit failed", "sha", newSHA, "error", err.Error())
			continue
		}
		keys[newSHA] = key
	}

	headSHA := pairs[len(pairs)-1][1]
	if head, err := repo.GoGit().Head(); err == nil {
		headSHA = head.Hash().String()
	}
	headKey, ok := keys[headSHA]
	if !ok {
		if commit, err := repo.Commit(headSHA); err == nil {
			if key, err := rewritekey.Compute(commit); err == nil {
				headKey = key
			}
		}
	}

	pairsJSON, _ := json.Marshal(pairs)
	if err := db.InsertLineageEvent(repoID, headSHA, "rewrite", string(pairsJSON), rewritekey.Algorithm); err != nil {
		logging.Debug(ctx, "ingest: lineage event insert failed", "error", err.Error())
	}

	if noteStore == nil {
		return nil
	}
	lineageBody, err := notes.EncodeLineage(headSHA, headKey, rewritekey.Algorithm, pairs)
	if err != nil {
		return err
	}
	if err := noteStore.WriteNote(notes.KindLineage, headSHA, lineageBody); err != nil {
		return fmt.Errorf("ingest: write lineage note: %w", err)
	}
	return db.UpsertNoteMeta(&model.StoryAnchorNoteMeta{
		RepoID: repoID, CommitSHA: headSHA, NoteKind: model.NoteKindLineage,
		NoteRef: string(notes.RefFor(notes.KindLineage)), NoteHash: notes.Hash(lineageBody),
	})
}

// recordRewrittenCommit implements spec §4.I steps 2-3 for a single
// (old_sha, new_sha) pair: compute and store new_sha's rewrite_key, then
// carry forward old_sha's (or any other patch-id match's) commit_session_links
// as recovered provenance. Returns new_sha's rewrite_key.
func recordRewrittenCommit(ctx context.Context, db Store, repo *gitutil.Repo, repoID int64, oldSHA, newSHA string) (string, error) {
	commit, err := repo.Commit(newSHA)
	if err != nil {
		return "", fmt.Errorf("ingest: onRewrite: %w", err)
	}
	key, err := rewritekey.Compute(commit)
	if err != nil {
		return "", fmt.Errorf("ingest: compute rewrite key: %w", err)
	}
	if err := db.UpsertRewriteKey(&model.CommitRewriteKey{
		RepoID: repoID, CommitSHA: newSHA, RewriteKey: key, Algorithm: rewritekey.Algorithm, UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("ingest: upsert rewrite key: %w", err)
	}

	// A patch-id match independent of the hook's own old→new pair catches
	// rewrites (squash, interactive rebase) where the literal oldSHA given
	// to the hook no longer carries the links worth recovering.
	if recoveredSHA, found, err := db.FindCommitByRewriteKey(repoID, key, newSHA); err == nil && found && recoveredSHA != oldSHA {
		if err := recoverLinks(db, repoID, recoveredSHA, newSHA); err != nil {
			logging.Debug(ctx, "ingest: link recovery failed", "error", err.Error())
		}
	}
	return key, nil
}

// recoveredLinkConfidence is the fixed confidence assigned to a
// commit_session_link carried forward by rewrite-key recovery (spec §4.I).
const recoveredLinkConfidence = 0.8

// recoverLinks carries commit_session_links forward from a rewritten
// commit's pre-rewrite SHA to its post-rewrite SHA, tagged as recovered
// provenance (spec §4.I / §3 LinkSourceRecovered).
func recoverLinks(db Store, repoID int64, fromSHA, toSHA string) error {
	links, err := db.ListCommitSessionLinks(repoID, fromSHA)
	if err != nil {
		return err
	}
	for _, l := range links {
		if err := db.UpsertCommitSessionLink(&model.CommitSessionLink{
			RepoID: repoID, CommitSHA: toSHA, SessionID: l.SessionID,
			Source: model.LinkSourceRecovered, Confidence: recoveredLinkConfidence,
		}); err != nil {
			return err
		}
	}
	return nil
}

func redactMessages(messages []model.TraceMessage) ([]model.TraceMessage, *redact.Summary) {
	out := make([]model.TraceMessage, len(messages))
	total := &redact.Summary{}
	for i, m := range messages {
		redactedText, s := redact.String(m.Text)
		total.Merge(s)
		m.Text = redactedText
		if m.ToolInput != "" {
			redactedInput, s2 := redact.String(m.ToolInput)
			total.Merge(s2)
			m.ToolInput = redactedInput
		}
		out[i] = m
	}
	return out, total
}

func toAtlasMessages(messages []model.TraceMessage) []atlas.Message {
	out := make([]atlas.Message, len(messages))
	for i, m := range messages {
		out[i] = atlas.Message{Role: m.Role, Text: m.Text}
	}
	return out
}

func sessionID(tool model.Tool, conversationID string) string {
	sum := sha256.Sum256([]byte(string(tool) + ":" + conversationID))
	return hex.EncodeToString(sum[:])[:16]
}

func dedupeKey(tool model.Tool, sourceSessionID string, canonicalTrace []byte) string {
	sum := sha256.Sum256([]byte(string(tool) + ":" + sourceSessionID + ":" + string(canonicalTrace)))
	return hex.EncodeToString(sum[:])
}

func logAudit(ctx context.Context, db Store, repoID int64, tool, sourcePath string, action model.IngestAction, status model.IngestStatus, redactionCount int, err error) {
	entry := &model.IngestAuditLog{
		RepoID: repoID, SourceTool: model.Tool(tool), SourcePath: sourcePath,
		Action: action, Status: status, RedactionCount: redactionCount, CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		entry.ErrorMessage = errMessage(err)
	}
	if dbErr := db.InsertAuditLog(entry); dbErr != nil {
		logging.Debug(ctx, "ingest: audit log insert failed", "error", dbErr.Error())
	}
}

func errMessage(err error) string {
	msg := err.Error()
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
