package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jscraik/firefly-narrative/internal/gitutil"
	"github.com/jscraik/firefly-narrative/internal/linker"
	"github.com/jscraik/firefly-narrative/internal/model"
	"github.com/jscraik/firefly-narrative/internal/notes"
	"github.com/jscraik/firefly-narrative/internal/parser"
	"github.com/jscraik/firefly-narrative/internal/store"
)

// fakeStore implements the Store interface against plain in-memory maps, so
// the A→B→C→D→E→J, F→G→H and I→H chains can be exercised without a real
// sqlite file. The teacher had no pluggable storage interface to ground this
// on; it follows the Store interface's own shape (internal/ingest/ingest.go)
// one to one.
type fakeStore struct {
	sessions      map[string]*model.Session
	sessionLinks  []*model.SessionLink
	commitLinks   []model.CommitSessionLink
	attrs         map[string][]model.LineAttribution
	stats         map[string]model.CommitContributionStats
	rewriteKeys   map[string]model.CommitRewriteKey
	noteMeta      []*model.StoryAnchorNoteMeta
	lineageEvents []lineageEventRecord
}

type lineageEventRecord struct {
	RepoID    int64
	HeadSHA   string
	EventType string
	PairsJSON string
	Algorithm string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:    map[string]*model.Session{},
		attrs:       map[string][]model.LineAttribution{},
		stats:       map[string]model.CommitContributionStats{},
		rewriteKeys: map[string]model.CommitRewriteKey{},
	}
}

func key(repoID int64, id string) string { return fmt.Sprintf("%d:%s", repoID, id) }

func (f *fakeStore) InsertSession(s *model.Session) (store.InsertSessionResult, error) {
	k := key(s.RepoID, s.ID)
	if _, exists := f.sessions[k]; exists {
		return store.InsertSessionResult{Inserted: false}, nil
	}
	f.sessions[k] = s
	return store.InsertSessionResult{Inserted: true}, nil
}

func (f *fakeStore) InsertAuditLog(entry *model.IngestAuditLog) error { return nil }

func (f *fakeStore) ReplaceAtlasChunks(repoID int64, sessionID string, chunks []model.AtlasChunk) error {
	return nil
}

func (f *fakeStore) UpsertSessionLink(l *model.SessionLink) error {
	f.sessionLinks = append(f.sessionLinks, l)
	return nil
}

func (f *fakeStore) GetSession(repoID int64, id string) (*model.Session, error) {
	s, ok := f.sessions[key(repoID, id)]
	if !ok {
		return nil, os.ErrNotExist
	}
	return s, nil
}

func (f *fakeStore) ReplaceLineAttributions(repoID int64, commitSHA string, attrs []model.LineAttribution) error {
	f.attrs[key(repoID, commitSHA)] = attrs
	return nil
}

func (f *fakeStore) UpsertContributionStats(s *model.CommitContributionStats) error {
	f.stats[key(s.RepoID, s.CommitSHA)] = *s
	return nil
}

func (f *fakeStore) UpsertRewriteKey(k *model.CommitRewriteKey) error {
	f.rewriteKeys[key(k.RepoID, k.RewriteKey)] = *k
	return nil
}

func (f *fakeStore) FindCommitByRewriteKey(repoID int64, rewriteKey, excludeSHA string) (string, bool, error) {
	k, ok := f.rewriteKeys[key(repoID, rewriteKey)]
	if !ok || k.CommitSHA == excludeSHA {
		return "", false, nil
	}
	return k.CommitSHA, true, nil
}

func (f *fakeStore) ListCommitSessionLinks(repoID int64, commitSHA string) ([]model.CommitSessionLink, error) {
	var out []model.CommitSessionLink
	for _, l := range f.commitLinks {
		if l.RepoID == repoID && l.CommitSHA == commitSHA {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertCommitSessionLink(l *model.CommitSessionLink) error {
	f.commitLinks = append(f.commitLinks, *l)
	return nil
}

func (f *fakeStore) UpsertNoteMeta(m *model.StoryAnchorNoteMeta) error {
	f.noteMeta = append(f.noteMeta, m)
	return nil
}

func (f *fakeStore) InsertLineageEvent(repoID int64, headSHA, eventType, rewrittenPairsJSON, algorithm string) error {
	f.lineageEvents = append(f.lineageEvents, lineageEventRecord{
		RepoID: repoID, HeadSHA: headSHA, EventType: eventType, PairsJSON: rewrittenPairsJSON, Algorithm: algorithm,
	})
	return nil
}

// newTestRepo mirrors internal/hooks' initTestRepo: a disk-backed repo so
// commit-producing tests can exercise go-git directly.
func newTestRepo(t *testing.T) (*gitutil.Repo, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	gr, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	repo, err := gitutil.Open(dir)
	require.NoError(t, err)
	return repo, gr
}

// commitFile mirrors the teacher's strategy/auto_commit_test.go
// worktree.Commit pattern.
func commitFile(t *testing.T, gr *git.Repository, dir, name, content string, when time.Time) string {
	t.Helper()
	wt, err := gr.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	_, err = wt.Add(name)
	require.NoError(t, err)
	sig := &object.Signature{Name: "Test", Email: "test@test.com", When: when}
	hash, err := wt.Commit("commit "+name, &git.CommitOptions{Author: sig})
	require.NoError(t, err)
	return hash.String()
}

func TestIngestFile_S1_FirstImportInsertsAndLinks(t *testing.T) {
	repo, gr := newTestRepo(t)
	now := time.Now().UTC()
	commitSHA := commitFile(t, gr, repo.Root(), "a.ts", "package a\n", now.Add(-10*time.Minute))

	sessionPath := writeClaudeCodeSession(t, repo.Root(), now, "a.ts")

	db := newFakeStore()
	result, err := IngestFile(context.Background(), db, repo, 1, sessionPath)
	require.NoError(t, err)
	assert.True(t, result.Inserted)
	require.NotNil(t, result.Linked)
	assert.Equal(t, commitSHA, result.Linked.CommitSHA)
	assert.Len(t, db.sessionLinks, 1)
	assert.Len(t, db.commitLinks, 1)
}

func TestIngestFile_S5_DuplicateSkipsLinking(t *testing.T) {
	repo, gr := newTestRepo(t)
	now := time.Now().UTC()
	commitFile(t, gr, repo.Root(), "a.ts", "package a\n", now.Add(-10*time.Minute))
	sessionPath := writeClaudeCodeSession(t, repo.Root(), now, "a.ts")

	db := newFakeStore()
	_, err := IngestFile(context.Background(), db, repo, 1, sessionPath)
	require.NoError(t, err)

	result, err := IngestFile(context.Background(), db, repo, 1, sessionPath)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Nil(t, result.Linked)
	assert.Len(t, db.sessionLinks, 1, "duplicate re-import must not produce a second link")
}

func TestIngestFile_RejectsPathOutsideAllowedRoots(t *testing.T) {
	repo, _ := newTestRepo(t)
	db := newFakeStore()

	_, err := IngestFile(context.Background(), db, repo, 1, "/etc/passwd")
	require.Error(t, err)
	var pathErr *parser.PathValidationError
	assert.ErrorAs(t, err, &pathErr)
}

func TestLinkSession_S3_SecretHitRefusesLink(t *testing.T) {
	repo, gr := newTestRepo(t)
	now := time.Now().UTC()
	commitFile(t, gr, repo.Root(), "a.ts", "package a\n", now.Add(-10*time.Minute))

	db := newFakeStore()
	session := &model.Session{
		ID: "s1", RepoID: 1, Tool: model.ToolClaudeCode,
		DurationMin: 10, Files: []string{"a.ts"},
		RawJSON: []byte(`[{"role":"user","text":"My key is sk-abc123xyz789foo456bar789baz01234567890"}]`),
	}
	parsed := &parser.ParsedSession{Tool: model.ToolClaudeCode, EndedAt: now}

	_, err := linkSession(context.Background(), db, repo, 1, session, parsed)
	var secretErr *linker.SecretDetectedError
	assert.ErrorAs(t, err, &secretErr)
	assert.Empty(t, db.sessionLinks, "a session that fails the pre-link rescan must not be linked")
}

func TestOnCommit_FallsBackWhenNoAttributionsProduced(t *testing.T) {
	repo, gr := newTestRepo(t)
	now := time.Now().UTC()
	commitSHA := commitFile(t, gr, repo.Root(), "a.ts", "package a\n", now)

	db := newFakeStore()
	db.sessions[key(1, "s1")] = &model.Session{ID: "s1", RepoID: 1, Tool: model.ToolClaudeCode, MessageCount: 4}
	db.commitLinks = append(db.commitLinks, model.CommitSessionLink{RepoID: 1, CommitSHA: commitSHA, SessionID: "s1", Source: model.LinkSourceHeuristic, Confidence: 0.9})

	err := OnCommit(context.Background(), db, repo, nil, 1, commitSHA)
	require.NoError(t, err)

	stats := db.stats[key(1, commitSHA)]
	assert.Equal(t, 1.0, stats.AIPercentage)
	assert.Greater(t, stats.TotalLines, 0, "fallback must populate non-zero stats from the linked session")
}

func TestOnCommit_WritesStoryAnchorNotesWhenStoreProvided(t *testing.T) {
	repo, gr := newTestRepo(t)
	now := time.Now().UTC()
	commitSHA := commitFile(t, gr, repo.Root(), "a.ts", "line one\nline two\n", now)

	db := newFakeStore()
	db.sessions[key(1, "s1")] = &model.Session{ID: "s1", RepoID: 1, Tool: model.ToolClaudeCode, MessageCount: 2}
	db.commitLinks = append(db.commitLinks, model.CommitSessionLink{RepoID: 1, CommitSHA: commitSHA, SessionID: "s1", Source: model.LinkSourceHeuristic, Confidence: 0.9})

	noteStore := notes.NewStore(gr)
	err := OnCommit(context.Background(), db, repo, noteStore, 1, commitSHA)
	require.NoError(t, err)

	_, err = noteStore.ReadNote(notes.KindAttribution, commitSHA)
	require.NoError(t, err)
	_, err = noteStore.ReadNote(notes.KindSessions, commitSHA)
	require.NoError(t, err)
	assert.Len(t, db.noteMeta, 2)
}

func TestOnRewrite_WritesOneAggregatedLineageNoteAtHead(t *testing.T) {
	repo, gr := newTestRepo(t)
	now := time.Now().UTC()
	old1 := commitFile(t, gr, repo.Root(), "a.ts", "package a\n", now.Add(-2*time.Minute))
	old2 := commitFile(t, gr, repo.Root(), "b.ts", "package b\n", now.Add(-1*time.Minute))
	new1 := commitFile(t, gr, repo.Root(), "a.ts", "package a // amended\n", now)

	head, err := gr.Head()
	require.NoError(t, err)
	headSHA := head.Hash().String()

	db := newFakeStore()
	noteStore := notes.NewStore(gr)
	pairs := [][2]string{{old1, new1}, {old2, headSHA}}

	err = OnRewrite(context.Background(), db, repo, noteStore, 1, pairs)
	require.NoError(t, err)

	require.Len(t, db.lineageEvents, 1, "one rewrite event must cover every pair from the hook invocation")
	var decodedPairs [][2]string
	require.NoError(t, json.Unmarshal([]byte(db.lineageEvents[0].PairsJSON), &decodedPairs))
	assert.Equal(t, pairs, decodedPairs)
	assert.Equal(t, headSHA, db.lineageEvents[0].HeadSHA)

	body, err := noteStore.ReadNote(notes.KindLineage, headSHA)
	require.NoError(t, err)
	assert.Contains(t, string(body), "head_sha: "+headSHA)
	assert.Contains(t, string(body), "rewritten: "+old1+" -> "+new1)
}

func TestOnRewrite_NoPairsIsNoop(t *testing.T) {
	repo, _ := newTestRepo(t)
	db := newFakeStore()
	require.NoError(t, OnRewrite(context.Background(), db, repo, nil, 1, nil))
	assert.Empty(t, db.lineageEvents)
}

// writeClaudeCodeSession writes a minimal Claude Code JSONL transcript under
// repoRoot/.claude/projects/<slug>/, the only layout claudecode.Parser.CanParse
// claims, with a writeFile tool_use block so the session's Files (used by the
// Linker's overlap score) includes touchedFile.
func writeClaudeCodeSession(t *testing.T, repoRoot string, endedAt time.Time, touchedFile string) string {
	t.Helper()
	dir := filepath.Join(repoRoot, ".claude", "projects", "proj1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "session1.jsonl")

	started := endedAt.Add(-5 * time.Minute)
	toolInput, err := json.Marshal(map[string]string{"path": touchedFile})
	require.NoError(t, err)
	lines := []string{
		fmt.Sprintf(`{"type":"user","sessionId":"conv-1","timestamp":%q,"message":{"role":"user","content":"do the thing"}}`, started.Format(time.RFC3339)),
		fmt.Sprintf(`{"type":"assistant","sessionId":"conv-1","timestamp":%q,"message":{"role":"assistant","model":"claude-test","content":[{"type":"tool_use","name":"writeFile","input":%s}]}}`, endedAt.Format(time.RFC3339), toolInput),
	}
	data := ""
	for _, l := range lines {
		data += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}
