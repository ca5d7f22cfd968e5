package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jscraik/firefly-narrative/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "narrative.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertSession_DedupeIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo, err := db.ResolveRepo("/tmp/repo")
	require.NoError(t, err)

	s := &model.Session{
		ID: "abc123", RepoID: repo.ID, Tool: model.ToolClaudeCode,
		ConversationID: "conv1", ImportedAt: time.Now().UTC(),
		RawJSON: []byte(`{"messages":[]}`), DedupeKey: "dk1",
	}

	res1, err := db.InsertSession(s)
	require.NoError(t, err)
	require.True(t, res1.Inserted)

	res2, err := db.InsertSession(s)
	require.NoError(t, err)
	require.False(t, res2.Inserted)
}

func TestGetSession_RoundTripsRawJSON(t *testing.T) {
	db := newTestDB(t)
	repo, err := db.ResolveRepo("/tmp/repo2")
	require.NoError(t, err)

	s := &model.Session{
		ID: "xyz", RepoID: repo.ID, Tool: model.ToolCodex,
		ConversationID: "conv2", ImportedAt: time.Now().UTC(),
		RawJSON: []byte(`{"messages":[{"role":"user","text":"hi"}]}`),
		Files:   []string{"a.go", "b.go"},
	}
	_, err = db.InsertSession(s)
	require.NoError(t, err)

	got, err := db.GetSession(repo.ID, "xyz")
	require.NoError(t, err)
	require.Equal(t, s.RawJSON, got.RawJSON)
	require.Equal(t, []string{"a.go", "b.go"}, got.Files)
}

func TestReplaceAtlasChunks_ReplacesWholeSet(t *testing.T) {
	db := newTestDB(t)
	repo, err := db.ResolveRepo("/tmp/repo3")
	require.NoError(t, err)

	chunks := []model.AtlasChunk{
		{ChunkUID: "atl_1", RepoID: repo.ID, SessionID: "s1", ChunkIndex: 0, RoleMask: "user", Text: "hello", SessionImportedAt: time.Now().UTC()},
	}
	require.NoError(t, db.ReplaceAtlasChunks(repo.ID, "s1", chunks))

	got, err := db.ListAtlasChunks(repo.ID, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, db.ReplaceAtlasChunks(repo.ID, "s1", nil))
	got, err = db.ListAtlasChunks(repo.ID, "s1")
	require.NoError(t, err)
	require.Len(t, got, 0)
}

func TestUpsertSessionLink_LastWriterWins(t *testing.T) {
	db := newTestDB(t)
	repo, err := db.ResolveRepo("/tmp/repo4")
	require.NoError(t, err)

	require.NoError(t, db.UpsertSessionLink(&model.SessionLink{RepoID: repo.ID, SessionID: "s1", CommitSHA: "c1", Confidence: 0.9}))
	require.NoError(t, db.UpsertSessionLink(&model.SessionLink{RepoID: repo.ID, SessionID: "s1", CommitSHA: "c2", Confidence: 0.8}))

	got, err := db.GetSessionLink(repo.ID, "s1")
	require.NoError(t, err)
	require.Equal(t, "c2", got.CommitSHA)
}
