package copilot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanParse(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/home/u/.config/Code/User/workspaceStorage/abc123/chatSessions/sess.json", true},
		{"/home/u/.config/Code/User/workspaceStorage/abc123/chatSessions/sess.jsonl", false},
		{"/home/u/workspaceStorage/abc123/other/sess.json", false},
	}
	p := &Parser{}
	for _, c := range cases {
		assert.Equal(t, c.want, p.CanParse(c.path), c.path)
	}
}

func TestParse_ExtractsMessagesAndResponses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "workspaceStorage", "abc123", "chatSessions")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "sess.json")
	content := `{
		"sessionId": "sess-1",
		"requests": [
			{"message": {"text": "fix the bug"}, "response": [{"value": "done"}]}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p := &Parser{}
	result, err := p.Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", result.ConversationID)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, "fix the bug", result.Messages[0].Text)
	assert.Equal(t, "done", result.Messages[1].Text)
}

func TestParse_MalformedDocumentProducesWarningNotError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "workspaceStorage", "abc123", "chatSessions")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "sess.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	p := &Parser{}
	result, err := p.Parse(path)
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
}
