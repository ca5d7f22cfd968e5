package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath_RejectsParentTraversal(t *testing.T) {
	_, err := ValidatePath("../../etc/passwd", t.TempDir())
	require.Error(t, err)
	var pathErr *PathValidationError
	assert.ErrorAs(t, err, &pathErr)
}

func TestValidatePath_RejectsPathOutsideAllowedRoots(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	file := filepath.Join(outside, "session.jsonl")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	_, err := ValidatePath(file, root)
	require.Error(t, err)
	var pathErr *PathValidationError
	assert.ErrorAs(t, err, &pathErr)
}

func TestValidatePath_AcceptsPathInsideAllowedRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "session.jsonl")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	resolved, err := ValidatePath(file, root)
	require.NoError(t, err)
	assert.NotEmpty(t, resolved)
}

func TestValidatePath_AlwaysAllowsTempDir(t *testing.T) {
	file := filepath.Join(os.TempDir(), "narrative-pathguard-test-session.jsonl")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	t.Cleanup(func() { os.Remove(file) })

	_, err := ValidatePath(file)
	require.NoError(t, err)
}

func TestValidatePath_NonexistentPathStillChecksAllowlist(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "does-not-exist.jsonl")

	resolved, err := ValidatePath(missing, root)
	require.NoError(t, err, "a not-yet-existing path under an allowed root should still validate")
	assert.NotEmpty(t, resolved)
}

func TestCheckSize_AllowsFileUnderLimit(t *testing.T) {
	file := filepath.Join(t.TempDir(), "small.jsonl")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	assert.NoError(t, CheckSize(file))
}

func TestCheckSize_RejectsFileOverLimit(t *testing.T) {
	file := filepath.Join(t.TempDir(), "huge.jsonl")
	f, err := os.Create(file)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(MaxSessionFileBytes+1))
	require.NoError(t, f.Close())

	err = CheckSize(file)
	require.Error(t, err)
	var tooLarge *FileTooLargeError
	assert.ErrorAs(t, err, &tooLarge)
}
