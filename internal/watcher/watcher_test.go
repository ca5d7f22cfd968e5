package watcher

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func startTestWatcher(t *testing.T, dir string, predicate PathPredicate, onChange func([]string)) *Watcher {
	t.Helper()
	w, err := New([]string{dir}, predicate, onChange, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.debounce = 50 * time.Millisecond
	if _, _, err := w.WatchRoots(); err != nil {
		t.Fatalf("WatchRoots: %v", err)
	}
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func waitWithTimeout(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal(msg)
	}
}

func TestWatcherCallsOnChange_WhenSignatureSettles(t *testing.T) {
	dir := t.TempDir()
	done := make(chan struct{})
	var gotPaths []string

	startTestWatcher(t, dir, ClaudeCodePredicate, func(paths []string) {
		gotPaths = paths
		close(done)
	})

	path := filepath.Join(dir, ".claude", "sess.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	waitWithTimeout(t, done, 5*time.Second, "timed out waiting for onChange")
	if !slices.Contains(gotPaths, path) {
		t.Fatalf("onChange did not contain %s, got %v", path, gotPaths)
	}
}

func TestWatcherRejectsNonMatchingPredicate(t *testing.T) {
	dir := t.TempDir()
	var called atomic.Bool

	startTestWatcher(t, dir, ClaudeCodePredicate, func(_ []string) {
		called.Store(true)
	})

	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if called.Load() {
		t.Fatal("onChange fired for a path the predicate rejects")
	}
}

func TestHandleEventIgnoresNonWriteCreate(t *testing.T) {
	w := &Watcher{pending: make(map[string]pendingEntry), predicate: func(string) bool { return true }}
	w.handleEvent(fsnotify.Event{Name: "file.txt", Op: fsnotify.Chmod})
	w.handleEvent(fsnotify.Event{Name: "file.txt", Op: fsnotify.Rename})
	if len(w.pending) != 0 {
		t.Fatalf("expected 0 pending, got %d", len(w.pending))
	}
}

func TestFlush_RequiresStableSignatureAcrossDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sig, _ := readSignature(path)

	var mu sync.Mutex
	var calls int
	w := &Watcher{
		pending:   map[string]pendingEntry{path: {lastSeen: time.Now().Add(-time.Second), sig: Signature{Size: sig.Size + 1}}},
		roots:     []string{dir},
		predicate: func(string) bool { return true },
		debounce:  10 * time.Millisecond,
		now:       time.Now,
		onChange: func(paths []string) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	}
	w.flush()

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatal("flush should not emit when the signature changed since the last observation")
	}
	if _, ok := w.pending[path]; !ok {
		t.Fatal("an unstable signature should restart the debounce window, not drop the path")
	}
}

func TestFlush_EmitsOnStableSignature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sig, _ := readSignature(path)

	var gotPaths []string
	w := &Watcher{
		pending:   map[string]pendingEntry{path: {lastSeen: time.Now().Add(-time.Second), sig: sig}},
		roots:     []string{dir},
		predicate: func(string) bool { return true },
		debounce:  10 * time.Millisecond,
		now:       time.Now,
		onChange:  func(paths []string) { gotPaths = paths },
	}
	w.flush()

	if len(gotPaths) != 1 || gotPaths[0] != path {
		t.Fatalf("expected [%s], got %v", path, gotPaths)
	}
}
