// Package watcher implements the File Watcher (spec §4.L): a recursive
// fsnotify watch over an allowlist of session-file roots, debounced by
// (size, mtime) signature stability rather than mere time elapsed.
// Grounded directly on wesm-agentsview's internal/sync/watcher.go — the
// goroutine/ticker/debounce-map shape is kept verbatim; only the emission
// predicate (signature recheck, symlink rejection, tool predicates,
// allowlist containment) is new, since the teacher's own watcher only
// debounces by elapsed time.
package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Signature is the (size, mtime) pair spec §4.L uses to detect a settled
// write: two observations separated by the debounce window must match
// before a path is considered stable enough to emit.
type Signature struct {
	Size  int64
	Mtime time.Time
}

// PathPredicate reports whether path is a session file this watcher cares
// about; see internal/watcher/predicates.go for the per-tool rules.
type PathPredicate func(path string) bool

type pendingEntry struct {
	lastSeen time.Time
	sig      Signature
}

// Watcher recursively watches an allowlist of roots and emits a
// deduplicated, debounced, signature-stable set of changed paths.
type Watcher struct {
	onChange  func(paths []string)
	predicate PathPredicate
	roots     []string
	fsw       *fsnotify.Watcher
	debounce  time.Duration
	pending   map[string]pendingEntry
	mu        sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a watcher over roots (already canonicalized and
// deduplicated by the caller), emitting only paths accepted by predicate.
func New(roots []string, predicate PathPredicate, onChange func(paths []string), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		onChange:  onChange,
		predicate: predicate,
		roots:     roots,
		fsw:       fsw,
		debounce:  defaultDebounce,
		pending:   make(map[string]pendingEntry),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		now:       time.Now,
		logger:    logger,
	}, nil
}

// WatchRoots walks each root and adds every subdirectory to the watch
// list, skipping inaccessible entries.
func (w *Watcher) WatchRoots() (watched, unwatched int, err error) {
	for _, root := range w.roots {
		werr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if addErr := w.fsw.Add(path); addErr != nil {
					unwatched++
				} else {
					watched++
				}
			}
			return nil
		})
		if werr != nil {
			err = werr
		}
	}
	return watched, unwatched, err
}

// Start begins processing file events in a goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		w.fsw.Close()
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		w.watchIfDir(event.Name)
	}
	if !w.accepts(event.Name) {
		return
	}
	sig, ok := readSignature(event.Name)
	if !ok {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = pendingEntry{lastSeen: w.now(), sig: sig}
	w.mu.Unlock()
}

func (w *Watcher) watchIfDir(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	_ = w.fsw.Add(path)
}

// accepts implements the allowlist + predicate + not-a-symlink checks of
// spec §4.L, independent of the signature-stability check in flush.
func (w *Watcher) accepts(path string) bool {
	if w.predicate != nil && !w.predicate(path) {
		return false
	}
	if !w.underAllowedRoot(path) {
		return false
	}
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink == 0
}

func (w *Watcher) underAllowedRoot(path string) bool {
	for _, root := range w.roots {
		if rel, err := filepath.Rel(root, path); err == nil && !isOutsideRoot(rel) {
			return true
		}
	}
	return false
}

func isOutsideRoot(rel string) bool {
	return rel == ".." || len(rel) >= 3 && rel[:3] == "../"
}

// flush implements spec §4.L's emission rule: a path fires only once its
// (size, mtime) signature has been stable across two observations 500ms
// apart. An unstable signature restarts the debounce window for that path
// rather than dropping it.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	now := w.now()
	var ready []string
	for path, entry := range w.pending {
		if now.Sub(entry.lastSeen) < w.debounce {
			continue
		}
		sig, ok := readSignature(path)
		if !ok || !w.accepts(path) {
			delete(w.pending, path)
			continue
		}
		if sig != entry.sig {
			w.pending[path] = pendingEntry{lastSeen: now, sig: sig}
			continue
		}
		ready = append(ready, path)
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if len(ready) > 0 {
		w.onChange(ready)
	}
}

func readSignature(path string) (Signature, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return Signature{}, false
	}
	return Signature{Size: info.Size(), Mtime: info.ModTime()}, true
}
