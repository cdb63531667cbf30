// Package watch monitors a directory tree for source document changes
// and emits debounced events, so the pipeline can reprocess files as
// they are edited.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const (
	// eventBuffer is the size of the outgoing event channel.
	eventBuffer = 256

	defaultPattern  = "**/*.md"
	defaultDebounce = 500 * time.Millisecond
)

// Op indicates the type of file operation.
type Op string

const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// Event is a debounced document change.
type Event struct {
	// Path is the file path relative to the watched root.
	Path string
	// AbsPath is the absolute file path.
	AbsPath string
	// Op is the type of change.
	Op Op
}

// skipDirs are directory names never watched, in addition to hidden
// directories.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

// Watcher watches a directory tree and emits Events for files whose
// relative path matches a doublestar pattern. Raw filesystem events
// are debounced, and rewrites that leave the content hash unchanged
// are suppressed.
type Watcher struct {
	root     string
	pattern  string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.RWMutex
	hashes map[string]string

	events  chan Event
	dropped atomic.Int64
}

// New creates a watcher for root. An empty pattern watches markdown
// files; a non-positive debounce uses 500ms.
func New(root, pattern string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if pattern == "" {
		pattern = defaultPattern
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		root:     root,
		pattern:  pattern,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan Event, eventBuffer),
	}, nil
}

// Events returns the channel of debounced change events. It is closed
// when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching. The root is created if it does not exist.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}

	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}

	go w.loop(ctx)

	w.logger.Info("watcher started",
		"root", w.root,
		"pattern", w.pattern,
		"debounce", w.debounce)
	return nil
}

// Stop stops the watcher. The events channel closes once the loop
// drains.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// PrimeHashes records content hashes for files already matching the
// pattern, so an unchanged rewrite after startup does not emit an
// event and the first real edit reports as a modify.
func (w *Watcher) PrimeHashes() {
	_ = filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if skipDirs[base] || (strings.HasPrefix(base, ".") && base != ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil || !w.matches(rel) {
			return nil
		}
		if data, readErr := os.ReadFile(path); readErr == nil {
			w.SetHash(rel, contentHash(data))
		}
		return nil
	})
}

// SetHash records the content hash for a relative path.
func (w *Watcher) SetHash(path, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = hash
}

// GetHash returns the recorded hash for a relative path.
func (w *Watcher) GetHash(path string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[path]
	return hash, ok
}

// DroppedEvents returns how many events were dropped because the
// channel was full.
func (w *Watcher) DroppedEvents() int64 {
	return w.dropped.Load()
}

func (w *Watcher) matches(relPath string) bool {
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(relPath))
	return err == nil && ok
}

// addWatchesRecursive adds watches to all directories under root.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}

		base := filepath.Base(path)
		if skipDirs[base] || (strings.HasPrefix(base, ".") && base != ".") {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("watching directory", "path", path)
		}
		return nil
	})
}

// loop handles fsnotify events with debouncing.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent accumulates a raw event, or registers a watch for a
// newly created directory.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}

	if !w.matches(relPath) {
		if event.Has(fsnotify.Create) {
			if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
				w.handleNewDirectory(path)
			}
		}
		return
	}

	for dir := range skipDirs {
		if strings.Contains(relPath, dir+string(filepath.Separator)) {
			return
		}
	}

	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("document change detected", "path", relPath, "op", event.Op.String())
}

func (w *Watcher) handleNewDirectory(path string) {
	base := filepath.Base(path)
	if skipDirs[base] || strings.HasPrefix(base, ".") {
		return
	}

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("cannot watch new directory", "path", path, "error", err)
	} else {
		w.logger.Debug("watching new directory", "path", path)
	}
}

// flushPending turns accumulated raw events into Events.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path, op := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			continue
		}
		event := Event{Path: relPath, AbsPath: path}

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			event.Op = OpDelete
			w.forgetHash(relPath)
			w.send(event)
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			event.Op = OpDelete
			w.forgetHash(relPath)
			w.send(event)
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("cannot read changed file", "path", relPath, "error", err)
			continue
		}

		newHash := contentHash(content)
		oldHash, hadHash := w.GetHash(relPath)
		if hadHash && oldHash == newHash {
			continue
		}
		w.SetHash(relPath, newHash)

		if op.Has(fsnotify.Create) || !hadHash {
			event.Op = OpCreate
		} else {
			event.Op = OpModify
		}
		w.send(event)
	}
}

func (w *Watcher) forgetHash(relPath string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	delete(w.hashes, relPath)
}

func (w *Watcher) send(event Event) {
	select {
	case w.events <- event:
		w.logger.Debug("watch event", "path", event.Path, "op", event.Op)
	default:
		dropped := w.dropped.Add(1)
		w.logger.Warn("event channel full, dropping event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
