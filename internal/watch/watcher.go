// Package watch adapts fsnotify into the change-signal stream the
// invalidation coordinator consumes: debounced batches of
// Created/Modified/Deleted events for paths under a project root.
// Delivery is at-least-once with no ordering guarantee.
package watch

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Kind classifies a file change.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
)

// String returns the kind's name for logging.
func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is one debounced file change.
type Event struct {
	Kind Kind
	Path string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet interval before a batch is flushed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithExcludes adds glob patterns (root-relative paths) whose events are
// dropped.
func WithExcludes(patterns ...string) Option {
	return func(w *Watcher) { w.excludes = append(w.excludes, patterns...) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// skipDirs are directory names never watched. Hidden directories are also
// skipped, which keeps the on-disk cache directory from feeding its own
// writes back in as change signals.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// Watcher recursively watches a project root and emits debounced batches.
type Watcher struct {
	root      string
	fsWatcher *fsnotify.Watcher
	debouncer *debouncer
	debounce  time.Duration
	excludes  []string
	logger    *slog.Logger
	closeOnce sync.Once
}

// New creates a recursive watcher rooted at root and registers every
// non-ignored subdirectory.
func New(root string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:      root,
		fsWatcher: fsw,
		debounce:  100 * time.Millisecond,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = newDebouncer(w.debounce)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(path) {
			return filepath.SkipDir
		}
		if watchErr := fsw.Add(path); watchErr != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", watchErr)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events returns the channel delivering debounced batches.
func (w *Watcher) Events() <-chan []Event {
	return w.debouncer.output()
}

// Start consumes raw fsnotify events until the watcher is closed. Run it in
// a goroutine.
func (w *Watcher) Start() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name

	// A freshly created directory needs its own watch; directory creation
	// itself is not a change signal.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.skipDir(path) {
				if err := w.fsWatcher.Add(path); err != nil {
					w.logger.Warn("failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	if w.skipFile(path) {
		return
	}

	var kind Kind
	switch {
	case event.Has(fsnotify.Create):
		kind = Created
	case event.Has(fsnotify.Write):
		kind = Modified
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename leaves no file at the old path; downstream treats both
		// as a deletion and lets the next scan pick up the new name.
		kind = Deleted
	default:
		return
	}
	w.debouncer.add(path, kind)
}

func (w *Watcher) skipDir(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || skipDirs[name]
}

func (w *Watcher) skipFile(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") || skipDirs[part] {
			return true
		}
	}
	for _, pattern := range w.excludes {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Close stops the watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() { err = w.fsWatcher.Close() })
	return err
}
