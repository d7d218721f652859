// Package watcher re-ingests a project when its tree changes on disk.
// Events are debounced so editor save bursts trigger one ingestion, and
// the pipeline's tree-hash gate turns spurious wakeups into no-ops.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ping-mem/pingmem/internal/scanner"
)

// DefaultDebounce is the quiet period before a change fires.
const DefaultDebounce = 2 * time.Second

// Watcher observes one project tree.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	trigger chan struct{}
}

// New creates a watcher over the project root. Ignored directories
// (VCS metadata, build output, the state directory) are not watched.
func New(root string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		trigger:  make(chan struct{}, 1),
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory can vanish mid-walk; skip it.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && scanner.IgnoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// schedule arms (or re-arms) the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.trigger <- struct{}{}:
		default:
		}
	})
}

// relevant filters out events inside ignored directories.
func (w *Watcher) relevant(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for dir := filepath.Dir(rel); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if scanner.IgnoredDir(filepath.Base(dir)) {
			return false
		}
	}
	return !scanner.IgnoredDir(filepath.Base(rel))
}

// Run watches until the context is cancelled, invoking onChange after
// each debounced burst of events. onChange errors are logged and the
// watch continues.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev.Name) {
				continue
			}
			// New directories join the watch set.
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !scanner.IgnoredDir(filepath.Base(ev.Name)) {
						_ = w.addRecursive(ev.Name)
					}
				}
			}
			w.logger.Debug("fs event",
				slog.String("path", ev.Name),
				slog.String("op", ev.Op.String()))
			w.schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))

		case <-w.trigger:
			w.logger.Info("tree changed, re-ingesting", slog.String("root", w.root))
			if err := onChange(ctx); err != nil {
				w.logger.Error("re-ingestion failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
