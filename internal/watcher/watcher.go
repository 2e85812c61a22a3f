// Package watcher triggers a full re-index when source files of a
// repository change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before a
// re-index runs.
const DefaultDebounce = 500 * time.Millisecond

// Filter decides which directories are watched and which files count as
// changes. *scanner.Filter satisfies it.
type Filter interface {
	SkipDir(path string) bool
	Keep(path string) bool
}

// Trigger runs a re-index. changed holds the paths seen since the last run.
type Trigger func(ctx context.Context, changed []string) error

type Watcher struct {
	root      string
	filter    Filter
	trigger   Trigger
	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	runs    chan struct{}
}

type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New watches every directory under root that filter does not skip.
func New(root string, filter Filter, trigger Trigger, opts ...Option) (*Watcher, error) {
	if filter == nil || trigger == nil {
		return nil, errors.New("watcher: filter and trigger are required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:      root,
		filter:    filter,
		trigger:   trigger,
		fsWatcher: fsw,
		logger:    slog.Default(),
		debounce:  DefaultDebounce,
		pending:   make(map[string]struct{}),
		runs:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.filter.SkipDir(p) {
			return fs.SkipDir
		}
		return w.fsWatcher.Add(p)
	})
}

// Run processes events until ctx is done. Triggers run one at a time on the
// calling goroutine; events arriving during a run schedule another.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsWatcher.Close()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher.error", "error", err)

		case <-w.runs:
			changed := w.drain()
			if len(changed) == 0 {
				continue
			}
			w.logger.Info("watcher.reindex", "changed", len(changed))
			if err := w.trigger(ctx, changed); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Error("watcher.reindex_failed", "error", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.filter.SkipDir(event.Name) {
				return
			}
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("watcher.add_failed", "path", event.Name, "error", err)
			}
			w.schedule(event.Name)
			return
		}
	}

	if !w.filter.Keep(event.Name) {
		// A removed directory can no longer be stat'ed, so any removed path
		// without an extension counts.
		removed := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0
		if !removed || filepath.Ext(event.Name) != "" {
			return
		}
	}
	w.schedule(event.Name)
}

func (w *Watcher) schedule(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[p] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.runs <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	w.pending = make(map[string]struct{})
	return out
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
