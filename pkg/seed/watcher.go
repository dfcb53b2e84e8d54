package seed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/mocify/mocify/pkg/logging"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Patterns are the seed patterns to watch, as given to Load.
	Patterns []string

	// BaseDir resolves relative patterns.
	BaseDir string

	// DebounceInterval is the quiet period after the last event before a
	// reload fires (default: 100ms).
	DebounceInterval time.Duration

	// Extensions limits which files trigger a reload (default: .yaml, .yml).
	Extensions []string
}

// DefaultDebounceInterval is used when WatcherConfig.DebounceInterval is zero.
const DefaultDebounceInterval = 100 * time.Millisecond

// Watch errors.
var (
	ErrWatcherRunning = errors.New("watcher already running")
	ErrWatcherStopped = errors.New("watcher stopped")
)

// Watcher watches the directories behind a set of seed patterns and calls a
// reload function, debounced, whenever a matching file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	log      *slog.Logger
	config   WatcherConfig
	globs    []string
	debounce *Debouncer

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the given patterns.
func NewWatcher(cfg WatcherConfig, log *slog.Logger) (*Watcher, error) {
	if len(cfg.Patterns) == 0 {
		return nil, errors.New("no seed patterns to watch")
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".yaml", ".yml"}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	globs := make([]string, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		globs = append(globs, resolvePath(cfg.BaseDir, p))
	}

	return &Watcher{
		watcher:  fw,
		log:      logging.Component(logging.OrNop(log), "seed-watcher"),
		config:   cfg,
		globs:    globs,
		debounce: NewDebouncer(cfg.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called, invoking onReload
// after each burst of relevant file events. Reload errors are logged and do
// not stop the watcher.
func (w *Watcher) Watch(ctx context.Context, onReload func() error) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrWatcherStopped
	}
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	for _, dir := range w.roots() {
		if err := w.addTree(dir); err != nil {
			return err
		}
	}
	w.log.Info("watching seed files",
		"patterns", w.config.Patterns,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("cannot watch new directory", "path", event.Name, "error", err)
					}
					// Files copied in with the directory produce no events of their own.
					w.trigger(event, onReload)
					continue
				}
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug("seed file event", "path", event.Name, "op", event.Op.String())
			w.trigger(event, onReload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.log.Error("seed watcher error", "error", err)
		}
	}
}

func (w *Watcher) trigger(event fsnotify.Event, onReload func() error) {
	w.debounce.Trigger(func() {
		w.log.Info("reloading seed files", "path", event.Name, "op", event.Op.String())
		if err := onReload(); err != nil {
			w.log.Error("seed reload failed", "error", err)
		}
	})
}

// Stop ends Watch and releases the fsnotify watcher. It is safe to call
// more than once, and before Watch.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	running := w.running
	w.mu.Unlock()

	close(w.stopCh)
	if running {
		<-w.doneCh
	}
	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	return nil
}

// roots returns the static directory prefix of every pattern.
func (w *Watcher) roots() []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, g := range w.globs {
		dir := filepath.Dir(g)
		if hasMeta(g) {
			base, _ := doublestar.SplitPattern(filepath.ToSlash(g))
			dir = filepath.FromSlash(base)
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch directory %q: %w", path, err)
		}
		return nil
	})
}

// relevant reports whether an event concerns a file one of the patterns
// selects.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	valid := false
	for _, e := range w.config.Extensions {
		if ext == strings.ToLower(e) {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	name := filepath.Clean(event.Name)
	for _, g := range w.globs {
		if !hasMeta(g) {
			if name == g {
				return true
			}
			continue
		}
		if ok, _ := doublestar.PathMatch(g, name); ok {
			return true
		}
	}
	return false
}

// Debouncer collects rapid events and runs the latest callback only after a
// quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Trigger schedules callback, replacing any callback still waiting.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
		}
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
