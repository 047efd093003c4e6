// Package watcher implements a debounced, recursive fsnotify watcher that
// drives incremental re-indexing and file-scoped recall, and fans change
// notifications out to desktop/log-file/poll-file channels. Grounded on a
// debounceMap-plus-periodic-ticker settle pattern, generalized from a
// single fixed directory to a recursive walk over the whole project with
// the code index's skip set.
package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/memengine/memengine/internal/obslog"
)

// DefaultDebounce is the per-path suppression window.
const DefaultDebounce = 1 * time.Second

// Notification is the record emitted to every channel on an eligible change.
type Notification struct {
	Timestamp   time.Time `json:"timestamp"`
	Path        string    `json:"path"`
	MemoryCount int       `json:"memory_count"`
	HasWarnings bool      `json:"has_warnings"`
	Summary     string    `json:"summary"`
}

// Channel delivers a Notification somewhere. Failures are logged and never
// block other channels (§4.J).
type Channel interface {
	Name() string
	Send(n Notification) error
}

// Handler is invoked once a path's debounce window settles. It should run
// index_file_if_changed and recall_for_file and return the fields needed to
// build the Notification.
type Handler func(ctx context.Context, path string) (memoryCount int, hasWarnings bool, summary string, err error)

// Stats tracks watcher activity (§4.J stats counters).
type Stats struct {
	FilesChanged      int
	FilesReindexed    int
	NotificationsSent int
	Errors            int
}

// skipDirs mirrors the code indexer's hardcoded skip set.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "__pycache__": {}, "dist": {}, "build": {},
	"venv": {}, ".venv": {}, ".memory-store": {}, ".idea": {}, ".vscode": {},
}

// Watcher observes a project root recursively and debounces per-path events.
type Watcher struct {
	root     string
	debounce time.Duration
	handler  Handler
	channels []Channel
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
	stats   Stats
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New creates a Watcher rooted at projectRoot. debounce <= 0 uses DefaultDebounce.
func New(projectRoot string, debounce time.Duration, handler Handler, channels ...Channel) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root: projectRoot, debounce: debounce, handler: handler, channels: channels,
		fsw: fsw, pending: make(map[string]time.Time),
		stopCh: make(chan struct{}), doneCh: make(chan struct{}),
	}, nil
}

// Start recursively adds every non-skipped directory under root to the
// underlying fsnotify watcher and begins the debounce loop. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := skipDirs[d.Name()]; skip && path != w.root {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			obslog.Get(obslog.CategoryWatcher).Warn("watch add failed for %s: %v", path, addErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			obslog.Get(obslog.CategoryWatcher).Warn("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	for dir := filepath.Dir(rel); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
		if _, skip := skipDirs[filepath.Base(dir)]; skip {
			return
		}
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.process(ctx, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	w.mu.Lock()
	w.stats.FilesChanged++
	w.mu.Unlock()

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}

	count, hasWarnings, summary, err := w.handler(ctx, rel)
	if err != nil {
		obslog.Get(obslog.CategoryWatcher).Warn("watcher handler failed for %s: %v", rel, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.stats.FilesReindexed++
	w.mu.Unlock()

	n := Notification{Timestamp: time.Now(), Path: rel, MemoryCount: count, HasWarnings: hasWarnings, Summary: summary}
	for _, ch := range w.channels {
		if err := ch.Send(n); err != nil {
			obslog.Get(obslog.CategoryWatcher).Warn("notification channel %s failed: %v", ch.Name(), err)
			continue
		}
		w.mu.Lock()
		w.stats.NotificationsSent++
		w.mu.Unlock()
	}
}

// Stats returns a snapshot of the watcher's activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// LogFileChannel appends one JSON line per notification (§4.J
// append-to-log-file channel).
type LogFileChannel struct {
	Path string
	mu   sync.Mutex
}

func (c *LogFileChannel) Name() string { return "log-file" }

func (c *LogFileChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.OpenFile(c.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	line, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// PollFileChannel atomically replaces a JSON snapshot keyed by path, for
// editor polling (§4.J poll-file channel).
type PollFileChannel struct {
	Path string
	mu   sync.Mutex
}

func (c *PollFileChannel) Name() string { return "poll-file" }

func (c *PollFileChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]Notification)
	if existing, err := os.ReadFile(c.Path); err == nil {
		_ = json.Unmarshal(existing, &snapshot)
	}
	snapshot[n.Path] = n

	b, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	tmp := c.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.Path)
}

// DesktopChannel is a best-effort notification surface; failures here are
// always non-fatal (§4.J). Send is a function field so callers can plug in
// a platform-specific notifier without this package depending on one.
type DesktopChannel struct {
	SendFunc func(n Notification) error
}

func (c *DesktopChannel) Name() string { return "desktop-notification" }

func (c *DesktopChannel) Send(n Notification) error {
	if c.SendFunc == nil {
		return nil
	}
	return c.SendFunc(n)
}
