package memory

import (
	"context"
	"sync"
	"time"

	"github.com/memengine/memengine/internal/obslog"
)

const (
	defaultReflectionInterval = 45 * time.Second
	defaultReflectionLimit    = 20
)

// ReflectionConfig controls the background compaction-candidate scanner.
type ReflectionConfig struct {
	Enabled  bool
	Interval time.Duration
	Limit    int
}

// ReflectionWorker periodically re-scans a Manager for compact() candidates
// without ever compacting them itself: it runs Compact in dry-run mode on a
// ticker and caches the result, so a caller (or a future scheduled job) can
// ask "what would compact do right now" without paying for the scan inline.
// Grounded on a ticker-driven worker with mutex-guarded start/stop state and
// a single in-flight cycle at a time.
type ReflectionWorker struct {
	mgr *Manager
	cfg ReflectionConfig

	mu        sync.Mutex
	candidate []int64
	lastRun   time.Time
	stop      chan struct{}
	done      chan struct{}
}

// NewReflectionWorker builds a worker over mgr. Interval/Limit default when
// zero or negative.
func NewReflectionWorker(mgr *Manager, cfg ReflectionConfig) *ReflectionWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultReflectionInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultReflectionLimit
	}
	return &ReflectionWorker{mgr: mgr, cfg: cfg}
}

// Start launches the background scan loop if cfg.Enabled and it isn't
// already running. No-op otherwise.
func (w *ReflectionWorker) Start() {
	if w == nil || !w.cfg.Enabled {
		return
	}
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	w.stop = stop
	w.done = done
	w.mu.Unlock()

	go w.run(stop, done)
}

// Stop halts the scan loop, waiting briefly for the current cycle to finish.
func (w *ReflectionWorker) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	stop := w.stop
	done := w.done
	w.stop = nil
	w.done = nil
	w.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func (w *ReflectionWorker) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.scanOnce()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.scanOnce()
		}
	}
}

func (w *ReflectionWorker) scanOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Interval)
	defer cancel()

	result, err := w.mgr.Compact(ctx, "", CompactOptions{DryRun: true, Limit: w.cfg.Limit})
	if err != nil {
		obslog.Get(obslog.CategoryStore).Warn("reflection: compact scan failed: %v", err)
		return
	}

	w.mu.Lock()
	w.candidate = result.SelectedIDs
	w.lastRun = time.Now().UTC()
	w.mu.Unlock()
}

// Candidates returns the memory ids found by the most recent scan, and the
// time it ran. Purely advisory: nothing is archived or linked until a caller
// invokes compact() themselves.
func (w *ReflectionWorker) Candidates() ([]int64, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]int64, len(w.candidate))
	copy(out, w.candidate)
	return out, w.lastRun
}
