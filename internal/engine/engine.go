package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memengine/memengine/internal/codeindex"
	"github.com/memengine/memengine/internal/gate"
	"github.com/memengine/memengine/internal/graph"
	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/rules"
	"github.com/memengine/memengine/internal/store"
	"github.com/memengine/memengine/internal/watcher"
)

// Engine composes every subsystem for a single project and exposes the
// agent-facing operations surface of §6.
type Engine struct {
	Project string

	st        *store.Store
	memories  *memory.Manager
	gr        *graph.Graph
	code      *codeindex.Indexer
	ruleEng   *rules.Engine
	gt        *gate.Gate
	watch     *watcher.Watcher
	reflect   *memory.ReflectionWorker

	git  GitProbe
	docs DocFetcher
}

// New assembles an Engine. Every subsystem is constructed by the caller
// (main/cmd) and passed in already wired to its own indices, composing at
// the edge rather than inside a god-constructor.
func New(project string, st *store.Store, memories *memory.Manager, gr *graph.Graph, code *codeindex.Indexer, ruleEng *rules.Engine, gt *gate.Gate) *Engine {
	return &Engine{Project: project, st: st, memories: memories, gr: gr, code: code, ruleEng: ruleEng, gt: gt}
}

// SetWatcher attaches an already-started Watcher (optional, §4.J).
func (e *Engine) SetWatcher(w *watcher.Watcher) { e.watch = w }

// SetGitProbe wires the external git-changes collaborator used by briefing().
func (e *Engine) SetGitProbe(g GitProbe) { e.git = g }

// SetDocFetcher wires the external document-fetch collaborator used by
// ingest_doc().
func (e *Engine) SetDocFetcher(d DocFetcher) { e.docs = d }

// SetReflectionWorker attaches and starts the background compaction-candidate
// scanner. Optional: callers that never call this simply never get an
// advisory scan, compact() itself is unaffected.
func (e *Engine) SetReflectionWorker(w *memory.ReflectionWorker) {
	e.reflect = w
	e.reflect.Start()
}

// Close stops any background workers this engine owns. Safe to call even if
// SetWatcher/SetReflectionWorker were never called.
func (e *Engine) Close() {
	if e.watch != nil {
		e.watch.Stop()
	}
	if e.reflect != nil {
		e.reflect.Stop()
	}
}

// StorageStats implements the storage-statistics facet of briefing() and
// the standalone health() operation.
type StorageStats struct {
	MemoryCount int
	RuleCount   int
	EntityCount int
	FileCount   int
}

func (e *Engine) storageStats() (StorageStats, error) {
	mems, err := e.st.ListMemories(nil, true)
	if err != nil {
		return StorageStats{}, err
	}
	rls, err := e.st.ListRules()
	if err != nil {
		return StorageStats{}, err
	}
	entities, err := e.st.AllEntities(e.Project)
	if err != nil {
		return StorageStats{}, err
	}
	hashes, err := e.st.AllFileHashes(e.Project)
	if err != nil {
		return StorageStats{}, err
	}
	return StorageStats{
		MemoryCount: len(mems), RuleCount: len(rls),
		EntityCount: len(entities), FileCount: len(hashes),
	}, nil
}

// Health implements the health() operation: a best-effort snapshot of the
// engine's subsystems, never failing on a degraded optional collaborator.
type Health struct {
	Storage       StorageStats
	WatcherActive bool
}

func (e *Engine) Health() (Health, error) {
	stats, err := e.storageStats()
	if err != nil {
		return Health{}, err
	}
	return Health{Storage: stats, WatcherActive: e.watch != nil}, nil
}

// MemoryView is the display shape returned by composite operations that
// list memories; Condensed truncates Content to 150 characters and drops
// Rationale/Context per §4.E step 5.
type MemoryView struct {
	ID        int64
	Category  string
	Content   string
	FilePath  string
	Tags      []string
	CreatedAt time.Time
}

const condensedContentLimit = 150

func toView(r store.MemoryRow, condensed bool) MemoryView {
	content := r.Content
	if condensed && len(content) > condensedContentLimit {
		content = content[:condensedContentLimit]
	}
	return MemoryView{ID: r.ID, Category: r.Category, Content: content, FilePath: r.FilePath, Tags: r.Tags, CreatedAt: r.CreatedAt}
}

// BriefingResult is briefing()'s return shape.
type BriefingResult struct {
	RecentMemories   []MemoryView
	ActiveWarnings   []MemoryView
	FailedApproaches []MemoryView
	RuleCount        int
	Git              GitChanges
	Storage          StorageStats
}

// Briefing implements briefing(focus_areas?): registers this project's
// initialization token as a side effect, per §4.K. Its six reads are
// independent of one another, so they're gathered with an errgroup instead
// of running sequentially.
func (e *Engine) Briefing(ctx context.Context, focusAreas []string) (BriefingResult, error) {
	var (
		recent         []MemoryView
		activeWarnings []MemoryView
		failed         []MemoryView
		ruleCount      int
		changes        GitChanges
		stats          StorageStats
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		all, err := e.st.ListMemories(nil, false)
		if err != nil {
			return err
		}
		sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
		if len(all) > 20 {
			all = all[:20]
		}
		recent = make([]MemoryView, len(all))
		for i, r := range all {
			recent[i] = toView(r, true)
		}
		return nil
	})

	eg.Go(func() error {
		warnings, err := e.st.ListMemories([]string{string(memory.CategoryWarning)}, false)
		if err != nil {
			return err
		}
		activeWarnings = make([]MemoryView, 0, len(warnings))
		for _, r := range warnings {
			activeWarnings = append(activeWarnings, toView(r, true))
		}
		return nil
	})

	eg.Go(func() error {
		decisions, err := e.st.ListMemories([]string{string(memory.CategoryDecision)}, false)
		if err != nil {
			return err
		}
		for _, r := range decisions {
			if r.Worked != nil && !*r.Worked {
				failed = append(failed, toView(r, true))
			}
		}
		return nil
	})

	eg.Go(func() error {
		rls, err := e.st.ListRules()
		if err != nil {
			return err
		}
		ruleCount = len(rls)
		return nil
	})

	eg.Go(func() error {
		if e.git == nil {
			return nil
		}
		c, err := e.git.ChangesSince(egCtx, time.Time{})
		if err != nil {
			return nil
		}
		changes = c
		return nil
	})

	eg.Go(func() error {
		s, err := e.storageStats()
		if err != nil {
			return err
		}
		stats = s
		return nil
	})

	if err := eg.Wait(); err != nil {
		return BriefingResult{}, err
	}

	e.gt.Initialize(e.Project)

	return BriefingResult{
		RecentMemories: recent, ActiveWarnings: activeWarnings, FailedApproaches: failed,
		RuleCount: ruleCount, Git: changes, Storage: stats,
	}, nil
}

// ContextCheckResult is context_check()'s return shape.
type ContextCheckResult struct {
	Recall     []memory.Grouped
	RuleCheck  rules.CheckResult
	Token      string
	ValidUntil time.Time
}

// ContextCheck implements context_check(description): issues this
// project's context token as a side effect, per §4.K.
func (e *Engine) ContextCheck(ctx context.Context, description string) (ContextCheckResult, error) {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return ContextCheckResult{}, err
	}

	recall, err := e.memories.Recall(ctx, description, memory.RecallOptions{Limit: 10})
	if err != nil {
		return ContextCheckResult{}, err
	}
	ruleCheck, err := e.ruleEng.CheckRules(ctx, description, "")
	if err != nil {
		return ContextCheckResult{}, err
	}

	token, validUntil := e.gt.IssueContextToken(e.Project, description)
	return ContextCheckResult{Recall: recall, RuleCheck: ruleCheck, Token: token, ValidUntil: validUntil}, nil
}

// Record implements record(): gated by requires_context, since recording a
// new memory is expected to follow a context_check in the agent workflow.
func (e *Engine) Record(ctx context.Context, in memory.RecordInput) (memory.RecordResult, error) {
	if err := e.gt.RequiresContext(e.Project); err != nil {
		return memory.RecordResult{}, err
	}
	return e.memories.Record(ctx, in)
}

// RecordBatch implements record_batch(): each item goes through the same
// gated path as Record, continuing past individual failures and reporting
// them alongside successes.
type RecordBatchItem struct {
	Result memory.RecordResult
	Err    error
}

func (e *Engine) RecordBatch(ctx context.Context, inputs []memory.RecordInput) ([]RecordBatchItem, error) {
	if err := e.gt.RequiresContext(e.Project); err != nil {
		return nil, err
	}
	out := make([]RecordBatchItem, len(inputs))
	for i, in := range inputs {
		res, err := e.memories.Record(ctx, in)
		out[i] = RecordBatchItem{Result: res, Err: err}
	}
	return out, nil
}

// SealOutcome implements seal_outcome(), gated by requires_initialization.
func (e *Engine) SealOutcome(id int64, outcome string, worked bool) error {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return err
	}
	return e.memories.SealOutcome(id, outcome, worked)
}

// Pin implements pin(), gated by requires_initialization.
func (e *Engine) Pin(id int64, pinned bool) error {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return err
	}
	return e.memories.Pin(id, pinned)
}

// Archive implements archive(), gated by requires_initialization.
func (e *Engine) Archive(id int64, archived bool) error {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return err
	}
	return e.memories.Archive(id, archived)
}

// Prune implements prune(), gated by requires_initialization.
func (e *Engine) Prune(opts memory.PruneOptions) ([]int64, error) {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return nil, err
	}
	return e.memories.Prune(opts)
}

// CleanupDuplicates implements cleanup_duplicates(), gated by requires_initialization.
func (e *Engine) CleanupDuplicates(dryRun bool) ([]memory.DuplicateGroup, error) {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return nil, err
	}
	return e.memories.CleanupDuplicates(dryRun)
}

// Compact implements compact(), gated by requires_initialization.
func (e *Engine) Compact(ctx context.Context, summary string, opts memory.CompactOptions) (memory.CompactResult, error) {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return memory.CompactResult{}, err
	}
	return e.memories.Compact(ctx, summary, opts)
}

// Link implements link(), gated by requires_initialization.
func (e *Engine) Link(sourceID, targetID int64, rel graph.Relationship, description string, confidence float64) (int64, error) {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return 0, err
	}
	return e.gr.Link(sourceID, targetID, rel, description, confidence)
}

// Unlink implements unlink(), gated by requires_initialization.
func (e *Engine) Unlink(sourceID, targetID int64, rel graph.Relationship) error {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return err
	}
	return e.gr.Unlink(sourceID, targetID, rel)
}

// AddRule implements add_rule(), gated by requires_initialization.
func (e *Engine) AddRule(trigger string, mustDo, mustNot, askFirst, warnings []string, priority int) (int64, error) {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return 0, err
	}
	return e.ruleEng.AddRule(trigger, mustDo, mustNot, askFirst, warnings, priority)
}

// UpdateRule implements update_rule(), gated by requires_initialization.
func (e *Engine) UpdateRule(row store.RuleRow) error {
	if err := e.gt.RequiresInitialization(e.Project); err != nil {
		return err
	}
	return e.ruleEng.UpdateRule(row)
}

func (e *Engine) String() string {
	return fmt.Sprintf("engine(%s)", e.Project)
}
