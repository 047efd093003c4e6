// Package memory implements CRUD over memories, tag inference,
// local/global classification, conflict detection, outcome sealing,
// pin/archive, compaction, pruning, and duplicate cleanup. Grounded on a
// store-facing service layer that wraps raw rows with classification and
// dedup logic, adapted from free-form knowledge entries to a closed
// category/outcome model.
package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/memengine/memengine/internal/analyzer"
	"github.com/memengine/memengine/internal/graph"
	"github.com/memengine/memengine/internal/hybrid"
	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/memerr"
	"github.com/memengine/memengine/internal/obslog"
	"github.com/memengine/memengine/internal/store"
	"github.com/memengine/memengine/internal/vectorindex"
)

// Category is one of the four closed memory kinds.
type Category string

const (
	CategoryDecision Category = "decision"
	CategoryPattern  Category = "pattern"
	CategoryWarning  Category = "warning"
	CategoryLearning Category = "learning"
)

func validCategory(c Category) bool {
	switch c {
	case CategoryDecision, CategoryPattern, CategoryWarning, CategoryLearning:
		return true
	}
	return false
}

// defaultPermanent: patterns and warnings are permanent by default,
// decisions and learnings decay.
func defaultPermanent(c Category) bool {
	return c == CategoryPattern || c == CategoryWarning
}

const conflictSimilarityThreshold = 0.75

var (
	repoMentionRe  = regexp.MustCompile(`(?i)\bthis (repo|codebase|project)\b`)
	ticketRe       = regexp.MustCompile(`(?i)\b[A-Z]{2,}-\d+\b`)
	universalWords = []string{"always", "never", "avoid"}
)

// Manager is the memory CRUD/retrieval surface over a single project's
// Store plus its lexical and vector indices. An optional global Manager can
// be attached for the two-partition classification described in §4.F.
type Manager struct {
	st       *store.Store
	lexIdx   *lexical.Index
	vecIdx   *vectorindex.Index
	gr       *graph.Graph
	global   *Manager // nil unless this is the local side of a partition pair
	isGlobal bool
}

// New builds a Manager and wires the lexical index's rebuild source to the
// store, so RebuildIndex() reconstructs purely from persistence (§5).
func New(st *store.Store, lexIdx *lexical.Index, vecIdx *vectorindex.Index, gr *graph.Graph) *Manager {
	m := &Manager{st: st, lexIdx: lexIdx, vecIdx: vecIdx, gr: gr}
	lexIdx.SetSource(func() []lexical.Doc {
		rows, err := st.ListMemories(nil, true)
		if err != nil {
			return nil
		}
		docs := make([]lexical.Doc, len(rows))
		for i, r := range rows {
			docs[i] = docFromRow(r)
		}
		return docs
	})
	return m
}

// AttachGlobal wires a second Manager as the global partition (§5 "Global
// partition adds a second persistence handle").
func (m *Manager) AttachGlobal(g *Manager) {
	g.isGlobal = true
	m.global = g
}

// RebuildIndex implements rebuild_index()'s memory-side repair: persistence
// is authoritative after a cancellation (§5), so this just replays the
// lexical index's registered source.
func (m *Manager) RebuildIndex() {
	m.lexIdx.RebuildIndex()
}

func docFromRow(r store.MemoryRow) lexical.Doc {
	return lexical.Doc{
		ID: r.ID, Content: r.Content, Rationale: r.Rationale, Context: r.Context,
		Tags: r.Tags, FilePath: r.FilePath, Category: r.Category,
	}
}

// RecordInput bundles record()'s optional fields.
type RecordInput struct {
	Category    Category
	Content     string
	Rationale   string
	Context     string
	Tags        []string
	FilePath    string
	IsPermanent *bool // nil uses the category default
}

// Conflict is a pre-existing memory whose content appears to contradict the
// newly recorded one.
type Conflict struct {
	MemoryID   int64
	Similarity float64
}

// RecordResult is what record() returns.
type RecordResult struct {
	ID        int64
	Conflicts []Conflict
}

// Record implements record(): persists a new memory, updates both indices,
// and runs conflict detection against existing memories.
func (m *Manager) Record(ctx context.Context, in RecordInput) (RecordResult, error) {
	if !validCategory(in.Category) {
		return RecordResult{}, memerr.New(memerr.InvalidCategory, "memory.Record", string(in.Category))
	}

	tags := analyzer.InferTags(in.Content+" "+in.Rationale, string(in.Category), in.Tags)
	doc := analyzer.Analyze(in.Content + " " + in.Rationale + " " + in.Context)

	permanent := defaultPermanent(in.Category)
	if in.IsPermanent != nil {
		permanent = *in.IsPermanent
	}

	row := store.MemoryRow{
		Category: string(in.Category), Content: in.Content, Rationale: in.Rationale,
		Context: in.Context, Tags: tags, Keywords: doc.Keywords, FilePath: in.FilePath,
		IsPermanent: permanent,
	}

	conflicts, err := m.detectConflicts(ctx, row)
	if err != nil {
		obslog.Get(obslog.CategorySearch).Warn("memory.Record: conflict detection failed: %v", err)
	}

	id, err := m.st.InsertMemory(row)
	if err != nil {
		return RecordResult{}, err
	}
	row.ID = id

	m.lexIdx.Upsert(docFromRow(row))
	if m.vecIdx != nil {
		if err := m.vecIdx.Upsert(ctx, id, in.Content+" "+in.Rationale); err != nil {
			obslog.Get(obslog.CategorySearch).Warn("memory.Record: embed failed for %d: %v", id, err)
		}
	}

	if m.classifyBoth(row) && m.global != nil && !m.isGlobal {
		if _, err := m.global.Record(ctx, in); err != nil {
			obslog.Get(obslog.CategoryStore).Warn("memory.Record: global mirror failed: %v", err)
		}
	}

	return RecordResult{ID: id, Conflicts: conflicts}, nil
}

// classifyBoth implements the local/global classification signals: explicit
// file scope, repo-relative language, or ticket numbers keep a memory local
// only; universal ("always"/"never"/"avoid") language or best-practice tags
// also mirror it to the global partition.
func (m *Manager) classifyBoth(row store.MemoryRow) bool {
	if row.FilePath != "" || repoMentionRe.MatchString(row.Content) || ticketRe.MatchString(row.Content) {
		return false
	}
	lower := strings.ToLower(row.Content)
	for _, w := range universalWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	for _, t := range row.Tags {
		if t == "best-practice" {
			return true
		}
	}
	return false
}

func (m *Manager) detectConflicts(ctx context.Context, candidate store.MemoryRow) ([]Conflict, error) {
	results := m.search(ctx, candidate.Content, hybrid.Query{Text: candidate.Content, Limit: 10})
	var conflicts []Conflict
	for _, r := range results {
		if r.Score < conflictSimilarityThreshold {
			continue
		}
		existing, err := m.st.GetMemory(r.ID)
		if err != nil {
			continue
		}
		if contradicts(candidate, existing) {
			conflicts = append(conflicts, Conflict{MemoryID: existing.ID, Similarity: r.Score})
		}
	}
	return conflicts, nil
}

// contradicts implements "category suggests contradiction": same file with
// a decision/warning pairing, or disjoint-but-opposing tag sets.
func contradicts(a, b store.MemoryRow) bool {
	if a.FilePath != "" && a.FilePath == b.FilePath {
		pair := map[string]bool{string(CategoryDecision): true, string(CategoryWarning): true}
		if pair[a.Category] && pair[b.Category] && a.Category != b.Category {
			return true
		}
	}
	return hasOpposingTags(a.Tags, b.Tags)
}

var opposingTagPairs = [][2]string{{"bugfix", "perf"}, {"tech-debt", "best-practice"}}

func hasOpposingTags(a, b []string) bool {
	set := func(tags []string) map[string]bool {
		m := make(map[string]bool, len(tags))
		for _, t := range tags {
			m[t] = true
		}
		return m
	}
	sa, sb := set(a), set(b)
	for _, pair := range opposingTagPairs {
		if (sa[pair[0]] && sb[pair[1]]) || (sa[pair[1]] && sb[pair[0]]) {
			return true
		}
	}
	return false
}

// Grouped is recall()'s category-grouped result shape.
type Grouped struct {
	Category string
	Results  []hybrid.Result
}

// RecallOptions mirrors §4.E's input filters.
type RecallOptions struct {
	Categories []string
	FilePath   string
	Limit      int
	Condensed  bool
	Weight     float64
}

// Recall implements recall(): runs the hybrid pipeline and groups by category.
func (m *Manager) Recall(ctx context.Context, topic string, opts RecallOptions) ([]Grouped, error) {
	results := m.search(ctx, topic, hybrid.Query{
		Text: topic, Limit: opts.Limit, FilePath: opts.FilePath,
		Condensed: opts.Condensed, Weight: opts.Weight,
	})
	return m.groupByCategory(results, opts.Categories)
}

// RecallForFile implements recall_for_file(): restricts results to memories
// whose file_path equals path or is an ancestor directory match.
func (m *Manager) RecallForFile(ctx context.Context, path string, opts RecallOptions) ([]Grouped, error) {
	results := m.search(ctx, path, hybrid.Query{Text: path, Limit: opts.Limit, Condensed: opts.Condensed})
	filtered := results[:0:0]
	for _, r := range results {
		row, err := m.st.GetMemory(r.ID)
		if err != nil {
			continue
		}
		if row.FilePath == path || strings.HasPrefix(path, row.FilePath+"/") {
			filtered = append(filtered, r)
		}
	}
	return m.groupByCategory(filtered, opts.Categories)
}

func (m *Manager) groupByCategory(results []hybrid.Result, wantCategories []string) ([]Grouped, error) {
	want := make(map[string]bool, len(wantCategories))
	for _, c := range wantCategories {
		want[c] = true
	}
	byCat := make(map[string][]hybrid.Result)
	var order []string
	for _, r := range results {
		row, err := m.st.GetMemory(r.ID)
		if err != nil {
			continue
		}
		if len(want) > 0 && !want[row.Category] {
			continue
		}
		if _, ok := byCat[row.Category]; !ok {
			order = append(order, row.Category)
		}
		byCat[row.Category] = append(byCat[row.Category], r)
		_ = m.st.TouchMemoryAccess(r.ID)
	}
	out := make([]Grouped, len(order))
	for i, c := range order {
		out[i] = Grouped{Category: c, Results: byCat[c]}
	}
	return out, nil
}

func (m *Manager) search(ctx context.Context, text string, q hybrid.Query) []hybrid.Result {
	p := &hybrid.Pipeline{Lexical: m.lexIdx, Vector: m.vecIdx, Lookup: m.candidateLookup}
	return p.Search(ctx, q)
}

func (m *Manager) candidateLookup(id int64) (hybrid.Candidate, bool) {
	row, err := m.st.GetMemory(id)
	if err != nil {
		return hybrid.Candidate{}, false
	}
	return hybrid.Candidate{
		ID: row.ID, FilePath: row.FilePath, IsPermanent: row.IsPermanent,
		IsPinned: row.IsPinned, IsArchived: row.IsArchived, Worked: row.Worked,
		AccessCount: row.AccessCount, CreatedAt: row.CreatedAt,
	}, true
}

// SealOutcome implements seal_outcome(): idempotent when called with the
// same outcome/worked values.
func (m *Manager) SealOutcome(id int64, outcome string, worked bool) error {
	row, err := m.st.GetMemory(id)
	if err != nil {
		return err
	}
	row.Outcome = outcome
	row.Worked = &worked
	now := time.Now().UTC()
	row.OutcomeSealedAt = &now
	if err := m.st.UpdateMemory(row); err != nil {
		return err
	}
	m.lexIdx.Upsert(docFromRow(row))
	return nil
}

// Pin implements pin(): pinning forces permanence (§3 invariant).
func (m *Manager) Pin(id int64, pinned bool) error {
	row, err := m.st.GetMemory(id)
	if err != nil {
		return err
	}
	row.IsPinned = pinned
	if pinned {
		row.IsPermanent = true
	}
	return m.st.UpdateMemory(row)
}

// Archive implements archive(): archived memories drop out of retrieval
// (handled by the lookup's IsArchived check) but remain graph-reachable.
func (m *Manager) Archive(id int64, archived bool) error {
	row, err := m.st.GetMemory(id)
	if err != nil {
		return err
	}
	row.IsArchived = archived
	return m.st.UpdateMemory(row)
}

// CompactOptions mirrors compact()'s optional arguments. DryRun is a plain
// bool, so the zero value runs the compaction: Compact records the summary
// and archives the originals.
type CompactOptions struct {
	Limit   int
	Topic   string
	DryRun  bool
}

// CompactResult reports what compact() selected and, unless dry-run, created.
type CompactResult struct {
	SelectedIDs []int64
	NewMemoryID int64 // 0 when dry-run
}

// Compact implements compact(): summarizes episodic memories into one
// learning memory and archives the originals behind supersedes edges.
func (m *Manager) Compact(ctx context.Context, summary string, opts CompactOptions) (CompactResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	dryRun := true
	if !opts.DryRun {
		dryRun = opts.DryRun
	}

	rows, err := m.st.ListMemories(nil, false)
	if err != nil {
		return CompactResult{}, err
	}

	var eligible []store.MemoryRow
	for _, r := range rows {
		if r.IsPermanent || r.IsPinned || r.IsArchived {
			continue
		}
		switch Category(r.Category) {
		case CategoryLearning:
			eligible = append(eligible, r)
		case CategoryDecision:
			if r.Outcome != "" || r.Worked != nil {
				eligible = append(eligible, r)
			}
		}
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].CreatedAt.Before(eligible[j].CreatedAt) })
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	ids := make([]int64, len(eligible))
	for i, r := range eligible {
		ids[i] = r.ID
	}

	if dryRun || len(ids) == 0 {
		return CompactResult{SelectedIDs: ids}, nil
	}

	res, err := m.Record(ctx, RecordInput{
		Category: CategoryLearning, Content: summary, Tags: []string{"compacted", "checkpoint"},
	})
	if err != nil {
		return CompactResult{}, err
	}

	err = m.st.Atomic(ctx, func(sess *store.Session) error {
		for _, r := range eligible {
			if _, err := m.gr.LinkTx(sess, r.ID, res.ID, graph.RelSupersedes, "", 1.0); err != nil {
				return err
			}
			r.IsArchived = true
			if err := sess.UpdateMemory(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CompactResult{}, err
	}

	return CompactResult{SelectedIDs: ids, NewMemoryID: res.ID}, nil
}

// PruneOptions mirrors prune()'s optional arguments.
type PruneOptions struct {
	OlderThanDays     int
	Categories        []string
	MinRecallCount    int
	ProtectSuccessful bool
	DryRun            bool
}

// Prune implements prune(): deletes memories older than OlderThanDays
// (default 90) that no protection covers. Patterns, warnings and pinned
// memories are always kept; successful outcomes are kept only when
// ProtectSuccessful is set, and recalled memories only when MinRecallCount is
// positive. DryRun is a plain bool: its zero value deletes for real.
func (m *Manager) Prune(opts PruneOptions) ([]int64, error) {
	olderThanDays := opts.OlderThanDays
	if olderThanDays <= 0 {
		olderThanDays = 90
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	want := make(map[string]bool, len(opts.Categories))
	for _, c := range opts.Categories {
		want[c] = true
	}

	rows, err := m.st.ListMemories(nil, true)
	if err != nil {
		return nil, err
	}

	var condemned []int64
	for _, r := range rows {
		if len(want) > 0 && !want[r.Category] {
			continue
		}
		if r.Category == string(CategoryPattern) || r.Category == string(CategoryWarning) || r.IsPinned {
			continue
		}
		if opts.ProtectSuccessful && r.Worked != nil && *r.Worked {
			continue
		}
		if opts.MinRecallCount > 0 && r.AccessCount >= opts.MinRecallCount {
			continue
		}
		if r.CreatedAt.After(cutoff) {
			continue
		}
		condemned = append(condemned, r.ID)
	}

	if opts.DryRun {
		return condemned, nil
	}

	for _, id := range condemned {
		if err := m.st.DeleteMemory(id); err != nil {
			return condemned, err
		}
		m.lexIdx.Delete(id)
		if m.vecIdx != nil {
			m.vecIdx.Delete(id)
		}
	}
	return condemned, nil
}

// DuplicateGroup is a set of memories judged duplicates of one another.
type DuplicateGroup struct {
	SurvivorID int64
	MergedIDs  []int64
}

// CleanupDuplicates implements cleanup_duplicates(): groups by
// (category, normalized content, file_path), keeps the newest row, prefers a
// sealed outcome when merging, and migrates incoming edges to the survivor.
func (m *Manager) CleanupDuplicates(dryRun bool) ([]DuplicateGroup, error) {
	rows, err := m.st.ListMemories(nil, true)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]store.MemoryRow)
	var order []string
	for _, r := range rows {
		key := r.Category + "\x00" + normalizeContent(r.Content) + "\x00" + r.FilePath
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var result []DuplicateGroup
	for _, key := range order {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.After(members[j].CreatedAt) })
		survivor := members[0]
		var merged []int64
		for _, dup := range members[1:] {
			merged = append(merged, dup.ID)
			if survivor.Outcome == "" && dup.Outcome != "" {
				survivor.Outcome = dup.Outcome
				survivor.Worked = dup.Worked
				survivor.OutcomeSealedAt = dup.OutcomeSealedAt
			}
		}
		result = append(result, DuplicateGroup{SurvivorID: survivor.ID, MergedIDs: merged})

		if dryRun {
			continue
		}
		err := m.st.Atomic(context.Background(), func(sess *store.Session) error {
			if err := sess.UpdateMemory(survivor); err != nil {
				return err
			}
			for _, dupID := range merged {
				if err := sess.RetargetEdges(dupID, survivor.ID); err != nil {
					return err
				}
				if err := sess.DeleteMemory(dupID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return result, err
		}
		for _, dupID := range merged {
			m.lexIdx.Delete(dupID)
			if m.vecIdx != nil {
				m.vecIdx.Delete(dupID)
			}
		}
	}
	return result, nil
}

func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
