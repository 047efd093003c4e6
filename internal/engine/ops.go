package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/memengine/memengine/internal/codeindex"
	"github.com/memengine/memengine/internal/graph"
	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/rules"
	"github.com/memengine/memengine/internal/store"
)

// Recall implements recall(): never gated, read-only (§4.K).
func (e *Engine) Recall(ctx context.Context, topic string, opts memory.RecallOptions) ([]memory.Grouped, error) {
	return e.memories.Recall(ctx, topic, opts)
}

// RecallForFile implements recall_for_file(): never gated, read-only.
func (e *Engine) RecallForFile(ctx context.Context, path string, opts memory.RecallOptions) ([]memory.Grouped, error) {
	return e.memories.RecallForFile(ctx, path, opts)
}

// Search is an alias for Recall with no category grouping filter, matching
// the bare "search" entry of §6's operations surface.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]memory.Grouped, error) {
	return e.memories.Recall(ctx, query, memory.RecallOptions{Limit: limit})
}

// FindRelated implements find_related(memory_id, [max_depth]): an
// undirected convenience over Trace, for callers that want "what connects
// to this" without choosing a direction. Treated as trace with DirBoth.
func (e *Engine) FindRelated(id int64, maxDepth int) (graph.Subgraph, error) {
	return e.gr.Trace(id, graph.DirBoth, nil, maxDepth)
}

// Trace implements trace(): never gated, read-only.
func (e *Engine) Trace(id int64, dir graph.Direction, relationshipTypes []graph.Relationship, maxDepth int) (graph.Subgraph, error) {
	return e.gr.Trace(id, dir, relationshipTypes, maxDepth)
}

// defaultExportTopicLimit bounds how many memories topic-seeding pulls in
// before expanding the subgraph.
const defaultExportTopicLimit = 10

// ExportGraph implements export_graph(format, [ids | topic], include_orphans):
// never gated, read-only. When topic is non-empty, the subgraph is seeded
// with the top-k memories recall(topic) returns, merged with any explicit
// ids, before expanding via Export's own depth-2-by-default traversal.
func (e *Engine) ExportGraph(ctx context.Context, ids []int64, topic string, format graph.Format, maxDepth int, includeOrphans bool) (string, error) {
	seeds := ids
	if topic != "" {
		groups, err := e.memories.Recall(ctx, topic, memory.RecallOptions{Limit: defaultExportTopicLimit})
		if err != nil {
			return "", err
		}
		seen := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			seen[id] = struct{}{}
		}
		for _, g := range groups {
			for _, r := range g.Results {
				if _, ok := seen[r.ID]; !ok {
					seen[r.ID] = struct{}{}
					seeds = append(seeds, r.ID)
				}
			}
		}
	}
	return e.gr.Export(seeds, format, maxDepth, includeOrphans)
}

// CompactionCandidates returns the memory ids the background reflection
// scanner most recently flagged as compact() candidates, and when that scan
// ran. Empty/zero time when no SetReflectionWorker was attached or no cycle
// has completed yet. Never gated, read-only, and never itself compacts.
func (e *Engine) CompactionCandidates() ([]int64, time.Time) {
	if e.reflect == nil {
		return nil, time.Time{}
	}
	return e.reflect.Candidates()
}

// ListRules implements list_rules(): never gated, read-only.
func (e *Engine) ListRules() ([]rules.Rule, error) {
	return e.ruleEng.ListRules()
}

// CheckRules implements check_rules(): never gated, read-only.
func (e *Engine) CheckRules(ctx context.Context, action, extraContext string) (rules.CheckResult, error) {
	return e.ruleEng.CheckRules(ctx, action, extraContext)
}

// IndexProject implements index_project(): a bulk read of the filesystem
// and a bulk write of the code-entity index, but not one of §4.K's listed
// mutating operations, so it is ungated like the rest of the code indexer's
// surface.
func (e *Engine) IndexProject(ctx context.Context, patterns []string, force bool) (codeindex.ProjectIndexStats, error) {
	return e.code.IndexProject(ctx, patterns, force)
}

// FindCode implements find_code(): never gated, read-only.
func (e *Engine) FindCode(ctx context.Context, query string, limit int) ([]store.CodeEntityRow, error) {
	return e.code.FindCode(ctx, query, limit)
}

// AnalyzeImpact implements analyze_impact(): never gated, read-only.
func (e *Engine) AnalyzeImpact(entityName string) ([]codeindex.ImpactReport, error) {
	return e.code.AnalyzeImpact(entityName)
}

// ScanTODOs implements scan_todos(file_path): never gated, read-only.
func (e *Engine) ScanTODOs(relPath string) ([]TODOItem, error) {
	return scanTODOs(filepath.Join(e.Project, relPath))
}

// RebuildIndex implements rebuild_index(): replays every lexical index's
// registered source, per §5's cancellation/read-through-repair guarantee.
func (e *Engine) RebuildIndex() {
	e.memories.RebuildIndex()
	e.code.RebuildIndex()
	e.ruleEng.RebuildIndex()
}

// ExportData implements export_data(): never gated, read-only.
func (e *Engine) ExportData() (store.Snapshot, error) {
	return e.st.Export()
}

// ImportData implements import_data(): not present in §4.K's guarded list
// (it is a bulk administrative operation distinct from the agent-facing
// mutating operations that list names), so it is ungated like export_data.
func (e *Engine) ImportData(snap store.Snapshot, merge bool) error {
	return e.st.Import(snap, merge)
}
