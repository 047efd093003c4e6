package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memengine/memengine/internal/codeindex"
	"github.com/memengine/memengine/internal/gate"
	"github.com/memengine/memengine/internal/graph"
	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/rules"
	"github.com/memengine/memengine/internal/store"
	"github.com/memengine/memengine/internal/vectorindex"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(":memory:", dir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gr := graph.New(st)
	mgr := memory.New(st, lexical.New(), vectorindex.New(), gr)
	idx := codeindex.New(dir, codeindex.NewRegistry(codeindex.NewGoPack()), st, lexical.New())
	ruleEng := rules.New(st, lexical.New())
	gt := gate.New(0)

	return New(dir, st, mgr, gr, idx, ruleEng, gt), dir
}

func TestRecordFailsWithoutInitializationOrContext(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Record(context.Background(), memory.RecordInput{Category: memory.CategoryLearning, Content: "x"})
	require.Error(t, err)
}

func TestRecordSucceedsAfterBriefingAndContextCheck(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Briefing(ctx, nil)
	require.NoError(t, err)

	_, err = e.ContextCheck(ctx, "adding a caching layer")
	require.NoError(t, err)

	res, err := e.Record(ctx, memory.RecordInput{Category: memory.CategoryLearning, Content: "caching layer uses an LRU eviction policy"})
	require.NoError(t, err)
	require.NotZero(t, res.ID)
}

func TestPinOnlyRequiresInitializationNotContext(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Briefing(ctx, nil)
	require.NoError(t, err)
	_, err = e.ContextCheck(ctx, "seed")
	require.NoError(t, err)
	res, err := e.Record(ctx, memory.RecordInput{Category: memory.CategoryLearning, Content: "seed memory"})
	require.NoError(t, err)

	require.NoError(t, e.Pin(res.ID, true))
}

func TestBriefingRegistersInitializationToken(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Briefing(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, e.gt.RequiresInitialization(e.Project))
}

func TestProposeRefactorScansTODOsAndMatchesRules(t *testing.T) {
	e, dir := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Briefing(ctx, nil)
	require.NoError(t, err)
	_, err = e.ContextCheck(ctx, "seed")
	require.NoError(t, err)

	_, err = e.Record(ctx, memory.RecordInput{
		Category: memory.CategoryWarning, Content: "this query is slow under load", FilePath: "svc.go",
	})
	require.NoError(t, err)

	_, err = e.AddRule("editing svc.go", []string{"add a benchmark"}, nil, nil, nil, 5)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc.go"), []byte("package svc\n\n// TODO: add caching\nfunc Run() {}\n"), 0o644))

	result, err := e.ProposeRefactor(ctx, "svc.go")
	require.NoError(t, err)
	require.Len(t, result.TODOs, 1)
	require.NotEmpty(t, result.Constraints)
	require.NotEmpty(t, result.MatchingRules.Matches)
}

func TestIngestDocChunksAndLinksSequentially(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Briefing(ctx, nil)
	require.NoError(t, err)

	e.SetDocFetcher(fixedFetcher{body: strRepeat("first paragraph of material. ", 60) + "\n\n" + strRepeat("second paragraph of material. ", 60)})

	res, err := e.IngestDoc(ctx, "https://example.com/doc", "architecture", 500)
	require.NoError(t, err)
	require.Len(t, res.ChunkIDs, 2)

	sub, err := e.gr.Trace(res.ChunkIDs[0], graph.DirForward, []graph.Relationship{graph.RelRelatedTo}, 1)
	require.NoError(t, err)
	require.Contains(t, sub.NodeIDs, res.ChunkIDs[1])
}

func TestExportGraphSeedsFromTopicAndExpands(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Briefing(ctx, nil)
	require.NoError(t, err)
	_, err = e.ContextCheck(ctx, "record caching notes")
	require.NoError(t, err)

	first, err := e.Record(ctx, memory.RecordInput{Category: memory.CategoryLearning, Content: "caching layer uses an LRU eviction policy"})
	require.NoError(t, err)
	second, err := e.Record(ctx, memory.RecordInput{Category: memory.CategoryLearning, Content: "eviction tuning follow-up"})
	require.NoError(t, err)

	_, err = e.Link(first.ID, second.ID, graph.RelRelatedTo, "follow-up", 1.0)
	require.NoError(t, err)

	out, err := e.ExportGraph(ctx, nil, "caching layer", graph.FormatJSON, 0, true)
	require.NoError(t, err)
	require.Contains(t, out, "related_to")
}

type fixedFetcher struct{ body string }

func (f fixedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) { return []byte(f.body), nil }

func strRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
