package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memengine/memengine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", "/tmp/project")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func insertMemories(t *testing.T, st *store.Store, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		id, err := st.InsertMemory(store.MemoryRow{Category: "lesson", Content: "m"})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestLinkRejectsSelfEdge(t *testing.T) {
	st := newTestStore(t)
	g := New(st)
	ids := insertMemories(t, st, 1)

	_, err := g.Link(ids[0], ids[0], RelRelatedTo, "", 1.0)
	require.Error(t, err)
}

func TestLinkRejectsUnknownRelationship(t *testing.T) {
	st := newTestStore(t)
	g := New(st)
	ids := insertMemories(t, st, 2)

	_, err := g.Link(ids[0], ids[1], Relationship("invented"), "", 1.0)
	require.Error(t, err)
}

func TestLinkAndUnlink(t *testing.T) {
	st := newTestStore(t)
	g := New(st)
	ids := insertMemories(t, st, 2)

	_, err := g.Link(ids[0], ids[1], RelLedTo, "a caused b", 0.9)
	require.NoError(t, err)

	sub, err := g.Trace(ids[0], DirForward, nil, 0)
	require.NoError(t, err)
	require.Contains(t, sub.NodeIDs, ids[1])

	require.NoError(t, g.Unlink(ids[0], ids[1], RelLedTo))
	sub, err = g.Trace(ids[0], DirForward, nil, 0)
	require.NoError(t, err)
	require.NotContains(t, sub.NodeIDs, ids[1])
}

func TestTraceIsCycleSafe(t *testing.T) {
	st := newTestStore(t)
	g := New(st)
	ids := insertMemories(t, st, 3)

	_, err := g.Link(ids[0], ids[1], RelRelatedTo, "", 1.0)
	require.NoError(t, err)
	_, err = g.Link(ids[1], ids[2], RelRelatedTo, "", 1.0)
	require.NoError(t, err)
	_, err = g.Link(ids[2], ids[0], RelRelatedTo, "", 1.0)
	require.NoError(t, err)

	sub, err := g.Trace(ids[0], DirForward, nil, 10)
	require.NoError(t, err)
	require.Len(t, sub.NodeIDs, 3)
}

func TestTraceRespectsRelationshipFilter(t *testing.T) {
	st := newTestStore(t)
	g := New(st)
	ids := insertMemories(t, st, 3)

	_, err := g.Link(ids[0], ids[1], RelDependsOn, "", 1.0)
	require.NoError(t, err)
	_, err = g.Link(ids[0], ids[2], RelConflictsWith, "", 1.0)
	require.NoError(t, err)

	sub, err := g.Trace(ids[0], DirForward, []Relationship{RelDependsOn}, 0)
	require.NoError(t, err)
	require.Contains(t, sub.NodeIDs, ids[1])
	require.NotContains(t, sub.NodeIDs, ids[2])
}

func TestExportJSONIncludesAllTraversedEdges(t *testing.T) {
	st := newTestStore(t)
	g := New(st)
	ids := insertMemories(t, st, 2)
	_, err := g.Link(ids[0], ids[1], RelSupersedes, "", 1.0)
	require.NoError(t, err)

	out, err := g.Export([]int64{ids[0]}, FormatJSON, 0, true)
	require.NoError(t, err)
	require.Contains(t, out, "supersedes")
}

func TestExportMermaidElidesBackEdges(t *testing.T) {
	st := newTestStore(t)
	g := New(st)
	ids := insertMemories(t, st, 2)
	_, err := g.Link(ids[0], ids[1], RelRelatedTo, "", 1.0)
	require.NoError(t, err)
	_, err = g.Link(ids[1], ids[0], RelRelatedTo, "", 1.0)
	require.NoError(t, err)

	out, err := g.Export([]int64{ids[0]}, FormatMermaid, 0, true)
	require.NoError(t, err)
	require.Equal(t, 1, countOccurrences(out, "-->"))
}

func TestExportExcludesOrphansByDefault(t *testing.T) {
	st := newTestStore(t)
	g := New(st)
	ids := insertMemories(t, st, 3)
	_, err := g.Link(ids[0], ids[1], RelRelatedTo, "", 1.0)
	require.NoError(t, err)

	out, err := g.Export([]int64{ids[0], ids[2]}, FormatJSON, 0, false)
	require.NoError(t, err)

	var parsed ExportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Contains(t, parsed.Nodes, ids[0])
	require.Contains(t, parsed.Nodes, ids[1])
	require.NotContains(t, parsed.Nodes, ids[2])
}

func TestExportIncludesOrphansWhenRequested(t *testing.T) {
	st := newTestStore(t)
	g := New(st)
	ids := insertMemories(t, st, 2)

	out, err := g.Export([]int64{ids[0], ids[1]}, FormatJSON, 0, true)
	require.NoError(t, err)

	var parsed ExportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Contains(t, parsed.Nodes, ids[0])
	require.Contains(t, parsed.Nodes, ids[1])
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}
