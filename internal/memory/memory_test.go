package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memengine/memengine/internal/graph"
	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.Open(":memory:", "/tmp/project")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, lexical.New(), nil, graph.New(st))
}

func TestRecordRejectsUnknownCategory(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Record(context.Background(), RecordInput{Category: Category("nonsense"), Content: "x"})
	require.Error(t, err)
}

func TestRecordDefaultsPermanenceByCategory(t *testing.T) {
	m := newTestManager(t)
	res, err := m.Record(context.Background(), RecordInput{Category: CategoryPattern, Content: "use context.Context for cancellation"})
	require.NoError(t, err)

	row, err := m.st.GetMemory(res.ID)
	require.NoError(t, err)
	require.True(t, row.IsPermanent)
}

func TestRecordInfersTagsWithoutReplacingExisting(t *testing.T) {
	m := newTestManager(t)
	res, err := m.Record(context.Background(), RecordInput{
		Category: CategoryDecision, Content: "fix the crash in the worker pool", Tags: []string{"custom"},
	})
	require.NoError(t, err)

	row, err := m.st.GetMemory(res.ID)
	require.NoError(t, err)
	require.Contains(t, row.Tags, "custom")
	require.Contains(t, row.Tags, "bugfix")
}

func TestRecordDetectsFileScopedDecisionWarningConflict(t *testing.T) {
	m := newTestManager(t)
	first, err := m.Record(context.Background(), RecordInput{
		Category: CategoryDecision, Content: "use session cookies for auth", FilePath: "auth.py",
	})
	require.NoError(t, err)

	second, err := m.Record(context.Background(), RecordInput{
		Category: CategoryWarning, Content: "use session cookies for auth", FilePath: "auth.py",
	})
	require.NoError(t, err)

	require.NotEmpty(t, second.Conflicts)
	require.Equal(t, first.ID, second.Conflicts[0].MemoryID)
}

func TestSealOutcomeIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	res, err := m.Record(context.Background(), RecordInput{Category: CategoryDecision, Content: "retry with backoff"})
	require.NoError(t, err)

	require.NoError(t, m.SealOutcome(res.ID, "worked fine", true))
	require.NoError(t, m.SealOutcome(res.ID, "worked fine", true))

	row, err := m.st.GetMemory(res.ID)
	require.NoError(t, err)
	require.NotNil(t, row.Worked)
	require.True(t, *row.Worked)
}

func TestPinForcesPermanence(t *testing.T) {
	m := newTestManager(t)
	res, err := m.Record(context.Background(), RecordInput{Category: CategoryLearning, Content: "learned something"})
	require.NoError(t, err)

	require.NoError(t, m.Pin(res.ID, true))
	row, err := m.st.GetMemory(res.ID)
	require.NoError(t, err)
	require.True(t, row.IsPinned)
	require.True(t, row.IsPermanent)
}

func TestCompactDryRunDoesNotArchive(t *testing.T) {
	m := newTestManager(t)
	res, err := m.Record(context.Background(), RecordInput{Category: CategoryLearning, Content: "episodic note"})
	require.NoError(t, err)
	require.NoError(t, m.SealOutcome(res.ID, "", false))

	result, err := m.Compact(context.Background(), "summary", CompactOptions{DryRun: true})
	require.NoError(t, err)
	require.Contains(t, result.SelectedIDs, res.ID)
	require.Zero(t, result.NewMemoryID)

	row, err := m.st.GetMemory(res.ID)
	require.NoError(t, err)
	require.False(t, row.IsArchived)
}

func TestCompactArchivesOriginalsAndLinksSupersedes(t *testing.T) {
	m := newTestManager(t)
	res, err := m.Record(context.Background(), RecordInput{Category: CategoryLearning, Content: "episodic note"})
	require.NoError(t, err)

	result, err := m.Compact(context.Background(), "summary", CompactOptions{DryRun: false})
	require.NoError(t, err)
	require.NotZero(t, result.NewMemoryID)

	row, err := m.st.GetMemory(res.ID)
	require.NoError(t, err)
	require.True(t, row.IsArchived)

	edges, err := m.st.EdgesFrom(res.ID, []string{string(graph.RelSupersedes)})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, result.NewMemoryID, edges[0].TargetID)
}

func TestPruneProtectsPinnedAndPermanentCategories(t *testing.T) {
	m := newTestManager(t)
	pattern, err := m.Record(context.Background(), RecordInput{Category: CategoryPattern, Content: "always validate input"})
	require.NoError(t, err)

	ids, err := m.Prune(PruneOptions{OlderThanDays: 0, DryRun: true})
	require.NoError(t, err)
	require.NotContains(t, ids, pattern.ID)
}

func TestCleanupDuplicatesKeepsNewestAndMergesOutcome(t *testing.T) {
	m := newTestManager(t)
	older, err := m.Record(context.Background(), RecordInput{Category: CategoryDecision, Content: "use postgres for storage"})
	require.NoError(t, err)
	require.NoError(t, m.SealOutcome(older.ID, "worked well", true))

	newer, err := m.Record(context.Background(), RecordInput{Category: CategoryDecision, Content: "use postgres for storage"})
	require.NoError(t, err)

	groups, err := m.CleanupDuplicates(false)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, newer.ID, groups[0].SurvivorID)
	require.Contains(t, groups[0].MergedIDs, older.ID)

	survivor, err := m.st.GetMemory(newer.ID)
	require.NoError(t, err)
	require.Equal(t, "worked well", survivor.Outcome)
}
