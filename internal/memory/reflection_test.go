package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memengine/memengine/internal/graph"
	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/store"
)

func TestReflectionWorkerDisabledNeverScans(t *testing.T) {
	st, err := store.Open(":memory:", "/tmp/project")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	m := New(st, lexical.New(), nil, graph.New(st))

	w := NewReflectionWorker(m, ReflectionConfig{Enabled: false})
	w.Start()
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	ids, lastRun := w.Candidates()
	require.Empty(t, ids)
	require.True(t, lastRun.IsZero())
}

func TestReflectionWorkerScansOnStartAndFindsCandidates(t *testing.T) {
	st, err := store.Open(":memory:", "/tmp/project")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	m := New(st, lexical.New(), nil, graph.New(st))

	res, err := m.Record(context.Background(), RecordInput{Category: CategoryLearning, Content: "connection pooling needs a max size"})
	require.NoError(t, err)

	w := NewReflectionWorker(m, ReflectionConfig{Enabled: true, Interval: time.Hour})
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		ids, _ := w.Candidates()
		return len(ids) == 1 && ids[0] == res.ID
	}, time.Second, 10*time.Millisecond)
}

func TestReflectionWorkerNeverMutatesStore(t *testing.T) {
	st, err := store.Open(":memory:", "/tmp/project")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	m := New(st, lexical.New(), nil, graph.New(st))

	res, err := m.Record(context.Background(), RecordInput{Category: CategoryLearning, Content: "retry backoff should be exponential"})
	require.NoError(t, err)

	w := NewReflectionWorker(m, ReflectionConfig{Enabled: true, Interval: time.Hour})
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		ids, _ := w.Candidates()
		return len(ids) == 1
	}, time.Second, 10*time.Millisecond)

	row, err := m.st.GetMemory(res.ID)
	require.NoError(t, err)
	require.False(t, row.IsArchived, "reflection scan must stay advisory and never archive")
}
