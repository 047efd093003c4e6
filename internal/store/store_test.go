package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:", "/tmp/project")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAtomicCommitsAllWritesTogether(t *testing.T) {
	st := newTestStore(t)
	id, err := st.InsertMemory(MemoryRow{Category: "lesson", Content: "original"})
	require.NoError(t, err)

	orig, err := st.GetMemory(id)
	require.NoError(t, err)

	err = st.Atomic(context.Background(), func(sess *Session) error {
		row := orig
		row.Content = "updated"
		if err := sess.UpdateMemory(row); err != nil {
			return err
		}
		_, err = sess.InsertEdge(EdgeRow{SourceID: id, TargetID: id + 1, Relationship: "related_to", Confidence: 1})
		return err
	})
	require.NoError(t, err)

	row, err := st.GetMemory(id)
	require.NoError(t, err)
	require.Equal(t, "updated", row.Content)

	edges, err := st.EdgesFrom(id, nil)
	require.NoError(t, err)
	require.Len(t, edges, 1)
}

func TestAtomicRollsBackEveryWriteOnFailure(t *testing.T) {
	st := newTestStore(t)
	id, err := st.InsertMemory(MemoryRow{Category: "lesson", Content: "original"})
	require.NoError(t, err)

	sentinel := errors.New("boom")
	orig, err := st.GetMemory(id)
	require.NoError(t, err)

	err = st.Atomic(context.Background(), func(sess *Session) error {
		row := orig
		row.Content = "should not stick"
		if err := sess.UpdateMemory(row); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	row, err := st.GetMemory(id)
	require.NoError(t, err)
	require.Equal(t, "original", row.Content)
}

func TestAtomicRollsBackOnSecondStatementFailure(t *testing.T) {
	st := newTestStore(t)
	a, err := st.InsertMemory(MemoryRow{Category: "lesson", Content: "a"})
	require.NoError(t, err)
	b, err := st.InsertMemory(MemoryRow{Category: "lesson", Content: "b"})
	require.NoError(t, err)

	_, err = st.InsertEdge(EdgeRow{SourceID: a, TargetID: b, Relationship: "related_to", Confidence: 1})
	require.NoError(t, err)

	err = st.Atomic(context.Background(), func(sess *Session) error {
		if err := sess.DeleteMemory(a); err != nil {
			return err
		}
		// Duplicate of the edge inserted above; the store's unique
		// constraint rejects it, so this transaction must roll back the
		// delete above too.
		_, err := sess.InsertEdge(EdgeRow{SourceID: a, TargetID: b, Relationship: "related_to", Confidence: 1})
		return err
	})
	require.Error(t, err)

	_, err = st.GetMemory(a)
	require.NoError(t, err, "delete from the failed transaction must not have stuck")
}
