package lexical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertAndSearchFindsMatchingDoc(t *testing.T) {
	idx := New()
	idx.Upsert(Doc{ID: 1, Content: "refactor the authentication handler"})
	idx.Upsert(Doc{ID: 2, Content: "add caching to the database layer"})

	hits := idx.Search("authentication", 10)
	require.Len(t, hits, 1)
	require.Equal(t, int64(1), hits[0].ID)
}

func TestTagsOutweighPlainContentTerms(t *testing.T) {
	idx := New()
	idx.Upsert(Doc{ID: 1, Content: "unrelated note mentioning perf in passing"})
	idx.Upsert(Doc{ID: 2, Content: "another note", Tags: []string{"perf"}})

	hits := idx.Search("perf", 10)
	require.Len(t, hits, 2)
	require.Equal(t, int64(2), hits[0].ID)
}

func TestDeleteRemovesDocFromSearch(t *testing.T) {
	idx := New()
	idx.Upsert(Doc{ID: 1, Content: "caching layer"})
	idx.Delete(1)

	require.Empty(t, idx.Search("caching", 10))
}

func TestRebuildIndexReplacesPostingsFromSource(t *testing.T) {
	idx := New()
	idx.Upsert(Doc{ID: 1, Content: "stale content about sessions"})

	idx.SetSource(func() []Doc {
		return []Doc{{ID: 2, Content: "fresh content about caching"}}
	})
	idx.RebuildIndex()

	require.Empty(t, idx.Search("sessions", 10))
	hits := idx.Search("caching", 10)
	require.Len(t, hits, 1)
	require.Equal(t, int64(2), hits[0].ID)
}

func TestRebuildIndexWithNoSourceIsNoop(t *testing.T) {
	idx := New()
	idx.Upsert(Doc{ID: 1, Content: "some content"})
	idx.RebuildIndex()

	hits := idx.Search("content", 10)
	require.Len(t, hits, 1)
}
