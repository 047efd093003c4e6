package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memengine/memengine/internal/lexical"
)

func newLexicalPipeline(t *testing.T, candidates map[int64]Candidate, docs []lexical.Doc) *Pipeline {
	t.Helper()
	idx := lexical.New()
	for _, d := range docs {
		idx.Upsert(d)
	}
	return &Pipeline{
		Lexical: idx,
		Lookup: func(id int64) (Candidate, bool) {
			c, ok := candidates[id]
			return c, ok
		},
	}
}

func TestSearchDegradesToLexicalWithoutVectorIndex(t *testing.T) {
	now := time.Now()
	candidates := map[int64]Candidate{
		1: {ID: 1, IsPermanent: true, CreatedAt: now},
	}
	docs := []lexical.Doc{{ID: 1, Content: "goroutine leak in worker pool"}}
	p := newLexicalPipeline(t, candidates, docs)

	results := p.Search(context.Background(), Query{Text: "goroutine leak", Limit: 5})
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].ID)
}

func TestSearchExcludesArchived(t *testing.T) {
	now := time.Now()
	candidates := map[int64]Candidate{
		1: {ID: 1, IsArchived: true, CreatedAt: now},
	}
	docs := []lexical.Doc{{ID: 1, Content: "stale decision about caching"}}
	p := newLexicalPipeline(t, candidates, docs)

	results := p.Search(context.Background(), Query{Text: "caching decision", Limit: 5})
	require.Empty(t, results)
}

func TestFailedOutcomeIsPromotedOverSuccess(t *testing.T) {
	now := time.Now()
	failed := false
	worked := true
	candidates := map[int64]Candidate{
		1: {ID: 1, Worked: &failed, CreatedAt: now},
		2: {ID: 2, Worked: &worked, CreatedAt: now},
	}
	docs := []lexical.Doc{
		{ID: 1, Content: "retry with exponential backoff"},
		{ID: 2, Content: "retry with exponential backoff"},
	}
	p := newLexicalPipeline(t, candidates, docs)

	results := p.Search(context.Background(), Query{Text: "retry exponential backoff", Limit: 5})
	require.Len(t, results, 2)
	require.Equal(t, int64(1), results[0].ID, "failed memory should outrank a worked one with equal lexical score")
}

func TestFileScopeBoostsMatchingFilePath(t *testing.T) {
	now := time.Now()
	candidates := map[int64]Candidate{
		1: {ID: 1, FilePath: "internal/store/store.go", CreatedAt: now},
		2: {ID: 2, FilePath: "internal/other/other.go", CreatedAt: now},
	}
	docs := []lexical.Doc{
		{ID: 1, Content: "connection pool sizing"},
		{ID: 2, Content: "connection pool sizing"},
	}
	p := newLexicalPipeline(t, candidates, docs)

	results := p.Search(context.Background(), Query{Text: "connection pool sizing", Limit: 5, FilePath: "internal/store/store.go"})
	require.Len(t, results, 2)
	require.Equal(t, int64(1), results[0].ID)
}

func TestDiversityCapLimitsHitsPerFile(t *testing.T) {
	now := time.Now()
	candidates := make(map[int64]Candidate)
	var docs []lexical.Doc
	for i := int64(1); i <= 5; i++ {
		candidates[i] = Candidate{ID: i, FilePath: "internal/shared/shared.go", CreatedAt: now}
		docs = append(docs, lexical.Doc{ID: i, Content: "shared utility refactor notes"})
	}
	p := newLexicalPipeline(t, candidates, docs)

	results := p.Search(context.Background(), Query{Text: "shared utility refactor", Limit: 10, DiversityMaxPerFile: 2})
	require.Len(t, results, 2)
}

func TestSkipAdjustmentsIgnoresPinAndOutcome(t *testing.T) {
	now := time.Now()
	worked := false
	candidates := map[int64]Candidate{
		1: {ID: 1, IsPinned: true, Worked: &worked, CreatedAt: now},
		2: {ID: 2, CreatedAt: now},
	}
	docs := []lexical.Doc{
		{ID: 1, Content: "entity qualified name search"},
		{ID: 2, Content: "entity qualified name search"},
	}
	p := newLexicalPipeline(t, candidates, docs)

	results := p.Search(context.Background(), Query{Text: "entity qualified name", Limit: 5, SkipAdjustments: true})
	require.Len(t, results, 2)
	require.InDelta(t, results[0].Score, results[1].Score, 1e-9)
}
