package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/memengine/memengine/internal/obslog"
)

// Hit is a single scored nearest-neighbor result.
type Hit struct {
	ID    int64
	Score float64 // cosine similarity, higher is better
}

// Index stores embedding vectors keyed by document id and answers bounded
// nearest-neighbor queries by cosine similarity. It is inert (Search always
// returns nil, Available() is false) until an Embedder is configured via
// SetEmbedder, matching §4.D's degrade-to-lexical behavior.
type Index struct {
	mu       sync.RWMutex
	embedder Embedder
	vectors  map[int64][]float32
}

// New creates an Index with no embedder configured.
func New() *Index {
	return &Index{vectors: make(map[int64][]float32)}
}

// SetEmbedder configures (or clears, with nil) the embedding backend.
func (idx *Index) SetEmbedder(e Embedder) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.embedder = e
}

// Available reports whether a vector search is possible right now.
func (idx *Index) Available() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.embedder != nil
}

// Upsert computes (if an embedder is configured) and stores the embedding
// for id's text. Per §9 "never hold an index write lock across an embedder
// call", the embedding is computed before the write lock is taken.
func (idx *Index) Upsert(ctx context.Context, id int64, text string) error {
	idx.mu.RLock()
	embedder := idx.embedder
	idx.mu.RUnlock()

	if embedder == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultEmbedTimeout)
	defer cancel()

	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		obslog.Get(obslog.CategorySearch).Warn("vectorindex: embed failed for doc %d: %v", id, err)
		return err
	}

	idx.mu.Lock()
	idx.vectors[id] = vec
	idx.mu.Unlock()
	return nil
}

// Delete removes a document's embedding, if any.
func (idx *Index) Delete(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, id)
}

// Search embeds the query text (failing gracefully if unavailable) and
// returns the top `limit` nearest neighbors by cosine similarity.
func (idx *Index) Search(ctx context.Context, query string, limit int) []Hit {
	idx.mu.RLock()
	embedder := idx.embedder
	idx.mu.RUnlock()

	if embedder == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultEmbedTimeout)
	defer cancel()

	qvec, err := embedder.Embed(ctx, query)
	if err != nil {
		obslog.Get(obslog.CategorySearch).Warn("vectorindex: query embed failed: %v", err)
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]Hit, 0, len(idx.vectors))
	for id, v := range idx.vectors {
		sim := cosineSimilarity(qvec, v)
		hits = append(hits, Hit{ID: id, Score: sim})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
