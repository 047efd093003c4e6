// Package lexical implements §4.C: a classic TF-IDF inverted index over the
// memory engine's documents (memory content/rationale/tags/context, or code
// entity qualified_name/signature/docstring). Tags contribute at a 3x
// multiplier, file-path components and category at 1.5x, matching the
// weighting spec'd for memory documents; callers that don't have a
// file_path/category (e.g. code entities) simply omit them.
package lexical

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/memengine/memengine/internal/analyzer"
)

const (
	tagWeight     = 3.0
	fileCatWeight = 1.5
	defaultWeight = 1.0
)

// Doc is the input to indexing: free text fields plus weighted metadata.
type Doc struct {
	ID       int64
	Content  string
	Rationale string
	Context  string
	Tags     []string
	FilePath string
	Category string
}

// Hit is a single scored result from Search.
type Hit struct {
	ID    int64
	Score float64
}

// Index is a thread-safe, incrementally maintained TF-IDF inverted index.
// The zero value is not usable; use New.
type Index struct {
	mu sync.RWMutex

	// postings[term][docID] = weighted term frequency within that doc.
	postings map[string]map[int64]float64
	// docLen[docID] = total weighted term count, for future normalization.
	docLen map[int64]float64
	// docTerms[docID] = distinct terms present, to support deletion.
	docTerms map[int64]map[string]struct{}

	source func() []Doc // optional source for RebuildIndex
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		postings: make(map[string]map[int64]float64),
		docLen:   make(map[int64]float64),
		docTerms: make(map[int64]map[string]struct{}),
	}
}

// SetSource registers the callback RebuildIndex uses to reconstruct the
// index from persistence (§5 ordering guarantees: persistence is
// authoritative after a cancelled or torn update).
func (idx *Index) SetSource(source func() []Doc) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.source = source
}

// weightedTerms returns the term -> weight contribution for a Doc, applying
// the 3x tag multiplier and 1.5x file-path/category multiplier on top of the
// analyzer's keyword extraction.
func weightedTerms(d Doc) map[string]float64 {
	weights := make(map[string]float64)

	add := func(text string, weight float64) {
		if text == "" {
			return
		}
		doc := analyzer.Analyze(text)
		for _, kw := range doc.Keywords {
			weights[kw] += weight
		}
	}

	add(d.Content, defaultWeight)
	add(d.Rationale, defaultWeight)
	add(d.Context, defaultWeight)
	add(strings.Join(d.Tags, " "), tagWeight)
	add(d.FilePath, fileCatWeight)
	add(d.Category, fileCatWeight)

	return weights
}

// Upsert inserts or replaces the document with id d.ID.
func (idx *Index) Upsert(d Doc) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteLocked(d.ID)

	weights := weightedTerms(d)
	terms := make(map[string]struct{}, len(weights))
	var total float64
	for term, w := range weights {
		if _, ok := idx.postings[term]; !ok {
			idx.postings[term] = make(map[int64]float64)
		}
		idx.postings[term][d.ID] = w
		terms[term] = struct{}{}
		total += w
	}
	idx.docTerms[d.ID] = terms
	idx.docLen[d.ID] = total
}

// Delete removes a document from the index.
func (idx *Index) Delete(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteLocked(id)
}

func (idx *Index) deleteLocked(id int64) {
	terms, ok := idx.docTerms[id]
	if !ok {
		return
	}
	for term := range terms {
		if m, ok := idx.postings[term]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(idx.postings, term)
			}
		}
	}
	delete(idx.docTerms, id)
	delete(idx.docLen, id)
}

// RebuildIndex discards all in-memory postings and rebuilds from the
// registered source, making persistence authoritative (§5 Cancellation).
func (idx *Index) RebuildIndex() {
	idx.mu.Lock()
	source := idx.source
	idx.mu.Unlock()
	if source == nil {
		return
	}
	docs := source()

	idx.mu.Lock()
	idx.postings = make(map[string]map[int64]float64)
	idx.docLen = make(map[int64]float64)
	idx.docTerms = make(map[int64]map[string]struct{})
	idx.mu.Unlock()

	for _, d := range docs {
		idx.Upsert(d)
	}
}

// docCount returns the number of documents currently indexed. Caller must
// hold at least a read lock.
func (idx *Index) docCount() int {
	return len(idx.docLen)
}

// Search runs a TF-IDF query and returns the top `limit` scored hits,
// highest score first.
func (idx *Index) Search(query string, limit int) []Hit {
	q := analyzer.Analyze(query)
	if len(q.Keywords) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := float64(idx.docCount())
	if n == 0 {
		return nil
	}

	scores := make(map[int64]float64)
	for _, term := range q.Keywords {
		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1.0 + n/float64(len(postings)))
		if idf < 0 {
			idf = 0
		}
		for docID, tf := range postings {
			scores[docID] += tf * idf
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score})
	}

	sortHitsDesc(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func sortHitsDesc(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}
