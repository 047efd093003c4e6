// Package hybrid implements the fused lexical+vector retrieval pipeline
// shared by recall, find_code, and rule matching. Grounded on a
// retrieval/fusion pattern that min-max normalizes sparse and dense scores
// before a weighted sum, extended here with recency/outcome/pin/file-scope
// multipliers and a per-file diversity cap.
package hybrid

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/vectorindex"
)

// DefaultWeight is the default vector-score weight `w` in the fusion formula.
const DefaultWeight = 0.3

// DefaultDiversityMaxPerFile caps how many hits from the same file survive.
const DefaultDiversityMaxPerFile = 3

const recencyHalfLifeDays = 30.0

// Candidate is a document eligible for retrieval, carrying every field the
// adjustment steps need. Memory-specific fields are zero-valued for
// non-memory documents (e.g. code entities via find_code).
type Candidate struct {
	ID          int64
	FilePath    string
	IsPermanent bool
	IsPinned    bool
	IsArchived  bool
	Worked      *bool
	AccessCount int
	CreatedAt   time.Time
}

// Result is a single scored, adjusted hit.
type Result struct {
	ID    int64
	Score float64
}

// Query bundles the inputs to Search.
type Query struct {
	Text              string
	Limit             int
	FilePath          string // when set, file-scope boost applies
	Condensed         bool
	Weight            float64 // vector weight w; 0 uses DefaultWeight
	DiversityMaxPerFile int   // 0 uses DefaultDiversityMaxPerFile
	SkipAdjustments   bool    // find_code: no outcome/pin adjustments
}

// Pipeline runs the fused retrieval over a lexical index, an optional vector
// index, and a candidate lookup used to apply the post-fusion adjustments.
type Pipeline struct {
	Lexical  *lexical.Index
	Vector   *vectorindex.Index
	Lookup   func(id int64) (Candidate, bool)
}

// Search executes §4.E steps 1-5 and returns up to q.Limit results.
func (p *Pipeline) Search(ctx context.Context, q Query) []Result {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	w := q.Weight
	if w == 0 {
		w = DefaultWeight
	}
	maxPerFile := q.DiversityMaxPerFile
	if maxPerFile == 0 {
		maxPerFile = DefaultDiversityMaxPerFile
	}
	candidateN := limit * 4

	lexHits := p.Lexical.Search(q.Text, candidateN)

	var vecHits []vectorindex.Hit
	if p.Vector != nil && p.Vector.Available() {
		vecHits = p.Vector.Search(ctx, q.Text, candidateN)
	}
	if len(vecHits) == 0 {
		// No vector results (no embedder, or the query embed failed): rank on
		// the lexical score alone instead of capping it at 1-w.
		w = 0
	}

	lexNorm := normalizeLex(lexHits)
	vecNorm := normalizeVec(vecHits)

	fused := make(map[int64]float64)
	for id, s := range lexNorm {
		fused[id] += (1 - w) * s
	}
	for id, s := range vecNorm {
		fused[id] += w * s
	}

	results := make([]Result, 0, len(fused))
	now := time.Now()
	for id, score := range fused {
		cand, ok := p.Lookup(id)
		if !ok || cand.IsArchived {
			continue
		}
		if !q.SkipAdjustments {
			score = applyAdjustments(score, cand, q.FilePath, now)
		}
		results = append(results, Result{ID: id, Score: score})
	}

	sortResults(results, p.Lookup)
	return diversify(results, p.Lookup, maxPerFile, limit)
}

func applyAdjustments(score float64, cand Candidate, queryFilePath string, now time.Time) float64 {
	if !cand.IsPermanent {
		deltaDays := now.Sub(cand.CreatedAt).Hours() / 24
		if deltaDays < 0 {
			deltaDays = 0
		}
		score *= math.Exp(-deltaDays / recencyHalfLifeDays)
	}
	if cand.Worked != nil {
		if !*cand.Worked {
			score *= 1.5
		} else {
			score *= 1.2
		}
	}
	if cand.IsPinned {
		score *= 1.25
	}
	if queryFilePath != "" && cand.FilePath == queryFilePath {
		score *= 1.4
	}
	return score
}

func normalizeLex(hits []lexical.Hit) map[int64]float64 {
	out := make(map[int64]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	span := max - min
	for _, h := range hits {
		if span == 0 {
			out[h.ID] = 1.0
		} else {
			out[h.ID] = (h.Score - min) / span
		}
	}
	return out
}

func normalizeVec(hits []vectorindex.Hit) map[int64]float64 {
	out := make(map[int64]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	span := max - min
	for _, h := range hits {
		if span == 0 {
			out[h.ID] = 1.0
		} else {
			out[h.ID] = (h.Score - min) / span
		}
	}
	return out
}

// sortResults applies the fused score ordering plus tie-breaks: higher
// access_count, then more recent created_at, then lower id.
func sortResults(results []Result, lookup func(id int64) (Candidate, bool)) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ci, _ := lookup(results[i].ID)
		cj, _ := lookup(results[j].ID)
		if ci.AccessCount != cj.AccessCount {
			return ci.AccessCount > cj.AccessCount
		}
		if !ci.CreatedAt.Equal(cj.CreatedAt) {
			return ci.CreatedAt.After(cj.CreatedAt)
		}
		return results[i].ID < results[j].ID
	})
}

// diversify walks results in score order, dropping any whose file_path has
// already been emitted maxPerFile times, then trims to limit.
func diversify(results []Result, lookup func(id int64) (Candidate, bool), maxPerFile, limit int) []Result {
	perFile := make(map[string]int)
	out := make([]Result, 0, limit)
	for _, r := range results {
		cand, ok := lookup(r.ID)
		if ok && cand.FilePath != "" {
			if perFile[cand.FilePath] >= maxPerFile {
				continue
			}
			perFile[cand.FilePath]++
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}
