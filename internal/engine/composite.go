package engine

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/memengine/memengine/internal/graph"
	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/rules"
)

// TODOItem is one line flagged by propose_refactor's TODO scan.
type TODOItem struct {
	Line int
	Text string
}

var todoMarkerRe = regexp.MustCompile(`(?i)\b(TODO|FIXME)\b`)

func scanTODOs(absPath string) ([]TODOItem, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []TODOItem
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if todoMarkerRe.MatchString(text) {
			items = append(items, TODOItem{Line: line, Text: strings.TrimSpace(text)})
		}
	}
	return items, sc.Err()
}

// ProposeRefactorResult is propose_refactor()'s return shape.
type ProposeRefactorResult struct {
	FilePath        string
	RelatedMemories []memory.Grouped
	BackwardTraces  map[int64]graph.Subgraph
	TODOs           []TODOItem
	MatchingRules   rules.CheckResult
	Constraints     []string
	Opportunities   []string
}

const proposeRefactorTraceDepth = 2

// ProposeRefactor implements propose_refactor(file_path): a read-only
// composite, never gated (§4.K).
func (e *Engine) ProposeRefactor(ctx context.Context, filePath string) (ProposeRefactorResult, error) {
	related, err := e.memories.RecallForFile(ctx, filePath, memory.RecallOptions{Limit: 20})
	if err != nil {
		return ProposeRefactorResult{}, err
	}

	traces := make(map[int64]graph.Subgraph)
	var constraints, opportunities []string
	for _, group := range related {
		for _, r := range group.Results {
			sub, err := e.gr.Trace(r.ID, graph.DirBackward, nil, proposeRefactorTraceDepth)
			if err == nil {
				traces[r.ID] = sub
			}
		}
		switch group.Category {
		case string(memory.CategoryWarning):
			for _, r := range group.Results {
				if row, err := e.st.GetMemory(r.ID); err == nil {
					constraints = append(constraints, row.Content)
				}
			}
		case string(memory.CategoryPattern):
			for _, r := range group.Results {
				if row, err := e.st.GetMemory(r.ID); err == nil {
					opportunities = append(opportunities, row.Content)
				}
			}
		}
	}

	var todos []TODOItem
	if abs := filepath.Join(e.Project, filePath); abs != "" {
		if found, err := scanTODOs(abs); err == nil {
			todos = found
		}
	}

	matching, err := e.ruleEng.CheckRules(ctx, "refactoring "+filePath, "")
	if err != nil {
		return ProposeRefactorResult{}, err
	}

	return ProposeRefactorResult{
		FilePath: filePath, RelatedMemories: related, BackwardTraces: traces,
		TODOs: todos, MatchingRules: matching, Constraints: constraints, Opportunities: opportunities,
	}, nil
}

// DefaultIngestChunkSize is ingest_doc's default paragraph-aligned chunk target.
const DefaultIngestChunkSize = 1500

// chunkOnParagraphs splits text into chunks of roughly chunkSize characters,
// only ever breaking on a paragraph boundary (blank line) so no chunk
// splits a sentence mid-thought.
func chunkOnParagraphs(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultIngestChunkSize
	}
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var cur strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p) > chunkSize {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// IngestDocResult is ingest_doc()'s return shape.
type IngestDocResult struct {
	ChunkIDs []int64
}

// IngestDoc implements ingest_doc(url, topic, [chunk_size]). Not present in
// §4.K's guarded-operations list, so ungated like the other composite
// operations — it is typically how a project's initial knowledge is seeded,
// before briefing/context_check are meaningful to call.
func (e *Engine) IngestDoc(ctx context.Context, url, topic string, chunkSize int) (IngestDocResult, error) {
	if e.docs == nil {
		return IngestDocResult{}, nil
	}

	raw, err := e.docs.Fetch(ctx, url)
	if err != nil {
		return IngestDocResult{}, err
	}

	chunks := chunkOnParagraphs(string(raw), chunkSize)
	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		permanent := true
		res, err := e.memories.Record(ctx, memory.RecordInput{
			Category: memory.CategoryLearning, Content: c, Tags: []string{topic}, IsPermanent: &permanent,
		})
		if err != nil {
			return IngestDocResult{ChunkIDs: ids}, err
		}
		ids = append(ids, res.ID)
	}

	for i := 1; i < len(ids); i++ {
		if _, err := e.gr.Link(ids[i-1], ids[i], graph.RelRelatedTo, "ingested in sequence from "+url, 1.0); err != nil {
			return IngestDocResult{ChunkIDs: ids}, err
		}
	}

	return IngestDocResult{ChunkIDs: ids}, nil
}
