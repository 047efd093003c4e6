// Package graph implements typed directed edges between memories,
// forward/backward/both traversal with cycle detection, and JSON/Mermaid
// export. Grounded on a knowledge-graph store pattern
// (StoreLink/QueryLinks/TraversePath) adapted to a closed relationship set
// and memory-id node space instead of free-form entity-name nodes.
package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memengine/memengine/internal/memerr"
	"github.com/memengine/memengine/internal/obslog"
	"github.com/memengine/memengine/internal/store"
)

// Relationship is one of the five closed relationship kinds an edge may carry.
type Relationship string

const (
	RelLedTo        Relationship = "led_to"
	RelSupersedes   Relationship = "supersedes"
	RelDependsOn    Relationship = "depends_on"
	RelConflictsWith Relationship = "conflicts_with"
	RelRelatedTo    Relationship = "related_to"
)

func validRelationship(r Relationship) bool {
	switch r {
	case RelLedTo, RelSupersedes, RelDependsOn, RelConflictsWith, RelRelatedTo:
		return true
	}
	return false
}

// Edge is the graph layer's view of store.EdgeRow.
type Edge struct {
	ID           int64
	SourceID     int64
	TargetID     int64
	Relationship Relationship
	Description  string
	Confidence   float64
}

// Direction selects which edge endpoints Trace follows.
type Direction string

const (
	DirForward  Direction = "forward"  // follow edges where node is the source
	DirBackward Direction = "backward" // follow edges where node is the target
	DirBoth     Direction = "both"
)

// DefaultMaxDepth bounds traversal when the caller doesn't specify one.
const DefaultMaxDepth = 5

// Graph wraps a Store with the typed-edge operations of §4.G.
type Graph struct {
	store *store.Store
}

// New creates a Graph over st.
func New(st *store.Store) *Graph {
	return &Graph{store: st}
}

// Link creates a new edge, enforcing no-self-edge and relationship-set
// validity; uniqueness of (source, target, relationship) is enforced by the
// store's schema constraint.
func (g *Graph) Link(sourceID, targetID int64, rel Relationship, description string, confidence float64) (int64, error) {
	if !validRelationship(rel) {
		return 0, memerr.New(memerr.InvalidInput, "graph.Link", fmt.Sprintf("unknown relationship %q", rel))
	}
	if confidence < 0 || confidence > 1 {
		return 0, memerr.New(memerr.InvalidInput, "graph.Link", "confidence must be in [0,1]")
	}
	id, err := g.store.InsertEdge(store.EdgeRow{
		SourceID:     sourceID,
		TargetID:     targetID,
		Relationship: string(rel),
		Description:  description,
		Confidence:   confidence,
	})
	if err != nil {
		return 0, err
	}
	obslog.Get(obslog.CategoryGraph).Debug("linked %d -[%s]-> %d", sourceID, rel, targetID)
	return id, nil
}

// LinkTx is Link's counterpart for running inside a store.Session, so a
// composite operation (e.g. compact's archive-and-supersede loop) can create
// edges atomically alongside its other writes.
func (g *Graph) LinkTx(sess *store.Session, sourceID, targetID int64, rel Relationship, description string, confidence float64) (int64, error) {
	if !validRelationship(rel) {
		return 0, memerr.New(memerr.InvalidInput, "graph.Link", fmt.Sprintf("unknown relationship %q", rel))
	}
	if confidence < 0 || confidence > 1 {
		return 0, memerr.New(memerr.InvalidInput, "graph.Link", "confidence must be in [0,1]")
	}
	id, err := sess.InsertEdge(store.EdgeRow{
		SourceID:     sourceID,
		TargetID:     targetID,
		Relationship: string(rel),
		Description:  description,
		Confidence:   confidence,
	})
	if err != nil {
		return 0, err
	}
	obslog.Get(obslog.CategoryGraph).Debug("linked %d -[%s]-> %d", sourceID, rel, targetID)
	return id, nil
}

// Unlink removes a specific edge.
func (g *Graph) Unlink(sourceID, targetID int64, rel Relationship) error {
	return g.store.DeleteEdge(sourceID, targetID, string(rel))
}

// Subgraph is the result of Trace: the visited nodes (by id) and the ordered
// edges discovered while visiting them.
type Subgraph struct {
	NodeIDs []int64
	Edges   []Edge
}

// Trace performs a breadth-first, cycle-safe traversal from id, following
// edges in the given direction and restricted to relationshipTypes (nil =
// all), down to maxDepth hops (0 or negative uses DefaultMaxDepth).
func (g *Graph) Trace(id int64, dir Direction, relationshipTypes []Relationship, maxDepth int) (Subgraph, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var relFilter []string
	for _, r := range relationshipTypes {
		relFilter = append(relFilter, string(r))
	}

	visited := map[int64]struct{}{id: {}}
	order := []int64{id}
	var edges []Edge

	frontier := []int64{id}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int64
		for _, node := range frontier {
			rows, err := g.edgesForDirection(node, dir, relFilter)
			if err != nil {
				return Subgraph{}, err
			}
			for _, e := range rows {
				edges = append(edges, e)
				neighbor := e.TargetID
				if e.SourceID == node && e.TargetID != node {
					neighbor = e.TargetID
				} else if e.TargetID == node {
					neighbor = e.SourceID
				}
				if _, seen := visited[neighbor]; !seen {
					visited[neighbor] = struct{}{}
					order = append(order, neighbor)
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}

	return Subgraph{NodeIDs: order, Edges: dedupeEdges(edges)}, nil
}

func (g *Graph) edgesForDirection(id int64, dir Direction, relFilter []string) ([]Edge, error) {
	var rows []store.EdgeRow
	var err error
	switch dir {
	case DirForward:
		rows, err = g.store.EdgesFrom(id, relFilter)
	case DirBackward:
		rows, err = g.store.EdgesTo(id, relFilter)
	default:
		rows, err = g.store.EdgesFromOrTo(id, relFilter)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Edge, len(rows))
	for i, r := range rows {
		out[i] = Edge{ID: r.ID, SourceID: r.SourceID, TargetID: r.TargetID, Relationship: Relationship(r.Relationship), Description: r.Description, Confidence: r.Confidence}
	}
	return out, nil
}

// Format selects the export encoding for Export.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMermaid Format = "mermaid"
)

// ExportJSON is the JSON-serializable shape of a Subgraph.
type ExportJSON struct {
	Nodes []int64 `json:"nodes"`
	Edges []Edge  `json:"edges"`
}

// Export renders a subgraph rooted at the given ids in the requested
// format. includeOrphans controls whether seed ids with no edges reachable
// within the traversal are kept in the output; when false, those isolated
// nodes are dropped so the export reflects only connected structure.
func (g *Graph) Export(ids []int64, format Format, maxDepth int, includeOrphans bool) (string, error) {
	merged := Subgraph{}
	seenNode := map[int64]struct{}{}
	seenEdge := map[int64]struct{}{}
	connected := map[int64]struct{}{}
	for _, id := range ids {
		sub, err := g.Trace(id, DirBoth, nil, maxDepth)
		if err != nil {
			return "", err
		}
		for _, n := range sub.NodeIDs {
			if _, ok := seenNode[n]; !ok {
				seenNode[n] = struct{}{}
				merged.NodeIDs = append(merged.NodeIDs, n)
			}
		}
		for _, e := range sub.Edges {
			if _, ok := seenEdge[e.ID]; !ok {
				seenEdge[e.ID] = struct{}{}
				merged.Edges = append(merged.Edges, e)
			}
			connected[e.SourceID] = struct{}{}
			connected[e.TargetID] = struct{}{}
		}
	}

	if !includeOrphans {
		kept := merged.NodeIDs[:0:0]
		for _, n := range merged.NodeIDs {
			if _, ok := connected[n]; ok {
				kept = append(kept, n)
			}
		}
		merged.NodeIDs = kept
	}

	switch format {
	case FormatMermaid:
		return renderMermaid(merged), nil
	case FormatJSON, "":
		out := ExportJSON{Nodes: merged.NodeIDs, Edges: merged.Edges}
		if out.Nodes == nil {
			out.Nodes = []int64{}
		}
		if out.Edges == nil {
			out.Edges = []Edge{}
		}
		b, err := json.Marshal(out)
		if err != nil {
			return "", memerr.Wrap(memerr.Internal, "graph.Export", "marshal", err)
		}
		return string(b), nil
	default:
		return "", memerr.New(memerr.InvalidInput, "graph.Export", fmt.Sprintf("unknown format %q", format))
	}
}

// renderMermaid elides self-edges (already excluded by InsertEdge) and
// back-edges (a target->source edge when source->target was already
// emitted) for readability; the JSON export above keeps every traversed edge.
func renderMermaid(sub Subgraph) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	seenPair := map[[2]int64]struct{}{}
	for _, e := range sub.Edges {
		pair := [2]int64{e.SourceID, e.TargetID}
		back := [2]int64{e.TargetID, e.SourceID}
		if _, ok := seenPair[back]; ok {
			continue
		}
		seenPair[pair] = struct{}{}
		fmt.Fprintf(&b, "  M%d -->|%s| M%d\n", e.SourceID, e.Relationship, e.TargetID)
	}
	for _, n := range sub.NodeIDs {
		hasEdge := false
		for _, e := range sub.Edges {
			if e.SourceID == n || e.TargetID == n {
				hasEdge = true
				break
			}
		}
		if !hasEdge {
			fmt.Fprintf(&b, "  M%d\n", n)
		}
	}
	return b.String()
}

func dedupeEdges(edges []Edge) []Edge {
	seen := make(map[int64]struct{}, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
