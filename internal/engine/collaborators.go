// Package engine wires together the lower-level subsystems (store,
// lexical/vector indices, graph, memory manager, code indexer, rule
// engine, watcher, gate) into the composite operations and the full
// agent-facing operations surface. Grounded on a top-level orchestration
// style that composes several independently testable subsystems behind
// one service-style entry point.
package engine

import (
	"context"
	"time"
)

// GitProbe is the external collaborator git-changes snapshots flow
// through. No concrete VCS implementation lives in this module; callers
// wire one in at the process boundary (§6 External collaborators).
type GitProbe interface {
	ChangesSince(ctx context.Context, since time.Time) (GitChanges, error)
}

// GitChanges is the shape briefing() embeds under its git-changes field.
type GitChanges struct {
	Commits     []string
	Uncommitted []string
}

// DocFetcher is the external collaborator ingest_doc uses to retrieve a
// document's bytes. No concrete HTTP client lives in this module.
type DocFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
