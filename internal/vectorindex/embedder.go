// Package vectorindex implements an optional embedding-backed
// nearest-neighbor index over memory engine documents. When no Embedder is
// configured the index is inert and hybrid search degrades to pure
// lexical. The Embedder interface is grounded on an EmbeddingEngine shape;
// no concrete cloud/local provider is wired into the core, since the
// embedder is treated as an abstract external collaborator.
package vectorindex

import (
	"context"
	"time"
)

// Embedder generates vector embeddings for text. Implementations live
// outside this module (see §6 External collaborators); the core only
// depends on this interface.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// DefaultEmbedTimeout bounds a single Embed call; exceeding it downgrades the
// caller to lexical-only rather than failing the outer request (§5 Timeouts).
const DefaultEmbedTimeout = 5 * time.Second
