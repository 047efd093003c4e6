// Package gate implements the protocol-enforcement gate guarding mutating
// operations behind an initialization token (session-cached, no TTL) and a
// context-check token (5-minute TTL). Grounded on a session/token
// bookkeeping style (per-account token tables guarded by a mutex, expiry
// checked on read), adapted from account credentials to project-scoped
// proof tokens.
package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memengine/memengine/internal/memerr"
)

// DefaultContextTokenTTL is the context token's lifetime.
const DefaultContextTokenTTL = 5 * time.Minute

type contextToken struct {
	token           string
	descriptionHash string
	issuedAt        time.Time
	ttl             time.Duration
}

func (t contextToken) expired(now time.Time) bool {
	return now.Sub(t.issuedAt) > t.ttl
}

// Gate is process-wide state keyed by project (§5 "The protocol-gate token
// table is process-wide, keyed by project").
type Gate struct {
	mu              sync.Mutex
	initialized     map[string]bool
	contextTokens   map[string]contextToken
	contextTokenTTL time.Duration
}

// New creates a Gate. ttl <= 0 uses DefaultContextTokenTTL.
func New(ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultContextTokenTTL
	}
	return &Gate{
		initialized:     make(map[string]bool),
		contextTokens:   make(map[string]contextToken),
		contextTokenTTL: ttl,
	}
}

// Initialize registers a live initialization token for project, produced by
// the briefing operation. Monotonic: once set, re-initializing is a no-op.
func (g *Gate) Initialize(project string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialized[project] = true
}

// RequiresInitialization implements the requires_initialization decorator:
// fails with INIT_REQUIRED naming get_briefing when no init token is live.
func (g *Gate) RequiresInitialization(project string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized[project] {
		return memerr.New(memerr.InitRequired, "gate.RequiresInitialization",
			"call get_briefing to initialize this project before mutating operations")
	}
	return nil
}

// IssueContextToken implements context_check(description)'s token minting:
// the returned token is an opaque bearer id; the stored hash witnesses that
// some description was checked, without content enforcement.
func (g *Gate) IssueContextToken(project, description string) (token string, validUntil time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	token = uuid.NewString()
	g.contextTokens[project] = contextToken{
		token:           token,
		descriptionHash: hashDescription(description),
		issuedAt:        now,
		ttl:             g.contextTokenTTL,
	}
	return token, now.Add(g.contextTokenTTL)
}

// RequiresContext implements the requires_context decorator: in addition to
// RequiresInitialization, requires a non-expired context token.
func (g *Gate) RequiresContext(project string) error {
	if err := g.RequiresInitialization(project); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	tok, ok := g.contextTokens[project]
	if !ok || tok.expired(time.Now()) {
		return memerr.New(memerr.ContextCheckRequired, "gate.RequiresContext",
			"call context_check before this operation")
	}
	return nil
}

func hashDescription(description string) string {
	sum := sha256.Sum256([]byte(description))
	return hex.EncodeToString(sum[:])
}
