package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/yourorg/rentaldesk/internal/api"
)

// State is the gate's lifecycle: Unknown until the health probe answers,
// then Open or Gated.
type State int

const (
	StateUnknown State = iota
	StateOpen
	StateGated
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateGated:
		return "gated"
	default:
		return "unknown"
	}
}

const tokenKey = "session_token"

// ErrGated is returned by operations that require an open session.
var ErrGated = errors.New("authentication required")

// Gate owns the session token. It is the only writer besides the transport
// interceptor's invalidation path, which reaches it through api.TokenSource.
type Gate struct {
	client *api.Client
	cache  Cache
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	required bool
	token    string
	watchers []chan State
}

var _ api.TokenSource = (*Gate)(nil)

// NewGate loads any cached token; the gate stays Unknown until Resolve runs.
func NewGate(client *api.Client, cache Cache, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{client: client, cache: cache, logger: logger}
	if cache != nil {
		if tok, err := cache.Get(tokenKey); err == nil {
			g.token = tok
		}
	}
	return g
}

// Resolve learns from the health probe whether authentication is mandatory.
// A failed probe is treated as "no authentication required" so an unreachable
// health endpoint does not lock the operator out (fail-open, see DESIGN.md).
func (g *Gate) Resolve(ctx context.Context) {
	health, err := g.client.Health(ctx)

	g.mu.Lock()
	if err != nil {
		g.logger.Warn("health probe failed, assuming no auth", "err", err)
		g.required = false
		g.setStateLocked(StateOpen)
		g.mu.Unlock()
		return
	}
	g.required = health.AuthRequired
	if g.required && g.token == "" {
		g.setStateLocked(StateGated)
	} else {
		g.setStateLocked(StateOpen)
	}
	g.mu.Unlock()
}

// Login exchanges the password for a token and opens the gate.
func (g *Gate) Login(ctx context.Context, password string) error {
	token, err := g.client.Login(ctx, password)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.token = token
	if g.cache != nil {
		if err := g.cache.Put(tokenKey, token); err != nil {
			g.logger.Warn("persist token failed", "err", err)
		}
	}
	g.setStateLocked(StateOpen)
	g.mu.Unlock()
	g.logger.Info("session opened")
	return nil
}

// Logout clears the token and re-arms the gate when auth is mandatory.
func (g *Gate) Logout() {
	g.mu.Lock()
	g.clearTokenLocked()
	if g.required {
		g.setStateLocked(StateGated)
	} else {
		g.setStateLocked(StateOpen)
	}
	g.mu.Unlock()
}

// Token implements api.TokenSource.
func (g *Gate) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}

// Invalidate implements api.TokenSource: a 401 on any call proves the backend
// does require auth, so the gate closes regardless of the probe's answer.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	g.clearTokenLocked()
	g.required = true
	g.setStateLocked(StateGated)
	g.mu.Unlock()
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Open reports whether data components may issue backend calls.
func (g *Gate) Open() bool {
	return g.State() == StateOpen
}

func (g *Gate) AuthRequired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.required
}

// Subscribe returns a one-slot channel carrying the latest state transition.
// A slow consumer sees intermediate states coalesced into the most recent
// one; the gate never blocks on a watcher.
func (g *Gate) Subscribe() <-chan State {
	ch := make(chan State, 1)
	g.mu.Lock()
	g.watchers = append(g.watchers, ch)
	g.mu.Unlock()
	return ch
}

func (g *Gate) clearTokenLocked() {
	g.token = ""
	if g.cache != nil {
		if err := g.cache.Delete(tokenKey); err != nil {
			g.logger.Warn("clear cached token failed", "err", err)
		}
	}
}

func (g *Gate) setStateLocked(next State) {
	if g.state == next {
		return
	}
	g.state = next
	for _, ch := range g.watchers {
		// drain the stale state, then replace it with the latest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- next:
		default:
		}
	}
}
