package circuitbreaker

import (
	"sync"

	"go.uber.org/zap"
)

// Group lazily creates one circuit breaker per key. The scheduler uses one
// breaker per agent type so a broken backend for one agent does not block
// the others.
type Group struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	config   Config
	logger   *zap.Logger
}

// NewGroup creates a breaker group sharing a single config.
func NewGroup(config Config, logger *zap.Logger) *Group {
	return &Group{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
	}
}

// Get returns the breaker for key, creating it on first use.
func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[key]
	if !ok {
		cb = New(key, g.config, g.logger)
		g.breakers[key] = cb
	}
	return cb
}

// States returns a snapshot of every breaker's state, keyed by name.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]State, len(g.breakers))
	for k, cb := range g.breakers {
		out[k] = cb.State()
	}
	return out
}
