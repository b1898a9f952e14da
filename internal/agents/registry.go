package agents

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry routes invocations to handlers registered per agent-type/action
// pair, falling back to a default Invoker for unregistered pairs. It
// implements Invoker itself so it can be handed to the scheduler directly.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]InvokerFunc
	fallback Invoker
	logger   *zap.Logger
}

// NewRegistry creates a registry with an optional fallback invoker.
func NewRegistry(fallback Invoker, logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]InvokerFunc),
		fallback: fallback,
		logger:   logger,
	}
}

func key(agentType, action string) string { return agentType + ":" + action }

// Register installs a handler for an agent-type/action pair, replacing any
// previous handler for the same pair.
func (r *Registry) Register(agentType, action string, fn InvokerFunc) {
	r.mu.Lock()
	r.handlers[key(agentType, action)] = fn
	r.mu.Unlock()
	r.logger.Info("Registered task executor",
		zap.String("agent_type", agentType),
		zap.String("action", action),
	)
}

// Invoke dispatches to the registered handler or the fallback.
func (r *Registry) Invoke(ctx context.Context, agentType, action string, params map[string]any) (map[string]any, error) {
	r.mu.RLock()
	fn, ok := r.handlers[key(agentType, action)]
	fallback := r.fallback
	r.mu.RUnlock()

	if ok {
		return fn(ctx, agentType, action, params)
	}
	if fallback != nil {
		return fallback.Invoke(ctx, agentType, action, params)
	}
	return nil, fmt.Errorf("no executor registered for %s:%s", agentType, action)
}
