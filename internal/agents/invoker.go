// Package agents defines the boundary to the external agent runtime. The
// engine never generates content itself; every task execution delegates to an
// Invoker supplied at wiring time.
package agents

import "context"

// Invoker executes one agent action. Implementations must honor the context
// deadline; the engine cancels the context when a task times out or its
// workflow is cancelled.
type Invoker interface {
	Invoke(ctx context.Context, agentType, action string, params map[string]any) (map[string]any, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, agentType, action string, params map[string]any) (map[string]any, error)

func (f InvokerFunc) Invoke(ctx context.Context, agentType, action string, params map[string]any) (map[string]any, error) {
	return f(ctx, agentType, action, params)
}
