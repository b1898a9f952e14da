package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistryDispatchesRegisteredHandler(t *testing.T) {
	r := NewRegistry(nil, zaptest.NewLogger(t))
	r.Register("chat", "echo", func(ctx context.Context, agentType, action string, params map[string]any) (map[string]any, error) {
		return map[string]any{"echo": params["msg"]}, nil
	})

	out, err := r.Invoke(context.Background(), "chat", "echo", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])
}

func TestRegistryFallback(t *testing.T) {
	fallback := InvokerFunc(func(ctx context.Context, agentType, action string, params map[string]any) (map[string]any, error) {
		return map[string]any{"via": "fallback", "pair": agentType + ":" + action}, nil
	})
	r := NewRegistry(fallback, zaptest.NewLogger(t))

	out, err := r.Invoke(context.Background(), "web", "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback", out["via"])
	assert.Equal(t, "web:search", out["pair"])
}

func TestRegistryNoHandlerNoFallback(t *testing.T) {
	r := NewRegistry(nil, zaptest.NewLogger(t))

	_, err := r.Invoke(context.Background(), "web", "search", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web:search")
}

func TestRegistryHandlerOverridesFallback(t *testing.T) {
	fallback := InvokerFunc(func(ctx context.Context, agentType, action string, params map[string]any) (map[string]any, error) {
		return map[string]any{"via": "fallback"}, nil
	})
	r := NewRegistry(fallback, zaptest.NewLogger(t))
	r.Register("web", "search", func(ctx context.Context, agentType, action string, params map[string]any) (map[string]any, error) {
		return map[string]any{"via": "handler"}, nil
	})

	out, err := r.Invoke(context.Background(), "web", "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "handler", out["via"])
}
