package agents

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHTTPInvokerRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/invoke", r.URL.Path)

		var req struct {
			AgentType  string         `json:"agent_type"`
			Action     string         `json:"action"`
			Parameters map[string]any `json:"parameters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "web", req.AgentType)
		assert.Equal(t, "search", req.Action)
		assert.Equal(t, "golang", req.Parameters["query"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{"results": []any{"a", "b"}},
		})
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, zaptest.NewLogger(t))
	out, err := inv.Invoke(context.Background(), "web", "search", map[string]any{"query": "golang"})
	require.NoError(t, err)
	assert.Len(t, out["results"], 2)
}

func TestHTTPInvokerAgentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model unavailable"})
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, zaptest.NewLogger(t))
	_, err := inv.Invoke(context.Background(), "chat", "reply", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestHTTPInvokerNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, zaptest.NewLogger(t))
	_, err := inv.Invoke(context.Background(), "chat", "reply", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPInvokerHonorsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and can
		// observe the client disconnect; otherwise r.Context() is never
		// canceled and srv.Close deadlocks on this handler.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := inv.Invoke(ctx, "chat", "reply", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
