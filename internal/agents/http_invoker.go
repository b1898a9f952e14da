package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/helixmesh/orchestrator/internal/tracing"
)

// HTTPInvoker bridges task execution to an external agent service over HTTP.
// The request carries the agent type, action and parameters; the context
// deadline set by the executor bounds the round trip.
type HTTPInvoker struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPInvoker creates an invoker posting to baseURL+"/invoke". The client
// has no timeout of its own; per-task deadlines come from the context.
func NewHTTPInvoker(baseURL string, logger *zap.Logger) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  logger,
	}
}

type invokeRequest struct {
	AgentType  string         `json:"agent_type"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type invokeResponse struct {
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (h *HTTPInvoker) Invoke(ctx context.Context, agentType, action string, params map[string]any) (map[string]any, error) {
	body, err := json.Marshal(invokeRequest{AgentType: agentType, Action: action, Parameters: params})
	if err != nil {
		return nil, fmt.Errorf("marshal invoke request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s:%s: %w", agentType, action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read invoke response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("invoke %s:%s: agent service returned %d", agentType, action, resp.StatusCode)
	}

	var out invokeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode invoke response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("agent error: %s", out.Error)
	}
	return out.Output, nil
}
