package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticChecker struct {
	name     string
	critical bool
	result   CheckResult
}

func (c *staticChecker) Name() string                           { return c.name }
func (c *staticChecker) IsCritical() bool                       { return c.critical }
func (c *staticChecker) Timeout() time.Duration                 { return time.Second }
func (c *staticChecker) Check(ctx context.Context) CheckResult { return c.result }

func TestRegisterCheckerRejectsDuplicates(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(&staticChecker{name: "a"}))
	require.Error(t, m.RegisterChecker(&staticChecker{name: "a"}))

	m.UnregisterChecker("a")
	require.NoError(t, m.RegisterChecker(&staticChecker{name: "a"}))
}

func TestOverallHealthAggregation(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []*staticChecker
		wantStatus CheckStatus
		wantReady  bool
	}{
		{
			name: "all healthy",
			checkers: []*staticChecker{
				{name: "a", critical: true, result: CheckResult{Status: StatusHealthy}},
				{name: "b", result: CheckResult{Status: StatusHealthy}},
			},
			wantStatus: StatusHealthy,
			wantReady:  true,
		},
		{
			name: "critical unhealthy blocks readiness",
			checkers: []*staticChecker{
				{name: "a", critical: true, result: CheckResult{Status: StatusUnhealthy}},
				{name: "b", result: CheckResult{Status: StatusHealthy}},
			},
			wantStatus: StatusUnhealthy,
			wantReady:  false,
		},
		{
			name: "non-critical unhealthy only degrades",
			checkers: []*staticChecker{
				{name: "a", critical: true, result: CheckResult{Status: StatusHealthy}},
				{name: "b", result: CheckResult{Status: StatusUnhealthy}},
			},
			wantStatus: StatusDegraded,
			wantReady:  true,
		},
		{
			name: "degraded check degrades overall",
			checkers: []*staticChecker{
				{name: "a", critical: true, result: CheckResult{Status: StatusDegraded}},
			},
			wantStatus: StatusDegraded,
			wantReady:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(zaptest.NewLogger(t))
			for _, c := range tt.checkers {
				require.NoError(t, m.RegisterChecker(c))
			}
			overall := m.GetOverallHealth(context.Background())
			assert.Equal(t, tt.wantStatus, overall.Status)
			assert.Equal(t, tt.wantReady, overall.Ready)
			assert.True(t, overall.Live)
		})
	}
}

func TestDetailedHealthIncludesComponents(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(&staticChecker{
		name:     "store",
		critical: true,
		result:   CheckResult{Status: StatusHealthy, Details: map[string]any{"items": 3}},
	}))
	require.NoError(t, m.RegisterChecker(&staticChecker{
		name:   "mirror",
		result: CheckResult{Status: StatusUnhealthy, Error: "dial refused"},
	}))

	detailed := m.GetDetailedHealth(context.Background())
	require.Len(t, detailed.Checks, 2)
	assert.Equal(t, StatusDegraded, detailed.Overall.Status)

	store := detailed.Checks["store"]
	assert.Equal(t, "store", store.Component)
	assert.True(t, store.Critical)
	assert.False(t, store.Timestamp.IsZero())

	mirror := detailed.Checks["mirror"]
	assert.Equal(t, "dial refused", mirror.Error)
	assert.False(t, mirror.Critical)
}

func TestHTTPEndpoints(t *testing.T) {
	logger := zaptest.NewLogger(t)

	newServer := func(checkers ...Checker) *httptest.Server {
		m := NewManager(logger)
		for _, c := range checkers {
			require.NoError(t, m.RegisterChecker(c))
		}
		mux := http.NewServeMux()
		NewHTTPHandler(m, logger).RegisterRoutes(mux)
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("healthy service", func(t *testing.T) {
		srv := newServer(&staticChecker{name: "a", critical: true, result: CheckResult{Status: StatusHealthy}})

		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy service returns 503", func(t *testing.T) {
		srv := newServer(&staticChecker{name: "a", critical: true, result: CheckResult{Status: StatusUnhealthy}})

		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		resp, err = http.Get(srv.URL + "/health/ready")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		// Liveness is independent of check results.
		resp, err = http.Get(srv.URL + "/health/live")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("detailed lists components", func(t *testing.T) {
		srv := newServer(
			&staticChecker{name: "a", critical: true, result: CheckResult{Status: StatusHealthy}},
			&staticChecker{name: "b", result: CheckResult{Status: StatusDegraded}},
		)

		resp, err := http.Get(srv.URL + "/health/detailed")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body DetailedHealth
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Len(t, body.Checks, 2)
		assert.True(t, body.Overall.Degraded)
	})

	t.Run("method not allowed", func(t *testing.T) {
		srv := newServer()
		resp, err := http.Post(srv.URL+"/health", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
