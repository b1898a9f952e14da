package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeatures = `observability:
  metrics:
    enabled: true
    port: 9090
  logging:
    level: debug
workflow:
  max_concurrent_workflows: 4
  worker_pool_size: 6
  backoff_base_ms: 250
realtime:
  ring_capacity: 42
  mirror:
    enabled: true
    redis_addr: localhost:6400
`

func writeFeatures(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "features.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)
	return dir
}

func TestLoadFeatures(t *testing.T) {
	writeFeatures(t, sampleFeatures)

	f, err := Load()
	require.NoError(t, err)
	assert.True(t, f.Observability.Metrics.Enabled)
	assert.Equal(t, 9090, f.Observability.Metrics.Port)
	assert.Equal(t, "debug", f.Observability.Logging.Level)
	assert.Equal(t, 4, f.Workflow.MaxConcurrentWorkflows)
	assert.Equal(t, 42, f.Realtime.RingCapacity)
	assert.True(t, f.Realtime.Mirror.Enabled)
}

func TestLoadOrDefaultsMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	f, err := LoadOrDefaults()
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.False(t, f.Observability.Metrics.Enabled)
}

func TestWorkflowMergeDefaultsAndOverrides(t *testing.T) {
	writeFeatures(t, sampleFeatures)
	f, err := Load()
	require.NoError(t, err)

	wc := WorkflowFromEnvOrDefaults(f)
	assert.Equal(t, 4, wc.MaxConcurrentWorkflows)
	assert.Equal(t, 6, wc.WorkerPoolSize)
	assert.Equal(t, 250*time.Millisecond, wc.BackoffBase())
	// Unset keys fall back to defaults.
	assert.Equal(t, 30*time.Minute, wc.Retention())
	assert.Equal(t, 5*time.Minute, wc.DefaultTimeout())
	assert.Equal(t, 3, wc.DefaultMaxRetries)

	t.Setenv("MAX_CONCURRENT_WORKFLOWS", "7")
	wc = WorkflowFromEnvOrDefaults(f)
	assert.Equal(t, 7, wc.MaxConcurrentWorkflows, "env beats file")
}

func TestRealtimeMergeAndEnvOverride(t *testing.T) {
	writeFeatures(t, sampleFeatures)
	f, err := Load()
	require.NoError(t, err)

	rc := RealtimeFromEnvOrDefaults(f)
	assert.Equal(t, 42, rc.RingCapacity)
	assert.Equal(t, 64, rc.ConnectionBuffer)
	assert.Equal(t, "localhost:6400", rc.Mirror.RedisAddr)

	t.Setenv("REDIS_ADDR", "redis:6379")
	rc = RealtimeFromEnvOrDefaults(f)
	assert.Equal(t, "redis:6379", rc.Mirror.RedisAddr)
}

func TestMetricsPortPrecedence(t *testing.T) {
	writeFeatures(t, sampleFeatures)
	f, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, MetricsPort(f, 8080))

	t.Setenv("METRICS_PORT", "7070")
	assert.Equal(t, 7070, MetricsPort(f, 8080))

	assert.Equal(t, 8080, MetricsPort(nil, 8080))
}
