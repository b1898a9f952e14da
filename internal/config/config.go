// Package config loads the orchestrator feature configuration from YAML
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type ObservabilityConfig struct {
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
	Tracing struct {
		Enabled      bool    `mapstructure:"enabled"`
		OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
		SamplingRate float64 `mapstructure:"sampling_rate"`
	} `mapstructure:"tracing"`
}

type WorkflowConfig struct {
	MaxConcurrentWorkflows int `mapstructure:"max_concurrent_workflows"`
	WorkerPoolSize         int `mapstructure:"worker_pool_size"`
	RetentionMinutes       int `mapstructure:"retention_minutes"`
	BackoffBaseMs          int `mapstructure:"backoff_base_ms"`
	BackoffCapMs           int `mapstructure:"backoff_cap_ms"`
	DefaultTimeoutSeconds  int `mapstructure:"default_timeout_seconds"`
	DefaultMaxRetries      int `mapstructure:"default_max_retries"`
	TemplatesDir           string `mapstructure:"templates_dir"`
}

type RealtimeConfig struct {
	RingCapacity     int `mapstructure:"ring_capacity"`
	ConnectionBuffer int `mapstructure:"connection_buffer"`
	ClientRate       struct {
		Requests   int `mapstructure:"requests"`
		IntervalMs int `mapstructure:"interval_ms"`
	} `mapstructure:"client_rate"`
	Mirror struct {
		Enabled     bool   `mapstructure:"enabled"`
		RedisAddr   string `mapstructure:"redis_addr"`
		StreamMaxLen int64 `mapstructure:"stream_maxlen"`
	} `mapstructure:"mirror"`
}

type AgentsConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	ResetTimeoutMs   int `mapstructure:"reset_timeout_ms"`
	HalfOpenRequests int `mapstructure:"half_open_requests"`
}

type Features struct {
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	Workflow       WorkflowConfig       `mapstructure:"workflow"`
	Realtime       RealtimeConfig       `mapstructure:"realtime"`
	Agents         AgentsConfig         `mapstructure:"agents"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// Load loads features.yaml from CONFIG_PATH or ./config/features.yaml.
func Load() (*Features, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/features.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var f Features
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &f, nil
}

// LoadOrDefaults loads the features file and falls back to defaults when it
// is absent. A malformed file is still an error.
func LoadOrDefaults() (*Features, error) {
	f, err := Load()
	if err != nil {
		if os.IsNotExist(unwrapPathError(err)) {
			return &Features{}, nil
		}
		return nil, err
	}
	return f, nil
}

func unwrapPathError(err error) error {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if u, ok := err.(unwrapper); ok {
			err = u.Unwrap()
			continue
		}
		break
	}
	return err
}

// MetricsPort returns the port from METRICS_PORT, the config file, or
// defaultPort, in that order.
func MetricsPort(f *Features, defaultPort int) int {
	if p := os.Getenv("METRICS_PORT"); p != "" {
		var v int
		_, _ = fmt.Sscanf(p, "%d", &v)
		if v > 0 {
			return v
		}
	}
	if f != nil && f.Observability.Metrics.Port > 0 {
		return f.Observability.Metrics.Port
	}
	return defaultPort
}

// WorkflowFromEnvOrDefaults merges workflow config with env overrides and
// defaults.
func WorkflowFromEnvOrDefaults(f *Features) WorkflowConfig {
	wc := WorkflowConfig{
		MaxConcurrentWorkflows: 10,
		WorkerPoolSize:         20,
		RetentionMinutes:       30,
		BackoffBaseMs:          1000,
		BackoffCapMs:           30000,
		DefaultTimeoutSeconds:  300,
		DefaultMaxRetries:      3,
		TemplatesDir:           "./config/templates",
	}
	if f != nil {
		if f.Workflow.MaxConcurrentWorkflows > 0 {
			wc.MaxConcurrentWorkflows = f.Workflow.MaxConcurrentWorkflows
		}
		if f.Workflow.WorkerPoolSize > 0 {
			wc.WorkerPoolSize = f.Workflow.WorkerPoolSize
		}
		if f.Workflow.RetentionMinutes > 0 {
			wc.RetentionMinutes = f.Workflow.RetentionMinutes
		}
		if f.Workflow.BackoffBaseMs > 0 {
			wc.BackoffBaseMs = f.Workflow.BackoffBaseMs
		}
		if f.Workflow.BackoffCapMs > 0 {
			wc.BackoffCapMs = f.Workflow.BackoffCapMs
		}
		if f.Workflow.DefaultTimeoutSeconds > 0 {
			wc.DefaultTimeoutSeconds = f.Workflow.DefaultTimeoutSeconds
		}
		if f.Workflow.DefaultMaxRetries > 0 {
			wc.DefaultMaxRetries = f.Workflow.DefaultMaxRetries
		}
		if f.Workflow.TemplatesDir != "" {
			wc.TemplatesDir = f.Workflow.TemplatesDir
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_WORKFLOWS"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			wc.MaxConcurrentWorkflows = x
		}
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			wc.WorkerPoolSize = x
		}
	}
	if v := os.Getenv("TEMPLATES_DIR"); v != "" {
		wc.TemplatesDir = v
	}
	return wc
}

// RealtimeFromEnvOrDefaults merges realtime config with env overrides and
// defaults.
func RealtimeFromEnvOrDefaults(f *Features) RealtimeConfig {
	rc := RealtimeConfig{
		RingCapacity:     100,
		ConnectionBuffer: 64,
	}
	rc.ClientRate.Requests = 20
	rc.ClientRate.IntervalMs = 1000
	rc.Mirror.StreamMaxLen = 1000
	if f != nil {
		if f.Realtime.RingCapacity > 0 {
			rc.RingCapacity = f.Realtime.RingCapacity
		}
		if f.Realtime.ConnectionBuffer > 0 {
			rc.ConnectionBuffer = f.Realtime.ConnectionBuffer
		}
		if f.Realtime.ClientRate.Requests > 0 {
			rc.ClientRate.Requests = f.Realtime.ClientRate.Requests
		}
		if f.Realtime.ClientRate.IntervalMs > 0 {
			rc.ClientRate.IntervalMs = f.Realtime.ClientRate.IntervalMs
		}
		rc.Mirror.Enabled = f.Realtime.Mirror.Enabled
		if f.Realtime.Mirror.RedisAddr != "" {
			rc.Mirror.RedisAddr = f.Realtime.Mirror.RedisAddr
		}
		if f.Realtime.Mirror.StreamMaxLen > 0 {
			rc.Mirror.StreamMaxLen = f.Realtime.Mirror.StreamMaxLen
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		rc.Mirror.RedisAddr = v
	}
	return rc
}

// Duration helpers keep time math out of the wiring code.

func (wc WorkflowConfig) Retention() time.Duration {
	return time.Duration(wc.RetentionMinutes) * time.Minute
}

func (wc WorkflowConfig) BackoffBase() time.Duration {
	return time.Duration(wc.BackoffBaseMs) * time.Millisecond
}

func (wc WorkflowConfig) BackoffCap() time.Duration {
	return time.Duration(wc.BackoffCapMs) * time.Millisecond
}

func (wc WorkflowConfig) DefaultTimeout() time.Duration {
	return time.Duration(wc.DefaultTimeoutSeconds) * time.Second
}

func (rc RealtimeConfig) ClientRateInterval() time.Duration {
	return time.Duration(rc.ClientRate.IntervalMs) * time.Millisecond
}
