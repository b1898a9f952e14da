package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/helixmesh/orchestrator/internal/agents"
	"github.com/helixmesh/orchestrator/internal/circuitbreaker"
	cfg "github.com/helixmesh/orchestrator/internal/config"
	"github.com/helixmesh/orchestrator/internal/health"
	"github.com/helixmesh/orchestrator/internal/httpapi"
	"github.com/helixmesh/orchestrator/internal/ratecontrol"
	"github.com/helixmesh/orchestrator/internal/realtime"
	"github.com/helixmesh/orchestrator/internal/templates"
	"github.com/helixmesh/orchestrator/internal/tracing"
	"github.com/helixmesh/orchestrator/internal/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Logger with a hot-reloadable level.
	logLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	zcfg := zap.NewProductionConfig()
	zcfg.Level = logLevel
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Configuration with hot-reload.
	configDir := getEnvOrDefault("CONFIG_DIR", "./config")
	cfgMgr, err := cfg.NewManager(configDir, logger)
	if err != nil {
		logger.Fatal("Config manager init failed", zap.Error(err))
	}
	if err := cfgMgr.Start(ctx); err != nil {
		logger.Fatal("Config load failed", zap.Error(err))
	}
	defer cfgMgr.Stop()
	features := cfgMgr.Features()

	applyLogLevel := func(f *cfg.Features) {
		if f.Observability.Logging.Level == "" {
			return
		}
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(f.Observability.Logging.Level)); err == nil {
			logLevel.SetLevel(lvl)
		}
	}
	applyLogLevel(features)
	cfgMgr.OnChange(func(_ string, f *cfg.Features) { applyLogLevel(f) })

	// Tracing.
	if err := tracing.Initialize(tracing.Config{
		Enabled:      features.Observability.Tracing.Enabled,
		ServiceName:  getEnvOrDefault("SERVICE_NAME", "helixmesh-orchestrator"),
		OTLPEndpoint: features.Observability.Tracing.OTLPEndpoint,
		SamplingRate: features.Observability.Tracing.SamplingRate,
	}, logger); err != nil {
		logger.Warn("Tracing init failed", zap.Error(err))
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	// Real-time event engine, with an optional Redis Streams mirror.
	rtCfg := cfg.RealtimeFromEnvOrDefaults(features)
	engine := realtime.NewEngine(rtCfg.RingCapacity, logger)
	var mirror *realtime.Mirror
	if rtCfg.Mirror.Enabled && rtCfg.Mirror.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: rtCfg.Mirror.RedisAddr})
		mirror = realtime.NewMirror(rdb, rtCfg.Mirror.StreamMaxLen, logger)
		engine.SetMirror(mirror)
		defer rdb.Close()
	}

	// Agent invocation path: local registry with an HTTP fallback to the
	// agent runtime, behind per-agent-type circuit breakers.
	agentEndpoint := getEnvOrDefault("AGENT_ENDPOINT", "http://agent-runtime:8000")
	if features.Agents.Endpoint != "" {
		agentEndpoint = features.Agents.Endpoint
	}
	registry := agents.NewRegistry(agents.NewHTTPInvoker(agentEndpoint, logger), logger)

	cbCfg := circuitbreaker.DefaultConfig()
	if features.CircuitBreaker.FailureThreshold > 0 {
		cbCfg.FailureThreshold = uint32(features.CircuitBreaker.FailureThreshold)
	}
	if features.CircuitBreaker.ResetTimeoutMs > 0 {
		cbCfg.Timeout = time.Duration(features.CircuitBreaker.ResetTimeoutMs) * time.Millisecond
	}
	if features.CircuitBreaker.HalfOpenRequests > 0 {
		cbCfg.MaxRequests = uint32(features.CircuitBreaker.HalfOpenRequests)
	}
	breakers := circuitbreaker.NewGroup(cbCfg, logger)

	// Workflow scheduler.
	wfCfg := cfg.WorkflowFromEnvOrDefaults(features)
	executor := workflow.NewExecutor(registry, breakers, logger)
	sched := workflow.NewScheduler(workflow.Config{
		MaxConcurrentWorkflows: wfCfg.MaxConcurrentWorkflows,
		WorkerPoolSize:         wfCfg.WorkerPoolSize,
		RetentionWindow:        wfCfg.Retention(),
		BackoffBase:            wfCfg.BackoffBase(),
		BackoffCap:             wfCfg.BackoffCap(),
		DefaultTaskTimeout:     wfCfg.DefaultTimeout(),
		DefaultMaxRetries:      wfCfg.DefaultMaxRetries,
	}, executor, engine, logger)
	defer sched.Stop()

	// Workflow templates are optional; a missing directory just disables
	// the from-template endpoint.
	tplRegistry := templates.NewRegistry(logger)
	if err := tplRegistry.LoadDir(wfCfg.TemplatesDir); err != nil {
		logger.Warn("Template load failed", zap.String("dir", wfCfg.TemplatesDir), zap.Error(err))
	}

	// Health checks.
	hm := health.NewManager(logger)
	_ = hm.RegisterChecker(health.NewSchedulerChecker(sched, wfCfg.MaxConcurrentWorkflows))
	_ = hm.RegisterChecker(health.NewRealtimeChecker(engine))
	if mirror != nil {
		_ = hm.RegisterChecker(health.NewMirrorChecker(mirror))
	}

	// Shared HTTP mux: control API, WebSocket, health, metrics.
	mux := http.NewServeMux()
	httpapi.NewWorkflowHandler(sched, engine, tplRegistry, logger).RegisterRoutes(mux)
	limiter := ratecontrol.New(rtCfg.ClientRate.Requests, rtCfg.ClientRateInterval())
	httpapi.NewWSHandler(engine, limiter, rtCfg.ConnectionBuffer, logger).RegisterRoutes(mux)
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)
	if os.Getenv("METRICS_DISABLED") == "" {
		mux.Handle("/metrics", promhttp.Handler())
	}

	port := getEnvOrDefaultInt("HTTP_PORT", 8080)
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown error", zap.Error(err))
	}
	engine.Shutdown()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
