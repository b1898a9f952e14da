package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helixmesh_workflows_created_total",
			Help: "Total number of workflows created",
		},
	)

	WorkflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helixmesh_workflows_started_total",
			Help: "Total number of workflows started",
		},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixmesh_workflows_completed_total",
			Help: "Total number of workflows reaching a terminal state",
		},
		[]string{"status"},
	)

	WorkflowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helixmesh_workflow_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkflowsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helixmesh_workflows_active",
			Help: "Number of workflows currently held in memory",
		},
	)

	// Task metrics
	TaskAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixmesh_task_attempts_total",
			Help: "Total number of task invocation attempts",
		},
		[]string{"agent_type"},
	)

	TaskRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helixmesh_task_retries_total",
			Help: "Total number of task retries after failure",
		},
	)

	TaskTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helixmesh_task_timeouts_total",
			Help: "Total number of task invocations exceeding their deadline",
		},
	)

	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixmesh_tasks_finished_total",
			Help: "Total number of tasks reaching a terminal state",
		},
		[]string{"status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helixmesh_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"agent_type"},
	)

	// Real-time delivery metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixmesh_events_published_total",
			Help: "Total number of events published",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helixmesh_events_dropped_total",
			Help: "Total number of events dropped on slow consumer queues",
		},
	)

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helixmesh_connections_active",
			Help: "Number of live real-time connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helixmesh_rooms_active",
			Help: "Number of rooms with at least one member",
		},
	)

	ClientMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixmesh_client_messages_total",
			Help: "Total number of client messages received on the real-time channel",
		},
		[]string{"type"},
	)
)

// RecordWorkflowFinished records terminal workflow metrics.
func RecordWorkflowFinished(status string, durationSeconds float64) {
	WorkflowsCompleted.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		WorkflowDuration.Observe(durationSeconds)
	}
}

// RecordTaskFinished records terminal task metrics.
func RecordTaskFinished(agentType, status string, durationSeconds float64) {
	TasksFinished.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		TaskDuration.WithLabelValues(agentType).Observe(durationSeconds)
	}
}
