package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/helixmesh/orchestrator/internal/metrics"
)

// DefaultRingCapacity bounds the retained event history.
const DefaultRingCapacity = 100

// Stats is the snapshot returned by get_stats and the /stats endpoint.
type Stats struct {
	Connections   int            `json:"connections"`
	Rooms         map[string]int `json:"rooms"`
	EventsSent    uint64         `json:"events_sent"`
	EventsFailed  uint64         `json:"events_failed"`
	SuccessRate   float64        `json:"success_rate"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	HistorySize   int            `json:"history_size"`
}

// Engine combines the connection registry, room fanout and the bounded event
// history. It is the event sink handed to the workflow scheduler.
type Engine struct {
	registry *ConnectionRegistry

	ringMu sync.Mutex
	ring   *ring

	eventsSent   atomic.Uint64
	eventsFailed atomic.Uint64
	startTime    time.Time

	mirror *Mirror // optional, best-effort
	logger *zap.Logger
}

// NewEngine creates an engine with the given ring capacity (DefaultRingCapacity
// when capacity <= 0).
func NewEngine(capacity int, logger *zap.Logger) *Engine {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Engine{
		registry:  NewConnectionRegistry(logger),
		ring:      newRing(capacity),
		startTime: time.Now(),
		logger:    logger,
	}
}

// SetMirror attaches an optional Redis Streams mirror. In-memory delivery
// remains the source of truth.
func (e *Engine) SetMirror(m *Mirror) { e.mirror = m }

// Registry exposes connection management to the transport layer.
func (e *Engine) Registry() *ConnectionRegistry { return e.registry }

// Publish appends the event to the history ring and fans it out to every
// live connection in the event's room, or to all connections when unscoped.
func (e *Engine) Publish(evt Event) {
	e.ringMu.Lock()
	evt = e.ring.push(evt)
	e.ringMu.Unlock()

	metrics.EventsPublished.WithLabelValues(evt.Type).Inc()
	if e.mirror != nil {
		e.mirror.Publish(evt)
	}

	var targets []*Connection
	if evt.Room != "" {
		targets = e.registry.RoomSnapshot(evt.Room)
	} else {
		targets = e.registry.Snapshot()
	}
	for _, conn := range targets {
		if conn.enqueue(evt) {
			e.eventsSent.Add(1)
		} else {
			e.eventsFailed.Add(1)
		}
	}
}

// PublishEvent builds and publishes an event; it satisfies the scheduler's
// event sink interface.
func (e *Engine) PublishEvent(eventType, room string, data map[string]any) {
	e.Publish(NewEvent(eventType, room, data))
}

// Replay returns the retained history for a room (including broadcast
// events), capped at the ring capacity. Used for explicit catch-up on join.
func (e *Engine) Replay(room string) []Event {
	e.ringMu.Lock()
	defer e.ringMu.Unlock()
	return e.ring.snapshotRoom(room)
}

// ReplaySince returns retained events newer than seq regardless of room.
func (e *Engine) ReplaySince(seq uint64) []Event {
	e.ringMu.Lock()
	defer e.ringMu.Unlock()
	return e.ring.since(seq)
}

// Stats reports delivery statistics and connection/room counts.
func (e *Engine) Stats() Stats {
	sent := e.eventsSent.Load()
	failed := e.eventsFailed.Load()
	total := sent + failed
	rate := 100.0
	if total > 0 {
		rate = float64(sent) / float64(total) * 100
	}

	e.ringMu.Lock()
	historySize := e.ring.count
	e.ringMu.Unlock()

	return Stats{
		Connections:   e.registry.Count(),
		Rooms:         e.registry.RoomStats(),
		EventsSent:    sent,
		EventsFailed:  failed,
		SuccessRate:   rate,
		UptimeSeconds: time.Since(e.startTime).Seconds(),
		HistorySize:   historySize,
	}
}

// Shutdown disconnects every live connection.
func (e *Engine) Shutdown() {
	for _, conn := range e.registry.Snapshot() {
		e.registry.Disconnect(conn.ID)
	}
	e.logger.Info("Real-time engine stopped")
}
