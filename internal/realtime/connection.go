package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixmesh/orchestrator/internal/metrics"
)

// Connection is one live client on the real-time channel. Events queue on a
// bounded outbound channel drained by the transport's writer pump, so one
// slow consumer never blocks delivery to others.
type Connection struct {
	ID         string
	Identifier string // opaque user/session attribution, never validated here
	CreatedAt  time.Time

	out       chan Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newConnection(id, identifier string, buffer int) *Connection {
	return &Connection{
		ID:         id,
		Identifier: identifier,
		CreatedAt:  time.Now(),
		out:        make(chan Event, buffer),
		done:       make(chan struct{}),
	}
}

// Out is the queue the transport writer pump drains.
func (c *Connection) Out() <-chan Event { return c.out }

// Done is closed when the connection is disconnected.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Dropped returns how many events were discarded because the outbound
// queue was full.
func (c *Connection) Dropped() uint64 { return c.dropped.Load() }

// Alive reports whether the connection has not been disconnected.
func (c *Connection) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Send offers an event directly to this connection's queue, bypassing room
// routing. Transports use it for control replies and replay catch-up.
func (c *Connection) Send(evt Event) bool { return c.enqueue(evt) }

// enqueue offers the event to the outbound queue. When the queue is full the
// oldest undelivered event is dropped to make room, keeping memory bounded.
func (c *Connection) enqueue(evt Event) bool {
	if !c.Alive() {
		return false
	}
	select {
	case c.out <- evt:
		return true
	default:
	}
	// Queue full: evict the oldest, then retry once. A concurrent drain can
	// race the retry; losing that race just drops the new event instead.
	select {
	case <-c.out:
		c.dropped.Add(1)
		metrics.EventsDropped.Inc()
	default:
	}
	select {
	case c.out <- evt:
		return true
	default:
		c.dropped.Add(1)
		metrics.EventsDropped.Inc()
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
