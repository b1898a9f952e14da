// Package realtime provides the connection/room publish-subscribe layer that
// fans workflow and system events out to connected clients.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type tags carried on the real-time channel.
const (
	EventAgentStatusUpdate  = "agent_status_update"
	EventWorkflowProgress   = "workflow_progress"
	EventTaskStatusUpdate   = "task_status_update"
	EventSystemAlert        = "system_alert"
	EventPerformanceMetrics = "performance_metrics"
)

// Event is a single immutable message on the real-time channel. Room is
// empty for broadcast events.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Room      string         `json:"room,omitempty"`
	Seq       uint64         `json:"seq,omitempty"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(eventType, room string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		Room:      room,
	}
}

// Marshal returns the JSON encoding for the wire and for logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}
