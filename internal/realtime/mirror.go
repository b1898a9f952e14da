package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Mirror copies published events into capped Redis Streams, one stream per
// room, so out-of-process consumers can tail the event flow. Delivery to
// connected clients never depends on it; mirror failures are logged and
// dropped.
type Mirror struct {
	client  *redis.Client
	maxLen  int64
	timeout time.Duration
	logger  *zap.Logger
}

// NewMirror creates a mirror writing streams capped at maxLen entries.
func NewMirror(client *redis.Client, maxLen int64, logger *zap.Logger) *Mirror {
	if maxLen <= 0 {
		maxLen = 1024
	}
	return &Mirror{
		client:  client,
		maxLen:  maxLen,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// StreamKey returns the Redis stream key for a room ("" means broadcast).
func StreamKey(room string) string {
	if room == "" {
		return "events:broadcast"
	}
	return "events:room:" + room
}

// Publish appends the event to the room's stream, best-effort.
func (m *Mirror) Publish(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(evt.Room),
		MaxLen: m.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":        evt.ID,
			"type":      evt.Type,
			"timestamp": evt.Timestamp.Format(time.RFC3339Nano),
			"payload":   string(evt.Marshal()),
		},
	}).Err()
	if err != nil {
		m.logger.Warn("Event mirror publish failed",
			zap.String("room", evt.Room),
			zap.Error(err),
		)
	}
}

// Ping verifies the Redis connection, used by the health checker.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}
