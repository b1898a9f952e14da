package realtime

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestMirror(t *testing.T) (*Mirror, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMirror(client, 100, zaptest.NewLogger(t)), client
}

func TestMirrorPublishAppendsToRoomStream(t *testing.T) {
	m, client := newTestMirror(t)

	evt := NewEvent(EventTaskStatusUpdate, "workflow_1", map[string]any{"task_id": "t1"})
	evt.Seq = 7
	m.Publish(evt)

	entries, err := client.XRange(context.Background(), "events:room:workflow_1", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, evt.ID, entries[0].Values["id"])
	assert.Equal(t, EventTaskStatusUpdate, entries[0].Values["type"])
	assert.Contains(t, entries[0].Values["payload"], `"task_id":"t1"`)
}

func TestMirrorBroadcastStreamKey(t *testing.T) {
	m, client := newTestMirror(t)

	m.Publish(NewEvent(EventSystemAlert, "", map[string]any{"message": "hi"}))

	entries, err := client.XRange(context.Background(), "events:broadcast", "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMirrorFailureDoesNotBlockDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := NewEngine(10, zaptest.NewLogger(t))
	e.SetMirror(NewMirror(client, 100, zaptest.NewLogger(t)))

	conn := e.Registry().Register("viewer", 8)
	require.True(t, e.Registry().JoinRoom(conn.ID, "workflow_1"))

	mr.Close() // mirror target gone

	e.PublishEvent(EventWorkflowProgress, "workflow_1", map[string]any{"n": 1})

	select {
	case evt := <-conn.Out():
		assert.Equal(t, EventWorkflowProgress, evt.Type)
	default:
		t.Fatal("in-memory delivery must not depend on the mirror")
	}
}

func TestMirrorPing(t *testing.T) {
	m, _ := newTestMirror(t)
	assert.NoError(t, m.Ping(context.Background()))
}
