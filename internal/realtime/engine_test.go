package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func drain(c *Connection) []Event {
	var out []Event
	for {
		select {
		case evt := <-c.Out():
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestEngineRoomScopedFanout(t *testing.T) {
	e := NewEngine(10, zaptest.NewLogger(t))

	inRoom := e.Registry().Register("alice", 8)
	outside := e.Registry().Register("bob", 8)
	require.True(t, e.Registry().JoinRoom(inRoom.ID, "workflow_1"))

	e.PublishEvent(EventTaskStatusUpdate, "workflow_1", map[string]any{"task_id": "t1"})

	got := drain(inRoom)
	require.Len(t, got, 1)
	assert.Equal(t, EventTaskStatusUpdate, got[0].Type)
	assert.Equal(t, "workflow_1", got[0].Room)
	assert.NotEmpty(t, got[0].ID)
	assert.EqualValues(t, 1, got[0].Seq)

	assert.Empty(t, drain(outside), "room events must not leak to non-members")
}

func TestEngineBroadcastReachesEveryone(t *testing.T) {
	e := NewEngine(10, zaptest.NewLogger(t))

	a := e.Registry().Register("a", 8)
	b := e.Registry().Register("b", 8)

	e.PublishEvent(EventSystemAlert, "", map[string]any{"message": "hello"})

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestEngineSlowConsumerDropsOldest(t *testing.T) {
	e := NewEngine(100, zaptest.NewLogger(t))

	slow := e.Registry().Register("slow", 10)
	require.True(t, e.Registry().JoinRoom(slow.ID, "workflow_1"))

	for i := 0; i < 25; i++ {
		e.PublishEvent(EventWorkflowProgress, "workflow_1", map[string]any{"n": i})
	}

	got := drain(slow)
	require.Len(t, got, 10, "queue is bounded at the connection buffer")
	assert.EqualValues(t, 16, got[0].Seq, "oldest events are evicted first")
	assert.EqualValues(t, 25, got[9].Seq)
	assert.EqualValues(t, 15, slow.Dropped())
}

func TestEngineReplayAfterJoin(t *testing.T) {
	e := NewEngine(100, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		e.PublishEvent(EventTaskStatusUpdate, "workflow_9", map[string]any{"n": i})
	}
	e.PublishEvent(EventSystemAlert, "", map[string]any{"message": "broadcast"})
	e.PublishEvent(EventTaskStatusUpdate, "workflow_other", map[string]any{})

	// A client joining later sees the room history plus broadcasts, not
	// other rooms' events.
	history := e.Replay("workflow_9")
	require.Len(t, history, 6)
	for _, evt := range history {
		assert.True(t, evt.Room == "workflow_9" || evt.Room == "")
	}
}

func TestEngineReplayBoundedByCapacity(t *testing.T) {
	e := NewEngine(3, zaptest.NewLogger(t))

	for i := 0; i < 7; i++ {
		e.PublishEvent(EventWorkflowProgress, "workflow_1", map[string]any{"n": i})
	}
	history := e.Replay("workflow_1")
	require.Len(t, history, 3)
	assert.EqualValues(t, 5, history[0].Seq)
	assert.EqualValues(t, 7, history[2].Seq)

	since := e.ReplaySince(6)
	require.Len(t, since, 1)
	assert.EqualValues(t, 7, since[0].Seq)
}

func TestEngineStats(t *testing.T) {
	e := NewEngine(10, zaptest.NewLogger(t))

	c := e.Registry().Register("c", 2)
	require.True(t, e.Registry().JoinRoom(c.ID, "workflow_1"))

	for i := 0; i < 4; i++ {
		e.PublishEvent(EventWorkflowProgress, "workflow_1", map[string]any{"n": i})
	}

	stats := e.Stats()
	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, 1, stats.Rooms["workflow_1"])
	// Enqueueing evicts the oldest on overflow, so delivery still counts as
	// sent; the eviction shows up on the connection's drop counter.
	assert.EqualValues(t, 4, stats.EventsSent)
	assert.EqualValues(t, 0, stats.EventsFailed)
	assert.InDelta(t, 100.0, stats.SuccessRate, 0.01)
	assert.EqualValues(t, 2, c.Dropped())
	assert.Equal(t, 4, stats.HistorySize)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
}

func TestEngineShutdownDisconnectsAll(t *testing.T) {
	e := NewEngine(10, zaptest.NewLogger(t))
	a := e.Registry().Register("a", 2)
	b := e.Registry().Register("b", 2)

	e.Shutdown()
	assert.False(t, a.Alive())
	assert.False(t, b.Alive())
	assert.Equal(t, 0, e.Registry().Count())
}
