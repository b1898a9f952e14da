package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistryJoinLeaveRoomLifecycle(t *testing.T) {
	r := NewConnectionRegistry(zaptest.NewLogger(t))

	c := r.Register("user-1", 4)
	require.NotNil(t, r.Get(c.ID))

	// First join creates the room; re-join is idempotent.
	assert.True(t, r.JoinRoom(c.ID, "workflow_1"))
	assert.True(t, r.JoinRoom(c.ID, "workflow_1"))
	assert.Equal(t, map[string]int{"workflow_1": 1}, r.RoomStats())

	// Last member leaving evicts the room.
	r.LeaveRoom(c.ID, "workflow_1")
	assert.Empty(t, r.RoomStats())

	// Leaving a room never joined is a no-op.
	r.LeaveRoom(c.ID, "nothere")
}

func TestRegistryJoinUnknownConnection(t *testing.T) {
	r := NewConnectionRegistry(zaptest.NewLogger(t))
	assert.False(t, r.JoinRoom("missing", "workflow_1"))
	assert.Empty(t, r.RoomStats())
}

func TestRegistryDisconnectRemovesMemberships(t *testing.T) {
	r := NewConnectionRegistry(zaptest.NewLogger(t))

	a := r.Register("a", 4)
	b := r.Register("b", 4)
	require.True(t, r.JoinRoom(a.ID, "workflow_1"))
	require.True(t, r.JoinRoom(b.ID, "workflow_1"))
	require.True(t, r.JoinRoom(a.ID, "agents"))

	r.Disconnect(a.ID)
	assert.False(t, a.Alive())
	assert.Nil(t, r.Get(a.ID))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, map[string]int{"workflow_1": 1}, r.RoomStats(), "empty rooms are evicted with their last member")

	// Disconnect is idempotent.
	r.Disconnect(a.ID)
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewConnectionRegistry(zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := r.Register("churn", 2)
			r.JoinRoom(c.ID, "workflow_1")
			r.RoomSnapshot("workflow_1")
			r.Disconnect(c.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.RoomStats())
}

func TestConnectionSendAfterClose(t *testing.T) {
	r := NewConnectionRegistry(zaptest.NewLogger(t))
	c := r.Register("x", 2)
	r.Disconnect(c.ID)

	assert.False(t, c.Send(NewEvent(EventSystemAlert, "", nil)))
}
