package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helixmesh/orchestrator/internal/metrics"
)

// ConnectionRegistry tracks live connections and their room memberships.
// All mutation happens under one mutex with short critical sections; reads
// for broadcast take membership snapshots so delivery never observes a
// partially updated room.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	rooms map[string]map[string]*Connection // room -> connection id -> conn
	joined map[string]map[string]struct{}   // connection id -> rooms

	logger *zap.Logger
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry(logger *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:  make(map[string]*Connection),
		rooms:  make(map[string]map[string]*Connection),
		joined: make(map[string]map[string]struct{}),
		logger: logger,
	}
}

// Register adds a new live connection and returns it.
func (r *ConnectionRegistry) Register(identifier string, buffer int) *Connection {
	conn := newConnection(uuid.NewString(), identifier, buffer)
	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.joined[conn.ID] = make(map[string]struct{})
	total := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(total))
	r.logger.Info("Connection registered",
		zap.String("connection_id", conn.ID),
		zap.String("identifier", identifier),
	)
	return conn
}

// Get returns the connection with the given id, or nil.
func (r *ConnectionRegistry) Get(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// JoinRoom adds the connection to a room, creating the room on first join.
// Re-joining is idempotent.
func (r *ConnectionRegistry) JoinRoom(connectionID, room string) bool {
	r.mu.Lock()
	conn, ok := r.conns[connectionID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Connection)
		r.rooms[room] = members
	}
	members[connectionID] = conn
	r.joined[connectionID][room] = struct{}{}
	roomCount := len(r.rooms)
	r.mu.Unlock()

	metrics.RoomsActive.Set(float64(roomCount))
	r.logger.Debug("Connection joined room",
		zap.String("connection_id", connectionID),
		zap.String("room", room),
	)
	return true
}

// LeaveRoom removes the connection from a room; the room is evicted when its
// last member leaves.
func (r *ConnectionRegistry) LeaveRoom(connectionID, room string) {
	r.mu.Lock()
	r.leaveLocked(connectionID, room)
	roomCount := len(r.rooms)
	r.mu.Unlock()
	metrics.RoomsActive.Set(float64(roomCount))
}

func (r *ConnectionRegistry) leaveLocked(connectionID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[connectionID]; ok {
		delete(rooms, room)
	}
}

// Disconnect removes the connection from every room and marks it dead.
// Safe to call more than once.
func (r *ConnectionRegistry) Disconnect(connectionID string) {
	r.mu.Lock()
	conn, ok := r.conns[connectionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	for room := range r.joined[connectionID] {
		r.leaveLocked(connectionID, room)
	}
	delete(r.joined, connectionID)
	delete(r.conns, connectionID)
	total := len(r.conns)
	roomCount := len(r.rooms)
	r.mu.Unlock()

	conn.close()
	metrics.ConnectionsActive.Set(float64(total))
	metrics.RoomsActive.Set(float64(roomCount))
	r.logger.Info("Connection closed", zap.String("connection_id", connectionID))
}

// RoomSnapshot returns the current members of a room.
func (r *ConnectionRegistry) RoomSnapshot(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]*Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Snapshot returns every live connection.
func (r *ConnectionRegistry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RoomStats returns member counts per room.
func (r *ConnectionRegistry) RoomStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.rooms))
	for room, members := range r.rooms {
		out[room] = len(members)
	}
	return out
}
