package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/helixmesh/orchestrator/internal/metrics"
	"github.com/helixmesh/orchestrator/internal/ratecontrol"
	"github.com/helixmesh/orchestrator/internal/realtime"
)

const (
	wsReadLimit    = 4096
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Dev-friendly, secure via proxy in prod
}

// WSHandler serves the real-time WebSocket channel.
type WSHandler struct {
	engine  *realtime.Engine
	limiter *ratecontrol.Limiter
	buffer  int
	logger  *zap.Logger
}

// NewWSHandler creates a handler. buffer is the per-connection outbound
// queue size; limiter bounds inbound client messages per connection.
func NewWSHandler(engine *realtime.Engine, limiter *ratecontrol.Limiter, buffer int, logger *zap.Logger) *WSHandler {
	if buffer <= 0 {
		buffer = 64
	}
	return &WSHandler{engine: engine, limiter: limiter, buffer: buffer, logger: logger}
}

// RegisterRoutes registers the /ws endpoint.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleWS)
}

// clientMessage is the inbound frame format. The identifier attribution and
// room membership are the only state it can mutate.
type clientMessage struct {
	Type   string `json:"type"`
	Room   string `json:"room,omitempty"`
	Replay bool   `json:"replay,omitempty"`
}

func (h *WSHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	conn := h.engine.Registry().Register(identifier, h.buffer)
	defer h.engine.Registry().Disconnect(conn.ID)
	if h.limiter != nil {
		defer h.limiter.Forget(conn.ID)
	}

	h.logger.Info("WebSocket connected",
		zap.String("connection_id", conn.ID),
		zap.String("identifier", identifier),
	)

	conn.Send(realtime.NewEvent(realtime.EventSystemAlert, "", map[string]any{
		"message":       "connection established",
		"connection_id": conn.ID,
	}))

	ws.SetReadLimit(wsReadLimit)
	ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	// Reader pump. Terminates the writer pump via Disconnect on exit.
	go func() {
		defer h.engine.Registry().Disconnect(conn.ID)
		for {
			_, payload, err := ws.ReadMessage()
			if err != nil {
				return
			}
			h.handleClientMessage(conn, payload)
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	// Writer pump: the only goroutine writing to ws.
	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.Done():
			return
		case evt := <-conn.Out():
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) handleClientMessage(conn *realtime.Connection, payload []byte) {
	var msg clientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		conn.Send(realtime.NewEvent(realtime.EventSystemAlert, "", map[string]any{
			"error": "invalid message",
		}))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(conn.ID) {
		conn.Send(realtime.NewEvent(realtime.EventSystemAlert, "", map[string]any{
			"error": "rate limit exceeded",
		}))
		return
	}
	metrics.ClientMessages.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case "join_room":
		if msg.Room == "" {
			conn.Send(realtime.NewEvent(realtime.EventSystemAlert, "", map[string]any{
				"error": "room is required",
			}))
			return
		}
		h.engine.Registry().JoinRoom(conn.ID, msg.Room)
		conn.Send(realtime.NewEvent(realtime.EventSystemAlert, msg.Room, map[string]any{
			"message": "joined room",
			"room":    msg.Room,
		}))
		if msg.Replay {
			for _, evt := range h.engine.Replay(msg.Room) {
				conn.Send(evt)
			}
		}
	case "leave_room":
		if msg.Room == "" {
			return
		}
		h.engine.Registry().LeaveRoom(conn.ID, msg.Room)
		conn.Send(realtime.NewEvent(realtime.EventSystemAlert, msg.Room, map[string]any{
			"message": "left room",
			"room":    msg.Room,
		}))
	case "get_stats":
		stats := h.engine.Stats()
		conn.Send(realtime.NewEvent(realtime.EventPerformanceMetrics, "", map[string]any{
			"connections":    stats.Connections,
			"rooms":          stats.Rooms,
			"events_sent":    stats.EventsSent,
			"events_failed":  stats.EventsFailed,
			"success_rate":   stats.SuccessRate,
			"uptime_seconds": stats.UptimeSeconds,
			"history_size":   stats.HistorySize,
		}))
	case "ping":
		conn.Send(realtime.NewEvent(realtime.EventSystemAlert, "", map[string]any{
			"message": "pong",
		}))
	default:
		conn.Send(realtime.NewEvent(realtime.EventSystemAlert, "", map[string]any{
			"error": "unknown message type",
			"type":  msg.Type,
		}))
	}
}
