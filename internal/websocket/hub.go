// Package websocket streams live bridge telemetry to dashboard
// clients: runtime counters, active sessions, and per-sensor affect
// state, pushed as JSON frames on a fixed cadence.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/internal/session"
	"github.com/yudurobotics/zing-bridge/internal/stats"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send pongs.
	maxMessageSize = 1024

	// How often telemetry frames are pushed to every client.
	defaultPushPeriod = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The admin API is already CORS-open; dashboards connect from
		// anywhere on the operator network.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionSource yields the live session table.
type SessionSource interface {
	Snapshot() []session.Info
}

// AffectSource yields the per-sensor affect states.
type AffectSource interface {
	States() []entities.AffectState
}

// Frame is one telemetry push.
type Frame struct {
	Type     string                 `json:"type"`
	SentAt   time.Time              `json:"sent_at"`
	Stats    stats.Snapshot         `json:"stats"`
	Sessions []session.Info         `json:"sessions"`
	Affect   []entities.AffectState `json:"affect"`
}

// Hub maintains the set of connected dashboard clients and pushes
// telemetry frames to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	stats    *stats.Stats
	sessions SessionSource
	affect   AffectSource
	period   time.Duration

	logger *zap.Logger
}

// NewHub creates a telemetry hub.
func NewHub(st *stats.Stats, sessions SessionSource, affect AffectSource, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stats:      st,
		sessions:   sessions,
		affect:     affect,
		period:     defaultPushPeriod,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("dashboard client connected",
				zap.String("remote", client.conn.RemoteAddr().String()))
			// New clients get a frame immediately instead of waiting a
			// full period.
			client.push(h.frame())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.broadcast(h.frame())
		}
	}
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) frame() []byte {
	payload, err := json.Marshal(Frame{
		Type:     "telemetry",
		SentAt:   time.Now().UTC(),
		Stats:    h.stats.Snapshot(),
		Sessions: h.sessions.Snapshot(),
		Affect:   h.affect.States(),
	})
	if err != nil {
		h.logger.Error("telemetry frame marshal failed", zap.Error(err))
		return nil
	}
	return payload
}

func (h *Hub) broadcast(payload []byte) {
	if payload == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.push(payload)
	}
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	logger *zap.Logger
}

// push enqueues a frame, dropping it if the client cannot keep up.
func (c *Client) push(payload []byte) {
	if payload == nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// HandleWebSocket handles websocket requests from the peer.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 16),
		logger: logger,
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump discards everything the peer sends; its job is noticing the
// connection going away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket error", zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
