package handler

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// EventPong answers a client ping.
const EventPong = "pong"

// WSEvent is the envelope for all outbound WebSocket messages.
type WSEvent struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Data    any    `json:"data"`
}

// WSConn wraps a WebSocket connection with its user and inbound limiter.
type WSConn struct {
	id      string
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	limiter *rate.Limiter
	log     zerolog.Logger
}

// ID returns the connection id.
func (c *WSConn) ID() string { return c.id }

// Hub tracks live connections by id and which sessions each one joined.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*WSConn
	sessions    map[string]map[string]*WSConn // session code -> conn id -> conn
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*WSConn),
		sessions:    make(map[string]map[string]*WSConn),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.id] = c
}

// Unregister removes a connection and closes its send channel. It returns
// the sessions the connection had joined, sorted.
func (h *Hub) Unregister(c *WSConn) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[c.id]; !ok {
		return nil
	}
	delete(h.connections, c.id)
	var joined []string
	for code, conns := range h.sessions {
		if _, ok := conns[c.id]; !ok {
			continue
		}
		joined = append(joined, code)
		delete(conns, c.id)
		if len(conns) == 0 {
			delete(h.sessions, code)
		}
	}
	close(c.send)
	sort.Strings(joined)
	return joined
}

// Subscribe adds a connection to a session channel.
func (h *Hub) Subscribe(c *WSConn, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[code] == nil {
		h.sessions[code] = make(map[string]*WSConn)
	}
	h.sessions[code][c.id] = c
}

// Unsubscribe removes a connection from a session channel.
func (h *Hub) Unsubscribe(c *WSConn, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.sessions[code]; ok {
		delete(conns, c.id)
		if len(conns) == 0 {
			delete(h.sessions, code)
		}
	}
}

// BroadcastToSession sends an event to every connection that joined a session.
func (h *Hub) BroadcastToSession(code string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("session", code).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.sessions[code] {
		c.enqueue(data)
	}
}

// SendTo sends an event to one connection. Unknown ids are ignored; the
// connection may have gone away since the event was produced.
func (h *Hub) SendTo(connID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("connId", connID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if c, ok := h.connections[connID]; ok {
		c.enqueue(data)
	}
}

func (c *WSConn) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.log.Warn().Msg("Dropping WebSocket message, buffer full")
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionSubscriberCount returns the number of connections that joined a session.
func (h *Hub) SessionSubscriberCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[code])
}
