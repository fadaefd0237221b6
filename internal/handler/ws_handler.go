package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/freeeve/warbands/internal/auth"
	"github.com/freeeve/warbands/internal/logger"
	"github.com/freeeve/warbands/internal/service"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 64 * 1024        // restore snapshots travel over HTTP, not here
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware
	},
}

// RateLimit bounds inbound messages per connection.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub    *Hub
	jwtMgr *auth.JWTManager
	svc    *service.TurnService
	limit  RateLimit
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, svc *service.TurnService, limit RateLimit) *WSHandler {
	if limit.PerSecond <= 0 {
		limit.PerSecond = 20
	}
	if limit.Burst <= 0 {
		limit.Burst = 40
	}
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, svc: svc, limit: limit}
}

// ServeWS handles GET /api/v1/ws and upgrades to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := h.newConn(conn, claims.UserID)
	h.hub.Register(client)
	h.hub.SendTo(client.id, WSEvent{Type: "connected", Data: map[string]string{"conn_id": client.id}})

	go h.writePump(client)
	go h.readPump(client)

	client.log.Info().Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

func (h *WSHandler) newConn(conn *websocket.Conn, userID string) *WSConn {
	id := uuid.NewString()
	return &WSConn{
		id:      id,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBufSize),
		limiter: rate.NewLimiter(rate.Limit(h.limit.PerSecond), h.limit.Burst),
		log:     logger.ForConnection(id, userID),
	}
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(c *WSConn) {
	ctx := context.Background()
	defer func() {
		for _, code := range h.hub.Unregister(c) {
			h.svc.Disconnect(ctx, code, c.id)
		}
		c.conn.Close()
		c.log.Info().Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("WebSocket unexpected close")
			}
			break
		}
		if !c.limiter.Allow() {
			h.hub.SendTo(c.id, WSEvent{Type: service.EventError, Data: "rate limit exceeded"})
			continue
		}
		h.handleMessage(ctx, c, message)
	}
}

// writePump owns all writes to the socket. Each event goes out as its own
// text frame so clients can decode frames independently.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel on unregister.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("WebSocket write failed")
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
