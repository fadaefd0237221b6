package handler

// BroadcastSessionEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastSessionEvent(code string, eventType string, data any) {
	h.BroadcastToSession(code, WSEvent{
		Type:    eventType,
		Session: code,
		Data:    data,
	})
}

// DetachFromSession implements service.Broadcaster by dropping the
// connection's subscription to the session.
func (h *Hub) DetachFromSession(code string, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.sessions[code]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.sessions, code)
		}
	}
}

// SendToConnection implements service.Broadcaster using the WebSocket hub.
func (h *Hub) SendToConnection(connID string, eventType string, data any) {
	h.SendTo(connID, WSEvent{
		Type: eventType,
		Data: data,
	})
}
