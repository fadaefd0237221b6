package service

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	// BroadcastSessionEvent sends an event to every connection in a session.
	BroadcastSessionEvent(code string, eventType string, data any)
	// SendToConnection sends an event to a single connection.
	SendToConnection(connID string, eventType string, data any)
	// DetachFromSession stops session-wide events reaching a connection.
	DetachFromSession(code string, connID string)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastSessionEvent(string, string, any) {}
func (NoopBroadcaster) SendToConnection(string, string, any)      {}
func (NoopBroadcaster) DetachFromSession(string, string)          {}

// Outbound event names.
const (
	EventStateUpdate           = "state_update"
	EventTurnChanged           = "turn_changed"
	EventCombatChoiceRequested = "combat_choice_requested"
	EventCombatResolved        = "combat_resolved"
	EventGameEnded             = "game_ended"
	EventError                 = "error"
)

// outbound is an event held back until the request that produced it
// commits. A failed request discards its outbox.
type outbound struct {
	connID string // empty means every connection in the session
	event  string
	data   any
}
