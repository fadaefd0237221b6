package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/freeeve/warbands/internal/service"
	"github.com/freeeve/warbands/pkg/conquest"
)

// ErrUnknownMessage is returned for inbound messages with an unrecognized type.
var ErrUnknownMessage = errors.New("unknown message type")

// Inbound message types.
const (
	MsgJoin         = "join"
	MsgPlayerAction = "player_action"
	MsgEndTurn      = "end_turn"
	MsgCombatChoice = "combat_choice"
	MsgPing         = "ping"
)

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Session string          `json:"session"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type joinData struct {
	Faction conquest.Faction `json:"faction,omitempty"`
}

type combatChoiceData struct {
	Tactic    string `json:"tactic"`
	SiegeCost int    `json:"siege_cost,omitempty"`
}

// handleMessage decodes and dispatches one inbound message. Failures are
// reported to the sender as an error event; nothing else sees them.
func (h *WSHandler) handleMessage(ctx context.Context, c *WSConn, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(c, service.EventError, "malformed message")
		return
	}
	log := c.log.With().Str("type", msg.Type).Str("session", msg.Session).Logger()

	if err := h.dispatch(ctx, c, msg); err != nil {
		log.Info().Err(err).Msg("Message rejected")
		h.reply(c, service.EventError, userMessage(err))
		return
	}
	log.Debug().Msg("Message handled")
}

func (h *WSHandler) dispatch(ctx context.Context, c *WSConn, msg ClientMessage) error {
	switch msg.Type {
	case MsgPing:
		h.reply(c, EventPong, nil)
		return nil
	case MsgJoin:
		var data joinData
		if err := decodeData(msg.Data, &data); err != nil {
			return err
		}
		// Subscribe first so session events produced by the join reach us.
		h.hub.Subscribe(c, msg.Session)
		if _, err := h.svc.Join(ctx, msg.Session, c.id, c.userID, data.Faction); err != nil {
			h.hub.Unsubscribe(c, msg.Session)
			return err
		}
		return nil
	case MsgPlayerAction:
		var act conquest.Action
		if err := decodeData(msg.Data, &act); err != nil {
			return err
		}
		return h.svc.PlayerAction(ctx, msg.Session, c.id, act)
	case MsgEndTurn:
		return h.svc.EndTurn(ctx, msg.Session, c.id)
	case MsgCombatChoice:
		var data combatChoiceData
		if err := decodeData(msg.Data, &data); err != nil {
			return err
		}
		return h.svc.CombatChoice(ctx, msg.Session, c.id, data.Tactic, data.SiegeCost)
	}
	return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
}

func (h *WSHandler) reply(c *WSConn, eventType string, data any) {
	h.hub.SendTo(c.id, WSEvent{Type: eventType, Data: data})
}

var errMalformedData = errors.New("malformed message data")

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedData, err)
	}
	return nil
}
