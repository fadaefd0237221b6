package model

import (
	"encoding/json"
	"time"
)

// Session statuses.
const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

// SessionRecord is the durable metadata of a game session.
type SessionRecord struct {
	Code         string          `json:"code"`
	Scenario     string          `json:"scenario"`
	Status       string          `json:"status"`
	Winner       string          `json:"winner,omitempty"`
	TurnNumber   int             `json:"turn_number"`
	ActiveIndex  int             `json:"active_index"`
	TurnOrder    []string        `json:"turn_order"`
	AIFaction    string          `json:"ai_faction,omitempty"`
	Seats        []Seat          `json:"seats"`
	InitialState json.RawMessage `json:"initial_state,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Seat binds a human player to a faction.
type Seat struct {
	Faction string `json:"faction"`
	UserID  string `json:"user_id"`
}

// BattleRecord is one resolved battle in a session's log.
type BattleRecord struct {
	ID          string          `json:"id"`
	SessionCode string          `json:"session_code"`
	TurnNumber  int             `json:"turn_number"`
	Attacker    string          `json:"attacker"`
	Defender    string          `json:"defender"`
	Position    string          `json:"position"`
	Tactic      string          `json:"tactic"`
	Outcome     string          `json:"outcome"`
	Detail      json.RawMessage `json:"detail"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}
