package service

import (
	"sort"

	"github.com/freeeve/warbands/pkg/conquest"
)

// PhaseResolving is shown to everyone while a battle is being decided.
const PhaseResolving = "resolving"

// PublicView is the state every connection may see. It never carries a
// battle.
type PublicView struct {
	Code          string              `json:"code"`
	Scenario      string              `json:"scenario"`
	State         *conquest.GameState `json:"state"`
	TurnOrder     []conquest.Faction  `json:"turn_order"`
	ActiveFaction conquest.Faction    `json:"active_faction"`
	TurnNumber    int                 `json:"turn_number"`
	Phase         string              `json:"phase"`
	AIFaction     conquest.Faction    `json:"ai_faction,omitempty"`
	Connected     []conquest.Faction  `json:"connected"`
	Finished      bool                `json:"finished"`
	Winner        conquest.Faction    `json:"winner,omitempty"`
	CurrentBattle *BattleView         `json:"current_battle,omitempty"`
}

// BattleView is the pending battle as shown to one of its two parties.
type BattleView struct {
	ID               string          `json:"id"`
	Battle           conquest.Battle `json:"battle"`
	Role             conquest.Role   `json:"role"`
	Awaiting         conquest.Role   `json:"awaiting,omitempty"`
	CanRetreatToCity bool            `json:"can_retreat_to_city"`
	DefaultSiegeCost int             `json:"default_siege_cost"`
}

// TurnChanged is the payload of turn_changed.
type TurnChanged struct {
	Faction    conquest.Faction `json:"faction"`
	TurnNumber int              `json:"turn_number"`
}

// GameEnded is the payload of game_ended.
type GameEnded struct {
	Winner conquest.Faction `json:"winner"`
}

// publicView builds the sanitized view. The state is cloned so the caller
// may serialize it after the session lock is released.
func publicView(s *Session) PublicView {
	v := PublicView{
		Code:          s.Code,
		Scenario:      s.Scenario,
		State:         s.State.Clone(),
		TurnOrder:     append([]conquest.Faction(nil), s.Order.Factions...),
		ActiveFaction: s.Order.Active(),
		TurnNumber:    s.Order.Number,
		Phase:         FlowName(s.Flow),
		AIFaction:     s.AIFaction,
		Finished:      s.Finished,
		Winner:        s.Winner,
	}
	if _, ok := s.Flow.(CombatBlocking); ok {
		v.Phase = PhaseResolving
	}
	if s.Finished {
		v.Phase = "finished"
	}
	for f := range s.live {
		v.Connected = append(v.Connected, f)
	}
	sortFactions(v.Connected)
	return v
}

// viewFor adds the pending battle for its attacker or defender connection.
func viewFor(s *Session, connID string, defaultSiegeCost int) PublicView {
	v := publicView(s)
	if s.Pending == nil {
		return v
	}
	role, ok := s.Pending.roleOf(connID)
	if !ok {
		return v
	}
	v.CurrentBattle = battleView(s.State, s.Pending, role, defaultSiegeCost)
	return v
}

func battleView(gs *conquest.GameState, p *PendingBattle, role conquest.Role, defaultSiegeCost int) *BattleView {
	awaiting, _ := p.awaiting()
	return &BattleView{
		ID:               p.ID,
		Battle:           p.Battle,
		Role:             role,
		Awaiting:         awaiting,
		CanRetreatToCity: p.Battle.CanRetreatToCity(gs),
		DefaultSiegeCost: defaultSiegeCost,
	}
}

func sortFactions(fs []conquest.Faction) {
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
}
