package conquest

import (
	"fmt"
	"sort"
	"strings"
)

// Tactic is a participant's choice for resolving a battle.
type Tactic string

const (
	TacticUnset       Tactic = ""
	TacticFight       Tactic = "fight"
	TacticRetreat     Tactic = "retreat"
	TacticRetreatCity Tactic = "retreat_city"
	TacticSiege       Tactic = "siege"
)

// Role is a faction's side in a battle.
type Role string

const (
	RoleAttacker Role = "attacker"
	RoleDefender Role = "defender"
)

// DefaultSiegeCost is charged when a siege is chosen without an explicit cost.
const DefaultSiegeCost = 50

// ParseTactic converts a client string into a Tactic.
func ParseTactic(s string) (Tactic, error) {
	switch t := Tactic(strings.ToLower(strings.TrimSpace(s))); t {
	case TacticFight, TacticRetreat, TacticRetreatCity, TacticSiege:
		return t, nil
	}
	return TacticUnset, fmt.Errorf("%w: %q", ErrInvalidTactic, s)
}

// AllowedFor reports whether a role may choose the tactic at all.
func (t Tactic) AllowedFor(r Role) bool {
	switch r {
	case RoleAttacker:
		return t == TacticFight || t == TacticRetreat || t == TacticSiege
	case RoleDefender:
		return t == TacticFight || t == TacticRetreatCity
	}
	return false
}

// FinalTactic combines both sides' choices:
// retreat_city (defender) > retreat (attacker) > siege (attacker) > fight.
func FinalTactic(attacker, defender Tactic) Tactic {
	switch {
	case defender == TacticRetreatCity:
		return TacticRetreatCity
	case attacker == TacticRetreat:
		return TacticRetreat
	case attacker == TacticSiege:
		return TacticSiege
	}
	return TacticFight
}

// Battle is a detected conflict between two factions at one position.
type Battle struct {
	Attacker         Faction  `json:"attacker"`
	Defender         Faction  `json:"defender"`
	AttackerArmies   []string `json:"attacker_armies"`
	DefenderArmies   []string `json:"defender_armies"`
	DefenderGarrison int      `json:"defender_garrison"`
	Position         Position `json:"position"`
	DefenseBonus     int      `json:"defense_bonus"`
}

// Key identifies a battle by its position and sides.
func (b Battle) Key() string {
	return fmt.Sprintf("%s|%s>%s", b.Position, b.Attacker, b.Defender)
}

// Involves reports whether f is one of the two sides.
func (b Battle) Involves(f Faction) bool {
	return b.Attacker == f || b.Defender == f
}

// CanRetreatToCity reports whether the defender has a settlement to fall back into.
func (b Battle) CanRetreatToCity(gs *GameState) bool {
	_, ok := gs.parentSettlement(b.Position, b.Defender)
	return ok
}

// ValidateChoice checks that a role may pick the tactic in this battle.
func (b Battle) ValidateChoice(gs *GameState, r Role, t Tactic, siegeCost int) error {
	if !t.AllowedFor(r) {
		return fmt.Errorf("%w: %s cannot choose %s", ErrInvalidTactic, r, t)
	}
	switch t {
	case TacticRetreatCity:
		if !b.CanRetreatToCity(gs) {
			return fmt.Errorf("%w: no settlement to retreat into", ErrInvalidTactic)
		}
	case TacticSiege:
		if !b.Position.IsSettlement() {
			return fmt.Errorf("%w: siege requires a settlement", ErrInvalidTactic)
		}
		if siegeCost <= 0 {
			siegeCost = DefaultSiegeCost
		}
		if gs.Factions[b.Attacker].Gold < siegeCost {
			return fmt.Errorf("%w: siege costs %d", ErrInsufficientGold, siegeCost)
		}
	case TacticRetreat:
		for _, id := range b.AttackerArmies {
			if a := gs.Army(id); a != nil && a.LastSafe.IsZero() {
				return fmt.Errorf("%w: army %s has nowhere to retreat", ErrInvalidTactic, id)
			}
		}
	}
	return nil
}

func sortedSettlementIDs(m map[string]Settlement) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedRoadIDs(m map[string]Road) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
