package conquest

import "fmt"

// ActionType is a kind of player action taken during a faction's own turn.
type ActionType string

const (
	ActionMove       ActionType = "move"
	ActionSetPosture ActionType = "set_posture"
)

// Action is a single player command.
type Action struct {
	Type    ActionType `json:"type"`
	Army    string     `json:"army"`
	To      Position   `json:"to"`
	Posture Posture    `json:"posture,omitempty"`
}

// ApplyAction validates and applies an action for faction f.
func ApplyAction(gs *GameState, f Faction, act Action) error {
	switch act.Type {
	case ActionMove:
		return Move(gs, f, act.Army, act.To)
	case ActionSetPosture:
		return SetPosture(gs, f, act.Army, act.Posture)
	}
	return fmt.Errorf("%w: unknown action %q", ErrInvalidAction, act.Type)
}

// Move steps an army to an adjacent position. Each army moves at most once
// per turn.
func Move(gs *GameState, f Faction, armyID string, to Position) error {
	a, err := ownArmy(gs, f, armyID)
	if err != nil {
		return err
	}
	if a.Arrived {
		return fmt.Errorf("%w: army %s already moved this turn", ErrInvalidAction, armyID)
	}
	if !gs.Valid(to) {
		return fmt.Errorf("%w: unknown position %s", ErrInvalidAction, to)
	}
	if !gs.Adjacent(a.Position, to) {
		return fmt.Errorf("%w: %s is not adjacent to %s", ErrInvalidAction, to, a.Position)
	}
	from := a.Position
	wasSieging := a.Posture == PostureSiege
	a.LastSafe = from
	a.Position = to
	a.Arrived = true
	if wasSieging {
		a.Posture = PostureAggressive
		liftAbandonedSiege(gs, from)
	}
	return nil
}

// SetPosture switches an army between aggressive and garrison. Siege posture
// is only entered through the SIEGE tactic.
func SetPosture(gs *GameState, f Faction, armyID string, p Posture) error {
	a, err := ownArmy(gs, f, armyID)
	if err != nil {
		return err
	}
	if p != PostureAggressive && p != PostureGarrison {
		return fmt.Errorf("%w: posture %q", ErrInvalidAction, p)
	}
	wasSieging := a.Posture == PostureSiege
	a.Posture = p
	if wasSieging {
		liftAbandonedSiege(gs, a.Position)
	}
	return nil
}

// BeginTurn starts the next faction's turn. Arrival flags only describe
// the turn that just ended, so they are cleared for every army: a force
// that moved last turn is holding its ground now.
func BeginTurn(gs *GameState) {
	for i := range gs.Armies {
		gs.Armies[i].Arrived = false
	}
}

func ownArmy(gs *GameState, f Faction, id string) (*Army, error) {
	a := gs.Army(id)
	if a == nil {
		return nil, fmt.Errorf("%w: unknown army %s", ErrInvalidAction, id)
	}
	if a.Faction != f {
		return nil, fmt.Errorf("%w: %s", ErrNotYourArmy, id)
	}
	return a, nil
}

// liftAbandonedSiege clears the siege at p once the besieger has no siege
// army left there.
func liftAbandonedSiege(gs *GameState, p Position) {
	if !p.IsSettlement() {
		return
	}
	s, ok := gs.Settlements[p.Settlement]
	if !ok || s.BesiegedBy == Neutral {
		return
	}
	for _, a := range gs.ArmiesAt(p) {
		if a.Faction == s.BesiegedBy && a.Posture == PostureSiege {
			return
		}
	}
	s.BesiegedBy = Neutral
	s.SiegeRounds = 0
	gs.Settlements[p.Settlement] = s
}
