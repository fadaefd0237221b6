package conquest

import "sort"

// Faction identifies a playable side.
type Faction string

// Neutral controls unclaimed settlements and stages.
const Neutral Faction = ""

// Posture describes how an army behaves when it shares a position with enemies.
type Posture string

const (
	PostureAggressive Posture = "aggressive"
	PostureGarrison   Posture = "garrison"
	PostureSiege      Posture = "siege"
)

// Army is a single force on the map.
type Army struct {
	ID       string   `json:"id" yaml:"id"`
	Faction  Faction  `json:"faction" yaml:"faction"`
	Strength int      `json:"strength" yaml:"strength"`
	Position Position `json:"position" yaml:"position"`
	Posture  Posture  `json:"posture" yaml:"posture"`
	Arrived  bool     `json:"arrived,omitempty" yaml:"arrived,omitempty"` // moved during the current turn
	LastSafe Position `json:"last_safe" yaml:"last_safe"`
}

// Aggressive reports whether the army can start a fight.
func (a Army) Aggressive() bool {
	return a.Posture == "" || a.Posture == PostureAggressive
}

// Settlement is a city or fort that can be controlled and garrisoned.
type Settlement struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Controller  Faction `json:"controller" yaml:"controller"`
	Garrison    int     `json:"garrison" yaml:"garrison"`
	Defense     int     `json:"defense" yaml:"defense"` // percent bonus for the controller
	Tax         int     `json:"tax" yaml:"tax"`
	BesiegedBy  Faction `json:"besieged_by,omitempty" yaml:"besieged_by,omitempty"`
	SiegeRounds int     `json:"siege_rounds,omitempty" yaml:"siege_rounds,omitempty"`
}

// Stage is one segment of a road.
type Stage struct {
	Controller Faction `json:"controller" yaml:"controller"`
	Defense    int     `json:"defense" yaml:"defense"`
}

// Road connects two settlements through an ordered list of stages.
type Road struct {
	ID     string  `json:"id" yaml:"id"`
	From   string  `json:"from" yaml:"from"`
	To     string  `json:"to" yaml:"to"`
	Stages []Stage `json:"stages" yaml:"stages"`
}

// FactionState holds per-faction resources.
type FactionState struct {
	Gold       int  `json:"gold" yaml:"gold"`
	Eliminated bool `json:"eliminated,omitempty" yaml:"eliminated,omitempty"`
}

// GameState is a complete snapshot of the world.
type GameState struct {
	Turn        int                      `json:"turn" yaml:"turn"`
	Settlements map[string]Settlement    `json:"settlements" yaml:"settlements"`
	Roads       map[string]Road          `json:"roads" yaml:"roads"`
	Armies      []Army                   `json:"armies" yaml:"armies"`
	Factions    map[Faction]FactionState `json:"factions" yaml:"factions"`
}

// Clone returns a deep copy. Collaborators receive clones so a failed call
// never leaves a half-applied state behind.
func (gs *GameState) Clone() *GameState {
	c := &GameState{Turn: gs.Turn}
	if gs.Settlements != nil {
		c.Settlements = make(map[string]Settlement, len(gs.Settlements))
		for k, v := range gs.Settlements {
			c.Settlements[k] = v
		}
	}
	if gs.Roads != nil {
		c.Roads = make(map[string]Road, len(gs.Roads))
		for k, v := range gs.Roads {
			stages := make([]Stage, len(v.Stages))
			copy(stages, v.Stages)
			v.Stages = stages
			c.Roads[k] = v
		}
	}
	if gs.Armies != nil {
		c.Armies = make([]Army, len(gs.Armies))
		copy(c.Armies, gs.Armies)
	}
	if gs.Factions != nil {
		c.Factions = make(map[Faction]FactionState, len(gs.Factions))
		for k, v := range gs.Factions {
			c.Factions[k] = v
		}
	}
	return c
}

// Army returns the army with the given id, or nil.
func (gs *GameState) Army(id string) *Army {
	for i := range gs.Armies {
		if gs.Armies[i].ID == id {
			return &gs.Armies[i]
		}
	}
	return nil
}

// ArmiesAt returns copies of all armies at a position, ordered by id.
func (gs *GameState) ArmiesAt(p Position) []Army {
	var out []Army
	for _, a := range gs.Armies {
		if a.Position == p {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ArmiesOf returns all armies of a faction.
func (gs *GameState) ArmiesOf(f Faction) []Army {
	var out []Army
	for _, a := range gs.Armies {
		if a.Faction == f {
			out = append(out, a)
		}
	}
	return out
}

// SettlementCount returns how many settlements a faction controls.
func (gs *GameState) SettlementCount(f Faction) int {
	n := 0
	for _, s := range gs.Settlements {
		if s.Controller == f {
			n++
		}
	}
	return n
}

// FactionIsAlive reports whether the faction still holds a settlement or an army.
func (gs *GameState) FactionIsAlive(f Faction) bool {
	if gs.SettlementCount(f) > 0 {
		return true
	}
	for _, a := range gs.Armies {
		if a.Faction == f {
			return true
		}
	}
	return false
}

// AliveFactions returns the factions still in the game, ordered by id.
func (gs *GameState) AliveFactions() []Faction {
	set := make(map[Faction]bool)
	for f := range gs.Factions {
		if gs.FactionIsAlive(f) {
			set[f] = true
		}
	}
	return sortedFactions(set)
}

// Winner returns the sole surviving faction, if exactly one remains.
func (gs *GameState) Winner() (Faction, bool) {
	alive := gs.AliveFactions()
	if len(alive) == 1 {
		return alive[0], true
	}
	return Neutral, false
}

// removeEmptyArmies drops armies whose strength reached zero.
func (gs *GameState) removeEmptyArmies() {
	kept := gs.Armies[:0]
	for _, a := range gs.Armies {
		if a.Strength > 0 {
			kept = append(kept, a)
		}
	}
	gs.Armies = kept
}

// sortedFactions returns the keys of a faction set in ascending order.
func sortedFactions(set map[Faction]bool) []Faction {
	out := make([]Faction, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
