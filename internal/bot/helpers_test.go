package bot

import "github.com/freeeve/warbands/pkg/conquest"

const (
	red   conquest.Faction = "red"
	blue  conquest.Faction = "blue"
	green conquest.Faction = "green"
)

// world returns a four-settlement map with one-stage roads:
//
//	ash (red) -- bel (blue), ash -- cor (green), bel -- cor, cor -- dun (neutral)
func world(armies ...conquest.Army) *conquest.GameState {
	return &conquest.GameState{
		Turn: 1,
		Settlements: map[string]conquest.Settlement{
			"ash": {ID: "ash", Controller: red, Garrison: 3, Defense: 20, Tax: 10},
			"bel": {ID: "bel", Controller: blue, Garrison: 3, Defense: 20, Tax: 10},
			"cor": {ID: "cor", Controller: green, Garrison: 5, Defense: 50, Tax: 15},
			"dun": {ID: "dun", Tax: 5},
		},
		Roads: map[string]conquest.Road{
			"ash-bel": {ID: "ash-bel", From: "ash", To: "bel", Stages: []conquest.Stage{{}}},
			"ash-cor": {ID: "ash-cor", From: "ash", To: "cor", Stages: []conquest.Stage{{}}},
			"bel-cor": {ID: "bel-cor", From: "bel", To: "cor", Stages: []conquest.Stage{{}}},
			"cor-dun": {ID: "cor-dun", From: "cor", To: "dun", Stages: []conquest.Stage{{}}},
		},
		Armies: armies,
		Factions: map[conquest.Faction]conquest.FactionState{
			red:   {Gold: 100},
			blue:  {Gold: 100},
			green: {Gold: 100},
		},
	}
}

func army(id string, f conquest.Faction, strength int, pos conquest.Position) conquest.Army {
	return conquest.Army{ID: id, Faction: f, Strength: strength, Position: pos, Posture: conquest.PostureAggressive, LastSafe: pos}
}

func withGarrisons(gs *conquest.GameState, garrison int, ids ...string) *conquest.GameState {
	for _, id := range ids {
		s := gs.Settlements[id]
		s.Garrison = garrison
		gs.Settlements[id] = s
	}
	return gs
}
