package conquest

const (
	red   Faction = "red"
	blue  Faction = "blue"
	green Faction = "green"
)

// testWorld returns a small map:
//
//	ash (red) --[ash-bel: 2 stages]-- bel (blue, garrison 5) --[bel-cor: 1 stage]-- cor (neutral)
func testWorld(armies ...Army) *GameState {
	return &GameState{
		Turn: 1,
		Settlements: map[string]Settlement{
			"ash": {ID: "ash", Name: "Ashford", Controller: red, Defense: 20, Tax: 10},
			"bel": {ID: "bel", Name: "Belmont", Controller: blue, Garrison: 5, Defense: 50, Tax: 15},
			"cor": {ID: "cor", Name: "Corran", Controller: Neutral, Tax: 5},
		},
		Roads: map[string]Road{
			"ash-bel": {ID: "ash-bel", From: "ash", To: "bel", Stages: []Stage{{Controller: red}, {Controller: blue, Defense: 10}}},
			"bel-cor": {ID: "bel-cor", From: "bel", To: "cor", Stages: []Stage{{}}},
		},
		Armies: armies,
		Factions: map[Faction]FactionState{
			red:   {Gold: 100},
			blue:  {Gold: 100},
			green: {Gold: 100},
		},
	}
}

func army(id string, f Faction, strength int, pos Position) Army {
	return Army{ID: id, Faction: f, Strength: strength, Position: pos, Posture: PostureAggressive}
}

func arrived(a Army, from Position) Army {
	a.Arrived = true
	a.LastSafe = from
	return a
}

func garrisoned(a Army) Army {
	a.Posture = PostureGarrison
	return a
}

func strengthOf(gs *GameState, id string) int {
	if a := gs.Army(id); a != nil {
		return a.Strength
	}
	return 0
}
