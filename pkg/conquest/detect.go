package conquest

// Capture records a settlement changing hands without a fight.
type Capture struct {
	Settlement string  `json:"settlement"`
	From       Faction `json:"from"`
	To         Faction `json:"to"`
}

// DetectBattles scans every settlement and road stage and returns the active
// battles in a stable order: settlements by id, then roads by id and stage.
// It does not modify gs.
func DetectBattles(gs *GameState) []Battle {
	var battles []Battle
	for _, id := range sortedSettlementIDs(gs.Settlements) {
		battles = append(battles, detectAtSettlement(gs, gs.Settlements[id])...)
	}
	for _, id := range sortedRoadIDs(gs.Roads) {
		r := gs.Roads[id]
		for i := range r.Stages {
			battles = append(battles, detectAtStage(gs, r, i)...)
		}
	}
	return battles
}

func detectAtSettlement(gs *GameState, s Settlement) []Battle {
	pos := At(s.ID)
	armies := gs.ArmiesAt(pos)
	if len(armies) == 0 {
		return nil
	}
	present := make(map[Faction]bool)
	for _, a := range armies {
		present[a.Faction] = true
	}
	factions := sortedFactions(present)

	if len(factions) == 1 && (factions[0] == s.Controller || s.Garrison <= 0) {
		return nil
	}

	var defender Faction
	switch {
	case present[s.Controller]:
		defender = s.Controller
	case len(factions) > 1:
		// Controller absent: the lowest faction id holds the ground.
		defender = factions[0]
	default:
		defender = s.Controller
	}

	garrison, bonus := 0, 0
	if defender == s.Controller {
		garrison = s.Garrison
		bonus = s.Defense
	}
	return battlesAgainst(armies, factions, defender, pos, garrison, bonus)
}

func detectAtStage(gs *GameState, r Road, idx int) []Battle {
	pos := OnRoad(r.ID, idx)
	armies := gs.ArmiesAt(pos)
	if len(armies) < 2 {
		return nil
	}
	present := make(map[Faction]bool)
	garrisoned := make(map[Faction]bool)
	stationary := make(map[Faction]bool)
	for _, a := range armies {
		present[a.Faction] = true
		if a.Posture == PostureGarrison {
			garrisoned[a.Faction] = true
		}
		if !a.Arrived {
			stationary[a.Faction] = true
		}
	}
	if len(present) < 2 {
		return nil
	}
	factions := sortedFactions(present)
	stage := r.Stages[idx]

	defender := pickStageDefender(factions, garrisoned, stationary, stage.Controller)
	return battlesAgainst(armies, factions, defender, pos, 0, stage.Defense)
}

// pickStageDefender applies the road preference: garrisoned, then stationary,
// then the nominal controller, then the lowest id. Within a tier the
// controller wins ties, otherwise the lowest id.
func pickStageDefender(factions []Faction, garrisoned, stationary map[Faction]bool, controller Faction) Faction {
	for _, tier := range []map[Faction]bool{garrisoned, stationary} {
		if tier[controller] {
			return controller
		}
		for _, f := range factions {
			if tier[f] {
				return f
			}
		}
	}
	for _, f := range factions {
		if f == controller {
			return f
		}
	}
	return factions[0]
}

// battlesAgainst emits one battle per faction other than defender that has
// at least one aggressive army at the position.
func battlesAgainst(armies []Army, factions []Faction, defender Faction, pos Position, garrison, bonus int) []Battle {
	var defenderArmies []string
	for _, a := range armies {
		if a.Faction == defender {
			defenderArmies = append(defenderArmies, a.ID)
		}
	}
	if len(defenderArmies) == 0 && garrison <= 0 {
		return nil
	}

	var battles []Battle
	for _, f := range factions {
		if f == defender {
			continue
		}
		var attackers []string
		for _, a := range armies {
			if a.Faction == f && a.Aggressive() {
				attackers = append(attackers, a.ID)
			}
		}
		if len(attackers) == 0 {
			continue
		}
		battles = append(battles, Battle{
			Attacker:         f,
			Defender:         defender,
			AttackerArmies:   attackers,
			DefenderArmies:   defenderArmies,
			DefenderGarrison: garrison,
			Position:         pos,
			DefenseBonus:     bonus,
		})
	}
	return battles
}

// SettleUncontested hands settlements to a lone occupier when the controller
// has neither armies nor a garrison left there.
func SettleUncontested(gs *GameState) []Capture {
	var captures []Capture
	for _, id := range sortedSettlementIDs(gs.Settlements) {
		s := gs.Settlements[id]
		armies := gs.ArmiesAt(At(id))
		if len(armies) == 0 || s.Garrison > 0 {
			continue
		}
		occupier := armies[0].Faction
		lone := true
		for _, a := range armies[1:] {
			if a.Faction != occupier {
				lone = false
				break
			}
		}
		if !lone || occupier == s.Controller {
			continue
		}
		captures = append(captures, Capture{Settlement: id, From: s.Controller, To: occupier})
		s.Controller = occupier
		s.BesiegedBy = Neutral
		s.SiegeRounds = 0
		gs.Settlements[id] = s
		for i := range gs.Armies {
			if gs.Armies[i].Position == At(id) && gs.Armies[i].Posture == PostureSiege {
				gs.Armies[i].Posture = PostureAggressive
			}
		}
	}
	return captures
}
