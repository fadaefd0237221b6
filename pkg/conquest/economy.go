package conquest

import "fmt"

const (
	// UpkeepDivisor is the strength one gold of upkeep supports per round.
	UpkeepDivisor = 10
	// SiegeAttritionPercent of a besieged garrison is lost each round (at least 1).
	SiegeAttritionPercent = 25
	// RecruitCost is the gold price of one point of strength.
	RecruitCost = 2
)

// RoundReport describes what the end-of-round economy did.
type RoundReport struct {
	Income     map[Faction]int `json:"income"`
	Upkeep     map[Faction]int `json:"upkeep"`
	Captures   []Capture       `json:"captures,omitempty"`
	Eliminated []Faction       `json:"eliminated,omitempty"`
}

// RunEconomy applies one round of taxes, upkeep and siege attrition, then
// marks factions with nothing left as eliminated.
func RunEconomy(gs *GameState) RoundReport {
	rep := RoundReport{
		Income: CollectTaxes(gs),
		Upkeep: PayUpkeep(gs),
	}
	rep.Captures = SiegeAttrition(gs)
	rep.Eliminated = MarkEliminated(gs)
	return rep
}

// CollectTaxes credits every controller with the tax of its settlements
// that are not under siege.
func CollectTaxes(gs *GameState) map[Faction]int {
	income := make(map[Faction]int)
	for _, id := range sortedSettlementIDs(gs.Settlements) {
		s := gs.Settlements[id]
		if s.Controller == Neutral || s.BesiegedBy != Neutral {
			continue
		}
		income[s.Controller] += s.Tax
	}
	for f, n := range income {
		fs, ok := gs.Factions[f]
		if !ok {
			continue
		}
		fs.Gold += n
		gs.Factions[f] = fs
	}
	return income
}

// PayUpkeep charges each faction for its armies. Gold never goes negative.
func PayUpkeep(gs *GameState) map[Faction]int {
	strength := make(map[Faction]int)
	for _, a := range gs.Armies {
		strength[a.Faction] += a.Strength
	}
	upkeep := make(map[Faction]int)
	for f, s := range strength {
		fs, ok := gs.Factions[f]
		if !ok {
			continue
		}
		cost := ceilDiv(s, UpkeepDivisor)
		upkeep[f] = cost
		fs.Gold = max(fs.Gold-cost, 0)
		gs.Factions[f] = fs
	}
	return upkeep
}

// SiegeAttrition wears down besieged garrisons. A settlement whose garrison
// reaches zero with no defending army present falls to the besieger.
func SiegeAttrition(gs *GameState) []Capture {
	var captures []Capture
	for _, id := range sortedSettlementIDs(gs.Settlements) {
		s := gs.Settlements[id]
		if s.BesiegedBy == Neutral {
			continue
		}
		pos := At(id)
		sieging, defended := false, false
		for _, a := range gs.ArmiesAt(pos) {
			if a.Faction == s.BesiegedBy && a.Posture == PostureSiege {
				sieging = true
			}
			if a.Faction == s.Controller {
				defended = true
			}
		}
		if !sieging {
			s.BesiegedBy = Neutral
			s.SiegeRounds = 0
			gs.Settlements[id] = s
			continue
		}

		s.SiegeRounds++
		if s.Garrison > 0 {
			loss := max(ceilDiv(s.Garrison*SiegeAttritionPercent, 100), 1)
			s.Garrison = max(s.Garrison-loss, 0)
		}
		if s.Garrison == 0 && !defended {
			captures = append(captures, Capture{Settlement: id, From: s.Controller, To: s.BesiegedBy})
			for i := range gs.Armies {
				a := &gs.Armies[i]
				if a.Position == pos && a.Faction == s.BesiegedBy && a.Posture == PostureSiege {
					a.Posture = PostureAggressive
				}
			}
			s.Controller = s.BesiegedBy
			s.BesiegedBy = Neutral
			s.SiegeRounds = 0
		}
		gs.Settlements[id] = s
	}
	return captures
}

// Recruit raises a new army of the given strength at a settlement f controls.
func Recruit(gs *GameState, f Faction, armyID, settlement string, strength int) error {
	s, ok := gs.Settlements[settlement]
	if !ok {
		return fmt.Errorf("%w: unknown settlement %s", ErrInvalidAction, settlement)
	}
	if s.Controller != f {
		return fmt.Errorf("%w: %s is not controlled by %s", ErrInvalidAction, settlement, f)
	}
	if s.BesiegedBy != Neutral {
		return fmt.Errorf("%w: %s is under siege", ErrInvalidAction, settlement)
	}
	if strength <= 0 {
		return fmt.Errorf("%w: strength must be positive", ErrInvalidAction)
	}
	if gs.Army(armyID) != nil {
		return fmt.Errorf("%w: army %s already exists", ErrInvalidAction, armyID)
	}
	cost := strength * RecruitCost
	fs := gs.Factions[f]
	if fs.Gold < cost {
		return fmt.Errorf("%w: recruiting %d costs %d", ErrInsufficientGold, strength, cost)
	}
	fs.Gold -= cost
	gs.Factions[f] = fs
	gs.Armies = append(gs.Armies, Army{
		ID:       armyID,
		Faction:  f,
		Strength: strength,
		Position: At(settlement),
		Posture:  PostureAggressive,
		LastSafe: At(settlement),
	})
	return nil
}

// MarkEliminated flags factions that hold nothing and returns the newly
// eliminated ones.
func MarkEliminated(gs *GameState) []Faction {
	gone := make(map[Faction]bool)
	for f, fs := range gs.Factions {
		if !fs.Eliminated && !gs.FactionIsAlive(f) {
			fs.Eliminated = true
			gs.Factions[f] = fs
			gone[f] = true
		}
	}
	if len(gone) == 0 {
		return nil
	}
	return sortedFactions(gone)
}
