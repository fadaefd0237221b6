package bot

import (
	"sort"

	"github.com/freeeve/warbands/pkg/conquest"
)

const (
	// minRecruit is the smallest army worth raising.
	minRecruit = 5
	// goldReserve is kept back from recruitment for siege costs.
	goldReserve = 20
)

// HeuristicStrategy keeps threatened settlements manned, raises troops where
// the threat is highest and sends spare armies at the most valuable target
// each can beat alone.
type HeuristicStrategy struct{}

func (HeuristicStrategy) Name() string { return "easy" }

// moveCandidate represents a scored (army, target) pair for greedy assignment.
type moveCandidate struct {
	army   conquest.Army
	target string
	score  float64
}

// PlanRecruits spends half of the gold above the reserve at the most
// threatened settlement, lowest id on ties.
func (HeuristicStrategy) PlanRecruits(gs *conquest.GameState, f conquest.Faction) []Recruitment {
	owned := ownedSettlements(gs, f)
	if len(owned) == 0 {
		return nil
	}
	spend := (gs.Factions[f].Gold - goldReserve) / 2
	strength := spend / conquest.RecruitCost
	if strength < minRecruit {
		return nil
	}

	d := newDistances(gs)
	best, bestThreat := owned[0], -1
	for _, id := range owned {
		if t := threatTo(gs, d, id, f) - holdingStrength(gs, id, f, ""); t > bestThreat {
			best, bestThreat = id, t
		}
	}
	return []Recruitment{{Settlement: best, Strength: strength}}
}

// PlanActions scores every (army, enemy settlement) pair and greedily assigns
// one army per target, then steps each assigned army one move along the
// shortest road. Armies needed at home stay put.
func (h HeuristicStrategy) PlanActions(gs *conquest.GameState, f conquest.Faction) []conquest.Action {
	armies := movableArmies(gs, f)
	if len(armies) == 0 {
		return nil
	}
	d := newDistances(gs)

	var candidates []moveCandidate
	for _, a := range armies {
		if h.neededAtHome(gs, d, a, f) {
			continue
		}
		candidates = append(candidates, h.scoreTargets(gs, d, a, f)...)
	}
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.score != cj.score {
			return ci.score > cj.score
		}
		if ci.army.ID != cj.army.ID {
			return ci.army.ID < cj.army.ID
		}
		return ci.target < cj.target
	})

	assignedArmies := make(map[string]bool)
	assignedTargets := make(map[string]bool)
	var actions []conquest.Action
	for _, c := range candidates {
		if assignedArmies[c.army.ID] || assignedTargets[c.target] {
			continue
		}
		step, ok := d.stepToward(c.army.Position, conquest.At(c.target))
		if !ok {
			continue
		}
		assignedArmies[c.army.ID] = true
		assignedTargets[c.target] = true
		actions = append(actions, conquest.Action{Type: conquest.ActionMove, Army: c.army.ID, To: step})
	}
	return actions
}

// neededAtHome reports whether a sits in an own settlement that would be
// outmatched by adjacent enemies if a left.
func (HeuristicStrategy) neededAtHome(gs *conquest.GameState, d *distances, a conquest.Army, f conquest.Faction) bool {
	if !a.Position.IsSettlement() {
		return false
	}
	id := a.Position.Settlement
	if gs.Settlements[id].Controller != f {
		return false
	}
	threat := threatTo(gs, d, id, f)
	return threat > 0 && threat >= holdingStrength(gs, id, f, a.ID)
}

// scoreTargets rates each settlement a can take on its own. Closer and
// richer settlements score higher.
func (HeuristicStrategy) scoreTargets(gs *conquest.GameState, d *distances, a conquest.Army, f conquest.Faction) []moveCandidate {
	var out []moveCandidate
	for id, s := range gs.Settlements {
		if s.Controller == f {
			continue
		}
		dist := d.between(a.Position, conquest.At(id))
		if dist <= 0 {
			continue
		}
		if settlementDefense(gs, id, f) >= a.Strength {
			continue
		}
		value := float64(s.Tax + 10)
		out = append(out, moveCandidate{army: a, target: id, score: value / float64(dist)})
	}
	return out
}
