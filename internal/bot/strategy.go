package bot

import (
	"github.com/freeeve/warbands/pkg/conquest"
)

// Recruitment asks for a new army at a settlement.
type Recruitment struct {
	Settlement string
	Strength   int
}

// Strategy plans a computer faction's turn.
type Strategy interface {
	Name() string
	PlanRecruits(gs *conquest.GameState, f conquest.Faction) []Recruitment
	PlanActions(gs *conquest.GameState, f conquest.Faction) []conquest.Action
}

// StrategyForDifficulty returns the appropriate strategy for a bot difficulty level.
func StrategyForDifficulty(difficulty string) Strategy {
	switch difficulty {
	case "hold":
		return HoldStrategy{}
	case "random":
		return RandomStrategy{}
	default:
		return HeuristicStrategy{}
	}
}

// --- HoldStrategy ---

// HoldStrategy never moves and never recruits.
type HoldStrategy struct{}

func (HoldStrategy) Name() string { return "hold" }

func (HoldStrategy) PlanRecruits(*conquest.GameState, conquest.Faction) []Recruitment { return nil }

func (HoldStrategy) PlanActions(*conquest.GameState, conquest.Faction) []conquest.Action { return nil }

// --- RandomStrategy ---

// RandomStrategy moves each army to a random neighbor half of the time and
// occasionally recruits at a random settlement.
type RandomStrategy struct{}

func (RandomStrategy) Name() string { return "random" }

func (RandomStrategy) PlanRecruits(gs *conquest.GameState, f conquest.Faction) []Recruitment {
	owned := ownedSettlements(gs, f)
	affordable := gs.Factions[f].Gold / conquest.RecruitCost
	if len(owned) == 0 || affordable < minRecruit || coinFlip() {
		return nil
	}
	return []Recruitment{{
		Settlement: owned[botIntn(len(owned))],
		Strength:   minRecruit + botIntn(affordable-minRecruit+1),
	}}
}

func (RandomStrategy) PlanActions(gs *conquest.GameState, f conquest.Faction) []conquest.Action {
	armies := movableArmies(gs, f)
	botShuffle(len(armies), func(i, j int) { armies[i], armies[j] = armies[j], armies[i] })

	var actions []conquest.Action
	for _, a := range armies {
		neighbors := gs.Neighbors(a.Position)
		if len(neighbors) == 0 || coinFlip() {
			continue
		}
		actions = append(actions, conquest.Action{
			Type: conquest.ActionMove,
			Army: a.ID,
			To:   neighbors[botIntn(len(neighbors))],
		})
	}
	return actions
}
