package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warbands/pkg/conquest"
)

// Collaborator plays the computer faction and runs the end-of-round economy.
// It satisfies service.Collaborator.
type Collaborator struct {
	strategy Strategy
}

// NewCollaborator creates a Collaborator that plans with s.
func NewCollaborator(s Strategy) *Collaborator {
	if s == nil {
		s = HeuristicStrategy{}
	}
	return &Collaborator{strategy: s}
}

// ProcessFullRound collects taxes, pays upkeep and applies siege attrition.
func (c *Collaborator) ProcessFullRound(ctx context.Context, gs *conquest.GameState) (*conquest.GameState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rep := conquest.RunEconomy(gs)
	log.Debug().
		Int("turn", gs.Turn).
		Int("captures", len(rep.Captures)).
		Interface("eliminated", rep.Eliminated).
		Msg("Full round processed")
	return gs, nil
}

// ProcessFactionTurn recruits and moves for f. Plans the engine rejects are
// logged and skipped; the rest of the turn still applies.
func (c *Collaborator) ProcessFactionTurn(ctx context.Context, gs *conquest.GameState, f conquest.Faction) (*conquest.GameState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range c.strategy.PlanRecruits(gs, f) {
		id := nextArmyID(gs, f)
		if err := conquest.Recruit(gs, f, id, r.Settlement, r.Strength); err != nil {
			log.Warn().Err(err).Str("faction", string(f)).Str("settlement", r.Settlement).Msg("Bot recruit rejected")
		}
	}

	for _, act := range c.strategy.PlanActions(gs, f) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("faction turn %s: %w", f, err)
		}
		if err := conquest.ApplyAction(gs, f, act); err != nil {
			if errors.Is(err, conquest.ErrNotYourArmy) {
				return nil, fmt.Errorf("faction turn %s: %w", f, err)
			}
			log.Warn().Err(err).Str("faction", string(f)).Str("army", act.Army).Msg("Bot action rejected")
		}
	}
	log.Debug().Str("faction", string(f)).Str("strategy", c.strategy.Name()).Msg("Faction turn processed")
	return gs, nil
}

// nextArmyID returns the first unused id of the form "<faction>-<n>".
func nextArmyID(gs *conquest.GameState, f conquest.Faction) string {
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s-%d", f, n)
		if gs.Army(id) == nil {
			return id
		}
	}
}
