package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/freeeve/warbands/pkg/conquest"
)

// FullRoundProcessor runs the end-of-round simulation after the turn order wraps.
type FullRoundProcessor interface {
	ProcessFullRound(ctx context.Context, gs *conquest.GameState) (*conquest.GameState, error)
}

// FactionTurnProcessor plays one computer faction's turn.
type FactionTurnProcessor interface {
	ProcessFactionTurn(ctx context.Context, gs *conquest.GameState, f conquest.Faction) (*conquest.GameState, error)
}

// Collaborator is the computer side of the game.
type Collaborator interface {
	FullRoundProcessor
	FactionTurnProcessor
}

var errNilState = errors.New("collaborator returned no state")

type collabResult struct {
	gs  *conquest.GameState
	err error
}

// callCollaborator runs fn on a clone of gs under the AI timeout. A
// collaborator that ignores ctx is abandoned when the timeout fires; it only
// ever touches its own clone.
func (s *TurnService) callCollaborator(ctx context.Context, gs *conquest.GameState, fn func(context.Context, *conquest.GameState) (*conquest.GameState, error)) (*conquest.GameState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.AITimeout)
	defer cancel()

	done := make(chan collabResult, 1)
	clone := gs.Clone()
	go func() {
		next, err := fn(ctx, clone)
		done <- collabResult{gs: next, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("collaborator: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.gs == nil {
			return nil, errNilState
		}
		return r.gs, nil
	}
}
