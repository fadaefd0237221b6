// Command simulate plays a scenario with computer players on every side
// and reports the result. It runs the same engine and bot as the server,
// without sessions or transport.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warbands/internal/bot"
	"github.com/freeeve/warbands/internal/scenario"
	"github.com/freeeve/warbands/pkg/conquest"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		path      string
		strategy  string
		maxRounds int
		seed      int64
		jsonOut   bool
	)
	flag.StringVar(&path, "scenario", "scenarios/three-crowns.yaml", "Scenario file")
	flag.StringVar(&strategy, "strategy", "easy", "Bot strategy for every faction (hold, random, easy)")
	flag.IntVar(&maxRounds, "rounds", 50, "Max rounds before the game is called a draw")
	flag.Int64Var(&seed, "seed", 0, "Seed for the random strategy (0 = random)")
	flag.BoolVar(&jsonOut, "json", false, "Output the result as JSON")
	flag.Parse()

	if seed != 0 {
		bot.SeedBotRng(seed)
	}

	sc, err := scenario.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load scenario")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := simulate(ctx, sc.State(), bot.NewCollaborator(bot.StrategyForDifficulty(strategy)), maxRounds)
	if err != nil {
		log.Fatal().Err(err).Msg("Simulation failed")
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(res)
		return
	}
	winner := "none (draw)"
	if res.Winner != conquest.Neutral {
		winner = string(res.Winner)
	}
	fmt.Printf("scenario %s: %d rounds, %d battles, winner %s\n", sc.Name, res.Rounds, res.Battles, winner)
	for _, f := range res.Survivors {
		fmt.Printf("  %-10s settlements %d  gold %d\n", f, res.State.SettlementCount(f), res.State.Factions[f].Gold)
	}
}

// result summarizes a finished simulation.
type result struct {
	Rounds    int                 `json:"rounds"`
	Battles   int                 `json:"battles"`
	Winner    conquest.Faction    `json:"winner,omitempty"`
	Survivors []conquest.Faction  `json:"survivors"`
	State     *conquest.GameState `json:"state"`
}

type collaborator interface {
	ProcessFullRound(ctx context.Context, gs *conquest.GameState) (*conquest.GameState, error)
	ProcessFactionTurn(ctx context.Context, gs *conquest.GameState, f conquest.Faction) (*conquest.GameState, error)
}

// simulate plays whole rounds until one faction is left or maxRounds pass.
// Every battle is fought out immediately since nobody is human.
func simulate(ctx context.Context, gs *conquest.GameState, ai collaborator, maxRounds int) (result, error) {
	nobody := func(conquest.Faction) bool { return false }
	res := result{}
	var err error

	settle := func(trigger conquest.Faction) error {
		out, err := conquest.Cascade(gs, nobody, trigger)
		if err != nil {
			return err
		}
		res.Battles += len(out.Resolved)
		for _, c := range out.Captures {
			log.Debug().Str("settlement", c.Settlement).Str("from", string(c.From)).Str("to", string(c.To)).Msg("Captured")
		}
		return nil
	}

	if err := settle(conquest.Neutral); err != nil {
		return res, err
	}
	for res.Rounds < maxRounds {
		res.Rounds++
		gs.Turn = res.Rounds
		for _, f := range gs.AliveFactions() {
			if !gs.FactionIsAlive(f) {
				continue
			}
			conquest.BeginTurn(gs)
			if gs, err = ai.ProcessFactionTurn(ctx, gs, f); err != nil {
				return res, fmt.Errorf("round %d, %s: %w", res.Rounds, f, err)
			}
			if err := settle(f); err != nil {
				return res, fmt.Errorf("round %d, %s: %w", res.Rounds, f, err)
			}
			if w, ok := gs.Winner(); ok {
				return finish(res, gs, w), nil
			}
		}
		if gs, err = ai.ProcessFullRound(ctx, gs); err != nil {
			return res, fmt.Errorf("round %d: %w", res.Rounds, err)
		}
		if err := settle(conquest.Neutral); err != nil {
			return res, err
		}
		if w, ok := gs.Winner(); ok {
			return finish(res, gs, w), nil
		}
		log.Info().Int("round", res.Rounds).Int("battles", res.Battles).
			Interface("alive", gs.AliveFactions()).Msg("Round complete")
	}
	return finish(res, gs, conquest.Neutral), nil
}

func finish(res result, gs *conquest.GameState, winner conquest.Faction) result {
	res.Winner = winner
	res.Survivors = gs.AliveFactions()
	res.State = gs
	return res
}
