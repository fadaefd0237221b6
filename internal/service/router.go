package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warbands/pkg/conquest"
)

// route turns a human-involved battle into a pending battle and asks the
// first side that has to choose. A computer attacker always fights; a
// computer defender fights once the attacker has answered.
func (s *TurnService) route(sess *Session, b conquest.Battle, ob *outbox) *PendingBattle {
	p := &PendingBattle{
		ID:            uuid.NewString(),
		Battle:        b,
		AttackerHuman: sess.isHuman(b.Attacker),
		DefenderHuman: sess.isHuman(b.Defender),
	}
	p.AttackerConn, p.DefenderConn = sess.pendingConns(b)
	if !p.AttackerHuman {
		p.AttackerTactic = conquest.TacticFight
	}
	s.request(sess, p, ob)
	return p
}

// request addresses the outstanding choice of p to its side's connection.
// A disconnected side gets the request again when it rejoins.
func (s *TurnService) request(sess *Session, p *PendingBattle, ob *outbox) {
	role, waiting := p.awaiting()
	if !waiting {
		return
	}
	if s.opts.CombatChoiceTimeout > 0 {
		p.Deadline = s.now().Add(s.opts.CombatChoiceTimeout)
	}
	conn := p.connFor(role)
	log.Info().Str("session", sess.Code).Str("battle", p.Battle.Key()).
		Str("role", string(role)).Str("faction", string(p.factionFor(role))).
		Bool("connected", conn != "").Msg("Combat choice requested")
	if conn != "" {
		ob.send(conn, EventCombatChoiceRequested, battleView(sess.State, p, role, s.opts.DefaultSiegeCost))
	}
}

// CombatChoice records a tactic from one side of the pending battle and
// resolves the battle once both sides are known. siegeCost below the
// configured default is raised to it.
func (s *TurnService) CombatChoice(ctx context.Context, code, connID, tactic string, siegeCost int) error {
	return s.withSession(ctx, code, "turn.combat_choice", func(ctx context.Context, sess *Session, ob *outbox) error {
		p := sess.Pending
		if p == nil {
			return ErrNoPendingBattle
		}
		role, ok := p.roleOf(connID)
		if !ok {
			return ErrNotInBattle
		}
		if want, _ := p.awaiting(); want != role {
			return ErrNotYourTurn
		}
		t, err := conquest.ParseTactic(tactic)
		if err != nil {
			return err
		}
		return s.applyChoice(ctx, sess, role, t, siegeCost, ob)
	})
}

func (s *TurnService) applyChoice(ctx context.Context, sess *Session, role conquest.Role, t conquest.Tactic, siegeCost int, ob *outbox) error {
	p := sess.Pending
	cost := max(siegeCost, s.opts.DefaultSiegeCost)
	if err := p.Battle.ValidateChoice(sess.State, role, t, cost); err != nil {
		return err
	}
	p.setTactic(role, t)
	if role == conquest.RoleAttacker && t == conquest.TacticSiege {
		p.SiegeCost = cost
	}
	log.Info().Str("session", sess.Code).Str("battle", p.Battle.Key()).
		Str("role", string(role)).Str("tactic", string(t)).Msg("Combat choice received")

	if !p.ready() {
		s.request(sess, p, ob)
		return nil
	}
	return s.resolvePending(ctx, sess, ob)
}

// resolvePending consumes the ready pending battle, resolves it, settles
// what follows and resumes the flow once nothing blocks any more.
func (s *TurnService) resolvePending(ctx context.Context, sess *Session, ob *outbox) error {
	p := sess.Pending
	sess.Pending = nil

	res, err := conquest.ResolveBattle(sess.State, p.Battle, p.finalTactic(), p.SiegeCost)
	if err != nil && !errors.Is(err, conquest.ErrStaleBattle) {
		log.Warn().Err(err).Str("session", sess.Code).Str("battle", p.Battle.Key()).
			Msg("Chosen tactic cannot be applied, fighting instead")
		res, err = conquest.ResolveBattle(sess.State, p.Battle, conquest.TacticFight, 0)
	}
	switch {
	case errors.Is(err, conquest.ErrStaleBattle):
		log.Warn().Str("session", sess.Code).Str("battle", p.Battle.Key()).
			Msg("Pending battle no longer matches the map, skipping")
	case err != nil:
		return fmt.Errorf("resolve %s: %w", p.Battle.Key(), err)
	default:
		conquest.ApplyResolution(sess.State, res)
		s.recordResolution(sess, res, ob)
	}

	resume := ResumeHumanTurn
	if flow, ok := sess.Flow.(CombatBlocking); ok {
		resume = flow.Resume
	}
	blocked, err := s.settle(ctx, sess, sess.Order.Active(), resume, ob)
	if err != nil || blocked {
		return err
	}
	sess.Flow = CombatBlocking{Resume: resume}
	if err := s.drive(ctx, sess, ob); err != nil {
		log.Error().Err(err).Str("session", sess.Code).Msg("Resuming turn flow failed, session restored")
		return fmt.Errorf("%w: %w", ErrEndTurnFailed, err)
	}
	return nil
}

// ExpireCombatChoice answers an overdue combat request with FIGHT on behalf
// of the silent side. Requests that are not yet due are left alone.
func (s *TurnService) ExpireCombatChoice(ctx context.Context, code string) error {
	return s.withSession(ctx, code, "turn.combat_timeout", func(ctx context.Context, sess *Session, ob *outbox) error {
		p := sess.Pending
		if p == nil || p.Deadline.IsZero() || s.now().Before(p.Deadline) {
			return errNoop
		}
		role, waiting := p.awaiting()
		if !waiting {
			return errNoop
		}
		log.Warn().Str("session", sess.Code).Str("battle", p.Battle.Key()).
			Str("role", string(role)).Msg("Combat choice timed out, fighting")
		return s.applyChoice(ctx, sess, role, conquest.TacticFight, 0, ob)
	})
}

// ExpireOverdue checks every session for an overdue combat request and drops
// sessions that ended longer than FinishedRetention ago. Busy sessions are
// skipped until the next pass.
func (s *TurnService) ExpireOverdue(ctx context.Context) {
	now := s.now()
	for _, code := range s.registry.Codes() {
		sess, ok := s.registry.Get(code)
		if !ok || !sess.TryLock() {
			continue
		}
		stale := sess.Finished && !now.Before(sess.endedAt.Add(s.opts.FinishedRetention))
		due := !sess.Finished && sess.Pending != nil && !sess.Pending.Deadline.IsZero() &&
			!now.Before(sess.Pending.Deadline)
		sess.Unlock()
		if stale {
			s.registry.Remove(code)
			log.Info().Str("session", code).Msg("Finished session dropped from registry")
			continue
		}
		if !due {
			continue
		}
		if err := s.ExpireCombatChoice(ctx, code); err != nil {
			log.Error().Err(err).Str("session", code).Msg("Failed to expire combat choice")
		}
	}
}
