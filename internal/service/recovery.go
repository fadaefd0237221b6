package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warbands/internal/logger"
	"github.com/freeeve/warbands/internal/model"
	"github.com/freeeve/warbands/pkg/conquest"
)

// RecoverSessions rebuilds the registry from the archive and the live
// snapshots after a restart. Battles are detected and routed again; the
// participants receive them when they reconnect.
func (s *TurnService) RecoverSessions(ctx context.Context) error {
	if s.archive == nil {
		return nil
	}
	recs, err := s.archive.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	s.dropOrphans(ctx, recs)
	if len(recs) == 0 {
		log.Info().Msg("No active sessions to recover")
		return nil
	}

	log.Info().Int("count", len(recs)).Msg("Recovering active sessions after restart")
	recovered := 0
	for _, rec := range recs {
		if err := s.recoverSession(ctx, rec); err != nil {
			logger.ForSession(rec.Code).Error().Err(err).Msg("Failed to recover session")
			continue
		}
		recovered++
	}
	log.Info().Int("recovered", recovered).Int("total", len(recs)).Msg("Session recovery complete")
	return nil
}

func (s *TurnService) recoverSession(ctx context.Context, rec model.SessionRecord) error {
	seats := make(map[conquest.Faction]string, len(rec.Seats))
	for _, seat := range rec.Seats {
		seats[conquest.Faction(seat.Faction)] = seat.UserID
	}
	sess := newSession(rec.Code, rec.Scenario, nil, seats, conquest.Faction(rec.AIFaction))
	sess.TryLock()
	defer sess.Unlock()

	fromSnapshot, err := s.loadSnapshot(ctx, sess)
	if err != nil {
		return err
	}
	if !fromSnapshot {
		if len(rec.InitialState) == 0 {
			return fmt.Errorf("no snapshot and no initial state")
		}
		var gs conquest.GameState
		if err := json.Unmarshal(rec.InitialState, &gs); err != nil {
			return fmt.Errorf("decode initial state: %w", err)
		}
		order := make([]conquest.Faction, len(rec.TurnOrder))
		for i, f := range rec.TurnOrder {
			order[i] = conquest.Faction(f)
		}
		sess.State = &gs
		sess.Order = conquest.TurnOrder{Factions: order, Number: 1}
		logger.ForSession(rec.Code).Warn().Msg("No live snapshot, restarting from initial state")
	}

	ob := &outbox{}
	if err := s.resumeRecovered(ctx, sess, ob); err != nil {
		return err
	}
	if err := s.registry.Add(sess); err != nil {
		return err
	}
	s.commit(ctx, sess, ob)
	logger.ForSession(sess.Code).Info().Str("flow", FlowName(sess.Flow)).
		Bool("pending", sess.Pending != nil).Msg("Session recovered")
	return nil
}

// loadSnapshot fills sess from the cache and reports whether one was found.
// A combat timer armed before the restart is dropped; routing arms a new one.
func (s *TurnService) loadSnapshot(ctx context.Context, sess *Session) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	if key, err := s.cache.GetCombatTimer(ctx, sess.Code); err == nil && key != "" {
		if err := s.cache.ClearCombatTimer(ctx, sess.Code); err != nil {
			logger.ForSession(sess.Code).Warn().Err(err).Msg("Failed to clear stale combat timer")
		}
	}
	raw, err := s.cache.GetSnapshot(ctx, sess.Code)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if raw == nil {
		return false, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := snap.apply(sess); err != nil {
		return false, err
	}
	return true, nil
}

// resumeRecovered re-derives the pending battle and continues the flow from
// where the stored session left off.
func (s *TurnService) resumeRecovered(ctx context.Context, sess *Session, ob *outbox) error {
	if sess.Finished {
		return nil
	}
	if sess.Flow == nil {
		return s.start(ctx, sess, ob)
	}
	active := sess.Order.Active()
	switch flow := sess.Flow.(type) {
	case AwaitingHumanTurn:
		if _, err := s.settle(ctx, sess, active, ResumeHumanTurn, ob); err != nil {
			return err
		}
	case CombatBlocking:
		if _, err := s.settle(ctx, sess, active, flow.Resume, ob); err != nil {
			return err
		}
	}
	return s.drive(ctx, sess, ob)
}

// dropOrphans removes live data for sessions the archive no longer lists
// as active.
func (s *TurnService) dropOrphans(ctx context.Context, active []model.SessionRecord) {
	if s.cache == nil {
		return
	}
	codes, err := s.cache.ActiveCodes(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list live sessions")
		return
	}
	known := make(map[string]bool, len(active))
	for _, rec := range active {
		known[rec.Code] = true
	}
	for _, code := range codes {
		if known[code] {
			continue
		}
		logger.ForSession(code).Info().Msg("Dropping live data of inactive session")
		if err := s.cache.DeleteSessionData(ctx, code); err != nil {
			logger.ForSession(code).Warn().Err(err).Msg("Failed to drop live session data")
		}
	}
}
