package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/warbands/internal/logger"
	"github.com/freeeve/warbands/internal/model"
	"github.com/freeeve/warbands/pkg/conquest"
)

// Snapshot is the live session as stored in the cache. Pending battles are
// not stored; they are detected and routed again on recovery.
type Snapshot struct {
	Code      string                      `json:"code"`
	Scenario  string                      `json:"scenario"`
	State     *conquest.GameState         `json:"state"`
	Order     conquest.TurnOrder          `json:"order"`
	Seats     map[conquest.Faction]string `json:"seats"`
	AIFaction conquest.Faction            `json:"ai_faction,omitempty"`
	Flow      flowRecord                  `json:"flow"`
	Finished  bool                        `json:"finished,omitempty"`
	Winner    conquest.Faction            `json:"winner,omitempty"`
}

func snapshotOf(sess *Session) (Snapshot, error) {
	flow, err := encodeFlow(sess.Flow)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Code:      sess.Code,
		Scenario:  sess.Scenario,
		State:     sess.State,
		Order:     sess.Order,
		Seats:     sess.Seats,
		AIFaction: sess.AIFaction,
		Flow:      flow,
		Finished:  sess.Finished,
		Winner:    sess.Winner,
	}, nil
}

// apply loads the snapshot into a freshly built session.
func (snap Snapshot) apply(sess *Session) error {
	if snap.State == nil {
		return fmt.Errorf("snapshot %s has no state", snap.Code)
	}
	flow, err := decodeFlow(snap.Flow)
	if err != nil {
		return err
	}
	sess.State = snap.State
	sess.Order = snap.Order
	sess.Order.Normalize()
	sess.Flow = flow
	sess.Finished = snap.Finished
	sess.Winner = snap.Winner
	return nil
}

// persist writes what a committed request produced. Storage failures are
// logged and never undo the in-memory session.
func (s *TurnService) persist(ctx context.Context, sess *Session, ob *outbox) {
	if s.archive != nil {
		for i := range ob.battles {
			if err := s.archive.RecordBattle(ctx, &ob.battles[i]); err != nil {
				logger.ForSession(sess.Code).Error().Err(err).Msg("Failed to record battle")
			}
		}
		if ob.progressed {
			if err := s.archive.UpdateProgress(ctx, sess.Code, sess.Order.Number, sess.Order.Index); err != nil {
				logger.ForSession(sess.Code).Error().Err(err).Msg("Failed to update progress")
			}
		}
		if ob.ended {
			if err := s.archive.SetFinished(ctx, sess.Code, string(sess.Winner)); err != nil {
				logger.ForSession(sess.Code).Error().Err(err).Msg("Failed to mark session finished")
			}
		}
	}

	if s.cache == nil {
		return
	}
	if ob.ended {
		if err := s.cache.DeleteSessionData(ctx, sess.Code); err != nil {
			logger.ForSession(sess.Code).Error().Err(err).Msg("Failed to drop live session data")
		}
		sess.timerKey = ""
		return
	}
	snap, err := snapshotOf(sess)
	if err == nil {
		var data []byte
		if data, err = json.Marshal(snap); err == nil {
			err = s.cache.SetSnapshot(ctx, sess.Code, data)
		}
	}
	if err != nil {
		logger.ForSession(sess.Code).Error().Err(err).Msg("Failed to store session snapshot")
	}
	s.syncTimer(ctx, sess)
}

// syncTimer arms the cache timer for the outstanding combat request, or
// clears it when nothing is outstanding.
func (s *TurnService) syncTimer(ctx context.Context, sess *Session) {
	if s.opts.CombatChoiceTimeout <= 0 {
		return
	}
	want := ""
	if p := sess.Pending; p != nil && !p.Deadline.IsZero() {
		want = p.timerKey()
	}
	if want == sess.timerKey {
		return
	}

	var err error
	if want == "" {
		err = s.cache.ClearCombatTimer(ctx, sess.Code)
	} else {
		ttl := sess.Pending.Deadline.Sub(s.now())
		if ttl < time.Millisecond {
			ttl = time.Millisecond
		}
		err = s.cache.SetCombatTimer(ctx, sess.Code, want, ttl)
	}
	if err != nil {
		logger.ForSession(sess.Code).Error().Err(err).Msg("Failed to sync combat timer")
		return
	}
	sess.timerKey = want
}

func (s *TurnService) archiveCreate(ctx context.Context, sess *Session, initial json.RawMessage) {
	if s.archive == nil {
		return
	}
	order := make([]string, len(sess.Order.Factions))
	for i, f := range sess.Order.Factions {
		order[i] = string(f)
	}
	rec := &model.SessionRecord{
		Code:         sess.Code,
		Scenario:     sess.Scenario,
		TurnNumber:   sess.Order.Number,
		ActiveIndex:  sess.Order.Index,
		TurnOrder:    order,
		AIFaction:    string(sess.AIFaction),
		Seats:        seatRecords(sess.Seats),
		InitialState: initial,
	}
	if err := s.archive.CreateSession(ctx, rec); err != nil {
		logger.ForSession(sess.Code).Error().Err(err).Msg("Failed to archive session")
	}
}

func seatRecords(seats map[conquest.Faction]string) []model.Seat {
	out := make([]model.Seat, 0, len(seats))
	for f, u := range seats {
		out = append(out, model.Seat{Faction: string(f), UserID: u})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Faction < out[j].Faction })
	return out
}

func battleRecord(code string, turn int, res conquest.Resolution) model.BattleRecord {
	detail, err := json.Marshal(res)
	if err != nil {
		detail = []byte("{}")
	}
	return model.BattleRecord{
		ID:          uuid.NewString(),
		SessionCode: code,
		TurnNumber:  turn,
		Attacker:    string(res.Battle.Attacker),
		Defender:    string(res.Battle.Defender),
		Position:    res.Battle.Position.String(),
		Tactic:      string(res.Tactic),
		Outcome:     string(res.Outcome),
		Detail:      detail,
	}
}
