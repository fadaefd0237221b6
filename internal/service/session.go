package service

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/freeeve/warbands/pkg/conquest"
)

// ComputerConn marks the computer side of a pending battle.
const ComputerConn = "computer"

// Session is one running game. Every exported field is guarded by the
// session lock; callers outside this package only read it through views.
type Session struct {
	Code      string
	Scenario  string
	State     *conquest.GameState
	Order     conquest.TurnOrder
	Seats     map[conquest.Faction]string // faction -> user id
	AIFaction conquest.Faction
	Flow      FlowState
	Pending   *PendingBattle
	Queue     []conquest.Battle
	Finished  bool
	Winner    conquest.Faction

	conns map[string]conquest.Faction // connection id -> faction
	live  map[conquest.Faction]string // faction -> connection id

	timerKey string    // combat timer currently armed in the cache
	endedAt  time.Time // when Finished was set
	sem      *semaphore.Weighted
}

func newSession(code, scenario string, gs *conquest.GameState, seats map[conquest.Faction]string, ai conquest.Faction) *Session {
	humans := make([]conquest.Faction, 0, len(seats))
	for f := range seats {
		humans = append(humans, f)
	}
	return &Session{
		Code:      code,
		Scenario:  scenario,
		State:     gs,
		Order:     conquest.NewTurnOrder(humans, ai),
		Seats:     seats,
		AIFaction: ai,
		conns:     make(map[string]conquest.Faction),
		live:      make(map[conquest.Faction]string),
		sem:       semaphore.NewWeighted(1),
	}
}

// Lock waits for exclusive access to the session or for ctx to end.
func (s *Session) Lock(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

// TryLock takes the session lock only if it is free.
func (s *Session) TryLock() bool {
	return s.sem.TryAcquire(1)
}

// Unlock releases the session lock.
func (s *Session) Unlock() {
	s.sem.Release(1)
}

// isHuman reports whether a participant holds the faction's seat, connected
// or not.
func (s *Session) isHuman(f conquest.Faction) bool {
	_, ok := s.Seats[f]
	return ok
}

// passiveFactions lists the live factions that are neither seated nor the
// computer faction. They hold no slot in the turn order and act once per
// round, during full-round processing.
func (s *Session) passiveFactions() []conquest.Faction {
	var out []conquest.Faction
	for f := range s.State.Factions {
		if f == conquest.Neutral || f == s.AIFaction || s.isHuman(f) {
			continue
		}
		if s.State.FactionIsAlive(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Session) factionOf(connID string) (conquest.Faction, bool) {
	f, ok := s.conns[connID]
	return f, ok
}

// seatsOf returns the factions held by a user, ordered by id.
func (s *Session) seatsOf(userID string) []conquest.Faction {
	var out []conquest.Faction
	for f, u := range s.Seats {
		if u == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// connections returns every live connection id in a stable order.
func (s *Session) connections() []string {
	out := make([]string, 0, len(s.conns))
	for id := range s.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// attach maps connID to f, replacing any previous connection for that seat.
// It returns the replaced connection id, if any.
func (s *Session) attach(connID string, f conquest.Faction) string {
	old := s.live[f]
	if old != "" && old != connID {
		delete(s.conns, old)
	}
	s.conns[connID] = f
	s.live[f] = connID
	if p := s.Pending; p != nil {
		if p.AttackerHuman && p.Battle.Attacker == f {
			p.AttackerConn = connID
		}
		if p.DefenderHuman && p.Battle.Defender == f {
			p.DefenderConn = connID
		}
	}
	return old
}

// detach drops connID. The seat stays held.
func (s *Session) detach(connID string) (conquest.Faction, bool) {
	f, ok := s.conns[connID]
	if !ok {
		return conquest.Neutral, false
	}
	delete(s.conns, connID)
	if s.live[f] == connID {
		delete(s.live, f)
		if p := s.Pending; p != nil {
			if p.AttackerConn == connID {
				p.AttackerConn = ""
			}
			if p.DefenderConn == connID {
				p.DefenderConn = ""
			}
		}
	}
	return f, true
}

// PendingBattle is a battle waiting on at least one human choice.
type PendingBattle struct {
	ID             string          `json:"id"`
	Battle         conquest.Battle `json:"battle"`
	AttackerConn   string          `json:"-"`
	DefenderConn   string          `json:"-"`
	AttackerHuman  bool            `json:"attacker_human"`
	DefenderHuman  bool            `json:"defender_human"`
	AttackerTactic conquest.Tactic `json:"-"`
	DefenderTactic conquest.Tactic `json:"-"`
	SiegeCost      int             `json:"-"`
	Deadline       time.Time       `json:"-"`
}

// awaiting returns the side whose choice is outstanding. The attacker is
// always asked first.
func (p *PendingBattle) awaiting() (conquest.Role, bool) {
	if p.AttackerTactic == conquest.TacticUnset {
		return conquest.RoleAttacker, true
	}
	if p.DefenderHuman && p.DefenderTactic == conquest.TacticUnset {
		return conquest.RoleDefender, true
	}
	return "", false
}

// ready reports whether both choices are known.
func (p *PendingBattle) ready() bool {
	_, waiting := p.awaiting()
	return !waiting
}

// roleOf returns the side connID plays in this battle.
func (p *PendingBattle) roleOf(connID string) (conquest.Role, bool) {
	switch {
	case connID == "":
		return "", false
	case p.AttackerHuman && p.AttackerConn == connID:
		return conquest.RoleAttacker, true
	case p.DefenderHuman && p.DefenderConn == connID:
		return conquest.RoleDefender, true
	}
	return "", false
}

func (p *PendingBattle) connFor(r conquest.Role) string {
	if r == conquest.RoleAttacker {
		return p.AttackerConn
	}
	return p.DefenderConn
}

func (p *PendingBattle) factionFor(r conquest.Role) conquest.Faction {
	if r == conquest.RoleAttacker {
		return p.Battle.Attacker
	}
	return p.Battle.Defender
}

func (p *PendingBattle) setTactic(r conquest.Role, t conquest.Tactic) {
	if r == conquest.RoleAttacker {
		p.AttackerTactic = t
	} else {
		p.DefenderTactic = t
	}
}

// finalTactic combines both sides. A computer defender always fights.
func (p *PendingBattle) finalTactic() conquest.Tactic {
	def := p.DefenderTactic
	if !p.DefenderHuman {
		def = conquest.TacticFight
	}
	return conquest.FinalTactic(p.AttackerTactic, def)
}

// timerKey identifies one outstanding request for the combat timer.
func (p *PendingBattle) timerKey() string {
	r, _ := p.awaiting()
	return p.ID + ":" + string(r)
}

// checkpoint is the part of a session a failed request rolls back.
type checkpoint struct {
	state    *conquest.GameState
	order    conquest.TurnOrder
	flow     FlowState
	pending  *PendingBattle
	queue    []conquest.Battle
	finished bool
	winner   conquest.Faction
}

func (s *Session) checkpoint() checkpoint {
	cp := checkpoint{
		state:    s.State.Clone(),
		order:    s.Order,
		flow:     s.Flow,
		queue:    append([]conquest.Battle(nil), s.Queue...),
		finished: s.Finished,
		winner:   s.Winner,
	}
	cp.order.Factions = append([]conquest.Faction(nil), s.Order.Factions...)
	if s.Pending != nil {
		p := *s.Pending
		cp.pending = &p
	}
	return cp
}

func (s *Session) rollback(cp checkpoint) {
	s.State = cp.state
	s.Order = cp.order
	s.Flow = cp.flow
	s.Pending = cp.pending
	s.Queue = cp.queue
	s.Finished = cp.finished
	s.Winner = cp.winner
	if p := s.Pending; p != nil {
		// Connections may have changed since the checkpoint.
		p.AttackerConn, p.DefenderConn = s.pendingConns(p.Battle)
	}
}

// pendingConns resolves the current connection of each side of b.
func (s *Session) pendingConns(b conquest.Battle) (attacker, defender string) {
	attacker = ComputerConn
	if s.isHuman(b.Attacker) {
		attacker = s.live[b.Attacker]
	}
	if s.isHuman(b.Defender) {
		defender = s.live[b.Defender]
	}
	return attacker, defender
}
