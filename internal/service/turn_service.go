package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/freeeve/warbands/internal/model"
	"github.com/freeeve/warbands/internal/repository"
	"github.com/freeeve/warbands/pkg/conquest"
)

// Options tunes a TurnService.
type Options struct {
	AITimeout           time.Duration
	CombatChoiceTimeout time.Duration // 0 waits for human choices indefinitely
	DefaultSiegeCost    int
	// FinishedRetention keeps an ended session addressable, answering
	// ErrGameOver, before it is dropped from the registry.
	FinishedRetention time.Duration
	Tracer            trace.Tracer
}

const defaultFinishedRetention = 10 * time.Minute

// TurnService drives sessions: turn order, computer turns, battle detection
// and combat routing. Every entry point holds the session lock for its whole
// duration and either commits all of its effects or none.
type TurnService struct {
	registry    *Registry
	archive     repository.SessionArchive // optional
	cache       repository.SessionCache   // optional
	broadcaster Broadcaster
	ai          Collaborator
	opts        Options
	tracer      trace.Tracer
	now         func() time.Time
}

// NewTurnService creates a TurnService. archive and cache may be nil.
func NewTurnService(
	registry *Registry,
	archive repository.SessionArchive,
	cache repository.SessionCache,
	broadcaster Broadcaster,
	ai Collaborator,
	opts Options,
) *TurnService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if opts.AITimeout <= 0 {
		opts.AITimeout = 10 * time.Second
	}
	if opts.DefaultSiegeCost <= 0 {
		opts.DefaultSiegeCost = conquest.DefaultSiegeCost
	}
	if opts.FinishedRetention <= 0 {
		opts.FinishedRetention = defaultFinishedRetention
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("warbands/service")
	}
	return &TurnService{
		registry:    registry,
		archive:     archive,
		cache:       cache,
		broadcaster: broadcaster,
		ai:          ai,
		opts:        opts,
		tracer:      tracer,
		now:         time.Now,
	}
}

// Registry returns the session registry.
func (s *TurnService) Registry() *Registry {
	return s.registry
}

// errNoop aborts a request that turned out to have nothing to do.
var errNoop = errors.New("nothing to do")

// outbox collects what a request produced. It is only delivered and
// persisted once the request succeeds.
type outbox struct {
	events     []outbound
	battles    []model.BattleRecord
	progressed bool
	ended      bool
	detached   []string // connections that lost their seat
}

func (o *outbox) broadcast(event string, data any) {
	o.events = append(o.events, outbound{event: event, data: data})
}

func (o *outbox) send(connID, event string, data any) {
	o.events = append(o.events, outbound{connID: connID, event: event, data: data})
}

// withSession runs fn under the session lock. On error the session is rolled
// back to its state before fn ran; on success the outbox is committed.
func (s *TurnService) withSession(ctx context.Context, code, op string, fn func(context.Context, *Session, *outbox) error) error {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("session", code)))
	defer span.End()

	sess, ok := s.registry.Get(code)
	if !ok {
		return ErrSessionNotFound
	}
	if err := sess.Lock(ctx); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer sess.Unlock()
	if sess.Finished {
		return ErrGameOver
	}

	cp := sess.checkpoint()
	ob := &outbox{}
	if err := fn(ctx, sess, ob); err != nil {
		sess.rollback(cp)
		if errors.Is(err, errNoop) {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.commit(ctx, sess, ob)
	return nil
}

// commit delivers the outbox: session-wide events, then a fresh view for
// every connection, then direct events.
func (s *TurnService) commit(ctx context.Context, sess *Session, ob *outbox) {
	for _, e := range ob.events {
		if e.connID == "" {
			s.broadcaster.BroadcastSessionEvent(sess.Code, e.event, e.data)
		}
	}
	s.pushViews(sess)
	for _, e := range ob.events {
		if e.connID != "" {
			s.broadcaster.SendToConnection(e.connID, e.event, e.data)
		}
	}
	for _, conn := range ob.detached {
		s.broadcaster.DetachFromSession(sess.Code, conn)
	}
	s.persist(ctx, sess, ob)
}

func (s *TurnService) pushViews(sess *Session) {
	for _, conn := range sess.connections() {
		s.broadcaster.SendToConnection(conn, EventStateUpdate, viewFor(sess, conn, s.opts.DefaultSiegeCost))
	}
}

// activeHuman returns the faction behind connID if it may act right now.
func activeHuman(sess *Session, connID string) (conquest.Faction, error) {
	f, ok := sess.factionOf(connID)
	if !ok {
		return conquest.Neutral, ErrNotSeated
	}
	switch flow := sess.Flow.(type) {
	case AwaitingHumanTurn:
		if flow.Faction != f {
			return f, ErrNotYourTurn
		}
		return f, nil
	case CombatBlocking:
		return f, ErrBattlePending
	default:
		return f, ErrNotYourTurn
	}
}

// PlayerAction applies a move or posture change for the active human, then
// settles any battles it produced.
func (s *TurnService) PlayerAction(ctx context.Context, code, connID string, act conquest.Action) error {
	return s.withSession(ctx, code, "turn.player_action", func(ctx context.Context, sess *Session, ob *outbox) error {
		f, err := activeHuman(sess, connID)
		if err != nil {
			return err
		}
		if err := conquest.ApplyAction(sess.State, f, act); err != nil {
			return err
		}
		log.Debug().Str("session", sess.Code).Str("faction", string(f)).
			Str("action", string(act.Type)).Str("army", act.Army).Msg("Player action applied")
		_, err = s.settle(ctx, sess, f, ResumeHumanTurn, ob)
		return err
	})
}

// EndTurn ends the active human's turn and drives the session until a human
// must act again or a battle needs a human choice.
func (s *TurnService) EndTurn(ctx context.Context, code, connID string) error {
	return s.withSession(ctx, code, "turn.end_turn", func(ctx context.Context, sess *Session, ob *outbox) error {
		f, err := activeHuman(sess, connID)
		if err != nil {
			return err
		}
		log.Info().Str("session", sess.Code).Str("faction", string(f)).
			Int("turn", sess.Order.Number).Msg("Turn ended")
		sess.Flow = Advancing{}
		if err := s.drive(ctx, sess, ob); err != nil {
			log.Error().Err(err).Str("session", sess.Code).Msg("End turn failed, session restored")
			return fmt.Errorf("%w: %w", ErrEndTurnFailed, err)
		}
		return nil
	})
}

// drive runs the flow state machine until it needs outside input.
func (s *TurnService) drive(ctx context.Context, sess *Session, ob *outbox) error {
	limit := len(sess.Order.Factions) + 1
	advances := 0
	for !sess.Finished {
		switch flow := sess.Flow.(type) {
		case AwaitingHumanTurn:
			return nil
		case CombatBlocking:
			if sess.Pending != nil {
				return nil
			}
			if err := s.resume(sess, flow.Resume, ob); err != nil {
				return err
			}
		case Advancing:
			if advances >= limit {
				return fmt.Errorf("turn order did not settle after %d advances", advances)
			}
			advances++
			if sess.Order.Advance() {
				sess.State.Turn = sess.Order.Number
				sess.Flow = FullRoundProcessing{}
				continue
			}
			s.beginTurn(sess, ob)
		case FullRoundProcessing:
			if err := s.runFullRound(ctx, sess, ob); err != nil {
				return err
			}
		case AwaitingAITurn:
			if err := s.runAITurn(ctx, sess, flow.Faction, ob); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %T", ErrUnknownFlow, flow)
		}
	}
	return nil
}

func (s *TurnService) resume(sess *Session, r Resume, ob *outbox) error {
	switch r {
	case ResumeHumanTurn:
		sess.Flow = AwaitingHumanTurn{Faction: sess.Order.Active()}
	case ResumeBeginTurn:
		s.beginTurn(sess, ob)
	case ResumeAfterAITurn:
		sess.Flow = Advancing{}
	default:
		return fmt.Errorf("%w: resume %s", ErrUnknownFlow, r)
	}
	return nil
}

// beginTurn starts the active faction's turn. Factions with nothing left are
// skipped.
func (s *TurnService) beginTurn(sess *Session, ob *outbox) {
	f := sess.Order.Active()
	if !sess.State.FactionIsAlive(f) {
		log.Debug().Str("session", sess.Code).Str("faction", string(f)).Msg("Skipping eliminated faction")
		sess.Flow = Advancing{}
		return
	}
	conquest.BeginTurn(sess.State)
	ob.progressed = true
	ob.broadcast(EventTurnChanged, TurnChanged{Faction: f, TurnNumber: sess.Order.Number})
	if sess.isHuman(f) {
		sess.Flow = AwaitingHumanTurn{Faction: f}
	} else {
		sess.Flow = AwaitingAITurn{Faction: f}
	}
}

func (s *TurnService) runFullRound(ctx context.Context, sess *Session, ob *outbox) error {
	passive := sess.passiveFactions()
	log.Info().Str("session", sess.Code).Int("turn", sess.Order.Number).
		Int("passive", len(passive)).Msg("Processing full round")
	next, err := s.callCollaborator(ctx, sess.State, func(ctx context.Context, gs *conquest.GameState) (*conquest.GameState, error) {
		gs, err := s.ai.ProcessFullRound(ctx, gs)
		if err != nil {
			return nil, err
		}
		for _, f := range passive {
			if gs == nil {
				return nil, errNilState
			}
			conquest.BeginTurn(gs)
			if gs, err = s.ai.ProcessFactionTurn(ctx, gs, f); err != nil {
				return nil, fmt.Errorf("passive faction %s: %w", f, err)
			}
		}
		return gs, nil
	})
	if err != nil {
		return fmt.Errorf("full round: %w", err)
	}
	next.Turn = sess.Order.Number
	sess.State = next

	blocked, err := s.settle(ctx, sess, conquest.Neutral, ResumeBeginTurn, ob)
	if err != nil {
		return err
	}
	if !blocked {
		s.beginTurn(sess, ob)
	}
	return nil
}

func (s *TurnService) runAITurn(ctx context.Context, sess *Session, f conquest.Faction, ob *outbox) error {
	start := s.now()
	next, err := s.callCollaborator(ctx, sess.State, func(ctx context.Context, gs *conquest.GameState) (*conquest.GameState, error) {
		return s.ai.ProcessFactionTurn(ctx, gs, f)
	})
	if err != nil {
		return fmt.Errorf("computer turn for %s: %w", f, err)
	}
	sess.State = next
	log.Info().Str("session", sess.Code).Str("faction", string(f)).
		Dur("took", s.now().Sub(start)).Msg("Computer turn played")

	blocked, err := s.settle(ctx, sess, f, ResumeAfterAITurn, ob)
	if err != nil {
		return err
	}
	if !blocked {
		sess.Flow = Advancing{}
	}
	return nil
}

// settle drains every battle that needs no human, then routes the next
// human battle, if any. It reports whether the flow is now blocked, which
// includes the game having ended.
func (s *TurnService) settle(ctx context.Context, sess *Session, trigger conquest.Faction, resume Resume, ob *outbox) (bool, error) {
	_, span := s.tracer.Start(ctx, "turn.cascade", trace.WithAttributes(
		attribute.String("session", sess.Code),
		attribute.String("trigger", string(trigger)),
	))
	defer span.End()

	res, err := conquest.Cascade(sess.State, sess.isHuman, trigger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("cascade: %w", err)
	}
	span.SetAttributes(attribute.Int("resolved", len(res.Resolved)))
	for _, r := range res.Resolved {
		s.recordResolution(sess, r, ob)
	}
	for _, c := range res.Captures {
		log.Info().Str("session", sess.Code).Str("settlement", c.Settlement).
			Str("from", string(c.From)).Str("to", string(c.To)).Msg("Settlement captured")
	}

	if s.checkGameEnd(sess, ob) {
		return true, nil
	}
	if res.Current == nil {
		sess.Queue = nil
		return false, nil
	}
	sess.Queue = res.Queue
	sess.Flow = CombatBlocking{Resume: resume}
	sess.Pending = s.route(sess, *res.Current, ob)
	span.SetAttributes(attribute.Int("queued", len(res.Queue)))
	return true, nil
}

func (s *TurnService) recordResolution(sess *Session, res conquest.Resolution, ob *outbox) {
	log.Info().Str("session", sess.Code).Str("battle", res.Battle.Key()).
		Str("tactic", string(res.Tactic)).Str("outcome", string(res.Outcome)).
		Int("attackerLosses", res.AttackerLosses).Int("defenderLosses", res.DefenderLosses+res.GarrisonLosses).
		Msg("Battle resolved")
	ob.broadcast(EventCombatResolved, res)
	ob.battles = append(ob.battles, battleRecord(sess.Code, sess.Order.Number, res))
}

// checkGameEnd finishes the session once at most one faction is left.
func (s *TurnService) checkGameEnd(sess *Session, ob *outbox) bool {
	alive := sess.State.AliveFactions()
	if len(alive) > 1 {
		return false
	}
	winner := conquest.Neutral
	if len(alive) == 1 {
		winner = alive[0]
	}
	sess.Finished = true
	sess.Winner = winner
	sess.endedAt = s.now()
	sess.Pending = nil
	sess.Queue = nil
	ob.ended = true
	ob.broadcast(EventGameEnded, GameEnded{Winner: winner})
	log.Info().Str("session", sess.Code).Str("winner", string(winner)).Msg("Game ended")
	return true
}

// NewSession describes a session handed over by the lobby.
type NewSession struct {
	Scenario  string                      `json:"scenario"`
	State     *conquest.GameState         `json:"state"`
	Seats     map[conquest.Faction]string `json:"seats"` // faction -> user id
	AIFaction conquest.Faction            `json:"ai_faction,omitempty"`
}

func (n NewSession) validate() error {
	if n.State == nil {
		return fmt.Errorf("%w: missing initial state", ErrInvalidSession)
	}
	if len(n.Seats) == 0 {
		return fmt.Errorf("%w: at least one human seat is required", ErrInvalidSession)
	}
	for f, user := range n.Seats {
		if f == conquest.Neutral || user == "" {
			return fmt.Errorf("%w: empty seat", ErrInvalidSession)
		}
		if _, ok := n.State.Factions[f]; !ok {
			return fmt.Errorf("%w: unknown faction %q", ErrInvalidSession, f)
		}
	}
	if n.AIFaction != conquest.Neutral {
		if _, ok := n.State.Factions[n.AIFaction]; !ok {
			return fmt.Errorf("%w: unknown computer faction %q", ErrInvalidSession, n.AIFaction)
		}
		if _, seated := n.Seats[n.AIFaction]; seated {
			return fmt.Errorf("%w: computer faction %q is also seated", ErrInvalidSession, n.AIFaction)
		}
	}
	return nil
}

// CreateSession registers a new session and starts its first turn.
func (s *TurnService) CreateSession(ctx context.Context, req NewSession) (PublicView, error) {
	if err := req.validate(); err != nil {
		return PublicView{}, err
	}
	initial, err := json.Marshal(req.State)
	if err != nil {
		return PublicView{}, fmt.Errorf("marshal initial state: %w", err)
	}

	seats := make(map[conquest.Faction]string, len(req.Seats))
	for f, u := range req.Seats {
		seats[f] = u
	}
	gs := req.State.Clone()
	gs.Turn = 1
	sess := newSession(newSessionCode(), req.Scenario, gs, seats, req.AIFaction)
	// Held until the first commit is done: once registered, the code is
	// visible to other requests.
	sess.TryLock()
	defer sess.Unlock()

	ob := &outbox{}
	if err := s.start(ctx, sess, ob); err != nil {
		return PublicView{}, fmt.Errorf("start session: %w", err)
	}
	if err := s.registry.Add(sess); err != nil {
		return PublicView{}, err
	}
	s.archiveCreate(ctx, sess, initial)
	s.commit(ctx, sess, ob)

	log.Info().Str("session", sess.Code).Str("scenario", sess.Scenario).
		Int("seats", len(seats)).Str("ai", string(sess.AIFaction)).Msg("Session created")
	return publicView(sess), nil
}

// start begins the active faction's turn and settles any battles already on
// the map.
func (s *TurnService) start(ctx context.Context, sess *Session, ob *outbox) error {
	sess.Order.Normalize()
	sess.State.Turn = sess.Order.Number
	s.beginTurn(sess, ob)
	if flow, ok := sess.Flow.(AwaitingHumanTurn); ok {
		if _, err := s.settle(ctx, sess, flow.Faction, ResumeHumanTurn, ob); err != nil {
			return err
		}
	}
	return s.drive(ctx, sess, ob)
}

func newSessionCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// RestoreRequest is a client-held snapshot to resume from.
type RestoreRequest struct {
	State       *conquest.GameState `json:"state"`
	TurnNumber  int                 `json:"turn_number"`
	ActiveIndex int                 `json:"active_index"`
}

// Restore replaces a session's world with a snapshot supplied by one of its
// seated players and resumes play at the given turn position.
func (s *TurnService) Restore(ctx context.Context, code, userID string, req RestoreRequest) error {
	return s.withSession(ctx, code, "turn.restore", func(ctx context.Context, sess *Session, ob *outbox) error {
		if len(sess.seatsOf(userID)) == 0 {
			return ErrNotSeated
		}
		if req.State == nil {
			return fmt.Errorf("%w: missing state", ErrInvalidSession)
		}
		sess.State = req.State.Clone()
		sess.Order.Index = req.ActiveIndex
		sess.Order.Number = req.TurnNumber
		sess.Order.Normalize()
		sess.State.Turn = sess.Order.Number
		sess.Pending = nil
		sess.Queue = nil

		f := sess.Order.Active()
		ob.progressed = true
		ob.broadcast(EventTurnChanged, TurnChanged{Faction: f, TurnNumber: sess.Order.Number})
		log.Info().Str("session", sess.Code).Str("user", userID).Str("faction", string(f)).
			Int("turn", sess.Order.Number).Msg("Session restored from client snapshot")

		if !sess.isHuman(f) {
			sess.Flow = AwaitingAITurn{Faction: f}
			return s.drive(ctx, sess, ob)
		}
		sess.Flow = AwaitingHumanTurn{Faction: f}
		if _, err := s.settle(ctx, sess, f, ResumeHumanTurn, ob); err != nil {
			return err
		}
		return s.drive(ctx, sess, ob)
	})
}

// Join maps a connection to the user's seat. A connection already holding
// the seat is replaced. want picks among several seats held by one user.
func (s *TurnService) Join(ctx context.Context, code, connID, userID string, want conquest.Faction) (conquest.Faction, error) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return conquest.Neutral, ErrSessionNotFound
	}
	if err := sess.Lock(ctx); err != nil {
		return conquest.Neutral, fmt.Errorf("lock session: %w", err)
	}
	defer sess.Unlock()

	seats := sess.seatsOf(userID)
	if len(seats) == 0 {
		return conquest.Neutral, ErrNotSeated
	}
	f := seats[0]
	if want != conquest.Neutral {
		if sess.Seats[want] != userID {
			return conquest.Neutral, ErrNotSeated
		}
		f = want
	}

	replaced := sess.attach(connID, f)
	log.Info().Str("session", code).Str("faction", string(f)).Str("connId", connID).
		Str("replaced", replaced).Msg("Seat joined")

	s.pushViews(sess)
	if p := sess.Pending; p != nil {
		if role, waiting := p.awaiting(); waiting && p.factionFor(role) == f {
			s.broadcaster.SendToConnection(connID, EventCombatChoiceRequested,
				battleView(sess.State, p, role, s.opts.DefaultSiegeCost))
		}
	}
	return f, nil
}

// Disconnect drops a connection. The seat and any pending request stay.
func (s *TurnService) Disconnect(ctx context.Context, code, connID string) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return
	}
	if err := sess.Lock(ctx); err != nil {
		log.Warn().Err(err).Str("session", code).Msg("Could not lock session to disconnect")
		return
	}
	defer sess.Unlock()

	if f, ok := sess.detach(connID); ok {
		log.Info().Str("session", code).Str("faction", string(f)).Str("connId", connID).Msg("Seat disconnected")
		s.pushViews(sess)
	}
}

// TransferSeat hands a seat from its current holder to another user. The
// old holder's connection loses the seat.
func (s *TurnService) TransferSeat(ctx context.Context, code, userID string, f conquest.Faction, toUserID string) error {
	return s.withSession(ctx, code, "turn.transfer_seat", func(ctx context.Context, sess *Session, ob *outbox) error {
		if toUserID == "" {
			return fmt.Errorf("%w: empty user", ErrInvalidSession)
		}
		if sess.Seats[f] != userID {
			return ErrNotSeated
		}
		if conn := sess.live[f]; conn != "" {
			sess.detach(conn)
			ob.send(conn, EventError, "seat transferred")
			ob.detached = append(ob.detached, conn)
		}
		sess.Seats[f] = toUserID
		log.Info().Str("session", sess.Code).Str("faction", string(f)).
			Str("from", userID).Str("to", toUserID).Msg("Seat transferred")
		if s.archive != nil {
			if err := s.archive.UpdateSeats(ctx, sess.Code, seatRecords(sess.Seats)); err != nil {
				log.Error().Err(err).Str("session", sess.Code).Msg("Failed to persist seats")
			}
		}
		return nil
	})
}

// View returns the public view of a session.
func (s *TurnService) View(ctx context.Context, code string) (PublicView, error) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return PublicView{}, ErrSessionNotFound
	}
	if err := sess.Lock(ctx); err != nil {
		return PublicView{}, fmt.Errorf("lock session: %w", err)
	}
	defer sess.Unlock()
	return publicView(sess), nil
}

// ViewFor returns the view of a session as seen by one connection.
func (s *TurnService) ViewFor(ctx context.Context, code, connID string) (PublicView, error) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return PublicView{}, ErrSessionNotFound
	}
	if err := sess.Lock(ctx); err != nil {
		return PublicView{}, fmt.Errorf("lock session: %w", err)
	}
	defer sess.Unlock()
	return viewFor(sess, connID, s.opts.DefaultSiegeCost), nil
}

// History returns the archived record and battle log of a session.
func (s *TurnService) History(ctx context.Context, code string) (*model.SessionRecord, []model.BattleRecord, error) {
	if s.archive == nil {
		return nil, nil, ErrSessionNotFound
	}
	rec, err := s.archive.FindSession(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, ErrSessionNotFound
	}
	battles, err := s.archive.ListBattles(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	return rec, battles, nil
}
