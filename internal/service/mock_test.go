package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/warbands/internal/model"
	"github.com/freeeve/warbands/pkg/conquest"
)

type mockArchive struct {
	mu       sync.Mutex
	sessions map[string]*model.SessionRecord
	battles  []model.BattleRecord
	progress map[string][2]int
	finished map[string]string
	err      error
}

func newMockArchive() *mockArchive {
	return &mockArchive{
		sessions: make(map[string]*model.SessionRecord),
		progress: make(map[string][2]int),
		finished: make(map[string]string),
	}
}

func (m *mockArchive) CreateSession(_ context.Context, rec *model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *rec
	cp.Status = model.StatusActive
	m.sessions[rec.Code] = &cp
	return nil
}

func (m *mockArchive) FindSession(_ context.Context, code string) (*model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[code]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockArchive) ListActive(_ context.Context) ([]model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SessionRecord
	for _, rec := range m.sessions {
		if rec.Status == model.StatusActive {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockArchive) UpdateProgress(_ context.Context, code string, turnNumber, activeIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.progress[code] = [2]int{turnNumber, activeIndex}
	if rec, ok := m.sessions[code]; ok {
		rec.TurnNumber = turnNumber
		rec.ActiveIndex = activeIndex
	}
	return nil
}

func (m *mockArchive) UpdateSeats(_ context.Context, code string, seats []model.Seat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[code]; ok {
		rec.Seats = seats
	}
	return nil
}

func (m *mockArchive) SetFinished(_ context.Context, code, winner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[code] = winner
	if rec, ok := m.sessions[code]; ok {
		rec.Status = model.StatusFinished
		rec.Winner = winner
	}
	return nil
}

func (m *mockArchive) RecordBattle(_ context.Context, rec *model.BattleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.battles = append(m.battles, *rec)
	return nil
}

func (m *mockArchive) ListBattles(_ context.Context, code string) ([]model.BattleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BattleRecord
	for _, b := range m.battles {
		if b.SessionCode == code {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockArchive) battleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.battles)
}

type mockCache struct {
	mu        sync.Mutex
	snapshots map[string]json.RawMessage
	timers    map[string]string
	ttls      map[string]time.Duration
}

func newMockCache() *mockCache {
	return &mockCache{
		snapshots: make(map[string]json.RawMessage),
		timers:    make(map[string]string),
		ttls:      make(map[string]time.Duration),
	}
}

func (m *mockCache) SetSnapshot(_ context.Context, code string, snapshot json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[code] = append(json.RawMessage(nil), snapshot...)
	return nil
}

func (m *mockCache) GetSnapshot(_ context.Context, code string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[code], nil
}

func (m *mockCache) ActiveCodes(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for code := range m.snapshots {
		out = append(out, code)
	}
	return out, nil
}

func (m *mockCache) SetCombatTimer(_ context.Context, code, battleKey string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[code] = battleKey
	m.ttls[code] = ttl
	return nil
}

func (m *mockCache) GetCombatTimer(_ context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers[code], nil
}

func (m *mockCache) ClearCombatTimer(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, code)
	delete(m.ttls, code)
	return nil
}

func (m *mockCache) DeleteSessionData(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, code)
	delete(m.timers, code)
	return nil
}

func (m *mockCache) timer(code string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers[code]
}

type sentEvent struct {
	target string
	event  string
	data   any
}

type mockBroadcaster struct {
	mu        sync.Mutex
	broadcast []sentEvent
	direct    []sentEvent
	detached  []string
	// onBroadcast, when set, runs for every session-wide event outside mu.
	onBroadcast func(code, eventType string)
}

func (m *mockBroadcaster) BroadcastSessionEvent(code, eventType string, data any) {
	m.mu.Lock()
	m.broadcast = append(m.broadcast, sentEvent{target: code, event: eventType, data: data})
	hook := m.onBroadcast
	m.mu.Unlock()
	if hook != nil {
		hook(code, eventType)
	}
}

func (m *mockBroadcaster) DetachFromSession(code, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detached = append(m.detached, code+"/"+connID)
}

func (m *mockBroadcaster) SendToConnection(connID, eventType string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direct = append(m.direct, sentEvent{target: connID, event: eventType, data: data})
}

func (m *mockBroadcaster) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = nil
	m.direct = nil
}

// broadcasts returns the payloads of session-wide events of one type.
func (m *mockBroadcaster) broadcasts(eventType string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.broadcast {
		if e.event == eventType {
			out = append(out, e.data)
		}
	}
	return out
}

// sentTo returns the payloads of direct events of one type to connID.
func (m *mockBroadcaster) sentTo(connID, eventType string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.direct {
		if e.target == connID && e.event == eventType {
			out = append(out, e.data)
		}
	}
	return out
}

// lastView returns the most recent state_update sent to connID.
func (m *mockBroadcaster) lastView(t *testing.T, connID string) PublicView {
	t.Helper()
	views := m.sentTo(connID, EventStateUpdate)
	if len(views) == 0 {
		t.Fatalf("no state_update sent to %s", connID)
	}
	return views[len(views)-1].(PublicView)
}

// mockAI plays the computer side. Nil funcs return the state unchanged.
type mockAI struct {
	mu          sync.Mutex
	fullRound   func(ctx context.Context, gs *conquest.GameState) (*conquest.GameState, error)
	factionTurn func(ctx context.Context, gs *conquest.GameState, f conquest.Faction) (*conquest.GameState, error)
	rounds      int
	turns       int
}

func (m *mockAI) ProcessFullRound(ctx context.Context, gs *conquest.GameState) (*conquest.GameState, error) {
	m.mu.Lock()
	m.rounds++
	fn := m.fullRound
	m.mu.Unlock()
	if fn == nil {
		return gs, nil
	}
	return fn(ctx, gs)
}

func (m *mockAI) ProcessFactionTurn(ctx context.Context, gs *conquest.GameState, f conquest.Faction) (*conquest.GameState, error) {
	m.mu.Lock()
	m.turns++
	fn := m.factionTurn
	m.mu.Unlock()
	if fn == nil {
		return gs, nil
	}
	return fn(ctx, gs, f)
}

func (m *mockAI) counts() (rounds, turns int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rounds, m.turns
}

const (
	blue  conquest.Faction = "blue"
	red   conquest.Faction = "red"
	green conquest.Faction = "green"
)

// testWorld returns a map with two human factions and a computer faction.
// Turn order is blue, red, green.
//
//	ash (red, garrison 3) --[ash-bel]-- bel (blue, garrison 3) --[bel-cor]-- cor (green, garrison 5)
//	ash --[ash-cor]-- cor --[cor-dun]-- dun (neutral)
func testWorld(armies ...conquest.Army) *conquest.GameState {
	return &conquest.GameState{
		Turn: 1,
		Settlements: map[string]conquest.Settlement{
			"ash": {ID: "ash", Name: "Ashford", Controller: red, Garrison: 3, Tax: 10},
			"bel": {ID: "bel", Name: "Belmont", Controller: blue, Garrison: 3, Tax: 10},
			"cor": {ID: "cor", Name: "Corran", Controller: green, Garrison: 5, Tax: 10},
			"dun": {ID: "dun", Name: "Dunmere", Tax: 5},
		},
		Roads: map[string]conquest.Road{
			"ash-bel": {ID: "ash-bel", From: "ash", To: "bel", Stages: []conquest.Stage{{}}},
			"ash-cor": {ID: "ash-cor", From: "ash", To: "cor", Stages: []conquest.Stage{{}}},
			"bel-cor": {ID: "bel-cor", From: "bel", To: "cor", Stages: []conquest.Stage{{}}},
			"cor-dun": {ID: "cor-dun", From: "cor", To: "dun", Stages: []conquest.Stage{{}}},
		},
		Armies: armies,
		Factions: map[conquest.Faction]conquest.FactionState{
			blue:  {Gold: 100},
			red:   {Gold: 100},
			green: {Gold: 100},
		},
	}
}

func army(id string, f conquest.Faction, strength int, pos, lastSafe conquest.Position) conquest.Army {
	return conquest.Army{ID: id, Faction: f, Strength: strength, Position: pos,
		Posture: conquest.PostureAggressive, LastSafe: lastSafe}
}

// defaultArmies places blue one step from cor and from ash, red at home and
// green in cor.
func defaultArmies() []conquest.Army {
	return []conquest.Army{
		army("b1", blue, 10, conquest.OnRoad("bel-cor", 0), conquest.At("bel")),
		army("b2", blue, 10, conquest.OnRoad("ash-bel", 0), conquest.At("bel")),
		army("r1", red, 10, conquest.At("ash"), conquest.Position{}),
		army("g1", green, 10, conquest.At("cor"), conquest.Position{}),
	}
}

type harness struct {
	svc   *TurnService
	bc    *mockBroadcaster
	arch  *mockArchive
	cache *mockCache
	ai    *mockAI
	clock time.Time
	code  string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		bc:    &mockBroadcaster{},
		arch:  newMockArchive(),
		cache: newMockCache(),
		ai:    &mockAI{},
		clock: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = NewTurnService(NewRegistry(), h.arch, h.cache, h.bc, h.ai, opts)
	h.svc.now = func() time.Time { return h.clock }
	return h
}

// start creates a session over gs with blue and red seated and green as the
// computer, then connects both humans as c-blue and c-red.
func (h *harness) start(t *testing.T, gs *conquest.GameState) {
	t.Helper()
	ctx := context.Background()
	view, err := h.svc.CreateSession(ctx, NewSession{
		Scenario:  "test",
		State:     gs,
		Seats:     map[conquest.Faction]string{blue: "u-blue", red: "u-red"},
		AIFaction: green,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	h.code = view.Code
	if _, err := h.svc.Join(ctx, h.code, "c-blue", "u-blue", ""); err != nil {
		t.Fatalf("Join blue: %v", err)
	}
	if _, err := h.svc.Join(ctx, h.code, "c-red", "u-red", ""); err != nil {
		t.Fatalf("Join red: %v", err)
	}
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	sess, ok := h.svc.Registry().Get(h.code)
	if !ok {
		t.Fatalf("session %s not registered", h.code)
	}
	return sess
}

func (h *harness) move(t *testing.T, conn, armyID string, to conquest.Position) {
	t.Helper()
	err := h.svc.PlayerAction(context.Background(), h.code, conn, conquest.Action{
		Type: conquest.ActionMove, Army: armyID, To: to,
	})
	if err != nil {
		t.Fatalf("move %s to %s: %v", armyID, to, err)
	}
}
