//go:build integration

package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/freeeve/warbands/internal/repository/postgres"
	redisrepo "github.com/freeeve/warbands/internal/repository/redis"
	"github.com/freeeve/warbands/internal/testutil"
	"github.com/freeeve/warbands/pkg/conquest"
)

// testEnv holds shared test infrastructure.
type testEnv struct {
	db      *sql.DB
	rdb     *goredis.Client
	archive *postgres.Archive
	cache   *redisrepo.Client
}

var env *testEnv

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	if env == nil {
		db := testutil.SetupDB(t)
		rdb := testutil.SetupRedis(t)
		env = &testEnv{
			db:      db,
			rdb:     rdb,
			archive: postgres.NewArchive(db),
			cache:   redisrepo.Wrap(rdb),
		}
	}
	testutil.CleanupDB(t, env.db)
	testutil.CleanupRedis(t, env.rdb)
	return env
}

func newIntegrationService(e *testEnv, bc Broadcaster, opts Options) *TurnService {
	return NewTurnService(NewRegistry(), e.archive, e.cache, bc, &mockAI{}, opts)
}

func createIntegrationSession(t *testing.T, svc *TurnService) string {
	t.Helper()
	view, err := svc.CreateSession(context.Background(), NewSession{
		Scenario:  "integration",
		State:     testWorld(defaultArmies()...),
		Seats:     map[conquest.Faction]string{blue: "u-blue", red: "u-red"},
		AIFaction: green,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return view.Code
}

func TestIntegrationSessionLifecycle(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	svc := newIntegrationService(e, &mockBroadcaster{}, Options{})
	code := createIntegrationSession(t, svc)

	rec, err := e.archive.FindSession(ctx, code)
	if err != nil || rec == nil {
		t.Fatalf("FindSession = %v, %v", rec, err)
	}
	if len(rec.Seats) != 2 || rec.AIFaction != "green" {
		t.Errorf("archived record = %+v", rec)
	}

	if _, err := svc.Join(ctx, code, "c-blue", "u-blue", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Join(ctx, code, "c-red", "u-red", ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.EndTurn(ctx, code, "c-blue"); err != nil {
		t.Fatal(err)
	}
	if err := svc.EndTurn(ctx, code, "c-red"); err != nil {
		t.Fatal(err)
	}

	rec, _ = e.archive.FindSession(ctx, code)
	if rec.TurnNumber != 2 || rec.ActiveIndex != 0 {
		t.Errorf("archived progress = turn %d index %d, want 2 and 0", rec.TurnNumber, rec.ActiveIndex)
	}
	raw, err := e.cache.GetSnapshot(ctx, code)
	if err != nil || raw == nil {
		t.Fatalf("snapshot = %s, %v", raw, err)
	}
}

func TestIntegrationBattleLogAndRecovery(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	bc := &mockBroadcaster{}
	svc := newIntegrationService(e, bc, Options{CombatChoiceTimeout: time.Minute})
	code := createIntegrationSession(t, svc)

	if _, err := svc.Join(ctx, code, "c-blue", "u-blue", ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.PlayerAction(ctx, code, "c-blue", conquest.Action{
		Type: conquest.ActionMove, Army: "b1", To: conquest.At("cor"),
	}); err != nil {
		t.Fatal(err)
	}
	if key, _ := e.cache.GetCombatTimer(ctx, code); key == "" {
		t.Error("combat timer not armed")
	}

	restarted := newIntegrationService(e, bc, Options{})
	if err := restarted.RecoverSessions(ctx); err != nil {
		t.Fatalf("RecoverSessions: %v", err)
	}
	if key, _ := e.cache.GetCombatTimer(ctx, code); key != "" {
		t.Error("stale combat timer survived recovery")
	}
	if _, err := restarted.Join(ctx, code, "c-blue-2", "u-blue", ""); err != nil {
		t.Fatal(err)
	}
	if err := restarted.CombatChoice(ctx, code, "c-blue-2", "siege", 0); err != nil {
		t.Fatalf("CombatChoice after recovery: %v", err)
	}

	battles, err := e.archive.ListBattles(ctx, code)
	if err != nil {
		t.Fatal(err)
	}
	if len(battles) != 1 || battles[0].Tactic != "siege" || battles[0].Position != "cor" {
		t.Errorf("battle log = %+v", battles)
	}
}
