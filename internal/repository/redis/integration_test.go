//go:build integration

package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/freeeve/warbands/internal/testutil"
)

var testRDB *goredis.Client

func setup(t *testing.T) *Client {
	t.Helper()
	if testRDB == nil {
		testRDB = testutil.SetupRedis(t)
	}
	testutil.CleanupRedis(t, testRDB)
	return &Client{rdb: testRDB}
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	snap := json.RawMessage(`{"code":"abc123","order":{"factions":["blue","red"],"index":1,"number":3}}`)
	if err := c.SetSnapshot(ctx, "abc123", snap); err != nil {
		t.Fatalf("set snapshot: %v", err)
	}

	got, err := c.GetSnapshot(ctx, "abc123")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	var fetched map[string]any
	if err := json.Unmarshal(got, &fetched); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fetched["code"] != "abc123" {
		t.Fatalf("snapshot round-trip failed: %s", string(got))
	}

	codes, err := c.ActiveCodes(ctx)
	if err != nil {
		t.Fatalf("active codes: %v", err)
	}
	if len(codes) != 1 || codes[0] != "abc123" {
		t.Errorf("expected [abc123], got %v", codes)
	}
}

func TestSnapshotNotFound(t *testing.T) {
	c := setup(t)
	got, err := c.GetSnapshot(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get missing snapshot: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %s", string(got))
	}
}

func TestCombatTimerWithTTL(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	if err := c.SetCombatTimer(ctx, "abc123", "bel|red>blue", time.Minute); err != nil {
		t.Fatalf("set timer: %v", err)
	}
	ttl := testRDB.TTL(ctx, combatTimerKey("abc123")).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected TTL within a minute, got %v", ttl)
	}
	key, err := c.GetCombatTimer(ctx, "abc123")
	if err != nil || key != "bel|red>blue" {
		t.Fatalf("expected battle key, got %q, %v", key, err)
	}

	if err := c.ClearCombatTimer(ctx, "abc123"); err != nil {
		t.Fatalf("clear timer: %v", err)
	}
	if key, _ := c.GetCombatTimer(ctx, "abc123"); key != "" {
		t.Errorf("expected timer cleared, got %q", key)
	}
}

func TestDeleteSessionData(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	c.SetSnapshot(ctx, "abc123", json.RawMessage(`{}`))
	c.SetCombatTimer(ctx, "abc123", "k", time.Minute)

	if err := c.DeleteSessionData(ctx, "abc123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := c.GetSnapshot(ctx, "abc123"); got != nil {
		t.Error("snapshot should be gone")
	}
	if codes, _ := c.ActiveCodes(ctx); len(codes) != 0 {
		t.Errorf("expected no active sessions, got %v", codes)
	}
}
