package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "sessions:active"

// Key patterns for live session data.
func snapshotKey(code string) string    { return "session:" + code + ":snapshot" }
func combatTimerKey(code string) string { return "session:" + code + ":combat_timer" }

// SessionCodeFromTimerKey extracts the session code from an expired combat
// timer key. ok is false for any other key.
func SessionCodeFromTimerKey(key string) (code string, ok bool) {
	if !strings.HasPrefix(key, "session:") || !strings.HasSuffix(key, ":combat_timer") {
		return "", false
	}
	code = strings.TrimSuffix(strings.TrimPrefix(key, "session:"), ":combat_timer")
	return code, code != ""
}

// SetSnapshot stores a session snapshot and marks the session active.
func (c *Client) SetSnapshot(ctx context.Context, code string, snapshot json.RawMessage) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, snapshotKey(code), []byte(snapshot), 0)
		p.SAdd(ctx, activeSessionsKey, code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the stored snapshot, or nil if there is none.
func (c *Client) GetSnapshot(ctx context.Context, code string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return json.RawMessage(data), nil
}

// ActiveCodes lists sessions with a live snapshot.
func (c *Client) ActiveCodes(ctx context.Context) ([]string, error) {
	return c.rdb.SMembers(ctx, activeSessionsKey).Result()
}

// SetCombatTimer arms the combat choice timeout for the session's pending
// battle. Expiry is picked up through keyspace notifications.
func (c *Client) SetCombatTimer(ctx context.Context, code, battleKey string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, combatTimerKey(code), battleKey, ttl).Err()
}

// GetCombatTimer returns the battle key the timer was armed for, or "".
func (c *Client) GetCombatTimer(ctx context.Context, code string) (string, error) {
	key, err := c.rdb.Get(ctx, combatTimerKey(code)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return key, err
}

// ClearCombatTimer disarms the timer.
func (c *Client) ClearCombatTimer(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, combatTimerKey(code)).Err()
}

// DeleteSessionData removes all Redis data for a session (on game end).
func (c *Client) DeleteSessionData(ctx context.Context, code string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, snapshotKey(code), combatTimerKey(code))
		p.SRem(ctx, activeSessionsKey, code)
		return nil
	})
	return err
}
