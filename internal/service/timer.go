package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisrepo "github.com/freeeve/warbands/internal/repository/redis"
)

// pollInterval is how often the fallback poller looks for overdue combat
// requests.
const pollInterval = 5 * time.Second

// TimerListener answers overdue combat requests. It listens for Redis
// keyspace notifications on expired combat timer keys and also polls the
// registry in case notifications are unavailable.
type TimerListener struct {
	rdb *redis.Client
	svc *TurnService
}

// NewTimerListener creates a TimerListener. rdb may be nil, in which case
// only the poller runs.
func NewTimerListener(rdb *redis.Client, svc *TurnService) *TimerListener {
	return &TimerListener{rdb: rdb, svc: svc}
}

// Start runs until ctx is done.
func (t *TimerListener) Start(ctx context.Context) {
	if t.rdb != nil {
		go t.listenKeyspace(ctx)
	}
	t.pollOverdue(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	defer pubsub.Close()

	log.Info().Msg("Combat timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

func (t *TimerListener) pollOverdue(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", pollInterval).Msg("Combat deadline poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Combat deadline poller stopped")
			return
		case <-ticker.C:
			t.svc.ExpireOverdue(ctx)
		}
	}
}

// handleExpiry processes an expired key. Only combat timer keys matter.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	code, ok := redisrepo.SessionCodeFromTimerKey(key)
	if !ok {
		return
	}
	log.Info().Str("session", code).Msg("Combat timer expired")
	if err := t.svc.ExpireCombatChoice(ctx, code); err != nil {
		log.Error().Err(err).Str("session", code).Msg("Failed to expire combat choice")
	}
}
