package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/warbands/internal/model"
)

// SessionArchive is the durable session metadata and battle log (Postgres).
type SessionArchive interface {
	CreateSession(ctx context.Context, rec *model.SessionRecord) error
	FindSession(ctx context.Context, code string) (*model.SessionRecord, error)
	ListActive(ctx context.Context) ([]model.SessionRecord, error)
	UpdateProgress(ctx context.Context, code string, turnNumber, activeIndex int) error
	UpdateSeats(ctx context.Context, code string, seats []model.Seat) error
	SetFinished(ctx context.Context, code, winner string) error
	RecordBattle(ctx context.Context, rec *model.BattleRecord) error
	ListBattles(ctx context.Context, code string) ([]model.BattleRecord, error)
}

// SessionCache holds live session snapshots and combat timers (Redis).
type SessionCache interface {
	SetSnapshot(ctx context.Context, code string, snapshot json.RawMessage) error
	GetSnapshot(ctx context.Context, code string) (json.RawMessage, error)
	ActiveCodes(ctx context.Context) ([]string, error)
	SetCombatTimer(ctx context.Context, code, battleKey string, ttl time.Duration) error
	GetCombatTimer(ctx context.Context, code string) (string, error)
	ClearCombatTimer(ctx context.Context, code string) error
	DeleteSessionData(ctx context.Context, code string) error
}
