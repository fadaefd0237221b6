package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/warbands/internal/model"
)

// BattleRepo stores the resolved battle log.
type BattleRepo struct {
	db *sql.DB
}

// NewBattleRepo creates a BattleRepo.
func NewBattleRepo(db *sql.DB) *BattleRepo {
	return &BattleRepo{db: db}
}

// RecordBattle appends one resolved battle.
func (r *BattleRepo) RecordBattle(ctx context.Context, rec *model.BattleRecord) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO battles (id, session_code, turn_number, attacker, defender, position, tactic, outcome, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING resolved_at`,
		rec.ID, rec.SessionCode, rec.TurnNumber, rec.Attacker, rec.Defender, rec.Position,
		rec.Tactic, rec.Outcome, string(rec.Detail),
	).Scan(&rec.ResolvedAt)
	if err != nil {
		return fmt.Errorf("record battle: %w", err)
	}
	return nil
}

// ListBattles returns a session's battles in resolution order.
func (r *BattleRepo) ListBattles(ctx context.Context, code string) ([]model.BattleRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_code, turn_number, attacker, defender, position, tactic, outcome, detail, resolved_at
		 FROM battles WHERE session_code = $1 ORDER BY resolved_at, id`, code)
	if err != nil {
		return nil, fmt.Errorf("list battles: %w", err)
	}
	defer rows.Close()

	var out []model.BattleRecord
	for rows.Next() {
		var b model.BattleRecord
		var detail []byte
		if err := rows.Scan(&b.ID, &b.SessionCode, &b.TurnNumber, &b.Attacker, &b.Defender, &b.Position,
			&b.Tactic, &b.Outcome, &detail, &b.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan battle: %w", err)
		}
		b.Detail = detail
		out = append(out, b)
	}
	return out, rows.Err()
}

// Archive combines the session and battle repositories.
type Archive struct {
	*SessionRepo
	*BattleRepo
}

// NewArchive creates an Archive over db.
func NewArchive(db *sql.DB) *Archive {
	return &Archive{SessionRepo: NewSessionRepo(db), BattleRepo: NewBattleRepo(db)}
}
