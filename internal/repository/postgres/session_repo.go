package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/freeeve/warbands/internal/model"
)

// SessionRepo handles sessions and session_seats.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// CreateSession inserts a session with its seats.
func (r *SessionRepo) CreateSession(ctx context.Context, rec *model.SessionRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO sessions (code, scenario, turn_number, active_index, turn_order, ai_faction, initial_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING status, created_at, updated_at`,
		rec.Code, rec.Scenario, rec.TurnNumber, rec.ActiveIndex, pq.Array(rec.TurnOrder),
		nullStr(rec.AIFaction), nullJSON(rec.InitialState),
	).Scan(&rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err := insertSeats(ctx, tx, rec.Code, rec.Seats); err != nil {
		return err
	}
	return tx.Commit()
}

// FindSession returns a session with its seats, or nil if it does not exist.
func (r *SessionRepo) FindSession(ctx context.Context, code string) (*model.SessionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT code, scenario, status, winner, turn_number, active_index, turn_order, ai_faction,
		        initial_state, created_at, updated_at, finished_at
		 FROM sessions WHERE code = $1`, code)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if rec.Seats, err = r.listSeats(ctx, code); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListActive returns all unfinished sessions, oldest first, with seats.
func (r *SessionRepo) ListActive(ctx context.Context) ([]model.SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, scenario, status, winner, turn_number, active_index, turn_order, ai_faction,
		        initial_state, created_at, updated_at, finished_at
		 FROM sessions WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var recs []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Seats, err = r.listSeats(ctx, recs[i].Code); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// UpdateProgress records the turn position after a turn change.
func (r *SessionRepo) UpdateProgress(ctx context.Context, code string, turnNumber, activeIndex int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET turn_number = $1, active_index = $2, updated_at = now() WHERE code = $3`,
		turnNumber, activeIndex, code)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// UpdateSeats replaces the seat assignments of a session.
func (r *SessionRepo) UpdateSeats(ctx context.Context, code string, seats []model.Seat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_seats WHERE session_code = $1`, code); err != nil {
		return fmt.Errorf("clear seats: %w", err)
	}
	if err := insertSeats(ctx, tx, code, seats); err != nil {
		return err
	}
	return tx.Commit()
}

// SetFinished marks a session as finished.
func (r *SessionRepo) SetFinished(ctx context.Context, code, winner string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'finished', winner = $1, finished_at = now(), updated_at = now() WHERE code = $2`,
		nullStr(winner), code)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}

func (r *SessionRepo) listSeats(ctx context.Context, code string) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT faction, user_id FROM session_seats WHERE session_code = $1 ORDER BY faction`, code)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	defer rows.Close()

	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.Faction, &s.UserID); err != nil {
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func insertSeats(ctx context.Context, tx *sql.Tx, code string, seats []model.Seat) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO session_seats (session_code, faction, user_id) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("prepare insert seat: %w", err)
	}
	defer stmt.Close()

	for _, s := range seats {
		if _, err := stmt.ExecContext(ctx, code, s.Faction, s.UserID); err != nil {
			return fmt.Errorf("insert seat: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	var winner, aiFaction sql.NullString
	var initial []byte
	err := row.Scan(&rec.Code, &rec.Scenario, &rec.Status, &winner, &rec.TurnNumber, &rec.ActiveIndex,
		pq.Array(&rec.TurnOrder), &aiFaction, &initial, &rec.CreatedAt, &rec.UpdatedAt, &rec.FinishedAt)
	if err != nil {
		return nil, err
	}
	rec.Winner = winner.String
	rec.AIFaction = aiFaction.String
	rec.InitialState = initial
	return &rec, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
