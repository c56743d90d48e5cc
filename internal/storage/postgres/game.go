package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cairnhall/takserver/internal/game"
)

// ErrGameNotFound is returned when a game lookup yields no results.
var ErrGameNotFound = errors.New("game not found")

// GameRecord is the persisted form of a game session. Time fields are
// stored in whole seconds to match the wire protocol.
type GameRecord struct {
	ID         int64
	White      string
	Black      string
	Size       int
	Contingent int
	Increment  int
	Rated      bool
	Result     string
	Reason     string
	StartedAt  time.Time
	EndedAt    *time.Time
}

const gameColumns = `id, white, black, size, contingent, increment, rated, result, reason, started_at, ended_at`

// GameRepository persists game sessions and their move lists.
type GameRepository struct {
	db *pgxpool.Pool
}

// NewGameRepository creates a GameRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewGameRepository(db *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: db}
}

// Insert records a newly created game and returns its database id.
//
// Precondition: white and black must be non-empty and distinct.
func (r *GameRepository) Insert(ctx context.Context, white, black string, size int, tc game.TimeControl, rated bool) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO games (white, black, size, contingent, increment, rated)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		white, black, size,
		int(tc.Contingent/time.Second), int(tc.Increment/time.Second), rated,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting game: %w", err)
	}
	return id, nil
}

// RecordMove appends one move to a game's move list. Ply is zero-based
// and unique per game, so a replayed insert surfaces as a duplicate error
// rather than a corrupted history.
func (r *GameRepository) RecordMove(ctx context.Context, gameID int64, ply int, notation string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO moves (game_id, ply, notation) VALUES ($1, $2, $3)`,
		gameID, ply, notation,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("move %d already recorded for game %d", ply, gameID)
		}
		return fmt.Errorf("recording move: %w", err)
	}
	return nil
}

// Complete stamps a game with its terminal result and reason.
//
// Postcondition: Result, reason, and ended_at are set exactly once;
// re-completion returns ErrGameNotFound because the row no longer matches.
func (r *GameRepository) Complete(ctx context.Context, gameID int64, result game.Result, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE games SET result = $1, reason = $2, ended_at = now()
		 WHERE id = $3 AND ended_at IS NULL`,
		string(result), reason, gameID,
	)
	if err != nil {
		return fmt.Errorf("completing game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return nil
}

// Get retrieves a game record by id.
//
// Postcondition: Returns the GameRecord or ErrGameNotFound.
func (r *GameRepository) Get(ctx context.Context, gameID int64) (GameRecord, error) {
	var rec GameRecord
	err := r.db.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1`,
		gameID,
	).Scan(&rec.ID, &rec.White, &rec.Black, &rec.Size, &rec.Contingent,
		&rec.Increment, &rec.Rated, &rec.Result, &rec.Reason,
		&rec.StartedAt, &rec.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GameRecord{}, ErrGameNotFound
		}
		return GameRecord{}, fmt.Errorf("querying game: %w", err)
	}
	return rec, nil
}

// Moves returns a game's move notations in ply order.
func (r *GameRepository) Moves(ctx context.Context, gameID int64) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT notation FROM moves WHERE game_id = $1 ORDER BY ply`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying moves: %w", err)
	}
	defer rows.Close()

	var moves []string
	for rows.Next() {
		var notation string
		if err := rows.Scan(&notation); err != nil {
			return nil, fmt.Errorf("scanning move: %w", err)
		}
		moves = append(moves, notation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating moves: %w", err)
	}
	return moves, nil
}
