package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/cartridge/agentbridge/internal/types"
)

// Schema creates the table used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS matches (
	id         TEXT PRIMARY KEY,
	game       TEXT NOT NULL,
	status     TEXT NOT NULL,
	seats      JSONB NOT NULL,
	moves      JSONB NOT NULL,
	plies      INTEGER NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS matches_game_ended_at ON matches (game, ended_at DESC);`

// PostgresStore implements MatchStore backed by PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects with lib/pq and makes sure the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return NewPostgresStore(db), nil
}

// Close closes the underlying database.
func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) SaveMatch(ctx context.Context, result types.MatchResult) error {
	if err := result.Validate(); err != nil {
		return err
	}
	seats, err := json.Marshal(result.Seats)
	if err != nil {
		return fmt.Errorf("failed to encode seats: %w", err)
	}
	moves, err := json.Marshal(result.Moves)
	if err != nil {
		return fmt.Errorf("failed to encode moves: %w", err)
	}

	query := `
		INSERT INTO matches (id, game, status, seats, moves, plies, error, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = p.db.ExecContext(ctx, query,
		result.ID, result.Game, result.Status, seats, moves, result.Plies,
		result.Error, result.StartedAt, result.EndedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetMatch(ctx context.Context, id string) (types.MatchResult, error) {
	query := `
		SELECT id, game, status, seats, moves, plies, error, started_at, ended_at
		FROM matches WHERE id = $1`

	result, err := scanMatch(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.MatchResult{}, ErrNotFound
	}
	if err != nil {
		return types.MatchResult{}, fmt.Errorf("failed to get match: %w", err)
	}
	return result, nil
}

func (p *PostgresStore) ListMatches(ctx context.Context, game string, limit int) ([]types.MatchResult, error) {
	query := `
		SELECT id, game, status, seats, moves, plies, error, started_at, ended_at
		FROM matches
		WHERE ($1 = '' OR game = $1)
		ORDER BY ended_at DESC, id
		LIMIT NULLIF($2, 0)`

	if limit < 0 {
		limit = 0
	}
	rows, err := p.db.QueryContext(ctx, query, game, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var out []types.MatchResult
	for rows.Next() {
		result, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner) (types.MatchResult, error) {
	var (
		result       types.MatchResult
		seats, moves []byte
	)
	err := row.Scan(&result.ID, &result.Game, &result.Status, &seats, &moves,
		&result.Plies, &result.Error, &result.StartedAt, &result.EndedAt)
	if err != nil {
		return types.MatchResult{}, err
	}
	if err := json.Unmarshal(seats, &result.Seats); err != nil {
		return types.MatchResult{}, fmt.Errorf("decode seats: %w", err)
	}
	if err := json.Unmarshal(moves, &result.Moves); err != nil {
		return types.MatchResult{}, fmt.Errorf("decode moves: %w", err)
	}
	return result, nil
}

// isUniqueViolation reports a PostgreSQL unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
