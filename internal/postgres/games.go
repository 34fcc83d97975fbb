package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/encounter-sync/internal/domain"
)

// CreateGame persists a new game
func (r *Repository) CreateGame(ctx context.Context, game domain.Game) error {
	query := `
		INSERT INTO games (id, name, dm_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx, query,
			game.ID, game.Name, game.DMID, game.CreatedAt, game.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating game: %w", err)
		}
		return nil
	})
}

// GetGame retrieves a game by ID
func (r *Repository) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	query := `
		SELECT id, name, dm_id, created_at, updated_at
		FROM games
		WHERE id = $1
	`
	var game domain.Game
	err := r.pool.QueryRow(ctx, query, gameID).Scan(
		&game.ID,
		&game.Name,
		&game.DMID,
		&game.CreatedAt,
		&game.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGameNotFound
		}
		return nil, fmt.Errorf("getting game: %w", err)
	}
	return &game, nil
}

// GetGameMeta retrieves a game together with its denormalized counts
func (r *Repository) GetGameMeta(ctx context.Context, gameID string) (*domain.GameMeta, error) {
	game, err := r.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			COUNT(p.id),
			COUNT(DISTINCT p.character_id),
			COUNT(DISTINCT e.id)
		FROM encounters e
		LEFT JOIN encounter_participants p ON p.encounter_id = e.id
		WHERE e.game_id = $1
	`
	meta := domain.GameMeta{Game: *game}
	err = r.pool.QueryRow(ctx, query, gameID).Scan(
		&meta.ParticipantCount,
		&meta.CharacterCount,
		&meta.EncounterCount,
	)
	if err != nil {
		return nil, fmt.Errorf("getting game counts: %w", err)
	}
	return &meta, nil
}

// GameExists checks if a game exists
func (r *Repository) GameExists(ctx context.Context, gameID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM games WHERE id = $1)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, gameID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking game existence: %w", err)
	}
	return exists, nil
}
