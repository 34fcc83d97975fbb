package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/encounter-sync/internal/config"
)

// Repository provides PostgreSQL-based data access for games, encounters,
// monsters, and participants. It is the source of truth; every cache in
// front of it is a rebuildable projection.
type Repository struct {
	pool          *pgxpool.Pool
	logger        *slog.Logger
	retryAttempts int
	retryDelay    time.Duration
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:          pool,
		logger:        logger,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			dm_id VARCHAR(64) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS encounters (
			id VARCHAR(64) PRIMARY KEY,
			game_id VARCHAR(64) NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			is_active BOOLEAN DEFAULT FALSE,
			turn_order JSONB DEFAULT '[]',
			current_participant_id VARCHAR(64),
			current_turn INT DEFAULT 0,
			round INT DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS encounter_monsters (
			id VARCHAR(64) PRIMARY KEY,
			encounter_id VARCHAR(64) NOT NULL REFERENCES encounters(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			max_hp INT NOT NULL,
			armor_class INT NOT NULL,
			quantity INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS monster_instances (
			id VARCHAR(64) PRIMARY KEY,
			monster_id VARCHAR(64) NOT NULL REFERENCES encounter_monsters(id) ON DELETE CASCADE,
			label VARCHAR(255) NOT NULL,
			current_hp INT NOT NULL,
			initiative INT DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS encounter_participants (
			id VARCHAR(64) PRIMARY KEY,
			encounter_id VARCHAR(64) NOT NULL REFERENCES encounters(id) ON DELETE CASCADE,
			character_id VARCHAR(64) NOT NULL,
			character_name VARCHAR(255) NOT NULL,
			initiative INT DEFAULT 0,
			current_hp INT NOT NULL,
			max_hp INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(encounter_id, character_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_encounters_game ON encounters(game_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_monsters_encounter ON encounter_monsters(encounter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_monster ON monster_instances(monster_id)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_encounter ON encounter_participants(encounter_id)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// withRetry runs fn, retrying with exponential backoff on transient errors
// only. Validation and not-found errors pass straight through.
func (r *Repository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := r.retryDelay
	for attempt := 0; attempt <= r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		r.logger.Warn("transient database error, retrying",
			"attempt", attempt+1,
			"error", err,
		)
	}
	return err
}

// isTransient reports whether an error is worth retrying: timeouts and
// connection-level faults, never SQL-level failures.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions; 57P03: cannot_connect_now
		return pgErr.Code[:2] == "08" || pgErr.Code == "57P03"
	}
	return pgconn.SafeToRetry(err)
}
