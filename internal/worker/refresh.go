package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/encounter-sync/internal/cache"
	"github.com/encounter-sync/internal/config"
	"github.com/encounter-sync/internal/domain"
)

// RefreshStore is the slice of the store the worker reconciles against
type RefreshStore interface {
	ListEncounters(ctx context.Context, gameID string) ([]domain.Encounter, error)
	GetGameMeta(ctx context.Context, gameID string) (*domain.GameMeta, error)
}

// RefreshWorker is the correctness backstop behind the best-effort fan-out:
// on a fixed interval it sweeps expired cache entries and re-fetches every
// cached game from the store, converging caches to the store's state even
// when fan-out events were missed.
type RefreshWorker struct {
	store      RefreshStore
	encounters *cache.EncounterCache
	meta       *cache.GameMetaCache
	config     *config.RefreshConfig
	logger     *slog.Logger
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(
	store RefreshStore,
	encounters *cache.EncounterCache,
	meta *cache.GameMetaCache,
	cfg *config.RefreshConfig,
	logger *slog.Logger,
) *RefreshWorker {
	return &RefreshWorker{
		store:      store,
		encounters: encounters,
		meta:       meta,
		config:     cfg,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background refresh process
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("refresh worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh process and waits for the loop to exit.
// Safe to call concurrently and repeatedly: stopCh is closed under the mutex
// by whichever caller still sees running set.
func (w *RefreshWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.logger.Info("refresh worker stopped")
	return nil
}

// run is the main worker loop
func (w *RefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refreshAll(ctx)
		}
	}
}

// refreshAll sweeps expired entries and reconciles every still-cached game
// against the store
func (w *RefreshWorker) refreshAll(ctx context.Context) {
	startTime := time.Now()

	swept := w.encounters.Sweep() + w.meta.Sweep()

	gameIDs := w.encounters.CachedGames()
	refreshed := 0
	errorCount := 0

	for _, gameID := range gameIDs {
		if err := w.RefreshGame(ctx, gameID); err != nil {
			w.logger.Warn("failed to refresh game cache",
				"game_id", gameID,
				"error", err,
			)
			errorCount++
		} else {
			refreshed++
		}
	}

	w.logger.Debug("refresh cycle completed",
		"duration", time.Since(startTime),
		"swept", swept,
		"refreshed", refreshed,
		"errors", errorCount,
	)
}

// RefreshGame re-fetches one game's encounter list and metadata from the
// store and replaces the cached copies
func (w *RefreshWorker) RefreshGame(ctx context.Context, gameID string) error {
	encounters, err := w.store.ListEncounters(ctx, gameID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			// The game is gone; drop its projections
			w.encounters.Invalidate(gameID)
			w.meta.Invalidate(gameID)
			return nil
		}
		return err
	}
	if encounters == nil {
		encounters = []domain.Encounter{}
	}
	w.encounters.Set(gameID, encounters)

	meta, err := w.store.GetGameMeta(ctx, gameID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			w.meta.Invalidate(gameID)
			return nil
		}
		return err
	}
	w.meta.Set(gameID, *meta)

	return nil
}

// IsRunning returns whether the worker is currently running
func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single refresh cycle (useful for manual triggers)
func (w *RefreshWorker) RunOnce(ctx context.Context) {
	w.refreshAll(ctx)
}
