package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/encounter-sync/internal/domain"
)

// GameMetaCache maps a game ID to its metadata and denormalized counts.
// Counts churn with every join/leave, so the default TTL is much shorter
// than the encounter cache's.
type GameMetaCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry[domain.GameMeta]
	defaultTTL time.Duration
	logger     *slog.Logger

	now func() time.Time
}

// NewGameMetaCache creates a game metadata cache with the given default TTL
func NewGameMetaCache(defaultTTL time.Duration, logger *slog.Logger) *GameMetaCache {
	return &GameMetaCache{
		entries:    make(map[string]*entry[domain.GameMeta]),
		defaultTTL: defaultTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Get returns the cached metadata for a game. ok is false on a miss or an
// expired entry.
func (c *GameMetaCache) Get(gameID string) (domain.GameMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[gameID]
	if !ok || e.expired(c.now()) {
		return domain.GameMeta{}, false
	}
	return e.value, true
}

// Set stores or replaces the metadata for a game with the default TTL
func (c *GameMetaCache) Set(gameID string, meta domain.GameMeta) {
	c.SetWithTTL(gameID, meta, c.defaultTTL)
}

// SetWithTTL stores or replaces the metadata with an explicit TTL
func (c *GameMetaCache) SetWithTTL(gameID string, meta domain.GameMeta, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[gameID] = &entry[domain.GameMeta]{
		value:       meta,
		lastUpdated: c.now(),
		ttl:         ttl,
	}
}

// UpdateGame patches the game object inside a cached entry, leaving counts
// untouched. No-op when the game is not cached.
func (c *GameMetaCache) UpdateGame(gameID string, game domain.Game) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.live(gameID)
	if e == nil {
		return
	}
	e.value.Game = game
	e.lastUpdated = c.now()
}

// AdjustCounts applies deltas to the denormalized counts. No-op when the
// game is not cached.
func (c *GameMetaCache) AdjustCounts(gameID string, dParticipants, dCharacters, dEncounters int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.live(gameID)
	if e == nil {
		return
	}
	e.value.ParticipantCount += dParticipants
	e.value.CharacterCount += dCharacters
	e.value.EncounterCount += dEncounters
	e.lastUpdated = c.now()
}

// Invalidate unconditionally drops a game's entry
func (c *GameMetaCache) Invalidate(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, gameID)
}

// Sweep removes expired entries and returns how many were dropped
func (c *GameMetaCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for gameID, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, gameID)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("swept expired game meta cache entries", "removed", removed)
	}
	return removed
}

// Len returns the number of entries, expired included
func (c *GameMetaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *GameMetaCache) live(gameID string) *entry[domain.GameMeta] {
	e, ok := c.entries[gameID]
	if !ok {
		return nil
	}
	if e.expired(c.now()) {
		delete(c.entries, gameID)
		return nil
	}
	return e
}
