package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/encounter-sync/internal/domain"
)

// EncounterCache maps a game ID to its full encounter list. It is a
// best-effort accelerator: the store stays the source of truth, and every
// mutator no-ops when the game is not currently cached, since the next Get
// miss repopulates from the store.
type EncounterCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry[[]domain.Encounter]
	defaultTTL time.Duration
	logger     *slog.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewEncounterCache creates an encounter list cache with the given default TTL
func NewEncounterCache(defaultTTL time.Duration, logger *slog.Logger) *EncounterCache {
	return &EncounterCache{
		entries:    make(map[string]*entry[[]domain.Encounter]),
		defaultTTL: defaultTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Get returns the cached encounter list for a game. ok is false on a miss or
// an expired entry. The returned encounters are deep copies: the in-place
// mutators patch nested slices under the cache lock, so a snapshot sharing
// their backing arrays would race with every later patch.
func (c *EncounterCache) Get(gameID string) ([]domain.Encounter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[gameID]
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	out := make([]domain.Encounter, len(e.value))
	copy(out, e.value)
	for i := range out {
		order := make([]string, len(out[i].TurnOrder))
		copy(order, out[i].TurnOrder)
		out[i].TurnOrder = order

		participants := make([]domain.EncounterParticipant, len(out[i].Participants))
		copy(participants, out[i].Participants)
		out[i].Participants = participants

		monsters := make([]domain.EncounterMonster, len(out[i].Monsters))
		copy(monsters, out[i].Monsters)
		for j := range monsters {
			instances := make([]domain.MonsterInstance, len(monsters[j].Instances))
			copy(instances, monsters[j].Instances)
			monsters[j].Instances = instances
		}
		out[i].Monsters = monsters
	}
	return out, true
}

// Set stores or replaces the encounter list for a game with the default TTL
func (c *EncounterCache) Set(gameID string, encounters []domain.Encounter) {
	c.SetWithTTL(gameID, encounters, c.defaultTTL)
}

// SetWithTTL stores or replaces the encounter list with an explicit TTL
func (c *EncounterCache) SetWithTTL(gameID string, encounters []domain.Encounter, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[gameID] = &entry[[]domain.Encounter]{
		value:       encounters,
		lastUpdated: c.now(),
		ttl:         ttl,
	}
}

// AddEncounter prepends an encounter to a cached list. Newest first matches
// the store's created_at DESC ordering.
func (c *EncounterCache) AddEncounter(gameID string, enc domain.Encounter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.live(gameID)
	if e == nil {
		return
	}
	e.value = append([]domain.Encounter{enc}, e.value...)
	e.lastUpdated = c.now()
}

// UpdateEncounter replaces the encounter with the given ID in a cached list
func (c *EncounterCache) UpdateEncounter(gameID string, enc domain.Encounter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.live(gameID)
	if e == nil {
		return
	}
	for i := range e.value {
		if e.value[i].ID == enc.ID {
			e.value[i] = enc
			e.lastUpdated = c.now()
			return
		}
	}
}

// RemoveEncounter deletes the encounter with the given ID from a cached list
func (c *EncounterCache) RemoveEncounter(gameID, encounterID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.live(gameID)
	if e == nil {
		return
	}
	filtered := e.value[:0]
	for _, enc := range e.value {
		if enc.ID != encounterID {
			filtered = append(filtered, enc)
		}
	}
	e.value = filtered
	e.lastUpdated = c.now()
}

// UpdateParticipant replaces a participant inside a cached encounter
func (c *EncounterCache) UpdateParticipant(gameID, encounterID string, p domain.EncounterParticipant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.live(gameID)
	if e == nil {
		return
	}
	for i := range e.value {
		if e.value[i].ID != encounterID {
			continue
		}
		for j := range e.value[i].Participants {
			if e.value[i].Participants[j].ID == p.ID {
				e.value[i].Participants[j] = p
				e.lastUpdated = c.now()
				return
			}
		}
		return
	}
}

// AddParticipant appends a participant to a cached encounter
func (c *EncounterCache) AddParticipant(gameID, encounterID string, p domain.EncounterParticipant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.live(gameID)
	if e == nil {
		return
	}
	for i := range e.value {
		if e.value[i].ID == encounterID {
			e.value[i].Participants = append(e.value[i].Participants, p)
			e.lastUpdated = c.now()
			return
		}
	}
}

// RemoveParticipant deletes a participant from a cached encounter
func (c *EncounterCache) RemoveParticipant(gameID, encounterID, participantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.live(gameID)
	if e == nil {
		return
	}
	for i := range e.value {
		if e.value[i].ID != encounterID {
			continue
		}
		participants := e.value[i].Participants[:0]
		for _, p := range e.value[i].Participants {
			if p.ID != participantID {
				participants = append(participants, p)
			}
		}
		e.value[i].Participants = participants
		e.lastUpdated = c.now()
		return
	}
}

// UpdateMonsterInstance replaces a monster instance inside a cached encounter
func (c *EncounterCache) UpdateMonsterInstance(gameID, encounterID string, inst domain.MonsterInstance) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.live(gameID)
	if e == nil {
		return
	}
	for i := range e.value {
		if e.value[i].ID != encounterID {
			continue
		}
		for j := range e.value[i].Monsters {
			for k := range e.value[i].Monsters[j].Instances {
				if e.value[i].Monsters[j].Instances[k].ID == inst.ID {
					e.value[i].Monsters[j].Instances[k] = inst
					e.lastUpdated = c.now()
					return
				}
			}
		}
		return
	}
}

// Invalidate unconditionally drops a game's entry, forcing the next read to
// hit the store
func (c *EncounterCache) Invalidate(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, gameID)
}

// Sweep removes expired entries and returns how many were dropped. Bounds
// memory from games that stop being accessed.
func (c *EncounterCache) Sweep() int {
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
		c.logger.Debug("swept expired encounter cache entries", "removed", removed)
	}
	return removed
}

// CachedGames returns the IDs of games with a live entry, for the refresh
// worker's reconciliation pass
func (c *EncounterCache) CachedGames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	ids := make([]string, 0, len(c.entries))
	for gameID, e := range c.entries {
		if !e.expired(now) {
			ids = append(ids, gameID)
		}
	}
	return ids
}

// Len returns the number of entries, expired included
func (c *EncounterCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// live returns the entry for a game if present and fresh, dropping it when
// expired. Callers hold the write lock.
func (c *EncounterCache) live(gameID string) *entry[[]domain.Encounter] {
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
