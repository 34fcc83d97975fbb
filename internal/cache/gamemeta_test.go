package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encounter-sync/internal/domain"
)

func newTestMetaCache(ttl time.Duration) (*GameMetaCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewGameMetaCache(ttl, testLogger())
	c.now = clock.now
	return c, clock
}

func meta(gameID, dmID string) domain.GameMeta {
	return domain.GameMeta{
		Game:             domain.Game{ID: gameID, Name: "Game " + gameID, DMID: dmID},
		ParticipantCount: 3,
		CharacterCount:   3,
		EncounterCount:   2,
	}
}

func TestGameMetaCacheSetGet(t *testing.T) {
	c, _ := newTestMetaCache(30 * time.Second)

	c.Set("g1", meta("g1", "dm-1"))

	got, ok := c.Get("g1")
	require.True(t, ok)
	assert.Equal(t, "dm-1", got.Game.DMID)
	assert.Equal(t, int64(3), got.ParticipantCount)
}

func TestGameMetaCacheExpiry(t *testing.T) {
	c, clock := newTestMetaCache(30 * time.Second)

	c.Set("g1", meta("g1", "dm-1"))
	clock.advance(31 * time.Second)

	_, ok := c.Get("g1")
	assert.False(t, ok)
}

func TestAdjustCounts(t *testing.T) {
	c, _ := newTestMetaCache(30 * time.Second)

	c.Set("g1", meta("g1", "dm-1"))
	c.AdjustCounts("g1", 1, 1, 0)
	c.AdjustCounts("g1", 0, 0, -1)

	got, ok := c.Get("g1")
	require.True(t, ok)
	assert.Equal(t, int64(4), got.ParticipantCount)
	assert.Equal(t, int64(4), got.CharacterCount)
	assert.Equal(t, int64(1), got.EncounterCount)
}

func TestAdjustCountsNoopWhenAbsent(t *testing.T) {
	c, _ := newTestMetaCache(30 * time.Second)

	c.AdjustCounts("g1", 1, 1, 1)

	_, ok := c.Get("g1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestUpdateGameKeepsCounts(t *testing.T) {
	c, _ := newTestMetaCache(30 * time.Second)

	c.Set("g1", meta("g1", "dm-1"))
	c.UpdateGame("g1", domain.Game{ID: "g1", Name: "renamed", DMID: "dm-1"})

	got, ok := c.Get("g1")
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Game.Name)
	assert.Equal(t, int64(3), got.ParticipantCount)
}

func TestGameMetaSweep(t *testing.T) {
	c, clock := newTestMetaCache(30 * time.Second)

	c.Set("old", meta("old", "dm-1"))
	clock.advance(20 * time.Second)
	c.Set("fresh", meta("fresh", "dm-2"))
	clock.advance(15 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}
