package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encounter-sync/internal/domain"
)

// countingServer serves reference collections and game encounters while
// counting hits per path
type countingServer struct {
	mu     sync.Mutex
	hits   map[string]int
	server *httptest.Server
}

func newCountingServer(t *testing.T) *countingServer {
	t.Helper()
	cs := &countingServer{hits: make(map[string]int)}

	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.hits[r.URL.Path]++
		cs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/reference/"):
			collection := strings.TrimPrefix(r.URL.Path, "/api/v1/reference/")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data": []domain.ReferenceItem{
					{Index: collection + "-1", Name: collection + " one"},
					{Index: collection + "-2", Name: collection + " two"},
				},
			})

		case strings.HasSuffix(r.URL.Path, "/encounters"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data": []domain.Encounter{
					{ID: "e1", GameID: "g1", Name: "Ambush", Round: 2},
				},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "not found",
			})
		}
	}))
	t.Cleanup(cs.server.Close)
	return cs
}

func (cs *countingServer) count(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.hits[path]
}

func newTestClient(t *testing.T, cs *countingServer, opts ...Option) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cs.server.URL, logger, opts...)
}

func TestInitializeLoadsAllCollections(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs)

	require.NoError(t, c.Initialize(context.Background()))

	assert.Len(t, c.Races(), 2)
	assert.Len(t, c.Classes(), 2)
	assert.Len(t, c.Equipment(), 2)
	assert.Len(t, c.Spells(), 2)
	assert.Len(t, c.Monsters(), 2)
}

func TestInitializeIdempotent(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs)

	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.Initialize(context.Background()))

	for _, collection := range domain.ReferenceCollections {
		assert.Equal(t, 1, cs.count("/api/v1/reference/"+collection), collection)
	}
}

func TestInitializeConcurrentCallersShareFetches(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs)

	var wg sync.WaitGroup
	var failures int64
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Initialize(context.Background()); err != nil {
				atomic.AddInt64(&failures, 1)
			}
		}()
	}
	wg.Wait()

	require.Zero(t, failures)
	for _, collection := range domain.ReferenceCollections {
		assert.Equal(t, 1, cs.count("/api/v1/reference/"+collection),
			"collection %s fetched more than once", collection)
	}
}

func TestGameEncountersReadThrough(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs)

	encounters, err := c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, encounters, 1)
	assert.Equal(t, "Ambush", encounters[0].Name)

	// Second read inside the TTL stays local
	_, err = c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, cs.count("/api/v1/games/g1/encounters"))
}

func TestGameEncountersTTLExpiry(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs, WithGameTTL(10*time.Second))

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	_, err := c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)

	clock = clock.Add(11 * time.Second)
	_, err = c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, 2, cs.count("/api/v1/games/g1/encounters"))
}

func TestInvalidateGameForcesRefetch(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs)

	_, err := c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)

	c.InvalidateGame("g1")

	_, err = c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, cs.count("/api/v1/games/g1/encounters"))
}

func TestHandleEventInvalidates(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs)

	_, err := c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)

	c.HandleEvent(domain.GameEvent{Type: domain.EventTurnAdvanced, GameID: "g1"})

	_, err = c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, cs.count("/api/v1/games/g1/encounters"))
}

func TestHandleEventChatKeepsCache(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs)

	_, err := c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)

	c.HandleEvent(domain.GameEvent{Type: domain.EventChatMessage, GameID: "g1"})

	_, err = c.GameEncounters(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, cs.count("/api/v1/games/g1/encounters"), "chat events do not touch encounter state")
}

func TestAPIErrorSurfaces(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs)

	var out []domain.ReferenceItem
	err := c.getJSON(context.Background(), "/api/v1/nope", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRefSnapshotIsACopy(t *testing.T) {
	cs := newCountingServer(t)
	c := newTestClient(t, cs)

	require.NoError(t, c.Initialize(context.Background()))

	races := c.Races()
	races[0].Name = "mutated"
	assert.Equal(t, fmt.Sprintf("%s one", domain.RefRaces), c.Races()[0].Name)
}
