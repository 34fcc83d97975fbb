// Package client is the Go SDK for the encounter sync API. It keeps a
// read-through cache of near-static reference data for the lifetime of the
// session and a short-TTL cache of per-game state, and guarantees that
// concurrent callers share a single in-flight fetch per collection.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/encounter-sync/internal/domain"
)

const defaultGameTTL = 15 * time.Second

// Client talks to the encounter sync API with local caching
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	group      singleflight.Group

	mu          sync.RWMutex
	reference   map[string][]domain.ReferenceItem
	initialized bool

	gameTTL    time.Duration
	encounters map[string]*gameEntry

	now func() time.Time
}

type gameEntry struct {
	encounters  []domain.Encounter
	lastUpdated time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithGameTTL overrides the per-game state TTL
func WithGameTTL(ttl time.Duration) Option {
	return func(c *Client) { c.gameTTL = ttl }
}

// New creates a new API client
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		reference:  make(map[string][]domain.ReferenceItem),
		gameTTL:    defaultGameTTL,
		encounters: make(map[string]*gameEntry),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize fetches every reference collection once. Idempotent and safe
// to call concurrently: callers racing on a not-yet-loaded collection share
// one underlying fetch.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.RLock()
	done := c.initialized
	c.mu.RUnlock()
	if done {
		return nil
	}

	for _, collection := range domain.ReferenceCollections {
		if err := c.loadReference(ctx, collection); err != nil {
			return fmt.Errorf("loading %s: %w", collection, err)
		}
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	return nil
}

// loadReference fetches one collection through singleflight, skipping the
// fetch entirely when it is already cached
func (c *Client) loadReference(ctx context.Context, collection string) error {
	c.mu.RLock()
	_, ok := c.reference[collection]
	c.mu.RUnlock()
	if ok {
		return nil
	}

	_, err, _ := c.group.Do("ref:"+collection, func() (interface{}, error) {
		// Re-check under the flight: a previous winner may have filled it
		c.mu.RLock()
		_, ok := c.reference[collection]
		c.mu.RUnlock()
		if ok {
			return nil, nil
		}

		var items []domain.ReferenceItem
		if err := c.getJSON(ctx, "/api/v1/reference/"+collection, &items); err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.reference[collection] = items
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// Races returns the cached race list, empty before Initialize resolves
func (c *Client) Races() []domain.ReferenceItem { return c.refSnapshot(domain.RefRaces) }

// Classes returns the cached class list
func (c *Client) Classes() []domain.ReferenceItem { return c.refSnapshot(domain.RefClasses) }

// Equipment returns the cached equipment list
func (c *Client) Equipment() []domain.ReferenceItem { return c.refSnapshot(domain.RefEquipment) }

// Spells returns the cached spell list
func (c *Client) Spells() []domain.ReferenceItem { return c.refSnapshot(domain.RefSpells) }

// Monsters returns the cached monster list
func (c *Client) Monsters() []domain.ReferenceItem { return c.refSnapshot(domain.RefMonsters) }

func (c *Client) refSnapshot(collection string) []domain.ReferenceItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := c.reference[collection]
	out := make([]domain.ReferenceItem, len(items))
	copy(out, items)
	return out
}

// GameEncounters returns a game's encounters, read through the local cache.
// Concurrent callers on a cold game share one fetch.
func (c *Client) GameEncounters(ctx context.Context, gameID string) ([]domain.Encounter, error) {
	c.mu.RLock()
	e, ok := c.encounters[gameID]
	fresh := ok && c.now().Sub(e.lastUpdated) <= c.gameTTL
	c.mu.RUnlock()
	if fresh {
		return e.encounters, nil
	}

	v, err, _ := c.group.Do("game:"+gameID, func() (interface{}, error) {
		var encounters []domain.Encounter
		if err := c.getJSON(ctx, "/api/v1/games/"+gameID+"/encounters", &encounters); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.encounters[gameID] = &gameEntry{encounters: encounters, lastUpdated: c.now()}
		c.mu.Unlock()
		return encounters, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Encounter), nil
}

// InvalidateGame drops the local copy of a game's state, called on local
// mutation or on receipt of a fan-out event
func (c *Client) InvalidateGame(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.encounters, gameID)
}

// HandleEvent patches local state for a received fan-out event. Unknown or
// partial payloads just invalidate the game; the next read re-fetches.
func (c *Client) HandleEvent(ev domain.GameEvent) {
	switch ev.Type {
	case domain.EventChatMessage:
		// Chat does not live in this cache
	default:
		c.InvalidateGame(ev.GameID)
	}
}

// getJSON issues a GET and unwraps the API response envelope
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("api error on %s: %s", path, envelope.Error)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
