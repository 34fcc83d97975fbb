package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encounter-sync/internal/cache"
	"github.com/encounter-sync/internal/domain"
)

// fakeStore is an in-memory Store that records call order and can be primed
// to fail specific operations
type fakeStore struct {
	mu           sync.Mutex
	games        map[string]domain.Game
	encounters   map[string]domain.Encounter
	monsters     map[string]domain.EncounterMonster
	instances    map[string]instanceRecord
	participants map[string]domain.EncounterParticipant
	calls        []string
	failOn       map[string]error
}

type instanceRecord struct {
	inst  domain.MonsterInstance
	encID string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		games:        make(map[string]domain.Game),
		encounters:   make(map[string]domain.Encounter),
		monsters:     make(map[string]domain.EncounterMonster),
		instances:    make(map[string]instanceRecord),
		participants: make(map[string]domain.EncounterParticipant),
		failOn:       make(map[string]error),
	}
}

func (s *fakeStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
	return s.failOn[op]
}

func (s *fakeStore) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *fakeStore) CreateGame(ctx context.Context, game domain.Game) error {
	if err := s.record("CreateGame"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID] = game
	return nil
}

func (s *fakeStore) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	if err := s.record("GetGame"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return &g, nil
}

func (s *fakeStore) GetGameMeta(ctx context.Context, gameID string) (*domain.GameMeta, error) {
	if err := s.record("GetGameMeta"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	meta := domain.GameMeta{Game: g}
	for _, enc := range s.encounters {
		if enc.GameID == gameID {
			meta.EncounterCount++
		}
	}
	return &meta, nil
}

func (s *fakeStore) GameExists(ctx context.Context, gameID string) (bool, error) {
	if err := s.record("GameExists"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.games[gameID]
	return ok, nil
}

func (s *fakeStore) CreateEncounter(ctx context.Context, enc domain.Encounter) error {
	if err := s.record("CreateEncounter"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encounters[enc.ID] = enc
	return nil
}

func (s *fakeStore) GetEncounter(ctx context.Context, encounterID string) (*domain.Encounter, error) {
	if err := s.record("GetEncounter"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	enc, ok := s.encounters[encounterID]
	if !ok {
		return nil, domain.ErrEncounterNotFound
	}
	return &enc, nil
}

func (s *fakeStore) ListEncounters(ctx context.Context, gameID string) ([]domain.Encounter, error) {
	if err := s.record("ListEncounters"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Encounter
	for _, enc := range s.encounters {
		if enc.GameID == gameID {
			out = append(out, enc)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateEncounter(ctx context.Context, enc domain.Encounter) error {
	if err := s.record("UpdateEncounter"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.encounters[enc.ID]; !ok {
		return domain.ErrEncounterNotFound
	}
	s.encounters[enc.ID] = enc
	return nil
}

func (s *fakeStore) DeleteEncounter(ctx context.Context, encounterID string) error {
	if err := s.record("DeleteEncounter"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.encounters, encounterID)
	return nil
}

func (s *fakeStore) AddMonster(ctx context.Context, monster domain.EncounterMonster) error {
	if err := s.record("AddMonster"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monsters[monster.ID] = monster
	for _, inst := range monster.Instances {
		s.instances[inst.ID] = instanceRecord{inst: inst, encID: monster.EncounterID}
	}
	enc := s.encounters[monster.EncounterID]
	enc.Monsters = append(enc.Monsters, monster)
	s.encounters[monster.EncounterID] = enc
	return nil
}

func (s *fakeStore) GetMonsterInstance(ctx context.Context, instanceID string) (*domain.MonsterInstance, string, error) {
	if err := s.record("GetMonsterInstance"); err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.instances[instanceID]
	if !ok {
		return nil, "", domain.ErrInstanceNotFound
	}
	inst := rec.inst
	return &inst, rec.encID, nil
}

func (s *fakeStore) UpdateMonsterInstance(ctx context.Context, inst domain.MonsterInstance) error {
	if err := s.record("UpdateMonsterInstance"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.instances[inst.ID]
	if !ok {
		return domain.ErrInstanceNotFound
	}
	rec.inst = inst
	s.instances[inst.ID] = rec
	return nil
}

func (s *fakeStore) AddParticipant(ctx context.Context, p domain.EncounterParticipant) error {
	if err := s.record("AddParticipant"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.participants {
		if existing.EncounterID == p.EncounterID && existing.CharacterID == p.CharacterID {
			return domain.ErrParticipantExists
		}
	}
	s.participants[p.ID] = p
	return nil
}

func (s *fakeStore) GetParticipant(ctx context.Context, participantID string) (*domain.EncounterParticipant, error) {
	if err := s.record("GetParticipant"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return &p, nil
}

func (s *fakeStore) UpdateParticipant(ctx context.Context, p domain.EncounterParticipant) error {
	if err := s.record("UpdateParticipant"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; !ok {
		return domain.ErrParticipantNotFound
	}
	s.participants[p.ID] = p
	return nil
}

func (s *fakeStore) RemoveParticipant(ctx context.Context, participantID string) error {
	if err := s.record("RemoveParticipant"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, participantID)
	return nil
}

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	events []domain.GameEvent
}

func (p *fakePublisher) Publish(ctx context.Context, event domain.GameEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) published() []domain.GameEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.GameEvent, len(p.events))
	copy(out, p.events)
	return out
}

type fixture struct {
	store      *fakeStore
	publisher  *fakePublisher
	encounters *cache.EncounterCache
	meta       *cache.GameMetaCache
	chat       *cache.ChatBuffer
	svc        *EncounterService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:      newFakeStore(),
		publisher:  &fakePublisher{},
		encounters: cache.NewEncounterCache(30*time.Minute, logger),
		meta:       cache.NewGameMetaCache(30*time.Second, logger),
		chat:       cache.NewChatBuffer(100),
	}
	f.svc = NewEncounterService(f.store, f.encounters, f.meta, f.chat, f.publisher, logger)
	return f
}

// seedGame puts a game into the store directly, bypassing the service
func (f *fixture) seedGame(id, dmID string) {
	f.store.games[id] = domain.Game{ID: id, Name: "Game " + id, DMID: dmID}
}

func (f *fixture) seedEncounter(id, gameID string) domain.Encounter {
	enc := domain.Encounter{
		ID:           id,
		GameID:       gameID,
		Name:         "Encounter " + id,
		TurnOrder:    []string{},
		Round:        1,
		Monsters:     []domain.EncounterMonster{},
		Participants: []domain.EncounterParticipant{},
	}
	f.store.encounters[id] = enc
	return enc
}

func TestCreateGame(t *testing.T) {
	f := newFixture(t)

	game, err := f.svc.CreateGame(context.Background(), domain.CreateGameRequest{Name: "Curse of Strahd", DMID: "dm-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, game.ID)
	assert.Equal(t, "dm-1", game.DMID)

	// Metadata is cached immediately, so the DM check on the next mutation
	// does not hit the store
	meta, ok := f.meta.Get(game.ID)
	require.True(t, ok)
	assert.Equal(t, "dm-1", meta.Game.DMID)
}

func TestCreateGameValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateGame(context.Background(), domain.CreateGameRequest{Name: "", DMID: "dm-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.CreateGame(context.Background(), domain.CreateGameRequest{Name: "x", DMID: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGetGameMetaReadThrough(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")

	meta, err := f.svc.GetGameMeta(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "dm-1", meta.Game.DMID)

	// Second read comes from the cache
	_, err = f.svc.GetGameMeta(context.Background(), "g1")
	require.NoError(t, err)

	count := 0
	for _, call := range f.store.callLog() {
		if call == "GetGameMeta" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestListEncountersUnknownGame(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListEncounters(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrGameNotFound)
}

func TestListEncountersCachesEmptyList(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")

	encounters, err := f.svc.ListEncounters(context.Background(), "g1")
	require.NoError(t, err)
	assert.Empty(t, encounters)

	// The empty list is a valid cached value, not a miss
	cached, ok := f.encounters.Get("g1")
	require.True(t, ok)
	assert.Empty(t, cached)
}

func TestCreateEncounterRequiresDM(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")

	_, err := f.svc.CreateEncounter(context.Background(), "g1", "player-1", domain.CreateEncounterRequest{Name: "Ambush"})
	require.ErrorIs(t, err, domain.ErrNotDM)

	// Rejected before any effect
	assert.NotContains(t, f.store.callLog(), "CreateEncounter")
	assert.Empty(t, f.publisher.published())
}

func TestCreateEncounter(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.encounters.Set("g1", []domain.Encounter{})
	f.meta.Set("g1", domain.GameMeta{Game: domain.Game{ID: "g1", DMID: "dm-1"}})

	enc, err := f.svc.CreateEncounter(context.Background(), "g1", "dm-1", domain.CreateEncounterRequest{Name: "Ambush"})
	require.NoError(t, err)
	assert.Equal(t, 1, enc.Round)
	assert.Empty(t, enc.TurnOrder)

	// Cache patched in place
	cached, ok := f.encounters.Get("g1")
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, enc.ID, cached[0].ID)

	meta, _ := f.meta.Get("g1")
	assert.Equal(t, int64(1), meta.EncounterCount)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventEncounterCreated, events[0].Type)
	assert.Equal(t, "g1", events[0].GameID)
}

func TestCreateEncounterStoreFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.encounters.Set("g1", []domain.Encounter{})
	f.store.failOn["CreateEncounter"] = errors.New("pg down")

	_, err := f.svc.CreateEncounter(context.Background(), "g1", "dm-1", domain.CreateEncounterRequest{Name: "Ambush"})
	require.Error(t, err)

	cached, ok := f.encounters.Get("g1")
	require.True(t, ok)
	assert.Empty(t, cached, "failed write must not patch the cache")
	assert.Empty(t, f.publisher.published(), "failed write must not fan out")
}

func TestUpdateEncounterPartialPatch(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	enc := f.seedEncounter("e1", "g1")
	f.encounters.Set("g1", []domain.Encounter{enc})

	name := "Renamed"
	active := true
	updated, err := f.svc.UpdateEncounter(context.Background(), "g1", "e1", "dm-1", domain.UpdateEncounterRequest{
		Name:     &name,
		IsActive: &active,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.True(t, updated.IsActive)
	assert.Equal(t, "Renamed", f.store.encounters["e1"].Name, "patch persisted to the store")
}

func TestUpdateEncounterTurnOrderClampsPointer(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	enc := f.seedEncounter("e1", "g1")
	enc.TurnOrder = []string{"a", "b", "c"}
	enc.CurrentTurn = 2
	f.store.encounters["e1"] = enc

	order := []string{"a"}
	updated, err := f.svc.UpdateEncounter(context.Background(), "g1", "e1", "dm-1", domain.UpdateEncounterRequest{TurnOrder: &order})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.CurrentTurn)
	assert.Equal(t, "a", updated.CurrentParticipantID)
}

func TestUpdateEncounterCrossGameReadsAsNotFound(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedGame("g2", "dm-1")
	f.seedEncounter("e1", "g2")

	name := "x"
	_, err := f.svc.UpdateEncounter(context.Background(), "g1", "e1", "dm-1", domain.UpdateEncounterRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrEncounterNotFound)
}

func TestDeleteEncounter(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	enc := f.seedEncounter("e1", "g1")
	f.encounters.Set("g1", []domain.Encounter{enc})

	require.NoError(t, f.svc.DeleteEncounter(context.Background(), "g1", "e1", "dm-1"))

	cached, ok := f.encounters.Get("g1")
	require.True(t, ok)
	assert.Empty(t, cached)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventEncounterDeleted, events[0].Type)
	assert.Equal(t, map[string]string{"id": "e1"}, events[0].Data)
}

func TestAddMonsterCreatesInstances(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	monster, err := f.svc.AddMonster(context.Background(), "g1", "e1", "dm-1", domain.AddMonsterRequest{
		Name:       "Goblin",
		MaxHP:      7,
		ArmorClass: 15,
		Quantity:   6,
	})
	require.NoError(t, err)
	require.Len(t, monster.Instances, 6)

	for i, inst := range monster.Instances {
		assert.Equal(t, 7, inst.CurrentHP, "instances start at max HP")
		assert.Equal(t, monster.ID, inst.MonsterID)
		assert.NotEmpty(t, inst.ID)
		if i == 0 {
			assert.Equal(t, "Goblin 1", inst.Label)
		}
	}
	assert.Equal(t, "Goblin 6", monster.Instances[5].Label)

	// Each instance is independently addressable in the store
	inst, encID, err := f.store.GetMonsterInstance(context.Background(), monster.Instances[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "e1", encID)
	assert.Equal(t, "Goblin 3", inst.Label)
}

func TestAddThreeMonstersQuantityTwoEach(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	enc := f.seedEncounter("e1", "g1")
	f.encounters.Set("g1", []domain.Encounter{enc})

	for _, name := range []string{"Goblin", "Wolf", "Skeleton"} {
		_, err := f.svc.AddMonster(context.Background(), "g1", "e1", "dm-1", domain.AddMonsterRequest{
			Name:     name,
			MaxHP:    11,
			Quantity: 2,
		})
		require.NoError(t, err)
	}

	cached, ok := f.encounters.Get("g1")
	require.True(t, ok)
	require.Len(t, cached[0].Monsters, 3)

	total := 0
	for _, m := range cached[0].Monsters {
		for _, inst := range m.Instances {
			assert.Equal(t, 11, inst.CurrentHP)
			total++
		}
	}
	assert.Equal(t, 6, total)
}

func TestAddMonsterValidation(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	_, err := f.svc.AddMonster(context.Background(), "g1", "e1", "dm-1", domain.AddMonsterRequest{Name: "Goblin", MaxHP: 7, Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.AddMonster(context.Background(), "g1", "e1", "dm-1", domain.AddMonsterRequest{Name: "Goblin", MaxHP: 0, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestUpdateMonsterInstance(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	monster, err := f.svc.AddMonster(context.Background(), "g1", "e1", "dm-1", domain.AddMonsterRequest{Name: "Ogre", MaxHP: 59, Quantity: 1})
	require.NoError(t, err)
	instID := monster.Instances[0].ID

	hp := 42
	inst, err := f.svc.UpdateMonsterInstance(context.Background(), "g1", "e1", instID, "dm-1", domain.UpdateInstanceRequest{CurrentHP: &hp})
	require.NoError(t, err)
	assert.Equal(t, 42, inst.CurrentHP)

	events := f.publisher.published()
	last := events[len(events)-1]
	assert.Equal(t, domain.EventMonsterUpdated, last.Type)
}

func TestUpdateMonsterInstanceWrongEncounter(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")
	f.seedEncounter("e2", "g1")

	monster, err := f.svc.AddMonster(context.Background(), "g1", "e1", "dm-1", domain.AddMonsterRequest{Name: "Ogre", MaxHP: 59, Quantity: 1})
	require.NoError(t, err)

	hp := 1
	_, err = f.svc.UpdateMonsterInstance(context.Background(), "g1", "e2", monster.Instances[0].ID, "dm-1", domain.UpdateInstanceRequest{CurrentHP: &hp})
	assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
}

func TestJoinEncounter(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	enc := f.seedEncounter("e1", "g1")
	f.encounters.Set("g1", []domain.Encounter{enc})
	f.meta.Set("g1", domain.GameMeta{Game: domain.Game{ID: "g1", DMID: "dm-1"}})

	p, err := f.svc.JoinEncounter(context.Background(), "g1", "e1", domain.JoinEncounterRequest{
		CharacterID:   "char-1",
		CharacterName: "Thia",
		MaxHP:         24,
	})
	require.NoError(t, err)
	assert.Equal(t, 24, p.CurrentHP, "joins at full HP")

	cached, _ := f.encounters.Get("g1")
	require.Len(t, cached[0].Participants, 1)

	meta, _ := f.meta.Get("g1")
	assert.Equal(t, int64(1), meta.ParticipantCount)
	assert.Equal(t, int64(1), meta.CharacterCount)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventParticipantJoined, events[0].Type)
}

func TestJoinSecondEncounterCountsCharacterOnce(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	encA := f.seedEncounter("e1", "g1")
	encB := f.seedEncounter("e2", "g1")
	f.encounters.Set("g1", []domain.Encounter{encA, encB})
	f.meta.Set("g1", domain.GameMeta{Game: domain.Game{ID: "g1", DMID: "dm-1"}})

	req := domain.JoinEncounterRequest{CharacterID: "char-1", CharacterName: "Thia", MaxHP: 24}

	pA, err := f.svc.JoinEncounter(context.Background(), "g1", "e1", req)
	require.NoError(t, err)
	pB, err := f.svc.JoinEncounter(context.Background(), "g1", "e2", req)
	require.NoError(t, err)

	// Character count is distinct across the game, matching the store's
	// COUNT(DISTINCT character_id)
	meta, ok := f.meta.Get("g1")
	require.True(t, ok)
	assert.Equal(t, int64(2), meta.ParticipantCount)
	assert.Equal(t, int64(1), meta.CharacterCount)

	// Leaving one encounter keeps the character counted; leaving the last
	// participation drops it
	require.NoError(t, f.svc.LeaveEncounter(context.Background(), "g1", "e1", pA.ID, "char-1"))
	meta, _ = f.meta.Get("g1")
	assert.Equal(t, int64(1), meta.ParticipantCount)
	assert.Equal(t, int64(1), meta.CharacterCount)

	require.NoError(t, f.svc.LeaveEncounter(context.Background(), "g1", "e2", pB.ID, "char-1"))
	meta, _ = f.meta.Get("g1")
	assert.Equal(t, int64(0), meta.ParticipantCount)
	assert.Equal(t, int64(0), meta.CharacterCount)
}

func TestJoinEncounterDuplicateCharacter(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	req := domain.JoinEncounterRequest{CharacterID: "char-1", CharacterName: "Thia", MaxHP: 24}
	_, err := f.svc.JoinEncounter(context.Background(), "g1", "e1", req)
	require.NoError(t, err)

	_, err = f.svc.JoinEncounter(context.Background(), "g1", "e1", req)
	assert.ErrorIs(t, err, domain.ErrParticipantExists)
}

func TestLeaveEncounterSelf(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	p, err := f.svc.JoinEncounter(context.Background(), "g1", "e1", domain.JoinEncounterRequest{
		CharacterID: "char-1", CharacterName: "Thia", MaxHP: 24,
	})
	require.NoError(t, err)

	// The character itself may leave without being DM
	require.NoError(t, f.svc.LeaveEncounter(context.Background(), "g1", "e1", p.ID, "char-1"))

	_, err = f.store.GetParticipant(context.Background(), p.ID)
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func TestLeaveEncounterStrangerRejected(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	p, err := f.svc.JoinEncounter(context.Background(), "g1", "e1", domain.JoinEncounterRequest{
		CharacterID: "char-1", CharacterName: "Thia", MaxHP: 24,
	})
	require.NoError(t, err)

	err = f.svc.LeaveEncounter(context.Background(), "g1", "e1", p.ID, "char-2")
	require.ErrorIs(t, err, domain.ErrNotDM)

	// Still present
	_, err = f.store.GetParticipant(context.Background(), p.ID)
	assert.NoError(t, err)
}

func TestLeaveEncounterByDM(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	p, err := f.svc.JoinEncounter(context.Background(), "g1", "e1", domain.JoinEncounterRequest{
		CharacterID: "char-1", CharacterName: "Thia", MaxHP: 24,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.LeaveEncounter(context.Background(), "g1", "e1", p.ID, "dm-1"))
}

func TestSetInitiative(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	enc := f.seedEncounter("e1", "g1")

	p, err := f.svc.JoinEncounter(context.Background(), "g1", "e1", domain.JoinEncounterRequest{
		CharacterID: "char-1", CharacterName: "Thia", MaxHP: 24,
	})
	require.NoError(t, err)

	enc.Participants = append(enc.Participants, *p)
	f.encounters.Set("g1", []domain.Encounter{enc})

	updated, err := f.svc.SetInitiative(context.Background(), "g1", "e1", "dm-1", domain.SetInitiativeRequest{
		ParticipantID: p.ID,
		Initiative:    18,
	})
	require.NoError(t, err)
	assert.Equal(t, 18, updated.Initiative)

	// The cached encounter got the surgical patch, no list re-fetch
	cached, _ := f.encounters.Get("g1")
	assert.Equal(t, 18, cached[0].Participants[0].Initiative)
	assert.NotContains(t, f.store.callLog(), "ListEncounters")

	events := f.publisher.published()
	last := events[len(events)-1]
	assert.Equal(t, domain.EventInitiativeUpdated, last.Type)
}

func TestSetInitiativeRequiresDM(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	p, err := f.svc.JoinEncounter(context.Background(), "g1", "e1", domain.JoinEncounterRequest{
		CharacterID: "char-1", CharacterName: "Thia", MaxHP: 24,
	})
	require.NoError(t, err)

	_, err = f.svc.SetInitiative(context.Background(), "g1", "e1", "char-1", domain.SetInitiativeRequest{
		ParticipantID: p.ID,
		Initiative:    18,
	})
	assert.ErrorIs(t, err, domain.ErrNotDM)
}

func TestAdvanceTurn(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	enc := f.seedEncounter("e1", "g1")
	enc.TurnOrder = []string{"p1", "p2"}
	enc.CurrentTurn = 1
	enc.Round = 2
	f.store.encounters["e1"] = enc

	updated, err := f.svc.AdvanceTurn(context.Background(), "g1", "e1", "dm-1")
	require.NoError(t, err)
	assert.Equal(t, 0, updated.CurrentTurn)
	assert.Equal(t, 3, updated.Round)
	assert.Equal(t, "p1", updated.CurrentParticipantID)

	// Persisted, not just projected
	assert.Equal(t, 3, f.store.encounters["e1"].Round)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTurnAdvanced, events[0].Type)
}

func TestAdvanceTurnEmptyOrder(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	_, err := f.svc.AdvanceTurn(context.Background(), "g1", "e1", "dm-1")
	require.ErrorIs(t, err, domain.ErrEmptyTurnOrder)
	assert.NotContains(t, f.store.callLog(), "UpdateEncounter")
}

func TestAdvanceTurnRequiresDM(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	enc := f.seedEncounter("e1", "g1")
	enc.TurnOrder = []string{"p1"}
	f.store.encounters["e1"] = enc

	_, err := f.svc.AdvanceTurn(context.Background(), "g1", "e1", "char-1")
	assert.ErrorIs(t, err, domain.ErrNotDM)
}

func TestApplyCombatEventHPOnInstance(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	monster, err := f.svc.AddMonster(context.Background(), "g1", "e1", "dm-1", domain.AddMonsterRequest{Name: "Troll", MaxHP: 84, Quantity: 1})
	require.NoError(t, err)

	err = f.svc.ApplyCombatEvent(context.Background(), domain.CombatEvent{
		GameID:   "g1",
		TargetID: monster.Instances[0].ID,
		Kind:     "hp",
		Value:    60,
		ActorID:  "dm-1",
	})
	require.NoError(t, err)

	inst, _, err := f.store.GetMonsterInstance(context.Background(), monster.Instances[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 60, inst.CurrentHP)
}

func TestApplyCombatEventHPOnParticipant(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	f.seedEncounter("e1", "g1")

	p, err := f.svc.JoinEncounter(context.Background(), "g1", "e1", domain.JoinEncounterRequest{
		CharacterID: "char-1", CharacterName: "Thia", MaxHP: 24,
	})
	require.NoError(t, err)

	err = f.svc.ApplyCombatEvent(context.Background(), domain.CombatEvent{
		GameID:   "g1",
		TargetID: p.ID,
		Kind:     "hp",
		Value:    9,
		ActorID:  "dm-1",
	})
	require.NoError(t, err)

	got, err := f.store.GetParticipant(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.CurrentHP)

	events := f.publisher.published()
	last := events[len(events)-1]
	assert.Equal(t, domain.EventParticipantUpdated, last.Type)
}

func TestApplyCombatEventUnknownKind(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ApplyCombatEvent(context.Background(), domain.CombatEvent{
		GameID:   "g1",
		TargetID: "x",
		Kind:     "mana",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestWritePatchPublishOrdering(t *testing.T) {
	f := newFixture(t)
	f.seedGame("g1", "dm-1")
	enc := f.seedEncounter("e1", "g1")
	enc.TurnOrder = []string{"p1"}
	f.store.encounters["e1"] = enc
	f.encounters.Set("g1", []domain.Encounter{enc})

	_, err := f.svc.AdvanceTurn(context.Background(), "g1", "e1", "dm-1")
	require.NoError(t, err)

	// The store write happened; the publish carries the already-persisted
	// state, never a speculative one
	events := f.publisher.published()
	require.Len(t, events, 1)
	published := events[0].Data.(domain.Encounter)
	assert.Equal(t, f.store.encounters["e1"].Round, published.Round)
}
