package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/encounter-sync/internal/cache"
	"github.com/encounter-sync/internal/domain"
)

// Store is the data-access surface the service consumes. The PostgreSQL
// repository implements it; it remains the source of truth for every cache.
type Store interface {
	CreateGame(ctx context.Context, game domain.Game) error
	GetGame(ctx context.Context, gameID string) (*domain.Game, error)
	GetGameMeta(ctx context.Context, gameID string) (*domain.GameMeta, error)
	GameExists(ctx context.Context, gameID string) (bool, error)

	CreateEncounter(ctx context.Context, enc domain.Encounter) error
	GetEncounter(ctx context.Context, encounterID string) (*domain.Encounter, error)
	ListEncounters(ctx context.Context, gameID string) ([]domain.Encounter, error)
	UpdateEncounter(ctx context.Context, enc domain.Encounter) error
	DeleteEncounter(ctx context.Context, encounterID string) error

	AddMonster(ctx context.Context, monster domain.EncounterMonster) error
	GetMonsterInstance(ctx context.Context, instanceID string) (*domain.MonsterInstance, string, error)
	UpdateMonsterInstance(ctx context.Context, inst domain.MonsterInstance) error

	AddParticipant(ctx context.Context, p domain.EncounterParticipant) error
	GetParticipant(ctx context.Context, participantID string) (*domain.EncounterParticipant, error)
	UpdateParticipant(ctx context.Context, p domain.EncounterParticipant) error
	RemoveParticipant(ctx context.Context, participantID string) error
}

// Publisher broadcasts a game event to the game's subscribers. Fire and
// forget; implementations must never fail the calling mutation.
type Publisher interface {
	Publish(ctx context.Context, event domain.GameEvent)
}

// EncounterService owns the mutation path: store write first, then the
// matching cache patch with the exact persisted payload, then fan-out.
// A store failure leaves cache and subscribers untouched.
type EncounterService struct {
	store      Store
	encounters *cache.EncounterCache
	meta       *cache.GameMetaCache
	chat       *cache.ChatBuffer
	publisher  Publisher
	logger     *slog.Logger
}

// NewEncounterService creates a new encounter service
func NewEncounterService(
	store Store,
	encounters *cache.EncounterCache,
	meta *cache.GameMetaCache,
	chat *cache.ChatBuffer,
	publisher Publisher,
	logger *slog.Logger,
) *EncounterService {
	return &EncounterService{
		store:      store,
		encounters: encounters,
		meta:       meta,
		chat:       chat,
		publisher:  publisher,
		logger:     logger,
	}
}

// CreateGame creates a new game owned by the requesting DM
func (s *EncounterService) CreateGame(ctx context.Context, req domain.CreateGameRequest) (*domain.Game, error) {
	if req.Name == "" || req.DMID == "" {
		return nil, domain.ErrInvalidRequest
	}

	now := time.Now()
	game := domain.Game{
		ID:        uuid.New().String(),
		Name:      req.Name,
		DMID:      req.DMID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("creating game: %w", err)
	}

	s.meta.Set(game.ID, domain.GameMeta{Game: game})
	return &game, nil
}

// GetGameMeta returns a game with its counts, read through the metadata
// cache
func (s *EncounterService) GetGameMeta(ctx context.Context, gameID string) (*domain.GameMeta, error) {
	if meta, ok := s.meta.Get(gameID); ok {
		return &meta, nil
	}

	meta, err := s.store.GetGameMeta(ctx, gameID)
	if err != nil {
		return nil, err
	}
	s.meta.Set(gameID, *meta)
	return meta, nil
}

// ListEncounters returns a game's encounters, read through the encounter
// cache
func (s *EncounterService) ListEncounters(ctx context.Context, gameID string) ([]domain.Encounter, error) {
	if encounters, ok := s.encounters.Get(gameID); ok {
		return encounters, nil
	}

	exists, err := s.store.GameExists(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("checking game existence: %w", err)
	}
	if !exists {
		return nil, domain.ErrGameNotFound
	}

	encounters, err := s.store.ListEncounters(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing encounters: %w", err)
	}
	if encounters == nil {
		encounters = []domain.Encounter{}
	}
	s.encounters.Set(gameID, encounters)
	return encounters, nil
}

// CreateEncounter creates an encounter in a game. DM only.
func (s *EncounterService) CreateEncounter(ctx context.Context, gameID, requesterID string, req domain.CreateEncounterRequest) (*domain.Encounter, error) {
	if req.Name == "" {
		return nil, domain.ErrInvalidRequest
	}
	if err := s.authorizeDM(ctx, gameID, requesterID); err != nil {
		return nil, err
	}

	now := time.Now()
	enc := domain.Encounter{
		ID:           uuid.New().String(),
		GameID:       gameID,
		Name:         req.Name,
		Description:  req.Description,
		TurnOrder:    []string{},
		CurrentTurn:  0,
		Round:        1,
		Monsters:     []domain.EncounterMonster{},
		Participants: []domain.EncounterParticipant{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateEncounter(ctx, enc); err != nil {
		return nil, fmt.Errorf("creating encounter: %w", err)
	}

	s.encounters.AddEncounter(gameID, enc)
	s.meta.AdjustCounts(gameID, 0, 0, 1)
	s.publish(ctx, domain.EventEncounterCreated, gameID, enc)
	return &enc, nil
}

// UpdateEncounter applies a partial update to an encounter. DM only.
func (s *EncounterService) UpdateEncounter(ctx context.Context, gameID, encounterID, requesterID string, req domain.UpdateEncounterRequest) (*domain.Encounter, error) {
	if err := s.authorizeDM(ctx, gameID, requesterID); err != nil {
		return nil, err
	}

	enc, err := s.getOwnedEncounter(ctx, gameID, encounterID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		enc.Name = *req.Name
	}
	if req.Description != nil {
		enc.Description = *req.Description
	}
	if req.IsActive != nil {
		enc.IsActive = *req.IsActive
	}
	if req.TurnOrder != nil {
		enc.TurnOrder = *req.TurnOrder
		if enc.CurrentTurn >= len(enc.TurnOrder) {
			enc.CurrentTurn = 0
		}
		if len(enc.TurnOrder) > 0 {
			enc.CurrentParticipantID = enc.TurnOrder[enc.CurrentTurn]
		} else {
			enc.CurrentParticipantID = ""
		}
	}
	enc.UpdatedAt = time.Now()

	if err := s.store.UpdateEncounter(ctx, *enc); err != nil {
		return nil, fmt.Errorf("updating encounter: %w", err)
	}

	s.encounters.UpdateEncounter(gameID, *enc)
	s.publish(ctx, domain.EventEncounterUpdated, gameID, *enc)
	return enc, nil
}

// DeleteEncounter removes an encounter and everything it owns. DM only.
func (s *EncounterService) DeleteEncounter(ctx context.Context, gameID, encounterID, requesterID string) error {
	if err := s.authorizeDM(ctx, gameID, requesterID); err != nil {
		return err
	}
	if _, err := s.getOwnedEncounter(ctx, gameID, encounterID); err != nil {
		return err
	}

	if err := s.store.DeleteEncounter(ctx, encounterID); err != nil {
		return fmt.Errorf("deleting encounter: %w", err)
	}

	s.encounters.RemoveEncounter(gameID, encounterID)
	s.meta.AdjustCounts(gameID, 0, 0, -1)
	s.publish(ctx, domain.EventEncounterDeleted, gameID, map[string]string{"id": encounterID})
	return nil
}

// AddMonster adds a monster template with one instance per quantity, each
// starting at the monster's max HP. DM only.
func (s *EncounterService) AddMonster(ctx context.Context, gameID, encounterID, requesterID string, req domain.AddMonsterRequest) (*domain.EncounterMonster, error) {
	if req.Name == "" || req.MaxHP <= 0 || req.Quantity <= 0 {
		return nil, domain.ErrInvalidRequest
	}
	if err := s.authorizeDM(ctx, gameID, requesterID); err != nil {
		return nil, err
	}
	if _, err := s.getOwnedEncounter(ctx, gameID, encounterID); err != nil {
		return nil, err
	}

	now := time.Now()
	monster := domain.EncounterMonster{
		ID:          uuid.New().String(),
		EncounterID: encounterID,
		Name:        req.Name,
		MaxHP:       req.MaxHP,
		ArmorClass:  req.ArmorClass,
		Quantity:    req.Quantity,
		Instances:   make([]domain.MonsterInstance, req.Quantity),
		CreatedAt:   now,
	}
	for i := 0; i < req.Quantity; i++ {
		monster.Instances[i] = domain.MonsterInstance{
			ID:        uuid.New().String(),
			MonsterID: monster.ID,
			Label:     fmt.Sprintf("%s %d", req.Name, i+1),
			CurrentHP: req.MaxHP,
			CreatedAt: now,
		}
	}

	if err := s.store.AddMonster(ctx, monster); err != nil {
		return nil, fmt.Errorf("adding monster: %w", err)
	}

	// The encounter's shape changed; refresh the cached copy from the store
	// so the cache carries exactly what was persisted.
	enc, err := s.store.GetEncounter(ctx, encounterID)
	if err != nil {
		s.logger.Warn("failed to reload encounter after monster add", "error", err)
		s.encounters.Invalidate(gameID)
	} else {
		s.encounters.UpdateEncounter(gameID, *enc)
		s.publish(ctx, domain.EventEncounterUpdated, gameID, *enc)
	}

	return &monster, nil
}

// UpdateMonsterInstance patches an instance's HP and/or initiative. DM only.
func (s *EncounterService) UpdateMonsterInstance(ctx context.Context, gameID, encounterID, instanceID, requesterID string, req domain.UpdateInstanceRequest) (*domain.MonsterInstance, error) {
	if err := s.authorizeDM(ctx, gameID, requesterID); err != nil {
		return nil, err
	}

	inst, ownerEncounterID, err := s.store.GetMonsterInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if ownerEncounterID != encounterID {
		return nil, domain.ErrInstanceNotFound
	}

	if req.CurrentHP != nil {
		inst.CurrentHP = *req.CurrentHP
	}
	if req.Initiative != nil {
		inst.Initiative = *req.Initiative
	}

	if err := s.store.UpdateMonsterInstance(ctx, *inst); err != nil {
		return nil, fmt.Errorf("updating monster instance: %w", err)
	}

	s.encounters.UpdateMonsterInstance(gameID, encounterID, *inst)
	s.publish(ctx, domain.EventMonsterUpdated, gameID, map[string]interface{}{
		"encounter_id": encounterID,
		"instance":     *inst,
	})
	return inst, nil
}

// JoinEncounter adds a character to an encounter. Open to any player; at
// most one participant per character.
func (s *EncounterService) JoinEncounter(ctx context.Context, gameID, encounterID string, req domain.JoinEncounterRequest) (*domain.EncounterParticipant, error) {
	if req.CharacterID == "" || req.CharacterName == "" || req.MaxHP <= 0 {
		return nil, domain.ErrInvalidRequest
	}
	if _, err := s.getOwnedEncounter(ctx, gameID, encounterID); err != nil {
		return nil, err
	}

	p := domain.EncounterParticipant{
		ID:            uuid.New().String(),
		EncounterID:   encounterID,
		CharacterID:   req.CharacterID,
		CharacterName: req.CharacterName,
		Initiative:    req.Initiative,
		CurrentHP:     req.MaxHP,
		MaxHP:         req.MaxHP,
		CreatedAt:     time.Now(),
	}

	// The meta character count is DISTINCT across the game's encounters, so
	// a character joining a second encounter must not bump it again. Checked
	// before the cache patch records this join.
	dCharacters := int64(1)
	if s.characterInGame(gameID, req.CharacterID) {
		dCharacters = 0
	}

	if err := s.store.AddParticipant(ctx, p); err != nil {
		return nil, err
	}

	s.encounters.AddParticipant(gameID, encounterID, p)
	s.meta.AdjustCounts(gameID, 1, dCharacters, 0)
	s.publish(ctx, domain.EventParticipantJoined, gameID, p)
	return &p, nil
}

// LeaveEncounter removes a participant. Allowed for the DM or the
// participant's own character.
func (s *EncounterService) LeaveEncounter(ctx context.Context, gameID, encounterID, participantID, requesterID string) error {
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if p.EncounterID != encounterID {
		return domain.ErrParticipantNotFound
	}

	if p.CharacterID != requesterID {
		if err := s.authorizeDM(ctx, gameID, requesterID); err != nil {
			return err
		}
	}

	if err := s.store.RemoveParticipant(ctx, participantID); err != nil {
		return err
	}

	s.encounters.RemoveParticipant(gameID, encounterID, participantID)

	// The character only leaves the distinct count once its last
	// participation in the game is gone
	dCharacters := int64(-1)
	if s.characterInGame(gameID, p.CharacterID) {
		dCharacters = 0
	}
	s.meta.AdjustCounts(gameID, -1, dCharacters, 0)
	s.publish(ctx, domain.EventParticipantLeft, gameID, map[string]string{
		"encounter_id":   encounterID,
		"participant_id": participantID,
	})
	return nil
}

// SetInitiative sets a participant's initiative value. DM only.
func (s *EncounterService) SetInitiative(ctx context.Context, gameID, encounterID, requesterID string, req domain.SetInitiativeRequest) (*domain.EncounterParticipant, error) {
	if req.ParticipantID == "" {
		return nil, domain.ErrInvalidRequest
	}
	if err := s.authorizeDM(ctx, gameID, requesterID); err != nil {
		return nil, err
	}

	p, err := s.store.GetParticipant(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	if p.EncounterID != encounterID {
		return nil, domain.ErrParticipantNotFound
	}

	p.Initiative = req.Initiative
	if err := s.store.UpdateParticipant(ctx, *p); err != nil {
		return nil, fmt.Errorf("setting initiative: %w", err)
	}

	s.encounters.UpdateParticipant(gameID, encounterID, *p)
	s.publish(ctx, domain.EventInitiativeUpdated, gameID, *p)
	return p, nil
}

// AdvanceTurn moves the turn pointer forward, wrapping into a new round.
// DM only. Concurrent DM writes resolve last-write-wins at the store.
func (s *EncounterService) AdvanceTurn(ctx context.Context, gameID, encounterID, requesterID string) (*domain.Encounter, error) {
	if err := s.authorizeDM(ctx, gameID, requesterID); err != nil {
		return nil, err
	}

	enc, err := s.getOwnedEncounter(ctx, gameID, encounterID)
	if err != nil {
		return nil, err
	}

	if err := enc.AdvanceTurn(); err != nil {
		return nil, err
	}
	enc.UpdatedAt = time.Now()

	if err := s.store.UpdateEncounter(ctx, *enc); err != nil {
		return nil, fmt.Errorf("advancing turn: %w", err)
	}

	s.encounters.UpdateEncounter(gameID, *enc)
	s.publish(ctx, domain.EventTurnAdvanced, gameID, *enc)
	return enc, nil
}

// ApplyCombatEvent applies an externally ingested HP or initiative change,
// routed through the same write-then-patch path as the HTTP handlers
func (s *EncounterService) ApplyCombatEvent(ctx context.Context, ev domain.CombatEvent) error {
	switch ev.Kind {
	case "hp":
		if inst, encID, err := s.store.GetMonsterInstance(ctx, ev.TargetID); err == nil {
			req := domain.UpdateInstanceRequest{CurrentHP: &ev.Value}
			_, err := s.UpdateMonsterInstance(ctx, ev.GameID, encID, inst.ID, ev.ActorID, req)
			return err
		}
		p, err := s.store.GetParticipant(ctx, ev.TargetID)
		if err != nil {
			return err
		}
		p.CurrentHP = ev.Value
		if err := s.store.UpdateParticipant(ctx, *p); err != nil {
			return fmt.Errorf("applying hp event: %w", err)
		}
		s.encounters.UpdateParticipant(ev.GameID, p.EncounterID, *p)
		s.publish(ctx, domain.EventParticipantUpdated, ev.GameID, *p)
		return nil

	case "initiative":
		if inst, encID, err := s.store.GetMonsterInstance(ctx, ev.TargetID); err == nil {
			req := domain.UpdateInstanceRequest{Initiative: &ev.Value}
			_, err := s.UpdateMonsterInstance(ctx, ev.GameID, encID, inst.ID, ev.ActorID, req)
			return err
		}
		p, err := s.store.GetParticipant(ctx, ev.TargetID)
		if err != nil {
			return err
		}
		req := domain.SetInitiativeRequest{ParticipantID: p.ID, Initiative: ev.Value}
		_, err = s.SetInitiative(ctx, ev.GameID, p.EncounterID, ev.ActorID, req)
		return err

	default:
		return domain.ErrInvalidRequest
	}
}

// InvalidateGame drops both server-side cache entries for a game
func (s *EncounterService) InvalidateGame(gameID string) {
	s.encounters.Invalidate(gameID)
	s.meta.Invalidate(gameID)
}

// authorizeDM rejects the request unless the requester owns the game. Runs
// before any store, cache, or fan-out effect.
func (s *EncounterService) authorizeDM(ctx context.Context, gameID, requesterID string) error {
	meta, err := s.GetGameMeta(ctx, gameID)
	if err != nil {
		return err
	}
	if meta.Game.DMID != requesterID {
		return domain.ErrNotDM
	}
	return nil
}

// characterInGame reports whether the character currently participates in
// any cached encounter of the game. On an encounter-cache miss it reports
// false; any resulting count drift is corrected by the meta TTL and the
// refresh worker, like every other count delta against an uncached game.
func (s *EncounterService) characterInGame(gameID, characterID string) bool {
	encounters, ok := s.encounters.Get(gameID)
	if !ok {
		return false
	}
	for _, enc := range encounters {
		for _, p := range enc.Participants {
			if p.CharacterID == characterID {
				return true
			}
		}
	}
	return false
}

// getOwnedEncounter fetches an encounter and verifies it belongs to the
// given game, so cross-game IDs read as not found
func (s *EncounterService) getOwnedEncounter(ctx context.Context, gameID, encounterID string) (*domain.Encounter, error) {
	enc, err := s.store.GetEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if enc.GameID != gameID {
		return nil, domain.ErrEncounterNotFound
	}
	return enc, nil
}

// publish sends a fan-out event; never fails the caller
func (s *EncounterService) publish(ctx context.Context, eventType domain.EventType, gameID string, data interface{}) {
	s.publisher.Publish(ctx, domain.GameEvent{
		Type:      eventType,
		GameID:    gameID,
		Data:      data,
		Timestamp: time.Now(),
	})
}
