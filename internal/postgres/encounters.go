package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/encounter-sync/internal/domain"
)

// CreateEncounter persists a new encounter
func (r *Repository) CreateEncounter(ctx context.Context, enc domain.Encounter) error {
	query := `
		INSERT INTO encounters (id, game_id, name, description, is_active, turn_order,
			current_participant_id, current_turn, round, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx, query,
			enc.ID, enc.GameID, enc.Name, enc.Description, enc.IsActive,
			enc.TurnOrder, nullable(enc.CurrentParticipantID),
			enc.CurrentTurn, enc.Round, enc.CreatedAt, enc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating encounter: %w", err)
		}
		return nil
	})
}

// GetEncounter retrieves an encounter with its monsters, instances, and
// participants
func (r *Repository) GetEncounter(ctx context.Context, encounterID string) (*domain.Encounter, error) {
	query := `
		SELECT id, game_id, name, COALESCE(description, ''), is_active, turn_order,
			COALESCE(current_participant_id, ''), current_turn, round, created_at, updated_at
		FROM encounters
		WHERE id = $1
	`
	var enc domain.Encounter
	err := r.pool.QueryRow(ctx, query, encounterID).Scan(
		&enc.ID, &enc.GameID, &enc.Name, &enc.Description, &enc.IsActive,
		&enc.TurnOrder, &enc.CurrentParticipantID, &enc.CurrentTurn, &enc.Round,
		&enc.CreatedAt, &enc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEncounterNotFound
		}
		return nil, fmt.Errorf("getting encounter: %w", err)
	}

	if err := r.hydrateEncounters(ctx, []*domain.Encounter{&enc}); err != nil {
		return nil, err
	}
	return &enc, nil
}

// ListEncounters retrieves all encounters for a game, newest first, fully
// hydrated
func (r *Repository) ListEncounters(ctx context.Context, gameID string) ([]domain.Encounter, error) {
	query := `
		SELECT id, game_id, name, COALESCE(description, ''), is_active, turn_order,
			COALESCE(current_participant_id, ''), current_turn, round, created_at, updated_at
		FROM encounters
		WHERE game_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing encounters: %w", err)
	}
	defer rows.Close()

	var encounters []domain.Encounter
	for rows.Next() {
		var enc domain.Encounter
		err := rows.Scan(
			&enc.ID, &enc.GameID, &enc.Name, &enc.Description, &enc.IsActive,
			&enc.TurnOrder, &enc.CurrentParticipantID, &enc.CurrentTurn, &enc.Round,
			&enc.CreatedAt, &enc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning encounter: %w", err)
		}
		encounters = append(encounters, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading encounters: %w", err)
	}

	ptrs := make([]*domain.Encounter, len(encounters))
	for i := range encounters {
		ptrs[i] = &encounters[i]
	}
	if err := r.hydrateEncounters(ctx, ptrs); err != nil {
		return nil, err
	}
	return encounters, nil
}

// UpdateEncounter persists the mutable encounter fields. The game_id column
// is never touched.
func (r *Repository) UpdateEncounter(ctx context.Context, enc domain.Encounter) error {
	query := `
		UPDATE encounters
		SET name = $2, description = $3, is_active = $4, turn_order = $5,
			current_participant_id = $6, current_turn = $7, round = $8, updated_at = $9
		WHERE id = $1
	`
	return r.withRetry(ctx, func() error {
		result, err := r.pool.Exec(ctx, query,
			enc.ID, enc.Name, enc.Description, enc.IsActive, enc.TurnOrder,
			nullable(enc.CurrentParticipantID), enc.CurrentTurn, enc.Round, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("updating encounter: %w", err)
		}
		if result.RowsAffected() == 0 {
			return domain.ErrEncounterNotFound
		}
		return nil
	})
}

// DeleteEncounter removes an encounter; monsters, instances, and
// participants go with it via CASCADE
func (r *Repository) DeleteEncounter(ctx context.Context, encounterID string) error {
	query := `DELETE FROM encounters WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, encounterID)
	if err != nil {
		return fmt.Errorf("deleting encounter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrEncounterNotFound
	}
	return nil
}

// AddMonster persists a monster template and its instance rows in one
// transaction
func (r *Repository) AddMonster(ctx context.Context, monster domain.EncounterMonster) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx, `
			INSERT INTO encounter_monsters (id, encounter_id, name, max_hp, armor_class, quantity, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, monster.ID, monster.EncounterID, monster.Name, monster.MaxHP,
			monster.ArmorClass, monster.Quantity, monster.CreatedAt)
		if err != nil {
			return fmt.Errorf("creating monster: %w", err)
		}

		batch := &pgx.Batch{}
		for _, inst := range monster.Instances {
			batch.Queue(`
				INSERT INTO monster_instances (id, monster_id, label, current_hp, initiative, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, inst.ID, inst.MonsterID, inst.Label, inst.CurrentHP, inst.Initiative, inst.CreatedAt)
		}
		br := tx.SendBatch(ctx, batch)
		for range monster.Instances {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("creating monster instance: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("closing instance batch: %w", err)
		}

		return tx.Commit(ctx)
	})
}

// GetMonsterInstance retrieves a monster instance together with its
// encounter ID
func (r *Repository) GetMonsterInstance(ctx context.Context, instanceID string) (*domain.MonsterInstance, string, error) {
	query := `
		SELECT i.id, i.monster_id, i.label, i.current_hp, i.initiative, i.created_at, m.encounter_id
		FROM monster_instances i
		JOIN encounter_monsters m ON m.id = i.monster_id
		WHERE i.id = $1
	`
	var inst domain.MonsterInstance
	var encounterID string
	err := r.pool.QueryRow(ctx, query, instanceID).Scan(
		&inst.ID, &inst.MonsterID, &inst.Label, &inst.CurrentHP, &inst.Initiative,
		&inst.CreatedAt, &encounterID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", domain.ErrInstanceNotFound
		}
		return nil, "", fmt.Errorf("getting monster instance: %w", err)
	}
	return &inst, encounterID, nil
}

// UpdateMonsterInstance persists an instance's HP and initiative
func (r *Repository) UpdateMonsterInstance(ctx context.Context, inst domain.MonsterInstance) error {
	query := `
		UPDATE monster_instances
		SET current_hp = $2, initiative = $3
		WHERE id = $1
	`
	return r.withRetry(ctx, func() error {
		result, err := r.pool.Exec(ctx, query, inst.ID, inst.CurrentHP, inst.Initiative)
		if err != nil {
			return fmt.Errorf("updating monster instance: %w", err)
		}
		if result.RowsAffected() == 0 {
			return domain.ErrInstanceNotFound
		}
		return nil
	})
}

// AddParticipant persists a participant row. The (encounter, character)
// unique constraint maps to ErrParticipantExists.
func (r *Repository) AddParticipant(ctx context.Context, p domain.EncounterParticipant) error {
	query := `
		INSERT INTO encounter_participants (id, encounter_id, character_id, character_name,
			initiative, current_hp, max_hp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.EncounterID, p.CharacterID, p.CharacterName,
		p.Initiative, p.CurrentHP, p.MaxHP, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrParticipantExists
		}
		return fmt.Errorf("adding participant: %w", err)
	}
	return nil
}

// GetParticipant retrieves a participant by ID
func (r *Repository) GetParticipant(ctx context.Context, participantID string) (*domain.EncounterParticipant, error) {
	query := `
		SELECT id, encounter_id, character_id, character_name, initiative, current_hp, max_hp, created_at
		FROM encounter_participants
		WHERE id = $1
	`
	var p domain.EncounterParticipant
	err := r.pool.QueryRow(ctx, query, participantID).Scan(
		&p.ID, &p.EncounterID, &p.CharacterID, &p.CharacterName,
		&p.Initiative, &p.CurrentHP, &p.MaxHP, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("getting participant: %w", err)
	}
	return &p, nil
}

// UpdateParticipant persists a participant's combat state
func (r *Repository) UpdateParticipant(ctx context.Context, p domain.EncounterParticipant) error {
	query := `
		UPDATE encounter_participants
		SET initiative = $2, current_hp = $3, max_hp = $4
		WHERE id = $1
	`
	return r.withRetry(ctx, func() error {
		result, err := r.pool.Exec(ctx, query, p.ID, p.Initiative, p.CurrentHP, p.MaxHP)
		if err != nil {
			return fmt.Errorf("updating participant: %w", err)
		}
		if result.RowsAffected() == 0 {
			return domain.ErrParticipantNotFound
		}
		return nil
	})
}

// RemoveParticipant deletes a participant row
func (r *Repository) RemoveParticipant(ctx context.Context, participantID string) error {
	query := `DELETE FROM encounter_participants WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, participantID)
	if err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

// hydrateEncounters loads monsters, instances, and participants for a set of
// encounters in three queries rather than one per encounter
func (r *Repository) hydrateEncounters(ctx context.Context, encounters []*domain.Encounter) error {
	if len(encounters) == 0 {
		return nil
	}

	ids := make([]string, len(encounters))
	byID := make(map[string]*domain.Encounter, len(encounters))
	for i, enc := range encounters {
		ids[i] = enc.ID
		byID[enc.ID] = enc
		enc.Monsters = []domain.EncounterMonster{}
		enc.Participants = []domain.EncounterParticipant{}
	}

	monsterRows, err := r.pool.Query(ctx, `
		SELECT id, encounter_id, name, max_hp, armor_class, quantity, created_at
		FROM encounter_monsters
		WHERE encounter_id = ANY($1)
		ORDER BY created_at
	`, ids)
	if err != nil {
		return fmt.Errorf("loading monsters: %w", err)
	}
	defer monsterRows.Close()

	var monsters []*domain.EncounterMonster
	monsterByID := make(map[string]*domain.EncounterMonster)
	for monsterRows.Next() {
		m := &domain.EncounterMonster{Instances: []domain.MonsterInstance{}}
		if err := monsterRows.Scan(&m.ID, &m.EncounterID, &m.Name, &m.MaxHP, &m.ArmorClass, &m.Quantity, &m.CreatedAt); err != nil {
			return fmt.Errorf("scanning monster: %w", err)
		}
		monsters = append(monsters, m)
		monsterByID[m.ID] = m
	}
	if err := monsterRows.Err(); err != nil {
		return fmt.Errorf("reading monsters: %w", err)
	}

	instanceRows, err := r.pool.Query(ctx, `
		SELECT i.id, i.monster_id, i.label, i.current_hp, i.initiative, i.created_at
		FROM monster_instances i
		JOIN encounter_monsters m ON m.id = i.monster_id
		WHERE m.encounter_id = ANY($1)
		ORDER BY i.created_at
	`, ids)
	if err != nil {
		return fmt.Errorf("loading monster instances: %w", err)
	}
	defer instanceRows.Close()

	for instanceRows.Next() {
		var inst domain.MonsterInstance
		if err := instanceRows.Scan(&inst.ID, &inst.MonsterID, &inst.Label, &inst.CurrentHP, &inst.Initiative, &inst.CreatedAt); err != nil {
			return fmt.Errorf("scanning monster instance: %w", err)
		}
		if m, ok := monsterByID[inst.MonsterID]; ok {
			m.Instances = append(m.Instances, inst)
		}
	}
	if err := instanceRows.Err(); err != nil {
		return fmt.Errorf("reading monster instances: %w", err)
	}

	for _, m := range monsters {
		enc := byID[m.EncounterID]
		enc.Monsters = append(enc.Monsters, *m)
	}

	participantRows, err := r.pool.Query(ctx, `
		SELECT id, encounter_id, character_id, character_name, initiative, current_hp, max_hp, created_at
		FROM encounter_participants
		WHERE encounter_id = ANY($1)
		ORDER BY created_at
	`, ids)
	if err != nil {
		return fmt.Errorf("loading participants: %w", err)
	}
	defer participantRows.Close()

	for participantRows.Next() {
		var p domain.EncounterParticipant
		if err := participantRows.Scan(&p.ID, &p.EncounterID, &p.CharacterID, &p.CharacterName, &p.Initiative, &p.CurrentHP, &p.MaxHP, &p.CreatedAt); err != nil {
			return fmt.Errorf("scanning participant: %w", err)
		}
		enc := byID[p.EncounterID]
		enc.Participants = append(enc.Participants, p)
	}
	if err := participantRows.Err(); err != nil {
		return fmt.Errorf("reading participants: %w", err)
	}

	return nil
}

// nullable maps the empty string to SQL NULL
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
