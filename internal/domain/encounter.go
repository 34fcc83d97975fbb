package domain

import "time"

// Encounter represents a combat or scene instance within a game. The gameID
// never changes after creation; monsters and participants belong exclusively
// to this encounter.
type Encounter struct {
	ID                   string                 `json:"id"`
	GameID               string                 `json:"game_id"`
	Name                 string                 `json:"name"`
	Description          string                 `json:"description,omitempty"`
	IsActive             bool                   `json:"is_active"`
	TurnOrder            []string               `json:"turn_order"`
	CurrentParticipantID string                 `json:"current_participant_id,omitempty"`
	CurrentTurn          int                    `json:"current_turn"`
	Round                int                    `json:"round"`
	Monsters             []EncounterMonster     `json:"monsters"`
	Participants         []EncounterParticipant `json:"participants"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// EncounterMonster is a monster template owning one instance record per
// quantity
type EncounterMonster struct {
	ID          string            `json:"id"`
	EncounterID string            `json:"encounter_id"`
	Name        string            `json:"name"`
	MaxHP       int               `json:"max_hp"`
	ArmorClass  int               `json:"armor_class"`
	Quantity    int               `json:"quantity"`
	Instances   []MonsterInstance `json:"instances"`
	CreatedAt   time.Time         `json:"created_at"`
}

// MonsterInstance tracks one physical monster on the board with independent
// HP and initiative
type MonsterInstance struct {
	ID         string    `json:"id"`
	MonsterID  string    `json:"monster_id"`
	Label      string    `json:"label"`
	CurrentHP  int       `json:"current_hp"`
	Initiative int       `json:"initiative"`
	CreatedAt  time.Time `json:"created_at"`
}

// EncounterParticipant links a character to an encounter with independent
// combat state. At most one participant per (encounter, character) pair.
type EncounterParticipant struct {
	ID            string    `json:"id"`
	EncounterID   string    `json:"encounter_id"`
	CharacterID   string    `json:"character_id"`
	CharacterName string    `json:"character_name"`
	Initiative    int       `json:"initiative"`
	CurrentHP     int       `json:"current_hp"`
	MaxHP         int       `json:"max_hp"`
	CreatedAt     time.Time `json:"created_at"`
}

// AdvanceTurn moves the turn pointer to the next slot in the turn order,
// incrementing the round on wrap-around
func (e *Encounter) AdvanceTurn() error {
	if len(e.TurnOrder) == 0 {
		return ErrEmptyTurnOrder
	}
	e.CurrentTurn = (e.CurrentTurn + 1) % len(e.TurnOrder)
	if e.CurrentTurn == 0 {
		e.Round++
	}
	e.CurrentParticipantID = e.TurnOrder[e.CurrentTurn]
	return nil
}

// CreateEncounterRequest represents a request to create a new encounter
type CreateEncounterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateEncounterRequest carries a partial encounter update. Nil fields are
// left untouched.
type UpdateEncounterRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	IsActive    *bool     `json:"is_active,omitempty"`
	TurnOrder   *[]string `json:"turn_order,omitempty"`
}

// AddMonsterRequest represents a request to add a monster to an encounter
type AddMonsterRequest struct {
	Name       string `json:"name"`
	MaxHP      int    `json:"max_hp"`
	ArmorClass int    `json:"armor_class"`
	Quantity   int    `json:"quantity"`
}

// UpdateInstanceRequest carries a partial monster instance update
type UpdateInstanceRequest struct {
	CurrentHP  *int `json:"current_hp,omitempty"`
	Initiative *int `json:"initiative,omitempty"`
}

// JoinEncounterRequest represents a character joining an encounter
type JoinEncounterRequest struct {
	CharacterID   string `json:"character_id"`
	CharacterName string `json:"character_name"`
	MaxHP         int    `json:"max_hp"`
	Initiative    int    `json:"initiative"`
}

// SetInitiativeRequest sets a participant's initiative value
type SetInitiativeRequest struct {
	ParticipantID string `json:"participant_id"`
	Initiative    int    `json:"initiative"`
}
