package domain

import "time"

// Game represents a campaign owned by a DM
type Game struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DMID      string    `json:"dm_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GameMeta is a game together with denormalized counts, the shape the
// metadata cache holds
type GameMeta struct {
	Game             Game  `json:"game"`
	ParticipantCount int64 `json:"participant_count"`
	CharacterCount   int64 `json:"character_count"`
	EncounterCount   int64 `json:"encounter_count"`
}

// CreateGameRequest represents a request to create a new game
type CreateGameRequest struct {
	Name string `json:"name"`
	DMID string `json:"dm_id"`
}
