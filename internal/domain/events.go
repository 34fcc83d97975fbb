package domain

import "time"

// EventType names a fan-out event published after a successful mutation
type EventType string

const (
	EventEncounterCreated   EventType = "encounter:created"
	EventEncounterUpdated   EventType = "encounter:updated"
	EventEncounterDeleted   EventType = "encounter:deleted"
	EventInitiativeUpdated  EventType = "initiative:updated"
	EventMonsterUpdated     EventType = "monster:updated"
	EventParticipantJoined  EventType = "participant:joined"
	EventParticipantUpdated EventType = "participant:updated"
	EventParticipantLeft    EventType = "participant:left"
	EventTurnAdvanced       EventType = "turn:advanced"
	EventChatMessage        EventType = "chat:message"
)

// GameEvent is the payload broadcast on a game-scoped channel. Data carries
// the changed entity's full current state, not a diff.
type GameEvent struct {
	Type      EventType   `json:"type"`
	GameID    string      `json:"game_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// CombatEvent is an externally produced mutation ingested from Kafka
type CombatEvent struct {
	GameID      string `json:"game_id"`
	EncounterID string `json:"encounter_id"`
	TargetID    string `json:"target_id"`
	Kind        string `json:"kind"` // "hp" or "initiative"
	Value       int    `json:"value"`
	ActorID     string `json:"actor_id"`
}

// Reference data collections served to clients. Near-static, so the client
// SDK caches them for the lifetime of the session.
const (
	RefRaces     = "races"
	RefClasses   = "classes"
	RefEquipment = "equipment"
	RefSpells    = "spells"
	RefMonsters  = "monsters"
)

// ReferenceCollections lists every reference data collection the API serves
var ReferenceCollections = []string{RefRaces, RefClasses, RefEquipment, RefSpells, RefMonsters}

// ReferenceItem is one entry of a reference data collection
type ReferenceItem struct {
	Index string `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
}
