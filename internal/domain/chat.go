package domain

import "time"

// ChatMessageType distinguishes player chat from dice rolls and system notices
type ChatMessageType string

const (
	ChatTypeMessage ChatMessageType = "message"
	ChatTypeRoll    ChatMessageType = "roll"
	ChatTypeSystem  ChatMessageType = "system"
)

// ChatMessage is a per-game chat entry. Messages live only in the in-memory
// ring buffer; losing them loses history, never game state.
type ChatMessage struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	UserID    string          `json:"user_id"`
	Message   string          `json:"message"`
	Type      ChatMessageType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
}

// SendChatRequest represents a request to post a chat message
type SendChatRequest struct {
	Message string          `json:"message"`
	Type    ChatMessageType `json:"type,omitempty"`
}
