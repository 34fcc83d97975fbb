package cache

import (
	"sync"

	"github.com/encounter-sync/internal/domain"
)

// ChatBuffer keeps the last N chat messages per game in memory. Oldest
// messages are evicted first once a game hits the cap; history is not
// persisted anywhere.
type ChatBuffer struct {
	mu       sync.RWMutex
	messages map[string][]domain.ChatMessage
	cap      int
}

// NewChatBuffer creates a chat buffer holding at most cap messages per game
func NewChatBuffer(cap int) *ChatBuffer {
	return &ChatBuffer{
		messages: make(map[string][]domain.ChatMessage),
		cap:      cap,
	}
}

// Append adds a message to a game's ring, evicting the oldest beyond the cap
func (b *ChatBuffer) Append(msg domain.ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := append(b.messages[msg.GameID], msg)
	if len(msgs) > b.cap {
		msgs = msgs[len(msgs)-b.cap:]
	}
	b.messages[msg.GameID] = msgs
}

// Recent returns a copy of a game's messages, oldest first
func (b *ChatBuffer) Recent(gameID string) []domain.ChatMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	msgs := b.messages[gameID]
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// RemoveGame drops all chat for a game, called when the game is deleted
func (b *ChatBuffer) RemoveGame(gameID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.messages, gameID)
}
