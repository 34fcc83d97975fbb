package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/encounter-sync/internal/domain"
)

// SendChat posts a message to a game's chat ring and fans it out. Chat is
// held only in memory; the store is not involved.
func (s *EncounterService) SendChat(ctx context.Context, gameID, userID string, req domain.SendChatRequest) (*domain.ChatMessage, error) {
	if req.Message == "" || userID == "" {
		return nil, domain.ErrInvalidRequest
	}

	// A cached meta hit is enough proof the game exists
	if _, ok := s.meta.Get(gameID); !ok {
		exists, err := s.store.GameExists(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrGameNotFound
		}
	}

	msgType := req.Type
	if msgType == "" {
		msgType = domain.ChatTypeMessage
	}

	msg := domain.ChatMessage{
		ID:        uuid.New().String(),
		GameID:    gameID,
		UserID:    userID,
		Message:   req.Message,
		Type:      msgType,
		Timestamp: time.Now(),
	}

	s.chat.Append(msg)
	s.publish(ctx, domain.EventChatMessage, gameID, msg)
	return &msg, nil
}

// RecentChat returns a game's buffered messages, oldest first
func (s *EncounterService) RecentChat(gameID string) []domain.ChatMessage {
	return s.chat.Recent(gameID)
}
