package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encounter-sync/internal/domain"
)

func chatMsg(gameID string, n int) domain.ChatMessage {
	return domain.ChatMessage{
		ID:      fmt.Sprintf("msg-%d", n),
		GameID:  gameID,
		UserID:  "u1",
		Message: fmt.Sprintf("message %d", n),
		Type:    domain.ChatTypeMessage,
	}
}

func TestChatBufferAppendAndRecent(t *testing.T) {
	b := NewChatBuffer(100)

	for i := 0; i < 3; i++ {
		b.Append(chatMsg("g1", i))
	}

	got := b.Recent("g1")
	require.Len(t, got, 3)
	assert.Equal(t, "msg-0", got[0].ID, "oldest first")
	assert.Equal(t, "msg-2", got[2].ID)
}

func TestChatBufferEvictsOldestBeyondCap(t *testing.T) {
	b := NewChatBuffer(5)

	for i := 0; i < 8; i++ {
		b.Append(chatMsg("g1", i))
	}

	got := b.Recent("g1")
	require.Len(t, got, 5)
	assert.Equal(t, "msg-3", got[0].ID)
	assert.Equal(t, "msg-7", got[4].ID)
}

func TestChatBufferGamesAreIndependent(t *testing.T) {
	b := NewChatBuffer(5)

	b.Append(chatMsg("g1", 1))
	b.Append(chatMsg("g2", 2))

	assert.Len(t, b.Recent("g1"), 1)
	assert.Len(t, b.Recent("g2"), 1)
	assert.Empty(t, b.Recent("g3"))
}

func TestChatBufferRemoveGame(t *testing.T) {
	b := NewChatBuffer(5)

	b.Append(chatMsg("g1", 1))
	b.RemoveGame("g1")

	assert.Empty(t, b.Recent("g1"))
}

func TestChatBufferRecentReturnsCopy(t *testing.T) {
	b := NewChatBuffer(5)

	b.Append(chatMsg("g1", 1))

	got := b.Recent("g1")
	got[0].Message = "mutated"

	assert.Equal(t, "message 1", b.Recent("g1")[0].Message)
}
