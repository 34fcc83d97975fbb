package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceTurn(t *testing.T) {
	enc := &Encounter{
		TurnOrder:   []string{"a", "b", "c"},
		CurrentTurn: 0,
		Round:       1,
	}

	require.NoError(t, enc.AdvanceTurn())
	assert.Equal(t, 1, enc.CurrentTurn)
	assert.Equal(t, 1, enc.Round)
	assert.Equal(t, "b", enc.CurrentParticipantID)

	require.NoError(t, enc.AdvanceTurn())
	assert.Equal(t, 2, enc.CurrentTurn)
	assert.Equal(t, 1, enc.Round)
	assert.Equal(t, "c", enc.CurrentParticipantID)
}

func TestAdvanceTurnWrapsIntoNewRound(t *testing.T) {
	enc := &Encounter{
		TurnOrder:   []string{"a", "b", "c"},
		CurrentTurn: 2,
		Round:       3,
	}

	require.NoError(t, enc.AdvanceTurn())
	assert.Equal(t, 0, enc.CurrentTurn)
	assert.Equal(t, 4, enc.Round)
	assert.Equal(t, "a", enc.CurrentParticipantID)
}

func TestAdvanceTurnSingleSlot(t *testing.T) {
	enc := &Encounter{
		TurnOrder:   []string{"solo"},
		CurrentTurn: 0,
		Round:       1,
	}

	// Every advance wraps immediately
	require.NoError(t, enc.AdvanceTurn())
	assert.Equal(t, 0, enc.CurrentTurn)
	assert.Equal(t, 2, enc.Round)
	assert.Equal(t, "solo", enc.CurrentParticipantID)
}

func TestAdvanceTurnEmptyOrder(t *testing.T) {
	enc := &Encounter{Round: 1}

	err := enc.AdvanceTurn()
	require.ErrorIs(t, err, ErrEmptyTurnOrder)
	assert.Equal(t, 1, enc.Round)
	assert.Equal(t, 0, enc.CurrentTurn)
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrGameNotFound))
	assert.True(t, IsNotFoundError(ErrEncounterNotFound))
	assert.True(t, IsNotFoundError(ErrInstanceNotFound))
	assert.True(t, IsNotFoundError(ErrParticipantNotFound))
	assert.False(t, IsNotFoundError(ErrNotDM))
	assert.False(t, IsNotFoundError(ErrInvalidRequest))
	assert.False(t, IsNotFoundError(nil))
}
