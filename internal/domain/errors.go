package domain

import "errors"

// Domain errors
var (
	ErrGameNotFound        = errors.New("game not found")
	ErrEncounterNotFound   = errors.New("encounter not found")
	ErrMonsterNotFound     = errors.New("monster not found")
	ErrInstanceNotFound    = errors.New("monster instance not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrCollectionNotFound  = errors.New("reference collection not found")
	ErrParticipantExists   = errors.New("character already joined this encounter")
	ErrNotDM               = errors.New("only the DM may perform this action")
	ErrEmptyTurnOrder      = errors.New("encounter has no turn order")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrGameNotFound) ||
		errors.Is(err, ErrEncounterNotFound) ||
		errors.Is(err, ErrMonsterNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrParticipantNotFound)
}
