package service

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrNotSeated       = errors.New("you do not hold a seat in this session")
	ErrNotYourTurn     = errors.New("it is not your turn")
	ErrNotInBattle     = errors.New("you are not a party to the pending battle")
	ErrNoPendingBattle = errors.New("no battle awaits a choice")
	ErrBattlePending   = errors.New("a battle must be resolved first")
	ErrEndTurnFailed   = errors.New("failed to end turn")
	ErrGameOver        = errors.New("game is over")
	ErrInvalidSession  = errors.New("invalid session setup")
	ErrUnknownFlow     = errors.New("unknown flow state")
)
