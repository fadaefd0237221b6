package conquest

import "errors"

var (
	ErrStaleBattle      = errors.New("battle no longer present")
	ErrInvalidTactic    = errors.New("invalid tactic")
	ErrInsufficientGold = errors.New("insufficient gold")
	ErrCascadeLimit     = errors.New("cascade step limit reached")
	ErrInvalidAction    = errors.New("invalid action")
	ErrNotYourArmy      = errors.New("army belongs to another faction")
)
