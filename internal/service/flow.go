package service

import (
	"fmt"

	"github.com/freeeve/warbands/pkg/conquest"
)

// FlowState is where a session's turn flow currently stands. Exactly one of
// the concrete types below.
type FlowState interface {
	flowName() string
}

// AwaitingHumanTurn waits for the active human faction to act or end its turn.
type AwaitingHumanTurn struct{ Faction conquest.Faction }

// Advancing moves to the next faction in the turn order.
type Advancing struct{}

// FullRoundProcessing runs the end-of-round collaborator after a wrap.
type FullRoundProcessing struct{}

// AwaitingAITurn runs the computer faction's turn.
type AwaitingAITurn struct{ Faction conquest.Faction }

// CombatBlocking halts the flow until the pending battle and its successors
// are resolved, then continues according to Resume.
type CombatBlocking struct{ Resume Resume }

// Resume says what a combat block continues with once it clears.
type Resume int

const (
	// ResumeHumanTurn returns control to the active human.
	ResumeHumanTurn Resume = iota
	// ResumeBeginTurn begins the active faction's turn.
	ResumeBeginTurn
	// ResumeAfterAITurn advances past the computer faction's finished turn.
	ResumeAfterAITurn
)

func (AwaitingHumanTurn) flowName() string   { return "awaiting_human_turn" }
func (Advancing) flowName() string           { return "advancing" }
func (FullRoundProcessing) flowName() string { return "full_round" }
func (AwaitingAITurn) flowName() string      { return "awaiting_ai_turn" }
func (CombatBlocking) flowName() string      { return "combat" }

func (r Resume) String() string {
	switch r {
	case ResumeHumanTurn:
		return "human_turn"
	case ResumeBeginTurn:
		return "begin_turn"
	case ResumeAfterAITurn:
		return "after_ai_turn"
	}
	return fmt.Sprintf("resume(%d)", int(r))
}

// FlowName returns a stable label for logs and the public view.
func FlowName(f FlowState) string {
	if f == nil {
		return "none"
	}
	return f.flowName()
}

// flowRecord is the serialized form of a FlowState.
type flowRecord struct {
	Kind    string           `json:"kind"`
	Faction conquest.Faction `json:"faction,omitempty"`
	Resume  Resume           `json:"resume,omitempty"`
}

func encodeFlow(f FlowState) (flowRecord, error) {
	switch v := f.(type) {
	case AwaitingHumanTurn:
		return flowRecord{Kind: v.flowName(), Faction: v.Faction}, nil
	case Advancing:
		return flowRecord{Kind: v.flowName()}, nil
	case FullRoundProcessing:
		return flowRecord{Kind: v.flowName()}, nil
	case AwaitingAITurn:
		return flowRecord{Kind: v.flowName(), Faction: v.Faction}, nil
	case CombatBlocking:
		return flowRecord{Kind: v.flowName(), Resume: v.Resume}, nil
	default:
		return flowRecord{}, fmt.Errorf("%w: %T", ErrUnknownFlow, f)
	}
}

func decodeFlow(r flowRecord) (FlowState, error) {
	switch r.Kind {
	case "awaiting_human_turn":
		return AwaitingHumanTurn{Faction: r.Faction}, nil
	case "advancing":
		return Advancing{}, nil
	case "full_round":
		return FullRoundProcessing{}, nil
	case "awaiting_ai_turn":
		return AwaitingAITurn{Faction: r.Faction}, nil
	case "combat":
		return CombatBlocking{Resume: r.Resume}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFlow, r.Kind)
}
