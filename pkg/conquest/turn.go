package conquest

import "sort"

// TurnOrder is the sequence in which factions take turns.
type TurnOrder struct {
	Factions []Faction `json:"factions"`
	Index    int       `json:"index"`
	Number   int       `json:"number"`
}

// NewTurnOrder puts human factions first in sorted order and the computer
// faction, if any, last. Number starts at 1.
func NewTurnOrder(humans []Faction, computer Faction) TurnOrder {
	order := make([]Faction, 0, len(humans)+1)
	order = append(order, humans...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	if computer != Neutral {
		order = append(order, computer)
	}
	return TurnOrder{Factions: order, Number: 1}
}

// Active returns the faction whose turn it is.
func (t TurnOrder) Active() Faction {
	if len(t.Factions) == 0 {
		return Neutral
	}
	return t.Factions[t.Index]
}

// Advance moves to the next faction and reports whether the round wrapped.
// Number only increments on a wrap.
func (t *TurnOrder) Advance() bool {
	if len(t.Factions) == 0 {
		return false
	}
	t.Index = (t.Index + 1) % len(t.Factions)
	if t.Index == 0 {
		t.Number++
		return true
	}
	return false
}

// Contains reports whether f takes turns.
func (t TurnOrder) Contains(f Faction) bool {
	for _, x := range t.Factions {
		if x == f {
			return true
		}
	}
	return false
}

// Normalize clamps Index into range, e.g. after restoring external metadata.
func (t *TurnOrder) Normalize() {
	if len(t.Factions) == 0 || t.Index < 0 || t.Index >= len(t.Factions) {
		t.Index = 0
	}
	if t.Number < 1 {
		t.Number = 1
	}
}
