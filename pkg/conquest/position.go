package conquest

import "fmt"

// Position is either a settlement or a stage on a road. Exactly one of
// Settlement and Road is set.
type Position struct {
	Settlement string `json:"settlement,omitempty" yaml:"settlement,omitempty"`
	Road       string `json:"road,omitempty" yaml:"road,omitempty"`
	Stage      int    `json:"stage,omitempty" yaml:"stage,omitempty"`
}

// At returns the position of a settlement.
func At(settlement string) Position { return Position{Settlement: settlement} }

// OnRoad returns the position of a road stage.
func OnRoad(road string, stage int) Position { return Position{Road: road, Stage: stage} }

// IsSettlement reports whether the position is a settlement.
func (p Position) IsSettlement() bool { return p.Settlement != "" }

// IsZero reports whether the position is unset.
func (p Position) IsZero() bool { return p.Settlement == "" && p.Road == "" }

func (p Position) String() string {
	if p.IsSettlement() {
		return p.Settlement
	}
	if p.Road == "" {
		return "nowhere"
	}
	return fmt.Sprintf("%s#%d", p.Road, p.Stage)
}

// Valid reports whether the position exists on the map.
func (gs *GameState) Valid(p Position) bool {
	if p.IsSettlement() {
		_, ok := gs.Settlements[p.Settlement]
		return ok && p.Road == ""
	}
	r, ok := gs.Roads[p.Road]
	return ok && p.Stage >= 0 && p.Stage < len(r.Stages)
}

// Neighbors returns the positions one step away from p.
func (gs *GameState) Neighbors(p Position) []Position {
	var out []Position
	if p.IsSettlement() {
		for _, id := range sortedRoadIDs(gs.Roads) {
			r := gs.Roads[id]
			if len(r.Stages) == 0 {
				continue
			}
			if r.From == p.Settlement {
				out = append(out, OnRoad(r.ID, 0))
			}
			if r.To == p.Settlement {
				out = append(out, OnRoad(r.ID, len(r.Stages)-1))
			}
		}
		return out
	}
	r, ok := gs.Roads[p.Road]
	if !ok {
		return nil
	}
	if p.Stage == 0 {
		out = append(out, At(r.From))
	} else {
		out = append(out, OnRoad(r.ID, p.Stage-1))
	}
	if p.Stage == len(r.Stages)-1 {
		out = append(out, At(r.To))
	} else {
		out = append(out, OnRoad(r.ID, p.Stage+1))
	}
	return out
}

// Adjacent reports whether b is one step from a.
func (gs *GameState) Adjacent(a, b Position) bool {
	for _, n := range gs.Neighbors(a) {
		if n == b {
			return true
		}
	}
	return false
}

// stageAt returns the stage for a road position.
func (gs *GameState) stageAt(p Position) (Stage, bool) {
	r, ok := gs.Roads[p.Road]
	if !ok || p.Stage < 0 || p.Stage >= len(r.Stages) {
		return Stage{}, false
	}
	return r.Stages[p.Stage], true
}

func (gs *GameState) setStageController(p Position, f Faction) {
	r, ok := gs.Roads[p.Road]
	if !ok || p.Stage < 0 || p.Stage >= len(r.Stages) {
		return
	}
	r.Stages[p.Stage].Controller = f
	gs.Roads[p.Road] = r
}

// parentSettlement returns the road end a defender on p can fall back into:
// an adjacent end settlement controlled by f, From preferred.
func (gs *GameState) parentSettlement(p Position, f Faction) (string, bool) {
	if p.IsSettlement() {
		return "", false
	}
	r, ok := gs.Roads[p.Road]
	if !ok {
		return "", false
	}
	for _, n := range gs.Neighbors(p) {
		if !n.IsSettlement() {
			continue
		}
		if n.Settlement == r.From && gs.Settlements[r.From].Controller == f {
			return r.From, true
		}
	}
	for _, n := range gs.Neighbors(p) {
		if n.IsSettlement() && gs.Settlements[n.Settlement].Controller == f {
			return n.Settlement, true
		}
	}
	return "", false
}
