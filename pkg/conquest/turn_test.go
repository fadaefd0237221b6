package conquest

import (
	"errors"
	"testing"
)

func TestNewTurnOrder(t *testing.T) {
	o := NewTurnOrder([]Faction{red, blue}, green)
	want := []Faction{blue, red, green}
	if len(o.Factions) != len(want) {
		t.Fatalf("expected %v, got %v", want, o.Factions)
	}
	for i := range want {
		if o.Factions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, o.Factions)
		}
	}
	if o.Active() != blue || o.Number != 1 {
		t.Errorf("expected blue to start round 1, got %s round %d", o.Active(), o.Number)
	}
}

func TestNewTurnOrder_NoComputer(t *testing.T) {
	o := NewTurnOrder([]Faction{red}, Neutral)
	if len(o.Factions) != 1 || o.Active() != red {
		t.Errorf("unexpected order %v", o.Factions)
	}
}

func TestTurnOrder_AdvanceWrapsOnce(t *testing.T) {
	o := NewTurnOrder([]Faction{red, blue}, green)
	for step := 1; step <= 9; step++ {
		before := o.Number
		wrapped := o.Advance()
		if o.Index < 0 || o.Index >= len(o.Factions) {
			t.Fatalf("index %d out of range", o.Index)
		}
		if wrapped != (o.Index == 0) {
			t.Errorf("step %d: wrapped=%v with index %d", step, wrapped, o.Index)
		}
		if wrapped && o.Number != before+1 {
			t.Errorf("step %d: number should increment on wrap", step)
		}
		if !wrapped && o.Number != before {
			t.Errorf("step %d: number changed without a wrap", step)
		}
	}
	if o.Number != 4 {
		t.Errorf("expected round 4 after 9 advances, got %d", o.Number)
	}
}

func TestTurnOrder_Normalize(t *testing.T) {
	o := TurnOrder{Factions: []Faction{red, blue}, Index: 7}
	o.Normalize()
	if o.Index != 0 || o.Number != 1 {
		t.Errorf("expected index 0 round 1, got %d/%d", o.Index, o.Number)
	}
}

func TestMove(t *testing.T) {
	gs := testWorld(army("r1", red, 5, At("ash")))
	if err := Move(gs, red, "r1", OnRoad("ash-bel", 0)); err != nil {
		t.Fatalf("move: %v", err)
	}
	r1 := gs.Army("r1")
	if r1.Position != OnRoad("ash-bel", 0) || !r1.Arrived || r1.LastSafe != At("ash") {
		t.Errorf("unexpected army after move: %+v", r1)
	}
	if err := Move(gs, red, "r1", OnRoad("ash-bel", 1)); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("second move in a turn should fail, got %v", err)
	}
	BeginTurn(gs)
	if err := Move(gs, red, "r1", OnRoad("ash-bel", 1)); err != nil {
		t.Errorf("move after new turn: %v", err)
	}
}

func TestMove_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		faction Faction
		army    string
		to      Position
		want    error
	}{
		{"not adjacent", red, "r1", At("bel"), ErrInvalidAction},
		{"unknown position", red, "r1", OnRoad("nowhere", 0), ErrInvalidAction},
		{"unknown army", red, "r9", OnRoad("ash-bel", 0), ErrInvalidAction},
		{"foreign army", blue, "r1", OnRoad("ash-bel", 0), ErrNotYourArmy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := testWorld(army("r1", red, 5, At("ash")))
			err := Move(gs, tt.faction, tt.army, tt.to)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if gs.Army("r1").Position != At("ash") {
				t.Error("rejected move must not change the state")
			}
		})
	}
}

func TestMove_LeavingLiftsSiege(t *testing.T) {
	a := army("r1", red, 5, At("bel"))
	a.Posture = PostureSiege
	gs := testWorld(a)
	s := gs.Settlements["bel"]
	s.BesiegedBy = red
	gs.Settlements["bel"] = s

	if err := ApplyAction(gs, red, Action{Type: ActionMove, Army: "r1", To: OnRoad("bel-cor", 0)}); err != nil {
		t.Fatal(err)
	}
	if gs.Settlements["bel"].BesiegedBy != Neutral {
		t.Error("siege should lift once the besieger leaves")
	}
	if gs.Army("r1").Posture != PostureAggressive {
		t.Error("moving army should drop siege posture")
	}
}

func TestSetPosture(t *testing.T) {
	gs := testWorld(army("r1", red, 5, At("ash")))
	if err := SetPosture(gs, red, "r1", PostureGarrison); err != nil {
		t.Fatal(err)
	}
	if gs.Army("r1").Posture != PostureGarrison {
		t.Error("expected garrison posture")
	}
	if err := SetPosture(gs, red, "r1", PostureSiege); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("siege posture should be rejected, got %v", err)
	}
	if err := ApplyAction(gs, red, Action{Type: "dance", Army: "r1"}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("unknown action should be rejected, got %v", err)
	}
}
