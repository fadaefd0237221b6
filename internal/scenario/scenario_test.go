package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/freeeve/warbands/pkg/conquest"
)

const twoTowns = `
name: two-towns
computer: green
factions:
  blue: {gold: 50}
  green: {gold: 40}
settlements:
  - {id: ash, controller: blue, garrison: 3, tax: 5}
  - {id: bel, controller: green, garrison: 4, defense: 25, tax: 5}
roads:
  - id: ash-bel
    from: ash
    to: bel
    stages: [{controller: blue}, {}]
armies:
  - {id: b1, faction: blue, strength: 10, position: {settlement: ash}}
  - {id: g1, faction: green, strength: 6, position: {road: ash-bel, stage: 1}, posture: garrison}
`

func TestParse_BuildsState(t *testing.T) {
	sc, err := Parse([]byte(twoTowns))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sc.Name != "two-towns" || sc.Computer != "green" {
		t.Errorf("header = %q / %q", sc.Name, sc.Computer)
	}

	gs := sc.State()
	if gs.Turn != 1 {
		t.Errorf("turn = %d, want 1", gs.Turn)
	}
	if got := gs.Settlements["bel"]; got.Defense != 25 || got.Controller != "green" {
		t.Errorf("bel = %+v", got)
	}
	if got := len(gs.Roads["ash-bel"].Stages); got != 2 {
		t.Errorf("ash-bel stages = %d, want 2", got)
	}
	b1 := gs.Army("b1")
	if b1.Posture != conquest.PostureAggressive || b1.LastSafe != conquest.At("ash") {
		t.Errorf("b1 defaults not applied: %+v", b1)
	}
	if g1 := gs.Army("g1"); g1.Posture != conquest.PostureGarrison || g1.Position != conquest.OnRoad("ash-bel", 1) {
		t.Errorf("g1 = %+v", g1)
	}
	if got := gs.Factions["blue"].Gold; got != 50 {
		t.Errorf("blue gold = %d, want 50", got)
	}
	if humans := sc.Humans(); !reflect.DeepEqual(humans, []conquest.Faction{"blue"}) {
		t.Errorf("Humans = %v", humans)
	}
}

func TestParse_StateIsIndependent(t *testing.T) {
	sc, err := Parse([]byte(twoTowns))
	if err != nil {
		t.Fatal(err)
	}
	first := sc.State()
	first.Roads["ash-bel"].Stages[0].Controller = "green"
	first.Armies[0].Strength = 1

	second := sc.State()
	if second.Roads["ash-bel"].Stages[0].Controller != "blue" || second.Armies[0].Strength != 10 {
		t.Error("State shares memory between calls")
	}
}

func TestParse_AcceptsJSON(t *testing.T) {
	doc := `{"name": "duel", "factions": {"blue": {"gold": 1}, "red": {"gold": 1}}, ` +
		`"settlements": [{"id": "a", "controller": "blue"}, {"id": "b", "controller": "red"}], ` +
		`"roads": [{"id": "a-b", "from": "a", "to": "b", "stages": [{}]}]}`
	sc, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(sc.Humans()) != 2 {
		t.Errorf("Humans = %v", sc.Humans())
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"unknown field", "name: x\ncolour: blue\nsettlements: [{id: a}]"},
		{"no settlements", "name: x"},
		{"duplicate settlement", "settlements: [{id: a}, {id: a}]"},
		{"unknown controller", "settlements: [{id: a, controller: red}]"},
		{"unknown computer", "computer: red\nsettlements: [{id: a}]"},
		{"road to nowhere", "settlements: [{id: a}]\nroads: [{id: r, from: a, to: b, stages: [{}]}]"},
		{"road without stages", "settlements: [{id: a}, {id: b}]\nroads: [{id: r, from: a, to: b}]"},
		{"loop road", "settlements: [{id: a}]\nroads: [{id: r, from: a, to: a, stages: [{}]}]"},
		{"army off map", "factions: {red: {gold: 1}}\nsettlements: [{id: a}]\narmies: [{id: r1, faction: red, strength: 1, position: {settlement: z}}]"},
		{"army without strength", "factions: {red: {gold: 1}}\nsettlements: [{id: a}]\narmies: [{id: r1, faction: red, position: {settlement: a}}]"},
		{"neutral army", "settlements: [{id: a}]\narmies: [{id: n1, strength: 1, position: {settlement: a}}]"},
		{"negative garrison", "settlements: [{id: a, garrison: -1}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); !errors.Is(err, ErrInvalidScenario) {
				t.Errorf("err = %v, want ErrInvalidScenario", err)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("two-towns.yaml", twoTowns)
	write("unnamed.yml", "settlements: [{id: a}]")
	write("notes.txt", "not a scenario")

	set, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if got := Names(set); !reflect.DeepEqual(got, []string{"two-towns", "unnamed"}) {
		t.Errorf("Names = %v", got)
	}

	write("copy.yaml", twoTowns)
	if _, err := LoadDir(dir); !errors.Is(err, ErrInvalidScenario) {
		t.Errorf("duplicate names: err = %v", err)
	}
}

func TestBundledScenarios(t *testing.T) {
	set, err := LoadDir(filepath.Join("..", "..", "scenarios"))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	sc, ok := set["three-crowns"]
	if !ok {
		t.Fatalf("three-crowns missing from %v", Names(set))
	}
	gs := sc.State()
	if len(gs.AliveFactions()) != 3 {
		t.Errorf("alive factions = %v", gs.AliveFactions())
	}
}
