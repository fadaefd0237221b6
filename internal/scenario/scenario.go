// Package scenario loads starting worlds from YAML (or JSON) files.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/freeeve/warbands/pkg/conquest"
)

// ErrInvalidScenario is returned for scenarios that do not describe a
// playable map.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a starting world plus the suggested seating.
type Scenario struct {
	Name        string                                     `yaml:"name" json:"name"`
	Description string                                     `yaml:"description,omitempty" json:"description,omitempty"`
	Computer    conquest.Faction                           `yaml:"computer,omitempty" json:"computer,omitempty"`
	Factions    map[conquest.Faction]conquest.FactionState `yaml:"factions" json:"factions"`
	Settlements []conquest.Settlement                      `yaml:"settlements" json:"settlements"`
	Roads       []conquest.Road                            `yaml:"roads" json:"roads"`
	Armies      []conquest.Army                            `yaml:"armies,omitempty" json:"armies,omitempty"`
}

// Parse decodes a scenario. YAML is a superset of JSON, so both work.
// Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScenario)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads and parses one scenario file. A missing name defaults to the
// file's base name.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// LoadDir loads every .yaml, .yml and .json file in dir, keyed by name.
func LoadDir(dir string) (map[string]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	out := make(map[string]*Scenario)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		sc, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := out[sc.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate scenario name %q", ErrInvalidScenario, sc.Name)
		}
		out[sc.Name] = sc
	}
	return out, nil
}

// Names returns the scenario names in ascending order.
func Names(set map[string]*Scenario) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks ids, references and positions.
func (sc *Scenario) Validate() error {
	if len(sc.Settlements) == 0 {
		return fmt.Errorf("%w: no settlements", ErrInvalidScenario)
	}
	known := func(f conquest.Faction) bool {
		if f == conquest.Neutral {
			return true
		}
		_, ok := sc.Factions[f]
		return ok
	}
	if sc.Computer != conquest.Neutral && !known(sc.Computer) {
		return fmt.Errorf("%w: computer faction %q not listed", ErrInvalidScenario, sc.Computer)
	}

	settlements := make(map[string]bool, len(sc.Settlements))
	for _, s := range sc.Settlements {
		if s.ID == "" {
			return fmt.Errorf("%w: settlement without id", ErrInvalidScenario)
		}
		if settlements[s.ID] {
			return fmt.Errorf("%w: duplicate settlement %s", ErrInvalidScenario, s.ID)
		}
		if !known(s.Controller) {
			return fmt.Errorf("%w: settlement %s controlled by unknown faction %q", ErrInvalidScenario, s.ID, s.Controller)
		}
		if s.Garrison < 0 || s.Defense < 0 || s.Tax < 0 {
			return fmt.Errorf("%w: settlement %s has a negative value", ErrInvalidScenario, s.ID)
		}
		settlements[s.ID] = true
	}

	roads := make(map[string]bool, len(sc.Roads))
	for _, r := range sc.Roads {
		switch {
		case r.ID == "":
			return fmt.Errorf("%w: road without id", ErrInvalidScenario)
		case roads[r.ID]:
			return fmt.Errorf("%w: duplicate road %s", ErrInvalidScenario, r.ID)
		case !settlements[r.From] || !settlements[r.To]:
			return fmt.Errorf("%w: road %s joins unknown settlements", ErrInvalidScenario, r.ID)
		case r.From == r.To:
			return fmt.Errorf("%w: road %s is a loop", ErrInvalidScenario, r.ID)
		case len(r.Stages) == 0:
			return fmt.Errorf("%w: road %s has no stages", ErrInvalidScenario, r.ID)
		}
		for i, st := range r.Stages {
			if !known(st.Controller) {
				return fmt.Errorf("%w: road %s stage %d controlled by unknown faction %q", ErrInvalidScenario, r.ID, i, st.Controller)
			}
		}
		roads[r.ID] = true
	}

	gs := sc.world()
	armies := make(map[string]bool, len(sc.Armies))
	for _, a := range sc.Armies {
		switch {
		case a.ID == "":
			return fmt.Errorf("%w: army without id", ErrInvalidScenario)
		case armies[a.ID]:
			return fmt.Errorf("%w: duplicate army %s", ErrInvalidScenario, a.ID)
		case a.Faction == conquest.Neutral || !known(a.Faction):
			return fmt.Errorf("%w: army %s has unknown faction %q", ErrInvalidScenario, a.ID, a.Faction)
		case a.Strength <= 0:
			return fmt.Errorf("%w: army %s has no strength", ErrInvalidScenario, a.ID)
		case !gs.Valid(a.Position):
			return fmt.Errorf("%w: army %s at unknown position %s", ErrInvalidScenario, a.ID, a.Position)
		}
		armies[a.ID] = true
	}
	return nil
}

// State builds a fresh game state for turn 1. Armies start aggressive with
// their own position as the last safe one unless the file says otherwise.
func (sc *Scenario) State() *conquest.GameState {
	gs := sc.world()
	gs.Armies = make([]conquest.Army, 0, len(sc.Armies))
	for _, a := range sc.Armies {
		if a.Posture == "" {
			a.Posture = conquest.PostureAggressive
		}
		if a.LastSafe.IsZero() {
			a.LastSafe = a.Position
		}
		a.Arrived = false
		gs.Armies = append(gs.Armies, a)
	}
	return gs
}

// Humans returns the listed factions other than the computer, ordered by id.
func (sc *Scenario) Humans() []conquest.Faction {
	var out []conquest.Faction
	for f := range sc.Factions {
		if f != sc.Computer {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (sc *Scenario) world() *conquest.GameState {
	gs := &conquest.GameState{
		Turn:        1,
		Settlements: make(map[string]conquest.Settlement, len(sc.Settlements)),
		Roads:       make(map[string]conquest.Road, len(sc.Roads)),
		Factions:    make(map[conquest.Faction]conquest.FactionState, len(sc.Factions)),
	}
	for _, s := range sc.Settlements {
		gs.Settlements[s.ID] = s
	}
	for _, r := range sc.Roads {
		stages := make([]conquest.Stage, len(r.Stages))
		copy(stages, r.Stages)
		r.Stages = stages
		gs.Roads[r.ID] = r
	}
	for f, fs := range sc.Factions {
		gs.Factions[f] = fs
	}
	return gs
}
