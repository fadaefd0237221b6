package conquest

import "fmt"

// MaxCascadeSteps bounds the number of automatic resolutions in one drain.
const MaxCascadeSteps = 256

// CascadeResult is what is left after all computer-only battles were drained.
type CascadeResult struct {
	Resolved []Resolution `json:"resolved,omitempty"`
	Captures []Capture    `json:"captures,omitempty"`
	Current  *Battle      `json:"-"`
	Queue    []Battle     `json:"-"`
}

// Cascade repeatedly settles uncontested captures, scans for battles and
// resolves with FIGHT the first battle where neither side is human, until
// only human-involved battles remain. Of those, the first one touching
// trigger (or else the first overall) becomes Current and the rest form
// Queue. gs is modified in place.
func Cascade(gs *GameState, isHuman func(Faction) bool, trigger Faction) (CascadeResult, error) {
	var out CascadeResult
	for step := 0; ; step++ {
		out.Captures = append(out.Captures, SettleUncontested(gs)...)
		battles := DetectBattles(gs)

		idx := -1
		for i, b := range battles {
			if !isHuman(b.Attacker) && !isHuman(b.Defender) {
				idx = i
				break
			}
		}
		if idx < 0 {
			out.Current, out.Queue = selectCurrent(battles, trigger)
			return out, nil
		}
		if step >= MaxCascadeSteps {
			return out, fmt.Errorf("%w after %d steps", ErrCascadeLimit, step)
		}

		res, err := ResolveBattle(gs, battles[idx], TacticFight, 0)
		if err != nil {
			return out, fmt.Errorf("resolve %s: %w", battles[idx].Key(), err)
		}
		ApplyResolution(gs, res)
		out.Resolved = append(out.Resolved, res)
	}
}

func selectCurrent(battles []Battle, trigger Faction) (*Battle, []Battle) {
	if len(battles) == 0 {
		return nil, nil
	}
	pick := 0
	if trigger != Neutral {
		for i, b := range battles {
			if b.Involves(trigger) {
				pick = i
				break
			}
		}
	}
	current := battles[pick]
	queue := make([]Battle, 0, len(battles)-1)
	queue = append(queue, battles[:pick]...)
	queue = append(queue, battles[pick+1:]...)
	return &current, queue
}
