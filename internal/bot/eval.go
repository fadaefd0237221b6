package bot

import (
	"sort"

	"github.com/freeeve/warbands/pkg/conquest"
)

// distances memoizes shortest step counts between map positions. Maps are
// small and differ per session, so each plan builds its own.
type distances struct {
	gs   *conquest.GameState
	from map[conquest.Position]map[conquest.Position]int
}

func newDistances(gs *conquest.GameState) *distances {
	return &distances{gs: gs, from: make(map[conquest.Position]map[conquest.Position]int)}
}

// between returns the number of moves from a to b, or -1 if unreachable.
func (d *distances) between(a, b conquest.Position) int {
	dist, ok := d.from[a]
	if !ok {
		dist = d.bfs(a)
		d.from[a] = dist
	}
	if n, ok := dist[b]; ok {
		return n
	}
	return -1
}

func (d *distances) bfs(start conquest.Position) map[conquest.Position]int {
	dist := map[conquest.Position]int{start: 0}
	queue := []conquest.Position{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range d.gs.Neighbors(cur) {
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[cur] + 1
			queue = append(queue, n)
		}
	}
	return dist
}

// stepToward returns the neighbor of from that gets closest to to.
func (d *distances) stepToward(from, to conquest.Position) (conquest.Position, bool) {
	best := d.between(from, to)
	if best <= 0 {
		return conquest.Position{}, false
	}
	var step conquest.Position
	found := false
	for _, n := range d.gs.Neighbors(from) {
		if dn := d.between(n, to); dn >= 0 && dn < best {
			best = dn
			step = n
			found = true
		}
	}
	return step, found
}

// settlementDefense is the effective strength an attacker of f must beat to
// take settlement id: the garrison and every non-f army there, with the
// controller's defense bonus applied.
func settlementDefense(gs *conquest.GameState, id string, f conquest.Faction) int {
	s := gs.Settlements[id]
	total := 0
	if s.Controller != f {
		total = s.Garrison
	}
	for _, a := range gs.ArmiesAt(conquest.At(id)) {
		if a.Faction != f {
			total += a.Strength
		}
	}
	if s.Controller == conquest.Neutral || s.Controller == f {
		return total
	}
	return (total*(100+s.Defense) + 99) / 100
}

// holdingStrength is what f keeps at settlement id without the army skip.
func holdingStrength(gs *conquest.GameState, id string, f conquest.Faction, skip string) int {
	total := gs.Settlements[id].Garrison
	for _, a := range gs.ArmiesAt(conquest.At(id)) {
		if a.Faction == f && a.ID != skip {
			total += a.Strength
		}
	}
	return total
}

// threatTo sums the aggressive enemy strength within one move of settlement id.
func threatTo(gs *conquest.GameState, d *distances, id string, f conquest.Faction) int {
	target := conquest.At(id)
	total := 0
	for _, a := range gs.Armies {
		if a.Faction == f || !a.Aggressive() {
			continue
		}
		if n := d.between(a.Position, target); n >= 0 && n <= 1 {
			total += a.Strength
		}
	}
	return total
}

// ownedSettlements returns the ids f controls that are not under siege,
// ordered by id.
func ownedSettlements(gs *conquest.GameState, f conquest.Faction) []string {
	var ids []string
	for id, s := range gs.Settlements {
		if s.Controller == f && s.BesiegedBy == conquest.Neutral {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// movableArmies returns f's armies that can still move this turn, ordered by id.
func movableArmies(gs *conquest.GameState, f conquest.Faction) []conquest.Army {
	var out []conquest.Army
	for _, a := range gs.ArmiesOf(f) {
		if a.Arrived || a.Posture == conquest.PostureSiege {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
