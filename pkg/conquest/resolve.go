package conquest

import "fmt"

// Outcome summarizes how a battle ended.
type Outcome string

const (
	OutcomeAttackerWon       Outcome = "attacker_won"
	OutcomeDefenderWon       Outcome = "defender_won"
	OutcomeStalemate         Outcome = "stalemate"
	OutcomeMutualDestruction Outcome = "mutual_destruction"
	OutcomeRetreated         Outcome = "retreated"
	OutcomeWithdrew          Outcome = "withdrew"
	OutcomeSiegeBegun        Outcome = "siege_begun"
)

// ArmyChange is the per-army part of a resolution.
type ArmyChange struct {
	ID      string    `json:"id"`
	Lost    int       `json:"lost,omitempty"`
	MoveTo  *Position `json:"move_to,omitempty"`
	Posture Posture   `json:"posture,omitempty"`
}

// Resolution is the computed effect of resolving one battle. It is produced
// without touching the state and applied with ApplyResolution.
type Resolution struct {
	Battle         Battle       `json:"battle"`
	Tactic         Tactic       `json:"tactic"`
	Outcome        Outcome      `json:"outcome"`
	AttackerLosses int          `json:"attacker_losses"`
	DefenderLosses int          `json:"defender_losses"`
	GarrisonLosses int          `json:"garrison_losses"`
	GoldSpent      int          `json:"gold_spent,omitempty"`
	ControlChanged bool         `json:"control_changed"`
	Changes        []ArmyChange `json:"changes,omitempty"`
}

// forces is the live view of both sides of a battle.
type forces struct {
	attackers []Army
	defenders []Army
	garrison  int
	bonus     int
}

// currentForces re-reads both sides from the state. The stored battle only
// names the sides and the position; strengths may have changed since
// detection.
func currentForces(gs *GameState, b Battle) (forces, error) {
	var f forces
	for _, a := range gs.ArmiesAt(b.Position) {
		switch {
		case a.Faction == b.Attacker && a.Aggressive():
			f.attackers = append(f.attackers, a)
		case a.Faction == b.Defender:
			f.defenders = append(f.defenders, a)
		}
	}
	if b.Position.IsSettlement() {
		s, ok := gs.Settlements[b.Position.Settlement]
		if !ok {
			return f, fmt.Errorf("%w: unknown settlement %s", ErrStaleBattle, b.Position)
		}
		if s.Controller == b.Defender {
			f.garrison = s.Garrison
			f.bonus = s.Defense
		}
	} else {
		st, ok := gs.stageAt(b.Position)
		if !ok {
			return f, fmt.Errorf("%w: unknown stage %s", ErrStaleBattle, b.Position)
		}
		f.bonus = st.Defense
	}
	if len(f.attackers) == 0 || (len(f.defenders) == 0 && f.garrison <= 0) {
		return f, fmt.Errorf("%w: %s", ErrStaleBattle, b.Key())
	}
	return f, nil
}

// ResolveBattle computes the result of resolving b with the final tactic t.
// siegeCost <= 0 means DefaultSiegeCost. gs is not modified.
func ResolveBattle(gs *GameState, b Battle, t Tactic, siegeCost int) (Resolution, error) {
	f, err := currentForces(gs, b)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Battle: b, Tactic: t}

	switch t {
	case TacticFight, TacticUnset:
		res.Tactic = TacticFight
		resolveFight(&res, f)
	case TacticRetreat:
		for _, a := range f.attackers {
			if a.LastSafe.IsZero() {
				return Resolution{}, fmt.Errorf("%w: army %s has nowhere to retreat", ErrInvalidTactic, a.ID)
			}
			to := a.LastSafe
			res.Changes = append(res.Changes, ArmyChange{ID: a.ID, MoveTo: &to})
		}
		res.Outcome = OutcomeRetreated
	case TacticRetreatCity:
		city, ok := gs.parentSettlement(b.Position, b.Defender)
		if !ok {
			return Resolution{}, fmt.Errorf("%w: no settlement to retreat into", ErrInvalidTactic)
		}
		to := At(city)
		for _, a := range f.defenders {
			res.Changes = append(res.Changes, ArmyChange{ID: a.ID, MoveTo: &to, Posture: PostureGarrison})
		}
		res.Outcome = OutcomeWithdrew
		res.ControlChanged = true
	case TacticSiege:
		if !b.Position.IsSettlement() {
			return Resolution{}, fmt.Errorf("%w: siege requires a settlement", ErrInvalidTactic)
		}
		if siegeCost <= 0 {
			siegeCost = DefaultSiegeCost
		}
		if gs.Factions[b.Attacker].Gold < siegeCost {
			return Resolution{}, fmt.Errorf("%w: siege costs %d", ErrInsufficientGold, siegeCost)
		}
		for _, a := range f.attackers {
			res.Changes = append(res.Changes, ArmyChange{ID: a.ID, Posture: PostureSiege})
		}
		res.GoldSpent = siegeCost
		res.Outcome = OutcomeSiegeBegun
	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidTactic, t)
	}
	return res, nil
}

func resolveFight(res *Resolution, f forces) {
	a := 0
	for _, x := range f.attackers {
		a += x.Strength
	}
	d := f.garrison
	for _, x := range f.defenders {
		d += x.Strength
	}
	e := effective(d, f.bonus)

	attLoss := clampLoss(ceilDiv(a*e, a+e), a)
	defLoss := clampLoss(ceilDiv(d*a, a+e), d)
	res.AttackerLosses = attLoss
	res.DefenderLosses = defLoss

	changes := make(map[string]*ArmyChange)
	take := func(armies []Army, loss int) int {
		for _, x := range armies {
			if loss == 0 {
				break
			}
			n := min(loss, x.Strength)
			changes[x.ID] = &ArmyChange{ID: x.ID, Lost: n}
			loss -= n
		}
		return loss
	}
	take(f.attackers, attLoss)
	res.GarrisonLosses = min(take(f.defenders, defLoss), f.garrison)

	aRem, dRem := a-attLoss, d-defLoss
	switch {
	case dRem == 0 && aRem == 0:
		res.Outcome = OutcomeMutualDestruction
	case dRem == 0:
		res.Outcome = OutcomeAttackerWon
		res.ControlChanged = true
	case aRem == 0 || aRem < effective(dRem, f.bonus):
		res.Outcome = OutcomeDefenderWon
		for _, x := range f.attackers {
			if c := changes[x.ID]; c != nil && c.Lost >= x.Strength {
				continue
			}
			if x.LastSafe.IsZero() {
				continue
			}
			to := x.LastSafe
			c := changes[x.ID]
			if c == nil {
				c = &ArmyChange{ID: x.ID}
				changes[x.ID] = c
			}
			c.MoveTo = &to
		}
	default:
		res.Outcome = OutcomeStalemate
	}

	for _, x := range f.attackers {
		if c := changes[x.ID]; c != nil {
			res.Changes = append(res.Changes, *c)
		}
	}
	for _, x := range f.defenders {
		if c := changes[x.ID]; c != nil {
			res.Changes = append(res.Changes, *c)
		}
	}
}

// ApplyResolution writes a resolution into the state.
func ApplyResolution(gs *GameState, res Resolution) {
	b := res.Battle
	for _, c := range res.Changes {
		a := gs.Army(c.ID)
		if a == nil {
			continue
		}
		a.Strength -= c.Lost
		if c.MoveTo != nil {
			a.Position = *c.MoveTo
		}
		if c.Posture != "" {
			a.Posture = c.Posture
		}
	}
	gs.removeEmptyArmies()

	if res.GoldSpent > 0 {
		fs := gs.Factions[b.Attacker]
		fs.Gold -= res.GoldSpent
		gs.Factions[b.Attacker] = fs
	}

	if b.Position.IsSettlement() {
		s := gs.Settlements[b.Position.Settlement]
		s.Garrison -= res.GarrisonLosses
		if s.Garrison < 0 {
			s.Garrison = 0
		}
		if res.Tactic == TacticSiege {
			s.BesiegedBy = b.Attacker
			s.SiegeRounds = 0
		}
		// A non-controlling defender losing does not hand over the
		// settlement; the controller's garrison is fought separately.
		if res.ControlChanged && s.Controller == b.Defender {
			s.Controller = b.Attacker
			s.Garrison = 0
			s.BesiegedBy = Neutral
			s.SiegeRounds = 0
		}
		gs.Settlements[b.Position.Settlement] = s
		return
	}
	if res.ControlChanged {
		gs.setStageController(b.Position, b.Attacker)
	}
}

func effective(strength, bonus int) int {
	return ceilDiv(strength*(100+bonus), 100)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func clampLoss(loss, available int) int {
	if loss < 1 {
		loss = 1
	}
	return min(loss, available)
}
