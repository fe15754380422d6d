package engine

import "sort"

// pot is a main or side pot. Eligible holds indexes into the hand's player
// list, in seating order.
type pot struct {
	Amount   int
	Eligible []int
}

// potManager layers side pots on top of the main pot as players go all-in
// for different amounts.
type potManager struct {
	pots []pot
}

func newPotManager() *potManager {
	return &potManager{pots: []pot{{}}}
}

// total returns the chips across all pots.
func (pm *potManager) total() int {
	t := 0
	for _, p := range pm.pots {
		t += p.Amount
	}
	return t
}

// collect sweeps street bets into the pot and rebuilds side pot layers from
// the per-player totals.
func (pm *potManager) collect(players []*pokerSeat) {
	for _, p := range players {
		p.Bet = 0
	}
	pm.rebuild(players)
}

// rebuild recomputes pot layers. Each distinct all-in total caps a layer;
// contributions above the cap spill into the next layer.
func (pm *potManager) rebuild(players []*pokerSeat) {
	levels := map[int]bool{}
	for _, p := range players {
		if p.AllIn && p.TotalBet > 0 {
			levels[p.TotalBet] = true
		}
	}

	levelCaps := make([]int, 0, len(levels))
	for lvl := range levels {
		levelCaps = append(levelCaps, lvl)
	}
	sort.Ints(levelCaps)

	pm.pots = pm.pots[:0]
	prev := 0
	for _, capAmt := range levelCaps {
		var layer pot
		for i, p := range players {
			if !p.Folded && p.TotalBet > prev {
				layer.Eligible = append(layer.Eligible, i)
			}
			contrib := p.TotalBet - prev
			if contrib > capAmt-prev {
				contrib = capAmt - prev
			}
			if contrib > 0 {
				layer.Amount += contrib
			}
		}
		if layer.Amount > 0 && len(layer.Eligible) > 0 {
			pm.pots = append(pm.pots, layer)
		}
		prev = capAmt
	}

	var top pot
	for i, p := range players {
		if p.TotalBet > prev {
			if !p.Folded {
				top.Eligible = append(top.Eligible, i)
			}
			top.Amount += p.TotalBet - prev
		}
	}
	if top.Amount > 0 {
		if len(top.Eligible) == 0 && len(pm.pots) > 0 {
			// Every contributor above the last all-in level folded; their
			// chips fall into the deepest contested pot.
			pm.pots[len(pm.pots)-1].Amount += top.Amount
		} else {
			pm.pots = append(pm.pots, top)
		}
	}
	if len(pm.pots) == 0 {
		pm.pots = []pot{{}}
	}
}

// totalWithLive returns the pot total plus bets not yet collected.
func (pm *potManager) totalWithLive(players []*pokerSeat) int {
	t := pm.total()
	for _, p := range players {
		t += p.Bet
	}
	return t
}
