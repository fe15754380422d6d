package engine

import "testing"

func seatsWithTotals(totals []int, allIn []bool) []*pokerSeat {
	out := make([]*pokerSeat, len(totals))
	for i, t := range totals {
		out[i] = &pokerSeat{TotalBet: t}
		if allIn != nil {
			out[i].AllIn = allIn[i]
		}
	}
	return out
}

func TestPotNoAllIns(t *testing.T) {
	players := seatsWithTotals([]int{100, 100, 100}, nil)
	pm := newPotManager()
	pm.rebuild(players)

	if len(pm.pots) != 1 {
		t.Fatalf("expected a single pot, got %d", len(pm.pots))
	}
	if pm.total() != 300 {
		t.Errorf("total = %d, want 300", pm.total())
	}
	if len(pm.pots[0].Eligible) != 3 {
		t.Errorf("eligible = %v", pm.pots[0].Eligible)
	}
}

func TestPotOneAllIn(t *testing.T) {
	// Seat 0 all-in for 50, the others continue to 100.
	players := seatsWithTotals([]int{50, 100, 100}, []bool{true, false, false})
	pm := newPotManager()
	pm.rebuild(players)

	if len(pm.pots) != 2 {
		t.Fatalf("expected 2 pots, got %d", len(pm.pots))
	}
	if pm.pots[0].Amount != 150 || len(pm.pots[0].Eligible) != 3 {
		t.Errorf("main pot = %+v", pm.pots[0])
	}
	if pm.pots[1].Amount != 100 || len(pm.pots[1].Eligible) != 2 {
		t.Errorf("side pot = %+v", pm.pots[1])
	}
}

func TestPotMultipleAllIns(t *testing.T) {
	players := seatsWithTotals(
		[]int{25, 50, 100, 100},
		[]bool{true, true, false, false})
	pm := newPotManager()
	pm.rebuild(players)

	if len(pm.pots) != 3 {
		t.Fatalf("expected 3 pots, got %d", len(pm.pots))
	}
	// 25 from each of 4, 25 more from each of 3, 50 more from each of 2.
	wantAmounts := []int{100, 75, 100}
	wantEligible := []int{4, 3, 2}
	for i, p := range pm.pots {
		if p.Amount != wantAmounts[i] {
			t.Errorf("pot %d amount = %d, want %d", i, p.Amount, wantAmounts[i])
		}
		if len(p.Eligible) != wantEligible[i] {
			t.Errorf("pot %d eligible = %v", i, p.Eligible)
		}
	}
	if pm.total() != 275 {
		t.Errorf("total = %d, want 275", pm.total())
	}
}

func TestPotFoldedChipsStayIn(t *testing.T) {
	// Seat 1 folded after committing 40; nobody is entitled to a refund.
	players := seatsWithTotals([]int{100, 40, 100}, nil)
	players[1].Folded = true
	pm := newPotManager()
	pm.rebuild(players)

	if pm.total() != 240 {
		t.Errorf("total = %d, want 240", pm.total())
	}
	for _, p := range pm.pots {
		for _, idx := range p.Eligible {
			if idx == 1 {
				t.Error("folded seat must not be eligible")
			}
		}
	}
}

func TestPotFoldAboveAllInLevel(t *testing.T) {
	// Seat 0 all-in for 30; seat 1 committed 60 then folded; seat 2 has 60.
	players := seatsWithTotals([]int{30, 60, 60}, []bool{true, false, false})
	players[1].Folded = true
	pm := newPotManager()
	pm.rebuild(players)

	if pm.total() != 150 {
		t.Errorf("total = %d, want 150", pm.total())
	}
	// All 150 chips must be reachable by some eligible seat.
	reachable := 0
	for _, p := range pm.pots {
		if len(p.Eligible) > 0 {
			reachable += p.Amount
		}
	}
	if reachable != 150 {
		t.Errorf("reachable = %d, want 150", reachable)
	}
}

func TestCollectSweepsStreetBets(t *testing.T) {
	players := seatsWithTotals([]int{20, 20}, nil)
	players[0].Bet = 20
	players[1].Bet = 20
	pm := newPotManager()

	if got := pm.totalWithLive(players); got != 40 {
		t.Errorf("totalWithLive = %d, want 40", got)
	}
	pm.collect(players)
	if players[0].Bet != 0 || players[1].Bet != 0 {
		t.Error("collect should zero street bets")
	}
	if pm.total() != 40 {
		t.Errorf("total after collect = %d, want 40", pm.total())
	}
}
