package engine

import (
	"testing"

	"github.com/cardroomlabs/cardroom/internal/cards"
)

func handSeats(stacks ...int) []*pokerSeat {
	out := make([]*pokerSeat, len(stacks))
	for i, st := range stacks {
		out[i] = &pokerSeat{Seat: Seat{Index: i, PlayerID: string(rune('a' + i)), Stack: st}}
	}
	return out
}

func stackedHand(t *testing.T, players []*pokerSeat, button int, cardList string) *pokerHand {
	t.Helper()
	cs, err := cards.ParseAll(cardList)
	if err != nil {
		t.Fatal(err)
	}
	return newPokerHand("h1", cards.StackedDeck(cs...), players, button, 1, 2)
}

func TestHeadsUpBlindsAndOrder(t *testing.T) {
	players := handSeats(100, 100)
	h := stackedHand(t, players, 0, "As Ah Ks Kh")

	// Heads-up the button posts the small blind and acts first preflop.
	if players[0].Bet != 1 || players[1].Bet != 2 {
		t.Fatalf("blinds = %d/%d", players[0].Bet, players[1].Bet)
	}
	if h.active != 0 {
		t.Fatalf("first to act = %d, want button", h.active)
	}
}

func TestThreeHandedBlinds(t *testing.T) {
	players := handSeats(100, 100, 100)
	h := stackedHand(t, players, 0, "")

	if players[1].Bet != 1 {
		t.Errorf("seat after button should post small blind, bet = %d", players[1].Bet)
	}
	if players[2].Bet != 2 {
		t.Errorf("second seat after button should post big blind, bet = %d", players[2].Bet)
	}
	if h.active != 0 {
		t.Errorf("under the gun = %d, want 0", h.active)
	}
}

func TestBigBlindOption(t *testing.T) {
	players := handSeats(100, 100, 100)
	h := stackedHand(t, players, 0, "")

	// Everyone limps; the big blind still gets to act.
	if err := h.apply(ActionCall, 0); err != nil {
		t.Fatal(err)
	}
	if err := h.apply(ActionCall, 0); err != nil {
		t.Fatal(err)
	}
	if h.street != Preflop {
		t.Fatalf("street advanced before big blind option, now %v", h.street)
	}
	if h.active != 2 {
		t.Fatalf("active = %d, want big blind", h.active)
	}
	if err := h.apply(ActionCheck, 0); err != nil {
		t.Fatal(err)
	}
	if h.street != Flop {
		t.Errorf("street = %v after big blind checks, want flop", h.street)
	}
	if len(h.board) != 3 {
		t.Errorf("board has %d cards", len(h.board))
	}
}

func TestRaiseReopensAction(t *testing.T) {
	players := handSeats(100, 100, 100)
	h := stackedHand(t, players, 0, "")

	if err := h.apply(ActionCall, 0); err != nil { // UTG limps
		t.Fatal(err)
	}
	if err := h.apply(ActionRaise, 10); err != nil { // SB raises
		t.Fatal(err)
	}
	if h.betting.CurrentBet != 10 || h.betting.MinRaise != 8 {
		t.Fatalf("bet/minraise = %d/%d", h.betting.CurrentBet, h.betting.MinRaise)
	}
	// BB and the limper both owe a decision again.
	if h.active != 2 {
		t.Fatalf("active = %d, want big blind", h.active)
	}
	if err := h.apply(ActionFold, 0); err != nil {
		t.Fatal(err)
	}
	if h.active != 0 {
		t.Fatalf("active = %d, want the limper", h.active)
	}
}

func TestMinRaiseEnforced(t *testing.T) {
	players := handSeats(100, 100)
	h := stackedHand(t, players, 0, "")

	if err := h.apply(ActionRaise, 3); err == nil {
		t.Error("raise below minimum should be rejected")
	}
	if err := h.apply(ActionRaise, 200); err == nil {
		t.Error("raise beyond stack should be rejected")
	}
	// A short all-in raise is allowed.
	players[0].Stack = 2 // 3 total with the posted small blind
	if err := h.apply(ActionRaise, 3); err != nil {
		t.Errorf("all-in short raise rejected: %v", err)
	}
	if !players[0].AllIn {
		t.Error("short raiser should be all-in")
	}
}

func TestCheckBehindIllegal(t *testing.T) {
	players := handSeats(100, 100)
	h := stackedHand(t, players, 0, "")

	if err := h.apply(ActionCheck, 0); err == nil {
		t.Error("small blind cannot check facing the big blind")
	}
	// The failed action must not consume the turn.
	if h.active != 0 {
		t.Errorf("active = %d after rejected action", h.active)
	}
}

func TestFoldToOneEndsHand(t *testing.T) {
	players := handSeats(100, 100, 100)
	h := stackedHand(t, players, 0, "")

	if err := h.apply(ActionFold, 0); err != nil {
		t.Fatal(err)
	}
	if err := h.apply(ActionFold, 0); err != nil {
		t.Fatal(err)
	}
	if !h.complete() {
		t.Fatal("hand should end when one player remains")
	}
	if len(h.board) != 0 {
		t.Errorf("no board should be dealt on a fold-out, got %v", h.board)
	}
	if h.pots.total() != 3 {
		t.Errorf("pot = %d, want the blinds", h.pots.total())
	}
}

func TestAllInRunout(t *testing.T) {
	players := handSeats(50, 50)
	h := stackedHand(t, players, 0, "As Ah Ks Kh")

	if err := h.apply(ActionRaise, 50); err != nil {
		t.Fatal(err)
	}
	if err := h.apply(ActionCall, 0); err != nil {
		t.Fatal(err)
	}
	// Both all-in; the board runs out to showdown with no one to act.
	if h.street != Showdown {
		t.Fatalf("street = %v, want showdown", h.street)
	}
	if len(h.board) != 5 {
		t.Errorf("board has %d cards, want 5", len(h.board))
	}
	if h.pots.total() != 100 {
		t.Errorf("pot = %d, want 100", h.pots.total())
	}
}

func TestForceFoldOutOfTurn(t *testing.T) {
	players := handSeats(100, 100, 100)
	h := stackedHand(t, players, 0, "")

	// Fold the big blind while under the gun is thinking.
	h.forceFold(2)
	if !players[2].Folded {
		t.Fatal("seat 2 should be folded")
	}
	if h.active != 0 {
		t.Errorf("active = %d, turn should not move", h.active)
	}
	// Play on: UTG calls, SB completes, street should advance without
	// waiting on the folded big blind.
	if err := h.apply(ActionCall, 0); err != nil {
		t.Fatal(err)
	}
	if err := h.apply(ActionCall, 0); err != nil {
		t.Fatal(err)
	}
	if h.street != Flop {
		t.Errorf("street = %v, want flop", h.street)
	}
}
