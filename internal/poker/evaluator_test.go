package poker

import "testing"

func TestEvaluateCategories(t *testing.T) {
	cases := []struct {
		hand string
		want Category
	}{
		{"As Ks Qs Js Ts 2c 3d", StraightFlush},
		{"5d 4d 3d 2d Ad Kc Qc", StraightFlush}, // steel wheel
		{"As Ac Ad Ah Ks 2c 3d", FourOfAKind},
		{"As Ac Ad Ks Kd 2c 3d", FullHouse},
		{"As Ks 9s 5s 2s Ac 3d", Flush},
		{"9c 8d 7h 6s 5c Ac Kd", Straight},
		{"As 2c 3d 4h 5s 9c Td", Straight}, // wheel
		{"As Ac Ad Ks Qd 2c 3d", ThreeOfAKind},
		{"As Ac Ks Kd 9c 2c 3d", TwoPair},
		{"As Ac Ks Qd 9c 2c 3d", Pair},
		{"As Ks Qd 9c 7h 5s 2c", HighCard},
	}
	for _, tc := range cases {
		if got := ParseHand(tc.hand).Category(); got != tc.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tc.hand, got, tc.want)
		}
	}
}

func TestCategoryOrdering(t *testing.T) {
	ladder := []string{
		"As Ks Qd 9c 7h 5s 2c", // high card
		"As Ac Ks Qd 9c 2c 3d", // pair
		"As Ac Ks Kd 9c 2c 3d", // two pair
		"As Ac Ad Ks Qd 2c 3d", // trips
		"9c 8d 7h 6s 5c Ac Kd", // straight
		"As Ks 9s 5s 2s Qc 3d", // flush
		"As Ac Ad Ks Kd 2c 3d", // full house
		"As Ac Ad Ah Ks 2c 3d", // quads
		"As Ks Qs Js Ts 2c 3d", // straight flush
	}
	for i := 1; i < len(ladder); i++ {
		lo, hi := ParseHand(ladder[i-1]), ParseHand(ladder[i])
		if hi <= lo {
			t.Errorf("%q (%v) should beat %q (%v)", ladder[i], hi, ladder[i-1], lo)
		}
	}
}

func TestWheelIsLowestStraight(t *testing.T) {
	wheel := ParseHand("As 2c 3d 4h 5s 9c Td")
	six := ParseHand("2c 3d 4h 5s 6d 9c Td")
	if wheel >= six {
		t.Error("six-high straight should beat the wheel")
	}
	if wheel.Category() != Straight {
		t.Errorf("wheel category = %v", wheel.Category())
	}
}

func TestKickersBreakTies(t *testing.T) {
	better := ParseHand("As Ac Kd 9c 7h 5s 2c") // aces, king kicker
	worse := ParseHand("Ad Ah Qd 9s 7c 5d 2h")  // aces, queen kicker
	if better <= worse {
		t.Error("king kicker should beat queen kicker")
	}

	tie1 := ParseHand("As Ac Kd Qc 9h 5s 2c")
	tie2 := ParseHand("Ad Ah Kh Qd 9s 5d 2h")
	if tie1 != tie2 {
		t.Errorf("identical ranks should tie: %v vs %v", tie1, tie2)
	}
}

func TestTwoPairUsesBestTwo(t *testing.T) {
	// Three pairs in seven cards: aces and kings play, queens become moot.
	r := ParseHand("As Ac Ks Kd Qs Qd 2c")
	if r.Category() != TwoPair {
		t.Fatalf("category = %v", r.Category())
	}
	lower := ParseHand("As Ac Qs Qd Js Jd 2c")
	if r <= lower {
		t.Error("aces and kings should beat aces and queens")
	}
}

func TestFullHouseFromTwoTrips(t *testing.T) {
	r := ParseHand("As Ac Ad Ks Kd Kc 2c")
	if r.Category() != FullHouse {
		t.Fatalf("category = %v", r.Category())
	}
	// Aces full of kings beats kings full of aces.
	other := ParseHand("Ks Kd Kc As Ac 2d 3c")
	if r <= other {
		t.Error("aces full should beat kings full")
	}
}

func TestFlushBeatsLowerFlush(t *testing.T) {
	high := ParseHand("As Ks 9s 5s 2s 3c 4d")
	low := ParseHand("Ks Qs 9s 5s 2s 3c 4d")
	if high <= low {
		t.Error("ace-high flush should beat king-high flush")
	}
}

func TestDescribe(t *testing.T) {
	cases := map[string]string{
		"As Ac Ks Qd 9c 2c 3d": "Pair of Aces",
		"Ks Kd Kc As Qd 2c 3d": "Three Kings",
		"9c 8d 7h 6s 5c Ac Kd": "Straight, Nine high",
	}
	for hand, want := range cases {
		if got := ParseHand(hand).Describe(); got != want {
			t.Errorf("Describe(%q) = %q, want %q", hand, got, want)
		}
	}
}
