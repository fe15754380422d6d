package engine

import "github.com/cardroomlabs/cardroom/internal/cards"

// Street is the poker betting round.
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	Showdown
)

func (s Street) String() string {
	return [...]string{"preflop", "flop", "turn", "river", "showdown"}[s]
}

// pokerSeat is an occupied seat at a poker table. Hand-local betting state
// is reset at each deal; a seat vacated mid-hand stays in the hand's player
// list as folded so committed chips remain in the pot.
type pokerSeat struct {
	Seat
	Bet      int
	TotalBet int
	Folded   bool
	AllIn    bool
	Hole     []cards.Card
	left     bool
}

func (p *pokerSeat) resetForHand() {
	p.Bet = 0
	p.TotalBet = 0
	p.Folded = false
	p.AllIn = false
	p.Hole = nil
}

// bettingRound tracks the state of one street of betting.
type bettingRound struct {
	CurrentBet int
	MinRaise   int
	LastRaiser int // index into the hand's player list, -1 when no raise yet
	BBActed    bool
	Acted      []bool
	bigBlind   int
}

func newBettingRound(numPlayers, bigBlind int) *bettingRound {
	return &bettingRound{
		MinRaise:   bigBlind,
		LastRaiser: -1,
		Acted:      make([]bool, numPlayers),
		bigBlind:   bigBlind,
	}
}

func (br *bettingRound) resetForStreet(numPlayers int) {
	br.CurrentBet = 0
	br.MinRaise = br.bigBlind
	br.LastRaiser = -1
	br.Acted = make([]bool, numPlayers)
	// BBActed only matters preflop and is left alone.
}

func (br *bettingRound) markActed(pos int) {
	if pos >= 0 && pos < len(br.Acted) {
		br.Acted[pos] = true
	}
}

// raiseResetsAction clears acted flags after a raise so everyone still in
// the hand gets to respond.
func (br *bettingRound) raiseResetsAction(raiser int) {
	for i := range br.Acted {
		br.Acted[i] = false
	}
	br.Acted[raiser] = true
}

// validActions lists the actions open to the given player.
func (br *bettingRound) validActions(p *pokerSeat) []Action {
	actions := []Action{ActionFold}
	toCall := br.CurrentBet - p.Bet

	if toCall == 0 {
		actions = append(actions, ActionCheck)
		if p.Stack > 0 {
			actions = append(actions, ActionRaise)
		}
	} else {
		if toCall >= p.Stack {
			// Calling for less is an all-in call.
			actions = append(actions, ActionCall)
		} else {
			actions = append(actions, ActionCall)
			if p.Stack > toCall {
				actions = append(actions, ActionRaise)
			}
		}
	}
	return actions
}

// complete reports whether the street's betting is finished. players is the
// hand's player list; bbPos indexes it, or -1 outside preflop.
func (br *bettingRound) complete(players []*pokerSeat, street Street, bbPos int) bool {
	active := 0
	for _, p := range players {
		if !p.Folded && !p.AllIn {
			active++
		}
	}
	if active == 0 {
		return true
	}
	if active == 1 {
		for _, p := range players {
			if !p.Folded && !p.AllIn {
				return p.Bet == br.CurrentBet
			}
		}
	}

	for i, p := range players {
		if p.Folded || p.AllIn {
			continue
		}
		if p.Bet != br.CurrentBet || !br.Acted[i] {
			return false
		}
	}

	// Preflop the big blind keeps the option to raise an unraised pot.
	if street == Preflop && bbPos >= 0 {
		bb := players[bbPos]
		if br.LastRaiser == -1 && !bb.Folded && !bb.AllIn && !br.BBActed {
			return false
		}
	}
	return true
}
