package engine

import "github.com/cardroomlabs/cardroom/internal/cards"

// pokerHand holds the state of a single hand from deal to settlement.
// Indexes below (button, active, bettingRound positions) refer to the
// hand's player list, not table seat numbers.
type pokerHand struct {
	id      string
	players []*pokerSeat
	button  int
	street  Street
	board   []cards.Card
	deck    *cards.Deck
	pots    *potManager
	betting *bettingRound
	active  int
}

func newPokerHand(id string, deck *cards.Deck, players []*pokerSeat, button, smallBlind, bigBlind int) *pokerHand {
	h := &pokerHand{
		id:      id,
		players: players,
		button:  button,
		street:  Preflop,
		deck:    deck,
		pots:    newPotManager(),
		betting: newBettingRound(len(players), bigBlind),
	}
	for _, p := range players {
		p.resetForHand()
		p.Hole = h.deck.Deal(2)
	}
	h.postBlinds(smallBlind, bigBlind)
	h.active = h.firstToAct()
	if h.active == -1 {
		// Blinds put everyone all-in; run the board out.
		h.nextStreet()
	}
	return h
}

// bbPos returns the big blind's position. Heads-up the button posts the
// small blind and the other player the big blind.
func (h *pokerHand) bbPos() int {
	if len(h.players) == 2 {
		return (h.button + 1) % len(h.players)
	}
	return (h.button + 2) % len(h.players)
}

func (h *pokerHand) sbPos() int {
	if len(h.players) == 2 {
		return h.button
	}
	return (h.button + 1) % len(h.players)
}

func (h *pokerHand) postBlinds(smallBlind, bigBlind int) {
	post := func(pos, amount int) {
		p := h.players[pos]
		if amount > p.Stack {
			amount = p.Stack
		}
		p.Bet = amount
		p.TotalBet = amount
		p.Stack -= amount
		if p.Stack == 0 {
			p.AllIn = true
		}
	}
	post(h.sbPos(), smallBlind)
	post(h.bbPos(), bigBlind)
	h.betting.CurrentBet = bigBlind
}

// firstToAct returns the opening position for the current street.
func (h *pokerHand) firstToAct() int {
	if h.street == Preflop {
		return h.nextActive(h.bbPos() + 1)
	}
	return h.nextActive(h.button + 1)
}

func (h *pokerHand) nextActive(from int) int {
	n := len(h.players)
	for i := 0; i < n; i++ {
		pos := (from + i) % n
		if p := h.players[pos]; !p.Folded && !p.AllIn {
			return pos
		}
	}
	return -1
}

// validActions lists what the player to act may do, or nil when the hand
// is not waiting on anyone.
func (h *pokerHand) validActions() []Action {
	if h.active < 0 {
		return nil
	}
	return h.betting.validActions(h.players[h.active])
}

// apply executes the active player's action. amount is the raise-to total
// for ActionRaise and ignored otherwise. Callers have already verified the
// actor holds the turn.
func (h *pokerHand) apply(action Action, amount int) error {
	p := h.players[h.active]

	switch action {
	case ActionFold:
		p.Folded = true
		if h.betting.LastRaiser == h.active {
			h.betting.LastRaiser = -1
		}

	case ActionCheck:
		if h.betting.CurrentBet != p.Bet {
			return E(KindIllegalAction, "cannot check, %d to call", h.betting.CurrentBet-p.Bet)
		}

	case ActionCall:
		toCall := h.betting.CurrentBet - p.Bet
		if toCall <= 0 {
			return E(KindIllegalAction, "nothing to call")
		}
		if toCall > p.Stack {
			toCall = p.Stack
		}
		p.Bet += toCall
		p.TotalBet += toCall
		p.Stack -= toCall
		if p.Stack == 0 {
			p.AllIn = true
		}

	case ActionRaise:
		committed := p.Stack + p.Bet
		if amount > committed {
			return E(KindInsufficientStack, "raise to %d exceeds stack of %d", amount, committed)
		}
		if amount <= h.betting.CurrentBet {
			return E(KindIllegalAction, "raise to %d does not exceed current bet %d", amount, h.betting.CurrentBet)
		}
		// A short all-in below the minimum raise is legal; anything else is not.
		if amount < h.betting.CurrentBet+h.betting.MinRaise && amount < committed {
			return E(KindIllegalAction, "minimum raise is to %d", h.betting.CurrentBet+h.betting.MinRaise)
		}
		h.betting.MinRaise = amount - h.betting.CurrentBet
		h.betting.CurrentBet = amount
		h.betting.LastRaiser = h.active
		p.Stack -= amount - p.Bet
		p.TotalBet += amount - p.Bet
		p.Bet = amount
		if p.Stack == 0 {
			p.AllIn = true
		}
		h.betting.raiseResetsAction(h.active)

	default:
		return E(KindIllegalAction, "action %q is not a poker action", action)
	}

	h.betting.markActed(h.active)
	if h.street == Preflop && h.active == h.bbPos() {
		h.betting.BBActed = true
	}
	h.advance()
	return nil
}

// forceFold folds the given hand position out of turn. Used for timeouts
// and abandoned seats.
func (h *pokerHand) forceFold(pos int) {
	if pos < 0 || pos >= len(h.players) {
		return
	}
	p := h.players[pos]
	if p.Folded {
		return
	}
	p.Folded = true
	h.betting.markActed(pos)
	if h.street == Preflop && pos == h.bbPos() {
		h.betting.BBActed = true
	}
	if h.betting.LastRaiser == pos {
		h.betting.LastRaiser = -1
	}
	if pos == h.active {
		h.active = h.nextActive(pos + 1)
	}
	h.maybeAdvanceStreet()
}

func (h *pokerHand) advance() {
	h.active = h.nextActive(h.active + 1)
	h.maybeAdvanceStreet()
}

func (h *pokerHand) maybeAdvanceStreet() {
	if h.remaining() <= 1 {
		// Won by folds. Sweep outstanding bets and stop dealing.
		h.pots.collect(h.players)
		h.active = -1
		return
	}
	if h.active == -1 || h.betting.complete(h.players, h.street, h.preflopBBPos()) {
		h.nextStreet()
	}
}

func (h *pokerHand) preflopBBPos() int {
	if h.street != Preflop {
		return -1
	}
	return h.bbPos()
}

// nextStreet collects bets, deals the next board cards and opens betting.
// When everyone left is all-in it runs the board out to showdown.
func (h *pokerHand) nextStreet() {
	h.pots.collect(h.players)

	h.betting.resetForStreet(len(h.players))

	switch h.street {
	case Preflop:
		h.street = Flop
		h.board = append(h.board, h.deck.Deal(3)...)
	case Flop:
		h.street = Turn
		h.board = append(h.board, h.deck.Deal(1)...)
	case Turn:
		h.street = River
		h.board = append(h.board, h.deck.Deal(1)...)
	case River:
		h.street = Showdown
		h.active = -1
		return
	case Showdown:
		return
	}

	h.active = h.nextActive(h.button + 1)
	if h.active == -1 {
		h.nextStreet()
	}
}

// remaining counts players still in the hand.
func (h *pokerHand) remaining() int {
	n := 0
	for _, p := range h.players {
		if !p.Folded {
			n++
		}
	}
	return n
}

// complete reports whether the hand has reached a terminal state.
func (h *pokerHand) complete() bool {
	return h.street == Showdown || h.remaining() <= 1
}

// currentPots returns pot layers including bets still on the street.
func (h *pokerHand) currentPots() []pot {
	live := 0
	for _, p := range h.players {
		live += p.Bet
	}
	if live == 0 {
		return h.pots.pots
	}
	out := make([]pot, len(h.pots.pots))
	copy(out, h.pots.pots)
	out[len(out)-1].Amount += live
	return out
}
