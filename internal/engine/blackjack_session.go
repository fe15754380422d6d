package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cardroomlabs/cardroom/internal/cards"
	"github.com/cardroomlabs/cardroom/internal/tableid"
	"github.com/cardroomlabs/cardroom/internal/wallet"
)

type bjPhase int

const (
	bjWaiting bjPhase = iota
	bjBetting
	bjPlayerTurn
	bjDealerTurn
)

func (p bjPhase) String() string {
	return [...]string{"waiting", "betting", "player_turn", "dealer_turn"}[p]
}

// bjHand is one wager's cards. A split seat plays two of these in order.
type bjHand struct {
	Cards       []cards.Card
	Bet         int
	Stood       bool
	Busted      bool
	Doubled     bool
	Surrendered bool
	fromSplit   bool
}

func (h *bjHand) done() bool {
	return h.Stood || h.Busted || h.Surrendered
}

// natural reports a two-card 21 on an unsplit hand.
func (h *bjHand) natural() bool {
	if h.fromSplit || len(h.Cards) != 2 {
		return false
	}
	v, _ := handValue(h.Cards)
	return v == 21
}

// bjSeat is an occupied blackjack seat. Hands are hand-local and cleared
// between rounds.
type bjSeat struct {
	Seat
	Hands   []*bjHand
	current int
	skipped bool // sat out this round (no bet placed in time)
	left    bool
}

// shoeDecks sizes the shoe so no legal round can run it out: a hand tops out
// at 22 cards before it must bust or stand, a split seat plays two hands, and
// the dealer draws on top.
func shoeDecks(seatCount int) int {
	need := seatCount*2*22 + 22
	return (need + 51) / 52
}

// handValue totals a blackjack hand. Aces count 11, dropping to 1 while the
// total busts. soft is true when an ace still counts as 11.
func handValue(cs []cards.Card) (total int, soft bool) {
	aces := 0
	for _, c := range cs {
		switch r := c.Rank(); {
		case r == cards.Ace:
			aces++
			total += 11
		case r >= cards.Ten:
			total += 10
		default:
			total += int(r) + 2
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total, aces > 0
}

// BlackjackSession is a multi-seat blackjack table against a house dealer.
// Betting and play both run seat by seat so exactly one seat holds the
// to-act token at any time.
type BlackjackSession struct {
	mu       sync.Mutex
	id       string
	cfg      Config
	logger   *log.Logger
	notifier Notifier
	newDeck  func() *cards.Deck

	seats    []*bjSeat
	byPlayer map[string]int

	phase        bjPhase
	handID       string
	deck         *cards.Deck
	dealer       []cards.Card
	dealerHidden bool
	// participants snapshots the seats in the current round; seats vacated
	// mid-round stay here so their wagers settle.
	participants []*bjSeat
	toAct        int // index into participants, -1 when none
	turnSeq      uint64
	frozen       bool

	expectedChips int
}

// NewBlackjackSession creates a parked blackjack table.
func NewBlackjackSession(id string, cfg Config, rng *rand.Rand, notifier Notifier, logger *log.Logger) *BlackjackSession {
	return &BlackjackSession{
		id:       id,
		cfg:      cfg,
		logger:   logger.WithPrefix("blackjack").With("table", id),
		notifier: notifier,
		newDeck:  func() *cards.Deck { return cards.NewShoe(shoeDecks(cfg.SeatCount), rng) },
		seats:    make([]*bjSeat, cfg.SeatCount),
		byPlayer: make(map[string]int),
		phase:    bjWaiting,
		toAct:    -1,
	}
}

func (s *BlackjackSession) ID() string     { return s.id }
func (s *BlackjackSession) Kind() GameKind { return KindBlackjack }
func (s *BlackjackSession) Config() Config { return s.cfg }

func (s *BlackjackSession) emit(e emission) {
	if e.turnEnded {
		s.notifier.TurnEnded(s.id)
	}
	if e.settled != nil {
		s.notifier.HandSettled(s.id, *e.settled)
	}
	if e.turnStarted {
		s.notifier.TurnStarted(s.id, e.turnSeat, e.turnSeq, e.turnTimeout)
	}
	if e.changed {
		s.notifier.TableChanged(s.id)
	}
}

func (s *BlackjackSession) Join(playerID, name string, buyIn, seat int) (int, error) {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return 0, E(KindInternalFault, "table is frozen")
	}
	if _, ok := s.byPlayer[playerID]; ok {
		s.mu.Unlock()
		return 0, E(KindIllegalAction, "already seated at this table")
	}
	if buyIn < s.cfg.MinBuyIn || buyIn > s.cfg.MaxBuyIn {
		s.mu.Unlock()
		return 0, E(KindIllegalAction, "buy-in %d outside range %d..%d", buyIn, s.cfg.MinBuyIn, s.cfg.MaxBuyIn)
	}

	idx := -1
	if seat >= 0 {
		if seat >= len(s.seats) {
			s.mu.Unlock()
			return 0, E(KindIllegalAction, "seat %d out of range", seat)
		}
		if s.seats[seat] != nil {
			s.mu.Unlock()
			return 0, E(KindTableFull, "seat %d is taken", seat)
		}
		idx = seat
	} else {
		for i, occ := range s.seats {
			if occ == nil {
				idx = i
				break
			}
		}
		if idx == -1 {
			s.mu.Unlock()
			return 0, E(KindTableFull, "no free seats")
		}
	}

	s.seats[idx] = &bjSeat{Seat: Seat{
		Index:     idx,
		PlayerID:  playerID,
		Name:      name,
		Stack:     buyIn,
		Connected: true,
	}}
	s.byPlayer[playerID] = idx
	s.expectedChips += buyIn

	var e emission
	e.changed = true
	switch s.phase {
	case bjWaiting:
		s.startRoundLocked(&e)
	case bjBetting:
		// The cards are not out yet, so the new seat enters the open
		// betting round behind the current bettor.
		if s.seats[idx].Stack >= s.cfg.MinBet {
			s.participants = append(s.participants, s.seats[idx])
		}
	}
	s.auditLocked()
	s.mu.Unlock()
	s.emit(e)
	return idx, nil
}

func (s *BlackjackSession) Leave(playerID string) (int, error) {
	s.mu.Lock()
	idx, ok := s.byPlayer[playerID]
	if !ok {
		s.mu.Unlock()
		return 0, E(KindIllegalAction, "not seated at this table")
	}
	seat := s.seats[idx]

	var e emission
	e.changed = true
	seat.left = true
	// Wagers of the current round are surrendered; the seat stays in the
	// participant list so the house collects them at settlement.
	for _, h := range seat.Hands {
		h.Surrendered = true
	}
	prevToAct := s.toAct
	if s.phase == bjBetting || s.phase == bjPlayerTurn {
		if s.toAct >= 0 && s.participants[s.toAct] == seat {
			s.advanceTurnLocked(&e)
		}
	}
	refund := seat.Stack
	seat.Stack = 0
	s.expectedChips -= refund
	s.seats[idx] = nil
	delete(s.byPlayer, playerID)

	if s.toAct == prevToAct && s.toAct >= 0 {
		// Turn unchanged; do not reset the actor's clock.
		e.turnStarted = false
	}
	s.auditLocked()
	s.mu.Unlock()
	s.emit(e)
	return refund, nil
}

func (s *BlackjackSession) Act(playerID string, action Action, amount int) error {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return E(KindInternalFault, "table is frozen")
	}
	if s.phase != bjBetting && s.phase != bjPlayerTurn {
		s.mu.Unlock()
		return E(KindIllegalAction, "no turn in progress")
	}
	if s.toAct < 0 || s.participants[s.toAct].PlayerID != playerID {
		s.mu.Unlock()
		return E(KindNotYourTurn, "seat %d is to act", s.toActSeatLocked())
	}
	seat := s.participants[s.toAct]

	var err error
	var e emission
	if s.phase == bjBetting {
		err = s.applyBetLocked(seat, action, amount, &e)
	} else {
		err = s.applyPlayLocked(seat, action, &e)
	}
	if err != nil {
		// A failed draw freezes the table; the emission carries that out.
		s.auditLocked()
		s.mu.Unlock()
		s.emit(e)
		return err
	}
	e.changed = true
	s.auditLocked()
	s.mu.Unlock()
	s.emit(e)
	return nil
}

func (s *BlackjackSession) applyBetLocked(seat *bjSeat, action Action, amount int, e *emission) error {
	if action != ActionBet {
		return E(KindIllegalAction, "place a bet first")
	}
	if amount < s.cfg.MinBet || amount > s.cfg.MaxBet {
		return E(KindIllegalAction, "bet %d outside range %d..%d", amount, s.cfg.MinBet, s.cfg.MaxBet)
	}
	if amount > seat.Stack {
		return E(KindInsufficientStack, "bet %d exceeds stack of %d", amount, seat.Stack)
	}
	seat.Stack -= amount
	seat.Hands = []*bjHand{{Bet: amount}}
	s.advanceTurnLocked(e)
	return nil
}

func (s *BlackjackSession) applyPlayLocked(seat *bjSeat, action Action, e *emission) error {
	h := seat.Hands[seat.current]
	switch action {
	case ActionHit:
		c, err := s.drawLocked(e)
		if err != nil {
			return err
		}
		h.Cards = append(h.Cards, c)
		if v, _ := handValue(h.Cards); v > 21 {
			h.Busted = true
		} else if v == 21 {
			h.Stood = true
		}

	case ActionStand:
		h.Stood = true

	case ActionDouble:
		if len(h.Cards) != 2 {
			return E(KindIllegalAction, "double only on the first two cards")
		}
		if seat.Stack < h.Bet {
			return E(KindInsufficientStack, "doubling needs %d more chips", h.Bet)
		}
		c, err := s.drawLocked(e)
		if err != nil {
			return err
		}
		seat.Stack -= h.Bet
		h.Bet *= 2
		h.Doubled = true
		h.Cards = append(h.Cards, c)
		if v, _ := handValue(h.Cards); v > 21 {
			h.Busted = true
		} else {
			h.Stood = true
		}

	case ActionSplit:
		if len(seat.Hands) != 1 || len(h.Cards) != 2 || h.Cards[0].Rank() != h.Cards[1].Rank() {
			return E(KindIllegalAction, "split needs a first-two-card pair")
		}
		if seat.Stack < h.Bet {
			return E(KindInsufficientStack, "splitting needs %d more chips", h.Bet)
		}
		c1, err := s.drawLocked(e)
		if err != nil {
			return err
		}
		c2, err := s.drawLocked(e)
		if err != nil {
			return err
		}
		seat.Stack -= h.Bet
		second := &bjHand{
			Cards:     []cards.Card{h.Cards[1], c2},
			Bet:       h.Bet,
			fromSplit: true,
		}
		h.Cards = []cards.Card{h.Cards[0], c1}
		h.fromSplit = true
		seat.Hands = append(seat.Hands, second)

	default:
		return E(KindIllegalAction, "action %q is not a blackjack action", action)
	}

	if h.done() {
		s.advanceHandLocked(seat, e)
	} else {
		// Same seat keeps acting with a fresh deadline.
		s.armTurnLocked(e)
	}
	return nil
}

// ExpireTurn applies the deadline default: sit out during betting, stand
// during play.
func (s *BlackjackSession) ExpireTurn(seq uint64) {
	s.mu.Lock()
	if s.frozen || seq != s.turnSeq || s.toAct < 0 {
		s.mu.Unlock()
		return
	}
	seat := s.participants[s.toAct]
	var e emission
	e.changed = true
	switch s.phase {
	case bjBetting:
		s.logger.Info("bet deadline expired, sitting out", "player", seat.PlayerID)
		seat.skipped = true
		s.advanceTurnLocked(&e)
	case bjPlayerTurn:
		s.logger.Info("turn expired, standing", "player", seat.PlayerID)
		seat.Hands[seat.current].Stood = true
		s.advanceHandLocked(seat, &e)
	default:
		s.mu.Unlock()
		return
	}
	s.auditLocked()
	s.mu.Unlock()
	s.emit(e)
}

func (s *BlackjackSession) SetLiveness(playerID string, connected bool) {
	s.mu.Lock()
	idx, ok := s.byPlayer[playerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.seats[idx].Connected = connected
	s.mu.Unlock()
	s.notifier.TableChanged(s.id)
}

func (s *BlackjackSession) StartHandIfReady() {
	s.mu.Lock()
	var e emission
	if s.phase == bjWaiting && !s.frozen {
		s.startRoundLocked(&e)
	}
	s.mu.Unlock()
	s.emit(e)
}

func (s *BlackjackSession) Occupied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, seat := range s.seats {
		if seat != nil {
			n++
		}
	}
	return n
}

func (s *BlackjackSession) InHand() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase != bjWaiting
}

func (s *BlackjackSession) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

func (s *BlackjackSession) toActSeatLocked() int {
	if s.toAct < 0 || s.toAct >= len(s.participants) {
		return -1
	}
	return s.participants[s.toAct].Index
}

// startRoundLocked opens the betting phase for every funded seat.
func (s *BlackjackSession) startRoundLocked(e *emission) {
	s.participants = s.participants[:0]
	for _, seat := range s.seats {
		if seat != nil && seat.Stack >= s.cfg.MinBet {
			seat.Hands = nil
			seat.current = 0
			seat.skipped = false
			s.participants = append(s.participants, seat)
		}
	}
	if len(s.participants) == 0 {
		s.phase = bjWaiting
		s.toAct = -1
		return
	}

	s.phase = bjBetting
	s.handID = tableid.NewHandID(s.id)
	s.deck = s.newDeck()
	s.dealer = nil
	s.dealerHidden = true
	s.toAct = 0
	s.logger.Info("round started", "hand", s.handID, "seats", len(s.participants))
	e.changed = true
	s.armTurnLocked(e)
}

func (s *BlackjackSession) armTurnLocked(e *emission) {
	s.turnSeq++
	e.turnStarted = true
	e.turnSeat = s.toActSeatLocked()
	e.turnSeq = s.turnSeq
	e.turnTimeout = s.cfg.TurnTimeout
}

// advanceTurnLocked moves the to-act token to the next participant during
// betting, dealing once every seat has answered.
func (s *BlackjackSession) advanceTurnLocked(e *emission) {
	if s.phase == bjBetting {
		for next := s.toAct + 1; next < len(s.participants); next++ {
			p := s.participants[next]
			if !p.left && !p.skipped {
				s.toAct = next
				s.armTurnLocked(e)
				return
			}
		}
		s.dealLocked(e)
		return
	}
	s.nextPlayHandLocked(e)
}

// advanceHandLocked moves play within a split seat, then to the next seat.
func (s *BlackjackSession) advanceHandLocked(seat *bjSeat, e *emission) {
	if seat.current+1 < len(seat.Hands) {
		seat.current++
		s.armTurnLocked(e)
		return
	}
	s.nextPlayHandLocked(e)
}

func (s *BlackjackSession) nextPlayHandLocked(e *emission) {
	for next := s.toAct + 1; next < len(s.participants); next++ {
		seat := s.participants[next]
		if seat.left || seat.skipped || len(seat.Hands) == 0 {
			continue
		}
		seat.current = 0
		for seat.current < len(seat.Hands) && seat.Hands[seat.current].done() {
			seat.current++
		}
		if seat.current == len(seat.Hands) {
			continue
		}
		s.toAct = next
		s.armTurnLocked(e)
		return
	}
	s.dealerTurnLocked(e)
}

// drawLocked takes the next card from the shoe. Running dry mid-round is an
// internal fault: play cannot continue, so the table freezes for manual
// settlement.
func (s *BlackjackSession) drawLocked(e *emission) (cards.Card, error) {
	if c, ok := s.deck.DealOne(); ok {
		return c, nil
	}
	s.frozen = true
	s.toAct = -1
	e.changed = true
	e.turnEnded = true
	e.turnStarted = false
	s.logger.Error("shoe exhausted mid-round, freezing table", "hand", s.handID)
	return 0, E(KindInternalFault, "card shoe exhausted")
}

// dealLocked deals the opening cards once all bets are in.
func (s *BlackjackSession) dealLocked(e *emission) {
	live := 0
	for _, seat := range s.participants {
		if !seat.left && !seat.skipped && len(seat.Hands) > 0 {
			live++
		}
	}
	if live == 0 {
		s.phase = bjWaiting
		s.toAct = -1
		e.turnEnded = true
		return
	}

	for round := 0; round < 2; round++ {
		for _, seat := range s.participants {
			if seat.left || seat.skipped || len(seat.Hands) == 0 {
				continue
			}
			c, err := s.drawLocked(e)
			if err != nil {
				return
			}
			seat.Hands[0].Cards = append(seat.Hands[0].Cards, c)
		}
		c, err := s.drawLocked(e)
		if err != nil {
			return
		}
		s.dealer = append(s.dealer, c)
	}

	s.phase = bjPlayerTurn
	s.logger.Info("cards dealt", "hand", s.handID, "dealer_up", s.dealer[0].String())

	// A dealer natural ends the round before anyone acts.
	if v, _ := handValue(s.dealer); v == 21 {
		s.settleLocked(e)
		return
	}

	// Player naturals stand automatically.
	for _, seat := range s.participants {
		for _, h := range seat.Hands {
			if h.natural() {
				h.Stood = true
			}
		}
	}

	s.toAct = -1
	s.nextPlayHandLocked(e)
}

// dealerTurnLocked plays out the house hand and settles.
func (s *BlackjackSession) dealerTurnLocked(e *emission) {
	s.phase = bjDealerTurn
	s.toAct = -1
	s.dealerHidden = false

	// Skip drawing when every wager is already decided.
	if s.anyLiveWagers() {
		for {
			v, soft := handValue(s.dealer)
			if v > 17 || v == 21 {
				break
			}
			if v == 17 && !(soft && s.cfg.DealerHitsSoft17) {
				break
			}
			c, err := s.drawLocked(e)
			if err != nil {
				return
			}
			s.dealer = append(s.dealer, c)
		}
	}
	s.settleLocked(e)
}

// anyLiveWagers reports whether any unsettled hand can still beat the house.
func (s *BlackjackSession) anyLiveWagers() bool {
	for _, seat := range s.participants {
		for _, h := range seat.Hands {
			if !h.Busted && !h.Surrendered {
				return true
			}
		}
	}
	return false
}

// settleLocked pays every wager against the dealer and parks the table.
func (s *BlackjackSession) settleLocked(e *emission) {
	s.dealerHidden = false
	dealerVal, _ := handValue(s.dealer)
	dealerNatural := len(s.dealer) == 2 && dealerVal == 21

	rec := wallet.HandRecord{
		HandID:    s.handID,
		TableID:   s.id,
		Kind:      string(KindBlackjack),
		SettledAt: time.Now().UTC(),
	}

	tableDelta := 0
	for _, seat := range s.participants {
		if len(seat.Hands) == 0 {
			continue
		}
		delta := 0
		for _, h := range seat.Hands {
			payout := s.payout(h, dealerVal, dealerNatural)
			delta += payout - h.Bet
			seat.Stack += payout
			tableDelta += payout - h.Bet
		}
		rec.Results = append(rec.Results, wallet.SeatResult{
			PlayerID: seat.PlayerID,
			Seat:     seat.Index,
			Delta:    delta,
		})
	}
	s.expectedChips += tableDelta
	rec.HouseDelta = -tableDelta

	s.logger.Info("round settled", "hand", s.handID, "dealer", dealerVal, "house_delta", rec.HouseDelta)
	s.phase = bjWaiting
	s.toAct = -1
	s.turnSeq++
	s.participants = s.participants[:0]

	e.changed = true
	e.turnEnded = true
	e.turnStarted = false
	e.settled = &rec
}

// payout returns the chips handed back for one hand, stake included.
func (s *BlackjackSession) payout(h *bjHand, dealerVal int, dealerNatural bool) int {
	if h.Surrendered || h.Busted {
		return 0
	}
	v, _ := handValue(h.Cards)
	switch {
	case h.natural() && dealerNatural:
		return h.Bet // both natural, push
	case dealerNatural:
		return 0
	case h.natural():
		return h.Bet + h.Bet*3/2
	case dealerVal > 21 || v > dealerVal:
		return h.Bet * 2
	case v == dealerVal:
		return h.Bet
	default:
		return 0
	}
}

// auditLocked verifies chip conservation and freezes the table on breach.
func (s *BlackjackSession) auditLocked() {
	if s.frozen {
		return
	}
	total := 0
	for _, seat := range s.seats {
		if seat != nil {
			total += seat.Stack
		}
	}
	for _, seat := range s.participants {
		for _, h := range seat.Hands {
			total += h.Bet
		}
	}
	if total != s.expectedChips {
		s.frozen = true
		s.logger.Error("chip conservation breached, freezing table",
			"expected", s.expectedChips, "actual", total)
	}
}

func (s *BlackjackSession) View(viewerID string) TableView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := TableView{
		TableID:   s.id,
		Kind:      KindBlackjack,
		Phase:     s.phase.String(),
		HandID:    s.handID,
		ToActSeat: s.toActSeatLocked(),
		Frozen:    s.frozen,
	}
	if s.phase == bjWaiting {
		view.HandID = ""
	}

	if len(s.dealer) > 0 {
		if s.dealerHidden {
			view.DealerCards = []string{s.dealer[0].String(), "??"}
			up, _ := handValue(s.dealer[:1])
			view.DealerValue = up
		} else {
			view.DealerCards = cards.Strings(s.dealer)
			v, _ := handValue(s.dealer)
			view.DealerValue = v
		}
	}

	for _, seat := range s.seats {
		if seat == nil {
			continue
		}
		sv := SeatView{
			Index:     seat.Index,
			PlayerID:  seat.PlayerID,
			Name:      seat.Name,
			Stack:     seat.Stack,
			Connected: seat.Connected,
		}
		// Blackjack hands are public; no masking needed.
		if len(seat.Hands) > 0 {
			for _, h := range seat.Hands {
				sv.Bet += h.Bet
			}
			first := seat.Hands[0]
			sv.Cards = cards.Strings(first.Cards)
			sv.HandValue, _ = handValue(first.Cards)
			sv.Busted = first.Busted
			sv.Stood = first.Stood
			if len(seat.Hands) > 1 {
				second := seat.Hands[1]
				sv.SplitCards = cards.Strings(second.Cards)
				sv.SplitValue, _ = handValue(second.Cards)
				sv.SplitBusted = second.Busted
				sv.SplitStood = second.Stood
			}
		}
		view.Seats = append(view.Seats, sv)
	}
	return view
}

var _ Session = (*BlackjackSession)(nil)
