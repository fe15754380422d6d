package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cardroomlabs/cardroom/internal/cards"
	"github.com/cardroomlabs/cardroom/internal/poker"
	"github.com/cardroomlabs/cardroom/internal/tableid"
	"github.com/cardroomlabs/cardroom/internal/wallet"
)

// PokerSession is a no-limit hold'em table. All state is guarded by mu;
// notifier calls happen after the lock is released so the hub can read the
// session back without deadlocking.
type PokerSession struct {
	mu       sync.Mutex
	id       string
	cfg      Config
	logger   *log.Logger
	notifier Notifier
	newDeck  func() *cards.Deck

	seats    []*pokerSeat
	byPlayer map[string]int
	button   int // table seat index of the last button, -1 before the first hand
	hand     *pokerHand
	turnSeq  uint64
	frozen   bool

	// expectedChips tracks total chips on the table for conservation checks.
	expectedChips int
}

// NewPokerSession creates a parked poker table.
func NewPokerSession(id string, cfg Config, rng *rand.Rand, notifier Notifier, logger *log.Logger) *PokerSession {
	return &PokerSession{
		id:       id,
		cfg:      cfg,
		logger:   logger.WithPrefix("poker").With("table", id),
		notifier: notifier,
		newDeck:  func() *cards.Deck { return cards.NewDeck(rng) },
		seats:    make([]*pokerSeat, cfg.SeatCount),
		byPlayer: make(map[string]int),
		button:   -1,
	}
}

func (s *PokerSession) ID() string     { return s.id }
func (s *PokerSession) Kind() GameKind { return KindPoker }
func (s *PokerSession) Config() Config { return s.cfg }

// emission batches notifier calls made after the table lock is dropped.
type emission struct {
	changed     bool
	turnSeat    int
	turnSeq     uint64
	turnTimeout time.Duration
	turnStarted bool
	turnEnded   bool
	settled     *wallet.HandRecord
}

func (s *PokerSession) emit(e emission) {
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

func (s *PokerSession) Join(playerID, name string, buyIn, seat int) (int, error) {
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

	s.seats[idx] = &pokerSeat{Seat: Seat{
		Index:     idx,
		PlayerID:  playerID,
		Name:      name,
		Stack:     buyIn,
		Connected: true,
	}}
	s.byPlayer[playerID] = idx
	s.expectedChips += buyIn

	// The deal itself is deferred to StartHandIfReady so players joining at
	// the same time all make the first hand.
	var e emission
	e.changed = true
	s.auditLocked()
	s.mu.Unlock()

	s.emit(e)
	return idx, nil
}

func (s *PokerSession) Leave(playerID string) (int, error) {
	s.mu.Lock()
	idx, ok := s.byPlayer[playerID]
	if !ok {
		s.mu.Unlock()
		return 0, E(KindIllegalAction, "not seated at this table")
	}
	seat := s.seats[idx]

	var e emission
	e.changed = true
	prevActive := -1
	if s.hand != nil {
		prevActive = s.hand.active
		if pos := s.handPos(playerID); pos >= 0 {
			s.hand.players[pos].left = true
			s.hand.forceFold(pos)
		}
	}
	refund := seat.Stack
	seat.Stack = 0
	s.expectedChips -= refund
	s.seats[idx] = nil
	delete(s.byPlayer, playerID)

	// Re-arm the clock only when the fold moved or ended the turn; an
	// out-of-turn departure must not reset the actor's deadline.
	if s.hand == nil || s.hand.complete() || s.hand.active != prevActive {
		s.afterHandStepLocked(&e)
	}
	s.auditLocked()
	s.mu.Unlock()

	s.emit(e)
	return refund, nil
}

func (s *PokerSession) Act(playerID string, action Action, amount int) error {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return E(KindInternalFault, "table is frozen")
	}

	// A seated player acting before the deferred deal closes the join
	// window and materializes the hand.
	var e emission
	if s.hand == nil {
		if _, seated := s.byPlayer[playerID]; seated {
			s.startHandLocked(&e)
		}
	}
	if s.hand == nil {
		s.mu.Unlock()
		s.emit(e)
		return E(KindIllegalAction, "no hand in progress")
	}

	var err error
	pos := s.handPos(playerID)
	switch {
	case pos < 0:
		err = E(KindIllegalAction, "not in this hand")
	case pos != s.hand.active:
		err = E(KindNotYourTurn, "seat %d is to act", s.toActSeatLocked())
	default:
		err = s.hand.apply(action, amount)
	}
	if err != nil {
		// The turn clock keeps running; a rejected action is not a turn.
		// A hand dealt above still announces its first turn.
		s.auditLocked()
		s.mu.Unlock()
		s.emit(e)
		return err
	}

	e.changed = true
	s.afterHandStepLocked(&e)
	s.auditLocked()
	s.mu.Unlock()

	s.emit(e)
	return nil
}

// ExpireTurn applies the deadline default: check when legal, otherwise fold.
func (s *PokerSession) ExpireTurn(seq uint64) {
	s.mu.Lock()
	if s.frozen || s.hand == nil || seq != s.turnSeq || s.hand.active < 0 {
		s.mu.Unlock()
		return
	}
	p := s.hand.players[s.hand.active]
	action := ActionFold
	if s.hand.betting.CurrentBet == p.Bet {
		action = ActionCheck
	}
	s.logger.Info("turn expired", "player", p.PlayerID, "default", action)
	if err := s.hand.apply(action, 0); err != nil {
		s.hand.forceFold(s.hand.active)
	}

	var e emission
	e.changed = true
	s.afterHandStepLocked(&e)
	s.auditLocked()
	s.mu.Unlock()

	s.emit(e)
}

func (s *PokerSession) SetLiveness(playerID string, connected bool) {
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

func (s *PokerSession) StartHandIfReady() {
	s.mu.Lock()
	var e emission
	if s.hand == nil && !s.frozen {
		s.startHandLocked(&e)
	}
	s.mu.Unlock()
	s.emit(e)
}

func (s *PokerSession) Occupied() int {
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

func (s *PokerSession) InHand() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hand != nil
}

func (s *PokerSession) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// handPos returns the player's index in the current hand, or -1.
func (s *PokerSession) handPos(playerID string) int {
	if s.hand == nil {
		return -1
	}
	for i, p := range s.hand.players {
		if p.PlayerID == playerID && !p.left {
			return i
		}
	}
	return -1
}

func (s *PokerSession) toActSeatLocked() int {
	if s.hand == nil || s.hand.active < 0 {
		return -1
	}
	return s.hand.players[s.hand.active].Index
}

// startHandLocked deals a new hand when at least two funded seats exist.
func (s *PokerSession) startHandLocked(e *emission) {
	players := make([]*pokerSeat, 0, len(s.seats))
	for _, seat := range s.seats {
		if seat != nil && seat.Stack > 0 {
			players = append(players, seat)
		}
	}
	if len(players) < 2 {
		return
	}

	// Rotate the button to the next funded seat.
	buttonPos := 0
	for i, p := range players {
		if p.Index > s.button {
			buttonPos = i
			break
		}
	}
	s.button = players[buttonPos].Index

	handID := tableid.NewHandID(s.id)
	s.hand = newPokerHand(handID, s.newDeck(), players, buttonPos, s.cfg.SmallBlind, s.cfg.BigBlind)
	s.logger.Info("hand started", "hand", handID, "players", len(players), "button", s.button)

	e.changed = true
	s.afterHandStepLocked(e)
}

// afterHandStepLocked settles a finished hand or arms the next turn.
func (s *PokerSession) afterHandStepLocked(e *emission) {
	if s.hand == nil {
		return
	}
	if s.hand.complete() {
		s.settleLocked(e)
		return
	}
	if s.hand.active < 0 {
		return
	}
	s.turnSeq++
	e.turnStarted = true
	e.turnSeat = s.toActSeatLocked()
	e.turnSeq = s.turnSeq
	e.turnTimeout = s.cfg.TurnTimeout
}

// settleLocked distributes pots, emits the hand record and parks the table.
// Odd chips go to the earliest eligible winner after the button.
func (s *PokerSession) settleLocked(e *emission) {
	h := s.hand
	h.pots.collect(h.players)

	showdown := h.remaining() > 1
	ranks := make([]poker.HandRank, len(h.players))
	if showdown {
		for i, p := range h.players {
			if !p.Folded {
				ranks[i] = poker.Evaluate(append(append([]cards.Card{}, p.Hole...), h.board...))
			}
		}
	}

	won := make([]int, len(h.players))
	for _, layer := range h.pots.pots {
		winners := s.potWinners(h, layer, ranks, showdown)
		if len(winners) == 0 {
			continue
		}
		share := layer.Amount / len(winners)
		odd := layer.Amount % len(winners)
		for _, w := range s.orderFromButton(h, winners) {
			amt := share
			if odd > 0 {
				amt++
				odd--
			}
			won[w] += amt
		}
	}

	rec := wallet.HandRecord{
		HandID:    h.id,
		TableID:   s.id,
		Kind:      string(KindPoker),
		Board:     cards.Strings(h.board),
		SettledAt: time.Now().UTC(),
	}
	for i, p := range h.players {
		p.Stack += won[i]
		res := wallet.SeatResult{
			PlayerID: p.PlayerID,
			Seat:     p.Index,
			Delta:    won[i] - p.TotalBet,
		}
		if showdown && !p.Folded {
			res.Rank = ranks[i].Describe()
		}
		rec.Results = append(rec.Results, res)
	}

	s.logger.Info("hand settled", "hand", h.id, "pot", h.pots.total(), "showdown", showdown)
	s.hand = nil
	s.turnSeq++

	e.changed = true
	e.turnEnded = true
	e.turnStarted = false
	e.settled = &rec
}

func (s *PokerSession) potWinners(h *pokerHand, layer pot, ranks []poker.HandRank, showdown bool) []int {
	if !showdown {
		for i, p := range h.players {
			if !p.Folded {
				return []int{i}
			}
		}
		return nil
	}
	var best poker.HandRank
	var winners []int
	for _, pos := range layer.Eligible {
		p := h.players[pos]
		if p.Folded {
			continue
		}
		switch {
		case len(winners) == 0 || ranks[pos] > best:
			best = ranks[pos]
			winners = []int{pos}
		case ranks[pos] == best:
			winners = append(winners, pos)
		}
	}
	if len(winners) == 0 {
		// Every eligible player folded out; give the layer to the best
		// surviving hand.
		for i, p := range h.players {
			if !p.Folded {
				winners = append(winners, i)
			}
		}
		if len(winners) > 1 {
			winners = s.bestOf(h, winners, ranks)
		}
	}
	return winners
}

func (s *PokerSession) bestOf(h *pokerHand, candidates []int, ranks []poker.HandRank) []int {
	var best poker.HandRank
	var winners []int
	for _, pos := range candidates {
		switch {
		case len(winners) == 0 || ranks[pos] > best:
			best = ranks[pos]
			winners = []int{pos}
		case ranks[pos] == best:
			winners = append(winners, pos)
		}
	}
	return winners
}

// orderFromButton sorts hand positions by distance from the seat after the
// button so odd chip distribution is deterministic.
func (s *PokerSession) orderFromButton(h *pokerHand, positions []int) []int {
	out := append([]int{}, positions...)
	n := len(h.players)
	dist := func(pos int) int {
		return ((pos - h.button - 1) % n + n) % n
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if dist(out[j]) < dist(out[i]) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// auditLocked verifies chip conservation and freezes the table on breach.
func (s *PokerSession) auditLocked() {
	if s.frozen {
		return
	}
	total := 0
	for _, seat := range s.seats {
		if seat != nil {
			total += seat.Stack
		}
	}
	if s.hand != nil {
		total += s.hand.pots.totalWithLive(s.hand.players)
	}
	if total != s.expectedChips {
		s.frozen = true
		s.logger.Error("chip conservation breached, freezing table",
			"expected", s.expectedChips, "actual", total)
	}
}

func (s *PokerSession) View(viewerID string) TableView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := TableView{
		TableID:   s.id,
		Kind:      KindPoker,
		Phase:     "waiting",
		ToActSeat: s.toActSeatLocked(),
		Frozen:    s.frozen,
	}
	if s.hand != nil {
		view.Phase = s.hand.street.String()
		view.HandID = s.hand.id
		view.Board = cards.Strings(s.hand.board)
		view.Pot = s.hand.pots.totalWithLive(s.hand.players)
		view.CurrentBet = s.hand.betting.CurrentBet
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
		if s.hand != nil {
			if pos := s.handPos(seat.PlayerID); pos >= 0 {
				p := s.hand.players[pos]
				sv.Bet = p.Bet
				sv.Folded = p.Folded
				sv.AllIn = p.AllIn
				reveal := seat.PlayerID == viewerID ||
					(s.hand.street == Showdown && !p.Folded)
				if reveal {
					sv.Cards = cards.Strings(p.Hole)
				} else if len(p.Hole) > 0 && !p.Folded {
					sv.Cards = []string{"??", "??"}
				}
			}
		}
		view.Seats = append(view.Seats, sv)
	}
	return view
}

var _ Session = (*PokerSession)(nil)
