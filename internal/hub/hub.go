// Package hub is the realtime layer between websocket connections and the
// game sessions: it binds identities to connections, routes joins and
// actions, runs the turn clock and disconnect grace timers, and fans masked
// table views out to everyone watching.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/cardroomlabs/cardroom/internal/engine"
	"github.com/cardroomlabs/cardroom/internal/protocol"
	"github.com/cardroomlabs/cardroom/internal/registry"
	"github.com/cardroomlabs/cardroom/internal/wallet"
)

const walletCallTimeout = 3 * time.Second

// client is one identity-tagged connection. *Conn implements it; tests use
// in-memory fakes.
type client interface {
	PlayerID() string
	PlayerName() string
	Send(msg *protocol.Message) error
}

// Options tune the hub's timing and policy knobs.
type Options struct {
	// GracePeriod is how long a disconnected player's seat survives before
	// the forced default action and cash-out.
	GracePeriod time.Duration

	// InterHandDelay is the pause between settlement and the next deal.
	InterHandDelay time.Duration

	// AllowMultiTable permits one identity to occupy seats at several
	// tables of the same game kind.
	AllowMultiTable bool
}

// Hub is the connection manager. One instance serves every table.
type Hub struct {
	opts   Options
	clock  quartz.Clock
	turns  *TurnClock
	ledger wallet.Ledger
	writer *wallet.Writer
	logger *log.Logger

	registry *registry.Registry

	mu      sync.Mutex
	conns   map[string]client                     // playerID -> live connection
	grace   map[string]*quartz.Timer              // playerID -> pending vacate
	members map[string]map[string]bool            // tableID -> playerIDs
	seated  map[string]map[string]engine.GameKind // playerID -> tableID -> kind
	order   map[string]*sync.Mutex                // tableID -> broadcast order
}

// New builds a hub. SetRegistry must be called before any traffic; the
// registry in turn needs the hub as its session notifier.
func New(opts Options, clock quartz.Clock, ledger wallet.Ledger, writer *wallet.Writer, logger *log.Logger) *Hub {
	h := &Hub{
		opts:    opts,
		clock:   clock,
		ledger:  ledger,
		writer:  writer,
		logger:  logger.WithPrefix("hub"),
		conns:   make(map[string]client),
		grace:   make(map[string]*quartz.Timer),
		members: make(map[string]map[string]bool),
		seated:  make(map[string]map[string]engine.GameKind),
		order:   make(map[string]*sync.Mutex),
	}
	h.turns = NewTurnClock(clock, h.expireTurn)
	return h
}

// SetRegistry wires the session registry after construction.
func (h *Hub) SetRegistry(r *registry.Registry) {
	h.registry = r
}

// Bind associates a connection with its identity. A second live connection
// for the same identity is rejected; a rebind within the disconnect grace
// cancels the pending vacate and restores liveness with all table state
// unchanged.
func (h *Hub) Bind(c client) error {
	playerID := c.PlayerID()

	h.mu.Lock()
	if _, ok := h.conns[playerID]; ok {
		h.mu.Unlock()
		return engine.E(engine.KindAlreadyBound, "identity %s already has a live connection", playerID)
	}
	if timer, ok := h.grace[playerID]; ok {
		timer.Stop()
		delete(h.grace, playerID)
	}
	h.conns[playerID] = c
	tables := h.tablesOfLocked(playerID)
	h.mu.Unlock()

	for _, tableID := range tables {
		if session, err := h.registry.Get(tableID); err == nil {
			session.SetLiveness(playerID, true)
		}
		h.sendState(c, tableID)
	}
	h.logger.Info("bound", "player", playerID, "tables", len(tables))
	return nil
}

// OnDisconnect marks the identity as away and starts the grace timer. The
// seat, stack and any owed turn stay untouched until the timer fires.
func (h *Hub) OnDisconnect(c client) {
	playerID := c.PlayerID()

	h.mu.Lock()
	if h.conns[playerID] != c {
		// A newer connection already replaced this one.
		h.mu.Unlock()
		return
	}
	delete(h.conns, playerID)
	tables := h.tablesOfLocked(playerID)
	if len(tables) > 0 {
		h.grace[playerID] = h.clock.AfterFunc(h.opts.GracePeriod, func() {
			h.graceExpired(playerID)
		}, "hub", "grace", playerID)
	}
	h.mu.Unlock()

	for _, tableID := range tables {
		if session, err := h.registry.Get(tableID); err == nil {
			session.SetLiveness(playerID, false)
		}
	}
	h.logger.Info("disconnected", "player", playerID, "tables", len(tables))
}

// graceExpired vacates every seat the player still holds. The session
// applies its default action for any owed turn before releasing the stack.
func (h *Hub) graceExpired(playerID string) {
	h.mu.Lock()
	delete(h.grace, playerID)
	if _, ok := h.conns[playerID]; ok {
		// Rebound while the timer was in flight.
		h.mu.Unlock()
		return
	}
	tables := h.tablesOfLocked(playerID)
	h.mu.Unlock()

	h.logger.Info("grace expired, vacating", "player", playerID, "tables", len(tables))
	for _, tableID := range tables {
		if _, err := h.leaveTable(playerID, tableID); err != nil {
			h.logger.Warn("vacate failed", "player", playerID, "table", tableID, "error", err)
		}
	}
}

// Join seats the player at a table of the connection's realm, debiting the
// buy-in first. seat < 0 requests any open seat.
func (h *Hub) Join(playerID, name string, realm engine.GameKind, tableID string, seat, buyIn int) (int, error) {
	session, err := h.registry.Get(tableID)
	if err != nil {
		return 0, err
	}
	if session.Kind() != realm {
		return 0, engine.E(engine.KindIllegalAction, "table %s is a %s table", tableID, session.Kind())
	}

	// Reserve the membership before touching money so a concurrent join by
	// the same identity cannot slip past the single-table policy.
	h.mu.Lock()
	for other, kind := range h.seated[playerID] {
		if other == tableID {
			h.mu.Unlock()
			return 0, engine.E(engine.KindIllegalAction, "already seated at table %s", tableID)
		}
		if kind == realm && !h.opts.AllowMultiTable {
			h.mu.Unlock()
			return 0, engine.E(engine.KindIllegalAction, "already seated at %s table %s", kind, other)
		}
	}
	h.addMemberLocked(playerID, tableID, realm)
	h.mu.Unlock()

	rollback := func() {
		h.mu.Lock()
		h.removeMemberLocked(playerID, tableID)
		h.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), walletCallTimeout)
	err = h.ledger.Debit(ctx, playerID, int64(buyIn), "buyin", tableID)
	cancel()
	if err != nil {
		rollback()
		if errors.Is(err, wallet.ErrInsufficientFunds) || errors.Is(err, wallet.ErrUnknownAccount) {
			return 0, engine.E(engine.KindInsufficientFunds, "buy-in of %d refused", buyIn)
		}
		h.logger.Error("buy-in debit failed", "player", playerID, "table", tableID, "error", err)
		return 0, engine.E(engine.KindInternalFault, "wallet unavailable")
	}

	idx, err := session.Join(playerID, name, buyIn, seat)
	if err != nil {
		rollback()
		h.writer.CreditAsync(playerID, int64(buyIn), "buyin-refund", tableID)
		return 0, err
	}

	h.logger.Info("joined", "player", playerID, "table", tableID, "seat", idx, "buyin", buyIn)
	// Sessions defer the deal, so players joining within the same window
	// all make the first hand.
	h.scheduleDeal(tableID)
	return idx, nil
}

// Leave vacates the player's seat and credits the remaining stack back.
func (h *Hub) Leave(playerID, tableID string) (int, error) {
	h.mu.Lock()
	member := h.members[tableID][playerID]
	h.mu.Unlock()
	if !member {
		return 0, engine.E(engine.KindIllegalAction, "not seated at table %s", tableID)
	}
	return h.leaveTable(playerID, tableID)
}

func (h *Hub) leaveTable(playerID, tableID string) (int, error) {
	session, err := h.registry.Get(tableID)
	if err != nil {
		return 0, err
	}
	refund, err := session.Leave(playerID)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	h.removeMemberLocked(playerID, tableID)
	h.mu.Unlock()

	if refund > 0 {
		h.writer.CreditAsync(playerID, int64(refund), "cashout", tableID)
	}
	h.logger.Info("left", "player", playerID, "table", tableID, "refund", refund)
	return refund, nil
}

// Act routes a validated action to the table.
func (h *Hub) Act(playerID, tableID string, action engine.Action, amount int) error {
	session, err := h.registry.Get(tableID)
	if err != nil {
		return err
	}
	return session.Act(playerID, action, amount)
}

// ListTables summarizes the live tables of one game kind.
func (h *Hub) ListTables(realm engine.GameKind) []protocol.TableSummary {
	sessions := h.registry.List()
	out := make([]protocol.TableSummary, 0, len(sessions))
	for _, s := range sessions {
		if s.Kind() != realm {
			continue
		}
		out = append(out, protocol.TableSummary{
			TableID:  s.ID(),
			Kind:     string(s.Kind()),
			Seats:    s.Config().SeatCount,
			Occupied: s.Occupied(),
			InHand:   s.InHand(),
		})
	}
	return out
}

// View renders the table for one viewer, stamping the live turn deadline.
func (h *Hub) View(playerID, tableID string) (engine.TableView, error) {
	session, err := h.registry.Get(tableID)
	if err != nil {
		return engine.TableView{}, err
	}
	view := session.View(playerID)
	if deadline, ok := h.turns.Deadline(tableID); ok {
		view.TurnDeadlineMS = deadline.UnixMilli()
	}
	return view, nil
}

func (h *Hub) expireTurn(tableID string, seq uint64) {
	session, err := h.registry.Get(tableID)
	if err != nil {
		return
	}
	session.ExpireTurn(seq)
}

// TableChanged implements engine.Notifier.
func (h *Hub) TableChanged(tableID string) {
	h.broadcastState(tableID)
}

// TurnStarted implements engine.Notifier.
func (h *Hub) TurnStarted(tableID string, seat int, seq uint64, timeout time.Duration) {
	h.turns.Arm(tableID, seq, timeout)
	h.broadcast(tableID, protocol.MustMessage(protocol.TypeTurn, protocol.TurnData{
		TableID:   tableID,
		Seat:      seat,
		TimeoutMS: timeout.Milliseconds(),
	}))
}

// TurnEnded implements engine.Notifier.
func (h *Hub) TurnEnded(tableID string) {
	h.turns.Cancel(tableID)
}

// HandSettled implements engine.Notifier. The record goes to the wallet
// writer fire-and-forget; the next hand is scheduled after a short pause.
func (h *Hub) HandSettled(tableID string, rec wallet.HandRecord) {
	h.writer.RecordHandAsync(rec)

	data := protocol.SettlementData{
		TableID:    tableID,
		HandID:     rec.HandID,
		Board:      rec.Board,
		HouseDelta: rec.HouseDelta,
	}
	for _, res := range rec.Results {
		data.Results = append(data.Results, protocol.SettledSeat{
			PlayerID: res.PlayerID,
			Seat:     res.Seat,
			Delta:    res.Delta,
			Rank:     res.Rank,
		})
	}
	h.broadcast(tableID, protocol.MustMessage(protocol.TypeSettlement, data))

	h.scheduleDeal(tableID)
}

// scheduleDeal starts the table's next hand after the inter-hand pause.
func (h *Hub) scheduleDeal(tableID string) {
	h.clock.AfterFunc(h.opts.InterHandDelay, func() {
		if session, err := h.registry.Get(tableID); err == nil {
			session.StartHandIfReady()
		}
	}, "hub", "nexthand", tableID)
}

func (h *Hub) addMemberLocked(playerID, tableID string, kind engine.GameKind) {
	if h.members[tableID] == nil {
		h.members[tableID] = make(map[string]bool)
	}
	h.members[tableID][playerID] = true
	if h.seated[playerID] == nil {
		h.seated[playerID] = make(map[string]engine.GameKind)
	}
	h.seated[playerID][tableID] = kind
}

func (h *Hub) removeMemberLocked(playerID, tableID string) {
	delete(h.members[tableID], playerID)
	if len(h.members[tableID]) == 0 {
		delete(h.members, tableID)
	}
	delete(h.seated[playerID], tableID)
	if len(h.seated[playerID]) == 0 {
		delete(h.seated, playerID)
	}
}

func (h *Hub) tablesOfLocked(playerID string) []string {
	tables := make([]string, 0, len(h.seated[playerID]))
	for tableID := range h.seated[playerID] {
		tables = append(tables, tableID)
	}
	return tables
}

var _ engine.Notifier = (*Hub)(nil)
