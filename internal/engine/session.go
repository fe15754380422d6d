// Package engine implements the per-table game sessions: the poker and
// blackjack state machines, betting and pot accounting, and the shared seat
// substrate. A session is a single mutable unit of state; every entry point
// serializes on the session's mutex and does no I/O while holding it.
package engine

import (
	"time"

	"github.com/cardroomlabs/cardroom/internal/wallet"
)

// GameKind selects the session variant for a table.
type GameKind string

const (
	KindPoker     GameKind = "poker"
	KindBlackjack GameKind = "blackjack"
)

// Valid reports whether the kind names a known game.
func (k GameKind) Valid() bool {
	return k == KindPoker || k == KindBlackjack
}

// Action is a typed player request.
type Action string

const (
	// Poker actions.
	ActionFold  Action = "fold"
	ActionCheck Action = "check"
	ActionCall  Action = "call"
	ActionRaise Action = "raise"

	// Blackjack actions. ActionBet places the wager that opens a hand.
	ActionBet    Action = "bet"
	ActionHit    Action = "hit"
	ActionStand  Action = "stand"
	ActionDouble Action = "double"
	ActionSplit  Action = "split"
)

// Config is the per-table configuration supplied at creation time.
type Config struct {
	Kind        GameKind
	SeatCount   int
	SmallBlind  int
	BigBlind    int
	MinBet      int // blackjack wager bounds
	MaxBet      int
	MinBuyIn    int
	MaxBuyIn    int
	TurnTimeout time.Duration
	// DealerHitsSoft17 selects the house rule for the blackjack dealer.
	DealerHitsSoft17 bool
}

// Seat is the substrate shared by both game kinds. Kind-specific betting
// state lives in the session that owns the seat.
type Seat struct {
	Index     int
	PlayerID  string
	Name      string
	Stack     int
	Connected bool
}

// SeatView is the masked per-seat state sent to clients.
type SeatView struct {
	Index     int      `json:"index"`
	PlayerID  string   `json:"player_id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Stack     int      `json:"stack"`
	Bet       int      `json:"bet,omitempty"`
	Folded    bool     `json:"folded,omitempty"`
	AllIn     bool     `json:"all_in,omitempty"`
	Busted    bool     `json:"busted,omitempty"`
	Stood     bool     `json:"stood,omitempty"`
	Connected bool     `json:"connected"`
	Cards     []string `json:"cards,omitempty"`
	HandValue int      `json:"hand_value,omitempty"`
	// A split blackjack seat reports its second hand separately.
	SplitCards  []string `json:"split_cards,omitempty"`
	SplitValue  int      `json:"split_value,omitempty"`
	SplitBusted bool     `json:"split_busted,omitempty"`
	SplitStood  bool     `json:"split_stood,omitempty"`
}

// TableView is one recipient's masked snapshot of a table.
type TableView struct {
	TableID        string     `json:"table_id"`
	Kind           GameKind   `json:"kind"`
	Phase          string     `json:"phase"`
	HandID         string     `json:"hand_id,omitempty"`
	Seats          []SeatView `json:"seats"`
	Board          []string   `json:"board,omitempty"`
	Pot            int        `json:"pot,omitempty"`
	CurrentBet     int        `json:"current_bet,omitempty"`
	DealerCards    []string   `json:"dealer_cards,omitempty"`
	DealerValue    int        `json:"dealer_value,omitempty"`
	ToActSeat      int        `json:"to_act_seat"`
	TurnDeadlineMS int64      `json:"turn_deadline_ms,omitempty"`
	Frozen         bool       `json:"frozen,omitempty"`
}

// Session is the capability every table variant exposes. All methods are
// safe for concurrent use; mutating methods serialize per table.
type Session interface {
	ID() string
	Kind() GameKind
	Config() Config

	// Join seats a player whose buy-in has already been debited. seat < 0
	// requests any free seat. Returns the seat index taken.
	Join(playerID, name string, buyIn, seat int) (int, error)

	// Leave vacates the player's seat, applying the game's default action
	// first if a turn is owed. Returns the stack to credit back.
	Leave(playerID string) (int, error)

	// Act applies a validated player action.
	Act(playerID string, action Action, amount int) error

	// ExpireTurn applies the default action for the turn identified by seq.
	// Stale sequence numbers are ignored; this is the linearization point
	// for the action-versus-deadline race.
	ExpireTurn(seq uint64)

	// SetLiveness flags a seated player's connection state.
	SetLiveness(playerID string, connected bool)

	// StartHandIfReady begins the next hand when the table is parked and
	// enough seats are occupied. Called by the hub between hands.
	StartHandIfReady()

	// View renders the table as seen by viewerID (hole cards masked).
	View(viewerID string) TableView

	Occupied() int
	InHand() bool
	Frozen() bool
}

// Notifier receives session lifecycle events. Implementations must not call
// back into the session synchronously and must not block.
type Notifier interface {
	// TableChanged signals that broadcast views should be refreshed.
	TableChanged(tableID string)

	// TurnStarted arms the turn clock for the given seat and sequence.
	TurnStarted(tableID string, seat int, seq uint64, timeout time.Duration)

	// TurnEnded cancels any armed deadline for the table.
	TurnEnded(tableID string)

	// HandSettled delivers the settlement record for the persistence
	// collaborator and schedules the next hand.
	HandSettled(tableID string, rec wallet.HandRecord)
}

// NopNotifier discards all events. Useful in unit tests.
type NopNotifier struct{}

func (NopNotifier) TableChanged(string)                            {}
func (NopNotifier) TurnStarted(string, int, uint64, time.Duration) {}
func (NopNotifier) TurnEnded(string)                               {}
func (NopNotifier) HandSettled(string, wallet.HandRecord)          {}
