// Package wallet is the persistence boundary. Sessions never talk to it
// while holding a table lock; the server debits buy-ins before seating and
// credits cash-outs after the seat is vacated.
package wallet

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientFunds is returned by Debit when the account balance
	// cannot cover the amount.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")

	// ErrUnknownAccount is returned when the player has no wallet account.
	ErrUnknownAccount = errors.New("wallet: unknown account")
)

// SeatResult records one seat's outcome in a settled hand.
type SeatResult struct {
	PlayerID string `json:"player_id"`
	Seat     int    `json:"seat"`
	// Delta is the chip change for the hand, wagered amounts included.
	Delta int    `json:"delta"`
	Rank  string `json:"rank,omitempty"`
}

// HandRecord is the durable summary of a settled hand.
type HandRecord struct {
	HandID  string       `json:"hand_id"`
	TableID string       `json:"table_id"`
	Kind    string       `json:"kind"`
	Board   []string     `json:"board,omitempty"`
	Results []SeatResult `json:"results"`
	// HouseDelta is the house bank's chip change. Zero for pot games.
	HouseDelta int       `json:"house_delta,omitempty"`
	SettledAt  time.Time `json:"settled_at"`
}

// Ledger is the wallet boundary. Debit failures surface synchronously to
// the requesting player; Credit and RecordHand are retried by the caller
// on transient failure and must be idempotent per reference.
type Ledger interface {
	// Debit withdraws amount from the player's balance, recording the
	// reason and reference. Returns ErrInsufficientFunds when short.
	Debit(ctx context.Context, playerID string, amount int64, reason, ref string) error

	// Credit deposits amount into the player's balance.
	Credit(ctx context.Context, playerID string, amount int64, reason, ref string) error

	// Balance returns the player's current balance.
	Balance(ctx context.Context, playerID string) (int64, error)

	// RecordHand persists a settled hand's history record.
	RecordHand(ctx context.Context, rec HandRecord) error
}
