package wallet

import (
	"context"
	"sync"
)

// MemoryLedger is an in-process Ledger for development and tests. Accounts
// are created on first credit or via Seed.
type MemoryLedger struct {
	mu           sync.Mutex
	balances     map[string]int64
	hands        []HandRecord
	defaultFunds int64
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int64)}
}

// NewMemoryLedgerWithDefault funds unknown accounts with balance on first
// use, so dev setups skip provisioning.
func NewMemoryLedgerWithDefault(balance int64) *MemoryLedger {
	m := NewMemoryLedger()
	m.defaultFunds = balance
	return m
}

// Seed sets a player's balance directly.
func (m *MemoryLedger) Seed(playerID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[playerID] = balance
}

func (m *MemoryLedger) Debit(_ context.Context, playerID string, amount int64, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[playerID]
	if !ok {
		if m.defaultFunds == 0 {
			return ErrUnknownAccount
		}
		bal = m.defaultFunds
		m.balances[playerID] = bal
	}
	if bal < amount {
		return ErrInsufficientFunds
	}
	m.balances[playerID] = bal - amount
	return nil
}

func (m *MemoryLedger) Credit(_ context.Context, playerID string, amount int64, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[playerID] += amount
	return nil
}

func (m *MemoryLedger) Balance(_ context.Context, playerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[playerID]
	if !ok {
		return 0, ErrUnknownAccount
	}
	return bal, nil
}

func (m *MemoryLedger) RecordHand(_ context.Context, rec HandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = append(m.hands, rec)
	return nil
}

// Hands returns a copy of the recorded hand history.
func (m *MemoryLedger) Hands() []HandRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HandRecord, len(m.hands))
	copy(out, m.hands)
	return out
}
