package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger is a Postgres-backed Ledger. Debits and credits run in a single
// statement so concurrent sessions cannot interleave a read-modify-write.
type PGLedger struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPGLedger connects a ledger to the given Postgres DSN.
func NewPGLedger(ctx context.Context, dsn string, logger *log.Logger) (*PGLedger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("wallet: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("wallet: ping: %w", err)
	}
	return &PGLedger{pool: pool, logger: logger.WithPrefix("wallet")}, nil
}

// Close releases the connection pool.
func (l *PGLedger) Close() {
	l.pool.Close()
}

// Migrate creates the wallet schema if it does not exist.
func (l *PGLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS accounts (
    player_id TEXT PRIMARY KEY,
    balance   BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS ledger_entries (
    id        BIGSERIAL PRIMARY KEY,
    player_id TEXT NOT NULL REFERENCES accounts(player_id),
    amount    BIGINT NOT NULL,
    reason    TEXT NOT NULL,
    ref       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS hand_records (
    hand_id    TEXT PRIMARY KEY,
    table_id   TEXT NOT NULL,
    kind       TEXT NOT NULL,
    record     JSONB NOT NULL,
    settled_at TIMESTAMPTZ NOT NULL
);`)
	return err
}

func (l *PGLedger) Debit(ctx context.Context, playerID string, amount int64, reason, ref string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance - $2
		 WHERE player_id = $1 AND balance >= $2
		 RETURNING balance`, playerID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if e := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE player_id = $1)`,
			playerID).Scan(&exists); e != nil {
			return e
		}
		if !exists {
			return ErrUnknownAccount
		}
		return ErrInsufficientFunds
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (player_id, amount, reason, ref)
		 VALUES ($1, $2, $3, $4)`, playerID, -amount, reason, ref); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PGLedger) Credit(ctx context.Context, playerID string, amount int64, reason, ref string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO accounts (player_id, balance) VALUES ($1, $2)
		 ON CONFLICT (player_id) DO UPDATE SET balance = accounts.balance + $2`,
		playerID, amount); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (player_id, amount, reason, ref)
		 VALUES ($1, $2, $3, $4)`, playerID, amount, reason, ref); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PGLedger) Balance(ctx context.Context, playerID string) (int64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE player_id = $1`, playerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownAccount
	}
	return balance, err
}

func (l *PGLedger) RecordHand(ctx context.Context, rec HandRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO hand_records (hand_id, table_id, kind, record, settled_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (hand_id) DO NOTHING`,
		rec.HandID, rec.TableID, rec.Kind, payload, rec.SettledAt)
	if err != nil {
		l.logger.Error("record hand failed", "hand_id", rec.HandID, "error", err)
	}
	return err
}

var _ Ledger = (*PGLedger)(nil)
var _ Ledger = (*MemoryLedger)(nil)
