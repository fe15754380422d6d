package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
	retryAttempts  = 8
)

// Writer wraps a Ledger's fire-and-forget writes with exponential backoff.
// Settlement credits and hand records must eventually land even when the
// backing store is briefly unavailable; gameplay does not wait on them.
type Writer struct {
	ledger Ledger
	clock  quartz.Clock
	logger *log.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewWriter builds a retrying writer around the ledger. Pass quartz.NewReal()
// outside tests.
func NewWriter(ledger Ledger, clock quartz.Clock, logger *log.Logger) *Writer {
	return &Writer{
		ledger: ledger,
		clock:  clock,
		logger: logger.WithPrefix("wallet"),
		done:   make(chan struct{}),
	}
}

// CreditAsync credits the player, retrying with backoff on failure.
func (w *Writer) CreditAsync(playerID string, amount int64, reason, ref string) {
	w.submit(ref, func(ctx context.Context) error {
		return w.ledger.Credit(ctx, playerID, amount, reason, ref)
	})
}

// RecordHandAsync persists the hand record, retrying with backoff on failure.
func (w *Writer) RecordHandAsync(rec HandRecord) {
	w.submit(rec.HandID, func(ctx context.Context) error {
		return w.ledger.RecordHand(ctx, rec)
	})
}

func (w *Writer) submit(ref string, op func(context.Context) error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		delay := retryBaseDelay
		for attempt := 1; ; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := op(ctx)
			cancel()
			if err == nil {
				return
			}
			if attempt >= retryAttempts {
				w.logger.Error("dropping ledger write after retries",
					"ref", ref, "attempts", attempt, "error", err)
				return
			}
			w.logger.Warn("ledger write failed, retrying",
				"ref", ref, "attempt", attempt, "delay", delay, "error", err)
			timer := w.clock.NewTimer(delay, "wallet.Writer", "retry")
			select {
			case <-timer.C:
			case <-w.done:
				timer.Stop()
				w.logger.Error("dropping ledger write on shutdown", "ref", ref)
				return
			}
			if delay *= 2; delay > retryMaxDelay {
				delay = retryMaxDelay
			}
		}
	}()
}

// Close drops waiting retries and waits for in-flight writes to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
