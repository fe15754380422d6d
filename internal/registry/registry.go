// Package registry owns the process-wide map from table id to live session.
// It guarantees at most one session per id, retires tables that stay empty
// past a grace period, and drains in-flight hands on shutdown.
package registry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/cardroomlabs/cardroom/internal/engine"
)

const (
	sweepInterval     = 5 * time.Second
	drainPollInterval = 250 * time.Millisecond
)

// Registry is the single owner of live sessions. All methods are safe for
// concurrent use.
type Registry struct {
	notifier engine.Notifier
	clock    quartz.Clock
	logger   *log.Logger
	grace    time.Duration

	mu       sync.Mutex
	sessions map[string]*entry
	seed     int64
	draining bool
}

type entry struct {
	session engine.Session
	// pinned tables come from the startup configuration and are never
	// retired by the janitor; only an explicit Retire removes them.
	pinned bool
	// emptySince is the sweep time at which the table was first seen with
	// zero occupied seats, zero while occupied.
	emptySince time.Time
}

// New builds an empty registry. grace is how long an empty table survives
// before the janitor retires it.
func New(notifier engine.Notifier, clock quartz.Clock, logger *log.Logger, grace time.Duration) *Registry {
	return &Registry{
		notifier: notifier,
		clock:    clock,
		logger:   logger.WithPrefix("registry"),
		grace:    grace,
		sessions: make(map[string]*entry),
		seed:     time.Now().UnixNano(),
	}
}

// GetOrCreate returns the live session for id, creating it when absent.
// Concurrent creations for the same id race to a single winner; losers get
// the winner's session.
func (r *Registry) GetOrCreate(id string, cfg engine.Config) (engine.Session, error) {
	if !cfg.Kind.Valid() {
		return nil, engine.E(engine.KindIllegalAction, "unknown game kind %q", cfg.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return nil, engine.E(engine.KindTableBusy, "registry is draining")
	}
	if ent, ok := r.sessions[id]; ok {
		if ent.session.Kind() != cfg.Kind {
			return nil, engine.E(engine.KindTableBusy, "table %s is a %s table", id, ent.session.Kind())
		}
		return ent.session, nil
	}

	r.seed++
	rng := rand.New(rand.NewSource(r.seed))
	var session engine.Session
	switch cfg.Kind {
	case engine.KindPoker:
		session = engine.NewPokerSession(id, cfg, rng, r.notifier, r.logger)
	case engine.KindBlackjack:
		session = engine.NewBlackjackSession(id, cfg, rng, r.notifier, r.logger)
	}
	r.sessions[id] = &entry{session: session}
	r.logger.Info("table created", "table", id, "kind", cfg.Kind, "seats", cfg.SeatCount)
	return session, nil
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (engine.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.sessions[id]
	if !ok {
		return nil, engine.E(engine.KindTableNotFound, "no table %s", id)
	}
	return ent.session, nil
}

// Pin exempts a table from janitor retirement. Configured tables are pinned
// at startup so they stay joinable however long they sit empty.
func (r *Registry) Pin(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.sessions[id]
	if !ok {
		return engine.E(engine.KindTableNotFound, "no table %s", id)
	}
	ent.pinned = true
	return nil
}

// Retire removes an idle table. Occupied or in-hand tables are refused.
func (r *Registry) Retire(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.sessions[id]
	if !ok {
		return engine.E(engine.KindTableNotFound, "no table %s", id)
	}
	if ent.session.Occupied() > 0 || ent.session.InHand() {
		return engine.E(engine.KindTableBusy, "table %s is in use", id)
	}
	delete(r.sessions, id)
	r.logger.Info("table retired", "table", id)
	return nil
}

// List snapshots the live sessions.
func (r *Registry) List() []engine.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.Session, 0, len(r.sessions))
	for _, ent := range r.sessions {
		out = append(out, ent.session)
	}
	return out
}

// Run drives the retirement janitor until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	waiter := r.clock.TickerFunc(ctx, sweepInterval, func() error {
		r.sweep()
		return nil
	}, "registry", "janitor")
	err := waiter.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// sweep retires tables that have been empty for at least the grace period.
// Frozen tables are kept for manual settlement regardless.
func (r *Registry) sweep() {
	now := r.clock.Now("registry", "sweep")
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ent := range r.sessions {
		if ent.pinned || ent.session.Occupied() > 0 || ent.session.InHand() || ent.session.Frozen() {
			ent.emptySince = time.Time{}
			continue
		}
		if ent.emptySince.IsZero() {
			ent.emptySince = now
			continue
		}
		if now.Sub(ent.emptySince) >= r.grace {
			delete(r.sessions, id)
			r.logger.Info("empty table retired", "table", id)
		}
	}
}

// Drain rejects new tables and waits for in-flight hands to settle.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	for {
		if !r.anyInHand() {
			return nil
		}
		timer := r.clock.NewTimer(drainPollInterval, "registry", "drain")
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Registry) anyInHand() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ent := range r.sessions {
		if ent.session.InHand() {
			return true
		}
	}
	return false
}
