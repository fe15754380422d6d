package hub

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// TurnClock owns the single armed deadline per table. Expiry hands the
// sequence number back to the fire callback; the session decides whether it
// is still current.
type TurnClock struct {
	clock quartz.Clock
	fire  func(tableID string, seq uint64)

	mu    sync.Mutex
	armed map[string]*armedTurn
}

type armedTurn struct {
	timer    *quartz.Timer
	seq      uint64
	deadline time.Time
}

// NewTurnClock builds a clock that invokes fire when a deadline lapses.
func NewTurnClock(clock quartz.Clock, fire func(tableID string, seq uint64)) *TurnClock {
	return &TurnClock{
		clock: clock,
		fire:  fire,
		armed: make(map[string]*armedTurn),
	}
}

// Arm replaces the table's deadline. A previously armed turn is cancelled;
// there is never more than one live deadline per table. Sequence numbers are
// monotonic per table, so an arm older than the live one is a reordered
// emission and is dropped rather than clobbering the current deadline.
func (c *TurnClock) Arm(tableID string, seq uint64, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.armed[tableID]; ok {
		if seq < prev.seq {
			return
		}
		prev.timer.Stop()
	}
	turn := &armedTurn{seq: seq, deadline: c.clock.Now("turnclock").Add(d)}
	turn.timer = c.clock.AfterFunc(d, func() {
		c.expire(tableID, seq)
	}, "turnclock", tableID)
	c.armed[tableID] = turn
}

// Cancel drops the table's armed deadline, if any.
func (c *TurnClock) Cancel(tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if turn, ok := c.armed[tableID]; ok {
		turn.timer.Stop()
		delete(c.armed, tableID)
	}
}

// Deadline reports the armed deadline for the table.
func (c *TurnClock) Deadline(tableID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	turn, ok := c.armed[tableID]
	if !ok {
		return time.Time{}, false
	}
	return turn.deadline, true
}

func (c *TurnClock) expire(tableID string, seq uint64) {
	c.mu.Lock()
	turn, ok := c.armed[tableID]
	if !ok || turn.seq != seq {
		// The table moved on between the timer firing and this callback.
		c.mu.Unlock()
		return
	}
	delete(c.armed, tableID)
	c.mu.Unlock()
	c.fire(tableID, seq)
}
