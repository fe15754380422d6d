package hub

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/cardroomlabs/cardroom/internal/engine"
	"github.com/cardroomlabs/cardroom/internal/protocol"
	"github.com/cardroomlabs/cardroom/internal/registry"
	"github.com/cardroomlabs/cardroom/internal/wallet"
)

// fakeClient records every message the hub pushes at it.
type fakeClient struct {
	id   string
	name string

	mu   sync.Mutex
	msgs []*protocol.Message
}

func (f *fakeClient) PlayerID() string   { return f.id }
func (f *fakeClient) PlayerName() string { return f.name }

func (f *fakeClient) Send(msg *protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeClient) count(t protocol.MessageType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

func (f *fakeClient) last(t protocol.MessageType) *protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].Type == t {
			return f.msgs[i]
		}
	}
	return nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

type testHub struct {
	hub    *Hub
	reg    *registry.Registry
	ledger *wallet.MemoryLedger
	mock   *quartz.Mock
}

func newTestHub(t *testing.T, opts Options) *testHub {
	t.Helper()
	mock := quartz.NewMock(t)
	ledger := wallet.NewMemoryLedger()
	writer := wallet.NewWriter(ledger, quartz.NewReal(), testLogger())
	t.Cleanup(writer.Close)

	h := New(opts, mock, ledger, writer, testLogger())
	reg := registry.New(h, mock, testLogger(), time.Minute)
	h.SetRegistry(reg)
	return &testHub{hub: h, reg: reg, ledger: ledger, mock: mock}
}

func defaultOptions() Options {
	return Options{
		GracePeriod:    30 * time.Second,
		InterHandDelay: 2 * time.Second,
	}
}

func pokerConfig(timeout time.Duration) engine.Config {
	return engine.Config{
		Kind:        engine.KindPoker,
		SeatCount:   6,
		SmallBlind:  1,
		BigBlind:    2,
		MinBuyIn:    40,
		MaxBuyIn:    200,
		TurnTimeout: timeout,
	}
}

func (th *testHub) balance(t *testing.T, playerID string) int64 {
	t.Helper()
	bal, err := th.ledger.Balance(context.Background(), playerID)
	require.NoError(t, err)
	return bal
}

func (th *testHub) eventuallyBalance(t *testing.T, playerID string, want int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		bal, err := th.ledger.Balance(context.Background(), playerID)
		return err == nil && bal == want
	}, 2*time.Second, 10*time.Millisecond, "balance of %s never reached %d", playerID, want)
}

func TestHubJoinDebitsAndLeaveCredits(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	_, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)

	alice := &fakeClient{id: "alice", name: "Alice"}
	require.NoError(t, th.hub.Bind(alice))

	seat, err := th.hub.Join("alice", "Alice", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)
	require.Equal(t, 0, seat)
	require.Equal(t, int64(900), th.balance(t, "alice"), "buy-in debited before seating")

	refund, err := th.hub.Leave("alice", "p1")
	require.NoError(t, err)
	require.Equal(t, 100, refund, "no hand was dealt, full stack returned")
	th.eventuallyBalance(t, "alice", 1000)
}

func TestHubJoinInsufficientFunds(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	_, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 50)

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", -1, 100)
	require.Equal(t, engine.KindInsufficientFunds, engine.KindOf(err))

	th.hub.mu.Lock()
	defer th.hub.mu.Unlock()
	require.Empty(t, th.hub.seated, "failed join leaves no membership behind")
}

func TestHubJoinSeatConflictRefunds(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	_, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)
	th.ledger.Seed("bob", 1000)

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", 0, 100)
	require.NoError(t, err)

	_, err = th.hub.Join("bob", "Bob", engine.KindPoker, "p1", 0, 100)
	require.Equal(t, engine.KindTableFull, engine.KindOf(err))
	th.eventuallyBalance(t, "bob", 1000)
}

func TestHubJoinUnknownTable(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	_, err := th.hub.Join("alice", "Alice", engine.KindPoker, "nope", -1, 100)
	require.Equal(t, engine.KindTableNotFound, engine.KindOf(err))
}

func TestHubJoinWrongRealm(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	_, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)

	_, err = th.hub.Join("alice", "Alice", engine.KindBlackjack, "p1", -1, 100)
	require.Equal(t, engine.KindIllegalAction, engine.KindOf(err))
	require.Equal(t, int64(1000), th.balance(t, "alice"), "no money moved")
}

func TestHubBindConflict(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	c1 := &fakeClient{id: "alice", name: "Alice"}
	c2 := &fakeClient{id: "alice", name: "Alice"}

	require.NoError(t, th.hub.Bind(c1))
	err := th.hub.Bind(c2)
	require.Equal(t, engine.KindAlreadyBound, engine.KindOf(err))

	// The original connection going away frees the identity.
	th.hub.OnDisconnect(c1)
	require.NoError(t, th.hub.Bind(c2))
}

func TestHubSingleTablePerKind(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	_, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	_, err = th.reg.GetOrCreate("p2", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)
	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p2", -1, 100)
	require.Equal(t, engine.KindIllegalAction, engine.KindOf(err))
	require.Equal(t, int64(900), th.balance(t, "alice"), "second buy-in never debited")

	// A blackjack seat is a different realm and is allowed.
	bj := engine.Config{
		Kind:        engine.KindBlackjack,
		SeatCount:   5,
		MinBet:      1,
		MaxBet:      50,
		MinBuyIn:    20,
		MaxBuyIn:    500,
		TurnTimeout: 10 * time.Second,
	}
	_, err = th.reg.GetOrCreate("b1", bj)
	require.NoError(t, err)
	_, err = th.hub.Join("alice", "Alice", engine.KindBlackjack, "b1", -1, 100)
	require.NoError(t, err)
}

func TestHubMultiTableAllowedByPolicy(t *testing.T) {
	opts := defaultOptions()
	opts.AllowMultiTable = true
	th := newTestHub(t, opts)
	_, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	_, err = th.reg.GetOrCreate("p2", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)
	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p2", -1, 100)
	require.NoError(t, err)
	require.Equal(t, int64(800), th.balance(t, "alice"))
}

func TestHubTurnExpiryFoldsThroughClock(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	session, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)
	th.ledger.Seed("bob", 1000)

	alice := &fakeClient{id: "alice", name: "Alice"}
	bob := &fakeClient{id: "bob", name: "Bob"}
	require.NoError(t, th.hub.Bind(alice))
	require.NoError(t, th.hub.Bind(bob))

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)
	_, err = th.hub.Join("bob", "Bob", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)
	require.False(t, session.InHand(), "the deal waits out the join window")

	ctx := context.Background()
	th.mock.Advance(2 * time.Second).MustWait(ctx)
	require.True(t, session.InHand())

	th.mock.Advance(15 * time.Second).MustWait(ctx)

	require.False(t, session.InHand(), "the deadline folded the actor")
	require.Equal(t, 1, alice.count(protocol.TypeSettlement))
	require.Equal(t, 1, bob.count(protocol.TypeSettlement))

	// The inter-hand pause elapses and the next hand deals.
	th.mock.Advance(2 * time.Second).MustWait(ctx)
	require.True(t, session.InHand())
}

func TestHubActionBeatsClock(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	session, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)
	th.ledger.Seed("bob", 1000)

	alice := &fakeClient{id: "alice", name: "Alice"}
	bob := &fakeClient{id: "bob", name: "Bob"}
	require.NoError(t, th.hub.Bind(alice))
	require.NoError(t, th.hub.Bind(bob))

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)
	_, err = th.hub.Join("bob", "Bob", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)

	// Alice folds before her deadline; the armed timer must not fire a
	// second default on top of it.
	require.NoError(t, th.hub.Act("alice", "p1", engine.ActionFold, 0))
	require.Equal(t, 1, alice.count(protocol.TypeSettlement))

	ctx := context.Background()
	th.mock.Advance(15 * time.Second).MustWait(ctx)
	require.Equal(t, 1, alice.count(protocol.TypeSettlement), "exactly one settlement for the hand")
	require.True(t, session.InHand(), "the next hand dealt after the pause")
}

func TestHubReconnectWithinGrace(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	session, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)
	th.ledger.Seed("bob", 1000)

	c1 := &fakeClient{id: "alice", name: "Alice"}
	bob := &fakeClient{id: "bob", name: "Bob"}
	require.NoError(t, th.hub.Bind(c1))
	require.NoError(t, th.hub.Bind(bob))

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", 0, 100)
	require.NoError(t, err)
	_, err = th.hub.Join("bob", "Bob", engine.KindPoker, "p1", 1, 100)
	require.NoError(t, err)

	ctx := context.Background()
	th.mock.Advance(2 * time.Second).MustWait(ctx)

	deadlineBefore, armed := th.hub.turns.Deadline("p1")
	require.True(t, armed)
	viewBefore, err := th.hub.View("alice", "p1")
	require.NoError(t, err)

	// Alice drops with 7 seconds used on her 15 second clock.
	th.mock.Advance(7 * time.Second).MustWait(ctx)
	th.hub.OnDisconnect(c1)
	th.mock.Advance(3 * time.Second).MustWait(ctx)

	c2 := &fakeClient{id: "alice", name: "Alice"}
	require.NoError(t, th.hub.Bind(c2))

	viewAfter, err := th.hub.View("alice", "p1")
	require.NoError(t, err)
	require.Equal(t, viewBefore.Seats, viewAfter.Seats, "seat and stack survive the reconnect")
	require.Equal(t, viewBefore.HandID, viewAfter.HandID)

	deadlineAfter, armed := th.hub.turns.Deadline("p1")
	require.True(t, armed)
	require.Equal(t, deadlineBefore, deadlineAfter, "the turn clock did not reset")

	// The original deadline still fires if no action arrives.
	require.True(t, session.InHand())
	th.mock.Advance(5 * time.Second).MustWait(ctx)
	require.False(t, session.InHand())
	require.Equal(t, 1, c2.count(protocol.TypeSettlement))
}

func TestHubGraceExpiryVacatesSeat(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	session, err := th.reg.GetOrCreate("p1", pokerConfig(time.Hour))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)
	th.ledger.Seed("bob", 1000)

	c1 := &fakeClient{id: "alice", name: "Alice"}
	bob := &fakeClient{id: "bob", name: "Bob"}
	require.NoError(t, th.hub.Bind(c1))
	require.NoError(t, th.hub.Bind(bob))

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", 0, 100)
	require.NoError(t, err)
	_, err = th.hub.Join("bob", "Bob", engine.KindPoker, "p1", 1, 100)
	require.NoError(t, err)

	th.hub.OnDisconnect(c1)

	ctx := context.Background()
	th.mock.Advance(30 * time.Second).MustWait(ctx)

	require.Equal(t, 1, session.Occupied(), "the seat was vacated")
	// Alice posted the small blind before folding out; 99 comes back.
	th.eventuallyBalance(t, "alice", 999)

	th.hub.mu.Lock()
	_, seated := th.hub.seated["alice"]
	th.hub.mu.Unlock()
	require.False(t, seated)
}

func TestHubSettlementRecordedToLedger(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	_, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)
	th.ledger.Seed("bob", 1000)

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)
	_, err = th.hub.Join("bob", "Bob", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)

	require.NoError(t, th.hub.Act("alice", "p1", engine.ActionFold, 0))

	require.Eventually(t, func() bool {
		return len(th.ledger.Hands()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	rec := th.ledger.Hands()[0]
	require.Equal(t, "p1", rec.TableID)
	require.Len(t, rec.Results, 2)
}

func TestHubMaskedBroadcast(t *testing.T) {
	th := newTestHub(t, defaultOptions())
	_, err := th.reg.GetOrCreate("p1", pokerConfig(15*time.Second))
	require.NoError(t, err)
	th.ledger.Seed("alice", 1000)
	th.ledger.Seed("bob", 1000)

	alice := &fakeClient{id: "alice", name: "Alice"}
	bob := &fakeClient{id: "bob", name: "Bob"}
	require.NoError(t, th.hub.Bind(alice))
	require.NoError(t, th.hub.Bind(bob))

	_, err = th.hub.Join("alice", "Alice", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)
	_, err = th.hub.Join("bob", "Bob", engine.KindPoker, "p1", -1, 100)
	require.NoError(t, err)

	// The join window closes and the hand deals before the masking check.
	th.mock.Advance(2 * time.Second).MustWait(context.Background())

	for _, c := range []*fakeClient{alice, bob} {
		msg := c.last(protocol.TypeTableState)
		require.NotNil(t, msg)
		var state protocol.TableStateData
		require.NoError(t, unmarshalData(msg, &state))
		for _, seat := range state.Seats {
			if seat.PlayerID == c.id {
				require.NotContains(t, seat.Cards, "??", "own cards are visible")
			} else {
				require.Equal(t, []string{"??", "??"}, seat.Cards, "opponent cards are masked")
			}
		}
	}
}

func unmarshalData(msg *protocol.Message, v any) error {
	return json.Unmarshal(msg.Data, v)
}
