package registry

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/cardroomlabs/cardroom/internal/engine"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func pokerConfig() engine.Config {
	return engine.Config{
		Kind:        engine.KindPoker,
		SeatCount:   6,
		SmallBlind:  1,
		BigBlind:    2,
		MinBuyIn:    40,
		MaxBuyIn:    200,
		TurnTimeout: 15 * time.Second,
	}
}

func TestRegistryGetOrCreateSingleWinner(t *testing.T) {
	r := New(engine.NopNotifier{}, quartz.NewMock(t), testLogger(), time.Minute)

	var (
		mu       sync.Mutex
		sessions []engine.Session
		wg       sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.GetOrCreate("tbl1", pokerConfig())
			require.NoError(t, err)
			mu.Lock()
			sessions = append(sessions, s)
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, s := range sessions[1:] {
		require.Same(t, sessions[0], s, "all racers share one session")
	}
	require.Len(t, r.List(), 1)
}

func TestRegistryGet(t *testing.T) {
	r := New(engine.NopNotifier{}, quartz.NewMock(t), testLogger(), time.Minute)

	_, err := r.Get("missing")
	require.Equal(t, engine.KindTableNotFound, engine.KindOf(err))

	created, err := r.GetOrCreate("tbl1", pokerConfig())
	require.NoError(t, err)
	got, err := r.Get("tbl1")
	require.NoError(t, err)
	require.Same(t, created, got)
}

func TestRegistryKindMismatch(t *testing.T) {
	r := New(engine.NopNotifier{}, quartz.NewMock(t), testLogger(), time.Minute)
	_, err := r.GetOrCreate("tbl1", pokerConfig())
	require.NoError(t, err)

	cfg := pokerConfig()
	cfg.Kind = engine.KindBlackjack
	_, err = r.GetOrCreate("tbl1", cfg)
	require.Equal(t, engine.KindTableBusy, engine.KindOf(err))
}

func TestRegistryRetireBusy(t *testing.T) {
	r := New(engine.NopNotifier{}, quartz.NewMock(t), testLogger(), time.Minute)
	s, err := r.GetOrCreate("tbl1", pokerConfig())
	require.NoError(t, err)

	_, err = s.Join("alice", "Alice", 100, -1)
	require.NoError(t, err)
	err = r.Retire("tbl1")
	require.Equal(t, engine.KindTableBusy, engine.KindOf(err))

	_, err = s.Leave("alice")
	require.NoError(t, err)
	require.NoError(t, r.Retire("tbl1"))
	_, err = r.Get("tbl1")
	require.Equal(t, engine.KindTableNotFound, engine.KindOf(err))
}

func TestRegistryJanitorRetiresEmptyTables(t *testing.T) {
	mock := quartz.NewMock(t)
	r := New(engine.NopNotifier{}, mock, testLogger(), 30*time.Second)

	trap := mock.Trap().TickerFunc("registry", "janitor")
	defer trap.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	trap.MustWait(ctx).MustRelease(ctx)

	s, err := r.GetOrCreate("empty", pokerConfig())
	require.NoError(t, err)
	occupied, err := r.GetOrCreate("occupied", pokerConfig())
	require.NoError(t, err)
	_, err = occupied.Join("alice", "Alice", 100, -1)
	require.NoError(t, err)

	// One sweep marks the empty table, the next past the grace retires it.
	for i := 0; i < 8; i++ {
		mock.Advance(sweepInterval).MustWait(ctx)
	}

	_, err = r.Get("empty")
	require.Equal(t, engine.KindTableNotFound, engine.KindOf(err))
	got, err := r.Get("occupied")
	require.NoError(t, err)
	require.Same(t, occupied, got)
	require.False(t, s.InHand())

	cancel()
	require.NoError(t, <-done)
}

func TestRegistryJanitorKeepsPinnedTables(t *testing.T) {
	mock := quartz.NewMock(t)
	r := New(engine.NopNotifier{}, mock, testLogger(), 30*time.Second)

	trap := mock.Trap().TickerFunc("registry", "janitor")
	defer trap.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()
	trap.MustWait(ctx).MustRelease(ctx)

	pinned, err := r.GetOrCreate("configured", pokerConfig())
	require.NoError(t, err)
	require.NoError(t, r.Pin("configured"))
	_, err = r.GetOrCreate("dynamic", pokerConfig())
	require.NoError(t, err)

	// Both tables sit empty well past the grace.
	for i := 0; i < 10; i++ {
		mock.Advance(sweepInterval).MustWait(ctx)
	}

	got, err := r.Get("configured")
	require.NoError(t, err, "a pinned table must survive the janitor")
	require.Same(t, pinned, got)
	_, err = r.Get("dynamic")
	require.Equal(t, engine.KindTableNotFound, engine.KindOf(err))

	require.Equal(t, engine.KindTableNotFound, engine.KindOf(r.Pin("dynamic")))
}

func TestRegistryJanitorResetsOnReoccupation(t *testing.T) {
	mock := quartz.NewMock(t)
	r := New(engine.NopNotifier{}, mock, testLogger(), 30*time.Second)

	trap := mock.Trap().TickerFunc("registry", "janitor")
	defer trap.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()
	trap.MustWait(ctx).MustRelease(ctx)

	s, err := r.GetOrCreate("tbl1", pokerConfig())
	require.NoError(t, err)

	// Empty for most of the grace, then someone sits down.
	for i := 0; i < 5; i++ {
		mock.Advance(sweepInterval).MustWait(ctx)
	}
	_, err = s.Join("alice", "Alice", 100, -1)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		mock.Advance(sweepInterval).MustWait(ctx)
	}

	_, err = r.Get("tbl1")
	require.NoError(t, err)
}

func TestRegistryDrain(t *testing.T) {
	r := New(engine.NopNotifier{}, quartz.NewMock(t), testLogger(), time.Minute)
	_, err := r.GetOrCreate("tbl1", pokerConfig())
	require.NoError(t, err)

	// No hands in flight, so the drain returns without waiting.
	require.NoError(t, r.Drain(context.Background()))

	_, err = r.GetOrCreate("tbl2", pokerConfig())
	require.Equal(t, engine.KindTableBusy, engine.KindOf(err))
}
