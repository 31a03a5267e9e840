package syncer

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"

	"github.com/yourorg/rentaldesk/internal/session"
	"github.com/yourorg/rentaldesk/internal/store"
	"github.com/yourorg/rentaldesk/internal/view"
)

type fakeGate struct {
	mu   sync.Mutex
	open bool
	ch   chan session.State
}

func newFakeGate(open bool) *fakeGate {
	return &fakeGate{open: open, ch: make(chan session.State, 4)}
}

func (g *fakeGate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

func (g *fakeGate) setOpen(open bool) {
	g.mu.Lock()
	g.open = open
	g.mu.Unlock()
}

func (g *fakeGate) Subscribe() <-chan session.State { return g.ch }

func newTestScheduler(g *fakeGate, fetch func(context.Context) (int, error)) (*Scheduler, *store.Store[int]) {
	st := store.New(view.StoreRequests, fetch)
	s := &Scheduler{
		Gate:     g,
		Router:   view.NewRouter(),
		Targets:  map[string]target{view.StoreRequests: st},
		Interval: time.Hour,
		Retry:    10 * time.Millisecond,
		Logger:   discardLogger(),
	}
	return s, st
}

func TestTickDoesNothingWhileGated(t *testing.T) {
	var calls atomic.Int64
	s, _ := newTestScheduler(newFakeGate(false), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	s.Tick(context.Background())
	if calls.Load() != 0 {
		t.Fatalf("no fetch may run before the gate opens, got %d", calls.Load())
	}
}

func TestTickRefreshesActiveTabStores(t *testing.T) {
	var calls atomic.Int64
	s, st := newTestScheduler(newFakeGate(true), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	})
	s.Tick(context.Background())
	if calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", calls.Load())
	}
	if got, loaded := st.Get(); !loaded || got != 42 {
		t.Fatalf("snapshot not applied: %d loaded=%v", got, loaded)
	}
}

func TestExactlyOneAutoRetryPerError(t *testing.T) {
	var calls atomic.Int64
	s, _ := newTestScheduler(newFakeGate(true), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("boom")
	})

	s.Tick(context.Background())
	if calls.Load() != 1 {
		t.Fatalf("expected one initial fetch, got %d", calls.Load())
	}

	// The single retry fires after the delay; the failed retry must not
	// re-arm itself.
	waitFor(t, func() bool { return calls.Load() == 2 })
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 2 {
		t.Fatalf("retry re-armed itself, got %d calls", calls.Load())
	}

	// A fresh scheduled refresh errors again: new generation, new retry.
	s.Tick(context.Background())
	waitFor(t, func() bool { return calls.Load() == 4 })
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 4 {
		t.Fatalf("expected 4 calls after second generation, got %d", calls.Load())
	}
}

func TestNoRetryOffRequestsTab(t *testing.T) {
	var calls atomic.Int64
	s, _ := newTestScheduler(newFakeGate(true), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("boom")
	})
	if err := s.Router.SetActive(view.TabHistory); err != nil {
		t.Fatal(err)
	}
	s.RefreshNow(context.Background(), view.StoreRequests)
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("retry must only arm on the requests tab, got %d calls", calls.Load())
	}
}

func TestRetrySkippedWhenGateCloses(t *testing.T) {
	var calls atomic.Int64
	g := newFakeGate(true)
	s, _ := newTestScheduler(g, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("boom")
	})
	s.Tick(context.Background())
	g.setOpen(false)
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("armed retry must not fire behind a closed gate, got %d calls", calls.Load())
	}
}

func TestRunRefreshesOnGateOpening(t *testing.T) {
	var calls atomic.Int64
	g := newFakeGate(false)
	s, _ := newTestScheduler(g, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	g.setOpen(true)
	g.ch <- session.StateOpen
	waitFor(t, func() bool { return calls.Load() == 1 })

	cancel()
	<-done
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}
