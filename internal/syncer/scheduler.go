package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yourorg/rentaldesk/internal/session"
	"github.com/yourorg/rentaldesk/internal/store"
	"github.com/yourorg/rentaldesk/internal/view"
)

// Metrics
var autoRetryTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rentaldesk_sync_auto_retries_total",
	Help: "Automatic single-shot retries fired after a requests refresh error",
})

// gate abstracts the session gate so tests can substitute a fixed one.
type gate interface {
	Open() bool
	Subscribe() <-chan session.State
}

// target mirrors store.Store without its type parameter.
type target interface {
	Refresh(ctx context.Context) error
	Status() store.Status
	ClearError()
}

// Scheduler drives periodic refreshes for the stores the active tab keeps
// warm. It never issues a fetch before the gate is Open, and fires at most
// one automatic retry per error occurrence on the Requests store.
type Scheduler struct {
	Gate     gate
	Router   *view.Router
	Targets  map[string]target
	Interval time.Duration
	Retry    time.Duration
	Logger   *slog.Logger

	mu             sync.Mutex
	lastRetriedSeq uint64
	retryTimer     *time.Timer
}

// New wires a scheduler with the default five-minute poll and 2.5 s retry.
func New(g *session.Gate, router *view.Router, targets map[string]target) *Scheduler {
	return &Scheduler{
		Gate:     g,
		Router:   router,
		Targets:  targets,
		Interval: 5 * time.Minute,
		Retry:    2500 * time.Millisecond,
		Logger:   slog.Default(),
	}
}

// NewTargets adapts concrete stores into the scheduler's target map.
func NewTargets(stores ...interface {
	Name() string
	Refresh(ctx context.Context) error
	Status() store.Status
	ClearError()
}) map[string]target {
	out := make(map[string]target, len(stores))
	for _, s := range stores {
		out[s.Name()] = s
	}
	return out
}

// Run blocks until ctx is cancelled. On every gate opening it performs an
// initial load of all stores; on every tick it refreshes the active tab's
// warm set.
func (s *Scheduler) Run(ctx context.Context) {
	states := s.Gate.Subscribe()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	defer s.stopRetryTimer()

	if s.Gate.Open() {
		s.refreshAll(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-states:
			if st == session.StateOpen {
				s.refreshAll(ctx)
			}
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick refreshes the stores subscribed by the active tab. Exposed for the
// dashboard server's manual refresh action.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.Gate.Open() {
		return
	}
	for _, name := range view.WarmStores(s.Router.Active()) {
		s.RefreshNow(ctx, name)
	}
}

// RefreshNow refreshes one store and, for the Requests store on the Requests
// tab, arms the bounded self-heal retry when the refresh fails.
func (s *Scheduler) RefreshNow(ctx context.Context, name string) {
	t, ok := s.Targets[name]
	if !ok {
		return
	}
	if err := t.Refresh(ctx); err != nil {
		s.Logger.Warn("refresh failed", "store", name, "err", err)
		if name == view.StoreRequests && s.Router.Active() == view.TabRequests {
			s.armRetry(ctx, t)
		}
	}
}

func (s *Scheduler) refreshAll(ctx context.Context) {
	for name := range s.Targets {
		s.RefreshNow(ctx, name)
	}
}

// armRetry schedules exactly one retry per error occurrence: it records the
// store's error generation and refuses to re-arm for the same generation, so
// a failing retry stays quiet until a fresh manual or scheduled refresh.
func (s *Scheduler) armRetry(ctx context.Context, t target) {
	st := t.Status()
	if st.Err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ErrSeq <= s.lastRetriedSeq {
		return
	}
	s.lastRetriedSeq = st.ErrSeq
	s.retryTimer = time.AfterFunc(s.Retry, func() {
		if ctx.Err() != nil || !s.Gate.Open() || s.Router.Active() != view.TabRequests {
			return
		}
		autoRetryTotal.Inc()
		t.ClearError()
		if err := t.Refresh(ctx); err != nil {
			s.Logger.Warn("auto retry failed", "store", view.StoreRequests, "err", err)
		}
	})
}

func (s *Scheduler) stopRetryTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
}
