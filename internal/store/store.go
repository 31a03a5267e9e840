package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yourorg/rentaldesk/internal/api"
)

// Metrics
var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentaldesk_store_refresh_total",
		Help: "Entity store refresh attempts",
	}, []string{"store", "outcome"})
)

// Status is a point-in-time view of a store's health.
type Status struct {
	Loaded    bool
	Err       error
	ErrSeq    uint64
	UpdatedAt time.Time
}

// Store owns one backend-derived collection with its loading/error state.
// Refresh replaces the collection wholesale; overlapping refreshes resolve by
// completion order because results are applied under the lock after the fetch
// returns. A failed fetch records the error and keeps the last good data.
type Store[T any] struct {
	name  string
	fetch func(context.Context) (T, error)

	mu        sync.Mutex
	data      T
	loaded    bool
	err       error
	errSeq    uint64
	updatedAt time.Time
}

func New[T any](name string, fetch func(context.Context) (T, error)) *Store[T] {
	return &Store[T]{name: name, fetch: fetch}
}

func (s *Store[T]) Name() string { return s.name }

// Refresh pulls the latest server snapshot. Authorization failures are
// handled globally by the interceptor and are not recorded here.
func (s *Store[T]) Refresh(ctx context.Context) error {
	data, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			refreshTotal.WithLabelValues(s.name, "unauthorized").Inc()
			return err
		}
		refreshTotal.WithLabelValues(s.name, "error").Inc()
		s.err = err
		s.errSeq++
		return err
	}
	refreshTotal.WithLabelValues(s.name, "ok").Inc()
	s.data = data
	s.loaded = true
	s.err = nil
	s.updatedAt = time.Now()
	return nil
}

// Get returns the current collection and whether a snapshot has ever loaded.
func (s *Store[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, s.loaded
}

func (s *Store[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Loaded: s.loaded, Err: s.err, ErrSeq: s.errSeq, UpdatedAt: s.updatedAt}
}

// ClearError drops the error state without touching the data, used by the
// scheduler right before its automatic retry.
func (s *Store[T]) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

// Mutate applies a local edit to the collection, for optimistic updates
// after a confirmed server-side change (delete, create). Snapshots returned
// by Get alias the current backing array, so callbacks must build a new
// slice rather than writing in place.
func (s *Store[T]) Mutate(fn func(T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = fn(s.data)
}
