// Package syncer reconciles remote collections into the local store.
//
// A Syncer pulls the full remote snapshot for one scope, then in a single local transaction
// upserts every row and deletes the local rows of that scope the snapshot no longer
// contains. A fetch failure stops before any local write.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/listenup-sync/internal/cache"
	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/metrics"
	"github.com/listenupapp/listenup-sync/internal/store"
)

// Result reports one sync run.
type Result struct {
	SyncedCount int `json:"synced_count"`
}

// State is a syncer's observable state. Err holds the outcome of the last run.
type State struct {
	IsSyncing bool
	Err       error
}

// Listener is called after every state change with the syncer's name.
type Listener func(name string, state State)

// Runner is the syncer surface the orchestrator drives.
type Runner interface {
	Name() string
	// Scoped reports whether the syncer needs an owner.
	Scoped() bool
	Sync(ctx context.Context, ownerID string) (Result, error)
	State() State
	OnStateChange(fn Listener) (unsubscribe func())
}

// Strategy describes how one entity is fetched and reconciled.
type Strategy[T any] struct {
	// Name labels logs, metrics and errors.
	Name string
	// Scoped syncers are skipped without an owner.
	Scoped bool

	// Fetch returns the full remote snapshot for the scope.
	Fetch func(ctx context.Context, ownerID string) ([]T, error)
	// Upsert writes every fetched row.
	Upsert func(ctx context.Context, tx store.Tx, ownerID string, rows []T) error
	// DiffDelete removes scope rows whose key is not in keep. Nil means upsert only.
	DiffDelete func(ctx context.Context, tx store.Tx, ownerID string, keep []string) (int64, error)
	// Key returns the identity DiffDelete compares on.
	Key func(T) string
	// Nested reconciles child rows after the parent set has converged.
	Nested func(ctx context.Context, tx store.Tx, rows []T) error

	// Invalidate drops cache entries that depend on the scope.
	Invalidate func(c *cache.Cache, ownerID string)
}

// Syncer runs a Strategy. Runs on one Syncer are serialized.
type Syncer[T any] struct {
	strat  Strategy[T]
	store  store.Store
	cache  *cache.Cache
	logger *slog.Logger

	runMu sync.Mutex

	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

var _ Runner = (*Syncer[struct{}])(nil)

// New creates a syncer. c may be nil.
func New[T any](strat Strategy[T], st store.Store, c *cache.Cache, logger *slog.Logger) *Syncer[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer[T]{
		strat:     strat,
		store:     st,
		cache:     c,
		logger:    logger.With("syncer", strat.Name),
		listeners: make(map[int]Listener),
	}
}

// Name returns the entity name.
func (s *Syncer[T]) Name() string { return s.strat.Name }

// Scoped reports whether the syncer needs an owner.
func (s *Syncer[T]) Scoped() bool { return s.strat.Scoped }

// State returns a snapshot of the current state.
func (s *Syncer[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers fn and returns a function that removes it.
func (s *Syncer[T]) OnStateChange(fn Listener) func() {
	s.mu.Lock()
	listenerID := s.nextID
	s.nextID++
	s.listeners[listenerID] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, listenerID)
		s.mu.Unlock()
	}
}

func (s *Syncer[T]) setState(state State) {
	s.mu.Lock()
	s.state = state
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(s.strat.Name, state)
	}
}

// Sync reconciles the scope of ownerID. A scoped syncer without an owner returns a zero
// Result and no error.
func (s *Syncer[T]) Sync(ctx context.Context, ownerID string) (Result, error) {
	if s.strat.Scoped && ownerID == "" {
		metrics.SyncRuns.WithLabelValues(s.strat.Name, "skipped").Inc()
		return Result{}, nil
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.setState(State{IsSyncing: true})
	start := time.Now()

	result, err := s.run(ctx, ownerID)

	metrics.RecordSync(s.strat.Name, result.SyncedCount, time.Since(start).Seconds(), err)
	s.setState(State{Err: err})

	if err != nil {
		s.logger.Warn("sync failed", "owner_id", ownerID, "error", err)
		return Result{}, err
	}
	s.logger.Debug("sync complete", "owner_id", ownerID, "rows", result.SyncedCount,
		"duration", time.Since(start))
	return result, nil
}

func (s *Syncer[T]) run(ctx context.Context, ownerID string) (Result, error) {
	rows, err := s.strat.Fetch(ctx, ownerID)
	if err != nil {
		return Result{}, domainerrors.RemoteRead(s.strat.Name, err)
	}

	var removed int64
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		if err := s.strat.Upsert(ctx, tx, ownerID, rows); err != nil {
			return err
		}

		if s.strat.DiffDelete != nil {
			keep := make([]string, 0, len(rows))
			for _, row := range rows {
				keep = append(keep, s.strat.Key(row))
			}
			n, err := s.strat.DiffDelete(ctx, tx, ownerID, keep)
			if err != nil {
				return err
			}
			removed = n
		}

		if s.strat.Nested != nil {
			return s.strat.Nested(ctx, tx, rows)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if removed > 0 {
		s.logger.Info("removed stale rows", "owner_id", ownerID, "count", removed)
	}
	if s.cache != nil && s.strat.Invalidate != nil {
		s.strat.Invalidate(s.cache, ownerID)
	}
	return Result{SyncedCount: len(rows)}, nil
}
