// Package orchestrator drives every entity syncer and exposes the aggregate sync state.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/listenup-sync/internal/domain"
	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/events"
	"github.com/listenupapp/listenup-sync/internal/metrics"
	"github.com/listenupapp/listenup-sync/internal/store"
	"github.com/listenupapp/listenup-sync/internal/store/kv"
	"github.com/listenupapp/listenup-sync/internal/syncer"
)

// DefaultMinVisible is the shortest period a triggered sync reports itself as syncing.
const DefaultMinVisible = time.Second

// Connectivity reports whether the remote service is reachable.
type Connectivity interface {
	IsOnline() bool
}

// OwnerSource reports the signed-in owner, "" when signed out.
type OwnerSource interface {
	OwnerID() string
}

// Bus is the part of the event bus the orchestrator uses.
type Bus interface {
	Publish(event events.Event)
	Subscribe(types ...events.EventType) (*events.Subscription, error)
	Unsubscribe(subID string)
}

// Options configures an Orchestrator.
type Options struct {
	// MinVisible pads short syncs so the syncing state is perceptible. Zero uses 1s;
	// negative disables padding.
	MinVisible time.Duration
}

// Orchestrator aggregates the entity syncers. Its error is maintained by a watcher on
// syncer state changes rather than recomputed on read.
type Orchestrator struct {
	runners    []syncer.Runner
	net        Connectivity
	owner      OwnerSource
	kv         store.KV
	bus        Bus
	logger     *slog.Logger
	minVisible time.Duration
	now        func() time.Time

	mu         sync.Mutex
	manual     bool
	activating int
	syncing    map[string]bool
	errs       map[string]error
	err        error
	lastSync   *time.Time
	wasSyncing bool

	unwatch []func()
	sub     *events.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an orchestrator and loads the persisted last sync time. bus may be nil.
func New(runners []syncer.Runner, net Connectivity, owner OwnerSource, kvStore store.KV, bus Bus,
	logger *slog.Logger, opts Options,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MinVisible == 0 {
		opts.MinVisible = DefaultMinVisible
	}

	o := &Orchestrator{
		runners:    runners,
		net:        net,
		owner:      owner,
		kv:         kvStore,
		bus:        bus,
		logger:     logger,
		minVisible: opts.MinVisible,
		now:        time.Now,
		syncing:    make(map[string]bool),
		errs:       make(map[string]error),
	}

	last, err := kv.GetTime(kvStore, kv.KeyLastSyncTime)
	switch {
	case err == nil:
		o.lastSync = &last
		metrics.SyncLastSuccess.Set(float64(last.Unix()))
	case domainerrors.Is(err, store.ErrNotFound):
	default:
		logger.Warn("failed to load last sync time", "error", err)
	}

	for _, r := range runners {
		o.unwatch = append(o.unwatch, r.OnStateChange(o.onSyncerState))
	}
	return o
}

// State returns the aggregate sync state.
func (o *Orchestrator) State() domain.SyncState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

func (o *Orchestrator) stateLocked() domain.SyncState {
	state := domain.SyncState{IsSyncing: o.isSyncingLocked()}
	if o.err != nil {
		state.Error = o.err.Error()
	}
	if o.lastSync != nil {
		t := *o.lastSync
		state.LastSyncTime = &t
	}
	return state
}

// Err returns the first syncer error in syncer order, or nil.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// LastSyncTime returns the time of the last successful full sync, or nil.
func (o *Orchestrator) LastSyncTime() *time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastSync == nil {
		return nil
	}
	t := *o.lastSync
	return &t
}

func (o *Orchestrator) isSyncingLocked() bool {
	if o.manual || o.activating > 0 {
		return true
	}
	for _, syncing := range o.syncing {
		if syncing {
			return true
		}
	}
	return false
}

// TriggerSync runs every syncer concurrently and waits for all of them. It does nothing
// when offline, signed out, or already syncing. The returned error is the first failure;
// State carries the aggregate.
func (o *Orchestrator) TriggerSync(ctx context.Context) error {
	if o.net != nil && !o.net.IsOnline() {
		o.logger.Debug("sync skipped: offline")
		return nil
	}
	ownerID := o.owner.OwnerID()
	if ownerID == "" {
		o.logger.Debug("sync skipped: no owner")
		return nil
	}

	o.mu.Lock()
	if o.isSyncingLocked() {
		o.mu.Unlock()
		o.logger.Debug("sync skipped: already syncing")
		return nil
	}
	o.manual = true
	o.mu.Unlock()
	o.afterChange()

	start := o.now()
	o.logger.Info("sync started", "owner_id", ownerID)

	var g errgroup.Group
	for _, r := range o.runners {
		g.Go(func() error {
			_, err := r.Sync(ctx, ownerID)
			return err
		})
	}
	err := g.Wait()

	if pad := o.minVisible - o.now().Sub(start); pad > 0 {
		timer := time.NewTimer(pad)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	o.mu.Lock()
	o.manual = false
	o.mu.Unlock()
	o.afterChange()

	o.logger.Info("sync finished", "owner_id", ownerID, "duration", o.now().Sub(start), "error", err)
	return err
}

// onSyncerState is the watcher registered on every syncer.
func (o *Orchestrator) onSyncerState(name string, state syncer.State) {
	o.mu.Lock()
	o.syncing[name] = state.IsSyncing
	if !state.IsSyncing {
		o.errs[name] = state.Err
	}
	o.err = nil
	for _, r := range o.runners {
		if err := o.errs[r.Name()]; err != nil {
			o.err = err
			break
		}
	}
	o.mu.Unlock()
	o.afterChange()
}

// afterChange handles syncing/idle transitions of the aggregate state.
func (o *Orchestrator) afterChange() {
	o.mu.Lock()
	syncing := o.isSyncingLocked()
	was := o.wasSyncing
	o.wasSyncing = syncing

	var completed bool
	if was && !syncing && o.err == nil && o.owner.OwnerID() != "" {
		now := o.now().UTC()
		o.lastSync = &now
		completed = true
	}
	state := o.stateLocked()
	o.mu.Unlock()

	switch {
	case !was && syncing:
		o.publish(events.NewSyncStartedEvent(state))
	case was && !syncing:
		if completed {
			o.persistLastSync(*state.LastSyncTime)
		}
		o.publish(events.NewSyncCompletedEvent(state))
	}
}

func (o *Orchestrator) persistLastSync(t time.Time) {
	metrics.SyncLastSuccess.Set(float64(t.Unix()))
	if err := kv.SetTime(o.kv, kv.KeyLastSyncTime, t); err != nil {
		o.logger.Error("failed to persist last sync time", "error", err)
	}
}

func (o *Orchestrator) publish(e events.Event) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}

// Start subscribes to owner and connectivity changes so the syncers run on their own
// whenever an owner is available while online.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.bus == nil {
		return nil
	}
	sub, err := o.bus.Subscribe(events.EventOwnerChanged, events.EventConnectivityChanged)
	if err != nil {
		return err
	}
	o.sub = sub

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				o.handle(runCtx, e)
			}
		}
	}()
	return nil
}

func (o *Orchestrator) handle(ctx context.Context, e events.Event) {
	switch data := e.Data.(type) {
	case events.OwnerChangedData:
		if data.OwnerID != "" && (o.net == nil || o.net.IsOnline()) {
			o.activate(ctx, data.OwnerID)
		}
	case events.ConnectivityData:
		if ownerID := o.owner.OwnerID(); data.Online && ownerID != "" {
			o.activate(ctx, ownerID)
		}
	}
}

// activate starts every idle syncer in the background. The aggregate stays syncing until
// every started run has returned.
func (o *Orchestrator) activate(ctx context.Context, ownerID string) {
	var idle []syncer.Runner
	for _, r := range o.runners {
		if !r.State().IsSyncing {
			idle = append(idle, r)
		}
	}
	if len(idle) == 0 {
		return
	}
	o.logger.Debug("syncers self-activating", "owner_id", ownerID, "syncers", len(idle))

	o.mu.Lock()
	o.activating++
	o.mu.Unlock()
	o.afterChange()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		var g errgroup.Group
		for _, r := range idle {
			g.Go(func() error {
				_, err := r.Sync(ctx, ownerID)
				return err
			})
		}
		_ = g.Wait()

		o.mu.Lock()
		o.activating--
		o.mu.Unlock()
		o.afterChange()
	}()
}

// Stop detaches from the bus and the syncers and waits for background runs to return.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	if o.sub != nil {
		o.bus.Unsubscribe(o.sub.ID)
	}
	o.wg.Wait()
	for _, unwatch := range o.unwatch {
		unwatch()
	}
}
