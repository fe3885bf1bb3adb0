// Package network tracks whether the remote data service is reachable.
package network

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/listenup-sync/internal/events"
	"github.com/listenupapp/listenup-sync/internal/metrics"
)

const (
	defaultInterval = 15 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Checker probes the remote service.
type Checker interface {
	Health(ctx context.Context) error
}

// Publisher receives connectivity transitions.
type Publisher interface {
	Publish(event events.Event)
}

// Options configures a Monitor.
type Options struct {
	// Interval between probes. Zero uses 15s.
	Interval time.Duration
	// Timeout for a single probe. Zero uses 5s.
	Timeout time.Duration
	// InitialOnline is the state reported before the first probe.
	InitialOnline bool
}

// Monitor reports connectivity. Probes run on a background worker; SetOnline overrides
// the state directly.
type Monitor struct {
	checker  Checker
	bus      Publisher
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	online bool

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a monitor. checker and bus may be nil.
func New(checker Checker, bus Publisher, logger *slog.Logger, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics.SetOnline(opts.InitialOnline)
	return &Monitor{
		checker:  checker,
		bus:      bus,
		logger:   logger,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		online:   opts.InitialOnline,
	}
}

// IsOnline reports the last known connectivity.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records connectivity and publishes a transition when it changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	metrics.SetOnline(online)
	m.logger.Info("connectivity changed", "online", online)
	if m.bus != nil {
		m.bus.Publish(events.NewConnectivityEvent(online))
	}
}

// Check probes once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.checker == nil {
		return m.IsOnline()
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.checker.Health(probeCtx)
	if err != nil && ctx.Err() != nil {
		// Shutting down, not a connectivity change.
		return m.IsOnline()
	}
	if err != nil {
		m.logger.Debug("health probe failed", "error", err)
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Start probes immediately, then every interval until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	if m.checker == nil {
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		ticker := time.NewTicker(m.interval)
		defer func() {
			ticker.Stop()
			close(m.done)
		}()

		m.Check(workerCtx)
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				m.Check(workerCtx)
			}
		}
	}()
}

// Stop halts the probe worker and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel == nil {
			return
		}
		m.cancel()
		<-m.done
	})
}
