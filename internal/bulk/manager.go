// Package bulk downloads or deletes every asset of a list, one item at a time.
package bulk

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/events"
	"github.com/listenupapp/listenup-sync/internal/metrics"
	"github.com/listenupapp/listenup-sync/internal/offline"
)

// Operation names, used in metrics and error messages.
const (
	OpDownload = "download"
	OpDelete   = "delete"
)

// Storage is the offline storage a manager drives.
type Storage interface {
	IsDownloaded(ctx context.Context, itemID string) bool
	Download(ctx context.Context, item domain.CatalogItem) offline.Result
	Delete(ctx context.Context, itemID string) offline.Result
}

// AssetSource lists the items a manager covers.
type AssetSource func(ctx context.Context) ([]domain.CatalogItem, error)

// Publisher receives progress events.
type Publisher interface {
	Publish(event events.Event)
}

// run is one StartDownload or StartDelete call. Cancel flags the current run only, so a
// run that outlives its cancellation can never touch the state of the next one.
type run struct {
	cancelled atomic.Bool
}

// Manager tracks the download state of one asset list.
type Manager struct {
	scope   string
	storage Storage
	assets  AssetSource
	cache   *cache.Cache
	bus     Publisher
	logger  *slog.Logger

	mu      sync.Mutex
	state   domain.BulkDownloadState
	current *run
}

// NewManager creates a manager for the assets of scope. c and bus may be nil.
func NewManager(scope string, storage Storage, assets AssetSource, c *cache.Cache, bus Publisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scope:   scope,
		storage: storage,
		assets:  assets,
		cache:   c,
		bus:     bus,
		logger:  logger.With("scope", scope),
		state:   domain.BulkDownloadState{Status: domain.DownloadStatusNone},
	}
}

// Scope returns the name of the asset list.
func (m *Manager) Scope() string {
	return m.scope
}

// State returns a snapshot of the current state.
func (m *Manager) State() domain.BulkDownloadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status derives the download status of the asset list without side effects. An empty list
// counts as fully downloaded.
func (m *Manager) Status(ctx context.Context) (domain.DownloadStatus, int, error) {
	items, err := m.assets(ctx)
	if err != nil {
		return domain.DownloadStatusNone, 0, err
	}
	downloaded := 0
	for _, item := range items {
		if m.storage.IsDownloaded(ctx, item.ID) {
			downloaded++
		}
	}
	return domain.DeriveDownloadStatus(downloaded, len(items)), downloaded, nil
}

// Refresh recomputes status and downloaded count.
func (m *Manager) Refresh(ctx context.Context) {
	status, downloaded, err := m.Status(ctx)
	if err != nil {
		m.logger.Warn("failed to compute download status", "error", err)
		return
	}
	m.update(nil, func(s *domain.BulkDownloadState) {
		s.Status = status
		s.DownloadedCount = downloaded
	})
}

// StartDownload downloads every item of the list that is not yet on the device. Item
// failures do not stop the batch; they are aggregated into the state's error. Returns
// when the batch finishes or is cancelled; a call made while a batch is running returns at once.
func (m *Manager) StartDownload(ctx context.Context) {
	items, err := m.assets(ctx)
	if err != nil {
		m.setError(err)
		return
	}
	var pending []domain.CatalogItem
	for _, item := range items {
		if !m.storage.IsDownloaded(ctx, item.ID) {
			pending = append(pending, item)
		}
	}

	m.batch(ctx, OpDownload, len(pending), func(ctx context.Context, i int) offline.Result {
		return m.storage.Download(ctx, pending[i])
	})
}

// StartDelete deletes the local files of every item of the list.
func (m *Manager) StartDelete(ctx context.Context) {
	items, err := m.assets(ctx)
	if err != nil {
		m.setError(err)
		return
	}

	m.batch(ctx, OpDelete, len(items), func(ctx context.Context, i int) offline.Result {
		return m.storage.Delete(ctx, items[i].ID)
	})
}

// Cancel stops the running batch before its next item. The state reports not downloading
// immediately, while the item in progress may still finish.
func (m *Manager) Cancel() {
	m.mu.Lock()
	r := m.current
	m.mu.Unlock()
	if r == nil {
		return
	}
	r.cancelled.Store(true)
	m.update(nil, func(s *domain.BulkDownloadState) { s.IsDownloading = false })
	m.logger.Info("bulk operation cancelled")
}

func (m *Manager) batch(ctx context.Context, op string, total int, do func(context.Context, int) offline.Result) {
	r := &run{}
	m.mu.Lock()
	if m.state.IsDownloading {
		m.mu.Unlock()
		m.logger.Debug("bulk operation already running", "operation", op)
		return
	}
	m.current = r
	m.state.IsDownloading = true
	m.state.Error = ""
	m.state.Progress = domain.Progress{Current: 0, Total: total}
	m.mu.Unlock()
	m.publish()

	m.logger.Info("bulk operation started", "operation", op, "total", total)

	failed := 0
	for i := range total {
		if r.cancelled.Load() || ctx.Err() != nil {
			break
		}
		res := do(ctx, i)
		metrics.RecordBulkItem(op, res.Success)
		if !res.Success {
			failed++
			m.logger.Warn("bulk item failed", "operation", op, "error", res.Error)
		}
		m.update(r, func(s *domain.BulkDownloadState) {
			if s.Progress.Current < s.Progress.Total {
				s.Progress.Current++
			}
		})
	}

	cancelled := r.cancelled.Load() || ctx.Err() != nil
	m.update(r, func(s *domain.BulkDownloadState) {
		s.IsDownloading = false
		if failed > 0 && !cancelled {
			s.Error = domainerrors.PartialBatchFailure(op+"s", failed, total).Error()
		}
	})
	m.mu.Lock()
	if m.current == r {
		m.current = nil
	}
	m.mu.Unlock()

	if m.cache != nil {
		m.cache.Invalidate(cache.EntityDownloads)
	}
	m.Refresh(context.WithoutCancel(ctx))

	m.logger.Info("bulk operation finished", "operation", op,
		"total", total, "failed", failed, "cancelled", cancelled)
}

// update applies fn to the state and publishes it. With a non-nil r, fn only runs while r
// is still the current run.
func (m *Manager) update(r *run, fn func(*domain.BulkDownloadState)) {
	m.mu.Lock()
	if r != nil && m.current != r {
		m.mu.Unlock()
		return
	}
	fn(&m.state)
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) setError(err error) {
	m.logger.Warn("failed to list assets", "error", err)
	m.update(nil, func(s *domain.BulkDownloadState) { s.Error = err.Error() })
}

func (m *Manager) publish() {
	if m.bus != nil {
		m.bus.Publish(events.NewDownloadProgressEvent(m.scope, m.State()))
	}
}
