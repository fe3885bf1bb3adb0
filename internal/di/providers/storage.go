package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-sync/internal/bulk"
	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/config"
	"github.com/listenupapp/listenup-sync/internal/logger"
	"github.com/listenupapp/listenup-sync/internal/offline"
	"github.com/listenupapp/listenup-sync/internal/ratelimit"
	"github.com/listenupapp/listenup-sync/internal/session"
)

// OfflineServiceHandle wraps the offline asset service and its host limiter.
type OfflineServiceHandle struct {
	*offline.Service
	limiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *OfflineServiceHandle) Shutdown() error {
	h.limiter.Stop()
	return nil
}

// ProvideOfflineService provides on-device asset storage.
func ProvideOfflineService(i do.Injector) (*OfflineServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	c := do.MustInvoke[*cache.Cache](i)

	limiter := ratelimit.New(downloadRPS, downloadBurst)
	svc, err := offline.NewService(storeHandle.Store, cfg.Storage.DownloadsPath, c, log.Component("offline"),
		offline.Options{Limiter: limiter})
	if err != nil {
		limiter.Stop()
		return nil, err
	}

	log.Info("Offline storage initialized", "path", cfg.Storage.DownloadsPath)

	return &OfflineServiceHandle{Service: svc, limiter: limiter}, nil
}

// BulkRegistryHandle wraps the bulk download registry with shutdown capability.
type BulkRegistryHandle struct {
	*bulk.Registry
}

// Shutdown implements do.Shutdownable.
func (h *BulkRegistryHandle) Shutdown() error {
	h.CancelAll()
	return nil
}

// ProvideBulkRegistry provides the per-list bulk download managers.
func ProvideBulkRegistry(i do.Injector) (*BulkRegistryHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	offlineHandle := do.MustInvoke[*OfflineServiceHandle](i)
	sess := do.MustInvoke[*session.Session](i)
	c := do.MustInvoke[*cache.Cache](i)
	bus := do.MustInvoke[*EventBusHandle](i)

	registry := bulk.NewRegistry(offlineHandle.Service, storeHandle.Store, sess, c, bus.Bus, log.Component("bulk"))
	return &BulkRegistryHandle{Registry: registry}, nil
}
