package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-sync/internal/config"
	"github.com/listenupapp/listenup-sync/internal/logger"
)

// AutoSyncHandle runs a full sync on a fixed interval.
type AutoSyncHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *AutoSyncHandle) Shutdown() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return nil
}

// ProvideAutoSync provides the periodic sync worker. A zero interval disables it.
func ProvideAutoSync(i do.Injector) (*AutoSyncHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	orch := do.MustInvoke[*OrchestratorHandle](i)

	interval := cfg.Sync.AutoInterval
	if interval <= 0 {
		log.Info("Automatic sync disabled")
		return &AutoSyncHandle{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := orch.TriggerSync(ctx); err != nil {
					log.Warn("Automatic sync failed", "error", err)
				}
			}
		}
	}()

	log.Info("Automatic sync started", "interval", interval)

	return &AutoSyncHandle{cancel: cancel, done: done}, nil
}
