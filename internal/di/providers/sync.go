package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/config"
	"github.com/listenupapp/listenup-sync/internal/logger"
	"github.com/listenupapp/listenup-sync/internal/mutation"
	"github.com/listenupapp/listenup-sync/internal/orchestrator"
	"github.com/listenupapp/listenup-sync/internal/retry"
	"github.com/listenupapp/listenup-sync/internal/session"
	"github.com/listenupapp/listenup-sync/internal/syncer"
)

// ProvideRetryExecutor provides the executor for remote writes.
func ProvideRetryExecutor(i do.Injector) (*retry.Executor, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return retry.New(retry.Options{
		MaxRetries: cfg.Sync.RetryMax,
		BaseDelay:  cfg.Sync.RetryBaseDelay,
	}), nil
}

// Syncers is the set of entity syncers the orchestrator drives.
type Syncers []syncer.Runner

// ProvideSyncers provides the six entity syncers.
func ProvideSyncers(i do.Injector) (Syncers, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*RemoteClientHandle](i)
	c := do.MustInvoke[*cache.Cache](i)

	return syncer.All(syncer.Deps{
		Remote: client.Client,
		Store:  storeHandle.Store,
		Cache:  c,
		Logger: log.Component("syncer"),
	}, syncer.Limits{
		Recommendations: cfg.Sync.RecommendationLimit,
		Trending:        cfg.Sync.TrendingLimit,
	}), nil
}

// OrchestratorHandle wraps the orchestrator with shutdown capability.
type OrchestratorHandle struct {
	*orchestrator.Orchestrator
}

// Shutdown implements do.Shutdownable.
func (h *OrchestratorHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideOrchestrator provides the sync orchestrator and starts its self-activation watcher.
func ProvideOrchestrator(i do.Injector) (*OrchestratorHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	runners := do.MustInvoke[Syncers](i)
	monitor := do.MustInvoke[*NetworkMonitorHandle](i)
	sess := do.MustInvoke[*session.Session](i)
	kvHandle := do.MustInvoke[*KVHandle](i)
	bus := do.MustInvoke[*EventBusHandle](i)

	minVisible := cfg.Sync.MinVisibleDuration
	if minVisible == 0 {
		minVisible = -1
	}

	orch := orchestrator.New(runners, monitor.Monitor, sess, kvHandle.Store, bus.Bus,
		log.Component("orchestrator"), orchestrator.Options{MinVisible: minVisible})

	if err := orch.Start(context.Background()); err != nil {
		orch.Stop()
		return nil, err
	}

	log.Info("Sync orchestrator started", "syncers", len(runners))

	return &OrchestratorHandle{Orchestrator: orch}, nil
}

// ProvideMutationLayer provides the optimistic mutation layer.
func ProvideMutationLayer(i do.Injector) (*mutation.Layer, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*RemoteClientHandle](i)
	c := do.MustInvoke[*cache.Cache](i)
	monitor := do.MustInvoke[*NetworkMonitorHandle](i)
	sess := do.MustInvoke[*session.Session](i)
	executor := do.MustInvoke[*retry.Executor](i)

	return mutation.New(client.Client, storeHandle.Store, c, monitor.Monitor, sess, executor,
		log.Component("mutation")), nil
}
