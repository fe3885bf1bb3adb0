// Package di provides dependency injection configuration for the sync daemon.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/config"
	"github.com/listenupapp/listenup-sync/internal/di/providers"
	"github.com/listenupapp/listenup-sync/internal/events"
	"github.com/listenupapp/listenup-sync/internal/logger"
	"github.com/listenupapp/listenup-sync/internal/mutation"
	"github.com/listenupapp/listenup-sync/internal/retry"
	"github.com/listenupapp/listenup-sync/internal/session"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideEventBus)
	do.Provide(injector, providers.ProvideStreamHandler)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideKV)
	do.Provide(injector, providers.ProvideCache)
	do.Provide(injector, providers.ProvideOfflineService)

	// Remote layer
	do.Provide(injector, providers.ProvideSession)
	do.Provide(injector, providers.ProvideRemoteClient)
	do.Provide(injector, providers.ProvideNetworkMonitor)
	do.Provide(injector, providers.ProvideRetryExecutor)

	// Sync engine
	do.Provide(injector, providers.ProvideSyncers)
	do.Provide(injector, providers.ProvideOrchestrator)
	do.Provide(injector, providers.ProvideMutationLayer)
	do.Provide(injector, providers.ProvideBulkRegistry)

	// Workers
	do.Provide(injector, providers.ProvideAutoSync)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

func invoke[T any](injector do.Injector) error {
	_, err := do.Invoke[T](injector)
	return err
}

// Bootstrap initializes all services in dependency order and kicks off the first sync.
func Bootstrap(injector *do.RootScope) error {
	steps := []func(do.Injector) error{
		invoke[*config.Config],
		invoke[*logger.Logger],
		invoke[*providers.EventBusHandle],
		invoke[*events.StreamHandler],
		invoke[*providers.StoreHandle],
		invoke[*providers.KVHandle],
		invoke[*cache.Cache],
		invoke[*providers.OfflineServiceHandle],
		invoke[*session.Session],
		invoke[*providers.RemoteClientHandle],
		invoke[*providers.NetworkMonitorHandle],
		invoke[*retry.Executor],
		invoke[providers.Syncers],
		invoke[*providers.OrchestratorHandle],
		invoke[*mutation.Layer],
		invoke[*providers.BulkRegistryHandle],
		invoke[*providers.AutoSyncHandle],
		invoke[*providers.HTTPServerHandle],
	}
	for _, step := range steps {
		if err := step(injector); err != nil {
			return err
		}
	}

	// Initial sync; skipped by the orchestrator while offline or signed out.
	log := do.MustInvoke[*logger.Logger](injector)
	orch := do.MustInvoke[*providers.OrchestratorHandle](injector)
	go func() {
		if err := orch.TriggerSync(context.Background()); err != nil {
			log.Warn("Initial sync failed", "error", err)
		}
	}()

	return nil
}
