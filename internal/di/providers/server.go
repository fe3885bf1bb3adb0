package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-sync/internal/api"
	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/config"
	"github.com/listenupapp/listenup-sync/internal/events"
	"github.com/listenupapp/listenup-sync/internal/logger"
	"github.com/listenupapp/listenup-sync/internal/mutation"
	"github.com/listenupapp/listenup-sync/internal/ratelimit"
	"github.com/listenupapp/listenup-sync/internal/session"
)

// HTTPServerHandle wraps http.Server with Shutdownable. Server is nil when the control
// API is disabled.
type HTTPServerHandle struct {
	*http.Server
	limiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	if h.Server == nil {
		return nil
	}
	defer h.limiter.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the local control API server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Server.Enabled {
		log.Info("Control API disabled by configuration")
		return &HTTPServerHandle{}, nil
	}

	storeHandle := do.MustInvoke[*StoreHandle](i)
	c := do.MustInvoke[*cache.Cache](i)
	orch := do.MustInvoke[*OrchestratorHandle](i)
	mutations := do.MustInvoke[*mutation.Layer](i)
	sess := do.MustInvoke[*session.Session](i)
	monitor := do.MustInvoke[*NetworkMonitorHandle](i)
	offlineHandle := do.MustInvoke[*OfflineServiceHandle](i)
	registry := do.MustInvoke[*BulkRegistryHandle](i)
	client := do.MustInvoke[*RemoteClientHandle](i)
	stream := do.MustInvoke[*events.StreamHandler](i)

	limiter := ratelimit.New(apiRPS, apiBurst)

	handler := api.NewServer(api.Deps{
		Store:     storeHandle.Store,
		Cache:     c,
		Sync:      orch.Orchestrator,
		Mutations: mutations,
		Session:   sess,
		Network:   monitor.Monitor,
		Offline:   offlineHandle.Service,
		Bulk:      registry.Registry,
		Remote:    client.Client,
		Events:    stream,
		Limiter:   limiter,
	}, log.Component("api"))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("Control API starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Control API error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, limiter: limiter}, nil
}
