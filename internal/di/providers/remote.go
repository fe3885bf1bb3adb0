package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-sync/internal/config"
	"github.com/listenupapp/listenup-sync/internal/logger"
	"github.com/listenupapp/listenup-sync/internal/network"
	"github.com/listenupapp/listenup-sync/internal/remote"
	"github.com/listenupapp/listenup-sync/internal/session"
)

// ProvideSession provides the signed-in owner. A configured access token signs in
// only when no session was restored.
func ProvideSession(i do.Injector) (*session.Session, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	kvHandle := do.MustInvoke[*KVHandle](i)
	bus := do.MustInvoke[*EventBusHandle](i)

	sess, err := session.New(kvHandle.Store, bus.Bus, log.Component("session"))
	if err != nil {
		return nil, err
	}

	if cfg.Remote.AccessToken != "" && sess.OwnerID() == "" {
		if err := sess.SignIn(cfg.Remote.AccessToken); err != nil {
			log.Warn("Configured access token rejected", "error", err)
		}
	}

	return sess, nil
}

// RemoteClientHandle wraps the remote client with shutdown capability.
type RemoteClientHandle struct {
	*remote.Client
}

// Shutdown implements do.Shutdownable.
func (h *RemoteClientHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideRemoteClient provides the client for the remote data service.
func ProvideRemoteClient(i do.Injector) (*RemoteClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sess := do.MustInvoke[*session.Session](i)

	client, err := remote.New(remote.Config{
		BaseURL:   cfg.Remote.BaseURL,
		APIKey:    cfg.Remote.APIKey,
		Timeout:   cfg.Remote.Timeout,
		RateLimit: cfg.Remote.RateLimit,
		RateBurst: cfg.Remote.RateBurst,
	}, sess, log.Component("remote"))
	if err != nil {
		return nil, err
	}

	return &RemoteClientHandle{Client: client}, nil
}

// NetworkMonitorHandle wraps the connectivity monitor with shutdown capability.
type NetworkMonitorHandle struct {
	*network.Monitor
}

// Shutdown implements do.Shutdownable.
func (h *NetworkMonitorHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideNetworkMonitor provides the connectivity monitor, probing the remote health endpoint.
func ProvideNetworkMonitor(i do.Injector) (*NetworkMonitorHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*RemoteClientHandle](i)
	bus := do.MustInvoke[*EventBusHandle](i)

	monitor := network.New(client.Client, bus.Bus, log.Component("network"), network.Options{
		Interval: cfg.Sync.ProbeInterval,
	})

	// Start in background
	monitor.Start(context.Background())

	log.Info("Network monitor started", "interval", cfg.Sync.ProbeInterval)

	return &NetworkMonitorHandle{Monitor: monitor}, nil
}
