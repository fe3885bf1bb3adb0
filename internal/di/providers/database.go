package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/config"
	"github.com/listenupapp/listenup-sync/internal/logger"
	"github.com/listenupapp/listenup-sync/internal/store/kv"
	"github.com/listenupapp/listenup-sync/internal/store/sqlite"
)

// StoreHandle wraps the SQLite store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the local relational store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := sqlite.Open(cfg.Storage.DatabasePath, log.Component("sqlite"))
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", cfg.Storage.DatabasePath)

	return &StoreHandle{Store: db}, nil
}

// KVHandle wraps the Badger key-value store with shutdown capability.
type KVHandle struct {
	*kv.Store
}

// Shutdown implements do.Shutdownable.
func (h *KVHandle) Shutdown() error {
	return h.Close()
}

// ProvideKV provides the key-value store for engine markers.
func ProvideKV(i do.Injector) (*KVHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := kv.Open(cfg.Storage.KVPath, log.Component("kv"))
	if err != nil {
		return nil, err
	}

	log.Info("Key-value store initialized", "path", cfg.Storage.KVPath)

	return &KVHandle{Store: db}, nil
}

// ProvideCache provides the query cache.
func ProvideCache(i do.Injector) (*cache.Cache, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return cache.New(log.Component("cache")), nil
}
