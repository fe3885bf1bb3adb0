package bulk

import (
	"context"
	"log/slog"
	"sync"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/store"
)

// Scope names.
const (
	ScopeFavorites  = "favorites"
	scopeCollection = "collection:"
)

// CollectionScope returns the scope name of a collection's asset list.
func CollectionScope(collectionID string) string {
	return scopeCollection + collectionID
}

// OwnerSource reports the signed-in owner.
type OwnerSource interface {
	OwnerID() string
}

// Registry hands out one manager per asset list and keeps it for the life of the process,
// so state and cancellation survive between requests.
type Registry struct {
	storage Storage
	store   store.Store
	owner   OwnerSource
	cache   *cache.Cache
	bus     Publisher
	logger  *slog.Logger

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry creates a registry whose managers read their asset lists from st.
func NewRegistry(storage Storage, st store.Store, owner OwnerSource, c *cache.Cache, bus Publisher, logger *slog.Logger) *Registry {
	return &Registry{
		storage:  storage,
		store:    st,
		owner:    owner,
		cache:    c,
		bus:      bus,
		logger:   logger,
		managers: make(map[string]*Manager),
	}
}

// Favorites returns the manager for the signed-in owner's favorites.
func (r *Registry) Favorites() *Manager {
	return r.get(ScopeFavorites, func(ctx context.Context) ([]domain.CatalogItem, error) {
		ownerID := r.owner.OwnerID()
		if ownerID == "" {
			return nil, nil
		}
		return r.store.ListFavoriteItems(ctx, ownerID)
	})
}

// Collection returns the manager for the items of one collection.
func (r *Registry) Collection(collectionID string) *Manager {
	return r.get(CollectionScope(collectionID), func(ctx context.Context) ([]domain.CatalogItem, error) {
		members, err := r.store.ListCollectionMembers(ctx, collectionID)
		if err != nil {
			return nil, err
		}
		items := make([]domain.CatalogItem, 0, len(members))
		for _, m := range members {
			// Members whose item has not been synced yet have nothing to download.
			if m.Item != nil {
				items = append(items, *m.Item)
			}
		}
		return items, nil
	})
}

// CancelAll cancels every running batch.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.Unlock()

	for _, m := range managers {
		m.Cancel()
	}
}

func (r *Registry) get(scope string, assets AssetSource) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[scope]; ok {
		return m
	}
	m := NewManager(scope, r.storage, assets, r.cache, r.bus, r.logger)
	r.managers[scope] = m
	return m
}
