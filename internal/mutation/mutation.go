// Package mutation applies user edits optimistically.
//
// Every mutation follows the same protocol: cancel any in-flight refetch of the affected
// cache key, record the tentative value as a cache intent so readers see it at once, run
// the durable write (remote through the retry executor, then the local store), and finally
// commit the intent or roll it back to the exact snapshot.
package mutation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/id"
	"github.com/listenupapp/listenup-sync/internal/metrics"
	"github.com/listenupapp/listenup-sync/internal/remote"
	"github.com/listenupapp/listenup-sync/internal/retry"
	"github.com/listenupapp/listenup-sync/internal/store"
)

// Mutation kinds, used as metric labels.
const (
	KindToggleFavorite   = "toggle_favorite"
	KindAddToCollection  = "add_to_collection"
	KindRemoveCollection = "remove_from_collection"
)

// Remote is the write surface of the remote service.
type Remote interface {
	AddFavorite(ctx context.Context, ownerID, itemID string) (*domain.Favorite, error)
	RemoveFavorite(ctx context.Context, ownerID, itemID string) error
	GetLikeCount(ctx context.Context, itemID string) (int, error)
	SetLikeCount(ctx context.Context, itemID string, count int) error
	AddCollectionItem(ctx context.Context, collectionID, itemID string) (*domain.CollectionMembership, error)
	RemoveCollectionItem(ctx context.Context, collectionID, itemID string) error
}

// Connectivity reports whether the remote service is reachable.
type Connectivity interface {
	IsOnline() bool
}

// OwnerSource reports the signed-in owner.
type OwnerSource interface {
	OwnerID() string
}

// Layer runs optimistic mutations. Mutations on the same cache key are serialized.
type Layer struct {
	remote Remote
	store  store.Store
	cache  *cache.Cache
	net    Connectivity
	owner  OwnerSource
	retry  *retry.Executor
	logger *slog.Logger
	now    func() time.Time

	locks keyLocks
}

// New creates a mutation layer.
func New(r Remote, st store.Store, c *cache.Cache, net Connectivity, owner OwnerSource,
	executor *retry.Executor, logger *slog.Logger,
) *Layer {
	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		executor = retry.New(retry.Options{})
	}
	return &Layer{
		remote: r,
		store:  st,
		cache:  c,
		net:    net,
		owner:  owner,
		retry:  executor,
		logger: logger,
		now:    time.Now,
	}
}

// FavoriteKey is the cache key holding whether ownerID has favorited itemID.
func FavoriteKey(ownerID, itemID string) cache.Key {
	return cache.NewKey(cache.EntityFavorite, ownerID, itemID)
}

// CollectionItemsKey is the cache key holding a collection's memberships.
func CollectionItemsKey(collectionID string) cache.Key {
	return cache.NewKey(cache.EntityCollectionItems, collectionID)
}

// guard checks the preconditions shared by every mutation. No cache state changes when
// it fails.
func (l *Layer) guard(kind string) (string, error) {
	ownerID := l.owner.OwnerID()
	if ownerID == "" {
		metrics.Mutations.WithLabelValues(kind, "rejected").Inc()
		return "", domainerrors.ErrAuthRequired
	}
	if l.net != nil && !l.net.IsOnline() {
		metrics.Mutations.WithLabelValues(kind, "rejected").Inc()
		return "", domainerrors.ErrOffline
	}
	return ownerID, nil
}

// remoteWrite runs one logical remote write. Retries share one idempotency key.
func (l *Layer) remoteWrite(ctx context.Context, resource string, op func(context.Context) error) error {
	ctx = remote.WithIdempotencyKey(ctx, remote.NewIdempotencyKey())
	err := l.retry.RunWith(ctx, op, retry.Options{
		OnRetry: func(err error, attempt, maxRetries int) {
			metrics.RetryAttempts.WithLabelValues(resource).Inc()
			l.logger.Warn("retrying remote write", "resource", resource,
				"attempt", attempt, "max_retries", maxRetries, "error", err)
		},
	})
	if err != nil {
		return domainerrors.RemoteWrite(resource, err)
	}
	return nil
}

func (l *Layer) finish(kind string, in *cache.Intent, confirmed any, err error) error {
	if err != nil {
		in.Rollback()
		metrics.Mutations.WithLabelValues(kind, "rolled_back").Inc()
		l.logger.Warn("mutation rolled back", "kind", kind, "key", in.Key().String(), "error", err)
		return err
	}
	in.Commit(confirmed)
	metrics.Mutations.WithLabelValues(kind, "committed").Inc()
	return nil
}

// ToggleFavorite flips whether the signed-in owner has favorited itemID and returns the
// new value. The cache shows the new value before any network call is made.
func (l *Layer) ToggleFavorite(ctx context.Context, itemID string) (bool, error) {
	ownerID, err := l.guard(KindToggleFavorite)
	if err != nil {
		return false, err
	}

	key := FavoriteKey(ownerID, itemID)
	unlock := l.locks.lock(key.String())
	defer unlock()

	l.cache.CancelInFlight(key)

	current, ok := cache.GetAs[bool](l.cache, key)
	if !ok {
		current, err = l.store.IsFavorite(ctx, ownerID, itemID)
		if err != nil {
			return false, err
		}
		l.cache.Set(key, current)
	}
	next := !current

	in, err := l.cache.Begin(key, next)
	if err != nil {
		return false, err
	}

	err = l.writeFavorite(ctx, ownerID, itemID, next)
	if err := l.finish(KindToggleFavorite, in, next, err); err != nil {
		return current, err
	}

	l.cache.Invalidate(cache.EntityFavorites, ownerID)
	l.cache.Invalidate(cache.EntityItem, itemID)
	return next, nil
}

// writeFavorite performs the durable side of a toggle: the favorite row and the item's
// like counter, remote first, then local.
func (l *Layer) writeFavorite(ctx context.Context, ownerID, itemID string, favorite bool) error {
	err := l.remoteWrite(ctx, "favorites", func(ctx context.Context) error {
		if favorite {
			_, err := l.remote.AddFavorite(ctx, ownerID, itemID)
			return err
		}
		return l.remote.RemoveFavorite(ctx, ownerID, itemID)
	})
	if err != nil {
		return err
	}

	delta := -1
	if favorite {
		delta = 1
	}

	// Read then write: concurrent toggles from other devices can interleave here.
	var count int
	err = l.remoteWrite(ctx, "item_counters", func(ctx context.Context) error {
		current, err := l.remote.GetLikeCount(ctx, itemID)
		if err != nil {
			return err
		}
		count = domain.ClampCount(current, delta)
		return l.remote.SetLikeCount(ctx, itemID, count)
	})
	if err != nil {
		return err
	}

	return l.store.Transaction(ctx, func(tx store.Tx) error {
		if favorite {
			if err := tx.InsertFavorite(ctx, domain.Favorite{
				OwnerID: ownerID, ItemID: itemID, FavoritedAt: l.now(),
			}); err != nil {
				return err
			}
		} else if err := tx.DeleteFavorite(ctx, ownerID, itemID); err != nil {
			return err
		}
		return tx.SetLikeCount(ctx, itemID, count)
	})
}

// members returns the visible membership list for a collection, loading it from the
// store into the committed layer when the cache has none.
func (l *Layer) members(ctx context.Context, key cache.Key, collectionID string) ([]domain.CollectionMembership, error) {
	if current, ok := cache.GetAs[[]domain.CollectionMembership](l.cache, key); ok {
		return current, nil
	}
	current, err := l.store.ListCollectionMembers(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	l.cache.Set(key, current)
	return current, nil
}

// AddToCollection appends itemID to a collection. A placeholder membership with a pending
// id is visible at once and replaced by the remote row on success.
func (l *Layer) AddToCollection(ctx context.Context, collectionID, itemID string) (*domain.CollectionMembership, error) {
	ownerID, err := l.guard(KindAddToCollection)
	if err != nil {
		return nil, err
	}

	key := CollectionItemsKey(collectionID)
	unlock := l.locks.lock(key.String())
	defer unlock()

	l.cache.CancelInFlight(key)

	current, err := l.members(ctx, key, collectionID)
	if err != nil {
		return nil, err
	}
	if slices.ContainsFunc(current, func(m domain.CollectionMembership) bool { return m.ItemID == itemID }) {
		metrics.Mutations.WithLabelValues(KindAddToCollection, "rejected").Inc()
		return nil, domainerrors.Validation("item is already in the collection")
	}

	placeholder := domain.CollectionMembership{
		ID:           id.Pending(),
		CollectionID: collectionID,
		ItemID:       itemID,
		AddedAt:      l.now().UTC(),
	}
	tentative := append(slices.Clone(current), placeholder)

	in, err := l.cache.Begin(key, tentative)
	if err != nil {
		return nil, err
	}

	var created *domain.CollectionMembership
	err = l.remoteWrite(ctx, "collection_items", func(ctx context.Context) error {
		m, err := l.remote.AddCollectionItem(ctx, collectionID, itemID)
		created = m
		return err
	})
	if err == nil {
		created, err = confirmMembership(created, placeholder)
	}
	if err == nil {
		err = l.store.Transaction(ctx, func(tx store.Tx) error {
			return tx.UpsertMemberships(ctx, []domain.CollectionMembership{*created})
		})
	}

	var confirmed []domain.CollectionMembership
	if err == nil {
		confirmed = append(slices.Clone(current), *created)
	}
	if err := l.finish(KindAddToCollection, in, confirmed, err); err != nil {
		return nil, err
	}

	l.cache.Invalidate(cache.EntityCollections, ownerID)
	return created, nil
}

// confirmMembership fills what the remote left out of a created row from the placeholder.
// A row without an id gets a local one; the next collections sync swaps it for the
// remote id.
func confirmMembership(created *domain.CollectionMembership, placeholder domain.CollectionMembership) (*domain.CollectionMembership, error) {
	m := placeholder
	if created != nil {
		m = *created
	}
	if m.ID == "" || id.IsPending(m.ID) {
		local, err := id.Generate("mem")
		if err != nil {
			return nil, err
		}
		m.ID = local
	}
	if m.CollectionID == "" {
		m.CollectionID = placeholder.CollectionID
	}
	if m.ItemID == "" {
		m.ItemID = placeholder.ItemID
	}
	if m.AddedAt.IsZero() {
		m.AddedAt = placeholder.AddedAt
	}
	return &m, nil
}

// RemoveFromCollection removes itemID from a collection. The membership disappears from
// the cache at once.
func (l *Layer) RemoveFromCollection(ctx context.Context, collectionID, itemID string) error {
	ownerID, err := l.guard(KindRemoveCollection)
	if err != nil {
		return err
	}

	key := CollectionItemsKey(collectionID)
	unlock := l.locks.lock(key.String())
	defer unlock()

	l.cache.CancelInFlight(key)

	current, err := l.members(ctx, key, collectionID)
	if err != nil {
		return err
	}
	tentative := slices.DeleteFunc(slices.Clone(current), func(m domain.CollectionMembership) bool {
		return m.ItemID == itemID
	})

	in, err := l.cache.Begin(key, tentative)
	if err != nil {
		return err
	}

	err = l.remoteWrite(ctx, "collection_items", func(ctx context.Context) error {
		return l.remote.RemoveCollectionItem(ctx, collectionID, itemID)
	})
	if err == nil {
		err = l.store.Transaction(ctx, func(tx store.Tx) error {
			return tx.DeleteMembershipByItem(ctx, collectionID, itemID)
		})
	}
	if err := l.finish(KindRemoveCollection, in, tentative, err); err != nil {
		return err
	}

	l.cache.Invalidate(cache.EntityCollections, ownerID)
	return nil
}

// keyLocks hands out one mutex per key and drops it once nobody holds or waits on it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
