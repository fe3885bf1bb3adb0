// Package cache is the in-process query cache shared by syncers, mutations and the control API.
//
// Values live in two layers. The committed layer holds what loads, syncs and confirmed
// mutations wrote. The pending layer holds at most one Intent per key: a tentative value
// plus the committed snapshot it replaced. Get merges the two, pending first, so an
// optimistic write is visible immediately and a rollback restores the snapshot exactly.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/listenupapp/listenup-sync/internal/metrics"
)

// Entity names used in keys.
const (
	EntityCatalog         = "catalog"
	EntityItem            = "item"
	EntityFavorite        = "favorite"
	EntityFavorites       = "favorites"
	EntityCollections     = "collections"
	EntityCollectionItems = "collection-items"
	EntitySection         = "section"
	EntityFeatured        = "featured"
	EntityDownloads       = "downloads"
)

// ErrIntentPending is returned by Begin when the key already has an unresolved intent.
var ErrIntentPending = errors.New("cache: intent already pending for key")

// Key identifies a cached query: an entity name plus its parameters.
type Key struct {
	Entity string
	Params string
}

// NewKey builds a key from an entity and ordered parameters.
func NewKey(entity string, params ...string) Key {
	return Key{Entity: entity, Params: strings.Join(params, "/")}
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Entity
	}
	return k.Entity + "/" + k.Params
}

// matches reports whether k falls under entity and the params prefix.
func (k Key) matches(entity, prefix string) bool {
	if k.Entity != entity {
		return false
	}
	if prefix == "" || k.Params == prefix {
		return true
	}
	return strings.HasPrefix(k.Params, prefix+"/")
}

// Loader produces a fresh value for a key.
type Loader func(ctx context.Context) (any, error)

type flight struct {
	cancel context.CancelFunc
	gen    uint64
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	committed map[Key]any
	pending   map[Key]*Intent
	flights   map[Key]*flight
	gen       map[Key]uint64
	group     singleflight.Group
	logger    *slog.Logger
}

// New creates an empty cache.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		committed: make(map[Key]any),
		pending:   make(map[Key]*Intent),
		flights:   make(map[Key]*flight),
		gen:       make(map[Key]uint64),
		logger:    logger,
	}
}

// Get returns the visible value for key: the pending intent if any, else the committed value.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible(key)
}

func (c *Cache) visible(key Key) (any, bool) {
	if in, ok := c.pending[key]; ok {
		return in.value, true
	}
	v, ok := c.committed[key]
	return v, ok
}

// Set writes a committed value. In-flight loads for key are superseded.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed[key] = value
	c.gen[key]++
}

// Fetch returns the visible value for key, loading it once if absent.
// Concurrent fetches of the same key share one load.
func (c *Cache) Fetch(ctx context.Context, key Key, load Loader) (any, error) {
	if v, ok := c.Get(key); ok {
		metrics.CacheLookups.WithLabelValues(key.Entity, "hit").Inc()
		return v, nil
	}
	metrics.CacheLookups.WithLabelValues(key.Entity, "miss").Inc()
	return c.Refetch(ctx, key, load)
}

// Refetch loads key unconditionally and commits the result unless the load was
// cancelled or superseded while in flight. A pending intent stays visible either way.
func (c *Cache) Refetch(ctx context.Context, key Key, load Loader) (any, error) {
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.runLoad(ctx, key, load)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if in, ok := c.pending[key]; ok {
			return in.value, nil
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) runLoad(ctx context.Context, key Key, load Loader) (any, error) {
	// The load outlives any single waiter; only CancelInFlight stops it.
	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	c.mu.Lock()
	f := &flight{cancel: cancel, gen: c.gen[key]}
	c.flights[key] = f
	c.mu.Unlock()

	v, err := load(loadCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
	if err != nil {
		return nil, err
	}
	if c.gen[key] != f.gen {
		c.logger.Debug("discarding superseded load", "key", key.String())
		return v, nil
	}
	c.committed[key] = v
	return v, nil
}

// CancelInFlight aborts any running load for key and guarantees its result is never committed.
func (c *Cache) CancelInFlight(key Key) {
	c.mu.Lock()
	c.gen[key]++
	if f, ok := c.flights[key]; ok {
		f.cancel()
		delete(c.flights, key)
	}
	c.mu.Unlock()

	c.group.Forget(key.String())
}

// Invalidate drops committed values for entity whose params start with the given prefix.
// No params drops the whole entity. Pending intents are kept; running loads are superseded.
func (c *Cache) Invalidate(entity string, params ...string) int {
	prefix := strings.Join(params, "/")

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key := range c.committed {
		if key.matches(entity, prefix) {
			delete(c.committed, key)
			c.gen[key]++
			dropped++
		}
	}
	for key := range c.flights {
		if key.matches(entity, prefix) {
			c.gen[key]++
		}
	}
	return dropped
}

// InvalidateKey drops a single committed value.
func (c *Cache) InvalidateKey(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.committed, key)
	c.gen[key]++
}

// Pending reports whether key has an unresolved intent.
func (c *Cache) Pending(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Begin records a tentative value for key, snapshotting the committed value it overlays.
// The tentative value is visible to Get as soon as Begin returns.
func (c *Cache) Begin(key Key, tentative any) (*Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[key]; ok {
		return nil, ErrIntentPending
	}

	snapshot, had := c.committed[key]
	in := &Intent{
		cache:       c,
		key:         key,
		snapshot:    snapshot,
		hadSnapshot: had,
		value:       tentative,
	}
	c.pending[key] = in
	return in, nil
}

// Intent is a pending optimistic write. Exactly one of Commit or Rollback takes effect.
type Intent struct {
	cache       *Cache
	key         Key
	snapshot    any
	hadSnapshot bool
	value       any
	done        bool
}

// Key returns the key the intent overlays.
func (in *Intent) Key() Key { return in.key }

// Snapshot returns the committed value captured at Begin.
func (in *Intent) Snapshot() (any, bool) { return in.snapshot, in.hadSnapshot }

// Update replaces the tentative value while the intent is pending.
func (in *Intent) Update(value any) {
	c := in.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if !in.done {
		in.value = value
	}
}

// Commit promotes value to the committed layer and clears the intent.
func (in *Intent) Commit(value any) {
	c := in.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if in.done {
		return
	}
	in.done = true
	c.committed[in.key] = value
	c.gen[in.key]++
	delete(c.pending, in.key)
}

// Rollback restores the snapshot and clears the intent.
func (in *Intent) Rollback() {
	c := in.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if in.done {
		return
	}
	in.done = true
	if in.hadSnapshot {
		c.committed[in.key] = in.snapshot
	} else {
		delete(c.committed, in.key)
	}
	c.gen[in.key]++
	delete(c.pending, in.key)
}

// GetAs is Get with a type assertion.
func GetAs[T any](c *Cache, key Key) (T, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// FetchAs is Fetch with a typed loader.
func FetchAs[T any](ctx context.Context, c *Cache, key Key, load func(context.Context) (T, error)) (T, error) {
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, errors.New("cache: unexpected value type for " + key.String())
	}
	return typed, nil
}
