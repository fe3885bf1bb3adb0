// Package remotetest provides an in-memory remote.Service for tests.
package remotetest

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/id"
	"github.com/listenupapp/listenup-sync/internal/remote"
)

// Method names accepted by Fail, Calls and OnCall.
const (
	MethodListCatalogItems     = "ListCatalogItems"
	MethodListTrending         = "ListTrending"
	MethodGetRecommendations   = "GetRecommendations"
	MethodListFeaturedMedia    = "ListFeaturedMedia"
	MethodListFavorites        = "ListFavorites"
	MethodAddFavorite          = "AddFavorite"
	MethodRemoveFavorite       = "RemoveFavorite"
	MethodGetLikeCount         = "GetLikeCount"
	MethodSetLikeCount         = "SetLikeCount"
	MethodListCollections      = "ListCollections"
	MethodAddCollectionItem    = "AddCollectionItem"
	MethodRemoveCollectionItem = "RemoveCollectionItem"
	MethodHealth               = "Health"
)

type failure struct {
	err       error
	remaining int // <0 fails forever
}

// Fake is a remote.Service backed by maps. It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	items           map[string]domain.CatalogItem
	itemOrder       []string
	trending        []string
	recommendations map[string][]string
	featured        []domain.FeaturedMedia
	favorites       map[string][]domain.Favorite
	collections     map[string]domain.Collection
	collectionOrder []string

	healthy     bool
	emptyWrites bool
	failures    map[string]*failure
	calls       map[string]int
	hooks       map[string]func()
}

var _ remote.Service = (*Fake)(nil)

// New returns an empty, healthy fake.
func New() *Fake {
	return &Fake{
		items:           make(map[string]domain.CatalogItem),
		recommendations: make(map[string][]string),
		favorites:       make(map[string][]domain.Favorite),
		collections:     make(map[string]domain.Collection),
		healthy:         true,
		failures:        make(map[string]*failure),
		calls:           make(map[string]int),
		hooks:           make(map[string]func()),
	}
}

// SeedItems replaces the catalog.
func (f *Fake) SeedItems(items ...domain.CatalogItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = make(map[string]domain.CatalogItem, len(items))
	f.itemOrder = f.itemOrder[:0]
	for _, item := range items {
		f.items[item.ID] = item
		f.itemOrder = append(f.itemOrder, item.ID)
	}
}

// SeedTrending sets the trending ranking.
func (f *Fake) SeedTrending(itemIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trending = slices.Clone(itemIDs)
}

// SeedRecommendations sets the ranking returned for ownerID.
func (f *Fake) SeedRecommendations(ownerID string, itemIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recommendations[ownerID] = slices.Clone(itemIDs)
}

// SeedFeatured replaces featured media.
func (f *Fake) SeedFeatured(media ...domain.FeaturedMedia) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.featured = slices.Clone(media)
}

// SeedFavorites replaces ownerID's favorites.
func (f *Fake) SeedFavorites(ownerID string, itemIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	favs := make([]domain.Favorite, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		favs = append(favs, domain.Favorite{OwnerID: ownerID, ItemID: itemID, FavoritedAt: time.Now().UTC()})
	}
	f.favorites[ownerID] = favs
}

// SeedCollections replaces ownerID's collections. Members are kept as given.
func (f *Fake) SeedCollections(ownerID string, collections ...domain.Collection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for cid, c := range f.collections {
		if c.OwnerID == ownerID {
			delete(f.collections, cid)
			f.collectionOrder = slices.DeleteFunc(f.collectionOrder, func(s string) bool { return s == cid })
		}
	}
	for _, c := range collections {
		c.OwnerID = ownerID
		for i := range c.Members {
			c.Members[i].CollectionID = c.ID
		}
		f.collections[c.ID] = c
		f.collectionOrder = append(f.collectionOrder, c.ID)
	}
}

// SetHealthy controls the Health result.
func (f *Fake) SetHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

// EmptyWrites makes created rows come back as zero values, like a remote that answers
// an insert with {"data":null}. The write itself still lands.
func (f *Fake) EmptyWrites(empty bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emptyWrites = empty
}

// Fail makes method return err for the next times calls. times < 0 fails until Reset.
func (f *Fake) Fail(method string, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = &failure{err: err, remaining: times}
}

// Reset clears injected failures and hooks.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]*failure)
	f.hooks = make(map[string]func())
}

// OnCall runs fn at the start of every call to method, outside the fake's lock.
func (f *Fake) OnCall(method string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[method] = fn
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// LikeCount returns the stored like counter for itemID.
func (f *Fake) LikeCount(itemID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[itemID].LikeCount
}

// FavoriteIDs returns the item ids ownerID has favorited.
func (f *Fake) FavoriteIDs(ownerID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.favorites[ownerID]))
	for _, fav := range f.favorites[ownerID] {
		out = append(out, fav.ItemID)
	}
	return out
}

// MemberItemIDs returns the item ids in collectionID.
func (f *Fake) MemberItemIDs(collectionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.collections[collectionID].Members
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.ItemID)
	}
	return out
}

// enter records the call, runs its hook and reports any injected failure.
func (f *Fake) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	hook := f.hooks[method]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	fail, ok := f.failures[method]
	if !ok {
		return nil
	}
	if fail.remaining == 0 {
		delete(f.failures, method)
		return nil
	}
	if fail.remaining > 0 {
		fail.remaining--
	}
	return fail.err
}

func (f *Fake) itemPtr(itemID string) *domain.CatalogItem {
	item, ok := f.items[itemID]
	if !ok {
		return nil
	}
	return &item
}

func (f *Fake) itemsByID(ids []string) []domain.CatalogItem {
	out := make([]domain.CatalogItem, 0, len(ids))
	for _, itemID := range ids {
		if item, ok := f.items[itemID]; ok {
			out = append(out, item)
		}
	}
	return out
}

func notFound(what string) error {
	return &remote.APIError{Status: http.StatusNotFound, Message: what + " not found"}
}

// ListCatalogItems implements remote.Service.
func (f *Fake) ListCatalogItems(ctx context.Context) ([]domain.CatalogItem, error) {
	if err := f.enter(ctx, MethodListCatalogItems); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.itemsByID(f.itemOrder), nil
}

// ListTrending implements remote.Service.
func (f *Fake) ListTrending(ctx context.Context, limit int) ([]domain.CatalogItem, error) {
	if err := f.enter(ctx, MethodListTrending); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.trending
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return f.itemsByID(ids), nil
}

// GetRecommendations implements remote.Service.
func (f *Fake) GetRecommendations(ctx context.Context, ownerID string, limit int) ([]domain.CatalogItem, error) {
	if err := f.enter(ctx, MethodGetRecommendations); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.recommendations[ownerID]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return f.itemsByID(ids), nil
}

// ListFeaturedMedia implements remote.Service.
func (f *Fake) ListFeaturedMedia(ctx context.Context) ([]domain.FeaturedMedia, error) {
	if err := f.enter(ctx, MethodListFeaturedMedia); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.featured), nil
}

// ListFavorites implements remote.Service. Items are embedded.
func (f *Fake) ListFavorites(ctx context.Context, ownerID string) ([]domain.Favorite, error) {
	if err := f.enter(ctx, MethodListFavorites); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Favorite, 0, len(f.favorites[ownerID]))
	for _, fav := range f.favorites[ownerID] {
		fav.Item = f.itemPtr(fav.ItemID)
		out = append(out, fav)
	}
	return out, nil
}

// AddFavorite implements remote.Service. Adding an existing favorite returns it unchanged.
func (f *Fake) AddFavorite(ctx context.Context, ownerID, itemID string) (*domain.Favorite, error) {
	if err := f.enter(ctx, MethodAddFavorite); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fav := range f.favorites[ownerID] {
		if fav.ItemID == itemID {
			return &fav, nil
		}
	}
	fav := domain.Favorite{OwnerID: ownerID, ItemID: itemID, FavoritedAt: time.Now().UTC()}
	f.favorites[ownerID] = append(f.favorites[ownerID], fav)
	return &fav, nil
}

// RemoveFavorite implements remote.Service. Removing a missing favorite succeeds.
func (f *Fake) RemoveFavorite(ctx context.Context, ownerID, itemID string) error {
	if err := f.enter(ctx, MethodRemoveFavorite); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.favorites[ownerID] = slices.DeleteFunc(f.favorites[ownerID], func(fav domain.Favorite) bool {
		return fav.ItemID == itemID
	})
	return nil
}

// GetLikeCount implements remote.Service.
func (f *Fake) GetLikeCount(ctx context.Context, itemID string) (int, error) {
	if err := f.enter(ctx, MethodGetLikeCount); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return 0, notFound("item")
	}
	return item.LikeCount, nil
}

// SetLikeCount implements remote.Service.
func (f *Fake) SetLikeCount(ctx context.Context, itemID string, count int) error {
	if err := f.enter(ctx, MethodSetLikeCount); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return notFound("item")
	}
	item.LikeCount = count
	f.items[itemID] = item
	return nil
}

// ListCollections implements remote.Service. Members and their items are embedded.
func (f *Fake) ListCollections(ctx context.Context, ownerID string) ([]domain.Collection, error) {
	if err := f.enter(ctx, MethodListCollections); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Collection
	for _, cid := range f.collectionOrder {
		c := f.collections[cid]
		if c.OwnerID != ownerID {
			continue
		}
		members := make([]domain.CollectionMembership, 0, len(c.Members))
		for _, m := range c.Members {
			m.Item = f.itemPtr(m.ItemID)
			members = append(members, m)
		}
		c.Members = members
		out = append(out, c)
	}
	return out, nil
}

// AddCollectionItem implements remote.Service.
func (f *Fake) AddCollectionItem(ctx context.Context, collectionID, itemID string) (*domain.CollectionMembership, error) {
	if err := f.enter(ctx, MethodAddCollectionItem); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[collectionID]
	if !ok {
		return nil, notFound("collection")
	}
	m := domain.CollectionMembership{
		ID:           id.MustGenerate("cm"),
		CollectionID: collectionID,
		ItemID:       itemID,
		AddedAt:      time.Now().UTC(),
	}
	c.Members = append(slices.Clone(c.Members), m)
	f.collections[collectionID] = c
	if f.emptyWrites {
		return &domain.CollectionMembership{}, nil
	}
	return &m, nil
}

// RemoveCollectionItem implements remote.Service.
func (f *Fake) RemoveCollectionItem(ctx context.Context, collectionID, itemID string) error {
	if err := f.enter(ctx, MethodRemoveCollectionItem); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[collectionID]
	if !ok {
		return notFound("collection")
	}
	c.Members = slices.DeleteFunc(slices.Clone(c.Members), func(m domain.CollectionMembership) bool {
		return m.ItemID == itemID
	})
	f.collections[collectionID] = c
	return nil
}

// Health implements remote.Service.
func (f *Fake) Health(ctx context.Context) error {
	if err := f.enter(ctx, MethodHealth); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return &remote.APIError{Status: http.StatusServiceUnavailable, Message: "unavailable"}
	}
	return nil
}
