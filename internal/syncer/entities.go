package syncer

import (
	"context"
	"log/slog"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/remote"
	"github.com/listenupapp/listenup-sync/internal/store"
)

// Entity names.
const (
	EntityCatalog         = "catalog_items"
	EntityFavorites       = "favorites"
	EntityCollections     = "collections"
	EntityRecommendations = "recommendations"
	EntityTrending        = "trending"
	EntityFeatured        = "featured_media"
)

// Deps are the collaborators every syncer shares.
type Deps struct {
	Remote remote.Service
	Store  store.Store
	Cache  *cache.Cache
	Logger *slog.Logger
}

// Limits bounds the server-ranked lists.
type Limits struct {
	Recommendations int
	Trending        int
}

// All returns the six entity syncers.
func All(d Deps, limits Limits) []Runner {
	return []Runner{
		NewCatalog(d),
		NewFavorites(d),
		NewCollections(d),
		NewRecommendations(d, limits.Recommendations),
		NewTrending(d, limits.Trending),
		NewFeatured(d),
	}
}

// NewCatalog syncs the shared catalog. Items are shared by every other entity, so the
// catalog is upsert only.
func NewCatalog(d Deps) *Syncer[domain.CatalogItem] {
	return New(Strategy[domain.CatalogItem]{
		Name: EntityCatalog,
		Fetch: func(ctx context.Context, _ string) ([]domain.CatalogItem, error) {
			return d.Remote.ListCatalogItems(ctx)
		},
		Upsert: func(ctx context.Context, tx store.Tx, _ string, items []domain.CatalogItem) error {
			return tx.UpsertCatalogItems(ctx, items)
		},
		Invalidate: func(c *cache.Cache, _ string) {
			c.Invalidate(cache.EntityCatalog)
			c.Invalidate(cache.EntityItem)
		},
	}, d.Store, d.Cache, d.Logger)
}

// NewFavorites syncs the owner's favorites and the items they embed.
func NewFavorites(d Deps) *Syncer[domain.Favorite] {
	return New(Strategy[domain.Favorite]{
		Name:   EntityFavorites,
		Scoped: true,
		Fetch: func(ctx context.Context, ownerID string) ([]domain.Favorite, error) {
			return d.Remote.ListFavorites(ctx, ownerID)
		},
		Upsert: func(ctx context.Context, tx store.Tx, ownerID string, favorites []domain.Favorite) error {
			items := make([]domain.CatalogItem, 0, len(favorites))
			for i := range favorites {
				favorites[i].OwnerID = ownerID
				if favorites[i].Item != nil {
					items = append(items, *favorites[i].Item)
				}
			}
			if err := tx.UpsertCatalogItems(ctx, items); err != nil {
				return err
			}
			return tx.UpsertFavorites(ctx, favorites)
		},
		DiffDelete: func(ctx context.Context, tx store.Tx, ownerID string, keep []string) (int64, error) {
			return tx.DeleteFavoritesExcept(ctx, ownerID, keep)
		},
		Key: func(f domain.Favorite) string { return f.ItemID },
		Invalidate: func(c *cache.Cache, ownerID string) {
			c.Invalidate(cache.EntityFavorites, ownerID)
			c.Invalidate(cache.EntityFavorite, ownerID)
			c.Invalidate(cache.EntityItem)
		},
	}, d.Store, d.Cache, d.Logger)
}

// NewCollections syncs the owner's collections, then each collection's memberships in turn.
func NewCollections(d Deps) *Syncer[domain.Collection] {
	return New(Strategy[domain.Collection]{
		Name:   EntityCollections,
		Scoped: true,
		Fetch: func(ctx context.Context, ownerID string) ([]domain.Collection, error) {
			return d.Remote.ListCollections(ctx, ownerID)
		},
		Upsert: func(ctx context.Context, tx store.Tx, ownerID string, collections []domain.Collection) error {
			for i := range collections {
				collections[i].OwnerID = ownerID
			}
			return tx.UpsertCollections(ctx, collections)
		},
		DiffDelete: func(ctx context.Context, tx store.Tx, ownerID string, keep []string) (int64, error) {
			return tx.DeleteCollectionsExcept(ctx, ownerID, keep)
		},
		Key:    func(c domain.Collection) string { return c.ID },
		Nested: syncMemberships,
		Invalidate: func(c *cache.Cache, ownerID string) {
			c.Invalidate(cache.EntityCollections, ownerID)
			c.Invalidate(cache.EntityCollectionItems)
			c.Invalidate(cache.EntityItem)
		},
	}, d.Store, d.Cache, d.Logger)
}

// syncMemberships reconciles members one collection at a time, so a collection's member
// set only ever judges staleness within that collection.
func syncMemberships(ctx context.Context, tx store.Tx, collections []domain.Collection) error {
	for _, c := range collections {
		items := make([]domain.CatalogItem, 0, len(c.Members))
		keep := make([]string, 0, len(c.Members))
		members := make([]domain.CollectionMembership, 0, len(c.Members))
		for _, m := range c.Members {
			m.CollectionID = c.ID
			if m.Item != nil {
				items = append(items, *m.Item)
			}
			members = append(members, m)
			keep = append(keep, m.ID)
		}

		if err := tx.UpsertCatalogItems(ctx, items); err != nil {
			return err
		}
		if err := tx.UpsertMemberships(ctx, members); err != nil {
			return err
		}
		if _, err := tx.DeleteMembershipsExcept(ctx, c.ID, keep); err != nil {
			return err
		}
	}
	return nil
}

// NewRecommendations syncs the owner's get_recommendations ranking.
func NewRecommendations(d Deps, limit int) *Syncer[domain.CatalogItem] {
	return NewRanked(d, EntityRecommendations, domain.SectionRecommendations, true,
		func(ctx context.Context, ownerID string) ([]domain.CatalogItem, error) {
			return d.Remote.GetRecommendations(ctx, ownerID, limit)
		})
}

// NewTrending syncs the global trending ranking.
func NewTrending(d Deps, limit int) *Syncer[domain.CatalogItem] {
	return NewRanked(d, EntityTrending, domain.SectionTrending, false,
		func(ctx context.Context, _ string) ([]domain.CatalogItem, error) {
			return d.Remote.ListTrending(ctx, limit)
		})
}

// NewRanked builds a syncer for a server-computed ranking. The ranked items are upserted
// as shared catalog rows and never diff-deleted; only the section's ordered id list is
// replaced.
func NewRanked(d Deps, name, section string, scoped bool,
	fetch func(ctx context.Context, ownerID string) ([]domain.CatalogItem, error),
) *Syncer[domain.CatalogItem] {
	return New(Strategy[domain.CatalogItem]{
		Name:   name,
		Scoped: scoped,
		Fetch:  fetch,
		Upsert: func(ctx context.Context, tx store.Tx, ownerID string, items []domain.CatalogItem) error {
			if err := tx.UpsertCatalogItems(ctx, items); err != nil {
				return err
			}
			ids := make([]string, 0, len(items))
			for _, item := range items {
				ids = append(ids, item.ID)
			}
			return tx.ReplaceSection(ctx, domain.SectionKey(section, scopeOwner(scoped, ownerID)), ids)
		},
		Invalidate: func(c *cache.Cache, ownerID string) {
			c.InvalidateKey(cache.NewKey(cache.EntitySection, domain.SectionKey(section, scopeOwner(scoped, ownerID))))
			c.Invalidate(cache.EntityItem)
		},
	}, d.Store, d.Cache, d.Logger)
}

func scopeOwner(scoped bool, ownerID string) string {
	if scoped {
		return ownerID
	}
	return ""
}

// NewFeatured syncs featured media. The whole table is the scope.
func NewFeatured(d Deps) *Syncer[domain.FeaturedMedia] {
	return New(Strategy[domain.FeaturedMedia]{
		Name: EntityFeatured,
		Fetch: func(ctx context.Context, _ string) ([]domain.FeaturedMedia, error) {
			return d.Remote.ListFeaturedMedia(ctx)
		},
		Upsert: func(ctx context.Context, tx store.Tx, _ string, media []domain.FeaturedMedia) error {
			return tx.UpsertFeaturedMedia(ctx, media)
		},
		DiffDelete: func(ctx context.Context, tx store.Tx, _ string, keep []string) (int64, error) {
			return tx.DeleteFeaturedMediaExcept(ctx, keep)
		},
		Key: func(m domain.FeaturedMedia) string { return m.ID },
		Invalidate: func(c *cache.Cache, _ string) {
			c.Invalidate(cache.EntityFeatured)
		},
	}, d.Store, d.Cache, d.Logger)
}
