// Package store defines the on-device persistence contract for the sync engine.
package store

import (
	"context"
	"time"

	"github.com/listenupapp/listenup-sync/internal/domain"
)

// Tx is a unit of work inside Store.Transaction. Every write that must commit or abort
// together goes through the same Tx.
type Tx interface {
	// Catalog items. Upserts rewrite remote columns only; device bookkeeping survives.
	UpsertCatalogItems(ctx context.Context, items []domain.CatalogItem) error
	GetLikeCount(ctx context.Context, itemID string) (int, error)
	SetLikeCount(ctx context.Context, itemID string, count int) error

	// Favorites, scoped by owner.
	UpsertFavorites(ctx context.Context, favorites []domain.Favorite) error
	DeleteFavoritesExcept(ctx context.Context, ownerID string, keepItemIDs []string) (int64, error)
	InsertFavorite(ctx context.Context, favorite domain.Favorite) error
	DeleteFavorite(ctx context.Context, ownerID, itemID string) error

	// Collections, scoped by owner. Memberships are scoped by collection.
	UpsertCollections(ctx context.Context, collections []domain.Collection) error
	DeleteCollectionsExcept(ctx context.Context, ownerID string, keepIDs []string) (int64, error)
	UpsertMemberships(ctx context.Context, memberships []domain.CollectionMembership) error
	DeleteMembershipsExcept(ctx context.Context, collectionID string, keepIDs []string) (int64, error)
	DeleteMembershipByItem(ctx context.Context, collectionID, itemID string) error

	// Featured media is global.
	UpsertFeaturedMedia(ctx context.Context, media []domain.FeaturedMedia) error
	DeleteFeaturedMediaExcept(ctx context.Context, keepIDs []string) (int64, error)

	// ReplaceSection overwrites the ordered id list stored under key.
	ReplaceSection(ctx context.Context, key string, itemIDs []string) error
}

// Store is the local relational store.
type Store interface {
	Close() error

	// Transaction runs fn in one database transaction. A returned error rolls everything back.
	Transaction(ctx context.Context, fn func(Tx) error) error

	// Catalog
	GetCatalogItem(ctx context.Context, id string) (*domain.CatalogItem, error)
	ListCatalogItems(ctx context.Context) ([]domain.CatalogItem, error)
	ListCatalogItemIDs(ctx context.Context) ([]string, error)
	RecordPlay(ctx context.Context, itemID string, at time.Time) error

	// Favorites
	IsFavorite(ctx context.Context, ownerID, itemID string) (bool, error)
	ListFavorites(ctx context.Context, ownerID string) ([]domain.Favorite, error)
	ListFavoriteItems(ctx context.Context, ownerID string) ([]domain.CatalogItem, error)

	// Collections
	GetCollection(ctx context.Context, id string) (*domain.Collection, error)
	ListCollections(ctx context.Context, ownerID string) ([]domain.Collection, error)
	ListCollectionMembers(ctx context.Context, collectionID string) ([]domain.CollectionMembership, error)

	// Featured media
	ListFeaturedMedia(ctx context.Context) ([]domain.FeaturedMedia, error)

	// Sections
	GetSection(ctx context.Context, key string) (*domain.SectionCache, error)
	ListSectionItems(ctx context.Context, key string) ([]domain.CatalogItem, error)

	// Offline bookkeeping
	MarkDownloaded(ctx context.Context, itemID, audioPath, thumbnailPath string, at time.Time) error
	ClearDownload(ctx context.Context, itemID string) error
	ClearAllDownloads(ctx context.Context) error
	ListDownloadedItems(ctx context.Context) ([]domain.CatalogItem, error)
}

// KV is the durable key-value store used for small markers such as the last sync time.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}
