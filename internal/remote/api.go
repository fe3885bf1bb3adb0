package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/listenupapp/listenup-sync/internal/domain"
)

// Service is the remote data service as the engine uses it.
type Service interface {
	ListCatalogItems(ctx context.Context) ([]domain.CatalogItem, error)
	ListTrending(ctx context.Context, limit int) ([]domain.CatalogItem, error)
	GetRecommendations(ctx context.Context, ownerID string, limit int) ([]domain.CatalogItem, error)
	ListFeaturedMedia(ctx context.Context) ([]domain.FeaturedMedia, error)

	ListFavorites(ctx context.Context, ownerID string) ([]domain.Favorite, error)
	AddFavorite(ctx context.Context, ownerID, itemID string) (*domain.Favorite, error)
	RemoveFavorite(ctx context.Context, ownerID, itemID string) error

	GetLikeCount(ctx context.Context, itemID string) (int, error)
	SetLikeCount(ctx context.Context, itemID string, count int) error

	ListCollections(ctx context.Context, ownerID string) ([]domain.Collection, error)
	AddCollectionItem(ctx context.Context, collectionID, itemID string) (*domain.CollectionMembership, error)
	RemoveCollectionItem(ctx context.Context, collectionID, itemID string) error

	Health(ctx context.Context) error
}

var _ Service = (*Client)(nil)

// Resource names, used as rate limiter keys and metric labels.
const (
	ResourceCatalog         = "catalog_items"
	ResourceTrending        = "trending"
	ResourceRecommendations = "get_recommendations"
	ResourceFeatured        = "featured_media"
	ResourceFavorites       = "favorites"
	ResourceCounters        = "item_counters"
	ResourceCollections     = "collections"
	ResourceCollectionItems = "collection_items"
)

type itemRequest struct {
	ItemID string `json:"item_id"`
}

type likeCount struct {
	LikeCount int `json:"like_count"`
}

type recommendationsRequest struct {
	OwnerID string `json:"owner_id"`
	Limit   int    `json:"limit"`
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}

// ListCatalogItems fetches the full catalog.
func (c *Client) ListCatalogItems(ctx context.Context) ([]domain.CatalogItem, error) {
	var items []domain.CatalogItem
	err := c.do(ctx, http.MethodGet, ResourceCatalog, "/v1/items", nil, nil, &items)
	return items, err
}

// ListTrending fetches the global trending ranking, best first.
func (c *Client) ListTrending(ctx context.Context, limit int) ([]domain.CatalogItem, error) {
	var items []domain.CatalogItem
	err := c.do(ctx, http.MethodGet, ResourceTrending, "/v1/items/trending", limitQuery(limit), nil, &items)
	return items, err
}

// GetRecommendations calls the get_recommendations RPC. Items come back in rank order.
func (c *Client) GetRecommendations(ctx context.Context, ownerID string, limit int) ([]domain.CatalogItem, error) {
	var items []domain.CatalogItem
	body := recommendationsRequest{OwnerID: ownerID, Limit: limit}
	err := c.do(ctx, http.MethodPost, ResourceRecommendations, "/v1/rpc/get_recommendations", nil, body, &items)
	return items, err
}

// ListFeaturedMedia fetches every featured entry.
func (c *Client) ListFeaturedMedia(ctx context.Context) ([]domain.FeaturedMedia, error) {
	var media []domain.FeaturedMedia
	err := c.do(ctx, http.MethodGet, ResourceFeatured, "/v1/featured", nil, nil, &media)
	return media, err
}

// ListFavorites fetches the owner's favorites with their items embedded.
func (c *Client) ListFavorites(ctx context.Context, ownerID string) ([]domain.Favorite, error) {
	var favorites []domain.Favorite
	err := c.do(ctx, http.MethodGet, ResourceFavorites, ownerPath(ownerID, "favorites"), nil, nil, &favorites)
	return favorites, err
}

// AddFavorite inserts a favorite and returns the stored row.
func (c *Client) AddFavorite(ctx context.Context, ownerID, itemID string) (*domain.Favorite, error) {
	var favorite domain.Favorite
	err := c.do(ctx, http.MethodPost, ResourceFavorites, ownerPath(ownerID, "favorites"), nil, itemRequest{ItemID: itemID}, &favorite)
	if err != nil {
		return nil, err
	}
	return &favorite, nil
}

// RemoveFavorite deletes a favorite.
func (c *Client) RemoveFavorite(ctx context.Context, ownerID, itemID string) error {
	path := ownerPath(ownerID, "favorites") + "/" + url.PathEscape(itemID)
	return c.do(ctx, http.MethodDelete, ResourceFavorites, path, nil, nil, nil)
}

// GetLikeCount reads an item's like counter.
func (c *Client) GetLikeCount(ctx context.Context, itemID string) (int, error) {
	var out likeCount
	err := c.do(ctx, http.MethodGet, ResourceCounters, itemPath(itemID, "like_count"), nil, nil, &out)
	return out.LikeCount, err
}

// SetLikeCount overwrites an item's like counter.
func (c *Client) SetLikeCount(ctx context.Context, itemID string, count int) error {
	return c.do(ctx, http.MethodPut, ResourceCounters, itemPath(itemID, "like_count"), nil, likeCount{LikeCount: count}, nil)
}

// ListCollections fetches the owner's collections with their memberships embedded.
func (c *Client) ListCollections(ctx context.Context, ownerID string) ([]domain.Collection, error) {
	var collections []domain.Collection
	err := c.do(ctx, http.MethodGet, ResourceCollections, ownerPath(ownerID, "collections"), nil, nil, &collections)
	return collections, err
}

// AddCollectionItem appends an item to a collection and returns the membership row.
func (c *Client) AddCollectionItem(ctx context.Context, collectionID, itemID string) (*domain.CollectionMembership, error) {
	var m domain.CollectionMembership
	err := c.do(ctx, http.MethodPost, ResourceCollectionItems, collectionPath(collectionID), nil, itemRequest{ItemID: itemID}, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RemoveCollectionItem removes an item from a collection.
func (c *Client) RemoveCollectionItem(ctx context.Context, collectionID, itemID string) error {
	path := collectionPath(collectionID) + "/" + url.PathEscape(itemID)
	return c.do(ctx, http.MethodDelete, ResourceCollectionItems, path, nil, nil, nil)
}

func ownerPath(ownerID, resource string) string {
	return "/v1/owners/" + url.PathEscape(ownerID) + "/" + resource
}

func itemPath(itemID, field string) string {
	return "/v1/items/" + url.PathEscape(itemID) + "/" + field
}

func collectionPath(collectionID string) string {
	return "/v1/collections/" + url.PathEscape(collectionID) + "/items"
}
