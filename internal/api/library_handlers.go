package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/http/response"
	"github.com/listenupapp/listenup-sync/internal/mutation"
)

// handleGetSection returns a ranked section's items in stored order.
func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var ownerID string
	switch name {
	case domain.SectionTrending:
	case domain.SectionRecommendations:
		var err error
		if ownerID, err = s.owner(); err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
	default:
		response.HandleError(w, domainerrors.NotFoundf("unknown section %q", name), s.logger)
		return
	}

	key := domain.SectionKey(name, ownerID)
	items, err := cache.FetchAs(r.Context(), s.Cache, cache.NewKey(cache.EntitySection, key),
		func(ctx context.Context) ([]domain.CatalogItem, error) {
			return s.Store.ListSectionItems(ctx, key)
		})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, items, s.logger)
}

func (s *Server) handleListFeatured(w http.ResponseWriter, r *http.Request) {
	media, err := cache.FetchAs(r.Context(), s.Cache, cache.NewKey(cache.EntityFeatured), s.Store.ListFeaturedMedia)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, media, s.logger)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.owner()
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	items, err := cache.FetchAs(r.Context(), s.Cache, cache.NewKey(cache.EntityFavorites, ownerID),
		func(ctx context.Context) ([]domain.CatalogItem, error) {
			return s.Store.ListFavoriteItems(ctx, ownerID)
		})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, items, s.logger)
}

// FavoriteResponse reports whether the owner has favorited an item.
type FavoriteResponse struct {
	ItemID   string `json:"item_id"`
	Favorite bool   `json:"favorite"`
}

// handleGetFavorite reads through the cache, so an in-flight toggle is already visible.
func (s *Server) handleGetFavorite(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.owner()
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	itemID, err := s.itemID(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	favorite, err := cache.FetchAs(r.Context(), s.Cache, mutation.FavoriteKey(ownerID, itemID),
		func(ctx context.Context) (bool, error) {
			return s.Store.IsFavorite(ctx, ownerID, itemID)
		})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, FavoriteResponse{ItemID: itemID, Favorite: favorite}, s.logger)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	itemID, err := s.itemID(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	favorite, err := s.Mutations.ToggleFavorite(r.Context(), itemID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, FavoriteResponse{ItemID: itemID, Favorite: favorite}, s.logger)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.owner()
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	collections, err := cache.FetchAs(r.Context(), s.Cache, cache.NewKey(cache.EntityCollections, ownerID),
		func(ctx context.Context) ([]domain.Collection, error) {
			return s.Store.ListCollections(ctx, ownerID)
		})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, collections, s.logger)
}

func (s *Server) handleListCollectionItems(w http.ResponseWriter, r *http.Request) {
	collectionID, err := s.collectionID(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	members, err := cache.FetchAs(r.Context(), s.Cache, mutation.CollectionItemsKey(collectionID),
		func(ctx context.Context) ([]domain.CollectionMembership, error) {
			return s.Store.ListCollectionMembers(ctx, collectionID)
		})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, members, s.logger)
}

// AddItemRequest names the item to append to a collection.
type AddItemRequest struct {
	ItemID string `json:"item_id" validate:"required,entityid"`
}

func (s *Server) handleAddCollectionItem(w http.ResponseWriter, r *http.Request) {
	collectionID, err := s.collectionID(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	var req AddItemRequest
	if err := s.decode(w, r, &req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	membership, err := s.Mutations.AddToCollection(r.Context(), collectionID, req.ItemID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, membership, s.logger)
}

func (s *Server) handleRemoveCollectionItem(w http.ResponseWriter, r *http.Request) {
	collectionID, err := s.collectionID(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	itemID, err := s.itemID(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if err := s.Mutations.RemoveFromCollection(r.Context(), collectionID, itemID); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}
