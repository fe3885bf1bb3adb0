package api

import (
	"context"
	"net/http"
	"time"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/http/response"
)

// itemViews are the cached reads that embed catalog items.
var itemViews = []string{
	cache.EntityCatalog,
	cache.EntityFavorites,
	cache.EntitySection,
	cache.EntityCollectionItems,
	cache.EntityDownloads,
}

func (s *Server) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := cache.FetchAs(r.Context(), s.Cache, cache.NewKey(cache.EntityCatalog), s.Store.ListCatalogItems)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, items, s.logger)
}

func (s *Server) handleGetCatalogItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := s.itemID(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	item, err := cache.FetchAs(r.Context(), s.Cache, cache.NewKey(cache.EntityItem, itemID),
		func(ctx context.Context) (*domain.CatalogItem, error) {
			return s.Store.GetCatalogItem(ctx, itemID)
		})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, item, s.logger)
}

// handleRecordPlay stamps a local play. Play tracking never reaches the remote service.
func (s *Server) handleRecordPlay(w http.ResponseWriter, r *http.Request) {
	itemID, err := s.itemID(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if err := s.Store.RecordPlay(r.Context(), itemID, time.Now()); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.Cache.Invalidate(cache.EntityItem, itemID)
	for _, entity := range itemViews {
		s.Cache.Invalidate(entity)
	}

	item, err := s.Store.GetCatalogItem(r.Context(), itemID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, item, s.logger)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.owner()
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	collectionID, err := s.collectionID(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	collection, err := s.Store.GetCollection(r.Context(), collectionID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if collection.OwnerID != ownerID {
		response.NotFound(w, "collection not found", s.logger)
		return
	}
	response.Success(w, collection, s.logger)
}
