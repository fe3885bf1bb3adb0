package api

import (
	"context"
	"net/http"

	"github.com/listenupapp/listenup-sync/internal/bulk"
	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/http/response"
)

// BulkResponse is the state of one asset list.
type BulkResponse struct {
	Scope string `json:"scope"`
	domain.BulkDownloadState
}

// StorageResponse reports disk usage of downloaded files.
type StorageResponse struct {
	SizeBytes int64 `json:"size_bytes"`
	Items     int   `json:"items"`
}

type bulkHandlerFunc func(w http.ResponseWriter, r *http.Request, m *bulk.Manager)

// bulkHandler resolves the manager for the request and passes it on.
func (s *Server) bulkHandler(resolve func(*http.Request) (*bulk.Manager, error), next bulkHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := resolve(r)
		if err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		next(w, r, m)
	}
}

func (s *Server) favoritesManager(*http.Request) (*bulk.Manager, error) {
	return s.Bulk.Favorites(), nil
}

func (s *Server) collectionManager(r *http.Request) (*bulk.Manager, error) {
	collectionID, err := s.collectionID(r)
	if err != nil {
		return nil, err
	}
	return s.Bulk.Collection(collectionID), nil
}

func bulkResponse(m *bulk.Manager) BulkResponse {
	return BulkResponse{Scope: m.Scope(), BulkDownloadState: m.State()}
}

func (s *Server) handleBulkState(w http.ResponseWriter, r *http.Request, m *bulk.Manager) {
	m.Refresh(r.Context())
	response.Success(w, bulkResponse(m), s.logger)
}

// handleBulkDownload starts a batch in the background. Progress is reported by GET and
// the event stream.
func (s *Server) handleBulkDownload(w http.ResponseWriter, r *http.Request, m *bulk.Manager) {
	if _, err := s.owner(); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	go m.StartDownload(context.WithoutCancel(r.Context()))
	response.Accepted(w, bulkResponse(m), s.logger)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request, m *bulk.Manager) {
	go m.StartDelete(context.WithoutCancel(r.Context()))
	response.Accepted(w, bulkResponse(m), s.logger)
}

func (s *Server) handleBulkCancel(w http.ResponseWriter, _ *http.Request, m *bulk.Manager) {
	m.Cancel()
	response.Success(w, bulkResponse(m), s.logger)
}

func (s *Server) handleCancelAllDownloads(w http.ResponseWriter, _ *http.Request) {
	s.Bulk.CancelAll()
	response.NoContent(w)
}

func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	items, err := cache.FetchAs(r.Context(), s.Cache, cache.NewKey(cache.EntityDownloads), s.Offline.GetAllDownloaded)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, items, s.logger)
}

func (s *Server) handleGetStorage(w http.ResponseWriter, r *http.Request) {
	size, err := s.Offline.GetDownloadedSize()
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	items, err := s.Offline.GetAllDownloaded(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, StorageResponse{SizeBytes: size, Items: len(items)}, s.logger)
}

func (s *Server) handleClearStorage(w http.ResponseWriter, r *http.Request) {
	s.Bulk.CancelAll()
	if err := s.Offline.ClearAll(r.Context()); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}
