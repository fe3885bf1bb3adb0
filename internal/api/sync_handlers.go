package api

import (
	"context"
	"net/http"

	"github.com/listenupapp/listenup-sync/internal/http/response"
)

func (s *Server) handleGetSyncState(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, s.Sync.State(), s.logger)
}

// handleTriggerSync starts a full sync. With ?wait=true it responds once the sync has
// finished; otherwise it responds 202 and the sync continues in the background.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		if err := s.Sync.TriggerSync(r.Context()); err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		response.Success(w, s.Sync.State(), s.logger)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.Sync.TriggerSync(ctx); err != nil {
			s.logger.Warn("background sync failed", "error", err)
		}
	}()
	response.Accepted(w, s.Sync.State(), s.logger)
}
