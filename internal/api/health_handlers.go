package api

import (
	"net/http"

	"github.com/listenupapp/listenup-sync/internal/http/response"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Online   bool   `json:"online"`
	SignedIn bool   `json:"signed_in"`
	Breaker  string `json:"breaker,omitempty"`
}

// handleHealthCheck returns daemon health status.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Online:   s.Network.IsOnline(),
		SignedIn: s.Session.OwnerID() != "",
	}
	if s.Remote != nil {
		resp.Breaker = s.Remote.BreakerState()
	}
	response.Success(w, resp, s.logger)
}
