package api

import (
	"net/http"

	"github.com/listenupapp/listenup-sync/internal/http/response"
)

// NetworkRequest forces the connectivity state until the next probe.
type NetworkRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// NetworkResponse reports connectivity.
type NetworkResponse struct {
	Online bool `json:"online"`
}

func (s *Server) handleGetNetwork(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, NetworkResponse{Online: s.Network.IsOnline()}, s.logger)
}

func (s *Server) handleSetNetwork(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if err := s.decode(w, r, &req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	s.Network.SetOnline(*req.Online)
	response.Success(w, NetworkResponse{Online: s.Network.IsOnline()}, s.logger)
}
