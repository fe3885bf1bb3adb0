package api

import (
	"net/http"

	"github.com/listenupapp/listenup-sync/internal/http/response"
)

// SignInRequest carries the access token issued by the remote service.
type SignInRequest struct {
	AccessToken string `json:"access_token" validate:"required,jwt"`
}

// SessionResponse describes the signed-in owner.
type SessionResponse struct {
	OwnerID  string `json:"owner_id,omitempty"`
	SignedIn bool   `json:"signed_in"`
}

func (s *Server) sessionResponse() SessionResponse {
	ownerID := s.Session.OwnerID()
	return SessionResponse{OwnerID: ownerID, SignedIn: ownerID != ""}
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, s.sessionResponse(), s.logger)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := s.decode(w, r, &req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if err := s.Session.SignIn(req.AccessToken); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, s.sessionResponse(), s.logger)
}

func (s *Server) handleSignOut(w http.ResponseWriter, _ *http.Request) {
	if err := s.Session.SignOut(); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}
