package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
)

// maxBodyBytes bounds request bodies; every request is a handful of ids.
const maxBodyBytes = 64 * 1024

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domainerrors.Validation("invalid request body: " + err.Error())
	}
	return s.validator.Validate(v)
}

// owner returns the signed-in owner or ErrAuthRequired.
func (s *Server) owner() (string, error) {
	ownerID := s.Session.OwnerID()
	if ownerID == "" {
		return "", domainerrors.ErrAuthRequired
	}
	return ownerID, nil
}

// pathID returns the named URL parameter once it passes id validation. field names the
// parameter in error details.
func (s *Server) pathID(r *http.Request, param, field string) (string, error) {
	id := chi.URLParam(r, param)
	if err := s.validator.ValidateID(field, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Server) itemID(r *http.Request) (string, error) {
	return s.pathID(r, "itemID", "item_id")
}

func (s *Server) collectionID(r *http.Request) (string, error) {
	return s.pathID(r, "collectionID", "collection_id")
}
