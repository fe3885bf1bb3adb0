// Package session holds the signed-in owner identity.
//
// The access token is issued and verified by the remote service. The device never sees the
// signing key, so the token is decoded without verification and only its subject is used
// to scope owner data locally.
package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/events"
	"github.com/listenupapp/listenup-sync/internal/store"
	"github.com/listenupapp/listenup-sync/internal/store/kv"
)

// Publisher receives owner changes.
type Publisher interface {
	Publish(event events.Event)
}

// Session is safe for concurrent use.
type Session struct {
	kv     store.KV
	bus    Publisher
	logger *slog.Logger
	parser *jwt.Parser
	now    func() time.Time

	mu      sync.RWMutex
	token   string
	ownerID string
}

// New restores any stored token. A stored token that no longer parses is discarded.
func New(kvStore store.KV, bus Publisher, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		kv:     kvStore,
		bus:    bus,
		logger: logger,
		parser: jwt.NewParser(),
		now:    time.Now,
	}

	raw, err := kvStore.Get(kv.KeyAccessToken)
	if domainerrors.Is(err, store.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	token := string(raw)
	ownerID, err := s.subject(token)
	if err != nil {
		logger.Warn("discarding stored access token", "error", err)
		if err := kvStore.Delete(kv.KeyAccessToken); err != nil {
			return nil, err
		}
		return s, nil
	}

	s.token = token
	s.ownerID = ownerID
	logger.Info("session restored", "owner_id", ownerID)
	return s, nil
}

// subject returns the token's sub claim. Expired tokens are rejected.
func (s *Session) subject(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := s.parser.ParseUnverified(token, &claims); err != nil {
		return "", domainerrors.Validation("malformed access token").WithCause(err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", domainerrors.Validation("access token has no subject")
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(s.now()) {
		return "", domainerrors.Validation("access token expired")
	}
	return claims.Subject, nil
}

// OwnerID returns the signed-in owner, or "" when signed out.
func (s *Session) OwnerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerID
}

// AccessToken returns the current token, or "" when signed out.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SignIn stores token and adopts its subject as the owner.
func (s *Session) SignIn(token string) error {
	token = strings.TrimSpace(token)
	ownerID, err := s.subject(token)
	if err != nil {
		return err
	}
	if err := s.kv.Set(kv.KeyAccessToken, []byte(token)); err != nil {
		return err
	}

	s.mu.Lock()
	changed := s.ownerID != ownerID
	s.token = token
	s.ownerID = ownerID
	s.mu.Unlock()

	if changed {
		s.logger.Info("signed in", "owner_id", ownerID)
		s.publish(ownerID)
	}
	return nil
}

// SignOut forgets the token and clears the owner.
func (s *Session) SignOut() error {
	if err := s.kv.Delete(kv.KeyAccessToken); err != nil {
		return err
	}

	s.mu.Lock()
	changed := s.ownerID != ""
	s.token = ""
	s.ownerID = ""
	s.mu.Unlock()

	if changed {
		s.logger.Info("signed out")
		s.publish("")
	}
	return nil
}

func (s *Session) publish(ownerID string) {
	if s.bus != nil {
		s.bus.Publish(events.NewOwnerChangedEvent(ownerID))
	}
}
