package api

import (
	"context"

	"github.com/listenupapp/listenup-sync/internal/domain"
)

// SyncService is the sync orchestrator.
type SyncService interface {
	TriggerSync(ctx context.Context) error
	State() domain.SyncState
}

// MutationService applies optimistic edits.
type MutationService interface {
	ToggleFavorite(ctx context.Context, itemID string) (bool, error)
	AddToCollection(ctx context.Context, collectionID, itemID string) (*domain.CollectionMembership, error)
	RemoveFromCollection(ctx context.Context, collectionID, itemID string) error
}

// SessionService holds the signed-in owner.
type SessionService interface {
	OwnerID() string
	SignIn(token string) error
	SignOut() error
}

// NetworkService reports and overrides connectivity.
type NetworkService interface {
	IsOnline() bool
	SetOnline(online bool)
}

// OfflineService manages downloaded files.
type OfflineService interface {
	GetAllDownloaded(ctx context.Context) ([]domain.CatalogItem, error)
	GetDownloadedSize() (int64, error)
	ClearAll(ctx context.Context) error
}

// RemoteStatus exposes the remote client's circuit breaker.
type RemoteStatus interface {
	BreakerState() string
}
