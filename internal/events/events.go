// Package events is the in-process event bus the engine components coordinate through.
// Owner and connectivity changes drive sync self-activation; sync and download
// events are also streamed to control API clients.
package events

import (
	"time"

	"github.com/listenupapp/listenup-sync/internal/domain"
)

// EventType names an event.
type EventType string

const (
	// EventOwnerChanged fires when the signed-in owner changes, including sign-out.
	EventOwnerChanged EventType = "owner.changed"
	// EventConnectivityChanged fires on online/offline transitions.
	EventConnectivityChanged EventType = "connectivity.changed"

	// EventSyncStarted fires when the orchestrator begins a sync.
	EventSyncStarted EventType = "sync.started"
	// EventSyncCompleted fires when the aggregate sync state returns to idle.
	EventSyncCompleted EventType = "sync.completed"

	// EventDownloadProgress carries bulk download/delete state.
	EventDownloadProgress EventType = "download.progress"

	// EventHeartbeat keeps streaming connections alive.
	EventHeartbeat EventType = "heartbeat"
)

// Event is a bus message.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OwnerChangedData is the payload of EventOwnerChanged. Empty OwnerID means signed out.
type OwnerChangedData struct {
	OwnerID string `json:"owner_id"`
}

// ConnectivityData is the payload of EventConnectivityChanged.
type ConnectivityData struct {
	Online bool `json:"online"`
}

// NewOwnerChangedEvent creates an owner.changed event.
func NewOwnerChangedEvent(ownerID string) Event {
	return Event{Type: EventOwnerChanged, Data: OwnerChangedData{OwnerID: ownerID}, Timestamp: time.Now()}
}

// NewConnectivityEvent creates a connectivity.changed event.
func NewConnectivityEvent(online bool) Event {
	return Event{Type: EventConnectivityChanged, Data: ConnectivityData{Online: online}, Timestamp: time.Now()}
}

// NewSyncStartedEvent creates a sync.started event.
func NewSyncStartedEvent(state domain.SyncState) Event {
	return Event{Type: EventSyncStarted, Data: state, Timestamp: time.Now()}
}

// NewSyncCompletedEvent creates a sync.completed event.
func NewSyncCompletedEvent(state domain.SyncState) Event {
	return Event{Type: EventSyncCompleted, Data: state, Timestamp: time.Now()}
}

// DownloadProgressData is the payload of EventDownloadProgress. Scope names the asset list.
type DownloadProgressData struct {
	Scope string `json:"scope"`
	domain.BulkDownloadState
}

// NewDownloadProgressEvent creates a download.progress event.
func NewDownloadProgressEvent(scope string, state domain.BulkDownloadState) Event {
	return Event{
		Type:      EventDownloadProgress,
		Data:      DownloadProgressData{Scope: scope, BulkDownloadState: state},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{Type: EventHeartbeat, Timestamp: time.Now()}
}
