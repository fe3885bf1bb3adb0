package domain

import "time"

// SyncState is the orchestrator's aggregate view.
type SyncState struct {
	IsSyncing    bool       `json:"is_syncing"`
	Error        string     `json:"error,omitempty"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}

// DownloadStatus summarises how much of an asset list is on the device.
type DownloadStatus string

// Download statuses.
const (
	DownloadStatusNone    DownloadStatus = "none"
	DownloadStatusPartial DownloadStatus = "partial"
	DownloadStatusAll     DownloadStatus = "all"
)

// DeriveDownloadStatus maps a downloaded count onto a status. An empty list counts as all.
func DeriveDownloadStatus(downloaded, total int) DownloadStatus {
	switch {
	case downloaded >= total:
		return DownloadStatusAll
	case downloaded == 0:
		return DownloadStatusNone
	default:
		return DownloadStatusPartial
	}
}

// Progress counts processed items in a bulk run. Current never exceeds Total.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// BulkDownloadState is the observable state of a bulk download manager.
type BulkDownloadState struct {
	Status          DownloadStatus `json:"status"`
	DownloadedCount int            `json:"downloaded_count"`
	Progress        Progress       `json:"progress"`
	IsDownloading   bool           `json:"is_downloading"`
	Error           string         `json:"error,omitempty"`
}
