// Package domain defines the entities mirrored between the remote service and the device.
package domain

import "time"

// CatalogItem is a playable track. Remote columns are authoritative; the Local* fields,
// DownloadedAt, LastPlayedAt and LocalPlayCount are device bookkeeping that sync never rewrites.
type CatalogItem struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	AudioURL     string    `json:"audio_url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	DurationMs   int64     `json:"duration_ms,omitempty"`
	LikeCount    int       `json:"like_count"`
	PlayCount    int       `json:"play_count"`
	CreatedAt    time.Time `json:"created_at"`

	LocalAudioPath     string     `json:"local_audio_path,omitempty"`
	LocalThumbnailPath string     `json:"local_thumbnail_path,omitempty"`
	DownloadedAt       *time.Time `json:"downloaded_at,omitempty"`
	LastPlayedAt       *time.Time `json:"last_played_at,omitempty"`
	LocalPlayCount     int        `json:"local_play_count,omitempty"`
}

// IsDownloaded reports whether the item carries a local audio file.
func (c *CatalogItem) IsDownloaded() bool {
	return c.DownloadedAt != nil && c.LocalAudioPath != ""
}

// ClampCount applies a delta to a counter without letting it go below zero.
func ClampCount(current, delta int) int {
	next := current + delta
	if next < 0 {
		return 0
	}
	return next
}
