package domain

import "time"

// Collection is a user-owned playlist.
type Collection struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	CoverPath string    `json:"cover_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Members is populated when the remote embeds collection items.
	Members []CollectionMembership `json:"collection_items,omitempty"`
}

// CollectionMembership links an item to a collection. ID is synthetic and unique per row.
type CollectionMembership struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	ItemID       string    `json:"item_id"`
	AddedAt      time.Time `json:"added_at"`

	// Item is the embedded catalog row when the remote joins it.
	Item *CatalogItem `json:"item,omitempty"`
}

// Favorite records that an owner liked an item. Keyed by (OwnerID, ItemID).
type Favorite struct {
	OwnerID     string    `json:"owner_id"`
	ItemID      string    `json:"item_id"`
	FavoritedAt time.Time `json:"favorited_at"`

	Item *CatalogItem `json:"item,omitempty"`
}

// FeaturedMedia is a standalone editorial entry.
type FeaturedMedia struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category"`
	MediaPath     string `json:"media_path"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
}
