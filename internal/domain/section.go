package domain

import "time"

// Section names for server-ranked lists.
const (
	SectionRecommendations = "recommendations"
	SectionTrending        = "trending"
)

// SectionCache keeps a server-computed ordering of item ids so the ranking survives joins.
type SectionCache struct {
	Key       string    `json:"key"`
	ItemIDs   []string  `json:"item_ids"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SectionKey scopes a section to an owner. Global sections pass an empty owner.
func SectionKey(section, ownerID string) string {
	if ownerID == "" {
		return section
	}
	return section + ":" + ownerID
}
