// Package categories maintains the internal category tree and the frozen
// mapping from external category IDs to internal ones. Mappings are
// monotonic: once an external ID points at an internal category, later syncs
// never rewrite it.
package categories

// Category is one node in the category tree. Internal rows carry
// source='internal' and permanent IDs; snapshot rows from an upstream source
// carry that source name plus the upstream's own ID.
type Category struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ParentID   *int64 `json:"parent_id"`
	IsArchived bool   `json:"is_archived"`
	Source     string `json:"source"`
	ExternalID string `json:"external_id,omitempty"`
}

// ExternalGroup is a category group as reported by an upstream source.
type ExternalGroup struct {
	ID         string
	Name       string
	Archived   bool
	Categories []ExternalCategory
}

// ExternalCategory is a single upstream category inside a group.
type ExternalCategory struct {
	ID       string
	Name     string
	Archived bool
}

// SyncResult summarizes one mapper sync run.
type SyncResult struct {
	Source             string `json:"source"`
	GroupsSeen         int    `json:"groups_seen"`
	CategoriesSeen     int    `json:"categories_seen"`
	CategoriesUpserted int    `json:"categories_upserted"`
	MapsCreated        int    `json:"maps_created"`
}

// HoldingName is the singleton internal category that absorbs unmapped
// external categories until an operator assigns them somewhere real.
const HoldingName = "Holding"
