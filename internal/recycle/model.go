package recycle

import (
	"encoding/json"
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// EntityType identifies which domain table a stashed item came from.
// Patients are the only soft-deletable records today; modules that add
// a delete operation register their own type alongside a restorer.
type EntityType string

const (
	EntityPatient EntityType = "patient"
)

// Item is a soft-deleted record held in the recycle bin until its
// retention window lapses or a user restores it.
type Item struct {
	ID         types.ID        `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   types.ID        `json:"entity_id"`
	Label      string          `json:"label"` // human-readable identifier, never PHI
	Payload    json.RawMessage `json:"payload,omitempty"`
	DeletedBy  types.ID        `json:"deleted_by"`
	DeletedAt  time.Time       `json:"deleted_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	RestoredAt *time.Time      `json:"restored_at,omitempty"`
	RestoredBy *types.ID       `json:"restored_by,omitempty"`
}

// Expired reports whether the item is past its retention window
func (i Item) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// ListItemsFilter defines filters for listing recycle bin items
type ListItemsFilter struct {
	EntityType *EntityType `json:"entity_type,omitempty"`
	Limit      int         `json:"limit,omitempty"`
	Offset     int         `json:"offset,omitempty"`
}
