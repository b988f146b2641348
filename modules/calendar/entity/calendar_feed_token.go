package entity

import (
	"time"

	"github.com/google/uuid"
)

// CalendarFeedToken maps a feed token digest to its owner. The raw token is never stored.
type CalendarFeedToken struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	OwnerID   uuid.UUID  `db:"owner_id" json:"owner_id"`
	TokenHash string     `db:"token_hash" json:"-"`
	Label     string     `db:"label" json:"label"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

func (CalendarFeedToken) TableName() string {
	return "calendar_feed_tokens"
}

func (t *CalendarFeedToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
