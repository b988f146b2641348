package entity

import (
	"time"

	"calendar-sync/core/entity"

	"github.com/google/uuid"
)

// CalendarIntegration is one external calendar connection of an owner.
// AccessToken is only usable together with TokenExpiresAt.
type CalendarIntegration struct {
	entity.BaseEntity
	OwnerID        uuid.UUID  `db:"owner_id" json:"owner_id"`
	Provider       string     `db:"provider" json:"provider"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   *string    `db:"refresh_token" json:"-"`
	TokenExpiresAt time.Time  `db:"token_expires_at" json:"token_expires_at"`
	CalendarID     string     `db:"calendar_id" json:"calendar_id"`
	SyncEnabled    bool       `db:"sync_enabled" json:"sync_enabled"`
	LastSyncedAt   *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	LastError      *string    `db:"last_error" json:"last_error,omitempty"`
}

func (CalendarIntegration) TableName() string {
	return "calendar_integrations"
}

// NeedsRefresh is true once now is within buffer of the token expiry.
func (i *CalendarIntegration) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	if i.AccessToken == "" {
		return true
	}
	return !now.Before(i.TokenExpiresAt.Add(-buffer))
}

func (i *CalendarIntegration) HasCredentials() bool {
	return i.AccessToken != "" || (i.RefreshToken != nil && *i.RefreshToken != "")
}

func (i *CalendarIntegration) Healthy() bool {
	return i.LastError == nil || *i.LastError == ""
}
