package dto

import (
	"time"

	"github.com/google/uuid"
)

// ========== Domain boundary ==========

// EntityRef identifies one schedulable domain entity.
type EntityRef struct {
	Type    string    `json:"type"`
	ID      string    `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`
}

func (r EntityRef) Key() string {
	return r.Type + ":" + r.ID
}

// Entity statuses understood by the mapper.
const (
	EntityStatusScheduled = "scheduled"
	EntityStatusConfirmed = "confirmed"
	EntityStatusPending   = "pending"
	EntityStatusTentative = "tentative"
	EntityStatusCancelled = "cancelled"
	EntityStatusDeleted   = "deleted"
)

// SchedulableEntity is what the domain exposes to the calendar subsystem.
// Start is the scheduled instant; Timezone is the zone the entity was booked in.
// End wins over DurationMinutes when both are set.
type SchedulableEntity struct {
	Ref             EntityRef
	Title           string
	Description     string
	Start           time.Time
	Timezone        string
	End             *time.Time
	DurationMinutes int
	Location        string
	MeetingLink     string
	Status          string
}

// Event statuses as written to providers and feeds.
const (
	EventStatusConfirmed = "CONFIRMED"
	EventStatusTentative = "TENTATIVE"
)

// CalendarEvent is the provider-agnostic event representation.
type CalendarEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Timezone    string
	Status      string
}

// ========== Sync results ==========

type SyncAction string

const (
	SyncActionCreated   SyncAction = "created"
	SyncActionUpdated   SyncAction = "updated"
	SyncActionDeleted   SyncAction = "deleted"
	SyncActionUnchanged SyncAction = "unchanged"
	SyncActionSkipped   SyncAction = "skipped"
)

// SyncResult is the outcome of push or remove against one integration.
type SyncResult struct {
	IntegrationID uuid.UUID  `json:"integration_id"`
	ExternalID    string     `json:"external_id,omitempty"`
	Action        SyncAction `json:"action"`
	Err           error      `json:"-"`
	Error         string     `json:"error,omitempty"`
}

func (r SyncResult) Failed() bool {
	return r.Err != nil
}

// ========== Connection DTOs ==========

type ConnectResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type IntegrationResponse struct {
	ID           uuid.UUID  `json:"id"`
	Provider     string     `json:"provider"`
	CalendarID   string     `json:"calendar_id"`
	SyncEnabled  bool       `json:"sync_enabled"`
	Connected    bool       `json:"connected"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	ConnectedAt  time.Time  `json:"connected_at"`
}

type IntegrationListResponse struct {
	Integrations []IntegrationResponse `json:"integrations"`
}

type UpdateIntegrationRequest struct {
	CalendarID  *string `json:"calendar_id,omitempty"`
	SyncEnabled *bool   `json:"sync_enabled,omitempty"`
}

type ExternalCalendar struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Timezone string `json:"timezone,omitempty"`
	Primary  bool   `json:"primary"`
	CanWrite bool   `json:"can_write"`
}

type ExternalCalendarListResponse struct {
	Calendars []ExternalCalendar `json:"calendars"`
}

type SyncEntityRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

type SyncEntityResponse struct {
	Results []SyncResult `json:"results"`
}

// ========== Feed token DTOs ==========

type CreateFeedTokenRequest struct {
	Label string `json:"label"`
	// TTL in hours; zero uses the configured default.
	TTLHours int `json:"ttl_hours,omitempty"`
}

type FeedTokenResponse struct {
	ID        uuid.UUID  `json:"id"`
	Label     string     `json:"label"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	// Token and URL are only present right after creation.
	Token string `json:"token,omitempty"`
	URL   string `json:"url,omitempty"`
}

type FeedTokenListResponse struct {
	Tokens []FeedTokenResponse `json:"tokens"`
}
