package entity

import (
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
	SyncStatusDeleted SyncStatus = "deleted"
)

// CalendarEventSync is the ledger row for one (integration, entity type, entity id).
// ExternalEventID is the only authority on whether an external event exists.
type CalendarEventSync struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	IntegrationID   uuid.UUID  `db:"integration_id" json:"integration_id"`
	EntityType      string     `db:"entity_type" json:"entity_type"`
	EntityID        string     `db:"entity_id" json:"entity_id"`
	ExternalEventID *string    `db:"external_event_id" json:"external_event_id,omitempty"`
	// CalendarID is the provider calendar holding ExternalEventID.
	CalendarID      string     `db:"calendar_id" json:"calendar_id"`
	ContentHash     string     `db:"content_hash" json:"content_hash"`
	LastSyncedAt    *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	Status          SyncStatus `db:"status" json:"status"`
	LastError       *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (CalendarEventSync) TableName() string {
	return "calendar_event_syncs"
}

// HasExternalEvent reports whether the next push must update rather than create.
func (s *CalendarEventSync) HasExternalEvent() bool {
	return s != nil && s.Status != SyncStatusDeleted && s.ExternalEventID != nil && *s.ExternalEventID != ""
}

// UpToDate reports whether hash has already been pushed successfully to calendarID.
func (s *CalendarEventSync) UpToDate(hash, calendarID string) bool {
	return s.HasExternalEvent() && s.Status == SyncStatusSynced && s.ContentHash == hash &&
		s.EventCalendar(calendarID) == calendarID
}

// EventCalendar returns the calendar holding the external event. Rows written
// before the calendar was recorded fall back to current.
func (s *CalendarEventSync) EventCalendar(current string) string {
	if s == nil || s.CalendarID == "" {
		return current
	}
	return s.CalendarID
}

// Moved reports whether the external event lives in a calendar other than target.
func (s *CalendarEventSync) Moved(target string) bool {
	return s.HasExternalEvent() && s.EventCalendar(target) != target
}
