package entity

import (
	"time"

	"calendar-sync/core/entity"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Session is a booked appointment owned by its host.
type Session struct {
	entity.BaseEntity
	HostID          uuid.UUID     `db:"host_id" json:"host_id"`
	Title           string        `db:"title" json:"title"`
	Description     *string       `db:"description" json:"description,omitempty"`
	Address         *string       `db:"address" json:"address,omitempty"`
	DurationMinutes int           `db:"duration_minutes" json:"duration_minutes"`
	Status          SessionStatus `db:"status" json:"status"`
	Timezone        string        `db:"timezone" json:"timezone"`
	StartDate       *time.Time    `db:"start_date" json:"start_date,omitempty"`
	EndDate         *time.Time    `db:"end_date" json:"end_date,omitempty"`
	MeetingLink     *string       `db:"meeting_link" json:"meeting_link,omitempty"`
}

func (Session) TableName() string {
	return "sessions"
}

func (s *Session) Scheduled() bool {
	return s.StartDate != nil && s.Status != SessionStatusCancelled
}
