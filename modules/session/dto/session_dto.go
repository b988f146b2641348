package dto

import (
	"time"

	"calendar-sync/modules/session/entity"

	"github.com/google/uuid"
)

// ===================== Request DTOs =====================

type CreateSessionRequest struct {
	Title           string     `json:"title" validate:"required"`
	Description     string     `json:"description"`
	Address         string     `json:"address"`
	MeetingLink     string     `json:"meeting_link"`
	DurationMinutes int        `json:"duration_minutes"`
	Timezone        string     `json:"timezone"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
}

// UpdateSessionRequest changes details; nil fields are left alone.
type UpdateSessionRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	Address         *string `json:"address"`
	MeetingLink     *string `json:"meeting_link"`
	DurationMinutes *int    `json:"duration_minutes"`
}

type RescheduleSessionRequest struct {
	StartDate time.Time  `json:"start_date" validate:"required"`
	EndDate   *time.Time `json:"end_date"`
	Timezone  string     `json:"timezone"`
}

// ===================== Response DTOs =====================

type SessionResponse struct {
	ID              uuid.UUID  `json:"id"`
	HostID          uuid.UUID  `json:"host_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Address         string     `json:"address,omitempty"`
	MeetingLink     string     `json:"meeting_link,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Timezone        string     `json:"timezone"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ToSessionResponse(s *entity.Session) SessionResponse {
	return SessionResponse{
		ID:              s.ID,
		HostID:          s.HostID,
		Title:           s.Title,
		Description:     deref(s.Description),
		Address:         deref(s.Address),
		MeetingLink:     deref(s.MeetingLink),
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		Timezone:        s.Timezone,
		StartDate:       s.StartDate,
		EndDate:         s.EndDate,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}
