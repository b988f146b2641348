package service

import (
	"context"

	calendarDto "calendar-sync/modules/calendar/dto"
	sessionEntity "calendar-sync/modules/session/entity"
	"calendar-sync/modules/session/repository"

	"github.com/google/uuid"
)

// EntityType names sessions on the calendar side.
const EntityType = "session"

// statusDraft is not a calendar status, so unscheduled sessions stay off calendars.
const statusDraft = "draft"

// CalendarSource exposes sessions to calendar sync and feeds.
type CalendarSource struct {
	repo repository.SessionRepository
}

func NewCalendarSource(repo repository.SessionRepository) *CalendarSource {
	return &CalendarSource{repo: repo}
}

func (c *CalendarSource) EntityType() string {
	return EntityType
}

func (c *CalendarSource) Get(ctx context.Context, ref calendarDto.EntityRef) (*calendarDto.SchedulableEntity, error) {
	id, err := uuid.Parse(ref.ID)
	if err != nil {
		return nil, nil
	}
	sess, err := c.repo.GetByID(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}
	ent := ToSchedulable(sess)
	return &ent, nil
}

func (c *CalendarSource) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]calendarDto.SchedulableEntity, error) {
	sessions, err := c.repo.ListScheduledByHost(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]calendarDto.SchedulableEntity, 0, len(sessions))
	for i := range sessions {
		out = append(out, ToSchedulable(&sessions[i]))
	}
	return out, nil
}

func ToSchedulable(s *sessionEntity.Session) calendarDto.SchedulableEntity {
	ent := calendarDto.SchedulableEntity{
		Ref:             calendarDto.EntityRef{Type: EntityType, ID: s.ID.String(), OwnerID: s.HostID},
		Title:           s.Title,
		Timezone:        s.Timezone,
		End:             s.EndDate,
		DurationMinutes: s.DurationMinutes,
	}
	if s.Description != nil {
		ent.Description = *s.Description
	}
	if s.Address != nil {
		ent.Location = *s.Address
	}
	if s.MeetingLink != nil {
		ent.MeetingLink = *s.MeetingLink
	}

	switch {
	case s.StartDate == nil:
		ent.Status = statusDraft
	case s.Status == sessionEntity.SessionStatusScheduled:
		ent.Status = calendarDto.EntityStatusScheduled
	case s.Status == sessionEntity.SessionStatusPending:
		ent.Status = calendarDto.EntityStatusPending
	default:
		ent.Status = calendarDto.EntityStatusCancelled
	}
	if s.StartDate != nil {
		ent.Start = *s.StartDate
	}
	return ent
}
