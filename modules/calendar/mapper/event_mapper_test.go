package mapper

import (
	"testing"
	"time"

	"calendar-sync/modules/calendar/dto"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prague(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Prague")
	require.NoError(t, err)
	return loc
}

func session(t *testing.T) *dto.SchedulableEntity {
	return &dto.SchedulableEntity{
		Ref:             dto.EntityRef{Type: "session", ID: "e1", OwnerID: uuid.New()},
		Title:           "Portrait shoot",
		Description:     "Bring props",
		Start:           time.Date(2025, 3, 10, 14, 0, 0, 0, prague(t)),
		Timezone:        "Europe/Prague",
		DurationMinutes: 90,
		Location:        "Studio 2",
		Status:          dto.EntityStatusScheduled,
	}
}

func TestToCalendarEvent(t *testing.T) {
	ev, err := ToCalendarEvent(session(t), MapOptions{UIDDomain: "example.test"})
	require.NoError(t, err)

	assert.Equal(t, "session-e1@example.test", ev.UID)
	assert.Equal(t, "Portrait shoot", ev.Summary)
	assert.Equal(t, "Studio 2", ev.Location)
	assert.Equal(t, dto.EventStatusConfirmed, ev.Status)
	assert.Equal(t, "Europe/Prague", ev.Timezone)
	assert.Equal(t, "2025-03-10T14:00:00+01:00", ev.Start.Format(time.RFC3339))
	assert.Equal(t, "2025-03-10T15:30:00+01:00", ev.End.Format(time.RFC3339))
}

func TestToCalendarEvent_Durations(t *testing.T) {
	ent := session(t)
	end := ent.Start.Add(2 * time.Hour)

	t.Run("explicit end wins", func(t *testing.T) {
		e := *ent
		e.End = &end
		ev, err := ToCalendarEvent(&e, MapOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2*time.Hour, ev.End.Sub(ev.Start))
	})

	t.Run("end before start is ignored", func(t *testing.T) {
		e := *ent
		before := ent.Start.Add(-time.Hour)
		e.End = &before
		ev, err := ToCalendarEvent(&e, MapOptions{})
		require.NoError(t, err)
		assert.Equal(t, 90*time.Minute, ev.End.Sub(ev.Start))
	})

	t.Run("configured default per type", func(t *testing.T) {
		e := *ent
		e.DurationMinutes = 0
		ev, err := ToCalendarEvent(&e, MapOptions{DefaultDurations: map[string]int{"session": 45}})
		require.NoError(t, err)
		assert.Equal(t, 45*time.Minute, ev.End.Sub(ev.Start))
	})

	t.Run("fallback constant", func(t *testing.T) {
		e := *ent
		e.DurationMinutes = 0
		ev, err := ToCalendarEvent(&e, MapOptions{DefaultDurations: map[string]int{"shoot": 45}})
		require.NoError(t, err)
		assert.Equal(t, FallbackDuration, ev.End.Sub(ev.Start))
	})
}

func TestToCalendarEvent_StatusAndFallbacks(t *testing.T) {
	ent := session(t)

	ent.Status = dto.EntityStatusPending
	ev, err := ToCalendarEvent(ent, MapOptions{})
	require.NoError(t, err)
	assert.Equal(t, dto.EventStatusTentative, ev.Status)

	ent.Status = dto.EntityStatusCancelled
	_, err = ToCalendarEvent(ent, MapOptions{})
	assert.Error(t, err)
	assert.False(t, Visible(ent))

	ent.Status = dto.EntityStatusScheduled
	ent.Timezone = "Mars/Olympus"
	ent.Title = "  "
	ent.MeetingLink = "https://meet.example/abc"
	ev, err = ToCalendarEvent(ent, MapOptions{DefaultTimezone: "America/New_York"})
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", ev.Timezone)
	assert.Equal(t, "Untitled session", ev.Summary)
	assert.Equal(t, "Bring props\n\nJoin: https://meet.example/abc", ev.Description)

	ent.Start = time.Time{}
	_, err = ToCalendarEvent(ent, MapOptions{})
	assert.Error(t, err)
}

func TestContentHash(t *testing.T) {
	ent := session(t)
	ev, err := ToCalendarEvent(ent, MapOptions{})
	require.NoError(t, err)
	base := ContentHash(ev)
	assert.Len(t, base, 64)

	again, err := ToCalendarEvent(ent, MapOptions{})
	require.NoError(t, err)
	assert.Equal(t, base, ContentHash(again))

	t.Run("timezone relabel keeps hash", func(t *testing.T) {
		e := *ent
		e.Timezone = "UTC"
		ev2, err := ToCalendarEvent(&e, MapOptions{})
		require.NoError(t, err)
		assert.Equal(t, base, ContentHash(ev2))
	})

	t.Run("start change changes hash", func(t *testing.T) {
		e := *ent
		e.Start = ent.Start.Add(time.Hour)
		ev2, err := ToCalendarEvent(&e, MapOptions{})
		require.NoError(t, err)
		assert.NotEqual(t, base, ContentHash(ev2))
	})

	t.Run("field boundaries are unambiguous", func(t *testing.T) {
		a := *ev
		b := *ev
		a.Summary, a.Description = "ab", "c"
		b.Summary, b.Description = "a", "bc"
		assert.NotEqual(t, ContentHash(&a), ContentHash(&b))
	})
}
