package mapper

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"calendar-sync/modules/calendar/dto"

	"golang.org/x/crypto/blake2b"
)

// FallbackDuration is used when an entity has no end, no duration and no
// configured default for its type.
const FallbackDuration = 60 * time.Minute

type MapOptions struct {
	DefaultTimezone string
	// Minutes per entity type.
	DefaultDurations map[string]int
	UIDDomain        string
}

// EventStatus returns the calendar status for an entity status, or false when
// the entity must not appear in any calendar.
func EventStatus(entityStatus string) (string, bool) {
	switch strings.ToLower(entityStatus) {
	case dto.EntityStatusScheduled, dto.EntityStatusConfirmed:
		return dto.EventStatusConfirmed, true
	case dto.EntityStatusPending, dto.EntityStatusTentative:
		return dto.EventStatusTentative, true
	default:
		return "", false
	}
}

// Visible reports whether ent belongs in external calendars.
func Visible(ent *dto.SchedulableEntity) bool {
	_, ok := EventStatus(ent.Status)
	return ok
}

// EventUID is stable for the lifetime of the entity.
func EventUID(ref dto.EntityRef, domain string) string {
	if domain == "" {
		domain = "calendar-sync.local"
	}
	return fmt.Sprintf("%s-%s@%s", ref.Type, ref.ID, domain)
}

// ResolveLocation loads name, falling back to fallback and then UTC.
func ResolveLocation(name, fallback string) *time.Location {
	for _, candidate := range []string{name, fallback} {
		if candidate == "" {
			continue
		}
		if loc, err := time.LoadLocation(candidate); err == nil {
			return loc
		}
	}
	return time.UTC
}

// EndOf derives the end instant of ent.
func EndOf(ent *dto.SchedulableEntity, start time.Time, opts MapOptions) time.Time {
	if ent.End != nil && ent.End.After(start) {
		return *ent.End
	}
	if ent.DurationMinutes > 0 {
		return start.Add(time.Duration(ent.DurationMinutes) * time.Minute)
	}
	if minutes, ok := opts.DefaultDurations[ent.Ref.Type]; ok && minutes > 0 {
		return start.Add(time.Duration(minutes) * time.Minute)
	}
	return start.Add(FallbackDuration)
}

// ToCalendarEvent maps a domain entity to the event pushed to providers and
// rendered into feeds. Both paths share it so their views never disagree.
func ToCalendarEvent(ent *dto.SchedulableEntity, opts MapOptions) (*dto.CalendarEvent, error) {
	if ent.Start.IsZero() {
		return nil, fmt.Errorf("entity %s has no start time", ent.Ref.Key())
	}
	status, ok := EventStatus(ent.Status)
	if !ok {
		return nil, fmt.Errorf("entity %s with status %q is not calendar visible", ent.Ref.Key(), ent.Status)
	}

	loc := ResolveLocation(ent.Timezone, opts.DefaultTimezone)
	start := ent.Start.In(loc)
	end := EndOf(ent, start, opts).In(loc)

	summary := strings.TrimSpace(ent.Title)
	if summary == "" {
		summary = "Untitled " + ent.Ref.Type
	}

	return &dto.CalendarEvent{
		UID:         EventUID(ent.Ref, opts.UIDDomain),
		Summary:     summary,
		Description: describe(ent),
		Location:    strings.TrimSpace(ent.Location),
		Start:       start,
		End:         end,
		Timezone:    loc.String(),
		Status:      status,
	}, nil
}

func describe(ent *dto.SchedulableEntity) string {
	desc := strings.TrimSpace(ent.Description)
	link := strings.TrimSpace(ent.MeetingLink)
	if link == "" {
		return desc
	}
	if desc == "" {
		return "Join: " + link
	}
	return desc + "\n\nJoin: " + link
}

// ContentHash digests the fields that change what a calendar shows.
// Start and end are hashed as UTC instants, so the timezone label alone never
// changes the hash.
func ContentHash(ev *dto.CalendarEvent) string {
	h, _ := blake2b.New256(nil)
	var lenBuf [8]byte
	for _, field := range []string{
		ev.UID,
		ev.Summary,
		ev.Description,
		ev.Location,
		ev.Start.UTC().Format(time.RFC3339),
		ev.End.UTC().Format(time.RFC3339),
		ev.Status,
	} {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(field)))
		h.Write(lenBuf[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
