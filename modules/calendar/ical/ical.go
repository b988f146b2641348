// Package ical renders RFC 5545 calendar documents for subscription feeds.
package ical

import (
	"bytes"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

const (
	maxLineOctets = 75
	dateTimeLocal = "20060102T150405"
)

type Event struct {
	UID         string
	Stamp       time.Time
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	Location    string
	Status      string
}

type Calendar struct {
	ProdID string
	Name   string
	// Location all event times are expressed in. Nil means UTC.
	Location *time.Location
	// Now is the render time; it bounds the VTIMEZONE of an empty calendar.
	Now    time.Time
	Events []Event
}

// Encode writes c as a VCALENDAR document with CRLF line endings and folded lines.
func (c *Calendar) Encode(w io.Writer) error {
	return c.document().SerializeTo(w, ics.WithNewLineWindows, ics.WithLineLength(maxLineOctets))
}

func (c *Calendar) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Calendar) document() *ics.Calendar {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	tzid := ""
	if loc != time.UTC && loc.String() != "UTC" {
		tzid = loc.String()
	}

	cal := ics.NewCalendar()
	cal.SetProductId(c.ProdID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)
	if c.Name != "" {
		cal.SetXWRCalName(text(c.Name))
	}
	cal.SetXWRTimezone(loc.String())

	if tzid != "" {
		from, to := c.yearRange(loc)
		addTimezone(cal, loc, from, to)
	}
	for i := range c.Events {
		addEvent(cal, &c.Events[i], loc, tzid)
	}
	return cal
}

// yearRange covers every event plus the year before the first one, so the
// offset in effect before the first transition is always defined.
func (c *Calendar) yearRange(loc *time.Location) (int, int) {
	if len(c.Events) == 0 {
		now := c.Now
		if now.IsZero() {
			now = time.Now()
		}
		y := now.In(loc).Year()
		return y - 1, y
	}
	from, to := c.Events[0].Start.In(loc).Year(), c.Events[0].End.In(loc).Year()
	for _, ev := range c.Events[1:] {
		if y := ev.Start.In(loc).Year(); y < from {
			from = y
		}
		if y := ev.End.In(loc).Year(); y > to {
			to = y
		}
	}
	return from - 1, to
}

func addEvent(cal *ics.Calendar, ev *Event, loc *time.Location, tzid string) {
	e := cal.AddEvent(ev.UID)
	e.SetDtStampTime(ev.Stamp)
	if tzid == "" {
		e.SetStartAt(ev.Start)
		e.SetEndAt(ev.End)
	} else {
		e.SetProperty(ics.ComponentPropertyDtStart, ev.Start.In(loc).Format(dateTimeLocal), ics.WithTZID(tzid))
		e.SetProperty(ics.ComponentPropertyDtEnd, ev.End.In(loc).Format(dateTimeLocal), ics.WithTZID(tzid))
	}
	e.SetSummary(text(ev.Summary))
	e.SetDescription(text(ev.Description))
	if ev.Location != "" {
		e.SetLocation(text(ev.Location))
	}
	if ev.Status != "" {
		e.SetStatus(ics.ObjectStatus(ev.Status))
	}
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// text folds every line break to LF; the encoder escapes LF as \n.
func text(s string) string {
	return newlines.Replace(s)
}
