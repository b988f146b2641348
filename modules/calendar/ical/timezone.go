package ical

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

const scanStep = 24 * time.Hour

type transition struct {
	at         time.Time
	fromOffset int
	toOffset   int
	name       string
	daylight   bool
}

// transitions returns the UTC offset changes of loc between the start of
// fromYear and the end of toYear. The scan steps a day at a time and refines
// each change to the second; changes that revert within one step are not seen.
func transitions(loc *time.Location, fromYear, toYear int) []transition {
	start := time.Date(fromYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(toYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)

	var out []transition
	prev := start
	_, prevOffset := prev.In(loc).Zone()
	for prev.Before(end) {
		cur := prev.Add(scanStep)
		if cur.After(end) {
			cur = end
		}
		if _, offset := cur.In(loc).Zone(); offset == prevOffset {
			prev = cur
			continue
		}
		at := refine(loc, prev, cur, prevOffset)
		name, offset := at.In(loc).Zone()
		out = append(out, transition{
			at:         at,
			fromOffset: prevOffset,
			toOffset:   offset,
			name:       name,
			daylight:   at.In(loc).IsDST(),
		})
		prev, prevOffset = at, offset
	}
	return out
}

// refine narrows the first instant with a new offset to the second.
func refine(loc *time.Location, lo, hi time.Time, loOffset int) time.Time {
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if _, off := mid.In(loc).Zone(); off == loOffset {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

func addTimezone(cal *ics.Calendar, loc *time.Location, fromYear, toYear int) {
	tz := cal.AddTimezone(loc.String())

	trs := transitions(loc, fromYear, toYear)
	if len(trs) == 0 {
		ref := time.Date(fromYear, time.January, 1, 0, 0, 0, 0, loc)
		name, offset := ref.Zone()
		observance(&tz.AddStandard().ComponentBase, "19700101T000000", offset, offset, name)
	}
	for _, tr := range trs {
		// DTSTART is the local time just before the change, in the old offset.
		local := tr.at.In(time.FixedZone("", tr.fromOffset)).Format(dateTimeLocal)
		if tr.daylight {
			d := &ics.Daylight{}
			tz.Components = append(tz.Components, d)
			observance(&d.ComponentBase, local, tr.fromOffset, tr.toOffset, tr.name)
			continue
		}
		observance(&tz.AddStandard().ComponentBase, local, tr.fromOffset, tr.toOffset, tr.name)
	}
}

func observance(c *ics.ComponentBase, start string, from, to int, name string) {
	c.SetProperty(ics.ComponentPropertyDtStart, start)
	c.SetProperty(ics.ComponentProperty(ics.PropertyTzoffsetfrom), formatOffset(from))
	c.SetProperty(ics.ComponentProperty(ics.PropertyTzoffsetto), formatOffset(to))
	c.SetProperty(ics.ComponentProperty(ics.PropertyTzname), name)
}

func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if s != 0 {
		return fmt.Sprintf("%c%02d%02d%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%c%02d%02d", sign, h, m)
}
