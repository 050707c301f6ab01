package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "roomfree/internal/log"
	"roomfree/internal/model"
)

// maxOccurrences caps the expansion of a single recurring event.
const maxOccurrences = 5000

// expand turns bookings into reservations overlapping [from, to). Recurring
// events are expanded with their EXDATEs removed and RECURRENCE-ID
// overrides applied.
func expand(bookings []booking, from, to time.Time) []model.Reservation {
	base := make(map[string][]booking)
	overrides := make(map[string][]booking)
	for _, b := range bookings {
		if b.RecurrenceID != nil {
			overrides[b.UID] = append(overrides[b.UID], b)
			continue
		}
		base[b.UID] = append(base[b.UID], b)
	}

	var out []model.Reservation
	for uid, events := range base {
		for _, b := range events {
			if b.RRule == "" {
				out = appendOverlapping(out, b, b.Start, b.End, from, to)
				continue
			}
			out = append(out, expandRecurring(b, overrides[uid], from, to)...)
		}
	}
	return out
}

func expandRecurring(b booking, overrides []booking, from, to time.Time) []model.Reservation {
	rule, err := rrule.StrToRRule(b.RRule)
	if err != nil {
		appLog.Warn("ics rrule unreadable", "uid", b.UID, "rrule", b.RRule, "error", err)
		return nil
	}
	rule.DTStart(b.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range b.ExDates {
		set.ExDate(ex.In(b.Start.Location()))
	}

	// An occurrence that starts before the range may still reach into it.
	duration := b.End.Sub(b.Start)
	loc := b.Start.Location()
	starts := set.Between(from.Add(-duration).In(loc), to.In(loc), true)
	if len(starts) > maxOccurrences {
		appLog.Warn("ics occurrences truncated", "uid", b.UID, "cap", maxOccurrences)
		starts = starts[:maxOccurrences]
	}

	var out []model.Reservation
	for _, start := range starts {
		occ, occStart, occEnd := b, start, start.Add(duration)
		if b.AllDay {
			occEnd = start.AddDate(0, 0, int(duration.Hours()/24+0.5))
		}
		if o, ok := overrideFor(overrides, start); ok {
			occ, occStart, occEnd = o, o.Start, o.End
		}
		out = appendOverlapping(out, occ, occStart, occEnd, from, to)
	}
	return out
}

func overrideFor(overrides []booking, start time.Time) (booking, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return booking{}, false
}

func appendOverlapping(out []model.Reservation, b booking, start, end, from, to time.Time) []model.Reservation {
	if !start.Before(to) || !end.After(from) {
		return out
	}
	r := model.Reservation{Kind: b.Kind, From: start, To: end}
	if b.Title != "" || b.Organizer != "" {
		r.Event = &model.EventInfo{Title: b.Title, Organizer: b.Organizer}
	}
	return append(out, r)
}
