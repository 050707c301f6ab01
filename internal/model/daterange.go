package model

import "time"

const dateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar days used when asking for a
// room's timeline. Requests span a whole week so that multi-day blocking
// events starting before the query day are not missed.
type DateRange struct {
	From time.Time
	To   time.Time
}

// WeekOf returns the Monday..Sunday range containing day.
func WeekOf(day time.Time) DateRange {
	d := StartOfDay(day)
	offset := (int(d.Weekday()) + 6) % 7
	monday := d.AddDate(0, 0, -offset)
	return DateRange{From: monday, To: monday.AddDate(0, 0, 6)}
}

// Token encodes the range as a query string fragment. It doubles as the key
// of the cache bucket holding timelines for this range.
func (r DateRange) Token() string {
	return "from=" + r.From.Format(dateLayout) + "&to=" + r.To.Format(dateLayout)
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59 wall clock of t's day, the last instant the
// dashboard reports. It stays on the same day when DST shortens or
// lengthens it.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 0, 0, t.Location())
}
