package model

import (
	"regexp"
	"time"
)

// Query is the configuration of one availability check.
type Query struct {
	// At is the query instant; its calendar day is the query day.
	At time.Time

	// AreaFilter and BuildingFilter select rooms from the catalog. A nil
	// pattern matches everything.
	AreaFilter     *regexp.Regexp
	BuildingFilter *regexp.Regexp

	ShowFixedSeating bool
	ShowUnavailable  bool
	ShowLater        bool
	ShowSeats        bool

	// TrialLimit caps the number of rooms checked. Zero means no cap.
	TrialLimit int
}

// Range is the timeline request window for the query day.
func (q Query) Range() DateRange {
	return WeekOf(q.At)
}

func (q Query) DayStart() time.Time { return StartOfDay(q.At) }
func (q Query) DayEnd() time.Time   { return EndOfDay(q.At) }
