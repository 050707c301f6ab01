// Package availability turns a room's reservation timeline into a verdict:
// free now (and until when), free later today, or unavailable.
package availability

import (
	"strings"
	"time"

	"roomfree/internal/model"
)

// DefaultMinGap is the shortest window worth reporting when a room is busy
// at the query instant.
const DefaultMinGap = 15 * time.Minute

const noteSeparator = ", "

// Classifier holds the tunables of the classification.
type Classifier struct {
	// MinGap is the minimum length a later window must exceed to be
	// reported. Zero means DefaultMinGap.
	MinGap time.Duration
}

// Classify is Classifier{}.Classify.
func Classify(records []model.Reservation, at, dayStart, dayEnd time.Time, room model.Room) model.Verdict {
	return Classifier{}.Classify(records, at, dayStart, dayEnd, room)
}

// Classify computes the verdict for room at instant at. dayStart and dayEnd
// bound every reported window; at is expected to lie in [dayStart, dayEnd).
// Records with an empty or inverted interval are ignored.
func (c Classifier) Classify(records []model.Reservation, at, dayStart, dayEnd time.Time, room model.Room) model.Verdict {
	minGap := c.MinGap
	if minGap <= 0 {
		minGap = DefaultMinGap
	}

	var blocking, soft []model.Reservation
	for _, r := range records {
		if !r.To.After(r.From) {
			continue
		}
		if r.Kind.Blocking() {
			blocking = append(blocking, r)
		} else {
			soft = append(soft, r)
		}
	}

	var conflicts []model.Reservation
	for _, r := range blocking {
		if r.Contains(at) {
			conflicts = append(conflicts, r)
		}
	}

	if len(conflicts) > 0 {
		from, to := nextWindow(blocking, conflicts, dayEnd)
		if to.Sub(from) > minGap {
			return model.Available{
				Room:   room,
				From:   from,
				To:     to,
				Future: true,
			}
		}
		return model.Unavailable{Room: room}
	}

	from, to := dayStart, dayEnd
	for _, r := range blocking {
		// Blocking records starting exactly at the instant would conflict,
		// so every remaining one that starts at or after it starts after it.
		if !r.From.Before(at) && r.From.Before(to) {
			to = r.From
		}
		if !r.To.After(at) && r.To.After(from) {
			from = r.To
		}
	}
	for _, r := range soft {
		// A soft booking starting exactly now already covers the instant
		// and is reported as a note instead of cutting the window to zero.
		if r.From.After(at) && r.From.Before(to) {
			to = r.From
		}
		if !r.To.After(at) && r.To.After(from) {
			from = r.To
		}
	}
	if !to.After(from) {
		return model.Unavailable{Room: room}
	}

	return model.Available{
		Room:          room,
		From:          from,
		To:            to,
		NoAllocations: len(records) == 0,
		Note:          pseudoConflicts(soft, at),
	}
}

// nextWindow finds the first blocking-free gap after the conflicting records.
// The start is pushed past every blocking record overlapping it until it
// settles, so the result does not depend on record order.
func nextWindow(blocking, conflicts []model.Reservation, dayEnd time.Time) (time.Time, time.Time) {
	from := conflicts[0].To
	for _, r := range conflicts[1:] {
		if r.To.Before(from) {
			from = r.To
		}
	}

	for moved := true; moved; {
		moved = false
		for _, r := range blocking {
			if r.From.Before(from) && r.To.After(from) {
				from = r.To
				moved = true
			}
		}
	}

	to := dayEnd
	for _, r := range blocking {
		if !r.From.Before(from) && r.From.Before(to) {
			to = r.From
		}
	}
	return from, to
}

// pseudoConflicts describes the soft bookings with an event that cover at.
func pseudoConflicts(soft []model.Reservation, at time.Time) string {
	var notes []string
	for _, r := range soft {
		if r.Event == nil || !r.Contains(at) {
			continue
		}
		notes = append(notes, r.Event.Title+" "+r.From.Format("15:04")+"-"+r.To.Format("15:04"))
	}
	return strings.Join(notes, noteSeparator)
}
