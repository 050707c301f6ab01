package roominfo

import (
	"encoding/json"
	"fmt"
	"time"

	"roomfree/internal/model"
)

// timestampLayout is how the API writes instants: local wall time, no zone.
const timestampLayout = "2006-01-02T15:04:05"

type timeslotJSON struct {
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
	Series   struct {
		Kind  int        `json:"belegungstyp"`
		Event *eventJSON `json:"veranstaltung"`
	} `json:"belegungsserie"`
}

type eventJSON struct {
	Title     string `json:"allocationTitle"`
	Number    string `json:"veranstaltungsnummer"`
	Organizer string `json:"veranstalter"`
	Type      string `json:"veranstaltungstyp"`
}

// ParseTimeline decodes an allocations response. Timestamps are read as
// wall time in loc.
func ParseTimeline(data []byte, loc *time.Location) ([]model.Reservation, error) {
	var slots []timeslotJSON
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}

	out := make([]model.Reservation, 0, len(slots))
	for i, slot := range slots {
		from, err := time.ParseInLocation(timestampLayout, slot.DateFrom, loc)
		if err != nil {
			return nil, fmt.Errorf("timeslot %d: date_from: %w", i, err)
		}
		to, err := time.ParseInLocation(timestampLayout, slot.DateTo, loc)
		if err != nil {
			return nil, fmt.Errorf("timeslot %d: date_to: %w", i, err)
		}

		r := model.Reservation{
			Kind: kindOf(slot.Series.Kind),
			From: from,
			To:   to,
		}
		if ev := slot.Series.Event; ev != nil {
			r.Event = &model.EventInfo{
				Title:     ev.Title,
				Number:    ev.Number,
				Organizer: ev.Organizer,
				Type:      ev.Type,
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// kindOf maps an API occupancy code. Unknown codes block like events.
func kindOf(code int) model.OccupancyKind {
	switch k := model.OccupancyKind(code); k {
	case model.KindEvent, model.KindRenovation, model.KindClosed, model.KindLecture, model.KindOpenWorkspace:
		return k
	default:
		return model.KindEvent
	}
}
