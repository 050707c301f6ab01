package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "roomfree/internal/log"
	"roomfree/internal/model"
)

// booking is one VEVENT of a room feed, before recurrence expansion.
type booking struct {
	UID       string
	Title     string
	Organizer string
	Kind      model.OccupancyKind

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time
}

// parse reads the VEVENTs of body. Events that cannot be read are logged
// and skipped.
func parse(room string, body []byte, loc *time.Location) ([]booking, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var out []booking
	for _, ve := range cal.Events() {
		b, err := parseEvent(ve, loc)
		if err != nil {
			appLog.Warn("ics event skipped", "room", room, "error", err)
			continue
		}
		out = append(out, b)
	}
	appLog.Debug("ics feed parsed", "room", room, "events", len(out))
	return out, nil
}

func parseEvent(ve *ical.VEvent, loc *time.Location) (booking, error) {
	var b booking
	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return b, errors.New("missing UID")
	}
	b.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		b.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		b.Organizer = organizerName(p)
	}
	b.Kind = kindOf(ve)

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return b, errors.New("missing DTSTART")
	}
	b.AllDay = isDate(dtstart)

	start, err := parseTime(dtstart.Value, tzOf(dtstart, loc))
	if err != nil {
		return b, fmt.Errorf("DTSTART: %w", err)
	}
	end := start
	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
		if t, err := parseTime(dtend.Value, tzOf(dtend, loc)); err == nil {
			end = t
		}
	}
	if !end.After(start) && b.AllDay {
		// A date-valued DTSTART without DTEND lasts one day.
		end = start.AddDate(0, 0, 1)
	}
	b.Start, b.End = start, end

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		b.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(strings.TrimSpace(part), tzOf(p, loc)); err == nil {
				b.ExDates = append(b.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseTime(p.Value, tzOf(p, loc)); err == nil {
			b.RecurrenceID = &t
		}
	}
	return b, nil
}

// kindOf derives the occupancy kind from CATEGORIES. Transparent events do
// not block the room.
func kindOf(ve *ical.VEvent) model.OccupancyKind {
	if p := ve.GetProperty(ical.ComponentPropertyTransp); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return model.KindOpenWorkspace
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			switch strings.ToLower(strings.TrimSpace(c)) {
			case "lecture", "lehrveranstaltung":
				return model.KindLecture
			case "renovation", "renovations":
				return model.KindRenovation
			case "closed":
				return model.KindClosed
			case "workspace", "open-workspace", "arbeitsplatz":
				return model.KindOpenWorkspace
			case "event":
				return model.KindEvent
			}
		}
	}
	return model.KindEvent
}

func organizerName(p *ical.IANAProperty) string {
	if cn, ok := p.ICalParameters["CN"]; ok && len(cn) > 0 && cn[0] != "" {
		return cn[0]
	}
	return strings.TrimPrefix(strings.TrimPrefix(p.Value, "mailto:"), "MAILTO:")
}

func isDate(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// tzOf resolves the TZID parameter of p, falling back to loc.
func tzOf(p *ical.IANAProperty, loc *time.Location) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			return l
		}
	}
	return loc
}

// parseTime reads a DATE or DATE-TIME value. UTC values keep their zone;
// others are wall time in loc.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
