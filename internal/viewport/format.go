package viewport

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"roomfree/internal/model"
	"roomfree/internal/screen"
	"roomfree/internal/timeline"
)

// Column widths of a formatted line. The timeline bar always starts at
// BarColumn so that it lines up with the ruler in the bottom border.
const (
	buildingWidth = 3
	floorWidth    = 2
	roomWidth     = 5
	seatsWidth    = 10

	// " HG " + " " + "E  1.1  " + " " + "Available 08:00 -- 18:00" + " "
	BarColumn = 1 + buildingWidth + 1 + floorWidth + 1 + roomWidth + 1 + 24 + 1
)

// DefaultCommonType is the room type that is not worth annotating.
const DefaultCommonType = "Seminare / Kurse"

// Display selects which verdicts become lines and which annotations they
// carry.
type Display struct {
	ShowFixedSeating bool
	ShowUnavailable  bool
	ShowLater        bool
	ShowSeats        bool
}

// Links builds the deep links embedded in each line.
type Links struct {
	// Base is the site prefix, e.g. "https://ethz.ch/staffnet/de".
	Base string
	// Range is the week whose schedule the schedule link opens.
	Range model.DateRange
}

func (l Links) Room(r model.Room) string {
	q := url.Values{}
	q.Set("building", r.Building)
	q.Set("floor", r.Floor)
	q.Set("room", r.Code)
	return l.Base + "/utils/location.html?" + q.Encode()
}

func (l Links) Schedule(r model.Room) string {
	return l.Base + "/service/raeume-gebaeude/rauminfo/raumdetails/allocation.html?room=" +
		url.QueryEscape(r.Name()) + "&" + l.Range.Token()
}

// Tally counts what a report contained, for the title bar.
type Tally struct {
	Available  int
	NoSchedule int
	Failed     int
}

func (t Tally) Title() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d Available Rooms", t.Available)
	if t.NoSchedule > 0 {
		fmt.Fprintf(&b, " ─ Could not read %d schedules", t.NoSchedule)
	}
	if t.Failed > 0 {
		fmt.Fprintf(&b, " ─ Had %d failed requests", t.Failed)
	}
	return b.String()
}

var (
	fixedSeatingStyle = screen.Color(ansi.BrightRed)
	typeStyle         = screen.Color(ansi.Yellow)
	noteStyle         = screen.Color(ansi.Magenta)
)

// Formatter turns verdicts into dashboard lines.
type Formatter struct {
	Display    Display
	Links      Links
	CommonType string
}

// Format renders the verdicts of report, in order, and counts them.
func (f Formatter) Format(report model.Report) ([]string, Tally) {
	tally := Tally{Failed: report.Failures}
	var lines []string
	prevBuilding := ""

	building := func(r model.Room) string {
		if r.Building == prevBuilding {
			return strings.Repeat(" ", buildingWidth+1)
		}
		prevBuilding = r.Building
		return " " + screen.PadRight(r.Building, buildingWidth)
	}

	for _, v := range report.Verdicts {
		room := v.Subject()
		if !f.Display.ShowFixedSeating && !room.VariableSeating {
			continue
		}
		switch v := v.(type) {
		case model.Available:
			switch {
			case v.NoAllocations:
				tally.NoSchedule++
			case v.Future:
				if f.Display.ShowLater {
					lines = append(lines, building(room)+" "+f.later(v))
				}
			default:
				tally.Available++
				lines = append(lines, building(room)+" "+f.now(v))
			}
		case model.Unavailable:
			if f.Display.ShowUnavailable {
				lines = append(lines, building(room)+" "+
					screen.Struck.Styled(f.roomLink(room)+" Unavailable"))
			}
		}
	}
	return lines, tally
}

func (f Formatter) roomLink(r model.Room) string {
	label := screen.PadRight(r.Floor, floorWidth) + " " + screen.PadRight(r.Code, roomWidth)
	return screen.Link(label, f.Links.Room(r))
}

func clock(t time.Time) string {
	return t.Format("15:04")
}

func (f Formatter) now(v model.Available) string {
	window := "Available " + clock(v.From) + " -- " + screen.Bold.Styled(clock(v.To))
	return f.roomLink(v.Room) + " " +
		screen.Link(window, f.Links.Schedule(v.Room)) + " " +
		timeline.Interval(v.From, v.To) +
		f.annotations(v, "Note: Reserved for ")
}

func (f Formatter) later(v model.Available) string {
	window := screen.Faint.Styled("Available ") + screen.Bold.Styled(clock(v.From)) +
		screen.Faint.Styled(" -- ") + screen.Bold.Styled(clock(v.To))
	return screen.Struck.Styled(f.roomLink(v.Room)) + " " +
		screen.Link(window, f.Links.Schedule(v.Room)) + " " +
		screen.Faint.Styled(timeline.Interval(v.From, v.To)) +
		f.annotations(v, "Reserved: ")
}

func (f Formatter) annotations(v model.Available, notePrefix string) string {
	var b strings.Builder
	room := v.Room
	if f.Display.ShowSeats {
		seats := ""
		if room.Seats != "" {
			seats = room.Seats + " Seats"
		}
		b.WriteString(" " + screen.PadLeft(seats, seatsWidth))
	}
	if !room.VariableSeating {
		b.WriteString(" " + fixedSeatingStyle.Styled("· Fixed Seating"))
	}
	common := f.CommonType
	if common == "" {
		common = DefaultCommonType
	}
	if room.Type != "" && room.Type != common {
		b.WriteString(" " + typeStyle.Styled("· Type: "+room.Type))
	}
	if v.Note != "" {
		b.WriteString(" " + noteStyle.Styled("· "+notePrefix+v.Note))
	}
	return b.String()
}
