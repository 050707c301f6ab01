package model

import (
	"fmt"
	"time"
)

// OccupancyKind classifies a reservation record. The numeric values match the
// codes used by the room-info API.
type OccupancyKind int

const (
	KindEvent         OccupancyKind = 2
	KindRenovation    OccupancyKind = 5
	KindClosed        OccupancyKind = 7
	KindLecture       OccupancyKind = 13
	KindOpenWorkspace OccupancyKind = 15
)

// Blocking reports whether a record of this kind prevents general use of the
// room while it is active. Only open-workspace bookings are informational.
func (k OccupancyKind) Blocking() bool {
	return k != KindOpenWorkspace
}

func (k OccupancyKind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindRenovation:
		return "renovation"
	case KindClosed:
		return "closed"
	case KindLecture:
		return "lecture"
	case KindOpenWorkspace:
		return "open-workspace"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// EventInfo describes the booking behind a soft reservation.
type EventInfo struct {
	Title     string
	Number    string
	Organizer string
	Type      string
}

// Reservation is a single record of a room's timeline. The interval is
// half-open: To is not part of the reservation.
type Reservation struct {
	Kind  OccupancyKind
	From  time.Time
	To    time.Time
	Event *EventInfo
}

// Contains reports whether t lies within [From, To).
func (r Reservation) Contains(t time.Time) bool {
	return !r.From.After(t) && r.To.After(t)
}

// Room is the identity of a bookable room as resolved from the catalog.
type Room struct {
	Area            string
	Building        string
	Floor           string
	Code            string
	VariableSeating bool
	Seats           string
	Type            string
}

// Name is the "building floor room" form used by the room-info API.
func (r Room) Name() string {
	return r.Building + " " + r.Floor + " " + r.Code
}

// Less orders rooms by building, floor, then room code.
func (r Room) Less(o Room) bool {
	if r.Building != o.Building {
		return r.Building < o.Building
	}
	if r.Floor != o.Floor {
		return r.Floor < o.Floor
	}
	return r.Code < o.Code
}
