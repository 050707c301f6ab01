package model

import "time"

// Verdict is the availability answer for one room. It is either Unavailable
// or Available; switch on the concrete type.
type Verdict interface {
	Subject() Room
	isVerdict()
}

// Unavailable means the room is busy at the query instant and no usable
// window opens later that day.
type Unavailable struct {
	Room Room
}

// Available describes a free window [From, To).
//
// NoAllocations is set when the room had no records at all, which usually
// means its schedule is not published rather than that it is free.
// Future is set when the room is busy now and the window opens later.
type Available struct {
	Room          Room
	From          time.Time
	To            time.Time
	NoAllocations bool
	Future        bool
	Note          string
}

func (v Unavailable) Subject() Room { return v.Room }
func (v Available) Subject() Room   { return v.Room }

func (Unavailable) isVerdict() {}
func (Available) isVerdict()   {}
