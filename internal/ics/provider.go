// Package ics schedules rooms whose bookings are published as iCalendar
// feeds instead of through the room-info API.
package ics

import (
	"context"
	"fmt"
	"time"

	"roomfree/internal/model"
)

// Provider serves timelines for the rooms that have a configured feed.
type Provider struct {
	fetcher *Fetcher
	loc     *time.Location
	feeds   map[string]Feed
}

// NewProvider builds a provider for feeds. Floating times in the feeds are
// read in loc.
func NewProvider(fetcher *Fetcher, feeds []Feed, loc *time.Location) *Provider {
	if loc == nil {
		loc = time.Local
	}
	byRoom := make(map[string]Feed, len(feeds))
	for _, f := range feeds {
		byRoom[f.Room] = f
	}
	return &Provider{fetcher: fetcher, loc: loc, feeds: byRoom}
}

// Has reports whether room is scheduled from a feed.
func (p *Provider) Has(room model.Room) bool {
	_, ok := p.feeds[room.Name()]
	return ok
}

// Timeline returns the reservations of room that overlap the days of rng.
func (p *Provider) Timeline(ctx context.Context, room model.Room, rng model.DateRange) ([]model.Reservation, error) {
	feed, ok := p.feeds[room.Name()]
	if !ok {
		return nil, fmt.Errorf("ics: no feed for %s", room.Name())
	}
	res, err := p.fetcher.Fetch(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("ics: %s: %w", room.Name(), err)
	}
	bookings, err := parse(feed.Room, res.Body, p.loc)
	if err != nil {
		return nil, fmt.Errorf("ics: %s: %w", room.Name(), err)
	}

	from := time.Date(rng.From.Year(), rng.From.Month(), rng.From.Day(), 0, 0, 0, 0, p.loc)
	to := time.Date(rng.To.Year(), rng.To.Month(), rng.To.Day()+1, 0, 0, 0, 0, p.loc)
	return expand(bookings, from, to), nil
}
