// Package roominfo talks to the room-info JSON API: it downloads the room
// catalog and per-room allocation timelines, caching both in a store.
package roominfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "roomfree/internal/log"
	"roomfree/internal/model"
	"roomfree/internal/store"
)

// DefaultBaseURL is the public room-info endpoint.
const DefaultBaseURL = "https://ethz.ch/bin/ethz/roominfo"

// NetworkError reports a request that failed even after a retry.
type NetworkError struct {
	// Room is the room name, empty for catalog requests.
	Room string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Room == "" {
		return "roominfo: catalog: " + e.Err.Error()
	}
	return "roominfo: " + e.Room + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Config holds what a Client needs.
type Config struct {
	BaseURL string
	// Timeout bounds a single request. Zero means 15 seconds.
	Timeout time.Duration
	// TTL is how long a cached timeline is served without asking the API.
	TTL time.Duration
	// RetryDelay is the pause before the single retry.
	RetryDelay time.Duration
	// Location is the zone the API's wall-clock timestamps are in.
	Location *time.Location
	// Store caches responses. It may be nil.
	Store *store.Store
	// Now replaces time.Now for cache freshness.
	Now func() time.Time
}

// Client fetches rooms and timelines. It is safe for concurrent use.
type Client struct {
	base       string
	client     *http.Client
	ttl        time.Duration
	retryDelay time.Duration
	loc        *time.Location
	store      *store.Store
	now        func() time.Time
}

func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		base:       base,
		client:     &http.Client{Timeout: timeout},
		ttl:        cfg.TTL,
		retryDelay: cfg.RetryDelay,
		loc:        loc,
		store:      cfg.Store,
		now:        now,
	}
}

func (c *Client) catalogURL() string {
	return c.base + "?path=/rooms"
}

func (c *Client) timelineURL(room model.Room, rng model.DateRange) string {
	return c.base + "?path=/rooms/" + url.PathEscape(room.Name()) + "/allocations&" + rng.Token()
}

// Catalog returns every room. A stored catalog is used as is; otherwise it
// is downloaded and stored.
func (c *Client) Catalog(ctx context.Context) ([]model.Room, error) {
	if c.store != nil {
		entry, err := c.store.Catalog(ctx)
		switch {
		case err == nil:
			rooms, perr := ParseCatalog(entry.Data)
			if perr == nil {
				return rooms, nil
			}
			appLog.Warn("stored catalog unreadable, downloading", "error", perr)
		case !errors.Is(err, store.ErrNotFound):
			appLog.Warn("catalog cache read failed", "error", err)
		}
	}
	return c.RefreshCatalog(ctx)
}

// RefreshCatalog downloads the catalog and replaces the stored copy.
func (c *Client) RefreshCatalog(ctx context.Context) ([]model.Room, error) {
	body, err := c.getWithRetry(ctx, c.catalogURL())
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	rooms, err := ParseCatalog(body)
	if err != nil {
		return nil, err
	}
	if c.store != nil {
		if err := c.store.PutCatalog(ctx, body); err != nil {
			appLog.Warn("catalog cache write failed", "error", err)
		}
	}
	appLog.Info("catalog downloaded", "rooms", len(rooms))
	return rooms, nil
}

// Timeline returns the reservations of room within rng. A cached copy
// younger than the TTL is served without a request. When the request fails,
// a cached copy of any age is served instead of the error.
func (c *Client) Timeline(ctx context.Context, room model.Room, rng model.DateRange) ([]model.Reservation, error) {
	token, key := rng.Token(), room.Name()

	var cached *store.Entry
	if c.store != nil {
		entry, err := c.store.Get(ctx, token, key)
		switch {
		case err == nil:
			cached = &entry
			if c.ttl > 0 && c.now().Sub(entry.UpdatedAt) < c.ttl {
				if records, perr := ParseTimeline(entry.Data, c.loc); perr == nil {
					return records, nil
				}
			}
		case !errors.Is(err, store.ErrNotFound):
			appLog.Warn("timeline cache read failed", "room", key, "error", err)
		}
	}

	body, err := c.getWithRetry(ctx, c.timelineURL(room, rng))
	if err != nil {
		if cached != nil {
			if records, perr := ParseTimeline(cached.Data, c.loc); perr == nil {
				appLog.Warn("timeline fetch failed, using cached copy", "room", key, "age", c.now().Sub(cached.UpdatedAt).Round(time.Second), "error", err)
				return records, nil
			}
		}
		return nil, &NetworkError{Room: key, Err: err}
	}

	records, err := ParseTimeline(body, c.loc)
	if err != nil {
		return nil, &NetworkError{Room: key, Err: err}
	}
	if c.store != nil {
		if err := c.store.Put(ctx, token, key, body); err != nil {
			appLog.Warn("timeline cache write failed", "room", key, "error", err)
		}
	}
	return records, nil
}

// getWithRetry performs a GET and retries it once on any failure.
func (c *Client) getWithRetry(ctx context.Context, u string) ([]byte, error) {
	body, err := c.get(ctx, u)
	if err == nil {
		return body, nil
	}
	appLog.Debug("roominfo request failed, retrying", "url", u, "error", err)

	if c.retryDelay > 0 {
		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return c.get(ctx, u)
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
