// Package query runs an availability query: it selects rooms from the
// catalog, fetches their timelines concurrently under a fixed cap, and
// classifies each room once every fetch has settled.
package query

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"roomfree/internal/availability"
	appLog "roomfree/internal/log"
	"roomfree/internal/model"
)

// DefaultConcurrency is the number of timeline requests in flight at once.
const DefaultConcurrency = 8

// Provider returns the reservations of a room within a date range.
type Provider interface {
	Timeline(ctx context.Context, room model.Room, rng model.DateRange) ([]model.Reservation, error)
}

// Catalog lists every known room.
type Catalog interface {
	Catalog(ctx context.Context) ([]model.Room, error)
}

// FeedProvider is a Provider that only knows some rooms.
type FeedProvider interface {
	Provider
	Has(room model.Room) bool
}

// Router sends rooms with a feed to Feeds and every other room to Default.
type Router struct {
	Default Provider
	Feeds   FeedProvider
}

func (r Router) Timeline(ctx context.Context, room model.Room, rng model.DateRange) ([]model.Reservation, error) {
	if r.Feeds != nil && r.Feeds.Has(room) {
		return r.Feeds.Timeline(ctx, room, rng)
	}
	return r.Default.Timeline(ctx, room, rng)
}

// Select returns the catalog rooms matching q, ordered by building, floor
// and room, capped at q.TrialLimit.
func Select(rooms []model.Room, q model.Query) []model.Room {
	var out []model.Room
	for _, r := range rooms {
		if q.AreaFilter != nil && !q.AreaFilter.MatchString(r.Area) {
			continue
		}
		if q.BuildingFilter != nil && !q.BuildingFilter.MatchString(r.Building) {
			continue
		}
		if !q.ShowFixedSeating && !r.VariableSeating {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	if q.TrialLimit > 0 && len(out) > q.TrialLimit {
		out = out[:q.TrialLimit]
	}
	return out
}

// Engine runs queries against a Provider.
type Engine struct {
	provider    Provider
	classifier  availability.Classifier
	concurrency int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithConcurrency caps the requests in flight. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMinGap sets the shortest later window worth reporting.
func WithMinGap(d time.Duration) Option {
	return func(e *Engine) { e.classifier.MinGap = d }
}

func New(provider Provider, opts ...Option) *Engine {
	e := &Engine{provider: provider, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run fetches and classifies every room. Verdicts keep the order of rooms.
// A room whose timeline cannot be fetched is left out and counted in
// Report.Failures. Run only returns once every fetch has finished.
func (e *Engine) Run(ctx context.Context, rooms []model.Room, q model.Query) model.Report {
	rng := q.Range()
	dayStart, dayEnd := q.DayStart(), q.DayEnd()

	verdicts := make([]model.Verdict, len(rooms))
	var failures atomic.Int32

	started := time.Now()
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, room := range rooms {
		g.Go(func() error {
			records, err := e.provider.Timeline(ctx, room, rng)
			if err != nil {
				failures.Add(1)
				appLog.Warn("timeline fetch failed", "room", room.Name(), "error", err)
				return nil
			}
			verdicts[i] = e.classifier.Classify(records, q.At, dayStart, dayEnd, room)
			return nil
		})
	}
	_ = g.Wait()

	report := model.Report{Failures: int(failures.Load())}
	for _, v := range verdicts {
		if v != nil {
			report.Verdicts = append(report.Verdicts, v)
		}
	}
	appLog.Info("query finished",
		"rooms", len(rooms),
		"verdicts", len(report.Verdicts),
		"failures", report.Failures,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return report
}

// Query loads the catalog, selects rooms and runs q.
func (e *Engine) Query(ctx context.Context, catalog Catalog, q model.Query) (model.Report, error) {
	all, err := catalog.Catalog(ctx)
	if err != nil {
		return model.Report{}, err
	}
	rooms := Select(all, q)
	if len(rooms) == 0 {
		return model.Report{}, errors.New("no rooms match the filters")
	}
	appLog.Info("checking rooms", "count", len(rooms), "range", q.Range().Token())
	return e.Run(ctx, rooms, q), nil
}
