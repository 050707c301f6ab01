package query

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "roomfree/internal/log"
	"roomfree/internal/model"
)

// Result is the outcome of one scheduled query run.
type Result struct {
	Report model.Report
	Err    error
	At     time.Time
}

// RunFunc performs one query run.
type RunFunc func(ctx context.Context) (model.Report, error)

// Watcher re-runs a query on a cron schedule. Results are delivered on a
// channel so that the goroutine owning the terminal applies them.
type Watcher struct {
	cron    *cron.Cron
	results chan Result
	run     RunFunc
	ctx     context.Context
	cancel  context.CancelFunc
}

// cronLogger routes cron's own messages into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// NewWatcher schedules run with a standard five-field cron spec or a
// descriptor such as "@every 5m", evaluated in loc. A run still in
// progress when the next one is due causes that one to be skipped.
func NewWatcher(spec string, loc *time.Location, run RunFunc) (*Watcher, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	w := &Watcher{
		cron:    c,
		results: make(chan Result, 1),
		run:     run,
	}
	if _, err := c.AddFunc(spec, w.tick); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	return w, nil
}

// Results delivers one Result per completed run.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// Start begins scheduling. Runs use a context derived from ctx.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.cron.Start()
	appLog.Info("refresh scheduled", "next", w.cron.Entries()[0].Next)
}

// Stop ends scheduling and waits for a running query to finish.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.cron.Stop().Done()
}

func (w *Watcher) tick() {
	report, err := w.run(w.ctx)
	res := Result{Report: report, Err: err, At: time.Now()}

	// Keep only the newest result if the consumer has not caught up.
	select {
	case <-w.results:
	default:
	}
	select {
	case w.results <- res:
	case <-w.ctx.Done():
	}
}
