package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	appLog "roomfree/internal/log"
	"roomfree/internal/model"
	"roomfree/internal/query"
	"roomfree/internal/screen"
	"roomfree/internal/viewport"
)

func newConsole() *screen.Console {
	return screen.NewConsole(os.Stdin, os.Stdout)
}

// printPlain writes the lines and tallies without the interactive frame.
// Styling and links are dropped when stdout is not a terminal.
func printPlain(w *os.File, formatter viewport.Formatter, report model.Report) error {
	lines, tally := formatter.Format(report)
	styled := term.IsTerminal(int(w.Fd()))
	out := func(s string) string {
		if styled {
			return s
		}
		return screen.Strip(s)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, out(line)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, out(tally.Title()))
	return err
}

// runDashboard drives the viewport from a single goroutine: keys, resizes
// and watch results are all applied here, one at a time.
func runDashboard(ctx context.Context, console *screen.Console, formatter viewport.Formatter, report model.Report, watcher *query.Watcher, builder *queryBuilder) error {
	if err := console.MakeRaw(); err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer console.Restore()

	ctrl := viewport.New(console, formatter)
	if err := ctrl.LoadResults(report); err != nil {
		_ = ctrl.Quit()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := make(chan screen.Key)
	keyErr := make(chan error, 1)
	go func() {
		keyErr <- screen.ReadKeys(ctx, console.Input(), keys)
	}()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	var results <-chan query.Result
	if watcher != nil {
		watcher.Start(ctx)
		defer watcher.Stop()
		results = watcher.Results()
	}

	d := &dashboard{ctrl: ctrl, builder: builder, linkBase: formatter.Links.Base, report: report}
	return d.loop(ctx, keys, keyErr, winch, results)
}

// dashboard is the state the event loop carries between events.
type dashboard struct {
	ctrl     *viewport.Controller
	builder  *queryBuilder
	linkBase string
	report   model.Report
}

// loop applies events until a quit key, the end of input or ctx. Every way
// out leaves the cursor visible.
func (d *dashboard) loop(ctx context.Context, keys <-chan screen.Key, keyErr <-chan error, winch <-chan os.Signal, results <-chan query.Result) error {
	quitted := false
	defer func() {
		if !quitted {
			_ = d.ctrl.Quit()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-keyErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err

		case k := <-keys:
			quit, err := d.ctrl.Handle(k)
			if quit {
				quitted = err == nil
				return err
			}
			if err != nil {
				return err
			}

		case <-winch:
			if err := d.ctrl.Refresh(); err != nil {
				return err
			}

		case res := <-results:
			if err := d.apply(res); err != nil {
				return err
			}
		}
	}
}

// apply loads a watch result. A failed refresh keeps the last good report.
func (d *dashboard) apply(res query.Result) error {
	stamp := res.At.In(d.builder.loc).Format("15:04")
	if res.Err != nil {
		appLog.Error("scheduled refresh failed", res.Err)
		d.ctrl.SetStatus("Refresh failed at " + stamp)
		return d.ctrl.LoadResults(d.report)
	}
	d.report = res.Report
	if q, err := d.builder.build(res.At); err == nil {
		d.ctrl.SetLinks(viewport.Links{Base: d.linkBase, Range: q.Range()})
	}
	d.ctrl.SetStatus("Updated " + stamp)
	return d.ctrl.LoadResults(d.report)
}
