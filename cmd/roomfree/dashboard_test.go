package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"roomfree/internal/config"
	"roomfree/internal/model"
	"roomfree/internal/query"
	"roomfree/internal/screen"
	"roomfree/internal/viewport"
)

// brokenTerminal records every write and starts failing once broken is set.
type brokenTerminal struct {
	written strings.Builder
	broken  bool
}

func (b *brokenTerminal) Write(p []byte) (int, error) {
	b.written.Write(p)
	if b.broken {
		return 0, errors.New("write /dev/tty: input/output error")
	}
	return len(p), nil
}

func (b *brokenTerminal) Size() (int, int, error) { return 100, 20, nil }

func (b *brokenTerminal) reset() { b.written.Reset() }

func threeRooms() model.Report {
	day := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	var report model.Report
	for _, code := range []string{"1", "2", "3"} {
		report.Verdicts = append(report.Verdicts, model.Available{
			Room: model.Room{Building: "HG", Floor: "E", Code: code, VariableSeating: true},
			From: day.Add(9 * time.Hour), To: day.Add(17 * time.Hour),
		})
	}
	return report
}

func newTestDashboard(t *testing.T, term *brokenTerminal) *dashboard {
	t.Helper()
	ctrl := viewport.New(term, viewport.Formatter{})
	if err := ctrl.LoadResults(threeRooms()); err != nil {
		t.Fatal(err)
	}
	return &dashboard{ctrl: ctrl, builder: &queryBuilder{conf: config.DefaultConfig(), loc: time.UTC}, report: threeRooms()}
}

func TestLoopShowsCursorWhenAKeyCannotBeDrawn(t *testing.T) {
	term := &brokenTerminal{}
	d := newTestDashboard(t, term)
	term.reset()
	term.broken = true

	keys := make(chan screen.Key, 1)
	keys <- screen.KeyDown
	err := d.loop(context.Background(), keys, nil, nil, nil)
	if err == nil {
		t.Fatal("expected the write error")
	}
	if !strings.HasSuffix(term.written.String(), screen.ShowCursor+"\r\n") {
		t.Errorf("cursor not shown again: %q", term.written.String())
	}
}

func TestLoopExits(t *testing.T) {
	tests := []struct {
		name    string
		key     screen.Key
		keyErr  error
		cancel  bool
		wantErr error
	}{
		{name: "quit key", key: screen.KeyQuit},
		{name: "end of input", keyErr: io.EOF},
		{name: "read error", keyErr: os.ErrClosed, wantErr: os.ErrClosed},
		{name: "cancelled", cancel: true, wantErr: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term := &brokenTerminal{}
			d := newTestDashboard(t, term)
			term.reset()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			keys := make(chan screen.Key, 1)
			keyErr := make(chan error, 1)
			switch {
			case tt.cancel:
				cancel()
			case tt.keyErr != nil:
				keyErr <- tt.keyErr
			default:
				keys <- tt.key
			}

			err := d.loop(ctx, keys, keyErr, nil, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("loop = %v, want %v", err, tt.wantErr)
			}
			if n := strings.Count(term.written.String(), screen.ShowCursor); n != 1 {
				t.Errorf("cursor shown %d times, want once", n)
			}
		})
	}
}

func TestApplyKeepsLastReportOnFailedRefresh(t *testing.T) {
	term := &brokenTerminal{}
	d := newTestDashboard(t, term)
	at := time.Date(2024, 5, 8, 14, 5, 0, 0, time.UTC)

	if err := d.apply(query.Result{Err: errors.New("catalog unavailable"), At: at}); err != nil {
		t.Fatal(err)
	}
	if got := d.ctrl.Title(); got != "3 Available Rooms ─ Refresh failed at 14:05" {
		t.Errorf("title = %q", got)
	}
	if len(d.ctrl.Lines()) != 3 {
		t.Errorf("lines = %d, want the last report kept", len(d.ctrl.Lines()))
	}

	if err := d.apply(query.Result{Report: model.Report{Failures: 1}, At: at}); err != nil {
		t.Fatal(err)
	}
	if got := d.ctrl.Title(); got != "0 Available Rooms ─ Had 1 failed requests ─ Updated 14:05" {
		t.Errorf("title = %q", got)
	}
}
