package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"roomfree/internal/model"
)

const roomFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//roomfree//test//EN
BEGIN:VEVENT
UID:lecture-1
DTSTAMP:20240501T000000Z
DTSTART;TZID=Europe/Zurich:20240508T130000
DTEND;TZID=Europe/Zurich:20240508T150000
SUMMARY:Algorithms
CATEGORIES:LECTURE
END:VEVENT
BEGIN:VEVENT
UID:weekly
DTSTAMP:20240501T000000Z
DTSTART;TZID=Europe/Zurich:20240403T080000
DTEND;TZID=Europe/Zurich:20240403T090000
RRULE:FREQ=WEEKLY;BYDAY=WE
EXDATE;TZID=Europe/Zurich:20240515T080000
SUMMARY:Group meeting
END:VEVENT
BEGIN:VEVENT
UID:weekly
DTSTAMP:20240501T000000Z
RECURRENCE-ID;TZID=Europe/Zurich:20240508T080000
DTSTART;TZID=Europe/Zurich:20240508T100000
DTEND;TZID=Europe/Zurich:20240508T110000
SUMMARY:Group meeting (moved)
END:VEVENT
BEGIN:VEVENT
UID:sync
DTSTAMP:20240501T000000Z
DTSTART:20240508T080000
DTEND:20240508T180000
SUMMARY:Team Sync
ORGANIZER;CN=D-INFK:mailto:office@example.org
TRANSP:TRANSPARENT
END:VEVENT
BEGIN:VEVENT
UID:closed
DTSTAMP:20240501T000000Z
DTSTART;VALUE=DATE:20240510
SUMMARY:Building closed
CATEGORIES:CLOSED
END:VEVENT
BEGIN:VEVENT
UID:later
DTSTAMP:20240501T000000Z
DTSTART:20240601T080000Z
DTEND:20240601T090000Z
SUMMARY:Outside the week
END:VEVENT
END:VCALENDAR
`

var zurich, _ = time.LoadLocation("Europe/Zurich")

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 5, day, hour, minute, 0, 0, zurich)
}

func feedServer(t *testing.T, down *atomic.Bool, calls, notModified *atomic.Int32) *httptest.Server {
	t.Helper()
	body := strings.ReplaceAll(roomFeed, "\n", "\r\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if down.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProviderTimeline(t *testing.T) {
	var down atomic.Bool
	var calls, notModified atomic.Int32
	srv := feedServer(t, &down, &calls, &notModified)

	room := model.Room{Building: "HG", Floor: "E", Code: "1.1"}
	p := NewProvider(NewFetcher(t.TempDir(), time.Second), []Feed{{Room: "HG E 1.1", URL: srv.URL + "/feed.ics?token=secret"}}, zurich)
	if !p.Has(room) {
		t.Fatal("provider should know the configured room")
	}
	if p.Has(model.Room{Building: "CAB", Floor: "G", Code: "11"}) {
		t.Fatal("provider should not claim other rooms")
	}

	records, err := p.Timeline(context.Background(), room, model.WeekOf(at(8, 0, 0)))
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].From.Before(records[j].From) })

	type want struct {
		kind     model.OccupancyKind
		from, to time.Time
		title    string
	}
	wants := []want{
		{model.KindOpenWorkspace, at(8, 8, 0), at(8, 18, 0), "Team Sync"},
		{model.KindEvent, at(8, 10, 0), at(8, 11, 0), "Group meeting (moved)"},
		{model.KindLecture, at(8, 13, 0), at(8, 15, 0), "Algorithms"},
		{model.KindClosed, at(10, 0, 0), at(11, 0, 0), "Building closed"},
	}
	if len(records) != len(wants) {
		for _, r := range records {
			t.Logf("%v %v..%v %+v", r.Kind, r.From, r.To, r.Event)
		}
		t.Fatalf("got %d records, want %d", len(records), len(wants))
	}
	for i, w := range wants {
		r := records[i]
		if r.Kind != w.kind || !r.From.Equal(w.from) || !r.To.Equal(w.to) {
			t.Errorf("record %d = %v %v..%v, want %v %v..%v", i, r.Kind, r.From, r.To, w.kind, w.from, w.to)
		}
		if r.Event == nil || r.Event.Title != w.title {
			t.Errorf("record %d event = %+v, want title %q", i, r.Event, w.title)
		}
	}
	if records[0].Event.Organizer != "D-INFK" {
		t.Errorf("organizer = %q", records[0].Event.Organizer)
	}
}

func TestRecurrenceExdate(t *testing.T) {
	var down atomic.Bool
	var calls, notModified atomic.Int32
	srv := feedServer(t, &down, &calls, &notModified)

	room := model.Room{Building: "HG", Floor: "E", Code: "1.1"}
	p := NewProvider(NewFetcher(t.TempDir(), time.Second), []Feed{{Room: "HG E 1.1", URL: srv.URL}}, zurich)

	// The week of 2024-05-13 has its Wednesday meeting excluded.
	records, err := p.Timeline(context.Background(), room, model.WeekOf(at(15, 0, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("excluded occurrence returned: %+v", records)
	}

	// The week after has it again.
	records, err = p.Timeline(context.Background(), room, model.WeekOf(at(22, 0, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || !records[0].From.Equal(at(22, 8, 0)) {
		t.Errorf("records = %+v, want one meeting at 2024-05-22 08:00", records)
	}
}

func TestFetcherConditionalAndFallback(t *testing.T) {
	var down atomic.Bool
	var calls, notModified atomic.Int32
	srv := feedServer(t, &down, &calls, &notModified)

	f := NewFetcher(t.TempDir(), time.Second)
	feed := Feed{Room: "HG E 1.1", URL: srv.URL}
	ctx := context.Background()

	first, err := f.Fetch(ctx, feed)
	if err != nil || first.FromCache {
		t.Fatalf("first fetch: %+v, %v", first.FromCache, err)
	}
	second, err := f.Fetch(ctx, feed)
	if err != nil || !second.FromCache || notModified.Load() != 1 {
		t.Fatalf("second fetch should revalidate: fromCache=%v notModified=%d err=%v", second.FromCache, notModified.Load(), err)
	}
	if string(second.Body) != string(first.Body) {
		t.Error("cached body differs")
	}

	down.Store(true)
	third, err := f.Fetch(ctx, feed)
	if err != nil || !third.FromCache {
		t.Fatalf("fetch with the feed down should fall back: %v", err)
	}

	if _, err := NewFetcher(t.TempDir(), time.Second).Fetch(ctx, feed); err == nil {
		t.Error("fetch with the feed down and no cache should fail")
	}
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://calendar.example.org/private/abc.ics?token=1": "https://calendar.example.org/...(redacted)",
		"https://calendar.example.org":                         "https://calendar.example.org/...(redacted)",
		"not a url":                                            "ics://...(redacted)",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
