package availability

import (
	"math/rand"
	"testing"
	"time"
	_ "time/tzdata"

	"roomfree/internal/model"
)

var (
	day      = time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	dayEnd   = day.Add(23*time.Hour + 59*time.Minute)
	testRoom = model.Room{Building: "HG", Floor: "E", Code: "1.1", VariableSeating: true}
)

func at(hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

func booking(kind model.OccupancyKind, from, to string) model.Reservation {
	return model.Reservation{Kind: kind, From: at(from), To: at(to)}
}

func mustAvailable(t *testing.T, v model.Verdict) model.Available {
	t.Helper()
	a, ok := v.(model.Available)
	if !ok {
		t.Fatalf("verdict = %#v, want Available", v)
	}
	return a
}

func TestLectureInProgressYieldsLaterWindow(t *testing.T) {
	records := []model.Reservation{booking(model.KindLecture, "13:00", "15:00")}

	a := mustAvailable(t, Classify(records, at("14:00"), day, dayEnd, testRoom))
	if !a.From.Equal(at("15:00")) || !a.To.Equal(dayEnd) {
		t.Fatalf("window = %s-%s, want 15:00-23:59", a.From.Format("15:04"), a.To.Format("15:04"))
	}
	if !a.Future {
		t.Error("window should be flagged as future")
	}
	if a.NoAllocations {
		t.Error("NoAllocations should be false with records present")
	}
}

func TestBackToBackBookingsAreUnavailable(t *testing.T) {
	records := []model.Reservation{
		booking(model.KindLecture, "09:00", "10:00"),
		booking(model.KindLecture, "10:00", "11:00"),
	}
	v := Classify(records, at("09:30"), day, dayEnd, testRoom)
	if _, ok := v.(model.Unavailable); !ok {
		t.Fatalf("verdict = %#v, want Unavailable", v)
	}
}

func TestEmptyTimelineIsWholeDayWithNoAllocations(t *testing.T) {
	a := mustAvailable(t, Classify(nil, at("10:00"), day, dayEnd, testRoom))
	if !a.From.Equal(day) || !a.To.Equal(dayEnd) {
		t.Fatalf("window = %s-%s, want 00:00-23:59", a.From.Format("15:04"), a.To.Format("15:04"))
	}
	if !a.NoAllocations {
		t.Error("NoAllocations should be set for an empty timeline")
	}
	if a.Future {
		t.Error("free-now window should not be flagged future")
	}
}

func TestOpenWorkspaceBookingBecomesNote(t *testing.T) {
	soft := booking(model.KindOpenWorkspace, "08:00", "18:00")
	soft.Event = &model.EventInfo{Title: "Team Sync"}

	a := mustAvailable(t, Classify([]model.Reservation{soft}, at("10:00"), day, dayEnd, testRoom))
	if a.Note != "Team Sync 08:00-18:00" {
		t.Errorf("Note = %q", a.Note)
	}
	if a.From.After(at("08:00")) || a.To.Before(at("18:00")) {
		t.Errorf("window = %s-%s, want to cover 08:00-18:00", a.From.Format("15:04"), a.To.Format("15:04"))
	}
}

func TestMultipleNotesAreJoined(t *testing.T) {
	first := booking(model.KindOpenWorkspace, "08:00", "12:00")
	first.Event = &model.EventInfo{Title: "Study Group"}
	second := booking(model.KindOpenWorkspace, "09:00", "11:00")
	second.Event = &model.EventInfo{Title: "Reading"}
	silent := booking(model.KindOpenWorkspace, "09:00", "11:00")

	a := mustAvailable(t, Classify([]model.Reservation{first, second, silent}, at("10:00"), day, dayEnd, testRoom))
	if a.Note != "Study Group 08:00-12:00, Reading 09:00-11:00" {
		t.Errorf("Note = %q", a.Note)
	}
}

func TestFreeWindowIsClippedByNeighbours(t *testing.T) {
	records := []model.Reservation{
		booking(model.KindLecture, "08:00", "09:45"),
		booking(model.KindEvent, "12:15", "14:00"),
		booking(model.KindLecture, "16:00", "17:00"),
	}
	a := mustAvailable(t, Classify(records, at("10:00"), day, dayEnd, testRoom))
	if !a.From.Equal(at("09:45")) || !a.To.Equal(at("12:15")) {
		t.Fatalf("window = %s-%s, want 09:45-12:15", a.From.Format("15:04"), a.To.Format("15:04"))
	}
}

func TestHalfOpenBoundaries(t *testing.T) {
	ending := []model.Reservation{booking(model.KindLecture, "08:00", "10:00")}
	a := mustAvailable(t, Classify(ending, at("10:00"), day, dayEnd, testRoom))
	if a.Future || !a.From.Equal(at("10:00")) {
		t.Errorf("record ending at the instant should not block: %#v", a)
	}

	starting := []model.Reservation{booking(model.KindLecture, "10:00", "11:00")}
	a = mustAvailable(t, Classify(starting, at("10:00"), day, dayEnd, testRoom))
	if !a.Future || !a.From.Equal(at("11:00")) {
		t.Errorf("record starting at the instant should block: %#v", a)
	}
}

func TestShortGapIsUnavailable(t *testing.T) {
	records := []model.Reservation{
		booking(model.KindLecture, "09:00", "10:00"),
		booking(model.KindLecture, "10:10", "12:00"),
	}
	if _, ok := Classify(records, at("09:30"), day, dayEnd, testRoom).(model.Unavailable); !ok {
		t.Fatal("10 minute gap should not be reported with the default threshold")
	}

	c := Classifier{MinGap: 5 * time.Minute}
	a := mustAvailable(t, c.Classify(records, at("09:30"), day, dayEnd, testRoom))
	if !a.From.Equal(at("10:00")) || !a.To.Equal(at("10:10")) {
		t.Errorf("window = %s-%s", a.From.Format("15:04"), a.To.Format("15:04"))
	}
}

func TestOverlappingConflictsAreOrderIndependent(t *testing.T) {
	records := []model.Reservation{
		booking(model.KindLecture, "09:00", "10:00"),
		booking(model.KindLecture, "10:30", "12:00"),
		booking(model.KindEvent, "09:30", "11:00"),
	}
	want := at("12:00")
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		ordered := []model.Reservation{records[p[0]], records[p[1]], records[p[2]]}
		a := mustAvailable(t, Classify(ordered, at("09:45"), day, dayEnd, testRoom))
		if !a.From.Equal(want) || !a.To.Equal(dayEnd) {
			t.Errorf("order %v: window = %s-%s, want 12:00-23:59", p, a.From.Format("15:04"), a.To.Format("15:04"))
		}
	}
}

func TestSoftBookingStartingNowDoesNotCutWindow(t *testing.T) {
	soft := booking(model.KindOpenWorkspace, "10:00", "12:00")
	soft.Event = &model.EventInfo{Title: "Drop-in"}
	records := []model.Reservation{booking(model.KindLecture, "08:00", "10:00"), soft}

	a := mustAvailable(t, Classify(records, at("10:00"), day, dayEnd, testRoom))
	if !a.To.After(a.From) {
		t.Fatalf("empty window %s-%s", a.From.Format("15:04"), a.To.Format("15:04"))
	}
	if a.Note != "Drop-in 10:00-12:00" {
		t.Errorf("Note = %q", a.Note)
	}
}

func randomRecords(rng *rand.Rand) []model.Reservation {
	kinds := []model.OccupancyKind{
		model.KindEvent, model.KindRenovation, model.KindClosed, model.KindLecture, model.KindOpenWorkspace,
	}
	n := rng.Intn(7)
	records := make([]model.Reservation, 0, n)
	for range n {
		start := day.Add(time.Duration(rng.Intn(24*4)) * 15 * time.Minute)
		length := time.Duration(1+rng.Intn(16)) * 15 * time.Minute
		r := model.Reservation{Kind: kinds[rng.Intn(len(kinds))], From: start, To: start.Add(length)}
		if r.Kind == model.KindOpenWorkspace && rng.Intn(2) == 0 {
			r.Event = &model.EventInfo{Title: "booked"}
		}
		records = append(records, r)
	}
	return records
}

func TestClassifyProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := range 5000 {
		records := randomRecords(rng)
		query := day.Add(time.Duration(rng.Intn(24*60-1)) * time.Minute)

		v := Classify(records, query, day, dayEnd, testRoom)

		var blockingNow []model.Reservation
		softOnly := true
		for _, r := range records {
			if r.Kind.Blocking() {
				softOnly = false
				if r.Contains(query) {
					blockingNow = append(blockingNow, r)
				}
			}
		}

		switch v := v.(type) {
		case model.Available:
			if !v.To.After(v.From) {
				t.Fatalf("case %d: empty window %s-%s", i, v.From, v.To)
			}
			if v.NoAllocations != (len(records) == 0) {
				t.Fatalf("case %d: NoAllocations=%v with %d records", i, v.NoAllocations, len(records))
			}
			if v.Future && !v.From.After(query) {
				t.Fatalf("case %d: future window starts at %s, not after %s", i, v.From, query)
			}
			if len(blockingNow) > 0 {
				if !v.Future {
					t.Fatalf("case %d: blocking record at the instant but same-slot window", i)
				}
				for _, r := range blockingNow {
					if v.From.Before(r.To) {
						t.Fatalf("case %d: window %s starts before conflict end %s", i, v.From, r.To)
					}
				}
			}
		case model.Unavailable:
			if softOnly {
				t.Fatalf("case %d: soft-only timeline reported unavailable", i)
			}
		}
	}
}

func TestDayBoundsOnDSTDays(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatal(err)
	}
	for _, date := range []string{"2026-03-29", "2026-10-25"} {
		t.Run(date, func(t *testing.T) {
			d, err := time.ParseInLocation("2006-01-02", date, zurich)
			if err != nil {
				t.Fatal(err)
			}
			q := model.Query{At: d.Add(10 * time.Hour)}
			if q.At.Hour() < 9 || q.At.Hour() > 11 {
				t.Fatalf("query instant %s", q.At)
			}
			wantStart := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, zurich)
			wantEnd := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 0, 0, zurich)

			if !q.DayStart().Equal(wantStart) || !q.DayEnd().Equal(wantEnd) {
				t.Fatalf("day = %s .. %s, want %s .. %s", q.DayStart(), q.DayEnd(), wantStart, wantEnd)
			}

			v := mustAvailable(t, Classify(nil, q.At, q.DayStart(), q.DayEnd(), testRoom))
			if !v.From.Equal(wantStart) || !v.To.Equal(wantEnd) || !v.NoAllocations {
				t.Errorf("window = %s .. %s, want the whole query day", v.From, v.To)
			}
			if got := v.To.Format("2006-01-02 15:04"); got != date+" 23:59" {
				t.Errorf("window ends %s, want %s 23:59", got, date)
			}

			evening := model.Reservation{
				Kind: model.KindLecture,
				From: time.Date(d.Year(), d.Month(), d.Day(), 22, 0, 0, 0, zurich),
				To:   wantEnd,
			}
			busy := mustAvailable(t, Classify([]model.Reservation{evening}, q.At, q.DayStart(), q.DayEnd(), testRoom))
			if !busy.To.Equal(evening.From) {
				t.Errorf("window ends %s, want %s", busy.To, evening.From)
			}
		})
	}
}
