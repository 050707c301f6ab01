package screen

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
)

// escapePattern mirrors the escape sequences the dashboard emits: CSI
// sequences and OSC sequences terminated by BEL or ST.
var escapePattern = regexp.MustCompile("\x1b\\[[0-9:;<=>?]*[ -/]*[@-~]|\x1b\\][^\x07\x1b]*(\x07|\x1b\\\\)")

func TestWidthIgnoresEscapes(t *testing.T) {
	inputs := []string{
		"plain",
		Bold.Styled("bold") + " text",
		Link("HG E 1.1", "https://example.com/room?building=HG&floor=E"),
		Faint.String() + Link(Bold.Styled("09:00")+" -- 10:00", "https://example.com/x") + Reset,
		Color(1).Styled("· Fixed Seating"),
		"\x1b]8;;https://example.com\x1b\\ST-terminated\x1b]8;;\x1b\\",
	}
	for _, in := range inputs {
		stripped := escapePattern.ReplaceAllString(in, "")
		if got, want := Width(in), len([]rune(stripped)); got != want {
			t.Errorf("Width(%q) = %d, want %d", in, got, want)
		}
		if Strip(in) != stripped {
			t.Errorf("Strip(%q) = %q, want %q", in, Strip(in), stripped)
		}
	}
}

func TestFitPadsOnPrintableWidth(t *testing.T) {
	linked := Link("E 12", "https://example.com")
	got := Fit(linked, 10)
	if Width(got) != 10 {
		t.Fatalf("Width(Fit) = %d, want 10", Width(got))
	}
	if !strings.HasPrefix(got, linked) {
		t.Fatalf("Fit changed the content: %q", got)
	}
}

func TestFitTruncatesLongLines(t *testing.T) {
	got := Fit(Bold.Styled(strings.Repeat("x", 30)), 12)
	if Width(got) != 12 {
		t.Fatalf("Width(Fit) = %d, want 12", Width(got))
	}
	if !strings.HasSuffix(Strip(got), "…") {
		t.Errorf("truncated text should end with an ellipsis: %q", Strip(got))
	}
}

func TestPadding(t *testing.T) {
	if got := PadRight("HG", 3); got != "HG " {
		t.Errorf("PadRight = %q", got)
	}
	if got := PadRight("F 33.10", 5); Width(got) != 5 {
		t.Errorf("PadRight overflow = %q", got)
	}
	if got := PadLeft("30 Seats", 10); got != "  30 Seats" {
		t.Errorf("PadLeft = %q", got)
	}
}

func TestMoveTo(t *testing.T) {
	if got := MoveTo(5, 2); got != "\x1b[5;2H" {
		t.Fatalf("MoveTo(5, 2) = %q", got)
	}
}

func TestDecodeKeys(t *testing.T) {
	got := DecodeKeys([]byte("\x1b[Ajk\x1b[B\x1b[5~rxq"))
	want := []Key{KeyUp, KeyDown, KeyUp, KeyDown, KeyPageUp, KeyRefresh, KeyQuit}
	if len(got) != len(want) {
		t.Fatalf("DecodeKeys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadKeysStopsAtEOF(t *testing.T) {
	out := make(chan Key, 8)
	err := ReadKeys(context.Background(), bytes.NewReader([]byte("jjq")), out)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("ReadKeys error = %v, want EOF", err)
	}
	close(out)
	var keys []Key
	for k := range out {
		keys = append(keys, k)
	}
	if len(keys) != 3 || keys[2] != KeyQuit {
		t.Fatalf("keys = %v", keys)
	}
}
