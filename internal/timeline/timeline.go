// Package timeline draws 24-hour glyph bars at 1/8-hour resolution.
//
// Each character cell is one hour of the day. Hours entirely inside an
// interval are full blocks, hours entirely outside are blank, and the hours
// containing the interval's edges use one of the eighth-block glyphs. Cells
// follow the wall clock, so on DST change days the skipped hour is an empty
// cell and the repeated hour shares one cell.
//
// An interval that starts and ends inside the same hour cannot be drawn
// with a single left- or right-aligned block and renders as a shaded cell.
package timeline

import (
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// Width is the printable width of every bar.
const Width = 24

// eighths[k] fills the left k/8 of a cell.
var eighths = [9]string{" ", "▏", "▎", "▍", "▌", "▋", "▊", "▉", "█"}

const (
	ruleGlyph    = "·"
	partialGlyph = "▒"
)

var (
	reverseOn  = ansi.Style{}.Reverse(true).String()
	reverseOff = ansi.Style{}.NoReverse().String()
)

// eighthsOf converts an offset into an hour to a glyph index.
func eighthsOf(d time.Duration) int {
	k := int(math.Round(d.Minutes() / 7.5))
	return max(0, min(8, k))
}

// Interval renders [from, to) on the day of from.
func Interval(from, to time.Time) string {
	y, m, d := from.Date()
	loc := from.Location()
	hour := func(h int) time.Time {
		return time.Date(y, m, d, h, 0, 0, 0, loc)
	}

	var b strings.Builder
	for h := range Width {
		cellStart, cellEnd := hour(h), hour(h+1)
		if !cellEnd.After(cellStart) {
			b.WriteString(eighths[0])
			continue
		}
		b.WriteString(intervalCell(from, to, cellStart, cellEnd))
	}
	return b.String()
}

func intervalCell(from, to, cellStart, cellEnd time.Time) string {
	if !to.After(cellStart) || !from.Before(cellEnd) {
		return eighths[0]
	}

	lo, hi := 0, 8
	if from.After(cellStart) {
		lo = eighthsOf(from.Sub(cellStart))
	}
	if to.Before(cellEnd) {
		hi = eighthsOf(to.Sub(cellStart))
	}

	switch {
	case hi <= lo:
		return eighths[0]
	case lo == 0:
		return eighths[hi]
	case hi == 8:
		// Right-aligned fill: the reversed left block shows the
		// background on its left part.
		return reverseOn + eighths[lo] + reverseOff
	default:
		return partialGlyph
	}
}

// NowMarker renders a dotted 24-hour ruler with a single tick at t.
func NowMarker(t time.Time) string {
	hour := t.Hour()
	k := eighthsOf(time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second)
	if k == 0 {
		k = 1
	}

	var b strings.Builder
	for h := range Width {
		if h == hour {
			b.WriteString(eighths[k])
			continue
		}
		b.WriteString(ruleGlyph)
	}
	return b.String()
}
