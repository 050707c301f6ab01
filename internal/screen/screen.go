// Package screen holds the terminal primitives the dashboard is drawn with:
// cursor addressing, erasing, SGR styling, OSC 8 hyperlinks and printable
// width measurement. Nothing here knows about rooms or verdicts.
package screen

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// MoveTo positions the cursor at 1-based row and column.
func MoveTo(row, col int) string {
	return ansi.CursorPosition(col, row)
}

// ClearScreen erases the display and its scrollback.
func ClearScreen() string {
	return ansi.EraseDisplay(3)
}

const (
	HideCursor = ansi.HideCursor
	ShowCursor = ansi.ShowCursor
	Reset      = ansi.ResetStyle
)

// Style is an SGR attribute set applied to a span of text.
type Style = ansi.Style

var (
	Bold   = ansi.Style{}.Bold()
	Faint  = ansi.Style{}.Faint()
	Struck = ansi.Style{}.Faint().Strikethrough(true)
)

// Color returns a foreground style for a basic ANSI color.
func Color(c ansi.BasicColor) Style {
	return ansi.Style{}.ForegroundColor(c)
}

// DefaultColor restores the foreground color without touching other
// attributes.
var DefaultColor = ansi.Style{}.DefaultForegroundColor().String()

// Link wraps text in an OSC 8 hyperlink to url.
func Link(text, url string) string {
	return ansi.SetHyperlink(url) + text + ansi.ResetHyperlink()
}

// Width is the number of cells s occupies once its escape sequences are
// removed.
func Width(s string) int {
	return ansi.StringWidth(s)
}

// Strip removes escape sequences from s.
func Strip(s string) string {
	return ansi.Strip(s)
}

// Fit pads s with spaces to exactly width printable cells, truncating when
// it is longer. Escape sequences never count toward the width.
func Fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := Width(s)
	if w > width {
		return ansi.Truncate(s, width, "…") + ansi.ResetHyperlink() + Reset
	}
	return s + strings.Repeat(" ", width-w)
}

// PadRight pads plain text to width cells, cutting it with an ellipsis when
// it does not fit.
func PadRight(s string, width int) string {
	if Width(s) > width {
		return ansi.Truncate(s, width, "…")
	}
	return s + strings.Repeat(" ", width-Width(s))
}

// PadLeft right-aligns plain text in width cells.
func PadLeft(s string, width int) string {
	if w := Width(s); w < width {
		return strings.Repeat(" ", width-w) + s
	}
	return s
}
