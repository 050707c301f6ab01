// Package viewport owns the dashboard: a bordered, scrollable list of room
// lines with a selection marker, a scrollbar and a now-marker ruler.
//
// The Controller is not safe for concurrent use. It expects to be driven by
// the single goroutine that owns the terminal.
package viewport

import (
	"strings"
	"time"

	"roomfree/internal/model"
	"roomfree/internal/screen"
	"roomfree/internal/timeline"
)

// Smallest frame the controller draws, whatever the terminal reports.
const (
	MinWidth  = 20
	MinHeight = 4
)

const (
	selectGlyph = "‣"
	edgeGlyph   = "│"
	thumbGlyph  = "█"
	trackGlyph  = "░"
)

// Controller holds the line buffer, scroll offset and selection, and draws
// them on a terminal.
type Controller struct {
	term      screen.Terminal
	formatter Formatter
	now       func() time.Time

	lines    []string
	offset   int
	selected int
	title    string
	status   string

	width  int
	height int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces time.Now as the source of the now-marker.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(term screen.Terminal, formatter Formatter, opts ...Option) *Controller {
	c := &Controller{
		term:      term,
		formatter: formatter,
		now:       time.Now,
		width:     MinWidth,
		height:    MinHeight,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lines returns the current line buffer.
func (c *Controller) Lines() []string { return c.lines }

// Offset is the index of the first visible line.
func (c *Controller) Offset() int { return c.offset }

// Selected is the index of the selected line.
func (c *Controller) Selected() int { return c.selected }

// Title is the text shown in the top border.
func (c *Controller) Title() string { return c.title }

// SetLinks points the deep links at a new date range, for reports of a
// different query day.
func (c *Controller) SetLinks(l Links) { c.formatter.Links = l }

// visible is the number of content rows between the borders.
func (c *Controller) visible() int {
	return c.height - 2
}

// SetStatus sets text appended to the tallies in the title of the next
// LoadResults, e.g. when the report was last updated.
func (c *Controller) SetStatus(status string) { c.status = status }

// LoadResults replaces the buffer with the lines of report and repaints.
// The selection is kept where possible so that refreshes do not jump.
func (c *Controller) LoadResults(report model.Report) error {
	lines, tally := c.formatter.Format(report)
	c.lines = lines
	title := tally.Title()
	if c.status != "" {
		title += " ─ " + c.status
	}
	if c.selected >= len(c.lines) {
		c.selected = max(0, len(c.lines)-1)
	}
	return c.Repaint(title)
}

// Refresh repaints with the current title, e.g. after a resize.
func (c *Controller) Refresh() error {
	return c.Repaint(c.title)
}

func (c *Controller) measure() {
	w, h, err := c.term.Size()
	if err != nil || w < MinWidth {
		w = MinWidth
	}
	if err != nil || h < MinHeight {
		h = MinHeight
	}
	c.width, c.height = w, h
}

// clampOffset keeps the offset in range and the selection visible.
func (c *Controller) clampOffset() {
	visible := c.visible()
	if c.selected < c.offset {
		c.offset = c.selected
	}
	if c.selected >= c.offset+visible {
		c.offset = c.selected - visible + 1
	}
	c.offset = max(0, min(c.offset, len(c.lines)-visible))
}

// Repaint redraws the whole frame with title in the top border.
func (c *Controller) Repaint(title string) error {
	c.title = title
	c.measure()
	c.clampOffset()

	var b strings.Builder
	b.WriteString(screen.HideCursor)
	b.WriteString(screen.MoveTo(1, 1))
	b.WriteString(screen.ClearScreen())
	b.WriteString(c.topBorder())

	visible := c.visible()
	for i := range visible {
		b.WriteString(screen.MoveTo(i+2, 1))
		b.WriteString(c.row(i))
	}

	b.WriteString(screen.MoveTo(c.height, 1))
	b.WriteString(c.bottomBorder())
	b.WriteString(c.park())

	_, err := c.term.Write([]byte(b.String()))
	return err
}

func (c *Controller) topBorder() string {
	inner := c.width - 2
	label := "─ " + c.title + " "
	if screen.Width(label) > inner {
		label = screen.Fit(label, inner)
	}
	return "┌" + label + strings.Repeat("─", inner-screen.Width(label)) + "┐"
}

func (c *Controller) bottomBorder() string {
	inner := c.width - 2
	if inner < BarColumn+timeline.Width {
		return "└" + strings.Repeat("─", inner) + "┘"
	}
	return "└" + strings.Repeat("─", BarColumn) +
		timeline.NowMarker(c.now()) +
		strings.Repeat("─", inner-BarColumn-timeline.Width) + "┘"
}

// row renders content row i of the frame, counted from the top border.
func (c *Controller) row(i int) string {
	index := c.offset + i
	left := edgeGlyph
	content := ""
	if index < len(c.lines) {
		content = c.lines[index]
		if index == c.selected {
			left = selectGlyph
		}
	}
	return left + screen.Fit(content, c.width-2) + c.scrollbar(i)
}

func (c *Controller) scrollbar(i int) string {
	visible := c.visible()
	total := len(c.lines)
	if total <= visible {
		return edgeGlyph
	}
	begin := c.offset * visible / total
	size := max(1, visible*visible/total)
	if i >= begin && i < begin+size {
		return thumbGlyph
	}
	return trackGlyph
}

// park leaves the cursor where every paint leaves it.
func (c *Controller) park() string {
	return screen.MoveTo(c.height, 1)
}

// MoveSelection moves the selection by delta lines, clamped to the buffer.
// Moving within the viewport only redraws the two marker cells; moving past
// its edge scrolls and repaints the frame.
func (c *Controller) MoveSelection(delta int) error {
	if len(c.lines) == 0 {
		return nil
	}
	next := max(0, min(c.selected+delta, len(c.lines)-1))
	if next == c.selected {
		return nil
	}
	prev := c.selected
	c.selected = next

	if next < c.offset || next >= c.offset+c.visible() {
		return c.Refresh()
	}

	var b strings.Builder
	b.WriteString(screen.MoveTo(prev-c.offset+2, 1))
	b.WriteString(edgeGlyph)
	b.WriteString(screen.MoveTo(next-c.offset+2, 1))
	b.WriteString(selectGlyph)
	b.WriteString(c.park())
	_, err := c.term.Write([]byte(b.String()))
	return err
}

// Handle applies a key. It reports true when the key asks to quit.
func (c *Controller) Handle(key screen.Key) (bool, error) {
	switch key {
	case screen.KeyUp:
		return false, c.MoveSelection(-1)
	case screen.KeyDown:
		return false, c.MoveSelection(1)
	case screen.KeyPageUp:
		return false, c.MoveSelection(-c.visible())
	case screen.KeyPageDown:
		return false, c.MoveSelection(c.visible())
	case screen.KeyHome:
		return false, c.MoveSelection(-len(c.lines))
	case screen.KeyEnd:
		return false, c.MoveSelection(len(c.lines))
	case screen.KeyRefresh:
		return false, c.Refresh()
	case screen.KeyQuit:
		return true, c.Quit()
	}
	return false, nil
}

// Quit gives the terminal back: the cursor is shown again below the frame.
func (c *Controller) Quit() error {
	_, err := c.term.Write([]byte(screen.MoveTo(c.height, 1) + screen.Reset + screen.ShowCursor + "\r\n"))
	return err
}
