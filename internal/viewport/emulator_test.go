package viewport

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// fakeTerminal records everything written to it and reports a fixed size.
type fakeTerminal struct {
	bytes.Buffer
	width, height int
	err           error
}

func (f *fakeTerminal) Size() (int, int, error) {
	return f.width, f.height, f.err
}

// emulator replays the subset of VT sequences the controller emits onto a
// character grid so tests can look at what a terminal would show.
type emulator struct {
	cells    [][]string
	row, col int
}

func newEmulator(width, height int) *emulator {
	e := &emulator{row: 1, col: 1}
	e.cells = make([][]string, height)
	for i := range e.cells {
		e.cells[i] = make([]string, width)
	}
	e.clear()
	return e
}

func (e *emulator) clear() {
	for _, line := range e.cells {
		for i := range line {
			line[i] = " "
		}
	}
}

func (e *emulator) feed(s string) {
	var state byte
	for len(s) > 0 {
		seq, width, n, newState := ansi.DecodeSequence(s, state, nil)
		state = newState
		s = s[n:]
		switch {
		case width > 0:
			if e.row >= 1 && e.row <= len(e.cells) && e.col >= 1 && e.col <= len(e.cells[e.row-1]) {
				e.cells[e.row-1][e.col-1] = seq
			}
			e.col += width
		case strings.HasPrefix(seq, "\x1b[") && strings.HasSuffix(seq, "H"):
			e.row, e.col = 1, 1
			parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(seq, "\x1b["), "H"), ";")
			if n, err := strconv.Atoi(parts[0]); err == nil {
				e.row = n
			}
			if len(parts) > 1 {
				if n, err := strconv.Atoi(parts[1]); err == nil {
					e.col = n
				}
			}
		case strings.HasPrefix(seq, "\x1b[") && strings.HasSuffix(seq, "J"):
			e.clear()
		}
	}
}

func (e *emulator) line(row int) string {
	return strings.Join(e.cells[row-1], "")
}

func (e *emulator) screen() string {
	var lines []string
	for i := range e.cells {
		lines = append(lines, e.line(i+1))
	}
	return strings.Join(lines, "\n")
}
