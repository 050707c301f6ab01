package screen

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Terminal is the output side of a terminal: something to write escape
// sequences to that can report its size.
type Terminal interface {
	io.Writer
	Size() (width, height int, err error)
}

// Console is a Terminal on a real tty.
type Console struct {
	out *os.File
	in  *os.File

	saved *term.State
}

func NewConsole(in, out *os.File) *Console {
	return &Console{in: in, out: out}
}

func (c *Console) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

func (c *Console) Size() (int, int, error) {
	return term.GetSize(int(c.out.Fd()))
}

// IsTerminal reports whether both ends are attached to a tty.
func (c *Console) IsTerminal() bool {
	return term.IsTerminal(int(c.in.Fd())) && term.IsTerminal(int(c.out.Fd()))
}

// MakeRaw switches the input side to raw mode so keys arrive unbuffered.
func (c *Console) MakeRaw() error {
	state, err := term.MakeRaw(int(c.in.Fd()))
	if err != nil {
		return err
	}
	c.saved = state
	return nil
}

// Restore undoes MakeRaw. It is safe to call more than once.
func (c *Console) Restore() error {
	if c.saved == nil {
		return nil
	}
	err := term.Restore(int(c.in.Fd()), c.saved)
	c.saved = nil
	return err
}

// Input returns the reader keys are read from.
func (c *Console) Input() io.Reader {
	return c.in
}
