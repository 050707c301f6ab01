package screen

import (
	"context"
	"io"

	"github.com/charmbracelet/x/ansi"
)

// Key is a decoded keypress the dashboard reacts to.
type Key int

const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyPageUp
	KeyPageDown
	KeyHome
	KeyEnd
	KeyRefresh
	KeyQuit
)

var keyBindings = map[string]Key{
	"\x1b[A":  KeyUp,
	"\x1bOA":  KeyUp,
	"k":       KeyUp,
	"\x1b[B":  KeyDown,
	"\x1bOB":  KeyDown,
	"j":       KeyDown,
	"\x1b[5~": KeyPageUp,
	"\x1b[6~": KeyPageDown,
	"\x1b[H":  KeyHome,
	"\x1bOH":  KeyHome,
	"\x1b[1~": KeyHome,
	"g":       KeyHome,
	"\x1b[F":  KeyEnd,
	"\x1bOF":  KeyEnd,
	"\x1b[4~": KeyEnd,
	"G":       KeyEnd,
	"r":       KeyRefresh,
	"\x0c":    KeyRefresh, // Ctrl-L
	"q":       KeyQuit,
	"\x1b":    KeyQuit,
	"\x03":    KeyQuit, // Ctrl-C in raw mode
	"\x04":    KeyQuit, // Ctrl-D
}

// DecodeKeys splits a chunk of raw terminal input into keys, dropping
// anything without a binding.
func DecodeKeys(b []byte) []Key {
	var keys []Key
	var state byte
	for len(b) > 0 {
		seq, _, n, newState := ansi.DecodeSequence(b, state, nil)
		state = newState
		if n <= 0 {
			break
		}
		b = b[n:]
		if k, ok := keyBindings[string(seq)]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// ReadKeys decodes keys from r and sends them on out until r fails or ctx is
// done. Each send blocks until the consumer takes the key.
func ReadKeys(ctx context.Context, r io.Reader, out chan<- Key) error {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, k := range DecodeKeys(buf[:n]) {
			select {
			case out <- k:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
	}
}
