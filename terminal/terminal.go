// Package terminal reads operator key presses from a raw-mode terminal.
package terminal

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/mastercactapus/grblstream/stream"
)

// ErrNotTerminal is returned by Open for input that is not a terminal.
var ErrNotTerminal = errors.New("not a terminal")

// Terminal delivers key presses from a terminal in raw mode.
type Terminal struct {
	in   *os.File
	old  *term.State
	keys chan stream.Key

	closeOnce sync.Once
	done      chan struct{}
}

// Open switches in to raw mode and starts reading keys from it.
func Open(in *os.File) (*Terminal, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	t := &Terminal{
		in:   in,
		old:  old,
		keys: make(chan stream.Key, 16),
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *Terminal) Keys() <-chan stream.Key { return t.keys }

func (t *Terminal) readLoop() {
	defer close(t.keys)
	buf := make([]byte, 0, 64)
	chunk := make([]byte, 64)
	for {
		n, err := t.in.Read(chunk)
		buf = append(buf, chunk[:n]...)

		var keys []stream.Key
		keys, buf = Decode(buf)
		for _, k := range keys {
			select {
			case t.keys <- k:
			case <-t.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Close restores the terminal mode.
func (t *Terminal) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = term.Restore(int(t.in.Fd()), t.old)
	})
	return err
}

var escapes = map[string]stream.Key{
	"\x1b[A":  stream.KeyUp,
	"\x1b[B":  stream.KeyDown,
	"\x1b[C":  stream.KeyRight,
	"\x1b[D":  stream.KeyLeft,
	"\x1bOA":  stream.KeyUp,
	"\x1bOB":  stream.KeyDown,
	"\x1bOC":  stream.KeyRight,
	"\x1bOD":  stream.KeyLeft,
	"\x1b[5~": stream.KeyPageUp,
	"\x1b[6~": stream.KeyPageDown,
}

// maxEscape is the length of the longest recognized escape sequence.
const maxEscape = 4

func plainKey(c byte) (stream.Key, bool) {
	switch c {
	case '\r', '\n':
		return stream.KeyEnter, true
	case 0x03, 'q', 'Q':
		return stream.KeyQuit, true
	case '+', '=':
		return stream.KeyStepUp, true
	case '-', '_':
		return stream.KeyStepDown, true
	case '0':
		return stream.KeyZero, true
	case '!':
		return stream.KeyFeedHold, true
	case '~':
		return stream.KeyCycleStart, true
	}
	return "", false
}

// Decode returns the keys in b along with any trailing bytes that may be the
// start of an escape sequence. Unknown input is dropped.
func Decode(b []byte) (keys []stream.Key, rest []byte) {
	for len(b) > 0 {
		if b[0] != 0x1b {
			if k, ok := plainKey(b[0]); ok {
				keys = append(keys, k)
			}
			b = b[1:]
			continue
		}

		matched := false
		for seq, k := range escapes {
			if bytes.HasPrefix(b, []byte(seq)) {
				keys = append(keys, k)
				b = b[len(seq):]
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if len(b) < maxEscape && partialEscape(b) {
			break
		}

		// unknown sequence; skip the escape and let the rest decode
		b = b[1:]
	}
	return keys, append([]byte(nil), b...)
}

func partialEscape(b []byte) bool {
	for seq := range escapes {
		if len(b) < len(seq) && bytes.HasPrefix([]byte(seq), b) {
			return true
		}
	}
	return false
}

// CRLFWriter translates "\n" to "\r\n", for output to a terminal in raw mode.
type CRLFWriter struct {
	W io.Writer
}

func (c CRLFWriter) Write(p []byte) (int, error) {
	_, err := c.W.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n")))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
