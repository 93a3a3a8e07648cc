package grbl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Port is a byte-oriented serial connection with a settable read timeout.
//
// A Read that times out returns 0, nil.
type Port interface {
	io.ReadWriter
	SetReadTimeout(time.Duration) error
}

// Transport reads and writes whole lines over a Port.
//
// Writes are serialized and may be called from any goroutine. Reads must
// only happen from a single goroutine.
type Transport struct {
	port        Port
	readTimeout time.Duration

	mx sync.Mutex

	logMx sync.Mutex
	log   io.Writer

	buf   []byte
	chunk []byte

	now func() time.Time
}

// NewTransport creates a Transport. readTimeout is the port's default
// per-call timeout, restored after every ReadLines.
func NewTransport(port Port, readTimeout time.Duration) *Transport {
	return &Transport{
		port:        port,
		readTimeout: readTimeout,
		chunk:       make([]byte, 256),
		now:         time.Now,
	}
}

// SetLog enables the diagnostic log; every transfer is written to w as one
// timestamped line. A nil w disables it.
func (t *Transport) SetLog(w io.Writer) {
	t.logMx.Lock()
	t.log = w
	t.logMx.Unlock()
}

func (t *Transport) logTransfer(prefix string, data []byte) {
	t.logMx.Lock()
	defer t.logMx.Unlock()
	if t.log == nil {
		return
	}
	msg := strings.NewReplacer("\n", `\n`, "\r", `\r`).Replace(string(data))
	ts := float64(t.now().UnixNano()) / float64(time.Second)
	fmt.Fprintf(t.log, "[%.2f] %s %s\n", ts, prefix, msg)
}

// Write transmits p as-is.
func (t *Transport) Write(p []byte) (int, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.logTransfer(">>", p)
	return t.port.Write(p)
}

// WriteString transmits s as-is.
func (t *Transport) WriteString(s string) error {
	_, err := t.Write([]byte(s))
	return err
}

// WriteByte will write directly to the device.
//
// Use for realtime commands like `?`.
func (t *Transport) WriteByte(b byte) error {
	_, err := t.Write([]byte{b})
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, syscall.EINTR) {
		return true
	}
	var tmp interface{ Temporary() bool }
	return errors.As(err, &tmp) && tmp.Temporary()
}

func (t *Transport) nextLine() (string, bool) {
	i := bytes.IndexByte(t.buf, '\n')
	if i < 0 {
		return "", false
	}
	t.logTransfer("<<", t.buf[:i+1])
	line := strings.TrimSuffix(string(t.buf[:i]), "\r")
	t.buf = append(t.buf[:0], t.buf[i+1:]...)
	return line, true
}

// ReadLines returns the lines received within timeout, without terminators.
//
// Each read on the port is given the time remaining, so the sequence ends
// once timeout has elapsed; that is not an error. Partial lines are kept for
// the next call. Transient read errors are retried while time remains; any
// other error is yielded and ends the sequence.
func (t *Transport) ReadLines(timeout time.Duration) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := t.now()
		defer t.port.SetReadTimeout(t.readTimeout)

		for {
			if line, ok := t.nextLine(); ok {
				if !yield(line, nil) {
					return
				}
				continue
			}

			remaining := timeout - t.now().Sub(start)
			if remaining <= 0 {
				return
			}
			err := t.port.SetReadTimeout(remaining)
			if err != nil {
				yield("", fmt.Errorf("set read timeout: %w", err))
				return
			}

			n, err := t.port.Read(t.chunk)
			t.buf = append(t.buf, t.chunk[:n]...)
			if err != nil && !isTransient(err) {
				yield("", fmt.Errorf("read: %w", err))
				return
			}
		}
	}
}

// Flush discards buffered input along with anything received within timeout.
// It returns the number of complete lines discarded.
func (t *Transport) Flush(timeout time.Duration) (n int, err error) {
	for _, err := range t.ReadLines(timeout) {
		if err != nil {
			return n, err
		}
		n++
	}
	t.buf = t.buf[:0]
	return n, nil
}
