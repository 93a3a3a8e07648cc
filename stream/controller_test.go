package stream

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/grblstream/machine/grbl"
)

const testBanner = "Grbl 1.1h ['$' for help]"

// fakeController answers like a GRBL controller: every line gets `ok` unless
// a response is configured for it.
type fakeController struct {
	mx      sync.Mutex
	out     bytes.Buffer
	written bytes.Buffer
	partial []byte
	timeout time.Duration

	// Banner makes the controller reset on connect instead of answering the
	// wake sequence.
	Banner bool
	// Silent controllers never answer anything.
	Silent bool
	// Busy is the number of status queries answered with Run before Idle.
	Busy int
	// BusyAfterLine resets Busy whenever a program line arrives.
	BusyAfterLine int
	Responses     map[string]string

	lines     []string
	queries   int
	announced bool
}

func (c *fakeController) send(s string) {
	if !c.Silent {
		c.out.WriteString(s + "\r\n")
	}
}

func (c *fakeController) Write(b []byte) (int, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.written.Write(b)

	for _, ch := range b {
		switch ch {
		case grbl.StatusQuery:
			c.queries++
			status := "Idle"
			if c.Busy > 0 {
				c.Busy--
				status = "Run"
			}
			c.send("<" + status + "|MPos:0.000,0.000,0.000|FS:0,0>")
			continue
		case grbl.FeedHold, grbl.CycleStart, grbl.SoftReset, '\r':
			continue
		case '\n':
		default:
			c.partial = append(c.partial, ch)
			continue
		}

		line := string(c.partial)
		c.partial = c.partial[:0]
		switch {
		case line == "" && c.Banner:
			if !c.announced {
				c.announced = true
				c.send("\r\n" + testBanner)
			}
		case line == "":
			c.send("ok")
		case line == grbl.ModeQuery:
			c.send("[GC:G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0]")
			c.send("ok")
		default:
			c.lines = append(c.lines, line)
			c.Busy = c.BusyAfterLine
			if resp, ok := c.Responses[line]; ok {
				c.send(resp)
			} else {
				c.send("ok")
			}
		}
	}
	return len(b), nil
}

func (c *fakeController) Read(b []byte) (int, error) {
	c.mx.Lock()
	if c.out.Len() == 0 {
		wait := min(c.timeout, time.Millisecond)
		c.mx.Unlock()
		time.Sleep(wait)
		return 0, nil
	}
	defer c.mx.Unlock()
	return c.out.Read(b)
}

func (c *fakeController) SetReadTimeout(d time.Duration) error {
	c.mx.Lock()
	c.timeout = d
	c.mx.Unlock()
	return nil
}

func (c *fakeController) Written() string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.written.String()
}

// Lines returns the program lines received, excluding the wake sequence
// and mode queries.
func (c *fakeController) Lines() []string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *fakeController) Queries() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.queries
}

type chanKeys chan Key

func (k chanKeys) Keys() <-chan Key { return k }

func keys(ks ...Key) chanKeys {
	ch := make(chanKeys, 16)
	for _, k := range ks {
		ch <- k
	}
	return ch
}

func program(lines ...string) *LinesSource {
	src := &LinesSource{}
	for _, l := range lines {
		src.Lines = append(src.Lines, lineOf(l))
	}
	return src
}

func waitFor(cond func() bool) {
	for !cond() {
		time.Sleep(time.Millisecond)
	}
}

// wrote reports whether s shows up in the controller's input.
func (c *fakeController) wrote(s string) bool {
	return strings.Contains(c.Written(), s)
}
