package grbl

import (
	"errors"
	"fmt"
	"io"
)

// DefaultBufferSize is the size of GRBL's serial receive buffer.
const DefaultBufferSize = 128

// ErrLineTooLong is returned for a command that could never fit in the
// controller's receive buffer.
var ErrLineTooLong = errors.New("line exceeds controller buffer")

// FlowController streams commands without overrunning the controller's
// receive buffer.
//
// Every transmitted byte, terminator included, is counted against the buffer
// until the controller acknowledges the line. The controller answers lines
// strictly in order, so an acknowledgement always belongs to the oldest
// outstanding command.
type FlowController struct {
	// HaltOnReject stops automatic dispatch when a command is rejected,
	// until Resume is called.
	HaltOnReject bool

	w         io.Writer
	maxBuffer int

	pending []*Command
	sent    []*Command
	used    int
	halted  bool
}

// NewFlowController creates a FlowController transmitting to w. A maxBuffer
// of zero uses DefaultBufferSize.
func NewFlowController(w io.Writer, maxBuffer int) *FlowController {
	if maxBuffer <= 0 {
		maxBuffer = DefaultBufferSize
	}
	return &FlowController{w: w, maxBuffer: maxBuffer}
}

// Enqueue adds c to the pending queue and dispatches what fits. It returns
// true if anything remains blocked.
func (f *FlowController) Enqueue(c *Command) (bool, error) {
	if c.Len() > f.maxBuffer {
		c.markStatus(Failed, "too long")
		return len(f.pending) > 0, fmt.Errorf("%w: %d > %d bytes: %q", ErrLineTooLong, c.Len(), f.maxBuffer, c.Text)
	}
	c.state = Queued
	f.pending = append(f.pending, c)
	return f.Dispatch()
}

// Dispatch transmits pending commands, in order, while they fit in the
// controller's buffer. It returns true if anything remains blocked.
func (f *FlowController) Dispatch() (bool, error) {
	for len(f.pending) > 0 && !f.halted {
		c := f.pending[0]
		if c.Empty() {
			f.pop()
			c.markStatus(Acknowledged, "ok")
			continue
		}
		if f.used+c.Len() > f.maxBuffer {
			break
		}
		_, err := io.WriteString(f.w, c.line)
		if err != nil {
			return true, fmt.Errorf("write: %w", err)
		}
		f.pop()
		f.sent = append(f.sent, c)
		f.used += c.Len()
		c.markSent()
	}

	return len(f.pending) > 0, nil
}

func (f *FlowController) pop() {
	f.pending[0] = nil
	f.pending = f.pending[1:]
}

// Acknowledge resolves the oldest sent command with the controller's
// response line and dispatches into the freed space.
//
// An `error` response returns a *CommandRejectedError; the command is still
// removed, since the controller discards the offending line.
func (f *FlowController) Acknowledge(line string) (*Command, error) {
	if len(f.sent) == 0 {
		return nil, &ProtocolViolationError{Line: line, Reason: "acknowledgement with no command outstanding"}
	}
	c := f.sent[0]
	f.sent[0] = nil
	f.sent = f.sent[1:]
	f.used -= c.Len()

	var rejected error
	if hasPrefixFold(line, "error") {
		c.markStatus(Failed, line)
		rejected = &CommandRejectedError{Command: c.Text, Message: line}
		if f.HaltOnReject {
			f.halted = true
		}
	} else {
		c.markStatus(Acknowledged, line)
	}

	_, err := f.Dispatch()
	if rejected != nil {
		return c, errors.Join(rejected, err)
	}
	return c, err
}

// Halt stops automatic dispatch; sent commands are still acknowledged.
func (f *FlowController) Halt() { f.halted = true }

// Resume re-enables dispatch and sends what fits.
func (f *FlowController) Resume() (bool, error) {
	f.halted = false
	return f.Dispatch()
}

func (f *FlowController) Halted() bool { return f.halted }

// Reset fails every outstanding command with status, for when the controller
// has reset and discarded its buffer or the session is ending. It returns the
// number of commands failed.
func (f *FlowController) Reset(status string) int {
	n := len(f.sent) + len(f.pending)
	for _, c := range f.sent {
		c.markStatus(Failed, status)
	}
	for _, c := range f.pending {
		c.markStatus(Failed, status)
	}
	f.sent = nil
	f.pending = nil
	f.used = 0
	return n
}

// Finished is true once nothing is pending or awaiting acknowledgement.
func (f *FlowController) Finished() bool { return len(f.pending) == 0 && len(f.sent) == 0 }

// UsedBuffer is the number of bytes sent but not yet acknowledged.
func (f *FlowController) UsedBuffer() int { return f.used }

func (f *FlowController) MaxBuffer() int    { return f.maxBuffer }
func (f *FlowController) PendingCount() int { return len(f.pending) }
func (f *FlowController) SentCount() int    { return len(f.sent) }
