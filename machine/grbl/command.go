package grbl

import (
	"github.com/mastercactapus/grblstream/gcode"
)

// CommandState tracks a command through the flow controller.
type CommandState int

const (
	Queued CommandState = iota
	Sent
	Acknowledged
	Failed
)

func (s CommandState) String() string {
	switch s {
	case Queued:
		return "queued"
	case Sent:
		return "sent"
	case Acknowledged:
		return "acknowledged"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Observer is notified of a command's progress, for display only.
type Observer interface {
	MarkSent()
	MarkStatus(status string)
}

// Command is a single line bound for the controller.
type Command struct {
	// Text is the line as it was provided.
	Text string

	// Modal holds the modal words the command establishes once accepted.
	Modal gcode.Block

	Observer Observer

	line  string
	state CommandState
}

// NewCommand normalizes text for transmission. obs may be nil.
func NewCommand(text string, modal gcode.Block, obs Observer) *Command {
	c := &Command{
		Text:     text,
		Modal:    modal,
		Observer: obs,
	}
	if n := gcode.Normalize(text); n != "" {
		c.line = n + "\n"
	}
	return c
}

// Line returns the exact bytes transmitted, including the terminator.
// It is empty for a no-op command.
func (c *Command) Line() string { return c.line }

// Len is the number of bytes the command occupies in the controller's
// receive buffer.
func (c *Command) Len() int { return len(c.line) }

// Empty is true for commands with nothing to transmit.
func (c *Command) Empty() bool { return c.line == "" }

func (c *Command) State() CommandState { return c.state }

func (c *Command) markSent() {
	c.state = Sent
	if c.Observer != nil {
		c.Observer.MarkSent()
	}
}

func (c *Command) markStatus(state CommandState, status string) {
	c.state = state
	if c.Observer != nil {
		c.Observer.MarkStatus(status)
	}
}
