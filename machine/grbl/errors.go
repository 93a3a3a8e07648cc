package grbl

import (
	"errors"
	"strconv"
	"time"
)

// ErrReset is returned if a reset is encountered before all commands are run.
var ErrReset = errors.New("grbl reset")

// ProtocolViolationError is returned for input the protocol does not allow.
type ProtocolViolationError struct {
	Line   string
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return "protocol violation: " + e.Reason + ": " + strconv.Quote(e.Line)
}

// CommandRejectedError is returned when the controller answers a command
// with `error:...`.
type CommandRejectedError struct {
	Command string
	Message string
}

func (e *CommandRejectedError) Error() string {
	return "error on gcode: '" + e.Command + "' " + e.Message
}

// InitializationTimeoutError is returned when no status report arrives
// within the startup window.
type InitializationTimeoutError struct {
	Timeout time.Duration
	Version string
}

func (e *InitializationTimeoutError) Error() string {
	msg := "no status report within " + e.Timeout.String()
	if e.Version == "" {
		return msg + " (no banner received)"
	}
	return msg + " (" + e.Version + ")"
}

// AlarmError is returned when the controller raises an alarm.
type AlarmError struct {
	Message string
}

func (e *AlarmError) Error() string { return "grbl alarm: " + e.Message }
