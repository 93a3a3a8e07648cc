package grbl

import (
	"strings"
)

// Kind is the shape of a line received from the controller.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindStatusReport
	KindModeReport
	KindMessage
	KindAck
	KindBanner
	KindAlarm
	KindSetting
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindStatusReport:
		return "status-report"
	case KindModeReport:
		return "mode-report"
	case KindMessage:
		return "message"
	case KindAck:
		return "ack"
	case KindBanner:
		return "banner"
	case KindAlarm:
		return "alarm"
	case KindSetting:
		return "setting"
	case KindEmpty:
		return "empty"
	}
	return "unrecognized"
}

// Response is a classified line.
type Response struct {
	Kind Kind
	Line string

	// Body is the content inside the delimiters: `<...>` for status
	// reports, after `[GC:` for mode reports, `[...]` for messages and after
	// `ALARM:` for alarms. Otherwise it is the whole line.
	Body string
}

// IsError is true for an `error...` acknowledgement.
func (r Response) IsError() bool {
	return r.Kind == KindAck && hasPrefixFold(r.Line, "error")
}

// Err returns a *ProtocolViolationError for unrecognized lines.
func (r Response) Err() error {
	if r.Kind != KindUnrecognized {
		return nil
	}
	return &ProtocolViolationError{Line: r.Line, Reason: "unrecognized response"}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func enclosed(s string, open, close byte) bool {
	return len(s) >= 2 && s[0] == open && s[len(s)-1] == close
}

// Classify determines the kind of a line, checked in priority order:
// status report, mode report, message, acknowledgement, banner, alarm,
// setting, blank.
func Classify(line string) Response {
	s := strings.TrimSpace(line)
	r := Response{Line: s, Body: s}

	switch {
	case enclosed(s, '<', '>'):
		r.Kind = KindStatusReport
		r.Body = s[1 : len(s)-1]
	case enclosed(s, '[', ']') && strings.HasPrefix(s, "[GC:"):
		r.Kind = KindModeReport
		r.Body = s[len("[GC:") : len(s)-1]
	case enclosed(s, '[', ']'):
		r.Kind = KindMessage
		r.Body = s[1 : len(s)-1]
	case hasPrefixFold(s, "ok"), hasPrefixFold(s, "error"):
		r.Kind = KindAck
	case hasPrefixFold(s, "grbl"):
		r.Kind = KindBanner
	case strings.HasPrefix(s, "ALARM:"):
		r.Kind = KindAlarm
		r.Body = s[len("ALARM:"):]
	case strings.HasPrefix(s, "$"):
		r.Kind = KindSetting
	case s == "":
		r.Kind = KindEmpty
	default:
		r.Kind = KindUnrecognized
	}

	return r
}
