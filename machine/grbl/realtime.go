package grbl

// Realtime commands are single bytes acted on immediately by the controller;
// they take no space in its receive buffer and are not acknowledged.
const (
	StatusQuery byte = '?'
	FeedHold    byte = '!'
	CycleStart  byte = '~'
	SoftReset   byte = 0x18
)

// WakeSequence is written on connect to flush any partial line left in the
// controller.
const WakeSequence = "\r\n\r\n"

// ModeQuery asks for a `[GC:...]` report.
const ModeQuery = "$G"
