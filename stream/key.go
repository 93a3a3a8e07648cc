package stream

// Key is an operator key press.
type Key string

const (
	KeyUp       Key = "up"
	KeyDown     Key = "down"
	KeyLeft     Key = "left"
	KeyRight    Key = "right"
	KeyPageUp   Key = "pgup"
	KeyPageDown Key = "pgdn"
	KeyEnter    Key = "enter"

	KeyQuit       Key = "q"
	KeyStepUp     Key = "+"
	KeyStepDown   Key = "-"
	KeyZero       Key = "0"
	KeyFeedHold   Key = "!"
	KeyCycleStart Key = "~"
)

// KeySource delivers operator key presses.
type KeySource interface {
	Keys() <-chan Key
}

// nextKey returns a pending key press without blocking.
func nextKey(ks KeySource) (Key, bool) {
	if ks == nil {
		return "", false
	}
	select {
	case k, ok := <-ks.Keys():
		return k, ok
	default:
		return "", false
	}
}
