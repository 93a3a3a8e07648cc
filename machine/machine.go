package machine

import (
	"github.com/mastercactapus/grblstream/coord"
	"github.com/mastercactapus/grblstream/gcode"
)

// Status labels reported by GRBL in the leading field of a status report.
const (
	StatusIdle  = "Idle"
	StatusRun   = "Run"
	StatusHold  = "Hold"
	StatusJog   = "Jog"
	StatusAlarm = "Alarm"
	StatusDoor  = "Door"
	StatusCheck = "Check"
	StatusHome  = "Home"
	StatusSleep = "Sleep"
)

// State is a snapshot of everything known about the controller.
type State struct {
	Status string
	MPos   coord.Point
	WPos   coord.Point
	WCO    coord.Point

	Feed    float64
	Spindle float64
	Tool    float64

	Modal gcode.ModalState
}

// Idle is true only for the exact `Idle` label; sub-states such as `Hold:0`
// are not idle.
func (s State) Idle() bool { return s.Status == StatusIdle }
