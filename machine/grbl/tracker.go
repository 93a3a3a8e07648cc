package grbl

import (
	"github.com/mastercactapus/grblstream/gcode"
	"github.com/mastercactapus/grblstream/machine"
)

// Tracker owns the machine state snapshot and applies reports to it.
//
// It is not safe for concurrent use; the session loop owns it.
type Tracker struct {
	state    machine.State
	baseline gcode.ModalState
	onChange func(machine.State)
}

// NewTracker creates a Tracker with everything unknown.
func NewTracker() *Tracker {
	return &Tracker{}
}

// OnChange registers fn to be called with a copy of the state after every
// update.
func (t *Tracker) OnChange(fn func(machine.State)) { t.onChange = fn }

func (t *Tracker) changed() {
	if t.onChange != nil {
		t.onChange(t.state)
	}
}

// State returns a copy of the current state.
func (t *Tracker) State() machine.State { return t.state }

// Idle is true when the last reported status is exactly `Idle`.
func (t *Tracker) Idle() bool { return t.state.Idle() }

// ApplyStatusReport updates the fields carried by r. The work offset is
// applied first, since positions are interpreted against it: a report that
// carries only one of MPos/WPos has the other derived.
func (t *Tracker) ApplyStatusReport(r *StatusReport) {
	s := &t.state
	s.Status = r.Status

	if r.WCO != nil {
		s.WCO = *r.WCO
	}
	switch {
	case r.MPos != nil && r.WPos != nil:
		s.MPos, s.WPos = *r.MPos, *r.WPos
	case r.MPos != nil:
		s.MPos = *r.MPos
		s.WPos = s.MPos.Sub(s.WCO)
	case r.WPos != nil:
		s.WPos = *r.WPos
		s.MPos = s.WPos.Add(s.WCO)
	case r.WCO != nil:
		s.WPos = s.MPos.Sub(s.WCO)
	}

	if r.Feed != nil {
		s.Feed = *r.Feed
	}
	if r.Spindle != nil {
		s.Spindle = *r.Spindle
	}
	t.changed()
}

// ApplyModeReport replaces the modal state with the words of a `[GC:...]`
// report.
func (t *Tracker) ApplyModeReport(words gcode.Block) {
	t.state.Modal = gcode.NewModalState(words)
	for _, w := range words {
		if w.W == 'T' {
			t.state.Tool = w.Arg
		}
	}
	t.changed()
}

// ApplyModalWords records modal words from a command the controller has
// accepted.
func (t *Tracker) ApplyModalWords(words gcode.Block) {
	if len(words) == 0 {
		return
	}
	t.state.Modal.Apply(words)
	t.changed()
}

// SnapshotForRevert records the current modal state as the baseline that
// RevertCommands restores, and returns it.
func (t *Tracker) SnapshotForRevert() gcode.ModalState {
	t.baseline = t.state.Modal
	return t.baseline
}

// RevertCommands returns the words restoring the baseline modal state.
func (t *Tracker) RevertCommands() gcode.Block {
	return gcode.RevertCommands(t.baseline, t.state.Modal)
}
