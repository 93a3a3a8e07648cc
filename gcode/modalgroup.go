package gcode

// ModalGroup identifies a set of mutually exclusive modal words.
//
// Only the groups a GRBL-class controller reports in its `[GC:...]` line are
// enumerated; everything else is ModalGroupNone.
type ModalGroup byte

const (
	ModalGroupNone ModalGroup = iota
	ModalGroupNonModal
	ModalGroupMotion
	ModalGroupPlaneSelection
	ModalGroupDistanceMode
	ModalGroupArcDistanceMode
	ModalGroupFeedRateMode
	ModalGroupUnits
	ModalGroupCutterCompensationMode
	ModalGroupToolLength
	ModalGroupCoordinateSystem
	ModalGroupControlMode
	ModalGroupStopping
	ModalGroupSpindle
	ModalGroupCoolant
	ModalGroupOverride

	modalGroupCount
)

var modalGroupNames = [modalGroupCount]string{
	ModalGroupNone:                   "none",
	ModalGroupNonModal:               "non-modal",
	ModalGroupMotion:                 "motion",
	ModalGroupPlaneSelection:         "plane",
	ModalGroupDistanceMode:           "distance",
	ModalGroupArcDistanceMode:        "arc-distance",
	ModalGroupFeedRateMode:           "feed-rate-mode",
	ModalGroupUnits:                  "units",
	ModalGroupCutterCompensationMode: "cutter-compensation",
	ModalGroupToolLength:             "tool-length",
	ModalGroupCoordinateSystem:       "coordinate-system",
	ModalGroupControlMode:            "control-mode",
	ModalGroupStopping:               "stopping",
	ModalGroupSpindle:                "spindle",
	ModalGroupCoolant:                "coolant",
	ModalGroupOverride:               "override",
}

func (g ModalGroup) String() string {
	if g >= modalGroupCount {
		return "unknown"
	}
	return modalGroupNames[g]
}

// Tracked reports whether the group is held in a ModalState.
//
// Program-flow words (M0, M2, ...) belong to a group but are never replayed,
// so they are not tracked.
func (g ModalGroup) Tracked() bool {
	switch g {
	case ModalGroupNone, ModalGroupNonModal, ModalGroupStopping:
		return false
	}
	return g < modalGroupCount
}

func (w Word) ModalGroup() ModalGroup {
	if w.W == 'G' {
		switch w.Arg {
		case 4, 10, 28, 28.1, 30, 30.1, 53, 92, 92.1:
			return ModalGroupNonModal
		case 0, 1, 2, 3, 38.2, 38.3, 38.4, 38.5, 80:
			return ModalGroupMotion
		case 17, 18, 19:
			return ModalGroupPlaneSelection
		case 90, 91:
			return ModalGroupDistanceMode
		case 91.1:
			return ModalGroupArcDistanceMode
		case 93, 94:
			return ModalGroupFeedRateMode
		case 20, 21:
			return ModalGroupUnits
		case 40:
			return ModalGroupCutterCompensationMode
		case 43.1, 49:
			return ModalGroupToolLength
		case 54, 55, 56, 57, 58, 59:
			return ModalGroupCoordinateSystem
		case 61:
			return ModalGroupControlMode
		}
	} else if w.W == 'M' {
		switch w.Arg {
		case 0, 1, 2, 30:
			return ModalGroupStopping
		case 3, 4, 5:
			return ModalGroupSpindle
		case 7, 8, 9:
			return ModalGroupCoolant
		case 56:
			return ModalGroupOverride
		}
	}

	return ModalGroupNone
}
