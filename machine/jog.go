package machine

import (
	"github.com/mastercactapus/grblstream/gcode"
)

// Line is a line of G-code along with the modal words it establishes.
type Line struct {
	Text  string
	Modal gcode.Block
}

// JogOptions configure a single jog step.
type JogOptions struct {
	Distance float64
	FeedRate float64
	Inches   bool

	// If true, use `$J=` jogging (Grbl v1.1+), which leaves the
	// modal state untouched. Otherwise plain G-code is used.
	GrblJogging bool
}

func (opt JogOptions) units() gcode.Word {
	if opt.Inches {
		return gcode.Word{W: 'G', Arg: 20}
	}
	return gcode.Word{W: 'G', Arg: 21}
}

var relative = gcode.Word{W: 'G', Arg: 91}

// Correction returns the words needed to put the machine in the jogging mode
// (incremental distance, jog units), given its current modal state.
//
// It is empty when using `$J=` jogging or when the modes already match.
func (opt JogOptions) Correction(modal gcode.ModalState) gcode.Block {
	if opt.GrblJogging {
		return nil
	}
	var b gcode.Block
	if w, ok := modal.Get(gcode.ModalGroupDistanceMode); !ok || w != relative {
		b = append(b, relative)
	}
	if w, ok := modal.Get(gcode.ModalGroupUnits); !ok || w != opt.units() {
		b = append(b, opt.units())
	}
	return b
}

// Generate returns the lines to move axis by dir*Distance. Mode correction,
// when needed, comes before the movement.
func (opt JogOptions) Generate(axis byte, dir float64, modal gcode.ModalState) []Line {
	move := gcode.Word{W: axis, Arg: dir * opt.Distance}

	if opt.GrblJogging {
		b := gcode.Block{relative, opt.units(), move, {W: 'F', Arg: opt.FeedRate}}
		return []Line{{Text: "$J=" + b.String()}}
	}

	var lines []Line
	if c := opt.Correction(modal); len(c) > 0 {
		lines = append(lines, Line{Text: c.String(), Modal: c})
	}
	rapid := gcode.Word{W: 'G', Arg: 0}
	lines = append(lines, Line{
		Text:  gcode.Block{rapid, move}.String(),
		Modal: gcode.Block{rapid},
	})
	return lines
}

// ZeroWork returns a line setting the work origin of the active coordinate
// system to the current position.
func ZeroWork() Line {
	return Line{Text: "G10L20P0X0Y0Z0"}
}
