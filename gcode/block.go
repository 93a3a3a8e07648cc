package gcode

import (
	"errors"
	"strings"
)

// Block is the set of words on one line.
type Block []Word

func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}

// Validate checks that no two words in the block share a modal group.
func (b Block) Validate() error {
	var checkModal [modalGroupCount]bool

	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		m := g.ModalGroup()
		if m == ModalGroupNone || m == ModalGroupNonModal {
			continue
		}
		if checkModal[m] {
			return errors.New("multiple words from same modal group")
		}
		checkModal[m] = true
	}

	return nil
}
