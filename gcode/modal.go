package gcode

// ModalState holds the active word for every tracked modal group.
//
// A zero Word means the group's value is unknown.
type ModalState [modalGroupCount]Word

// DefaultModalState returns the power-on modal state of a GRBL controller.
func DefaultModalState() ModalState {
	var m ModalState

	// using grbl defaults
	m.Set(Word{W: 'G', Arg: 0})
	m.Set(Word{W: 'G', Arg: 54})
	m.Set(Word{W: 'G', Arg: 17})
	m.Set(Word{W: 'G', Arg: 21})
	m.Set(Word{W: 'G', Arg: 90})
	m.Set(Word{W: 'G', Arg: 94})
	m.Set(Word{W: 'M', Arg: 5})
	m.Set(Word{W: 'M', Arg: 9})

	return m
}

// NewModalState builds a state from a word list, such as the contents of a
// `[GC:...]` report. Words outside a tracked group are ignored.
func NewModalState(words []Word) ModalState {
	var m ModalState
	m.Apply(words)
	return m
}

// Set records w as the active word of its group. It returns false if w does
// not belong to a tracked group.
func (m *ModalState) Set(w Word) bool {
	g := w.ModalGroup()
	if !g.Tracked() {
		return false
	}
	m[g] = w
	return true
}

// Apply sets every word in order, so later words win within a group.
func (m *ModalState) Apply(words []Word) {
	for _, w := range words {
		m.Set(w)
	}
}

// Get returns the active word of g and whether it is known.
func (m ModalState) Get(g ModalGroup) (Word, bool) {
	if !g.Tracked() {
		return Word{}, false
	}
	return m[g], m[g].W != 0
}

// Words lists the known words in group order.
func (m ModalState) Words() Block {
	var b Block
	for g := ModalGroup(0); g < modalGroupCount; g++ {
		if w, ok := m.Get(g); ok {
			b = append(b, w)
		}
	}
	return b
}

func (m ModalState) Inches() bool         { return m[ModalGroupUnits] == Word{W: 'G', Arg: 20} }
func (m ModalState) RelativeMotion() bool { return m[ModalGroupDistanceMode] == Word{W: 'G', Arg: 91} }

// RevertCommands returns the words that restore initial over current: for
// every group known in either state whose values differ, the initial word.
// Groups unknown in initial cannot be restored and are skipped.
func RevertCommands(initial, current ModalState) Block {
	var b Block
	for g := ModalGroup(0); g < modalGroupCount; g++ {
		if !g.Tracked() {
			continue
		}
		w, ok := initial.Get(g)
		if !ok {
			continue
		}
		if current[g] != w {
			b = append(b, w)
		}
	}
	return b
}
