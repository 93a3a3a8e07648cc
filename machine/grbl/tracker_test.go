package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/grblstream/coord"
	"github.com/mastercactapus/grblstream/gcode"
	"github.com/mastercactapus/grblstream/machine"
)

func applyStatus(t *testing.T, tr *Tracker, line string) {
	t.Helper()
	r := Classify(line)
	require.Equal(t, KindStatusReport, r.Kind)
	rep, err := ParseStatusReport(r.Body)
	require.NoError(t, err)
	tr.ApplyStatusReport(rep)
}

func TestTracker_ApplyStatusReport(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.Idle())

	applyStatus(t, tr, "<Idle|MPos:1.000,2.000,3.000|FS:500,0>")
	s := tr.State()
	assert.Equal(t, coord.Point{X: 1, Y: 2, Z: 3}, s.MPos)
	assert.Equal(t, 500.0, s.Feed)
	assert.Equal(t, 0.0, s.Spindle)
	assert.True(t, tr.Idle())

	// absent fields keep their values
	applyStatus(t, tr, "<Run|FS:0,12000>")
	s = tr.State()
	assert.Equal(t, coord.Point{X: 1, Y: 2, Z: 3}, s.MPos)
	assert.Equal(t, 12000.0, s.Spindle)
	assert.False(t, tr.Idle())
}

func TestTracker_WorkOffsetFirst(t *testing.T) {
	tr := NewTracker()

	// the offset comes after the position in the report, but applies first
	applyStatus(t, tr, "<Idle|MPos:10.000,10.000,10.000|WCO:1.000,2.000,3.000>")
	s := tr.State()
	assert.Equal(t, coord.Point{X: 1, Y: 2, Z: 3}, s.WCO)
	assert.Equal(t, coord.Point{X: 9, Y: 8, Z: 7}, s.WPos)

	applyStatus(t, tr, "<Idle|WPos:0.000,0.000,0.000>")
	s = tr.State()
	assert.Equal(t, coord.Point{X: 1, Y: 2, Z: 3}, s.MPos)

	applyStatus(t, tr, "<Idle|WCO:0.000,0.000,0.000>")
	s = tr.State()
	assert.Equal(t, coord.Point{X: 1, Y: 2, Z: 3}, s.WPos)
}

func TestTracker_Revert(t *testing.T) {
	tr := NewTracker()

	words, err := ParseModeReport("G1 G54 G17 G21 G90 G94")
	require.NoError(t, err)
	tr.ApplyModeReport(words)
	baseline := tr.SnapshotForRevert()

	tr.ApplyModalWords(gcode.Block{{W: 'G', Arg: 91}, {W: 'G', Arg: 0}})
	assert.True(t, tr.State().Modal.RelativeMotion())
	assert.False(t, baseline.RelativeMotion(), "snapshot is a copy")

	assert.Equal(t, "G1G90", tr.RevertCommands().String())

	// a fresh mode report replaces everything
	words, err = ParseModeReport("G0 G55 G17 G20 G91 G94 T2")
	require.NoError(t, err)
	tr.ApplyModeReport(words)
	assert.Equal(t, 2.0, tr.State().Tool)
	assert.Equal(t, "G1G90G21G54", tr.RevertCommands().String())
}

func TestTracker_OnChange(t *testing.T) {
	tr := NewTracker()
	var got []machine.State
	tr.OnChange(func(s machine.State) { got = append(got, s) })

	applyStatus(t, tr, "<Idle|MPos:0,0,0>")
	tr.ApplyModalWords(nil)
	tr.ApplyModalWords(gcode.Block{{W: 'G', Arg: 91}})
	require.Len(t, got, 2)
	assert.Equal(t, "Idle", got[0].Status)
	assert.True(t, got[1].Modal.RelativeMotion())
}
