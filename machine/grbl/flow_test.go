package grbl

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumSent(f *FlowController) int {
	var n int
	for _, c := range f.sent {
		n += c.Len()
	}
	return n
}

func TestFlowController_BufferLimit(t *testing.T) {
	var buf bytes.Buffer
	f := NewFlowController(&buf, 10)

	a := NewCommand("G0X1", nil, nil)
	b := NewCommand("G0X2", nil, nil)
	c := NewCommand("G4", nil, nil)
	require.Equal(t, 5, a.Len())
	require.Equal(t, 5, b.Len())

	blocked, err := f.Enqueue(a)
	require.NoError(t, err)
	assert.False(t, blocked)
	blocked, err = f.Enqueue(b)
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Equal(t, 10, f.UsedBuffer())
	assert.Equal(t, Sent, a.State())
	assert.Equal(t, Sent, b.State())

	blocked, err = f.Enqueue(c)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, Queued, c.State())
	assert.Equal(t, 1, f.PendingCount())
	assert.Equal(t, "G0X1\nG0X2\n", buf.String())

	acked, err := f.Acknowledge("ok")
	require.NoError(t, err)
	assert.Same(t, a, acked)
	assert.Equal(t, Acknowledged, a.State())
	assert.Equal(t, Sent, c.State())
	assert.Equal(t, 8, f.UsedBuffer())
	assert.Equal(t, "G0X1\nG0X2\nG4\n", buf.String())
}

func TestFlowController_Invariant(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	var buf bytes.Buffer
	f := NewFlowController(&buf, 32)

	check := func() {
		t.Helper()
		assert.LessOrEqual(t, f.UsedBuffer(), f.MaxBuffer())
		assert.Equal(t, sumSent(f), f.UsedBuffer())
		assert.Equal(t, f.PendingCount() == 0 && f.SentCount() == 0, f.Finished())
	}

	var enqueued, acked int
	for i := 0; i < 500; i++ {
		if f.SentCount() > 0 && rnd.Intn(2) == 0 {
			_, err := f.Acknowledge("ok")
			require.NoError(t, err)
			acked++
		} else {
			text := "G1X" + strings.Repeat("1", rnd.Intn(20))
			_, err := f.Enqueue(NewCommand(text, nil, nil))
			require.NoError(t, err)
			enqueued++
		}
		check()
	}
	for f.SentCount() > 0 {
		assert.False(t, f.Finished())
		_, err := f.Acknowledge("ok")
		require.NoError(t, err)
		acked++
		check()
	}
	assert.True(t, f.Finished())
	assert.Equal(t, enqueued, acked)
}

func TestFlowController_StrictOrder(t *testing.T) {
	var buf bytes.Buffer
	f := NewFlowController(&buf, 0)

	var cmds []*Command
	for _, s := range []string{"G0X1", "G0X2", "G0X3"} {
		c := NewCommand(s, nil, nil)
		cmds = append(cmds, c)
		_, err := f.Enqueue(c)
		require.NoError(t, err)
	}

	for _, exp := range cmds {
		c, err := f.Acknowledge("ok")
		require.NoError(t, err)
		assert.Same(t, exp, c)
	}

	_, err := f.Acknowledge("ok")
	var pv *ProtocolViolationError
	assert.ErrorAs(t, err, &pv)
}

func TestFlowController_Empty(t *testing.T) {
	var buf bytes.Buffer
	f := NewFlowController(&buf, 0)

	obs := new(mockObserver)
	obs.On("MarkStatus", "ok").Once()

	c := NewCommand("(just a comment)", nil, obs)
	blocked, err := f.Enqueue(c)
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Equal(t, Acknowledged, c.State())
	assert.Equal(t, 0, f.UsedBuffer())
	assert.Empty(t, buf.String())
	assert.True(t, f.Finished())
	obs.AssertExpectations(t)
	obs.AssertNotCalled(t, "MarkSent")
}

func TestFlowController_Observer(t *testing.T) {
	var buf bytes.Buffer
	f := NewFlowController(&buf, 0)

	obs := new(mockObserver)
	obs.On("MarkSent").Once()
	obs.On("MarkStatus", "ok").Once()

	_, err := f.Enqueue(NewCommand("G0X1", nil, obs))
	require.NoError(t, err)
	_, err = f.Acknowledge("ok")
	require.NoError(t, err)
	obs.AssertExpectations(t)
}

func TestFlowController_Rejected(t *testing.T) {
	var buf bytes.Buffer
	f := NewFlowController(&buf, 10)

	a := NewCommand("G0X1", nil, nil)
	b := NewCommand("G0X2", nil, nil)
	c := NewCommand("G0X3", nil, nil)
	for _, cmd := range []*Command{a, b, c} {
		_, err := f.Enqueue(cmd)
		require.NoError(t, err)
	}

	got, err := f.Acknowledge("error:20")
	var rej *CommandRejectedError
	require.ErrorAs(t, err, &rej)
	assert.Same(t, a, got)
	assert.Equal(t, "G0X1", rej.Command)
	assert.Equal(t, "error:20", rej.Message)
	assert.Equal(t, Failed, a.State())
	assert.Equal(t, Sent, c.State(), "freed space is still used")

	_, err = f.Acknowledge("ERROR: Bad number format")
	assert.ErrorAs(t, err, &rej)
}

func TestFlowController_HaltOnReject(t *testing.T) {
	var buf bytes.Buffer
	f := NewFlowController(&buf, 10)
	f.HaltOnReject = true

	for _, s := range []string{"G0X1", "G0X2", "G0X3"} {
		_, err := f.Enqueue(NewCommand(s, nil, nil))
		require.NoError(t, err)
	}

	_, err := f.Acknowledge("error:20")
	require.Error(t, err)
	assert.True(t, f.Halted())
	assert.Equal(t, 1, f.PendingCount())
	assert.Equal(t, 1, f.SentCount())

	blocked, err := f.Enqueue(NewCommand("G0X4", nil, nil))
	require.NoError(t, err)
	assert.True(t, blocked)

	_, err = f.Acknowledge("ok")
	require.NoError(t, err)
	assert.Equal(t, 0, f.SentCount())
	assert.False(t, f.Finished())

	blocked, err = f.Resume()
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Equal(t, 2, f.SentCount())
	assert.Equal(t, "G0X1\nG0X2\nG0X3\nG0X4\n", buf.String())
}

func TestFlowController_Reset(t *testing.T) {
	var buf bytes.Buffer
	f := NewFlowController(&buf, 5)

	obsA := &mockObserver{}
	obsA.On("MarkSent").Once()
	obsA.On("MarkStatus", "quit by operator").Once()
	obsB := &mockObserver{}
	obsB.On("MarkStatus", "quit by operator").Once()

	a := NewCommand("G0X1", nil, obsA)
	b := NewCommand("G0X2", nil, obsB)
	_, err := f.Enqueue(a)
	require.NoError(t, err)
	_, err = f.Enqueue(b)
	require.NoError(t, err)
	assert.Equal(t, Sent, a.State())
	assert.Equal(t, Queued, b.State())

	assert.Equal(t, 2, f.Reset("quit by operator"))
	assert.Equal(t, Failed, a.State())
	assert.Equal(t, Failed, b.State())
	assert.True(t, f.Finished())
	assert.Equal(t, 0, f.UsedBuffer())
	obsA.AssertExpectations(t)
	obsB.AssertExpectations(t)
}

func TestFlowController_TooLong(t *testing.T) {
	var buf bytes.Buffer
	f := NewFlowController(&buf, 5)

	c := NewCommand("G0X100", nil, nil)
	_, err := f.Enqueue(c)
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.Equal(t, Failed, c.State())
	assert.True(t, f.Finished())
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("port closed") }

func TestFlowController_WriteError(t *testing.T) {
	f := NewFlowController(failWriter{}, 0)

	c := NewCommand("G0X1", nil, nil)
	blocked, err := f.Enqueue(c)
	assert.Error(t, err)
	assert.True(t, blocked)
	assert.Equal(t, Queued, c.State())
	assert.Equal(t, 0, f.UsedBuffer())
}

// flakyWriter accepts n writes, then fails.
type flakyWriter struct{ n int }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errors.New("port closed")
	}
	w.n--
	return len(p), nil
}

func TestFlowController_RejectedWithWriteError(t *testing.T) {
	f := NewFlowController(&flakyWriter{n: 1}, 5)

	_, err := f.Enqueue(NewCommand("G0X1", nil, nil))
	require.NoError(t, err)
	_, err = f.Enqueue(NewCommand("G0X2", nil, nil))
	require.NoError(t, err)

	_, err = f.Acknowledge("error:20")
	var rej *CommandRejectedError
	assert.ErrorAs(t, err, &rej)
	assert.ErrorContains(t, err, "port closed")
	assert.Equal(t, 1, f.PendingCount())
}
