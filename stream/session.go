package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/mastercactapus/grblstream/gcode"
	"github.com/mastercactapus/grblstream/logger"
	"github.com/mastercactapus/grblstream/machine"
	"github.com/mastercactapus/grblstream/machine/grbl"
)

// ErrQuit is returned when the operator aborts the session.
var ErrQuit = errors.New("quit by operator")

// Phase is the stage a session is in.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseJog
	PhaseStream
	PhaseDrain
	PhaseIdleWait
	PhaseShutdown
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseJog:
		return "jog"
	case PhaseStream:
		return "stream"
	case PhaseDrain:
		return "drain"
	case PhaseIdleWait:
		return "idle-wait"
	case PhaseShutdown:
		return "shutdown"
	}
	return "unknown"
}

// RejectPolicy decides what happens when the controller rejects a command.
type RejectPolicy string

const (
	// RejectHold issues a feed hold and stops dispatching until the operator
	// resumes. Without an operator it behaves like RejectAbort.
	RejectHold RejectPolicy = "hold"
	// RejectAbort issues a feed hold and ends the session.
	RejectAbort RejectPolicy = "abort"
	// RejectContinue logs the rejection and keeps streaming.
	RejectContinue RejectPolicy = "continue"
)

// idleQueryInterval paces status queries while waiting for idle when the
// poller is disabled.
const idleQueryInterval = 250 * time.Millisecond

// Options configure a Session.
type Options struct {
	// BufferSize is the controller's receive buffer in bytes.
	BufferSize int
	// Lookahead is how many commands are queued ahead of the controller.
	Lookahead      int
	StartupTimeout time.Duration
	// PollInterval is the status query interval; zero disables polling.
	PollInterval time.Duration
	// ReadSlice bounds every wait for input, and so how quickly the
	// session reacts to anything else.
	ReadSlice    time.Duration
	RejectPolicy RejectPolicy

	Jogging  bool
	Jog      machine.JogOptions
	JogSteps []float64

	// KeepOpen waits for the operator to press enter once the program is
	// done.
	KeepOpen bool

	// Observe, if set, returns an observer for each command.
	Observe func(text string) grbl.Observer
	OnState func(machine.State)
	OnPhase func(Phase)
}

func (o *Options) setDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = grbl.DefaultBufferSize
	}
	if o.Lookahead <= 0 {
		o.Lookahead = 5
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = 10 * time.Second
	}
	if o.ReadSlice <= 0 {
		o.ReadSlice = 20 * time.Millisecond
	}
	if o.RejectPolicy == "" {
		o.RejectPolicy = RejectHold
	}
	if len(o.JogSteps) == 0 {
		o.JogSteps = []float64{o.Jog.Distance}
	}
}

// Session streams one program to the controller.
//
// It owns the flow controller and state tracker; apart from the status
// poller, which only writes through the transport, everything happens on the
// goroutine calling Run.
type Session struct {
	opt     Options
	tr      *grbl.Transport
	flow    *grbl.FlowController
	tracker *grbl.Tracker
	keys    KeySource
	log     logger.Logger

	phase         Phase
	version       string
	modeRequested bool
	initialized   bool
	statusSeq     int
}

// NewSession creates a Session. keys may be nil for an unattended session.
func NewSession(tr *grbl.Transport, keys KeySource, log logger.Logger, opt Options) *Session {
	opt.setDefaults()
	s := &Session{
		opt:     opt,
		tr:      tr,
		flow:    grbl.NewFlowController(tr, opt.BufferSize),
		tracker: grbl.NewTracker(),
		keys:    keys,
		log:     log,
	}
	if opt.OnState != nil {
		s.tracker.OnChange(opt.OnState)
	}
	return s
}

// Version is the controller's banner, if one was received.
func (s *Session) Version() string { return s.version }

// State returns the last known machine state.
func (s *Session) State() machine.State { return s.tracker.State() }

func (s *Session) setPhase(p Phase) {
	s.log.Info("phase", "from", s.phase.String(), "to", p.String())
	s.phase = p
	if s.opt.OnPhase != nil {
		s.opt.OnPhase(p)
	}
}

func (s *Session) command(text string, modal gcode.Block) *grbl.Command {
	var obs grbl.Observer
	if s.opt.Observe != nil {
		obs = s.opt.Observe(text)
	}
	return grbl.NewCommand(text, modal, obs)
}

func (s *Session) enqueue(line machine.Line) error {
	_, err := s.flow.Enqueue(s.command(line.Text, line.Modal))
	return err
}

// Run initializes the controller, optionally jogs, then streams src and
// waits for the machine to finish.
func (s *Session) Run(ctx context.Context, src Source) (err error) {
	var poller *Poller
	defer func() { s.shutdown(poller, err) }()

	err = s.initialize(ctx)
	if err != nil {
		return err
	}
	s.tracker.SnapshotForRevert()

	if s.opt.PollInterval > 0 {
		poller = StartPoller(ctx, s.tr, s.opt.PollInterval, s.log)
	}

	if s.opt.Jogging && s.keys != nil {
		err = s.jog(ctx)
		if err != nil {
			return err
		}
	}

	s.flow.HaltOnReject = s.opt.RejectPolicy != RejectContinue
	err = s.stream(ctx, src)
	if err != nil {
		return err
	}
	err = s.drain(ctx)
	if err != nil {
		return err
	}
	err = s.idleWait(ctx)
	if err != nil {
		return err
	}

	if s.opt.KeepOpen && s.keys != nil {
		return s.waitExit(ctx)
	}
	return nil
}

// shutdown stops the poller and fails anything still outstanding with the
// error ending the session.
func (s *Session) shutdown(p *Poller, cause error) {
	s.setPhase(PhaseShutdown)
	if !s.flow.Finished() {
		status := "aborted"
		if cause != nil {
			status = cause.Error()
		}
		n := s.flow.Reset(status)
		s.log.Warn("unresolved commands failed", "count", n, "reason", status)
	}
	if p != nil {
		err := p.Stop(time.Second)
		if err != nil {
			s.log.Error("stop poller", "error", err)
		}
	}
	n, err := s.tr.Flush(s.opt.ReadSlice)
	if err != nil {
		s.log.Warn("flush input", "error", err)
	}
	if n > 0 {
		s.log.Debug("discarded unread lines", "count", n)
	}
}

// process handles the lines received within timeout.
func (s *Session) process(ctx context.Context, timeout time.Duration) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	for line, err := range s.tr.ReadLines(timeout) {
		if err != nil {
			return err
		}
		err = s.handle(line)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) applyStatus(body string) bool {
	rep, err := grbl.ParseStatusReport(body)
	if err != nil {
		s.log.Warn("bad status report", "body", body, "error", err)
		return false
	}
	s.tracker.ApplyStatusReport(rep)
	s.statusSeq++
	return true
}

func (s *Session) applyMode(body string) bool {
	words, err := grbl.ParseModeReport(body)
	if err != nil {
		s.log.Warn("bad mode report", "body", body, "error", err)
		return false
	}
	s.tracker.ApplyModeReport(words)
	return true
}

func (s *Session) handle(line string) error {
	r := grbl.Classify(line)
	s.log.Debug("recv", "kind", r.Kind.String(), "line", r.Line)

	switch r.Kind {
	case grbl.KindStatusReport:
		s.applyStatus(r.Body)
	case grbl.KindModeReport:
		s.applyMode(r.Body)
	case grbl.KindMessage:
		s.log.Info("controller message", "message", r.Body)
	case grbl.KindAck:
		return s.acknowledge(r)
	case grbl.KindBanner:
		n := s.flow.Reset("reset")
		s.log.Error("controller reset", "banner", r.Line, "failed", n)
		return grbl.ErrReset
	case grbl.KindAlarm:
		return &grbl.AlarmError{Message: r.Body}
	case grbl.KindSetting, grbl.KindEmpty:
	default:
		return r.Err()
	}
	return nil
}

func (s *Session) acknowledge(r grbl.Response) error {
	cmd, err := s.flow.Acknowledge(r.Line)
	var rej *grbl.CommandRejectedError
	if errors.As(err, &rej) {
		rerr := s.rejected(rej)
		if err != error(rej) {
			// the freed space could not be refilled
			return err
		}
		return rerr
	}
	if err != nil {
		return err
	}
	s.tracker.ApplyModalWords(cmd.Modal)
	return nil
}

func (s *Session) rejected(rej *grbl.CommandRejectedError) error {
	if s.phase == PhaseJog {
		// e.g. a jog past the soft limits; the operator sees it and moves on
		s.log.Warn("jog rejected", "command", rej.Command, "response", rej.Message)
		return nil
	}

	switch s.opt.RejectPolicy {
	case RejectContinue:
		s.log.Warn("command rejected", "command", rej.Command, "response", rej.Message)
		return nil
	case RejectHold:
		if s.keys != nil {
			s.flow.Halt()
			s.log.Warn("command rejected, stream held: press ~ to resume or q to quit",
				"command", rej.Command, "response", rej.Message)
			return s.tr.WriteByte(grbl.FeedHold)
		}
	}

	err := s.tr.WriteByte(grbl.FeedHold)
	if err != nil {
		return errors.Join(rej, err)
	}
	return rej
}

// operator handles key presses while the program runs.
func (s *Session) operator() error {
	k, ok := nextKey(s.keys)
	if !ok {
		return nil
	}
	switch k {
	case KeyFeedHold:
		return s.tr.WriteByte(grbl.FeedHold)
	case KeyCycleStart:
		err := s.tr.WriteByte(grbl.CycleStart)
		if err != nil || !s.flow.Halted() {
			return err
		}
		s.log.Info("resuming stream")
		_, err = s.flow.Resume()
		return err
	case KeyQuit:
		err := s.tr.WriteByte(grbl.FeedHold)
		if err != nil {
			return errors.Join(ErrQuit, err)
		}
		return ErrQuit
	}
	return nil
}

func (s *Session) initialize(ctx context.Context) error {
	s.setPhase(PhaseInit)
	err := s.tr.WriteString(grbl.WakeSequence)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(s.opt.StartupTimeout)
	for !s.initialized {
		err = ctx.Err()
		if err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &grbl.InitializationTimeoutError{Timeout: s.opt.StartupTimeout, Version: s.version}
		}
		for line, err := range s.tr.ReadLines(min(remaining, s.opt.ReadSlice)) {
			if err != nil {
				return err
			}
			err = s.handleInit(line)
			if err != nil {
				return err
			}
			if s.initialized {
				break
			}
		}
	}

	st := s.tracker.State()
	s.log.Info("initialized",
		"version", s.version,
		"status", st.Status,
		"mpos", st.MPos.String(),
		"modal", st.Modal.Words().String(),
	)
	return nil
}

func (s *Session) requestMode() error {
	s.modeRequested = true
	_, err := s.flow.Enqueue(grbl.NewCommand(grbl.ModeQuery, nil, nil))
	return err
}

func (s *Session) handleInit(line string) error {
	r := grbl.Classify(line)
	s.log.Debug("recv", "kind", r.Kind.String(), "line", r.Line)

	switch r.Kind {
	case grbl.KindBanner:
		s.version = r.Line
		s.log.Info("controller found", "banner", r.Line)
		s.flow.Reset("reset")
		return s.requestMode()
	case grbl.KindAck:
		if s.flow.SentCount() == 0 {
			// answer to the wake sequence; a controller that did not reset
			// on connect sends no banner
			if !s.modeRequested {
				return s.requestMode()
			}
			return nil
		}
		_, err := s.flow.Acknowledge(r.Line)
		return err
	case grbl.KindModeReport:
		if s.applyMode(r.Body) {
			return s.tr.WriteByte(grbl.StatusQuery)
		}
	case grbl.KindStatusReport:
		s.initialized = s.applyStatus(r.Body)
	case grbl.KindMessage:
		s.log.Info("controller message", "message", r.Body)
	case grbl.KindAlarm:
		s.log.Warn("controller alarm", "alarm", r.Body)
	case grbl.KindUnrecognized:
		// line noise while the controller boots
		s.log.Warn("ignoring unrecognized line", "line", r.Line)
	}
	return nil
}

func jogAxis(k Key) (axis byte, dir float64, ok bool) {
	switch k {
	case KeyRight:
		return 'X', 1, true
	case KeyLeft:
		return 'X', -1, true
	case KeyUp:
		return 'Y', 1, true
	case KeyDown:
		return 'Y', -1, true
	case KeyPageUp:
		return 'Z', 1, true
	case KeyPageDown:
		return 'Z', -1, true
	}
	return 0, 0, false
}

func (s *Session) jog(ctx context.Context) error {
	s.setPhase(PhaseJog)
	jog := s.opt.Jog
	step := max(slices.Index(s.opt.JogSteps, jog.Distance), 0)
	jog.Distance = s.opt.JogSteps[step]
	modal := s.tracker.State().Modal

	s.log.Info("jogging: arrows and pgup/pgdn move, +/- change step, 0 zeroes work position, enter starts the program, q quits",
		"step", jog.Distance)

jogLoop:
	for {
		if k, ok := nextKey(s.keys); ok {
			switch k {
			case KeyEnter:
				break jogLoop
			case KeyQuit:
				return ErrQuit
			case KeyStepUp, KeyStepDown:
				if k == KeyStepUp && step < len(s.opt.JogSteps)-1 {
					step++
				} else if k == KeyStepDown && step > 0 {
					step--
				}
				jog.Distance = s.opt.JogSteps[step]
				s.log.Info("jog step", "step", jog.Distance)
			case KeyZero:
				err := s.enqueue(machine.ZeroWork())
				if err != nil {
					return err
				}
			case KeyFeedHold:
				err := s.tr.WriteByte(grbl.FeedHold)
				if err != nil {
					return err
				}
			case KeyCycleStart:
				err := s.tr.WriteByte(grbl.CycleStart)
				if err != nil {
					return err
				}
			default:
				axis, dir, ok := jogAxis(k)
				if !ok {
					break
				}
				for _, line := range jog.Generate(axis, dir, modal) {
					modal.Apply(line.Modal)
					err := s.enqueue(line)
					if err != nil {
						return err
					}
				}
			}
		}

		err := s.process(ctx, s.opt.ReadSlice)
		if err != nil {
			return err
		}
	}

	// modes changed for jogging must not leak into the program
	err := s.waitFinished(ctx)
	if err != nil {
		return err
	}
	revert := s.tracker.RevertCommands()
	if len(revert) == 0 {
		return nil
	}
	s.log.Info("restoring modes", "words", revert.String())
	err = s.enqueue(machine.Line{Text: revert.String(), Modal: revert})
	if err != nil {
		return err
	}
	return s.waitFinished(ctx)
}

func (s *Session) waitFinished(ctx context.Context) error {
	for !s.flow.Finished() {
		err := s.process(ctx, s.opt.ReadSlice)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) stream(ctx context.Context, src Source) error {
	s.setPhase(PhaseStream)
	for {
		for s.flow.PendingCount() < s.opt.Lookahead {
			line, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, ErrNotReady) {
				break
			}
			if err != nil {
				return fmt.Errorf("read program: %w", err)
			}
			err = s.enqueue(line)
			if err != nil {
				return err
			}
		}

		err := s.operator()
		if err != nil {
			return err
		}
		err = s.process(ctx, s.opt.ReadSlice)
		if err != nil {
			return err
		}
	}
}

func (s *Session) drain(ctx context.Context) error {
	s.setPhase(PhaseDrain)
	for !s.flow.Finished() {
		err := s.operator()
		if err != nil {
			return err
		}
		err = s.process(ctx, s.opt.ReadSlice)
		if err != nil {
			return err
		}
	}
	return nil
}

// idleWait waits for a fresh status report saying Idle; motion continues
// after the last acknowledgement.
func (s *Session) idleWait(ctx context.Context) error {
	s.setPhase(PhaseIdleWait)
	seq := s.statusSeq
	var lastQuery time.Time
	for s.statusSeq == seq || !s.tracker.Idle() {
		if lastQuery.IsZero() || (s.opt.PollInterval <= 0 && time.Since(lastQuery) >= idleQueryInterval) {
			err := s.tr.WriteByte(grbl.StatusQuery)
			if err != nil {
				return err
			}
			lastQuery = time.Now()
		}
		err := s.operator()
		if err != nil {
			return err
		}
		err = s.process(ctx, s.opt.ReadSlice)
		if err != nil {
			return err
		}
	}
	s.log.Info("program complete", "status", s.tracker.State().Status)
	return nil
}

func (s *Session) waitExit(ctx context.Context) error {
	s.log.Info("press enter to exit")
	for {
		if k, ok := nextKey(s.keys); ok && (k == KeyEnter || k == KeyQuit) {
			return nil
		}
		err := s.process(ctx, s.opt.ReadSlice)
		if err != nil {
			return err
		}
	}
}
