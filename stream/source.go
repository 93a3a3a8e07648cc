package stream

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"github.com/mastercactapus/grblstream/gcode"
	"github.com/mastercactapus/grblstream/logger"
	"github.com/mastercactapus/grblstream/machine"
)

// ErrNotReady is returned by a Source with no line available yet.
var ErrNotReady = errors.New("source not ready")

// Source supplies program lines. Next returns io.EOF once exhausted and
// ErrNotReady if it would have to block.
type Source interface {
	Next() (machine.Line, error)
}

// LinesSource serves lines from a slice.
type LinesSource struct {
	Lines []machine.Line
	n     int
}

func (s *LinesSource) Next() (machine.Line, error) {
	if s.n == len(s.Lines) {
		return machine.Line{}, io.EOF
	}

	s.n++
	return s.Lines[s.n-1], nil
}

// ReaderSource reads lines from r, attaching the modal words each sets.
//
// Reads block, so it suits regular files. Use PipeSource for anything that
// may stall.
type ReaderSource struct {
	scan *bufio.Scanner
	log  logger.Logger
	line int
}

func NewReaderSource(r io.Reader, log logger.Logger) *ReaderSource {
	return &ReaderSource{scan: bufio.NewScanner(r), log: log}
}

func (s *ReaderSource) Next() (machine.Line, error) {
	if !s.scan.Scan() {
		if err := s.scan.Err(); err != nil {
			return machine.Line{}, err
		}
		return machine.Line{}, io.EOF
	}
	s.line++
	text := s.scan.Text()
	modal, err := gcode.ModalWords(text)
	if err == nil {
		err = modal.Validate()
	}
	if err != nil {
		// the controller decides whether the line is valid
		s.log.Warn("untracked line", "line", s.line, "text", text, "error", err)
		modal = nil
	}
	return machine.Line{Text: text, Modal: modal}, nil
}

type pipeItem struct {
	line machine.Line
	err  error
}

// PipeSource reads from a Source in the background so Next never blocks.
// Close stops the background reader.
type PipeSource struct {
	ch   chan pipeItem
	quit chan struct{}
	once sync.Once
	done bool
	err  error
}

func NewPipeSource(src Source) *PipeSource {
	p := &PipeSource{ch: make(chan pipeItem, 64), quit: make(chan struct{})}
	go func() {
		defer close(p.ch)
		for {
			line, err := src.Next()
			select {
			case p.ch <- pipeItem{line: line, err: err}:
			case <-p.quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return p
}

// Close stops reading once the pending read returns.
func (p *PipeSource) Close() error {
	p.once.Do(func() { close(p.quit) })
	return nil
}

func (p *PipeSource) Next() (machine.Line, error) {
	if p.done {
		return machine.Line{}, p.err
	}
	select {
	case item, ok := <-p.ch:
		if !ok {
			p.done, p.err = true, io.EOF
			return machine.Line{}, io.EOF
		}
		if item.err != nil {
			p.done, p.err = true, item.err
		}
		return item.line, item.err
	default:
		return machine.Line{}, ErrNotReady
	}
}
