// Package serialport opens the connection to the controller.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

// Port is an open serial connection. A Read that times out returns 0, nil.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(time.Duration) error
}

// Driver names.
const (
	DriverBugst = "bugst"
	DriverTarm  = "tarm"
	DriverFile  = "file"
)

// tarmReadTimeout is the fixed read slice of the tarm driver. termios only
// offers decisecond granularity.
const tarmReadTimeout = 100 * time.Millisecond

// Options select the device to open.
type Options struct {
	Device string
	Baud   int
	Driver string
}

// Open opens the device with the selected driver.
func Open(opt Options) (Port, error) {
	if opt.Device == "" {
		return nil, errors.New("no serial device given")
	}
	switch opt.Driver {
	case DriverBugst, "":
		p, err := bugst.Open(opt.Device, &bugst.Mode{BaudRate: opt.Baud})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", opt.Device, err)
		}
		return p, nil
	case DriverTarm:
		p, err := serial.OpenPort(&serial.Config{
			Name:        opt.Device,
			Baud:        opt.Baud,
			ReadTimeout: tarmReadTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", opt.Device, err)
		}
		return &tarmPort{Port: p}, nil
	case DriverFile:
		f, err := os.OpenFile(opt.Device, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		return NewFilePort(f), nil
	}
	return nil, errors.New("unknown serial driver: " + opt.Driver)
}

// tarmPort adapts a tarm/serial port, which has a fixed read timeout set when
// it is opened. Each read returns within that slice, so callers keep their
// own deadline.
type tarmPort struct {
	*serial.Port
}

func (p *tarmPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if err == io.EOF {
		// zero-length read: the timeout slice elapsed
		return n, nil
	}
	return n, err
}

func (p *tarmPort) SetReadTimeout(time.Duration) error { return nil }

// FilePort is a Port over an *os.File whose reads honor deadlines, such as a
// pseudo-terminal or fifo.
type FilePort struct {
	f *os.File
}

func NewFilePort(f *os.File) *FilePort { return &FilePort{f: f} }

func (p *FilePort) Read(b []byte) (int, error) {
	n, err := p.f.Read(b)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

func (p *FilePort) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *FilePort) Close() error                { return p.f.Close() }

func (p *FilePort) SetReadTimeout(d time.Duration) error {
	return p.f.SetReadDeadline(time.Now().Add(d))
}
