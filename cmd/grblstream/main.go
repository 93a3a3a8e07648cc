// Command grblstream streams a G-code program to a GRBL controller.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mastercactapus/grblstream/config"
	"github.com/mastercactapus/grblstream/logger"
	"github.com/mastercactapus/grblstream/machine/grbl"
	"github.com/mastercactapus/grblstream/monitor"
	"github.com/mastercactapus/grblstream/serialport"
	"github.com/mastercactapus/grblstream/stream"
	"github.com/mastercactapus/grblstream/terminal"
)

// portTimeout is the default per-read timeout of the serial port.
const portTimeout = 50 * time.Millisecond

type args struct {
	settings string
	device   string
	sets     []string
	program  string
}

func parseArgs(argv []string) (*args, error) {
	var a args
	fs := flag.NewFlagSet("grblstream", flag.ContinueOnError)
	fs.StringVar(&a.settings, "settings", config.DefaultFilename(), "Settings file, created with defaults if missing.")
	fs.StringVar(&a.device, "device", "", "Serial device; overrides serial_device.")
	fs.Func("set", "Override a setting as name=value. May be repeated.", func(s string) error {
		a.sets = append(a.sets, s)
		return nil
	})
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: grblstream [flags] <program.gcode | ->")
		fs.PrintDefaults()
	}

	err := fs.Parse(argv)
	if err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errors.New("expected exactly one program file")
	}
	a.program = fs.Arg(0)
	return &a, nil
}

func (a *args) apply(cfg *config.Config) error {
	for _, s := range a.sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("invalid -set %q: expected name=value", s)
		}
		err := cfg.Set(name, value)
		if err != nil {
			return err
		}
	}
	if a.device != "" {
		cfg.SerialDevice = a.device
	}
	return nil
}

func main() {
	log.SetFlags(log.Lshortfile)

	a, err := parseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}

	err = run(a)
	switch {
	case errors.Is(err, stream.ErrQuit):
		os.Exit(130)
	case err != nil:
		fmt.Fprintln(os.Stderr, "grblstream:", err)
		os.Exit(1)
	}
}

func run(a *args) error {
	cfg, err := config.Load(a.settings)
	if err != nil {
		return err
	}
	err = a.apply(cfg)
	if err != nil {
		return err
	}
	err = cfg.Validate()
	if err != nil {
		return err
	}
	if cfg.SerialDevice == "" {
		return errors.New("no serial device: set serial_device or use -device")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logOut io.Writer = os.Stderr
	var keys stream.KeySource
	if a.program != "-" {
		term, err := terminal.Open(os.Stdin)
		switch {
		case err == nil:
			defer term.Close()
			keys = term
			logOut = terminal.CRLFWriter{W: os.Stderr}
		case !errors.Is(err, terminal.ErrNotTerminal):
			return err
		}
	}

	l := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: logOut,
	})

	var src stream.Source
	if a.program == "-" {
		pipe := stream.NewPipeSource(stream.NewReaderSource(os.Stdin, l))
		defer pipe.Close()
		src = pipe
	} else {
		f, err := os.Open(a.program)
		if err != nil {
			return err
		}
		defer f.Close()
		src = stream.NewReaderSource(f, l)
	}

	port, err := serialport.Open(serialport.Options{
		Device: cfg.SerialDevice,
		Baud:   cfg.SerialBaudrate,
		Driver: cfg.SerialDriver,
	})
	if err != nil {
		return err
	}
	defer port.Close()

	tr := grbl.NewTransport(port, portTimeout)
	if cfg.SerialLogging {
		f, err := os.Create(cfg.SerialLogFile)
		if err != nil {
			return fmt.Errorf("serial log: %w", err)
		}
		defer f.Close()
		tr.SetLog(f)
	}

	opt := sessionOptions(cfg)
	if cfg.MonitorAddr != "" {
		monCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		mon := monitor.New(l.With("component", "monitor"))
		go func() {
			err := mon.ListenAndServe(monCtx, cfg.MonitorAddr)
			if err != nil {
				l.Error("monitor", "error", err)
			}
		}()
		opt.Observe = mon.Observer
		opt.OnState = mon.PublishState
		opt.OnPhase = func(p stream.Phase) { mon.PublishPhase(p.String()) }
	}

	l.Info("streaming", "program", a.program, "device", cfg.SerialDevice, "baud", cfg.SerialBaudrate)
	err = stream.NewSession(tr, keys, l, opt).Run(ctx, src)
	if err != nil {
		l.Error("session ended", "error", err)
	}

	if d := cfg.ExitDelay(); d > 0 {
		time.Sleep(d)
	}
	return err
}
