package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mastercactapus/grblstream/logger"
	"github.com/mastercactapus/grblstream/machine/grbl"
)

// Poller writes a status query at a fixed interval.
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartPoller starts querying w every interval until Stop is called or ctx is
// cancelled.
func StartPoller(ctx context.Context, w io.ByteWriter, interval time.Duration, log logger.Logger) *Poller {
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				err := w.WriteByte(grbl.StatusQuery)
				if err != nil {
					log.Error("status query", "error", err)
					return
				}
			}
		}
	}()

	return p
}

// Stop cancels the poller and waits up to timeout for it to exit.
func (p *Poller) Stop(timeout time.Duration) error {
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return errors.New("status poller did not stop")
	}
}
