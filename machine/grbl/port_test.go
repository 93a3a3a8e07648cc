package grbl

import (
	"bytes"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// fakePort serves queued chunks to Read and records writes.
type fakePort struct {
	mx       sync.Mutex
	chunks   [][]byte
	errs     []error
	written  bytes.Buffer
	timeout  time.Duration
	timeouts []time.Duration
}

func (p *fakePort) feed(s ...string) {
	p.mx.Lock()
	defer p.mx.Unlock()
	for _, c := range s {
		p.chunks = append(p.chunks, []byte(c))
	}
}

func (p *fakePort) fail(err error) {
	p.mx.Lock()
	p.errs = append(p.errs, err)
	p.mx.Unlock()
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mx.Lock()
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		p.mx.Unlock()
		return 0, err
	}
	if len(p.chunks) == 0 {
		wait := min(p.timeout, time.Millisecond)
		p.mx.Unlock()
		time.Sleep(wait)
		return 0, nil
	}
	n := copy(b, p.chunks[0])
	p.chunks[0] = p.chunks[0][n:]
	if len(p.chunks[0]) == 0 {
		p.chunks = p.chunks[1:]
	}
	p.mx.Unlock()
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.timeout = d
	p.timeouts = append(p.timeouts, d)
	return nil
}

func (p *fakePort) Written() string {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.written.String()
}

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) MarkSent()                { m.Called() }
func (m *mockObserver) MarkStatus(status string) { m.Called(status) }
