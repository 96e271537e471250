package transport

import (
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Get after the pool has been closed.
var ErrPoolClosed = errors.New("transport pool is closed")

// Pool hands out ClientTransports to a single proxy endpoint. A transport
// serves one invocation at a time, so the pool bounds how many invocations
// run against the endpoint concurrently.
//
// The idle set is a buffered channel: FIFO, goroutine-safe, and blocking
// when every transport is borrowed.
type Pool struct {
	mu      sync.Mutex
	idle    chan *ClientTransport
	dial    Dialer
	opts    []Option
	max     int
	created int
	closed  bool
}

// NewPool returns a pool of at most size transports that connect through
// dial. Transports are created lazily.
func NewPool(dial Dialer, size int, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		idle: make(chan *ClientTransport, size),
		dial: dial,
		opts: opts,
		max:  size,
	}
}

// Get borrows a transport, creating one when the pool is below its limit and
// blocking when it is not.
func (p *Pool) Get() (*ClientTransport, error) {
	select {
	case t, ok := <-p.idle:
		if !ok {
			return nil, ErrPoolClosed
		}
		return t, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.created < p.max {
		p.created++
		p.mu.Unlock()
		return NewClientTransport(p.dial, p.opts...), nil
	}
	p.mu.Unlock()

	t, ok := <-p.idle
	if !ok {
		return nil, ErrPoolClosed
	}
	return t, nil
}

// Put returns a borrowed transport. A faulted transport is kept; it
// reconnects on its next Invoke.
func (p *Pool) Put(t *ClientTransport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || t.State() == StateClosed {
		_ = t.Close()
		p.created--
		return
	}
	p.idle <- t
}

// Invoke runs one invocation on a borrowed transport.
func (p *Pool) Invoke(request []byte) ([]byte, error) {
	t, err := p.Get()
	if err != nil {
		return nil, err
	}
	defer p.Put(t)

	return t.Invoke(request)
}

// Close closes the idle transports. Borrowed transports are closed when
// they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.idle)

	var errs []error
	for t := range p.idle {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
		p.created--
	}
	return errors.Join(errs...)
}
