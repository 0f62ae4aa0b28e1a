package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"spectro-rpc/protocol"
)

var ErrPoolClosed = errors.New("transport: pool closed")

// ConnPool lends out persistent transports to one address. It holds at most
// maxConns of them, creating them lazily; a caller that finds the pool at its
// limit waits for one to be returned.
//
// Idle transports sit in a buffered channel, which gives FIFO reuse and
// blocking-on-empty for free.
type ConnPool struct {
	mu       sync.Mutex
	idle     chan *ClientTransport
	addr     string
	maxConns int
	curConns int
	closed   bool
	dialer   Dialer
	limits   protocol.Limits
}

func NewConnPool(addr string, maxConns int, dialer Dialer, limits protocol.Limits) *ConnPool {
	if maxConns <= 0 {
		maxConns = 1
	}
	return &ConnPool{
		idle:     make(chan *ClientTransport, maxConns),
		addr:     addr,
		maxConns: maxConns,
		dialer:   dialer,
		limits:   limits,
	}
}

// Get returns an idle transport, dials a new one while under the limit, or
// waits for one to be returned.
func (p *ConnPool) Get(ctx context.Context) (*ClientTransport, error) {
	for {
		select {
		case t, ok := <-p.idle:
			if !ok {
				return nil, ErrPoolClosed
			}
			if t.Usable() {
				return t, nil
			}
			p.discard(t)
			continue
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if p.curConns < p.maxConns {
			p.curConns++
			p.mu.Unlock()
			return p.createNew(ctx)
		}
		p.mu.Unlock()

		select {
		case t, ok := <-p.idle:
			if !ok {
				return nil, ErrPoolClosed
			}
			if t.Usable() {
				return t, nil
			}
			p.discard(t)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for a connection to %s: %w", ErrTransport, p.addr, ctx.Err())
		}
	}
}

// Put hands a transport back. Broken transports are closed and their slot freed.
func (p *ConnPool) Put(t *ClientTransport) {
	if !t.Usable() {
		p.discard(t)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		t.Close()
		p.curConns--
		return
	}
	p.idle <- t
}

// Close closes the idle transports; borrowed ones are closed when returned.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.idle)
	for t := range p.idle {
		t.Close()
		p.curConns--
	}
	return nil
}

// Len reports how many transports exist, idle or borrowed.
func (p *ConnPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curConns
}

// createNew dials with a slot already reserved by the caller.
func (p *ConnPool) createNew(ctx context.Context) (*ClientTransport, error) {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		p.mu.Lock()
		p.curConns--
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, p.addr, err)
	}
	return NewClientTransport(conn, p.limits), nil
}

func (p *ConnPool) discard(t *ClientTransport) {
	t.Close()
	p.mu.Lock()
	p.curConns--
	p.mu.Unlock()
}
