package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"spectro-rpc/protocol"
)

// ClientTransport runs envelope exchanges over one persistent connection.
// Concurrent callers are matched to their responses by sequence number:
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ one TCP conn ──→ spectrod
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop: ←── response(seq=2) → pending[2] → goroutine-2 wakes up
//
// spectrod answers a connection's requests one at a time and in order, so
// concurrent callers queue on the server rather than on the client.
type ClientTransport struct {
	conn    net.Conn
	limits  protocol.Limits
	seq     uint32     // protected by sending
	sending sync.Mutex // a frame must hit the wire in one piece
	pending sync.Map   // map[uint32]chan Reply
	broken  atomic.Bool
}

// Reply is the outcome of one envelope exchange.
type Reply struct {
	Body []byte
	Err  error
}

// NewClientTransport takes ownership of conn and starts reading responses.
func NewClientTransport(conn net.Conn, limits protocol.Limits) *ClientTransport {
	t := &ClientTransport{conn: conn, limits: limits}
	go t.recvLoop()
	return t
}

// Send writes body as a request envelope and returns the channel its response
// will arrive on.
func (t *ClientTransport) Send(body []byte) (uint32, <-chan Reply, error) {
	if t.broken.Load() {
		return 0, nil, fmt.Errorf("%w: connection to %s is broken", ErrTransport, t.conn.RemoteAddr())
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	t.seq++
	seq := t.seq

	// Register before writing so recvLoop cannot miss the response.
	ch := make(chan Reply, 1)
	t.pending.Store(seq, ch)

	header := protocol.Header{MsgType: protocol.MsgTypeRequest, Seq: seq}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		t.fail(err)
		return 0, nil, fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	// recvLoop may have died between the check above and the write.
	if t.broken.Load() {
		if _, ok := t.pending.LoadAndDelete(seq); ok {
			return 0, nil, fmt.Errorf("%w: connection to %s is broken", ErrTransport, t.conn.RemoteAddr())
		}
	}
	return seq, ch, nil
}

// RoundTrip sends body and waits for its response body. When ctx ends first
// the response is dropped on arrival.
func (t *ClientTransport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	seq, ch, err := t.Send(body)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.Body, r.Err
	case <-ctx.Done():
		t.pending.Delete(seq)
		return nil, fmt.Errorf("%w: seq %d: %w", ErrTransport, seq, ctx.Err())
	}
}

// recvLoop is the only reader of the connection.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn, t.limits)
		if err != nil {
			t.fail(err)
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			t.fail(fmt.Errorf("unexpected message type %d", header.MsgType))
			return
		}
		if ch, ok := t.pending.LoadAndDelete(header.Seq); ok {
			ch.(chan Reply) <- Reply{Body: body}
		}
	}
}

// fail marks the transport broken and releases every waiting caller.
func (t *ClientTransport) fail(err error) {
	t.broken.Store(true)
	t.conn.Close()
	t.pending.Range(func(key, value any) bool {
		if _, ok := t.pending.LoadAndDelete(key); ok {
			value.(chan Reply) <- Reply{Err: fmt.Errorf("%w: %w", ErrTransport, err)}
		}
		return true
	})
}

// Usable reports whether the connection can still carry requests.
func (t *ClientTransport) Usable() bool {
	return !t.broken.Load()
}

func (t *ClientTransport) Close() error {
	t.broken.Store(true)
	return t.conn.Close()
}

func (t *ClientTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
