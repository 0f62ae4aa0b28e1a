// Package transport moves request bytes to a spectrod server and response
// bytes back.
//
// Exchange is the line discipline: one TCP connection per call, the response
// is everything the server writes before closing. ClientTransport is the
// envelope discipline over a persistent connection, and ConnPool lends those
// connections out.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrTransport is the category of every dial, read and write failure.
var ErrTransport = errors.New("transport: exchange failed")

// Dialer is satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Exchange sends request on a fresh connection and reads until the server
// closes it. Without a deadline on ctx it waits as long as the server takes.
func Exchange(ctx context.Context, d Dialer, addr string, request []byte) ([]byte, error) {
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, addr, err)
	}
	defer conn.Close()

	// Unblock the read below when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(request); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", ErrTransport, addr, cause(ctx, err))
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransport, addr, cause(ctx, err))
	}
	return resp, nil
}

// cause prefers the context error over the "use of closed connection" it
// provoked.
func cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
