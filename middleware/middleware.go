// Package middleware wraps the server's call handler.
//
// Middlewares compose like an onion: Chain(A, B, C)(h) runs A, then B, then C
// around h. Every HandlerFunc returns a Result; errors travel inside it and are
// collapsed to the wire error signal by the server.
package middleware

import (
	"context"
	"errors"

	"spectro-rpc/message"
)

var (
	ErrRateLimited = errors.New("middleware: rate limit exceeded")
	ErrTimeout     = errors.New("middleware: call timed out")
)

type HandlerFunc func(ctx context.Context, call *message.Call) *message.Result

type Middleware func(next HandlerFunc) HandlerFunc

// Chain folds middlewares into one; the first one given is the outermost. Nil
// entries are skipped, so optional middlewares can be passed unconditionally.
func Chain(middlewares ...Middleware) Middleware {
	active := make([]Middleware, 0, len(middlewares))
	for _, mw := range middlewares {
		if mw != nil {
			active = append(active, mw)
		}
	}
	return func(h HandlerFunc) HandlerFunc {
		for i := range active {
			h = active[len(active)-1-i](h)
		}
		return h
	}
}
