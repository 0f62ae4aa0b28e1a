package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"spectro-rpc/message"
)

// Timeout answers with ErrTimeout once the deadline passes. The device call is
// not interrupted: it runs to completion in the background, and when it does
// the abandoned result is logged so slow acquisitions remain visible.
func Timeout(timeout time.Duration, logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Result {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			done := make(chan *message.Result)
			abandoned := make(chan struct{})
			go func() {
				result := runRecovered(ctx, next, call)
				select {
				case done <- result:
				case <-abandoned:
					ev := logger.Warn().
						Str("conn", call.ConnID).
						Str("call", call.Name).
						Dur("elapsed", time.Since(start)).
						Dur("timeout", timeout)
					if result.Err != nil {
						ev = ev.AnErr("late_error", result.Err)
					}
					ev.Msg("abandoned call finished")
				}
			}()

			select {
			case result := <-done:
				return result
			case <-ctx.Done():
				close(abandoned)
				return message.Failed(call.Name, fmt.Errorf("%w after %s", ErrTimeout, timeout))
			}
		}
	}
}

// runRecovered keeps a panic in the detached goroutine from taking the process
// down; the server's own recover only covers the connection goroutine.
func runRecovered(ctx context.Context, next HandlerFunc, call *message.Call) (result *message.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = message.Failed(call.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	return next(ctx, call)
}
