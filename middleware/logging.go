package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"spectro-rpc/message"
)

// Logging writes one access line per call. The cause of a failure is logged by
// the server when it sends the error signal.
func Logging(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Result {
			start := time.Now()
			result := next(ctx, call)
			logger.Info().
				Str("conn", call.ConnID).
				Str("call", call.Name).
				Dur("duration", time.Since(start)).
				Bool("ok", result.Err == nil).
				Msg("call")
			return result
		}
	}
}
