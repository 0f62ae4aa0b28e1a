package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"spectro-rpc/message"
)

// RateLimit rejects calls beyond a token bucket of r calls per second with the
// given burst. Rejected calls never reach the session.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Result {
			if !limiter.Allow() {
				return message.Failed(call.Name, ErrRateLimited)
			}
			return next(ctx, call)
		}
	}
}
